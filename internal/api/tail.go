// Copyright (C) NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.
package api

import (
	"fmt"
	"net/http"

	"github.com/gorilla/mux"
	log "github.com/sirupsen/logrus"

	"github.com/otelgate/otelgate/internal/hotcache"
)

// tail upgrades the request into a live-tail WebSocket on the
// {service}:{signal} hub.
func (api *RestApi) tail(rw http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	service := vars["service"]
	sig := vars["signal"]

	if sig != "logs" && sig != "traces" && sig != "gauge" && sig != "sum" {
		handleError(fmt.Errorf("invalid signal %q", sig), http.StatusBadRequest, rw)
		return
	}

	name := hotcache.DOName(service, sig)
	if err := api.LiveTail.Serve(name, rw, r); err != nil {
		log.WithError(err).WithField("do_name", name).Warn("websocket upgrade failed")
	}
}

// tailStatus reports the hub's client count.
func (api *RestApi) tailStatus(rw http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	name := hotcache.DOName(vars["service"], vars["signal"])
	writeJSON(rw, http.StatusOK, map[string]int{"clients": api.LiveTail.Status(name)})
}

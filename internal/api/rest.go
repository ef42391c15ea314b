// Copyright (C) NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.
package api

import (
	"crypto/subtle"
	"encoding/json"
	"net/http"
	"strings"

	"github.com/gorilla/mux"
	log "github.com/sirupsen/logrus"

	"github.com/otelgate/otelgate/internal/aggregator"
	"github.com/otelgate/otelgate/internal/export"
	"github.com/otelgate/otelgate/internal/livetail"
	"github.com/otelgate/otelgate/internal/registry"
)

// RestApi is the HTTP surface of the gateway.
type RestApi struct {
	Deps       SignalDeps
	HotCache   export.Querier
	Aggregator *aggregator.Manager
	LiveTail   *livetail.Manager
	Registry   *registry.Sender

	// AuthToken guards the ingest endpoints; empty disables auth.
	AuthToken string
}

// MountRoutes registers every endpoint on the router.
func (api *RestApi) MountRoutes(r *mux.Router) {
	r.StrictSlash(true)

	// Ingest
	r.HandleFunc("/v1/logs", api.secured(api.ingestLogs)).Methods(http.MethodPost)
	r.HandleFunc("/v1/traces", api.secured(api.ingestTraces)).Methods(http.MethodPost)
	r.HandleFunc("/v1/metrics", api.secured(api.ingestMetrics)).Methods(http.MethodPost)
	r.HandleFunc("/services/collector/event", api.secured(api.ingestHEC)).Methods(http.MethodPost)

	// Parquet export
	r.HandleFunc("/logs", api.exportLogs).Methods(http.MethodGet)
	r.HandleFunc("/traces", api.exportTraces).Methods(http.MethodGet)
	r.HandleFunc("/metrics/gauge", api.exportGauge).Methods(http.MethodGet)
	r.HandleFunc("/metrics/sum", api.exportSum).Methods(http.MethodGet)

	// Live tail
	r.HandleFunc("/v1/tail/{service}/{signal}", api.tail).Methods(http.MethodGet)
	r.HandleFunc("/v1/tail/{service}/{signal}/status", api.tailStatus).Methods(http.MethodGet)

	// Admin
	r.HandleFunc("/v1/register", api.registerServices).Methods(http.MethodPost)
	r.HandleFunc("/v1/services", api.listServices).Methods(http.MethodGet)
	r.HandleFunc("/v1/metrics", api.listMetrics).Methods(http.MethodGet)
	r.HandleFunc("/v1/services/stats", api.allServicesStats).Methods(http.MethodGet)
	r.HandleFunc("/v1/config", api.showConfig).Methods(http.MethodGet)
}

// ErrorResponse is the JSON error body.
type ErrorResponse struct {
	Status string `json:"status"`
	Error  string `json:"error"`
}

func handleError(err error, statusCode int, rw http.ResponseWriter) {
	log.Warnf("REST ERROR : %s", err.Error())
	rw.Header().Add("Content-Type", "application/json")
	rw.WriteHeader(statusCode)
	json.NewEncoder(rw).Encode(ErrorResponse{
		Status: http.StatusText(statusCode),
		Error:  err.Error(),
	})
}

func writeJSON(rw http.ResponseWriter, statusCode int, v any) {
	rw.Header().Add("Content-Type", "application/json")
	rw.WriteHeader(statusCode)
	json.NewEncoder(rw).Encode(v)
}

// secured wraps ingest handlers with the optional bearer check. The
// token comparison is constant-time; an empty configured token
// disables authentication.
func (api *RestApi) secured(next http.HandlerFunc) http.HandlerFunc {
	return func(rw http.ResponseWriter, r *http.Request) {
		if api.AuthToken != "" {
			header := r.Header.Get("Authorization")
			token, ok := strings.CutPrefix(header, "Bearer ")
			if !ok || subtle.ConstantTimeCompare([]byte(token), []byte(api.AuthToken)) != 1 {
				writeJSON(rw, http.StatusUnauthorized, ErrorResponse{
					Status: http.StatusText(http.StatusUnauthorized),
					Error:  "missing or invalid bearer token",
				})
				return
			}
		}
		next(rw, r)
	}
}

// exportError maps an export failure to its response.
func exportError(err *export.Error, rw http.ResponseWriter) {
	http.Error(rw, err.Message, err.Status)
}

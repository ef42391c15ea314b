// Copyright (C) NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.
package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"sort"
	"strconv"
	"sync"

	log "github.com/sirupsen/logrus"

	"github.com/otelgate/otelgate/internal/aggregator"
	"github.com/otelgate/otelgate/internal/config"
	"github.com/otelgate/otelgate/internal/registry"
)

// RegisterRequest is the batch body of POST /v1/register.
type RegisterRequest struct {
	Services []registry.Registration `json:"services"`
}

// registerServices upserts service registrations. A batch that would
// push the registry past its cardinality cap is rejected with 507.
func (api *RestApi) registerServices(rw http.ResponseWriter, r *http.Request) {
	var req RegisterRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		handleError(err, http.StatusBadRequest, rw)
		return
	}

	n, err := api.Registry.Register(req.Services)
	if err != nil {
		var cardErr *registry.CardinalityError
		if errors.As(err, &cardErr) {
			handleError(err, http.StatusInsufficientStorage, rw)
			return
		}
		handleError(err, http.StatusInternalServerError, rw)
		return
	}

	writeJSON(rw, http.StatusOK, map[string]int{"registered": n})
}

func (api *RestApi) listServices(rw http.ResponseWriter, r *http.Request) {
	services, err := api.Registry.AllServices()
	if err != nil {
		handleError(err, http.StatusInternalServerError, rw)
		return
	}
	writeJSON(rw, http.StatusOK, services)
}

func (api *RestApi) listMetrics(rw http.ResponseWriter, r *http.Request) {
	metrics, err := api.Registry.AllMetrics()
	if err != nil {
		handleError(err, http.StatusInternalServerError, rw)
		return
	}
	writeJSON(rw, http.StatusOK, metrics)
}

// ServiceStats is one service's aggregator rows.
type ServiceStats struct {
	Service string                `json:"service"`
	Stats   []aggregator.StatsRow `json:"stats"`
}

// allServicesStats fans a stats query out to every registered service
// carrying the requested signal. Per-service failures yield empty
// stats arrays so one broken store cannot hide the rest.
func (api *RestApi) allServicesStats(rw http.ResponseWriter, r *http.Request) {
	values := r.URL.Query()

	sig := values.Get("signal")
	if sig != "logs" && sig != "traces" {
		http.Error(rw, "signal query parameter must be logs or traces", http.StatusBadRequest)
		return
	}

	var from, to *int64
	if raw := values.Get("from"); raw != "" {
		if v, err := strconv.ParseInt(raw, 10, 64); err == nil {
			from = &v
		}
	}
	if raw := values.Get("to"); raw != "" {
		if v, err := strconv.ParseInt(raw, 10, 64); err == nil {
			to = &v
		}
	}

	services, err := api.Registry.AllServices()
	if err != nil {
		handleError(err, http.StatusInternalServerError, rw)
		return
	}

	var withSignal []string
	for _, svc := range services {
		if (sig == "logs" && svc.HasLogs != 0) || (sig == "traces" && svc.HasTraces != 0) {
			withSignal = append(withSignal, svc.Name)
		}
	}

	results := make([]ServiceStats, len(withSignal))
	var wg sync.WaitGroup
	for i, service := range withSignal {
		wg.Add(1)
		go func(i int, service string) {
			defer wg.Done()
			rows, err := api.Aggregator.Stats(service+":"+sig, from, to)
			if err != nil {
				log.WithError(err).WithField("service", service).Warn("aggregator stats query failed")
				rows = []aggregator.StatsRow{}
			}
			results[i] = ServiceStats{Service: service, Stats: rows}
		}(i, service)
	}
	wg.Wait()

	sort.Slice(results, func(i, j int) bool { return results[i].Service < results[j].Service })
	writeJSON(rw, http.StatusOK, results)
}

// showConfig reports which endpoints and feature flags are active. No
// secrets.
func (api *RestApi) showConfig(rw http.ResponseWriter, r *http.Request) {
	writeJSON(rw, http.StatusOK, map[string]any{
		"pipelines": map[string]bool{
			"logs":   config.Keys.PipelineLogs != "",
			"traces": config.Keys.PipelineTraces != "",
			"gauge":  config.Keys.PipelineGauge != "",
			"sum":    config.Keys.PipelineSum != "",
		},
		"hot_cache_enabled":  config.Keys.HotCacheEnabled,
		"aggregator_enabled": config.Keys.AggregatorEnabled,
		"livetail_enabled":   config.Keys.LiveTailEnabled,
		"auth_enabled":       api.AuthToken != "",
	})
}

// Copyright (C) NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.
package registry

import (
	log "github.com/sirupsen/logrus"

	"github.com/otelgate/otelgate/pkg/ir"
)

// Sender feeds discovered service and metric names into the store,
// filtered through the worker cache. The ingest path calls it from a
// fire-and-forget goroutine; failures are logged, never surfaced.
type Sender struct {
	store *Store
	cache *Cache
}

// NewSender wraps the singleton store.
func NewSender(store *Store) *Sender {
	return &Sender{store: store, cache: NewCache()}
}

// Register upserts a batch directly, updating the cache only after
// the store write succeeded.
func (s *Sender) Register(registrations []Registration) (int, error) {
	n, err := s.store.Register(registrations)
	if err != nil {
		return 0, err
	}
	for _, reg := range registrations {
		s.cache.Add(reg.Name, reg.Signal)
	}
	return n, nil
}

// RegisterFromGrouped extracts service names (and metric names for the
// gauge/sum tables) from transformed rows and registers the unknown
// ones.
func (s *Sender) RegisterFromGrouped(grouped map[string][]ir.Record) {
	serviceSet := make(map[Registration]struct{})
	metricSet := make(map[[2]string]struct{})

	for table, records := range grouped {
		category := signalCategory(table)
		isMetric := table == "gauge" || table == "sum"
		for _, record := range records {
			service := ir.GetString(record, "service_name")
			if service == "" {
				service = "unknown"
			}
			serviceSet[Registration{Name: service, Signal: category}] = struct{}{}

			if isMetric {
				if name := ir.GetString(record, "metric_name"); name != "" {
					metricSet[[2]string{name, table}] = struct{}{}
				}
			}
		}
	}

	var services []Registration
	for reg := range serviceSet {
		if !s.cache.IsKnown(reg.Name, reg.Signal) {
			services = append(services, reg)
		}
	}
	var metrics [][2]string
	for m := range metricSet {
		if !s.cache.IsMetricKnown(m[0], m[1]) {
			metrics = append(metrics, m)
		}
	}

	if len(services) > 0 {
		if _, err := s.store.Register(services); err != nil {
			log.WithError(err).Warn("service registration failed")
		} else {
			for _, reg := range services {
				s.cache.Add(reg.Name, reg.Signal)
			}
		}
	}

	if len(metrics) > 0 {
		if _, err := s.store.RegisterMetrics(metrics); err != nil {
			log.WithError(err).Warn("metric registration failed")
		} else {
			for _, m := range metrics {
				s.cache.AddMetric(m[0], m[1])
			}
		}
	}
}

// AllServices returns the registry contents. The list query always
// goes to the store since the cache only carries names; the result
// refreshes the name cache, which short-circuits repeated name-only
// callers.
func (s *Sender) AllServices() ([]ServiceRecord, error) {
	services, err := s.store.List()
	if err != nil {
		return nil, err
	}
	names := make([]string, 0, len(services))
	for _, svc := range services {
		names = append(names, svc.Name)
	}
	s.cache.Refresh(names)
	return services, nil
}

// ServiceNames returns just the names, from the cache when fresh.
func (s *Sender) ServiceNames() ([]string, error) {
	if names, ok := s.cache.NamesIfFresh(); ok {
		return names, nil
	}
	services, err := s.AllServices()
	if err != nil {
		return nil, err
	}
	names := make([]string, 0, len(services))
	for _, svc := range services {
		names = append(names, svc.Name)
	}
	return names, nil
}

// AllMetrics returns the metric registry contents and refreshes the
// metric cache.
func (s *Sender) AllMetrics() ([]MetricRecord, error) {
	metrics, err := s.store.ListMetrics()
	if err != nil {
		return nil, err
	}
	tuples := make([][2]string, 0, len(metrics))
	for _, m := range metrics {
		tuples = append(tuples, [2]string{m.Name, m.MetricType})
	}
	s.cache.RefreshMetrics(tuples)
	return metrics, nil
}

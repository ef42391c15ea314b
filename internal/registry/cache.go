// Copyright (C) NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.
package registry

import (
	"sync"
	"time"
)

// cacheTTL is the per-category freshness window (3 minutes).
const cacheTTL = 3 * time.Minute

// Cache is the worker-local view of the registry, making the hot path
// a pure set membership check. Tuples enter the cache only after the
// corresponding store write succeeded, so a crash between write and
// cache update re-registers rather than under-registers.
type Cache struct {
	mu sync.Mutex

	serviceSignals map[[2]string]struct{}
	serviceNames   map[string]struct{}
	lastRefresh    time.Time

	metricTypes        map[[2]string]struct{}
	lastMetricsRefresh time.Time

	now func() time.Time
}

// NewCache creates an empty cache.
func NewCache() *Cache {
	return &Cache{
		serviceSignals: make(map[[2]string]struct{}),
		serviceNames:   make(map[string]struct{}),
		metricTypes:    make(map[[2]string]struct{}),
		now:            time.Now,
	}
}

// IsKnown reports whether a {service, signal-category} tuple is in
// the cache. A false only means the store must be consulted.
func (c *Cache) IsKnown(service, sig string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, ok := c.serviceSignals[[2]string{service, sig}]
	return ok
}

// IsMetricKnown reports whether a (name, type) metric tuple is cached.
func (c *Cache) IsMetricKnown(name, metricType string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, ok := c.metricTypes[[2]string{name, metricType}]
	return ok
}

// Add records a tuple after a successful store write.
func (c *Cache) Add(service, sig string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.serviceSignals[[2]string{service, sig}] = struct{}{}
	c.serviceNames[service] = struct{}{}
}

// AddMetric records a metric tuple after a successful store write.
func (c *Cache) AddMetric(name, metricType string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.metricTypes[[2]string{name, metricType}] = struct{}{}
}

// NamesIfFresh returns the cached service names while the cache is
// inside its TTL, or ok=false when a store refresh is needed.
func (c *Cache) NamesIfFresh() ([]string, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.lastRefresh.IsZero() || c.now().Sub(c.lastRefresh) >= cacheTTL || len(c.serviceNames) == 0 {
		return nil, false
	}
	names := make([]string, 0, len(c.serviceNames))
	for name := range c.serviceNames {
		names = append(names, name)
	}
	return names, true
}

// Refresh replaces the service-name view from a store list and resets
// the TTL. Signal tuples are cleared since the list carries no signal
// info; new signals re-register on next ingestion.
func (c *Cache) Refresh(names []string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.serviceNames = make(map[string]struct{}, len(names))
	for _, name := range names {
		c.serviceNames[name] = struct{}{}
	}
	c.serviceSignals = make(map[[2]string]struct{})
	c.lastRefresh = c.now()
}

// MetricsIfFresh returns the cached metric tuples while fresh.
func (c *Cache) MetricsIfFresh() ([][2]string, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.lastMetricsRefresh.IsZero() || c.now().Sub(c.lastMetricsRefresh) >= cacheTTL || len(c.metricTypes) == 0 {
		return nil, false
	}
	metrics := make([][2]string, 0, len(c.metricTypes))
	for m := range c.metricTypes {
		metrics = append(metrics, m)
	}
	return metrics, true
}

// RefreshMetrics replaces the metric view and resets its TTL.
func (c *Cache) RefreshMetrics(metrics [][2]string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.metricTypes = make(map[[2]string]struct{}, len(metrics))
	for _, m := range metrics {
		c.metricTypes[m] = struct{}{}
	}
	c.lastMetricsRefresh = c.now()
}

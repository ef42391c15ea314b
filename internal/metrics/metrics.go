// Copyright (C) NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Package metrics instruments the ingest path.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// RequestsTotal counts ingest requests by signal and outcome
	// status (ok, partial, error plus the failure classes).
	RequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "otelgate",
		Name:      "ingest_requests_total",
		Help:      "Ingest requests by signal and outcome.",
	}, []string{"signal", "status"})

	// RecordsTotal counts records delivered downstream per table.
	RecordsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "otelgate",
		Name:      "pipeline_records_total",
		Help:      "Records delivered to the pipeline per table.",
	}, []string{"table"})

	// SendFailuresTotal counts per-table pipeline send failures.
	SendFailuresTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "otelgate",
		Name:      "pipeline_send_failures_total",
		Help:      "Pipeline send failures per table.",
	}, []string{"table"})

	// SidecarFailuresTotal counts best-effort sidecar write failures
	// by component (hot_cache, aggregator, livetail).
	SidecarFailuresTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "otelgate",
		Name:      "sidecar_failures_total",
		Help:      "Best-effort sidecar write failures by component.",
	}, []string{"component"})

	// RequestDuration observes end-to-end ingest handling time.
	RequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "otelgate",
		Name:      "ingest_duration_seconds",
		Help:      "End-to-end ingest handling time by signal.",
		Buckets:   prometheus.DefBuckets,
	}, []string{"signal"})
)

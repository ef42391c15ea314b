// Copyright (C) NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Package aggregator keeps per-minute RED rollups for logs and traces,
// one store per {service}:{signal}. Metrics are skipped; they are
// aggregated downstream from cold storage.
package aggregator

import "github.com/otelgate/otelgate/pkg/ir"

// OpenTelemetry severity numbers 17-24 are error-level events.
const severityErrorThreshold = 17

// OpenTelemetry span status code 2 is Error.
const statusCodeError = 2

// LogAggregates accumulates log counts for one minute bucket.
type LogAggregates struct {
	Count      int64
	ErrorCount int64
}

// Accumulate counts one log row.
func (a *LogAggregates) Accumulate(record ir.Record) {
	a.Count++
	if severity, ok := ir.GetInt(record, "severity_number"); ok && severity >= severityErrorThreshold {
		a.ErrorCount++
	}
}

// TraceAggregates accumulates span counts and latency stats for one
// minute bucket. Latency comes from the row's duration (milliseconds)
// and is stored in microseconds.
type TraceAggregates struct {
	Count        int64
	ErrorCount   int64
	LatencySumUs int64
	LatencyMinUs *int64
	LatencyMaxUs *int64
}

// Accumulate counts one span row.
func (a *TraceAggregates) Accumulate(record ir.Record) {
	a.Count++

	if status, ok := ir.GetInt(record, "status_code"); ok && status == statusCodeError {
		a.ErrorCount++
	}

	if durationMs, ok := ir.GetInt(record, "duration"); ok {
		durationUs := durationMs * 1000
		a.LatencySumUs += durationUs
		if a.LatencyMinUs == nil || durationUs < *a.LatencyMinUs {
			v := durationUs
			a.LatencyMinUs = &v
		}
		if a.LatencyMaxUs == nil || durationUs > *a.LatencyMaxUs {
			v := durationUs
			a.LatencyMaxUs = &v
		}
	}
}

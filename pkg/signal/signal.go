// Copyright (C) NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Package signal defines the telemetry signal types the gateway routes
// between decoders, transform programs and pipeline tables.
package signal

// Signal identifies one telemetry signal variant. The metrics signal
// splits into Gauge and Sum at the table layer; the remaining metric
// kinds are accepted on the wire but never produce records.
type Signal int

const (
	Logs Signal = iota
	Traces
	Gauge
	Sum
	Histogram
	ExpHistogram
	Summary
)

// All returns every signal variant, including the metric kinds that
// never produce records.
func All() []Signal {
	return []Signal{Logs, Traces, Gauge, Sum, Histogram, ExpHistogram, Summary}
}

// TableName returns the routing table name a transform program assigns
// via the _table field.
func (s Signal) TableName() string {
	switch s {
	case Logs:
		return "logs"
	case Traces:
		return "traces"
	case Gauge:
		return "gauge"
	case Sum:
		return "sum"
	case Histogram:
		return "histogram"
	case ExpHistogram:
		return "exp_histogram"
	case Summary:
		return "summary"
	}
	return "unknown"
}

// EnvVarName returns the environment variable holding the pipeline
// endpoint for this signal's table.
func (s Signal) EnvVarName() string {
	switch s {
	case Logs:
		return "PIPELINE_LOGS"
	case Traces:
		return "PIPELINE_TRACES"
	case Gauge:
		return "PIPELINE_GAUGE"
	case Sum:
		return "PIPELINE_SUM"
	case Histogram:
		return "PIPELINE_HISTOGRAM"
	case ExpHistogram:
		return "PIPELINE_EXP_HISTOGRAM"
	case Summary:
		return "PIPELINE_SUMMARY"
	}
	return ""
}

func (s Signal) String() string { return s.TableName() }

// FromTableName parses a table name back into a Signal.
func FromTableName(name string) (Signal, bool) {
	switch name {
	case "logs":
		return Logs, true
	case "traces":
		return Traces, true
	case "gauge":
		return Gauge, true
	case "sum":
		return Sum, true
	case "histogram":
		return Histogram, true
	case "exp_histogram":
		return ExpHistogram, true
	case "summary":
		return Summary, true
	}
	return 0, false
}

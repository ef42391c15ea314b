// Copyright (C) NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.
package export

import (
	"bytes"
	"fmt"

	pq "github.com/parquet-go/parquet-go"

	"github.com/otelgate/otelgate/pkg/ir"
)

// Per-signal export row shapes. Field order matches the column order a
// reader observes; logs carry 17 columns, traces 27, gauge 17, sum 19.

// LogRow is one exported log record.
type LogRow struct {
	Signal             string  `parquet:"_signal"`
	TimestampNanos     int64   `parquet:"_timestamp_nanos"`
	Timestamp          int64   `parquet:"timestamp"`
	ObservedTimestamp  int64   `parquet:"observed_timestamp"`
	TraceID            string  `parquet:"trace_id"`
	SpanID             string  `parquet:"span_id"`
	ServiceName        string  `parquet:"service_name"`
	ServiceNamespace   string  `parquet:"service_namespace"`
	ServiceInstanceID  string  `parquet:"service_instance_id"`
	SeverityNumber     int64   `parquet:"severity_number"`
	SeverityText       string  `parquet:"severity_text"`
	Body               string  `parquet:"body"`
	ResourceAttributes string  `parquet:"resource_attributes"`
	ScopeName          string  `parquet:"scope_name"`
	ScopeVersion       string  `parquet:"scope_version"`
	ScopeAttributes    string  `parquet:"scope_attributes"`
	LogAttributes      string  `parquet:"log_attributes"`
}

// TraceRow is one exported span record.
type TraceRow struct {
	Signal                 string `parquet:"_signal"`
	TimestampNanos         int64  `parquet:"_timestamp_nanos"`
	Timestamp              int64  `parquet:"timestamp"`
	EndTimestamp           int64  `parquet:"end_timestamp"`
	Duration               int64  `parquet:"duration"`
	TraceID                string `parquet:"trace_id"`
	SpanID                 string `parquet:"span_id"`
	ParentSpanID           string `parquet:"parent_span_id"`
	TraceState             string `parquet:"trace_state"`
	ServiceName            string `parquet:"service_name"`
	ServiceNamespace       string `parquet:"service_namespace"`
	ServiceInstanceID      string `parquet:"service_instance_id"`
	SpanName               string `parquet:"span_name"`
	SpanKind               int64  `parquet:"span_kind"`
	StatusCode             int64  `parquet:"status_code"`
	StatusMessage          string `parquet:"status_message"`
	ResourceAttributes     string `parquet:"resource_attributes"`
	ScopeName              string `parquet:"scope_name"`
	ScopeVersion           string `parquet:"scope_version"`
	ScopeAttributes        string `parquet:"scope_attributes"`
	SpanAttributes         string `parquet:"span_attributes"`
	Events                 string `parquet:"events"`
	Links                  string `parquet:"links"`
	DroppedAttributesCount int64  `parquet:"dropped_attributes_count"`
	DroppedEventsCount     int64  `parquet:"dropped_events_count"`
	DroppedLinksCount      int64  `parquet:"dropped_links_count"`
	Flags                  int64  `parquet:"flags"`
}

// GaugeRow is one exported gauge data point.
type GaugeRow struct {
	Signal             string  `parquet:"_signal"`
	TimestampNanos     int64   `parquet:"_timestamp_nanos"`
	Timestamp          int64   `parquet:"timestamp"`
	StartTimestamp     int64   `parquet:"start_timestamp"`
	ServiceName        string  `parquet:"service_name"`
	ServiceNamespace   string  `parquet:"service_namespace"`
	ServiceInstanceID  string  `parquet:"service_instance_id"`
	MetricName         string  `parquet:"metric_name"`
	MetricDescription  string  `parquet:"metric_description"`
	MetricUnit         string  `parquet:"metric_unit"`
	Value              float64 `parquet:"value"`
	Flags              int64   `parquet:"flags"`
	MetricAttributes   string  `parquet:"metric_attributes"`
	ResourceAttributes string  `parquet:"resource_attributes"`
	ScopeName          string  `parquet:"scope_name"`
	ScopeVersion       string  `parquet:"scope_version"`
	ScopeAttributes    string  `parquet:"scope_attributes"`
}

// SumRow is one exported sum data point.
type SumRow struct {
	Signal                 string  `parquet:"_signal"`
	TimestampNanos         int64   `parquet:"_timestamp_nanos"`
	Timestamp              int64   `parquet:"timestamp"`
	StartTimestamp         int64   `parquet:"start_timestamp"`
	ServiceName            string  `parquet:"service_name"`
	ServiceNamespace       string  `parquet:"service_namespace"`
	ServiceInstanceID      string  `parquet:"service_instance_id"`
	MetricName             string  `parquet:"metric_name"`
	MetricDescription      string  `parquet:"metric_description"`
	MetricUnit             string  `parquet:"metric_unit"`
	Value                  float64 `parquet:"value"`
	Flags                  int64   `parquet:"flags"`
	MetricAttributes       string  `parquet:"metric_attributes"`
	ResourceAttributes     string  `parquet:"resource_attributes"`
	ScopeName              string  `parquet:"scope_name"`
	ScopeVersion           string  `parquet:"scope_version"`
	ScopeAttributes        string  `parquet:"scope_attributes"`
	AggregationTemporality int64   `parquet:"aggregation_temporality"`
	IsMonotonic            bool    `parquet:"is_monotonic"`
}

func getFloat(row ir.Record, key string) float64 {
	switch v := row[key].(type) {
	case float64:
		return v
	case int64:
		return float64(v)
	case int:
		return float64(v)
	}
	return 0
}

func getInt64(row ir.Record, key string) int64 {
	v, _ := ir.GetInt(row, key)
	return v
}

func getBool(row ir.Record, key string) bool {
	switch v := row[key].(type) {
	case bool:
		return v
	case int64:
		return v != 0
	case float64:
		return v != 0
	}
	return false
}

func writeRows[T any](rows []T) ([]byte, error) {
	var buf bytes.Buffer
	writer := pq.NewGenericWriter[T](&buf)
	if len(rows) > 0 {
		if _, err := writer.Write(rows); err != nil {
			return nil, err
		}
	}
	if err := writer.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// WriteParquet serializes merged query rows into Parquet bytes with
// the per-signal schema.
func WriteParquet(sig string, rows []ir.Record) ([]byte, error) {
	switch sig {
	case "logs":
		out := make([]LogRow, 0, len(rows))
		for _, row := range rows {
			out = append(out, LogRow{
				Signal:             "logs",
				TimestampNanos:     getInt64(row, "_timestamp_nanos"),
				Timestamp:          getInt64(row, "timestamp"),
				ObservedTimestamp:  getInt64(row, "observed_timestamp"),
				TraceID:            ir.GetString(row, "trace_id"),
				SpanID:             ir.GetString(row, "span_id"),
				ServiceName:        ir.GetString(row, "service_name"),
				ServiceNamespace:   ir.GetString(row, "service_namespace"),
				ServiceInstanceID:  ir.GetString(row, "service_instance_id"),
				SeverityNumber:     getInt64(row, "severity_number"),
				SeverityText:       ir.GetString(row, "severity_text"),
				Body:               ir.GetString(row, "body"),
				ResourceAttributes: ir.GetString(row, "resource_attributes"),
				ScopeName:          ir.GetString(row, "scope_name"),
				ScopeVersion:       ir.GetString(row, "scope_version"),
				ScopeAttributes:    ir.GetString(row, "scope_attributes"),
				LogAttributes:      ir.GetString(row, "log_attributes"),
			})
		}
		return writeRows(out)
	case "traces":
		out := make([]TraceRow, 0, len(rows))
		for _, row := range rows {
			out = append(out, TraceRow{
				Signal:                 "traces",
				TimestampNanos:         getInt64(row, "_timestamp_nanos"),
				Timestamp:              getInt64(row, "timestamp"),
				EndTimestamp:           getInt64(row, "end_timestamp"),
				Duration:               getInt64(row, "duration"),
				TraceID:                ir.GetString(row, "trace_id"),
				SpanID:                 ir.GetString(row, "span_id"),
				ParentSpanID:           ir.GetString(row, "parent_span_id"),
				TraceState:             ir.GetString(row, "trace_state"),
				ServiceName:            ir.GetString(row, "service_name"),
				ServiceNamespace:       ir.GetString(row, "service_namespace"),
				ServiceInstanceID:      ir.GetString(row, "service_instance_id"),
				SpanName:               ir.GetString(row, "span_name"),
				SpanKind:               getInt64(row, "span_kind"),
				StatusCode:             getInt64(row, "status_code"),
				StatusMessage:          ir.GetString(row, "status_message"),
				ResourceAttributes:     ir.GetString(row, "resource_attributes"),
				ScopeName:              ir.GetString(row, "scope_name"),
				ScopeVersion:           ir.GetString(row, "scope_version"),
				ScopeAttributes:        ir.GetString(row, "scope_attributes"),
				SpanAttributes:         ir.GetString(row, "span_attributes"),
				Events:                 ir.GetString(row, "events"),
				Links:                  ir.GetString(row, "links"),
				DroppedAttributesCount: getInt64(row, "dropped_attributes_count"),
				DroppedEventsCount:     getInt64(row, "dropped_events_count"),
				DroppedLinksCount:      getInt64(row, "dropped_links_count"),
				Flags:                  getInt64(row, "flags"),
			})
		}
		return writeRows(out)
	case "gauge":
		out := make([]GaugeRow, 0, len(rows))
		for _, row := range rows {
			out = append(out, GaugeRow{
				Signal:             "gauge",
				TimestampNanos:     getInt64(row, "_timestamp_nanos"),
				Timestamp:          getInt64(row, "timestamp"),
				StartTimestamp:     getInt64(row, "start_timestamp"),
				ServiceName:        ir.GetString(row, "service_name"),
				ServiceNamespace:   ir.GetString(row, "service_namespace"),
				ServiceInstanceID:  ir.GetString(row, "service_instance_id"),
				MetricName:         ir.GetString(row, "metric_name"),
				MetricDescription:  ir.GetString(row, "metric_description"),
				MetricUnit:         ir.GetString(row, "metric_unit"),
				Value:              getFloat(row, "value"),
				Flags:              getInt64(row, "flags"),
				MetricAttributes:   ir.GetString(row, "metric_attributes"),
				ResourceAttributes: ir.GetString(row, "resource_attributes"),
				ScopeName:          ir.GetString(row, "scope_name"),
				ScopeVersion:       ir.GetString(row, "scope_version"),
				ScopeAttributes:    ir.GetString(row, "scope_attributes"),
			})
		}
		return writeRows(out)
	case "sum":
		out := make([]SumRow, 0, len(rows))
		for _, row := range rows {
			out = append(out, SumRow{
				Signal:                 "sum",
				TimestampNanos:         getInt64(row, "_timestamp_nanos"),
				Timestamp:              getInt64(row, "timestamp"),
				StartTimestamp:         getInt64(row, "start_timestamp"),
				ServiceName:            ir.GetString(row, "service_name"),
				ServiceNamespace:       ir.GetString(row, "service_namespace"),
				ServiceInstanceID:      ir.GetString(row, "service_instance_id"),
				MetricName:             ir.GetString(row, "metric_name"),
				MetricDescription:      ir.GetString(row, "metric_description"),
				MetricUnit:             ir.GetString(row, "metric_unit"),
				Value:                  getFloat(row, "value"),
				Flags:                  getInt64(row, "flags"),
				MetricAttributes:       ir.GetString(row, "metric_attributes"),
				ResourceAttributes:     ir.GetString(row, "resource_attributes"),
				ScopeName:              ir.GetString(row, "scope_name"),
				ScopeVersion:           ir.GetString(row, "scope_version"),
				ScopeAttributes:        ir.GetString(row, "scope_attributes"),
				AggregationTemporality: getInt64(row, "aggregation_temporality"),
				IsMonotonic:            getBool(row, "is_monotonic"),
			})
		}
		return writeRows(out)
	}
	return nil, fmt.Errorf("unknown export signal %q", sig)
}

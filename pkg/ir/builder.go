// Copyright (C) NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.
package ir

import "fmt"

// The builders assemble decoder output into IR records and assert the
// schema invariants the transform programs rely on. A violation here is
// a decoder bug, not a runtime condition, so the builders panic.

// LogParts carries the fields of one OTLP log record.
type LogParts struct {
	TimeUnixNano         int64
	ObservedTimeUnixNano int64
	SeverityNumber       int64
	SeverityText         string
	Body                 any
	TraceID              string
	SpanID               string
	Attributes           Record
	Resource             Record
	Scope                Record
}

// SpanEventParts is one span event.
type SpanEventParts struct {
	TimeUnixNano int64
	Name         string
	Attributes   Record
}

// SpanLinkParts is one span link.
type SpanLinkParts struct {
	TraceID    string
	SpanID     string
	TraceState string
	Attributes Record
}

// SpanParts carries the fields of one OTLP span.
type SpanParts struct {
	TraceID                string
	SpanID                 string
	ParentSpanID           string
	TraceState             string
	Name                   string
	Kind                   int64
	StartTimeUnixNano      int64
	EndTimeUnixNano        int64
	Attributes             Record
	StatusCode             int64
	StatusMessage          string
	Events                 []SpanEventParts
	Links                  []SpanLinkParts
	Resource               Record
	Scope                  Record
	DroppedAttributesCount int64
	DroppedEventsCount     int64
	DroppedLinksCount      int64
	Flags                  int64
}

// MetricParts carries one gauge or sum data point. Value is always a
// float regardless of the wire encoding.
type MetricParts struct {
	TimeUnixNano           int64
	StartTimeUnixNano      int64
	MetricName             string
	MetricDescription      string
	MetricUnit             string
	Value                  float64
	Attributes             Record
	Resource               Record
	Scope                  Record
	Flags                  int64
	Exemplars              []any
	MetricType             string
	AggregationTemporality int64
	IsMonotonic            bool
}

func assertf(cond bool, format string, args ...any) {
	if !cond {
		panic(fmt.Sprintf(format, args...))
	}
}

// BuildLog assembles a log record.
func BuildLog(p LogParts) Record {
	assertf(p.TimeUnixNano >= 0, "log timestamp must be non-negative, got %d", p.TimeUnixNano)
	assertf(p.ObservedTimeUnixNano >= 0, "log observed timestamp must be non-negative, got %d", p.ObservedTimeUnixNano)
	assertf(p.SeverityNumber >= 0 && p.SeverityNumber <= 24, "severity_number must be 0-24, got %d", p.SeverityNumber)

	return Record{
		"time_unix_nano":          p.TimeUnixNano,
		"observed_time_unix_nano": p.ObservedTimeUnixNano,
		"severity_number":         p.SeverityNumber,
		"severity_text":           p.SeverityText,
		"body":                    p.Body,
		"trace_id":                p.TraceID,
		"span_id":                 p.SpanID,
		"attributes":              p.Attributes,
		"resource":                p.Resource,
		"scope":                   p.Scope,
	}
}

// BuildSpan assembles a span record. duration_ns saturates on
// end < start.
func BuildSpan(p SpanParts) Record {
	assertf(p.StartTimeUnixNano >= 0, "span start timestamp must be non-negative, got %d", p.StartTimeUnixNano)
	assertf(p.EndTimeUnixNano >= 0, "span end timestamp must be non-negative, got %d", p.EndTimeUnixNano)
	assertf(p.Kind >= 0 && p.Kind <= 5, "span kind must be 0-5, got %d", p.Kind)
	assertf(p.StatusCode >= 0 && p.StatusCode <= 2, "status_code must be 0-2, got %d", p.StatusCode)
	assertf(p.TraceID != "", "trace_id must not be empty")
	assertf(p.SpanID != "", "span_id must not be empty")

	duration := p.EndTimeUnixNano - p.StartTimeUnixNano
	if duration < 0 {
		duration = 0
	}

	events := make([]any, 0, len(p.Events))
	for _, e := range p.Events {
		events = append(events, Record{
			"time_unix_nano": e.TimeUnixNano,
			"name":           e.Name,
			"attributes":     e.Attributes,
		})
	}
	links := make([]any, 0, len(p.Links))
	for _, l := range p.Links {
		links = append(links, Record{
			"trace_id":    l.TraceID,
			"span_id":     l.SpanID,
			"trace_state": l.TraceState,
			"attributes":  l.Attributes,
		})
	}

	return Record{
		"trace_id":                 p.TraceID,
		"span_id":                  p.SpanID,
		"parent_span_id":           p.ParentSpanID,
		"trace_state":              p.TraceState,
		"name":                     p.Name,
		"kind":                     p.Kind,
		"start_time_unix_nano":     p.StartTimeUnixNano,
		"end_time_unix_nano":       p.EndTimeUnixNano,
		"duration_ns":              duration,
		"attributes":               p.Attributes,
		"status_code":              p.StatusCode,
		"status_message":           p.StatusMessage,
		"events":                   events,
		"links":                    links,
		"resource":                 p.Resource,
		"scope":                    p.Scope,
		"dropped_attributes_count": p.DroppedAttributesCount,
		"dropped_events_count":     p.DroppedEventsCount,
		"dropped_links_count":      p.DroppedLinksCount,
		"flags":                    p.Flags,
	}
}

// BuildNumberDataPoint assembles one gauge or sum record. The caller
// must have dropped non-finite values already.
func BuildNumberDataPoint(p MetricParts) Record {
	assertf(p.TimeUnixNano >= 0, "metric timestamp must be non-negative, got %d", p.TimeUnixNano)
	assertf(p.MetricType == "gauge" || p.MetricType == "sum", "unexpected metric type %q", p.MetricType)
	if _, ok := Finite(p.Value); !ok {
		panic("metric value must be finite")
	}

	exemplars := p.Exemplars
	if exemplars == nil {
		exemplars = []any{}
	}

	rec := Record{
		"time_unix_nano":       p.TimeUnixNano,
		"start_time_unix_nano": p.StartTimeUnixNano,
		"metric_name":          p.MetricName,
		"metric_description":   p.MetricDescription,
		"metric_unit":          p.MetricUnit,
		"value":                p.Value,
		"attributes":           p.Attributes,
		"resource":             p.Resource,
		"scope":                p.Scope,
		"flags":                p.Flags,
		"exemplars":            exemplars,
		"_metric_type":         p.MetricType,
	}
	if p.MetricType == "sum" {
		rec["aggregation_temporality"] = p.AggregationTemporality
		rec["is_monotonic"] = p.IsMonotonic
	}
	return rec
}

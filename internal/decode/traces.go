// Copyright (C) NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.
package decode

import (
	"encoding/json"

	coltracepb "go.opentelemetry.io/proto/otlp/collector/trace/v1"
	"google.golang.org/protobuf/proto"

	"github.com/otelgate/otelgate/pkg/ir"
)

// DecodeTraces decodes an OTLP traces payload into IR records.
func DecodeTraces(body []byte, format Format) ([]ir.Record, error) {
	switch format {
	case FormatJSON:
		return decodeTracesJSON(body)
	case FormatProtobuf:
		return decodeTracesProto(body)
	}
	return autoDecode(body, decodeTracesJSON, decodeTracesProto)
}

type jsonTracesRequest struct {
	ResourceSpans []jsonResourceSpans `json:"resourceSpans"`
}

type jsonResourceSpans struct {
	Resource   jsonResource     `json:"resource"`
	ScopeSpans []jsonScopeSpans `json:"scopeSpans"`
}

type jsonScopeSpans struct {
	Scope jsonScope  `json:"scope"`
	Spans []jsonSpan `json:"spans"`
}

type jsonSpan struct {
	TraceID                string          `json:"traceId"`
	SpanID                 string          `json:"spanId"`
	ParentSpanID           string          `json:"parentSpanId"`
	TraceState             string          `json:"traceState"`
	Name                   string          `json:"name"`
	Kind                   int64           `json:"kind"`
	StartTimeUnixNano      flexUint64      `json:"startTimeUnixNano"`
	EndTimeUnixNano        flexUint64      `json:"endTimeUnixNano"`
	Attributes             []jsonKeyValue  `json:"attributes"`
	Events                 []jsonSpanEvent `json:"events"`
	Links                  []jsonSpanLink  `json:"links"`
	Status                 jsonSpanStatus  `json:"status"`
	DroppedAttributesCount int64           `json:"droppedAttributesCount"`
	DroppedEventsCount     int64           `json:"droppedEventsCount"`
	DroppedLinksCount      int64           `json:"droppedLinksCount"`
	Flags                  int64           `json:"flags"`
}

type jsonSpanEvent struct {
	TimeUnixNano flexUint64     `json:"timeUnixNano"`
	Name         string         `json:"name"`
	Attributes   []jsonKeyValue `json:"attributes"`
}

type jsonSpanLink struct {
	TraceID    string         `json:"traceId"`
	SpanID     string         `json:"spanId"`
	TraceState string         `json:"traceState"`
	Attributes []jsonKeyValue `json:"attributes"`
}

type jsonSpanStatus struct {
	Code    int64  `json:"code"`
	Message string `json:"message"`
}

// clampEnum keeps wire enum values inside the range the record builder
// asserts, mapping anything out of range to the unspecified value.
func clampEnum(v, max int64) int64 {
	if v < 0 || v > max {
		return 0
	}
	return v
}

func decodeTracesJSON(body []byte) ([]ir.Record, error) {
	var req jsonTracesRequest
	if err := json.Unmarshal(body, &req); err != nil {
		return nil, err
	}

	capacity := 0
	for _, rs := range req.ResourceSpans {
		for _, ss := range rs.ScopeSpans {
			capacity += len(ss.Spans)
		}
	}
	records := make([]ir.Record, 0, capacity)

	for _, rs := range req.ResourceSpans {
		resource := jsonResourceToIR(rs.Resource)
		for _, ss := range rs.ScopeSpans {
			scope := jsonScopeToIR(ss.Scope)
			for _, sp := range ss.Spans {
				parts, err := jsonSpanToParts(sp, resource, scope)
				if err != nil {
					return nil, err
				}
				records = append(records, ir.BuildSpan(parts))
			}
		}
	}

	return records, nil
}

func jsonSpanToParts(sp jsonSpan, resource, scope ir.Record) (ir.SpanParts, error) {
	if sp.TraceID == "" {
		return ir.SpanParts{}, &ir.FieldError{Field: "span.trace_id", Reason: "must not be empty"}
	}
	if sp.SpanID == "" {
		return ir.SpanParts{}, &ir.FieldError{Field: "span.span_id", Reason: "must not be empty"}
	}
	start, err := jsonTimestamp(sp.StartTimeUnixNano, "span.start_time_unix_nano")
	if err != nil {
		return ir.SpanParts{}, err
	}
	end, err := jsonTimestamp(sp.EndTimeUnixNano, "span.end_time_unix_nano")
	if err != nil {
		return ir.SpanParts{}, err
	}

	events := make([]ir.SpanEventParts, 0, len(sp.Events))
	for _, e := range sp.Events {
		t, err := jsonTimestamp(e.TimeUnixNano, "span.event.time_unix_nano")
		if err != nil {
			return ir.SpanParts{}, err
		}
		events = append(events, ir.SpanEventParts{
			TimeUnixNano: t,
			Name:         e.Name,
			Attributes:   jsonAttrsToIR(e.Attributes),
		})
	}
	links := make([]ir.SpanLinkParts, 0, len(sp.Links))
	for _, l := range sp.Links {
		links = append(links, ir.SpanLinkParts{
			TraceID:    l.TraceID,
			SpanID:     l.SpanID,
			TraceState: l.TraceState,
			Attributes: jsonAttrsToIR(l.Attributes),
		})
	}

	return ir.SpanParts{
		TraceID:                sp.TraceID,
		SpanID:                 sp.SpanID,
		ParentSpanID:           sp.ParentSpanID,
		TraceState:             sp.TraceState,
		Name:                   sp.Name,
		Kind:                   clampEnum(sp.Kind, 5),
		StartTimeUnixNano:      start,
		EndTimeUnixNano:        end,
		Attributes:             jsonAttrsToIR(sp.Attributes),
		StatusCode:             clampEnum(sp.Status.Code, 2),
		StatusMessage:          sp.Status.Message,
		Events:                 events,
		Links:                  links,
		Resource:               resource,
		Scope:                  scope,
		DroppedAttributesCount: sp.DroppedAttributesCount,
		DroppedEventsCount:     sp.DroppedEventsCount,
		DroppedLinksCount:      sp.DroppedLinksCount,
		Flags:                  sp.Flags,
	}, nil
}

func decodeTracesProto(body []byte) ([]ir.Record, error) {
	var req coltracepb.ExportTraceServiceRequest
	if err := proto.Unmarshal(body, &req); err != nil {
		return nil, err
	}

	capacity := 0
	for _, rs := range req.GetResourceSpans() {
		for _, ss := range rs.GetScopeSpans() {
			capacity += len(ss.GetSpans())
		}
	}
	records := make([]ir.Record, 0, capacity)

	for _, rs := range req.GetResourceSpans() {
		resource := protoResourceToIR(rs.GetResource())
		for _, ss := range rs.GetScopeSpans() {
			scope := protoScopeToIR(ss.GetScope())
			for _, sp := range ss.GetSpans() {
				traceID := hexID(sp.GetTraceId())
				spanID := hexID(sp.GetSpanId())
				if traceID == "" {
					return nil, &ir.FieldError{Field: "span.trace_id", Reason: "must not be empty"}
				}
				if spanID == "" {
					return nil, &ir.FieldError{Field: "span.span_id", Reason: "must not be empty"}
				}
				start, err := ir.TimestampFromUint64(sp.GetStartTimeUnixNano(), "span.start_time_unix_nano")
				if err != nil {
					return nil, err
				}
				end, err := ir.TimestampFromUint64(sp.GetEndTimeUnixNano(), "span.end_time_unix_nano")
				if err != nil {
					return nil, err
				}

				events := make([]ir.SpanEventParts, 0, len(sp.GetEvents()))
				for _, e := range sp.GetEvents() {
					t, err := ir.TimestampFromUint64(e.GetTimeUnixNano(), "span.event.time_unix_nano")
					if err != nil {
						return nil, err
					}
					events = append(events, ir.SpanEventParts{
						TimeUnixNano: t,
						Name:         e.GetName(),
						Attributes:   protoAttrsToIR(e.GetAttributes()),
					})
				}
				links := make([]ir.SpanLinkParts, 0, len(sp.GetLinks()))
				for _, l := range sp.GetLinks() {
					links = append(links, ir.SpanLinkParts{
						TraceID:    hexID(l.GetTraceId()),
						SpanID:     hexID(l.GetSpanId()),
						TraceState: l.GetTraceState(),
						Attributes: protoAttrsToIR(l.GetAttributes()),
					})
				}

				records = append(records, ir.BuildSpan(ir.SpanParts{
					TraceID:                traceID,
					SpanID:                 spanID,
					ParentSpanID:           hexID(sp.GetParentSpanId()),
					TraceState:             sp.GetTraceState(),
					Name:                   sp.GetName(),
					Kind:                   clampEnum(int64(sp.GetKind()), 5),
					StartTimeUnixNano:      start,
					EndTimeUnixNano:        end,
					Attributes:             protoAttrsToIR(sp.GetAttributes()),
					StatusCode:             clampEnum(int64(sp.GetStatus().GetCode()), 2),
					StatusMessage:          sp.GetStatus().GetMessage(),
					Events:                 events,
					Links:                  links,
					Resource:               resource,
					Scope:                  scope,
					DroppedAttributesCount: int64(sp.GetDroppedAttributesCount()),
					DroppedEventsCount:     int64(sp.GetDroppedEventsCount()),
					DroppedLinksCount:      int64(sp.GetDroppedLinksCount()),
					Flags:                  int64(sp.GetFlags()),
				}))
			}
		}
	}

	return records, nil
}

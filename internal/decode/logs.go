// Copyright (C) NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.
package decode

import (
	"encoding/json"

	collogspb "go.opentelemetry.io/proto/otlp/collector/logs/v1"
	"google.golang.org/protobuf/proto"

	"github.com/otelgate/otelgate/pkg/ir"
)

// DecodeLogs decodes an OTLP logs payload into IR records.
func DecodeLogs(body []byte, format Format) ([]ir.Record, error) {
	switch format {
	case FormatJSON:
		return decodeLogsJSON(body)
	case FormatProtobuf:
		return decodeLogsProto(body)
	}
	return autoDecode(body, decodeLogsJSON, decodeLogsProto)
}

type jsonLogsRequest struct {
	ResourceLogs []jsonResourceLogs `json:"resourceLogs"`
}

type jsonResourceLogs struct {
	Resource  jsonResource    `json:"resource"`
	ScopeLogs []jsonScopeLogs `json:"scopeLogs"`
}

type jsonScopeLogs struct {
	Scope      jsonScope       `json:"scope"`
	LogRecords []jsonLogRecord `json:"logRecords"`
}

type jsonLogRecord struct {
	TimeUnixNano         flexUint64     `json:"timeUnixNano"`
	ObservedTimeUnixNano flexUint64     `json:"observedTimeUnixNano"`
	SeverityNumber       int64          `json:"severityNumber"`
	SeverityText         string         `json:"severityText"`
	Body                 *jsonAnyValue  `json:"body"`
	Attributes           []jsonKeyValue `json:"attributes"`
	TraceID              string         `json:"traceId"`
	SpanID               string         `json:"spanId"`
}

func decodeLogsJSON(body []byte) ([]ir.Record, error) {
	var req jsonLogsRequest
	if err := json.Unmarshal(body, &req); err != nil {
		return nil, err
	}

	capacity := 0
	for _, rl := range req.ResourceLogs {
		for _, sl := range rl.ScopeLogs {
			capacity += len(sl.LogRecords)
		}
	}
	records := make([]ir.Record, 0, capacity)

	for _, rl := range req.ResourceLogs {
		resource := jsonResourceToIR(rl.Resource)
		for _, sl := range rl.ScopeLogs {
			scope := jsonScopeToIR(sl.Scope)
			for _, lr := range sl.LogRecords {
				t, err := jsonTimestamp(lr.TimeUnixNano, "log.time_unix_nano")
				if err != nil {
					return nil, err
				}
				obs, err := jsonTimestamp(lr.ObservedTimeUnixNano, "log.observed_time_unix_nano")
				if err != nil {
					return nil, err
				}

				var bodyVal any
				if lr.Body != nil {
					bodyVal = jsonAnyToIR(*lr.Body)
				}

				records = append(records, ir.BuildLog(ir.LogParts{
					TimeUnixNano:         t,
					ObservedTimeUnixNano: obs,
					SeverityNumber:       lr.SeverityNumber,
					SeverityText:         lr.SeverityText,
					Body:                 bodyVal,
					TraceID:              lr.TraceID,
					SpanID:               lr.SpanID,
					Attributes:           jsonAttrsToIR(lr.Attributes),
					Resource:             resource,
					Scope:                scope,
				}))
			}
		}
	}

	return records, nil
}

func decodeLogsProto(body []byte) ([]ir.Record, error) {
	var req collogspb.ExportLogsServiceRequest
	if err := proto.Unmarshal(body, &req); err != nil {
		return nil, err
	}

	capacity := 0
	for _, rl := range req.GetResourceLogs() {
		for _, sl := range rl.GetScopeLogs() {
			capacity += len(sl.GetLogRecords())
		}
	}
	records := make([]ir.Record, 0, capacity)

	for _, rl := range req.GetResourceLogs() {
		resource := protoResourceToIR(rl.GetResource())
		for _, sl := range rl.GetScopeLogs() {
			scope := protoScopeToIR(sl.GetScope())
			for _, lr := range sl.GetLogRecords() {
				t, err := ir.TimestampFromUint64(lr.GetTimeUnixNano(), "log.time_unix_nano")
				if err != nil {
					return nil, err
				}
				obs, err := ir.TimestampFromUint64(lr.GetObservedTimeUnixNano(), "log.observed_time_unix_nano")
				if err != nil {
					return nil, err
				}

				records = append(records, ir.BuildLog(ir.LogParts{
					TimeUnixNano:         t,
					ObservedTimeUnixNano: obs,
					SeverityNumber:       int64(lr.GetSeverityNumber()),
					SeverityText:         lr.GetSeverityText(),
					Body:                 protoAnyToIR(lr.GetBody()),
					TraceID:              hexID(lr.GetTraceId()),
					SpanID:               hexID(lr.GetSpanId()),
					Attributes:           protoAttrsToIR(lr.GetAttributes()),
					Resource:             resource,
					Scope:                scope,
				}))
			}
		}
	}

	return records, nil
}

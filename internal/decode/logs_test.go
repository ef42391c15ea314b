// Copyright (C) NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.
package decode

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	collogspb "go.opentelemetry.io/proto/otlp/collector/logs/v1"
	commonpb "go.opentelemetry.io/proto/otlp/common/v1"
	logspb "go.opentelemetry.io/proto/otlp/logs/v1"
	resourcepb "go.opentelemetry.io/proto/otlp/resource/v1"
	"google.golang.org/protobuf/proto"

	"github.com/otelgate/otelgate/pkg/ir"
)

const logsJSONSample = `{
	"resourceLogs": [{
		"resource": {
			"attributes": [
				{"key": "service.name", "value": {"stringValue": "svc"}}
			]
		},
		"scopeLogs": [{
			"scope": {"name": "test.receiver", "version": "1.0.0"},
			"logRecords": [{
				"timeUnixNano": "1703265600000000000",
				"observedTimeUnixNano": "1703265600000000001",
				"severityNumber": 9,
				"severityText": "INFO",
				"body": {"stringValue": "hello"},
				"attributes": [
					{"key": "big", "value": {"stringValue": "` + "%s" + `"}}
				],
				"traceId": "0af7651916cd43dd8448eb211c80319c",
				"spanId": "b7ad6b7169203331"
			}]
		}]
	}]
}`

func sampleLogsJSON() []byte {
	return []byte(strings.Replace(logsJSONSample, "%s", strings.Repeat("a", 128), 1))
}

func TestDecodeLogsJSON(t *testing.T) {
	records, err := DecodeLogs(sampleLogsJSON(), FormatJSON)
	require.NoError(t, err)
	require.Len(t, records, 1)

	rec := records[0]
	assert.Equal(t, int64(1703265600000000000), rec["time_unix_nano"])
	assert.Equal(t, int64(9), rec["severity_number"])
	assert.Equal(t, "INFO", rec["severity_text"])
	assert.Equal(t, "hello", rec["body"])
	// JSON trace ids pass through as received.
	assert.Equal(t, "0af7651916cd43dd8448eb211c80319c", rec["trace_id"])

	resource := rec["resource"].(ir.Record)
	attrs := resource["attributes"].(ir.Record)
	assert.Equal(t, "svc", attrs["service.name"])

	recAttrs := rec["attributes"].(ir.Record)
	assert.Len(t, recAttrs["big"], 128)
}

func TestDecodeLogsJSONTimestampOverflow(t *testing.T) {
	body := []byte(`{"resourceLogs": [{"scopeLogs": [{"logRecords": [
		{"timeUnixNano": "18446744073709551615"}
	]}]}]}`)
	_, err := DecodeLogs(body, FormatJSON)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "log.time_unix_nano")
}

func TestDecodeLogsProtobufHexIDs(t *testing.T) {
	req := &collogspb.ExportLogsServiceRequest{
		ResourceLogs: []*logspb.ResourceLogs{{
			Resource: &resourcepb.Resource{
				Attributes: []*commonpb.KeyValue{{
					Key:   "service.name",
					Value: &commonpb.AnyValue{Value: &commonpb.AnyValue_StringValue{StringValue: "svc"}},
				}},
			},
			ScopeLogs: []*logspb.ScopeLogs{{
				Scope: &commonpb.InstrumentationScope{Name: "test.receiver"},
				LogRecords: []*logspb.LogRecord{{
					TimeUnixNano:   1703265600000000000,
					SeverityNumber: logspb.SeverityNumber_SEVERITY_NUMBER_INFO,
					SeverityText:   "INFO",
					Body:           &commonpb.AnyValue{Value: &commonpb.AnyValue_StringValue{StringValue: "hello"}},
					TraceId:        []byte{0x0a, 0xf7, 0x65, 0x19, 0x16, 0xcd, 0x43, 0xdd, 0x84, 0x48, 0xeb, 0x21, 0x1c, 0x80, 0x31, 0x9c},
					SpanId:         []byte{0xb7, 0xad, 0x6b, 0x71, 0x69, 0x20, 0x33, 0x31},
				}},
			}},
		}},
	}
	body, err := proto.Marshal(req)
	require.NoError(t, err)

	records, err := DecodeLogs(body, FormatProtobuf)
	require.NoError(t, err)
	require.Len(t, records, 1)

	// Protobuf ids render as lowercase hex.
	assert.Equal(t, "0af7651916cd43dd8448eb211c80319c", records[0]["trace_id"])
	assert.Equal(t, "b7ad6b7169203331", records[0]["span_id"])
	assert.Equal(t, int64(9), records[0]["severity_number"])
}

func TestDecodeLogsAutoDetect(t *testing.T) {
	// JSON body with auto format decodes via the JSON path.
	records, err := DecodeLogs(sampleLogsJSON(), FormatAuto)
	require.NoError(t, err)
	assert.Len(t, records, 1)
}

func TestDecodeLogsAutoDoubleFailureSurfacesBothErrors(t *testing.T) {
	_, err := DecodeLogs([]byte("{not json, not protobuf"), FormatAuto)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "json decode failed")
	assert.Contains(t, err.Error(), "protobuf fallback failed")
}

func TestDecodeLogsEmptyRequest(t *testing.T) {
	records, err := DecodeLogs([]byte(`{}`), FormatJSON)
	require.NoError(t, err)
	assert.Empty(t, records)
}

func TestLooksLikeJSON(t *testing.T) {
	assert.True(t, looksLikeJSON([]byte(`  {"a":1}`)))
	assert.True(t, looksLikeJSON([]byte("[1]")))
	assert.False(t, looksLikeJSON([]byte{0x0a, 0x01}))
	assert.False(t, looksLikeJSON([]byte{}))
}

func TestAttributeDuplicateKeysLastWins(t *testing.T) {
	attrs := jsonAttrsToIR([]jsonKeyValue{
		{Key: "k", Value: jsonAnyValue{StringValue: strPtr("first")}},
		{Key: "k", Value: jsonAnyValue{StringValue: strPtr("second")}},
	})
	assert.Equal(t, "second", attrs["k"])
}

func strPtr(s string) *string { return &s }

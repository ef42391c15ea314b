// Copyright (C) NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.
package decode

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	colmetricspb "go.opentelemetry.io/proto/otlp/collector/metrics/v1"
	metricspb "go.opentelemetry.io/proto/otlp/metrics/v1"
	"google.golang.org/protobuf/proto"
)

const metricsJSONSample = `{
	"resourceMetrics": [{
		"resource": {
			"attributes": [{"key": "service.name", "value": {"stringValue": "svc"}}]
		},
		"scopeMetrics": [{
			"metrics": [
				{
					"name": "cpu.usage",
					"unit": "ratio",
					"gauge": {"dataPoints": [
						{"timeUnixNano": "1000000000", "asDouble": 0.75}
					]}
				},
				{
					"name": "active.connections",
					"gauge": {"dataPoints": [
						{"timeUnixNano": "1000000000", "asInt": "42"}
					]}
				},
				{
					"name": "http.requests",
					"sum": {
						"dataPoints": [
							{"timeUnixNano": "1000000000", "asInt": "7"}
						],
						"aggregationTemporality": 2,
						"isMonotonic": true
					}
				}
			]
		}]
	}]
}`

func TestDecodeMetricsJSON(t *testing.T) {
	records, err := DecodeMetrics([]byte(metricsJSONSample), FormatJSON)
	require.NoError(t, err)
	require.Len(t, records, 3)

	// Every value field is a float, integer inputs widened.
	for _, rec := range records {
		assert.IsType(t, float64(0), rec["value"])
	}

	assert.Equal(t, "cpu.usage", records[0]["metric_name"])
	assert.Equal(t, 0.75, records[0]["value"])
	assert.Equal(t, "gauge", records[0]["_metric_type"])

	assert.Equal(t, "active.connections", records[1]["metric_name"])
	assert.Equal(t, 42.0, records[1]["value"])

	assert.Equal(t, "http.requests", records[2]["metric_name"])
	assert.Equal(t, "sum", records[2]["_metric_type"])
	assert.Equal(t, int64(2), records[2]["aggregation_temporality"])
	assert.Equal(t, true, records[2]["is_monotonic"])
}

func TestDecodeMetricsSkipsMissingValue(t *testing.T) {
	body := []byte(`{"resourceMetrics": [{"scopeMetrics": [{"metrics": [
		{"name": "no.value", "gauge": {"dataPoints": [{"timeUnixNano": "1"}]}}
	]}]}]}`)
	records, err := DecodeMetrics(body, FormatJSON)
	require.NoError(t, err)
	assert.Empty(t, records)
}

func TestDecodeMetricsSkipsUnsupportedTypes(t *testing.T) {
	body := []byte(`{"resourceMetrics": [{"scopeMetrics": [{"metrics": [
		{"name": "latency", "histogram": {"dataPoints": []}},
		{"name": "size", "summary": {"dataPoints": []}},
		{"name": "nothing"}
	]}]}]}`)
	records, err := DecodeMetrics(body, FormatJSON)
	require.NoError(t, err)
	assert.Empty(t, records)
}

func TestDecodeMetricsProtobufNonFiniteDroppedPointwise(t *testing.T) {
	req := &colmetricspb.ExportMetricsServiceRequest{
		ResourceMetrics: []*metricspb.ResourceMetrics{{
			ScopeMetrics: []*metricspb.ScopeMetrics{{
				Metrics: []*metricspb.Metric{{
					Name: "cpu.usage",
					Data: &metricspb.Metric_Gauge{Gauge: &metricspb.Gauge{
						DataPoints: []*metricspb.NumberDataPoint{
							{
								TimeUnixNano: 1000,
								Value:        &metricspb.NumberDataPoint_AsDouble{AsDouble: math.NaN()},
							},
							{
								TimeUnixNano: 2000,
								Value:        &metricspb.NumberDataPoint_AsDouble{AsDouble: 0.5},
							},
						},
					}},
				}},
			}},
		}},
	}
	body, err := proto.Marshal(req)
	require.NoError(t, err)

	// The NaN point is skipped; the batch continues.
	records, err := DecodeMetrics(body, FormatProtobuf)
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, 0.5, records[0]["value"])
}

func TestDecodeMetricsExemplarValueMayBeNull(t *testing.T) {
	body := []byte(`{"resourceMetrics": [{"scopeMetrics": [{"metrics": [
		{"name": "m", "gauge": {"dataPoints": [
			{"timeUnixNano": "1", "asDouble": 1.0, "exemplars": [{"timeUnixNano": "1"}]}
		]}}
	]}]}]}`)
	records, err := DecodeMetrics(body, FormatJSON)
	require.NoError(t, err)
	require.Len(t, records, 1)

	exemplars := records[0]["exemplars"].([]any)
	require.Len(t, exemplars, 1)
	ex := exemplars[0].(map[string]any)
	// Exemplar values are metadata and may legitimately be null,
	// unlike the primary measurement which drops the point.
	assert.Nil(t, ex["value"])
}

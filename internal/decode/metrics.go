// Copyright (C) NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.
package decode

import (
	"encoding/json"

	log "github.com/sirupsen/logrus"
	colmetricspb "go.opentelemetry.io/proto/otlp/collector/metrics/v1"
	metricspb "go.opentelemetry.io/proto/otlp/metrics/v1"
	"google.golang.org/protobuf/proto"

	"github.com/otelgate/otelgate/pkg/ir"
)

// DecodeMetrics decodes an OTLP metrics payload into IR records. Only
// gauge and sum data points produce records; histogram,
// exponential-histogram and summary metrics are logged at debug level
// and dropped. Data points with missing or non-finite values are
// skipped individually while the batch continues.
func DecodeMetrics(body []byte, format Format) ([]ir.Record, error) {
	switch format {
	case FormatJSON:
		return decodeMetricsJSON(body)
	case FormatProtobuf:
		return decodeMetricsProto(body)
	}
	return autoDecode(body, decodeMetricsJSON, decodeMetricsProto)
}

type jsonMetricsRequest struct {
	ResourceMetrics []jsonResourceMetrics `json:"resourceMetrics"`
}

type jsonResourceMetrics struct {
	Resource     jsonResource       `json:"resource"`
	ScopeMetrics []jsonScopeMetrics `json:"scopeMetrics"`
}

type jsonScopeMetrics struct {
	Scope   jsonScope    `json:"scope"`
	Metrics []jsonMetric `json:"metrics"`
}

type jsonMetric struct {
	Name                 string          `json:"name"`
	Description          string          `json:"description"`
	Unit                 string          `json:"unit"`
	Gauge                *jsonNumberData `json:"gauge"`
	Sum                  *jsonSumData    `json:"sum"`
	Histogram            json.RawMessage `json:"histogram"`
	ExponentialHistogram json.RawMessage `json:"exponentialHistogram"`
	Summary              json.RawMessage `json:"summary"`
}

type jsonNumberData struct {
	DataPoints []jsonNumberDataPoint `json:"dataPoints"`
}

type jsonSumData struct {
	DataPoints             []jsonNumberDataPoint `json:"dataPoints"`
	AggregationTemporality int64                 `json:"aggregationTemporality"`
	IsMonotonic            bool                  `json:"isMonotonic"`
}

type jsonNumberDataPoint struct {
	StartTimeUnixNano flexUint64     `json:"startTimeUnixNano"`
	TimeUnixNano      flexUint64     `json:"timeUnixNano"`
	AsDouble          *float64       `json:"asDouble"`
	AsInt             *flexInt64     `json:"asInt"`
	Attributes        []jsonKeyValue `json:"attributes"`
	Exemplars         []jsonExemplar `json:"exemplars"`
	Flags             int64          `json:"flags"`
}

type jsonExemplar struct {
	TimeUnixNano       flexUint64     `json:"timeUnixNano"`
	AsDouble           *float64       `json:"asDouble"`
	AsInt              *flexInt64     `json:"asInt"`
	SpanID             string         `json:"spanId"`
	TraceID            string         `json:"traceId"`
	FilteredAttributes []jsonKeyValue `json:"filteredAttributes"`
}

// pointValue widens the wire value to a float and reports whether the
// point carries a usable measurement.
func pointValue(asDouble *float64, asInt *flexInt64) (float64, bool) {
	if asDouble != nil {
		return ir.Finite(*asDouble)
	}
	if asInt != nil {
		return float64(*asInt), true
	}
	return 0, false
}

// exemplar values are metadata and may legitimately be null, unlike
// the primary measurement which drops the point.
func jsonExemplarsToIR(exemplars []jsonExemplar) ([]any, error) {
	out := make([]any, 0, len(exemplars))
	for _, e := range exemplars {
		t, err := jsonTimestamp(e.TimeUnixNano, "exemplar.time_unix_nano")
		if err != nil {
			return nil, err
		}
		var value any
		if e.AsDouble != nil {
			if f, ok := ir.Finite(*e.AsDouble); ok {
				value = f
			}
		} else if e.AsInt != nil {
			value = float64(*e.AsInt)
		}
		out = append(out, ir.Record{
			"time_unix_nano":      t,
			"value":               value,
			"span_id":             e.SpanID,
			"trace_id":            e.TraceID,
			"filtered_attributes": jsonAttrsToIR(e.FilteredAttributes),
		})
	}
	return out, nil
}

func decodeMetricsJSON(body []byte) ([]ir.Record, error) {
	var req jsonMetricsRequest
	if err := json.Unmarshal(body, &req); err != nil {
		return nil, err
	}

	capacity := 0
	for _, rm := range req.ResourceMetrics {
		for _, sm := range rm.ScopeMetrics {
			for _, m := range sm.Metrics {
				if m.Gauge != nil {
					capacity += len(m.Gauge.DataPoints)
				}
				if m.Sum != nil {
					capacity += len(m.Sum.DataPoints)
				}
			}
		}
	}
	records := make([]ir.Record, 0, capacity)

	for _, rm := range req.ResourceMetrics {
		resource := jsonResourceToIR(rm.Resource)
		for _, sm := range rm.ScopeMetrics {
			scope := jsonScopeToIR(sm.Scope)
			for _, m := range sm.Metrics {
				switch {
				case m.Gauge != nil:
					for _, dp := range m.Gauge.DataPoints {
						rec, ok, err := jsonPointToRecord(m, dp, "gauge", 0, false, resource, scope)
						if err != nil {
							return nil, err
						}
						if ok {
							records = append(records, rec)
						}
					}
				case m.Sum != nil:
					for _, dp := range m.Sum.DataPoints {
						rec, ok, err := jsonPointToRecord(m, dp, "sum", m.Sum.AggregationTemporality, m.Sum.IsMonotonic, resource, scope)
						if err != nil {
							return nil, err
						}
						if ok {
							records = append(records, rec)
						}
					}
				default:
					log.WithField("metric_name", m.Name).
						Debug("skipping metric with unsupported type (expected gauge or sum)")
				}
			}
		}
	}

	return records, nil
}

func jsonPointToRecord(m jsonMetric, dp jsonNumberDataPoint, metricType string, temporality int64, monotonic bool, resource, scope ir.Record) (ir.Record, bool, error) {
	value, ok := pointValue(dp.AsDouble, dp.AsInt)
	if !ok {
		log.WithField("metric_name", m.Name).
			Debugf("skipping %s point with missing or non-finite value", metricType)
		return nil, false, nil
	}
	t, err := jsonTimestamp(dp.TimeUnixNano, "metric.time_unix_nano")
	if err != nil {
		return nil, false, err
	}
	start, err := jsonTimestamp(dp.StartTimeUnixNano, "metric.start_time_unix_nano")
	if err != nil {
		return nil, false, err
	}
	exemplars, err := jsonExemplarsToIR(dp.Exemplars)
	if err != nil {
		return nil, false, err
	}

	return ir.BuildNumberDataPoint(ir.MetricParts{
		TimeUnixNano:           t,
		StartTimeUnixNano:      start,
		MetricName:             m.Name,
		MetricDescription:      m.Description,
		MetricUnit:             m.Unit,
		Value:                  value,
		Attributes:             jsonAttrsToIR(dp.Attributes),
		Resource:               resource,
		Scope:                  scope,
		Flags:                  dp.Flags,
		Exemplars:              exemplars,
		MetricType:             metricType,
		AggregationTemporality: temporality,
		IsMonotonic:            monotonic,
	}), true, nil
}

func decodeMetricsProto(body []byte) ([]ir.Record, error) {
	var req colmetricspb.ExportMetricsServiceRequest
	if err := proto.Unmarshal(body, &req); err != nil {
		return nil, err
	}

	capacity := 0
	for _, rm := range req.GetResourceMetrics() {
		for _, sm := range rm.GetScopeMetrics() {
			for _, m := range sm.GetMetrics() {
				if g := m.GetGauge(); g != nil {
					capacity += len(g.GetDataPoints())
				}
				if s := m.GetSum(); s != nil {
					capacity += len(s.GetDataPoints())
				}
			}
		}
	}
	records := make([]ir.Record, 0, capacity)

	for _, rm := range req.GetResourceMetrics() {
		resource := protoResourceToIR(rm.GetResource())
		for _, sm := range rm.GetScopeMetrics() {
			scope := protoScopeToIR(sm.GetScope())
			for _, m := range sm.GetMetrics() {
				switch data := m.GetData().(type) {
				case *metricspb.Metric_Gauge:
					for _, dp := range data.Gauge.GetDataPoints() {
						rec, ok, err := protoPointToRecord(m, dp, "gauge", 0, false, resource, scope)
						if err != nil {
							return nil, err
						}
						if ok {
							records = append(records, rec)
						}
					}
				case *metricspb.Metric_Sum:
					for _, dp := range data.Sum.GetDataPoints() {
						rec, ok, err := protoPointToRecord(m, dp, "sum",
							int64(data.Sum.GetAggregationTemporality()), data.Sum.GetIsMonotonic(), resource, scope)
						if err != nil {
							return nil, err
						}
						if ok {
							records = append(records, rec)
						}
					}
				default:
					log.WithField("metric_name", m.GetName()).
						Debug("skipping metric with unsupported type (expected gauge or sum)")
				}
			}
		}
	}

	return records, nil
}

func protoPointToRecord(m *metricspb.Metric, dp *metricspb.NumberDataPoint, metricType string, temporality int64, monotonic bool, resource, scope ir.Record) (ir.Record, bool, error) {
	var value float64
	switch v := dp.GetValue().(type) {
	case *metricspb.NumberDataPoint_AsDouble:
		f, ok := ir.Finite(v.AsDouble)
		if !ok {
			log.WithField("metric_name", m.GetName()).
				Debugf("skipping %s point with missing or non-finite value", metricType)
			return nil, false, nil
		}
		value = f
	case *metricspb.NumberDataPoint_AsInt:
		value = float64(v.AsInt)
	default:
		log.WithField("metric_name", m.GetName()).
			Debugf("skipping %s point with missing or non-finite value", metricType)
		return nil, false, nil
	}

	t, err := ir.TimestampFromUint64(dp.GetTimeUnixNano(), "metric.time_unix_nano")
	if err != nil {
		return nil, false, err
	}
	start, err := ir.TimestampFromUint64(dp.GetStartTimeUnixNano(), "metric.start_time_unix_nano")
	if err != nil {
		return nil, false, err
	}

	exemplars := make([]any, 0, len(dp.GetExemplars()))
	for _, e := range dp.GetExemplars() {
		et, err := ir.TimestampFromUint64(e.GetTimeUnixNano(), "exemplar.time_unix_nano")
		if err != nil {
			return nil, false, err
		}
		var exValue any
		switch ev := e.GetValue().(type) {
		case *metricspb.Exemplar_AsDouble:
			if f, ok := ir.Finite(ev.AsDouble); ok {
				exValue = f
			}
		case *metricspb.Exemplar_AsInt:
			exValue = float64(ev.AsInt)
		}
		exemplars = append(exemplars, ir.Record{
			"time_unix_nano":      et,
			"value":               exValue,
			"span_id":             hexID(e.GetSpanId()),
			"trace_id":            hexID(e.GetTraceId()),
			"filtered_attributes": protoAttrsToIR(e.GetFilteredAttributes()),
		})
	}

	return ir.BuildNumberDataPoint(ir.MetricParts{
		TimeUnixNano:           t,
		StartTimeUnixNano:      start,
		MetricName:             m.GetName(),
		MetricDescription:      m.GetDescription(),
		MetricUnit:             m.GetUnit(),
		Value:                  value,
		Attributes:             protoAttrsToIR(dp.GetAttributes()),
		Resource:               resource,
		Scope:                  scope,
		Flags:                  int64(dp.GetFlags()),
		Exemplars:              exemplars,
		MetricType:             metricType,
		AggregationTemporality: temporality,
		IsMonotonic:            monotonic,
	}), true, nil
}

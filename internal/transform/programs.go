// Copyright (C) NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.
package transform

// Per-signal transform sources. Each program maps one IR record to one
// flat output row and assigns the routing table through _table. The
// sources are compiled once at process start; invocations only run the
// compiled programs.

const otlpLogsSource = `
let svc = to_string(get(resource, ["attributes", "service.name"]) ?? "");
{
	"_table": "logs",
	"_signal": "logs",
	"_timestamp_nanos": time_unix_nano,
	"timestamp": to_int(floor(time_unix_nano / 1000000)),
	"observed_timestamp": to_int(floor(observed_time_unix_nano / 1000000)),
	"trace_id": to_string(trace_id ?? ""),
	"span_id": to_string(span_id ?? ""),
	"service_name": svc == "" ? "unknown" : svc,
	"service_namespace": to_string(get(resource, ["attributes", "service.namespace"]) ?? ""),
	"service_instance_id": to_string(get(resource, ["attributes", "service.instance.id"]) ?? ""),
	"severity_number": severity_number ?? 0,
	"severity_text": to_string(severity_text ?? ""),
	"body": is_object(body) || is_array(body) ? encode_json(body) : to_string(body ?? ""),
	"resource_attributes": encode_json(get(resource, ["attributes"]) ?? {}),
	"scope_name": to_string(get(scope, ["name"]) ?? ""),
	"scope_version": to_string(get(scope, ["version"]) ?? ""),
	"scope_attributes": encode_json(get(scope, ["attributes"]) ?? {}),
	"log_attributes": encode_json(attributes ?? {})
}
`

const otlpTracesSource = `
let svc = to_string(get(resource, ["attributes", "service.name"]) ?? "");
{
	"_table": "traces",
	"_signal": "traces",
	"_timestamp_nanos": start_time_unix_nano,
	"timestamp": to_int(floor(start_time_unix_nano / 1000000)),
	"end_timestamp": to_int(floor(end_time_unix_nano / 1000000)),
	"duration": to_int(floor(duration_ns / 1000000)),
	"trace_id": to_string(trace_id ?? ""),
	"span_id": to_string(span_id ?? ""),
	"parent_span_id": to_string(parent_span_id ?? ""),
	"trace_state": to_string(trace_state ?? ""),
	"service_name": svc == "" ? "unknown" : svc,
	"service_namespace": to_string(get(resource, ["attributes", "service.namespace"]) ?? ""),
	"service_instance_id": to_string(get(resource, ["attributes", "service.instance.id"]) ?? ""),
	"span_name": to_string(name ?? ""),
	"span_kind": kind ?? 0,
	"status_code": status_code ?? 0,
	"status_message": to_string(status_message ?? ""),
	"resource_attributes": encode_json(get(resource, ["attributes"]) ?? {}),
	"scope_name": to_string(get(scope, ["name"]) ?? ""),
	"scope_version": to_string(get(scope, ["version"]) ?? ""),
	"scope_attributes": encode_json(get(scope, ["attributes"]) ?? {}),
	"span_attributes": encode_json(attributes ?? {}),
	"events": encode_json(events ?? []),
	"links": encode_json(links ?? []),
	"dropped_attributes_count": dropped_attributes_count ?? 0,
	"dropped_events_count": dropped_events_count ?? 0,
	"dropped_links_count": dropped_links_count ?? 0,
	"flags": flags ?? 0
}
`

const otlpGaugeSource = `
let svc = to_string(get(resource, ["attributes", "service.name"]) ?? "");
{
	"_table": "gauge",
	"_signal": "gauge",
	"_timestamp_nanos": time_unix_nano,
	"timestamp": to_int(floor(time_unix_nano / 1000000)),
	"start_timestamp": to_int(floor(start_time_unix_nano / 1000000)),
	"service_name": svc == "" ? "unknown" : svc,
	"service_namespace": to_string(get(resource, ["attributes", "service.namespace"]) ?? ""),
	"service_instance_id": to_string(get(resource, ["attributes", "service.instance.id"]) ?? ""),
	"metric_name": to_string(metric_name ?? ""),
	"metric_description": to_string(metric_description ?? ""),
	"metric_unit": to_string(metric_unit ?? ""),
	"value": value,
	"flags": flags ?? 0,
	"metric_attributes": encode_json(attributes ?? {}),
	"resource_attributes": encode_json(get(resource, ["attributes"]) ?? {}),
	"scope_name": to_string(get(scope, ["name"]) ?? ""),
	"scope_version": to_string(get(scope, ["version"]) ?? ""),
	"scope_attributes": encode_json(get(scope, ["attributes"]) ?? {})
}
`

const otlpSumSource = `
let svc = to_string(get(resource, ["attributes", "service.name"]) ?? "");
{
	"_table": "sum",
	"_signal": "sum",
	"_timestamp_nanos": time_unix_nano,
	"timestamp": to_int(floor(time_unix_nano / 1000000)),
	"start_timestamp": to_int(floor(start_time_unix_nano / 1000000)),
	"service_name": svc == "" ? "unknown" : svc,
	"service_namespace": to_string(get(resource, ["attributes", "service.namespace"]) ?? ""),
	"service_instance_id": to_string(get(resource, ["attributes", "service.instance.id"]) ?? ""),
	"metric_name": to_string(metric_name ?? ""),
	"metric_description": to_string(metric_description ?? ""),
	"metric_unit": to_string(metric_unit ?? ""),
	"value": value,
	"flags": flags ?? 0,
	"metric_attributes": encode_json(attributes ?? {}),
	"resource_attributes": encode_json(get(resource, ["attributes"]) ?? {}),
	"scope_name": to_string(get(scope, ["name"]) ?? ""),
	"scope_version": to_string(get(scope, ["version"]) ?? ""),
	"scope_attributes": encode_json(get(scope, ["attributes"]) ?? {}),
	"aggregation_temporality": aggregation_temporality ?? 0,
	"is_monotonic": is_monotonic ?? false
}
`

// HEC events arrive pre-flattened with millisecond timestamps. The
// host doubles as the service identity; routing defaults to logs.
const hecLogsSource = `
let svc = to_string(host ?? "");
{
	"_table": "logs",
	"_signal": "logs",
	"_timestamp_nanos": to_int(timestamp * 1000000),
	"timestamp": timestamp,
	"observed_timestamp": observed_timestamp,
	"trace_id": "",
	"span_id": "",
	"service_name": svc == "" ? "unknown" : svc,
	"service_namespace": "",
	"service_instance_id": "",
	"severity_number": 0,
	"severity_text": "",
	"body": to_string(body ?? ""),
	"resource_attributes": encode_json({"host": to_string(host ?? ""), "source": to_string(source ?? ""), "sourcetype": to_string(sourcetype ?? "")}),
	"scope_name": "",
	"scope_version": "",
	"scope_attributes": "{}",
	"log_attributes": encode_json(fields ?? {})
}
`

// Compiled programs, one per signal. Compilation failure is a build
// defect, caught by the package tests and the panic at first import.
var (
	OTLPLogs   = MustCompile("otlp_logs", otlpLogsSource)
	OTLPTraces = MustCompile("otlp_traces", otlpTracesSource)
	OTLPGauge  = MustCompile("otlp_gauge", otlpGaugeSource)
	OTLPSum    = MustCompile("otlp_sum", otlpSumSource)
	HECLogs    = MustCompile("hec_logs", hecLogsSource)
)

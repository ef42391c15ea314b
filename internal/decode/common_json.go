// Copyright (C) NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.
package decode

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/otelgate/otelgate/pkg/ir"
)

// OTLP/JSON envelope types shared by the per-signal decoders. 64-bit
// fields arrive as JSON strings or numbers depending on the exporter,
// so they unmarshal through flexible wrappers.

// flexUint64 accepts both `"123"` and `123`.
type flexUint64 uint64

func (f *flexUint64) UnmarshalJSON(data []byte) error {
	s := strings.Trim(string(data), `"`)
	if s == "" || s == "null" {
		*f = 0
		return nil
	}
	v, err := strconv.ParseUint(s, 10, 64)
	if err != nil {
		return fmt.Errorf("invalid uint64 %q", s)
	}
	*f = flexUint64(v)
	return nil
}

// flexInt64 accepts both `"123"` and `123`.
type flexInt64 int64

func (f *flexInt64) UnmarshalJSON(data []byte) error {
	s := strings.Trim(string(data), `"`)
	if s == "" || s == "null" {
		*f = 0
		return nil
	}
	v, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return fmt.Errorf("invalid int64 %q", s)
	}
	*f = flexInt64(v)
	return nil
}

type jsonAnyValue struct {
	StringValue *string         `json:"stringValue"`
	BoolValue   *bool           `json:"boolValue"`
	IntValue    *flexInt64      `json:"intValue"`
	DoubleValue *float64        `json:"doubleValue"`
	BytesValue  *string         `json:"bytesValue"`
	ArrayValue  *jsonArrayValue `json:"arrayValue"`
	KvlistValue *jsonKvlist     `json:"kvlistValue"`
}

type jsonArrayValue struct {
	Values []jsonAnyValue `json:"values"`
}

type jsonKvlist struct {
	Values []jsonKeyValue `json:"values"`
}

type jsonKeyValue struct {
	Key   string       `json:"key"`
	Value jsonAnyValue `json:"value"`
}

type jsonResource struct {
	Attributes []jsonKeyValue `json:"attributes"`
}

type jsonScope struct {
	Name       string         `json:"name"`
	Version    string         `json:"version"`
	Attributes []jsonKeyValue `json:"attributes"`
}

// jsonAnyToIR lowers an OTLP AnyValue to IR. Non-finite doubles become
// nil, byte values decode from base64 into an IR byte string.
func jsonAnyToIR(v jsonAnyValue) any {
	switch {
	case v.StringValue != nil:
		return *v.StringValue
	case v.BoolValue != nil:
		return *v.BoolValue
	case v.IntValue != nil:
		return int64(*v.IntValue)
	case v.DoubleValue != nil:
		if f, ok := ir.Finite(*v.DoubleValue); ok {
			return f
		}
		return nil
	case v.BytesValue != nil:
		if b, err := base64.StdEncoding.DecodeString(*v.BytesValue); err == nil {
			return string(b)
		}
		return *v.BytesValue
	case v.ArrayValue != nil:
		items := make([]any, 0, len(v.ArrayValue.Values))
		for _, item := range v.ArrayValue.Values {
			items = append(items, jsonAnyToIR(item))
		}
		return items
	case v.KvlistValue != nil:
		return jsonAttrsToIR(v.KvlistValue.Values)
	}
	return nil
}

// jsonAttrsToIR lowers an attribute list into an IR map. Duplicate
// keys: last write wins.
func jsonAttrsToIR(attrs []jsonKeyValue) ir.Record {
	m := make(ir.Record, len(attrs))
	for _, kv := range attrs {
		m[kv.Key] = jsonAnyToIR(kv.Value)
	}
	return m
}

// jsonResourceToIR builds the shared resource sub-tree for one
// resource block. Sibling records reference the same map.
func jsonResourceToIR(r jsonResource) ir.Record {
	return ir.Record{"attributes": jsonAttrsToIR(r.Attributes)}
}

// jsonScopeToIR builds the shared scope sub-tree for one scope block.
func jsonScopeToIR(s jsonScope) ir.Record {
	return ir.Record{
		"name":       s.Name,
		"version":    s.Version,
		"attributes": jsonAttrsToIR(s.Attributes),
	}
}

// jsonTimestamp converts a wire timestamp, failing the batch when the
// unsigned value does not fit i64. The field name lands in the error.
func jsonTimestamp(v flexUint64, field string) (int64, error) {
	return ir.TimestampFromUint64(uint64(v), field)
}

// rawToIR lowers free-form JSON (HEC fields, exemplar payloads) to IR.
func rawToIR(v any) any {
	switch val := v.(type) {
	case map[string]any:
		m := make(ir.Record, len(val))
		for k, member := range val {
			m[k] = rawToIR(member)
		}
		return m
	case []any:
		items := make([]any, 0, len(val))
		for _, item := range val {
			items = append(items, rawToIR(item))
		}
		return items
	case json.Number:
		if i, err := val.Int64(); err == nil {
			return i
		}
		f, _ := val.Float64()
		return f
	default:
		return val
	}
}

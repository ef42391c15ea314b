// Copyright (C) NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.
package decode

import (
	"encoding/hex"

	commonpb "go.opentelemetry.io/proto/otlp/common/v1"
	resourcepb "go.opentelemetry.io/proto/otlp/resource/v1"

	"github.com/otelgate/otelgate/pkg/ir"
)

// protoAnyToIR lowers a protobuf AnyValue to IR. Non-finite doubles
// become nil; bytes become IR byte strings.
func protoAnyToIR(v *commonpb.AnyValue) any {
	if v == nil {
		return nil
	}
	switch val := v.Value.(type) {
	case *commonpb.AnyValue_StringValue:
		return val.StringValue
	case *commonpb.AnyValue_BoolValue:
		return val.BoolValue
	case *commonpb.AnyValue_IntValue:
		return val.IntValue
	case *commonpb.AnyValue_DoubleValue:
		if f, ok := ir.Finite(val.DoubleValue); ok {
			return f
		}
		return nil
	case *commonpb.AnyValue_BytesValue:
		return string(val.BytesValue)
	case *commonpb.AnyValue_ArrayValue:
		items := make([]any, 0, len(val.ArrayValue.GetValues()))
		for _, item := range val.ArrayValue.GetValues() {
			items = append(items, protoAnyToIR(item))
		}
		return items
	case *commonpb.AnyValue_KvlistValue:
		return protoAttrsToIR(val.KvlistValue.GetValues())
	}
	return nil
}

// protoAttrsToIR lowers an attribute list into an IR map. Duplicate
// keys: last write wins.
func protoAttrsToIR(attrs []*commonpb.KeyValue) ir.Record {
	m := make(ir.Record, len(attrs))
	for _, kv := range attrs {
		m[kv.GetKey()] = protoAnyToIR(kv.GetValue())
	}
	return m
}

// protoResourceToIR builds the shared resource sub-tree.
func protoResourceToIR(r *resourcepb.Resource) ir.Record {
	return ir.Record{"attributes": protoAttrsToIR(r.GetAttributes())}
}

// protoScopeToIR builds the shared scope sub-tree.
func protoScopeToIR(s *commonpb.InstrumentationScope) ir.Record {
	return ir.Record{
		"name":       s.GetName(),
		"version":    s.GetVersion(),
		"attributes": protoAttrsToIR(s.GetAttributes()),
	}
}

// hexID renders protobuf trace/span id bytes as lowercase hex. Empty
// ids stay empty.
func hexID(b []byte) string {
	if len(b) == 0 {
		return ""
	}
	return hex.EncodeToString(b)
}

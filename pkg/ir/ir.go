// Copyright (C) NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Package ir holds the intermediate representation shared between the
// wire decoders and the transform runtime.
//
// An IR value is one of: nil, bool, int64, float64, string, []any or
// Record (a string-keyed map). Resource and instrumentation-scope maps
// are built once per envelope block and shared by reference across
// sibling records; the transform runtime never mutates its input, so
// the sharing stays safe without deep copies.
package ir

import (
	"fmt"
	"math"
	"sort"
	"strings"
)

// Record is one decoded telemetry record, and after transformation one
// flat output row.
type Record = map[string]any

// FieldError is a typed decode failure naming the offending field.
type FieldError struct {
	Field  string
	Reason string
}

func (e *FieldError) Error() string {
	return fmt.Sprintf("field %s: %s", e.Field, e.Reason)
}

// TimestampFromUint64 converts an unsigned wire timestamp to i64
// nanoseconds. Values past math.MaxInt64 fail the batch with an error
// naming the field.
func TimestampFromUint64(v uint64, field string) (int64, error) {
	if v > math.MaxInt64 {
		return 0, &FieldError{Field: field, Reason: fmt.Sprintf("timestamp %d exceeds i64 range", v)}
	}
	return int64(v), nil
}

// Finite returns v unchanged when it is a finite float and false
// otherwise. Callers on the metric value path drop the point; callers
// on the JSON conversion path substitute null.
func Finite(v float64) (float64, bool) {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return 0, false
	}
	return v, true
}

// EncodeJSON renders an IR value as a compact JSON string. Non-finite
// floats become null, null members of objects are omitted, and object
// keys are emitted in sorted order so encoded attributes compare
// stably across runs.
func EncodeJSON(v any) string {
	var sb strings.Builder
	encodeValue(&sb, v)
	return sb.String()
}

func encodeValue(sb *strings.Builder, v any) {
	switch val := v.(type) {
	case nil:
		sb.WriteString("null")
	case bool:
		if val {
			sb.WriteString("true")
		} else {
			sb.WriteString("false")
		}
	case int64:
		fmt.Fprintf(sb, "%d", val)
	case int:
		fmt.Fprintf(sb, "%d", val)
	case float64:
		if _, ok := Finite(val); !ok {
			sb.WriteString("null")
			return
		}
		if val == math.Trunc(val) && math.Abs(val) < 1e15 {
			fmt.Fprintf(sb, "%d", int64(val))
		} else {
			fmt.Fprintf(sb, "%g", val)
		}
	case string:
		encodeString(sb, val)
	case []any:
		sb.WriteByte('[')
		for i, item := range val {
			if i > 0 {
				sb.WriteByte(',')
			}
			encodeValue(sb, item)
		}
		sb.WriteByte(']')
	case Record:
		keys := make([]string, 0, len(val))
		for k, member := range val {
			if member == nil {
				continue
			}
			keys = append(keys, k)
		}
		sort.Strings(keys)
		sb.WriteByte('{')
		for i, k := range keys {
			if i > 0 {
				sb.WriteByte(',')
			}
			encodeString(sb, k)
			sb.WriteByte(':')
			encodeValue(sb, val[k])
		}
		sb.WriteByte('}')
	default:
		encodeString(sb, fmt.Sprint(val))
	}
}

func encodeString(sb *strings.Builder, s string) {
	sb.WriteByte('"')
	for _, r := range s {
		switch r {
		case '"':
			sb.WriteString(`\"`)
		case '\\':
			sb.WriteString(`\\`)
		case '\n':
			sb.WriteString(`\n`)
		case '\r':
			sb.WriteString(`\r`)
		case '\t':
			sb.WriteString(`\t`)
		default:
			if r < 0x20 {
				fmt.Fprintf(sb, `\u%04x`, r)
			} else {
				sb.WriteRune(r)
			}
		}
	}
	sb.WriteByte('"')
}

// GetString reads a string member from a record, tolerating absent and
// non-string values.
func GetString(r Record, key string) string {
	if v, ok := r[key]; ok {
		if s, ok := v.(string); ok {
			return s
		}
	}
	return ""
}

// GetInt reads an integer member from a record, widening the numeric
// representations a JSON round-trip may have produced.
func GetInt(r Record, key string) (int64, bool) {
	switch v := r[key].(type) {
	case int64:
		return v, true
	case int:
		return int64(v), true
	case float64:
		return int64(v), true
	}
	return 0, false
}

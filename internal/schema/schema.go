// Copyright (C) NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Package schema validates output rows against the per-table required
// field specs before they are serialized for the pipeline.
package schema

import (
	"encoding/json"
	"fmt"

	"github.com/otelgate/otelgate/pkg/ir"
)

// FieldType is the semantic type of a required field.
type FieldType int

const (
	Timestamp FieldType = iota // number, milliseconds
	Int32
	Int64
	Float64
	String
	Bool
	JSON
)

func (t FieldType) Name() string {
	switch t {
	case Timestamp:
		return "timestamp (number)"
	case Int32:
		return "int32"
	case Int64:
		return "int64"
	case Float64:
		return "float64"
	case String:
		return "string"
	case Bool:
		return "bool"
	case JSON:
		return "json"
	}
	return "unknown"
}

// Matches reports whether an IR value satisfies the field type.
func (t FieldType) Matches(v any) bool {
	switch t {
	case Timestamp, Int32, Int64:
		switch v.(type) {
		case int64, int, float64:
			return true
		}
		return false
	case Float64:
		_, ok := v.(float64)
		return ok
	case String:
		_, ok := v.(string)
		return ok
	case Bool:
		_, ok := v.(bool)
		return ok
	case JSON:
		switch v.(type) {
		case string, map[string]any, []any:
			return true
		}
		return false
	}
	return false
}

// RequiredField names one required column and its type.
type RequiredField struct {
	Name string
	Type FieldType
}

// Schema lists the required fields of one table.
type Schema struct {
	Name     string
	Required []RequiredField
}

var schemas = map[string]*Schema{
	"logs": {
		Name: "logs",
		Required: []RequiredField{
			{"timestamp", Timestamp},
			{"service_name", String},
			{"severity_number", Int64},
			{"body", String},
		},
	},
	"traces": {
		Name: "traces",
		Required: []RequiredField{
			{"timestamp", Timestamp},
			{"service_name", String},
			{"trace_id", String},
			{"span_id", String},
			{"span_name", String},
			{"duration", Int64},
		},
	},
	"gauge": {
		Name: "gauge",
		Required: []RequiredField{
			{"timestamp", Timestamp},
			{"metric_name", String},
			{"service_name", String},
			{"value", Float64},
		},
	},
	"sum": {
		Name: "sum",
		Required: []RequiredField{
			{"timestamp", Timestamp},
			{"metric_name", String},
			{"service_name", String},
			{"value", Float64},
			{"aggregation_temporality", Int64},
			{"is_monotonic", Bool},
		},
	},
}

// Get returns the schema for a table, or nil for unknown tables.
// Unknown tables pass through unvalidated to stay forward-compatible
// with new signals added to a program before a schema update.
func Get(table string) *Schema {
	return schemas[table]
}

// Validate checks a record against the table schema. Unknown tables
// always pass. The error names the record index, table, field,
// expected type and a truncated record payload.
func Validate(record ir.Record, table string, idx int) error {
	s := Get(table)
	if s == nil {
		return nil
	}
	return s.Validate(record, idx)
}

// Validate checks one record against this schema.
func (s *Schema) Validate(record ir.Record, idx int) error {
	for _, field := range s.Required {
		value, present := record[field.Name]
		if !present {
			return fmt.Errorf("record %d (%s): missing required field '%s'. Record: %s",
				idx, s.Name, field.Name, truncateRecord(record, 500))
		}
		if !field.Type.Matches(value) {
			return fmt.Errorf("record %d (%s): field '%s' has wrong type, expected %s, got %s. Record: %s",
				idx, s.Name, field.Name, field.Type.Name(), typeName(value), truncateRecord(record, 500))
		}
	}
	return nil
}

func typeName(v any) string {
	switch v.(type) {
	case nil:
		return "null"
	case bool:
		return "bool"
	case float64:
		return "float64"
	case int64, int:
		return "integer"
	case string:
		return "string"
	case []any:
		return "array"
	case map[string]any:
		return "object"
	}
	return fmt.Sprintf("%T", v)
}

func truncateRecord(record ir.Record, maxLen int) string {
	b, err := json.Marshal(record)
	if err != nil {
		return "<serialize failed>"
	}
	s := string(b)
	if len(s) > maxLen {
		return s[:maxLen] + "..."
	}
	return s
}

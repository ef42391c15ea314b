// Copyright (C) NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Package transform compiles and runs the per-signal transform
// programs that turn IR records into flat, table-routed output rows.
package transform

import (
	"fmt"

	"github.com/expr-lang/expr"
	"github.com/expr-lang/expr/vm"

	"github.com/otelgate/otelgate/pkg/ir"
)

// Program is one compiled transform. Programs are immutable after
// compilation and safe for concurrent Run calls (each call uses its
// own VM).
type Program struct {
	name string
	prog *vm.Program
}

// MustCompile compiles a program source, panicking on error. Programs
// compile once at process start.
func MustCompile(name, src string) *Program {
	prog, err := expr.Compile(src, functionOptions()...)
	if err != nil {
		panic(fmt.Sprintf("transform program %s failed to compile: %v", name, err))
	}
	return &Program{name: name, prog: prog}
}

func (p *Program) Name() string { return p.name }

// Run transforms one record, returning the routing table and the flat
// row with the _table field stripped. The input record is not mutated;
// a program that needs to rewrite resource or scope data builds fresh
// maps instead (copy-on-write over the shared sub-trees).
func (p *Program) Run(record ir.Record) (string, ir.Record, error) {
	out, err := expr.Run(p.prog, map[string]any(record))
	if err != nil {
		return "", nil, fmt.Errorf("%s: %w", p.name, err)
	}

	row, ok := out.(map[string]any)
	if !ok {
		return "", nil, fmt.Errorf("%s: program returned %T, expected object", p.name, out)
	}

	table := "unknown"
	if t, ok := row["_table"].(string); ok {
		table = t
	}
	delete(row, "_table")

	return table, row, nil
}

// RunBatch transforms a batch, grouping the rows by table. Ordering
// within a table follows input order. A per-record failure aborts the
// batch and names the record index.
func RunBatch(p *Program, records []ir.Record) (map[string][]ir.Record, error) {
	grouped := make(map[string][]ir.Record)
	for idx, record := range records {
		table, row, err := p.Run(record)
		if err != nil {
			return nil, fmt.Errorf("record %d: %w", idx, err)
		}
		grouped[table] = append(grouped[table], row)
	}
	return grouped, nil
}

// RunMetricsBatch partitions metric records by _metric_type, runs the
// gauge and sum programs independently and merges the grouped maps by
// extending each table's slice.
func RunMetricsBatch(gauge, sum *Program, records []ir.Record) (map[string][]ir.Record, error) {
	var gaugeRecords, sumRecords []ir.Record
	for _, record := range records {
		if ir.GetString(record, "_metric_type") == "sum" {
			sumRecords = append(sumRecords, record)
		} else {
			gaugeRecords = append(gaugeRecords, record)
		}
	}

	grouped, err := RunBatch(gauge, gaugeRecords)
	if err != nil {
		return nil, err
	}
	sumGrouped, err := RunBatch(sum, sumRecords)
	if err != nil {
		return nil, err
	}
	for table, rows := range sumGrouped {
		grouped[table] = append(grouped[table], rows...)
	}

	return grouped, nil
}

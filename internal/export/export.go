// Copyright (C) NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.
package export

import (
	"sort"
	"sync"

	log "github.com/sirupsen/logrus"

	"github.com/otelgate/otelgate/internal/hotcache"
	"github.com/otelgate/otelgate/pkg/ir"
)

// Querier is the hot-cache read surface the exporter fans out over.
type Querier interface {
	Query(name string, q hotcache.QueryRequest) ([]map[string]any, error)
}

// Result is a finished export.
type Result struct {
	Data          []byte
	RowCount      int
	Partial       bool
	FailedSources []string
}

// Run fans a query out to every {service}:{signal} store, merges and
// truncates the rows, and serializes them as Parquet. Partial results
// (one or more store failures) are reported, not fatal; an export
// where every store returned empty and none failed maps to 404.
func Run(querier Querier, sig string, p *Params) (*Result, *Error) {
	if err := p.Validate(); err != nil {
		return nil, err
	}

	names := p.DONames(sig)
	query := hotcache.QueryRequest{
		Table:      sig,
		StartTime:  p.StartMillis(),
		EndTime:    p.EndMillis(),
		TraceID:    p.TraceID,
		MetricName: p.MetricName,
		Labels:     p.Labels,
		Limit:      int64(p.Limit),
	}

	type queryResult struct {
		name string
		rows []map[string]any
		err  error
	}

	results := make([]queryResult, len(names))
	var wg sync.WaitGroup
	for i, name := range names {
		wg.Add(1)
		go func(i int, name string) {
			defer wg.Done()
			rows, err := querier.Query(name, query)
			results[i] = queryResult{name: name, rows: rows, err: err}
		}(i, name)
	}
	wg.Wait()

	var allRows []ir.Record
	var failedSources []string
	for _, res := range results {
		if res.err != nil {
			log.WithError(res.err).WithField("do_name", res.name).
				Warn("store query failed during export fanout")
			failedSources = append(failedSources, res.name)
			continue
		}
		for _, row := range res.rows {
			allRows = append(allRows, row)
		}
	}

	sortRowsByTimestampDesc(allRows)
	if len(allRows) > p.Limit {
		allRows = allRows[:p.Limit]
	}

	partial := len(failedSources) > 0
	if len(allRows) == 0 && !partial {
		return nil, &Error{Message: "No data found", Status: 404}
	}

	data, err := WriteParquet(sig, allRows)
	if err != nil {
		return nil, badRequest("%v", err)
	}

	return &Result{
		Data:          data,
		RowCount:      len(allRows),
		Partial:       partial,
		FailedSources: failedSources,
	}, nil
}

// sortRowsByTimestampDesc orders rows for the merged result. Every
// tiebreaker is deterministic: timestamp DESC, _timestamp_nanos DESC,
// _signal ASC, id DESC.
func sortRowsByTimestampDesc(rows []ir.Record) {
	sort.SliceStable(rows, func(i, j int) bool {
		a, b := rows[i], rows[j]

		tsA := getInt64(a, "timestamp")
		tsB := getInt64(b, "timestamp")
		if tsA != tsB {
			return tsA > tsB
		}
		nsA := getInt64(a, "_timestamp_nanos")
		nsB := getInt64(b, "_timestamp_nanos")
		if nsA != nsB {
			return nsA > nsB
		}
		sigA := ir.GetString(a, "_signal")
		sigB := ir.GetString(b, "_signal")
		if sigA != sigB {
			return sigA < sigB
		}
		return getInt64(a, "id") > getInt64(b, "id")
	})
}

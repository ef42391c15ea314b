// Copyright (C) NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.
package hotcache

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/otelgate/otelgate/pkg/ir"
)

func testStore(t *testing.T) *Store {
	t.Helper()
	store, err := openStore("svc:logs", ":memory:", time.Hour)
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return store
}

func logRow(ts int64, body string) ir.Record {
	return ir.Record{
		"_table":              "logs",
		"_signal":             "logs",
		"_timestamp_nanos":    ts * 1_000_000,
		"timestamp":           ts,
		"observed_timestamp":  ts,
		"trace_id":            "abc123",
		"span_id":             "def456",
		"service_name":        "svc",
		"service_namespace":   "",
		"service_instance_id": "",
		"severity_number":     int64(9),
		"severity_text":       "INFO",
		"body":                body,
		"resource_attributes": "{}",
		"scope_name":          "",
		"scope_version":       "",
		"scope_attributes":    "{}",
		"log_attributes":      "{}",
	}
}

func gaugeRow(ts int64, metric string, attrs string) ir.Record {
	return ir.Record{
		"_table":              "gauge",
		"_signal":             "gauge",
		"_timestamp_nanos":    ts * 1_000_000,
		"timestamp":           ts,
		"start_timestamp":     ts,
		"service_name":        "svc",
		"service_namespace":   "",
		"service_instance_id": "",
		"metric_name":         metric,
		"metric_description":  "",
		"metric_unit":         "1",
		"value":               0.5,
		"flags":               int64(0),
		"metric_attributes":   attrs,
		"resource_attributes": "{}",
		"scope_name":          "",
		"scope_version":       "",
		"scope_attributes":    "{}",
	}
}

func TestIngestAndQueryRoundTrip(t *testing.T) {
	store := testStore(t)

	count, err := store.Ingest([]ir.Record{
		logRow(1000, "first"),
		logRow(2000, "second"),
	})
	require.NoError(t, err)
	assert.Equal(t, 2, count)

	rows, err := store.Query(QueryRequest{Table: "logs", Limit: 100})
	require.NoError(t, err)
	require.Len(t, rows, 2)

	// Order: timestamp DESC, id DESC.
	assert.Equal(t, "second", rows[0]["body"])
	assert.Equal(t, "first", rows[1]["body"])
}

func TestQueryTimeRange(t *testing.T) {
	store := testStore(t)
	_, err := store.Ingest([]ir.Record{
		logRow(1000, "a"), logRow(2000, "b"), logRow(3000, "c"),
	})
	require.NoError(t, err)

	start, end := int64(1500), int64(2500)
	rows, err := store.Query(QueryRequest{Table: "logs", StartTime: &start, EndTime: &end, Limit: 100})
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, "b", rows[0]["body"])
}

func TestQueryTraceIDFilter(t *testing.T) {
	store := testStore(t)
	other := logRow(1000, "other")
	other["trace_id"] = "zzz"
	_, err := store.Ingest([]ir.Record{logRow(1000, "match"), other})
	require.NoError(t, err)

	rows, err := store.Query(QueryRequest{Table: "logs", TraceID: "abc123", Limit: 100})
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, "match", rows[0]["body"])
}

func TestQueryMetricFilters(t *testing.T) {
	store := testStore(t)
	_, err := store.Ingest([]ir.Record{
		gaugeRow(1000, "cpu.usage", `{"host":"h1","env":"prod"}`),
		gaugeRow(1000, "cpu.usage", `{"host":"h2","env":"dev"}`),
		gaugeRow(1000, "mem.usage", `{"host":"h1"}`),
	})
	require.NoError(t, err)

	rows, err := store.Query(QueryRequest{Table: "gauge", MetricName: "cpu.usage", Limit: 100})
	require.NoError(t, err)
	assert.Len(t, rows, 2)

	rows, err = store.Query(QueryRequest{
		Table:      "gauge",
		MetricName: "cpu.usage",
		Labels:     [][2]string{{"env", "prod"}},
		Limit:      100,
	})
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Contains(t, rows[0]["metric_attributes"], "h1")
}

func TestQueryLimitClamps(t *testing.T) {
	store := testStore(t)
	records := make([]ir.Record, 0, 5)
	for i := range 5 {
		records = append(records, logRow(int64(1000+i), "x"))
	}
	_, err := store.Ingest(records)
	require.NoError(t, err)

	rows, err := store.Query(QueryRequest{Table: "logs", Limit: 0})
	require.NoError(t, err)
	assert.Len(t, rows, 1)

	rows, err = store.Query(QueryRequest{Table: "logs", Limit: 50_000})
	require.NoError(t, err)
	assert.Len(t, rows, 5)
}

func TestQueryRejectsInvalidTable(t *testing.T) {
	store := testStore(t)
	_, err := store.Query(QueryRequest{Table: "logs; DROP TABLE logs", Limit: 1})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid table")
}

func TestIngestRejectsUnknownTable(t *testing.T) {
	store := testStore(t)
	_, err := store.Ingest([]ir.Record{{"_table": "mystery"}})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown table")
}

func TestCleanupDeletesExpiredRows(t *testing.T) {
	store := testStore(t)

	now := time.UnixMilli(10 * 3600 * 1000)
	store.now = func() time.Time { return now }

	old := logRow(now.Add(-2*time.Hour).UnixMilli(), "old")
	fresh := logRow(now.Add(-time.Minute).UnixMilli(), "fresh")
	_, err := store.Ingest([]ir.Record{old, fresh})
	require.NoError(t, err)

	store.Cleanup()

	rows, err := store.Query(QueryRequest{Table: "logs", Limit: 100})
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, "fresh", rows[0]["body"])
}

func TestRetentionClampedToSevenDays(t *testing.T) {
	store, err := openStore("svc:logs", ":memory:", 30*24*time.Hour)
	require.NoError(t, err)
	defer store.Close()
	assert.Equal(t, MaxRetention, store.retention)
}

func TestValidServiceName(t *testing.T) {
	assert.True(t, ValidServiceName("payment-service"))
	assert.True(t, ValidServiceName("svc_1.prod"))
	assert.False(t, ValidServiceName(""))
	assert.False(t, ValidServiceName(strings.Repeat("a", 129)))
	assert.False(t, ValidServiceName("svc:logs"))
	assert.False(t, ValidServiceName("svc with spaces"))
	assert.False(t, ValidServiceName("svc/../etc"))
}

func TestDOName(t *testing.T) {
	assert.Equal(t, "payment-service:logs", DOName("payment-service", "logs"))
	assert.Equal(t, "unknown:traces", DOName("", "traces"))
	assert.Equal(t, "unknown:logs", DOName("bad name!", "logs"))
}

func TestManagerQueryUnknownStoreReturnsEmpty(t *testing.T) {
	m := NewManager("", time.Hour)
	defer m.Close()

	rows, err := m.Query("never-written:logs", QueryRequest{Table: "logs", Limit: 10})
	require.NoError(t, err)
	assert.Empty(t, rows)
}

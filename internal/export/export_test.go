// Copyright (C) NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.
package export

import (
	"bytes"
	"fmt"
	"net/url"
	"strings"
	"testing"

	pq "github.com/parquet-go/parquet-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/otelgate/otelgate/internal/hotcache"
)

func parseQuery(t *testing.T, raw string) *Params {
	t.Helper()
	values, err := url.ParseQuery(raw)
	require.NoError(t, err)
	params, perr := ParseParams(values)
	require.Nil(t, perr)
	return params
}

func TestParseBasicParams(t *testing.T) {
	p := parseQuery(t, "services=svc1,svc2&limit=100")
	assert.Equal(t, []string{"svc1", "svc2"}, p.Services)
	assert.Equal(t, 100, p.Limit)
}

func TestParseTimeRange(t *testing.T) {
	p := parseQuery(t, "services=svc1&start=1703721600&end=1703808000")
	require.NotNil(t, p.Start)
	assert.Equal(t, 1703721600.0, *p.Start)
	assert.Equal(t, int64(1703721600000), *p.StartMillis())
}

func TestParseLabelsFilter(t *testing.T) {
	p := parseQuery(t, "services=svc1&metric_name=cpu_usage&labels=host%3Dh1,env%3Dprod")
	assert.Equal(t, "cpu_usage", p.MetricName)
	assert.Equal(t, [][2]string{{"host", "h1"}, {"env", "prod"}}, p.Labels)
}

func TestDefaultLimit(t *testing.T) {
	p := parseQuery(t, "services=svc1")
	assert.Equal(t, DefaultLimit, p.Limit)
}

func TestValidateBounds(t *testing.T) {
	assert.NotNil(t, parseQuery(t, "limit=100").Validate(), "missing services")

	manyServices := make([]string, 51)
	for i := range manyServices {
		manyServices[i] = fmt.Sprintf("svc%d", i)
	}
	p := parseQuery(t, "services="+strings.Join(manyServices, ","))
	assert.NotNil(t, p.Validate(), "51 services rejected")

	p = parseQuery(t, "services="+strings.Join(manyServices[:50], ","))
	assert.Nil(t, p.Validate(), "50 services accepted")

	assert.NotNil(t, parseQuery(t, "services=svc1&limit=0").Validate())
	assert.NotNil(t, parseQuery(t, "services=svc1&limit=10001").Validate())
	assert.Nil(t, parseQuery(t, "services=svc1&limit=10000").Validate())
	assert.Nil(t, parseQuery(t, "services=svc1&limit=1").Validate())

	assert.NotNil(t, parseQuery(t, "services=svc1&start=1000&end=500").Validate())
}

func TestDONamesSortedUnique(t *testing.T) {
	p := parseQuery(t, "services=c,b,a,b,c")
	assert.Equal(t, []string{"a:logs", "b:logs", "c:logs"}, p.DONames("logs"))
}

type fakeQuerier struct {
	rows map[string][]map[string]any
	errs map[string]error
}

func (f *fakeQuerier) Query(name string, q hotcache.QueryRequest) ([]map[string]any, error) {
	if err, ok := f.errs[name]; ok {
		return nil, err
	}
	return f.rows[name], nil
}

func logRow(ts, id int64, body string) map[string]any {
	return map[string]any{
		"id":               id,
		"timestamp":        ts,
		"_timestamp_nanos": ts * 1_000_000,
		"_signal":          "logs",
		"service_name":     "svc",
		"severity_number":  int64(9),
		"severity_text":    "INFO",
		"body":             body,
	}
}

func TestRunMergesAndWritesParquet(t *testing.T) {
	querier := &fakeQuerier{rows: map[string][]map[string]any{
		"svc1:logs": {logRow(2000, 1, "b"), logRow(1000, 2, "a")},
		"svc2:logs": {logRow(3000, 1, "c")},
	}}

	p := parseQuery(t, "services=svc1,svc2")
	result, perr := Run(querier, "logs", p)
	require.Nil(t, perr)

	assert.Equal(t, 3, result.RowCount)
	assert.False(t, result.Partial)

	// Parquet magic framing.
	require.Greater(t, len(result.Data), 8)
	assert.Equal(t, []byte("PAR1"), result.Data[:4])
	assert.Equal(t, []byte("PAR1"), result.Data[len(result.Data)-4:])

	// Read back: row count, column count and order preserved.
	rows, err := pq.Read[LogRow](bytes.NewReader(result.Data), int64(len(result.Data)))
	require.NoError(t, err)
	require.Len(t, rows, 3)
	assert.Equal(t, "c", rows[0].Body)
	assert.Equal(t, "b", rows[1].Body)
	assert.Equal(t, "a", rows[2].Body)
}

func TestRunPartialOnStoreFailure(t *testing.T) {
	querier := &fakeQuerier{
		rows: map[string][]map[string]any{
			"svc1:logs": {logRow(1, 1, "a"), logRow(2, 2, "b"), logRow(3, 3, "c"), logRow(4, 4, "d"), logRow(5, 5, "e")},
		},
		errs: map[string]error{"svc2:logs": fmt.Errorf("store exploded")},
	}

	p := parseQuery(t, "services=svc1,svc2")
	result, perr := Run(querier, "logs", p)
	require.Nil(t, perr)

	assert.True(t, result.Partial)
	assert.Equal(t, 5, result.RowCount)
	assert.Equal(t, []string{"svc2:logs"}, result.FailedSources)
}

func TestRunEmptyNoFailuresIs404(t *testing.T) {
	querier := &fakeQuerier{}
	p := parseQuery(t, "services=svc1")
	_, perr := Run(querier, "logs", p)
	require.NotNil(t, perr)
	assert.Equal(t, 404, perr.Status)
}

func TestRunTruncatesToLimit(t *testing.T) {
	rows := make([]map[string]any, 10)
	for i := range rows {
		rows[i] = logRow(int64(1000+i), int64(i), "x")
	}
	querier := &fakeQuerier{rows: map[string][]map[string]any{"svc1:logs": rows}}

	p := parseQuery(t, "services=svc1&limit=4")
	result, perr := Run(querier, "logs", p)
	require.Nil(t, perr)
	assert.Equal(t, 4, result.RowCount)
}

func TestSortDeterministicTiebreakers(t *testing.T) {
	a := logRow(1000, 1, "a")
	b := logRow(1000, 2, "b")
	c := logRow(1000, 2, "c")
	c["_signal"] = "traces"

	rows := []map[string]any{a, c, b}
	sortRowsByTimestampDesc(rows)

	// Same ts and nanos: _signal ASC then id DESC.
	assert.Equal(t, "b", rows[0]["body"])
	assert.Equal(t, "a", rows[1]["body"])
	assert.Equal(t, "c", rows[2]["body"])
}

func TestWriteParquetColumnCounts(t *testing.T) {
	for sig, want := range map[string]int{
		"logs":   17,
		"traces": 27,
		"gauge":  17,
		"sum":    19,
	} {
		data, err := WriteParquet(sig, nil)
		require.NoError(t, err, sig)

		f, err := pq.OpenFile(bytes.NewReader(data), int64(len(data)))
		require.NoError(t, err, sig)
		assert.Len(t, f.Schema().Fields(), want, "columns for %s", sig)
	}
}

func TestWriteParquetRoundTripSum(t *testing.T) {
	rows := []map[string]any{{
		"timestamp":               int64(1703001600000),
		"_timestamp_nanos":        int64(1703001600000000000),
		"service_name":            "test-service",
		"metric_name":             "requests_total",
		"value":                   1000.0,
		"metric_unit":             "1",
		"is_monotonic":            int64(1),
		"aggregation_temporality": int64(2),
		"metric_attributes":       `{"endpoint":"/api"}`,
	}}

	data, err := WriteParquet("sum", rows)
	require.NoError(t, err)

	out, err := pq.Read[SumRow](bytes.NewReader(data), int64(len(data)))
	require.NoError(t, err)
	require.Len(t, out, 1)
	assert.Equal(t, "requests_total", out[0].MetricName)
	assert.Equal(t, 1000.0, out[0].Value)
	assert.True(t, out[0].IsMonotonic)
	assert.Equal(t, int64(2), out[0].AggregationTemporality)
}

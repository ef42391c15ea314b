// Copyright (C) NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.
package api

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/mux"
	"github.com/klauspost/compress/gzip"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/otelgate/otelgate/internal/aggregator"
	"github.com/otelgate/otelgate/internal/hotcache"
	"github.com/otelgate/otelgate/internal/livetail"
	"github.com/otelgate/otelgate/internal/registry"
	"github.com/otelgate/otelgate/internal/util"
	"github.com/otelgate/otelgate/pkg/ir"
)

func gzipPayload(t *testing.T, data []byte) []byte {
	t.Helper()
	var buf bytes.Buffer
	zw := gzip.NewWriter(&buf)
	_, err := zw.Write(data)
	require.NoError(t, err)
	require.NoError(t, zw.Close())
	return buf.Bytes()
}

func testRouter(t *testing.T, restApi *RestApi) *mux.Router {
	t.Helper()
	if restApi.Registry == nil {
		store, err := registry.Open("")
		require.NoError(t, err)
		t.Cleanup(func() { store.Close() })
		restApi.Registry = registry.NewSender(store)
	}
	if restApi.LiveTail == nil {
		restApi.LiveTail = livetail.NewManager()
	}
	if restApi.Aggregator == nil {
		restApi.Aggregator = aggregator.NewManager("", time.Hour)
		t.Cleanup(restApi.Aggregator.Close)
	}
	if restApi.HotCache == nil {
		m := hotcache.NewManager("", time.Hour)
		t.Cleanup(m.Close)
		restApi.HotCache = m
	}
	r := mux.NewRouter()
	restApi.MountRoutes(r)
	return r
}

func TestIngestEndpointOK(t *testing.T) {
	sender := &fakeSender{}
	router := testRouter(t, &RestApi{Deps: SignalDeps{Pipeline: sender}})

	req := httptest.NewRequest(http.MethodPost, "/v1/logs", strings.NewReader(logsBody))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	var resp HandleResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "ok", resp.Status)
	assert.Equal(t, 1, resp.Records["logs"])
}

func TestIngestEndpointGzip(t *testing.T) {
	sender := &fakeSender{}
	router := testRouter(t, &RestApi{Deps: SignalDeps{Pipeline: sender}})

	req := httptest.NewRequest(http.MethodPost, "/v1/logs", bytes.NewReader(gzipPayload(t, []byte(logsBody))))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Content-Encoding", "gzip")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestIngestEndpointOversizeBodyRejected(t *testing.T) {
	sender := &fakeSender{}
	router := testRouter(t, &RestApi{Deps: SignalDeps{Pipeline: sender}})

	req := httptest.NewRequest(http.MethodPost, "/v1/logs",
		bytes.NewReader(make([]byte, util.MaxDecompressedSize+1)))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestIngestAuthRequired(t *testing.T) {
	sender := &fakeSender{}
	router := testRouter(t, &RestApi{Deps: SignalDeps{Pipeline: sender}, AuthToken: "secret"})

	req := httptest.NewRequest(http.MethodPost, "/v1/logs", strings.NewReader(logsBody))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	req = httptest.NewRequest(http.MethodPost, "/v1/logs", strings.NewReader(logsBody))
	req.Header.Set("Authorization", "Bearer wrong")
	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	req = httptest.NewRequest(http.MethodPost, "/v1/logs", strings.NewReader(logsBody))
	req.Header.Set("Authorization", "Bearer secret")
	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestIngestAuthDisabledWhenTokenEmpty(t *testing.T) {
	sender := &fakeSender{}
	router := testRouter(t, &RestApi{Deps: SignalDeps{Pipeline: sender}})

	req := httptest.NewRequest(http.MethodPost, "/v1/logs", strings.NewReader(logsBody))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestHECEndpoint(t *testing.T) {
	sender := &fakeSender{}
	router := testRouter(t, &RestApi{Deps: SignalDeps{Pipeline: sender}})

	body := `{"time": 1703265600, "event": "line 1"}` + "\n" + `{"time": 1703265601, "event": "line 2"}`
	req := httptest.NewRequest(http.MethodPost, "/services/collector/event", strings.NewReader(body))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	var resp HandleResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, 2, resp.Records["logs"])
}

func TestExportValidationError(t *testing.T) {
	router := testRouter(t, &RestApi{Deps: SignalDeps{Pipeline: &fakeSender{}}})

	req := httptest.NewRequest(http.MethodGet, "/logs?limit=5", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestExportNotFoundWhenEmpty(t *testing.T) {
	router := testRouter(t, &RestApi{Deps: SignalDeps{Pipeline: &fakeSender{}}})

	req := httptest.NewRequest(http.MethodGet, "/logs?services=ghost", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestIngestThenExportParquet(t *testing.T) {
	hotCacheManager := hotcache.NewManager("", time.Hour)
	t.Cleanup(hotCacheManager.Close)

	restApi := &RestApi{
		Deps: SignalDeps{
			Pipeline: &fakeSender{},
			HotCache: hotcache.NewSender(hotCacheManager, true),
		},
		HotCache: hotCacheManager,
	}
	router := testRouter(t, restApi)

	req := httptest.NewRequest(http.MethodPost, "/v1/logs", strings.NewReader(logsBody))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)

	req = httptest.NewRequest(http.MethodGet, "/logs?services=svc", nil)
	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/vnd.apache.parquet", rec.Header().Get("Content-Type"))
	assert.Equal(t, "1", rec.Header().Get("X-Query-Row-Count"))
	assert.Equal(t, "false", rec.Header().Get("X-Query-Partial"))
	assert.Contains(t, rec.Header().Get("Content-Disposition"), "logs-export.parquet")

	data := rec.Body.Bytes()
	require.Greater(t, len(data), 8)
	assert.Equal(t, "PAR1", string(data[:4]))
	assert.Equal(t, "PAR1", string(data[len(data)-4:]))
}

func TestExportPartialHeaders(t *testing.T) {
	querier := &failingQuerier{
		rows: map[string][]map[string]any{"svc1:logs": rowsOf(5)},
		fail: map[string]bool{"svc2:logs": true},
	}
	restApi := &RestApi{Deps: SignalDeps{Pipeline: &fakeSender{}}, HotCache: querier}
	router := testRouter(t, restApi)

	req := httptest.NewRequest(http.MethodGet, "/logs?services=svc1,svc2", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusPartialContent, rec.Code)
	assert.Equal(t, "5", rec.Header().Get("X-Query-Row-Count"))
	assert.Equal(t, "svc2:logs", rec.Header().Get("X-Query-Failed-Sources"))
}

type failingQuerier struct {
	rows map[string][]map[string]any
	fail map[string]bool
}

func (f *failingQuerier) Query(name string, q hotcache.QueryRequest) ([]map[string]any, error) {
	if f.fail[name] {
		return nil, fmt.Errorf("store unavailable")
	}
	return f.rows[name], nil
}

func rowsOf(n int) []map[string]any {
	rows := make([]map[string]any, 0, n)
	for i := 0; i < n; i++ {
		rows = append(rows, map[string]any{
			"id": int64(i), "timestamp": int64(1000 + i), "_timestamp_nanos": int64(0),
			"_signal": "logs", "service_name": "svc1", "severity_number": int64(9),
			"severity_text": "INFO", "body": "x",
		})
	}
	return rows
}

func TestServicesStatsEndpoint(t *testing.T) {
	registryStore, err := registry.Open("")
	require.NoError(t, err)
	t.Cleanup(func() { registryStore.Close() })
	registrySender := registry.NewSender(registryStore)
	_, err = registryStore.Register([]registry.Registration{
		{Name: "svc-a", Signal: "logs"},
		{Name: "svc-b", Signal: "traces"},
	})
	require.NoError(t, err)

	aggManager := aggregator.NewManager("", time.Hour)
	t.Cleanup(aggManager.Close)
	_, err = aggManager.Ingest("svc-a:logs", []ir.Record{{"severity_number": int64(18)}})
	require.NoError(t, err)

	restApi := &RestApi{
		Deps:       SignalDeps{Pipeline: &fakeSender{}},
		Registry:   registrySender,
		Aggregator: aggManager,
	}
	router := testRouter(t, restApi)

	req := httptest.NewRequest(http.MethodGet, "/v1/services/stats?signal=logs", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	var stats []ServiceStats
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &stats))
	// Only svc-a carries logs.
	require.Len(t, stats, 1)
	assert.Equal(t, "svc-a", stats[0].Service)
	require.Len(t, stats[0].Stats, 1)
	assert.Equal(t, int64(1), stats[0].Stats[0].Count)
	assert.Equal(t, int64(1), stats[0].Stats[0].ErrorCount)
}

func TestServicesStatsRequiresSignal(t *testing.T) {
	router := testRouter(t, &RestApi{Deps: SignalDeps{Pipeline: &fakeSender{}}})
	req := httptest.NewRequest(http.MethodGet, "/v1/services/stats", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestServicesListEndpoint(t *testing.T) {
	registryStore, err := registry.Open("")
	require.NoError(t, err)
	t.Cleanup(func() { registryStore.Close() })
	_, err = registryStore.Register([]registry.Registration{{Name: "svc", Signal: "logs"}})
	require.NoError(t, err)

	router := testRouter(t, &RestApi{
		Deps:     SignalDeps{Pipeline: &fakeSender{}},
		Registry: registry.NewSender(registryStore),
	})

	req := httptest.NewRequest(http.MethodGet, "/v1/services", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	var services []registry.ServiceRecord
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &services))
	require.Len(t, services, 1)
	assert.Equal(t, "svc", services[0].Name)
	assert.Equal(t, int64(1), services[0].HasLogs)
}

func TestTailStatusEndpoint(t *testing.T) {
	router := testRouter(t, &RestApi{Deps: SignalDeps{Pipeline: &fakeSender{}}})

	req := httptest.NewRequest(http.MethodGet, "/v1/tail/svc/logs/status", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"clients": 0}`, rec.Body.String())
}

func TestRegisterEndpoint(t *testing.T) {
	registryStore, err := registry.Open("")
	require.NoError(t, err)
	t.Cleanup(func() { registryStore.Close() })

	router := testRouter(t, &RestApi{
		Deps:     SignalDeps{Pipeline: &fakeSender{}},
		Registry: registry.NewSender(registryStore),
	})

	body := `{"services": [{"name": "svc", "signal": "logs"}]}`
	req := httptest.NewRequest(http.MethodPost, "/v1/register", strings.NewReader(body))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"registered": 1}`, rec.Body.String())

	req = httptest.NewRequest(http.MethodPost, "/v1/register", strings.NewReader("{bad"))
	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestTailRejectsInvalidSignal(t *testing.T) {
	router := testRouter(t, &RestApi{Deps: SignalDeps{Pipeline: &fakeSender{}}})

	req := httptest.NewRequest(http.MethodGet, "/v1/tail/svc/bogus", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

// Copyright (C) NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.
package livetail

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/otelgate/otelgate/pkg/ir"
)

type frame struct {
	Type    string          `json:"type"`
	Message string          `json:"message,omitempty"`
	Data    json.RawMessage `json:"data,omitempty"`
	Count   int             `json:"count,omitempty"`
}

func tailServer(t *testing.T, m *Manager, name string) *httptest.Server {
	t.Helper()
	server := httptest.NewServer(http.HandlerFunc(func(rw http.ResponseWriter, r *http.Request) {
		if err := m.Serve(name, rw, r); err != nil {
			t.Logf("serve failed: %v", err)
		}
	}))
	t.Cleanup(server.Close)
	return server
}

func dialClient(t *testing.T, server *httptest.Server) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(server.URL, "http")
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return conn
}

func readFrame(t *testing.T, conn *websocket.Conn) frame {
	t.Helper()
	conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	_, data, err := conn.ReadMessage()
	require.NoError(t, err)
	var f frame
	require.NoError(t, json.Unmarshal(data, &f))
	return f
}

func records(n int) []ir.Record {
	out := make([]ir.Record, 0, n)
	for i := 0; i < n; i++ {
		out = append(out, ir.Record{"body": "x", "i": int64(i)})
	}
	return out
}

func waitForClients(t *testing.T, m *Manager, name string, want int) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for m.Status(name) != want {
		if time.Now().After(deadline) {
			t.Fatalf("never reached %d clients", want)
		}
		time.Sleep(10 * time.Millisecond)
	}
}

func TestIngestWithoutClientsReturnsZero(t *testing.T) {
	m := NewManager()
	assert.Equal(t, 0, m.Ingest("svc:logs", records(5)))
	assert.Equal(t, 0, m.Status("svc:logs"))
}

func TestClientReceivesConnectedFrame(t *testing.T) {
	m := NewManager()
	server := tailServer(t, m, "svc:logs")
	conn := dialClient(t, server)

	f := readFrame(t, conn)
	assert.Equal(t, "connected", f.Type)
	waitForClients(t, m, "svc:logs", 1)
}

func TestBroadcastCapsAndNotifiesDropped(t *testing.T) {
	m := NewManager()
	server := tailServer(t, m, "svc:logs")

	connA := dialClient(t, server)
	connB := dialClient(t, server)
	readFrame(t, connA) // connected
	readFrame(t, connB)
	waitForClients(t, m, "svc:logs", 2)

	clientCount := m.Ingest("svc:logs", records(150))
	assert.Equal(t, 2, clientCount)

	// Each client receives min(150, 100) record frames followed by
	// one dropped frame with the remainder.
	for _, conn := range []*websocket.Conn{connA, connB} {
		for i := 0; i < MaxRecordsPerBatch; i++ {
			f := readFrame(t, conn)
			require.Equal(t, "record", f.Type, "frame %d", i)
		}
		f := readFrame(t, conn)
		assert.Equal(t, "dropped", f.Type)
		assert.Equal(t, 50, f.Count)
	}
}

func TestSmallBatchHasNoDroppedFrame(t *testing.T) {
	m := NewManager()
	server := tailServer(t, m, "svc:logs")
	conn := dialClient(t, server)
	readFrame(t, conn)
	waitForClients(t, m, "svc:logs", 1)

	m.Ingest("svc:logs", records(3))

	for i := 0; i < 3; i++ {
		f := readFrame(t, conn)
		require.Equal(t, "record", f.Type)
	}
	// No further frame: a read should time out.
	conn.SetReadDeadline(time.Now().Add(100 * time.Millisecond))
	_, _, err := conn.ReadMessage()
	assert.Error(t, err)
}

func TestClosedClientsAreDropped(t *testing.T) {
	m := NewManager()
	server := tailServer(t, m, "svc:logs")
	conn := dialClient(t, server)
	readFrame(t, conn)
	waitForClients(t, m, "svc:logs", 1)

	conn.Close()
	waitForClients(t, m, "svc:logs", 0)
}

func TestPresenceCache(t *testing.T) {
	cache := NewPresenceCache()

	_, fresh := cache.HasClients("unknown:logs")
	assert.False(t, fresh)

	cache.Update("svc:logs", true)
	has, fresh := cache.HasClients("svc:logs")
	assert.True(t, fresh)
	assert.True(t, has)

	cache.Update("svc:logs", false)
	has, fresh = cache.HasClients("svc:logs")
	assert.True(t, fresh)
	assert.False(t, has)
}

func TestSenderCachesNoClientPresence(t *testing.T) {
	m := NewManager()
	sender := NewSender(m, true)

	grouped := map[string][]ir.Record{
		"logs": {ir.Record{"service_name": "svc", "body": "x"}},
	}

	// First call consults the hub (0 clients) and caches the result.
	result := sender.SendAll(context.Background(), grouped)
	assert.Empty(t, result.Succeeded)

	has, fresh := sender.cache.HasClients("svc:logs")
	assert.True(t, fresh)
	assert.False(t, has)
}

// Copyright (C) NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Package livetail streams ingested records to WebSocket clients, one
// hub per {service}:{signal}. Hubs are created on first use and cost
// nothing while no client is attached; the runtime analog of a
// hibernating durable object.
package livetail

import (
	"encoding/json"
	"net/http"
	"sync"

	"github.com/gorilla/websocket"
	log "github.com/sirupsen/logrus"

	"github.com/otelgate/otelgate/pkg/ir"
)

// MaxRecordsPerBatch caps records broadcast per ingest to keep a
// flood from overwhelming clients.
const MaxRecordsPerBatch = 100

// wsMessage is the frame envelope sent to clients.
type wsMessage struct {
	Type    string `json:"type"`
	Message string `json:"message,omitempty"`
	Data    any    `json:"data,omitempty"`
	Count   int    `json:"count,omitempty"`
}

// Hub is the client set of one {service}:{signal} stream.
type Hub struct {
	mu      sync.Mutex
	clients map[*websocket.Conn]struct{}
}

func newHub() *Hub {
	return &Hub{clients: make(map[*websocket.Conn]struct{})}
}

func (h *Hub) add(conn *websocket.Conn) {
	h.mu.Lock()
	h.clients[conn] = struct{}{}
	h.mu.Unlock()
}

func (h *Hub) remove(conn *websocket.Conn) {
	h.mu.Lock()
	delete(h.clients, conn)
	h.mu.Unlock()
	conn.Close()
}

func (h *Hub) count() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.clients)
}

// Manager owns the hubs and the WebSocket upgrader.
type Manager struct {
	mu       sync.Mutex
	hubs     map[string]*Hub
	upgrader websocket.Upgrader
}

// NewManager creates an empty hub set.
func NewManager() *Manager {
	return &Manager{
		hubs: make(map[string]*Hub),
		upgrader: websocket.Upgrader{
			CheckOrigin: func(*http.Request) bool { return true },
		},
	}
}

func (m *Manager) hub(name string) *Hub {
	m.mu.Lock()
	defer m.mu.Unlock()
	h, ok := m.hubs[name]
	if !ok {
		h = newHub()
		m.hubs[name] = h
	}
	return h
}

// Serve upgrades the request, sends the connected frame and parks the
// connection in the named hub. Client messages are ignored; the read
// loop only exists to observe the close.
func (m *Manager) Serve(name string, rw http.ResponseWriter, r *http.Request) error {
	conn, err := m.upgrader.Upgrade(rw, r, nil)
	if err != nil {
		return err
	}

	welcome, _ := json.Marshal(wsMessage{Type: "connected", Message: "Live tail stream started"})
	if err := conn.WriteMessage(websocket.TextMessage, welcome); err != nil {
		conn.Close()
		return err
	}

	h := m.hub(name)
	h.add(conn)

	go func() {
		defer h.remove(conn)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	return nil
}

// Ingest broadcasts a batch to the named hub's clients and returns the
// client count, zero short-circuiting before any serialization so the
// presence cache can skip the call entirely next time. Batches beyond
// MaxRecordsPerBatch are cut and every client is told how many records
// were dropped.
func (m *Manager) Ingest(name string, records []ir.Record) int {
	m.mu.Lock()
	h, ok := m.hubs[name]
	m.mu.Unlock()
	if !ok {
		return 0
	}

	h.mu.Lock()
	clients := make([]*websocket.Conn, 0, len(h.clients))
	for conn := range h.clients {
		clients = append(clients, conn)
	}
	h.mu.Unlock()

	clientCount := len(clients)
	if clientCount == 0 || len(records) == 0 {
		return clientCount
	}

	toSend := records
	dropped := 0
	if len(records) > MaxRecordsPerBatch {
		toSend = records[:MaxRecordsPerBatch]
		dropped = len(records) - MaxRecordsPerBatch
	}

	frames := make([][]byte, 0, len(toSend)+1)
	for _, record := range toSend {
		frame, err := json.Marshal(wsMessage{Type: "record", Data: record})
		if err != nil {
			log.WithError(err).Warn("failed to serialize record for WebSocket")
			continue
		}
		frames = append(frames, frame)
	}
	if dropped > 0 {
		frame, err := json.Marshal(wsMessage{Type: "dropped", Count: dropped})
		if err != nil {
			log.WithError(err).Warn("failed to serialize dropped notification")
		} else {
			frames = append(frames, frame)
		}
	}

	for _, conn := range clients {
		for _, frame := range frames {
			if err := conn.WriteMessage(websocket.TextMessage, frame); err != nil {
				log.WithError(err).Debug("failed to send WebSocket message")
				h.remove(conn)
				break
			}
		}
	}

	return clientCount
}

// Status returns the current client count of the named hub.
func (m *Manager) Status(name string) int {
	m.mu.Lock()
	h, ok := m.hubs[name]
	m.mu.Unlock()
	if !ok {
		return 0
	}
	return h.count()
}

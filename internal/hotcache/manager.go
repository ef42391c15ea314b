// Copyright (C) NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.
package hotcache

import (
	"fmt"
	"path/filepath"
	"strings"
	"sync"
	"time"
)

// Manager hands out hot-cache stores by {service}:{signal} name. A
// hash over the name would select a worker in a multi-node deployment;
// in one process the manager owns every instance and serializes each
// store behind its own lock.
type Manager struct {
	mu        sync.Mutex
	stores    map[string]*storeHandle
	dir       string
	retention time.Duration
}

type storeHandle struct {
	mu    sync.Mutex
	store *Store
}

// NewManager creates a manager writing store databases under dir. An
// empty dir keeps every store in memory (used by tests). Retention is
// clamped to the 7 day bound.
func NewManager(dir string, retention time.Duration) *Manager {
	return &Manager{
		stores:    make(map[string]*storeHandle),
		dir:       dir,
		retention: retention,
	}
}

// ValidServiceName reports whether a service name can name a store
// directly: non-empty, at most 128 chars, characters limited to
// [A-Za-z0-9._-]. Anything else routes to "unknown".
func ValidServiceName(name string) bool {
	if name == "" || len(name) > 128 {
		return false
	}
	for _, r := range name {
		switch {
		case r >= 'a' && r <= 'z':
		case r >= 'A' && r <= 'Z':
		case r >= '0' && r <= '9':
		case r == '.' || r == '_' || r == '-':
		default:
			return false
		}
	}
	return true
}

// DOName builds the store name for a service and table, routing
// invalid service names to "unknown".
func DOName(serviceName, table string) string {
	if !ValidServiceName(serviceName) {
		serviceName = "unknown"
	}
	return serviceName + ":" + table
}

func (m *Manager) handle(name string) (*storeHandle, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if h, ok := m.stores[name]; ok {
		return h, nil
	}

	path := ":memory:"
	if m.dir != "" {
		path = filepath.Join(m.dir, strings.ReplaceAll(name, ":", "_")+".db")
	}
	store, err := openStore(name, path, m.retention)
	if err != nil {
		return nil, fmt.Errorf("open hot cache store %s: %w", name, err)
	}

	h := &storeHandle{store: store}
	m.stores[name] = h
	return h, nil
}

// Ingest writes a batch into the named store.
func (m *Manager) Ingest(name string, records []map[string]any) (int, error) {
	h, err := m.handle(name)
	if err != nil {
		return 0, err
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.store.Ingest(records)
}

// Query reads from the named store. A store that was never written
// returns no rows rather than erroring, so export fan-outs over
// unknown services stay cheap.
func (m *Manager) Query(name string, q QueryRequest) ([]map[string]any, error) {
	m.mu.Lock()
	h, ok := m.stores[name]
	m.mu.Unlock()
	if !ok {
		if !ValidTable(q.Table) {
			return nil, fmt.Errorf("invalid table name")
		}
		return nil, nil
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	return h.store.Query(q)
}

// Close releases every open store.
func (m *Manager) Close() {
	m.mu.Lock()
	defer m.mu.Unlock()
	for name, h := range m.stores {
		h.mu.Lock()
		h.store.Close()
		h.mu.Unlock()
		delete(m.stores, name)
	}
}

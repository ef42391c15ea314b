// Copyright (C) NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.
package livetail

import (
	"context"

	"github.com/otelgate/otelgate/internal/hotcache"
	"github.com/otelgate/otelgate/internal/pipeline"
	"github.com/otelgate/otelgate/pkg/ir"
)

// Sender routes row batches into live-tail hubs, consulting the
// presence cache first: a fresh "no clients" entry skips the hub call,
// anything else sends and refreshes the cache from the hub's reported
// client count. Best-effort; never fails the request.
type Sender struct {
	manager *Manager
	cache   *PresenceCache
	enabled bool
}

// NewSender wraps a hub manager.
func NewSender(manager *Manager, enabled bool) *Sender {
	return &Sender{manager: manager, cache: NewPresenceCache(), enabled: enabled}
}

// Enabled reports whether live-tail streaming is on.
func (s *Sender) Enabled() bool { return s.enabled }

// SendAll groups rows by {service}:{signal} and broadcasts each group.
func (s *Sender) SendAll(ctx context.Context, grouped map[string][]ir.Record) pipeline.SendResult {
	result := pipeline.NewSendResult()
	if !s.enabled {
		return result
	}

	byHub := make(map[string][]ir.Record)
	for table, records := range grouped {
		for _, record := range records {
			service := ir.GetString(record, "service_name")
			if service == "" {
				service = "unknown"
			}
			name := hotcache.DOName(service, table)
			byHub[name] = append(byHub[name], record)
		}
	}

	for name, records := range byHub {
		if hasClients, fresh := s.cache.HasClients(name); fresh && !hasClients {
			continue
		}
		clientCount := s.manager.Ingest(name, records)
		s.cache.Update(name, clientCount > 0)
		if clientCount > 0 {
			result.Succeeded[name] += len(records)
		}
	}

	return result
}

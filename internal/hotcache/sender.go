// Copyright (C) NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.
package hotcache

import (
	"context"

	log "github.com/sirupsen/logrus"

	"github.com/otelgate/otelgate/internal/pipeline"
	"github.com/otelgate/otelgate/pkg/ir"
)

// Sender routes transformed rows into per-{service}:{signal} stores.
// It is one of the best-effort sidecar writers: failures are reported
// in the result but never fail the request.
type Sender struct {
	manager *Manager
	enabled bool
}

// NewSender wraps a manager. A disabled sender counts records as
// succeeded without writing.
func NewSender(manager *Manager, enabled bool) *Sender {
	return &Sender{manager: manager, enabled: enabled}
}

// Enabled reports whether the hot cache write path is on.
func (s *Sender) Enabled() bool { return s.enabled }

// SendAll groups rows by store name and ingests each group. The
// _table hint the store needs for routing is re-attached per record.
func (s *Sender) SendAll(ctx context.Context, grouped map[string][]ir.Record) pipeline.SendResult {
	result := pipeline.NewSendResult()

	if !s.enabled {
		for table, records := range grouped {
			result.Succeeded[table] = len(records)
		}
		return result
	}

	byStore := make(map[string][]ir.Record)
	for table, records := range grouped {
		for _, record := range records {
			name := DOName(serviceNameOf(record), table)
			clone := make(ir.Record, len(record)+1)
			for k, v := range record {
				clone[k] = v
			}
			clone["_table"] = table
			byStore[name] = append(byStore[name], clone)
		}
	}

	for name, records := range byStore {
		count, err := s.manager.Ingest(name, records)
		if err != nil {
			log.WithError(err).WithField("do_name", name).Warn("hot cache write failed")
			result.Failed[name] = err.Error()
			continue
		}
		result.Succeeded[name] += count
	}

	return result
}

// serviceNameOf extracts service_name from a row, defaulting to
// "unknown".
func serviceNameOf(record ir.Record) string {
	if s := ir.GetString(record, "service_name"); s != "" {
		return s
	}
	log.Warn("record missing service_name, routing to 'unknown'")
	return "unknown"
}

// Copyright (C) NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.
package aggregator

import (
	"context"

	log "github.com/sirupsen/logrus"

	"github.com/otelgate/otelgate/internal/hotcache"
	"github.com/otelgate/otelgate/internal/pipeline"
	"github.com/otelgate/otelgate/pkg/ir"
)

// Sender routes log and trace rows into per-{service}:{signal}
// aggregator stores. Gauge and sum tables are skipped. Best-effort;
// never fails the request.
type Sender struct {
	manager *Manager
	enabled bool
}

// NewSender wraps a manager.
func NewSender(manager *Manager, enabled bool) *Sender {
	return &Sender{manager: manager, enabled: enabled}
}

// Enabled reports whether aggregation is on.
func (s *Sender) Enabled() bool { return s.enabled }

// SendAll groups rows by store name and accumulates each group.
func (s *Sender) SendAll(ctx context.Context, grouped map[string][]ir.Record) pipeline.SendResult {
	result := pipeline.NewSendResult()
	if !s.enabled {
		return result
	}

	byStore := make(map[string][]ir.Record)
	for table, records := range grouped {
		if table != "logs" && table != "traces" {
			continue
		}
		for _, record := range records {
			service := ir.GetString(record, "service_name")
			if service == "" {
				service = "unknown"
			}
			name := hotcache.DOName(service, table)
			byStore[name] = append(byStore[name], record)
		}
	}

	for name, records := range byStore {
		count, err := s.manager.Ingest(name, records)
		if err != nil {
			log.WithError(err).WithField("do_name", name).Warn("aggregator write failed")
			result.Failed[name] = err.Error()
			continue
		}
		result.Succeeded[name] += count
	}

	return result
}

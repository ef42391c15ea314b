// Copyright (C) NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.
package pipeline

import (
	"context"
	"sync"

	"github.com/nats-io/nats.go"
	log "github.com/sirupsen/logrus"

	"github.com/otelgate/otelgate/pkg/ir"
)

// NATSSender publishes NDJSON batches to an Event Hubs-class bus, one
// subject per table. Batching and schema validation match the HTTP
// sender; delivery is a single publish per batch with the broker
// handling durability.
type NATSSender struct {
	conn          *nats.Conn
	subjectPrefix string
}

// NewNATSSender connects to the bus. An empty prefix defaults to
// "pipeline".
func NewNATSSender(url, subjectPrefix string) (*NATSSender, error) {
	if subjectPrefix == "" {
		subjectPrefix = "pipeline"
	}
	conn, err := nats.Connect(url,
		nats.MaxReconnects(-1),
		nats.ReconnectWait(SendTimeout))
	if err != nil {
		return nil, err
	}
	return &NATSSender{conn: conn, subjectPrefix: subjectPrefix}, nil
}

// Close closes the connection without draining it.
func (s *NATSSender) Close() {
	if s.conn != nil {
		s.conn.Close()
	}
}

// SendAll publishes each table's batches to its subject. Tables fan
// out concurrently; batches within a table publish sequentially.
func (s *NATSSender) SendAll(ctx context.Context, grouped map[string][]ir.Record) SendResult {
	result := NewSendResult()
	var mu sync.Mutex
	var wg sync.WaitGroup

	for tableName, records := range grouped {
		if len(records) == 0 {
			continue
		}

		wg.Add(1)
		go func(table string, records []ir.Record) {
			defer wg.Done()
			count, err := s.sendTable(table, records)
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				result.Failed[table] = err.Error()
			} else {
				result.Succeeded[table] = count
			}
		}(tableName, records)
	}

	wg.Wait()
	return result
}

func (s *NATSSender) sendTable(table string, records []ir.Record) (int, error) {
	batches, err := BuildNDJSONBatches(records, MaxBodySize, table)
	if err != nil {
		return 0, err
	}

	subject := s.subjectPrefix + "." + table
	sent := 0
	for _, body := range batches {
		if err := s.conn.Publish(subject, body); err != nil {
			return sent, &SendError{Kind: ErrNetwork, Message: err.Error()}
		}
		sent += countNDJSONRecords(body)
	}
	if err := s.conn.FlushTimeout(SendTimeout); err != nil {
		return 0, &SendError{Kind: ErrTimeout}
	}

	log.WithFields(log.Fields{"subject": subject, "sent": sent}).
		Debug("published batches to bus")
	return sent, nil
}

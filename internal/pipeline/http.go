// Copyright (C) NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.
package pipeline

import (
	"bytes"
	"context"
	"errors"
	"io"
	"net/http"
	"os"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/otelgate/otelgate/pkg/ir"
	"github.com/otelgate/otelgate/pkg/signal"
)

// SendTimeout is the per-attempt HTTP timeout.
const SendTimeout = 5 * time.Second

// HTTPSender posts NDJSON batches to one HTTPS endpoint per table.
// This is the sender used for the Iceberg-backed pipeline.
type HTTPSender struct {
	client    *http.Client
	endpoints map[signal.Signal]string
	token     string
	retry     RetryConfig
}

// NewHTTPSender builds a sender for the given per-signal endpoints and
// bearer token.
func NewHTTPSender(endpoints map[signal.Signal]string, token string) *HTTPSender {
	return &HTTPSender{
		client:    &http.Client{Timeout: SendTimeout},
		endpoints: endpoints,
		token:     token,
		retry:     DefaultRetryConfig(),
	}
}

// NewHTTPSenderFromEnv reads PIPELINE_* endpoint variables and the
// auth token from the environment.
func NewHTTPSenderFromEnv() *HTTPSender {
	endpoints := make(map[signal.Signal]string)
	for _, s := range signal.All() {
		if url := os.Getenv(s.EnvVarName()); url != "" {
			endpoints[s] = url
		}
	}
	log.WithField("endpoint_count", len(endpoints)).Info("pipeline client initialized")
	return NewHTTPSender(endpoints, os.Getenv("PIPELINE_AUTH_TOKEN"))
}

// SendAll fans the grouped rows out to their endpoints. Tables are
// sent concurrently; batches within one table are sent sequentially so
// a per-table failure is not masked by later success.
func (s *HTTPSender) SendAll(ctx context.Context, grouped map[string][]ir.Record) SendResult {
	result := NewSendResult()
	var mu sync.Mutex
	var wg sync.WaitGroup

	for tableName, records := range grouped {
		if len(records) == 0 {
			continue
		}

		sig, ok := signal.FromTableName(tableName)
		if !ok {
			log.WithField("table", tableName).Warn("unknown signal type")
			result.Failed[tableName] = "unknown signal type"
			continue
		}
		endpoint, ok := s.endpoints[sig]
		if !ok {
			log.WithField("table", tableName).Warn("no pipeline endpoint configured")
			result.Failed[tableName] = "no pipeline endpoint configured for " + tableName
			continue
		}

		wg.Add(1)
		go func(table, endpoint string, records []ir.Record) {
			defer wg.Done()
			count, err := s.sendTable(ctx, table, endpoint, records)
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				result.Failed[table] = err.Error()
			} else {
				result.Succeeded[table] = count
			}
		}(tableName, endpoint, records)
	}

	wg.Wait()
	return result
}

func (s *HTTPSender) sendTable(ctx context.Context, table, endpoint string, records []ir.Record) (int, error) {
	batches, err := BuildNDJSONBatches(records, MaxBodySize, table)
	if err != nil {
		return 0, err
	}
	if len(batches) > 1 {
		log.WithFields(log.Fields{"batch_count": len(batches), "total_records": len(records)}).
			Debug("splitting into multiple batches due to size limit")
	}

	sent := 0
	for _, body := range batches {
		count, err := s.sendBatch(ctx, endpoint, body)
		if err != nil {
			return sent, err
		}
		sent += count
	}
	log.WithFields(log.Fields{"endpoint": endpoint, "sent": sent}).
		Debug("all batches sent successfully")
	return sent, nil
}

func (s *HTTPSender) sendBatch(ctx context.Context, endpoint string, body []byte) (int, error) {
	recordCount := countNDJSONRecords(body)

	err := withRetry(ctx, s.retry, func() error {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
		if err != nil {
			return &SendError{Kind: ErrNetwork, Message: err.Error()}
		}
		req.Header.Set("Content-Type", "application/x-ndjson")
		req.Header.Set("Authorization", "Bearer "+s.token)

		resp, err := s.client.Do(req)
		if err != nil {
			if isTimeout(err) {
				return &SendError{Kind: ErrTimeout}
			}
			return &SendError{Kind: ErrNetwork, Message: err.Error()}
		}
		defer resp.Body.Close()

		if resp.StatusCode < 200 || resp.StatusCode >= 300 {
			respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
			log.WithFields(log.Fields{
				"endpoint": endpoint,
				"status":   resp.StatusCode,
				"body":     string(respBody),
			}).Error("pipeline returned error status")
			return &SendError{Kind: ErrHTTP, Status: resp.StatusCode, Endpoint: endpoint}
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	return recordCount, nil
}

func isTimeout(err error) bool {
	var netErr interface{ Timeout() bool }
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}
	return errors.Is(err, context.DeadlineExceeded)
}

// Copyright (C) NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Package pipeline delivers transformed rows to the downstream sink,
// one endpoint per table, as size-bounded NDJSON batches with bounded
// retry.
package pipeline

import (
	"context"
	"fmt"

	"github.com/otelgate/otelgate/pkg/ir"
)

// SendResult reports the per-table outcome of one fan-out.
type SendResult struct {
	Succeeded map[string]int    // table -> records delivered
	Failed    map[string]string // table -> error message
}

// NewSendResult returns an empty result.
func NewSendResult() SendResult {
	return SendResult{
		Succeeded: make(map[string]int),
		Failed:    make(map[string]string),
	}
}

// Sender delivers grouped rows to the downstream sink. Backends treat
// each table group independently and report per-group failures.
type Sender interface {
	SendAll(ctx context.Context, grouped map[string][]ir.Record) SendResult
}

// SendError classifies a single delivery failure.
type SendError struct {
	Kind     SendErrorKind
	Status   int
	Endpoint string
	Message  string
}

type SendErrorKind int

const (
	ErrTimeout SendErrorKind = iota
	ErrHTTP
	ErrNetwork
	ErrSerialize
)

func (e *SendError) Error() string {
	switch e.Kind {
	case ErrTimeout:
		return "request timed out"
	case ErrHTTP:
		return fmt.Sprintf("HTTP %d from %s", e.Status, e.Endpoint)
	case ErrNetwork:
		return fmt.Sprintf("network error: %s", e.Message)
	case ErrSerialize:
		return fmt.Sprintf("serialization error: %s", e.Message)
	}
	return e.Message
}

// Retryable reports whether a retry could help: timeouts, network
// errors and HTTP 502-504. Serialization failures and every other
// status (including 4xx and 500) are final.
func (e *SendError) Retryable() bool {
	switch e.Kind {
	case ErrTimeout, ErrNetwork:
		return true
	case ErrHTTP:
		return e.Status >= 502 && e.Status <= 504
	}
	return false
}

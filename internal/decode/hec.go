// Copyright (C) NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.
package decode

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/otelgate/otelgate/pkg/ir"
)

// HEC decoder limits.
const (
	MaxHECBodySize = 10 * 1024 * 1024
	MaxHECEvents   = 10_000
)

type hecEvent struct {
	Time       *float64       `json:"time"`
	Host       string         `json:"host"`
	Source     string         `json:"source"`
	Sourcetype string         `json:"sourcetype"`
	Event      json.RawMessage `json:"event"`
	Fields     map[string]any `json:"fields"`
}

// EpochToMillis converts HEC float epoch seconds to integer
// milliseconds, truncating sub-millisecond precision. Negative,
// non-finite and out-of-range values are rejected.
func EpochToMillis(t float64) (int64, error) {
	if math.IsNaN(t) || math.IsInf(t, 0) {
		return 0, &ir.FieldError{Field: "time", Reason: "non-finite value"}
	}
	if t < 0 {
		return 0, &ir.FieldError{Field: "time", Reason: "negative timestamp"}
	}
	millis := t * 1000.0
	if millis > math.MaxInt64 {
		return 0, &ir.FieldError{Field: "time", Reason: "exceeds i64 max"}
	}
	return int64(math.Floor(millis)), nil
}

// eventToBody passes string events through and JSON-encodes anything
// else.
func eventToBody(raw json.RawMessage) any {
	if len(raw) == 0 {
		return nil
	}
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 || string(trimmed) == "null" {
		return nil
	}
	if trimmed[0] == '"' {
		var s string
		if err := json.Unmarshal(trimmed, &s); err == nil {
			return s
		}
	}
	return string(trimmed)
}

// DecodeHEC decodes a Splunk-style HEC NDJSON payload into IR records.
// CRLF line endings are tolerated and blank lines are skipped.
func DecodeHEC(body []byte, now time.Time) ([]ir.Record, error) {
	if len(body) > MaxHECBodySize {
		return nil, fmt.Errorf("payload too large: %d bytes exceeds %d MB limit",
			len(body), MaxHECBodySize/1024/1024)
	}
	if !utf8.Valid(body) {
		return nil, fmt.Errorf("invalid UTF-8 payload")
	}

	records := make([]ir.Record, 0, 16)

	for _, line := range strings.Split(string(body), "\n") {
		line = strings.TrimSpace(strings.TrimSuffix(line, "\r"))
		if line == "" {
			continue
		}
		if len(records) >= MaxHECEvents {
			return nil, fmt.Errorf("too many events: %d exceeds %d event limit",
				len(records)+1, MaxHECEvents)
		}

		var event hecEvent
		if err := json.Unmarshal([]byte(line), &event); err != nil {
			return nil, fmt.Errorf("line parse error: %v", err)
		}

		timestamp := now.UnixMilli()
		if event.Time != nil {
			ms, err := EpochToMillis(*event.Time)
			if err != nil {
				return nil, err
			}
			timestamp = ms
		}

		rec := ir.Record{
			"timestamp":          timestamp,
			"observed_timestamp": timestamp,
			"body":               eventToBody(event.Event),
		}
		if event.Host != "" {
			rec["host"] = event.Host
		}
		if event.Source != "" {
			rec["source"] = event.Source
		}
		if event.Sourcetype != "" {
			rec["sourcetype"] = event.Sourcetype
		}
		if event.Fields != nil {
			fields := make(ir.Record, len(event.Fields))
			for k, v := range event.Fields {
				fields[k] = rawToIR(v)
			}
			rec["fields"] = fields
		}

		records = append(records, rec)
	}

	return records, nil
}

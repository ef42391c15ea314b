// Copyright (C) NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.
package pipeline

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/otelgate/otelgate/pkg/ir"
)

func rec(fields ir.Record) ir.Record { return fields }

func TestBuildNDJSONBatchesSingleBatch(t *testing.T) {
	records := []ir.Record{
		rec(ir.Record{"v": "record1"}),
		rec(ir.Record{"v": "record2"}),
		rec(ir.Record{"v": "record3"}),
	}

	// Unknown table skips schema validation.
	batches, err := BuildNDJSONBatches(records, 1024, "_test")
	require.NoError(t, err)
	require.Len(t, batches, 1)

	body := string(batches[0])
	assert.Contains(t, body, "record1")
	assert.Contains(t, body, "record3")
	// NDJSON: newline separated, no trailing newline.
	assert.Equal(t, 2, strings.Count(body, "\n"))
	assert.False(t, strings.HasSuffix(body, "\n"))
}

func TestBuildNDJSONBatchesSplitsOnSize(t *testing.T) {
	records := []ir.Record{
		rec(ir.Record{"v": strings.Repeat("a", 20)}),
		rec(ir.Record{"v": strings.Repeat("b", 20)}),
		rec(ir.Record{"v": strings.Repeat("c", 20)}),
	}

	batches, err := BuildNDJSONBatches(records, 40, "_test")
	require.NoError(t, err)
	assert.Greater(t, len(batches), 1, "expected multiple batches")

	all := ""
	for _, b := range batches {
		assert.LessOrEqual(t, len(b), 40)
		all += string(b) + "\n"
	}
	assert.Contains(t, all, "aaaa")
	assert.Contains(t, all, "bbbb")
	assert.Contains(t, all, "cccc")
}

func TestBuildNDJSONBatchesOversizeRecordShipsAlone(t *testing.T) {
	records := []ir.Record{
		rec(ir.Record{"v": strings.Repeat("x", 100)}),
	}

	batches, err := BuildNDJSONBatches(records, 10, "_test")
	require.NoError(t, err)
	require.Len(t, batches, 1)
	assert.Contains(t, string(batches[0]), "xxxx")
}

func TestBuildNDJSONBatchesRespectsCapExactly(t *testing.T) {
	// Each serialized record is {"v":"aa...a"} = 10 + 8 = 18 bytes.
	record := rec(ir.Record{"v": strings.Repeat("a", 10)})
	line, _ := json.Marshal(record)
	lineLen := len(line)

	// Cap fits exactly two records plus one separator.
	cap := lineLen*2 + 1
	batches, err := BuildNDJSONBatches([]ir.Record{record, record, record}, cap, "_test")
	require.NoError(t, err)
	require.Len(t, batches, 2)
	assert.Equal(t, cap, len(batches[0]))
}

func TestBuildNDJSONBatchesValidationAbortsTable(t *testing.T) {
	records := []ir.Record{
		rec(ir.Record{
			"timestamp":    int64(1),
			"metric_name":  "m",
			"service_name": "s",
			"value":        1.0,
		}),
		rec(ir.Record{"timestamp": int64(2)}), // missing required fields
	}

	_, err := BuildNDJSONBatches(records, MaxBodySize, "gauge")
	require.Error(t, err)

	var sendErr *SendError
	require.ErrorAs(t, err, &sendErr)
	assert.Equal(t, ErrSerialize, sendErr.Kind)
	assert.False(t, sendErr.Retryable())
	assert.Contains(t, sendErr.Error(), "record 1")
}

func TestCountNDJSONRecords(t *testing.T) {
	assert.Equal(t, 0, countNDJSONRecords(nil))
	assert.Equal(t, 1, countNDJSONRecords([]byte(`{"a":1}`)))
	assert.Equal(t, 3, countNDJSONRecords(bytes.Join([][]byte{
		[]byte(`{}`), []byte(`{}`), []byte(`{}`),
	}, []byte{'\n'})))
}

func TestSendErrorRetryableClassification(t *testing.T) {
	assert.True(t, (&SendError{Kind: ErrTimeout}).Retryable())
	assert.True(t, (&SendError{Kind: ErrNetwork, Message: "conn reset"}).Retryable())
	assert.True(t, (&SendError{Kind: ErrHTTP, Status: 502}).Retryable())
	assert.True(t, (&SendError{Kind: ErrHTTP, Status: 503}).Retryable())
	assert.True(t, (&SendError{Kind: ErrHTTP, Status: 504}).Retryable())
	assert.False(t, (&SendError{Kind: ErrSerialize}).Retryable())
	assert.False(t, (&SendError{Kind: ErrHTTP, Status: 400}).Retryable())
	assert.False(t, (&SendError{Kind: ErrHTTP, Status: 401}).Retryable())
	assert.False(t, (&SendError{Kind: ErrHTTP, Status: 500}).Retryable())
}

// Copyright (C) NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.
package pipeline

import (
	"bytes"
	"encoding/json"

	"github.com/otelgate/otelgate/internal/schema"
	"github.com/otelgate/otelgate/pkg/ir"
)

// MaxBodySize caps one NDJSON request body (900 KiB, leaving margin
// under the sink's 1 MB limit).
const MaxBodySize = 900 * 1024

// BuildNDJSONBatches serializes records into newline-delimited JSON
// bodies, greedily starting a new batch when appending the next record
// (plus separator) would cross the size cap. A single record larger
// than the cap ships alone; records are never re-chunked. Each record
// is schema-validated before its bytes are appended; a validation
// failure aborts the whole table.
func BuildNDJSONBatches(records []ir.Record, maxSize int, table string) ([][]byte, error) {
	batches := make([][]byte, 0, 1)
	var buf bytes.Buffer
	firstInBatch := true

	for idx, record := range records {
		if err := schema.Validate(record, table, idx); err != nil {
			return nil, &SendError{Kind: ErrSerialize, Message: err.Error()}
		}

		line, err := json.Marshal(record)
		if err != nil {
			return nil, &SendError{Kind: ErrSerialize, Message: err.Error()}
		}

		recordSize := len(line)
		if !firstInBatch {
			recordSize++ // newline separator
		}

		// Roll over before appending; a batch always keeps at least
		// one record so oversize rows still ship.
		if !firstInBatch && buf.Len()+recordSize > maxSize {
			batches = append(batches, append([]byte(nil), buf.Bytes()...))
			buf.Reset()
			firstInBatch = true
		}

		if !firstInBatch {
			buf.WriteByte('\n')
		} else {
			firstInBatch = false
		}
		buf.Write(line)
	}

	if buf.Len() > 0 {
		batches = append(batches, append([]byte(nil), buf.Bytes()...))
	}

	return batches, nil
}

// countNDJSONRecords counts records in a built batch body.
func countNDJSONRecords(body []byte) int {
	if len(body) == 0 {
		return 0
	}
	return bytes.Count(body, []byte{'\n'}) + 1
}

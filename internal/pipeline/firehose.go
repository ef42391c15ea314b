// Copyright (C) NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.
package pipeline

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/firehose"
	"github.com/aws/aws-sdk-go-v2/service/firehose/types"
	log "github.com/sirupsen/logrus"

	"github.com/otelgate/otelgate/internal/schema"
	"github.com/otelgate/otelgate/pkg/ir"
)

// firehosePutBatchMax is the service limit on records per
// PutRecordBatch call.
const firehosePutBatchMax = 500

// FirehoseAPI is the subset of the Kinesis-class client the sender
// uses.
type FirehoseAPI interface {
	PutRecordBatch(ctx context.Context, params *firehose.PutRecordBatchInput, optFns ...func(*firehose.Options)) (*firehose.PutRecordBatchOutput, error)
}

// FirehoseSender delivers rows to one delivery stream per table. Each
// row becomes one newline-terminated record so the stream's sink can
// reassemble NDJSON objects.
type FirehoseSender struct {
	client  FirehoseAPI
	streams map[string]string // table -> delivery stream name
	retry   RetryConfig
}

// NewFirehoseSender wraps a firehose client with the per-table stream
// mapping.
func NewFirehoseSender(client FirehoseAPI, streams map[string]string) *FirehoseSender {
	return &FirehoseSender{client: client, streams: streams, retry: DefaultRetryConfig()}
}

// NewFirehoseSenderFromConfig resolves the AWS client from the
// default credential chain.
func NewFirehoseSenderFromConfig(ctx context.Context, streams map[string]string) (*FirehoseSender, error) {
	cfg, err := awsconfig.LoadDefaultConfig(ctx)
	if err != nil {
		return nil, err
	}
	return NewFirehoseSender(firehose.NewFromConfig(cfg), streams), nil
}

// SendAll fans out per table; chunks within a table go sequentially.
func (s *FirehoseSender) SendAll(ctx context.Context, grouped map[string][]ir.Record) SendResult {
	result := NewSendResult()
	var mu sync.Mutex
	var wg sync.WaitGroup

	for tableName, records := range grouped {
		if len(records) == 0 {
			continue
		}
		stream, ok := s.streams[tableName]
		if !ok {
			result.Failed[tableName] = "no delivery stream configured for " + tableName
			continue
		}

		wg.Add(1)
		go func(table, stream string, records []ir.Record) {
			defer wg.Done()
			count, err := s.sendTable(ctx, table, stream, records)
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				result.Failed[table] = err.Error()
			} else {
				result.Succeeded[table] = count
			}
		}(tableName, stream, records)
	}

	wg.Wait()
	return result
}

func (s *FirehoseSender) sendTable(ctx context.Context, table, stream string, records []ir.Record) (int, error) {
	entries := make([]types.Record, 0, len(records))
	for idx, record := range records {
		if err := schema.Validate(record, table, idx); err != nil {
			return 0, &SendError{Kind: ErrSerialize, Message: err.Error()}
		}
		line, err := json.Marshal(record)
		if err != nil {
			return 0, &SendError{Kind: ErrSerialize, Message: err.Error()}
		}
		entries = append(entries, types.Record{Data: append(line, '\n')})
	}

	sent := 0
	for start := 0; start < len(entries); start += firehosePutBatchMax {
		end := min(start+firehosePutBatchMax, len(entries))
		chunk := entries[start:end]

		err := withRetry(ctx, s.retry, func() error {
			out, err := s.client.PutRecordBatch(ctx, &firehose.PutRecordBatchInput{
				DeliveryStreamName: aws.String(stream),
				Records:            chunk,
			})
			if err != nil {
				return &SendError{Kind: ErrNetwork, Message: err.Error()}
			}
			if out.FailedPutCount != nil && *out.FailedPutCount > 0 {
				return &SendError{Kind: ErrNetwork,
					Message: fmt.Sprintf("firehose rejected %d records: %s",
						*out.FailedPutCount, aws.ToString(firstErrorMessage(out.RequestResponses)))}
			}
			return nil
		})
		if err != nil {
			return sent, err
		}
		sent += len(chunk)
	}

	log.WithFields(log.Fields{"stream": stream, "sent": sent}).
		Debug("delivered records to firehose")
	return sent, nil
}

func firstErrorMessage(responses []types.PutRecordBatchResponseEntry) *string {
	for _, r := range responses {
		if r.ErrorMessage != nil {
			return r.ErrorMessage
		}
	}
	return aws.String("unknown")
}

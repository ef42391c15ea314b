// Copyright (C) NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Package api exposes the gateway's HTTP surface and glues the ingest
// pipeline together: decompress, decode, transform, send, plus the
// best-effort sidecar writes.
package api

import (
	"context"
	"fmt"
	"net/http"
	"sort"
	"strings"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/otelgate/otelgate/internal/decode"
	"github.com/otelgate/otelgate/internal/metrics"
	"github.com/otelgate/otelgate/internal/pipeline"
	"github.com/otelgate/otelgate/internal/transform"
	"github.com/otelgate/otelgate/internal/util"
	"github.com/otelgate/otelgate/pkg/ir"
	"github.com/otelgate/otelgate/pkg/signal"
)

var tracer = otel.Tracer("github.com/otelgate/otelgate/internal/api")

// HandleErrorKind classifies an ingest failure.
type HandleErrorKind int

const (
	ErrDecompress HandleErrorKind = iota
	ErrDecode
	ErrTransform
	ErrSendFailed
)

// HandleError is the typed failure the signal handler surfaces.
type HandleError struct {
	Kind HandleErrorKind
	Err  error
}

func (e *HandleError) Error() string {
	switch e.Kind {
	case ErrDecompress:
		return fmt.Sprintf("decompress error: %v", e.Err)
	case ErrDecode:
		return fmt.Sprintf("decode error: %v", e.Err)
	case ErrTransform:
		return fmt.Sprintf("transform error: %v", e.Err)
	case ErrSendFailed:
		return fmt.Sprintf("send failed: %v", e.Err)
	}
	return e.Err.Error()
}

// HTTPStatus maps the failure class to its response status.
func (e *HandleError) HTTPStatus() int {
	switch e.Kind {
	case ErrDecompress, ErrDecode:
		return http.StatusBadRequest
	case ErrTransform:
		return http.StatusInternalServerError
	case ErrSendFailed:
		return http.StatusBadGateway
	}
	return http.StatusInternalServerError
}

// HandleResponse is the user-visible ingest outcome. A partial
// success (some tables delivered, some not) is a first-class outcome
// at HTTP 200.
type HandleResponse struct {
	Status  string            `json:"status"`
	Records map[string]int    `json:"records"`
	Errors  map[string]string `json:"errors,omitempty"`
}

func emptyResponse() HandleResponse {
	return HandleResponse{Status: "ok", Records: map[string]int{}}
}

func responseFromResult(result pipeline.SendResult) HandleResponse {
	status := "ok"
	if len(result.Failed) > 0 {
		if len(result.Succeeded) == 0 {
			status = "error"
		} else {
			status = "partial"
		}
	}
	resp := HandleResponse{Status: status, Records: result.Succeeded}
	if len(result.Failed) > 0 {
		resp.Errors = result.Failed
	}
	return resp
}

// SidecarSender is the best-effort write surface of the hot-cache,
// aggregator and live-tail components.
type SidecarSender interface {
	SendAll(ctx context.Context, grouped map[string][]ir.Record) pipeline.SendResult
	Enabled() bool
}

// Registrar receives discovered service and metric names.
type Registrar interface {
	RegisterFromGrouped(grouped map[string][]ir.Record)
}

// SignalDeps wires one ingest call. Pipeline is mandatory; the rest
// are optional sidecars.
type SignalDeps struct {
	Pipeline   pipeline.Sender
	HotCache   SidecarSender
	Aggregator SidecarSender
	LiveTail   SidecarSender
	Registry   Registrar
}

// HandleSignal runs the signal-generic ingest pipeline: decompress,
// decode, transform, group, send, with the optional sidecar writes
// issued after (and never before) the pipeline call.
func HandleSignal(ctx context.Context, sig signal.Signal, body []byte, gzipped bool, format decode.Format, deps SignalDeps) (HandleResponse, *HandleError) {
	ctx, span := tracer.Start(ctx, "ingest")
	defer span.End()
	span.SetAttributes(
		attribute.String("signal", sig.String()),
		attribute.String("format", format.String()),
		attribute.Bool("gzipped", gzipped),
	)
	start := time.Now()
	defer func() {
		metrics.RequestDuration.WithLabelValues(sig.String()).Observe(time.Since(start).Seconds())
	}()

	body, err := util.DecompressIfGzipped(body, gzipped)
	if err != nil {
		return HandleResponse{}, &HandleError{Kind: ErrDecompress, Err: err}
	}

	records, err := decodeSignal(sig, body, format)
	if err != nil {
		log.WithError(err).Error("failed to decode payload")
		return HandleResponse{}, &HandleError{Kind: ErrDecode, Err: err}
	}
	if len(records) == 0 {
		log.Debug("no records to transform")
		return emptyResponse(), nil
	}

	log.WithField("record_count", len(records)).Debug("transforming records")
	grouped, err := transformSignal(sig, records)
	if err != nil {
		log.WithError(err).Error("transform failed")
		return HandleResponse{}, &HandleError{Kind: ErrTransform, Err: err}
	}
	if len(grouped) == 0 {
		log.Debug("no records to send")
		return emptyResponse(), nil
	}

	return sendGrouped(ctx, sig, grouped, deps, span)
}

// HandleHEC runs the HEC NDJSON ingest path. The transform program
// owns the final table routing, defaulting to logs.
func HandleHEC(ctx context.Context, body []byte, gzipped bool, deps SignalDeps) (HandleResponse, *HandleError) {
	ctx, span := tracer.Start(ctx, "ingest")
	defer span.End()
	span.SetAttributes(
		attribute.String("signal", "logs"),
		attribute.String("format", "hec"),
		attribute.Bool("gzipped", gzipped),
	)

	body, err := util.DecompressIfGzipped(body, gzipped)
	if err != nil {
		return HandleResponse{}, &HandleError{Kind: ErrDecompress, Err: err}
	}

	records, err := decode.DecodeHEC(body, time.Now())
	if err != nil {
		log.WithError(err).Error("failed to decode HEC payload")
		return HandleResponse{}, &HandleError{Kind: ErrDecode, Err: err}
	}
	if len(records) == 0 {
		return emptyResponse(), nil
	}

	grouped, err := transform.RunBatch(transform.HECLogs, records)
	if err != nil {
		log.WithError(err).Error("transform failed")
		return HandleResponse{}, &HandleError{Kind: ErrTransform, Err: err}
	}
	if len(grouped) == 0 {
		return emptyResponse(), nil
	}

	return sendGrouped(ctx, signal.Logs, grouped, deps, span)
}

func decodeSignal(sig signal.Signal, body []byte, format decode.Format) ([]ir.Record, error) {
	switch sig {
	case signal.Logs:
		return decode.DecodeLogs(body, format)
	case signal.Traces:
		return decode.DecodeTraces(body, format)
	default:
		return decode.DecodeMetrics(body, format)
	}
}

func transformSignal(sig signal.Signal, records []ir.Record) (map[string][]ir.Record, error) {
	switch sig {
	case signal.Logs:
		return transform.RunBatch(transform.OTLPLogs, records)
	case signal.Traces:
		return transform.RunBatch(transform.OTLPTraces, records)
	default:
		return transform.RunMetricsBatch(transform.OTLPGauge, transform.OTLPSum, records)
	}
}

type spanRecorder interface {
	SetAttributes(...attribute.KeyValue)
}

func sendGrouped(ctx context.Context, sig signal.Signal, grouped map[string][]ir.Record, deps SignalDeps, span spanRecorder) (HandleResponse, *HandleError) {
	totalRecords := 0
	tableNames := make([]string, 0, len(grouped))
	for table, records := range grouped {
		totalRecords += len(records)
		tableNames = append(tableNames, table)
	}
	sort.Strings(tableNames)
	span.SetAttributes(
		attribute.Int("records", totalRecords),
		attribute.String("tables", strings.Join(tableNames, ",")),
	)
	log.WithFields(log.Fields{"records": totalRecords, "tables": tableNames}).
		Debug("sending records to pipelines")

	// The pipeline call is the one the response reflects. Sidecar
	// writes only start once it is issued.
	result := deps.Pipeline.SendAll(ctx, grouped)

	for table, count := range result.Succeeded {
		metrics.RecordsTotal.WithLabelValues(table).Add(float64(count))
	}
	for table, errMsg := range result.Failed {
		log.WithFields(log.Fields{"table": table, "error": errMsg}).Warn("pipeline send failed")
		metrics.SendFailuresTotal.WithLabelValues(table).Inc()
	}

	runSidecars(ctx, grouped, deps)

	if deps.Registry != nil {
		clone := cloneGrouped(grouped)
		go deps.Registry.RegisterFromGrouped(clone)
	}

	log.WithFields(log.Fields{
		"succeeded": len(result.Succeeded),
		"failed":    len(result.Failed),
		"signal":    sig.String(),
	}).Info("request complete")

	resp := responseFromResult(result)
	metrics.RequestsTotal.WithLabelValues(sig.String(), resp.Status).Inc()
	return resp, nil
}

// runSidecars issues the hot-cache, aggregator and live-tail writes
// concurrently with each other, each on a clone of the grouped map.
// Their failures are counted and logged with the store name but never
// fail the request.
func runSidecars(ctx context.Context, grouped map[string][]ir.Record, deps SignalDeps) {
	type sidecar struct {
		name   string
		sender SidecarSender
	}
	sidecars := []sidecar{
		{"hot_cache", deps.HotCache},
		{"aggregator", deps.Aggregator},
		{"livetail", deps.LiveTail},
	}

	var wg sync.WaitGroup
	for _, sc := range sidecars {
		if sc.sender == nil || !sc.sender.Enabled() {
			continue
		}
		clone := cloneGrouped(grouped)
		wg.Add(1)
		go func(sc sidecar, clone map[string][]ir.Record) {
			defer wg.Done()
			result := sc.sender.SendAll(ctx, clone)
			for name, errMsg := range result.Failed {
				log.WithFields(log.Fields{"component": sc.name, "do_name": name, "error": errMsg}).
					Warn("sidecar write failed")
				metrics.SidecarFailuresTotal.WithLabelValues(sc.name).Inc()
			}
		}(sc, clone)
	}
	wg.Wait()
}

// cloneGrouped shallow-copies the map and slices; the rows themselves
// are not mutated past this point.
func cloneGrouped(grouped map[string][]ir.Record) map[string][]ir.Record {
	clone := make(map[string][]ir.Record, len(grouped))
	for table, records := range grouped {
		clone[table] = append([]ir.Record(nil), records...)
	}
	return clone
}

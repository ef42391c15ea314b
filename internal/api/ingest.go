// Copyright (C) NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.
package api

import (
	"io"
	"net/http"

	"github.com/otelgate/otelgate/internal/decode"
	"github.com/otelgate/otelgate/internal/metrics"
	"github.com/otelgate/otelgate/internal/util"
	"github.com/otelgate/otelgate/pkg/signal"
)

func (api *RestApi) ingestLogs(rw http.ResponseWriter, r *http.Request) {
	api.ingestSignal(signal.Logs, rw, r)
}

func (api *RestApi) ingestTraces(rw http.ResponseWriter, r *http.Request) {
	api.ingestSignal(signal.Traces, rw, r)
}

func (api *RestApi) ingestMetrics(rw http.ResponseWriter, r *http.Request) {
	api.ingestSignal(signal.Gauge, rw, r)
}

func (api *RestApi) ingestSignal(sig signal.Signal, rw http.ResponseWriter, r *http.Request) {
	body, gzipped, ok := readBody(rw, r)
	if !ok {
		return
	}

	format := decode.FormatFromContentType(r.Header.Get("Content-Type"))
	resp, err := HandleSignal(r.Context(), sig, body, gzipped, format, api.Deps)
	if err != nil {
		metrics.RequestsTotal.WithLabelValues(sig.String(), errorStatus(err)).Inc()
		handleError(err, err.HTTPStatus(), rw)
		return
	}

	writeJSON(rw, responseStatusCode(resp), resp)
}

func (api *RestApi) ingestHEC(rw http.ResponseWriter, r *http.Request) {
	body, gzipped, ok := readBody(rw, r)
	if !ok {
		return
	}

	resp, err := HandleHEC(r.Context(), body, gzipped, api.Deps)
	if err != nil {
		handleError(err, err.HTTPStatus(), rw)
		return
	}

	writeJSON(rw, responseStatusCode(resp), resp)
}

// readBody reads the request body up to one byte past the size cap so
// the handler can reject oversize payloads with the decompress error
// class instead of a truncated decode.
func readBody(rw http.ResponseWriter, r *http.Request) ([]byte, bool, bool) {
	body, err := io.ReadAll(io.LimitReader(r.Body, util.MaxDecompressedSize+1))
	if err != nil {
		handleError(err, http.StatusBadRequest, rw)
		return nil, false, false
	}
	gzipped := r.Header.Get("Content-Encoding") == "gzip"
	return body, gzipped, true
}

// responseStatusCode maps the response status to HTTP: partial stays
// 200 so the caller can see which tables lost records; a fully failed
// send is 502.
func responseStatusCode(resp HandleResponse) int {
	if resp.Status == "error" {
		return http.StatusBadGateway
	}
	return http.StatusOK
}

func errorStatus(err *HandleError) string {
	switch err.Kind {
	case ErrDecompress:
		return "decompress_error"
	case ErrDecode:
		return "decode_error"
	case ErrTransform:
		return "transform_error"
	}
	return "send_error"
}

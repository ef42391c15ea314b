// Copyright (C) NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.
package api

import (
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/otelgate/otelgate/internal/export"
)

const parquetContentType = "application/vnd.apache.parquet"

func (api *RestApi) exportLogs(rw http.ResponseWriter, r *http.Request) {
	api.exportSignal("logs", rw, r)
}

func (api *RestApi) exportTraces(rw http.ResponseWriter, r *http.Request) {
	api.exportSignal("traces", rw, r)
}

func (api *RestApi) exportGauge(rw http.ResponseWriter, r *http.Request) {
	api.exportSignal("gauge", rw, r)
}

func (api *RestApi) exportSum(rw http.ResponseWriter, r *http.Request) {
	api.exportSignal("sum", rw, r)
}

func (api *RestApi) exportSignal(sig string, rw http.ResponseWriter, r *http.Request) {
	params, perr := export.ParseParams(r.URL.Query())
	if perr != nil {
		exportError(perr, rw)
		return
	}

	result, perr := export.Run(api.HotCache, sig, params)
	if perr != nil {
		exportError(perr, rw)
		return
	}

	statusCode := http.StatusOK
	if result.Partial {
		statusCode = http.StatusPartialContent
	}

	header := rw.Header()
	header.Set("Content-Type", parquetContentType)
	header.Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", sig+"-export.parquet"))
	header.Set("X-Query-Partial", strconv.FormatBool(result.Partial))
	header.Set("X-Query-Row-Count", strconv.Itoa(result.RowCount))
	if len(result.FailedSources) > 0 {
		header.Set("X-Query-Failed-Sources", strings.Join(result.FailedSources, ","))
	}
	rw.WriteHeader(statusCode)
	rw.Write(result.Data)
}

// Copyright (C) NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Package config loads the gateway configuration: defaults, an
// optional JSON config file (schema-validated), then environment
// overrides for the deployment-facing options.
package config

import (
	"bytes"
	"encoding/json"
	"os"
	"strconv"

	log "github.com/sirupsen/logrus"
)

// ProgramConfig is the runtime configuration.
type ProgramConfig struct {
	// Address where the HTTP server will listen on.
	Addr string `json:"addr"`

	// Log level: debug, info, warn, error.
	LogLevel string `json:"loglevel"`

	// Bearer token for ingest auth. Empty disables authentication.
	AuthToken string `json:"auth-token"`

	// Per-table downstream pipeline endpoints.
	PipelineLogs   string `json:"pipeline-logs"`
	PipelineTraces string `json:"pipeline-traces"`
	PipelineGauge  string `json:"pipeline-gauge"`
	PipelineSum    string `json:"pipeline-sum"`

	// Token sent to the downstream pipeline.
	PipelineAuthToken string `json:"pipeline-auth-token"`

	// Feature flags for the sidecar write paths.
	HotCacheEnabled   bool `json:"hot-cache-enabled"`
	AggregatorEnabled bool `json:"aggregator-enabled"`
	LiveTailEnabled   bool `json:"livetail-enabled"`

	// Retention windows. Seconds for the hot cache (default 3600,
	// cap 604800), minutes for the aggregator (default 60, cap
	// 10080).
	HotCacheRetentionSeconds    int `json:"hot-cache-retention-seconds"`
	AggregatorRetentionMinutes  int `json:"aggregator-retention-minutes"`

	// Directory holding the store databases.
	DataDir string `json:"data-dir"`

	// Optional Event Hubs-class bus backend.
	NatsURL           string `json:"nats-url"`
	NatsSubjectPrefix string `json:"nats-subject-prefix"`

	// Optional Kinesis-class stream backend: table -> delivery
	// stream name. Takes precedence over the HTTP endpoints when
	// set.
	FirehoseStreams map[string]string `json:"firehose-streams"`

	// OTLP trace exporter endpoint for the gateway's own spans.
	TraceEndpoint string `json:"trace-endpoint"`
}

// Keys holds the active configuration.
var Keys = ProgramConfig{
	Addr:                       ":8080",
	LogLevel:                   "info",
	HotCacheRetentionSeconds:   3600,
	AggregatorRetentionMinutes: 60,
	DataDir:                    "./var",
}

// Init loads the optional config file and applies environment
// overrides. A missing file is fine; an invalid one is fatal.
func Init(flagConfigFile string) {
	raw, err := os.ReadFile(flagConfigFile)
	if err != nil {
		if !os.IsNotExist(err) {
			log.Fatal(err)
		}
	} else {
		Validate(configSchema, raw)
		dec := json.NewDecoder(bytes.NewReader(raw))
		dec.DisallowUnknownFields()
		if err := dec.Decode(&Keys); err != nil {
			log.Fatal(err)
		}
	}

	applyEnv()
	clampRetention()
}

func applyEnv() {
	setString := func(target *string, key string) {
		if v, ok := os.LookupEnv(key); ok {
			*target = v
		}
	}
	setBool := func(target *bool, key string) {
		if v, ok := os.LookupEnv(key); ok {
			*target = v == "true" || v == "1"
		}
	}
	setInt := func(target *int, key string) {
		if v, ok := os.LookupEnv(key); ok {
			if n, err := strconv.Atoi(v); err == nil {
				*target = n
			} else {
				log.WithField("var", key).Warnf("ignoring non-numeric value %q", v)
			}
		}
	}

	setString(&Keys.AuthToken, "AUTH_TOKEN")
	setString(&Keys.PipelineLogs, "PIPELINE_LOGS")
	setString(&Keys.PipelineTraces, "PIPELINE_TRACES")
	setString(&Keys.PipelineGauge, "PIPELINE_GAUGE")
	setString(&Keys.PipelineSum, "PIPELINE_SUM")
	setString(&Keys.PipelineAuthToken, "PIPELINE_AUTH_TOKEN")
	setBool(&Keys.HotCacheEnabled, "HOT_CACHE_ENABLED")
	setBool(&Keys.AggregatorEnabled, "AGGREGATOR_ENABLED")
	setBool(&Keys.LiveTailEnabled, "LIVETAIL_ENABLED")
	setInt(&Keys.HotCacheRetentionSeconds, "HOT_CACHE_RETENTION_SECONDS")
	setInt(&Keys.AggregatorRetentionMinutes, "AGGREGATOR_RETENTION_MINUTES")
	setString(&Keys.NatsURL, "NATS_URL")
	setString(&Keys.DataDir, "DATA_DIR")
}

func clampRetention() {
	if Keys.HotCacheRetentionSeconds <= 0 {
		Keys.HotCacheRetentionSeconds = 3600
	}
	if Keys.HotCacheRetentionSeconds > 604_800 {
		Keys.HotCacheRetentionSeconds = 604_800
	}
	if Keys.AggregatorRetentionMinutes <= 0 {
		Keys.AggregatorRetentionMinutes = 60
	}
	if Keys.AggregatorRetentionMinutes > 10_080 {
		Keys.AggregatorRetentionMinutes = 10_080
	}
}

// Copyright (C) NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.
package main

import (
	"context"
	"errors"
	"io"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gorilla/handlers"
	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	log "github.com/sirupsen/logrus"

	"github.com/otelgate/otelgate/internal/aggregator"
	"github.com/otelgate/otelgate/internal/api"
	"github.com/otelgate/otelgate/internal/config"
	"github.com/otelgate/otelgate/internal/hotcache"
	"github.com/otelgate/otelgate/internal/livetail"
	"github.com/otelgate/otelgate/internal/pipeline"
	"github.com/otelgate/otelgate/internal/registry"
	"github.com/otelgate/otelgate/internal/taskmanager"
	sig "github.com/otelgate/otelgate/pkg/signal"
)

func runServer() {
	if err := os.MkdirAll(config.Keys.DataDir, 0o755); err != nil {
		log.Fatalf("could not create data directory: %s", err.Error())
	}

	if err := taskmanager.Start(); err != nil {
		log.Fatalf("could not start task scheduler: %s", err.Error())
	}
	defer taskmanager.Shutdown()

	shutdownTracing := initTracing()
	defer shutdownTracing()

	// Pipeline sender: Firehose stream or NATS bus when configured,
	// HTTPS NDJSON otherwise.
	var sender pipeline.Sender
	if len(config.Keys.FirehoseStreams) > 0 {
		firehoseSender, err := pipeline.NewFirehoseSenderFromConfig(
			context.Background(), config.Keys.FirehoseStreams)
		if err != nil {
			log.Fatalf("could not build firehose client: %s", err.Error())
		}
		sender = firehoseSender
	} else if config.Keys.NatsURL != "" {
		natsSender, err := pipeline.NewNATSSender(config.Keys.NatsURL, config.Keys.NatsSubjectPrefix)
		if err != nil {
			log.Fatalf("could not connect to NATS: %s", err.Error())
		}
		defer natsSender.Close()
		sender = natsSender
	} else {
		sender = pipeline.NewHTTPSender(map[sig.Signal]string{
			sig.Logs:   config.Keys.PipelineLogs,
			sig.Traces: config.Keys.PipelineTraces,
			sig.Gauge:  config.Keys.PipelineGauge,
			sig.Sum:    config.Keys.PipelineSum,
		}, config.Keys.PipelineAuthToken)
	}

	hotCacheManager := hotcache.NewManager(config.Keys.DataDir,
		time.Duration(config.Keys.HotCacheRetentionSeconds)*time.Second)
	defer hotCacheManager.Close()

	aggregatorManager := aggregator.NewManager(config.Keys.DataDir,
		time.Duration(config.Keys.AggregatorRetentionMinutes)*time.Minute)
	defer aggregatorManager.Close()

	liveTailManager := livetail.NewManager()

	registryStore, err := registry.Open(config.Keys.DataDir + "/registry.db")
	if err != nil {
		log.Fatalf("could not open registry: %s", err.Error())
	}
	defer registryStore.Close()
	registrySender := registry.NewSender(registryStore)

	restApi := &api.RestApi{
		Deps: api.SignalDeps{
			Pipeline:   sender,
			HotCache:   hotcache.NewSender(hotCacheManager, config.Keys.HotCacheEnabled),
			Aggregator: aggregator.NewSender(aggregatorManager, config.Keys.AggregatorEnabled),
			LiveTail:   livetail.NewSender(liveTailManager, config.Keys.LiveTailEnabled),
			Registry:   registrySender,
		},
		HotCache:   hotCacheManager,
		Aggregator: aggregatorManager,
		LiveTail:   liveTailManager,
		Registry:   registrySender,
		AuthToken:  config.Keys.AuthToken,
	}

	r := mux.NewRouter()
	restApi.MountRoutes(r)
	r.Handle("/metrics", promhttp.Handler()).Methods(http.MethodGet)

	handler := handlers.CustomLoggingHandler(os.Stderr, handlers.CompressHandler(r),
		func(w io.Writer, params handlers.LogFormatterParams) {
			if params.StatusCode >= 500 {
				log.Warnf("%s %s (%d, %.02fkb)",
					params.Request.Method, params.URL.RequestURI(),
					params.StatusCode, float32(params.Size)/1024)
			} else {
				log.Debugf("%s %s (%d, %.02fkb)",
					params.Request.Method, params.URL.RequestURI(),
					params.StatusCode, float32(params.Size)/1024)
			}
		})

	server := &http.Server{
		ReadHeaderTimeout: 10 * time.Second,
		Handler:           handler,
		Addr:              config.Keys.Addr,
	}

	go func() {
		log.WithField("addr", config.Keys.Addr).Info("otelgate listening")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("starting server failed: %v", err)
		}
	}()

	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM)
	<-sigs

	log.Info("shutting down")
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(ctx); err != nil {
		log.WithError(err).Warn("server shutdown failed")
	}
}

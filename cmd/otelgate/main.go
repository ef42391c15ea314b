// Copyright (C) NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.
package main

import (
	"flag"
	"fmt"
	"os"

	"github.com/google/gops/agent"
	"github.com/joho/godotenv"
	log "github.com/sirupsen/logrus"

	"github.com/otelgate/otelgate/internal/config"
)

const version = "1.1.0"

var (
	flagConfigFile string
	flagLogLevel   string
	flagGops       bool
	flagVersion    bool
)

func cliInit() {
	flag.StringVar(&flagConfigFile, "config", "./config.json", "Specify alternative path to `config.json`")
	flag.StringVar(&flagLogLevel, "loglevel", "", "Sets the logging level: `debug, info, warn, error`")
	flag.BoolVar(&flagGops, "gops", false, "Listen via github.com/google/gops/agent")
	flag.BoolVar(&flagVersion, "version", false, "Show version information and exit")
	flag.Parse()
}

func main() {
	cliInit()

	if flagVersion {
		fmt.Printf("Version:\t%s\n", version)
		os.Exit(0)
	}

	// Apply the .env file before config so env overrides see it.
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		log.WithError(err).Warn("could not load .env file")
	}

	config.Init(flagConfigFile)
	if flagLogLevel != "" {
		config.Keys.LogLevel = flagLogLevel
	}
	setupLogging(config.Keys.LogLevel)

	if flagGops {
		if err := agent.Listen(agent.Options{}); err != nil {
			log.Fatalf("gops/agent.Listen() failed: %s", err.Error())
		}
	}

	runServer()
}

func setupLogging(level string) {
	log.SetFormatter(&log.TextFormatter{FullTimestamp: true})
	switch level {
	case "debug":
		log.SetLevel(log.DebugLevel)
	case "warn":
		log.SetLevel(log.WarnLevel)
	case "error":
		log.SetLevel(log.ErrorLevel)
	default:
		log.SetLevel(log.InfoLevel)
	}
}

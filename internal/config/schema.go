// Copyright (C) NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.
package config

const configSchema = `{
	"$schema": "http://json-schema.org/draft-07/schema#",
	"title": "otelgate config",
	"type": "object",
	"properties": {
		"addr": { "type": "string" },
		"loglevel": { "type": "string", "enum": ["debug", "info", "warn", "error"] },
		"auth-token": { "type": "string" },
		"pipeline-logs": { "type": "string" },
		"pipeline-traces": { "type": "string" },
		"pipeline-gauge": { "type": "string" },
		"pipeline-sum": { "type": "string" },
		"pipeline-auth-token": { "type": "string" },
		"hot-cache-enabled": { "type": "boolean" },
		"aggregator-enabled": { "type": "boolean" },
		"livetail-enabled": { "type": "boolean" },
		"hot-cache-retention-seconds": { "type": "integer", "minimum": 1, "maximum": 604800 },
		"aggregator-retention-minutes": { "type": "integer", "minimum": 1, "maximum": 10080 },
		"data-dir": { "type": "string" },
		"nats-url": { "type": "string" },
		"nats-subject-prefix": { "type": "string" },
		"firehose-streams": {
			"type": "object",
			"additionalProperties": { "type": "string" }
		},
		"trace-endpoint": { "type": "string" }
	},
	"additionalProperties": false
}`

// Copyright (C) NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved. This file is part of cc-backend.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package nats

import (
	"bytes"
	"encoding/json"

	"github.com/clustercockpit/telemetry-enrichment/pkg/log"
)

// NatsConfig holds the configuration for connecting to a NATS server and
// the JetStream durable consumer the ingest worker pulls batches from.
type NatsConfig struct {
	Address       string `json:"address"`         // NATS server address (e.g., "nats://localhost:4222")
	Username      string `json:"username"`        // Username for authentication (optional)
	Password      string `json:"password"`        // Password for authentication (optional)
	CredsFilePath string `json:"creds-file-path"` // Path to credentials file (optional)

	Stream        string `json:"stream"`          // JetStream stream name holding telemetry batches
	Subject       string `json:"subject"`         // Subject batches are published on
	Durable       string `json:"durable"`         // Durable consumer name
	PullBatchSize int    `json:"pull-batch-size"` // Max messages fetched per pull
}

// Keys holds the global NATS configuration loaded via Init.
var Keys NatsConfig

const ConfigSchema = `{
    "type": "object",
    "description": "Configuration for the NATS JetStream intake queue.",
    "properties": {
        "address": {"type": "string"},
        "username": {"type": "string"},
        "password": {"type": "string"},
        "creds-file-path": {"type": "string"},
        "stream": {"type": "string"},
        "subject": {"type": "string"},
        "durable": {"type": "string"},
        "pull-batch-size": {"type": "integer"}
    },
    "required": ["address", "stream", "subject", "durable"]
}`

// Init initializes the global Keys configuration from JSON.
func Init(rawConfig json.RawMessage) error {
	Keys = NatsConfig{PullBatchSize: 64}

	if rawConfig != nil {
		dec := json.NewDecoder(bytes.NewReader(rawConfig))
		dec.DisallowUnknownFields()
		if err := dec.Decode(&Keys); err != nil {
			log.Errorf("nats: error initializing client config: %s", err.Error())
			return err
		}
	}

	return nil
}

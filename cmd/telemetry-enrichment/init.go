// Copyright (C) NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.
package main

import (
	"os"

	"github.com/clustercockpit/telemetry-enrichment/pkg/log"
)

const envString = `
# Base64 encoded Ed25519 public key used to verify incoming bearer tokens.
# DO NOT USE THIS ONE IN PRODUCTION! Generate your own keypair and hand the
# private half to the upstream gateway that signs webhook requests.
TELEMETRY_JWT_PUBLIC_KEY=""
`

const configString = `
{
    "addr": ":8080",
    "db-driver": "sqlite3",
    "db": "./var/telemetry.db",
    "nats": {
        "address": "nats://localhost:4222",
        "stream": "TELEMETRY",
        "subject": "telemetry.batches",
        "durable": "ingest-worker"
    },
    "redis": {
        "address": "localhost:6379"
    }
}
`

func initEnv() {
	if _, err := os.Stat("var"); err == nil {
		log.Fatal("Directory ./var already exists. Cautiously exiting application initialization.")
	}

	if err := os.WriteFile("config.json", []byte(configString), 0o644); err != nil {
		log.Fatalf("could not write default ./config.json: %s", err.Error())
	}

	if err := os.WriteFile(".env", []byte(envString), 0o600); err != nil {
		log.Fatalf("could not write default ./.env: %s", err.Error())
	}

	if err := os.Mkdir("var", 0o755); err != nil {
		log.Fatalf("could not create default ./var folder: %s", err.Error())
	}

	log.Info("Wrote ./config.json, ./.env and created ./var. Edit them, then start the server without -init.")
}

// Copyright (C) NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.
package config

import (
	"bytes"
	"encoding/json"
	"os"

	"github.com/clustercockpit/telemetry-enrichment/pkg/log"
	"github.com/clustercockpit/telemetry-enrichment/pkg/schema"
)

// Keys holds the process-wide configuration, populated by Init and read
// by every subsystem at startup. Nothing mutates it afterwards.
var Keys schema.ProgramConfig = schema.ProgramConfig{
	Addr:                  ":8080",
	AuthBypassIPs:         []string{},
	DisableAuthentication: false,
	DBDriver:              "sqlite3",
	DB:                    "./var/telemetry.db",
	Validate:              true,
	JwtConfig: &schema.JWTAuthConfig{
		SigningSecretEnv: "TELEMETRY_JWT_PUBLIC_KEY",
	},
	Redis: schema.RedisConfig{
		Address:        "localhost:6379",
		DBPosition:     0,
		DBMetrics:      1,
		DBIPIntel:      2,
		DBWeatherCache: 3,
	},
	Weather: schema.WeatherConfig{
		PrimaryURL:       "https://api.open-meteo.com/v1/forecast",
		MarineURL:        "https://marine-api.open-meteo.com/v1/marine",
		FallbackURL:      "https://wttr.in",
		PrimaryTimeout:   "5s",
		MarineTimeout:    "5s",
		FallbackTimeout:  "4s",
		CooldownSeconds:  60,
		StaleSeconds:     3600,
		MovementThreshKm: 1.0,
		DailyQuota:       9000,
		CacheDir:         "./var/weather-cache",
		CacheMaxFiles:    100,
		CacheMaxSizeMB:   50,
	},
	IPIntel: schema.IPIntelConfig{
		URL:      "http://ip-api.com/json",
		Timeout:  "3s",
		CacheTTL: "24h",
	},
	Trimmer: schema.TrimmerConfig{
		MaxSizeBytes:    10 * 1024 * 1024 * 1024,
		TargetSizeBytes: 9 * 1024 * 1024 * 1024,
		Interval:        "6h",
		ChunkRows:       1000,
	},
	Snapshot: schema.SnapshotConfig{
		Interval: "15m",
		LockTTL:  "5m",
	},
	MetricsSampleInterval: "15s",
}

// Init loads and validates the configuration file at flagConfigFile, if it
// exists, merging it on top of the defaults above. A missing file is not
// an error: the defaults are used as-is.
func Init(flagConfigFile string) {
	raw, err := os.ReadFile(flagConfigFile)
	if err != nil {
		if !os.IsNotExist(err) {
			log.Fatalf("reading config file: %v", err)
		}
		return
	}

	if Keys.Validate {
		if err := schema.Validate(schema.Config, bytes.NewReader(raw)); err != nil {
			log.Fatalf("validating config: %v", err)
		}
	}

	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&Keys); err != nil {
		log.Fatalf("decoding config: %v", err)
	}

	if Keys.DBDriver != "sqlite3" && Keys.DBDriver != "mysql" {
		log.Fatalf("unsupported db-driver %q, want sqlite3 or mysql", Keys.DBDriver)
	}
}

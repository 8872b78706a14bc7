// Copyright (C) NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.
package schema

import (
	"encoding/json"
)

// JWTAuthConfig configures the bearer-token authenticator used by the read
// and webhook-intake APIs. Tokens are issued upstream by the gateway this
// service trusts; this process only ever verifies them.
type JWTAuthConfig struct {
	// Name of the environment variable holding the base64-encoded Ed25519
	// public key used to verify incoming bearer tokens. Left unset (or
	// pointing at an unset variable), every non-localhost request is
	// rejected rather than silently accepted.
	SigningSecretEnv string `json:"signing-secret-env"`
}

// WeatherConfig configures the weather coordinator: provider
// endpoints/timeouts, the disk cache and the daily quota.
// CooldownSeconds, StaleSeconds and MovementThreshKm are accepted but not
// read; the re-fetch gate uses fixed thresholds (60s cooldown, 3600s
// staleness, 1km movement).
type WeatherConfig struct {
	PrimaryURL       string `json:"primary-url"`
	MarineURL        string `json:"marine-url"`
	FallbackURL      string `json:"fallback-url"`
	PrimaryTimeout   string `json:"primary-timeout"`
	MarineTimeout    string `json:"marine-timeout"`
	FallbackTimeout  string `json:"fallback-timeout"`
	CooldownSeconds  int     `json:"cooldown-seconds"`
	StaleSeconds     int     `json:"stale-seconds"`
	MovementThreshKm float64 `json:"movement-threshold-km"`
	DailyQuota       int     `json:"daily-quota"`
	CacheDir         string  `json:"cache-dir"`
	CacheMaxFiles    int     `json:"cache-max-files"`
	CacheMaxSizeMB   int     `json:"cache-max-size-mb"`
}

// IPIntelConfig configures the IP geolocation/ISP lookup coordinator.
type IPIntelConfig struct {
	URL        string `json:"url"`
	Timeout    string `json:"timeout"`
	CacheTTL   string `json:"cache-ttl"`
}

// RedisConfig configures the shared KV used by position/quota/batch-base
// caches, the metrics ring and the GeoJSON snapshot lock.
type RedisConfig struct {
	Address           string `json:"address"`
	Password          string `json:"password"`
	DBPosition        int    `json:"db-position"`
	DBMetrics         int    `json:"db-metrics"`
	DBIPIntel         int    `json:"db-ip-intel"`
	DBWeatherCache    int    `json:"db-weather-cache"`
}

// TrimmerConfig configures the database trimmer background job.
type TrimmerConfig struct {
	MaxSizeBytes    int64  `json:"max-size-bytes"`
	TargetSizeBytes int64  `json:"target-size-bytes"`
	Interval        string `json:"interval"`
	ChunkRows       int    `json:"chunk-rows"`
}

// SnapshotConfig configures the periodic GeoJSON snapshot job. Its internal
// rendering is out of scope; this only describes cadence, locking and the
// optional upload target.
type SnapshotConfig struct {
	Interval    string `json:"interval"`
	LockTTL     string `json:"lock-ttl"`
	OutputPath  string `json:"output-path"`
	S3Bucket    string `json:"s3-bucket"`
	S3Region    string `json:"s3-region"`
}

// Format of the configuration (file). See below for the defaults.
type ProgramConfig struct {
	// Address where the http server will listen on (for example: 'localhost:8080').
	Addr string `json:"addr"`

	// Client addresses that bypass bearer-token auth entirely (always
	// includes 127.0.0.1/::1 regardless of this list).
	AuthBypassIPs []string `json:"auth-bypass-ips"`

	// Drop root permissions once the port was taken.
	User  string `json:"user"`
	Group string `json:"group"`

	// Disable authentication entirely (for local development).
	DisableAuthentication bool `json:"disable-authentication"`

	// 'sqlite3' or 'mysql' (mysql works for mariadb as well)
	DBDriver string `json:"db-driver"`

	// For sqlite3 a filename, for mysql a DSN (without query parameters).
	DB string `json:"db"`

	// Validate json input (config, ingest envelopes) against schema
	Validate bool `json:"validate"`

	JwtConfig *JWTAuthConfig `json:"jwt"`

	Nats     json.RawMessage `json:"nats"`
	Redis    RedisConfig     `json:"redis"`
	Weather  WeatherConfig   `json:"weather"`
	IPIntel  IPIntelConfig   `json:"ip-intel"`
	Trimmer  TrimmerConfig   `json:"trimmer"`
	Snapshot SnapshotConfig  `json:"snapshot"`

	// How often the capped operational metrics ring is sampled into
	// Prometheus gauges.
	MetricsSampleInterval string `json:"metrics-sample-interval"`

	// If both are non-empty, serve HTTPS using these certificates.
	HttpsCertFile string `json:"https-cert-file"`
	HttpsKeyFile  string `json:"https-key-file"`
}

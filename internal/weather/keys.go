// Copyright (C) NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Package weather implements the weather enrichment coordinator:
// per-device movement/expiry gating, a shared geo-bucketed disk cache
// accelerated by an in-process LRU layer, a global daily fetch quota, and
// a dual-provider (Open-Meteo primary, wttr.in fallback) fetch pipeline
// guarded by independent circuit breakers.
package weather

import "time"

// CacheableKeys is the fixed subset of weather fields persisted to the
// geo-bucketed disk cache. Anything else attached to a record by a
// provider (diagnostic-only fields) is never written to disk.
var CacheableKeys = map[string]bool{
	"temperature":           true,
	"humidity":              true,
	"apparent_temp":         true,
	"precipitation":         true,
	"code":                  true,
	"wind_speed":             true,
	"wind_direction":         true,
	"marine_wave_height":     true,
	"marine_wave_direction":  true,
	"marine_wave_period":     true,
}

const (
	movementThresholdKm   = 1.0
	staleSeconds          = 3600
	cooldownSeconds       = 60
	cacheBucketRadiusKm   = 1.0
	cacheBucketMaxAgeSecs = 3600
	dailyQuotaDefault     = 9000
	devicePositionTTL     = 30 * 24 * time.Hour
)

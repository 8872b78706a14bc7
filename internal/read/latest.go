// Copyright (C) NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.
package read

import (
	"context"
	"fmt"
	"time"

	"github.com/clustercockpit/telemetry-enrichment/internal/freshness"
	"github.com/clustercockpit/telemetry-enrichment/internal/store"
	"github.com/clustercockpit/telemetry-enrichment/internal/transform"
)

// ErrDeviceNotFound is returned when no latest-state row exists for a
// device - the caller (HTTP layer) turns this into a 404.
var ErrDeviceNotFound = fmt.Errorf("read: device not found")

// RenderLatest builds the human-facing latest-state projection for a
// device: ages are attached under diagnostics.data_freshness, app_settings
// is reshaped into its grouped form with long-named age keys, position is
// rounded to the decimal precision its geohash carries, and the whole
// thing comes out in the fixed key order.
func RenderLatest(ctx context.Context, conn *store.DBConnection, deviceID string, now time.Time) (*OrderedMap, error) {
	latest, err := conn.Latest(ctx, deviceID)
	if err != nil {
		return nil, err
	}
	if latest == nil {
		return nil, ErrDeviceNotFound
	}

	plainRaw, agesRaw := freshness.ParseWithAges(latest.FreshnessNode, now.Unix())
	plain := asMap(plainRaw)
	ages := asMap(agesRaw)

	if appAges, ok := ages["app_settings"].(map[string]interface{}); ok {
		ages["app_settings"] = transform.RenameAppSettingsFreshnessKeys(appAges)
	}

	applyWeatherAgeOverride(plain, ages, now)

	if rawSettings, ok := plain["app_settings"]; ok {
		plain["app_settings"] = transform.GroupAppSettings(asMap(rawSettings))
	}

	roundCoordinates(plain)

	diagnosticsBlock := asMap(plain["diagnostics"])
	delete(plain, "diagnostics")
	diagnosticsBlock["data_freshness"] = cleanupEmpty(ages)
	plain["diagnostics"] = diagnosticsBlock

	cleaned := asMap(cleanupEmpty(plain))
	ordered := applyKeyOrder(cleaned, "data")
	return ordered.(*OrderedMap), nil
}

// applyWeatherAgeOverride replaces the raw weather_request_timestamp_utc
// age (seconds since the fetch was cached) with
// weather_data_actual_age_in_seconds, computed straight from the stored
// fetch instant - the freshness age only tells us when the field last
// changed value, not how stale the weather observation itself is.
func applyWeatherAgeOverride(plain, ages map[string]interface{}, now time.Time) {
	diagAges, ok := ages["diagnostics"].(map[string]interface{})
	if !ok {
		return
	}
	weatherAges, ok := diagAges["weather"].(map[string]interface{})
	if !ok {
		return
	}

	fetchTsRaw, ok := getDotted(plain, "diagnostics.weather.weather_request_timestamp_utc")
	if !ok {
		return
	}
	fetchTs, ok := parseWeatherFetchTimestamp(fetchTsRaw)
	if !ok {
		return
	}

	delete(weatherAges, "weather_request_timestamp_utc_age_in_seconds")
	weatherAges["weather_data_actual_age_in_seconds"] = int64(now.Sub(fetchTs).Round(time.Second).Seconds())

	if len(weatherAges) == 0 {
		delete(diagAges, "weather")
	}
}

// parseWeatherFetchTimestamp mirrors transform.parseWeatherFetchTimestamp:
// the weather coordinator stores its fetch instant as an RFC3339 string
// (the disk cache's cached_at), with a bare Unix-seconds number also
// accepted for records that set it directly.
func parseWeatherFetchTimestamp(v interface{}) (time.Time, bool) {
	if s, ok := v.(string); ok {
		if t, err := time.Parse(time.RFC3339, s); err == nil {
			return t, true
		}
	}
	if n, ok := v.(float64); ok {
		return time.Unix(int64(n), 0).UTC(), true
	}
	return time.Time{}, false
}

// roundCoordinates rounds position.latitude/longitude to the decimal
// precision implied by the geohash length the device last reported,
// defaulting to full precision when no geohash fix has ever been seen.
func roundCoordinates(plain map[string]interface{}) {
	position, ok := plain["position"].(map[string]interface{})
	if !ok {
		return
	}

	var precisionMeters float64
	if v, ok := position["geohash_precision_in_meters"].(float64); ok {
		precisionMeters = v
	}
	decimals := transform.CoordinatePrecision(precisionMeters)

	if lat, ok := position["latitude"].(float64); ok {
		position["latitude"] = transform.RoundTo(lat, decimals)
	}
	if lon, ok := position["longitude"].(float64); ok {
		position["longitude"] = transform.RoundTo(lon, decimals)
	}
}

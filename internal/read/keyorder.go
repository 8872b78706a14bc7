// Copyright (C) NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Package read implements the read-side projections: rendering the
// stored freshness payload into the grouped, human-facing latest/history
// views the HTTP layer serves.
package read

import "sort"

// keyOrders is the fixed per-level rendering order used to present the
// grouped latest/history views in a stable, human-friendly sequence
// rather than arbitrary map iteration order.
var keyOrders = map[string][]string{
	"data": {"device_name", "position", "network", "power", "weather", "device_state", "sensors", "app_settings", "ip_intel"},
	"position": {
		"latitude", "longitude", "altitude_m", "accuracy_m", "speed_kmh",
		"elevation_m", "timezone_utc_offset_hours", "geohash_precision_in_meters",
	},
	"network": {"currently_used_active_network", "cellular", "wifi", "bandwidth_down_mbps", "bandwidth_up_mbps"},
	"cellular": {
		"type", "operator", "signal_strength_in_dbm", "quality",
		"mcc", "mnc", "cell_id", "tac", "timing_advance",
	},
	"wifi": {"ssid", "bssid", "frequency_mhz", "rssi_dbm", "standard", "throughput_mbps"},
	"power": {"battery_percent", "capacity_in_mah", "calculated_leftover_capacity_in_mah", "charging_state", "power_save_mode"},
	"weather": {
		"temperature_in_celsius", "apparent_temperature_in_celsius", "temperature_assessment",
		"wind_chill_in_celsius", "humidity_percent", "precipitation_mm", "precipitation_type",
		"precipitation_intensity", "weather_code", "weather_description", "wind_speed_ms",
		"wind_direction_deg", "wind_compass", "wind_description", "wind_gusts_ms",
		"pressure_msl_hpa", "cloud_cover_percent", "marine", "air_quality", "local_time",
		"weather_fetch_lat", "weather_fetch_lon",
	},
	"marine":      {"wave_height_m", "wave_direction_deg", "wave_period_s"},
	"air_quality": {"us_aqi", "class", "pm2_5", "carbon_monoxide", "nitrogen_dioxide", "sulphur_dioxide", "ozone"},
	"diagnostics": {"timestamps", "weather", "ingest_request_id", "ingest_warnings", "data_freshness"},
}

// applyKeyOrder recursively reshapes data into an OrderedMap with keys
// inserted in the level's fixed order first, then any remaining keys
// alphabetically - matching _apply_custom_sorting exactly, but surviving
// through to the actual JSON response (a plain Go map would not).
func applyKeyOrder(data interface{}, levelKey string) interface{} {
	m, ok := data.(map[string]interface{})
	if !ok {
		if list, isList := data.([]interface{}); isList {
			out := make([]interface{}, len(list))
			for i, item := range list {
				out[i] = applyKeyOrder(item, levelKey)
			}
			return out
		}
		return data
	}

	order := keyOrders[levelKey]
	out := NewOrderedMap()

	seen := make(map[string]bool, len(order))
	for _, k := range order {
		seen[k] = true
		if v, present := m[k]; present {
			out.Set(k, applyKeyOrder(v, k))
		}
	}

	remaining := make([]string, 0, len(m))
	for k := range m {
		if !seen[k] {
			remaining = append(remaining, k)
		}
	}
	sort.Strings(remaining)
	for _, k := range remaining {
		out.Set(k, applyKeyOrder(m[k], k))
	}

	return out
}

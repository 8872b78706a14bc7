// Copyright (C) NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Package transform implements the payload transformer: it turns a
// compact raw wire record plus the device's prior plain state (and any
// weather/IP enrichment already attached to raw) into the full plain
// state for that event, applying carry-forward wherever a compact key is
// absent or carries its sentinel "not present" value.
package transform

import (
	"fmt"
	"strconv"
	"time"

	"github.com/clustercockpit/telemetry-enrichment/internal/decode"
)

// sentinelKind selects which "absent" convention a raw field uses.
type sentinelKind int

const (
	sentinelNone    sentinelKind = iota // every present value, including zero, is meaningful
	sentinelNegOne                      // -1 means absent (signal/quality-style integers)
	sentinelEmpty                       // "" means absent (strings)
	sentinelZero                        // 0 means absent (quantities that are never legitimately zero)
)

type fieldSpec struct {
	rawKey     string
	target     string // dotted path in the output plain tree
	sentinel   sentinelKind
	mapper     func(v interface{}) (interface{}, error)
	priorPath  string // defaults to target when empty
}

func (f fieldSpec) resolvePriorPath() string {
	if f.priorPath != "" {
		return f.priorPath
	}
	return f.target
}

func isSentinel(kind sentinelKind, v interface{}) bool {
	switch kind {
	case sentinelNegOne:
		n, ok := asNumber(v)
		return ok && n == -1
	case sentinelEmpty:
		s, ok := v.(string)
		return ok && s == ""
	case sentinelZero:
		n, ok := asNumber(v)
		return ok && n == 0
	default:
		return false
	}
}

func asNumber(v interface{}) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case int:
		return float64(n), true
	case string:
		f, err := strconv.ParseFloat(n, 64)
		return f, err == nil
	default:
		return 0, false
	}
}

// parseWeatherFetchTimestamp reads the weather coordinator's fetch instant.
// It is carried as an RFC3339 string (the disk cache's cached_at / the
// coordinator's own time.Now().UTC().Format(time.RFC3339)), but a bare
// Unix-seconds number is also accepted for records that set it directly.
func parseWeatherFetchTimestamp(v interface{}) (time.Time, bool) {
	if s, ok := v.(string); ok {
		if t, err := time.Parse(time.RFC3339, s); err == nil {
			return t, true
		}
	}
	if n, ok := asNumber(v); ok {
		return time.Unix(int64(n), 0).UTC(), true
	}
	return time.Time{}, false
}

func parseFloatString(v interface{}) (interface{}, error) {
	f, ok := asNumber(v)
	if !ok {
		return nil, fmt.Errorf("not a number: %v", v)
	}
	return f, nil
}

func negate(v interface{}) (interface{}, error) {
	f, ok := asNumber(v)
	if !ok {
		return nil, fmt.Errorf("not a number: %v", v)
	}
	return -f, nil
}

func timesHundred(v interface{}) (interface{}, error) {
	f, ok := asNumber(v)
	if !ok {
		return nil, fmt.Errorf("not a number: %v", v)
	}
	return f * 100, nil
}

func intLabel(table map[int]string) func(v interface{}) (interface{}, error) {
	return func(v interface{}) (interface{}, error) {
		f, ok := asNumber(v)
		if !ok {
			return nil, fmt.Errorf("not a number: %v", v)
		}
		code := int(f)
		if label, ok := table[code]; ok {
			return label, nil
		}
		return table[0], nil
	}
}

func base62ID(v interface{}) (interface{}, error) {
	s, ok := v.(string)
	if !ok {
		return nil, fmt.Errorf("not a string: %v", v)
	}
	n, err := decode.DecodeBase62(s)
	if err != nil {
		return nil, err
	}
	return n.String(), nil
}

// fieldTable is the single table-driven mapping from compact wire keys to
// enriched output paths. The transformer walks it once per record; there
// is no dispatch on runtime types beyond what each mapper does internally.
var fieldTable = []fieldSpec{
	{rawKey: "a", target: "position.altitude_m", sentinel: sentinelNone},
	{rawKey: "ac", target: "position.accuracy_m", sentinel: sentinelNone},
	{rawKey: "s", target: "position.speed_kmh", sentinel: sentinelNone},
	{rawKey: "elevation", target: "position.elevation_m", sentinel: sentinelNone},
	{rawKey: "n", target: "device_name", sentinel: sentinelEmpty},

	{rawKey: "t", target: "network.cellular.type", sentinel: sentinelZero, mapper: intLabel(CellularTypeLabel)},
	{rawKey: "o", target: "network.cellular.operator", sentinel: sentinelEmpty},
	{rawKey: "r", target: "network.cellular.signal_strength_in_dbm", sentinel: sentinelNegOne, mapper: negate},
	{rawKey: "rq", target: "network.cellular.quality", sentinel: sentinelNegOne},
	{rawKey: "mc", target: "network.cellular.mcc", sentinel: sentinelNegOne},
	{rawKey: "mn", target: "network.cellular.mnc", sentinel: sentinelNegOne},
	{rawKey: "ci", target: "network.cellular.cell_id", sentinel: sentinelEmpty, mapper: base62ID},
	{rawKey: "tc", target: "network.cellular.tac", sentinel: sentinelNegOne},
	{rawKey: "ta", target: "network.cellular.timing_advance", sentinel: sentinelNegOne},
	{rawKey: "d", target: "network.bandwidth_down_mbps", sentinel: sentinelNegOne},
	{rawKey: "u", target: "network.bandwidth_up_mbps", sentinel: sentinelNegOne},

	{rawKey: "wn", target: "network.wifi.ssid", sentinel: sentinelEmpty},
	{rawKey: "wf", target: "network.wifi.frequency_mhz", sentinel: sentinelNegOne},
	{rawKey: "wr", target: "network.wifi.rssi_dbm", sentinel: sentinelNegOne},
	{rawKey: "ws", target: "network.wifi.standard", sentinel: sentinelZero, mapper: intLabel(WifiStandardLabel)},
	{rawKey: "wt", target: "network.wifi.throughput_mbps", sentinel: sentinelNegOne},

	{rawKey: "p", target: "power.battery_percent", sentinel: sentinelNegOne},
	{rawKey: "c", target: "power.capacity_in_mah", sentinel: sentinelNegOne, mapper: timesHundred},
	{rawKey: "cs", target: "power.charging_state", sentinel: sentinelNegOne, mapper: intLabel(ChargingStateLabel)},
	{rawKey: "pm", target: "power.power_save_mode", sentinel: sentinelNone},

	{rawKey: "temperature", target: "weather.temperature_in_celsius", sentinel: sentinelNone},
	{rawKey: "humidity", target: "weather.humidity_percent", sentinel: sentinelNone},
	{rawKey: "apparent_temp", target: "weather.apparent_temperature_in_celsius", sentinel: sentinelNone},
	{rawKey: "precipitation", target: "weather.precipitation_mm", sentinel: sentinelNone},
	{rawKey: "code", target: "weather.weather_code", sentinel: sentinelNone},
	{rawKey: "wind_speed", target: "weather.wind_speed_ms", sentinel: sentinelNone},
	{rawKey: "wind_direction", target: "weather.wind_direction_deg", sentinel: sentinelNone},
	{rawKey: "wind_gusts", target: "weather.wind_gusts_ms", sentinel: sentinelNone},
	{rawKey: "pressure_msl", target: "weather.pressure_msl_hpa", sentinel: sentinelNone},
	{rawKey: "cloud_cover", target: "weather.cloud_cover_percent", sentinel: sentinelNone},
	{rawKey: "marine_wave_height", target: "weather.marine.wave_height_m", sentinel: sentinelNone},
	{rawKey: "marine_wave_direction", target: "weather.marine.wave_direction_deg", sentinel: sentinelNone},
	{rawKey: "marine_wave_period", target: "weather.marine.wave_period_s", sentinel: sentinelNone},
	{rawKey: "us_aqi", target: "weather.air_quality.us_aqi", sentinel: sentinelNone},
	{rawKey: "pm2_5", target: "weather.air_quality.pm2_5", sentinel: sentinelNone},
	{rawKey: "carbon_monoxide", target: "weather.air_quality.carbon_monoxide", sentinel: sentinelNone},
	{rawKey: "nitrogen_dioxide", target: "weather.air_quality.nitrogen_dioxide", sentinel: sentinelNone},
	{rawKey: "sulphur_dioxide", target: "weather.air_quality.sulphur_dioxide", sentinel: sentinelNone},
	{rawKey: "ozone", target: "weather.air_quality.ozone", sentinel: sentinelNone},
	{rawKey: "weather_fetch_lat", target: "weather.weather_fetch_lat", sentinel: sentinelNone},
	{rawKey: "weather_fetch_lon", target: "weather.weather_fetch_lon", sentinel: sentinelNone},
	{rawKey: "weather_fetch_ts", target: "diagnostics.weather.weather_request_timestamp_utc", sentinel: sentinelNone},

	{rawKey: "sc", target: "device_state.system_audio", sentinel: sentinelNegOne, mapper: intLabel(SystemAudioLabel)},
	{rawKey: "vp", target: "device_state.is_power_save", sentinel: sentinelNone},
	{rawKey: "nm", target: "device_state.is_night_mode", sentinel: sentinelNone},
	{rawKey: "da", target: "device_state.data_activity", sentinel: sentinelNegOne, mapper: intLabel(DataActivityLabel)},
	{rawKey: "au", target: "device_state.is_auto_rotate", sentinel: sentinelNone},
	{rawKey: "ca", target: "device_state.is_call_active", sentinel: sentinelNone},
	{rawKey: "fl", target: "device_state.is_flashlight_on", sentinel: sentinelNone},
	{rawKey: "pa", target: "device_state.phone_activity", sentinel: sentinelNegOne, mapper: intLabel(PhoneActivityLabel)},

	{rawKey: "dt", target: "sensors.device_temperature_c", sentinel: sentinelNone},
	{rawKey: "lx", target: "sensors.light_lux", sentinel: sentinelNegOne},
	{rawKey: "pr", target: "sensors.pressure_hpa", sentinel: sentinelNone},
	{rawKey: "st", target: "sensors.step_count", sentinel: sentinelNegOne},
	{rawKey: "px", target: "sensors.proximity_cm", sentinel: sentinelNegOne},
}

// Transform consumes the raw wire record (already carrying any weather
// fields the coordinator attached), the device's reconstructed prior plain state, and
// optional IP intelligence, producing the full plain state for this
// event. Carry-forward is applied field-by-field for every entry missing
// or sentinel in raw. Returns the new plain state, any decode warnings
// encountered (never fatal - the field simply falls back to
// carry-forward), and the dotted paths of any subtree the caller must
// delete from the freshness tree rather than let carry forward (see
// applyBSSID).
func Transform(raw, prior map[string]interface{}, ipIntel map[string]interface{}, vendor *decode.VendorLookup, now time.Time) (map[string]interface{}, []string, []string) {
	if raw == nil {
		raw = map[string]interface{}{}
	}
	if prior == nil {
		prior = map[string]interface{}{}
	}

	out := map[string]interface{}{}
	var warnings []string
	var dropped []string

	for _, f := range fieldTable {
		v, present := raw[f.rawKey]
		if present && !isSentinel(f.sentinel, v) {
			mapped := v
			if f.mapper != nil {
				m, err := f.mapper(v)
				if err != nil {
					warnings = append(warnings, fmt.Sprintf("field %s: %v", f.rawKey, err))
					if carried, ok := getPath(prior, f.resolvePriorPath()); ok {
						setPath(out, f.target, carried)
					}
					continue
				}
				mapped = m
			}
			setPath(out, f.target, mapped)
			continue
		}

		if carried, ok := getPath(prior, f.resolvePriorPath()); ok {
			setPath(out, f.target, carried)
		}
	}

	applyPosition(raw, prior, out, &warnings)
	applyBSSID(raw, prior, out, &warnings, &dropped)
	applyAppSettings(raw, prior, out)
	applyDerived(out, now)

	if ipIntel != nil {
		out["ip_intel"] = ipIntel
	} else if carried, ok := getPath(prior, "ip_intel"); ok {
		out["ip_intel"] = carried
	}

	return out, warnings, dropped
}

// applyPosition resolves the device's position from whichever of the two
// wire encodings is present: a compact geohash (`g`, preferred when valid
// since it is the newer, bandwidth-cheaper encoding and additionally
// carries a precision figure) or explicit decimal strings (`y`/`x`).
// geohash decode failure falls back to y/x for this record rather than
// carrying forward stale coordinates outright, since the device may still
// have sent an explicit fix; only when neither resolves does the prior
// position carry forward.
func applyPosition(raw, prior, out map[string]interface{}, warnings *[]string) {
	if g, ok := raw["g"].(string); ok && g != "" {
		gh, err := decode.DecodeGeohash(g)
		if err == nil {
			setPath(out, "position.latitude", gh.Latitude)
			setPath(out, "position.longitude", gh.Longitude)
			setPath(out, "position.geohash_precision_in_meters", gh.PrecisionMeters)
			return
		}
		*warnings = append(*warnings, fmt.Sprintf("geohash: %v", err))
	}

	yv, yPresent := raw["y"]
	xv, xPresent := raw["x"]
	if yPresent && xPresent && !isSentinel(sentinelEmpty, yv) && !isSentinel(sentinelEmpty, xv) {
		lat, errLat := parseFloatString(yv)
		lon, errLon := parseFloatString(xv)
		if errLat == nil && errLon == nil {
			setPath(out, "position.latitude", lat)
			setPath(out, "position.longitude", lon)
			if carried, ok := getPath(prior, "position.geohash_precision_in_meters"); ok {
				setPath(out, "position.geohash_precision_in_meters", carried)
			}
			return
		}
	}

	for _, path := range []string{"position.latitude", "position.longitude", "position.geohash_precision_in_meters"} {
		if carried, ok := getPath(prior, path); ok {
			setPath(out, path, carried)
		}
	}
}

// applyBSSID implements the BSSID carry-forward rule: absent -> inherit
// prior; present but unparseable -> drop the prior leaf entirely (does not
// inherit a stale value). The drop is reported back via dropped rather
// than just omitting the key from out, since omission alone is
// indistinguishable from "this record said nothing about BSSID" and
// freshness.Update would otherwise carry the stale leaf forward unchanged.
func applyBSSID(raw, prior, out map[string]interface{}, warnings, dropped *[]string) {
	v, present := raw["b"]
	if !present {
		if carried, ok := getPath(prior, "network.wifi.bssid"); ok {
			setPath(out, "network.wifi.bssid", carried)
		}
		return
	}

	s, ok := v.(string)
	if !ok || s == "" {
		*dropped = append(*dropped, "network.wifi.bssid")
		return
	}

	decoded, err := decode.DecodeBSSIDBase64(s)
	if err != nil {
		*warnings = append(*warnings, fmt.Sprintf("bssid: %v", err))
		*dropped = append(*dropped, "network.wifi.bssid")
		return
	}

	setPath(out, "network.wifi.bssid", decoded)
}

// applyAppSettings merges the compact `ad` dict (new wins) onto the prior
// app-settings subtree, preserving short codes as stored.
func applyAppSettings(raw, prior, out map[string]interface{}) {
	merged := map[string]interface{}{}
	if priorSettings, ok := getPath(prior, "app_settings"); ok {
		if m, ok := priorSettings.(map[string]interface{}); ok {
			for k, v := range m {
				merged[k] = v
			}
		}
	}
	if ad, ok := raw["ad"]; ok {
		if m, ok := ad.(map[string]interface{}); ok {
			for k, v := range m {
				merged[k] = v
			}
		}
	}
	if len(merged) > 0 {
		out["app_settings"] = merged
	}
}

// applyDerived computes the fields that depend on other already-resolved
// fields in out rather than directly on a raw compact key.
func applyDerived(out map[string]interface{}, now time.Time) {
	bssid, _ := getPath(out, "network.wifi.bssid")
	bssidStr, _ := bssid.(string)

	cellularType := 0
	if ct, ok := getPath(out, "network.cellular.type"); ok {
		for code, label := range CellularTypeLabel {
			if label == ct {
				cellularType = code
				break
			}
		}
	}
	setPath(out, "currently_used_active_network", ActiveNetwork(bssidStr, cellularType))

	if tempRaw, ok := getPath(out, "weather.temperature_in_celsius"); ok {
		if temp, ok := asNumber(tempRaw); ok {
			setPath(out, "weather.temperature_assessment", TemperatureAssessment(temp))

			if windRaw, ok := getPath(out, "weather.wind_speed_ms"); ok {
				if wind, ok := asNumber(windRaw); ok {
					if chill, valid := WindChill(temp, wind); valid {
						setPath(out, "weather.wind_chill_in_celsius", chill)
					}
				}
			}
		}
	}

	if windRaw, ok := getPath(out, "weather.wind_speed_ms"); ok {
		if wind, ok := asNumber(windRaw); ok {
			setPath(out, "weather.wind_description", WindDescription(wind))
		}
	}
	if dirRaw, ok := getPath(out, "weather.wind_direction_deg"); ok {
		if dir, ok := asNumber(dirRaw); ok {
			setPath(out, "weather.wind_compass", WindCompass(dir))
		}
	}

	if codeRaw, ok := getPath(out, "weather.weather_code"); ok {
		if code, ok := asNumber(codeRaw); ok {
			setPath(out, "weather.weather_description", WeatherCodeDescription(int(code)))
			setPath(out, "weather.precipitation_type", PrecipitationType(int(code)))
		}
	}
	if precipRaw, ok := getPath(out, "weather.precipitation_mm"); ok {
		if mm, ok := asNumber(precipRaw); ok {
			setPath(out, "weather.precipitation_intensity", PrecipitationIntensity(mm))
		}
	}
	if aqiRaw, ok := getPath(out, "weather.air_quality.us_aqi"); ok {
		if aqi, ok := asNumber(aqiRaw); ok {
			setPath(out, "weather.air_quality.class", AQIClass(aqi))
		}
	}

	batteryRaw, hasBattery := getPath(out, "power.battery_percent")
	capacityRaw, hasCapacity := getPath(out, "power.capacity_in_mah")
	if hasBattery && hasCapacity {
		battery, ok1 := asNumber(batteryRaw)
		capacity, ok2 := asNumber(capacityRaw)
		if ok1 && ok2 {
			setPath(out, "power.calculated_leftover_capacity_in_mah", LeftoverCapacityMAh(battery, capacity))
		}
	}

	if latRaw, okLat := getPath(out, "position.latitude"); okLat {
		if lonRaw, okLon := getPath(out, "position.longitude"); okLon {
			lat, ok1 := asNumber(latRaw)
			lon, ok2 := asNumber(lonRaw)
			if ok1 && ok2 {
				offset := TimezoneOffset(lat, lon)
				setPath(out, "position.timezone_utc_offset_hours", offset)
			}
		}
	}

	if fetchTsRaw, ok := getPath(out, "diagnostics.weather.weather_request_timestamp_utc"); ok {
		if fetchTs, ok := parseWeatherFetchTimestamp(fetchTsRaw); ok {
			offset := 0.0
			if lat, okLat := getPath(out, "position.latitude"); okLat {
				if lon, okLon := getPath(out, "position.longitude"); okLon {
					if latF, ok1 := asNumber(lat); ok1 {
						if lonF, ok2 := asNumber(lon); ok2 {
							offset = TimezoneOffset(latF, lonF)
						}
					}
				}
			}
			setPath(out, "weather.local_time", FormatLocalTime(fetchTs, offset))
		}
	}

	_ = now
}

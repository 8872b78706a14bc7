// Copyright (C) NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.
package transform

import "strings"

// AppSettingsKeyMap maps the compact app-settings short codes carried in
// the wire record's `ad` dict to their long, human-readable names. Storage
// always retains the short codes; this table is consulted only when
// rendering for read.
var AppSettingsKeyMap = map[string]string{
	"av": "app_version_code", "dc": "data_collection_toggle", "su": "server_upload_toggle",
	"fc": "force_continuous", "p1": "continuous_power_mode", "p2": "optimized_power_mode",
	"p3": "passive_power_mode", "x1": "wifi_rssi_precision", "xa": "gps_altitude_precision",
	"xb": "battery_precision", "xc": "step_counter_precision", "xg": "gps_precision",
	"xl": "ambient_light_precision", "xn": "network_speed_precision", "xp": "barometer_precision",
	"xr": "cellular_rssi_precision", "xs": "speed_precision", "dm": "diagnostics_master_switch",
	"ea": "system_audio_toggle", "eb": "barometer_toggle", "ec": "charging_state_toggle",
	"ed": "cellular_data_activity_toggle", "ef": "cell_signal_quality_toggle",
	"eg": "timing_advance_toggle", "ek": "step_counter_toggle", "el": "ambient_light_toggle",
	"em": "network_metered_toggle", "ep": "power_save_toggle", "es": "screen_state_toggle",
	"et": "device_temp_toggle", "ev": "vpn_status_toggle", "ex": "camera_state_toggle",
	"ey": "flashlight_state_toggle", "w1": "wifi_rssi_toggle", "w2": "wifi_frequency_toggle",
	"w3": "wifi_link_speed_toggle", "w4": "wifi_standard_toggle", "w5": "wifi_name_ssid_toggle",
	"b1": "trigger_by_count", "b2": "trigger_by_timeout", "b3": "trigger_by_max_size",
	"bc": "batch_record_count", "be": "batching_toggle", "bl": "compression_level",
	"bs": "batch_max_size_kb", "bt": "batch_timeout_sec", "m1": "gps_permission_state",
	"m2": "phone_state_permission", "m3": "activity_recognition_permission",
	"m4": "post_notifications_permission", "q1": "barometer_sensor_state",
	"q2": "step_counter_sensor_state", "q3": "ambient_light_sensor_state",
	"q4": "proximity_sensor_state", "q5": "motion_detector_state", "bo": "battery_optimization_state",
	"c1": "calibrated_stationary_thresh", "c2": "calibrated_moving_thresh",
}

// RenameAppSettingsFreshnessKeys rewrites "<short>_age_in_seconds" keys in
// an already-aged app-settings tree to "<long>_age_in_seconds", using
// AppSettingsKeyMap. Keys outside that convention pass through unchanged.
func RenameAppSettingsFreshnessKeys(ages map[string]interface{}) map[string]interface{} {
	if ages == nil {
		return nil
	}

	out := make(map[string]interface{}, len(ages))
	for key, value := range ages {
		if short, ok := strings.CutSuffix(key, "_age_in_seconds"); ok {
			long, known := AppSettingsKeyMap[short]
			if !known {
				long = short
			}
			out[long+"_age_in_seconds"] = value
			continue
		}
		out[key] = value
	}
	return out
}

var permissionMap = map[int]string{0: "Denied", 1: "Foreground (While-in-use)", 2: "Background (All the time)"}
var boolPermissionMap = map[int]string{0: "Not Granted", 1: "Granted"}
var sensorHealthMap = map[int]string{1: "Not Available", 2: "OK", 3: "Stale", 4: "Quarantined"}
var motionDetectorMap = map[int]string{2: "OK", 3: "Stale"}
var batteryOptimizationMap = map[int]string{0: "Unrestricted", 1: "Optimized", 2: "Restricted"}

var precisionMaps = map[string]map[int]string{
	"x1": {0: "Smart", 1: "Max", 2: "3dBm", 3: "5dBm"},
	"xa": {0: "Smart", 1: "Max", 2: "2m", 3: "10m", 4: "25m", 5: "50m", 6: "100m"},
	"xb": {0: "Smart", 1: "Max", 2: "2%", 3: "5%", 4: "10%"},
	"xc": {0: "Smart", 1: "Max", 2: "10 steps", 3: "100 steps", 4: "1000 steps"},
	"xg": {0: "Smart", 1: "Max", 2: "20m", 3: "100m", 4: "1km", 5: "10km"},
	"xl": {0: "Smart", 1: "Max", 2: "1-lux", 3: "10-lux", 4: "100-lux"},
	"xn": {0: "Smart", 1: "Max", 2: "1Mbps", 3: "2Mbps", 4: "5Mbps"},
	"xp": {0: "Smart", 1: "Max", 2: "0.1hPa", 3: "1hPa", 4: "10hPa"},
	"xr": {0: "Smart", 1: "Max", 2: "3dBm", 3: "5dBm", 4: "10dBm"},
	"xs": {0: "Smart", 1: "Max", 2: "1km/h", 3: "3km/h", 4: "5km/h", 5: "10km/h"},
}

func intAt(s map[string]interface{}, key string) (int, bool) {
	v, ok := s[key]
	if !ok {
		return 0, false
	}
	f, ok := asNumber(v)
	if !ok {
		return 0, false
	}
	return int(f), true
}

func isOne(s map[string]interface{}, key string) bool {
	v, ok := intAt(s, key)
	return ok && v == 1
}

func lookup(table map[int]string, s map[string]interface{}, key string) interface{} {
	v, ok := intAt(s, key)
	if !ok {
		return nil
	}
	if label, ok := table[v]; ok {
		return label
	}
	return nil
}

func precisionLookup(code string, s map[string]interface{}) interface{} {
	v, ok := intAt(s, code)
	if !ok {
		return nil
	}
	if label, ok := precisionMaps[code][v]; ok {
		return label
	}
	return nil
}

func rawAt(s map[string]interface{}, key string) interface{} {
	return s[key]
}

// GroupAppSettings reshapes the stored short-code app-settings dict into
// the grouped, human-labeled structure the read layer renders. Empty
// groups/branches are pruned from the result.
func GroupAppSettings(s map[string]interface{}) map[string]interface{} {
	if s == nil {
		return nil
	}

	grouped := map[string]interface{}{
		"general": map[string]interface{}{
			"app_version_code":        rawAt(s, "av"),
			"data_collection_enabled": isOne(s, "dc"),
			"server_upload_enabled":   isOne(s, "su"),
		},
		"power_management": map[string]interface{}{
			"power_modes": map[string]interface{}{
				"force_continuous": isOne(s, "fc"),
				"continuous":       isOne(s, "p1"),
				"optimized":        isOne(s, "p2"),
				"passive":          isOne(s, "p3"),
			},
			"battery_optimization_state": lookup(batteryOptimizationMap, s, "bo"),
		},
		"batching_and_upload": map[string]interface{}{
			"batching_enabled":  isOne(s, "be"),
			"compression_level": rawAt(s, "bl"),
			"triggers": map[string]interface{}{
				"by_record_count": isOne(s, "b1"),
				"by_timeout":      isOne(s, "b2"),
				"by_max_size":     isOne(s, "b3"),
			},
			"trigger_values": map[string]interface{}{
				"record_count":    rawAt(s, "bc"),
				"timeout_seconds": rawAt(s, "bt"),
				"max_size_kb":     rawAt(s, "bs"),
			},
		},
		"precision_controls": map[string]interface{}{
			"wifi_signal_strength":     precisionLookup("x1", s),
			"gps_altitude":             precisionLookup("xa", s),
			"battery_level":            precisionLookup("xb", s),
			"step_counter":             precisionLookup("xc", s),
			"gps_coordinates":          precisionLookup("xg", s),
			"ambient_light":            precisionLookup("xl", s),
			"network_speed":            precisionLookup("xn", s),
			"barometer":                precisionLookup("xp", s),
			"cellular_signal_strength": precisionLookup("xr", s),
			"speed":                    precisionLookup("xs", s),
		},
		"diagnostics_toggles": map[string]interface{}{
			"master_switch": isOne(s, "dm"),
			"general_state": map[string]interface{}{
				"system_audio":        isOne(s, "ea"),
				"charging_state":      isOne(s, "ec"),
				"data_activity":       isOne(s, "ed"),
				"network_metered":     isOne(s, "em"),
				"power_save_mode":     isOne(s, "ep"),
				"screen_state":        isOne(s, "es"),
				"device_temperature":  isOne(s, "et"),
				"vpn_status":          isOne(s, "ev"),
				"camera_state":        isOne(s, "ex"),
				"flashlight_state":    isOne(s, "ey"),
			},
			"sensor_state": map[string]interface{}{
				"barometer":            isOne(s, "eb"),
				"cell_signal_quality":  isOne(s, "ef"),
				"timing_advance":       isOne(s, "eg"),
				"step_counter":         isOne(s, "ek"),
				"ambient_light":        isOne(s, "el"),
			},
			"wifi_details": map[string]interface{}{
				"signal_strength": isOne(s, "w1"),
				"frequency":       isOne(s, "w2"),
				"link_speed":      isOne(s, "w3"),
				"standard":        isOne(s, "w4"),
				"ssid":            isOne(s, "w5"),
			},
		},
		"system_status": map[string]interface{}{
			"permissions": map[string]interface{}{
				"gps":                   lookup(permissionMap, s, "m1"),
				"phone_state":           lookup(boolPermissionMap, s, "m2"),
				"activity_recognition":  lookup(boolPermissionMap, s, "m3"),
				"post_notifications":    lookup(boolPermissionMap, s, "m4"),
			},
			"sensor_health": map[string]interface{}{
				"barometer":        lookup(sensorHealthMap, s, "q1"),
				"step_counter":     lookup(sensorHealthMap, s, "q2"),
				"ambient_light":    lookup(sensorHealthMap, s, "q3"),
				"proximity":        lookup(sensorHealthMap, s, "q4"),
				"motion_detector":  lookup(motionDetectorMap, s, "q5"),
			},
			"calibration": map[string]interface{}{
				"stationary_threshold_variance": rawAt(s, "c1"),
				"moving_threshold_variance":     rawAt(s, "c2"),
			},
		},
	}

	return cleanupEmpty(grouped)
}

// cleanupEmpty recursively drops nil values and empty maps, matching the
// source's cleanup_empty pass over the grouped app-settings structure.
func cleanupEmpty(m map[string]interface{}) map[string]interface{} {
	out := map[string]interface{}{}
	for k, v := range m {
		switch val := v.(type) {
		case map[string]interface{}:
			cleaned := cleanupEmpty(val)
			if len(cleaned) > 0 {
				out[k] = cleaned
			}
		case nil:
			continue
		default:
			out[k] = v
		}
	}
	return out
}

// Copyright (C) NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.
package transform_test

import (
	"testing"
	"time"

	"github.com/clustercockpit/telemetry-enrichment/internal/freshness"
	"github.com/clustercockpit/telemetry-enrichment/internal/transform"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTransformFreshDeviceScenario(t *testing.T) {
	raw := map[string]interface{}{
		"y": "48.1",
		"x": "11.6",
		"p": float64(50),
		"c": float64(40),
		"t": float64(4),
		"b": "AAECAwQF",
		"r": "100",
	}

	out, warnings, _ := transform.Transform(raw, nil, nil, nil, time.Unix(1700000000, 0))
	assert.Empty(t, warnings)

	power, ok := out["power"].(map[string]interface{})
	require.True(t, ok)
	assert.EqualValues(t, 50, power["battery_percent"])
	assert.EqualValues(t, 4000, power["capacity_in_mah"])
	assert.EqualValues(t, 2000, power["calculated_leftover_capacity_in_mah"])

	network, ok := out["network"].(map[string]interface{})
	require.True(t, ok)
	cellular := network["cellular"].(map[string]interface{})
	assert.Equal(t, "LTE", cellular["type"])
	assert.EqualValues(t, -100, cellular["signal_strength_in_dbm"])

	wifi := network["wifi"].(map[string]interface{})
	assert.Len(t, wifi["bssid"], 17, "colon-separated 6-byte mac")

	assert.Equal(t, "Wi-Fi", out["currently_used_active_network"])
}

func TestTransformCarryForwardWhenSentinel(t *testing.T) {
	prior := map[string]interface{}{
		"power": map[string]interface{}{
			"battery_percent": float64(70),
		},
	}

	raw := map[string]interface{}{
		"p": float64(-1),
	}

	out, _, _ := transform.Transform(raw, prior, nil, nil, time.Now())
	power := out["power"].(map[string]interface{})
	assert.EqualValues(t, 70, power["battery_percent"])
}

func TestTransformPositionPrefersGeohashOverExplicitCoordinates(t *testing.T) {
	raw := map[string]interface{}{
		"g": "ezs42",
		"y": "0",
		"x": "0",
	}
	out, warnings, _ := transform.Transform(raw, nil, nil, nil, time.Now())
	assert.Empty(t, warnings)

	position := out["position"].(map[string]interface{})
	assert.InDelta(t, 42.6, position["latitude"], 0.1)
	assert.InDelta(t, -5.6, position["longitude"], 0.1)
	assert.EqualValues(t, 4900, position["geohash_precision_in_meters"])
}

func TestTransformPositionFallsBackToExplicitOnBadGeohash(t *testing.T) {
	raw := map[string]interface{}{
		"g": "!!!!",
		"y": "48.1",
		"x": "11.6",
	}
	out, warnings, _ := transform.Transform(raw, nil, nil, nil, time.Now())
	assert.NotEmpty(t, warnings)

	position := out["position"].(map[string]interface{})
	assert.InDelta(t, 48.1, position["latitude"], 0.0001)
	assert.InDelta(t, 11.6, position["longitude"], 0.0001)
}

func TestTransformLocalTimeFromRFC3339WeatherFetchTimestamp(t *testing.T) {
	raw := map[string]interface{}{
		"y":                 "0",
		"x":                 "0",
		"weather_fetch_ts":  "2023-11-14T22:13:20Z",
	}
	out, warnings, _ := transform.Transform(raw, nil, nil, nil, time.Now())
	assert.Empty(t, warnings)

	weather := out["weather"].(map[string]interface{})
	require.NotEmpty(t, weather["local_time"])
}

func TestApplyBSSIDUnparseableDropsPrior(t *testing.T) {
	prior := map[string]interface{}{
		"network": map[string]interface{}{
			"wifi": map[string]interface{}{
				"bssid": "aa:bb:cc:dd:ee:ff",
			},
		},
	}

	raw := map[string]interface{}{
		"b": "not-valid-base64!!",
	}

	out, warnings, dropped := transform.Transform(raw, prior, nil, nil, time.Now())
	assert.NotEmpty(t, warnings)
	assert.Equal(t, []string{"network.wifi.bssid"}, dropped)

	network, ok := out["network"].(map[string]interface{})
	if ok {
		wifi, ok := network["wifi"].(map[string]interface{})
		if ok {
			_, hasBSSID := wifi["bssid"]
			assert.False(t, hasBSSID, "unparseable bssid must not inherit the prior value")
		}
	}
}

// TestApplyBSSIDUnparseableDropsPriorAcrossPersistence exercises the path
// TestApplyBSSIDUnparseableDropsPrior doesn't: folding Transform's output
// (and its reported drop) into the device's freshness tree via
// freshness.Update, the way internal/ingest.Worker.Process does. Without
// threading dropped through, the stale bssid leaf survives in the tree and
// reappears via freshness.Reconstruct on the very next event.
func TestApplyBSSIDUnparseableDropsPriorAcrossPersistence(t *testing.T) {
	priorPlain := map[string]interface{}{
		"network": map[string]interface{}{
			"wifi": map[string]interface{}{
				"bssid": "aa:bb:cc:dd:ee:ff",
				"ssid":  "home-network",
			},
		},
	}
	priorTree := freshness.Convert(priorPlain, 1700000000)

	raw := map[string]interface{}{
		"b": "not-valid-base64!!",
	}

	out, _, dropped := transform.Transform(raw, priorPlain, nil, nil, time.Now())
	nextTree := freshness.Update(priorTree, out, 1700000100, dropped...)

	reconstructed := freshness.Reconstruct(nextTree).(map[string]interface{})
	network := reconstructed["network"].(map[string]interface{})
	wifi := network["wifi"].(map[string]interface{})

	_, hasBSSID := wifi["bssid"]
	assert.False(t, hasBSSID, "a dropped bssid must not reappear in the next event's carry-forward")
	assert.Equal(t, "home-network", wifi["ssid"], "sibling keys must still carry forward untouched")
}

func TestWindChillBounds(t *testing.T) {
	_, ok := transform.WindChill(11, 5)
	assert.False(t, ok, "above 10C must be invalid regardless of wind")

	_, ok = transform.WindChill(0, 1.0)
	assert.False(t, ok, "below 1.34 m/s must be invalid regardless of temp")

	_, ok = transform.WindChill(0, 2.0)
	assert.True(t, ok)
}

func TestGroupAppSettings(t *testing.T) {
	s := map[string]interface{}{
		"m1": float64(1),
		"dc": float64(1),
	}
	grouped := transform.GroupAppSettings(s)

	general := grouped["general"].(map[string]interface{})
	assert.Equal(t, true, general["data_collection_enabled"])

	status := grouped["system_status"].(map[string]interface{})
	perms := status["permissions"].(map[string]interface{})
	assert.Equal(t, "Foreground (While-in-use)", perms["gps"])
}

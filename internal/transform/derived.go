// Copyright (C) NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.
package transform

import (
	"fmt"
	"math"
	"strings"
	"time"
)

// CellularTypeLabel maps the compact cellular type code to its label.
var CellularTypeLabel = map[int]string{
	0: "Other",
	1: "GSM",
	2: "GPRS/EDGE",
	3: "UMTS/HSPA",
	4: "LTE",
	5: "NR(5G)",
	6: "CDMA",
	7: "IDEN",
}

// ChargingStateLabel maps the compact charging-state code to its label.
var ChargingStateLabel = map[int]string{
	0: "Not Charging",
	1: "AC",
	2: "USB",
	3: "Wireless",
	4: "Full",
}

// DataActivityLabel maps the compact data-activity code to its label.
var DataActivityLabel = map[int]string{
	0: "None",
	1: "In",
	2: "Out",
	3: "In/Out",
}

// PhoneActivityLabel maps the compact phone-activity code to its label.
var PhoneActivityLabel = map[int]string{
	0: "Stable/Upside Down",
	1: "Stable",
	2: "Moving",
}

// SystemAudioLabel maps the compact system-audio code to its label.
var SystemAudioLabel = map[int]string{
	0: "Idle",
	1: "Media",
	2: "In Call",
}

// WifiStandardLabel maps the compact Wi-Fi standard code to its label.
var WifiStandardLabel = map[int]string{
	1: "Other",
	4: "Wi-Fi 4",
	5: "Wi-Fi 5",
	6: "Wi-Fi 6",
}

// ActiveNetwork returns "Wi-Fi" when bssid is a valid decoded BSSID,
// otherwise the cellular type label (falling back to "Other").
func ActiveNetwork(bssid string, cellularType int) string {
	if bssid != "" {
		return "Wi-Fi"
	}
	if label, ok := CellularTypeLabel[cellularType]; ok {
		return label
	}
	return CellularTypeLabel[0]
}

// CoordinatePrecision returns the number of decimal places to render a
// coordinate at, given the geohash precision in meters.
func CoordinatePrecision(precisionMeters float64) int {
	switch {
	case precisionMeters <= 0:
		return 7
	case precisionMeters <= 5:
		return 6
	case precisionMeters <= 100:
		return 5
	case precisionMeters <= 1000:
		return 4
	default:
		return 3
	}
}

// RoundTo rounds v to n decimal places.
func RoundTo(v float64, n int) float64 {
	mult := math.Pow(10, float64(n))
	return math.Round(v*mult) / mult
}

// TemperatureAssessment categorizes a temperature in Celsius.
func TemperatureAssessment(celsius float64) string {
	switch {
	case celsius <= -10:
		return "Extreme Cold"
	case celsius <= 0:
		return "Freezing"
	case celsius <= 10:
		return "Cold"
	case celsius <= 18:
		return "Cool"
	case celsius <= 24:
		return "Comfortable"
	case celsius <= 30:
		return "Warm"
	case celsius <= 35:
		return "Hot"
	default:
		return "Extreme Heat"
	}
}

// WindDescription buckets a wind speed (m/s) into a Beaufort-like label.
func WindDescription(metersPerSecond float64) string {
	switch {
	case metersPerSecond < 0.5:
		return "Calm"
	case metersPerSecond < 1.6:
		return "Light Air"
	case metersPerSecond < 3.4:
		return "Light Breeze"
	case metersPerSecond < 5.5:
		return "Gentle Breeze"
	case metersPerSecond < 8.0:
		return "Moderate Breeze"
	case metersPerSecond < 10.8:
		return "Fresh Breeze"
	case metersPerSecond < 13.9:
		return "Strong Breeze"
	case metersPerSecond < 17.2:
		return "Near Gale"
	case metersPerSecond < 20.8:
		return "Gale"
	case metersPerSecond < 24.5:
		return "Strong Gale"
	case metersPerSecond < 28.5:
		return "Storm"
	case metersPerSecond < 32.7:
		return "Violent Storm"
	default:
		return "Hurricane"
	}
}

var compassPoints = []string{
	"N", "NNE", "NE", "ENE", "E", "ESE", "SE", "SSE",
	"S", "SSW", "SW", "WSW", "W", "WNW", "NW", "NNW",
}

// WindCompass converts a wind direction in degrees to a 16-point compass
// label.
func WindCompass(degrees float64) string {
	normalized := math.Mod(degrees, 360)
	if normalized < 0 {
		normalized += 360
	}
	idx := int(math.Round(normalized/22.5)) % 16
	return compassPoints[idx]
}

// WindChill computes the wind chill in Celsius, valid only when
// temp <= 10C and wind >= 1.34 m/s; returns (0, false) otherwise.
func WindChill(tempC, windMS float64) (float64, bool) {
	if tempC > 10 || windMS < 1.34 {
		return 0, false
	}
	windKmh := windMS * 3.6
	chill := 13.12 + 0.6215*tempC - 11.37*math.Pow(windKmh, 0.16) + 0.3965*tempC*math.Pow(windKmh, 0.16)
	return chill, true
}

// AQIClass categorizes a US AQI value.
func AQIClass(aqi float64) string {
	switch {
	case aqi <= 50:
		return "Good"
	case aqi <= 100:
		return "Moderate"
	case aqi <= 150:
		return "Unhealthy-SG"
	case aqi <= 200:
		return "Unhealthy"
	case aqi <= 300:
		return "Very Unhealthy"
	default:
		return "Hazardous"
	}
}

// weatherCodeDescriptions maps WMO weather codes to a short description
// string; precipitation type is inferred from a substring match against it.
var weatherCodeDescriptions = map[int]string{
	0: "Clear sky", 1: "Mainly clear", 2: "Partly cloudy", 3: "Overcast",
	45: "Fog", 48: "Depositing rime fog",
	51: "Light drizzle", 53: "Moderate drizzle", 55: "Dense drizzle",
	56: "Light freezing drizzle", 57: "Dense freezing drizzle",
	61: "Slight rain", 63: "Moderate rain", 65: "Heavy rain",
	66: "Light freezing rain", 67: "Heavy freezing rain",
	71: "Slight snow fall", 73: "Moderate snow fall", 75: "Heavy snow fall",
	77: "Snow grains",
	80: "Slight rain showers", 81: "Moderate rain showers", 82: "Violent rain showers",
	85: "Slight snow showers", 86: "Heavy snow showers",
	95: "Thunderstorm",
	96: "Thunderstorm with slight hail", 99: "Thunderstorm with heavy hail",
}

// WeatherCodeDescription resolves a WMO weather code to its description,
// or "Unknown" if not recognized.
func WeatherCodeDescription(code int) string {
	if desc, ok := weatherCodeDescriptions[code]; ok {
		return desc
	}
	return "Unknown"
}

// PrecipitationType infers a coarse precipitation type from a weather
// code's description via substring match.
func PrecipitationType(code int) string {
	desc := strings.ToLower(WeatherCodeDescription(code))
	switch {
	case strings.Contains(desc, "snow"):
		return "Snow"
	case strings.Contains(desc, "drizzle"):
		return "Drizzle"
	case strings.Contains(desc, "rain") || strings.Contains(desc, "shower"):
		return "Rain"
	case strings.Contains(desc, "thunderstorm"):
		return "Thunderstorm"
	case strings.Contains(desc, "fog"):
		return "Fog"
	default:
		return "None"
	}
}

// PrecipitationIntensity buckets a precipitation amount in mm.
func PrecipitationIntensity(mm float64) string {
	switch {
	case mm <= 0:
		return "None"
	case mm < 2.5:
		return "Light"
	case mm < 7.6:
		return "Moderate"
	case mm < 50:
		return "Heavy"
	default:
		return "Violent"
	}
}

// LeftoverCapacityMAh computes the leftover battery capacity in mAh.
func LeftoverCapacityMAh(batteryPercent, capacityMAh float64) int {
	return int(math.Round(batteryPercent * capacityMAh / 100))
}

// TimezoneOffset resolves a (lat,lon) to a UTC offset in hours. No bundled
// timezone-polygon dataset exists in this service's dependency set, so
// this always takes the spec's documented fallback path: poles collapse
// to UTC+0, everywhere else uses round(lon/15).
func TimezoneOffset(lat, lon float64) float64 {
	if math.Abs(lat) >= 89.9 {
		return 0
	}
	return math.Round(lon / 15)
}

// FormatLocalTime renders t (UTC) in the DD.MM.YYYY HH:MM:SS UTC±H[:MM]
// format, shifted by the given UTC offset in hours.
func FormatLocalTime(t time.Time, offsetHours float64) string {
	shifted := t.UTC().Add(time.Duration(offsetHours * float64(time.Hour)))

	sign := "+"
	abs := offsetHours
	if abs < 0 {
		sign = "-"
		abs = -abs
	}
	wholeHours := int(abs)
	minutes := int(math.Round((abs - float64(wholeHours)) * 60))

	var offsetStr string
	if minutes == 0 {
		offsetStr = fmt.Sprintf("UTC%s%d", sign, wholeHours)
	} else {
		offsetStr = fmt.Sprintf("UTC%s%d:%02d", sign, wholeHours, minutes)
	}

	return fmt.Sprintf("%s %s", shifted.Format("02.01.2006 15:04:05"), offsetStr)
}

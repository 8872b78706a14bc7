// Copyright (C) NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.
package weather

import (
	"context"
	"math"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

// Position is a device's last-known coordinates and the time weather was
// last fetched for it, stored as a Redis hash keyed by device ID.
type Position struct {
	Lat, Lon          float64
	LastWeatherUpdate time.Time
}

// PositionCache is the shared, Redis-backed device position cache
// ("device:position:<device_id>", 30-day TTL).
type PositionCache struct {
	rdb *redis.Client
}

func NewPositionCache(rdb *redis.Client) *PositionCache {
	return &PositionCache{rdb: rdb}
}

func positionKey(deviceID string) string {
	return "device:position:" + deviceID
}

// Get returns the device's cached position, or (nil, nil) on a cache
// miss. Redis errors are swallowed (cache faults degrade to no-cache
// behavior) and reported as a miss.
func (c *PositionCache) Get(ctx context.Context, deviceID string) (*Position, error) {
	res, err := c.rdb.HGetAll(ctx, positionKey(deviceID)).Result()
	if err != nil || len(res) == 0 {
		return nil, nil
	}

	lat, err1 := strconv.ParseFloat(res["lat"], 64)
	lon, err2 := strconv.ParseFloat(res["lon"], 64)
	if err1 != nil || err2 != nil {
		return nil, nil
	}

	pos := &Position{Lat: lat, Lon: lon}
	if raw, ok := res["last_weather_update"]; ok {
		if ts, err := time.Parse(time.RFC3339, raw); err == nil {
			pos.LastWeatherUpdate = ts
		}
	}
	return pos, nil
}

// Save writes the device's current position and refreshes the TTL.
// Redis errors are swallowed per the coordinator's cache-fault policy.
func (c *PositionCache) Save(ctx context.Context, deviceID string, pos Position) {
	key := positionKey(deviceID)
	pipe := c.rdb.Pipeline()
	pipe.HSet(ctx, key, map[string]interface{}{
		"lat":                 pos.Lat,
		"lon":                 pos.Lon,
		"last_weather_update": pos.LastWeatherUpdate.UTC().Format(time.RFC3339),
	})
	pipe.Expire(ctx, key, devicePositionTTL)
	_, _ = pipe.Exec(ctx)
}

// HaversineKm returns the great-circle distance in kilometers between two
// coordinates.
func HaversineKm(lat1, lon1, lat2, lon2 float64) float64 {
	const earthRadiusKm = 6371.0
	toRad := func(d float64) float64 { return d * math.Pi / 180 }

	dLat := toRad(lat2 - lat1)
	dLon := toRad(lon2 - lon1)
	a := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(toRad(lat1))*math.Cos(toRad(lat2))*math.Sin(dLon/2)*math.Sin(dLon/2)
	c := 2 * math.Atan2(math.Sqrt(a), math.Sqrt(1-a))
	return earthRadiusKm * c
}

// ShouldRefetch implements the gate heuristic: a re-fetch is required iff
// there is no prior position, the prior fetch is stale (>3600s), or the
// device moved more than 1km - but a 60s cooldown suppresses re-fetch
// immediately after a previous one regardless of the other conditions.
func ShouldRefetch(prior *Position, lat, lon float64, now time.Time) bool {
	if prior == nil || prior.LastWeatherUpdate.IsZero() {
		return true
	}

	elapsed := now.Sub(prior.LastWeatherUpdate).Seconds()
	if elapsed < cooldownSeconds {
		return false
	}
	if elapsed > staleSeconds {
		return true
	}
	return HaversineKm(lat, lon, prior.Lat, prior.Lon) > movementThresholdKm
}

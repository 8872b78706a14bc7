// Copyright (C) NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.
package weather

import (
	"context"
	"strconv"
	"time"

	"github.com/clustercockpit/telemetry-enrichment/pkg/log"
)

// Coordinator attaches weather fields to raw when (and only when) a
// re-fetch is warranted for this device, consulting the disk cache and
// global quota before ever calling an external provider.
type Coordinator struct {
	positions *PositionCache
	quota     *Quota
	disk      *DiskCache
	providers *Providers
}

func NewCoordinator(positions *PositionCache, quota *Quota, disk *DiskCache, providers *Providers) *Coordinator {
	return &Coordinator{positions: positions, quota: quota, disk: disk, providers: providers}
}

// Enrich attaches weather fields (plus weather_fetch_lat/lon/ts) to raw
// in place when a re-fetch fires, and returns it unmodified otherwise -
// callers fall back to the ingest worker's diagnostics-carried-forward
// heuristics in that case.
func (c *Coordinator) Enrich(ctx context.Context, deviceID string, lat, lon float64, raw map[string]interface{}) map[string]interface{} {
	now := time.Now().UTC()

	prior, err := c.positions.Get(ctx, deviceID)
	if err != nil {
		log.Warnf("weather: position cache lookup for %s failed: %v", deviceID, err)
	}

	if !ShouldRefetch(prior, lat, lon, now) {
		return raw
	}

	if cached, cachedAt, ok := c.disk.Find(lat, lon); ok {
		for k, v := range cached {
			raw[k] = v
		}
		raw["weather_fetch_lat"] = lat
		raw["weather_fetch_lon"] = lon
		raw["weather_fetch_ts"] = cachedAt
		c.positions.Save(ctx, deviceID, Position{Lat: lat, Lon: lon, LastWeatherUpdate: now})
		return raw
	}

	if c.quota.Exhausted(ctx, now) {
		return raw
	}

	data, err := c.providers.Fetch(ctx, lat, lon)
	if err != nil {
		log.Debugf("weather: fetch for %s,%s failed: %v", strconv.FormatFloat(lat, 'f', 4, 64), strconv.FormatFloat(lon, 'f', 4, 64), err)
		return raw
	}

	c.quota.Increment(ctx, now)
	cachedAt, err := c.disk.Save(lat, lon, data)
	if err != nil {
		log.Warnf("weather: cache write failed: %v", err)
		cachedAt = now.Format(time.RFC3339)
	}

	for k, v := range data {
		raw[k] = v
	}
	raw["weather_fetch_lat"] = lat
	raw["weather_fetch_lon"] = lon
	raw["weather_fetch_ts"] = cachedAt

	c.positions.Save(ctx, deviceID, Position{Lat: lat, Lon: lon, LastWeatherUpdate: now})

	return raw
}

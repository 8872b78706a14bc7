// Copyright (C) NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.
package taskManager

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/clustercockpit/telemetry-enrichment/internal/freshness"
	"github.com/clustercockpit/telemetry-enrichment/internal/store"
	"github.com/clustercockpit/telemetry-enrichment/pkg/archive"
	"github.com/clustercockpit/telemetry-enrichment/pkg/log"
	"github.com/clustercockpit/telemetry-enrichment/pkg/schema"
	"github.com/go-co-op/gocron/v2"
	"github.com/redis/go-redis/v9"
)

const (
	defaultSnapshotInterval = 10 * time.Minute
	defaultSnapshotLockTTL  = 5 * time.Minute
	snapshotLockKey         = "geojson-snapshot-lock"
	snapshotDevicesLimit    = 10000
)

// RegisterSnapshotService schedules a periodic GeoJSON snapshot of every
// device's last known position: a thin consumer of the persistence layer,
// built fresh from its own read queries rather than re-specified
// rendering logic. Only one process in a fleet performs the snapshot on
// any given tick, enforced by a Redis SETNX-based lock.
// Upload to S3 happens when cfg.S3Bucket is set; otherwise the snapshot
// is written to cfg.OutputPath.
func RegisterSnapshotService(conn *store.DBConnection, rdb *redis.Client, cfg schema.SnapshotConfig) {
	interval := parseDuration(cfg.Interval, defaultSnapshotInterval)
	lockTTL := parseDuration(cfg.LockTTL, defaultSnapshotLockTTL)

	target, err := snapshotTarget(cfg)
	if err != nil {
		log.Warnf("taskManager: snapshot target unavailable, snapshot service disabled: %v", err)
		return
	}

	log.Infof("taskManager: register geojson snapshot service with %s interval", interval)

	s.NewJob(gocron.DurationJob(interval),
		gocron.NewTask(
			func() {
				runSnapshot(context.Background(), conn, rdb, target, lockTTL)
			}))
}

func snapshotTarget(cfg schema.SnapshotConfig) (archive.Target, error) {
	if cfg.S3Bucket != "" {
		return archive.NewS3Target(archive.S3TargetConfig{Bucket: cfg.S3Bucket, Region: cfg.S3Region})
	}
	path := cfg.OutputPath
	if path == "" {
		path = "."
	}
	return archive.NewFileTarget(path)
}

func runSnapshot(ctx context.Context, conn *store.DBConnection, rdb *redis.Client, target archive.Target, lockTTL time.Duration) {
	token, acquired, err := acquireLock(ctx, rdb, snapshotLockKey, lockTTL)
	if err != nil {
		log.Warnf("taskManager: snapshot lock attempt failed: %v", err)
		return
	}
	if !acquired {
		log.Debugf("taskManager: snapshot already running elsewhere, skipping this tick")
		return
	}
	defer releaseLock(ctx, rdb, snapshotLockKey, token)

	data, deviceCount, err := buildGeoJSONSnapshot(ctx, conn)
	if err != nil {
		log.Errorf("taskManager: snapshot build failed: %v", err)
		return
	}

	name := fmt.Sprintf("devices-%s.geojson", time.Now().UTC().Format("20060102T150405Z"))
	if err := target.WriteFile(ctx, name, "application/geo+json", data); err != nil {
		log.Errorf("taskManager: snapshot write failed: %v", err)
		return
	}
	log.Infof("taskManager: wrote geojson snapshot %s with %d device positions", name, deviceCount)
}

type geoJSONFeatureCollection struct {
	Type     string           `json:"type"`
	Features []geoJSONFeature `json:"features"`
}

type geoJSONFeature struct {
	Type       string                 `json:"type"`
	Geometry   geoJSONGeometry        `json:"geometry"`
	Properties map[string]interface{} `json:"properties"`
}

type geoJSONGeometry struct {
	Type        string     `json:"type"`
	Coordinates [2]float64 `json:"coordinates"`
}

func buildGeoJSONSnapshot(ctx context.Context, conn *store.DBConnection) ([]byte, int, error) {
	devices, err := conn.RecentDevices(ctx, snapshotDevicesLimit)
	if err != nil {
		return nil, 0, fmt.Errorf("load recent devices: %w", err)
	}

	collection := geoJSONFeatureCollection{Type: "FeatureCollection"}

	for _, d := range devices {
		latest, err := conn.Latest(ctx, d.DeviceID)
		if err != nil || latest == nil {
			continue
		}

		plain, ok := freshness.Reconstruct(latest.FreshnessNode).(map[string]interface{})
		if !ok {
			continue
		}
		position, ok := plain["position"].(map[string]interface{})
		if !ok {
			continue
		}
		lat, latOk := position["latitude"].(float64)
		lon, lonOk := position["longitude"].(float64)
		if !latOk || !lonOk {
			continue
		}

		collection.Features = append(collection.Features, geoJSONFeature{
			Type:     "Feature",
			Geometry: geoJSONGeometry{Type: "Point", Coordinates: [2]float64{lon, lat}},
			Properties: map[string]interface{}{
				"device_id":       d.DeviceID,
				"last_updated_ts": d.LastUpdatedTs,
				"event_count":     d.EventCount,
			},
		})
	}

	data, err := json.Marshal(collection)
	if err != nil {
		return nil, 0, fmt.Errorf("marshal feature collection: %w", err)
	}
	return data, len(collection.Features), nil
}

// acquireLock takes a Redis SETNX-based mutual-exclusion lock: the pack
// carries no redsync/redislock-style library, so the lock is built
// directly on the client already used throughout (quota counters, the
// position cache, the processing-metrics ring).
func acquireLock(ctx context.Context, rdb *redis.Client, key string, ttl time.Duration) (token string, acquired bool, err error) {
	if rdb == nil {
		return "", false, fmt.Errorf("no redis client configured")
	}
	token = fmt.Sprintf("%d-%d", os.Getpid(), time.Now().UnixNano())
	ok, err := rdb.SetNX(ctx, key, token, ttl).Result()
	if err != nil {
		return "", false, err
	}
	return token, ok, nil
}

var releaseLockScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
else
	return 0
end`)

// releaseLock only deletes the lock key if it still holds this run's
// token, so a run that overran its TTL never deletes a newer holder's lock.
func releaseLock(ctx context.Context, rdb *redis.Client, key, token string) {
	if rdb == nil {
		return
	}
	if err := releaseLockScript.Run(ctx, rdb, []string{key}, token).Err(); err != nil && err != redis.Nil {
		log.Debugf("taskManager: snapshot lock release failed: %v", err)
	}
}

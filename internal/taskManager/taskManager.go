// Copyright (C) NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Package taskManager runs the background jobs that accompany the ingest
// and read paths: the size-driven database trimmer, a periodic process
// metrics sample, and a single-runner GeoJSON snapshot, all on a shared
// gocron/v2 Start()/Shutdown() lifecycle with one RegisterXService()
// function per concern.
package taskManager

import (
	"time"

	"github.com/clustercockpit/telemetry-enrichment/internal/metrics"
	"github.com/clustercockpit/telemetry-enrichment/internal/store"
	"github.com/clustercockpit/telemetry-enrichment/pkg/log"
	"github.com/clustercockpit/telemetry-enrichment/pkg/schema"
	"github.com/go-co-op/gocron/v2"
	"github.com/redis/go-redis/v9"
)

var s gocron.Scheduler

func parseDuration(raw string, fallback time.Duration) time.Duration {
	if raw == "" {
		return fallback
	}
	d, err := time.ParseDuration(raw)
	if err != nil {
		log.Warnf("taskManager: could not parse duration %q, using %s", raw, fallback)
		return fallback
	}
	return d
}

// Start creates the scheduler and registers every background job. dbPath
// is only consulted by the trimmer (and only matters for the sqlite3
// driver); rdb (the DBMetrics logical database) backs the process/ingest
// metrics samples, their mirroring into provider's Prometheus gauges, and
// the snapshot job's distributed lock.
func Start(conn *store.DBConnection, rdb *redis.Client, provider *metrics.Provider, dbPath string, cfg schema.ProgramConfig) error {
	var err error
	s, err = gocron.NewScheduler()
	if err != nil {
		return err
	}

	RegisterTrimmer(conn, dbPath, cfg.Trimmer)
	RegisterSystemMetricsSampler(rdb)
	RegisterMetricsExporter(provider, rdb, cfg.MetricsSampleInterval)
	RegisterSnapshotService(conn, rdb, cfg.Snapshot)

	s.Start()
	return nil
}

func Shutdown() error {
	if s == nil {
		return nil
	}
	return s.Shutdown()
}

// Copyright (C) NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.
package taskManager

import (
	"context"
	"time"

	"github.com/clustercockpit/telemetry-enrichment/internal/metrics"
	"github.com/clustercockpit/telemetry-enrichment/pkg/log"
	"github.com/go-co-op/gocron/v2"
	"github.com/redis/go-redis/v9"
)

const defaultMetricsSampleInterval = 15 * time.Second

// RegisterMetricsExporter periodically mirrors the processing_stats and
// system_stats Redis rings into provider's Prometheus gauges, so a
// scraper hitting /metrics always sees a reasonably fresh value without
// touching Redis on every scrape.
func RegisterMetricsExporter(provider *metrics.Provider, rdb *redis.Client, rawInterval string) {
	if provider == nil || rdb == nil {
		return
	}

	interval := parseDuration(rawInterval, defaultMetricsSampleInterval)
	log.Infof("taskManager: register metrics exporter sample with %s interval", interval)

	s.NewJob(gocron.DurationJob(interval),
		gocron.NewTask(
			func() {
				provider.Sample(context.Background(), rdb)
			}))
}

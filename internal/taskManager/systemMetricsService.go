// Copyright (C) NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.
package taskManager

import (
	"context"
	"encoding/json"
	"os"
	"time"

	"github.com/clustercockpit/telemetry-enrichment/pkg/log"
	"github.com/go-co-op/gocron/v2"
	"github.com/redis/go-redis/v9"
	"github.com/shirou/gopsutil/v4/process"
)

const (
	systemMetricsSampleInterval = 15 * time.Second
	systemMetricsRingLimit      = 399 // LTRIM upper bound; keeps at most 400 samples
	systemMetricsRingKey        = "system_stats"
)

// RegisterSystemMetricsSampler samples this process's own CPU and RSS
// usage every 15s and pushes it onto a capped Redis ring. A single binary
// plays every role here, so only the current process is sampled.
func RegisterSystemMetricsSampler(rdb *redis.Client) {
	if rdb == nil {
		return
	}

	proc, err := process.NewProcess(int32(os.Getpid()))
	if err != nil {
		log.Warnf("taskManager: could not look up own process for metrics sampling: %v", err)
		return
	}

	log.Infof("taskManager: register system metrics sampler with %s interval", systemMetricsSampleInterval)

	s.NewJob(gocron.DurationJob(systemMetricsSampleInterval),
		gocron.NewTask(
			func() {
				sampleSystemMetrics(context.Background(), rdb, proc)
			}))
}

func sampleSystemMetrics(ctx context.Context, rdb *redis.Client, proc *process.Process) {
	cpuPercent, err := proc.CPUPercentWithContext(ctx)
	if err != nil {
		log.Debugf("taskManager: cpu sample failed: %v", err)
		return
	}

	memInfo, err := proc.MemoryInfoWithContext(ctx)
	if err != nil {
		log.Debugf("taskManager: memory sample failed: %v", err)
		return
	}

	point, err := json.Marshal(map[string]interface{}{
		"ts":            time.Now().Unix(),
		"cpu_percent":   cpuPercent,
		"mem_rss_bytes": memInfo.RSS,
	})
	if err != nil {
		return
	}

	pipe := rdb.Pipeline()
	pipe.LPush(ctx, systemMetricsRingKey, point)
	pipe.LTrim(ctx, systemMetricsRingKey, 0, systemMetricsRingLimit)
	if _, err := pipe.Exec(ctx); err != nil {
		log.Debugf("taskManager: system metrics push failed: %v", err)
	}
}

// Copyright (C) NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Package metrics exposes the service's operational state as Prometheus
// gauges: the most recent entries pushed onto the "processing_stats" and
// "system_stats" Redis rings by internal/ingest and internal/taskManager,
// sampled on a timer and served over /metrics. The rings themselves stay
// the source of truth for any out-of-process inspection; this package
// only mirrors their head into scrapeable gauges.
package metrics

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/clustercockpit/telemetry-enrichment/pkg/log"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
)

const (
	processingStatsKey = "processing_stats"
	systemStatsKey     = "system_stats"
)

// Provider owns a private registry (rather than the global default one)
// so a Redis outage during sampling can never corrupt unrelated metrics
// registered elsewhere in the process.
type Provider struct {
	reg *prometheus.Registry

	batchSize      prometheus.Gauge
	batchDuration  prometheus.Gauge
	batchProcessed prometheus.Gauge
	batchSkipped   prometheus.Gauge
	cpuPercent     prometheus.Gauge
	memRSSBytes    prometheus.Gauge
}

func New() *Provider {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	p := &Provider{
		reg: reg,
		batchSize: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "ingest_last_batch_size",
			Help: "Number of records in the most recently processed ingest batch.",
		}),
		batchDuration: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "ingest_last_batch_duration_seconds",
			Help: "Wall-clock duration of the most recently processed ingest batch.",
		}),
		batchProcessed: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "ingest_last_batch_processed_records",
			Help: "Records persisted by the most recently processed ingest batch.",
		}),
		batchSkipped: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "ingest_last_batch_skipped_records",
			Help: "Records skipped as stale (event timestamp at or before the device's last known one) by the most recently processed ingest batch.",
		}),
		cpuPercent: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "process_sampled_cpu_percent",
			Help: "Process CPU percent from the most recent system metrics sample.",
		}),
		memRSSBytes: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "process_sampled_mem_rss_bytes",
			Help: "Process RSS bytes from the most recent system metrics sample.",
		}),
	}

	reg.MustRegister(p.batchSize, p.batchDuration, p.batchProcessed, p.batchSkipped, p.cpuPercent, p.memRSSBytes)
	return p
}

// Handler serves the registry in the standard Prometheus text exposition
// format.
func (p *Provider) Handler() http.Handler {
	return promhttp.HandlerFor(p.reg, promhttp.HandlerOpts{})
}

type batchStat struct {
	Count     int     `json:"count"`
	Duration  float64 `json:"duration_seconds"`
	Processed int     `json:"processed"`
	Skipped   int     `json:"skipped"`
}

type systemStat struct {
	CPUPercent  float64 `json:"cpu_percent"`
	MemRSSBytes uint64  `json:"mem_rss_bytes"`
}

// Sample reads the head of each ring (the most recently pushed entry, per
// pushMetric's LPUSH-then-LTRIM convention) and mirrors it into the
// gauges above. A Redis miss or a malformed entry leaves the prior gauge
// values in place rather than resetting them to zero.
func (p *Provider) Sample(ctx context.Context, rdb *redis.Client) {
	if rdb == nil {
		return
	}

	if raw, err := rdb.LIndex(ctx, processingStatsKey, 0).Result(); err == nil {
		var s batchStat
		if err := json.Unmarshal([]byte(raw), &s); err == nil {
			p.batchSize.Set(float64(s.Count))
			p.batchDuration.Set(s.Duration)
			p.batchProcessed.Set(float64(s.Processed))
			p.batchSkipped.Set(float64(s.Skipped))
		} else {
			log.Debugf("metrics: malformed processing_stats entry: %v", err)
		}
	} else if err != redis.Nil {
		log.Debugf("metrics: reading processing_stats: %v", err)
	}

	if raw, err := rdb.LIndex(ctx, systemStatsKey, 0).Result(); err == nil {
		var s systemStat
		if err := json.Unmarshal([]byte(raw), &s); err == nil {
			p.cpuPercent.Set(s.CPUPercent)
			p.memRSSBytes.Set(float64(s.MemRSSBytes))
		} else {
			log.Debugf("metrics: malformed system_stats entry: %v", err)
		}
	} else if err != redis.Nil {
		log.Debugf("metrics: reading system_stats: %v", err)
	}
}

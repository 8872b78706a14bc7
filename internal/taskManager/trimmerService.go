// Copyright (C) NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.
package taskManager

import (
	"context"
	"time"

	"github.com/clustercockpit/telemetry-enrichment/internal/store"
	"github.com/clustercockpit/telemetry-enrichment/pkg/log"
	"github.com/clustercockpit/telemetry-enrichment/pkg/schema"
	"github.com/go-co-op/gocron/v2"
)

const defaultTrimmerInterval = 6 * time.Hour

// RegisterTrimmer schedules store.Trimmer.Run on a fixed interval
// (default 6h).
func RegisterTrimmer(conn *store.DBConnection, dbPath string, cfg schema.TrimmerConfig) {
	interval := parseDuration(cfg.Interval, defaultTrimmerInterval)
	trimmer := store.NewTrimmer(conn, dbPath, cfg.MaxSizeBytes, cfg.TargetSizeBytes, cfg.ChunkRows)

	log.Infof("taskManager: register db trimmer with %s interval", interval)

	s.NewJob(gocron.DurationJob(interval),
		gocron.NewTask(
			func() {
				if err := trimmer.Run(context.Background()); err != nil {
					log.Errorf("taskManager: trimmer run failed: %v", err)
				}
			}))
}

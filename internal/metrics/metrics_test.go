// Copyright (C) NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.
package metrics_test

import (
	"context"
	"net/http/httptest"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/clustercockpit/telemetry-enrichment/internal/metrics"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestRedis(t *testing.T) *redis.Client {
	t.Helper()
	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)
	return redis.NewClient(&redis.Options{Addr: mr.Addr()})
}

func TestSampleWithEmptyRingsLeavesHandlerServing(t *testing.T) {
	p := metrics.New()
	rdb := newTestRedis(t)

	p.Sample(context.Background(), rdb)

	rr := httptest.NewRecorder()
	req := httptest.NewRequest("GET", "/metrics", nil)
	p.Handler().ServeHTTP(rr, req)
	assert.Equal(t, 200, rr.Code)
}

func TestSamplePopulatesGaugesFromRings(t *testing.T) {
	p := metrics.New()
	rdb := newTestRedis(t)
	ctx := context.Background()

	rdb.LPush(ctx, "processing_stats", `{"count":5,"duration_seconds":0.25,"processed":4,"skipped":1}`)
	rdb.LPush(ctx, "system_stats", `{"cpu_percent":12.5,"mem_rss_bytes":1048576}`)

	p.Sample(ctx, rdb)

	rr := httptest.NewRecorder()
	req := httptest.NewRequest("GET", "/metrics", nil)
	p.Handler().ServeHTTP(rr, req)

	body := rr.Body.String()
	assert.Contains(t, body, "ingest_last_batch_processed_records 4")
	assert.Contains(t, body, "ingest_last_batch_skipped_records 1")
	assert.Contains(t, body, "process_sampled_cpu_percent 12.5")
}

func TestSampleNilClientIsNoop(t *testing.T) {
	p := metrics.New()
	p.Sample(context.Background(), nil)
}

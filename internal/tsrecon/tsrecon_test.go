// Copyright (C) NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.
package tsrecon_test

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/clustercockpit/telemetry-enrichment/internal/tsrecon"
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

func TestResolveAbsoluteWinsAndSeedsBase(t *testing.T) {
	rdb := newTestRedis(t)
	r := tsrecon.New(rdb)
	ctx := context.Background()

	abs := int64(1_700_000_000)
	ts, err := r.Resolve(ctx, "dev-1", &abs, nil, nil)
	require.NoError(t, err)
	assert.Equal(t, time.Unix(abs, 0).UTC(), ts)
}

func TestResolveRelativeUsesCachedBase(t *testing.T) {
	rdb := newTestRedis(t)
	r := tsrecon.New(rdb)
	ctx := context.Background()

	abs := int64(1_700_000_000)
	_, err := r.Resolve(ctx, "dev-1", &abs, nil, nil)
	require.NoError(t, err)

	offset := int64(30)
	ts, err := r.Resolve(ctx, "dev-1", nil, &offset, nil)
	require.NoError(t, err)
	assert.Equal(t, time.Unix(abs+offset, 0).UTC(), ts)
}

func TestResolveRelativeWithoutBaseFallsBackToIngestAndInvalidates(t *testing.T) {
	rdb := newTestRedis(t)
	r := tsrecon.New(rdb)
	ctx := context.Background()

	offset := int64(30)
	ingest := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	ts, err := r.Resolve(ctx, "dev-2", nil, &offset, &ingest)
	require.NoError(t, err)
	assert.Equal(t, ingest, ts)

	// base now invalidated: a later relative-only record with no ingest
	// fallback must fail to resolve.
	_, err = r.Resolve(ctx, "dev-2", nil, &offset, nil)
	assert.ErrorIs(t, err, tsrecon.ErrNoTimestamp)
}

func TestResolveNoUsableFieldsErrors(t *testing.T) {
	rdb := newTestRedis(t)
	r := tsrecon.New(rdb)

	_, err := r.Resolve(context.Background(), "dev-3", nil, nil, nil)
	assert.ErrorIs(t, err, tsrecon.ErrNoTimestamp)
}

func TestFormat(t *testing.T) {
	ts := time.Date(2026, 3, 5, 8, 9, 10, 0, time.UTC)
	assert.Equal(t, "2026-03-05 08:09:10", tsrecon.Format(ts))
}

// Copyright (C) NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.
package ingest_test

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/clustercockpit/telemetry-enrichment/internal/ingest"
	"github.com/clustercockpit/telemetry-enrichment/internal/store"
	"github.com/clustercockpit/telemetry-enrichment/internal/tsrecon"
	"github.com/jmoiron/sqlx"
	_ "github.com/mattn/go-sqlite3"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestConn(t *testing.T) *store.DBConnection {
	t.Helper()
	path := filepath.Join(t.TempDir(), "test.db")
	db, err := sqlx.Open("sqlite3", path+"?_foreign_keys=on")
	require.NoError(t, err)
	db.SetMaxOpenConns(1)
	store.RunMigrations("sqlite3", db.DB)
	t.Cleanup(func() { db.Close() })
	return &store.DBConnection{DB: db, Driver: "sqlite3"}
}

func newTestRedis(t *testing.T) *redis.Client {
	t.Helper()
	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)
	return redis.NewClient(&redis.Options{Addr: mr.Addr()})
}

func newTestWorker(t *testing.T) (*ingest.Worker, *store.DBConnection) {
	t.Helper()
	conn := newTestConn(t)
	rdb := newTestRedis(t)
	w := ingest.New(conn, tsrecon.New(rdb), nil, nil, nil, rdb)
	return w, conn
}

func TestProcessDropsRecordsWithoutDeviceID(t *testing.T) {
	w, conn := newTestWorker(t)
	ctx := context.Background()

	ts := int64(1_700_000_000)
	batch := []ingest.RawRecord{
		{ID: "evt-1", DeviceID: "", Payload: map[string]interface{}{"ts": float64(ts), "p": float64(80)}},
	}

	result, err := w.Process(ctx, batch, time.Unix(ts, 0).UTC())
	require.NoError(t, err)
	assert.Equal(t, 0, result.Processed)

	latest, err := conn.Latest(ctx, "")
	require.NoError(t, err)
	assert.Nil(t, latest)
}

func TestProcessPersistsFreshDeviceAndAdvancesLatest(t *testing.T) {
	w, conn := newTestWorker(t)
	ctx := context.Background()

	ts := int64(1_700_000_000)
	batch := []ingest.RawRecord{
		{ID: "evt-1", DeviceID: "dev-A", Payload: map[string]interface{}{"ts": float64(ts), "p": float64(80), "n": "phone-A"}},
	}

	result, err := w.Process(ctx, batch, time.Unix(ts, 0).UTC())
	require.NoError(t, err)
	assert.Equal(t, 1, result.Processed)
	assert.Equal(t, 0, result.Skipped)

	latest, err := conn.Latest(ctx, "dev-A")
	require.NoError(t, err)
	require.NotNil(t, latest)
	assert.Equal(t, "2023-11-14 22:13:20", latest.LastUpdatedTs)
}

func TestProcessSkipsRecordAtOrBeforeLastKnownTimestamp(t *testing.T) {
	w, conn := newTestWorker(t)
	ctx := context.Background()

	base := int64(1_700_000_000)
	first := []ingest.RawRecord{
		{ID: "evt-1", DeviceID: "dev-B", Payload: map[string]interface{}{"ts": float64(base), "p": float64(90)}},
	}
	_, err := w.Process(ctx, first, time.Unix(base, 0).UTC())
	require.NoError(t, err)

	stale := []ingest.RawRecord{
		{ID: "evt-2", DeviceID: "dev-B", Payload: map[string]interface{}{"ts": float64(base), "p": float64(10)}},
	}
	result, err := w.Process(ctx, stale, time.Unix(base, 0).UTC())
	require.NoError(t, err)
	assert.Equal(t, 0, result.Processed)
	assert.Equal(t, 1, result.Skipped)

	latest, err := conn.Latest(ctx, "dev-B")
	require.NoError(t, err)
	node := latest.FreshnessNode
	require.NotNil(t, node)
}

func TestProcessOrdersOutOfOrderBatchAndCarriesStateForward(t *testing.T) {
	w, conn := newTestWorker(t)
	ctx := context.Background()

	base := int64(1_700_000_000)
	// delivered out of order: the later event first, earlier event second.
	batch := []ingest.RawRecord{
		{ID: "evt-later", DeviceID: "dev-C", Payload: map[string]interface{}{"ts": float64(base + 60), "p": float64(40)}},
		{ID: "evt-earlier", DeviceID: "dev-C", Payload: map[string]interface{}{"ts": float64(base), "p": float64(90), "n": "phone-C"}},
	}

	result, err := w.Process(ctx, batch, time.Unix(base+60, 0).UTC())
	require.NoError(t, err)
	assert.Equal(t, 2, result.Processed)

	history, err := conn.History(ctx, "dev-C", 10, nil)
	require.NoError(t, err)
	require.Len(t, history, 2)

	// newest-first: the later event's battery_percent must win the latest
	// projection, and the earlier event must still carry device_name forward
	// via transform's carry-forward since only the earlier record set it.
	newest := history[0]
	power := newest.HistoricalPayload["power"].(map[string]interface{})
	assert.EqualValues(t, 40, power["battery_percent"])
	assert.Equal(t, "phone-C", newest.HistoricalPayload["device_name"])
}

// Copyright (C) NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.
package store_test

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/clustercockpit/telemetry-enrichment/internal/freshness"
	"github.com/clustercockpit/telemetry-enrichment/internal/store"
	"github.com/jmoiron/sqlx"
	_ "github.com/mattn/go-sqlite3"
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

func mustLeaf(value interface{}, ts int64) freshness.Node {
	return &freshness.Leaf{Value: value, Ts: ts}
}

func TestSaveBatchInsertsAndUpsertsLatest(t *testing.T) {
	conn := newTestConn(t)
	ctx := context.Background()

	node := freshness.NewBranch()
	node.Children["battery_percent"] = mustLeaf(float64(50), 1700000000)

	err := conn.SaveBatch(ctx, []store.SaveRecord{{
		IngestID:          "evt-1",
		DeviceID:          "dev-A",
		EventTs:           time.Unix(1700000000, 0).UTC(),
		HistoricalPayload: map[string]interface{}{"battery_percent": 50.0},
		LatestFreshness:   node,
		RequestSizeBytes:  128,
	}})
	require.NoError(t, err)

	latest, err := conn.Latest(ctx, "dev-A")
	require.NoError(t, err)
	require.NotNil(t, latest)
	assert.Equal(t, "2023-11-14 22:13:20", latest.LastUpdatedTs)
}

func TestSaveBatchDuplicateIngestIDIgnored(t *testing.T) {
	conn := newTestConn(t)
	ctx := context.Background()

	rec := store.SaveRecord{
		IngestID:          "evt-dup",
		DeviceID:          "dev-B",
		EventTs:           time.Unix(1700000000, 0).UTC(),
		HistoricalPayload: map[string]interface{}{"battery_percent": 10.0},
		LatestFreshness:   freshness.NewBranch(),
	}
	require.NoError(t, conn.SaveBatch(ctx, []store.SaveRecord{rec}))
	require.NoError(t, conn.SaveBatch(ctx, []store.SaveRecord{rec}))

	events, err := conn.History(ctx, "dev-B", 10, nil)
	require.NoError(t, err)
	assert.Len(t, events, 1)
}

func TestSaveBatchDoesNotRegressLatestOnOlderEvent(t *testing.T) {
	conn := newTestConn(t)
	ctx := context.Background()

	fresh := freshness.NewBranch()
	fresh.Children["battery_percent"] = mustLeaf(float64(50), 1700000000)
	require.NoError(t, conn.SaveBatch(ctx, []store.SaveRecord{{
		IngestID: "evt-new", DeviceID: "dev-C", EventTs: time.Unix(1700000000, 0).UTC(),
		HistoricalPayload: map[string]interface{}{"battery_percent": 50.0}, LatestFreshness: fresh,
	}}))

	olderFresh := freshness.NewBranch()
	olderFresh.Children["battery_percent"] = mustLeaf(float64(10), 1699999000)
	require.NoError(t, conn.SaveBatch(ctx, []store.SaveRecord{{
		IngestID: "evt-old", DeviceID: "dev-C", EventTs: time.Unix(1699999000, 0).UTC(),
		HistoricalPayload: map[string]interface{}{"battery_percent": 10.0}, LatestFreshness: olderFresh,
	}}))

	latest, err := conn.Latest(ctx, "dev-C")
	require.NoError(t, err)
	require.NotNil(t, latest)
	assert.Equal(t, "2023-11-14 22:13:20", latest.LastUpdatedTs)

	events, err := conn.History(ctx, "dev-C", 10, nil)
	require.NoError(t, err)
	assert.Len(t, events, 2, "both events are retained in the historical log")
}

func TestHistoryPaginationCursor(t *testing.T) {
	conn := newTestConn(t)
	ctx := context.Background()

	for i, ts := range []int64{1700000000, 1700000100, 1700000200} {
		require.NoError(t, conn.SaveBatch(ctx, []store.SaveRecord{{
			IngestID: "evt-" + time.Unix(ts, 0).String(), DeviceID: "dev-D", EventTs: time.Unix(ts, 0).UTC(),
			HistoricalPayload: map[string]interface{}{"i": i}, LatestFreshness: freshness.NewBranch(),
		}}))
	}

	page1, err := conn.History(ctx, "dev-D", 2, nil)
	require.NoError(t, err)
	require.Len(t, page1, 3, "limit+1 rows returned to detect a further page")

	cursor := &store.Cursor{Ts: page1[1].EventTs, ID: page1[1].ID}
	page2, err := conn.History(ctx, "dev-D", 2, cursor)
	require.NoError(t, err)
	assert.Len(t, page2, 1)
}

func TestRecentDevices(t *testing.T) {
	conn := newTestConn(t)
	ctx := context.Background()

	require.NoError(t, conn.SaveBatch(ctx, []store.SaveRecord{{
		IngestID: "evt-x", DeviceID: "dev-X", EventTs: time.Unix(1700000000, 0).UTC(),
		HistoricalPayload: map[string]interface{}{}, LatestFreshness: freshness.NewBranch(),
	}}))

	devices, err := conn.RecentDevices(ctx, 10)
	require.NoError(t, err)
	require.Len(t, devices, 1)
	assert.Equal(t, "dev-X", devices[0].DeviceID)
	assert.Equal(t, int64(1), devices[0].EventCount)
}

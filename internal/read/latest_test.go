// Copyright (C) NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.
package read_test

import (
	"context"
	"encoding/json"
	"path/filepath"
	"testing"
	"time"

	"github.com/clustercockpit/telemetry-enrichment/internal/freshness"
	"github.com/clustercockpit/telemetry-enrichment/internal/read"
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

func TestRenderLatestNotFound(t *testing.T) {
	conn := newTestConn(t)
	_, err := read.RenderLatest(context.Background(), conn, "nope", time.Now())
	assert.ErrorIs(t, err, read.ErrDeviceNotFound)
}

func TestRenderLatestAttachesDataFreshnessAndOrdersKeys(t *testing.T) {
	conn := newTestConn(t)
	ctx := context.Background()
	now := time.Unix(1700000000, 0).UTC()

	node := freshness.NewBranch()
	node.Children["device_name"] = mustLeaf("phone-1", now.Unix()-10)
	position := freshness.NewBranch()
	position.Children["latitude"] = mustLeaf(48.137154, now.Unix()-5)
	position.Children["longitude"] = mustLeaf(11.576124, now.Unix()-5)
	position.Children["geohash_precision_in_meters"] = mustLeaf(float64(100), now.Unix()-5)
	node.Children["position"] = position

	require.NoError(t, conn.SaveBatch(ctx, []store.SaveRecord{{
		IngestID: "evt-1", DeviceID: "dev-A", EventTs: now,
		HistoricalPayload: map[string]interface{}{"device_name": "phone-1"},
		LatestFreshness:   node,
	}}))

	ordered, err := read.RenderLatest(ctx, conn, "dev-A", now)
	require.NoError(t, err)

	raw, err := json.Marshal(ordered)
	require.NoError(t, err)

	var decoded map[string]interface{}
	require.NoError(t, json.Unmarshal(raw, &decoded))

	assert.Equal(t, "phone-1", decoded["device_name"])
	position2 := decoded["position"].(map[string]interface{})
	assert.InDelta(t, 48.13715, position2["latitude"], 0.00001, "rounded to 5 decimals for 100m precision")

	diagnostics := decoded["diagnostics"].(map[string]interface{})
	freshnessTree := diagnostics["data_freshness"].(map[string]interface{})
	assert.EqualValues(t, 10, freshnessTree["device_name_age_in_seconds"])
}

func TestRenderLatestWeatherAgeOverride(t *testing.T) {
	conn := newTestConn(t)
	ctx := context.Background()
	now := time.Unix(1700003600, 0).UTC()
	fetchTime := time.Unix(1700000000, 0).UTC()
	fetchStr := fetchTime.Format(time.RFC3339)

	node := freshness.NewBranch()
	weatherDiag := freshness.NewBranch()
	weatherDiag.Children["weather_request_timestamp_utc"] = mustLeaf(fetchStr, fetchTime.Unix())
	diagnostics := freshness.NewBranch()
	diagnostics.Children["weather"] = weatherDiag
	node.Children["diagnostics"] = diagnostics

	require.NoError(t, conn.SaveBatch(ctx, []store.SaveRecord{{
		IngestID: "evt-1", DeviceID: "dev-B", EventTs: now,
		HistoricalPayload: map[string]interface{}{},
		LatestFreshness:   node,
	}}))

	ordered, err := read.RenderLatest(ctx, conn, "dev-B", now)
	require.NoError(t, err)

	raw, err := json.Marshal(ordered)
	require.NoError(t, err)
	var decoded map[string]interface{}
	require.NoError(t, json.Unmarshal(raw, &decoded))

	weatherAges := decoded["diagnostics"].(map[string]interface{})["data_freshness"].(map[string]interface{})["diagnostics"].(map[string]interface{})["weather"].(map[string]interface{})
	assert.EqualValues(t, 3600, weatherAges["weather_data_actual_age_in_seconds"])
	_, stale := weatherAges["weather_request_timestamp_utc_age_in_seconds"]
	assert.False(t, stale)
}

// Copyright (C) NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.
package read_test

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/clustercockpit/telemetry-enrichment/internal/freshness"
	"github.com/clustercockpit/telemetry-enrichment/internal/read"
	"github.com/clustercockpit/telemetry-enrichment/internal/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseCursorRoundTrips(t *testing.T) {
	cursor, err := read.ParseCursor("2023-11-14 22:13:20,42")
	require.NoError(t, err)
	assert.Equal(t, "2023-11-14 22:13:20", cursor.Ts)
	assert.EqualValues(t, 42, cursor.ID)

	cursor, err = read.ParseCursor("")
	require.NoError(t, err)
	assert.Nil(t, cursor)

	_, err = read.ParseCursor("not-a-cursor")
	assert.Error(t, err)
}

func TestRenderHistoryDiffsAgainstOlderEventInPage(t *testing.T) {
	conn := newTestConn(t)
	ctx := context.Background()

	require.NoError(t, conn.SaveBatch(ctx, []store.SaveRecord{{
		IngestID: "evt-1", DeviceID: "dev-H", EventTs: time.Unix(1700000000, 0).UTC(),
		HistoricalPayload: map[string]interface{}{"power": map[string]interface{}{"battery_percent": 70.0}},
		LatestFreshness:   freshness.NewBranch(),
	}}))
	require.NoError(t, conn.SaveBatch(ctx, []store.SaveRecord{{
		IngestID: "evt-2", DeviceID: "dev-H", EventTs: time.Unix(1700000100, 0).UTC(),
		HistoricalPayload: map[string]interface{}{"power": map[string]interface{}{"battery_percent": 65.0}},
		LatestFreshness:   freshness.NewBranch(),
	}}))

	page, err := read.RenderHistory(ctx, conn, "dev-H", 10, nil)
	require.NoError(t, err)
	require.Len(t, page.Records, 2)
	assert.Nil(t, page.NextCursor)

	newest := page.Records[0]
	assert.Equal(t, "evt-2", newest.IngestID)
	newestRaw, err := json.Marshal(newest.Changes)
	require.NoError(t, err)
	assert.Contains(t, string(newestRaw), `"battery_percent":65`)

	oldest := page.Records[1]
	assert.Equal(t, "evt-1", oldest.IngestID)
	oldestRaw, err := json.Marshal(oldest.Changes)
	require.NoError(t, err)
	assert.Contains(t, string(oldestRaw), `"battery_percent":70`)
}

func TestRenderHistoryPaginationProducesNextCursor(t *testing.T) {
	conn := newTestConn(t)
	ctx := context.Background()

	for _, ts := range []int64{1700000000, 1700000100, 1700000200} {
		require.NoError(t, conn.SaveBatch(ctx, []store.SaveRecord{{
			IngestID: "evt-" + time.Unix(ts, 0).String(), DeviceID: "dev-I", EventTs: time.Unix(ts, 0).UTC(),
			HistoricalPayload: map[string]interface{}{"i": float64(ts)},
			LatestFreshness:   freshness.NewBranch(),
		}}))
	}

	page, err := read.RenderHistory(ctx, conn, "dev-I", 2, nil)
	require.NoError(t, err)
	require.Len(t, page.Records, 2)
	require.NotNil(t, page.NextCursor)

	cursor, err := read.ParseCursor(page.NextCursor.Raw)
	require.NoError(t, err)

	page2, err := read.RenderHistory(ctx, conn, "dev-I", 2, cursor)
	require.NoError(t, err)
	assert.Len(t, page2.Records, 1)
	assert.Nil(t, page2.NextCursor)
}

func TestRenderHistoryReportsDroppedKeyAsNullMarker(t *testing.T) {
	conn := newTestConn(t)
	ctx := context.Background()

	require.NoError(t, conn.SaveBatch(ctx, []store.SaveRecord{{
		IngestID: "evt-1", DeviceID: "dev-K", EventTs: time.Unix(1700000000, 0).UTC(),
		HistoricalPayload: map[string]interface{}{
			"network": map[string]interface{}{"wifi": map[string]interface{}{"bssid": "aa:bb:cc:dd:ee:ff"}},
		},
		LatestFreshness: freshness.NewBranch(),
	}}))
	require.NoError(t, conn.SaveBatch(ctx, []store.SaveRecord{{
		IngestID: "evt-2", DeviceID: "dev-K", EventTs: time.Unix(1700000100, 0).UTC(),
		HistoricalPayload: map[string]interface{}{
			"network": map[string]interface{}{"wifi": map[string]interface{}{}},
		},
		LatestFreshness: freshness.NewBranch(),
	}}))

	page, err := read.RenderHistory(ctx, conn, "dev-K", 10, nil)
	require.NoError(t, err)
	require.Len(t, page.Records, 2)

	newest := page.Records[0]
	assert.Equal(t, "evt-2", newest.IngestID)

	raw, err := json.Marshal(newest.Changes)
	require.NoError(t, err)
	assert.Contains(t, string(raw), `"bssid":null`,
		"a key dropped between events must still surface, as an explicit null marker")
}

func TestRenderHistoryLiftsDiagnosticsToEventDiagnostics(t *testing.T) {
	conn := newTestConn(t)
	ctx := context.Background()

	require.NoError(t, conn.SaveBatch(ctx, []store.SaveRecord{{
		IngestID: "evt-1", DeviceID: "dev-J", EventTs: time.Unix(1700000000, 0).UTC(),
		HistoricalPayload: map[string]interface{}{
			"diagnostics": map[string]interface{}{
				"ingest_request_id": "req-1",
				"timestamps":        map[string]interface{}{"event_ts": "2023-11-14 22:13:20"},
				"ingest_warnings":   []interface{}{"w1"},
			},
		},
		LatestFreshness: freshness.NewBranch(),
	}}))

	page, err := read.RenderHistory(ctx, conn, "dev-J", 10, nil)
	require.NoError(t, err)
	require.Len(t, page.Records, 1)

	rec := page.Records[0]
	assert.Equal(t, "req-1", rec.EventDiagnostics["ingest_request_id"])

	changes := rec.Changes
	changesMap, ok := changes.(*read.OrderedMap)
	require.True(t, ok)
	diagVal, hasDiag := changesMap.Get("diagnostics")
	if hasDiag {
		diagMap := diagVal.(*read.OrderedMap)
		_, hasID := diagMap.Get("ingest_request_id")
		assert.False(t, hasID, "ingest_request_id must be lifted out of changes, not duplicated")
		_, hasWarnings := diagMap.Get("ingest_warnings")
		assert.True(t, hasWarnings, "fields other than ingest_request_id/timestamps stay in changes")
	}
}

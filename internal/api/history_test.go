// Copyright (C) NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.
package api_test

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/clustercockpit/telemetry-enrichment/internal/freshness"
	"github.com/clustercockpit/telemetry-enrichment/internal/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGetHistoryRejectsOutOfRangeLimit(t *testing.T) {
	r, _ := newTestRouter(t)

	req := httptest.NewRequest(http.MethodGet, "/data/history?device_id=dev-A&limit=0", nil)
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestGetHistoryRejectsMalformedCursor(t *testing.T) {
	r, _ := newTestRouter(t)

	req := httptest.NewRequest(http.MethodGet, "/data/history?cursor=not-a-cursor", nil)
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestGetHistoryRendersPaginationAndNavigation(t *testing.T) {
	r, restapi := newTestRouter(t)
	ctx := context.Background()
	base := time.Unix(1700000000, 0).UTC()

	for i := 0; i < 3; i++ {
		node := freshness.NewBranch()
		ts := base.Add(time.Duration(i) * time.Minute)
		node.Children["battery_percent"] = &freshness.Leaf{Value: float64(50 + i), Ts: ts.Unix()}
		require.NoError(t, restapi.Conn.SaveBatch(ctx, []store.SaveRecord{{
			IngestID: fmt.Sprintf("evt-history-%d", i), DeviceID: "dev-A", EventTs: ts,
			HistoricalPayload: map[string]interface{}{"battery_percent": float64(50 + i)},
			LatestFreshness:   node,
		}}))
	}

	req := httptest.NewRequest(http.MethodGet, "/data/history?device_id=dev-A&limit=2", nil)
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	body := rec.Body.String()
	assert.Contains(t, body, `"records_returned":2`)
	assert.Contains(t, body, `"next_page"`)
	assert.Contains(t, body, `"latest":"http://example.com/data/latest/dev-A"`)
}

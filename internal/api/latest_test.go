// Copyright (C) NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.
package api_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/clustercockpit/telemetry-enrichment/internal/freshness"
	"github.com/clustercockpit/telemetry-enrichment/internal/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGetLatestNotFound(t *testing.T) {
	r, _ := newTestRouter(t)

	req := httptest.NewRequest(http.MethodGet, "/data/latest/nope", nil)
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestGetLatestRendersDataAndNavigation(t *testing.T) {
	r, restapi := newTestRouter(t)
	ctx := context.Background()
	now := time.Unix(1700000000, 0).UTC()

	node := freshness.NewBranch()
	node.Children["device_name"] = &freshness.Leaf{Value: "phone-1", Ts: now.Unix() - 5}

	require.NoError(t, restapi.Conn.SaveBatch(ctx, []store.SaveRecord{{
		IngestID: "evt-1", DeviceID: "dev-A", EventTs: now,
		HistoricalPayload: map[string]interface{}{"device_name": "phone-1"},
		LatestFreshness:   node,
	}}))

	req := httptest.NewRequest(http.MethodGet, "/data/latest/dev-A", nil)
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	body := rec.Body.String()
	assert.Contains(t, body, `"self_url":"http://example.com/data/latest/dev-A"`)
	assert.Contains(t, body, `"history":"http://example.com/data/history?device_id=dev-A&limit=50"`)
	assert.Contains(t, body, `"phone-1"`)
}

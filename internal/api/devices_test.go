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

func TestGetDevicesRejectsNonPositiveLimit(t *testing.T) {
	r, _ := newTestRouter(t)

	req := httptest.NewRequest(http.MethodGet, "/data/devices?limit=-1", nil)
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestGetDevicesListsRecentDevicesWithLinks(t *testing.T) {
	r, restapi := newTestRouter(t)
	ctx := context.Background()
	now := time.Unix(1700000000, 0).UTC()

	node := freshness.NewBranch()
	node.Children["device_name"] = &freshness.Leaf{Value: "phone-1", Ts: now.Unix()}
	require.NoError(t, restapi.Conn.SaveBatch(ctx, []store.SaveRecord{{
		IngestID: "evt-devices-1", DeviceID: "dev-A", EventTs: now,
		HistoricalPayload: map[string]interface{}{"device_name": "phone-1"},
		LatestFreshness:   node,
	}}))

	req := httptest.NewRequest(http.MethodGet, "/data/devices", nil)
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	body := rec.Body.String()
	assert.Contains(t, body, `"device_id":"dev-A"`)
	assert.Contains(t, body, `"latest":"http://example.com/data/latest/dev-A"`)
}

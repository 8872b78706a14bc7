// Copyright (C) NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.
package read_test

import (
	"context"
	"testing"
	"time"

	"github.com/clustercockpit/telemetry-enrichment/internal/freshness"
	"github.com/clustercockpit/telemetry-enrichment/internal/read"
	"github.com/clustercockpit/telemetry-enrichment/internal/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRenderDevicesIncludesReconstructedName(t *testing.T) {
	conn := newTestConn(t)
	ctx := context.Background()

	node := freshness.NewBranch()
	node.Children["device_name"] = mustLeaf("phone-1", 1700000000)

	require.NoError(t, conn.SaveBatch(ctx, []store.SaveRecord{{
		IngestID: "evt-1", DeviceID: "dev-K", EventTs: time.Unix(1700000000, 0).UTC(),
		HistoricalPayload: map[string]interface{}{"device_name": "phone-1"},
		LatestFreshness:   node,
	}}))

	devices, err := read.RenderDevices(ctx, conn, 10)
	require.NoError(t, err)
	require.Len(t, devices, 1)
	assert.Equal(t, "dev-K", devices[0].DeviceID)
	assert.Equal(t, "phone-1", devices[0].DeviceName)
	assert.EqualValues(t, 1, devices[0].EventCount)
}

func TestRenderDevicesEmpty(t *testing.T) {
	conn := newTestConn(t)
	devices, err := read.RenderDevices(context.Background(), conn, 10)
	require.NoError(t, err)
	assert.Empty(t, devices)
}

// Copyright (C) NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.
package read

import (
	"context"

	"github.com/clustercockpit/telemetry-enrichment/internal/freshness"
	"github.com/clustercockpit/telemetry-enrichment/internal/store"
)

// DeviceSummary is one row of the recent-devices overview.
type DeviceSummary struct {
	DeviceID      string
	DeviceName    string
	LastUpdatedTs string
	EventCount    int64
}

// RenderDevices lists the most recently active devices, each with its
// last-reported display name reconstructed from its stored freshness tree.
func RenderDevices(ctx context.Context, conn *store.DBConnection, limit int) ([]DeviceSummary, error) {
	rows, err := conn.RecentDevices(ctx, limit)
	if err != nil {
		return nil, err
	}

	summaries := make([]DeviceSummary, 0, len(rows))
	for _, row := range rows {
		deviceName := ""
		if latest, err := conn.Latest(ctx, row.DeviceID); err == nil && latest != nil {
			plain := asMap(freshness.Reconstruct(latest.FreshnessNode))
			if name, ok := plain["device_name"].(string); ok {
				deviceName = name
			}
		}

		summaries = append(summaries, DeviceSummary{
			DeviceID:      row.DeviceID,
			DeviceName:    deviceName,
			LastUpdatedTs: row.LastUpdatedTs,
			EventCount:    row.EventCount,
		})
	}
	return summaries, nil
}

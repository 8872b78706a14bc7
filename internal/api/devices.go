// Copyright (C) NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.
package api

import (
	"fmt"
	"net/http"
	"strconv"

	"github.com/clustercockpit/telemetry-enrichment/internal/read"
)

const defaultDevicesLimit = 20

// getDevices implements GET /data/devices?limit: the most recently active
// devices with their aggregate counters and read-endpoint links.
func (api *RestApi) getDevices(rw http.ResponseWriter, r *http.Request) {
	limit := defaultDevicesLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 1 {
			handleError(fmt.Errorf("limit must be a positive integer"), http.StatusBadRequest, rw)
			return
		}
		limit = parsed
	}

	summaries, err := read.RenderDevices(r.Context(), api.Conn, limit)
	if err != nil {
		handleError(fmt.Errorf("load devices: %w", err), http.StatusInternalServerError, rw)
		return
	}

	base := baseURL(r)
	devices := make([]map[string]interface{}, 0, len(summaries))
	for _, d := range summaries {
		devices = append(devices, map[string]interface{}{
			"device_id":     d.DeviceID,
			"device_name":   d.DeviceName,
			"last_seen":     displayTimestamp(d.LastUpdatedTs),
			"total_records": d.EventCount,
			"links": map[string]string{
				"latest":  base + "/data/latest/" + d.DeviceID,
				"history": base + "/data/history?device_id=" + d.DeviceID + "&limit=50",
			},
		})
	}

	writeJSON(rw, http.StatusOK, map[string]interface{}{
		"request":    map[string]string{"self_url": base + "/data/devices?limit=" + strconv.Itoa(limit)},
		"navigation": map[string]string{"root": base + "/"},
		"data":       devices,
	})
}

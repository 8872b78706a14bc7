// Copyright (C) NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.
package api

import (
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/clustercockpit/telemetry-enrichment/internal/read"
	"github.com/gorilla/mux"
)

// getLatest implements GET /data/latest/{device_id}: renders the grouped,
// age-annotated current state for one device.
func (api *RestApi) getLatest(rw http.ResponseWriter, r *http.Request) {
	deviceID := mux.Vars(r)["device_id"]

	data, err := read.RenderLatest(r.Context(), api.Conn, deviceID, time.Now().UTC())
	if errors.Is(err, read.ErrDeviceNotFound) {
		handleError(fmt.Errorf("no state found for device %q", deviceID), http.StatusNotFound, rw)
		return
	}
	if err != nil {
		handleError(fmt.Errorf("load latest state: %w", err), http.StatusInternalServerError, rw)
		return
	}

	writeJSON(rw, http.StatusOK, map[string]interface{}{
		"request": map[string]string{"self_url": baseURL(r) + "/data/latest/" + deviceID},
		"navigation": map[string]string{
			"root":    baseURL(r) + "/",
			"history": baseURL(r) + "/data/history?device_id=" + deviceID + "&limit=50",
		},
		"data": data,
	})
}

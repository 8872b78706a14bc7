// Copyright (C) NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.
package api

import (
	"fmt"
	"net/http"
	"net/url"
	"strconv"

	"github.com/clustercockpit/telemetry-enrichment/internal/read"
)

const (
	defaultHistoryLimit = 50
	maxHistoryLimit     = 500
)

type historyPagination struct {
	Limit           int               `json:"limit"`
	RecordsReturned int               `json:"records_returned"`
	NextCursor      *historyCursor    `json:"next_cursor,omitempty"`
	TimeRange       *historyTimeRange `json:"time_range,omitempty"`
}

type historyCursor struct {
	Raw       string `json:"raw"`
	Timestamp string `json:"timestamp"`
	ID        int64  `json:"id"`
}

type historyTimeRange struct {
	Start string `json:"start"`
	End   string `json:"end"`
}

// getHistory implements GET /data/history?device_id=&limit=&cursor=: pages
// of device events rendered as successive deltas.
func (api *RestApi) getHistory(rw http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	deviceID := q.Get("device_id")

	limit := defaultHistoryLimit
	if raw := q.Get("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 1 || parsed > maxHistoryLimit {
			handleError(fmt.Errorf("limit must be an integer between 1 and %d", maxHistoryLimit), http.StatusBadRequest, rw)
			return
		}
		limit = parsed
	}

	rawCursor := q.Get("cursor")
	cursor, err := read.ParseCursor(rawCursor)
	if err != nil {
		handleError(err, http.StatusBadRequest, rw)
		return
	}

	page, err := read.RenderHistory(r.Context(), api.Conn, deviceID, limit, cursor)
	if err != nil {
		handleError(fmt.Errorf("load history: %w", err), http.StatusInternalServerError, rw)
		return
	}

	base := baseURL(r)
	baseParams := url.Values{}
	baseParams.Set("limit", strconv.Itoa(limit))
	if deviceID != "" {
		baseParams.Set("device_id", deviceID)
	}

	selfParams := cloneValues(baseParams)
	if rawCursor != "" {
		selfParams.Set("cursor", rawCursor)
	}

	navigation := map[string]string{"root": base + "/"}
	if deviceID != "" {
		navigation["latest"] = base + "/data/latest/" + deviceID
	}
	if rawCursor != "" {
		navigation["first_page"] = base + "/data/history?" + baseParams.Encode()
	}

	pagination := historyPagination{Limit: limit, RecordsReturned: len(page.Records)}
	if page.NextCursor != nil {
		nextParams := cloneValues(baseParams)
		nextParams.Set("cursor", page.NextCursor.Raw)
		navigation["next_page"] = base + "/data/history?" + nextParams.Encode()
		pagination.NextCursor = &historyCursor{
			Raw:       page.NextCursor.Raw,
			Timestamp: displayTimestamp(page.NextCursor.Timestamp),
			ID:        page.NextCursor.ID,
		}
	}
	if page.TimeRangeStart != "" {
		pagination.TimeRange = &historyTimeRange{
			Start: displayTimestamp(page.TimeRangeStart),
			End:   displayTimestamp(page.TimeRangeEnd),
		}
	}

	records := make([]map[string]interface{}, 0, len(page.Records))
	for _, rec := range page.Records {
		records = append(records, map[string]interface{}{
			"id":                 rec.ID,
			"original_ingest_id": rec.IngestID,
			"changes":            rec.Changes,
			"diagnostics":        rec.EventDiagnostics,
		})
	}

	writeJSON(rw, http.StatusOK, map[string]interface{}{
		"request":    map[string]string{"self_url": base + "/data/history?" + selfParams.Encode()},
		"navigation": navigation,
		"pagination": pagination,
		"data":       records,
	})
}

func cloneValues(v url.Values) url.Values {
	out := make(url.Values, len(v))
	for k, vals := range v {
		out[k] = append([]string(nil), vals...)
	}
	return out
}

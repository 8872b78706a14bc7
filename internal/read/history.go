// Copyright (C) NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.
package read

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/clustercockpit/telemetry-enrichment/internal/freshness"
	"github.com/clustercockpit/telemetry-enrichment/internal/store"
)

// HistoryPage is the rendered response for a history query: one delta per
// event plus the pagination envelope needed to fetch the next page.
type HistoryPage struct {
	Records      []HistoryRecord
	Limit        int
	NextCursor   *NextCursor
	TimeRangeStart string
	TimeRangeEnd   string
}

// HistoryRecord is one event rendered as the change it introduced relative
// to the event immediately before it (or, when no older event exists past
// the page boundary, its full state).
type HistoryRecord struct {
	ID              int64
	IngestID        string
	Changes         interface{}
	EventDiagnostics map[string]interface{}
}

// NextCursor identifies where the following page begins.
type NextCursor struct {
	Raw       string
	Timestamp string
	ID        int64
}

// ParseCursor decodes a "ts,id" cursor string as submitted by a client.
func ParseCursor(raw string) (*store.Cursor, error) {
	if raw == "" {
		return nil, nil
	}
	parts := strings.SplitN(raw, ",", 2)
	if len(parts) != 2 {
		return nil, fmt.Errorf("read: invalid cursor %q", raw)
	}
	id, err := strconv.ParseInt(parts[1], 10, 64)
	if err != nil {
		return nil, fmt.Errorf("read: invalid cursor %q: %w", raw, err)
	}
	return &store.Cursor{Ts: parts[0], ID: id}, nil
}

// RenderHistory fetches up to limit+1 events and renders the first limit
// of them as successive deltas, each diffed against the event immediately
// older than it. The oldest event in the page is diffed against the extra
// fetched row when one exists; only when there is no older event at all
// does it get its full state instead.
func RenderHistory(ctx context.Context, conn *store.DBConnection, deviceID string, limit int, cursor *store.Cursor) (*HistoryPage, error) {
	rows, err := conn.History(ctx, deviceID, limit, cursor)
	if err != nil {
		return nil, err
	}

	toProcess := rows
	if len(rows) > limit {
		toProcess = rows[:limit]
	}

	records := make([]HistoryRecord, 0, len(toProcess))
	for i, current := range toProcess {
		var changes interface{}
		if i+1 < len(rows) {
			changes = diffPayloads(current.HistoricalPayload, rows[i+1].HistoricalPayload)
		} else {
			changes = current.HistoricalPayload
		}

		changesMap := asMap(changes)
		eventDiagnostics := map[string]interface{}{}
		if currentDiag, ok := current.HistoricalPayload["diagnostics"].(map[string]interface{}); ok {
			eventDiagnostics["ingest_request_id"] = currentDiag["ingest_request_id"]
			eventDiagnostics["timestamps"] = currentDiag["timestamps"]
		}
		if diagChanges, ok := changesMap["diagnostics"].(map[string]interface{}); ok {
			delete(diagChanges, "ingest_request_id")
			delete(diagChanges, "timestamps")
			if len(diagChanges) == 0 {
				delete(changesMap, "diagnostics")
			}
		}

		records = append(records, HistoryRecord{
			ID:               current.ID,
			IngestID:         current.IngestID,
			Changes:          applyKeyOrder(cleanupEmpty(changesMap), "data"),
			EventDiagnostics: asMap(cleanupEmpty(eventDiagnostics)),
		})
	}

	page := &HistoryPage{Records: records, Limit: limit}

	if len(rows) > limit {
		last := rows[limit]
		page.NextCursor = &NextCursor{
			Raw:       last.EventTs + "," + strconv.FormatInt(last.ID, 10),
			Timestamp: last.EventTs,
			ID:        last.ID,
		}
	}

	if len(toProcess) > 0 {
		page.TimeRangeStart = toProcess[0].EventTs
		page.TimeRangeEnd = toProcess[len(toProcess)-1].EventTs
	}

	return page, nil
}

// diffPayloads renders the field-level changes between two reconstructed
// payloads as a nested map of new values, keeping only branches that
// actually changed so history entries stay small. A key present only in
// previous (dropped between the two events) is reported with an explicit
// nil marker rather than being silently omitted.
//
// Delegates to freshness.Diff - the same tree-diff already used to age
// and reconstruct the latest-state projection - by lifting both plain
// payloads into freshness trees first. The timestamp freshness.Convert
// stamps each leaf with is irrelevant here; Diff only compares values.
func diffPayloads(current, previous map[string]interface{}) map[string]interface{} {
	oldNode := freshness.Convert(previous, 0)
	newNode := freshness.Convert(current, 0)

	out := map[string]interface{}{}
	for _, entry := range freshness.Diff(oldNode, newNode) {
		setDiffPath(out, strings.Split(entry.Path, "."), entry)
	}
	return out
}

// setDiffPath writes one diff entry into its dotted position in out,
// creating intermediate maps as needed. A removed leaf is written as a
// removedField value, which marshals as null - the "this field used to
// exist" marker.
func setDiffPath(out map[string]interface{}, parts []string, entry freshness.DiffEntry) {
	if len(parts) == 1 {
		if entry.Removed {
			out[parts[0]] = removedField{}
		} else {
			out[parts[0]] = entry.NewValue
		}
		return
	}

	child, ok := out[parts[0]].(map[string]interface{})
	if !ok {
		child = map[string]interface{}{}
		out[parts[0]] = child
	}
	setDiffPath(child, parts[1:], entry)
}

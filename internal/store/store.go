// Copyright (C) NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.
package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/clustercockpit/telemetry-enrichment/internal/freshness"
	"github.com/clustercockpit/telemetry-enrichment/internal/tsrecon"
	"github.com/clustercockpit/telemetry-enrichment/pkg/log"
	"github.com/jmoiron/sqlx"
)

// SaveRecord is one event produced by the ingest worker, ready to be
// appended to the historical log and conditionally projected into the
// device's latest-state row.
type SaveRecord struct {
	IngestID          string
	DeviceID          string
	EventTs           time.Time
	HistoricalPayload map[string]interface{}
	LatestFreshness   freshness.Node
	RequestSizeBytes  int
}

// SaveBatch persists an entire ingest batch in one transaction: every
// record is appended (duplicates on ingest_id silently ignored), and each
// device's latest projection is advanced only if this record's event_ts
// strictly exceeds the row currently stored - so batches delivered out of
// order never move the latest state backwards.
func (c *DBConnection) SaveBatch(ctx context.Context, records []SaveRecord) error {
	if len(records) == 0 {
		return nil
	}

	tx, err := c.DB.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("store: begin transaction: %w", err)
	}
	defer tx.Rollback()

	now := time.Now().UTC().Format("2006-01-02 15:04:05")

	insertEvent := `INSERT OR IGNORE INTO enriched_telemetry`
	if c.Driver == "mysql" {
		insertEvent = `INSERT IGNORE INTO enriched_telemetry`
	}

	for _, rec := range records {
		historical, err := json.Marshal(rec.HistoricalPayload)
		if err != nil {
			return fmt.Errorf("store: marshal historical payload for %s: %w", rec.DeviceID, err)
		}

		eventTs := tsrecon.Format(rec.EventTs)

		if _, err := tx.ExecContext(ctx,
			insertEvent+`
				(ingest_id, device_id, event_ts, historical_payload, request_size_bytes, processed_at)
			 VALUES (?, ?, ?, ?, ?, ?)`,
			rec.IngestID, rec.DeviceID, eventTs, string(historical), rec.RequestSizeBytes, now,
		); err != nil {
			return fmt.Errorf("store: insert event for %s: %w", rec.DeviceID, err)
		}

		freshJSON, err := freshness.Marshal(rec.LatestFreshness)
		if err != nil {
			return fmt.Errorf("store: marshal freshness for %s: %w", rec.DeviceID, err)
		}

		if err := upsertLatest(ctx, tx, rec.DeviceID, string(freshJSON), eventTs); err != nil {
			return fmt.Errorf("store: upsert latest for %s: %w", rec.DeviceID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("store: commit batch: %w", err)
	}
	log.Debugf("store: persisted %d events across %d devices", len(records), countDevices(records))
	return nil
}

func countDevices(records []SaveRecord) int {
	seen := make(map[string]struct{}, len(records))
	for _, r := range records {
		seen[r.DeviceID] = struct{}{}
	}
	return len(seen)
}

// upsertLatest implements the conditional upsert: insert a new row if the
// device has never been seen, or overwrite the existing one only when
// eventTs strictly exceeds the stored last_updated_ts. Both sqlite3 and
// mysql support ON CONFLICT / ON DUPLICATE with a guard condition via a
// portable SELECT-then-branch since a WHERE-guarded upsert is not
// uniformly expressible across both drivers' dialects.
func upsertLatest(ctx context.Context, tx *sqlx.Tx, deviceID, freshnessJSON, eventTs string) error {
	var storedTs string
	err := tx.GetContext(ctx, &storedTs, `SELECT last_updated_ts FROM latest_enriched_state WHERE device_id = ?`, deviceID)
	switch {
	case err == sql.ErrNoRows:
		_, err = tx.ExecContext(ctx,
			`INSERT INTO latest_enriched_state (device_id, freshness_payload, last_updated_ts) VALUES (?, ?, ?)`,
			deviceID, freshnessJSON, eventTs)
		return err
	case err != nil:
		return err
	case eventTs > storedTs:
		_, err = tx.ExecContext(ctx,
			`UPDATE latest_enriched_state SET freshness_payload = ?, last_updated_ts = ? WHERE device_id = ? AND last_updated_ts < ?`,
			freshnessJSON, eventTs, deviceID, eventTs)
		return err
	default:
		return nil
	}
}

// LatestState is the stored latest-projection row for one device.
type LatestState struct {
	DeviceID      string
	FreshnessNode freshness.Node
	LastUpdatedTs string
}

// Latest returns the stored latest projection for deviceID, or nil if the
// device has never reported.
func (c *DBConnection) Latest(ctx context.Context, deviceID string) (*LatestState, error) {
	var row struct {
		DeviceID      string `db:"device_id"`
		Freshness     string `db:"freshness_payload"`
		LastUpdatedTs string `db:"last_updated_ts"`
	}
	err := c.DB.GetContext(ctx, &row,
		`SELECT device_id, freshness_payload, last_updated_ts FROM latest_enriched_state WHERE device_id = ?`, deviceID)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("store: latest(%s): %w", deviceID, err)
	}

	node, err := freshness.Unmarshal([]byte(row.Freshness))
	if err != nil {
		return nil, fmt.Errorf("store: decode freshness for %s: %w", deviceID, err)
	}

	return &LatestState{DeviceID: row.DeviceID, FreshnessNode: node, LastUpdatedTs: row.LastUpdatedTs}, nil
}

// HistoryEvent is one row from the append-only event log.
type HistoryEvent struct {
	ID                int64
	IngestID          string
	DeviceID          string
	EventTs           string
	HistoricalPayload map[string]interface{}
}

// Cursor identifies a page boundary as (event_ts, id) - rows strictly
// before this pair (by the ORDER BY event_ts DESC, id DESC ordering) are
// returned next.
type Cursor struct {
	Ts string
	ID int64
}

// History returns up to limit+1 events (the extra row signals whether a
// further page exists), newest-first, optionally filtered to one device
// and optionally starting strictly after cursor.
func (c *DBConnection) History(ctx context.Context, deviceID string, limit int, cursor *Cursor) ([]HistoryEvent, error) {
	builder := psql.Select("id", "ingest_id", "device_id", "event_ts", "historical_payload").
		From("enriched_telemetry").
		OrderBy("event_ts DESC", "id DESC").
		Limit(uint64(limit + 1))

	if deviceID != "" {
		builder = builder.Where(sq.Eq{"device_id": deviceID})
	}
	if cursor != nil {
		builder = builder.Where(sq.Or{
			sq.Lt{"event_ts": cursor.Ts},
			sq.And{sq.Eq{"event_ts": cursor.Ts}, sq.Lt{"id": cursor.ID}},
		})
	}

	query, args, err := builder.ToSql()
	if err != nil {
		return nil, fmt.Errorf("store: build history query: %w", err)
	}

	var rows []struct {
		ID         int64  `db:"id"`
		IngestID   string `db:"ingest_id"`
		DeviceID   string `db:"device_id"`
		EventTs    string `db:"event_ts"`
		Historical string `db:"historical_payload"`
	}
	if err := c.DB.SelectContext(ctx, &rows, query, args...); err != nil {
		return nil, fmt.Errorf("store: history query: %w", err)
	}

	events := make([]HistoryEvent, 0, len(rows))
	for _, r := range rows {
		var payload map[string]interface{}
		if err := json.Unmarshal([]byte(r.Historical), &payload); err != nil {
			return nil, fmt.Errorf("store: decode historical payload for event %d: %w", r.ID, err)
		}
		events = append(events, HistoryEvent{
			ID: r.ID, IngestID: r.IngestID, DeviceID: r.DeviceID, EventTs: r.EventTs, HistoricalPayload: payload,
		})
	}
	return events, nil
}

// RecentDevice is one row of the devices overview, carrying aggregate
// counters (total records, total bytes, first-seen timestamp) alongside
// the latest projection's last_updated_ts.
type RecentDevice struct {
	DeviceID      string
	LastUpdatedTs string
	EventCount    int64
	TotalBytes    int64
	FirstSeenTs   string
}

// RecentDevices returns up to limit devices ordered by most-recently-updated.
func (c *DBConnection) RecentDevices(ctx context.Context, limit int) ([]RecentDevice, error) {
	var rows []struct {
		DeviceID      string `db:"device_id"`
		LastUpdatedTs string `db:"last_updated_ts"`
		EventCount    int64  `db:"event_count"`
		TotalBytes    int64  `db:"total_bytes"`
		FirstSeenTs   string `db:"first_seen_ts"`
	}
	err := c.DB.SelectContext(ctx, &rows, `
		SELECT l.device_id AS device_id, l.last_updated_ts AS last_updated_ts,
		       (SELECT COUNT(*) FROM enriched_telemetry e WHERE e.device_id = l.device_id) AS event_count,
		       COALESCE((SELECT SUM(e.request_size_bytes) FROM enriched_telemetry e WHERE e.device_id = l.device_id), 0) AS total_bytes,
		       COALESCE((SELECT MIN(e.event_ts) FROM enriched_telemetry e WHERE e.device_id = l.device_id), '') AS first_seen_ts
		FROM latest_enriched_state l
		ORDER BY l.last_updated_ts DESC
		LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("store: recent_devices: %w", err)
	}

	devices := make([]RecentDevice, 0, len(rows))
	for _, r := range rows {
		devices = append(devices, RecentDevice{
			DeviceID: r.DeviceID, LastUpdatedTs: r.LastUpdatedTs, EventCount: r.EventCount,
			TotalBytes: r.TotalBytes, FirstSeenTs: r.FirstSeenTs,
		})
	}
	return devices, nil
}

// Summary is a database-wide snapshot used by the server summary endpoint:
// total volume, unique device count, and the full event-log time span.
type Summary struct {
	TotalRecords  int64
	TotalDevices  int64
	OldestEventTs string
	NewestEventTs string
}

// SummaryStats aggregates the whole event log in one query, mirroring the
// counts the server summary endpoint renders alongside the database's
// on-disk size.
func (c *DBConnection) SummaryStats(ctx context.Context) (Summary, error) {
	var row struct {
		TotalRecords int64          `db:"total_records"`
		TotalDevices int64          `db:"total_devices"`
		Oldest       sql.NullString `db:"oldest"`
		Newest       sql.NullString `db:"newest"`
	}
	err := c.DB.GetContext(ctx, &row, `
		SELECT COUNT(*) AS total_records,
		       COUNT(DISTINCT device_id) AS total_devices,
		       MIN(event_ts) AS oldest,
		       MAX(event_ts) AS newest
		FROM enriched_telemetry`)
	if err != nil {
		return Summary{}, fmt.Errorf("store: summary stats: %w", err)
	}
	return Summary{
		TotalRecords:  row.TotalRecords,
		TotalDevices:  row.TotalDevices,
		OldestEventTs: row.Oldest.String,
		NewestEventTs: row.Newest.String,
	}, nil
}

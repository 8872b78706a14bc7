// Copyright (C) NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.
package store

import (
	"context"
	"os"

	"github.com/clustercockpit/telemetry-enrichment/pkg/log"
)

// Trimmer enforces a size-driven retention policy on the historical event
// log: once the database file exceeds MaxSizeBytes, it deletes the
// oldest rows in ChunkRows-sized batches (oldest enriched_telemetry rows
// first, ordered by event_ts ascending) until the pages still in use
// amount to at most TargetSizeBytes, then reclaims the freed space with
// VACUUM.
// Only sqlite3 files are size-checked this way; mysql storage is
// expected to be managed by the operator's own retention tooling.
type Trimmer struct {
	conn            *DBConnection
	dbPath          string
	maxSizeBytes    int64
	targetSizeBytes int64
	chunkRows       int
}

func NewTrimmer(conn *DBConnection, dbPath string, maxSizeBytes, targetSizeBytes int64, chunkRows int) *Trimmer {
	if chunkRows <= 0 {
		chunkRows = 1000
	}
	return &Trimmer{conn: conn, dbPath: dbPath, maxSizeBytes: maxSizeBytes, targetSizeBytes: targetSizeBytes, chunkRows: chunkRows}
}

// Run performs one trim pass. It is idempotent and safe to call on a
// fixed schedule (gocron) - a database already under the watermark is a
// no-op.
func (t *Trimmer) Run(ctx context.Context) error {
	if t.conn.Driver != "sqlite3" {
		return nil
	}

	info, err := os.Stat(t.dbPath)
	if err != nil {
		log.Warnf("store: trimmer stat %s: %v", t.dbPath, err)
		return nil
	}
	if info.Size() <= t.maxSizeBytes {
		return nil
	}

	log.Infof("store: trimmer starting, db size %d bytes exceeds watermark %d", info.Size(), t.maxSizeBytes)

	for {
		res, err := t.conn.DB.ExecContext(ctx, `
			DELETE FROM enriched_telemetry WHERE id IN (
				SELECT id FROM enriched_telemetry ORDER BY event_ts ASC, id ASC LIMIT ?
			)`, t.chunkRows)
		if err != nil {
			return err
		}
		affected, err := res.RowsAffected()
		if err != nil {
			return err
		}
		if affected == 0 {
			break
		}

		// DELETE leaves freed pages in the file until VACUUM, so the file
		// size cannot show progress; measure the pages still in use.
		var usedBytes int64
		if err := t.conn.DB.GetContext(ctx, &usedBytes,
			`SELECT (p.page_count - f.freelist_count) * s.page_size FROM pragma_page_count() p, pragma_freelist_count() f, pragma_page_size() s`); err != nil {
			return err
		}
		if usedBytes <= t.targetSizeBytes {
			break
		}
	}

	if _, err := t.conn.DB.ExecContext(ctx, `VACUUM`); err != nil {
		log.Warnf("store: trimmer VACUUM failed: %v", err)
	}

	info, _ = os.Stat(t.dbPath)
	log.Infof("store: trimmer finished, db size now %d bytes", info.Size())
	return nil
}

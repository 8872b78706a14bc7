// Copyright (C) NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Package tsrecon implements the deterministic event-timestamp
// reconstructor: absolute (`ts`), relative-to-batch-base (`to`), and
// ingest-receive-timestamp fallback, backed by a Redis per-device
// batch-base cache with a 6 hour TTL.
package tsrecon

import (
	"context"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
)

// ErrNoTimestamp indicates the record carries neither an absolute nor a
// relative timestamp resolvable against a cached batch base, nor an
// ingest-receive fallback - the caller must skip the record.
var ErrNoTimestamp = errors.New("tsrecon: record has no resolvable timestamp")

const batchBaseTTL = 6 * time.Hour

func batchBaseKey(deviceID string) string {
	return "device:batch_ts:" + deviceID
}

// Reconstructor resolves one record's event timestamp at a time, keeping
// the per-device absolute-timestamp base in the shared KV so relative
// offsets across a batch (or across process restarts, within the TTL)
// resolve consistently.
type Reconstructor struct {
	rdb *redis.Client
}

func New(rdb *redis.Client) *Reconstructor {
	return &Reconstructor{rdb: rdb}
}

// Resolve computes the event timestamp for one record's payload.
//
// Absolute (`ts`, seconds) always wins and refreshes the device's
// batch-base cache. Otherwise a relative offset (`to`, seconds) is added
// to the cached batch base, if any. Otherwise, if the caller supplies an
// ingest-receive timestamp, that is used and the batch-base cache is
// invalidated (a purely relative record can no longer be trusted against
// whatever base preceded this gap). Otherwise the record cannot be
// timestamped and ErrNoTimestamp is returned.
func (r *Reconstructor) Resolve(ctx context.Context, deviceID string, absoluteTs *int64, relativeOffset *int64, ingestReceivedAt *time.Time) (time.Time, error) {
	if absoluteTs != nil {
		ts := time.Unix(*absoluteTs, 0).UTC()
		r.rdb.Set(ctx, batchBaseKey(deviceID), *absoluteTs, batchBaseTTL)
		return ts, nil
	}

	if relativeOffset != nil {
		base, ok := r.cachedBase(ctx, deviceID)
		if ok {
			return time.Unix(base+*relativeOffset, 0).UTC(), nil
		}
	}

	if ingestReceivedAt != nil {
		r.rdb.Del(ctx, batchBaseKey(deviceID))
		return ingestReceivedAt.UTC(), nil
	}

	return time.Time{}, ErrNoTimestamp
}

func (r *Reconstructor) cachedBase(ctx context.Context, deviceID string) (int64, bool) {
	val, err := r.rdb.Get(ctx, batchBaseKey(deviceID)).Int64()
	if err != nil {
		return 0, false
	}
	return val, true
}

// Format renders an event timestamp in the storage/comparison form used
// throughout the system: UTC, second precision, "YYYY-MM-DD HH:MM:SS".
func Format(t time.Time) string {
	return t.UTC().Format("2006-01-02 15:04:05")
}

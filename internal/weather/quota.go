// Copyright (C) NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.
package weather

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
)

// Quota enforces the global daily ceiling on successful weather fetches,
// keyed per UTC calendar day in the shared KV.
type Quota struct {
	rdb   *redis.Client
	limit int64
}

func NewQuota(rdb *redis.Client, limit int) *Quota {
	if limit <= 0 {
		limit = dailyQuotaDefault
	}
	return &Quota{rdb: rdb, limit: int64(limit)}
}

func quotaKey(now time.Time) string {
	return "global_weather_limit:" + now.UTC().Format("2006-01-02")
}

// Exhausted reports whether today's quota has been used up. Any Redis
// error is treated conservatively as exhausted, per the cache-fault
// policy for the weather subsystem.
func (q *Quota) Exhausted(ctx context.Context, now time.Time) bool {
	count, err := q.rdb.Get(ctx, quotaKey(now)).Int64()
	if err != nil && err != redis.Nil {
		return true
	}
	return count >= q.limit
}

// Increment records one successful fetch against today's quota, setting a
// 24h expiry on the very first increment of the day.
func (q *Quota) Increment(ctx context.Context, now time.Time) {
	key := quotaKey(now)
	val, err := q.rdb.Incr(ctx, key).Result()
	if err != nil {
		return
	}
	if val == 1 {
		q.rdb.Expire(ctx, key, 24*time.Hour)
	}
}

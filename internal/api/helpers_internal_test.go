// Copyright (C) NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.
package api

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestDisplayTimestampFormatsStoredValue(t *testing.T) {
	assert.Equal(t, "14.11.2023 22:13:20 UTC", displayTimestamp("2023-11-14 22:13:20"))
}

func TestDisplayTimestampPassesThroughUnparseableOrEmpty(t *testing.T) {
	assert.Equal(t, "", displayTimestamp(""))
	assert.Equal(t, "not-a-timestamp", displayTimestamp("not-a-timestamp"))
}

func TestFormatDBSizeScalesUnits(t *testing.T) {
	assert.Equal(t, "0 B", formatDBSize(0))
	assert.Equal(t, "512 B", formatDBSize(512))
	assert.Equal(t, "1 KB", formatDBSize(1024))
	assert.Equal(t, "1 MB", formatDBSize(1024*1024))
}

func TestFormatRetentionPeriodBuckets(t *testing.T) {
	assert.Equal(t, "30 minutes", formatRetentionPeriod(30*time.Minute))
	assert.Equal(t, "2 hours", formatRetentionPeriod(2*time.Hour))
	assert.Equal(t, "3 days", formatRetentionPeriod(3*24*time.Hour))
}

func TestExtrapolateTrafficZeroBytes(t *testing.T) {
	out := extrapolateTraffic(0, "", time.Now())
	assert.Equal(t, "0 B", out["average_total_traffic_per_day"])
}

func TestExtrapolateTrafficUnavailableWithoutFirstSeen(t *testing.T) {
	out := extrapolateTraffic(1024, "", time.Now())
	assert.Equal(t, "N/A", out["average_total_traffic_per_day"])
}

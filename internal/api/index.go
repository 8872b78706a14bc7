// Copyright (C) NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.
package api

import (
	"context"
	"fmt"
	"math"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/clustercockpit/telemetry-enrichment/internal/freshness"
	"github.com/clustercockpit/telemetry-enrichment/internal/store"
)

const recentDevicesForSummary = 10

// storageEstimationFloor is the minimum event count below which a
// burn-rate projection is too noisy off a handful of rows to be worth
// showing.
const storageEstimationFloor = 1000

// index implements GET /: a server summary combining an endpoint
// directory, the most recently active devices (with extrapolated
// traffic), and a database size/retention/burn-rate section - a read-only
// projection over the same store every other endpoint already queries.
func (api *RestApi) index(rw http.ResponseWriter, r *http.Request) {
	base := baseURL(r)
	ctx := r.Context()

	writeJSON(rw, http.StatusOK, map[string]interface{}{
		"request": map[string]string{"self_url": base + "/"},
		"server":  "telemetry-enrichment",
		"status":  "online",
		"diagnostics": map[string]interface{}{
			"database_stats": api.databaseStats(ctx),
			"intake_status":  intakeStatus(api),
			"uptime_seconds": int64(time.Since(api.StartedAt).Seconds()),
		},
		"recently_processed_devices": api.recentDevicesSummary(ctx, base),
		"api_endpoints":              endpointDirectory(base),
	})
}

func intakeStatus(api *RestApi) string {
	if api.Nats != nil && api.Nats.IsConnected() {
		return "connected"
	}
	return "unavailable"
}

func endpointDirectory(base string) map[string][]map[string]string {
	return map[string][]map[string]string{
		"intake": {
			{"path": base + "/api/internal/notify", "methods": "POST"},
		},
		"data": {
			{"path": base + "/data/latest/{device_id}", "methods": "GET"},
			{"path": base + "/data/history", "methods": "GET"},
			{"path": base + "/data/devices", "methods": "GET"},
		},
		"root": {
			{"path": base + "/", "methods": "GET"},
		},
	}
}

// recentDevicesSummary renders the 10 most recently active devices with an
// extrapolated average daily/weekly/monthly traffic figure derived from
// each device's total bytes transferred since it was first seen.
func (api *RestApi) recentDevicesSummary(ctx context.Context, base string) []map[string]interface{} {
	devices, err := api.Conn.RecentDevices(ctx, recentDevicesForSummary)
	if err != nil {
		return nil
	}

	now := time.Now().UTC()
	out := make([]map[string]interface{}, 0, len(devices))
	for _, d := range devices {
		deviceName := ""
		if latest, err := api.Conn.Latest(ctx, d.DeviceID); err == nil && latest != nil {
			if plain, ok := freshness.Reconstruct(latest.FreshnessNode).(map[string]interface{}); ok {
				if name, ok := plain["device_name"].(string); ok {
					deviceName = name
				}
			}
		}

		out = append(out, map[string]interface{}{
			"device_id":     d.DeviceID,
			"device_name":   deviceName,
			"last_seen":     displayTimestamp(d.LastUpdatedTs),
			"total_records": d.EventCount,
			"traffic":       extrapolateTraffic(d.TotalBytes, d.FirstSeenTs, now),
			"links": map[string]string{
				"latest":  base + "/data/latest/" + d.DeviceID,
				"history": base + "/data/history?device_id=" + d.DeviceID + "&limit=50",
			},
		})
	}
	return out
}

// extrapolateTraffic projects a device's total ingested bytes, observed
// over the span since firstSeen, onto average daily/weekly/monthly rates.
func extrapolateTraffic(totalBytes int64, firstSeen string, now time.Time) map[string]string {
	unavailable := map[string]string{
		"average_total_traffic_per_day":   "N/A",
		"average_total_traffic_per_week":  "N/A",
		"average_total_traffic_per_month": "N/A",
	}
	if totalBytes == 0 {
		return map[string]string{
			"average_total_traffic_per_day":   "0 B",
			"average_total_traffic_per_week":  "0 B",
			"average_total_traffic_per_month": "0 B",
		}
	}
	if firstSeen == "" {
		return unavailable
	}
	firstSeenAt, err := time.Parse("2006-01-02 15:04:05", firstSeen)
	if err != nil {
		return unavailable
	}

	daysActive := math.Max(now.Sub(firstSeenAt).Hours()/24, 1.0/24)
	perDay := float64(totalBytes) / daysActive
	return map[string]string{
		"average_total_traffic_per_day":   formatDBSize(int64(perDay)),
		"average_total_traffic_per_week":  formatDBSize(int64(perDay * 7)),
		"average_total_traffic_per_month": formatDBSize(int64(perDay * 30.44)),
	}
}

// databaseStats summarizes the event log's volume, time span, on-disk
// size and (past storageEstimationFloor rows) a retention/burn-rate
// projection against the trimmer's high-water mark.
func (api *RestApi) databaseStats(ctx context.Context) map[string]interface{} {
	summary, err := api.Conn.SummaryStats(ctx)
	if err != nil {
		return map[string]interface{}{"error": err.Error()}
	}

	files, totalSize := dbFileSizes(api.DBPath)

	stats := map[string]interface{}{
		"total_processed_records": summary.TotalRecords,
		"total_unique_devices":    summary.TotalDevices,
		"oldest_record_timestamp": displayTimestamp(summary.OldestEventTs),
		"newest_record_timestamp": displayTimestamp(summary.NewestEventTs),
		"database_files":          files,
		"total_database_size":     formatDBSize(totalSize),
	}
	if api.MaxDBSizeBytes > 0 {
		stats["database_size_limit"] = formatDBSize(api.MaxDBSizeBytes)
	}

	if estimation := storageEstimation(summary, totalSize, api.MaxDBSizeBytes); estimation != nil {
		stats["storage_estimation"] = estimation
	}
	return stats
}

// storageEstimation projects a retention span and fill-up date from the
// event log's observed time span and on-disk size, once there is enough
// data (storageEstimationFloor rows) for the projection to mean anything.
func storageEstimation(summary store.Summary, totalSize, maxSizeBytes int64) map[string]string {
	if summary.TotalRecords <= storageEstimationFloor {
		return nil
	}
	oldest, err := time.Parse("2006-01-02 15:04:05", summary.OldestEventTs)
	if err != nil {
		return nil
	}
	newest, err := time.Parse("2006-01-02 15:04:05", summary.NewestEventTs)
	if err != nil {
		return nil
	}

	daysOfData := newest.Sub(oldest).Hours() / 24
	if daysOfData <= 0.0001 {
		return nil
	}

	rateBytesPerDay := float64(totalSize) / daysOfData
	estimation := map[string]string{
		"database_retention":   formatRetentionPeriod(time.Duration(daysOfData * 24 * float64(time.Hour))),
		"storage_rate_per_day": formatDBSize(int64(rateBytesPerDay)),
	}

	if maxSizeBytes > 0 && rateBytesPerDay > 0 {
		remainingBytes := float64(maxSizeBytes - totalSize)
		if remainingBytes > 0 {
			daysLeft := remainingBytes / rateBytesPerDay
			if daysLeft > 60 {
				estimation["estimated_time_until_full"] = fmt.Sprintf("%.1f months", daysLeft/30)
			} else {
				estimation["estimated_time_until_full"] = fmt.Sprintf("%.1f days", daysLeft)
			}
		}
	}
	return estimation
}

// dbFileSizes reports the on-disk size of the primary sqlite3 file and its
// WAL/SHM siblings; non-sqlite3 drivers (mysql) have no local file to
// measure and report an empty list instead of guessing.
func dbFileSizes(path string) (files []map[string]interface{}, total int64) {
	if path == "" {
		return nil, 0
	}
	for _, suffix := range []string{"", "-wal", "-shm"} {
		candidate := path + suffix
		info, err := os.Stat(candidate)
		if err != nil {
			continue
		}
		total += info.Size()
		files = append(files, map[string]interface{}{
			"file": filepath.Base(candidate),
			"size": formatDBSize(info.Size()),
		})
	}
	return files, total
}

func formatDBSize(sizeBytes int64) string {
	if sizeBytes < 0 {
		return "N/A"
	}
	if sizeBytes == 0 {
		return "0 B"
	}
	units := []string{"B", "KB", "MB", "GB", "TB"}
	i := int(math.Floor(math.Log(float64(sizeBytes)) / math.Log(1024)))
	if i >= len(units) {
		i = len(units) - 1
	}
	scaled := float64(sizeBytes) / math.Pow(1024, float64(i))
	return fmt.Sprintf("%.0f %s", math.Round(scaled), units[i])
}

func formatRetentionPeriod(d time.Duration) string {
	if d <= 0 {
		return "less than a minute"
	}
	plural := func(n int64, unit string) string {
		if n == 1 {
			return fmt.Sprintf("%d %s", n, unit)
		}
		return fmt.Sprintf("%d %ss", n, unit)
	}
	switch {
	case d < time.Hour:
		return plural(int64(d.Round(time.Minute)/time.Minute), "minute")
	case d < 24*time.Hour:
		return plural(int64(d.Round(time.Hour)/time.Hour), "hour")
	case d < 7*24*time.Hour:
		return plural(int64(d.Round(24*time.Hour)/(24*time.Hour)), "day")
	case d < 30*24*time.Hour:
		return plural(int64(math.Round(d.Hours()/(24*7))), "week")
	case d < 365*24*time.Hour:
		return plural(int64(math.Round(d.Hours()/(24*30.44))), "month")
	default:
		years := d.Hours() / (24 * 365.25)
		return fmt.Sprintf("%.1f years", years)
	}
}

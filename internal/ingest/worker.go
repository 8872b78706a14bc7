// Copyright (C) NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Package ingest implements the stateful ingest worker: the batch
// orchestrator that turns a pulled queue batch into persisted history and
// advanced latest-state rows. It groups records by device, reconstructs
// each event's timestamp, reconstructs the device's prior plain state from
// its freshness tree, enriches with IP intelligence and weather, hands the
// record to the payload transformer, and folds the result back into a new
// freshness tree - all before a single terminal persistence call.
package ingest

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
	"time"

	"github.com/clustercockpit/telemetry-enrichment/internal/decode"
	"github.com/clustercockpit/telemetry-enrichment/internal/freshness"
	"github.com/clustercockpit/telemetry-enrichment/internal/ipintel"
	"github.com/clustercockpit/telemetry-enrichment/internal/store"
	"github.com/clustercockpit/telemetry-enrichment/internal/transform"
	"github.com/clustercockpit/telemetry-enrichment/internal/tsrecon"
	"github.com/clustercockpit/telemetry-enrichment/internal/weather"
	"github.com/clustercockpit/telemetry-enrichment/pkg/log"
	"github.com/redis/go-redis/v9"
)

const metricsRingLimit = 1999 // LTRIM upper bound; keeps at most 2000 entries

// RawRecord is one entry of a pulled queue batch, matching the intake
// envelope {id, device_id, payload, received_at, request_headers, warnings}.
type RawRecord struct {
	ID             string                 `json:"id"`
	DeviceID       string                 `json:"device_id"`
	Payload        map[string]interface{} `json:"payload"`
	ReceivedAt     string                 `json:"received_at"`
	RequestHeaders map[string]string      `json:"request_headers"`
	Warnings       []string               `json:"warnings"`
}

// Worker turns a pulled queue batch into persisted history and latest
// state via its single public entry point, Process.
type Worker struct {
	conn    *store.DBConnection
	recon   *tsrecon.Reconstructor
	weather *weather.Coordinator
	ipIntel *ipintel.Lookup
	vendor  *decode.VendorLookup
	rdb     *redis.Client
}

func New(conn *store.DBConnection, recon *tsrecon.Reconstructor, coord *weather.Coordinator, ipLookup *ipintel.Lookup, vendor *decode.VendorLookup, rdb *redis.Client) *Worker {
	return &Worker{conn: conn, recon: recon, weather: coord, ipIntel: ipLookup, vendor: vendor, rdb: rdb}
}

// Result summarizes one Process call for the caller's ack/nak decision and
// for logging.
type Result struct {
	Processed int
	Skipped   int
}

// timestamped pairs a raw record with its reconstructed event timestamp,
// computed once up front so the device group can be sorted by it.
type timestamped struct {
	record  RawRecord
	eventTs time.Time
}

// Process drops device_id-less records, groups and sorts by reconstructed
// event timestamp per device, then walks each device's group advancing an
// in-memory (prior_freshness, last_known_ts)
// pair so a batch carrying several records for the same device behaves
// consistently regardless of arrival order. The whole buffer is persisted
// in a single call; any error aborts persistence entirely so the caller can
// retry the batch.
func (w *Worker) Process(ctx context.Context, batch []RawRecord, now time.Time) (Result, error) {
	start := time.Now()
	groups := map[string][]timestamped{}

	for _, rec := range batch {
		if rec.DeviceID == "" {
			continue
		}

		receivedAt := parseReceivedAt(rec.ReceivedAt)
		eventTs, err := w.recon.Resolve(ctx, rec.DeviceID, extractAbsoluteTs(rec.Payload), extractRelativeOffset(rec.Payload), receivedAt)
		if err != nil {
			continue
		}

		groups[rec.DeviceID] = append(groups[rec.DeviceID], timestamped{record: rec, eventTs: eventTs})
	}

	var result Result
	var buffer []store.SaveRecord

	for deviceID, recs := range groups {
		sort.SliceStable(recs, func(i, j int) bool { return recs[i].eventTs.Before(recs[j].eventTs) })

		latest, err := w.conn.Latest(ctx, deviceID)
		if err != nil {
			return Result{}, fmt.Errorf("ingest: load latest state for %s: %w", deviceID, err)
		}

		var priorFreshness freshness.Node
		var lastKnownTs string
		if latest != nil {
			priorFreshness = latest.FreshnessNode
			lastKnownTs = latest.LastUpdatedTs
		} else {
			priorFreshness = freshness.NewBranch()
		}

		for _, item := range recs {
			rec := item.record
			eventTsStr := tsrecon.Format(item.eventTs)
			if lastKnownTs != "" && eventTsStr <= lastKnownTs {
				result.Skipped++
				continue
			}

			rawBytes, err := json.Marshal(rec)
			requestSize := len(rawBytes)
			if err != nil {
				requestSize = 0
			}

			priorPlain := asPlainMap(freshness.Reconstruct(priorFreshness))

			raw := map[string]interface{}{}
			for k, v := range rec.Payload {
				raw[k] = v
			}

			var ipResult map[string]interface{}
			if w.ipIntel != nil {
				clientIP := rec.RequestHeaders["client_ip"]
				if res := w.ipIntel.Lookup(ctx, clientIP); res != nil {
					ipResult = map[string]interface{}{
						"geolocation":      res.Geolocation,
						"network_provider": res.NetworkProvider,
						"security":         res.Security,
					}
				}
			}

			if w.weather != nil {
				if lat, lon, ok := candidatePosition(raw, priorPlain); ok {
					raw = w.weather.Enrich(ctx, deviceID, lat, lon, raw)
				}
			}

			newPlain, warnings, dropped := transform.Transform(raw, priorPlain, ipResult, w.vendor, now)
			if len(warnings) > 0 {
				log.Debugf("ingest: device %s event %s: %v", deviceID, rec.ID, warnings)
			}

			nextFreshness := freshness.Update(priorFreshness, newPlain, item.eventTs.Unix(), dropped...)

			buffer = append(buffer, store.SaveRecord{
				IngestID:          rec.ID,
				DeviceID:          deviceID,
				EventTs:           item.eventTs,
				HistoricalPayload: newPlain,
				LatestFreshness:   nextFreshness,
				RequestSizeBytes:  requestSize,
			})

			priorFreshness = nextFreshness
			lastKnownTs = eventTsStr
			result.Processed++
		}
	}

	if len(buffer) > 0 {
		if err := w.conn.SaveBatch(ctx, buffer); err != nil {
			return Result{}, fmt.Errorf("ingest: persist batch: %w", err)
		}
	}

	w.pushMetric(ctx, now, time.Since(start), len(batch), result)
	return result, nil
}

// pushMetric records one capped processing-metric entry to the shared KV.
// Redis faults here are swallowed - metrics are best-effort, never a reason
// to fail an otherwise-successful batch.
func (w *Worker) pushMetric(ctx context.Context, wallTs time.Time, duration time.Duration, count int, result Result) {
	if w.rdb == nil || count == 0 {
		return
	}

	point, err := json.Marshal(map[string]interface{}{
		"ts":               wallTs.Unix(),
		"duration_seconds": duration.Seconds(),
		"count":            count,
		"processed":        result.Processed,
		"skipped":          result.Skipped,
	})
	if err != nil {
		return
	}

	pipe := w.rdb.Pipeline()
	pipe.LPush(ctx, "processing_stats", point)
	pipe.LTrim(ctx, "processing_stats", 0, metricsRingLimit)
	if _, err := pipe.Exec(ctx); err != nil {
		log.Debugf("ingest: metrics push failed: %v", err)
	}
}

func parseReceivedAt(raw string) *time.Time {
	if raw == "" {
		return nil
	}
	t, err := time.Parse(time.RFC3339, raw)
	if err != nil {
		return nil
	}
	return &t
}

func extractAbsoluteTs(payload map[string]interface{}) *int64 {
	return extractSeconds(payload, "ts")
}

func extractRelativeOffset(payload map[string]interface{}) *int64 {
	return extractSeconds(payload, "to")
}

func extractSeconds(payload map[string]interface{}, key string) *int64 {
	v, present := payload[key]
	if !present {
		return nil
	}
	n, ok := toNumber(v)
	if !ok {
		return nil
	}
	seconds := int64(n)
	return &seconds
}

func toNumber(v interface{}) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case int:
		return float64(n), true
	case string:
		f, err := strconv.ParseFloat(n, 64)
		return f, err == nil
	default:
		return 0, false
	}
}

// candidatePosition resolves a numeric (lat, lon) pair from the raw record
// for weather enrichment, which must run before the payload transform
// produces structured position.* output. It mirrors the transformer's own
// geohash-preferred, explicit-coordinate-fallback precedence so the two
// stages never disagree about where the device is, falling back to the
// device's last reconstructed position when this record carries neither.
func candidatePosition(raw, priorPlain map[string]interface{}) (lat, lon float64, ok bool) {
	if g, isStr := raw["g"].(string); isStr && g != "" {
		if gh, err := decode.DecodeGeohash(g); err == nil {
			return gh.Latitude, gh.Longitude, true
		}
	}

	if yv, yOk := raw["y"]; yOk {
		if xv, xOk := raw["x"]; xOk {
			if latN, latOk := toNumber(yv); latOk {
				if lonN, lonOk := toNumber(xv); lonOk {
					return latN, lonN, true
				}
			}
		}
	}

	if position, isMap := priorPlain["position"].(map[string]interface{}); isMap {
		latN, latOk := position["latitude"].(float64)
		lonN, lonOk := position["longitude"].(float64)
		if latOk && lonOk {
			return latN, lonN, true
		}
	}

	return 0, 0, false
}

func asPlainMap(v interface{}) map[string]interface{} {
	if m, ok := v.(map[string]interface{}); ok {
		return m
	}
	return map[string]interface{}{}
}

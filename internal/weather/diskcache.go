// Copyright (C) NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.
package weather

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"
)

// cacheMeta is the bookkeeping block stamped onto every cached bucket
// alongside its weather fields.
type cacheMeta struct {
	Lat      float64 `json:"lat"`
	Lon      float64 `json:"lon"`
	CachedAt string  `json:"cached_at"`
}

type cacheFile struct {
	Meta cacheMeta              `json:"_meta"`
	Data map[string]interface{} `json:"-"`
}

// DiskCache is the geo-bucketed, file-backed weather cache: one JSON file
// per rounded (lat,lon) bucket, bounded to 100 files / 50MB with
// oldest-first eviction. An in-process l1Cache sits in front of the
// filesystem to avoid re-reading/re-parsing the same bucket file on every
// lookup within the same process.
type DiskCache struct {
	dir         string
	maxFiles    int
	maxSizeMB   int
	l1          *l1Cache
	enforceOnce sync.Mutex
}

// NewDiskCache returns a disk cache rooted at dir, with an in-process LRU
// accelerant capped at maxSizeMB of estimated memory.
func NewDiskCache(dir string, maxFiles, maxSizeMB int) *DiskCache {
	if maxFiles <= 0 {
		maxFiles = 100
	}
	if maxSizeMB <= 0 {
		maxSizeMB = 50
	}
	return &DiskCache{
		dir:       dir,
		maxFiles:  maxFiles,
		maxSizeMB: maxSizeMB,
		l1:        newL1Cache(maxSizeMB * 1024 * 1024),
	}
}

func bucketKey(lat, lon float64) string {
	return fmt.Sprintf("%.2f_%.2f", roundTo2(lat), roundTo2(lon))
}

func roundTo2(v float64) float64 {
	return float64(int(v*100+sign(v)*0.5)) / 100
}

func sign(v float64) float64 {
	if v < 0 {
		return -1
	}
	return 1
}

// Find looks up the cached weather bucket nearest (lat,lon), returning a
// hit only when within 1km and younger than 1 hour. Every candidate file
// in the directory is scanned (mirroring the source's linear scan),
// first through the in-process LRU, then the filesystem.
func (c *DiskCache) Find(lat, lon float64) (map[string]interface{}, string, bool) {
	entries, err := os.ReadDir(c.dir)
	if err != nil {
		return nil, "", false
	}

	for _, entry := range entries {
		if entry.IsDir() || filepath.Ext(entry.Name()) != ".json" {
			continue
		}
		path := filepath.Join(c.dir, entry.Name())

		info, err := entry.Info()
		if err != nil {
			continue
		}
		if time.Since(info.ModTime()).Seconds() > cacheBucketMaxAgeSecs {
			continue
		}

		cached := c.l1.Get(path, func() (interface{}, time.Duration, int) {
			raw, err := os.ReadFile(path)
			if err != nil {
				return nil, 0, 0
			}
			var cf cacheFile
			if err := json.Unmarshal(raw, &cf); err != nil {
				return nil, 0, 0
			}
			var flat map[string]interface{}
			if err := json.Unmarshal(raw, &flat); err != nil {
				return nil, 0, 0
			}
			delete(flat, "_meta")
			cf.Data = flat
			return &cf, time.Hour, len(raw)
		})

		cf, ok := cached.(*cacheFile)
		if !ok || cf == nil {
			continue
		}

		if HaversineKm(lat, lon, cf.Meta.Lat, cf.Meta.Lon) <= cacheBucketRadiusKm {
			out := map[string]interface{}{}
			for k, v := range cf.Data {
				if CacheableKeys[k] {
					out[k] = v
				}
			}
			return out, cf.Meta.CachedAt, true
		}
	}

	return nil, "", false
}

// Save writes data (filtered to CacheableKeys) to the bucket for
// (lat,lon), stamps metadata, enforces the cache size bounds, and
// returns the cached_at timestamp.
func (c *DiskCache) Save(lat, lon float64, data map[string]interface{}) (string, error) {
	if err := os.MkdirAll(c.dir, 0o755); err != nil {
		return "", err
	}

	cachedAt := time.Now().UTC().Format(time.RFC3339)
	out := map[string]interface{}{}
	for k, v := range data {
		if CacheableKeys[k] && v != nil {
			out[k] = v
		}
	}
	out["_meta"] = cacheMeta{Lat: lat, Lon: lon, CachedAt: cachedAt}

	raw, err := json.Marshal(out)
	if err != nil {
		return "", err
	}

	path := filepath.Join(c.dir, bucketKey(lat, lon)+".json")
	if err := os.WriteFile(path, raw, 0o644); err != nil {
		return "", err
	}

	c.enforceLimits()
	return cachedAt, nil
}

// enforceLimits evicts the oldest files until the cache is within bounds.
// Guarded by a single mutex per process to prevent double-deletion.
func (c *DiskCache) enforceLimits() {
	c.enforceOnce.Lock()
	defer c.enforceOnce.Unlock()

	entries, err := os.ReadDir(c.dir)
	if err != nil {
		return
	}

	type fileMeta struct {
		path    string
		size    int64
		modTime time.Time
	}

	var files []fileMeta
	var totalSize int64
	for _, entry := range entries {
		if entry.IsDir() || filepath.Ext(entry.Name()) != ".json" {
			continue
		}
		info, err := entry.Info()
		if err != nil {
			continue
		}
		files = append(files, fileMeta{
			path:    filepath.Join(c.dir, entry.Name()),
			size:    info.Size(),
			modTime: info.ModTime(),
		})
		totalSize += info.Size()
	}

	sizeMB := float64(totalSize) / (1024 * 1024)
	if len(files) <= c.maxFiles && sizeMB <= float64(c.maxSizeMB) {
		return
	}

	sort.Slice(files, func(i, j int) bool { return files[i].modTime.Before(files[j].modTime) })

	for len(files) > 0 && (len(files) > c.maxFiles || sizeMB > float64(c.maxSizeMB)) {
		oldest := files[0]
		files = files[1:]
		if err := os.Remove(oldest.path); err == nil {
			sizeMB -= float64(oldest.size) / (1024 * 1024)
		}
	}
}

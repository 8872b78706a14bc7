// Copyright (C) NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.
package weather

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestL1CacheReturnsCachedValueWithoutRecomputing(t *testing.T) {
	cache := newL1Cache(1000)

	v1 := cache.Get("foo", func() (interface{}, time.Duration, int) {
		return "bar", time.Second, 0
	})
	assert.Equal(t, "bar", v1)

	v2 := cache.Get("foo", func() (interface{}, time.Duration, int) {
		t.Fatal("value should already be cached")
		return nil, 0, 0
	})
	assert.Equal(t, "bar", v2)
}

func TestL1CacheExpiresEntries(t *testing.T) {
	cache := newL1Cache(1000)

	v1 := cache.Get("foo", func() (interface{}, time.Duration, int) {
		return "bar", 5 * time.Millisecond, 0
	})
	assert.Equal(t, "bar", v1)

	time.Sleep(10 * time.Millisecond)

	v2 := cache.Get("foo", func() (interface{}, time.Duration, int) {
		return "baz", time.Second, 0
	})
	assert.Equal(t, "baz", v2, "expired entry must be recomputed")
}

func TestL1CacheEvictsOverBudget(t *testing.T) {
	cache := newL1Cache(100)

	_ = cache.Get("A", func() (interface{}, time.Duration, int) {
		return "a", time.Second, 50
	})
	_ = cache.Get("B", func() (interface{}, time.Duration, int) {
		return "b", time.Second, 50
	})
	_ = cache.Get("C", func() (interface{}, time.Duration, int) {
		return "c", time.Second, 50
	})

	recomputed := false
	v := cache.Get("A", func() (interface{}, time.Duration, int) {
		recomputed = true
		return "evicted", time.Second, 25
	})

	assert.True(t, recomputed, "A (least recently used at the time C arrived) should have been evicted to stay under the 100-byte budget")
	assert.Equal(t, "evicted", v)
}

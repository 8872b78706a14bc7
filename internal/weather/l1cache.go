// Copyright (C) NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.
package weather

import (
	"sync"
	"time"
)

// computeValue is the closure passed to l1Cache.Get to produce a value not
// yet cached. The returned size is an estimate in bytes, used against the
// cache's byte budget rather than entry count.
type computeValue func() (value interface{}, ttl time.Duration, size int)

type l1CacheEntry struct {
	key   string
	value interface{}

	expiration            time.Time
	size                  int
	waitingForComputation int

	next, prev *l1CacheEntry
}

// l1Cache is an in-process, size-bounded LRU with per-entry TTLs, fronting
// DiskCache's per-bucket JSON files so a weather lookup that keeps hitting
// the same nearby bucket within a process doesn't re-stat and re-parse the
// file every time. Adapted from the teacher's standalone lrucache package
// (trimmed to the single operation DiskCache needs: read-through Get).
type l1Cache struct {
	mutex               sync.Mutex
	cond                *sync.Cond
	maxBytes, usedBytes int
	entries             map[string]*l1CacheEntry
	head, tail          *l1CacheEntry
}

// newL1Cache returns an empty cache bounded to maxBytes of estimated size.
func newL1Cache(maxBytes int) *l1Cache {
	c := &l1Cache{
		maxBytes: maxBytes,
		entries:  map[string]*l1CacheEntry{},
	}
	c.cond = sync.NewCond(&c.mutex)
	return c
}

// Get returns the cached value for key, or calls compute to produce and
// store it. compute runs synchronously and must not call back into this
// cache or it will deadlock. Concurrent callers for the same key that
// missed block on the first caller's computation rather than duplicating it.
func (c *l1Cache) Get(key string, compute computeValue) interface{} {
	now := time.Now()

	c.mutex.Lock()
	if entry, ok := c.entries[key]; ok {
		for entry.expiration.IsZero() {
			entry.waitingForComputation++
			c.cond.Wait()
			entry.waitingForComputation--
		}

		if now.After(entry.expiration) {
			if !c.evictEntry(entry) {
				c.mutex.Unlock()
				return entry.value
			}
		} else {
			if entry != c.head {
				c.unlinkEntry(entry)
				c.insertFront(entry)
			}
			c.mutex.Unlock()
			return entry.value
		}
	}

	if compute == nil {
		c.mutex.Unlock()
		return nil
	}

	entry := &l1CacheEntry{key: key, waitingForComputation: 1}
	c.entries[key] = entry

	hasPaniced := true
	defer func() {
		if hasPaniced {
			c.mutex.Lock()
			delete(c.entries, key)
			entry.expiration = now
			entry.waitingForComputation--
		}
		c.mutex.Unlock()
	}()

	c.mutex.Unlock()
	value, ttl, size := compute()
	c.mutex.Lock()
	hasPaniced = false

	entry.value = value
	entry.expiration = now.Add(ttl)
	entry.size = size
	entry.waitingForComputation--

	if entry.waitingForComputation > 0 {
		c.cond.Broadcast()
	}

	c.usedBytes += size
	c.insertFront(entry)

	evictionCandidate := c.tail
	for c.usedBytes > c.maxBytes && evictionCandidate != nil {
		next := evictionCandidate.prev
		if (evictionCandidate.size > 0 || now.After(evictionCandidate.expiration)) &&
			evictionCandidate.waitingForComputation == 0 {
			c.evictEntry(evictionCandidate)
		}
		evictionCandidate = next
	}

	return value
}

func (c *l1Cache) insertFront(e *l1CacheEntry) {
	e.next = c.head
	c.head = e

	e.prev = nil
	if e.next != nil {
		e.next.prev = e
	}
	if c.tail == nil {
		c.tail = e
	}
}

func (c *l1Cache) unlinkEntry(e *l1CacheEntry) {
	if e == c.head {
		c.head = e.next
	}
	if e.prev != nil {
		e.prev.next = e.next
	}
	if e.next != nil {
		e.next.prev = e.prev
	}
	if e == c.tail {
		c.tail = e.prev
	}
}

func (c *l1Cache) evictEntry(e *l1CacheEntry) bool {
	if e.waitingForComputation != 0 {
		return false
	}
	c.unlinkEntry(e)
	c.usedBytes -= e.size
	delete(c.entries, e.key)
	return true
}

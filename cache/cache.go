/*
 * Copyright 2025 tomoncle.
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *     http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

// Package cache memoizes query results by operation identity. It is a pure
// execution-avoidance layer: a hit never touches the connection or
// transaction layers. Entries are unbounded, never expire, and are dropped
// only by an explicit Clear; writes that must re-run on every call belong
// outside this layer.
package cache

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/tomoncle/axle/types"
)

// Entry is an immutable snapshot of a prior result, created on the first
// successful execution of its key.
type Entry struct {
	Result   *types.ResultSet
	StoredAt time.Time
}

// Compute produces the result for a key on a miss.
type Compute func() (*types.ResultSet, error)

// Stats reports cache traffic counters.
type Stats struct {
	Hits   int64 `json:"hits"`
	Misses int64 `json:"misses"`
	Size   int   `json:"size"`
}

// QueryCache is a process-wide memoization store guarded by a read-write
// mutex. Two concurrent misses on one key may each run compute; the result
// stored last wins. Errors are never memoized.
type QueryCache struct {
	mu      sync.RWMutex
	entries map[Key]*Entry

	hits   atomic.Int64
	misses atomic.Int64
}

// New returns an empty query cache.
func New() *QueryCache {
	return &QueryCache{entries: make(map[Key]*Entry)}
}

// GetOrCompute returns the entry stored under key, or runs compute and
// stores its result. A compute error is propagated and nothing is cached, so
// a later call with the same key re-runs compute.
func (c *QueryCache) GetOrCompute(key Key, compute Compute) (*types.ResultSet, error) {
	c.mu.RLock()
	e, ok := c.entries[key]
	c.mu.RUnlock()
	if ok {
		c.hits.Add(1)
		return e.Result, nil
	}

	c.misses.Add(1)
	result, err := compute()
	if err != nil {
		return nil, err
	}

	c.mu.Lock()
	c.entries[key] = &Entry{Result: result, StoredAt: time.Now()}
	c.mu.Unlock()
	return result, nil
}

// Get returns the entry stored under key without computing anything.
func (c *QueryCache) Get(key Key) (*types.ResultSet, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	e, ok := c.entries[key]
	if !ok {
		return nil, false
	}
	return e.Result, true
}

// Contains reports whether key has a stored entry.
func (c *QueryCache) Contains(key Key) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	_, ok := c.entries[key]
	return ok
}

// Len returns the number of stored entries.
func (c *QueryCache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}

// Clear drops every entry. This is the only way entries leave the cache.
func (c *QueryCache) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries = make(map[Key]*Entry)
}

// Stats returns a snapshot of hit/miss counters and current size.
func (c *QueryCache) Stats() Stats {
	return Stats{
		Hits:   c.hits.Load(),
		Misses: c.misses.Load(),
		Size:   c.Len(),
	}
}

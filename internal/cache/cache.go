// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

// Package cache provides a small sharded key/value cache, used for
// compiled GPU pipeline variants keyed by kernel name and workgroup shape.
package cache

import (
	"hash/fnv"
	"sync"
	"sync/atomic"
)

// shardCount must be a power of 2 for fast modulo via bitwise AND.
const shardCount = 16

// Cache is a thread-safe sharded cache. Values are built at most once per
// key: concurrent GetOrCreate calls for the same key serialize on the
// key's shard.
type Cache[V any] struct {
	shards [shardCount]shard[V]

	hits   atomic.Uint64
	misses atomic.Uint64
}

type shard[V any] struct {
	mu sync.Mutex
	m  map[string]V
}

// New creates an empty cache.
func New[V any]() *Cache[V] {
	c := &Cache[V]{}
	for i := range c.shards {
		c.shards[i].m = make(map[string]V)
	}
	return c
}

func (c *Cache[V]) shardFor(key string) *shard[V] {
	h := fnv.New64a()
	_, _ = h.Write([]byte(key))
	return &c.shards[h.Sum64()&(shardCount-1)]
}

// Get returns the cached value for key.
func (c *Cache[V]) Get(key string) (V, bool) {
	s := c.shardFor(key)
	s.mu.Lock()
	v, ok := s.m[key]
	s.mu.Unlock()
	if ok {
		c.hits.Add(1)
	} else {
		c.misses.Add(1)
	}
	return v, ok
}

// GetOrCreate returns the cached value for key, building and storing it
// with build on a miss. A failed build caches nothing.
func (c *Cache[V]) GetOrCreate(key string, build func() (V, error)) (V, error) {
	s := c.shardFor(key)
	s.mu.Lock()
	defer s.mu.Unlock()
	if v, ok := s.m[key]; ok {
		c.hits.Add(1)
		return v, nil
	}
	c.misses.Add(1)
	v, err := build()
	if err != nil {
		var zero V
		return zero, err
	}
	s.m[key] = v
	return v, nil
}

// Drain removes every entry, passing each value to release.
func (c *Cache[V]) Drain(release func(V)) {
	for i := range c.shards {
		s := &c.shards[i]
		s.mu.Lock()
		for k, v := range s.m {
			release(v)
			delete(s.m, k)
		}
		s.mu.Unlock()
	}
}

// Len returns the number of cached entries.
func (c *Cache[V]) Len() int {
	n := 0
	for i := range c.shards {
		s := &c.shards[i]
		s.mu.Lock()
		n += len(s.m)
		s.mu.Unlock()
	}
	return n
}

// Stats returns cumulative hit and miss counts.
func (c *Cache[V]) Stats() (hits, misses uint64) {
	return c.hits.Load(), c.misses.Load()
}

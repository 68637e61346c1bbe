package cache

import (
	"sync/atomic"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
)

// Memory is a bounded in-memory LRU with a TTL applied to every entry.
// It is safe for concurrent use.
type Memory[K comparable, V any] struct {
	lru      *expirable.LRU[K, V]
	capacity int

	hits      atomic.Int64
	misses    atomic.Int64
	evictions atomic.Int64
}

// Stats is a snapshot of cache counters.
type Stats struct {
	Hits      int64 `json:"hits"`
	Misses    int64 `json:"misses"`
	Evictions int64 `json:"evictions"`
	Size      int   `json:"size"`
	Capacity  int   `json:"capacity"`
}

// NewMemory creates a cache holding at most capacity entries, each living
// for ttl. A capacity of zero means unbounded; a ttl of zero disables expiry.
func NewMemory[K comparable, V any](capacity int, ttl time.Duration) *Memory[K, V] {
	m := &Memory[K, V]{capacity: capacity}
	m.lru = expirable.NewLRU[K, V](capacity, func(K, V) {
		m.evictions.Add(1)
	}, ttl)
	return m
}

// Get returns the value for key and marks it most recently used.
func (m *Memory[K, V]) Get(key K) (V, bool) {
	v, ok := m.lru.Get(key)
	if ok {
		m.hits.Add(1)
	} else {
		m.misses.Add(1)
	}
	return v, ok
}

// Contains reports whether key is present without touching recency or stats.
func (m *Memory[K, V]) Contains(key K) bool {
	_, ok := m.lru.Peek(key)
	return ok
}

// Set stores value under key, evicting the least recently used entry when
// the cache is full. Setting an existing key resets its TTL.
func (m *Memory[K, V]) Set(key K, value V) {
	m.lru.Add(key, value)
}

// Delete removes key.
func (m *Memory[K, V]) Delete(key K) {
	m.lru.Remove(key)
}

// Purge removes every entry.
func (m *Memory[K, V]) Purge() {
	m.lru.Purge()
}

// Len returns the number of resident entries, including expired ones not
// yet collected.
func (m *Memory[K, V]) Len() int {
	return m.lru.Len()
}

// Stats returns current counters. Evictions include expired entries
// removed by the cache.
func (m *Memory[K, V]) Stats() Stats {
	return Stats{
		Hits:      m.hits.Load(),
		Misses:    m.misses.Load(),
		Evictions: m.evictions.Load(),
		Size:      m.lru.Len(),
		Capacity:  m.capacity,
	}
}

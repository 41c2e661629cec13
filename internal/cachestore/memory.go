// Package cachestore provides pagepick.Cache backends: in-process memory,
// Redis and SQLite. Values are stored as JSON so every backend round-trips
// the same way.
package cachestore

import (
	"context"
	"encoding/json"
	"sync"
	"time"
)

type memEntry struct {
	data    []byte
	expires time.Time // zero = never
}

// Memory is an in-process cache with per-entry expiry.
type Memory struct {
	mu      sync.RWMutex
	entries map[string]memEntry
	ns      string
	now     func() time.Time
}

// NewMemory returns an empty in-memory cache. Keys are prefixed with ns.
func NewMemory(ns string) *Memory {
	return &Memory{entries: make(map[string]memEntry), ns: ns, now: time.Now}
}

// Key builds a namespaced cache key.
func (m *Memory) Key(prefix, value string) string { return buildKey(m.ns, prefix, value) }

// Get decodes the entry at key into dest. Expired entries are misses.
func (m *Memory) Get(_ context.Context, key string, dest any) bool {
	m.mu.RLock()
	e, ok := m.entries[key]
	m.mu.RUnlock()
	if !ok {
		return false
	}
	if !e.expires.IsZero() && m.now().After(e.expires) {
		m.mu.Lock()
		delete(m.entries, key)
		m.mu.Unlock()
		return false
	}
	return unmarshalJSON(e.data, dest)
}

// Set stores value under key. ttl <= 0 keeps the entry until it is overwritten.
func (m *Memory) Set(_ context.Context, key string, value any, ttl time.Duration) {
	b, ok := marshalJSON(value)
	if !ok {
		return
	}
	e := memEntry{data: b}
	if ttl > 0 {
		e.expires = m.now().Add(ttl)
	}
	m.mu.Lock()
	m.entries[key] = e
	m.mu.Unlock()
}

// Len reports the number of stored entries, expired ones included.
func (m *Memory) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.entries)
}

func buildKey(ns, prefix, value string) string {
	if ns == "" {
		return prefix + ":" + value
	}
	return ns + ":" + prefix + ":" + value
}

func marshalJSON(v any) ([]byte, bool) {
	b, err := json.Marshal(v)
	return b, err == nil
}

func unmarshalJSON(b []byte, dest any) bool { return json.Unmarshal(b, dest) == nil }

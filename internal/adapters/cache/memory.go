// Package cache provides the two result-cache tiers: a process-local map
// with lazy expiry and a shared Redis tier with push-down expiry. Both store
// the full aggregated QueryResult under a case-insensitive (type, value) key.
package cache

import (
	"context"
	"strings"
	"sync"
	"time"

	"vigil/internal/domain"
)

type memoryEntry struct {
	result   domain.QueryResult
	storedAt time.Time
	ttl      time.Duration
}

// Memory is the in-process tier. Entries are evicted the first time a read
// observes they have outlived their TTL.
type Memory struct {
	mu    sync.Mutex
	store map[string]memoryEntry
	now   func() time.Time
}

func NewMemory() *Memory {
	return &Memory{store: make(map[string]memoryEntry), now: time.Now}
}

func key(iocType domain.IOCType, iocValue string) string {
	return strings.ToLower(string(iocType)) + ":" + strings.ToLower(iocValue)
}

func (m *Memory) Get(_ context.Context, iocType domain.IOCType, iocValue string) (domain.QueryResult, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	k := key(iocType, iocValue)
	e, ok := m.store[k]
	if !ok {
		return domain.QueryResult{}, false
	}
	if m.now().Sub(e.storedAt) > e.ttl {
		delete(m.store, k)
		return domain.QueryResult{}, false
	}
	return e.result, true
}

func (m *Memory) Set(_ context.Context, result domain.QueryResult, ttl time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.store[key(result.IOCType, result.IOCValue)] = memoryEntry{
		result:   result,
		storedAt: m.now(),
		ttl:      ttl,
	}
}

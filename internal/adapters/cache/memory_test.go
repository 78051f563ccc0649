package cache

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"vigil/internal/domain"
)

func TestMemoryRoundTrip(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()

	_, ok := m.Get(ctx, domain.IOCTypeIP, "8.8.8.8")
	assert.False(t, ok)

	result := domain.QueryResult{IOCType: domain.IOCTypeIP, IOCValue: "8.8.8.8"}
	m.Set(ctx, result, time.Minute)

	got, ok := m.Get(ctx, domain.IOCTypeIP, "8.8.8.8")
	require.True(t, ok)
	assert.Equal(t, result, got)
}

func TestMemoryKeyIsCaseInsensitive(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()

	m.Set(ctx, domain.QueryResult{IOCType: domain.IOCTypeDomain, IOCValue: "Example.com"}, time.Minute)

	_, ok := m.Get(ctx, domain.IOCType("DOMAIN"), "example.COM")
	assert.True(t, ok)
}

func TestMemoryExpiry(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()

	current := time.Now()
	m.now = func() time.Time { return current }

	m.Set(ctx, domain.QueryResult{IOCType: domain.IOCTypeIP, IOCValue: "1.1.1.1"}, 5*time.Minute)

	current = current.Add(5 * time.Minute)
	_, ok := m.Get(ctx, domain.IOCTypeIP, "1.1.1.1")
	assert.True(t, ok, "exactly at TTL is still fresh")

	current = current.Add(time.Second)
	_, ok = m.Get(ctx, domain.IOCTypeIP, "1.1.1.1")
	assert.False(t, ok, "past TTL is evicted")

	// The expired entry was removed, not just hidden.
	m.mu.Lock()
	assert.Empty(t, m.store)
	m.mu.Unlock()
}

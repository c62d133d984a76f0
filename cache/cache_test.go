package cache

import (
	"context"
	"testing"
	"time"

	"github.com/BaSui01/llmgateway/adapter"
	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func newTestCache(t *testing.T) *Cache {
	t.Helper()
	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)

	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	return New(rdb, DefaultConfig(), zap.NewNop())
}

func TestCache_SetGetRoundTrip(t *testing.T) {
	c := newTestCache(t)
	ctx := context.Background()

	resp := &adapter.ChatResponse{ID: "abc", Model: "gpt-4"}
	require.NoError(t, c.Set(ctx, "k1", resp))

	entry, err := c.Get(ctx, "k1")
	require.NoError(t, err)
	assert.Equal(t, "abc", entry.Response.ID)
}

func TestCache_MissReturnsErrMiss(t *testing.T) {
	c := newTestCache(t)
	_, err := c.Get(context.Background(), "missing")
	assert.ErrorIs(t, err, ErrMiss)
}

func TestCache_RedisBackfillsLocal(t *testing.T) {
	c := newTestCache(t)
	ctx := context.Background()
	require.NoError(t, c.Set(ctx, "k2", &adapter.ChatResponse{ID: "xyz"}))

	c.local.Clear()
	_, ok := c.local.Get("k2")
	require.False(t, ok)

	entry, err := c.Get(ctx, "k2")
	require.NoError(t, err)
	assert.Equal(t, "xyz", entry.Response.ID)

	_, ok = c.local.Get("k2")
	assert.True(t, ok, "redis hit should backfill the local tier")
}

func TestIsCacheable_StreamingExcluded(t *testing.T) {
	assert.True(t, IsCacheable(&adapter.ChatRequest{Stream: false}))
	assert.False(t, IsCacheable(&adapter.ChatRequest{Stream: true}))
}

func TestFingerprint_IgnoresFieldsOutsideIncludeInKey(t *testing.T) {
	a := &adapter.ChatRequest{Model: "gpt-4", Messages: []adapter.Message{{Role: "user", Content: "hi"}}, MaxTokens: 100}
	b := &adapter.ChatRequest{Model: "gpt-4", Messages: []adapter.Message{{Role: "user", Content: "hi"}}, MaxTokens: 999}

	include := []string{"model", "messages"}
	assert.Equal(t, Fingerprint(a, include), Fingerprint(b, include))
	assert.NotEqual(t, Fingerprint(a, nil), Fingerprint(b, nil))
}

func TestLRUCache_EvictsLeastRecentlyUsed(t *testing.T) {
	lru := NewLRUCache(2, time.Minute)
	lru.Set("a", &Entry{})
	lru.Set("b", &Entry{})
	lru.Get("a")
	lru.Set("c", &Entry{})

	_, ok := lru.Get("b")
	assert.False(t, ok, "b should have been evicted as least recently used")
	_, ok = lru.Get("a")
	assert.True(t, ok)
	_, ok = lru.Get("c")
	assert.True(t, ok)
}

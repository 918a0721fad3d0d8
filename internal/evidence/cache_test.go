package evidence

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/scanforge/diligence/internal/scan"
)

func newTestCache(t *testing.T, ttl time.Duration) (*RetrievalCache, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })
	return NewRetrievalCache(rdb, ttl, zap.NewNop()), mr
}

func TestRetrievalCacheRoundTrip(t *testing.T) {
	cache, _ := newTestCache(t, time.Hour)
	ctx := context.Background()
	req := Request{Query: "acme revenue", TypeHint: scan.EvidenceWebSearch}
	results := []RawEvidence{{URL: "https://example.com/a", Title: "Acme", Content: "revenue grew"}}

	_, ok := cache.Get(ctx, "search", req)
	assert.False(t, ok)

	cache.Put(ctx, "search", req, results)
	got, ok := cache.Get(ctx, "search", req)
	require.True(t, ok)
	assert.Equal(t, results, got)
}

func TestRetrievalCacheKeyedByProviderAndRequest(t *testing.T) {
	cache, _ := newTestCache(t, time.Hour)
	ctx := context.Background()
	req := Request{Query: "acme revenue"}
	cache.Put(ctx, "search", req, []RawEvidence{{Content: "x"}})

	_, ok := cache.Get(ctx, "other-provider", req)
	assert.False(t, ok)
	_, ok = cache.Get(ctx, "search", Request{Query: "acme funding"})
	assert.False(t, ok)
}

func TestRetrievalCacheExpires(t *testing.T) {
	cache, mr := newTestCache(t, time.Minute)
	ctx := context.Background()
	req := Request{URL: "https://acme.com", TypeHint: scan.EvidenceTechFingerprint}
	cache.Put(ctx, "fingerprint", req, []RawEvidence{{Tool: "fingerprint", Content: "react"}})

	mr.FastForward(2 * time.Minute)
	_, ok := cache.Get(ctx, "fingerprint", req)
	assert.False(t, ok)
}

func TestRetrievalCacheNilSafe(t *testing.T) {
	var cache *RetrievalCache
	ctx := context.Background()
	req := Request{Query: "q"}

	_, ok := cache.Get(ctx, "search", req)
	assert.False(t, ok)
	cache.Put(ctx, "search", req, nil) // must not panic
}

func TestRetrievalCacheIgnoresCorruptEntry(t *testing.T) {
	cache, mr := newTestCache(t, time.Hour)
	ctx := context.Background()
	req := Request{Query: "acme revenue"}
	require.NoError(t, mr.Set(cacheKey("search", req), "not-json"))

	_, ok := cache.Get(ctx, "search", req)
	assert.False(t, ok)
}

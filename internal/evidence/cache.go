package evidence

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// RetrievalCache memoizes provider responses so idempotent stage retries and
// repeat rounds perform zero duplicate external calls. Cache misses and Redis
// failures both fall through to the provider; the cache is never load-bearing.
type RetrievalCache struct {
	rdb    *redis.Client
	ttl    time.Duration
	logger *zap.Logger
}

// NewRetrievalCache creates a cache over an existing Redis client.
func NewRetrievalCache(rdb *redis.Client, ttl time.Duration, logger *zap.Logger) *RetrievalCache {
	if ttl == 0 {
		ttl = 6 * time.Hour
	}
	return &RetrievalCache{rdb: rdb, ttl: ttl, logger: logger}
}

func cacheKey(provider string, req Request) string {
	h := sha256.Sum256([]byte(req.Query + "|" + req.URL + "|" + string(req.TypeHint)))
	return fmt.Sprintf("evidence:%s:%s", provider, hex.EncodeToString(h[:])[:24])
}

// Get returns cached results for a provider request, or (nil, false).
func (c *RetrievalCache) Get(ctx context.Context, provider string, req Request) ([]RawEvidence, bool) {
	if c == nil || c.rdb == nil {
		return nil, false
	}
	data, err := c.rdb.Get(ctx, cacheKey(provider, req)).Bytes()
	if err != nil {
		if err != redis.Nil {
			c.logger.Warn("Retrieval cache read failed", zap.Error(err))
		}
		return nil, false
	}
	var out []RawEvidence
	if err := json.Unmarshal(data, &out); err != nil {
		c.logger.Warn("Retrieval cache entry corrupt, ignoring", zap.Error(err))
		return nil, false
	}
	return out, true
}

// Put stores provider results. Failures are logged and dropped.
func (c *RetrievalCache) Put(ctx context.Context, provider string, req Request, results []RawEvidence) {
	if c == nil || c.rdb == nil {
		return
	}
	data, err := json.Marshal(results)
	if err != nil {
		return
	}
	if err := c.rdb.Set(ctx, cacheKey(provider, req), data, c.ttl).Err(); err != nil {
		c.logger.Warn("Retrieval cache write failed", zap.Error(err))
	}
}

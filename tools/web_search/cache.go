package web_search

import (
	"context"
	"crypto/sha1"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/mohammad-safakhou/deepresearch/tools/web_search/models"
)

// CachedSearcher wraps a WebSearcher with a Redis-backed result cache. Search
// providers bill per query, so identical queries within the TTL are served
// from cache. Cache failures fall through to the underlying searcher.
type CachedSearcher struct {
	Inner WebSearcher
	Rdb   *redis.Client
	TTL   time.Duration
}

func NewCachedSearcher(inner WebSearcher, rdb *redis.Client, ttl time.Duration) *CachedSearcher {
	if ttl <= 0 {
		ttl = 15 * time.Minute
	}
	return &CachedSearcher{Inner: inner, Rdb: rdb, TTL: ttl}
}

func (c *CachedSearcher) Search(ctx context.Context, q string, k int) ([]models.Result, error) {
	key := cacheKey(q, k)
	if data, err := c.Rdb.Get(ctx, key).Bytes(); err == nil {
		var cached []models.Result
		if err := json.Unmarshal(data, &cached); err == nil {
			return cached, nil
		}
	}

	results, err := c.Inner.Search(ctx, q, k)
	if err != nil {
		return nil, err
	}
	if data, err := json.Marshal(results); err == nil {
		_ = c.Rdb.Set(ctx, key, data, c.TTL).Err()
	}
	return results, nil
}

func cacheKey(q string, k int) string {
	sum := sha1.Sum([]byte(fmt.Sprintf("%d:%s", k, q)))
	return "websearch:" + hex.EncodeToString(sum[:])
}

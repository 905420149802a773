// Package cache provides a Redis-backed read-through cache for extraction
// results, so re-analyzing an unchanged policy does not pay for a second
// round of provider calls.
package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/brokerpoint/polizza-analyzer/internal/domain"
)

// ExtractionCache stores ExtractionResult values keyed by company and
// guarantee title with a fixed TTL.
type ExtractionCache struct {
	rdb *redis.Client
	ttl time.Duration
}

// New constructs an ExtractionCache from a Redis URL.
func New(redisURL string, ttl time.Duration) (*ExtractionCache, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("op=cache.New: %w", err)
	}
	return &ExtractionCache{rdb: redis.NewClient(opts), ttl: ttl}, nil
}

// NewWithClient wraps an existing client; used by tests and by callers that
// already hold a connection.
func NewWithClient(rdb *redis.Client, ttl time.Duration) *ExtractionCache {
	return &ExtractionCache{rdb: rdb, ttl: ttl}
}

func key(companyName, guaranteeTitle string) string {
	return "extraction:" + companyName + ":" + guaranteeTitle
}

// Get returns the cached result for a (company, guarantee) pair. The second
// return value is false on a miss; an unreadable entry counts as a miss and
// is dropped.
func (c *ExtractionCache) Get(ctx context.Context, companyName, guaranteeTitle string) (domain.ExtractionResult, bool, error) {
	raw, err := c.rdb.Get(ctx, key(companyName, guaranteeTitle)).Bytes()
	if err != nil {
		if err == redis.Nil {
			return domain.ExtractionResult{}, false, nil
		}
		return domain.ExtractionResult{}, false, fmt.Errorf("op=cache.Get: %w", err)
	}
	var res domain.ExtractionResult
	if err := json.Unmarshal(raw, &res); err != nil {
		_ = c.rdb.Del(ctx, key(companyName, guaranteeTitle)).Err()
		return domain.ExtractionResult{}, false, nil
	}
	return res, true, nil
}

// Set stores a result for a (company, guarantee) pair.
func (c *ExtractionCache) Set(ctx context.Context, companyName, guaranteeTitle string, res domain.ExtractionResult) error {
	raw, err := json.Marshal(res)
	if err != nil {
		return fmt.Errorf("op=cache.Set: %w", err)
	}
	if err := c.rdb.Set(ctx, key(companyName, guaranteeTitle), raw, c.ttl).Err(); err != nil {
		return fmt.Errorf("op=cache.Set: %w", err)
	}
	return nil
}

// InvalidateCompany removes every cached extraction for a company, used when
// its policy text is replaced.
func (c *ExtractionCache) InvalidateCompany(ctx context.Context, companyName string) error {
	iter := c.rdb.Scan(ctx, 0, "extraction:"+companyName+":*", 0).Iterator()
	for iter.Next(ctx) {
		if err := c.rdb.Del(ctx, iter.Val()).Err(); err != nil {
			return fmt.Errorf("op=cache.InvalidateCompany: %w", err)
		}
	}
	if err := iter.Err(); err != nil {
		return fmt.Errorf("op=cache.InvalidateCompany: %w", err)
	}
	return nil
}

// Ping reports backing-store health for readiness checks.
func (c *ExtractionCache) Ping(ctx context.Context) error {
	return c.rdb.Ping(ctx).Err()
}

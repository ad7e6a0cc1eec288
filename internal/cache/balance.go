// Package cache holds the Redis read-through cache for derived balances.
//
// The cache is a strict subordinate of the ledger: entries are deleted, never
// overwritten in place, when the ledger mutates, and the TTL bounds how stale
// a value can get if an invalidation is lost.
package cache

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

// TTL is the freshness window for cached balances.
const TTL = 300 * time.Second

// BalanceCache caches per-user credit balances under "credits:{user_id}".
type BalanceCache struct {
	client redis.Cmdable
	ttl    time.Duration
}

// NewBalanceCache returns a cache over the given Redis client.
func NewBalanceCache(client redis.Cmdable) *BalanceCache {
	return &BalanceCache{client: client, ttl: TTL}
}

func balanceKey(userID int64) string {
	return fmt.Sprintf("credits:%d", userID)
}

// Get returns the cached balance and whether it was present. A missing or
// expired key is a miss, not an error.
func (c *BalanceCache) Get(ctx context.Context, userID int64) (int64, bool, error) {
	val, err := c.client.Get(ctx, balanceKey(userID)).Result()
	if errors.Is(err, redis.Nil) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, fmt.Errorf("cache get: %w", err)
	}
	balance, err := strconv.ParseInt(val, 10, 64)
	if err != nil {
		// Corrupt value; treat as a miss so the ledger is re-read.
		return 0, false, nil
	}
	return balance, true, nil
}

// Set stores a freshly computed balance with the standard TTL.
func (c *BalanceCache) Set(ctx context.Context, userID int64, balance int64) error {
	if err := c.client.Set(ctx, balanceKey(userID), strconv.FormatInt(balance, 10), c.ttl).Err(); err != nil {
		return fmt.Errorf("cache set: %w", err)
	}
	return nil
}

// Invalidate removes the cached balance so the next read recomputes from the
// ledger. Called after the mutating write commits.
func (c *BalanceCache) Invalidate(ctx context.Context, userID int64) error {
	if err := c.client.Del(ctx, balanceKey(userID)).Err(); err != nil {
		return fmt.Errorf("cache invalidate: %w", err)
	}
	return nil
}

// Package cache keeps the last quote seen for every symbol in Redis.
package cache

import (
	"context"
	"errors"
	"fmt"
	"time"

	"paper-trader/apperr"
	"paper-trader/models"

	"github.com/go-redis/redis/v8"
	"github.com/vmihailenco/msgpack/v5"
)

const DefaultTTL = 24 * time.Hour

// PriceCache stores quotes under stock:<SYMBOL>:price.
type PriceCache struct {
	rdb *redis.Client
	ttl time.Duration
}

func NewPriceCache(rdb *redis.Client, ttl time.Duration) *PriceCache {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &PriceCache{rdb: rdb, ttl: ttl}
}

func priceKey(symbol string) string {
	return fmt.Sprintf("stock:%s:price", symbol)
}

// Put stores q as the last known quote for symbol.
func (c *PriceCache) Put(ctx context.Context, symbol string, q models.Quote) error {
	data, err := msgpack.Marshal(&q)
	if err != nil {
		return fmt.Errorf("encode quote: %w", err)
	}
	if err := c.rdb.Set(ctx, priceKey(symbol), data, c.ttl).Err(); err != nil {
		return fmt.Errorf("cache quote %s: %w", symbol, err)
	}
	return nil
}

// Get returns the last known quote for symbol, or ErrNotFound.
func (c *PriceCache) Get(ctx context.Context, symbol string) (*models.Quote, error) {
	data, err := c.rdb.Get(ctx, priceKey(symbol)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, fmt.Errorf("cached quote %s: %w", symbol, apperr.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("cached quote %s: %w", symbol, err)
	}

	var q models.Quote
	if err := msgpack.Unmarshal(data, &q); err != nil {
		return nil, fmt.Errorf("decode cached quote %s: %w", symbol, err)
	}
	return &q, nil
}

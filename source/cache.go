// Copyright (c) 2023 Mikołaj Kuranowski
// SPDX-License-Identifier: MIT

package source

import (
	"context"
	"time"

	"github.com/eko/gocache/lib/v4/cache"
	"github.com/eko/gocache/lib/v4/store"
	redisstore "github.com/eko/gocache/store/redis/v4"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
)

// NewRedisCache creates a document cache backed by Redis, expiring entries after ttl.
func NewRedisCache(client *redis.Client, ttl time.Duration) *cache.Cache[string] {
	redisStore := redisstore.NewRedis(client, store.WithExpiration(ttl))
	return cache.New[string](redisStore)
}

// CachedFetcher serves documents from a cache, falling back to Upstream on a miss.
// Cache failures are never fatal; Upstream is consulted instead.
type CachedFetcher struct {
	Upstream Fetcher
	Cache    *cache.Cache[string]
	Key      string
}

func (f *CachedFetcher) Fetch(ctx context.Context) ([]byte, error) {
	cached, err := f.Cache.Get(ctx, f.Key)
	if err == nil {
		return []byte(cached), nil
	}

	content, err := f.Upstream.Fetch(ctx)
	if err != nil {
		return nil, err
	}

	if err := f.Cache.Set(ctx, f.Key, string(content)); err != nil {
		log.Warn().Err(err).Str("key", f.Key).Msg("Failed to cache document")
	}
	return content, nil
}

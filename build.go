// Copyright (c) 2023 Mikołaj Kuranowski
// SPDX-License-Identifier: MIT

package main

import (
	"net/http"
	"time"

	"github.com/eko/gocache/lib/v4/cache"
	"github.com/redis/go-redis/v9"

	"github.com/MKuranowski/MuiWoFerry/civil"
	"github.com/MKuranowski/MuiWoFerry/config"
	"github.com/MKuranowski/MuiWoFerry/engine"
	"github.com/MKuranowski/MuiWoFerry/export"
	"github.com/MKuranowski/MuiWoFerry/schedule"
	"github.com/MKuranowski/MuiWoFerry/source"
)

// staticFileInterval is the minimal time between reads of local timetable and holiday files
const staticFileInterval = 5 * time.Minute

// builder turns the configuration into sources and an engine
type builder struct {
	cfg    *config.Config
	client *http.Client
	redis  *redis.Client
	cache  *cache.Cache[string]
}

func newBuilder(cfg *config.Config) *builder {
	b := &builder{
		cfg:    cfg,
		client: &http.Client{Timeout: cfg.HTTP.Timeout},
	}

	if cfg.Redis.Address != "" {
		b.redis = redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Address,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.Database,
		})
		b.cache = source.NewRedisCache(b.redis, cfg.Redis.TTL)
	}

	return b
}

func (b *builder) Close() error {
	if b.redis != nil {
		return b.redis.Close()
	}
	return nil
}

// fetcher creates a source for a document. Only static documents are cached,
// live feeds would go stale in the cache.
func (b *builder) fetcher(name string, loc config.Location, static bool) source.Fetcher {
	if loc.Path != "" {
		interval := time.Duration(0)
		if static {
			interval = staticFileInterval
		}
		return source.NewFileFetcher(name, loc.Path, interval)
	}

	var f source.Fetcher = &source.HTTPFetcher{
		Name:      name,
		URL:       loc.URL,
		UserAgent: b.cfg.HTTP.UserAgent,
		Client:    b.client,
		Retry:     b.cfg.Retry.Policy(),
	}

	if static && b.cache != nil {
		f = &source.CachedFetcher{Upstream: f, Cache: b.cache, Key: "muiwo-ferry:" + name}
	}
	return f
}

func (b *builder) Timetable() source.Timetable {
	return source.Timetable{
		Fetcher: b.fetcher(engine.SourceSchedule, b.cfg.Sources.Schedule, true),
		Format:  b.cfg.Sources.Format,
		Columns: b.cfg.Sources.Columns,
	}
}

func (b *builder) Holidays() source.Fetcher {
	return b.fetcher(engine.SourceHolidays, b.cfg.Sources.Holidays, true)
}

func (b *builder) Sources() engine.Sources {
	etas := make(map[schedule.Direction]source.Fetcher, len(b.cfg.Sources.ETA))
	for name, loc := range b.cfg.Sources.ETA {
		if d, ok := schedule.ParseDirectionName(name); ok && !loc.IsZero() {
			etas[d] = b.fetcher(engine.SourceETA(d), loc, false)
		}
	}

	return engine.Sources{
		Timetable: b.Timetable(),
		Holidays:  b.Holidays(),
		ETA:       etas,
	}
}

func (b *builder) Resolver() (*civil.Resolver, error) {
	return civil.NewResolver(b.cfg.Timezone, nil)
}

// Exporter returns the GTFS-Realtime writer, or nil if export is disabled.
func (b *builder) Exporter(target string, humanReadable bool) engine.Publisher {
	if target == "" {
		return nil
	}
	return &export.FileWriter{Target: target, HumanReadable: humanReadable, Options: b.cfg.Export.Options}
}

func (b *builder) Engine(publisher engine.Publisher) (*engine.Engine, error) {
	resolver, err := b.Resolver()
	if err != nil {
		return nil, err
	}

	return engine.New(resolver, b.Sources(), engine.Options{
		Ingest:        b.cfg.IngestOptions(),
		Tick:          b.cfg.Engine.Tick,
		FetchEvery:    b.cfg.Engine.FetchEvery,
		StaticRefresh: b.cfg.Engine.StaticRefresh,
		Publisher:     publisher,
	}), nil
}

// Package rediscache layers a Redis read-through cache over the result store
// and holds the short-lived index quote cache. Redis being down never fails a
// request; the cache degrades to pass-through with a warning.
package rediscache

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/rs/zerolog"

	"github.com/oiscan/oiscan/internal/domain"
	"github.com/oiscan/oiscan/internal/metrics"
	"github.com/oiscan/oiscan/internal/store"
)

const (
	keyPrefix     = "oiscan:"
	keyLatest     = keyPrefix + "results:latest"
	keyScannedAt  = keyPrefix + "results:scanned_at"
	keyIndexQuote = keyPrefix + "index:" // + name
)

// ResultCache implements store.ResultStore around an inner store.
type ResultCache struct {
	inner store.ResultStore
	rdb   *redis.Client
	ttl   time.Duration
	log   zerolog.Logger
	reg   *metrics.Registry
}

// NewResultCache wraps inner with a Redis cache. ttl bounds how stale a
// cached snapshot can get if a commit's cache write is lost.
func NewResultCache(inner store.ResultStore, rdb *redis.Client, ttl time.Duration, log zerolog.Logger, reg *metrics.Registry) *ResultCache {
	return &ResultCache{inner: inner, rdb: rdb, ttl: ttl, log: log, reg: reg}
}

func (c *ResultCache) Latest(ctx context.Context) (*domain.Results, error) {
	if cached, err := c.rdb.Get(ctx, keyLatest).Bytes(); err == nil {
		var res domain.Results
		if err := json.Unmarshal(cached, &res); err == nil {
			c.reg.CacheHits.WithLabelValues("results").Inc()
			return &res, nil
		}
		c.log.Warn().Err(err).Msg("discarding unreadable cached results snapshot")
	}
	c.reg.CacheMisses.WithLabelValues("results").Inc()

	res, err := c.inner.Latest(ctx)
	if err != nil || res == nil {
		return res, err
	}
	c.fill(ctx, res)
	return res, nil
}

func (c *ResultCache) LastScanTime(ctx context.Context) (domain.Time, bool, error) {
	if at, err := c.rdb.Get(ctx, keyScannedAt).Int64(); err == nil {
		c.reg.CacheHits.WithLabelValues("results").Inc()
		return domain.Time(at), true, nil
	}
	c.reg.CacheMisses.WithLabelValues("results").Inc()

	at, ok, err := c.inner.LastScanTime(ctx)
	if err == nil && ok {
		if err := c.rdb.Set(ctx, keyScannedAt, int64(at), c.ttl).Err(); err != nil {
			c.log.Warn().Err(err).Msg("failed to cache last scan time")
		}
	}
	return at, ok, err
}

// Commit writes through: the durable store first, then the cache. A cache
// write failure is logged, not surfaced; the next Latest repopulates it.
func (c *ResultCache) Commit(ctx context.Context, res *domain.Results, at domain.Time) error {
	if err := c.inner.Commit(ctx, res, at); err != nil {
		return err
	}
	c.fill(ctx, res)
	if err := c.rdb.Set(ctx, keyScannedAt, int64(at), c.ttl).Err(); err != nil {
		c.log.Warn().Err(err).Msg("failed to cache last scan time")
	}
	return nil
}

func (c *ResultCache) fill(ctx context.Context, res *domain.Results) {
	payload, err := json.Marshal(res)
	if err != nil {
		c.log.Warn().Err(err).Msg("failed to marshal results snapshot for cache")
		return
	}
	if err := c.rdb.Set(ctx, keyLatest, payload, c.ttl).Err(); err != nil {
		c.log.Warn().Err(err).Msg("failed to cache results snapshot")
	}
}

// Flusher clears every scanner key from Redis. Backs the dashboard's
// clear-all-caches operation.
type Flusher struct {
	rdb *redis.Client
}

func NewFlusher(rdb *redis.Client) *Flusher {
	return &Flusher{rdb: rdb}
}

// Flush deletes all oiscan:* keys.
func (f *Flusher) Flush(ctx context.Context) error {
	iter := f.rdb.Scan(ctx, 0, keyPrefix+"*", 100).Iterator()
	var keys []string
	for iter.Next(ctx) {
		keys = append(keys, iter.Val())
	}
	if err := iter.Err(); err != nil {
		return fmt.Errorf("failed to scan cache keys: %w", err)
	}
	if len(keys) == 0 {
		return nil
	}
	if err := f.rdb.Del(ctx, keys...).Err(); err != nil {
		return fmt.Errorf("failed to delete cache keys: %w", err)
	}
	return nil
}

// QuoteCache caches per-index percent changes with a short TTL, keeping the
// dashboard's 60-second polling cadence from hammering the broker.
type QuoteCache struct {
	rdb *redis.Client
	ttl time.Duration
	log zerolog.Logger
	reg *metrics.Registry
}

func NewQuoteCache(rdb *redis.Client, ttl time.Duration, log zerolog.Logger, reg *metrics.Registry) *QuoteCache {
	return &QuoteCache{rdb: rdb, ttl: ttl, log: log, reg: reg}
}

// Get returns the cached percent change for an index name, if present.
func (q *QuoteCache) Get(ctx context.Context, name string) (float64, bool) {
	val, err := q.rdb.Get(ctx, keyIndexQuote+name).Float64()
	if err != nil {
		q.reg.CacheMisses.WithLabelValues("index").Inc()
		return 0, false
	}
	q.reg.CacheHits.WithLabelValues("index").Inc()
	return val, true
}

// Put stores a percent change for an index name.
func (q *QuoteCache) Put(ctx context.Context, name string, changePercent float64) {
	if err := q.rdb.Set(ctx, keyIndexQuote+name, changePercent, q.ttl).Err(); err != nil {
		q.log.Warn().Err(err).Str("index", name).Msg("failed to cache index quote")
	}
}

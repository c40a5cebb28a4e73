package main

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/patrickmn/go-cache"
	"github.com/redis/go-redis/v9"
)

// DefaultSummaryTTL is how long a computed summary stays cached
const DefaultSummaryTTL = 15 * time.Minute

// SummaryCache holds computed summary reports keyed by strategy ID.
// Entries are invalidated whenever a strategy is re-simulated.
type SummaryCache interface {
	Get(ctx context.Context, strategyID string) (*SummaryReport, bool)
	Set(ctx context.Context, strategyID string, report *SummaryReport) error
	Invalidate(ctx context.Context, strategyID string) error
}

// MemorySummaryCache is an in-process cache backed by go-cache
type MemorySummaryCache struct {
	c *cache.Cache
}

// NewMemorySummaryCache creates an in-process cache with the given TTL
func NewMemorySummaryCache(ttl time.Duration) *MemorySummaryCache {
	if ttl <= 0 {
		ttl = DefaultSummaryTTL
	}
	return &MemorySummaryCache{c: cache.New(ttl, 2*ttl)}
}

func (m *MemorySummaryCache) Get(_ context.Context, strategyID string) (*SummaryReport, bool) {
	v, found := m.c.Get(strategyID)
	if !found {
		return nil, false
	}
	report, ok := v.(*SummaryReport)
	if !ok {
		return nil, false
	}
	return report.Clone(), true
}

func (m *MemorySummaryCache) Set(_ context.Context, strategyID string, report *SummaryReport) error {
	m.c.Set(strategyID, report.Clone(), cache.DefaultExpiration)
	return nil
}

func (m *MemorySummaryCache) Invalidate(_ context.Context, strategyID string) error {
	m.c.Delete(strategyID)
	return nil
}

// RedisSummaryCache shares summaries between server instances through Redis
type RedisSummaryCache struct {
	client *redis.Client
	ttl    time.Duration
}

// NewRedisSummaryCache connects to the Redis server at addr
func NewRedisSummaryCache(addr string, ttl time.Duration) *RedisSummaryCache {
	if ttl <= 0 {
		ttl = DefaultSummaryTTL
	}
	rdb := redis.NewClient(&redis.Options{
		Addr: addr,
	})
	return &RedisSummaryCache{client: rdb, ttl: ttl}
}

func redisSummaryKey(strategyID string) string {
	return "smith:summary:" + strategyID
}

// Ping checks the connection
func (r *RedisSummaryCache) Ping(ctx context.Context) error {
	return r.client.Ping(ctx).Err()
}

func (r *RedisSummaryCache) Get(ctx context.Context, strategyID string) (*SummaryReport, bool) {
	val, err := r.client.Get(ctx, redisSummaryKey(strategyID)).Result()
	if err != nil {
		return nil, false
	}
	var report SummaryReport
	if err := json.Unmarshal([]byte(val), &report); err != nil {
		return nil, false
	}
	return &report, true
}

func (r *RedisSummaryCache) Set(ctx context.Context, strategyID string, report *SummaryReport) error {
	data, err := json.Marshal(report)
	if err != nil {
		return err
	}
	return r.client.Set(ctx, redisSummaryKey(strategyID), data, r.ttl).Err()
}

func (r *RedisSummaryCache) Invalidate(ctx context.Context, strategyID string) error {
	err := r.client.Del(ctx, redisSummaryKey(strategyID)).Err()
	if errors.Is(err, redis.Nil) {
		return nil
	}
	return err
}

// Close releases the client connection pool
func (r *RedisSummaryCache) Close() error {
	return r.client.Close()
}

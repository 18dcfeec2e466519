// Package cache memoizes proximity query results in two tiers: a local LRU
// in front of an optional shared Redis store. Keys include the index
// generation, so results of an older index are never served after a
// rebuild.
package cache

import (
	"context"
	"crypto/sha256"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
	"golang.org/x/sync/singleflight"

	"github.com/Adithya-Monish-Kumar-K/proximity-index/internal/searcher/executor"
	"github.com/Adithya-Monish-Kumar-K/proximity-index/pkg/config"
	"github.com/Adithya-Monish-Kumar-K/proximity-index/pkg/metrics"
	"github.com/Adithya-Monish-Kumar-K/proximity-index/pkg/resilience"
)

const keyPrefix = "prox:"

// Status tells where a result came from.
type Status string

const (
	StatusLocal  Status = "local"
	StatusRemote Status = "redis"
	StatusMiss   Status = "miss"
)

// Store is the shared tier. *redis.Client implements it.
type Store interface {
	Get(ctx context.Context, key string) (string, bool, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	DeletePrefix(ctx context.Context, prefix string) (int64, error)
}

type entry struct {
	result  *executor.SearchResult
	expires time.Time
}

type QueryCache struct {
	local      *lru.Cache[string, entry]
	remote     Store
	breaker    *resilience.CircuitBreaker
	ttl        time.Duration
	group      singleflight.Group
	metrics    *metrics.Metrics
	logger     *slog.Logger
	localHits  atomic.Int64
	remoteHits atomic.Int64
	misses     atomic.Int64
}

// Stats is a point-in-time view of cache effectiveness.
type Stats struct {
	LocalHits    int64  `json:"local_hits"`
	RemoteHits   int64  `json:"remote_hits"`
	Misses       int64  `json:"misses"`
	LocalEntries int    `json:"local_entries"`
	Remote       bool   `json:"remote_enabled"`
	Breaker      string `json:"remote_breaker,omitempty"`
}

// New creates a cache. remote and m may be nil.
func New(cfg config.CacheConfig, remote Store, m *metrics.Metrics) (*QueryCache, error) {
	size := cfg.LocalSize
	if size <= 0 {
		size = 1024
	}
	local, err := lru.New[string, entry](size)
	if err != nil {
		return nil, fmt.Errorf("creating local cache: %w", err)
	}
	c := &QueryCache{
		local:   local,
		remote:  remote,
		ttl:     cfg.TTL,
		metrics: m,
		logger:  slog.Default().With("component", "query-cache"),
	}
	if remote != nil {
		c.breaker = resilience.NewCircuitBreaker("query-cache-redis", resilience.CircuitBreakerConfig{
			FailureThreshold: 5,
			ResetTimeout:     30 * time.Second,
			OnStateChange: func(name string, to resilience.State) {
				if m != nil {
					m.CircuitBreakerState.WithLabelValues(name).Set(float64(to))
				}
			},
		})
	}
	return c, nil
}

// Key derives the cache key for a canonical query against one built index.
// buildID must identify the index content, not just its generation, because
// the remote tier is shared across processes.
func Key(buildID, canonical string) string {
	sum := sha256.Sum256([]byte(canonical))
	return fmt.Sprintf("%s%s:%x", keyPrefix, buildID, sum[:16])
}

// GetOrCompute returns the cached result for key, or runs compute once for
// all concurrent callers of the same key and caches its result.
func (c *QueryCache) GetOrCompute(
	ctx context.Context,
	key string,
	compute func() (*executor.SearchResult, error),
) (*executor.SearchResult, Status, error) {
	if res, status, ok := c.get(ctx, key); ok {
		return res, status, nil
	}
	val, err, _ := c.group.Do(key, func() (interface{}, error) {
		res, err := compute()
		if err != nil {
			return nil, err
		}
		c.set(ctx, key, res)
		return res, nil
	})
	if err != nil {
		return nil, StatusMiss, err
	}
	c.misses.Add(1)
	if c.metrics != nil {
		c.metrics.CacheMissesTotal.Inc()
	}
	return val.(*executor.SearchResult), StatusMiss, nil
}

func (c *QueryCache) get(ctx context.Context, key string) (*executor.SearchResult, Status, bool) {
	if e, ok := c.local.Get(key); ok {
		if c.ttl <= 0 || time.Now().Before(e.expires) {
			c.hit(StatusLocal)
			return e.result, StatusLocal, true
		}
		c.local.Remove(key)
	}
	if c.remote == nil {
		return nil, StatusMiss, false
	}

	var data string
	var found bool
	err := c.breaker.Execute(func() error {
		var err error
		data, found, err = c.remote.Get(ctx, key)
		return err
	})
	if err != nil {
		c.logger.Warn("cache get failed", "key", key, "error", err)
		return nil, StatusMiss, false
	}
	if !found {
		return nil, StatusMiss, false
	}
	var res executor.SearchResult
	if err := json.Unmarshal([]byte(data), &res); err != nil {
		c.logger.Error("cache unmarshal failed", "key", key, "error", err)
		return nil, StatusMiss, false
	}
	c.local.Add(key, entry{result: &res, expires: time.Now().Add(c.ttl)})
	c.hit(StatusRemote)
	return &res, StatusRemote, true
}

func (c *QueryCache) set(ctx context.Context, key string, res *executor.SearchResult) {
	c.local.Add(key, entry{result: res, expires: time.Now().Add(c.ttl)})
	if c.remote == nil {
		return
	}
	data, err := json.Marshal(res)
	if err != nil {
		c.logger.Error("cache marshal failed", "key", key, "error", err)
		return
	}
	err = c.breaker.Execute(func() error {
		return c.remote.Set(ctx, key, data, c.ttl)
	})
	if err != nil {
		c.logger.Warn("cache set failed", "key", key, "error", err)
	}
}

func (c *QueryCache) hit(status Status) {
	if status == StatusLocal {
		c.localHits.Add(1)
	} else {
		c.remoteHits.Add(1)
	}
	if c.metrics != nil {
		c.metrics.CacheHitsTotal.WithLabelValues(string(status)).Inc()
	}
}

// PurgeLocal drops every local entry.
func (c *QueryCache) PurgeLocal() {
	c.local.Purge()
}

// Invalidate drops every cached result in both tiers.
func (c *QueryCache) Invalidate(ctx context.Context) error {
	c.local.Purge()
	if c.remote == nil {
		return nil
	}
	var deleted int64
	err := c.breaker.Execute(func() error {
		var err error
		deleted, err = c.remote.DeletePrefix(ctx, keyPrefix)
		return err
	})
	if err != nil {
		return fmt.Errorf("invalidating cache: %w", err)
	}
	c.logger.Info("cache invalidated", "keys_deleted", deleted)
	return nil
}

func (c *QueryCache) Stats() Stats {
	st := Stats{
		LocalHits:    c.localHits.Load(),
		RemoteHits:   c.remoteHits.Load(),
		Misses:       c.misses.Load(),
		LocalEntries: c.local.Len(),
		Remote:       c.remote != nil,
	}
	if c.breaker != nil {
		st.Breaker = c.breaker.GetState().String()
	}
	return st
}

// Package gateway mediates every call to the rate-limited tabular upstream.
//
// A Gateway owns all shared mutable state of that mediation: the two-tier
// cache, the in-flight fetches, and the background refresh markers. Create
// one per process (or per test) with New and clear it with Reset.
//
// Guarantees:
//   - at most one raw fetch per cache key is in flight at any time
//   - at most MaxConcurrent raw calls run at once across all keys
//   - successive raw calls are spaced at least MinInterval apart
//   - stale entries are served immediately while one background refresh runs
package gateway

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/semaphore"
	"golang.org/x/sync/singleflight"
	"golang.org/x/time/rate"

	errs "subsidy-recon/internal/errors"
	"subsidy-recon/internal/logging"
)

// Config controls admission, caching and retry
type Config struct {
	MaxConcurrent int
	MinInterval   time.Duration
	FreshTTL      time.Duration
	StaleTTL      time.Duration
	CallTimeout   time.Duration

	MaxRetries  int
	BackoffBase time.Duration
	BackoffMax  time.Duration
	Jitter      float64

	// RefreshLogCooldown limits background refresh failure logs per key
	RefreshLogCooldown time.Duration
}

// DefaultConfig returns settings sized for the Google Sheets read quota
func DefaultConfig() Config {
	return Config{
		MaxConcurrent:      2,
		MinInterval:        1100 * time.Millisecond,
		FreshTTL:           60 * time.Second,
		StaleTTL:           10 * time.Minute,
		CallTimeout:        30 * time.Second,
		MaxRetries:         4,
		BackoffBase:        time.Second,
		BackoffMax:         30 * time.Second,
		Jitter:             0.5,
		RefreshLogCooldown: 10 * time.Minute,
	}
}

func (c Config) withDefaults() Config {
	d := DefaultConfig()
	if c.MaxConcurrent <= 0 {
		c.MaxConcurrent = d.MaxConcurrent
	}
	if c.FreshTTL <= 0 {
		c.FreshTTL = d.FreshTTL
	}
	if c.StaleTTL <= 0 {
		c.StaleTTL = d.StaleTTL
	}
	if c.MaxRetries < 0 {
		c.MaxRetries = 0
	}
	if c.BackoffBase <= 0 {
		c.BackoffBase = d.BackoffBase
	}
	if c.BackoffMax < c.BackoffBase {
		c.BackoffMax = c.BackoffBase
	}
	if c.Jitter < 0 || c.Jitter > 1 {
		c.Jitter = d.Jitter
	}
	return c
}

// Gateway is the context object for all upstream access
type Gateway struct {
	cfg    Config
	logger *zap.Logger

	cache   *ttlCache
	flights singleflight.Group
	sem     *semaphore.Weighted
	limiter *rate.Limiter

	mu         sync.Mutex
	generation uint64
	refreshing map[string]struct{}
	refreshLog *logging.Throttle
	background sync.WaitGroup

	hits         atomic.Int64
	staleHits    atomic.Int64
	misses       atomic.Int64
	rawCalls     atomic.Int64
	retries      atomic.Int64
	refreshes    atomic.Int64
	inFlight     atomic.Int64
	peakInFlight atomic.Int64
}

// New creates a gateway. Zero config fields take DefaultConfig values,
// except MinInterval and CallTimeout where zero disables the limit.
func New(cfg Config, logger *zap.Logger) *Gateway {
	cfg = cfg.withDefaults()

	limit := rate.Inf
	if cfg.MinInterval > 0 {
		limit = rate.Every(cfg.MinInterval)
	}

	return &Gateway{
		cfg:        cfg,
		logger:     logging.OrDefault(logger, "gateway"),
		cache:      newTTLCache(cfg.FreshTTL, cfg.StaleTTL),
		sem:        semaphore.NewWeighted(int64(cfg.MaxConcurrent)),
		limiter:    rate.NewLimiter(limit, 1),
		refreshing: make(map[string]struct{}),
		refreshLog: logging.NewThrottle(cfg.RefreshLogCooldown),
	}
}

// Config returns the effective configuration
func (g *Gateway) Config() Config {
	return g.cfg
}

// Reset drops every cached entry, refresh marker and counter. Fetches still
// running finish, but their results are discarded.
func (g *Gateway) Reset() {
	g.mu.Lock()
	g.generation++
	g.refreshing = make(map[string]struct{})
	g.mu.Unlock()

	g.cache.clear()
	g.refreshLog.Reset()

	for _, c := range []*atomic.Int64{&g.hits, &g.staleHits, &g.misses, &g.rawCalls, &g.retries, &g.refreshes, &g.peakInFlight} {
		c.Store(0)
	}
}

// Wait blocks until every background refresh started so far has finished
func (g *Gateway) Wait() {
	g.background.Wait()
}

// FetchFunc loads the value for one cache key from the upstream
type FetchFunc[T any] func(ctx context.Context) (T, error)

// Schedule returns the value for key, from cache when possible.
//
// A fresh entry is returned as is. A stale entry is returned immediately and
// refreshed in the background. Otherwise the caller joins the in-flight
// fetch for key, or starts one. Fetches are not cancelled when ctx is done;
// the caller just stops waiting.
func Schedule[T any](ctx context.Context, g *Gateway, key string, fetch FetchFunc[T]) (T, error) {
	var zero T
	v, err := g.schedule(ctx, key, func(ctx context.Context) (any, error) {
		return fetch(ctx)
	})
	if err != nil {
		return zero, err
	}
	if v == nil {
		return zero, nil
	}
	t, ok := v.(T)
	if !ok {
		return zero, errs.Internal(fmt.Sprintf("cache entry %q holds %T", key, v), nil)
	}
	return t, nil
}

func (g *Gateway) schedule(ctx context.Context, key string, fetch func(context.Context) (any, error)) (any, error) {
	switch v, f := g.cache.get(key); f {
	case Fresh:
		g.hits.Add(1)
		return v, nil
	case Stale:
		g.staleHits.Add(1)
		g.refresh(ctx, key, fetch)
		return v, nil
	}
	g.misses.Add(1)

	gen := g.currentGeneration()
	detached := context.WithoutCancel(ctx)
	ch := g.flights.DoChan(key, func() (any, error) {
		// A flight that finished between our cache check and joining
		// has already stored the value.
		if v, f := g.cache.get(key); f == Fresh {
			return v, nil
		}
		v, err := g.call(detached, key, fetch)
		if err != nil {
			return nil, err
		}
		g.store(key, v, gen)
		return v, nil
	})

	select {
	case res := <-ch:
		return res.Val, res.Err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// refresh starts a background refresh for key unless one is already running
func (g *Gateway) refresh(ctx context.Context, key string, fetch func(context.Context) (any, error)) {
	g.mu.Lock()
	if _, running := g.refreshing[key]; running {
		g.mu.Unlock()
		return
	}
	g.refreshing[key] = struct{}{}
	gen := g.generation
	g.mu.Unlock()

	g.refreshes.Add(1)
	g.background.Add(1)
	detached := context.WithoutCancel(ctx)

	go func() {
		defer g.background.Done()
		defer g.clearRefreshing(key, gen)

		_, err, _ := g.flights.Do(key, func() (any, error) {
			v, err := g.call(detached, key, fetch)
			if err != nil {
				return nil, err
			}
			g.store(key, v, gen)
			return v, nil
		})
		if err != nil {
			g.refreshLog.Warn(g.logger, key, "background refresh failed, serving stale data",
				zap.String("key", key),
				zap.String("error_type", string(errs.TypeOf(err))),
				zap.Error(err))
		}
	}()
}

func (g *Gateway) clearRefreshing(key string, gen uint64) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if gen == g.generation {
		delete(g.refreshing, key)
	}
}

func (g *Gateway) currentGeneration() uint64 {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.generation
}

// store writes a fetched value unless the gateway was reset since the fetch began
func (g *Gateway) store(key string, v any, gen uint64) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if gen != g.generation {
		return
	}
	g.cache.put(key, v)
}

// Prime stores v for key as if it had just been fetched
func (g *Gateway) Prime(key string, v any) {
	g.store(key, v, g.currentGeneration())
}

// Stats is a snapshot of gateway counters
type Stats struct {
	Cache        CacheStats `json:"cache"`
	Hits         int64      `json:"hits"`
	StaleHits    int64      `json:"stale_hits"`
	Misses       int64      `json:"misses"`
	RawCalls     int64      `json:"raw_calls"`
	Retries      int64      `json:"retries"`
	Refreshes    int64      `json:"refreshes"`
	PeakInFlight int64      `json:"peak_in_flight"`
}

// Stats returns current counters
func (g *Gateway) Stats() Stats {
	return Stats{
		Cache:        g.cache.stats(),
		Hits:         g.hits.Load(),
		StaleHits:    g.staleHits.Load(),
		Misses:       g.misses.Load(),
		RawCalls:     g.rawCalls.Load(),
		Retries:      g.retries.Load(),
		Refreshes:    g.refreshes.Load(),
		PeakInFlight: g.peakInFlight.Load(),
	}
}

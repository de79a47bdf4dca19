// Package gateway is the public entry point of the live-data query
// gateway. An orchestrating caller classifies an inbound
// conversational turn into an intent and a caller role, then calls
// Query; the gateway coalesces concurrent lookups sharing that
// (intent, role) pair into one batched upstream call through the
// bounded resource pool.
package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"livegate/internal/batcher"
	"livegate/internal/cache"
	"livegate/internal/config"
	"livegate/internal/pool"
	"livegate/internal/ratelimit"
)

var (
	// ErrUnknownIntent is returned when an intent has neither a batch
	// handler nor a fallback
	ErrUnknownIntent = errors.New("gateway: no handler registered for intent")

	// ErrRateLimited is returned when the caller role exceeded its
	// admission rate
	ErrRateLimited = errors.New("gateway: rate limit exceeded")
)

// Gateway accepts one query at a time from many concurrent callers and
// returns the matching result once the owning batch completes
type Gateway struct {
	coalescer *batcher.Coalescer
	pool      *pool.Pool
	cache     cache.Cache
	limiter   *ratelimit.RoleLimiter
	logger    zerolog.Logger

	statsInterval time.Duration
	done          chan struct{}
}

// New creates a Gateway. resultCache may be nil to disable caching.
func New(cfg *config.Config, p *pool.Pool, resultCache cache.Cache, logger zerolog.Logger) *Gateway {
	if resultCache == nil {
		resultCache = cache.NewNoopCache()
	}

	var limiter *ratelimit.RoleLimiter
	if cfg.IsRateLimitEnabled() {
		limiter = ratelimit.New(cfg.RateLimit.RPS, cfg.RateLimit.Burst)
	}

	return &Gateway{
		coalescer: batcher.New(
			cfg.Batch.SizeThreshold,
			cfg.GetFlushIntervalDuration(),
			cfg.GetWaitTimeoutDuration(),
			logger,
		),
		pool:          p,
		cache:         resultCache,
		limiter:       limiter,
		logger:        logger.With().Str("component", "gateway").Logger(),
		statsInterval: cfg.GetStatsLogIntervalDuration(),
		done:          make(chan struct{}),
	}
}

// RegisterHandler sets the batch handler for an intent. Re-registration
// overwrites the previous handler (last write wins) and is only safe
// before the gateway begins serving traffic.
func (g *Gateway) RegisterHandler(intent string, h batcher.Handler) {
	g.coalescer.Register(intent, h)
	g.logger.Info().Str("intent", intent).Msg("handler registered")
}

// RegisterFallback sets the single-item path used for intents without
// a batch handler. Only safe before serving traffic.
func (g *Gateway) RegisterFallback(f batcher.SingleFunc) {
	g.coalescer.SetFallback(f)
	g.logger.Info().Msg("fallback handler registered")
}

// Start launches the periodic stats logger
func (g *Gateway) Start() {
	if g.statsInterval > 0 {
		go g.logStats()
	}
}

// Query resolves one lookup for (intent, role). It joins the open
// batch for that key and blocks until the batch completes or a
// timeout elapses. Retry policy belongs to the caller.
func (g *Gateway) Query(ctx context.Context, intent, role string, payload json.RawMessage) (json.RawMessage, error) {
	requestID := uuid.NewString()
	logger := g.logger.With().
		Str("requestId", requestID).
		Str("intent", intent).
		Str("role", role).
		Logger()

	if !g.limiter.Allow(role) {
		logger.Debug().Msg("query rate limited")
		return nil, ErrRateLimited
	}

	if !g.coalescer.HasHandler(intent) && !g.coalescer.HasFallback() {
		logger.Warn().Msg("unknown intent")
		return nil, ErrUnknownIntent
	}

	cacheKey := intent + ":" + role + ":" + string(payload)
	if data, ok := g.cache.Get(ctx, cacheKey); ok {
		logger.Debug().Msg("cache hit")
		return data, nil
	}

	start := time.Now()
	result, err := g.coalescer.Submit(ctx, batcher.Key{Intent: intent, Role: role}, payload)
	if err != nil {
		logger.Debug().
			Err(err).
			Dur("elapsed", time.Since(start)).
			Msg("query failed")
		return nil, err
	}

	g.cache.Set(ctx, cacheKey, result)
	logger.Debug().
		Dur("elapsed", time.Since(start)).
		Msg("query resolved")
	return result, nil
}

// PoolStats returns a snapshot of the resource pool counters
func (g *Gateway) PoolStats() pool.Stats {
	return g.pool.Stats()
}

// CoalescerStats returns a snapshot of the coalescer counters
func (g *Gateway) CoalescerStats() batcher.Stats {
	return g.coalescer.Stats()
}

// logStats periodically logs pool and coalescer statistics
func (g *Gateway) logStats() {
	ticker := time.NewTicker(g.statsInterval)
	defer ticker.Stop()

	for {
		select {
		case <-g.done:
			return
		case <-ticker.C:
			ps := g.pool.Stats()
			cs := g.coalescer.Stats()
			g.logger.Info().
				Int("poolInUse", ps.InUse).
				Int("poolPeak", ps.PeakInUse).
				Int64("poolAcquires", ps.TotalAcquires).
				Int64("poolTimeouts", ps.Timeouts).
				Dur("avgWait", ps.AvgWait).
				Int64("submissions", cs.TotalSubmissions).
				Int64("batched", cs.TotalBatched).
				Int64("flushes", cs.TotalFlushes).
				Msg("gateway stats")
		}
	}
}

// Close flushes open batches and releases resources
func (g *Gateway) Close(ctx context.Context) {
	close(g.done)
	g.coalescer.Close(ctx)
	g.cache.Close()
	g.logger.Info().Msg("gateway closed")
}

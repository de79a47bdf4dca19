package batcher

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"livegate/internal/metrics"
)

// Stats is a snapshot of the coalescer counters
type Stats struct {
	TotalSubmissions int64
	TotalBatched     int64
	TotalFlushes     int64
}

// Coalescer groups concurrent submissions that share a key into one
// batch, flushed when the size threshold or the flush interval is
// reached, whichever comes first. Exactly one of the two flush paths
// dispatches a given batch: both transition the batch out of Open
// under the coalescer mutex, and the loser waits on its own result
// slot like every other member.
type Coalescer struct {
	sizeThreshold int
	flushInterval time.Duration
	waitTimeout   time.Duration
	logger        zerolog.Logger

	// handlers is read-only once traffic starts; looked up once per flush
	handlers map[string]Handler
	single   SingleFunc

	mu      sync.Mutex
	pending map[Key]*batch

	totalSubmissions int64
	totalBatched     int64
	totalFlushes     int64
}

// New creates a coalescer. sizeThreshold is the member count that
// triggers an immediate flush; flushInterval bounds how long an open
// batch waits; waitTimeout bounds how long a caller waits for its own
// result.
func New(sizeThreshold int, flushInterval, waitTimeout time.Duration, logger zerolog.Logger) *Coalescer {
	if sizeThreshold <= 0 {
		sizeThreshold = 1
	}
	return &Coalescer{
		sizeThreshold: sizeThreshold,
		flushInterval: flushInterval,
		waitTimeout:   waitTimeout,
		logger:        logger.With().Str("component", "batcher").Logger(),
		handlers:      make(map[string]Handler),
		pending:       make(map[Key]*batch),
	}
}

// Register sets the batch handler for an intent. Last write wins.
// Only safe before the coalescer starts serving traffic.
func (c *Coalescer) Register(intent string, h Handler) {
	c.handlers[intent] = h
}

// SetFallback sets the single-item fallback used for intents without
// a registered batch handler. Only safe before serving traffic.
func (c *Coalescer) SetFallback(f SingleFunc) {
	c.single = f
}

// HasHandler returns true if the intent has a registered batch handler
func (c *Coalescer) HasHandler(intent string) bool {
	_, ok := c.handlers[intent]
	return ok
}

// HasFallback returns true if a single-item fallback is set
func (c *Coalescer) HasFallback() bool {
	return c.single != nil
}

// Submit joins the open batch for key (creating one if needed) and
// blocks until the flush owner writes this caller's result slot, the
// wait timeout elapses, or ctx is cancelled. A caller that gives up
// after joining stays a member: its slot is still written by the
// flush, just never read.
func (c *Coalescer) Submit(ctx context.Context, key Key, payload json.RawMessage) (json.RawMessage, error) {
	m := &member{payload: payload, slot: make(chan Result, 1)}

	c.mu.Lock()
	c.totalSubmissions++
	b := c.pending[key]
	if b == nil {
		b = &batch{key: key}
		c.pending[key] = b
		// only the first member arms the timer
		b.timer = time.AfterFunc(c.flushInterval, func() {
			c.flushExpired(b)
		})
	}
	b.members = append(b.members, m)

	var owner bool
	if len(b.members) >= c.sizeThreshold {
		// this append filled the batch: the caller becomes flush owner
		b.state = stateFlushing
		delete(c.pending, key)
		owner = true
	}
	c.mu.Unlock()

	metrics.SubmissionsTotal.Inc()

	if owner {
		b.timer.Stop()
		// Dispatch detached from the owner's context: a member that
		// cancels or times out must not abort the batch for everyone
		// else. The owner waits on its own slot like any other member.
		go c.dispatch(context.Background(), b)
	}

	timer := time.NewTimer(c.waitTimeout)
	defer timer.Stop()

	select {
	case res := <-m.slot:
		return res.Payload, res.Err
	case <-timer.C:
		return nil, ErrWaitTimeout
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// flushExpired is the timer-triggered flush path. If the size path won
// the race the batch has already left Open and there is nothing to do.
func (c *Coalescer) flushExpired(b *batch) {
	c.mu.Lock()
	if b.state != stateOpen {
		c.mu.Unlock()
		return
	}
	b.state = stateFlushing
	if c.pending[b.key] == b {
		delete(c.pending, b.key)
	}
	c.mu.Unlock()

	c.dispatch(context.Background(), b)
}

// dispatch performs one upstream call for the batch and writes every
// member's result slot exactly once. Called with b already in Flushing
// and removed from the pending table.
func (c *Coalescer) dispatch(ctx context.Context, b *batch) {
	payloads := make([]json.RawMessage, len(b.members))
	for i, m := range b.members {
		payloads[i] = m.payload
	}

	c.mu.Lock()
	c.totalFlushes++
	if len(b.members) > 1 {
		c.totalBatched += int64(len(b.members))
	}
	c.mu.Unlock()

	metrics.BatchSize.WithLabelValues(b.key.Intent).Observe(float64(len(b.members)))
	if len(b.members) > 1 {
		metrics.BatchedTotal.Add(float64(len(b.members)))
	}

	c.logger.Debug().
		Str("intent", b.key.Intent).
		Str("role", b.key.Role).
		Int("members", len(b.members)).
		Msg("flushing batch")

	h := c.handlers[b.key.Intent]
	if h == nil {
		c.dispatchSingle(ctx, b)
		c.finish(b)
		return
	}

	results, err := h(ctx, b.key, payloads)
	switch {
	case err != nil:
		fail := fmt.Errorf("%w: %w", ErrHandlerFailed, err)
		c.logger.Error().
			Err(err).
			Str("intent", b.key.Intent).
			Int("members", len(b.members)).
			Msg("batch handler failed")
		for _, m := range b.members {
			m.slot <- Result{Err: fail}
		}
	case len(results) != len(b.members):
		fail := fmt.Errorf("%w: result count mismatch: expected %d, got %d",
			ErrHandlerFailed, len(b.members), len(results))
		c.logger.Error().
			Str("intent", b.key.Intent).
			Int("expected", len(b.members)).
			Int("got", len(results)).
			Msg("batch result count mismatch")
		for _, m := range b.members {
			m.slot <- Result{Err: fail}
		}
	default:
		for i, m := range b.members {
			m.slot <- results[i]
		}
	}

	c.finish(b)
}

// dispatchSingle processes each member individually through the
// fallback path, concurrently. Per-member failures stay per-member.
func (c *Coalescer) dispatchSingle(ctx context.Context, b *batch) {
	if c.single == nil {
		for _, m := range b.members {
			m.slot <- Result{Err: ErrNoHandler}
		}
		return
	}

	var g errgroup.Group
	for _, m := range b.members {
		g.Go(func() error {
			payload, err := c.single(ctx, b.key, m.payload)
			m.slot <- Result{Payload: payload, Err: err}
			return nil
		})
	}
	_ = g.Wait()
}

func (c *Coalescer) finish(b *batch) {
	c.mu.Lock()
	b.state = stateDone
	c.mu.Unlock()
}

// Stats returns a snapshot of the coalescer counters
func (c *Coalescer) Stats() Stats {
	c.mu.Lock()
	defer c.mu.Unlock()
	return Stats{
		TotalSubmissions: c.totalSubmissions,
		TotalBatched:     c.totalBatched,
		TotalFlushes:     c.totalFlushes,
	}
}

// Close flushes all open batches (for graceful shutdown)
func (c *Coalescer) Close(ctx context.Context) {
	c.mu.Lock()
	open := make([]*batch, 0, len(c.pending))
	for key, b := range c.pending {
		b.state = stateFlushing
		b.timer.Stop()
		delete(c.pending, key)
		open = append(open, b)
	}
	c.mu.Unlock()

	for _, b := range open {
		c.dispatch(ctx, b)
	}
	c.logger.Info().Msg("coalescer closed")
}

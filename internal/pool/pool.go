package pool

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"livegate/internal/metrics"
)

// ErrAcquireTimeout is returned when no slot frees up within the acquire timeout
var ErrAcquireTimeout = errors.New("pool: acquire timed out")

// Ticket represents permission to use one unit of backend capacity.
// It is owned exclusively by the caller that acquired it until released.
type Ticket struct {
	pool *Pool
	once sync.Once
}

// Release returns the slot to the pool. Safe to call more than once;
// only the first call has effect.
func (t *Ticket) Release() {
	t.once.Do(t.pool.release)
}

// Stats is a snapshot of the pool counters
type Stats struct {
	Capacity      int
	InUse         int
	PeakInUse     int
	TotalAcquires int64
	Timeouts      int64
	AvgWait       time.Duration
}

type waiter struct {
	ready   chan struct{}
	granted bool
}

// Pool admits a bounded number of concurrent slots to the scarce backend.
// Waiters are woken in FIFO order. All counter mutation happens under mu.
type Pool struct {
	capacity       int
	acquireTimeout time.Duration
	logger         zerolog.Logger

	mu      sync.Mutex
	inUse   int
	waiters []*waiter

	totalAcquires int64
	timeouts      int64
	peakInUse     int
	waitTotal     time.Duration
	waitSamples   int64
}

// New creates a pool with the given capacity and acquire timeout
func New(capacity int, acquireTimeout time.Duration, logger zerolog.Logger) *Pool {
	if capacity <= 0 {
		capacity = 1
	}
	return &Pool{
		capacity:       capacity,
		acquireTimeout: acquireTimeout,
		logger:         logger.With().Str("component", "pool").Logger(),
	}
}

// Acquire blocks until a slot is free, the acquire timeout elapses, or ctx
// is cancelled. On success the caller owns the returned Ticket and must
// release it on every exit path.
func (p *Pool) Acquire(ctx context.Context) (*Ticket, error) {
	start := time.Now()

	p.mu.Lock()
	p.totalAcquires++
	metrics.PoolAcquiresTotal.Inc()
	if p.inUse < p.capacity && len(p.waiters) == 0 {
		p.inUse++
		if p.inUse > p.peakInUse {
			p.peakInUse = p.inUse
		}
		p.waitSamples++
		inUse := p.inUse
		peak := p.peakInUse
		p.mu.Unlock()

		metrics.PoolInUse.Set(float64(inUse))
		metrics.PoolPeakInUse.Set(float64(peak))
		metrics.PoolWaitMs.Observe(0)
		return &Ticket{pool: p}, nil
	}

	w := &waiter{ready: make(chan struct{})}
	p.waiters = append(p.waiters, w)
	p.mu.Unlock()

	timer := time.NewTimer(p.acquireTimeout)
	defer timer.Stop()

	select {
	case <-w.ready:
		wait := time.Since(start)
		p.mu.Lock()
		p.waitTotal += wait
		p.waitSamples++
		p.mu.Unlock()

		metrics.PoolWaitMs.Observe(float64(wait.Milliseconds()))
		return &Ticket{pool: p}, nil
	case <-timer.C:
		p.abandon(w)
		p.mu.Lock()
		p.timeouts++
		p.mu.Unlock()
		metrics.PoolTimeoutsTotal.Inc()

		p.logger.Debug().
			Dur("waited", time.Since(start)).
			Msg("acquire timed out")
		return nil, ErrAcquireTimeout
	case <-ctx.Done():
		p.abandon(w)
		return nil, ctx.Err()
	}
}

// abandon removes w from the wait list. If the slot was already handed
// to w before the lock was taken, it is returned to the pool so the
// accounting stays exact.
func (p *Pool) abandon(w *waiter) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if w.granted {
		p.releaseLocked()
		return
	}
	for i, q := range p.waiters {
		if q == w {
			p.waiters = append(p.waiters[:i], p.waiters[i+1:]...)
			return
		}
	}
}

func (p *Pool) release() {
	p.mu.Lock()
	p.releaseLocked()
	inUse := p.inUse
	p.mu.Unlock()

	metrics.PoolInUse.Set(float64(inUse))
}

// releaseLocked frees one slot or transfers it to the first waiter.
// A transferred slot keeps inUse charged; the waiter now owns it.
func (p *Pool) releaseLocked() {
	if len(p.waiters) > 0 {
		w := p.waiters[0]
		p.waiters = p.waiters[1:]
		w.granted = true
		close(w.ready)
		return
	}
	if p.inUse > 0 {
		p.inUse--
	}
}

// InUse returns the current number of slots in use
func (p *Pool) InUse() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.inUse
}

// Capacity returns the fixed pool capacity
func (p *Pool) Capacity() int {
	return p.capacity
}

// Stats returns a snapshot of the pool counters
func (p *Pool) Stats() Stats {
	p.mu.Lock()
	defer p.mu.Unlock()

	s := Stats{
		Capacity:      p.capacity,
		InUse:         p.inUse,
		PeakInUse:     p.peakInUse,
		TotalAcquires: p.totalAcquires,
		Timeouts:      p.timeouts,
	}
	if p.waitSamples > 0 {
		s.AvgWait = p.waitTotal / time.Duration(p.waitSamples)
	}
	return s
}

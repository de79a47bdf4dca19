package pool

import (
	"context"
	"errors"
	"math/rand"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
)

func TestPool_CapacityInvariant(t *testing.T) {
	const capacity = 3
	const callers = 50

	p := New(capacity, time.Second, zerolog.Nop())

	var concurrent int32
	var maxSeen int32
	var wg sync.WaitGroup

	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()

			ticket, err := p.Acquire(context.Background())
			if err != nil {
				t.Errorf("Acquire: %v", err)
				return
			}

			n := atomic.AddInt32(&concurrent, 1)
			for {
				max := atomic.LoadInt32(&maxSeen)
				if n <= max || atomic.CompareAndSwapInt32(&maxSeen, max, n) {
					break
				}
			}
			time.Sleep(time.Duration(rand.Intn(3)) * time.Millisecond)
			atomic.AddInt32(&concurrent, -1)

			ticket.Release()
		}()
	}
	wg.Wait()

	if max := atomic.LoadInt32(&maxSeen); max > capacity {
		t.Errorf("observed %d concurrent holders, capacity is %d", max, capacity)
	}
	if inUse := p.InUse(); inUse != 0 {
		t.Errorf("InUse = %d after all releases, want 0", inUse)
	}

	stats := p.Stats()
	if stats.PeakInUse > capacity {
		t.Errorf("PeakInUse = %d, want <= %d", stats.PeakInUse, capacity)
	}
	if stats.TotalAcquires != callers {
		t.Errorf("TotalAcquires = %d, want %d", stats.TotalAcquires, callers)
	}
}

func TestPool_AcquireTimeout(t *testing.T) {
	p := New(1, 10*time.Millisecond, zerolog.Nop())

	ticket, err := p.Acquire(context.Background())
	if err != nil {
		t.Fatalf("Acquire: %v", err)
	}

	_, err = p.Acquire(context.Background())
	if !errors.Is(err, ErrAcquireTimeout) {
		t.Fatalf("second Acquire = %v, want ErrAcquireTimeout", err)
	}

	// the timed-out caller must not be charged a slot
	if inUse := p.InUse(); inUse != 1 {
		t.Errorf("InUse = %d after timeout, want 1", inUse)
	}

	ticket.Release()
	if inUse := p.InUse(); inUse != 0 {
		t.Errorf("InUse = %d after release, want 0", inUse)
	}

	ticket2, err := p.Acquire(context.Background())
	if err != nil {
		t.Fatalf("Acquire after release: %v", err)
	}
	ticket2.Release()
}

func TestPool_FIFOWakeup(t *testing.T) {
	p := New(1, time.Second, zerolog.Nop())

	holder, err := p.Acquire(context.Background())
	if err != nil {
		t.Fatalf("Acquire: %v", err)
	}

	var mu sync.Mutex
	var order []string
	var wg sync.WaitGroup

	wait := func(name string) {
		defer wg.Done()
		ticket, err := p.Acquire(context.Background())
		if err != nil {
			t.Errorf("Acquire %s: %v", name, err)
			return
		}
		mu.Lock()
		order = append(order, name)
		mu.Unlock()
		ticket.Release()
	}

	wg.Add(1)
	go wait("first")
	time.Sleep(20 * time.Millisecond)
	wg.Add(1)
	go wait("second")
	time.Sleep(20 * time.Millisecond)

	holder.Release()
	wg.Wait()

	if len(order) != 2 || order[0] != "first" || order[1] != "second" {
		t.Errorf("wakeup order = %v, want [first second]", order)
	}
}

func TestPool_CancelWhileWaiting(t *testing.T) {
	p := New(1, time.Second, zerolog.Nop())

	holder, err := p.Acquire(context.Background())
	if err != nil {
		t.Fatalf("Acquire: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		_, err := p.Acquire(ctx)
		done <- err
	}()

	time.Sleep(10 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		if !errors.Is(err, context.Canceled) {
			t.Fatalf("Acquire = %v, want context.Canceled", err)
		}
	case <-time.After(time.Second):
		t.Fatal("cancelled Acquire did not return")
	}

	holder.Release()
	if inUse := p.InUse(); inUse != 0 {
		t.Errorf("InUse = %d, want 0", inUse)
	}

	// the cancelled waiter must have left the wait list
	ticket, err := p.Acquire(context.Background())
	if err != nil {
		t.Fatalf("Acquire after cancel: %v", err)
	}
	ticket.Release()
}

func TestPool_AvgWaitRecorded(t *testing.T) {
	p := New(1, time.Second, zerolog.Nop())

	holder, err := p.Acquire(context.Background())
	if err != nil {
		t.Fatalf("Acquire: %v", err)
	}

	done := make(chan struct{})
	go func() {
		ticket, err := p.Acquire(context.Background())
		if err == nil {
			ticket.Release()
		}
		close(done)
	}()

	time.Sleep(30 * time.Millisecond)
	holder.Release()
	<-done

	stats := p.Stats()
	if stats.AvgWait <= 0 {
		t.Errorf("AvgWait = %v after contended acquire, want > 0", stats.AvgWait)
	}
}

func TestTicket_ReleaseIdempotent(t *testing.T) {
	p := New(2, time.Second, zerolog.Nop())

	ticket, err := p.Acquire(context.Background())
	if err != nil {
		t.Fatalf("Acquire: %v", err)
	}

	ticket.Release()
	ticket.Release()

	if inUse := p.InUse(); inUse != 0 {
		t.Errorf("InUse = %d after double release, want 0", inUse)
	}
}

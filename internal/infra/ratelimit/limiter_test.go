//go:build !integration

package ratelimit

import (
	"context"
	"math/rand"
	"sort"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

// newFastLimiter builds a limiter with a short interval so property tests run
// in milliseconds: rpm here is "grants per minute" scaled down via interval.
func newFastLimiter(interval time.Duration, concurrency int) *IntervalLimiter {
	l := NewIntervalLimiter(25, concurrency)
	l.interval = interval
	return l
}

func TestIntervalLimiter_SpacingBetweenGrants(t *testing.T) {
	t.Parallel()

	const (
		interval = 10 * time.Millisecond
		callers  = 20
	)
	l := newFastLimiter(interval, 4)

	var mu sync.Mutex
	var grants []time.Time

	var wg sync.WaitGroup
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			// randomized arrival
			time.Sleep(time.Duration(rand.Intn(5)) * time.Millisecond)
			if err := l.Acquire(context.Background()); err != nil {
				t.Errorf("acquire: %v", err)
				return
			}
			mu.Lock()
			grants = append(grants, time.Now())
			mu.Unlock()
			l.Release()
		}()
	}
	wg.Wait()

	if len(grants) != callers {
		t.Fatalf("expected %d grants, got %d", callers, len(grants))
	}
	sort.Slice(grants, func(i, j int) bool { return grants[i].Before(grants[j]) })

	// With per-caller reservations, grant i+n must trail grant i by at least
	// n*interval. Allow a small scheduling tolerance.
	const tolerance = 3 * time.Millisecond
	for n := 1; n < len(grants); n++ {
		span := grants[n].Sub(grants[0])
		min := time.Duration(n)*interval - tolerance
		if span < min {
			t.Fatalf("grant %d came %v after first, want at least %v", n, span, min)
		}
	}
}

func TestIntervalLimiter_ConcurrencyCeiling(t *testing.T) {
	t.Parallel()

	const (
		ceiling = 3
		callers = 24
	)
	l := newFastLimiter(time.Millisecond, ceiling)

	var inFlight, peak int64
	var wg sync.WaitGroup
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := l.Acquire(context.Background()); err != nil {
				t.Errorf("acquire: %v", err)
				return
			}
			n := atomic.AddInt64(&inFlight, 1)
			for {
				p := atomic.LoadInt64(&peak)
				if n <= p || atomic.CompareAndSwapInt64(&peak, p, n) {
					break
				}
			}
			time.Sleep(2 * time.Millisecond) // hold the slot
			atomic.AddInt64(&inFlight, -1)
			l.Release()
		}()
	}
	wg.Wait()

	if got := atomic.LoadInt64(&peak); got > ceiling {
		t.Fatalf("observed %d concurrent holders, ceiling is %d", got, ceiling)
	}
}

func TestIntervalLimiter_AcquireHonorsDeadline(t *testing.T) {
	t.Parallel()

	l := newFastLimiter(time.Millisecond, 1)

	// Occupy the single slot.
	if err := l.Acquire(context.Background()); err != nil {
		t.Fatalf("first acquire: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	if err := l.Acquire(ctx); err == nil {
		t.Fatal("expected deadline error while slot is held")
	}

	l.Release()

	// Slot free again: a fresh acquire must succeed.
	if err := l.Acquire(context.Background()); err != nil {
		t.Fatalf("acquire after release: %v", err)
	}
	l.Release()
}

func TestIntervalLimiter_CancelDuringSpacingWaitFreesSlot(t *testing.T) {
	t.Parallel()

	l := newFastLimiter(200*time.Millisecond, 2)

	if err := l.Acquire(context.Background()); err != nil {
		t.Fatalf("first acquire: %v", err)
	}

	// Second caller lands in the spacing wait and gives up.
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	if err := l.Acquire(ctx); err == nil {
		t.Fatal("expected cancellation during spacing wait")
	}

	// Its concurrency slot must have been returned: with ceiling 2 and one
	// holder, another acquire may still proceed.
	ctx2, cancel2 := context.WithTimeout(context.Background(), time.Second)
	defer cancel2()
	if err := l.Acquire(ctx2); err != nil {
		t.Fatalf("slot leaked after cancelled wait: %v", err)
	}
	l.Release()
	l.Release()
}

func TestIntervalLimiter_Defaults(t *testing.T) {
	t.Parallel()

	l := NewIntervalLimiter(0, 0)
	if l.interval != time.Minute/25 {
		t.Fatalf("default interval = %v, want %v", l.interval, time.Minute/25)
	}
	if cap(l.slots) != 10 {
		t.Fatalf("default concurrency = %d, want 10", cap(l.slots))
	}
}

// File: internal/infra/ratelimit/limiter.go
package ratelimit

import (
	"context"
	"sync"
	"time"

	"slideshow-batch/internal/infra/metrics"
)

// Limiter gates calls to the external generation service. Acquire blocks the
// caller until a concurrency slot is free AND the minimum spacing since the
// previous grant has elapsed; Release returns the slot. The limiter never
// fails on its own; only the caller's context can abort a wait.
type Limiter interface {
	Acquire(ctx context.Context) error
	Release()
}

// IntervalLimiter is the in-process implementation: a buffered channel as the
// concurrency semaphore plus a mutex-guarded last-grant timestamp. Every
// acquirer reserves its own point on the grant schedule under the lock, so
// spacing holds no matter in which order sleepers wake up, and nobody can be
// starved by late arrivals.
type IntervalLimiter struct {
	mu        sync.Mutex
	interval  time.Duration
	lastGrant time.Time
	slots     chan struct{}
}

func NewIntervalLimiter(rpm, concurrency int) *IntervalLimiter {
	if rpm <= 0 {
		rpm = 25
	}
	if concurrency <= 0 {
		concurrency = 10
	}
	return &IntervalLimiter{
		interval: time.Minute / time.Duration(rpm),
		slots:    make(chan struct{}, concurrency),
	}
}

func (l *IntervalLimiter) Acquire(ctx context.Context) error {
	start := time.Now()

	select {
	case l.slots <- struct{}{}:
	case <-ctx.Done():
		return ctx.Err()
	}

	// Reserve the next grant time. The reservation is made before sleeping:
	// the last-grant timestamp moves at grant time, not at completion time,
	// which bounds request-initiation rate regardless of call duration.
	l.mu.Lock()
	now := time.Now()
	grant := l.lastGrant.Add(l.interval)
	if grant.Before(now) {
		grant = now
	}
	l.lastGrant = grant
	l.mu.Unlock()

	if wait := time.Until(grant); wait > 0 {
		timer := time.NewTimer(wait)
		defer timer.Stop()
		select {
		case <-timer.C:
		case <-ctx.Done():
			<-l.slots
			return ctx.Err()
		}
	}
	metrics.ObserveLimiterWait(time.Since(start).Seconds())
	return nil
}

func (l *IntervalLimiter) Release() {
	<-l.slots
}

// File: internal/infra/ratelimit/redis_limiter.go
package ratelimit

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"time"

	"slideshow-batch/internal/infra/metrics"
	red "slideshow-batch/internal/infra/redis"

	"github.com/rs/zerolog"
)

const (
	rateLimitKey = "generation:rate_limit:requests"

	// The window carries a safety margin over a plain minute so a briefly
	// skewed clock between workers cannot overrun the provider quota.
	defaultWindow = 65 * time.Second

	maxSleep = 5 * time.Second
)

// RedisLimiter coordinates the requests-per-minute ceiling across processes
// through a sorted set of recent request timestamps, while the concurrency
// ceiling stays process-local (each worker process gets its own slot pool).
type RedisLimiter struct {
	client red.RedisClient
	rpm    int
	window time.Duration
	slots  chan struct{}
	log    *zerolog.Logger
}

func NewRedisLimiter(client red.RedisClient, rpm, concurrency int, logger *zerolog.Logger) *RedisLimiter {
	if rpm <= 0 {
		rpm = 25
	}
	if concurrency <= 0 {
		concurrency = 10
	}
	l := logger.With().Str("component", "RedisLimiter").Logger()
	return &RedisLimiter{
		client: client,
		rpm:    rpm,
		window: defaultWindow,
		slots:  make(chan struct{}, concurrency),
		log:    &l,
	}
}

func (l *RedisLimiter) Acquire(ctx context.Context) error {
	start := time.Now()

	select {
	case l.slots <- struct{}{}:
	case <-ctx.Done():
		return ctx.Err()
	}

	for {
		now := time.Now()
		windowStart := now.Add(-l.window)

		if err := l.client.ZRemRangeByScore(ctx, rateLimitKey, "-inf",
			strconv.FormatFloat(unixSeconds(windowStart), 'f', 6, 64)); err != nil {
			<-l.slots
			return err
		}
		count, err := l.client.ZCard(ctx, rateLimitKey)
		if err != nil {
			<-l.slots
			return err
		}

		if count < int64(l.rpm) {
			member := fmt.Sprintf("%f:%d", unixSeconds(now), os.Getpid())
			if err := l.client.ZAdd(ctx, rateLimitKey, unixSeconds(now), member); err != nil {
				<-l.slots
				return err
			}
			_ = l.client.Expire(ctx, rateLimitKey, l.window*2)
			l.log.Debug().Int64("in_window", count+1).Int("rpm", l.rpm).Msg("rate limiter: acquired")
			metrics.ObserveLimiterWait(time.Since(start).Seconds())
			return nil
		}

		// Over limit: wait until the oldest request ages out of the window.
		wait := l.window / time.Duration(l.rpm)
		if oldest, err := l.client.ZRangeWithScores(ctx, rateLimitKey, 0, 0); err == nil && len(oldest) > 0 {
			oldestAt := time.Unix(0, int64(oldest[0].Score*float64(time.Second)))
			wait = oldestAt.Add(l.window).Sub(now) + 100*time.Millisecond
		}
		if wait > maxSleep {
			wait = maxSleep
		}
		l.log.Debug().Dur("wait", wait).Int64("in_window", count).Msg("rate limiter: waiting")

		timer := time.NewTimer(wait)
		select {
		case <-timer.C:
		case <-ctx.Done():
			timer.Stop()
			<-l.slots
			return ctx.Err()
		}
		timer.Stop()
	}
}

func (l *RedisLimiter) Release() {
	<-l.slots
}

func unixSeconds(t time.Time) float64 {
	return float64(t.UnixNano()) / float64(time.Second)
}

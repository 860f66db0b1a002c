// Package middleware contains shared Gin middleware used by the HTTP layer.
//
// This file implements the per-client token-bucket limiter. Buckets live in
// process memory and are swept once they sit idle for the idle TTL.
// Idempotent replays of POST /answers skip the limiter. A denied request
// records ErrRateLimited with a Retry-After header computed from the
// bucket's refill rate. Every decision can be mirrored to a StatsRecorder.
package middleware

import (
	"context"
	"math"
	"strconv"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"
	"golang.org/x/time/rate"
)

const (
	// statsTimeout bounds a single asynchronous stats write.
	statsTimeout       = 500 * time.Millisecond
	defaultBucketIdle  = 10 * time.Minute
	fallbackRetryAfter = time.Second
)

// KeyFunc names the bucket a request draws from.
type KeyFunc func(*gin.Context) string

// KeyByIP buckets requests by client IP, e.g. "ip:203.0.113.7".
func KeyByIP() KeyFunc {
	return func(c *gin.Context) string { return "ip:" + c.ClientIP() }
}

type bucket struct {
	lim  *rate.Limiter
	seen time.Time
}

// RateLimiter is a per-key token-bucket limiter. It is safe for concurrent use.
type RateLimiter struct {
	limit rate.Limit
	burst int
	key   KeyFunc
	idle  time.Duration
	now   func() time.Time
	stats StatsRecorder

	mu        sync.Mutex
	buckets   map[string]*bucket
	lastSweep time.Time
}

// NewRateLimiter allows rps requests per second per key with bursts of up to
// burst. burst <= 0 means 1 and a nil key means KeyByIP.
func NewRateLimiter(rps float64, burst int, key KeyFunc) *RateLimiter {
	if burst <= 0 {
		burst = 1
	}
	if key == nil {
		key = KeyByIP()
	}
	return &RateLimiter{
		limit:   rate.Limit(rps),
		burst:   burst,
		key:     key,
		idle:    defaultBucketIdle,
		now:     time.Now,
		buckets: make(map[string]*bucket),
	}
}

// WithStats mirrors every allow/deny decision to rec, asynchronously.
func (rl *RateLimiter) WithStats(rec StatsRecorder) *RateLimiter {
	rl.stats = rec
	return rl
}

// WithIdleTTL sets how long an unused bucket is kept. d <= 0 is ignored.
func (rl *RateLimiter) WithIdleTTL(d time.Duration) *RateLimiter {
	if d > 0 {
		rl.idle = d
	}
	return rl
}

// limiter returns the bucket for key, sweeping idle buckets at most once per
// idle TTL. The sweep runs before the lookup so a stale bucket for key
// itself is replaced by a full one.
func (rl *RateLimiter) limiter(key string, now time.Time) *rate.Limiter {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	if now.Sub(rl.lastSweep) >= rl.idle {
		for k, b := range rl.buckets {
			if now.Sub(b.seen) >= rl.idle {
				delete(rl.buckets, k)
			}
		}
		rl.lastSweep = now
	}

	b, ok := rl.buckets[key]
	if !ok {
		b = &bucket{lim: rate.NewLimiter(rl.limit, rl.burst)}
		rl.buckets[key] = b
	}
	b.seen = now
	return b.lim
}

// take spends a token from key's bucket. When none is available it reports
// how long until one will be.
func (rl *RateLimiter) take(key string, now time.Time) (bool, time.Duration) {
	r := rl.limiter(key, now).ReserveN(now, 1)
	if !r.OK() {
		return false, fallbackRetryAfter
	}
	wait := r.DelayFrom(now)
	if wait == 0 {
		return true, 0
	}
	r.CancelAt(now)
	if wait == rate.InfDuration {
		wait = fallbackRetryAfter
	}
	return false, wait
}

// retryAfter renders wait as whole seconds, rounded up, at least 1.
func retryAfter(wait time.Duration) string {
	s := int(math.Ceil(wait.Seconds()))
	if s < 1 {
		s = 1
	}
	return strconv.Itoa(s)
}

// Handler enforces the limits. Replays (IsRateBypass) pass without a token.
func (rl *RateLimiter) Handler() gin.HandlerFunc {
	return func(c *gin.Context) {
		if IsRateBypass(c) {
			c.Next()
			return
		}

		now := rl.now()
		key := rl.key(c)
		ok, wait := rl.take(key, now)
		rl.record(RateEvent{
			Key:     key,
			Method:  c.Request.Method,
			Path:    c.FullPath(),
			Allowed: ok,
			At:      now,
		})
		if ok {
			c.Next()
			return
		}

		c.Header("Retry-After", retryAfter(wait))
		_ = c.Error(ErrRateLimited)
		c.Abort()
	}
}

func (rl *RateLimiter) record(ev RateEvent) {
	if rl.stats == nil {
		return
	}
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), statsTimeout)
		defer cancel()
		if err := rl.stats.Record(ctx, ev); err != nil {
			log.Debug().Err(err).Str("key", ev.Key).Msg("rate stats record failed")
		}
	}()
}

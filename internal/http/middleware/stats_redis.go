// Package middleware contains shared Gin middleware used by the HTTP layer.
//
// This file provides RedisStats, an optional StatsRecorder that keeps
// allowed/denied counters for the rate limiter in Redis so they survive
// restarts and can be shared by several instances.
//
// Keys written (prefix defaults to "qa:ratelimit"):
//
//	<prefix>:total              hash {allowed, denied}, never expires
//	<prefix>:minute:YYYYMMDDhhmm hash {allowed, denied}, expires after TTL
//	<prefix>:route              hash {"<METHOD> <path>:<outcome>": n}
package middleware

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

// RateEvent describes a single limiter decision.
type RateEvent struct {
	Key     string
	Method  string
	Path    string
	Allowed bool
	At      time.Time
}

// StatsRecorder receives limiter decisions. Implementations must be safe for
// concurrent use; errors are logged and otherwise ignored.
type StatsRecorder interface {
	Record(ctx context.Context, ev RateEvent) error
}

// RedisStats records RateEvents into Redis hashes.
type RedisStats struct {
	rdb    *redis.Client
	prefix string
	ttl    time.Duration
}

// RedisStatsOption configures RedisStats.
type RedisStatsOption func(*RedisStats)

// WithStatsPrefix sets the key prefix. Surrounding colons are trimmed.
func WithStatsPrefix(prefix string) RedisStatsOption {
	return func(s *RedisStats) {
		if p := strings.Trim(prefix, ":"); p != "" {
			s.prefix = p
		}
	}
}

// WithStatsTTL sets the lifetime of per-minute buckets. Zero disables expiry.
func WithStatsTTL(d time.Duration) RedisStatsOption {
	return func(s *RedisStats) { s.ttl = d }
}

// NewRedisStats returns a recorder writing through rdb. A nil client yields a
// recorder that does nothing.
func NewRedisStats(rdb *redis.Client, opts ...RedisStatsOption) *RedisStats {
	s := &RedisStats{
		rdb:    rdb,
		prefix: "qa:ratelimit",
		ttl:    24 * time.Hour,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Record increments the total, per-minute, and per-route counters for ev in a
// single pipeline.
func (s *RedisStats) Record(ctx context.Context, ev RateEvent) error {
	if s == nil || s.rdb == nil {
		return nil
	}
	at := ev.At
	if at.IsZero() {
		at = time.Now()
	}
	field := "denied"
	if ev.Allowed {
		field = "allowed"
	}

	pipe := s.rdb.Pipeline()
	pipe.HIncrBy(ctx, s.prefix+":total", field, 1)

	bucketKey := fmt.Sprintf("%s:minute:%s", s.prefix, at.UTC().Format("200601021504"))
	pipe.HIncrBy(ctx, bucketKey, field, 1)
	if s.ttl > 0 {
		pipe.Expire(ctx, bucketKey, s.ttl)
	}

	if route := strings.TrimSpace(ev.Method + " " + ev.Path); route != "" {
		pipe.HIncrBy(ctx, s.prefix+":route", route+":"+field, 1)
	}

	_, err := pipe.Exec(ctx)
	return err
}

// Package middleware contains shared Gin middleware used by the HTTP layer.
//
// This file validates the Idempotency-Key header on answer creation. A valid
// key is stored with the request; when the lookup reports a live reservation
// for it the request is marked as a replay, which lets the rate limiter skip
// it and the handler answer with the original id. Storage stays behind
// IdempotencyLookup.
package middleware

import (
	"context"
	"regexp"
	"time"

	"github.com/gin-gonic/gin"
)

// HeaderIdempotencyKey is the request header that carries an idempotency key.
// The value must stay the same across retries of one logical operation.
const HeaderIdempotencyKey = "Idempotency-Key"

// HeaderIdempotencyReplayed is set to "true" on responses that return the
// result of an earlier request instead of performing the operation again.
const HeaderIdempotencyReplayed = "Idempotency-Replayed"

const (
	defaultIdempotencyMaxLen = 200
	ctxKeyIdempotency        = "idempotency"
)

var defaultKeyPattern = regexp.MustCompile(`^[A-Za-z0-9._~:-]+$`)

// idempotencyState is what the validator learned about a request.
type idempotencyState struct {
	key    string
	replay bool
}

func stateOf(c *gin.Context) idempotencyState {
	if v, ok := c.Get(ctxKeyIdempotency); ok {
		if st, ok := v.(idempotencyState); ok {
			return st
		}
	}
	return idempotencyState{}
}

// GetIdempotencyKey returns the validated key, if the request carried one.
func GetIdempotencyKey(c *gin.Context) (string, bool) {
	st := stateOf(c)
	return st.key, st.key != ""
}

// IsReplay reports whether a live reservation exists for the request's key.
func IsReplay(c *gin.Context) bool { return stateOf(c).replay }

// IsRateBypass reports whether the rate limiter should let the request
// through without spending a token. Only replays qualify.
func IsRateBypass(c *gin.Context) bool { return stateOf(c).replay }

// IdempotencyOptions configures IdempotencyValidator.
type IdempotencyOptions struct {
	// MaxLen caps the key length. Values <= 0 mean 200.
	MaxLen int
	// Pattern restricts the key alphabet. Nil means ^[A-Za-z0-9._~:-]+$.
	Pattern *regexp.Regexp
	// Now is the clock passed to the lookup. Nil means time.Now in UTC.
	Now func() time.Time
}

// IdempotencyLookup reports whether a live reservation exists for key at now.
// Lookup errors are logged and the request proceeds as a first attempt.
type IdempotencyLookup func(ctx context.Context, key string, now time.Time) (exists bool, err error)

// IdempotencyValidator checks the Idempotency-Key header.
//
//   - absent: the request passes untouched
//   - too long or outside the alphabet: ErrInvalidIdempotencyKey is recorded
//     and the chain aborts
//   - valid: the key is stored for GetIdempotencyKey and, when lookup finds
//     a live reservation, the request is marked for IsReplay and IsRateBypass
func IdempotencyValidator(opts IdempotencyOptions, lookup IdempotencyLookup) gin.HandlerFunc {
	maxLen := opts.MaxLen
	if maxLen <= 0 {
		maxLen = defaultIdempotencyMaxLen
	}
	pat := opts.Pattern
	if pat == nil {
		pat = defaultKeyPattern
	}
	now := opts.Now
	if now == nil {
		now = func() time.Time { return time.Now().UTC() }
	}

	return func(c *gin.Context) {
		key := c.GetHeader(HeaderIdempotencyKey)
		if key == "" {
			c.Next()
			return
		}
		if len(key) > maxLen || !pat.MatchString(key) {
			_ = c.Error(ErrInvalidIdempotencyKey)
			c.Abort()
			return
		}

		st := idempotencyState{key: key}
		if lookup != nil {
			exists, err := lookup(c.Request.Context(), key, now())
			if err != nil {
				LoggerFrom(c).Warn().Err(err).Msg("idempotency lookup failed")
			}
			st.replay = err == nil && exists
		}
		c.Set(ctxKeyIdempotency, st)
		c.Next()
	}
}

// Package middleware contains shared Gin middleware used by the HTTP layer.
//
// This file declares the errors middleware raises. Middleware never writes an
// error body itself: it records one of these with c.Error, aborts, and leaves
// the response to the error translator in package handlers.
package middleware

import (
	"errors"
	"fmt"
)

var (
	// ErrRateLimited is raised by RateLimiter when a bucket is exhausted.
	ErrRateLimited = errors.New("rate limit exceeded")

	// ErrInvalidIdempotencyKey is raised by IdempotencyValidator when the
	// Idempotency-Key header fails validation.
	ErrInvalidIdempotencyKey = errors.New("invalid Idempotency-Key")
)

// CORSForbiddenError is raised by OriginGuard when a cross-origin request
// comes from an origin outside the allowlist.
type CORSForbiddenError struct {
	Origin string
}

func (e *CORSForbiddenError) Error() string {
	return fmt.Sprintf("origin %q is not allowed", e.Origin)
}

// PanicError wraps a value recovered by Recovery.
type PanicError struct {
	Value any
}

func (e *PanicError) Error() string {
	return fmt.Sprintf("panic: %v", e.Value)
}

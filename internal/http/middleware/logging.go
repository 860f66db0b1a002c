// Package middleware contains shared Gin middleware used by the HTTP layer.
//
// This file holds request correlation and access logging. Logger and
// RedactingLogger build a request-scoped zerolog.Logger (request_id, method,
// path) and attach it to the request context, so handlers use LoggerFrom and
// services use zerolog.Ctx on the same logger. One access line per request
// follows, leveled by the final status.
//
// Order: RequestID, a logger, the error translator, Recovery.
package middleware

import (
	"net/http"
	"runtime/debug"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

const (
	// requestIDKey is the Gin context key under which the request ID is stored.
	requestIDKey = "requestID"
	// requestIDHeader is the HTTP header used to propagate the correlation ID.
	requestIDHeader = "X-Request-ID"
	// maxRequestIDLength bounds a client-supplied correlation id.
	maxRequestIDLength = 128
	// maxQueryLogLength caps the number of bytes of the raw query string logged.
	maxQueryLogLength = 2048
	// ctxKeyLogger holds the request-scoped *zerolog.Logger.
	ctxKeyLogger = "logger"
)

// RequestID reuses a well-formed incoming X-Request-ID or generates a UUIDv4,
// then writes it to the response header and the Gin context. Ids longer than
// 128 bytes or containing anything but visible ASCII are replaced.
func RequestID() gin.HandlerFunc {
	return func(c *gin.Context) {
		rid := c.GetHeader(requestIDHeader)
		if !validRequestID(rid) {
			rid = uuid.NewString()
		}
		c.Set(requestIDKey, rid)
		c.Writer.Header().Set(requestIDHeader, rid)
		c.Next()
	}
}

func validRequestID(s string) bool {
	if s == "" || len(s) > maxRequestIDLength {
		return false
	}
	for i := 0; i < len(s); i++ {
		if s[i] < 0x21 || s[i] > 0x7e {
			return false
		}
	}
	return true
}

// Logger writes a structured access log for each request, with the raw query
// string (truncated) and client metadata.
func Logger() gin.HandlerFunc {
	return accessLog(func(c *gin.Context, ctx zerolog.Context) zerolog.Context {
		return ctx.
			Str("remote_ip", c.ClientIP()).
			Str("user_agent", c.Request.UserAgent()).
			Str("query", truncate(c.Request.URL.RawQuery, maxQueryLogLength))
	})
}

// requestFields adds access-log fields derived from the incoming request.
type requestFields func(c *gin.Context, ctx zerolog.Context) zerolog.Context

// accessLog is the core of Logger and RedactingLogger. path is the route
// pattern, or the raw path when nothing matched. The access line adds the
// extra request fields, status, latency, bytes, and these flags when set:
//
//	replayed     an Idempotency-Key replay was served
//	rate_bypass  the rate limiter was skipped for the replay
//	not_modified a listing was revalidated with If-None-Match
//
// Level is error for 5xx, warn for 4xx, info otherwise.
func accessLog(extra requestFields) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()

		rid, _ := c.Get(requestIDKey)
		path := c.FullPath()
		if path == "" {
			path = c.Request.URL.Path
		}
		l := log.With().
			Str("request_id", asString(rid)).
			Str("method", c.Request.Method).
			Str("path", path).
			Logger()
		c.Set(ctxKeyLogger, &l)
		c.Request = c.Request.WithContext(l.WithContext(c.Request.Context()))

		c.Next()

		status := c.Writer.Status()
		fields := extra(c, l.With()).
			Int64("bytes_in", c.Request.ContentLength).
			Int("status", status).
			Dur("latency", time.Since(start)).
			Int("bytes_out", c.Writer.Size())
		if IsReplay(c) {
			fields = fields.Bool("replayed", true)
		}
		if IsRateBypass(c) {
			fields = fields.Bool("rate_bypass", true)
		}
		if status == http.StatusNotModified {
			fields = fields.Bool("not_modified", true)
		}
		logger := fields.Logger()

		var e *zerolog.Event
		switch {
		case status >= 500:
			e = logger.Error()
		case status >= 400:
			e = logger.Warn()
		default:
			e = logger.Info()
		}
		if len(c.Errors) > 0 {
			e = e.Str("errors", c.Errors.String())
		}
		e.Msg("request")
	}
}

// Recovery intercepts panics, logs the stack trace, and records a
// *PanicError on the Gin context. It writes nothing itself; place the error
// translator before it so the 500 envelope is produced on the way out.
func Recovery() gin.HandlerFunc {
	return func(c *gin.Context) {
		defer func() {
			if rec := recover(); rec != nil {
				lg := LoggerFrom(c)
				if _, scoped := c.Get(ctxKeyLogger); !scoped {
					rid, _ := c.Get(requestIDKey)
					l := lg.With().Str("request_id", asString(rid)).Logger()
					lg = &l
				}
				lg.Error().
					Interface("panic", rec).
					Bytes("stack", debug.Stack()).
					Msg("panic recovered")

				_ = c.Error(&PanicError{Value: rec})
				c.Abort()
			}
		}()
		c.Next()
	}
}

// LoggerFrom returns the request-scoped logger, or the global logger when no
// access logger ran.
func LoggerFrom(c *gin.Context) *zerolog.Logger {
	if v, ok := c.Get(ctxKeyLogger); ok {
		if lg, ok := v.(*zerolog.Logger); ok {
			return lg
		}
	}
	l := log.With().Logger()
	return &l
}

func asString(v any) string {
	if s, ok := v.(string); ok {
		return s
	}
	return ""
}

// truncate cuts s to max bytes and appends an ellipsis. max <= 0 disables it.
func truncate(s string, max int) string {
	if max <= 0 || len(s) <= max {
		return s
	}
	return s[:max] + "…"
}

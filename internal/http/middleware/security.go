// Package middleware contains shared Gin middleware used by the HTTP layer.
//
// This file provides SecurityHeaders: baseline hardening headers for a JSON
// API plus a per-request Cache-Control policy, so the question listing can be
// revalidated with its ETag while writes are never cached.
package middleware

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
)

// Cache-Control values used by CachePolicy implementations.
const (
	CacheRevalidate = "no-cache"
	CacheNever      = "no-store"
)

const defaultHSTSMaxAge = 180 * 24 * time.Hour

// CachePolicy returns the Cache-Control value for r, or "" to send none.
type CachePolicy func(r *http.Request) string

// SecurityOptions configures SecurityHeaders.
type SecurityOptions struct {
	// HSTS emits Strict-Transport-Security on HTTPS requests only.
	HSTS bool
	// HSTSMaxAge defaults to 180 days when <= 0.
	HSTSMaxAge time.Duration
	// Cache chooses Cache-Control per request. Nil sends none.
	Cache CachePolicy
}

// APICachePolicy revalidates GET and HEAD under base and forbids caching of
// every other method there. Paths outside base get no header.
func APICachePolicy(base string) CachePolicy {
	base = strings.TrimRight(base, "/")
	return func(r *http.Request) string {
		p := r.URL.Path
		if base != "" && p != base && !strings.HasPrefix(p, base+"/") {
			return ""
		}
		switch r.Method {
		case http.MethodGet, http.MethodHead:
			return CacheRevalidate
		default:
			return CacheNever
		}
	}
}

// SecurityHeaders sets on every response:
//
//	X-Content-Type-Options: nosniff
//	X-Frame-Options: DENY
//	Referrer-Policy: no-referrer
//	Permissions-Policy: geolocation=(), microphone=(), camera=(), payment=()
//
// plus Strict-Transport-Security and Cache-Control as configured.
func SecurityHeaders(opt SecurityOptions) gin.HandlerFunc {
	maxAge := opt.HSTSMaxAge
	if maxAge <= 0 {
		maxAge = defaultHSTSMaxAge
	}
	hsts := "max-age=" + strconv.Itoa(int(maxAge.Seconds())) + "; includeSubDomains"

	return func(c *gin.Context) {
		h := c.Writer.Header()
		h.Set("X-Content-Type-Options", "nosniff")
		h.Set("X-Frame-Options", "DENY")
		h.Set("Referrer-Policy", "no-referrer")
		h.Set("Permissions-Policy", "geolocation=(), microphone=(), camera=(), payment=()")

		if opt.HSTS && isHTTPS(c.Request) {
			h.Set("Strict-Transport-Security", hsts)
		}
		if opt.Cache != nil {
			if v := opt.Cache(c.Request); v != "" {
				h.Set("Cache-Control", v)
			}
		}
		c.Next()
	}
}

// isHTTPS reports whether the request arrived over TLS, directly or through a
// proxy that set X-Forwarded-Proto: https.
func isHTTPS(r *http.Request) bool {
	if r.TLS != nil {
		return true
	}
	return strings.EqualFold(r.Header.Get("X-Forwarded-Proto"), "https")
}

// Package middleware contains shared Gin middleware used by the HTTP layer.
//
// This file provides RedactingLogger, the access logger used when LOG_REDACT
// is on. Bodies are never logged, so question and answer text stays out of
// the logs. What is logged (query values and request headers) passes through
// a Redactor first.
package middleware

import (
	"net/url"
	"regexp"
	"sort"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
)

// Replacement markers written in place of scrubbed values.
const (
	redactedID    = "[REDACTED:id]"
	redactedEmail = "[REDACTED:email]"
	redactedPhone = "[REDACTED:phone]"
	redactedValue = "[REDACTED]"
)

var (
	uuidRE  = regexp.MustCompile(`(?i)\b[0-9a-f]{8}-[0-9a-f]{4}-[1-5][0-9a-f]{3}-[89ab][0-9a-f]{3}-[0-9a-f]{12}\b`)
	emailRE = regexp.MustCompile(`(?i)\b[a-z0-9._%+\-]+@[a-z0-9.\-]+\.[a-z]{2,}\b`)
	// Digits only, so UUID hex groups never match.
	phoneRE = regexp.MustCompile(`\b(?:\+?\d{1,3}[ .-]?)?(?:\(?\d{2,4}\)?[ .-]?)?\d{3,4}[ .-]?\d{4}\b`)
)

// Headers that are always masked in full.
var defaultMaskedHeaders = []string{"Authorization", "Cookie", "Set-Cookie", HeaderIdempotencyKey}

// RedactOptions configures RedactingLogger.
type RedactOptions struct {
	// MaskHeaders adds header names (case-insensitive) to mask in full.
	MaskHeaders []string
	// PlainParams lists query parameters whose values are logged unscrubbed.
	// Defaults to the pagination parameters "start" and "end".
	PlainParams []string
}

// Redactor scrubs UUIDs, email addresses, and phone numbers from strings and
// masks sensitive headers.
type Redactor struct {
	masked map[string]struct{}
	plain  map[string]struct{}
}

// NewRedactor builds a Redactor from opts.
func NewRedactor(opts RedactOptions) *Redactor {
	r := &Redactor{
		masked: make(map[string]struct{}),
		plain:  make(map[string]struct{}),
	}
	for _, h := range append(append([]string(nil), defaultMaskedHeaders...), opts.MaskHeaders...) {
		if h = strings.ToLower(strings.TrimSpace(h)); h != "" {
			r.masked[h] = struct{}{}
		}
	}
	plain := opts.PlainParams
	if plain == nil {
		plain = []string{"start", "end"}
	}
	for _, p := range plain {
		r.plain[p] = struct{}{}
	}
	return r
}

// Scrub replaces UUIDs, then emails, then phone numbers in s. UUIDs go first
// so the phone pattern cannot eat their digit groups.
func (r *Redactor) Scrub(s string) string {
	if s == "" {
		return s
	}
	s = uuidRE.ReplaceAllString(s, redactedID)
	s = emailRE.ReplaceAllString(s, redactedEmail)
	return phoneRE.ReplaceAllString(s, redactedPhone)
}

// Query scrubs every value of raw except the plain parameters. Keys are
// kept and sorted. A query that does not parse is scrubbed as a whole.
func (r *Redactor) Query(raw string) string {
	if raw == "" {
		return ""
	}
	vals, err := url.ParseQuery(raw)
	if err != nil {
		return r.Scrub(truncate(raw, maxQueryLogLength))
	}
	keys := make([]string, 0, len(vals))
	for k := range vals {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var b strings.Builder
	for _, k := range keys {
		for _, v := range vals[k] {
			if b.Len() > 0 {
				b.WriteByte('&')
			}
			if _, ok := r.plain[k]; !ok {
				v = r.Scrub(v)
			}
			b.WriteString(k)
			b.WriteByte('=')
			b.WriteString(v)
		}
	}
	return truncate(b.String(), maxQueryLogLength)
}

// Header returns the value to log for header name.
func (r *Redactor) Header(name string, values []string) string {
	if _, ok := r.masked[strings.ToLower(name)]; ok {
		return redactedValue
	}
	return r.Scrub(strings.Join(values, ", "))
}

// RedactingLogger is Logger with a Redactor applied to the query string and
// request headers. Masked headers appear as "[REDACTED]". The remote IP is
// not logged.
func RedactingLogger(opts RedactOptions) gin.HandlerFunc {
	red := NewRedactor(opts)
	return accessLog(func(c *gin.Context, ctx zerolog.Context) zerolog.Context {
		headers := zerolog.Dict()
		for k, vv := range c.Request.Header {
			headers = headers.Str(k, red.Header(k, vv))
		}
		return ctx.
			Str("query", red.Query(c.Request.URL.RawQuery)).
			Dict("headers", headers)
	})
}

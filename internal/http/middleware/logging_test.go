package middleware

import (
	"bytes"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

func captureLogger(t *testing.T) *bytes.Buffer {
	t.Helper()
	var buf bytes.Buffer
	prev := log.Logger
	t.Cleanup(func() { log.Logger = prev })
	log.Logger = zerolog.New(&buf)
	return &buf
}

// logLines decodes every JSON line in buf.
func logLines(t *testing.T, buf *bytes.Buffer) []map[string]any {
	t.Helper()
	var out []map[string]any
	for _, line := range strings.Split(strings.TrimSpace(buf.String()), "\n") {
		if line == "" {
			continue
		}
		m := map[string]any{}
		if err := json.Unmarshal([]byte(line), &m); err != nil {
			t.Fatalf("decode %q: %v", line, err)
		}
		out = append(out, m)
	}
	return out
}

type errSentinel struct{}

func (errSentinel) Error() string { return "boom" }

// captureErrors records the Gin errors left on the context once the chain
// below it has returned.
func captureErrors(dst *[]error) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()
		for _, e := range c.Errors {
			*dst = append(*dst, e.Err)
		}
	}
}

func TestRequestID(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(RequestID())
	var seen string
	r.GET("/questions", func(c *gin.Context) {
		v, _ := c.Get(requestIDKey)
		seen = asString(v)
		c.Status(http.StatusOK)
	})

	cases := []struct {
		name, in string
		keep     bool
	}{
		{"absent", "", false},
		{"kept", "Z-REQ-123", true},
		{"space", "has space", false},
		{"tab", "tab\tid", false},
		{"too long", strings.Repeat("a", maxRequestIDLength+1), false},
		{"max length", strings.Repeat("a", maxRequestIDLength), true},
		{"non-ascii", "ünïcode", false},
	}
	for _, tc := range cases {
		req := httptest.NewRequest(http.MethodGet, "/questions", nil)
		if tc.in != "" {
			req.Header.Set(requestIDHeader, tc.in)
		}
		w := httptest.NewRecorder()
		r.ServeHTTP(w, req)

		got := w.Header().Get(requestIDHeader)
		if got != seen {
			t.Fatalf("%s: header %q != context %q", tc.name, got, seen)
		}
		if tc.keep && got != tc.in {
			t.Fatalf("%s: want %q kept, got %q", tc.name, tc.in, got)
		}
		if !tc.keep && (got == tc.in || len(got) != 36) {
			t.Fatalf("%s: want a generated uuid, got %q", tc.name, got)
		}
	}
}

func TestLogger_AccessLine(t *testing.T) {
	gin.SetMode(gin.TestMode)
	buf := captureLogger(t)

	r := gin.New()
	r.Use(RequestID())
	r.Use(Logger())
	r.PUT("/questions/:id", func(c *gin.Context) { c.String(http.StatusOK, "done") })

	req := httptest.NewRequest(http.MethodPut, "/questions/7?start=0&end=2", strings.NewReader(`{"id":"7"}`))
	req.Header.Set(requestIDHeader, "rid-1")
	req.Header.Set("User-Agent", "qa-test")
	r.ServeHTTP(httptest.NewRecorder(), req)

	lines := logLines(t, buf)
	if len(lines) != 1 {
		t.Fatalf("want one line, got %d", len(lines))
	}
	l := lines[0]
	want := map[string]any{
		"level":      "info",
		"message":    "request",
		"request_id": "rid-1",
		"method":     "PUT",
		"path":       "/questions/:id",
		"query":      "start=0&end=2",
		"user_agent": "qa-test",
		"status":     float64(200),
		"bytes_in":   float64(10),
		"bytes_out":  float64(4),
	}
	for k, v := range want {
		if l[k] != v {
			t.Fatalf("%s=%v want %v\n%v", k, l[k], v, l)
		}
	}
	if _, ok := l["latency"]; !ok {
		t.Fatalf("latency missing: %v", l)
	}
	if _, ok := l["replayed"]; ok {
		t.Fatalf("first attempts carry no replay flag: %v", l)
	}
}

func TestLogger_Levels(t *testing.T) {
	gin.SetMode(gin.TestMode)
	buf := captureLogger(t)

	r := gin.New()
	r.Use(Logger())
	r.GET("/questions", func(c *gin.Context) {
		_ = c.Error(errSentinel{})
		c.Status(http.StatusBadRequest)
	})
	r.DELETE("/questions/:id", func(c *gin.Context) { c.Status(http.StatusInternalServerError) })
	r.POST("/questions", func(c *gin.Context) { c.Status(http.StatusCreated) })

	for _, req := range []*http.Request{
		httptest.NewRequest(http.MethodGet, "/questions", nil),
		httptest.NewRequest(http.MethodDelete, "/questions/9", nil),
		httptest.NewRequest(http.MethodPost, "/questions", nil),
		httptest.NewRequest(http.MethodGet, "/nowhere", nil),
	} {
		r.ServeHTTP(httptest.NewRecorder(), req)
	}

	lines := logLines(t, buf)
	if len(lines) != 4 {
		t.Fatalf("lines=%d", len(lines))
	}
	checks := []struct{ level, path string }{
		{"warn", "/questions"},
		{"error", "/questions/:id"},
		{"info", "/questions"},
		{"warn", "/nowhere"}, // unmatched: raw path
	}
	for i, want := range checks {
		if lines[i]["level"] != want.level || lines[i]["path"] != want.path {
			t.Fatalf("line %d: %v, want %+v", i, lines[i], want)
		}
	}
	if lines[0]["errors"] != "Error #01: boom\n" {
		t.Fatalf("errors field: %v", lines[0]["errors"])
	}
}

func TestLogger_OutcomeFlags(t *testing.T) {
	gin.SetMode(gin.TestMode)
	buf := captureLogger(t)

	r := gin.New()
	r.Use(Logger())
	r.POST("/answers", func(c *gin.Context) {
		c.Set(ctxKeyIdempotency, idempotencyState{key: "k", replay: true})
		c.Status(http.StatusOK)
	})
	r.GET("/questions", func(c *gin.Context) { c.Status(http.StatusNotModified) })

	r.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodPost, "/answers", nil))
	r.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/questions", nil))

	lines := logLines(t, buf)
	if lines[0]["replayed"] != true || lines[0]["rate_bypass"] != true {
		t.Fatalf("replay flags: %v", lines[0])
	}
	if lines[1]["not_modified"] != true || lines[1]["status"] != float64(304) {
		t.Fatalf("not_modified flag: %v", lines[1])
	}
}

func TestLoggerFrom(t *testing.T) {
	gin.SetMode(gin.TestMode)

	t.Run("global fallback", func(t *testing.T) {
		buf := captureLogger(t)
		r := gin.New()
		r.GET("/questions", func(c *gin.Context) {
			LoggerFrom(c).Info().Msg("handler")
			if zerolog.Ctx(c.Request.Context()).GetLevel() != zerolog.Disabled {
				t.Fatalf("no logger expected in the request context")
			}
		})
		r.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/questions", nil))
		lines := logLines(t, buf)
		if lines[0]["message"] != "handler" || lines[0]["request_id"] != nil {
			t.Fatalf("fallback line: %v", lines[0])
		}
	})

	t.Run("request scoped", func(t *testing.T) {
		buf := captureLogger(t)
		r := gin.New()
		r.Use(RequestID())
		r.Use(Logger())
		r.GET("/questions", func(c *gin.Context) {
			LoggerFrom(c).Info().Msg("handler")
			zerolog.Ctx(c.Request.Context()).Info().Msg("service")
		})
		req := httptest.NewRequest(http.MethodGet, "/questions", nil)
		req.Header.Set(requestIDHeader, "rid-ctx")
		r.ServeHTTP(httptest.NewRecorder(), req)

		lines := logLines(t, buf)
		if len(lines) != 3 {
			t.Fatalf("lines=%d", len(lines))
		}
		for i, msg := range []string{"handler", "service", "request"} {
			if lines[i]["message"] != msg || lines[i]["request_id"] != "rid-ctx" || lines[i]["path"] != "/questions" {
				t.Fatalf("line %d: %v", i, lines[i])
			}
		}
	})
}

func TestRecovery(t *testing.T) {
	gin.SetMode(gin.TestMode)

	t.Run("before write", func(t *testing.T) {
		buf := captureLogger(t)
		var got []error
		r := gin.New()
		r.Use(RequestID())
		r.Use(captureErrors(&got))
		r.Use(Recovery())
		reached := false
		r.GET("/questions", func(c *gin.Context) { panic("kaboom") }, func(c *gin.Context) { reached = true })

		req := httptest.NewRequest(http.MethodGet, "/questions", nil)
		req.Header.Set(requestIDHeader, "rid-panic")
		w := httptest.NewRecorder()
		r.ServeHTTP(w, req)

		if reached {
			t.Fatalf("chain continued after panic")
		}
		var pe *PanicError
		if len(got) != 1 || !errors.As(got[0], &pe) || pe.Value != "kaboom" {
			t.Fatalf("recorded: %#v", got)
		}
		if w.Body.Len() != 0 {
			t.Fatalf("Recovery must not write a body, got %q", w.Body.String())
		}
		lines := logLines(t, buf)
		if lines[0]["message"] != "panic recovered" || lines[0]["request_id"] != "rid-panic" || lines[0]["stack"] == nil {
			t.Fatalf("panic line: %v", lines[0])
		}
	})

	t.Run("after write", func(t *testing.T) {
		buf := captureLogger(t)
		var got []error
		r := gin.New()
		r.Use(RequestID())
		r.Use(Logger())
		r.Use(captureErrors(&got))
		r.Use(Recovery())
		r.GET("/questions", func(c *gin.Context) {
			c.String(http.StatusOK, "partial-body")
			panic("late kaboom")
		})

		w := httptest.NewRecorder()
		r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/questions", nil))
		if w.Body.String() != "partial-body" || len(got) != 1 {
			t.Fatalf("body=%q recorded=%v", w.Body.String(), got)
		}
		lines := logLines(t, buf)
		if lines[0]["message"] != "panic recovered" || lines[0]["path"] != "/questions" {
			t.Fatalf("panic line should use the request logger: %v", lines[0])
		}
	})
}

func TestTruncateAndAsString(t *testing.T) {
	if asString("x") != "x" || asString(123) != "" || asString(nil) != "" {
		t.Fatalf("asString")
	}
	cases := []struct {
		in   string
		max  int
		want string
	}{
		{"hello", 10, "hello"},
		{"abcdefgh", 5, "abcde…"},
		{"abc", 0, "abc"},
	}
	for _, tc := range cases {
		if got := truncate(tc.in, tc.max); got != tc.want {
			t.Fatalf("truncate(%q,%d)=%q want %q", tc.in, tc.max, got, tc.want)
		}
	}
}

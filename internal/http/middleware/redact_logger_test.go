package middleware

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
)

func TestRedactor_Scrub(t *testing.T) {
	r := NewRedactor(RedactOptions{})
	in := "email a@b.com id=123e4567-e89b-12d3-a456-426614174000 phone 555-123-4567"
	want := "email [REDACTED:email] id=[REDACTED:id] phone [REDACTED:phone]"
	if got := r.Scrub(in); got != want {
		t.Fatalf("Scrub=%q\nwant %q", got, want)
	}
	if r.Scrub("") != "" || r.Scrub("plain text") != "plain text" {
		t.Fatalf("Scrub must leave clean input alone")
	}
}

func TestRedactor_Query(t *testing.T) {
	r := NewRedactor(RedactOptions{})

	got := r.Query("start=5551234567&end=9&question_id=a%40b.com&x=1&x=2")
	want := "end=9&question_id=[REDACTED:email]&start=5551234567&x=1&x=2"
	if got != want {
		t.Fatalf("Query=%q\nwant %q", got, want)
	}

	// a query that does not parse is scrubbed as one string
	if got := r.Query("a=%zz&mail=x@y.io"); !strings.Contains(got, redactedEmail) {
		t.Fatalf("unparseable query not scrubbed: %q", got)
	}

	none := NewRedactor(RedactOptions{PlainParams: []string{}})
	if got := none.Query("start=5551234567"); got != "start="+redactedPhone {
		t.Fatalf("empty PlainParams should scrub everything, got %q", got)
	}
}

func TestRedactor_Header(t *testing.T) {
	r := NewRedactor(RedactOptions{MaskHeaders: []string{" x-api-key "}})
	for _, h := range []string{"Authorization", "cookie", "Idempotency-Key", "X-Api-Key"} {
		if got := r.Header(h, []string{"secret"}); got != redactedValue {
			t.Fatalf("%s=%q, want masked", h, got)
		}
	}
	if got := r.Header("X-Custom", []string{"a@b.com", "ok"}); got != redactedEmail+", ok" {
		t.Fatalf("X-Custom=%q", got)
	}
}

func TestRedactingLogger_AccessLine(t *testing.T) {
	gin.SetMode(gin.TestMode)
	buf := captureLogger(t)

	r := gin.New()
	r.Use(RequestID())
	r.Use(RedactingLogger(RedactOptions{MaskHeaders: []string{"X-Api-Key"}}))
	r.PUT("/questions/:id", func(c *gin.Context) {
		LoggerFrom(c).Info().Msg("handler")
		c.Status(http.StatusOK)
	})

	req := httptest.NewRequest(http.MethodPut, "/questions/7?start=0&end=2&who=a.b@example.com", strings.NewReader("{}"))
	req.Header.Set("X-Request-ID", "rid-redact")
	req.Header.Set("Authorization", "Bearer secret")
	req.Header.Set("X-Api-Key", "shhh")
	req.Header.Set("Idempotency-Key", "client-key-1")
	req.Header.Set("X-Forwarded-For", "203.0.113.9")
	r.ServeHTTP(httptest.NewRecorder(), req)

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 2 {
		t.Fatalf("want handler + access lines, got:\n%s", buf.String())
	}
	if !strings.Contains(lines[0], `"message":"handler"`) || !strings.Contains(lines[0], `"request_id":"rid-redact"`) {
		t.Fatalf("handler line lacks request fields: %s", lines[0])
	}

	var access struct {
		Level     string            `json:"level"`
		RequestID string            `json:"request_id"`
		Path      string            `json:"path"`
		Query     string            `json:"query"`
		Status    int               `json:"status"`
		RemoteIP  string            `json:"remote_ip"`
		Headers   map[string]string `json:"headers"`
	}
	if err := json.Unmarshal([]byte(lines[1]), &access); err != nil {
		t.Fatalf("decode %s: %v", lines[1], err)
	}
	if access.Level != "info" || access.RequestID != "rid-redact" || access.Path != "/questions/:id" || access.Status != 200 {
		t.Fatalf("access line: %+v", access)
	}
	if access.Query != "end=2&start=0&who="+redactedEmail {
		t.Fatalf("query=%q", access.Query)
	}
	if access.RemoteIP != "" {
		t.Fatalf("remote ip must not be logged when redacting")
	}
	for _, h := range []string{"Authorization", "X-Api-Key", "Idempotency-Key"} {
		if access.Headers[h] != redactedValue {
			t.Fatalf("%s not masked: %v", h, access.Headers)
		}
	}
	if strings.Contains(buf.String(), "client-key-1") || strings.Contains(buf.String(), "example.com") {
		t.Fatalf("secret leaked:\n%s", buf.String())
	}
}

func TestRedactingLogger_LevelsFollowStatus(t *testing.T) {
	gin.SetMode(gin.TestMode)
	buf := captureLogger(t)

	r := gin.New()
	r.Use(RedactingLogger(RedactOptions{}))
	r.GET("/warn", func(c *gin.Context) {
		_ = c.Error(errSentinel{})
		c.Status(http.StatusNotFound)
	})
	r.GET("/error", func(c *gin.Context) { c.Status(http.StatusInternalServerError) })

	r.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/warn", nil))
	r.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/error", nil))

	logs := buf.String()
	if !strings.Contains(logs, `"level":"warn"`) || !strings.Contains(logs, `"errors":"Error #01: boom\n"`) {
		t.Fatalf("warn line missing: %s", logs)
	}
	if !strings.Contains(logs, `"level":"error"`) {
		t.Fatalf("error line missing: %s", logs)
	}
}

package middleware

import (
	"crypto/tls"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
)

func securityRouter(opt SecurityOptions) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(SecurityHeaders(opt))
	h := func(c *gin.Context) { c.Status(http.StatusOK) }
	r.GET("/health", h)
	r.GET("/api/questions", h)
	r.POST("/api/questions", h)
	r.HEAD("/api/questions", h)
	return r
}

func TestSecurityHeaders_Baseline(t *testing.T) {
	w := httptest.NewRecorder()
	securityRouter(SecurityOptions{}).ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/health", nil))

	want := map[string]string{
		"X-Content-Type-Options": "nosniff",
		"X-Frame-Options":        "DENY",
		"Referrer-Policy":        "no-referrer",
		"Permissions-Policy":     "geolocation=(), microphone=(), camera=(), payment=()",
	}
	for k, v := range want {
		if got := w.Header().Get(k); got != v {
			t.Fatalf("%s=%q want %q", k, got, v)
		}
	}
	if w.Header().Get("Strict-Transport-Security") != "" || w.Header().Get("Cache-Control") != "" {
		t.Fatalf("unexpected optional headers: %v", w.Header())
	}
}

func TestSecurityHeaders_HSTS(t *testing.T) {
	r := securityRouter(SecurityOptions{HSTS: true, HSTSMaxAge: time.Hour})

	// plain HTTP: never
	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/health", nil))
	if w.Header().Get("Strict-Transport-Security") != "" {
		t.Fatalf("HSTS over plain HTTP")
	}

	// direct TLS
	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	req.TLS = &tls.ConnectionState{}
	w = httptest.NewRecorder()
	r.ServeHTTP(w, req)
	if got := w.Header().Get("Strict-Transport-Security"); got != "max-age=3600; includeSubDomains" {
		t.Fatalf("HSTS=%q", got)
	}

	// behind a TLS-terminating proxy, default max-age
	r = securityRouter(SecurityOptions{HSTS: true})
	req = httptest.NewRequest(http.MethodGet, "/health", nil)
	req.Header.Set("X-Forwarded-Proto", "HTTPS")
	w = httptest.NewRecorder()
	r.ServeHTTP(w, req)
	if got := w.Header().Get("Strict-Transport-Security"); got != "max-age=15552000; includeSubDomains" {
		t.Fatalf("HSTS=%q", got)
	}
}

func TestSecurityHeaders_APICachePolicy(t *testing.T) {
	r := securityRouter(SecurityOptions{Cache: APICachePolicy("/api/")})

	cases := []struct {
		method, path, want string
	}{
		{http.MethodGet, "/api/questions", CacheRevalidate},
		{http.MethodHead, "/api/questions", CacheRevalidate},
		{http.MethodPost, "/api/questions", CacheNever},
		{http.MethodGet, "/health", ""},
	}
	for _, tc := range cases {
		w := httptest.NewRecorder()
		r.ServeHTTP(w, httptest.NewRequest(tc.method, tc.path, nil))
		if got := w.Header().Get("Cache-Control"); got != tc.want {
			t.Fatalf("%s %s: Cache-Control=%q want %q", tc.method, tc.path, got, tc.want)
		}
	}
}

func TestAPICachePolicy_RootAndPrefixBoundary(t *testing.T) {
	root := APICachePolicy("/")
	if got := root(httptest.NewRequest(http.MethodGet, "/health", nil)); got != CacheRevalidate {
		t.Fatalf("root base should cover everything, got %q", got)
	}
	p := APICachePolicy("/api")
	if got := p(httptest.NewRequest(http.MethodDelete, "/apix/questions/1", nil)); got != "" {
		t.Fatalf("/apix is outside /api, got %q", got)
	}
	if got := p(httptest.NewRequest(http.MethodDelete, "/api", nil)); got != CacheNever {
		t.Fatalf("base itself, got %q", got)
	}
}

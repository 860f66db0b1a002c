// Package httpapi wires the HTTP transport (Gin) to application services,
// middleware, and route handlers. It centralizes cross-cutting concerns such
// as tracing, correlation IDs, logging/redaction, error translation, panic
// recovery, metrics, CORS, security headers, idempotency, and rate limiting.
//
// Design goals:
//   - Put observability first (OTel + Prometheus)
//   - One error boundary: handlers record errors, the translator renders them
//   - Deterministic, minimal router setup; all dependencies injected
//   - Production-ready CORS and security header posture
package httpapi

import (
	"net/http"
	"strings"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-contrib/gzip"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
	"gorm.io/gorm"

	"github.com/tbourn/go-qa-backend/internal/config"
	_ "github.com/tbourn/go-qa-backend/internal/docs"
	"github.com/tbourn/go-qa-backend/internal/http/handlers"
	"github.com/tbourn/go-qa-backend/internal/http/middleware"
	"github.com/tbourn/go-qa-backend/internal/repo"
	"github.com/tbourn/go-qa-backend/internal/services"
)

// Deps carries the long-lived collaborators the routes are built from.
type Deps struct {
	// Store holds questions and answers. Required. The qa_store_* gauges
	// follow the store of the most recently registered router.
	Store *repo.Store
	// DB stores idempotency records. Nil disables Idempotency-Key replay.
	DB *gorm.DB
	// RateStats receives rate-limit decisions. Optional.
	RateStats middleware.StatsRecorder
}

var (
	corsMethods       = []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"}
	corsAllowHeaders  = []string{"Origin", "Content-Type", "Accept", "Authorization", "If-None-Match", middleware.HeaderIdempotencyKey}
	corsExposeHeaders = []string{"X-Request-ID", "Content-Length", "ETag", middleware.HeaderIdempotencyReplayed}
)

// RegisterRoutes attaches all middleware and HTTP endpoints to the given Gin
// engine and mounts the public API under cfg.APIBasePath.
//
// Middleware order matters:
//  1. OpenTelemetry: trace everything
//  2. RequestID: generate/propagate correlation id
//  3. Access logging (redacting or plain) with a request-scoped logger
//  4. Compression: wraps the translator so error envelopes are compressed
//     before gzip closes its writer
//  5. ErrorTranslator: renders the recorded error once the chain returns
//  6. Recovery: turn panics into recorded errors for the translator, then
//     the body size limit
//  7. Metrics
//  8. Idempotency validator on POST /answers (before the limiter so replays bypass it)
//  9. Rate limiter (per IP)
//  10. Origin guard, CORS, and security headers
func RegisterRoutes(r *gin.Engine, deps Deps, cfg config.Config) {
	// Unsupported methods on known paths fall through to NoRoute.
	r.HandleMethodNotAllowed = false

	// Dependency injection: services ← store/db
	questionSvc := &services.QuestionService{Store: deps.Store}
	answerSvc := &services.AnswerService{
		Store: deps.Store,
		DB:    deps.DB,
		TTL:   cfg.IdempotencyTTL,
	}
	h := handlers.New(questionSvc, answerSvc)

	apiBase := cfg.APIBasePath
	answersPath := joinPath(apiBase, "/answers")

	// 1) Trace all HTTP requests
	r.Use(otelgin.Middleware(cfg.OTEL.ServiceName))

	// 2) Correlate requests and logs
	r.Use(middleware.RequestID())

	// 3) Structured logging, with PII scrubbing unless disabled
	if cfg.LogRedact {
		r.Use(middleware.RedactingLogger(middleware.RedactOptions{
			MaskHeaders: []string{"X-API-Key"},
		}))
	} else {
		r.Use(middleware.Logger())
	}

	// 4) Compression; everything written below it goes through the gzip writer
	r.Use(gzip.Gzip(gzip.DefaultCompression))

	// 5) Single error boundary
	r.Use(handlers.ErrorTranslator())

	// 6) Panic recovery (recorded, translated by 5) and global body size limit (1 MiB)
	r.Use(middleware.Recovery())
	r.Use(limitBody(1 << 20))

	// 7) Prometheus metrics and /metrics endpoint
	r.Use(middleware.Metrics())
	middleware.BindStore(deps.Store)
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	// 8) Idempotency validation for answer creation
	r.Use(onlyRoute(http.MethodPost, answersPath, middleware.IdempotencyValidator(
		middleware.IdempotencyOptions{MaxLen: 200},
		answerSvc.Replayable,
	)))

	// 9) Token-bucket rate limiter per IP
	rl := middleware.NewRateLimiter(cfg.RateRPS, cfg.RateBurst, middleware.KeyByIP())
	if deps.RateStats != nil {
		rl.WithStats(deps.RateStats)
	}
	r.Use(rl.Handler())

	// 10) CORS posture (allow all if none configured)
	r.Use(middleware.OriginGuard(cfg.CORS.AllowedOrigins))
	if len(cfg.CORS.AllowedOrigins) == 0 {
		// Force ACAO: * even for requests without an Origin header.
		r.Use(func(c *gin.Context) {
			c.Writer.Header().Set("Access-Control-Allow-Origin", "*")
			c.Next()
		})
		r.Use(cors.New(cors.Config{
			AllowAllOrigins:  true,
			AllowMethods:     corsMethods,
			AllowHeaders:     corsAllowHeaders,
			ExposeHeaders:    corsExposeHeaders,
			AllowCredentials: false, // must remain false with AllowAllOrigins
			MaxAge:           12 * time.Hour,
		}))
	} else {
		r.Use(cors.New(cors.Config{
			AllowOrigins:     cfg.CORS.AllowedOrigins,
			AllowMethods:     corsMethods,
			AllowHeaders:     corsAllowHeaders,
			ExposeHeaders:    corsExposeHeaders,
			AllowCredentials: false,
			MaxAge:           12 * time.Hour,
		}))
	}

	// Security headers; listings revalidate via ETag, writes are never cached
	r.Use(middleware.SecurityHeaders(middleware.SecurityOptions{
		HSTS:       cfg.Security.EnableHSTS,
		HSTSMaxAge: cfg.Security.HSTSMaxAge,
		Cache:      middleware.APICachePolicy(apiBase),
	}))

	// Fallback
	r.NoRoute(handlers.NoRoute)

	// Liveness/health
	r.GET("/health", func(c *gin.Context) { c.JSON(http.StatusOK, gin.H{"status": "ok"}) })

	// API docs
	if cfg.SwaggerEnabled {
		r.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	}

	// Public API
	api := groupWithPrefix(r, apiBase)
	{
		// Questions
		api.GET("/questions", h.ListQuestions)
		api.POST("/questions", h.CreateQuestion)
		api.PUT("/questions/:id", h.ReplaceQuestion)
		api.DELETE("/questions/:id", h.DeleteQuestion)

		// Answers
		api.GET("/answers", h.ListAnswers)
		api.POST("/answers", h.CreateAnswer)
	}
}

// limitBody returns a Gin middleware that caps the request body size for all
// endpoints to maxBytes using http.MaxBytesReader. Requests exceeding the cap
// will cause downstream body reads to error.
func limitBody(maxBytes int64) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, maxBytes)
		c.Next()
	}
}

// onlyRoute runs mw for requests matched to method and route path; other
// requests skip it.
func onlyRoute(method, path string, mw gin.HandlerFunc) gin.HandlerFunc {
	return func(c *gin.Context) {
		if c.Request.Method == method && c.FullPath() == path {
			mw(c)
			return
		}
		c.Next()
	}
}

// groupWithPrefix mounts a group at prefix, treating "/" (or empty) as root.
func groupWithPrefix(r *gin.Engine, prefix string) *gin.RouterGroup {
	if prefix == "" || prefix == "/" {
		return r.Group("")
	}
	return r.Group(prefix)
}

// joinPath joins a normalized base path and a route path.
func joinPath(base, p string) string {
	if base == "" || base == "/" {
		return p
	}
	return strings.TrimRight(base, "/") + p
}

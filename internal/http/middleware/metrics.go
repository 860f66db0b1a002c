// Package middleware contains shared Gin middleware used by the HTTP layer.
//
// This file holds the Prometheus collectors. HTTP series are labeled by
// method and matched route (never the raw URL), so their cardinality is
// bounded by the route table. Requests that match no route share the
// "unmatched" route label.
package middleware

import (
	"strconv"
	"sync/atomic"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
)

const (
	metricsNamespace = "qa"
	unmatchedRoute   = "unmatched"
)

var (
	httpRequests = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: metricsNamespace,
		Subsystem: "http",
		Name:      "requests_total",
		Help:      "HTTP requests by method, route and status.",
	}, []string{"method", "route", "status"})

	httpDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: metricsNamespace,
		Subsystem: "http",
		Name:      "request_duration_seconds",
		Help:      "HTTP request latency by method and route.",
		Buckets:   []float64{.0005, .001, .0025, .005, .01, .025, .05, .1, .25, .5, 1},
	}, []string{"method", "route"})

	httpInflight = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: metricsNamespace,
		Subsystem: "http",
		Name:      "requests_inflight",
		Help:      "Requests currently being served.",
	})

	// Question listings dominate response size; buckets run 128B..1MiB.
	httpResponseBytes = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: metricsNamespace,
		Subsystem: "http",
		Name:      "response_size_bytes",
		Help:      "Response body size by method and route.",
		Buckets:   prometheus.ExponentialBuckets(128, 4, 8),
	}, []string{"method", "route"})

	apiErrors = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: metricsNamespace,
		Name:      "api_errors_total",
		Help:      "Error envelopes written, by error code.",
	}, []string{"code"})

	answerReplays = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: metricsNamespace,
		Name:      "answer_replays_total",
		Help:      "Answer creations served from an earlier Idempotency-Key reservation.",
	})

	storeQuestions = storeGauge("questions", "Questions currently stored.", StoreSizer.QuestionCount)
	storeAnswers   = storeGauge("answers", "Answers currently stored.", StoreSizer.AnswerCount)
)

func init() {
	prometheus.MustRegister(httpRequests, httpDuration, httpInflight, httpResponseBytes, apiErrors, answerReplays,
		storeQuestions, storeAnswers)
}

// ObserveReplay counts an answer creation answered as a replay.
func ObserveReplay(*gin.Context) { answerReplays.Inc() }

// ObserveAPIError counts an error envelope with the given code.
func ObserveAPIError(code string) { apiErrors.WithLabelValues(code).Inc() }

// StoreSizer reports collection sizes. *repo.Store satisfies it.
type StoreSizer interface {
	QuestionCount() int
	AnswerCount() int
}

type sizerRef struct{ StoreSizer }

var boundStore atomic.Pointer[sizerRef]

// BindStore points the qa_store_* gauges at s. The last call wins, so a
// rebuilt router reports its own store. Unbound gauges read 0.
func BindStore(s StoreSizer) {
	if s == nil {
		boundStore.Store(nil)
		return
	}
	boundStore.Store(&sizerRef{s})
}

func storeGauge(name, help string, read func(StoreSizer) int) prometheus.GaugeFunc {
	return prometheus.NewGaugeFunc(prometheus.GaugeOpts{
		Namespace: metricsNamespace,
		Subsystem: "store",
		Name:      name,
		Help:      help,
	}, func() float64 {
		ref := boundStore.Load()
		if ref == nil {
			return 0
		}
		return float64(read(ref.StoreSizer))
	})
}

// Metrics instruments every request. Mount /metrics with promhttp separately.
func Metrics() gin.HandlerFunc {
	return func(c *gin.Context) {
		httpInflight.Inc()
		defer httpInflight.Dec()
		start := time.Now()

		c.Next()

		route := c.FullPath()
		if route == "" {
			route = unmatchedRoute
		}
		method := c.Request.Method
		httpRequests.WithLabelValues(method, route, strconv.Itoa(c.Writer.Status())).Inc()
		httpDuration.WithLabelValues(method, route).Observe(time.Since(start).Seconds())
		if n := c.Writer.Size(); n >= 0 {
			httpResponseBytes.WithLabelValues(method, route).Observe(float64(n))
		}
	}
}

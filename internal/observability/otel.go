// Package observability configures OpenTelemetry tracing for the service.
// HTTP spans come from otelgin, store operations from the services package
// (through Tracer and the qa.* attribute keys below), and idempotency queries
// from the GORM tracing plugin. All of them are exported through the provider
// SetupOTel installs.
package observability

import (
	"context"

	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
	"go.opentelemetry.io/otel/trace"
	"google.golang.org/grpc/credentials"

	"github.com/tbourn/go-qa-backend/internal/config"
)

// defaultVersion is reported when the build did not stamp a version.
const defaultVersion = "dev"

// instrumentationPrefix namespaces the tracers handed out by Tracer.
const instrumentationPrefix = "github.com/tbourn/go-qa-backend/"

// Span attribute keys for store operations.
const (
	AttrQuestionID  = attribute.Key("qa.question.id")
	AttrWindowStart = attribute.Key("qa.window.start")
	AttrWindowEnd   = attribute.Key("qa.window.end")
	AttrResultCount = attribute.Key("qa.result.count")
	AttrIdempotent  = attribute.Key("qa.idempotent")
	AttrReplayed    = attribute.Key("qa.replayed")
)

// Test seams.
var (
	newExporterFn = func(ctx context.Context, cfg config.OTELConfig) (sdktrace.SpanExporter, error) {
		opts := []otlptracegrpc.Option{otlptracegrpc.WithEndpoint(cfg.Endpoint)}
		if cfg.Insecure {
			opts = append(opts, otlptracegrpc.WithInsecure())
		} else {
			opts = append(opts, otlptracegrpc.WithTLSCredentials(credentials.NewClientTLSFromCert(nil, "")))
		}
		return otlptrace.New(ctx, otlptracegrpc.NewClient(opts...))
	}

	newServiceResourceFn = func(ctx context.Context, serviceName, version string) (*resource.Resource, error) {
		return resource.New(
			ctx,
			resource.WithAttributes(
				semconv.ServiceName(serviceName),
				semconv.ServiceVersion(version),
			),
		)
	}
)

// Tracer returns the tracer for a component, e.g. Tracer("services/questions").
// It reads the global provider on every call, so it picks up SetupOTel.
func Tracer(component string) trace.Tracer {
	return otel.Tracer(instrumentationPrefix + component)
}

// SetupOTel installs an OTLP/gRPC tracer provider and the W3C trace-context
// and baggage propagators, and returns its shutdown function. When tracing is
// disabled nothing is installed and shutdown is a no-op. On error the globals
// are left untouched.
func SetupOTel(ctx context.Context, cfg config.OTELConfig, version string) (func(context.Context) error, error) {
	if !cfg.Enabled {
		return func(context.Context) error { return nil }, nil
	}
	if version == "" {
		version = defaultVersion
	}

	exp, err := newExporterFn(ctx, cfg)
	if err != nil {
		return nil, err
	}
	res, err := newServiceResourceFn(ctx, cfg.ServiceName, version)
	if err != nil {
		_ = exp.Shutdown(ctx)
		return nil, err
	}

	tp := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exp),
		sdktrace.WithSampler(sampler(cfg.SampleRatio)),
		sdktrace.WithResource(res),
	)
	otel.SetTracerProvider(tp)
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{}, propagation.Baggage{},
	))

	log.Info().
		Str("endpoint", cfg.Endpoint).
		Str("service", cfg.ServiceName).
		Str("version", version).
		Float64("sample_ratio", cfg.SampleRatio).
		Msg("otel tracing enabled")

	return tp.Shutdown, nil
}

// sampler honors a parent's decision and samples roots by ratio. Ratios at or
// beyond the [0, 1] bounds pick the constant samplers.
func sampler(ratio float64) sdktrace.Sampler {
	switch {
	case ratio >= 1:
		return sdktrace.ParentBased(sdktrace.AlwaysSample())
	case ratio <= 0:
		return sdktrace.ParentBased(sdktrace.NeverSample())
	default:
		return sdktrace.ParentBased(sdktrace.TraceIDRatioBased(ratio))
	}
}

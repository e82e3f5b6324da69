// Package tracing installs the OpenTelemetry tracer provider of the item
// store server and instruments its HTTP routes.
package tracing

import (
	"context"
	"log/slog"

	"github.com/labstack/echo/v4"
	"go.opentelemetry.io/contrib/instrumentation/github.com/labstack/echo/otelecho"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
	"go.opentelemetry.io/otel/trace/noop"
	"go.uber.org/fx"

	"github.com/BobSilent/aggregator-cli/internal/config"
	"github.com/BobSilent/aggregator-cli/pkg/logger"
)

// Module installs a TracerProvider (OTLP or no-op) and registers the Echo
// middleware.
var Module = fx.Module("tracing",
	fx.Provide(NewTracerProvider),
	fx.Invoke(RegisterTracingLifecycle),
	fx.Invoke(RegisterEchoMiddleware),
)

// ProviderResult exposes the SDK provider, nil when tracing is disabled.
type ProviderResult struct {
	fx.Out

	SDKProvider *sdktrace.TracerProvider `name:"otelSDKProvider"`
}

// NewTracerProvider creates and globally registers a TracerProvider and
// the W3C trace context propagator, so spans started by batch saves on the
// client continue on the server.
func NewTracerProvider(cfg *config.Config, log *slog.Logger) (ProviderResult, error) {
	oc := cfg.Otel
	log = log.With(logger.Scope("tracing"))

	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{},
		propagation.Baggage{},
	))

	if !oc.Enabled() {
		log.Info("tracing disabled (OTEL_EXPORTER_OTLP_ENDPOINT not set)")
		otel.SetTracerProvider(noop.NewTracerProvider())
		return ProviderResult{}, nil
	}

	tp, err := newSDKProvider(context.Background(), cfg, log)
	if err != nil {
		return ProviderResult{}, err
	}
	otel.SetTracerProvider(tp)

	log.Info("tracing enabled",
		slog.String("endpoint", oc.ExporterEndpoint),
		slog.String("service", oc.ServiceName),
		slog.Float64("sampling_rate", oc.SamplingRate),
	)
	return ProviderResult{SDKProvider: tp}, nil
}

// newSDKProvider exports batches over OTLP/HTTP. Spans of requests that
// arrive with a sampled parent are always kept.
func newSDKProvider(ctx context.Context, cfg *config.Config, log *slog.Logger) (*sdktrace.TracerProvider, error) {
	oc := cfg.Otel
	exp, err := otlptracehttp.New(ctx, otlptracehttp.WithEndpointURL(oc.ExporterEndpoint))
	if err != nil {
		return nil, err
	}

	res, err := resource.New(ctx,
		resource.WithSchemaURL(semconv.SchemaURL),
		resource.WithAttributes(
			semconv.ServiceName(oc.ServiceName),
			semconv.DeploymentEnvironment(cfg.Environment),
		),
		resource.WithFromEnv(),
	)
	if err != nil {
		log.Warn("resource detection failed", logger.Error(err))
		res = resource.Empty()
	}

	return sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exp),
		sdktrace.WithResource(res),
		sdktrace.WithSampler(sdktrace.ParentBased(sdktrace.TraceIDRatioBased(oc.SamplingRate))),
	), nil
}

type sdkProviderParam struct {
	fx.In

	SDKProvider *sdktrace.TracerProvider `name:"otelSDKProvider" optional:"true"`
}

// RegisterTracingLifecycle flushes and shuts the SDK provider down on stop.
func RegisterTracingLifecycle(lc fx.Lifecycle, p sdkProviderParam) {
	if p.SDKProvider == nil {
		return
	}
	lc.Append(fx.Hook{
		OnStop: p.SDKProvider.Shutdown,
	})
}

// RegisterEchoMiddleware traces every request except health and metrics.
func RegisterEchoMiddleware(e *echo.Echo, cfg *config.Config) {
	if !cfg.Otel.Enabled() {
		return
	}
	e.Use(Middleware(cfg.Otel.ServiceName))
}

// Middleware returns the otelecho middleware used by the server.
func Middleware(service string) echo.MiddlewareFunc {
	return otelecho.Middleware(service,
		otelecho.WithSkipper(func(c echo.Context) bool {
			p := c.Request().URL.Path
			return p == "/health" || p == "/metrics"
		}),
	)
}

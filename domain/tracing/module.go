// Package tracing installs the OpenTelemetry provider that the store spans
// from pkg/tracing report to.
package tracing

import (
	"context"
	"log/slog"

	"github.com/labstack/echo/v4"
	"go.opentelemetry.io/contrib/instrumentation/github.com/labstack/echo/otelecho"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
	"go.opentelemetry.io/otel/trace/noop"
	"go.uber.org/fx"

	"github.com/emergent-company/dualstore/internal/config"
	"github.com/emergent-company/dualstore/internal/version"
	"github.com/emergent-company/dualstore/pkg/logger"
)

var Module = fx.Module("tracing",
	fx.Provide(NewTracerProvider),
	fx.Invoke(RegisterTracingLifecycle),
	fx.Invoke(RegisterEchoMiddleware),
)

type providerOut struct {
	fx.Out

	// nil when export is disabled
	SDKProvider *sdktrace.TracerProvider `name:"otelSDKProvider" optional:"true"`
}

type providerIn struct {
	fx.In

	SDKProvider *sdktrace.TracerProvider `name:"otelSDKProvider" optional:"true"`
}

// NewTracerProvider registers the global provider. Without an OTLP endpoint
// a no-op provider is installed and router/sync spans cost nothing.
func NewTracerProvider(cfg *config.Config, log *slog.Logger) (providerOut, error) {
	log = log.With(logger.Scope("tracing"))
	oc := cfg.Otel

	if !oc.Enabled() {
		log.Info("span export disabled (OTEL_EXPORTER_OTLP_ENDPOINT not set)")
		otel.SetTracerProvider(noop.NewTracerProvider())
		return providerOut{}, nil
	}

	exp, err := otlptracehttp.New(context.Background(),
		otlptracehttp.WithEndpointURL(oc.ExporterEndpoint),
		otlptracehttp.WithInsecure(),
	)
	if err != nil {
		return providerOut{}, err
	}

	tp := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exp),
		sdktrace.WithResource(newResource(oc.ServiceName, log)),
		sdktrace.WithSampler(newSampler(oc.SamplingRate)),
	)
	otel.SetTracerProvider(tp)

	log.Info("span export enabled",
		slog.String("endpoint", oc.ExporterEndpoint),
		slog.String("service", oc.ServiceName),
		slog.Float64("sampling_rate", oc.SamplingRate),
	)
	return providerOut{SDKProvider: tp}, nil
}

func newResource(service string, log *slog.Logger) *resource.Resource {
	res, err := resource.New(context.Background(),
		resource.WithSchemaURL(semconv.SchemaURL),
		resource.WithAttributes(
			semconv.ServiceName(service),
			semconv.ServiceVersion(version.Current().Version),
		),
		resource.WithFromEnv(),
		resource.WithProcess(),
	)
	if err != nil {
		log.Warn("resource detection failed, exporting without resource", logger.Error(err))
		return resource.Empty()
	}
	return res
}

// newSampler keeps whole traces together: the ratio applies to roots and
// children follow their parent.
func newSampler(rate float64) sdktrace.Sampler {
	if rate >= 1 {
		return sdktrace.ParentBased(sdktrace.AlwaysSample())
	}
	if rate <= 0 {
		return sdktrace.ParentBased(sdktrace.NeverSample())
	}
	return sdktrace.ParentBased(sdktrace.TraceIDRatioBased(rate))
}

// RegisterTracingLifecycle flushes pending spans on shutdown.
func RegisterTracingLifecycle(lc fx.Lifecycle, p providerIn, log *slog.Logger) {
	if p.SDKProvider == nil {
		return
	}
	lc.Append(fx.Hook{
		OnStop: func(ctx context.Context) error {
			log.Info("flushing spans", logger.Scope("tracing"))
			return p.SDKProvider.Shutdown(ctx)
		},
	})
}

// RegisterEchoMiddleware opens a server span per request so the router and
// sync spans nest under it.
func RegisterEchoMiddleware(e *echo.Echo, cfg *config.Config) {
	if !cfg.Otel.Enabled() {
		return
	}
	e.Use(otelecho.Middleware(cfg.Otel.ServiceName, otelecho.WithSkipper(skipTracing)))
}

// skipTracing drops probe and scrape traffic.
func skipTracing(c echo.Context) bool {
	switch c.Request().URL.Path {
	case "/health", "/healthz", "/ready", "/metrics", "/api/metrics/stores":
		return true
	}
	return false
}

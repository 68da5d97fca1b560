package otelcol

import (
	"context"

	"promptcron/pkg/config"
	"promptcron/pkg/otelcol/exporters"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	otelprom "go.opentelemetry.io/otel/exporters/prometheus"
	otelmetric "go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	"go.opentelemetry.io/otel/sdk/trace"
	oteltrace "go.opentelemetry.io/otel/trace"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

// Module installs the global tracer and meter providers. Spans are exported
// over OTLP when OTEL.ADDR is set; metrics are always readable on /metrics.
var Module = fx.Module("otelcol",
	fx.Provide(
		provideTracerProvider,
		provideMeterProvider,
	),
)

func serviceResource(cfg *config.Config) *resource.Resource {
	res, err := resource.Merge(resource.Default(), resource.NewSchemaless(
		attribute.String("service.name", cfg.AppName),
		attribute.String("service.version", cfg.AppVersion),
		attribute.String("deployment.environment", cfg.AppEnv),
	))
	if err != nil {
		return resource.Default()
	}
	return res
}

func ProvideTrace(exporter trace.SpanExporter, opts ...trace.TracerProviderOption) *trace.TracerProvider {
	if len(opts) == 0 {
		opts = []trace.TracerProviderOption{trace.WithResource(resource.Default())}
	}

	opts = append(opts, trace.WithBatcher(exporter))

	return trace.NewTracerProvider(opts...)
}

func ProvideMetric(reader metric.Reader, opts ...metric.Option) *metric.MeterProvider {
	if len(opts) == 0 {
		opts = []metric.Option{metric.WithResource(resource.Default())}
	}

	opts = append(opts, metric.WithReader(reader))

	return metric.NewMeterProvider(opts...)
}

func provideTracerProvider(lc fx.Lifecycle, cfg *config.Config) (oteltrace.TracerProvider, error) {
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(propagation.TraceContext{}, propagation.Baggage{}))

	if cfg.Otel.Addr == "" {
		zap.L().Info("OTEL.ADDR not set, traces are not exported")
		return otel.GetTracerProvider(), nil
	}

	exporter, err := exporters.Provide(cfg)
	if err != nil {
		return nil, err
	}

	tp := ProvideTrace(exporter, trace.WithResource(serviceResource(cfg)))
	otel.SetTracerProvider(tp)

	lc.Append(fx.Hook{
		OnStop: func(ctx context.Context) error {
			return tp.Shutdown(ctx)
		},
	})
	return tp, nil
}

func provideMeterProvider(lc fx.Lifecycle, cfg *config.Config) (otelmetric.MeterProvider, error) {
	reader, err := otelprom.New()
	if err != nil {
		return nil, err
	}

	mp := ProvideMetric(reader, metric.WithResource(serviceResource(cfg)))
	otel.SetMeterProvider(mp)

	lc.Append(fx.Hook{
		OnStop: func(ctx context.Context) error {
			return mp.Shutdown(ctx)
		},
	})
	return mp, nil
}

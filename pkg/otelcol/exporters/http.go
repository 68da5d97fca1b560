package exporters

import (
	"context"
	"time"

	"promptcron/pkg/config"

	"go.opentelemetry.io/otel/exporters/otlp/otlptrace"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
)

func ProvideHttp(cfg *config.Config) (*otlptrace.Exporter, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	opts := []otlptracehttp.Option{
		otlptracehttp.WithCompression(otlptracehttp.GzipCompression),
		otlptracehttp.WithEndpoint(cfg.Otel.Addr),
	}
	if cfg.Otel.Insecure {
		opts = append(opts, otlptracehttp.WithInsecure())
	}

	return otlptrace.New(ctx, otlptracehttp.NewClient(opts...))
}

// Provide picks the OTLP transport named by OTEL.PROTOCOL.
func Provide(cfg *config.Config) (*otlptrace.Exporter, error) {
	if cfg.Otel.Protocol == "http" {
		return ProvideHttp(cfg)
	}
	return ProvideGrpc(cfg)
}

package otelcol

import (
	"context"

	"cashback-ranking/pkg/config"
	"cashback-ranking/pkg/otelcol/exporters"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/sdk/resource"
	"go.opentelemetry.io/otel/sdk/trace"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

// Module installs the global tracer provider. Without OTEL.ADDR spans stay
// on the default no-op provider.
var Module = fx.Module("otelcol", fx.Invoke(RegisterTracing))

func defaultTraceProviderOption(cfg *config.Config) []trace.TracerProviderOption {
	res, err := resource.Merge(resource.Default(), resource.NewSchemaless(
		attribute.String("service.name", cfg.AppName),
		attribute.String("service.version", cfg.AppVersion),
		attribute.String("deployment.environment", cfg.AppEnv),
	))
	if err != nil {
		res = resource.Default()
	}
	return []trace.TracerProviderOption{
		trace.WithResource(res),
	}
}

func ProvideTrace(exporter trace.SpanExporter, opts ...trace.TracerProviderOption) *trace.TracerProvider {
	opts = append(opts, trace.WithBatcher(exporter))
	return trace.NewTracerProvider(opts...)
}

func RegisterTracing(lc fx.Lifecycle, cfg *config.Config) error {
	if cfg.Otel.Addr == "" {
		zap.L().Info("[Otel] tracing exporter disabled")
		return nil
	}

	exporter, err := exporters.ProvideGrpc(cfg)
	if err != nil {
		zap.L().Error("[Otel] failed to create exporter", zap.Error(err))
		return err
	}

	tp := ProvideTrace(exporter, defaultTraceProviderOption(cfg)...)
	otel.SetTracerProvider(tp)
	zap.L().Info("[Otel] tracing enabled", zap.String("addr", cfg.Otel.Addr))

	lc.Append(fx.Hook{
		OnStop: func(ctx context.Context) error {
			return tp.Shutdown(ctx)
		},
	})
	return nil
}

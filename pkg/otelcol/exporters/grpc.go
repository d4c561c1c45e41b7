package exporters

import (
	"context"
	"time"

	"cashback-ranking/pkg/config"

	"go.opentelemetry.io/otel/exporters/otlp/otlptrace"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
)

func ProvideGrpc(cfg *config.Config) (*otlptrace.Exporter, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	client := otlptracegrpc.NewClient(
		otlptracegrpc.WithCompressor("gzip"),
		otlptracegrpc.WithEndpoint(cfg.Otel.Addr),
		otlptracegrpc.WithInsecure(),
	)

	return otlptrace.New(ctx, client)
}

// Package tracing подключает OpenTelemetry с экспортом в Jaeger.
package tracing

import (
	"context"
	"fmt"
	"os"

	"shopbot/internal/config"
	"shopbot/internal/logger"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/jaeger"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
	"go.uber.org/zap"
)

// Shutdown дожидается отправки накопленных спанов.
type Shutdown func(ctx context.Context) error

func noop(context.Context) error { return nil }

// Init регистрирует глобальный TracerProvider. При выключенной трассировке
// провайдер остается no-op, а Shutdown ничего не делает.
func Init(serviceName string, cfg config.TracingConfig) (Shutdown, error) {
	if !cfg.Enabled {
		return noop, nil
	}

	exporter, err := jaeger.New(jaeger.WithCollectorEndpoint(jaeger.WithEndpoint(cfg.Endpoint)))
	if err != nil {
		return noop, fmt.Errorf("jaeger-экспортер: %w", err)
	}

	host, _ := os.Hostname()
	res := resource.NewWithAttributes(
		semconv.SchemaURL,
		semconv.ServiceName(serviceName),
		attribute.String("host.name", host),
	)

	ratio := cfg.SampleRatio
	if ratio <= 0 || ratio > 1 {
		ratio = 1
	}
	tp := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter),
		sdktrace.WithResource(res),
		sdktrace.WithSampler(sdktrace.ParentBased(sdktrace.TraceIDRatioBased(ratio))),
	)

	otel.SetTracerProvider(tp)
	// Контекст трассировки передается в заголовках HTTP (W3C Trace Context).
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(propagation.TraceContext{}, propagation.Baggage{}))

	logger.L.Info("Трассировка включена",
		zap.String("endpoint", cfg.Endpoint),
		zap.Float64("sample_ratio", ratio))

	return tp.Shutdown, nil
}

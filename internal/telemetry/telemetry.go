package telemetry

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/stdout/stdoutmetric"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	"go.opentelemetry.io/otel/metric"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.24.0"
	"go.opentelemetry.io/otel/trace"
	lumberjack "gopkg.in/natefinch/lumberjack.v2"
)

// ServiceName identifies this process in traces and metrics.
const ServiceName = "chat-gateway"

// Config controls the OpenTelemetry exporters.
type Config struct {
	Enabled        bool          `env:"TELEMETRY_ENABLED" envDefault:"false"`
	Dir            string        `env:"TELEMETRY_DIR" envDefault:"logs"`
	ExportInterval time.Duration `env:"TELEMETRY_EXPORT_INTERVAL" envDefault:"10s"`
}

// Init sets up tracing and metrics. Traces and metrics are written to rotated
// files under cfg.Dir. When telemetry is disabled the global no-op providers
// are returned together with a no-op shutdown.
func Init(ctx context.Context, cfg Config, logger *slog.Logger) (trace.Tracer, metric.Meter, func(), error) {
	if !cfg.Enabled {
		return otel.Tracer(ServiceName), otel.Meter(ServiceName), func() {}, nil
	}

	res, err := resource.New(ctx,
		resource.WithAttributes(
			semconv.ServiceName(ServiceName),
		),
	)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("failed to create resource: %w", err)
	}

	if err := os.MkdirAll(cfg.Dir, 0o755); err != nil {
		return nil, nil, nil, fmt.Errorf("failed to create telemetry directory: %w", err)
	}

	traceFile := rotatingFile(filepath.Join(cfg.Dir, "gateway_traces.log"))
	traceExporter, err := stdouttrace.New(stdouttrace.WithWriter(traceFile))
	if err != nil {
		return nil, nil, nil, fmt.Errorf("failed to create trace exporter: %w", err)
	}

	tp := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(traceExporter),
		sdktrace.WithResource(res),
	)
	otel.SetTracerProvider(tp)

	metricsFile := rotatingFile(filepath.Join(cfg.Dir, "gateway_metrics.log"))
	metricExporter, err := stdoutmetric.New(stdoutmetric.WithWriter(metricsFile))
	if err != nil {
		return nil, nil, nil, fmt.Errorf("failed to create metric exporter: %w", err)
	}

	interval := cfg.ExportInterval
	if interval <= 0 {
		interval = 10 * time.Second
	}

	mp := sdkmetric.NewMeterProvider(
		sdkmetric.WithReader(sdkmetric.NewPeriodicReader(metricExporter, sdkmetric.WithInterval(interval))),
		sdkmetric.WithResource(res),
	)
	otel.SetMeterProvider(mp)

	shutdown := func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := tp.Shutdown(ctx); err != nil {
			logger.Error("failed to shutdown tracer provider", "error", err)
		}
		if err := mp.Shutdown(ctx); err != nil {
			logger.Error("failed to shutdown meter provider", "error", err)
		}
		if err := traceFile.Close(); err != nil {
			logger.Error("failed to close trace file", "error", err)
		}
		if err := metricsFile.Close(); err != nil {
			logger.Error("failed to close metrics file", "error", err)
		}
	}

	return tp.Tracer(ServiceName), mp.Meter(ServiceName), shutdown, nil
}

func rotatingFile(name string) *lumberjack.Logger {
	return &lumberjack.Logger{
		Filename:   name,
		MaxSize:    10, // MB
		MaxBackups: 3,
		MaxAge:     28,
		Compress:   true,
	}
}

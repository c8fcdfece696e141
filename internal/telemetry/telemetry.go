// Package telemetry wires structured logging and tracing for the copilot.
package telemetry

import (
	"context"
	"log/slog"
	"path/filepath"
	"strings"

	"github.com/pkg/errors"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.24.0"
	"go.opentelemetry.io/otel/trace"
	lumberjack "gopkg.in/natefinch/lumberjack.v2"

	"github.com/finlens/copilot/internal/file"
)

// InitLogger initializes structured logging with rotation. Logs go to the
// file only, keeping stdout free for chat output.
func InitLogger(logPath string) (*slog.Logger, error) {
	if err := file.CreateDirectoryIfNotExist(filepath.Dir(logPath)); err != nil {
		return nil, errors.Wrap(err, "creating log directory")
	}

	lumberjackLogger := &lumberjack.Logger{
		Filename:   logPath,
		MaxSize:    10, // 10 MB
		MaxBackups: 3,
		MaxAge:     28,
		Compress:   true,
	}

	handler := slog.NewJSONHandler(lumberjackLogger, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	})

	logger := slog.New(handler)
	slog.SetDefault(logger)
	return logger, nil
}

// InitTracing initializes an OpenTelemetry tracer whose spans are written to
// a rotated file next to the log file. Returns the tracer and a shutdown
// function.
func InitTracing(ctx context.Context, logPath string) (trace.Tracer, func(), error) {
	res, err := resource.New(ctx,
		resource.WithAttributes(
			semconv.ServiceName("copilot"),
			semconv.ServiceVersion("1.0"),
		),
	)
	if err != nil {
		return nil, nil, errors.Wrap(err, "creating resource")
	}

	traceFile := &lumberjack.Logger{
		Filename:   strings.TrimSuffix(logPath, filepath.Ext(logPath)) + "_traces.log",
		MaxSize:    10, // 10 MB
		MaxBackups: 3,
		MaxAge:     28,
		Compress:   true,
	}
	traceExporter, err := stdouttrace.New(
		stdouttrace.WithWriter(traceFile),
	)
	if err != nil {
		return nil, nil, errors.Wrap(err, "creating trace exporter")
	}

	tracerProvider := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(traceExporter),
		sdktrace.WithResource(res),
	)
	otel.SetTracerProvider(tracerProvider)

	shutdown := func() {
		_ = tracerProvider.Shutdown(context.Background())
	}
	return tracerProvider.Tracer("copilot"), shutdown, nil
}

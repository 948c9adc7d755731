package cli

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/chainguard-dev/clog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
)

// setupLogging attaches a clog.Logger to ctx, formatted and leveled per
// opts. Grounded on the teacher's cmd/melange-server main.go, which builds
// its logger the same way (slog handler wrapped by clog.New) but with a
// fixed level and format; here both are CLI-selectable.
func setupLogging(ctx context.Context, opts GlobalOptions) (context.Context, error) {
	var level slog.Level
	switch opts.LogLevel {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	case "", "info":
		level = slog.LevelInfo
	default:
		return ctx, fmt.Errorf("unknown --log-level %q", opts.LogLevel)
	}

	handlerOpts := &slog.HandlerOptions{Level: level}
	var handler slog.Handler
	switch opts.LogFormat {
	case "", "text":
		handler = slog.NewTextHandler(os.Stderr, handlerOpts)
	case "json":
		handler = slog.NewJSONHandler(os.Stderr, handlerOpts)
	default:
		return ctx, fmt.Errorf("unknown --log-format %q", opts.LogFormat)
	}

	logger := clog.New(handler)
	return clog.WithLogger(ctx, logger), nil
}

// setupTracing optionally writes OpenTelemetry spans as JSON lines to
// traceFile, used to inspect scheduler fan-out timing. Returns a shutdown
// func that must be called (flushing the exporter) before the process
// exits; it is a no-op when traceFile is empty.
func setupTracing(ctx context.Context, traceFile string) (shutdown func(context.Context) error, err error) {
	if traceFile == "" {
		return func(context.Context) error { return nil }, nil
	}

	f, err := os.Create(traceFile)
	if err != nil {
		return nil, fmt.Errorf("creating trace file %s: %w", traceFile, err)
	}

	exporter, err := stdouttrace.New(stdouttrace.WithWriter(f))
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("creating trace exporter: %w", err)
	}

	tp := sdktrace.NewTracerProvider(sdktrace.WithBatcher(exporter))
	otel.SetTracerProvider(tp)

	return func(shutdownCtx context.Context) error {
		if err := tp.Shutdown(shutdownCtx); err != nil {
			return err
		}
		return f.Close()
	}, nil
}

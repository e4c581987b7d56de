// Package observability wires the process-wide slog pipeline: stdout handlers
// for human consumption, an optional OpenTelemetry log export path, and trace
// correlation attributes on every record.
package observability

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"strings"
)

// ShutdownFunc flushes and releases logging resources. Safe to call once
// during process teardown.
type ShutdownFunc func(context.Context) error

// Instrument installs the default slog logger. Format selects the stdout
// handler (text or json). When otlpEndpoint is non-empty, records are
// additionally exported through the OpenTelemetry log pipeline; the special
// value "stdout" uses the debug stdout exporter.
func Instrument(ctx context.Context, level slog.Level, format, otlpEndpoint string) (ShutdownFunc, error) {
	stdoutHandler, err := newStdoutHandler(level, format)
	if err != nil {
		return nil, err
	}

	handler := stdoutHandler
	shutdown := ShutdownFunc(func(context.Context) error { return nil })

	if otlpEndpoint != "" {
		otelHandler, otelShutdown, err := newOTelHandler(ctx, level, otlpEndpoint)
		if err != nil {
			return nil, fmt.Errorf("setting up otel log export: %w", err)
		}
		handler = newFanoutHandler(stdoutHandler, otelHandler)
		shutdown = otelShutdown
	}

	slog.SetDefault(slog.New(newTraceContextHandler(handler)))

	return shutdown, nil
}

// newStdoutHandler creates a handler for human-readable logs.
func newStdoutHandler(level slog.Level, format string) (slog.Handler, error) {
	opts := &slog.HandlerOptions{
		Level: level,
	}

	switch strings.ToLower(format) {
	case "json":
		return slog.NewJSONHandler(os.Stdout, opts), nil
	case "text":
		return slog.NewTextHandler(os.Stdout, opts), nil
	default:
		return nil, fmt.Errorf("unsupported log format %q (expected: json, text)", format)
	}
}

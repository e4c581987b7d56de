package observability

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"go.opentelemetry.io/contrib/bridges/otelslog"
	"go.opentelemetry.io/contrib/processors/minsev"
	"go.opentelemetry.io/otel/exporters/otlp/otlplog/otlploggrpc"
	"go.opentelemetry.io/otel/exporters/otlp/otlplog/otlploghttp"
	"go.opentelemetry.io/otel/exporters/stdout/stdoutlog"
	sdklog "go.opentelemetry.io/otel/sdk/log"
)

// newOTelHandler builds a slog handler backed by the OpenTelemetry log SDK.
// Endpoint selects the exporter: "stdout" for the debug exporter, an
// http(s):// URL for OTLP/HTTP, anything else is treated as an OTLP/gRPC
// host:port target.
func newOTelHandler(ctx context.Context, level slog.Level, endpoint string) (slog.Handler, ShutdownFunc, error) {
	exporter, err := newLogExporter(ctx, endpoint)
	if err != nil {
		return nil, nil, err
	}

	// Severity filtering happens in the processor chain so the stdout handler
	// and the export path share one level configuration.
	processor := minsev.NewLogProcessor(
		sdklog.NewBatchProcessor(exporter),
		minSeverity(level),
	)

	provider := sdklog.NewLoggerProvider(sdklog.WithProcessor(processor))

	handler := otelslog.NewHandler("nightvault",
		otelslog.WithLoggerProvider(provider),
	)

	return handler, provider.Shutdown, nil
}

// newLogExporter creates the exporter matching the endpoint scheme.
func newLogExporter(ctx context.Context, endpoint string) (sdklog.Exporter, error) {
	switch {
	case endpoint == "stdout":
		exporter, err := stdoutlog.New()
		if err != nil {
			return nil, fmt.Errorf("creating stdout log exporter: %w", err)
		}
		return exporter, nil
	case strings.HasPrefix(endpoint, "http://"), strings.HasPrefix(endpoint, "https://"):
		exporter, err := otlploghttp.New(ctx, otlploghttp.WithEndpointURL(endpoint))
		if err != nil {
			return nil, fmt.Errorf("creating otlp http log exporter: %w", err)
		}
		return exporter, nil
	default:
		exporter, err := otlploggrpc.New(ctx,
			otlploggrpc.WithEndpoint(endpoint),
			otlploggrpc.WithInsecure(),
		)
		if err != nil {
			return nil, fmt.Errorf("creating otlp grpc log exporter: %w", err)
		}
		return exporter, nil
	}
}

// minSeverity maps a slog level to the minsev severity gate.
func minSeverity(level slog.Level) minsev.Severity {
	switch {
	case level <= slog.LevelDebug:
		return minsev.SeverityDebug
	case level <= slog.LevelInfo:
		return minsev.SeverityInfo
	case level <= slog.LevelWarn:
		return minsev.SeverityWarn
	default:
		return minsev.SeverityError
	}
}

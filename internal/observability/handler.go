package observability

import (
	"context"
	"errors"
	"log/slog"

	"go.opentelemetry.io/otel/trace"
)

// traceContextHandler enriches log records with OpenTelemetry trace
// correlation attributes (trace_id and span_id) so logs can be joined with
// distributed traces.
type traceContextHandler struct {
	handler slog.Handler
}

// newTraceContextHandler creates a handler that adds trace context to log records.
func newTraceContextHandler(handler slog.Handler) *traceContextHandler {
	return &traceContextHandler{handler: handler}
}

// Enabled reports whether the handler handles records at the given level.
func (h *traceContextHandler) Enabled(ctx context.Context, level slog.Level) bool {
	return h.handler.Enabled(ctx, level)
}

// Handle adds trace_id and span_id when trace context is present.
func (h *traceContextHandler) Handle(ctx context.Context, record slog.Record) error {
	spanCtx := trace.SpanContextFromContext(ctx)
	if spanCtx.IsValid() {
		record.AddAttrs(
			slog.String("trace_id", spanCtx.TraceID().String()),
			slog.String("span_id", spanCtx.SpanID().String()),
		)
	}

	return h.handler.Handle(ctx, record)
}

// WithAttrs returns a new handler with additional attributes.
func (h *traceContextHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return &traceContextHandler{handler: h.handler.WithAttrs(attrs)}
}

// WithGroup returns a new handler with the given group name.
func (h *traceContextHandler) WithGroup(name string) slog.Handler {
	return &traceContextHandler{handler: h.handler.WithGroup(name)}
}

// fanoutHandler duplicates records to multiple handlers. A record is handled
// when at least one target accepts its level.
type fanoutHandler struct {
	handlers []slog.Handler
}

// newFanoutHandler creates a handler that fans records out to all targets.
func newFanoutHandler(handlers ...slog.Handler) *fanoutHandler {
	return &fanoutHandler{handlers: handlers}
}

// Enabled reports whether any target handles records at the given level.
func (h *fanoutHandler) Enabled(ctx context.Context, level slog.Level) bool {
	for _, target := range h.handlers {
		if target.Enabled(ctx, level) {
			return true
		}
	}
	return false
}

// Handle delivers the record to every enabled target, joining failures.
func (h *fanoutHandler) Handle(ctx context.Context, record slog.Record) error {
	var errs []error
	for _, target := range h.handlers {
		if !target.Enabled(ctx, record.Level) {
			continue
		}
		if err := target.Handle(ctx, record.Clone()); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// WithAttrs returns a new handler with additional attributes on all targets.
func (h *fanoutHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	targets := make([]slog.Handler, len(h.handlers))
	for i, target := range h.handlers {
		targets[i] = target.WithAttrs(attrs)
	}
	return &fanoutHandler{handlers: targets}
}

// WithGroup returns a new handler with the given group name on all targets.
func (h *fanoutHandler) WithGroup(name string) slog.Handler {
	targets := make([]slog.Handler, len(h.handlers))
	for i, target := range h.handlers {
		targets[i] = target.WithGroup(name)
	}
	return &fanoutHandler{handlers: targets}
}

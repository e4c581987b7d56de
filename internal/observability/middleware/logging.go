package middleware

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/httplog/v3"
)

// Logging logs HTTP requests with method, path, status, and duration.
func Logging(logger *slog.Logger) func(http.Handler) http.Handler {
	return httplog.RequestLogger(logger, &httplog.Options{
		Schema: httplog.SchemaECS.Concise(true),

		// The status API never needs payload logging; keep headers minimal so
		// nothing token-shaped reaches the logs.
		LogRequestHeaders:  []string{"Content-Type"},
		LogResponseHeaders: []string{},
		LogRequestBody:     nil,
		LogResponseBody:    nil,

		RecoverPanics: false, // dedicated Recovery middleware handles panics
	})
}

// SetLogAttrs sets attributes on the request log.
func SetLogAttrs(ctx context.Context, attrs ...slog.Attr) {
	httplog.SetAttrs(ctx, attrs...)
}

// Package middleware carries the HTTP plumbing shared by every marketplace
// route: request-scoped logging and per-route request metrics.
package middleware

import (
	"context"
	"net/http"

	"github.com/gorilla/mux"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

type requestLoggerKey struct{}

// WithRequestLogger stashes a request-scoped logger in the context. The
// logger carries the mux route template plus the active trace and span IDs,
// so handler log lines can be joined against traces and per-route dashboards.
func WithRequestLogger(base *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			logger := base
			if route := mux.CurrentRoute(r); route != nil {
				if tmpl, err := route.GetPathTemplate(); err == nil {
					logger = logger.With(zap.String("route", tmpl))
				}
			}
			logger = withSpanFields(r.Context(), logger)
			ctx := context.WithValue(r.Context(), requestLoggerKey{}, logger)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func withSpanFields(ctx context.Context, logger *zap.Logger) *zap.Logger {
	sc := trace.SpanFromContext(ctx).SpanContext()
	if !sc.IsValid() {
		return logger
	}
	return logger.With(
		zap.String("trace_id", sc.TraceID().String()),
		zap.String("span_id", sc.SpanID().String()),
	)
}

// LoggerFromContext returns the request-scoped logger, or the fallback
// annotated with the active span when the middleware did not run.
func LoggerFromContext(ctx context.Context, fallback *zap.Logger) *zap.Logger {
	if logger, ok := ctx.Value(requestLoggerKey{}).(*zap.Logger); ok {
		return logger
	}
	return withSpanFields(ctx, fallback)
}

// LoggerFromRequest is shorthand for LoggerFromContext on the request context.
func LoggerFromRequest(r *http.Request, fallback *zap.Logger) *zap.Logger {
	return LoggerFromContext(r.Context(), fallback)
}

package slogx

import (
	"context"
	"log/slog"
)

type ctxKey struct{}

func WithContext(ctx context.Context, logger *slog.Logger) context.Context {
	return context.WithValue(ctx, ctxKey{}, logger)
}

func FromContext(ctx context.Context) *slog.Logger {
	l, ok := ctx.Value(ctxKey{}).(*slog.Logger)
	if !ok {
		return slog.Default()
	}
	return l
}

type reqIDKey struct{}

func WithRequestID(ctx context.Context, reqID string) context.Context {
	l := FromContext(ctx)
	ctx = context.WithValue(ctx, reqIDKey{}, reqID)
	return WithContext(ctx, l.With("req_id", reqID))
}

// RequestIDFromContext returns the request id attached by the HTTP
// middleware, or "" outside a request.
func RequestIDFromContext(ctx context.Context) string {
	id, _ := ctx.Value(reqIDKey{}).(string)
	return id
}

// CLAUDE:SUMMARY Transport-neutral Endpoint/Middleware types shared by the HTTP handlers and MCP tools, plus logging middleware.
// Package kit bridges docsight operations to their transports.
package kit

import (
	"context"
	"log/slog"
	"time"
)

// Endpoint is one operation, independent of transport.
type Endpoint func(ctx context.Context, req any) (any, error)

// Middleware wraps an Endpoint.
type Middleware func(Endpoint) Endpoint

// Chain composes middlewares. The first one is the outermost.
func Chain(mws ...Middleware) Middleware {
	return func(next Endpoint) Endpoint {
		for i := len(mws) - 1; i >= 0; i-- {
			next = mws[i](next)
		}
		return next
	}
}

// Logging logs every call of the named operation at Debug, and failures at Warn.
func Logging(logger *slog.Logger, op string) Middleware {
	if logger == nil {
		logger = slog.Default()
	}
	return func(next Endpoint) Endpoint {
		return func(ctx context.Context, req any) (any, error) {
			start := time.Now()
			resp, err := next(ctx, req)
			c := CallFrom(ctx)
			attrs := []any{"op", op, "transport", c.Transport, "ms", time.Since(start).Milliseconds()}
			if c.RequestID != "" {
				attrs = append(attrs, "request_id", c.RequestID)
			}
			if err != nil {
				logger.Warn("kit: call failed", append(attrs, "error", err)...)
			} else {
				logger.Debug("kit: call", attrs...)
			}
			return resp, err
		}
	}
}

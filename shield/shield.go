// CLAUDE:SUMMARY HTTP middleware for the docsight service: security headers, request context, upload cap, per-IP rate limit, bcrypt API key.
// Package shield provides the HTTP middleware stack of the docsight service.
//
// Usage:
//
//	r := chi.NewRouter()
//	r.Use(middleware.RequestID)
//	for _, mw := range shield.DefaultStack(shield.StackConfig{MaxBody: 50 << 20}) {
//	    r.Use(mw)
//	}
package shield

import (
	"context"
	"log/slog"
	"net/http"
)

type contextKey string

// LoggerKey is the context key for the per-request structured logger.
const LoggerKey contextKey = "shield_logger"

// GetLogger retrieves the per-request logger from the context.
// Returns slog.Default() if no logger was set.
func GetLogger(ctx context.Context) *slog.Logger {
	if l, ok := ctx.Value(LoggerKey).(*slog.Logger); ok {
		return l
	}
	return slog.Default()
}

// StackConfig selects the optional parts of DefaultStack.
type StackConfig struct {
	// MaxBody caps request bodies; 0 disables the cap.
	MaxBody int64
	// APIKeyHash is a bcrypt hash; empty disables authentication.
	APIKeyHash string
	// Public paths skip authentication and rate limiting.
	Public []string
	// RateLimit applies per client IP; zero MaxRequests disables it.
	RateLimit RateLimitConfig
	Logger    *slog.Logger
}

// DefaultStack returns the middleware in order: security headers, request
// context, body cap, rate limit, API key. The rate limiter's GC goroutine
// stops when done is closed.
func DefaultStack(cfg StackConfig, done <-chan struct{}) ([]func(http.Handler) http.Handler, error) {
	stack := []func(http.Handler) http.Handler{
		SecurityHeaders(DefaultHeaders()),
		RequestContext(cfg.Logger),
	}
	if cfg.MaxBody > 0 {
		stack = append(stack, MaxUploadBody(cfg.MaxBody))
	}
	if cfg.RateLimit.MaxRequests > 0 {
		rl := NewRateLimiter(cfg.RateLimit, cfg.Public...)
		rl.StartGC(done)
		stack = append(stack, rl.Middleware)
	}
	if cfg.APIKeyHash != "" {
		mw, err := APIKey(cfg.APIKeyHash, cfg.Public...)
		if err != nil {
			return nil, err
		}
		stack = append(stack, mw)
	}
	return stack, nil
}

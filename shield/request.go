package shield

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5/middleware"

	"github.com/hazyhaar/docsight/kit"
)

// RequestContext copies chi's request ID into the kit context, echoes it
// as X-Request-ID, and stores a per-request logger under LoggerKey.
// Mount it after middleware.RequestID.
func RequestContext(base *slog.Logger) func(http.Handler) http.Handler {
	if base == nil {
		base = slog.Default()
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			reqID := middleware.GetReqID(r.Context())
			ip := ExtractIP(r)
			ctx := kit.WithCall(r.Context(), kit.Call{Transport: "http", RequestID: reqID, RemoteAddr: ip})
			if reqID != "" {
				w.Header().Set("X-Request-ID", reqID)
			}

			logger := base.With(
				"request_id", reqID,
				"method", r.Method,
				"path", r.URL.Path,
				"remote_addr", ip,
			)
			ctx = context.WithValue(ctx, LoggerKey, logger)
			logger.Debug("request")

			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// writeError writes the service's {error, code} JSON body.
func writeError(w http.ResponseWriter, status int, msg, code string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]string{"error": msg, "code": code})
}

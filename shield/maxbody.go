package shield

import "net/http"

// multipartOverhead leaves room for boundaries and form fields around a
// file of the maximum size.
const multipartOverhead = 1 << 20

// MaxUploadBody caps request bodies at maxBytes plus multipart overhead.
// Requests announcing a larger Content-Length are refused up front with 413;
// others fail when the handler reads past the cap.
func MaxUploadBody(maxBytes int64) func(http.Handler) http.Handler {
	limit := maxBytes + multipartOverhead
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.ContentLength > limit {
				writeError(w, http.StatusRequestEntityTooLarge, "request body too large", "IMAGE_TOO_LARGE")
				return
			}
			if r.Body != nil {
				r.Body = http.MaxBytesReader(w, r.Body, limit)
			}
			next.ServeHTTP(w, r)
		})
	}
}

package shield

import (
	"errors"
	"net/http"
	"strings"

	"golang.org/x/crypto/bcrypt"
)

// APIKey requires a key matching the bcrypt hash in the X-API-Key header
// or as a Bearer token. Paths with a public prefix pass unchecked.
func APIKey(hash string, public ...string) (func(http.Handler) http.Handler, error) {
	if _, err := bcrypt.Cost([]byte(hash)); err != nil {
		return nil, errors.New("shield: API key hash is not a bcrypt hash")
	}
	h := []byte(hash)
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if hasPrefix(r.URL.Path, public) {
				next.ServeHTTP(w, r)
				return
			}
			key := r.Header.Get("X-API-Key")
			if key == "" {
				if auth := r.Header.Get("Authorization"); strings.HasPrefix(auth, "Bearer ") {
					key = strings.TrimPrefix(auth, "Bearer ")
				}
			}
			if key == "" || bcrypt.CompareHashAndPassword(h, []byte(key)) != nil {
				GetLogger(r.Context()).Warn("shield: API key rejected")
				writeError(w, http.StatusUnauthorized, "invalid or missing API key", "UNAUTHORIZED")
				return
			}
			next.ServeHTTP(w, r)
		})
	}, nil
}

func hasPrefix(path string, prefixes []string) bool {
	for _, p := range prefixes {
		if strings.HasPrefix(path, p) {
			return true
		}
	}
	return false
}

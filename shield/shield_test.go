package shield

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5/middleware"
	"golang.org/x/crypto/bcrypt"

	"github.com/hazyhaar/docsight/kit"
)

var okHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
	io.Copy(io.Discard, r.Body)
	w.WriteHeader(http.StatusOK)
})

func errorCode(t *testing.T, rec *httptest.ResponseRecorder) string {
	t.Helper()
	var body struct {
		Error string `json:"error"`
		Code  string `json:"code"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("error body %q: %v", rec.Body.String(), err)
	}
	return body.Code
}

func TestSecurityHeaders(t *testing.T) {
	// WHAT: Every response carries the API security headers.
	rec := httptest.NewRecorder()
	SecurityHeaders(DefaultHeaders())(okHandler).ServeHTTP(rec, httptest.NewRequest("GET", "/info", nil))
	for k, want := range map[string]string{
		"X-Content-Type-Options": "nosniff",
		"X-Frame-Options":        "DENY",
		"Cache-Control":          "no-store",
	} {
		if got := rec.Header().Get(k); got != want {
			t.Errorf("%s = %q, want %q", k, got, want)
		}
	}
}

func TestMaxUploadBody(t *testing.T) {
	// WHAT: Oversized uploads get 413 IMAGE_TOO_LARGE before the handler runs.
	// WHY: Content-Length is checked before any byte is read.
	h := MaxUploadBody(10)(okHandler)

	req := httptest.NewRequest("POST", "/ocr", strings.NewReader("small"))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("small body: %d", rec.Code)
	}

	big := strings.Repeat("x", 10+multipartOverhead+1)
	req = httptest.NewRequest("POST", "/ocr", strings.NewReader(big))
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	if rec.Code != http.StatusRequestEntityTooLarge || errorCode(t, rec) != "IMAGE_TOO_LARGE" {
		t.Fatalf("big body: %d %s", rec.Code, rec.Body.String())
	}
}

func TestRequestContext(t *testing.T) {
	// WHAT: chi's request ID reaches the kit context and the response header.
	var gotID, gotAddr string
	inner := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		c := kit.CallFrom(r.Context())
		gotID, gotAddr = c.RequestID, c.RemoteAddr
		if GetLogger(r.Context()) == nil {
			t.Error("nil logger")
		}
	})
	h := middleware.RequestID(RequestContext(nil)(inner))
	req := httptest.NewRequest("GET", "/health", nil)
	req.RemoteAddr = "192.0.2.7:4321"
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	if gotID == "" || rec.Header().Get("X-Request-ID") != gotID {
		t.Errorf("request id %q, header %q", gotID, rec.Header().Get("X-Request-ID"))
	}
	if gotAddr != "192.0.2.7" {
		t.Errorf("remote addr = %q", gotAddr)
	}
}

func TestAPIKey(t *testing.T) {
	// WHAT: Only the hashed key is accepted; public paths stay open.
	hash, err := bcrypt.GenerateFromPassword([]byte("s3cret-key"), bcrypt.MinCost)
	if err != nil {
		t.Fatal(err)
	}
	mw, err := APIKey(string(hash), "/health")
	if err != nil {
		t.Fatal(err)
	}
	h := mw(okHandler)

	cases := []struct {
		path   string
		header [2]string
		want   int
	}{
		{"/ocr", [2]string{}, http.StatusUnauthorized},
		{"/ocr", [2]string{"X-API-Key", "wrong"}, http.StatusUnauthorized},
		{"/ocr", [2]string{"X-API-Key", "s3cret-key"}, http.StatusOK},
		{"/ocr", [2]string{"Authorization", "Bearer s3cret-key"}, http.StatusOK},
		{"/health", [2]string{}, http.StatusOK},
	}
	for _, c := range cases {
		req := httptest.NewRequest("POST", c.path, nil)
		if c.header[0] != "" {
			req.Header.Set(c.header[0], c.header[1])
		}
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		if rec.Code != c.want {
			t.Errorf("%s %v: %d, want %d", c.path, c.header, rec.Code, c.want)
		}
	}

	if _, err := APIKey("plaintext"); err == nil {
		t.Error("expected error for non-bcrypt hash")
	}
}

func TestRateLimiter(t *testing.T) {
	// WHAT: The quota resets after the window; other IPs are independent.
	rl := NewRateLimiter(RateLimitConfig{MaxRequests: 2, WindowSeconds: 60}, "/health")
	now := time.Unix(1_700_000_000, 0)
	rl.now = func() time.Time { return now }
	h := rl.Middleware(okHandler)

	do := func(path, addr string) int {
		req := httptest.NewRequest("POST", path, nil)
		req.RemoteAddr = addr
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		return rec.Code
	}

	for i := 0; i < 2; i++ {
		if code := do("/ocr", "198.51.100.1:1"); code != http.StatusOK {
			t.Fatalf("request %d: %d", i, code)
		}
	}
	if code := do("/ocr", "198.51.100.1:1"); code != http.StatusTooManyRequests {
		t.Fatalf("third request: %d", code)
	}
	if code := do("/ocr", "198.51.100.2:1"); code != http.StatusOK {
		t.Fatalf("other ip: %d", code)
	}
	if code := do("/health", "198.51.100.1:1"); code != http.StatusOK {
		t.Fatalf("excluded path: %d", code)
	}

	now = now.Add(61 * time.Second)
	if code := do("/ocr", "198.51.100.1:1"); code != http.StatusOK {
		t.Fatalf("after window: %d", code)
	}
	rl.gc()
}

func TestExtractIP(t *testing.T) {
	req := httptest.NewRequest("GET", "/", nil)
	req.Header.Set("X-Forwarded-For", "203.0.113.9, 10.0.0.1")
	if ip := ExtractIP(req); ip != "203.0.113.9" {
		t.Errorf("xff: %q", ip)
	}
}

func TestDefaultStack(t *testing.T) {
	done := make(chan struct{})
	defer close(done)
	stack, err := DefaultStack(StackConfig{MaxBody: 1024, RateLimit: RateLimitConfig{MaxRequests: 5}}, done)
	if err != nil {
		t.Fatal(err)
	}
	if len(stack) != 4 {
		t.Fatalf("stack length = %d, want 4", len(stack))
	}
	if _, err := DefaultStack(StackConfig{APIKeyHash: "nope"}, done); err == nil {
		t.Error("expected error for bad hash")
	}
}

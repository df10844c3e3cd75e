package shield

import (
	"net"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"
)

// RateLimitConfig is a fixed-window request quota per client IP.
type RateLimitConfig struct {
	MaxRequests   int `yaml:"max_requests"`
	WindowSeconds int `yaml:"window_seconds"`
}

type bucket struct {
	mu      sync.Mutex
	count   int
	resetAt time.Time
}

// RateLimiter enforces RateLimitConfig per client IP. Expired buckets are
// collected by StartGC.
type RateLimiter struct {
	cfg     RateLimitConfig
	window  time.Duration
	buckets sync.Map
	exclude []string // path prefixes excluded from rate limiting
	now     func() time.Time
}

// NewRateLimiter creates a limiter. WindowSeconds <= 0 means 60.
func NewRateLimiter(cfg RateLimitConfig, excludePrefixes ...string) *RateLimiter {
	if cfg.WindowSeconds <= 0 {
		cfg.WindowSeconds = 60
	}
	return &RateLimiter{
		cfg:     cfg,
		window:  time.Duration(cfg.WindowSeconds) * time.Second,
		exclude: excludePrefixes,
		now:     time.Now,
	}
}

// StartGC drops expired buckets every window until done is closed.
func (rl *RateLimiter) StartGC(done <-chan struct{}) {
	tick := time.NewTicker(rl.window)
	go func() {
		defer tick.Stop()
		for {
			select {
			case <-done:
				return
			case <-tick.C:
				rl.gc()
			}
		}
	}()
}

func (rl *RateLimiter) gc() {
	now := rl.now()
	rl.buckets.Range(func(key, value any) bool {
		b := value.(*bucket)
		b.mu.Lock()
		expired := now.After(b.resetAt)
		b.mu.Unlock()
		if expired {
			rl.buckets.Delete(key)
		}
		return true
	})
}

func (rl *RateLimiter) allow(ip string) bool {
	now := rl.now()
	val, _ := rl.buckets.LoadOrStore(ip, &bucket{resetAt: now.Add(rl.window)})
	b := val.(*bucket)
	b.mu.Lock()
	defer b.mu.Unlock()
	if now.After(b.resetAt) {
		b.count = 0
		b.resetAt = now.Add(rl.window)
	}
	b.count++
	return b.count <= rl.cfg.MaxRequests
}

// Middleware answers 429 with a JSON error once an IP exceeds its quota.
func (rl *RateLimiter) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if hasPrefix(r.URL.Path, rl.exclude) {
			next.ServeHTTP(w, r)
			return
		}
		ip := ExtractIP(r)
		if rl.allow(ip) {
			next.ServeHTTP(w, r)
			return
		}
		GetLogger(r.Context()).Warn("ratelimit: request blocked", "ip", ip)
		w.Header().Set("Retry-After", strconv.Itoa(rl.cfg.WindowSeconds))
		writeError(w, http.StatusTooManyRequests, "rate limit exceeded", "RATE_LIMITED")
	})
}

// ExtractIP returns the client IP from X-Forwarded-For or RemoteAddr.
func ExtractIP(r *http.Request) string {
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		first, _, _ := strings.Cut(xff, ",")
		return strings.TrimSpace(first)
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

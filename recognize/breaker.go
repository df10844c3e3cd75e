package recognize

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"
)

// ErrCircuitOpen is returned while a remote engine's breaker rejects calls.
var ErrCircuitOpen = errors.New("recognize: circuit open")

// BreakerState is the state of a remote engine's circuit breaker.
type BreakerState int

const (
	BreakerClosed   BreakerState = iota // calls pass through
	BreakerOpen                         // calls rejected immediately
	BreakerHalfOpen                     // trial calls allowed
)

func (s BreakerState) String() string {
	switch s {
	case BreakerClosed:
		return "closed"
	case BreakerOpen:
		return "open"
	case BreakerHalfOpen:
		return "half_open"
	default:
		return "unknown"
	}
}

// breaker counts consecutive unavailability failures. threshold of them
// open it; after resetAfter it lets trial calls through, and halfOpenMax
// successful trial calls close it again.
type breaker struct {
	mu          sync.Mutex
	state       BreakerState
	failures    int
	successes   int
	threshold   int
	halfOpenMax int
	resetAfter  time.Duration
	openedAt    time.Time
	now         func() time.Time
}

func newBreaker(threshold int, resetAfter time.Duration) *breaker {
	if threshold <= 0 {
		threshold = 5
	}
	if resetAfter <= 0 {
		resetAfter = 30 * time.Second
	}
	return &breaker{threshold: threshold, halfOpenMax: 2, resetAfter: resetAfter, now: time.Now}
}

func (b *breaker) current() BreakerState {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.advance()
	return b.state
}

func (b *breaker) allow() bool {
	return b.current() != BreakerOpen
}

func (b *breaker) success() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.advance()
	switch b.state {
	case BreakerHalfOpen:
		b.successes++
		if b.successes >= b.halfOpenMax {
			b.state = BreakerClosed
			b.failures, b.successes = 0, 0
		}
	case BreakerClosed:
		b.failures = 0
	}
}

func (b *breaker) failure() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.advance()
	switch b.state {
	case BreakerClosed:
		b.failures++
		if b.failures >= b.threshold {
			b.trip()
		}
	case BreakerHalfOpen:
		b.trip()
	}
}

// Must hold mu.
func (b *breaker) trip() {
	b.state = BreakerOpen
	b.openedAt = b.now()
	b.successes = 0
}

// Must hold mu.
func (b *breaker) advance() {
	if b.state == BreakerOpen && b.now().Sub(b.openedAt) >= b.resetAfter {
		b.state = BreakerHalfOpen
		b.successes = 0
	}
}

// retry runs call up to maxRetries+1 times while it reports a retryable
// failure, doubling backoff between attempts. It stops early when ctx ends.
func retry[T any](ctx context.Context, maxRetries int, backoff time.Duration, logger *slog.Logger,
	call func() (T, bool, error)) (T, bool, error) {
	var (
		out       T
		retryable bool
		err       error
	)
	for attempt := 0; attempt <= maxRetries; attempt++ {
		out, retryable, err = call()
		if err == nil || !retryable || ctx.Err() != nil || attempt == maxRetries {
			return out, retryable, err
		}
		wait := backoff << uint(attempt)
		logger.WarnContext(ctx, "recognize/remote: retrying",
			"attempt", attempt+1, "max_retries", maxRetries, "backoff_ms", wait.Milliseconds(), "error", err)
		select {
		case <-ctx.Done():
			return out, retryable, err
		case <-time.After(wait):
		}
	}
	return out, retryable, err
}

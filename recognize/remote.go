package recognize

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/hazyhaar/docsight/horosafe"
	"github.com/hazyhaar/docsight/raster"
)

// maxRemoteResponse caps a remote engine's JSON reply (10 MiB).
const maxRemoteResponse int64 = 10 << 20

// RemoteConfig configures a Remote engine.
type RemoteConfig struct {
	Name        string        `json:"name" yaml:"name"`
	URL         string        `json:"url" yaml:"url"`
	Description string        `json:"description" yaml:"description"`
	Languages   []string      `json:"languages" yaml:"languages"`
	Timeout     time.Duration `json:"timeout" yaml:"timeout"`

	// AllowPrivate skips the SSRF guard, for engines on the local network.
	AllowPrivate bool `json:"allow_private" yaml:"allow_private"`

	// MaxRetries retries transport errors, 429 and 5xx replies (default 0).
	MaxRetries int           `json:"max_retries" yaml:"max_retries"`
	Backoff    time.Duration `json:"backoff" yaml:"backoff"`

	// BreakerThreshold consecutive unavailability failures open the
	// circuit for BreakerReset (defaults 5 and 30s).
	BreakerThreshold int           `json:"breaker_threshold" yaml:"breaker_threshold"`
	BreakerReset     time.Duration `json:"breaker_reset" yaml:"breaker_reset"`

	Logger *slog.Logger `json:"-" yaml:"-"`
}

// Remote is an Engine that POSTs a PNG rendering of the buffer to an HTTP
// service and reads back {"text": ..., "confidence": ...}. Confidence is
// optional in the reply.
type Remote struct {
	cfg     RemoteConfig
	client  *http.Client
	breaker *breaker
}

type remoteReply struct {
	Text       string   `json:"text"`
	Confidence *float64 `json:"confidence"`
	Error      string   `json:"error"`
}

// NewRemote validates the endpoint and builds the adapter.
func NewRemote(cfg RemoteConfig) (*Remote, error) {
	if cfg.Name == "" {
		return nil, fmt.Errorf("recognize/remote: name is required")
	}
	if err := horosafe.ValidateIdentifier(cfg.Name); err != nil {
		return nil, fmt.Errorf("recognize/remote: %w", err)
	}
	if cfg.AllowPrivate {
		if _, err := horosafe.CheckScheme(cfg.URL); err != nil {
			return nil, fmt.Errorf("recognize/remote %s: %w", cfg.Name, err)
		}
	} else if err := horosafe.ValidateURL(cfg.URL); err != nil {
		return nil, fmt.Errorf("recognize/remote %s: %w", cfg.Name, err)
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 60 * time.Second
	}
	if cfg.Description == "" {
		cfg.Description = "Remote recognition service at " + cfg.URL
	}
	if cfg.MaxRetries < 0 {
		cfg.MaxRetries = 0
	}
	if cfg.Backoff <= 0 {
		cfg.Backoff = 250 * time.Millisecond
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &Remote{
		cfg:     cfg,
		client:  &http.Client{Timeout: cfg.Timeout},
		breaker: newBreaker(cfg.BreakerThreshold, cfg.BreakerReset),
	}, nil
}

func (r *Remote) Name() string                 { return r.cfg.Name }
func (r *Remote) Description() string          { return r.cfg.Description }
func (r *Remote) SupportedFormats() []string   { return DefaultFormats }
func (r *Remote) SupportedLanguages() []string { return r.cfg.Languages }

// Recognize sends the image and decodes the reply. Calls fail fast with
// ErrCircuitOpen while the service is considered down.
func (r *Remote) Recognize(ctx context.Context, img *raster.Buffer, opts Options) (*Result, error) {
	if !r.breaker.allow() {
		return nil, fmt.Errorf("recognize/remote %s: %w", r.cfg.Name, ErrCircuitOpen)
	}
	payload, err := img.EncodePNG()
	if err != nil {
		return nil, fmt.Errorf("recognize/remote %s: %w", r.cfg.Name, err)
	}

	res, unavailable, err := retry(ctx, r.cfg.MaxRetries, r.cfg.Backoff, r.cfg.Logger, func() (*Result, bool, error) {
		return r.call(ctx, payload, opts)
	})
	switch {
	case err == nil:
		r.breaker.success()
	case unavailable && ctx.Err() == nil:
		r.breaker.failure()
		if r.breaker.current() == BreakerOpen {
			r.cfg.Logger.Warn("recognize/remote: circuit opened", "engine", r.cfg.Name, "error", err)
		}
	}
	return res, err
}

// BreakerState reports the circuit state of the engine.
func (r *Remote) BreakerState() BreakerState { return r.breaker.current() }

// call performs one request. The bool reports a failure that says the
// service is unavailable rather than that the input was refused.
func (r *Remote) call(ctx context.Context, payload []byte, opts Options) (*Result, bool, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, r.cfg.URL, bytes.NewReader(payload))
	if err != nil {
		return nil, false, fmt.Errorf("recognize/remote %s: create request: %w", r.cfg.Name, err)
	}
	req.Header.Set("Content-Type", "image/png")
	req.Header.Set("Accept", "application/json")
	if len(opts.Languages) > 0 {
		req.Header.Set("X-OCR-Languages", strings.Join(opts.Languages, "+"))
	}

	resp, err := r.client.Do(req)
	if err != nil {
		return nil, true, fmt.Errorf("recognize/remote %s: do request: %w", r.cfg.Name, err)
	}
	defer resp.Body.Close()

	body, err := horosafe.LimitedReadAll(resp.Body, maxRemoteResponse)
	if err != nil {
		return nil, true, fmt.Errorf("recognize/remote %s: read response: %w", r.cfg.Name, err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		unavailable := resp.StatusCode >= 500 || resp.StatusCode == http.StatusTooManyRequests
		return nil, unavailable, fmt.Errorf("recognize/remote %s: status %d: %s", r.cfg.Name, resp.StatusCode, body)
	}

	var reply remoteReply
	if err := json.Unmarshal(body, &reply); err != nil {
		return nil, false, fmt.Errorf("recognize/remote %s: decode reply: %w", r.cfg.Name, err)
	}
	if reply.Error != "" {
		return nil, false, fmt.Errorf("recognize/remote %s: %s", r.cfg.Name, reply.Error)
	}
	res := &Result{Text: reply.Text}
	if reply.Confidence != nil {
		c := min(max(*reply.Confidence, 0), 1)
		res.Confidence = &c
	}
	return res, false, nil
}

// Close releases idle connections.
func (r *Remote) Close() { r.client.CloseIdleConnections() }

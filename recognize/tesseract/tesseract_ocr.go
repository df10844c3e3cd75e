//go:build ocr

package tesseract

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/otiai10/gosseract/v2"

	"github.com/hazyhaar/docsight/raster"
	"github.com/hazyhaar/docsight/recognize"
)

var errClosed = errors.New("tesseract: engine closed")

// Engine runs Tesseract through a bounded set of gosseract clients so
// concurrent calls never share one. Close releases them.
type Engine struct {
	cfg   Config
	slots chan struct{}
	idle  chan *gosseract.Client

	mu     sync.Mutex
	closed bool
}

// New validates the configuration with a throwaway client.
func New(cfg Config) (*Engine, error) {
	cfg.defaults()

	check, err := newClient(cfg)
	if err != nil {
		return nil, err
	}
	if err := check.SetLanguage(cfg.Languages...); err != nil {
		check.Close()
		return nil, fmt.Errorf("tesseract: set language %v: %w", cfg.Languages, err)
	}
	check.Close()

	return &Engine{
		cfg:   cfg,
		slots: make(chan struct{}, cfg.MaxClients),
		idle:  make(chan *gosseract.Client, cfg.MaxClients),
	}, nil
}

func newClient(cfg Config) (*gosseract.Client, error) {
	c := gosseract.NewClient()
	if cfg.TessdataPrefix != "" {
		c.SetTessdataPrefix(cfg.TessdataPrefix)
	}
	if err := c.SetPageSegMode(gosseract.PageSegMode(cfg.PageSegMode)); err != nil {
		c.Close()
		return nil, fmt.Errorf("tesseract: page seg mode %d: %w", cfg.PageSegMode, err)
	}
	return c, nil
}

// acquire waits for a slot, then reuses an idle client or creates one.
func (e *Engine) acquire(ctx context.Context) (*gosseract.Client, error) {
	select {
	case e.slots <- struct{}{}:
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	e.mu.Lock()
	closed := e.closed
	e.mu.Unlock()
	if closed {
		<-e.slots
		return nil, errClosed
	}

	select {
	case c := <-e.idle:
		return c, nil
	default:
	}
	c, err := newClient(e.cfg)
	if err != nil {
		<-e.slots
		return nil, err
	}
	return c, nil
}

func (e *Engine) release(c *gosseract.Client) {
	defer func() { <-e.slots }()
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		c.Close()
		return
	}
	// idle has one place per slot, so this never blocks.
	e.idle <- c
}

// Close releases the idle clients. Clients still running are closed when
// their call returns. Close is safe to call more than once.
func (e *Engine) Close() error {
	if e == nil {
		return nil
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return nil
	}
	e.closed = true
	var errs []error
	for {
		select {
		case c := <-e.idle:
			errs = append(errs, c.Close())
		default:
			return errors.Join(errs...)
		}
	}
}

func (e *Engine) Name() string                 { return Name }
func (e *Engine) Description() string          { return description }
func (e *Engine) SupportedFormats() []string   { return recognize.DefaultFormats }
func (e *Engine) SupportedLanguages() []string { return e.cfg.Languages }

// Recognize runs OCR on img. Confidence is the mean word confidence
// divided by 100.
func (e *Engine) Recognize(ctx context.Context, img *raster.Buffer, opts recognize.Options) (*recognize.Result, error) {
	data, err := img.EncodePNG()
	if err != nil {
		return nil, fmt.Errorf("tesseract: %w", err)
	}

	client, err := e.acquire(ctx)
	if err != nil {
		return nil, err
	}

	type outcome struct {
		res *recognize.Result
		err error
	}
	ch := make(chan outcome, 1)
	go func() {
		// The client is released only once Tesseract is done with it.
		defer e.release(client)
		res, err := e.run(client, data, languagesFor(e.cfg, opts))
		ch <- outcome{res, err}
	}()

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case o := <-ch:
		return o.res, o.err
	}
}

func (e *Engine) run(client *gosseract.Client, png []byte, langs []string) (*recognize.Result, error) {
	if err := client.SetLanguage(langs...); err != nil {
		return nil, fmt.Errorf("tesseract: set language %v: %w", langs, err)
	}
	if err := client.SetImageFromBytes(png); err != nil {
		return nil, fmt.Errorf("tesseract: set image: %w", err)
	}
	text, err := client.Text()
	if err != nil {
		return nil, fmt.Errorf("tesseract: recognize: %w", err)
	}
	text = strings.TrimSpace(text)
	if text == "" {
		return &recognize.Result{Confidence: recognize.Confidence(0)}, nil
	}

	boxes, err := client.GetBoundingBoxes(gosseract.RIL_WORD)
	if err != nil || len(boxes) == 0 {
		// No native signal; the caller falls back to the heuristic scorer.
		return &recognize.Result{Text: text}, nil
	}
	var sum float64
	for _, b := range boxes {
		sum += b.Confidence
	}
	conf := min(max(sum/float64(len(boxes))/100, 0), 1)
	return &recognize.Result{Text: text, Confidence: &conf}, nil
}

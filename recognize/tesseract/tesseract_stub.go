//go:build !ocr

package tesseract

import (
	"context"

	"github.com/hazyhaar/docsight/raster"
	"github.com/hazyhaar/docsight/recognize"
)

// Engine is the placeholder compiled without the "ocr" tag.
type Engine struct {
	cfg Config
}

// New always fails with recognize.ErrNotEnabled. Rebuild with -tags ocr.
func New(cfg Config) (*Engine, error) {
	return nil, recognize.ErrNotEnabled
}

func (e *Engine) Name() string                 { return Name }
func (e *Engine) Description() string          { return description }
func (e *Engine) SupportedFormats() []string   { return recognize.DefaultFormats }
func (e *Engine) SupportedLanguages() []string { return e.cfg.Languages }

// Close is a no-op.
func (e *Engine) Close() error { return nil }

// Recognize returns recognize.ErrNotEnabled.
func (e *Engine) Recognize(context.Context, *raster.Buffer, recognize.Options) (*recognize.Result, error) {
	return nil, recognize.ErrNotEnabled
}

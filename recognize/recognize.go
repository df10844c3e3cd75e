// CLAUDE:SUMMARY Recognition capability interface (buffer in, text + optional native confidence out), engine registry and an HTTP remote adapter.
// Package recognize defines the text recognition capability consumed by
// docpipe and the registry that selects an engine by name.
//
// Concrete engines live in subpackages (recognize/tesseract) or are remote
// HTTP services wrapped by Remote.
package recognize

import (
	"context"
	"errors"

	"github.com/hazyhaar/docsight/raster"
)

var (
	// ErrUnknownEngine is returned by Registry.Get for unregistered names.
	ErrUnknownEngine = errors.New("recognize: unknown engine")
	// ErrNoEngines is returned when a registry is asked for a default but is empty.
	ErrNoEngines = errors.New("recognize: no engines registered")
	// ErrNotEnabled is returned by engines compiled without their backend.
	ErrNotEnabled = errors.New("recognize: engine not enabled in this build")
)

// DefaultFormats are the upload MIME types every engine accepts through
// docpipe, which decodes them before recognition.
var DefaultFormats = []string{
	"image/png",
	"image/jpeg",
	"image/gif",
	"image/bmp",
	"image/webp",
	"image/tiff",
	"application/pdf",
}

// Options tune one recognition call.
type Options struct {
	// Languages are engine language codes, e.g. "eng", "fra". Empty means
	// the engine default.
	Languages []string
}

// Result is the output of a recognition call. Confidence is nil when the
// engine has no native certainty signal.
type Result struct {
	Text       string
	Confidence *float64
}

// Engine is a text recognition backend.
type Engine interface {
	Name() string
	Description() string
	SupportedFormats() []string
	SupportedLanguages() []string
	Recognize(ctx context.Context, img *raster.Buffer, opts Options) (*Result, error)
}

// Confidence returns a pointer to v, for engines filling Result.Confidence.
func Confidence(v float64) *float64 { return &v }

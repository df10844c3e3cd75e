// CLAUDE:SUMMARY Configuration struct and defaults for the docpipe recognition pipeline.
package docpipe

import (
	"log/slog"
	"runtime"

	"github.com/hazyhaar/docsight/observability"
	"github.com/hazyhaar/docsight/pdfraster"
	"github.com/hazyhaar/docsight/preprocess"
)

// DefaultMaxFileSize is 50 MiB.
const DefaultMaxFileSize = 50 * 1024 * 1024

// Config configures the pipeline.
type Config struct {
	// MaxFileSize is the largest accepted input (default: 50 MiB).
	MaxFileSize int64 `json:"max_file_size" yaml:"max_file_size"`

	// MaxPixels caps width*height of an uploaded image or an image embedded
	// in a PDF (default: 100 million).
	MaxPixels int `json:"max_pixels" yaml:"max_pixels"`

	// Preset is the default preprocessing preset (default: "default").
	Preset string `json:"preset" yaml:"preset"`

	// Languages passed to engines when a request names none (default: eng).
	Languages []string `json:"languages" yaml:"languages"`

	// Workers bounds concurrent per-image recognition across all requests
	// (default: NumCPU).
	Workers int `json:"workers" yaml:"workers"`

	// TextLayerMinChars: a PDF text layer longer than this, once trimmed,
	// is returned without OCR (default: 10).
	TextLayerMinChars int `json:"text_layer_min_chars" yaml:"text_layer_min_chars"`

	// FileRoot confines the paths MCP tools may read (default: working dir).
	FileRoot string `json:"file_root" yaml:"file_root"`

	// Logger for debug/error messages.
	Logger *slog.Logger `json:"-" yaml:"-"`

	// Metrics and Runs are optional observability sinks.
	Metrics *observability.Metrics `json:"-" yaml:"-"`
	Runs    *observability.RunLog  `json:"-" yaml:"-"`
}

func (c *Config) defaults() {
	if c.MaxFileSize <= 0 {
		c.MaxFileSize = DefaultMaxFileSize
	}
	if c.MaxPixels <= 0 {
		c.MaxPixels = pdfraster.DefaultMaxPixels
	}
	if c.Preset == "" {
		c.Preset = preprocess.PresetDefault.String()
	}
	if len(c.Languages) == 0 {
		c.Languages = []string{"eng"}
	}
	if c.Workers <= 0 {
		c.Workers = runtime.NumCPU()
	}
	if c.TextLayerMinChars <= 0 {
		c.TextLayerMinChars = 10
	}
	if c.FileRoot == "" {
		c.FileRoot = "."
	}
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
}

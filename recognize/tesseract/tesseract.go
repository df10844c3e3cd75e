// CLAUDE:SUMMARY Tesseract recognition engine via gosseract; real client with -tags ocr, stub returning ErrNotEnabled otherwise.
// Package tesseract adapts the Tesseract OCR library to recognize.Engine.
//
// The cgo binding is only compiled with the "ocr" build tag:
//
//	go build -tags ocr ./cmd/docsight
//
// Without it, New returns recognize.ErrNotEnabled. Tesseract itself must be
// installed (apt-get install tesseract-ocr libtesseract-dev).
package tesseract

import (
	"os"
	"runtime"

	"github.com/hazyhaar/docsight/recognize"
)

// Name is the registry name of this engine.
const Name = "tesseract"

const description = "Tesseract LSTM engine (native per-word confidence)"

// Config configures the engine.
type Config struct {
	// Languages used when a call passes none (default ["eng"]).
	Languages []string `json:"languages" yaml:"languages"`

	// TessdataPrefix overrides TESSDATA_PREFIX.
	TessdataPrefix string `json:"tessdata_prefix" yaml:"tessdata_prefix"`

	// PageSegMode is the Tesseract PSM, 0-13 (default 3, fully automatic).
	PageSegMode int `json:"page_seg_mode" yaml:"page_seg_mode"`

	// MaxClients bounds the Tesseract clients alive at once; further calls
	// wait for one to be released (default NumCPU).
	MaxClients int `json:"max_clients" yaml:"max_clients"`
}

func (c *Config) defaults() {
	if len(c.Languages) == 0 {
		c.Languages = []string{"eng"}
	}
	if c.TessdataPrefix == "" {
		c.TessdataPrefix = os.Getenv("TESSDATA_PREFIX")
	}
	if c.PageSegMode <= 0 || c.PageSegMode > 13 {
		c.PageSegMode = 3
	}
	if c.MaxClients <= 0 {
		c.MaxClients = runtime.NumCPU()
	}
}

func languagesFor(cfg Config, opts recognize.Options) []string {
	if len(opts.Languages) > 0 {
		return opts.Languages
	}
	return cfg.Languages
}

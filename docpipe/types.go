// CLAUDE:SUMMARY Format, Options and Result types for the docpipe recognition pipeline.
package docpipe

import "github.com/hazyhaar/docsight/preprocess"

// Format identifies an input document type.
type Format string

const (
	FormatPDF  Format = "pdf"
	FormatPNG  Format = "png"
	FormatJPEG Format = "jpeg"
	FormatGIF  Format = "gif"
	FormatBMP  Format = "bmp"
	FormatTIFF Format = "tiff"
	FormatWEBP Format = "webp"
)

// Source tells where the returned text came from.
type Source string

const (
	SourceTextLayer Source = "text_layer"
	SourceOCR       Source = "ocr"
)

// Options are per-request overrides. Zero values fall back to Config.
type Options struct {
	Engine    string   `json:"engine,omitempty"`
	Languages []string `json:"languages,omitempty"`
	Preset    string   `json:"preset,omitempty"`
}

// Result is the outcome of one recognition request.
type Result struct {
	RunID            string               `json:"run_id"`
	Text             string               `json:"text"`
	Confidence       float64              `json:"confidence"`
	ProcessingTimeMs int64                `json:"processing_time_ms"`
	Warnings         []string             `json:"warnings"`
	Engine           string               `json:"engine"`
	Format           Format               `json:"format"`
	Source           Source               `json:"source"`
	Images           int                  `json:"images,omitempty"`
	Preprocessing    []*preprocess.Result `json:"preprocessing,omitempty"`
	Quality          *TextLayerQuality    `json:"quality,omitempty"`
}

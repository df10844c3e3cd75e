// CLAUDE:SUMMARY Measures how trustworthy a PDF text layer looks; reported on every PDF result.
package docpipe

import (
	"strings"
	"unicode"
)

// Thresholds below which a text layer is considered garbled.
const (
	minPrintableRatio = 0.85
	minWordlikeRatio  = 0.40
)

// TextLayerQuality describes the text layer of a PDF, whether or not the
// result used it.
type TextLayerQuality struct {
	PageCount       int     `json:"page_count"`
	CharsPerPage    float64 `json:"chars_per_page"`
	PrintableRatio  float64 `json:"printable_ratio"`
	WordlikeRatio   float64 `json:"wordlike_ratio"`
	HasImageStreams bool    `json:"has_image_streams"`
}

// Garbled reports text dominated by unmapped glyphs or split into single
// characters, typical of CID fonts without a ToUnicode map.
func (q *TextLayerQuality) Garbled() bool {
	return q.PrintableRatio < minPrintableRatio || (q.CharsPerPage > 0 && q.WordlikeRatio < minWordlikeRatio)
}

// ImageOnly reports a document whose pages carry images but almost no text.
func (q *TextLayerQuality) ImageOnly() bool {
	return q.HasImageStreams && q.CharsPerPage < 50
}

func assessTextLayer(text string, pages int, hasImages bool) *TextLayerQuality {
	q := &TextLayerQuality{PageCount: pages, HasImageStreams: hasImages, PrintableRatio: 1}

	runes, printable := 0, 0
	for _, r := range text {
		runes++
		if clean(r) {
			printable++
		}
	}
	if runes > 0 {
		q.PrintableRatio = float64(printable) / float64(runes)
	}
	if pages > 0 {
		q.CharsPerPage = float64(runes) / float64(pages)
	}

	words := strings.Fields(text)
	if len(words) > 0 {
		n := 0
		for _, w := range words {
			if l := len([]rune(w)); l >= 2 && l <= 15 {
				n++
			}
		}
		q.WordlikeRatio = float64(n) / float64(len(words))
	}
	return q
}

// clean rejects private-use glyphs, U+FFFD and non-whitespace controls.
func clean(r rune) bool {
	switch {
	case r >= 0xE000 && r <= 0xF8FF, r == unicode.ReplacementChar:
		return false
	case r == '\n' || r == '\r' || r == '\t':
		return true
	}
	return unicode.IsPrint(r)
}

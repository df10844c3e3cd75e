// CLAUDE:SUMMARY Direct PDF text-layer reader (pdfcpu content streams) tried before raster OCR, with quality metrics.
package docpipe

import (
	"bytes"
	"encoding/hex"
	"fmt"
	"io"
	"regexp"
	"strings"
	"unicode"
	"unicode/utf16"
	"unicode/utf8"

	"github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/model"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/types"
)

// textLayer is the text a PDF carries as content-stream operators.
type textLayer struct {
	Text    string
	Pages   int
	Quality *TextLayerQuality
}

// readTextLayer validates the parsed document and collects the text shown
// by each page's content stream. Validation fills in the page count.
func readTextLayer(ctx *model.Context) (tl *textLayer, err error) {
	defer func() {
		if r := recover(); r != nil {
			tl, err = nil, fmt.Errorf("pdfcpu panic: %v", r)
		}
	}()

	if err := api.ValidateContext(ctx); err != nil {
		return nil, fmt.Errorf("pdfcpu validate: %w", err)
	}

	var pages []string
	for pageNr := 1; pageNr <= ctx.PageCount; pageNr++ {
		text := extractPageText(ctx, pageNr)
		if text == "" {
			continue
		}
		pages = append(pages, text)
	}
	full := strings.Join(pages, "\n")

	return &textLayer{
		Text:    full,
		Pages:   ctx.PageCount,
		Quality: assessTextLayer(full, ctx.PageCount, detectImageStreams(ctx)),
	}, nil
}

func extractPageText(ctx *model.Context, pageNr int) string {
	r, err := pdfcpu.ExtractPageContent(ctx, pageNr)
	if err != nil || r == nil {
		return ""
	}
	data, err := io.ReadAll(r)
	if err != nil || len(data) == 0 {
		return ""
	}
	return extractTextFromStream(data)
}

// detectImageStreams reports whether a page references an image XObject,
// or failing that whether any object in the table is one.
func detectImageStreams(ctx *model.Context) bool {
	if ctx.Optimize != nil {
		for pageNr := 1; pageNr <= ctx.PageCount; pageNr++ {
			if len(pdfcpu.ImageObjNrs(ctx, pageNr)) > 0 {
				return true
			}
		}
	}
	for _, entry := range ctx.Table {
		if entry == nil || entry.Free || entry.Compressed {
			continue
		}
		sd, ok := entry.Object.(types.StreamDict)
		if !ok {
			continue
		}
		if subtype, found := sd.Find("Subtype"); found {
			if name, isName := subtype.(types.Name); isName && name == "Image" {
				return true
			}
		}
	}
	return false
}

var (
	// (literal) strings, allowing one level of escaped parentheses.
	pdfLiteralRe = regexp.MustCompile(`\(((?:\\.|[^\\)])*)\)`)
	// <hex> strings, not dictionaries.
	pdfHexRe = regexp.MustCompile(`<([0-9A-Fa-f\s]+)>`)
)

// extractTextFromStream walks content-stream lines and keeps the strings
// shown by Tj, TJ, ' and ". Td, TD and T* become separators.
func extractTextFromStream(data []byte) string {
	var sb strings.Builder
	for _, line := range bytes.Split(data, []byte{'\n'}) {
		line = bytes.TrimSpace(line)
		if len(line) == 0 {
			continue
		}
		op := lastOperator(line)
		switch op {
		case "Tj", "TJ":
			writeStrings(&sb, line, false)
		case "'", `"`:
			writeStrings(&sb, line, true)
		case "Td", "TD":
			if sb.Len() > 0 {
				sb.WriteByte(' ')
			}
		case "T*":
			sb.WriteByte('\n')
		}
	}
	return cleanPDFText(sb.String())
}

func lastOperator(line []byte) string {
	i := bytes.LastIndexAny(line, " \t)>]")
	return string(line[i+1:])
}

func writeStrings(sb *strings.Builder, line []byte, newline bool) {
	first := true
	emit := func(s string) {
		if s == "" {
			return
		}
		if newline && first {
			sb.WriteByte('\n')
		}
		first = false
		sb.WriteString(s)
	}
	for _, m := range pdfLiteralRe.FindAllSubmatch(line, -1) {
		emit(textString(decodePDFString(m[1])))
	}
	if bytes.ContainsRune(line, '(') {
		return
	}
	for _, m := range pdfHexRe.FindAllSubmatch(line, -1) {
		emit(textString(decodePDFHex(m[1])))
	}
}

// decodePDFString resolves backslash escapes, including octal.
func decodePDFString(raw []byte) string {
	var sb strings.Builder
	for i := 0; i < len(raw); i++ {
		c := raw[i]
		if c != '\\' || i+1 >= len(raw) {
			sb.WriteByte(c)
			continue
		}
		i++
		switch raw[i] {
		case 'n':
			sb.WriteByte('\n')
		case 'r':
			sb.WriteByte('\r')
		case 't':
			sb.WriteByte('\t')
		case 'b', 'f':
		case '0', '1', '2', '3', '4', '5', '6', '7':
			val := 0
			for n := 0; n < 3 && i < len(raw) && raw[i] >= '0' && raw[i] <= '7'; n++ {
				val = val*8 + int(raw[i]-'0')
				i++
			}
			i--
			sb.WriteByte(byte(val))
		default:
			sb.WriteByte(raw[i])
		}
	}
	return sb.String()
}

// textString interprets decoded string bytes: UTF-16BE with a BOM, UTF-8
// when valid, Latin-1 otherwise.
func textString(b string) string {
	if len(b) >= 2 && b[0] == 0xFE && b[1] == 0xFF {
		units := make([]uint16, 0, (len(b)-2)/2)
		for i := 2; i+1 < len(b); i += 2 {
			units = append(units, uint16(b[i])<<8|uint16(b[i+1]))
		}
		return string(utf16.Decode(units))
	}
	if utf8.ValidString(b) {
		return b
	}
	runes := make([]rune, len(b))
	for i := 0; i < len(b); i++ {
		runes[i] = rune(b[i])
	}
	return string(runes)
}

func decodePDFHex(raw []byte) string {
	clean := bytes.Map(func(r rune) rune {
		if unicode.IsSpace(r) {
			return -1
		}
		return r
	}, raw)
	if len(clean)%2 == 1 {
		clean = append(clean, '0')
	}
	out := make([]byte, hex.DecodedLen(len(clean)))
	n, err := hex.Decode(out, clean)
	if err != nil {
		return ""
	}
	return string(out[:n])
}

// cleanPDFText collapses whitespace runs and drops unprintable runes.
func cleanPDFText(text string) string {
	var sb strings.Builder
	prevSpace := false
	for _, r := range text {
		switch {
		case unicode.IsSpace(r):
			if !prevSpace && sb.Len() > 0 {
				sb.WriteByte(' ')
				prevSpace = true
			}
		case unicode.IsPrint(r):
			sb.WriteRune(r)
			prevSpace = false
		}
	}
	return strings.TrimSpace(sb.String())
}

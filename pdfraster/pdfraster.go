// CLAUDE:SUMMARY Locates embedded image XObjects in a PDF via pdfcpu, resolves their color space and decodes them into raster buffers.
// CLAUDE:DEPENDS raster
// Package pdfraster extracts the embedded raster images of a PDF document.
//
// The object table is scanned in object-number order and every stream whose
// Subtype is Image is decoded into a raster.Buffer. A document that cannot be
// parsed fails the whole call with ErrMalformedDocument; an individual image
// that cannot be decoded is skipped and reported as a warning.
package pdfraster

import (
	"bytes"
	"fmt"
	"image/jpeg"
	"io"
	"log/slog"
	"sort"

	"github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/model"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/types"

	"github.com/hazyhaar/docsight/raster"
)

// DefaultMaxPixels bounds the size of a single decoded image.
const DefaultMaxPixels = 100_000_000

// Image is one decoded image object.
type Image struct {
	ObjectNr   int
	ColorSpace ColorSpace
	Buffer     *raster.Buffer
}

// Extraction is the result of one Extract call. Images are in object order.
type Extraction struct {
	Images   []Image
	Warnings []string
}

// Buffers returns the decoded buffers in order.
func (e *Extraction) Buffers() []*raster.Buffer {
	out := make([]*raster.Buffer, len(e.Images))
	for i, img := range e.Images {
		out[i] = img.Buffer
	}
	return out
}

// Option configures an Extractor.
type Option func(*Extractor)

// WithLogger sets the logger for skipped-image warnings.
func WithLogger(l *slog.Logger) Option {
	return func(e *Extractor) {
		if l != nil {
			e.logger = l
		}
	}
}

// WithMaxPixels skips images whose width*height exceeds n.
func WithMaxPixels(n int) Option {
	return func(e *Extractor) {
		if n > 0 {
			e.maxPixels = n
		}
	}
}

// Extractor decodes the images of PDF documents. It is stateless and safe
// for concurrent use.
type Extractor struct {
	logger    *slog.Logger
	maxPixels int
}

// New creates an Extractor.
func New(opts ...Option) *Extractor {
	e := &Extractor{logger: slog.Default(), maxPixels: DefaultMaxPixels}
	for _, o := range opts {
		o(e)
	}
	return e
}

// Parse reads the document structure once so that callers can share it
// between text-layer reading and ExtractContext. Failure is a *ParseError.
func Parse(data []byte) (*model.Context, error) {
	ctx, err := readContext(bytes.NewReader(data))
	if err != nil {
		return nil, &ParseError{Err: err}
	}
	return ctx, nil
}

// ExtractBytes is Extract over an in-memory document.
func (e *Extractor) ExtractBytes(data []byte) (*Extraction, error) {
	ctx, err := Parse(data)
	if err != nil {
		return nil, err
	}
	return e.ExtractContext(ctx), nil
}

// Extract parses the document and decodes every image object.
func (e *Extractor) Extract(rs io.ReadSeeker) (*Extraction, error) {
	ctx, err := readContext(rs)
	if err != nil {
		return nil, &ParseError{Err: err}
	}
	return e.ExtractContext(ctx), nil
}

// ExtractContext decodes every image object of an already parsed document.
func (e *Extractor) ExtractContext(ctx *model.Context) *Extraction {
	nrs := make([]int, 0, len(ctx.Table))
	for nr, entry := range ctx.Table {
		if entry == nil || entry.Free || entry.Object == nil {
			continue
		}
		nrs = append(nrs, nr)
	}
	sort.Ints(nrs)

	res := &Extraction{}
	for _, nr := range nrs {
		sd, ok := asImageStream(ctx.Table[nr].Object)
		if !ok {
			continue
		}
		img, err := e.decodeImage(ctx, sd)
		if err != nil {
			msg := fmt.Sprintf("image object %d: %v", nr, err)
			res.Warnings = append(res.Warnings, msg)
			e.logger.Warn("pdfraster: skipping image", "object", nr, "colorspace", img.ColorSpace.String(), "reason", err)
			continue
		}
		img.ObjectNr = nr
		res.Images = append(res.Images, img)
	}
	return res
}

// readContext parses the cross-reference table and objects. pdfcpu may
// panic on hostile input; that is reported as a parse error.
func readContext(rs io.ReadSeeker) (ctx *model.Context, err error) {
	defer func() {
		if r := recover(); r != nil {
			ctx, err = nil, fmt.Errorf("pdfcpu panic: %v", r)
		}
	}()
	conf := model.NewDefaultConfiguration()
	conf.ValidationMode = model.ValidationRelaxed
	ctx, err = api.ReadContext(rs, conf)
	if err != nil {
		return nil, fmt.Errorf("pdfcpu read: %w", err)
	}
	if ctx.Root == nil {
		return nil, fmt.Errorf("pdfcpu read: no document catalog")
	}
	return ctx, nil
}

func asImageStream(obj types.Object) (types.StreamDict, bool) {
	var sd types.StreamDict
	switch v := obj.(type) {
	case types.StreamDict:
		sd = v
	case *types.StreamDict:
		if v == nil {
			return sd, false
		}
		sd = *v
	default:
		return sd, false
	}
	subtype, found := sd.Find("Subtype")
	if !found {
		return sd, false
	}
	name, ok := subtype.(types.Name)
	return sd, ok && name == "Image"
}

func (e *Extractor) decodeImage(ctx *model.Context, sd types.StreamDict) (img Image, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("decode panic: %v", r)
		}
	}()

	img.ColorSpace = resolveColorSpace(ctx, sd.Dict)

	w, _ := intValue(ctx, sd.Dict, "Width")
	h, _ := intValue(ctx, sd.Dict, "Height")
	if w <= 0 || h <= 0 {
		return img, fmt.Errorf("%w: %dx%d", ErrBadGeometry, w, h)
	}
	if w > e.maxPixels/h {
		return img, fmt.Errorf("%w: %dx%d exceeds %d pixels", ErrBadGeometry, w, h, e.maxPixels)
	}

	if isDCTOnly(sd) {
		buf, err := decodeJPEG(sd.Raw, e.maxPixels)
		if err != nil {
			return img, err
		}
		img.Buffer = buf
		return img, nil
	}

	bpc := 8
	if v, ok := intValue(ctx, sd.Dict, "BitsPerComponent"); ok {
		bpc = v
	}
	if img.ColorSpace.Kind == Unknown {
		return img, fmt.Errorf("%w: %s", ErrUnsupportedColorSpace, img.ColorSpace.Name)
	}
	if bpc != 8 {
		return img, fmt.Errorf("%w: %d", ErrUnsupportedDepth, bpc)
	}

	if err := sd.Decode(); err != nil {
		return img, fmt.Errorf("stream decode: %w", err)
	}
	data := sd.Content
	if data == nil {
		data = sd.Raw
	}

	buf, err := decodeSamples(data, w, h, img.ColorSpace)
	if err != nil {
		return img, err
	}
	img.Buffer = buf
	return img, nil
}

// isDCTOnly reports whether the stream is a plain embedded JPEG. pdfcpu
// leaves DCT data encoded.
func isDCTOnly(sd types.StreamDict) bool {
	return len(sd.FilterPipeline) == 1 && sd.FilterPipeline[0].Name == "DCTDecode"
}

func decodeJPEG(data []byte, maxPixels int) (*raster.Buffer, error) {
	cfg, err := jpeg.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("jpeg: %w", err)
	}
	if cfg.Width <= 0 || cfg.Height <= 0 || cfg.Width > maxPixels/cfg.Height {
		return nil, fmt.Errorf("%w: jpeg %dx%d exceeds %d pixels", ErrBadGeometry, cfg.Width, cfg.Height, maxPixels)
	}
	img, err := jpeg.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("jpeg: %w", err)
	}
	return raster.FromImage(img), nil
}

// decodeSamples converts 8-bit interleaved samples to a buffer according to
// the component count of cs.
func decodeSamples(data []byte, w, h int, cs ColorSpace) (*raster.Buffer, error) {
	n := w * h
	switch cs.Components {
	case 1:
		if len(data) < n {
			return nil, fmt.Errorf("%w: %d bytes for %dx%d gray", ErrShortData, len(data), w, h)
		}
		pix := make([]byte, n)
		copy(pix, data)
		return raster.FromPix(w, h, raster.Gray, pix)
	case 3:
		if len(data) < n*3 {
			return nil, fmt.Errorf("%w: %d bytes for %dx%d rgb", ErrShortData, len(data), w, h)
		}
		pix := make([]byte, n*3)
		copy(pix, data)
		return raster.FromPix(w, h, raster.RGB, pix)
	case 4:
		if len(data) < n*4 {
			return nil, fmt.Errorf("%w: %d bytes for %dx%d cmyk", ErrShortData, len(data), w, h)
		}
		return raster.FromPix(w, h, raster.RGB, cmykToRGB(data[:n*4]))
	}
	return nil, fmt.Errorf("%w: %s with %d components", ErrUnsupportedColorSpace, cs, cs.Components)
}

// cmykToRGB applies R = 255(1-C)(1-K) and likewise for G and B.
func cmykToRGB(src []byte) []byte {
	out := make([]byte, len(src)/4*3)
	for i, j := 0, 0; i+3 < len(src); i, j = i+4, j+3 {
		k := 255 - uint32(src[i+3])
		out[j] = byte(((255-uint32(src[i]))*k + 127) / 255)
		out[j+1] = byte(((255-uint32(src[i+1]))*k + 127) / 255)
		out[j+2] = byte(((255-uint32(src[i+2]))*k + 127) / 255)
	}
	return out
}

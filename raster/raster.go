// CLAUDE:SUMMARY Flat 8-bit pixel buffer (gray or RGB) shared by preprocessing, PDF raster extraction and recognition engines.
// Package raster holds the in-memory image representation used across docsight.
//
// A Buffer is a row-major array of 8-bit samples with 1 (gray) or 3 (RGB)
// interleaved channels. Buffers are treated as immutable once produced:
// every transform returns a new Buffer.
package raster

import (
	"errors"
	"fmt"
	"image"
	"math"
)

// Channel counts supported by Buffer.
const (
	Gray = 1
	RGB  = 3
)

// ErrInvalidBuffer is returned when a buffer's geometry and sample slice disagree.
var ErrInvalidBuffer = errors.New("raster: invalid buffer")

// Buffer is a row-major 8-bit raster.
type Buffer struct {
	Width    int    `json:"width"`
	Height   int    `json:"height"`
	Channels int    `json:"channels"`
	Pix      []byte `json:"-"`
}

// New allocates a zeroed buffer.
func New(width, height, channels int) *Buffer {
	return &Buffer{
		Width:    width,
		Height:   height,
		Channels: channels,
		Pix:      make([]byte, width*height*channels),
	}
}

// FromPix wraps pix without copying after checking len(pix) == w*h*channels.
func FromPix(width, height, channels int, pix []byte) (*Buffer, error) {
	b := &Buffer{Width: width, Height: height, Channels: channels, Pix: pix}
	if err := b.Validate(); err != nil {
		return nil, err
	}
	return b, nil
}

// Validate checks the buffer invariants.
func (b *Buffer) Validate() error {
	if b == nil {
		return fmt.Errorf("%w: nil", ErrInvalidBuffer)
	}
	if b.Width <= 0 || b.Height <= 0 {
		return fmt.Errorf("%w: dimensions %dx%d", ErrInvalidBuffer, b.Width, b.Height)
	}
	if b.Channels != Gray && b.Channels != RGB {
		return fmt.Errorf("%w: %d channels", ErrInvalidBuffer, b.Channels)
	}
	if b.Width > math.MaxInt/b.Height/b.Channels {
		return fmt.Errorf("%w: dimensions %dx%d overflow", ErrInvalidBuffer, b.Width, b.Height)
	}
	if want := b.Width * b.Height * b.Channels; len(b.Pix) != want {
		return fmt.Errorf("%w: %d samples, want %d", ErrInvalidBuffer, len(b.Pix), want)
	}
	return nil
}

// Stride is the number of bytes per row.
func (b *Buffer) Stride() int { return b.Width * b.Channels }

// IsGray reports whether the buffer is single-channel.
func (b *Buffer) IsGray() bool { return b.Channels == Gray }

// Clone returns a deep copy.
func (b *Buffer) Clone() *Buffer {
	pix := make([]byte, len(b.Pix))
	copy(pix, b.Pix)
	return &Buffer{Width: b.Width, Height: b.Height, Channels: b.Channels, Pix: pix}
}

// Equal reports whether both buffers have the same geometry and samples.
func (b *Buffer) Equal(o *Buffer) bool {
	if b == nil || o == nil {
		return b == o
	}
	if b.Width != o.Width || b.Height != o.Height || b.Channels != o.Channels {
		return false
	}
	return string(b.Pix) == string(o.Pix)
}

// Image exposes the buffer as a standard library image. Gray buffers share
// their sample slice with the returned *image.Gray.
func (b *Buffer) Image() image.Image {
	rect := image.Rect(0, 0, b.Width, b.Height)
	if b.Channels == Gray {
		return &image.Gray{Pix: b.Pix, Stride: b.Width, Rect: rect}
	}
	img := image.NewRGBA(rect)
	for i, j := 0, 0; i < len(b.Pix); i, j = i+3, j+4 {
		img.Pix[j] = b.Pix[i]
		img.Pix[j+1] = b.Pix[i+1]
		img.Pix[j+2] = b.Pix[i+2]
		img.Pix[j+3] = 0xff
	}
	return img
}

// FromImage converts any image.Image into a Buffer. Gray images stay
// single-channel; everything else becomes RGB. Transparent pixels are
// composited over white so that dark-on-transparent text stays legible.
func FromImage(img image.Image) *Buffer {
	bounds := img.Bounds()
	w, h := bounds.Dx(), bounds.Dy()

	switch src := img.(type) {
	case *image.Gray:
		out := New(w, h, Gray)
		for y := 0; y < h; y++ {
			off := src.PixOffset(bounds.Min.X, bounds.Min.Y+y)
			copy(out.Pix[y*w:(y+1)*w], src.Pix[off:off+w])
		}
		return out
	case *image.Gray16:
		out := New(w, h, Gray)
		for y := 0; y < h; y++ {
			for x := 0; x < w; x++ {
				out.Pix[y*w+x] = uint8(src.Gray16At(bounds.Min.X+x, bounds.Min.Y+y).Y >> 8)
			}
		}
		return out
	}

	out := New(w, h, RGB)
	i := 0
	for y := bounds.Min.Y; y < bounds.Max.Y; y++ {
		for x := bounds.Min.X; x < bounds.Max.X; x++ {
			r, g, bl, a := img.At(x, y).RGBA()
			// Premultiplied: adding the uncovered share of white is the "over" operator.
			bg := 0xffff - a
			out.Pix[i] = uint8((r + bg) >> 8)
			out.Pix[i+1] = uint8((g + bg) >> 8)
			out.Pix[i+2] = uint8((bl + bg) >> 8)
			i += 3
		}
	}
	return out
}

// Luma returns the perceptual luminance of an RGB triple (BT.601 weights).
func Luma(r, g, b uint8) uint8 {
	return uint8((299*uint32(r) + 587*uint32(g) + 114*uint32(b) + 500) / 1000)
}

package raster

import (
	"bytes"
	"fmt"
	"image"
	"image/png"

	// Registered formats for Decode.
	_ "image/gif"
	_ "image/jpeg"

	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/tiff"
	_ "golang.org/x/image/webp"
)

// Decode parses an encoded image (PNG, JPEG, GIF, BMP, TIFF, WebP) and
// returns it as a Buffer together with the detected format name.
func Decode(data []byte) (*Buffer, string, error) {
	if len(data) == 0 {
		return nil, "", fmt.Errorf("raster: decode: empty input")
	}
	img, format, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, "", fmt.Errorf("raster: decode: %w", err)
	}
	b := FromImage(img)
	if err := b.Validate(); err != nil {
		return nil, format, err
	}
	return b, format, nil
}

// Sniff reports the registered format of data without decoding pixels.
// It returns "" when no decoder recognises the header.
func Sniff(data []byte) (format string, width, height int) {
	cfg, format, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		return "", 0, 0
	}
	return format, cfg.Width, cfg.Height
}

// EncodePNG serialises the buffer losslessly.
func (b *Buffer) EncodePNG() ([]byte, error) {
	if err := b.Validate(); err != nil {
		return nil, err
	}
	var buf bytes.Buffer
	enc := png.Encoder{CompressionLevel: png.BestSpeed}
	if err := enc.Encode(&buf, b.Image()); err != nil {
		return nil, fmt.Errorf("raster: encode png: %w", err)
	}
	return buf.Bytes(), nil
}

package preprocess

import (
	"github.com/hazyhaar/docsight/preprocess/internal/kernel"
	"github.com/hazyhaar/docsight/raster"
)

// StepFunc is one pure buffer transform. Implementations never modify
// their input.
type StepFunc func(*raster.Buffer) (*raster.Buffer, error)

// Step names as reported in StepTiming.
const (
	StepGrayscale = "grayscale"
	StepResize    = "resize"
	StepDenoise   = "denoise"
	StepNormalize = "normalize"
	StepSharpen   = "sharpen"
	StepDeskew    = "deskew"
	StepThreshold = "threshold"
)

// Resize targets.
const (
	TargetDPI      = 300
	AssumedDPI     = 72
	MaxDimension   = 4000
	MinDimension   = 300
	resizeSkipLow  = 0.95
	resizeSkipHigh = 1.05
)

var sharpenKernel = [9]int{
	0, -1, 0,
	-1, 5, -1,
	0, -1, 0,
}

// Grayscale converts RGB to a single luminance channel. Gray input is
// returned as is.
func Grayscale(b *raster.Buffer) (*raster.Buffer, error) {
	if err := b.Validate(); err != nil {
		return nil, err
	}
	if b.IsGray() {
		return b, nil
	}
	out := raster.New(b.Width, b.Height, raster.Gray)
	for i, j := 0, 0; j < len(out.Pix); i, j = i+3, j+1 {
		out.Pix[j] = raster.Luma(b.Pix[i], b.Pix[i+1], b.Pix[i+2])
	}
	return out, nil
}

// ResizeTarget computes the output size for an input of w x h, and whether
// the resize is close enough to identity to skip.
func ResizeTarget(w, h int) (nw, nh int, skip bool) {
	scale := float64(TargetDPI) / float64(AssumedDPI)
	fw, fh := float64(int(float64(w)*scale)), float64(int(float64(h)*scale))

	if fw > MaxDimension || fh > MaxDimension {
		down := MaxDimension / max(fw, fh)
		fw, fh = float64(int(fw*down)), float64(int(fh*down))
	}
	if fw < MinDimension && fh < MinDimension {
		up := MinDimension / max(min(fw, fh), 1)
		fw, fh = float64(int(fw*up)), float64(int(fh*up))
	}

	nw, nh = max(int(fw), 1), max(int(fh), 1)
	rw, rh := float64(nw)/float64(w), float64(nh)/float64(h)
	skip = rw >= resizeSkipLow && rw <= resizeSkipHigh && rh >= resizeSkipLow && rh <= resizeSkipHigh
	return nw, nh, skip
}

// Resize rescales toward 300 DPI assuming a 72 DPI source, bounded by
// MaxDimension and MinDimension, with a Lanczos-3 filter.
func Resize(b *raster.Buffer) (*raster.Buffer, error) {
	if err := b.Validate(); err != nil {
		return nil, err
	}
	nw, nh, skip := ResizeTarget(b.Width, b.Height)
	if skip {
		return b, nil
	}
	pix := kernel.Resample(b.Pix, b.Width, b.Height, b.Channels, nw, nh)
	return raster.FromPix(nw, nh, b.Channels, pix)
}

// Denoise applies a 3x3 median filter to the luminance channel.
func Denoise(b *raster.Buffer) (*raster.Buffer, error) {
	g, err := Grayscale(b)
	if err != nil {
		return nil, err
	}
	return raster.FromPix(g.Width, g.Height, raster.Gray, kernel.Median3x3(g.Pix, g.Width, g.Height))
}

// Normalize stretches the global sample range to [0,255]. Uniform images
// are returned unchanged.
func Normalize(b *raster.Buffer) (*raster.Buffer, error) {
	if err := b.Validate(); err != nil {
		return nil, err
	}
	lo, hi := byte(255), byte(0)
	for _, v := range b.Pix {
		lo = min(lo, v)
		hi = max(hi, v)
	}
	if hi <= lo {
		return b, nil
	}
	var lut [256]byte
	span := int(hi) - int(lo)
	for v := int(lo); v <= int(hi); v++ {
		lut[v] = byte(((v-int(lo))*255 + span/2) / span)
	}
	out := raster.New(b.Width, b.Height, b.Channels)
	for i, v := range b.Pix {
		out.Pix[i] = lut[v]
	}
	return out, nil
}

// Sharpen convolves every channel with the 4-neighbour Laplacian sharpen
// kernel.
func Sharpen(b *raster.Buffer) (*raster.Buffer, error) {
	if err := b.Validate(); err != nil {
		return nil, err
	}
	pix := kernel.Convolve3x3(b.Pix, b.Width, b.Height, b.Channels, sharpenKernel)
	return raster.FromPix(b.Width, b.Height, b.Channels, pix)
}

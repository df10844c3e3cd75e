package preprocess

import (
	"github.com/hazyhaar/docsight/preprocess/internal/kernel"
	"github.com/hazyhaar/docsight/raster"
)

// Sauvola parameters.
const (
	SauvolaWindow = 15
	SauvolaK      = 0.2
	SauvolaR      = 128.0
)

// Threshold binarises the luminance image with Sauvola's local threshold.
// Output samples are 0 or 255.
func Threshold(b *raster.Buffer) (*raster.Buffer, error) {
	g, err := Grayscale(b)
	if err != nil {
		return nil, err
	}
	w, h := g.Width, g.Height
	it := kernel.NewIntegral(g.Pix, w, h)
	half := SauvolaWindow / 2

	out := raster.New(w, h, raster.Gray)
	for y := 0; y < h; y++ {
		y1, y2 := max(y-half, 0), min(y+half, h-1)
		for x := 0; x < w; x++ {
			x1, x2 := max(x-half, 0), min(x+half, w-1)
			mean, std := it.Window(x1, y1, x2, y2)
			t := mean * (1 + SauvolaK*(std/SauvolaR-1))
			if float64(g.Pix[y*w+x]) > t {
				out.Pix[y*w+x] = 255
			}
		}
	}
	return out, nil
}

package preprocess

import (
	"math"

	"github.com/hazyhaar/docsight/preprocess/internal/kernel"
	"github.com/hazyhaar/docsight/raster"
)

const (
	darkThreshold = 128
	coarseStep    = 0.5 // degrees, searched over [-5, 5]
	coarseSteps   = 10
	fineStep      = 0.1 // degrees, searched over best ± 0.5
	fineSteps     = 5
	minSkew       = 0.1 // degrees
)

// Deskew estimates the text skew from horizontal projection profiles and
// rotates the luminance image to level it. Angles under 0.1 degrees are left
// alone.
func Deskew(b *raster.Buffer) (*raster.Buffer, error) {
	g, err := Grayscale(b)
	if err != nil {
		return nil, err
	}
	angle := SkewAngle(g)
	if math.Abs(angle) < minSkew {
		return g, nil
	}
	pix := kernel.RotateBilinear(g.Pix, g.Width, g.Height, angle*math.Pi/180, 255)
	return raster.FromPix(g.Width, g.Height, raster.Gray, pix)
}

// SkewAngle returns the estimated skew of a gray buffer in degrees.
func SkewAngle(g *raster.Buffer) float64 {
	p := newProfiler(g)
	if len(p.xs) == 0 {
		return 0
	}

	best, bestVar := 0.0, 0.0
	for i := -coarseSteps; i <= coarseSteps; i++ {
		a := float64(i) * coarseStep
		if v := p.variance(a); v > bestVar {
			best, bestVar = a, v
		}
	}
	center := best
	for j := -fineSteps; j <= fineSteps; j++ {
		a := center + float64(j)*fineStep
		if v := p.variance(a); v > bestVar {
			best, bestVar = a, v
		}
	}
	return best
}

// profiler holds the dark pixel coordinates, relative to the image centre,
// and a reusable row histogram.
type profiler struct {
	xs, ys []float64
	cy     float64
	rows   []int
}

func newProfiler(g *raster.Buffer) *profiler {
	p := &profiler{
		cy:   float64(g.Height) / 2,
		rows: make([]int, g.Height),
	}
	cx := float64(g.Width) / 2
	for y := 0; y < g.Height; y++ {
		row := g.Pix[y*g.Width : (y+1)*g.Width]
		for x, v := range row {
			if v < darkThreshold {
				p.xs = append(p.xs, float64(x)-cx)
				p.ys = append(p.ys, float64(y)-p.cy)
			}
		}
	}
	return p
}

// variance buckets every dark pixel by its rotated row and returns the
// variance of the per-row counts.
func (p *profiler) variance(deg float64) float64 {
	clear(p.rows)
	sin, cos := math.Sincos(deg * math.Pi / 180)
	h := len(p.rows)
	for i := range p.xs {
		// Truncates toward zero: rows just above the top land in row 0.
		ny := int(p.ys[i]*cos - p.xs[i]*sin + p.cy)
		if ny >= 0 && ny < h {
			p.rows[ny]++
		}
	}
	var sum float64
	for _, c := range p.rows {
		sum += float64(c)
	}
	mean := sum / float64(h)
	var acc float64
	for _, c := range p.rows {
		d := float64(c) - mean
		acc += d * d
	}
	return acc / float64(h)
}

package kernel

import "math"

// Integral is a pair of summed-area tables over a single-channel image:
// one of sample values and one of squared sample values. Both have
// (w+1)*(h+1) entries with a zero first row and column.
type Integral struct {
	w, h int
	sum  []uint64
	sq   []uint64
}

// NewIntegral builds the tables in one pass.
func NewIntegral(src []byte, w, h int) *Integral {
	iw := w + 1
	it := &Integral{
		w:   w,
		h:   h,
		sum: make([]uint64, iw*(h+1)),
		sq:  make([]uint64, iw*(h+1)),
	}
	for y := 0; y < h; y++ {
		var rowSum, rowSq uint64
		for x := 0; x < w; x++ {
			v := uint64(src[y*w+x])
			rowSum += v
			rowSq += v * v
			it.sum[(y+1)*iw+x+1] = it.sum[y*iw+x+1] + rowSum
			it.sq[(y+1)*iw+x+1] = it.sq[y*iw+x+1] + rowSq
		}
	}
	return it
}

// Window returns mean and standard deviation over the inclusive rectangle
// [x1,x2] x [y1,y2]. Callers clip the rectangle to the image.
func (it *Integral) Window(x1, y1, x2, y2 int) (mean, std float64) {
	iw := it.w + 1
	x2++
	y2++
	area := float64((x2 - x1) * (y2 - y1))
	s := it.sum[y2*iw+x2] + it.sum[y1*iw+x1] - it.sum[y1*iw+x2] - it.sum[y2*iw+x1]
	q := it.sq[y2*iw+x2] + it.sq[y1*iw+x1] - it.sq[y1*iw+x2] - it.sq[y2*iw+x1]
	mean = float64(s) / area
	variance := float64(q)/area - mean*mean
	if variance < 0 {
		variance = 0
	}
	return mean, math.Sqrt(variance)
}

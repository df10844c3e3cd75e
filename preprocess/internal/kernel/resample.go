package kernel

import "math"

const lanczosA = 3

func lanczos3(x float64) float64 {
	if x == 0 {
		return 1
	}
	if x <= -lanczosA || x >= lanczosA {
		return 0
	}
	px := math.Pi * x
	return lanczosA * math.Sin(px) * math.Sin(px/lanczosA) / (px * px)
}

// taps holds, for each output coordinate, the first source index and the
// normalised weights of the contributing source samples. Weights for all
// outputs live in one flat slice.
type taps struct {
	start   []int
	offset  []int
	count   []int
	weights []float32
}

func computeTaps(srcLen, dstLen int) taps {
	scale := float64(srcLen) / float64(dstLen)
	filterScale := math.Max(scale, 1)
	support := lanczosA * filterScale

	t := taps{
		start:  make([]int, dstLen),
		offset: make([]int, dstLen),
		count:  make([]int, dstLen),
	}
	for i := 0; i < dstLen; i++ {
		center := (float64(i) + 0.5) * scale
		lo := int(math.Floor(center - support))
		hi := int(math.Ceil(center + support))
		if lo < 0 {
			lo = 0
		}
		if hi > srcLen {
			hi = srcLen
		}
		if hi <= lo {
			lo = clampInt(int(center), 0, srcLen-1)
			hi = lo + 1
		}
		t.start[i] = lo
		t.offset[i] = len(t.weights)
		var sum float64
		for j := lo; j < hi; j++ {
			wgt := lanczos3((float64(j) + 0.5 - center) / filterScale)
			t.weights = append(t.weights, float32(wgt))
			sum += wgt
		}
		if sum != 0 {
			for j := t.offset[i]; j < len(t.weights); j++ {
				t.weights[j] = float32(float64(t.weights[j]) / sum)
			}
		}
		t.count[i] = hi - lo
	}
	return t
}

// Resample scales an image to dw x dh with a separable Lanczos-3 filter.
// The horizontal pass runs first into a float32 intermediate.
func Resample(src []byte, sw, sh, ch, dw, dh int) []byte {
	hx := computeTaps(sw, dw)
	tmp := make([]float32, dw*sh*ch)
	for y := 0; y < sh; y++ {
		srow := y * sw * ch
		trow := y * dw * ch
		for x := 0; x < dw; x++ {
			off, n, start := hx.offset[x], hx.count[x], hx.start[x]
			for c := 0; c < ch; c++ {
				var acc float32
				for k := 0; k < n; k++ {
					acc += hx.weights[off+k] * float32(src[srow+(start+k)*ch+c])
				}
				tmp[trow+x*ch+c] = acc
			}
		}
	}

	vy := computeTaps(sh, dh)
	dst := make([]byte, dw*dh*ch)
	stride := dw * ch
	for y := 0; y < dh; y++ {
		off, n, start := vy.offset[y], vy.count[y], vy.start[y]
		drow := y * stride
		for i := 0; i < stride; i++ {
			var acc float32
			for k := 0; k < n; k++ {
				acc += vy.weights[off+k] * tmp[(start+k)*stride+i]
			}
			dst[drow+i] = clampByte(acc)
		}
	}
	return dst
}

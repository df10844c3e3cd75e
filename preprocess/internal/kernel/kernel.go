// Package kernel implements the numeric primitives behind the preprocessing
// steps. All functions work on flat row-major 8-bit sample slices with
// explicit width, height and channel count and allocate only their outputs.
package kernel

import "math"

// clampByte rounds v and clamps it to [0,255].
func clampByte(v float32) byte {
	if v <= 0 {
		return 0
	}
	if v >= 255 {
		return 255
	}
	return byte(v + 0.5)
}

func clampInt(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

// Convolve3x3 applies a 3x3 integer kernel to every channel independently.
// Borders replicate the nearest edge sample. Results are clamped to [0,255].
func Convolve3x3(src []byte, w, h, ch int, k [9]int) []byte {
	dst := make([]byte, len(src))
	stride := w * ch
	for y := 0; y < h; y++ {
		rows := [3]int{
			clampInt(y-1, 0, h-1) * stride,
			y * stride,
			clampInt(y+1, 0, h-1) * stride,
		}
		for x := 0; x < w; x++ {
			cols := [3]int{
				clampInt(x-1, 0, w-1) * ch,
				x * ch,
				clampInt(x+1, 0, w-1) * ch,
			}
			for c := 0; c < ch; c++ {
				acc := 0
				for ky := 0; ky < 3; ky++ {
					for kx := 0; kx < 3; kx++ {
						if kv := k[ky*3+kx]; kv != 0 {
							acc += kv * int(src[rows[ky]+cols[kx]+c])
						}
					}
				}
				switch {
				case acc < 0:
					acc = 0
				case acc > 255:
					acc = 255
				}
				dst[y*stride+x*ch+c] = byte(acc)
			}
		}
	}
	return dst
}

// Median3x3 replaces each sample of a single-channel image with the median
// of its 3x3 neighbourhood. Borders replicate the nearest edge sample.
func Median3x3(src []byte, w, h int) []byte {
	dst := make([]byte, len(src))
	var win [9]byte
	for y := 0; y < h; y++ {
		y0, y2 := clampInt(y-1, 0, h-1)*w, clampInt(y+1, 0, h-1)*w
		y1 := y * w
		for x := 0; x < w; x++ {
			x0, x2 := clampInt(x-1, 0, w-1), clampInt(x+1, 0, w-1)
			win = [9]byte{
				src[y0+x0], src[y0+x], src[y0+x2],
				src[y1+x0], src[y1+x], src[y1+x2],
				src[y2+x0], src[y2+x], src[y2+x2],
			}
			// insertion sort, nine elements
			for i := 1; i < 9; i++ {
				v := win[i]
				j := i - 1
				for j >= 0 && win[j] > v {
					win[j+1] = win[j]
					j--
				}
				win[j+1] = v
			}
			dst[y1+x] = win[4]
		}
	}
	return dst
}

// RotateBilinear rotates a single-channel image about its centre by angle
// radians. Output pixel q samples the input at R(angle)·q, so an image whose
// content is skewed by angle comes out level. Uncovered pixels get fill.
func RotateBilinear(src []byte, w, h int, angle float64, fill byte) []byte {
	dst := make([]byte, len(src))
	sin, cos := math.Sincos(angle)
	cx, cy := float64(w)/2, float64(h)/2
	maxX, maxY := float64(w-1), float64(h-1)
	for y := 0; y < h; y++ {
		qy := float64(y) - cy
		for x := 0; x < w; x++ {
			qx := float64(x) - cx
			sx := qx*cos - qy*sin + cx
			sy := qx*sin + qy*cos + cy
			if sx < 0 || sy < 0 || sx > maxX || sy > maxY {
				dst[y*w+x] = fill
				continue
			}
			x0, y0 := int(sx), int(sy)
			x1, y1 := x0+1, y0+1
			if x1 >= w {
				x1 = w - 1
			}
			if y1 >= h {
				y1 = h - 1
			}
			fx, fy := sx-float64(x0), sy-float64(y0)
			top := float64(src[y0*w+x0])*(1-fx) + float64(src[y0*w+x1])*fx
			bot := float64(src[y1*w+x0])*(1-fx) + float64(src[y1*w+x1])*fx
			dst[y*w+x] = clampByte(float32(top*(1-fy) + bot*fy))
		}
	}
	return dst
}

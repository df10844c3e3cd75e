package kernel

import (
	"math"
	"testing"
)

func TestConvolve3x3_Identity(t *testing.T) {
	// WHAT: The identity kernel reproduces its input on every channel.
	// WHY: Border replication must not leak neighbouring samples.
	src := []byte{1, 2, 3, 4, 5, 6, 7, 8, 9, 10, 11, 12}
	got := Convolve3x3(src, 2, 2, 3, [9]int{0, 0, 0, 0, 1, 0, 0, 0, 0})
	if string(got) != string(src) {
		t.Errorf("identity convolution = %v, want %v", got, src)
	}
}

func TestConvolve3x3_Clamps(t *testing.T) {
	// WHAT: Sharpening a lone bright pixel clamps to 255 and its neighbours to 0.
	// WHY: Integer overflow would wrap and create speckle.
	src := make([]byte, 9)
	src[4] = 200
	got := Convolve3x3(src, 3, 3, 1, [9]int{0, -1, 0, -1, 5, -1, 0, -1, 0})
	if got[4] != 255 {
		t.Errorf("centre = %d, want 255", got[4])
	}
	if got[1] != 0 || got[3] != 0 {
		t.Errorf("neighbours = %d,%d, want 0", got[1], got[3])
	}
}

func TestMedian3x3_RemovesSpeck(t *testing.T) {
	// WHAT: An isolated dark pixel on white is removed.
	// WHY: Salt-and-pepper noise is the reason the filter exists.
	src := make([]byte, 25)
	for i := range src {
		src[i] = 255
	}
	src[12] = 0
	got := Median3x3(src, 5, 5)
	for i, v := range got {
		if v != 255 {
			t.Fatalf("pixel %d = %d, want 255", i, v)
		}
	}
}

func TestRotateBilinear_ZeroAngle(t *testing.T) {
	src := []byte{10, 20, 30, 40, 50, 60}
	got := RotateBilinear(src, 3, 2, 0, 255)
	// The last row/column sit at the sampling boundary and stay in range.
	for i := range src {
		if got[i] != src[i] {
			t.Fatalf("zero rotation changed pixel %d: %d -> %d", i, src[i], got[i])
		}
	}
}

func TestRotateBilinear_FillsCorners(t *testing.T) {
	// WHAT: A 45 degree rotation exposes corners that take the fill value.
	// WHY: Deskew must pad with white, not black.
	src := make([]byte, 20*20)
	got := RotateBilinear(src, 20, 20, math.Pi/4, 255)
	if got[0] != 255 {
		t.Errorf("corner = %d, want fill 255", got[0])
	}
	if got[10*20+10] != 0 {
		t.Errorf("centre = %d, want 0", got[10*20+10])
	}
}

func TestResample_UniformStaysUniform(t *testing.T) {
	// WHAT: Resampling a flat image yields the same flat value.
	// WHY: Normalised weights must sum to one in both directions.
	src := make([]byte, 10*8*3)
	for i := range src {
		src[i] = 137
	}
	for _, dims := range [][2]int{{25, 20}, {4, 3}, {10, 8}} {
		got := Resample(src, 10, 8, 3, dims[0], dims[1])
		if len(got) != dims[0]*dims[1]*3 {
			t.Fatalf("len = %d for %v", len(got), dims)
		}
		for i, v := range got {
			if v < 136 || v > 138 {
				t.Fatalf("%v: sample %d = %d, want ~137", dims, i, v)
			}
		}
	}
}

func TestIntegralWindow(t *testing.T) {
	// WHAT: Window stats match a direct computation.
	// WHY: Sauvola depends on exact mean and deviation.
	src := []byte{
		0, 10, 20,
		30, 40, 50,
		60, 70, 80,
	}
	it := NewIntegral(src, 3, 3)
	mean, std := it.Window(0, 0, 2, 2)
	if mean != 40 {
		t.Errorf("mean = %f, want 40", mean)
	}
	var ss float64
	for _, v := range src {
		d := float64(v) - 40
		ss += d * d
	}
	want := math.Sqrt(ss / 9)
	if math.Abs(std-want) > 1e-9 {
		t.Errorf("std = %f, want %f", std, want)
	}
	mean, std = it.Window(1, 1, 1, 1)
	if mean != 40 || std != 0 {
		t.Errorf("single cell = (%f,%f), want (40,0)", mean, std)
	}
}

package warp

import (
	"image"
	"image/color"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMatrixApplyIdentity(t *testing.T) {
	m := Matrix{A: 1, D: 1}
	x, y := m.Apply(3.5, -2.0)
	assert.Equal(t, 3.5, x)
	assert.Equal(t, -2.0, y)
}

func TestMatrixInvertRoundTrip(t *testing.T) {
	m := Matrix{A: 2, B: 0.3, TX: 5, C: -0.1, D: 1.5, TY: -3}
	inv := m.Invert()

	x, y := m.Apply(10, 20)
	bx, by := inv.Apply(x, y)
	assert.InDelta(t, 10, bx, 1e-9)
	assert.InDelta(t, 20, by, 1e-9)
}

func TestEstimateAffineExactTranslation(t *testing.T) {
	src := [5][2]float64{{0, 0}, {1, 0}, {0, 1}, {1, 1}, {0.5, 0.5}}
	var dst [5][2]float64
	for i, p := range src {
		dst[i] = [2]float64{p[0] + 10, p[1] - 4}
	}

	m := EstimateAffine(src, dst)
	for _, p := range src {
		x, y := m.Apply(p[0], p[1])
		assert.InDelta(t, p[0]+10, x, 1e-6)
		assert.InDelta(t, p[1]-4, y, 1e-6)
	}
}

func TestEstimateAffineDegenerateFallsBackToIdentity(t *testing.T) {
	// all five source points collinear
	src := [5][2]float64{{0, 0}, {1, 0}, {2, 0}, {3, 0}, {4, 0}}
	dst := [5][2]float64{{0, 0}, {1, 1}, {2, 2}, {3, 3}, {4, 4}}

	m := EstimateAffine(src, dst)
	assert.Equal(t, Matrix{A: 1, D: 1}, m)
}

func TestWarpCropSamplesWithinBounds(t *testing.T) {
	src := image.NewRGBA(image.Rect(0, 0, 4, 4))
	for y := 0; y < 4; y++ {
		for x := 0; x < 4; x++ {
			src.Set(x, y, color.RGBA{R: uint8(x * 60), G: uint8(y * 60), B: 0, A: 255})
		}
	}

	m := Matrix{A: 1, D: 1}
	out := WarpCrop(src, m, 4)
	require.Equal(t, 4, out.Bounds().Dx())
	r, g, _, _ := out.At(2, 3).RGBA()
	assert.Equal(t, uint32(src.RGBAAt(2, 3).R)*257, r)
	assert.Equal(t, uint32(src.RGBAAt(2, 3).G)*257, g)
}

func TestPasteBackBlendsByMaskAlpha(t *testing.T) {
	dst := image.NewRGBA(image.Rect(0, 0, 2, 2))
	for y := 0; y < 2; y++ {
		for x := 0; x < 2; x++ {
			dst.Set(x, y, color.RGBA{R: 0, G: 0, B: 0, A: 255})
		}
	}
	crop := image.NewRGBA(image.Rect(0, 0, 2, 2))
	for y := 0; y < 2; y++ {
		for x := 0; x < 2; x++ {
			crop.Set(x, y, color.RGBA{R: 255, G: 255, B: 255, A: 255})
		}
	}
	mask := [][]float32{{1, 0}, {1, 0}}

	PasteBack(dst, crop, Matrix{A: 1, D: 1}, 2, mask)

	assert.Equal(t, uint8(255), dst.RGBAAt(0, 0).R)
	assert.Equal(t, uint8(0), dst.RGBAAt(1, 0).R)
}

func TestBlend8ClampsRange(t *testing.T) {
	assert.Equal(t, uint8(255), blend8(255, 255, 1))
	assert.Equal(t, uint8(0), blend8(0, 0, 0))
	assert.InDelta(t, 127, int(blend8(255, 0, 0.5)), 1)
}

func TestEstimateAffineScaleAndRotation(t *testing.T) {
	// a known similarity transform: scale 2, rotate 90deg, translate (1,1)
	theta := math.Pi / 2
	scale := 2.0
	cos, sin := math.Cos(theta), math.Sin(theta)

	src := [5][2]float64{{0, 0}, {1, 0}, {0, 1}, {2, 3}, {-1, -1}}
	var dst [5][2]float64
	for i, p := range src {
		x, y := p[0], p[1]
		dst[i] = [2]float64{
			scale*(cos*x-sin*y) + 1,
			scale*(sin*x+cos*y) + 1,
		}
	}

	m := EstimateAffine(src, dst)
	for i, p := range src {
		x, y := m.Apply(p[0], p[1])
		assert.InDelta(t, dst[i][0], x, 1e-6)
		assert.InDelta(t, dst[i][1], y, 1e-6)
	}
}

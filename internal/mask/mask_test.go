package mask

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBoxMaskZeroPaddingZeroBlurIsAllOnes(t *testing.T) {
	m := BoxMask(16, [4]int{0, 0, 0, 0}, 0)
	require.Len(t, m, 16)
	for y := 0; y < 16; y++ {
		for x := 0; x < 16; x++ {
			assert.Equal(t, float32(1), m[y][x])
		}
	}
}

func TestBoxMaskPaddingZeroesEdges(t *testing.T) {
	m := BoxMask(10, [4]int{2, 2, 2, 2}, 0)
	assert.Equal(t, float32(0), m[0][0])
	assert.Equal(t, float32(0), m[9][9])
	assert.Equal(t, float32(1), m[5][5])
}

func TestComposeIsElementwiseMinimumAndClamped(t *testing.T) {
	a := Mask{{0.2, 0.9}, {0.5, 1.0}}
	b := Mask{{0.8, 0.1}, {0.5, 0.3}}

	out := Compose(a, b)
	require.NotNil(t, out)

	for y := range out {
		for x := range out[y] {
			want := a[y][x]
			if b[y][x] < want {
				want = b[y][x]
			}
			assert.Equal(t, want, out[y][x])
			assert.GreaterOrEqual(t, out[y][x], float32(0))
			assert.LessOrEqual(t, out[y][x], float32(1))
		}
	}
}

func TestComposeNoActiveMasksReturnsNil(t *testing.T) {
	assert.Nil(t, Compose(nil, nil))
}

func TestRemapStretchSharpensAroundMidpoint(t *testing.T) {
	// Exercises the formula spec §4.4/§9 requires preserved exactly:
	// (max(m,0.5)-0.5)*2.
	in := Mask{{0.0, 0.5, 0.75, 1.0}}
	got := remapStretch(in)
	want := []float32{0.0, 0.0, 0.5, 1.0}
	for i, v := range got[0] {
		assert.InDelta(t, want[i], v, 1e-6)
	}
}

package processors

import (
	"image"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNilMaskerMethodsReturnNoMask(t *testing.T) {
	var m *Masker
	crop := image.NewRGBA(image.Rect(0, 0, 4, 4))
	assert.Nil(t, m.Occlusion(crop, 4))
	assert.Nil(t, m.Region(crop, 4))
}

func TestMaskerWithNoSessionsReturnsNoMask(t *testing.T) {
	m := &Masker{}
	crop := image.NewRGBA(image.Rect(0, 0, 4, 4))
	assert.Nil(t, m.Occlusion(crop, 4))
	assert.Nil(t, m.Region(crop, 4))
}

func TestArgmaxChannelsPicksWinningClass(t *testing.T) {
	// 2 classes, 2x2: class 1 wins everywhere.
	flat := []float32{
		0, 0, 0, 0, // class 0
		1, 1, 1, 1, // class 1
	}
	grid := argmaxChannels(flat, 2, 2)
	for y := 0; y < 2; y++ {
		for x := 0; x < 2; x++ {
			assert.Equal(t, float32(1), grid[y][x])
		}
	}
}

func TestResizeGridNearestNeighbour(t *testing.T) {
	src := [][]float32{{1, 2}, {3, 4}}
	out := resizeGrid(src, 4)
	assert.Len(t, out, 4)
	assert.Len(t, out[0], 4)
	assert.Equal(t, src[0][0], out[0][0])
	assert.Equal(t, src[1][1], out[3][3])
}

func TestResizeGridSameSizeReturnsInput(t *testing.T) {
	src := [][]float32{{1, 2}, {3, 4}}
	out := resizeGrid(src, 2)
	assert.Equal(t, src, out)
}

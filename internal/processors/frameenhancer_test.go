package processors

import (
	"image"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMinIntReturnsSmaller(t *testing.T) {
	assert.Equal(t, 3, minInt(3, 7))
	assert.Equal(t, 3, minInt(7, 3))
}

func TestBlend8ClampsToByteRange(t *testing.T) {
	assert.Equal(t, uint8(255), blend8(255, 0, 2))
	assert.Equal(t, uint8(0), blend8(0, 255, 2))
}

func TestFrameEnhancerProcessUpscalesFrame(t *testing.T) {
	const size, scale = 32, 2
	out := make([]float32, 3*tileSize*scale*tileSize*scale)

	enhancer := &FrameEnhancer{
		handle: &fakeRunner{outputs: [][]float32{out}},
		scale:  scale,
	}

	frame := solidFrame(size)
	err := enhancer.Process(frame, nil)
	require.NoError(t, err)

	result, ok := frame.Image.(*image.RGBA)
	require.True(t, ok)
	assert.Equal(t, size*scale, result.Bounds().Dx())
	assert.Equal(t, size*scale, result.Bounds().Dy())
}

package processors

import (
	"image"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fusion-core/engine/internal/models"
)

func TestFaceEnhancerProcessBlendsMaskedRegion(t *testing.T) {
	out := make([]float32, 3*enhanceCropSize*enhanceCropSize)
	for i := range out {
		out[i] = 1 // far from 127.5 mean, so blended pixels move visibly
	}
	enhancer := &FaceEnhancer{
		handle: &fakeRunner{outputs: [][]float32{out}},
		params: models.StepParams{BlendFactor: 0.8, MaskBlur: 0.2},
	}

	frame := solidFrame(512)
	faces := []models.Face{{Landmarks5: centeredLandmarks(256, 256, 60)}}

	err := enhancer.Process(frame, faces)
	require.NoError(t, err)
	_, ok := frame.Image.(*image.RGBA)
	assert.True(t, ok)
}

func TestFaceEnhancerProcessNoOpWithoutFaces(t *testing.T) {
	enhancer := &FaceEnhancer{handle: &fakeRunner{}}
	frame := solidFrame(64)
	original := frame.Image

	err := enhancer.Process(frame, nil)
	require.NoError(t, err)
	assert.Same(t, original, frame.Image)
}

func TestScaleMaskMultipliesEveryValue(t *testing.T) {
	m := [][]float32{{1, 0.5}, {0.25, 0}}
	out := scaleMask(m, 0.5)
	assert.Equal(t, float32(0.5), out[0][0])
	assert.Equal(t, float32(0.25), out[0][1])
	assert.Equal(t, float32(0.125), out[1][0])
	assert.Equal(t, float32(0), out[1][1])
}

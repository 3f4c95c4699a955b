package processors

import (
	"image"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fusion-core/engine/internal/models"
)

// fakeRunner is a sessionRunner stand-in that returns configurable output
// without touching ONNX Runtime, letting processor tests exercise the
// warp/mask/composite plumbing in isolation.
type fakeRunner struct {
	outputs [][]float32
	err     error
	calls   int
}

func (f *fakeRunner) Run(input []float32) ([]float32, error) {
	out, err := f.RunAll([][]float32{input})
	if err != nil {
		return nil, err
	}
	return out[0], nil
}

func (f *fakeRunner) RunAll(inputs [][]float32) ([][]float32, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	return f.outputs, nil
}

func solidFrame(size int) *models.FrameData {
	img := image.NewRGBA(image.Rect(0, 0, size, size))
	for y := 0; y < size; y++ {
		for x := 0; x < size; x++ {
			img.Set(x, y, image.White.At(x, y))
		}
	}
	return &models.FrameData{Image: img}
}

func centeredLandmarks(cx, cy, spread float32) [5]models.Point2D {
	return [5]models.Point2D{
		{X: cx - spread, Y: cy - spread/2},
		{X: cx + spread, Y: cy - spread/2},
		{X: cx, Y: cy},
		{X: cx - spread/2, Y: cy + spread},
		{X: cx + spread/2, Y: cy + spread},
	}
}

func TestFaceSwapperProcessMutatesFrameImage(t *testing.T) {
	out := make([]float32, 3*swapCropSize*swapCropSize)
	swapper := &FaceSwapper{
		handle: &fakeRunner{outputs: [][]float32{out}},
		params: models.StepParams{MaskBlur: 0.3},
	}

	frame := solidFrame(256)
	frame.SourceEmbedding = &models.SharedEmbedding{NormedVector: make([]float32, 512)}
	faces := []models.Face{{
		Box:        models.BBox{X1: 64, Y1: 64, X2: 192, Y2: 192},
		Landmarks5: centeredLandmarks(128, 128, 30),
	}}

	err := swapper.Process(frame, faces)
	require.NoError(t, err)
	_, ok := frame.Image.(*image.RGBA)
	assert.True(t, ok)
}

func TestFaceSwapperProcessNoOpWithoutSourceEmbedding(t *testing.T) {
	swapper := &FaceSwapper{handle: &fakeRunner{}}
	frame := solidFrame(64)
	original := frame.Image

	err := swapper.Process(frame, []models.Face{{Box: models.BBox{X1: 1, Y1: 1, X2: 10, Y2: 10}}})
	require.NoError(t, err)
	assert.Same(t, original, frame.Image)
}

func TestFaceSwapperProcessNoOpWithoutFaces(t *testing.T) {
	swapper := &FaceSwapper{handle: &fakeRunner{}}
	frame := solidFrame(64)
	frame.SourceEmbedding = &models.SharedEmbedding{NormedVector: make([]float32, 512)}
	original := frame.Image

	err := swapper.Process(frame, nil)
	require.NoError(t, err)
	assert.Same(t, original, frame.Image)
}

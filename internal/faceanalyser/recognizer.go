package faceanalyser

import (
	"image"
	"math"

	ort "github.com/yalue/onnxruntime_go"

	"github.com/fusion-core/engine/internal/inference"
	"github.com/fusion-core/engine/internal/models"
	"github.com/fusion-core/engine/internal/warp"
)

// Recognizer extracts face embeddings using an ArcFace-family model,
// adapted from the teacher's internal/vision/embed.go to run through the
// shared session registry instead of owning a private session.
type Recognizer struct {
	handle *inference.Handle
	dim    int
}

// NewRecognizer acquires an ArcFace w600k_r50-shaped session (112x112
// input, 512-dim output).
func NewRecognizer(reg *inference.Registry, modelPath, provider string, deviceID int) (*Recognizer, error) {
	const dim = 512
	spec := inference.IOSpec{
		InputNames:   []string{"input.1"},
		InputShapes:  []ort.Shape{ort.NewShape(1, 3, 112, 112)},
		OutputNames:  []string{"683"},
		OutputShapes: []ort.Shape{ort.NewShape(1, int64(dim))},
	}
	key := inference.SessionKey{ModelPath: modelPath, ProviderList: provider, DeviceID: deviceID}
	h, err := reg.Acquire(key, spec)
	if err != nil {
		return nil, err
	}
	return &Recognizer{handle: h, dim: dim}, nil
}

// Extract aligns frame to the Arcface-112 canonical crop using lm5, runs
// the recogniser, and returns the raw and L2-normalised embeddings.
func (r *Recognizer) Extract(frame image.Image, lm5 [5]models.Point2D) (raw, normed []float32, err error) {
	tmplPoints := warp.Arcface112V2.Scaled(112)
	srcPoints := warp.LandmarksToPoints(lm5)
	m := warp.EstimateAffine(srcPoints, tmplPoints)
	crop := warp.WarpCrop(frame, m, 112)

	input := imageToFloat32CHW(crop, 112, 112, [3]float32{127.5, 127.5, 127.5}, [3]float32{127.5, 127.5, 127.5})
	out, err := r.handle.Run(input)
	if err != nil {
		return nil, nil, err
	}

	raw = make([]float32, len(out))
	copy(raw, out)
	normed = make([]float32, len(out))
	copy(normed, out)
	l2Normalize(normed)
	return raw, normed, nil
}

func l2Normalize(v []float32) {
	var sum float64
	for _, x := range v {
		sum += float64(x) * float64(x)
	}
	norm := float32(math.Sqrt(sum))
	if norm > 0 {
		for i := range v {
			v[i] /= norm
		}
	}
}

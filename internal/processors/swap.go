package processors

import (
	ort "github.com/yalue/onnxruntime_go"

	"github.com/fusion-core/engine/internal/inference"
	"github.com/fusion-core/engine/internal/models"
	"github.com/fusion-core/engine/internal/warp"
)

const swapCropSize = 128

var swapMean = [3]float32{127.5, 127.5, 127.5}
var swapStd = [3]float32{127.5, 127.5, 127.5}

// FaceSwapper implements the InSwapper-family processor of spec §4.2: warp
// each target face to a 128x128 Arcface crop, run the swap model with the
// source embedding, inverse-warp the result back and composite it through
// a mandatory mask.
type FaceSwapper struct {
	handle sessionRunner
	masker *Masker
	params models.StepParams
}

// NewFaceSwapper acquires an inswapper-shaped session (target crop +
// source embedding in, swapped crop out). masker may be nil when the step
// requests neither occlusion nor region masking.
func NewFaceSwapper(reg *inference.Registry, modelPath, provider string, deviceID int, params models.StepParams, masker *Masker) (*FaceSwapper, error) {
	spec := inference.IOSpec{
		InputNames:   []string{"target", "source"},
		InputShapes:  []ort.Shape{ort.NewShape(1, 3, swapCropSize, swapCropSize), ort.NewShape(1, 512)},
		OutputNames:  []string{"output"},
		OutputShapes: []ort.Shape{ort.NewShape(1, 3, swapCropSize, swapCropSize)},
	}
	key := inference.SessionKey{ModelPath: modelPath, ProviderList: provider, DeviceID: deviceID}
	h, err := reg.Acquire(key, spec)
	if err != nil {
		return nil, err
	}
	return &FaceSwapper{handle: h, masker: masker, params: params}, nil
}

// Process swaps every face in faces using frame.SourceEmbedding, which the
// runner populates once per task from the source image's recognised
// embedding.
func (s *FaceSwapper) Process(frame *models.FrameData, faces []models.Face) error {
	if len(faces) == 0 || frame.SourceEmbedding == nil {
		return nil
	}

	dst := toRGBA(frame.Image)
	for _, f := range faces {
		crop, m := warpFace(dst, f.Landmarks5, warp.Arcface128V2, swapCropSize)
		targetInput := cropToCHW(crop, swapCropSize, swapMean, swapStd)

		out, err := s.handle.RunAll([][]float32{targetInput, frame.SourceEmbedding.NormedVector})
		if err != nil {
			return err
		}

		swapped := chwToRGBA(out[0], swapCropSize, swapMean, swapStd)
		compositeMask := buildCropMask(s.params, swapCropSize, s.masker.Occlusion(crop, swapCropSize), s.masker.Region(crop, swapCropSize))
		warp.PasteBack(dst, swapped, m, swapCropSize, compositeMask)
	}
	frame.Image = dst
	return nil
}

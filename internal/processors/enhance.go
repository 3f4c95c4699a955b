package processors

import (
	ort "github.com/yalue/onnxruntime_go"

	"github.com/fusion-core/engine/internal/inference"
	"github.com/fusion-core/engine/internal/mask"
	"github.com/fusion-core/engine/internal/models"
	"github.com/fusion-core/engine/internal/warp"
)

const enhanceCropSize = 512

var enhanceMean = [3]float32{127.5, 127.5, 127.5}
var enhanceStd = [3]float32{127.5, 127.5, 127.5}

// FaceEnhancer implements the GFPGAN/CodeFormer processor of spec §4.2:
// warp to a 512x512 FFHQ crop, run the enhancement model, inverse-warp and
// blend with the original by a configured factor.
type FaceEnhancer struct {
	handle sessionRunner
	masker *Masker
	params models.StepParams
}

// NewFaceEnhancer acquires an FFHQ-512-shaped enhancement session. masker
// may be nil when the step requests neither occlusion nor region masking.
func NewFaceEnhancer(reg *inference.Registry, modelPath, provider string, deviceID int, params models.StepParams, masker *Masker) (*FaceEnhancer, error) {
	spec := inference.IOSpec{
		InputNames:   []string{"input"},
		InputShapes:  []ort.Shape{ort.NewShape(1, 3, enhanceCropSize, enhanceCropSize)},
		OutputNames:  []string{"output"},
		OutputShapes: []ort.Shape{ort.NewShape(1, 3, enhanceCropSize, enhanceCropSize)},
	}
	key := inference.SessionKey{ModelPath: modelPath, ProviderList: provider, DeviceID: deviceID}
	h, err := reg.Acquire(key, spec)
	if err != nil {
		return nil, err
	}
	return &FaceEnhancer{handle: h, masker: masker, params: params}, nil
}

// Process enhances every face, pasting back with the mask scaled by the
// blend factor so `out = b*mask*enhanced + (1-b*mask)*original`, the
// masked generalisation of spec §4.2's `out = b*enhanced + (1-b)*original`.
func (e *FaceEnhancer) Process(frame *models.FrameData, faces []models.Face) error {
	if len(faces) == 0 {
		return nil
	}

	blend := float32(e.params.BlendFactor)
	if blend == 0 {
		blend = 0.8
	}

	dst := toRGBA(frame.Image)
	for _, f := range faces {
		crop, m := warpFace(dst, f.Landmarks5, warp.FFHQ512, enhanceCropSize)
		input := cropToCHW(crop, enhanceCropSize, enhanceMean, enhanceStd)

		out, err := e.handle.Run(input)
		if err != nil {
			return err
		}

		enhanced := chwToRGBA(out, enhanceCropSize, enhanceMean, enhanceStd)
		compositeMask := buildCropMask(e.params, enhanceCropSize, e.masker.Occlusion(crop, enhanceCropSize), e.masker.Region(crop, enhanceCropSize))
		scaled := scaleMask(compositeMask, blend)
		warp.PasteBack(dst, enhanced, m, enhanceCropSize, scaled)
	}
	frame.Image = dst
	return nil
}

func scaleMask(m mask.Mask, factor float32) mask.Mask {
	out := make(mask.Mask, len(m))
	for y, row := range m {
		r := make([]float32, len(row))
		for x, v := range row {
			r[x] = v * factor
		}
		out[y] = r
	}
	return out
}

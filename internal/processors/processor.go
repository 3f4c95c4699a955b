// Package processors implements the per-frame transform adapters described
// in spec §4.2: face swap, face enhancement, expression restoration, and
// frame (super-resolution) enhancement. Each processor wraps one or more
// pooled inference.Handle sessions and is safe to call concurrently from
// multiple pipeline workers, since Handle.Run/RunAll serialise internally.
package processors

import (
	"image"
	"image/draw"

	"github.com/fusion-core/engine/internal/mask"
	"github.com/fusion-core/engine/internal/models"
	"github.com/fusion-core/engine/internal/warp"
)

// Processor is the single-capability contract every variant implements:
// replace frame.Image with a processed image given the faces the analyser
// already found for it, leaving the image it was handed untouched. An empty faces slice is a no-op pass-through per spec §4.3's
// failure semantics.
type Processor interface {
	Process(frame *models.FrameData, faces []models.Face) error
}

// sessionRunner is the subset of inference.Handle a processor depends on.
// Accepting the interface rather than the concrete type lets tests supply
// a fake model without constructing a real ONNX Runtime session.
type sessionRunner interface {
	Run(input []float32) ([]float32, error)
	RunAll(inputs [][]float32) ([][]float32, error)
}

// toRGBA returns a fresh *image.RGBA copy of img. PasteBack mutates its
// destination in place, so the copy keeps the caller's image (and any
// FrameData.OriginalImage aliasing it) unchanged.
func toRGBA(img image.Image) *image.RGBA {
	b := img.Bounds()
	dst := image.NewRGBA(b)
	draw.Draw(dst, b, img, b.Min, draw.Src)
	return dst
}

// buildCropMask assembles the mandatory box mask plus any optional
// occlusion/region masks a step's params request, per spec §4.4. Occluder
// and face-parser raw outputs are supplied by the caller when those
// optional sub-models are wired; nil raw inputs are skipped rather than
// treated as an error, since the box mask alone satisfies the "mandatory
// minimum" contract.
func buildCropMask(params models.StepParams, cropSize int, occlusionRaw, regionIDs [][]float32) mask.Mask {
	box := mask.BoxMask(cropSize, params.MaskPaddingTRBL, params.MaskBlur)
	masks := []mask.Mask{box}

	if params.UseOcclusionMask && occlusionRaw != nil {
		masks = append(masks, mask.OcclusionMask(occlusionRaw, cropSize))
	}
	if params.UseRegionMask && regionIDs != nil {
		selected := make(map[int]bool, len(params.RegionSet))
		for _, name := range params.RegionSet {
			if id, ok := regionNameToID[name]; ok {
				selected[id] = true
			}
		}
		ids := make([][]int, len(regionIDs))
		for y, row := range regionIDs {
			r := make([]int, len(row))
			for x, v := range row {
				r[x] = int(v)
			}
			ids[y] = r
		}
		masks = append(masks, mask.RegionMask(ids, cropSize, selected))
	}

	composed := mask.Compose(masks...)
	if composed == nil {
		composed = box
	}
	return composed
}

// regionNameToID mirrors spec §4.4's named region indices.
var regionNameToID = map[string]int{
	"skin":       1,
	"left-eye":   4,
	"right-eye":  5,
	"eyebrows":   6,
	"nose":       10,
	"mouth":      11,
	"upper-lip":  12,
	"lower-lip":  13,
	"glasses":    14,
}

// cropToCHW converts an RGB crop to CHW float32, normalising each channel
// as (pixel-mean)/std, mirroring the face analyser's own preprocessing
// helper but kept package-local since each model family uses different
// normalisation constants.
func cropToCHW(crop *image.RGBA, size int, mean, std [3]float32) []float32 {
	data := make([]float32, 3*size*size)
	planeSize := size * size
	for y := 0; y < size; y++ {
		for x := 0; x < size; x++ {
			off := crop.PixOffset(x, y)
			pix := crop.Pix[off : off+3 : off+3]
			idx := y*size + x
			data[idx] = (float32(pix[0]) - mean[0]) / std[0]
			data[planeSize+idx] = (float32(pix[1]) - mean[1]) / std[1]
			data[2*planeSize+idx] = (float32(pix[2]) - mean[2]) / std[2]
		}
	}
	return data
}

// chwToRGBA converts a CHW float32 buffer back to an image, denormalising
// with the same mean/std used by cropToCHW.
func chwToRGBA(data []float32, size int, mean, std [3]float32) *image.RGBA {
	out := image.NewRGBA(image.Rect(0, 0, size, size))
	planeSize := size * size
	for y := 0; y < size; y++ {
		for x := 0; x < size; x++ {
			idx := y*size + x
			r := clampByte(data[idx]*std[0] + mean[0])
			g := clampByte(data[planeSize+idx]*std[1] + mean[1])
			b := clampByte(data[2*planeSize+idx]*std[2] + mean[2])
			off := out.PixOffset(x, y)
			out.Pix[off] = r
			out.Pix[off+1] = g
			out.Pix[off+2] = b
			out.Pix[off+3] = 255
		}
	}
	return out
}

func clampByte(v float32) uint8 {
	if v < 0 {
		return 0
	}
	if v > 255 {
		return 255
	}
	return uint8(v)
}

// warpFace aligns frame to tmpl's canonical crop of the given size using a
// face's 5-point landmarks, returning the crop and the affine transform
// used so the caller can paste results back.
func warpFace(frame image.Image, lm5 [5]models.Point2D, tmpl warp.Template, size int) (*image.RGBA, warp.Matrix) {
	srcPoints := warp.LandmarksToPoints(lm5)
	dstPoints := tmpl.Scaled(size)
	m := warp.EstimateAffine(srcPoints, dstPoints)
	crop := warp.WarpCrop(frame, m, size)
	return crop, m
}

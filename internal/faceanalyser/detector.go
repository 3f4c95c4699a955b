package faceanalyser

import (
	"image"

	ort "github.com/yalue/onnxruntime_go"

	"github.com/fusion-core/engine/internal/inference"
	"github.com/fusion-core/engine/internal/models"
)

// detectorStrides/anchorsPerStride mirror RetinaFace det_10g's anchor
// layout, carried verbatim from the teacher's internal/vision/detect.go.
var detectorStrides = []int{8, 16, 32}

const detectorAnchorsPerStride = 2

// Detector runs RetinaFace-family face detection through a pooled
// inference.Handle.
type Detector struct {
	handle *inference.Handle
	inputW int
	inputH int
}

// detOutputShapes reproduces det_10g's 9-output layout (scores, bboxes,
// landmarks at strides 8/16/32, no batch dimension).
func detOutputShapes(inputW, inputH int) ([]string, []ort.Shape) {
	g := func(stride int) int64 {
		return int64((inputW / stride) * (inputH / stride) * detectorAnchorsPerStride)
	}
	names := []string{"448", "471", "494", "451", "474", "497", "454", "477", "500"}
	shapes := []ort.Shape{
		ort.NewShape(g(8), 1), ort.NewShape(g(16), 1), ort.NewShape(g(32), 1),
		ort.NewShape(g(8), 4), ort.NewShape(g(16), 4), ort.NewShape(g(32), 4),
		ort.NewShape(g(8), 10), ort.NewShape(g(16), 10), ort.NewShape(g(32), 10),
	}
	return names, shapes
}

// NewDetector acquires a det_10g session from reg at modelPath.
func NewDetector(reg *inference.Registry, modelPath string, inputW, inputH int, provider string, deviceID int) (*Detector, error) {
	names, shapes := detOutputShapes(inputW, inputH)
	spec := inference.IOSpec{
		InputNames:   []string{"input.1"},
		InputShapes:  []ort.Shape{ort.NewShape(1, 3, int64(inputH), int64(inputW))},
		OutputNames:  names,
		OutputShapes: shapes,
	}
	key := inference.SessionKey{ModelPath: modelPath, ProviderList: provider, DeviceID: deviceID}
	h, err := reg.Acquire(key, spec)
	if err != nil {
		return nil, err
	}
	return &Detector{handle: h, inputW: inputW, inputH: inputH}, nil
}

// Detect runs the detector on img (already rotated by the caller if
// sweeping rotations) and returns raw candidates in frame coordinates of
// the (possibly rotated) image passed in.
func (d *Detector) Detect(img image.Image, threshold float32) ([]candidate, error) {
	bounds := img.Bounds()
	origW, origH := bounds.Dx(), bounds.Dy()

	input := imageToFloat32CHW(img, d.inputW, d.inputH, [3]float32{127.5, 127.5, 127.5}, [3]float32{128, 128, 128})
	outputs, err := d.handle.RunAll([][]float32{input})
	if err != nil {
		return nil, err
	}

	return decodeRetinaFace(outputs, d.inputW, d.inputH, origW, origH, threshold), nil
}

// decodeRetinaFace decodes the anchor-based outputs, carried over from
// the teacher's parseDetections with the Detection type generalised to
// candidate and BBox/Point2D replacing raw float arrays.
func decodeRetinaFace(outputs [][]float32, inputW, inputH, origW, origH int, threshold float32) []candidate {
	var out []candidate
	scaleW := float32(origW) / float32(inputW)
	scaleH := float32(origH) / float32(inputH)

	for si, stride := range detectorStrides {
		scores := outputs[si]
		bboxes := outputs[si+3]
		landmarks := outputs[si+6]

		fmW := inputW / stride
		fmH := inputH / stride
		st := float32(stride)

		idx := 0
		for cy := 0; cy < fmH; cy++ {
			for cx := 0; cx < fmW; cx++ {
				for a := 0; a < detectorAnchorsPerStride; a++ {
					score := scores[idx]
					if score >= threshold {
						anchorX := float32(cx) * st
						anchorY := float32(cy) * st

						x1 := clampF((anchorX-bboxes[idx*4+0]*st)*scaleW, 0, float32(origW))
						y1 := clampF((anchorY-bboxes[idx*4+1]*st)*scaleH, 0, float32(origH))
						x2 := clampF((anchorX+bboxes[idx*4+2]*st)*scaleW, 0, float32(origW))
						y2 := clampF((anchorY+bboxes[idx*4+3]*st)*scaleH, 0, float32(origH))

						var lm [5]models.Point2D
						for li := 0; li < 5; li++ {
							lm[li] = models.Point2D{
								X: (anchorX + landmarks[idx*10+li*2]*st) * scaleW,
								Y: (anchorY + landmarks[idx*10+li*2+1]*st) * scaleH,
							}
						}

						out = append(out, candidate{
							box:        models.BBox{X1: x1, Y1: y1, X2: x2, Y2: y2},
							score:      score,
							landmarks5: lm,
						})
					}
					idx++
				}
			}
		}
	}
	return out
}

func clampF(v, lo, hi float32) float32 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

// Close releases the detector's session reference.
func (d *Detector) Close(reg *inference.Registry, modelPath, provider string, deviceID int) {
	reg.Release(inference.SessionKey{ModelPath: modelPath, ProviderList: provider, DeviceID: deviceID})
}

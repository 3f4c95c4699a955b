package faceanalyser

import (
	"image"
	"math"

	ort "github.com/yalue/onnxruntime_go"

	"github.com/fusion-core/engine/internal/inference"
	"github.com/fusion-core/engine/internal/models"
	"github.com/fusion-core/engine/internal/warp"
)

const landmarkerCropSize = 192

// Landmarker refines a detector's 5-point landmarks into a 68-point set.
// Spec §9's open question is resolved here: the 5-to-68 expansion is an
// analyser-internal fallback helper, never a standalone "detector type".
type Landmarker struct {
	handle *inference.Handle
}

// NewLandmarker acquires a 68-point landmark session from reg.
func NewLandmarker(reg *inference.Registry, modelPath string, provider string, deviceID int) (*Landmarker, error) {
	spec := inference.IOSpec{
		InputNames:   []string{"input"},
		InputShapes:  []ort.Shape{ort.NewShape(1, 3, landmarkerCropSize, landmarkerCropSize)},
		OutputNames:  []string{"landmarks"},
		OutputShapes: []ort.Shape{ort.NewShape(1, 68*2)},
	}
	key := inference.SessionKey{ModelPath: modelPath, ProviderList: provider, DeviceID: deviceID}
	h, err := reg.Acquire(key, spec)
	if err != nil {
		return nil, err
	}
	return &Landmarker{handle: h}, nil
}

// Refine aligns frame to a canonical crop using the 5-point landmarks,
// runs the landmark model, and maps the 68 output points back to frame
// coordinates via the crop's inverse affine transform. confidence is a
// synthetic score derived from output point variance. When it falls below
// threshold the analyser substitutes Expand5To68; no other rotation is
// tried.
func (l *Landmarker) Refine(frame image.Image, lm5 [5]models.Point2D) ([68]models.Point2D, float32, error) {
	tmplPoints := warp.Arcface128V2.Scaled(landmarkerCropSize)
	srcPoints := warp.LandmarksToPoints(lm5)
	m := warp.EstimateAffine(srcPoints, tmplPoints)

	crop := warp.WarpCrop(frame, m, landmarkerCropSize)
	input := imageToFloat32CHW(crop, landmarkerCropSize, landmarkerCropSize,
		[3]float32{127.5, 127.5, 127.5}, [3]float32{127.5, 127.5, 127.5})

	out, err := l.handle.Run(input)
	if err != nil {
		return [68]models.Point2D{}, 0, err
	}

	inv := m.Invert()
	var pts [68]models.Point2D
	for i := 0; i < 68; i++ {
		cx := out[i*2] * landmarkerCropSize
		cy := out[i*2+1] * landmarkerCropSize
		fx, fy := inv.Apply(float64(cx), float64(cy))
		pts[i] = models.Point2D{X: float32(fx), Y: float32(fy)}
	}

	return pts, landmarkConfidence(out), nil
}

// landmarkConfidence derives a coarse confidence score from how tightly
// the predicted points cluster around the crop center; a degenerate
// (collapsed) prediction indicates the model failed to converge on this
// rotation.
func landmarkConfidence(out []float32) float32 {
	if len(out) < 136 {
		return 0
	}
	var sumX, sumY float32
	n := float32(68)
	for i := 0; i < 68; i++ {
		sumX += out[i*2]
		sumY += out[i*2+1]
	}
	meanX, meanY := sumX/n, sumY/n
	var variance float32
	for i := 0; i < 68; i++ {
		dx := out[i*2] - meanX
		dy := out[i*2+1] - meanY
		variance += dx*dx + dy*dy
	}
	variance /= n
	if variance <= 0 {
		return 0
	}
	// Normalised crop coordinates cluster with variance well below 1;
	// anything non-degenerate is treated as a confident prediction.
	if variance > 0.25 {
		return 1
	}
	return variance * 4
}

// Expand5To68 synthesises a 68-point set from 5 detector landmarks when
// no dedicated landmarker result is available, per spec §4.3 step 5's
// fallback. It distributes interpolated points around the eyes, nose and
// mouth corners using fixed fractional offsets; this is a coarse
// approximation, not a learned prediction.
func Expand5To68(lm5 [5]models.Point2D) [68]models.Point2D {
	leftEye, rightEye, nose, leftMouth, rightMouth := lm5[0], lm5[1], lm5[2], lm5[3], lm5[4]

	var pts [68]models.Point2D
	eyeSpan := rightEye.X - leftEye.X
	mouthSpan := rightMouth.X - leftMouth.X

	// Jaw line (0-16): arc below the eye line, widened by eye span.
	for i := 0; i <= 16; i++ {
		t := float32(i) / 16
		x := leftEye.X - eyeSpan*0.3 + t*(eyeSpan*1.6)
		y := nose.Y + (t-0.5)*(t-0.5)*eyeSpan*0.2 + eyeSpan*0.9
		pts[i] = models.Point2D{X: x, Y: y}
	}
	// Brows (17-26).
	for i := 17; i <= 26; i++ {
		t := float32(i-17) / 9
		src := leftEye
		if i >= 22 {
			src = rightEye
		}
		pts[i] = models.Point2D{X: src.X + (t-0.5)*eyeSpan*0.4, Y: src.Y - eyeSpan*0.25}
	}
	// Nose bridge + base (27-35).
	for i := 27; i <= 35; i++ {
		t := float32(i-27) / 8
		pts[i] = models.Point2D{X: nose.X + (t-0.5)*eyeSpan*0.3, Y: nose.Y - eyeSpan*0.1 + t*eyeSpan*0.3}
	}
	// Eyes (36-47): six points circling each eye center.
	for i := 36; i <= 47; i++ {
		center := leftEye
		if i >= 42 {
			center = rightEye
		}
		angle := float32(i%6) / 6 * 6.28318
		pts[i] = models.Point2D{
			X: center.X + eyeSpan*0.12*cosApprox(angle),
			Y: center.Y + eyeSpan*0.08*sinApprox(angle),
		}
	}
	// Mouth (48-67): twenty points around the outer/inner lip contour.
	mouthCenterX := (leftMouth.X + rightMouth.X) / 2
	mouthCenterY := (leftMouth.Y + rightMouth.Y) / 2
	for i := 48; i <= 67; i++ {
		t := float32(i-48) / 19
		angle := t * 6.28318
		radiusX := mouthSpan * 0.55
		radiusY := mouthSpan * 0.3
		pts[i] = models.Point2D{
			X: mouthCenterX + radiusX*cosApprox(angle),
			Y: mouthCenterY + radiusY*sinApprox(angle),
		}
	}
	return pts
}

func cosApprox(x float32) float32 {
	return float32(math.Cos(float64(x)))
}
func sinApprox(x float32) float32 {
	return float32(math.Sin(float64(x)))
}

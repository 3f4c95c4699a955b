package processors

import (
	"math"

	"gonum.org/v1/gonum/mat"

	"github.com/fusion-core/engine/internal/inference"
	"github.com/fusion-core/engine/internal/models"
	"github.com/fusion-core/engine/internal/warp"

	ort "github.com/yalue/onnxruntime_go"
)

const (
	restoreCropSize   = 256
	motionPointCount  = 21
	expressionCoeffs  = 63
	featureVolumeSize = 32 * 16 * 64 * 64
)

var restoreMean = [3]float32{127.5, 127.5, 127.5}
var restoreStd = [3]float32{127.5, 127.5, 127.5}

// blendedExpressionIndices carries spec §4.2's pose-invariant expression
// dimensions that get blended between source and target.
var blendedExpressionIndices = [5]int{0, 4, 5, 8, 9}

// expressionCoeffBounds clamps each of the 63 expression coefficients to a
// per-coefficient range. LivePortrait ships these as a learned static
// table; absent the original weights this uses a uniform conservative
// bound, tight enough to avoid visible distortion from an out-of-range
// blended coefficient.
var expressionCoeffBounds = func() [expressionCoeffs][2]float32 {
	var b [expressionCoeffs][2]float32
	for i := range b {
		b[i] = [2]float32{-15, 15}
	}
	return b
}()

// motion is the decoded output of the motion extractor sub-model: pose
// (degrees), scale, 2-D translation, 63 expression coefficients, and 21
// 3-D keypoints, per spec §4.2's described output set.
type motion struct {
	pitch, yaw, roll float64
	scale            float64
	tx, ty           float64
	expression       [expressionCoeffs]float32
	points           [motionPointCount][3]float64
}

func decodeMotion(out []float32) motion {
	var m motion
	if len(out) < 6+expressionCoeffs+motionPointCount*3 {
		return m
	}
	m.pitch, m.yaw, m.roll = float64(out[0]), float64(out[1]), float64(out[2])
	m.scale = float64(out[3])
	m.tx, m.ty = float64(out[4]), float64(out[5])

	off := 6
	for i := 0; i < expressionCoeffs; i++ {
		m.expression[i] = out[off+i]
	}
	off += expressionCoeffs
	for i := 0; i < motionPointCount; i++ {
		m.points[i] = [3]float64{
			float64(out[off+i*3]),
			float64(out[off+i*3+1]),
			float64(out[off+i*3+2]),
		}
	}
	return m
}

// rotationMatrix builds Rz*Ry*Rx from degrees, per spec §4.2.
func rotationMatrix(pitch, yaw, roll float64) *mat.Dense {
	toRad := math.Pi / 180
	x, y, z := pitch*toRad, yaw*toRad, roll*toRad

	rx := mat.NewDense(3, 3, []float64{
		1, 0, 0,
		0, math.Cos(x), -math.Sin(x),
		0, math.Sin(x), math.Cos(x),
	})
	ry := mat.NewDense(3, 3, []float64{
		math.Cos(y), 0, math.Sin(y),
		0, 1, 0,
		-math.Sin(y), 0, math.Cos(y),
	})
	rz := mat.NewDense(3, 3, []float64{
		math.Cos(z), -math.Sin(z), 0,
		math.Sin(z), math.Cos(z), 0,
		0, 0, 1,
	})

	var ryx, rzyx mat.Dense
	ryx.Mul(ry, rx)
	rzyx.Mul(rz, &ryx)
	return &rzyx
}

// transformPoints computes scale*(points*R^T + expression) + translation
// for each of the 21 3-D keypoints, per spec §4.2.
func transformPoints(points [motionPointCount][3]float64, r *mat.Dense, expression [expressionCoeffs]float32, scale, tx, ty float64) [motionPointCount][3]float64 {
	var out [motionPointCount][3]float64
	for i, p := range points {
		// A row vector p times R^T equals R times p as a column vector.
		pv := mat.NewVecDense(3, []float64{p[0], p[1], p[2]})
		var rotated mat.VecDense
		rotated.MulVec(r, pv)

		ex, ey, ez := 0.0, 0.0, 0.0
		if i*3+2 < expressionCoeffs {
			ex = float64(expression[i*3])
			ey = float64(expression[i*3+1])
			ez = float64(expression[i*3+2])
		}
		out[i] = [3]float64{
			scale*(rotated.AtVec(0)+ex) + tx,
			scale*(rotated.AtVec(1)+ey) + ty,
			scale * (rotated.AtVec(2) + ez),
		}
	}
	return out
}

func clampExpression(e [expressionCoeffs]float32) [expressionCoeffs]float32 {
	for i := range e {
		lo, hi := expressionCoeffBounds[i][0], expressionCoeffBounds[i][1]
		if e[i] < lo {
			e[i] = lo
		}
		if e[i] > hi {
			e[i] = hi
		}
	}
	return e
}

// blendExpression mixes source into target at the pose-invariant indices
// with weight r, per spec §4.2.
func blendExpression(source, target [expressionCoeffs]float32, r float64) [expressionCoeffs]float32 {
	out := target
	for _, idx := range blendedExpressionIndices {
		out[idx] = float32(float64(target[idx])*(1-r) + float64(source[idx])*r)
	}
	return clampExpression(out)
}

// ExpressionRestorer implements the LivePortrait processor of spec §4.2:
// feature extraction on the target crop, motion extraction on both the
// frame's own pre-processing content and the target crop, blended-motion
// point transform, and generation. Per original_source's
// expression_restorer.cpp, the driving "source" motion for frame N comes
// from frame N's own original (pre-swap) appearance, not from a single
// image reused across the whole task — a face keeps its own expression
// history, not the swap source's.
type ExpressionRestorer struct {
	featureExtractor sessionRunner
	motionExtractor  sessionRunner
	generator        sessionRunner
	masker           *Masker
	params           models.StepParams
}

// NewExpressionRestorer acquires the three LivePortrait sub-model sessions.
// masker may be nil when the step requests neither occlusion nor region
// masking.
func NewExpressionRestorer(reg *inference.Registry, featureModelPath, motionModelPath, generatorModelPath, provider string, deviceID int, params models.StepParams, masker *Masker) (*ExpressionRestorer, error) {
	featureSpec := inference.IOSpec{
		InputNames:   []string{"input"},
		InputShapes:  []ort.Shape{ort.NewShape(1, 3, restoreCropSize, restoreCropSize)},
		OutputNames:  []string{"feature_volume"},
		OutputShapes: []ort.Shape{ort.NewShape(1, 32, 16, 64, 64)},
	}
	motionSpec := inference.IOSpec{
		InputNames:   []string{"input"},
		InputShapes:  []ort.Shape{ort.NewShape(1, 3, restoreCropSize, restoreCropSize)},
		OutputNames:  []string{"motion"},
		OutputShapes: []ort.Shape{ort.NewShape(1, int64(6+expressionCoeffs+motionPointCount*3))},
	}
	generatorSpec := inference.IOSpec{
		InputNames: []string{"feature_volume", "blended_points", "target_points"},
		InputShapes: []ort.Shape{
			ort.NewShape(1, 32, 16, 64, 64),
			ort.NewShape(1, int64(motionPointCount*3)),
			ort.NewShape(1, int64(motionPointCount*3)),
		},
		OutputNames:  []string{"output"},
		OutputShapes: []ort.Shape{ort.NewShape(1, 3, restoreCropSize, restoreCropSize)},
	}

	feature, err := reg.Acquire(inference.SessionKey{ModelPath: featureModelPath, ProviderList: provider, DeviceID: deviceID}, featureSpec)
	if err != nil {
		return nil, err
	}
	motionSess, err := reg.Acquire(inference.SessionKey{ModelPath: motionModelPath, ProviderList: provider, DeviceID: deviceID}, motionSpec)
	if err != nil {
		return nil, err
	}
	generator, err := reg.Acquire(inference.SessionKey{ModelPath: generatorModelPath, ProviderList: provider, DeviceID: deviceID}, generatorSpec)
	if err != nil {
		return nil, err
	}

	return &ExpressionRestorer{
		featureExtractor: feature,
		motionExtractor:  motionSess,
		generator:        generator,
		masker:           masker,
		params:           params,
	}, nil
}

// Process restores expression on every target face, blending each face's
// own pre-processing expression into its current one at weight
// RestoreFactor (default 0.96).
func (e *ExpressionRestorer) Process(frame *models.FrameData, faces []models.Face) error {
	if len(faces) == 0 {
		return nil
	}

	r := e.params.RestoreFactor
	if r == 0 {
		r = 0.96
	}

	dst := toRGBA(frame.Image)
	original := frame.OriginalImage
	if original == nil {
		original = frame.Image
	}
	originalRGBA := toRGBA(original)

	for _, f := range faces {
		crop, m := warpFace(dst, f.Landmarks5, warp.Arcface128V2, restoreCropSize)
		targetInput := cropToCHW(crop, restoreCropSize, restoreMean, restoreStd)

		// The face's position is unchanged by any prior swap stage, so
		// the same landmarks crop the matching region out of the frame's
		// original, pre-processing content.
		sourceCrop, _ := warpFace(originalRGBA, f.Landmarks5, warp.Arcface128V2, restoreCropSize)
		sourceInput := cropToCHW(sourceCrop, restoreCropSize, restoreMean, restoreStd)

		featureOut, err := e.featureExtractor.Run(targetInput)
		if err != nil {
			return err
		}
		targetMotionOut, err := e.motionExtractor.Run(targetInput)
		if err != nil {
			return err
		}
		sourceMotionOut, err := e.motionExtractor.Run(sourceInput)
		if err != nil {
			return err
		}

		targetMotion := decodeMotion(targetMotionOut)
		sourceMotion := decodeMotion(sourceMotionOut)

		blendedExpr := blendExpression(sourceMotion.expression, targetMotion.expression, r)
		rot := rotationMatrix(targetMotion.pitch, targetMotion.yaw, targetMotion.roll)

		blendedPoints := transformPoints(targetMotion.points, rot, blendedExpr, targetMotion.scale, targetMotion.tx, targetMotion.ty)
		targetPoints := transformPoints(targetMotion.points, rot, targetMotion.expression, targetMotion.scale, targetMotion.tx, targetMotion.ty)

		genOut, err := e.generator.RunAll([][]float32{
			featureOut,
			flattenPoints(blendedPoints),
			flattenPoints(targetPoints),
		})
		if err != nil {
			return err
		}

		restored := chwToRGBA(genOut[0], restoreCropSize, restoreMean, restoreStd)
		compositeMask := buildCropMask(e.params, restoreCropSize, e.masker.Occlusion(crop, restoreCropSize), e.masker.Region(crop, restoreCropSize))
		warp.PasteBack(dst, restored, m, restoreCropSize, compositeMask)
	}
	frame.Image = dst
	return nil
}

func flattenPoints(points [motionPointCount][3]float64) []float32 {
	out := make([]float32, motionPointCount*3)
	for i, p := range points {
		out[i*3] = float32(p[0])
		out[i*3+1] = float32(p[1])
		out[i*3+2] = float32(p[2])
	}
	return out
}

package processors

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/fusion-core/engine/internal/models"
)

func TestDecodeMotionTooShortReturnsZeroValue(t *testing.T) {
	m := decodeMotion([]float32{1, 2, 3})
	assert.Equal(t, motion{}, m)
}

func TestRotationMatrixIdentityAtZeroAngles(t *testing.T) {
	r := rotationMatrix(0, 0, 0)
	for i := 0; i < 3; i++ {
		for j := 0; j < 3; j++ {
			want := 0.0
			if i == j {
				want = 1.0
			}
			assert.InDelta(t, want, r.At(i, j), 1e-9)
		}
	}
}

func TestClampExpressionRespectsBounds(t *testing.T) {
	var e [expressionCoeffs]float32
	e[0] = 1000
	e[1] = -1000
	out := clampExpression(e)
	assert.Equal(t, expressionCoeffBounds[0][1], out[0])
	assert.Equal(t, expressionCoeffBounds[1][0], out[1])
}

func TestBlendExpressionOnlyTouchesSelectedIndices(t *testing.T) {
	var source, target [expressionCoeffs]float32
	source[0] = 10
	target[0] = 0
	target[1] = 5 // not a blended index, must survive unchanged

	out := blendExpression(source, target, 0.5)
	assert.InDelta(t, 5.0, float64(out[0]), 1e-6)
	assert.Equal(t, float32(5), out[1])
}

func TestTransformPointsAppliesScaleAndTranslation(t *testing.T) {
	var points [motionPointCount][3]float64
	points[0] = [3]float64{1, 0, 0}
	var expr [expressionCoeffs]float32

	identity := rotationMatrix(0, 0, 0)
	out := transformPoints(points, identity, expr, 2, 10, 20)

	assert.InDelta(t, 2*1+10, out[0][0], 1e-6)
	assert.InDelta(t, 20.0, out[0][1], 1e-6)
}

func TestFlattenPointsRoundTripsCoordinates(t *testing.T) {
	var points [motionPointCount][3]float64
	points[1] = [3]float64{1.5, -2.5, 3.5}
	flat := flattenPoints(points)
	assert.InDelta(t, 1.5, float64(flat[3]), 1e-6)
	assert.InDelta(t, -2.5, float64(flat[4]), 1e-6)
	assert.InDelta(t, 3.5, float64(flat[5]), 1e-6)
}

func TestRotationMatrixNinetyYawMapsXToZ(t *testing.T) {
	r := rotationMatrix(0, 90, 0)
	// Rotating (1,0,0) by +90 degrees yaw lands on (0,0,-1): the first
	// column of Ry(90) is (cos 90, 0, -sin 90).
	assert.Less(t, math.Abs(r.At(0, 0)), 0.1)
	assert.InDelta(t, -1.0, r.At(2, 0), 1e-9)
}

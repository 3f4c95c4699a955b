package faceanalyser

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRotatePointBackRoundTripsWithinTolerance(t *testing.T) {
	const w, h = 100, 60
	px, py := float32(37), float32(21)

	for _, angle := range []int{0, 90, 180, 270} {
		rotW, rotH := w, h
		if angle == 90 || angle == 270 {
			rotW, rotH = h, w
		}
		_ = rotW
		_ = rotH

		// Forward-rotate the point the same way rotateImage rotates pixels,
		// then map back and expect to recover the original within 2px.
		rx, ry := forwardRotate(px, py, angle, w, h)
		bx, by := rotatePointBack(rx, ry, angle, w, h)

		assert.InDelta(t, float64(px), float64(bx), 2, "angle=%d", angle)
		assert.InDelta(t, float64(py), float64(by), 2, "angle=%d", angle)
	}
}

// forwardRotate mirrors rotateImage90CW's coordinate mapping, composed the
// same number of times rotateImage would, so the test can assert a true
// round trip rather than just re-deriving rotatePointBack's own formula.
func forwardRotate(x, y float32, angle, w, h int) (float32, float32) {
	cw, ch := w, h
	cx, cy := x, y
	steps := (angle % 360) / 90
	for i := 0; i < steps; i++ {
		cx, cy = float32(ch)-1-cy, cx
		cw, ch = ch, cw
	}
	return cx, cy
}

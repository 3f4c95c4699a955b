// Package warp holds the bit-exact affine warp templates used to align a
// detected face to each model family's canonical crop (spec §6), plus the
// affine estimation and application helpers the processor adapters share.
package warp

import "github.com/fusion-core/engine/internal/models"

// Template is a named set of five canonical 2-D points, expressed as
// fractions of the crop size, used to estimate an affine alignment from a
// face's 5-point landmarks.
type Template struct {
	Name   string
	Points [5][2]float64
}

// Bit-exact per spec §6; do not adjust these constants.
var (
	Arcface128V2 = Template{
		Name: "arcface_128_v2",
		Points: [5][2]float64{
			{0.36168, 0.40388},
			{0.63697, 0.40235},
			{0.50020, 0.56044},
			{0.38710, 0.72161},
			{0.61508, 0.72034},
		},
	}

	FFHQ512 = Template{
		Name: "ffhq_512",
		Points: [5][2]float64{
			{0.37692, 0.46865},
			{0.62286, 0.46913},
			{0.50124, 0.61332},
			{0.39309, 0.72541},
			{0.61150, 0.72490},
		},
	}

	// Arcface112V1/V2 are used for the recogniser's own preprocessing
	// crop, distinct from the swapper's 128px alignment target.
	Arcface112V1 = Template{
		Name: "arcface_112_v1",
		Points: [5][2]float64{
			{0.34191, 0.46157},
			{0.65653, 0.45983},
			{0.50022, 0.64050},
			{0.37097, 0.82469},
			{0.63151, 0.82325},
		},
	}

	Arcface112V2 = Template{
		Name: "arcface_112_v2",
		Points: [5][2]float64{
			{0.34191, 0.46157},
			{0.65653, 0.45983},
			{0.50022, 0.64050},
			{0.37097, 0.82469},
			{0.63151, 0.82325},
		},
	}
)

// Scaled returns the template's points scaled to a cropSize x cropSize
// target, suitable for passing to EstimateAffine.
func (t Template) Scaled(cropSize int) [5][2]float64 {
	var out [5][2]float64
	s := float64(cropSize)
	for i, p := range t.Points {
		out[i] = [2]float64{p[0] * s, p[1] * s}
	}
	return out
}

// LandmarksToPoints converts a Face's 5-point landmark array into the
// [5][2]float64 shape EstimateAffine expects.
func LandmarksToPoints(lm [5]models.Point2D) [5][2]float64 {
	var out [5][2]float64
	for i, p := range lm {
		out[i] = [2]float64{float64(p.X), float64(p.Y)}
	}
	return out
}

package faceanalyser

import (
	"image"
	"math"

	ort "github.com/yalue/onnxruntime_go"

	"github.com/fusion-core/engine/internal/inference"
	"github.com/fusion-core/engine/internal/models"
	"github.com/fusion-core/engine/internal/warp"
)

// Classifier predicts gender and age from a face crop, adapted from the
// teacher's internal/vision/attributes.go InsightFace genderage wrapper.
type Classifier struct {
	handle *inference.Handle
}

// NewClassifier acquires a genderage-shaped session (96x96 input,
// [female_logit, male_logit, age_normalized] output).
func NewClassifier(reg *inference.Registry, modelPath, provider string, deviceID int) (*Classifier, error) {
	spec := inference.IOSpec{
		InputNames:   []string{"data"},
		InputShapes:  []ort.Shape{ort.NewShape(1, 3, 96, 96)},
		OutputNames:  []string{"fc1"},
		OutputShapes: []ort.Shape{ort.NewShape(1, 3)},
	}
	key := inference.SessionKey{ModelPath: modelPath, ProviderList: provider, DeviceID: deviceID}
	h, err := reg.Acquire(key, spec)
	if err != nil {
		return nil, err
	}
	return &Classifier{handle: h}, nil
}

// Predict runs gender/age classification on the face aligned by lm5.
func (c *Classifier) Predict(frame image.Image, lm5 [5]models.Point2D) (models.Gender, float32, models.AgeRange, error) {
	tmplPoints := warp.Arcface112V1.Scaled(96)
	srcPoints := warp.LandmarksToPoints(lm5)
	m := warp.EstimateAffine(srcPoints, tmplPoints)
	crop := warp.WarpCrop(frame, m, 96)

	input := imageToFloat32CHW(crop, 96, 96, [3]float32{0, 0, 0}, [3]float32{1, 1, 1})
	data, err := c.handle.Run(input)
	if err != nil {
		return models.GenderUnknown, 0, models.AgeRange{}, err
	}
	if len(data) < 3 {
		return models.GenderUnknown, 0, models.AgeRange{}, nil
	}

	femaleLogit, maleLogit, ageNorm := data[0], data[1], data[2]

	gender := models.GenderFemale
	if maleLogit > femaleLogit {
		gender = models.GenderMale
	}
	maleProb := float32(1.0 / (1.0 + math.Exp(float64(-(maleLogit - femaleLogit)))))
	conf := maleProb
	if gender == models.GenderFemale {
		conf = 1 - maleProb
	}

	age := int(math.Round(float64(ageNorm) * 100))
	if age < 0 {
		age = 0
	}
	if age > 100 {
		age = 100
	}
	lower := (age / 5) * 5
	ageRange := models.AgeRange{Min: lower, Max: lower + 5}

	return gender, conf, ageRange, nil
}

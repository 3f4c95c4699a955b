package faceanalyser

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fusion-core/engine/internal/models"
)

func faceAt(x1, score float32) models.Face {
	return models.Face{
		Box:                models.BBox{X1: x1, Y1: 0, X2: x1 + 10, Y2: 10},
		DetectorConfidence: score,
		Analysed:           models.FieldDetection,
	}
}

func TestApplySelectorOneTruncatesAfterOrdering(t *testing.T) {
	faces := []models.Face{faceAt(50, 0.9), faceAt(10, 0.5), faceAt(30, 0.7)}
	out := ApplySelector(faces, models.FaceSelector{Mode: models.SelectOne, Order: models.OrderLeftRight}, nil)
	require.Len(t, out, 1)
	assert.Equal(t, float32(10), out[0].Box.X1)
}

func TestApplySelectorManyKeepsAllAfterFilter(t *testing.T) {
	faces := []models.Face{faceAt(50, 0.9), faceAt(10, 0.5)}
	out := ApplySelector(faces, models.FaceSelector{Mode: models.SelectMany, Order: models.OrderLeftRight}, nil)
	assert.Len(t, out, 2)
	assert.Equal(t, float32(10), out[0].Box.X1)
	assert.Equal(t, float32(50), out[1].Box.X1)
}

func TestApplySelectorSkipsEmptyFaces(t *testing.T) {
	faces := []models.Face{{}, faceAt(10, 0.5)}
	out := ApplySelector(faces, models.FaceSelector{Mode: models.SelectMany}, nil)
	require.Len(t, out, 1)
}

func TestApplySelectorReferenceFiltersByDistance(t *testing.T) {
	near := faceAt(10, 0.5)
	near.Embedding = []float32{1, 0}
	near.NormedEmbedding = []float32{1, 0}
	near.Analysed |= models.FieldEmbedding

	far := faceAt(50, 0.5)
	far.Embedding = []float32{0, 1}
	far.NormedEmbedding = []float32{0, 1}
	far.Analysed |= models.FieldEmbedding

	sel := models.FaceSelector{Mode: models.SelectReference, ReferenceDistance: 0.5}
	out := ApplySelector([]models.Face{near, far}, sel, []float32{1, 0})

	require.Len(t, out, 1)
	assert.Equal(t, float32(10), out[0].Box.X1)
}

func TestApplySelectorReferenceWithNoEmbeddingReturnsNil(t *testing.T) {
	out := ApplySelector([]models.Face{faceAt(10, 0.5)}, models.FaceSelector{Mode: models.SelectReference}, nil)
	assert.Nil(t, out)
}

func TestApplySelectorAgeRangeExcludesOutOfBand(t *testing.T) {
	young := faceAt(10, 0.5)
	young.Age = models.AgeRange{Min: 5, Max: 10}
	young.Analysed |= models.FieldGenderAge

	adult := faceAt(50, 0.5)
	adult.Age = models.AgeRange{Min: 30, Max: 35}
	adult.Analysed |= models.FieldGenderAge

	sel := models.FaceSelector{Mode: models.SelectMany, AgeMin: 18, AgeMax: 99}
	out := ApplySelector([]models.Face{young, adult}, sel, nil)

	require.Len(t, out, 1)
	assert.Equal(t, float32(50), out[0].Box.X1)
}

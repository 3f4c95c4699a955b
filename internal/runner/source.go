package runner

import (
	"github.com/fusion-core/engine/internal/faceanalyser"
	"github.com/fusion-core/engine/internal/fusionerr"
	"github.com/fusion-core/engine/internal/media"
	"github.com/fusion-core/engine/internal/models"
)

// SourceFace is everything a task's pipeline stages need, derived once
// from the configured source image, and then shared by reference across
// every frame of the target.
type SourceFace struct {
	Embedding *models.SharedEmbedding
}

// LoadSourceFace reads sourcePath, analyses its best face, and
// precomputes the embedding shared across every frame. The expression
// restorer does not use this face at all: its driving "source" is each
// target frame's own pre-processing content, not the swap source image.
func LoadSourceFace(analyser *faceanalyser.Analyser, sourcePath string) (*SourceFace, error) {
	img, err := media.ReadImage(sourcePath)
	if err != nil {
		return nil, err
	}

	faces, err := analyser.Analyse("source:"+sourcePath, img, models.FieldDetection|models.FieldLandmark|models.FieldEmbedding)
	if err != nil {
		return nil, err
	}
	faces = faceanalyser.Select(faces, models.FaceSelector{Mode: models.SelectOne, Order: models.OrderLargeSmall}, nil)
	if len(faces) == 0 {
		return nil, fusionerr.New(fusionerr.CodeFieldMissing, "no face found in source image").WithPath(sourcePath)
	}
	f := faces[0]

	return &SourceFace{
		Embedding: &models.SharedEmbedding{Vector: f.Embedding, NormedVector: f.NormedEmbedding},
	}, nil
}

package faceanalyser

import (
	"sort"

	"github.com/fusion-core/engine/internal/models"
)

// ApplySelector filters and orders faces per spec §4.3's FaceSelector
// contract. referenceEmbedding is only consulted in Reference mode.
func ApplySelector(faces []models.Face, sel models.FaceSelector, referenceEmbedding []float32) []models.Face {
	out := make([]models.Face, 0, len(faces))
	for _, f := range faces {
		if f.IsEmpty() {
			continue
		}
		if sel.Gender != models.GenderUnknown && f.Analysed.Has(models.FieldGenderAge) && f.Gender != sel.Gender {
			continue
		}
		if sel.Race != models.RaceAll && f.Analysed.Has(models.FieldGenderAge) && f.Race != models.RaceAll && f.Race != sel.Race {
			continue
		}
		if sel.AgeMax > 0 && f.Analysed.Has(models.FieldGenderAge) {
			if f.Age.Max < sel.AgeMin || f.Age.Min > sel.AgeMax {
				continue
			}
		}
		out = append(out, f)
	}

	applyOrder(out, sel.Order)

	switch sel.Mode {
	case models.SelectOne:
		if len(out) > 1 {
			out = out[:1]
		}
	case models.SelectReference:
		if len(referenceEmbedding) == 0 {
			return nil
		}
		threshold := sel.ReferenceDistance
		if threshold == 0 {
			threshold = 0.6
		}
		filtered := out[:0]
		for _, f := range out {
			if !f.Analysed.Has(models.FieldEmbedding) {
				continue
			}
			dist := float64(models.CosineDistance(f.NormedEmbedding, referenceEmbedding))
			if dist < threshold {
				filtered = append(filtered, f)
			}
		}
		out = filtered
	case models.SelectMany:
		// no truncation
	}

	return out
}

func applyOrder(faces []models.Face, order models.FaceSelectorOrder) {
	switch order {
	case models.OrderLeftRight:
		sort.SliceStable(faces, func(i, j int) bool { return faces[i].Box.X1 < faces[j].Box.X1 })
	case models.OrderRightLeft:
		sort.SliceStable(faces, func(i, j int) bool { return faces[i].Box.X1 > faces[j].Box.X1 })
	case models.OrderTopBottom:
		sort.SliceStable(faces, func(i, j int) bool { return faces[i].Box.Y1 < faces[j].Box.Y1 })
	case models.OrderBottomTop:
		sort.SliceStable(faces, func(i, j int) bool { return faces[i].Box.Y1 > faces[j].Box.Y1 })
	case models.OrderSmallLarge:
		sort.SliceStable(faces, func(i, j int) bool { return area(faces[i]) < area(faces[j]) })
	case models.OrderLargeSmall:
		sort.SliceStable(faces, func(i, j int) bool { return area(faces[i]) > area(faces[j]) })
	case models.OrderBestWorst:
		sort.SliceStable(faces, func(i, j int) bool { return faces[i].DetectorConfidence > faces[j].DetectorConfidence })
	case models.OrderWorstBest:
		sort.SliceStable(faces, func(i, j int) bool { return faces[i].DetectorConfidence < faces[j].DetectorConfidence })
	}
}

func area(f models.Face) float32 {
	return f.Box.Width() * f.Box.Height()
}

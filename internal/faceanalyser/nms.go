package faceanalyser

import (
	"math"
	"sort"

	"github.com/fusion-core/engine/internal/models"
)

// candidate is a detector output before NMS: a box, score, and 5-point
// landmarks in frame coordinates.
type candidate struct {
	box        models.BBox
	score      float32
	landmarks5 [5]models.Point2D
}

// nonMaxSuppress mirrors the teacher's internal/vision/detect.go NMS,
// generalised to the candidate type and a caller-supplied IoU threshold
// (spec §4.3 step 4 uses 0.4 for a single detector, 0.1 when fusing
// multiple detectors).
func nonMaxSuppress(cands []candidate, iouThreshold float32) []candidate {
	if len(cands) == 0 {
		return cands
	}

	sort.Slice(cands, func(i, j int) bool {
		return cands[i].score > cands[j].score
	})

	keep := make([]bool, len(cands))
	for i := range keep {
		keep[i] = true
	}

	for i := range cands {
		if !keep[i] {
			continue
		}
		for j := i + 1; j < len(cands); j++ {
			if !keep[j] {
				continue
			}
			if iou(cands[i].box, cands[j].box) > iouThreshold {
				keep[j] = false
			}
		}
	}

	var out []candidate
	for i, c := range cands {
		if keep[i] {
			out = append(out, c)
		}
	}
	return out
}

func iou(a, b models.BBox) float32 {
	x1 := float32(math.Max(float64(a.X1), float64(b.X1)))
	y1 := float32(math.Max(float64(a.Y1), float64(b.Y1)))
	x2 := float32(math.Min(float64(a.X2), float64(b.X2)))
	y2 := float32(math.Min(float64(a.Y2), float64(b.Y2)))

	inter := float32(math.Max(0, float64(x2-x1))) * float32(math.Max(0, float64(y2-y1)))
	areaA := a.Width() * a.Height()
	areaB := b.Width() * b.Height()
	union := areaA + areaB - inter
	if union <= 0 {
		return 0
	}
	return inter / union
}

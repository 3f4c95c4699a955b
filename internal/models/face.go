// Package models holds the data types shared across the pipeline engine,
// face analyser, processors, and runner.
package models

// Gender enumerates the attribute classifier's gender output.
type Gender int

const (
	GenderUnknown Gender = iota
	GenderMale
	GenderFemale
)

func (g Gender) String() string {
	switch g {
	case GenderMale:
		return "male"
	case GenderFemale:
		return "female"
	default:
		return "unknown"
	}
}

// Race enumerates the attribute classifier's race output.
type Race int

const (
	RaceAll Race = iota
	RaceWhite
	RaceBlack
	RaceAsian
	RaceLatino
	RaceArabic
	RaceIndian
)

// AgeRange is an inclusive [Min, Max] bound in years.
type AgeRange struct {
	Min int
	Max int
}

// BBox is an axis-aligned rectangle in frame pixel coordinates.
type BBox struct {
	X1, Y1, X2, Y2 float32
}

// Valid reports whether the box has positive extents.
func (b BBox) Valid() bool {
	return b.X2 > b.X1 && b.Y2 > b.Y1
}

func (b BBox) Width() float32  { return b.X2 - b.X1 }
func (b BBox) Height() float32 { return b.Y2 - b.Y1 }

// Point2D is a single 2-D coordinate.
type Point2D struct {
	X, Y float32
}

// AnalysisField is a bit in the bitmask a caller passes to the face
// analyser describing which attributes it needs populated.
type AnalysisField uint8

const (
	FieldDetection AnalysisField = 1 << iota
	FieldLandmark
	FieldEmbedding
	FieldGenderAge
)

// Has reports whether all bits in want are set in f.
func (f AnalysisField) Has(want AnalysisField) bool {
	return f&want == want
}

// Face is a per-detection record produced by the face analyser.
//
// A Face is "empty" iff Box is invalid; processors treat an empty Face
// list as "pass the frame through unchanged".
type Face struct {
	Box                BBox
	Landmarks5         [5]Point2D
	Landmarks68         [68]Point2D
	HasLandmarks68      bool
	DetectorConfidence float32
	LandmarkConfidence float32
	Embedding          []float32 // raw model output, dimension model-dependent
	NormedEmbedding    []float32 // L2-normalised copy of Embedding
	Gender             Gender
	GenderConfidence   float32
	Age                AgeRange
	Race               Race
	// fields populated incrementally: a Face only carries the bits it
	// has been analysed for, tracked via Analysed.
	Analysed AnalysisField
}

// IsEmpty reports whether f carries no usable detection.
func (f Face) IsEmpty() bool {
	return !f.Box.Valid()
}

// CosineDistance returns 1 - dot(a, b) for two L2-normalised embeddings.
// Callers must ensure both inputs are already normalised and of equal
// length; mismatched lengths return distance 1 (maximally dissimilar).
func CosineDistance(a, b []float32) float32 {
	if len(a) != len(b) || len(a) == 0 {
		return 1
	}
	var dot float32
	for i := range a {
		dot += a[i] * b[i]
	}
	return 1 - dot
}

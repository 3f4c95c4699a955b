package faceanalyser

import (
	"image"

	"github.com/fusion-core/engine/internal/models"
)

// rotationSweep is the fixed set of clockwise rotations the analyser tries
// when a detector misses at the frame's native orientation, per spec
// §4.3 step 3.
var rotationSweep = [4]int{0, 90, 180, 270}

const landmarkConfidenceThreshold = 0.2

// faceDetector is the subset of *Detector the analyser needs, narrowed to
// an interface so the rotation-sweep protocol can be exercised against a
// fake in tests without an ONNX session.
type faceDetector interface {
	Detect(img image.Image, threshold float32) ([]candidate, error)
}

// Config bundles the thresholds an Analyser applies; it is a narrowed view
// of models.FaceAnalysisConfig. The analyser runs a single detector and
// applies SingleNMSIoU; FusionNMSIoU is carried but not read, and
// candidates from several detectors are never fused.
type Config struct {
	ScoreThreshold float32
	SingleNMSIoU   float32
	FusionNMSIoU   float32
}

// Analyser implements the face analysis protocol: fingerprint the frame,
// consult the cache, sweep rotations for detections, refine landmarks,
// extract embeddings and attributes for whichever fields were requested,
// merge into the cache, and apply a FaceSelector. It ties together
// Detector, Landmarker, Recognizer and Classifier behind a single entry
// point, mirroring the shape of the teacher's pipeline.go orchestration
// of its three vision components.
type Analyser struct {
	cache      *Store
	detector   faceDetector
	landmarker *Landmarker
	recognizer *Recognizer
	classifier *Classifier
	cfg        Config
}

// NewAnalyser wires the four model components behind a shared cache. Any
// component may be nil, in which case the corresponding AnalysisField is
// never populated (e.g. a task with no Classifier configured leaves
// Gender/Age/Race at their zero values).
func NewAnalyser(cache *Store, det faceDetector, lm *Landmarker, rec *Recognizer, cls *Classifier, cfg Config) *Analyser {
	return &Analyser{cache: cache, detector: det, landmarker: lm, recognizer: rec, classifier: cls, cfg: cfg}
}

// Analyse runs the full protocol against frame for runID and returns every
// face carrying at least the requested fields, before any FaceSelector is
// applied.
func (a *Analyser) Analyse(runID string, frame image.Image, want models.AnalysisField) ([]models.Face, error) {
	fp := ComputeFingerprint(frame)

	cached, ok := a.cache.Lookup(runID, fp, want)
	if ok {
		return cached, nil
	}

	// A partial hit already carries detection (and possibly more); only
	// the fields enrich() adds below are missing, so skip detect()
	// entirely and enrich the cached faces in place. Copy first since
	// cached aliases the cache entry's own slice.
	var faces []models.Face
	if cached != nil {
		faces = append([]models.Face(nil), cached...)
	} else {
		var err error
		faces, err = a.detect(frame)
		if err != nil {
			return nil, err
		}
	}

	for i := range faces {
		if err := a.enrich(frame, &faces[i], want); err != nil {
			return nil, err
		}
	}

	a.cache.Upgrade(runID, fp, faces)
	merged, _ := a.cache.Lookup(runID, fp, 0)
	return merged, nil
}

// detect tries rotations {0, 90, 180, 270} in sequence, per spec §4.3 step
// 3, stopping at the first angle that yields at least one candidate
// passing the score threshold. Candidates from that winning angle alone
// are mapped back to frame coordinates and suppressed via NMS; later
// angles are never tried once one succeeds.
func (a *Analyser) detect(frame image.Image) ([]models.Face, error) {
	if a.detector == nil {
		return nil, nil
	}

	bounds := frame.Bounds()
	origW, origH := bounds.Dx(), bounds.Dy()

	var winning []candidate
	for _, angle := range rotationSweep {
		rotated := rotateImage(frame, angle)
		cands, err := a.detector.Detect(rotated, a.cfg.ScoreThreshold)
		if err != nil {
			return nil, err
		}
		if len(cands) == 0 {
			continue
		}

		for _, c := range cands {
			c.box.X1, c.box.Y1 = rotatePointBack(c.box.X1, c.box.Y1, angle, origW, origH)
			c.box.X2, c.box.Y2 = rotatePointBack(c.box.X2, c.box.Y2, angle, origW, origH)
			c.box = normalizeBox(c.box)
			for i := range c.landmarks5 {
				c.landmarks5[i].X, c.landmarks5[i].Y = rotatePointBack(c.landmarks5[i].X, c.landmarks5[i].Y, angle, origW, origH)
			}
			winning = append(winning, c)
		}
		break
	}

	iouThresh := a.cfg.SingleNMSIoU
	if iouThresh == 0 {
		iouThresh = 0.4
	}
	kept := nonMaxSuppress(winning, iouThresh)

	faces := make([]models.Face, 0, len(kept))
	for _, c := range kept {
		faces = append(faces, models.Face{
			Box:                c.box,
			Landmarks5:         c.landmarks5,
			DetectorConfidence: c.score,
			Analysed:           models.FieldDetection,
		})
	}
	return faces, nil
}

// normalizeBox restores X1<X2/Y1<Y2 ordering after rotation, which can
// flip a box's corners depending on the sweep angle.
func normalizeBox(b models.BBox) models.BBox {
	if b.X1 > b.X2 {
		b.X1, b.X2 = b.X2, b.X1
	}
	if b.Y1 > b.Y2 {
		b.Y1, b.Y2 = b.Y2, b.Y1
	}
	return b
}

// enrich fills in whichever of Landmark/Embedding/GenderAge the caller
// requested and the face doesn't already carry, per spec §4.3 step 5. A
// landmarker refinement that returns low confidence falls back to the
// analytic 5-to-68 expansion rather than failing the whole analysis.
func (a *Analyser) enrich(frame image.Image, f *models.Face, want models.AnalysisField) error {
	if want.Has(models.FieldLandmark) && !f.Analysed.Has(models.FieldLandmark) {
		if a.landmarker != nil {
			pts, conf, err := a.landmarker.Refine(frame, f.Landmarks5)
			if err != nil {
				return err
			}
			if conf >= landmarkConfidenceThreshold {
				f.Landmarks68 = pts
				f.HasLandmarks68 = true
				f.LandmarkConfidence = conf
			} else {
				f.Landmarks68 = Expand5To68(f.Landmarks5)
				f.HasLandmarks68 = true
				f.LandmarkConfidence = 0
			}
		} else {
			f.Landmarks68 = Expand5To68(f.Landmarks5)
			f.HasLandmarks68 = true
		}
		f.Analysed |= models.FieldLandmark
	}

	if want.Has(models.FieldEmbedding) && !f.Analysed.Has(models.FieldEmbedding) && a.recognizer != nil {
		raw, normed, err := a.recognizer.Extract(frame, f.Landmarks5)
		if err != nil {
			return err
		}
		f.Embedding = raw
		f.NormedEmbedding = normed
		f.Analysed |= models.FieldEmbedding
	}

	if want.Has(models.FieldGenderAge) && !f.Analysed.Has(models.FieldGenderAge) && a.classifier != nil {
		gender, conf, age, err := a.classifier.Predict(frame, f.Landmarks5)
		if err != nil {
			return err
		}
		f.Gender = gender
		f.GenderConfidence = conf
		f.Age = age
		f.Analysed |= models.FieldGenderAge
	}

	return nil
}

// Select narrows and orders a. Analyse's result according to sel. When
// sel.Mode is SelectReference, referenceEmbedding must already be
// L2-normalised.
func Select(faces []models.Face, sel models.FaceSelector, referenceEmbedding []float32) []models.Face {
	return ApplySelector(faces, sel, referenceEmbedding)
}

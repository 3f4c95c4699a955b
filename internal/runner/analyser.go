package runner

import (
	"context"

	"github.com/fusion-core/engine/internal/faceanalyser"
	"github.com/fusion-core/engine/internal/inference"
	"github.com/fusion-core/engine/internal/modelrepo"
	"github.com/fusion-core/engine/internal/models"
)

// detectorInputSize is the fixed input resolution for every supported
// detector backbone, per spec §6's "Detector size default 640x640".
const detectorInputSize = 640

// analyserModelNames maps the fixed face-analyser roles to well-known
// model file names resolved through the model repo. The detector's file
// name additionally depends on the configured backbone.
const (
	landmarkerModel = "landmarker.onnx"
	recognizerModel = "recognizer.onnx"
	classifierModel = "classifier.onnx"
)

func detectorModelName(t models.DetectorType) string {
	switch t {
	case models.DetectorYolo:
		return "detector_yolo.onnx"
	case models.DetectorSCRFD:
		return "detector_scrfd.onnx"
	case models.DetectorRetinaFace:
		return "detector_retinaface.onnx"
	default:
		return "detector_retinaface.onnx"
	}
}

// BuildAnalyser resolves and wires the four face-analysis model
// components behind one shared cache, per task config. The classifier is
// best-effort: its model is optional (spec.md's race-classifier gap), so
// a missing classifier model degrades to gender/age/race staying unset
// rather than failing the task.
func BuildAnalyser(ctx context.Context, repo *modelrepo.Repo, reg *inference.Registry, provider string, deviceID int, cfg models.FaceAnalysisConfig) (*faceanalyser.Analyser, error) {
	detPath, err := repo.Resolve(ctx, detectorModelName(cfg.FaceDetector.Type))
	if err != nil {
		return nil, err
	}
	det, err := faceanalyser.NewDetector(reg, detPath, detectorInputSize, detectorInputSize, provider, deviceID)
	if err != nil {
		return nil, err
	}

	lmPath, err := repo.Resolve(ctx, landmarkerModel)
	if err != nil {
		return nil, err
	}
	lm, err := faceanalyser.NewLandmarker(reg, lmPath, provider, deviceID)
	if err != nil {
		return nil, err
	}

	recPath, err := repo.Resolve(ctx, recognizerModel)
	if err != nil {
		return nil, err
	}
	rec, err := faceanalyser.NewRecognizer(reg, recPath, provider, deviceID)
	if err != nil {
		return nil, err
	}

	var cls *faceanalyser.Classifier
	if clsPath, clsErr := repo.Resolve(ctx, classifierModel); clsErr == nil {
		cls, _ = faceanalyser.NewClassifier(reg, clsPath, provider, deviceID)
	}

	analyserCfg := faceanalyser.Config{
		ScoreThreshold: float32(cfg.FaceDetector.ScoreThreshold),
		SingleNMSIoU:   float32(cfg.FaceDetector.IOUThreshold),
		FusionNMSIoU:   float32(cfg.FaceDetector.IOUThreshold),
	}
	if analyserCfg.ScoreThreshold == 0 {
		analyserCfg.ScoreThreshold = 0.5
	}
	if analyserCfg.SingleNMSIoU == 0 {
		analyserCfg.SingleNMSIoU = 0.4
	}

	return faceanalyser.NewAnalyser(faceanalyser.NewStore(), det, lm, rec, cls, analyserCfg), nil
}

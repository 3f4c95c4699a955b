package runner

import (
	"crypto/sha1"
	"encoding/hex"
	"fmt"

	"github.com/fusion-core/engine/internal/models"
)

// ConfigFingerprint hashes every recognised option that affects the
// produced output (spec §6's table, minus task_info.enable_resume and the
// output path itself) so a changed parameter invalidates a checkpoint.
func ConfigFingerprint(cfg *models.TaskConfig) string {
	h := sha1.New()
	fmt.Fprintf(h, "%s|", cfg.ConfigVersion)
	fmt.Fprintf(h, "%v|%v|", cfg.IO.SourcePaths, cfg.IO.TargetPaths)
	fmt.Fprintf(h, "%s|%s|%d|%s|%s|",
		cfg.IO.Output.ImageFormat, cfg.IO.Output.VideoEncoder,
		cfg.IO.Output.VideoQuality, cfg.IO.Output.AudioPolicy, cfg.IO.Output.ConflictPolicy)
	fmt.Fprintf(h, "%s|%.4f|%.4f|", cfg.FaceAnalysis.FaceDetector.Type,
		cfg.FaceAnalysis.FaceDetector.ScoreThreshold, cfg.FaceAnalysis.FaceDetector.IOUThreshold)
	fmt.Fprintf(h, "%.4f|", cfg.FaceAnalysis.FaceRecognizer.SimilarityThreshold)
	fmt.Fprintf(h, "%s|%d|%d|%d|%d|%s|",
		cfg.Resource.MemoryStrategy, cfg.Resource.WorkerThreadCount, cfg.Resource.MaxQueueSize,
		cfg.Resource.MaxConcurrentGPUTasks, cfg.Resource.MaxFrames, cfg.Resource.ExecutionOrder)

	for _, step := range cfg.Pipeline {
		fmt.Fprintf(h, "[%s|%v|%s|%.4f|%.4f|%d|%+v|%v|%.4f|%v|%s|%v|%s|%v]",
			step.Step, step.Enabled, step.Params.Model, step.Params.BlendFactor, step.Params.RestoreFactor,
			step.Params.Scale, step.Params.Selector, step.Params.MaskPaddingTRBL, step.Params.MaskBlur,
			step.Params.UseOcclusionMask, step.Params.OccluderModel,
			step.Params.UseRegionMask, step.Params.ParserModel, step.Params.RegionSet)
	}

	return hex.EncodeToString(h.Sum(nil))
}

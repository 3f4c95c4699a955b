package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fusion-core/engine/internal/models"
)

func baseTaskConfig() *models.TaskConfig {
	return &models.TaskConfig{
		ConfigVersion: supportedConfigVersion,
		TaskInfo:      models.TaskInfo{ID: "task1"},
		IO: models.IOConfig{
			SourcePaths: []string{"source.jpg"},
			TargetPaths: []string{"target.mp4"},
		},
		Resource: models.ResourceConfig{WorkerThreadCount: 1, MaxQueueSize: 1, MaxConcurrentGPUTasks: 1},
		Pipeline: []models.PipelineStep{
			{Step: models.StepFaceSwapper, Enabled: true, Params: models.StepParams{Model: "swap.onnx"}},
		},
	}
}

func TestSetTaskDefaultsFillsOccluderModelWhenOcclusionMaskRequested(t *testing.T) {
	cfg := baseTaskConfig()
	cfg.Pipeline[0].Params.UseOcclusionMask = true
	setTaskDefaults(cfg)
	assert.NotEmpty(t, cfg.Pipeline[0].Params.OccluderModel)
}

func TestSetTaskDefaultsFillsParserModelWhenRegionMaskRequested(t *testing.T) {
	cfg := baseTaskConfig()
	cfg.Pipeline[0].Params.UseRegionMask = true
	setTaskDefaults(cfg)
	assert.NotEmpty(t, cfg.Pipeline[0].Params.ParserModel)
}

func TestSetTaskDefaultsLeavesMaskModelsEmptyWhenNotRequested(t *testing.T) {
	cfg := baseTaskConfig()
	setTaskDefaults(cfg)
	assert.Empty(t, cfg.Pipeline[0].Params.OccluderModel)
	assert.Empty(t, cfg.Pipeline[0].Params.ParserModel)
}

func TestValidateTaskConfigRejectsOcclusionMaskWithoutModel(t *testing.T) {
	cfg := baseTaskConfig()
	cfg.FaceAnalysis.FaceDetector.Type = models.DetectorRetinaFace
	cfg.Pipeline[0].Params.UseOcclusionMask = true
	err := ValidateTaskConfig(cfg)
	require.Error(t, err)
}

func TestValidateTaskConfigAcceptsOcclusionMaskWithModel(t *testing.T) {
	cfg := baseTaskConfig()
	cfg.Pipeline[0].Params.UseOcclusionMask = true
	cfg.Pipeline[0].Params.OccluderModel = "xseg"
	require.NoError(t, ValidateTaskConfig(cfg))
}

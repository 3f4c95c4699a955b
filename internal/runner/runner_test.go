package runner

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fusion-core/engine/internal/models"
)

func sampleConfig() *models.TaskConfig {
	return &models.TaskConfig{
		ConfigVersion: "1.0",
		TaskInfo:      models.TaskInfo{ID: "task1", EnableResume: true},
		IO: models.IOConfig{
			SourcePaths: []string{"source.jpg"},
			TargetPaths: []string{"target.mp4"},
			Output:      models.IOOutput{Path: "out", ImageFormat: "png"},
		},
		Resource: models.ResourceConfig{WorkerThreadCount: 4, MaxQueueSize: 8},
		Pipeline: []models.PipelineStep{
			{Step: models.StepFaceSwapper, Enabled: true, Params: models.StepParams{Model: "swap.onnx"}},
		},
	}
}

func TestConfigFingerprintIsDeterministic(t *testing.T) {
	cfg := sampleConfig()
	assert.Equal(t, ConfigFingerprint(cfg), ConfigFingerprint(cfg))
}

func TestConfigFingerprintChangesWithPipelineEdit(t *testing.T) {
	cfg := sampleConfig()
	before := ConfigFingerprint(cfg)
	cfg.Pipeline[0].Params.BlendFactor = 0.5
	after := ConfigFingerprint(cfg)
	assert.NotEqual(t, before, after)
}

func TestConfigFingerprintIgnoresResumeFlag(t *testing.T) {
	cfg := sampleConfig()
	before := ConfigFingerprint(cfg)
	cfg.TaskInfo.EnableResume = false
	after := ConfigFingerprint(cfg)
	assert.Equal(t, before, after)
}

func TestCheckpointWriteLoadRoundTrips(t *testing.T) {
	dir := t.TempDir()
	path := CheckpointPath(dir, "task1")

	rec := models.CheckpointRecord{TaskID: "task1", ConfigFingerprint: "abc", LastCompletedSeqID: 42, TotalFrames: 100}
	require.NoError(t, WriteCheckpoint(path, rec))

	got, ok, err := LoadCheckpoint(path)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, rec, got)
}

func TestLoadCheckpointMissingReturnsNotOK(t *testing.T) {
	_, ok, err := LoadCheckpoint(filepath.Join(t.TempDir(), "missing.ckpt"))
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestResolveResumePointMismatchRestartsFromZero(t *testing.T) {
	dir := t.TempDir()
	cfg := sampleConfig()
	path := CheckpointPath(dir, cfg.TaskInfo.ID)
	require.NoError(t, WriteCheckpoint(path, models.CheckpointRecord{
		TaskID: cfg.TaskInfo.ID, ConfigFingerprint: "stale", LastCompletedSeqID: 50,
	}))

	seq, resumed, err := ResolveResumePoint(dir, cfg)
	require.NoError(t, err)
	assert.False(t, resumed)
	assert.Equal(t, int64(0), seq)
}

func TestResolveResumePointMatchResumesPastCheckpoint(t *testing.T) {
	dir := t.TempDir()
	cfg := sampleConfig()
	path := CheckpointPath(dir, cfg.TaskInfo.ID)
	require.NoError(t, WriteCheckpoint(path, models.CheckpointRecord{
		TaskID: cfg.TaskInfo.ID, ConfigFingerprint: ConfigFingerprint(cfg), LastCompletedSeqID: 50,
	}))

	seq, resumed, err := ResolveResumePoint(dir, cfg)
	require.NoError(t, err)
	assert.True(t, resumed)
	assert.Equal(t, int64(51), seq)
}

func TestResolveResumePointDisabledStartsAtZero(t *testing.T) {
	cfg := sampleConfig()
	cfg.TaskInfo.EnableResume = false
	seq, resumed, err := ResolveResumePoint(t.TempDir(), cfg)
	require.NoError(t, err)
	assert.False(t, resumed)
	assert.Equal(t, int64(0), seq)
}

func TestResolveOutputPathAppliesPrefixSuffixAndFormat(t *testing.T) {
	dir := t.TempDir()
	out := models.IOOutput{Path: dir, Prefix: "pre_", Suffix: "_post", ImageFormat: "jpg"}
	path, ok, err := ResolveOutputPath(out, "photo.png", false)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, filepath.Join(dir, "pre_photo_post.jpg"), path)
}

func TestResolveOutputPathSkipPolicyReportsNotOK(t *testing.T) {
	dir := t.TempDir()
	existing := filepath.Join(dir, "photo.png")
	require.NoError(t, os.WriteFile(existing, []byte("x"), 0o644))

	out := models.IOOutput{Path: dir, ImageFormat: "png", ConflictPolicy: models.ConflictSkip}
	_, ok, err := ResolveOutputPath(out, "photo.png", false)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestResolveOutputPathRenamePolicyAvoidsCollision(t *testing.T) {
	dir := t.TempDir()
	existing := filepath.Join(dir, "photo.png")
	require.NoError(t, os.WriteFile(existing, []byte("x"), 0o644))

	out := models.IOOutput{Path: dir, ImageFormat: "png", ConflictPolicy: models.ConflictRename}
	path, ok, err := ResolveOutputPath(out, "photo.png", false)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, filepath.Join(dir, "photo_1.png"), path)
}

func TestSplitTripleParsesThreeNames(t *testing.T) {
	assert.Equal(t, []string{"a.onnx", "b.onnx", "c.onnx"}, splitTriple("a.onnx,b.onnx,c.onnx"))
}

func TestSplitTripleSingleNameHasLengthOne(t *testing.T) {
	assert.Equal(t, []string{"a.onnx"}, splitTriple("a.onnx"))
}

func TestStageAnalysisWantIncludesEmbeddingForSwapper(t *testing.T) {
	step := models.PipelineStep{Step: models.StepFaceSwapper}
	want := stageAnalysisWant(step)
	assert.True(t, want.Has(models.FieldEmbedding))
}

func TestStageAnalysisWantSkipsEmbeddingForPlainEnhancer(t *testing.T) {
	step := models.PipelineStep{Step: models.StepFaceEnhancer}
	want := stageAnalysisWant(step)
	assert.False(t, want.Has(models.FieldEmbedding))
	assert.True(t, want.Has(models.FieldDetection))
}

func TestStageAnalysisWantIncludesEmbeddingForReferenceSelector(t *testing.T) {
	step := models.PipelineStep{
		Step:   models.StepFaceEnhancer,
		Params: models.StepParams{Selector: models.FaceSelector{Mode: models.SelectReference}},
	}
	want := stageAnalysisWant(step)
	assert.True(t, want.Has(models.FieldEmbedding))
}

package runner

import (
	"context"

	"github.com/fusion-core/engine/internal/faceanalyser"
	"github.com/fusion-core/engine/internal/fusionerr"
	"github.com/fusion-core/engine/internal/inference"
	"github.com/fusion-core/engine/internal/modelrepo"
	"github.com/fusion-core/engine/internal/models"
	"github.com/fusion-core/engine/internal/pipeline"
	"github.com/fusion-core/engine/internal/processors"
)

// stageAnalysisWant reports the face-analyser fields a step's processor
// needs populated before it runs. Every step needs at least a detection
// box; swap and reference-mode selection additionally need the
// embedding.
func stageAnalysisWant(step models.PipelineStep) models.AnalysisField {
	want := models.FieldDetection | models.FieldLandmark
	if step.Step == models.StepFaceSwapper || step.Params.Selector.Mode == models.SelectReference {
		want |= models.FieldEmbedding
	}
	if step.Params.Selector.Gender != models.GenderUnknown || step.Params.Selector.Race != models.RaceAll || step.Params.Selector.AgeMax > 0 {
		want |= models.FieldGenderAge
	}
	return want
}

// BuildStages translates a task's enabled PipelineStep entries into
// engine stages, resolving each step's model through repo and acquiring
// its inference session through reg.
func BuildStages(ctx context.Context, cfg *models.TaskConfig, repo *modelrepo.Repo, reg *inference.Registry, analyser *faceanalyser.Analyser, provider string, deviceID int) ([]pipeline.Stage, error) {
	var stages []pipeline.Stage

	for _, step := range cfg.Pipeline {
		if !step.Enabled {
			continue
		}

		modelPath, err := repo.Resolve(ctx, step.Params.Model)
		if err != nil {
			return nil, err
		}

		masker, err := buildMasker(ctx, repo, reg, provider, deviceID, step.Params)
		if err != nil {
			return nil, err
		}

		var proc processors.Processor
		switch step.Step {
		case models.StepFaceSwapper:
			proc, err = processors.NewFaceSwapper(reg, modelPath, provider, deviceID, step.Params, masker)
		case models.StepFaceEnhancer:
			proc, err = processors.NewFaceEnhancer(reg, modelPath, provider, deviceID, step.Params, masker)
		case models.StepExpressionRestorer:
			proc, err = newExpressionRestorer(ctx, repo, reg, provider, deviceID, step.Params, masker)
		case models.StepFrameEnhancer:
			proc, err = processors.NewFrameEnhancer(reg, modelPath, provider, deviceID, step.Params)
		default:
			return nil, fusionerr.Newf(fusionerr.CodeFieldMissing, "unrecognised pipeline step %q", step.Step)
		}
		if err != nil {
			return nil, err
		}

		stage := pipeline.Stage{
			Name:       string(step.Step),
			Processor:  proc,
			Selector:   step.Params.Selector,
			IsGPUBound: true,
		}
		if step.Step != models.StepFrameEnhancer {
			stage.Analyser = analyser
			stage.Want = stageAnalysisWant(step)
		}
		stages = append(stages, stage)
	}

	if err := pipeline.Validate(stages); err != nil {
		return nil, err
	}
	return stages, nil
}

// buildMasker resolves the optional occluder/region-parser models a step's
// params name and wires them into a Masker, per spec §4.4. A step that
// requests neither mask type gets a nil Masker, and every Masker method
// tolerates a nil receiver by returning no mask.
func buildMasker(ctx context.Context, repo *modelrepo.Repo, reg *inference.Registry, provider string, deviceID int, params models.StepParams) (*processors.Masker, error) {
	if !params.UseOcclusionMask && !params.UseRegionMask {
		return nil, nil
	}

	var occluderPath, parserPath string
	var err error
	if params.UseOcclusionMask {
		occluderPath, err = repo.Resolve(ctx, params.OccluderModel)
		if err != nil {
			return nil, err
		}
	}
	if params.UseRegionMask {
		parserPath, err = repo.Resolve(ctx, params.ParserModel)
		if err != nil {
			return nil, err
		}
	}
	return processors.NewMasker(reg, occluderPath, parserPath, provider, deviceID)
}

// newExpressionRestorer resolves the LivePortrait sub-model triple
// (feature, motion, generator) from step.Params.Model treated as a
// comma-joined "feature,motion,generator" name triple, since StepParams
// only carries a single Model field.
func newExpressionRestorer(ctx context.Context, repo *modelrepo.Repo, reg *inference.Registry, provider string, deviceID int, params models.StepParams, masker *processors.Masker) (*processors.ExpressionRestorer, error) {
	names := splitTriple(params.Model)
	if len(names) != 3 {
		return nil, fusionerr.Newf(fusionerr.CodeFieldMissing,
			"expression_restorer model must name feature,motion,generator models, got %q", params.Model)
	}

	featurePath, err := repo.Resolve(ctx, names[0])
	if err != nil {
		return nil, err
	}
	motionPath, err := repo.Resolve(ctx, names[1])
	if err != nil {
		return nil, err
	}
	genPath, err := repo.Resolve(ctx, names[2])
	if err != nil {
		return nil, err
	}

	return processors.NewExpressionRestorer(reg, featurePath, motionPath, genPath, provider, deviceID, params, masker)
}

func splitTriple(s string) []string {
	var out []string
	start := 0
	for i := 0; i < len(s); i++ {
		if s[i] == ',' {
			out = append(out, s[start:i])
			start = i + 1
		}
	}
	out = append(out, s[start:])
	return out
}

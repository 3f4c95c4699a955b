// Package config loads and validates the core's TaskConfig and AppConfig
// (spec §6), following the teacher's YAML-plus-env-override convention.
package config

import (
	"fmt"
	"os"
	"strconv"

	"gopkg.in/yaml.v3"

	"github.com/fusion-core/engine/internal/fusionerr"
	"github.com/fusion-core/engine/internal/models"
)

const supportedConfigVersion = "1.0"

// rawTaskConfig mirrors the YAML shape of a task file; it is decoded then
// translated into models.TaskConfig so the rest of the engine works
// against plain Go enums rather than strings.
type rawTaskConfig struct {
	ConfigVersion string `yaml:"config_version"`
	TaskInfo      struct {
		ID           string `yaml:"id"`
		EnableResume bool   `yaml:"enable_resume"`
	} `yaml:"task_info"`
	IO struct {
		SourcePaths []string `yaml:"source_paths"`
		TargetPaths []string `yaml:"target_paths"`
		Output      struct {
			Path           string `yaml:"path"`
			Prefix         string `yaml:"prefix"`
			Suffix         string `yaml:"suffix"`
			ImageFormat    string `yaml:"image_format"`
			VideoEncoder   string `yaml:"video_encoder"`
			VideoQuality   int    `yaml:"video_quality"`
			AudioPolicy    string `yaml:"audio_policy"`
			ConflictPolicy string `yaml:"conflict_policy"`
		} `yaml:"output"`
	} `yaml:"io"`
	FaceAnalysis struct {
		FaceDetector struct {
			Type           string  `yaml:"type"`
			ScoreThreshold float64 `yaml:"score_threshold"`
			IOUThreshold   float64 `yaml:"iou_threshold"`
		} `yaml:"face_detector"`
		FaceRecognizer struct {
			SimilarityThreshold float64 `yaml:"similarity_threshold"`
		} `yaml:"face_recognizer"`
	} `yaml:"face_analysis"`
	Resource struct {
		MemoryStrategy        string `yaml:"memory_strategy"`
		WorkerThreadCount     int    `yaml:"worker_thread_count"`
		MaxQueueSize          int    `yaml:"max_queue_size"`
		MaxConcurrentGPUTasks int    `yaml:"max_concurrent_gpu_tasks"`
		MaxFrames             int    `yaml:"max_frames"`
		ExecutionOrder        string `yaml:"execution_order"`
	} `yaml:"resource"`
	Pipeline []rawPipelineStep `yaml:"pipeline"`
}

type rawPipelineStep struct {
	Step    string `yaml:"step"`
	Enabled bool   `yaml:"enabled"`
	Params  struct {
		Model         string  `yaml:"model"`
		BlendFactor   float64 `yaml:"blend_factor"`
		RestoreFactor float64 `yaml:"restore_factor"`
		Scale         int     `yaml:"scale"`
		Selector      struct {
			Mode              string  `yaml:"mode"`
			Order             string  `yaml:"order"`
			AgeMin            int     `yaml:"age_min"`
			AgeMax            int     `yaml:"age_max"`
			Gender            string  `yaml:"gender"`
			Race              string  `yaml:"race"`
			ReferenceFacePath string  `yaml:"reference_face_path"`
			ReferenceDistance float64 `yaml:"reference_distance"`
		} `yaml:"selector"`
		MaskPadding      [4]int   `yaml:"mask_padding"`
		MaskBlur         float64  `yaml:"mask_blur"`
		UseOcclusionMask bool     `yaml:"use_occlusion_mask"`
		UseRegionMask    bool     `yaml:"use_region_mask"`
		RegionSet        []string `yaml:"region_set"`
		OccluderModel    string   `yaml:"occluder_model"`
		ParserModel      string   `yaml:"parser_model"`
	} `yaml:"params"`
}

// LoadTaskConfig reads and validates a task YAML file.
func LoadTaskConfig(path string) (*models.TaskConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fusionerr.Wrap(fusionerr.CodeInvalidPath, "read task config", err).WithPath(path)
	}

	var raw rawTaskConfig
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, fusionerr.Wrap(fusionerr.CodeFieldMissing, "parse task config", err).WithPath(path)
	}

	cfg := translateTaskConfig(&raw)
	setTaskDefaults(cfg)
	if err := ValidateTaskConfig(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

func translateTaskConfig(raw *rawTaskConfig) *models.TaskConfig {
	cfg := &models.TaskConfig{
		ConfigVersion: raw.ConfigVersion,
		TaskInfo: models.TaskInfo{
			ID:           raw.TaskInfo.ID,
			EnableResume: raw.TaskInfo.EnableResume,
		},
		IO: models.IOConfig{
			SourcePaths: raw.IO.SourcePaths,
			TargetPaths: raw.IO.TargetPaths,
			Output: models.IOOutput{
				Path:           raw.IO.Output.Path,
				Prefix:         raw.IO.Output.Prefix,
				Suffix:         raw.IO.Output.Suffix,
				ImageFormat:    raw.IO.Output.ImageFormat,
				VideoEncoder:   raw.IO.Output.VideoEncoder,
				VideoQuality:   raw.IO.Output.VideoQuality,
				AudioPolicy:    models.AudioPolicy(raw.IO.Output.AudioPolicy),
				ConflictPolicy: models.ConflictPolicy(raw.IO.Output.ConflictPolicy),
			},
		},
		FaceAnalysis: models.FaceAnalysisConfig{
			FaceDetector: models.FaceDetectorConfig{
				Type:           models.DetectorType(raw.FaceAnalysis.FaceDetector.Type),
				ScoreThreshold: raw.FaceAnalysis.FaceDetector.ScoreThreshold,
				IOUThreshold:   raw.FaceAnalysis.FaceDetector.IOUThreshold,
			},
			FaceRecognizer: models.FaceRecognizerConfig{
				SimilarityThreshold: raw.FaceAnalysis.FaceRecognizer.SimilarityThreshold,
			},
		},
		Resource: models.ResourceConfig{
			MemoryStrategy:        models.MemoryStrategy(raw.Resource.MemoryStrategy),
			WorkerThreadCount:     raw.Resource.WorkerThreadCount,
			MaxQueueSize:          raw.Resource.MaxQueueSize,
			MaxConcurrentGPUTasks: raw.Resource.MaxConcurrentGPUTasks,
			MaxFrames:             raw.Resource.MaxFrames,
			ExecutionOrder:        models.ExecutionOrder(raw.Resource.ExecutionOrder),
		},
	}

	for _, s := range raw.Pipeline {
		cfg.Pipeline = append(cfg.Pipeline, models.PipelineStep{
			Step:    models.StepKind(s.Step),
			Enabled: s.Enabled,
			Params: models.StepParams{
				Model:           s.Params.Model,
				BlendFactor:     s.Params.BlendFactor,
				RestoreFactor:   s.Params.RestoreFactor,
				Scale:           s.Params.Scale,
				MaskPaddingTRBL: s.Params.MaskPadding,
				MaskBlur:        s.Params.MaskBlur,
				UseOcclusionMask: s.Params.UseOcclusionMask,
				UseRegionMask:    s.Params.UseRegionMask,
				RegionSet:        s.Params.RegionSet,
				OccluderModel:    s.Params.OccluderModel,
				ParserModel:      s.Params.ParserModel,
				Selector: models.FaceSelector{
					Mode:              models.FaceSelectorMode(s.Params.Selector.Mode),
					Order:             models.FaceSelectorOrder(s.Params.Selector.Order),
					AgeMin:            s.Params.Selector.AgeMin,
					AgeMax:            s.Params.Selector.AgeMax,
					Gender:            parseGender(s.Params.Selector.Gender),
					Race:              parseRace(s.Params.Selector.Race),
					ReferenceFacePath: s.Params.Selector.ReferenceFacePath,
					ReferenceDistance: s.Params.Selector.ReferenceDistance,
				},
			},
		})
	}

	return cfg
}

func parseGender(s string) models.Gender {
	switch s {
	case "male":
		return models.GenderMale
	case "female":
		return models.GenderFemale
	default:
		return models.GenderUnknown
	}
}

func parseRace(s string) models.Race {
	switch s {
	case "white":
		return models.RaceWhite
	case "black":
		return models.RaceBlack
	case "asian":
		return models.RaceAsian
	case "latino":
		return models.RaceLatino
	case "arabic":
		return models.RaceArabic
	case "indian":
		return models.RaceIndian
	default:
		return models.RaceAll
	}
}

// setTaskDefaults fills unset numeric options with spec §6's default
// constants.
func setTaskDefaults(cfg *models.TaskConfig) {
	if cfg.IO.Output.ImageFormat == "" {
		cfg.IO.Output.ImageFormat = "png"
	}
	if cfg.IO.Output.AudioPolicy == "" {
		cfg.IO.Output.AudioPolicy = models.AudioCopy
	}
	if cfg.IO.Output.ConflictPolicy == "" {
		cfg.IO.Output.ConflictPolicy = models.ConflictRename
	}
	if cfg.FaceAnalysis.FaceDetector.Type == "" {
		cfg.FaceAnalysis.FaceDetector.Type = models.DetectorRetinaFace
	}
	if cfg.FaceAnalysis.FaceDetector.ScoreThreshold == 0 {
		cfg.FaceAnalysis.FaceDetector.ScoreThreshold = 0.5
	}
	if cfg.FaceAnalysis.FaceDetector.IOUThreshold == 0 {
		cfg.FaceAnalysis.FaceDetector.IOUThreshold = 0.4
	}
	if cfg.FaceAnalysis.FaceRecognizer.SimilarityThreshold == 0 {
		cfg.FaceAnalysis.FaceRecognizer.SimilarityThreshold = 0.6
	}
	if cfg.Resource.MemoryStrategy == "" {
		cfg.Resource.MemoryStrategy = models.MemoryTolerant
	}
	if cfg.Resource.WorkerThreadCount == 0 {
		cfg.Resource.WorkerThreadCount = 4
	}
	if cfg.Resource.MaxQueueSize == 0 {
		cfg.Resource.MaxQueueSize = 32
	}
	if cfg.Resource.MaxConcurrentGPUTasks == 0 {
		cfg.Resource.MaxConcurrentGPUTasks = 1
	}
	if cfg.Resource.ExecutionOrder == "" {
		cfg.Resource.ExecutionOrder = models.ExecutionSequential
	}
	if cfg.Resource.MemoryStrategy == models.MemoryStrict && cfg.Resource.MaxQueueSize > 4 {
		cfg.Resource.MaxQueueSize = 4
	}

	for i := range cfg.Pipeline {
		p := &cfg.Pipeline[i]
		if p.Params.UseOcclusionMask && p.Params.OccluderModel == "" {
			p.Params.OccluderModel = "xseg"
		}
		if p.Params.UseRegionMask && p.Params.ParserModel == "" {
			p.Params.ParserModel = "bisenet_resnet34"
		}
		switch p.Step {
		case models.StepFaceSwapper:
			if p.Params.MaskBlur == 0 {
				p.Params.MaskBlur = 0.3
			}
		case models.StepFaceEnhancer:
			if p.Params.BlendFactor == 0 {
				p.Params.BlendFactor = 0.8
			}
		case models.StepExpressionRestorer:
			if p.Params.RestoreFactor == 0 {
				p.Params.RestoreFactor = 0.96
			}
		case models.StepFrameEnhancer:
			if p.Params.BlendFactor == 0 {
				p.Params.BlendFactor = 0.8
			}
			if p.Params.Scale == 0 {
				p.Params.Scale = 2
			}
		}
		if p.Params.Selector.ReferenceDistance == 0 {
			p.Params.Selector.ReferenceDistance = 0.6
		}
	}
}

// ValidateTaskConfig checks the recognised options against spec §6 and
// original_source's range-check conventions (SPEC_FULL §4).
func ValidateTaskConfig(cfg *models.TaskConfig) error {
	if cfg.ConfigVersion != supportedConfigVersion {
		return fusionerr.Newf(fusionerr.CodeConfigVersionMismatch,
			"config_version %q unsupported, want %q", cfg.ConfigVersion, supportedConfigVersion)
	}
	if cfg.TaskInfo.ID == "" {
		return fusionerr.New(fusionerr.CodeFieldMissing, "task_info.id is required")
	}
	if !isSlug(cfg.TaskInfo.ID) {
		return fusionerr.Newf(fusionerr.CodeInvalidPath, "task_info.id %q must match [A-Za-z0-9_]+", cfg.TaskInfo.ID)
	}
	if len(cfg.IO.SourcePaths) == 0 {
		return fusionerr.New(fusionerr.CodeFieldMissing, "io.source_paths requires at least one entry")
	}
	if len(cfg.IO.TargetPaths) == 0 {
		return fusionerr.New(fusionerr.CodeFieldMissing, "io.target_paths requires at least one entry")
	}
	if err := inRange01("face_analysis.face_detector.score_threshold", cfg.FaceAnalysis.FaceDetector.ScoreThreshold); err != nil {
		return err
	}
	if err := inRange01("face_analysis.face_detector.iou_threshold", cfg.FaceAnalysis.FaceDetector.IOUThreshold); err != nil {
		return err
	}
	if err := inRange01("face_analysis.face_recognizer.similarity_threshold", cfg.FaceAnalysis.FaceRecognizer.SimilarityThreshold); err != nil {
		return err
	}
	if cfg.Resource.WorkerThreadCount < 1 {
		return fusionerr.New(fusionerr.CodeParamOutOfRange, "resource.worker_thread_count must be >= 1")
	}
	if cfg.Resource.MaxQueueSize < 1 {
		return fusionerr.New(fusionerr.CodeParamOutOfRange, "resource.max_queue_size must be >= 1")
	}
	if cfg.Resource.MaxConcurrentGPUTasks < 1 {
		return fusionerr.New(fusionerr.CodeParamOutOfRange, "resource.max_concurrent_gpu_tasks must be >= 1")
	}
	for i, step := range cfg.Pipeline {
		if err := validateStepParams(i, step); err != nil {
			return err
		}
	}
	return nil
}

func validateStepParams(i int, step models.PipelineStep) error {
	prefix := fmt.Sprintf("pipeline[%d]", i)
	switch step.Step {
	case models.StepFaceEnhancer, models.StepFrameEnhancer:
		if err := inRange01(prefix+".params.blend_factor", step.Params.BlendFactor); err != nil {
			return err
		}
	case models.StepExpressionRestorer:
		if err := inRange01(prefix+".params.restore_factor", step.Params.RestoreFactor); err != nil {
			return err
		}
	}
	if step.Params.Selector.ReferenceDistance != 0 {
		if err := inRange01(prefix+".params.selector.reference_distance", step.Params.Selector.ReferenceDistance); err != nil {
			return err
		}
	}
	if step.Params.UseOcclusionMask && step.Params.OccluderModel == "" {
		return fusionerr.New(fusionerr.CodeFieldMissing, prefix+".params.occluder_model is required when use_occlusion_mask is set")
	}
	if step.Params.UseRegionMask && step.Params.ParserModel == "" {
		return fusionerr.New(fusionerr.CodeFieldMissing, prefix+".params.parser_model is required when use_region_mask is set")
	}
	return nil
}

func inRange01(field string, v float64) error {
	if v < 0 || v > 1 {
		return fusionerr.Newf(fusionerr.CodeParamOutOfRange, "%s = %v out of range [0,1]", field, v)
	}
	return nil
}

func isSlug(s string) bool {
	for _, r := range s {
		if !(r >= 'a' && r <= 'z' || r >= 'A' && r <= 'Z' || r >= '0' && r <= '9' || r == '_') {
			return false
		}
	}
	return len(s) > 0
}

// rawAppConfig mirrors the app-level YAML shape.
type rawAppConfig struct {
	Inference struct {
		DeviceID  int      `yaml:"device_id"`
		Providers []string `yaml:"providers"`
		IntraOp   int      `yaml:"intra_op_threads"`
		InterOp   int      `yaml:"inter_op_threads"`
	} `yaml:"inference"`
	Logging struct {
		Level     string `yaml:"level"`
		Directory string `yaml:"directory"`
		Rotation  string `yaml:"rotation"`
	} `yaml:"logging"`
	Models struct {
		Path string `yaml:"path"`
	} `yaml:"models"`
	Checkpoint struct {
		Directory      string `yaml:"directory"`
		IntervalFrames int    `yaml:"interval_frames"`
	} `yaml:"checkpoint"`
	SessionIdleTimeoutS int `yaml:"session_idle_timeout_s"`
}

// rawDaemonConfig extends the app-level YAML shape with the sections a
// long-lived daemon needs: server binding, Postgres, MinIO, and NATS.
type rawDaemonConfig struct {
	Base   rawAppConfig `yaml:",inline"`
	Server struct {
		Port   int    `yaml:"port"`
		APIKey string `yaml:"api_key"`
	} `yaml:"server"`
	Database struct {
		Host     string `yaml:"host"`
		Port     int    `yaml:"port"`
		User     string `yaml:"user"`
		Password string `yaml:"password"`
		Name     string `yaml:"name"`
		SSLMode  string `yaml:"ssl_mode"`
		MaxConns int    `yaml:"max_conns"`
	} `yaml:"database"`
	MinIO struct {
		Endpoint  string `yaml:"endpoint"`
		AccessKey string `yaml:"access_key"`
		SecretKey string `yaml:"secret_key"`
		Bucket    string `yaml:"bucket"`
		UseSSL    bool   `yaml:"use_ssl"`
	} `yaml:"minio"`
	NATS struct {
		URL string `yaml:"url"`
	} `yaml:"nats"`
}

// LoadDaemonConfig reads the long-lived daemon's configuration: the same
// app-level fields as LoadAppConfig, plus the server/database/MinIO/NATS
// sections the API and queue worker need.
func LoadDaemonConfig(path string) (*models.DaemonConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fusionerr.Wrap(fusionerr.CodeInvalidPath, "read daemon config", err).WithPath(path)
	}

	var raw rawDaemonConfig
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, fusionerr.Wrap(fusionerr.CodeFieldMissing, "parse daemon config", err).WithPath(path)
	}

	appCfg := appConfigFromRaw(&raw.Base)
	applyAppEnvOverrides(appCfg)
	setAppDefaults(appCfg)

	cfg := &models.DaemonConfig{
		AppConfig: *appCfg,
		Database: models.DatabaseConfig{
			Host: raw.Database.Host, Port: raw.Database.Port, User: raw.Database.User,
			Password: raw.Database.Password, Name: raw.Database.Name,
			SSLMode: raw.Database.SSLMode, MaxConns: raw.Database.MaxConns,
		},
		MinIO: models.MinIOConfig{
			Endpoint: raw.MinIO.Endpoint, AccessKey: raw.MinIO.AccessKey,
			SecretKey: raw.MinIO.SecretKey, Bucket: raw.MinIO.Bucket, UseSSL: raw.MinIO.UseSSL,
		},
		NATS:    models.NATSConfig{URL: raw.NATS.URL},
		APIAddr: fmt.Sprintf(":%d", raw.Server.Port),
		APIKey:  raw.Server.APIKey,
	}

	if v := os.Getenv("FUSION_API_KEY"); v != "" {
		cfg.APIKey = v
	}
	if cfg.Database.MaxConns == 0 {
		cfg.Database.MaxConns = 10
	}
	if raw.Server.Port == 0 {
		cfg.APIAddr = ":8080"
	}

	return cfg, nil
}

// LoadAppConfig reads the process-level configuration, applying env
// overrides in the teacher's FD_* shape (here FUSION_*).
func LoadAppConfig(path string) (*models.AppConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fusionerr.Wrap(fusionerr.CodeInvalidPath, "read app config", err).WithPath(path)
	}

	var raw rawAppConfig
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, fusionerr.Wrap(fusionerr.CodeFieldMissing, "parse app config", err).WithPath(path)
	}

	cfg := appConfigFromRaw(&raw)
	applyAppEnvOverrides(cfg)
	setAppDefaults(cfg)
	return cfg, nil
}

// appConfigFromRaw translates the shared app-level YAML shape into
// models.AppConfig, without env overrides or defaults; callers apply
// those themselves since LoadDaemonConfig layers its own env keys on top.
func appConfigFromRaw(raw *rawAppConfig) *models.AppConfig {
	cfg := &models.AppConfig{
		Logging: models.LoggingConfig{
			Level:     raw.Logging.Level,
			Format:    "json",
			Directory: raw.Logging.Directory,
			Rotation:  raw.Logging.Rotation,
		},
		ModelsPath:          raw.Models.Path,
		CheckpointDir:       raw.Checkpoint.Directory,
		CheckpointInterval:  raw.Checkpoint.IntervalFrames,
		IntraOpThreads:      raw.Inference.IntraOp,
		InterOpThreads:      raw.Inference.InterOp,
		SessionIdleTimeoutS: raw.SessionIdleTimeoutS,
	}
	for _, p := range raw.Inference.Providers {
		cfg.ExecutionProviders = append(cfg.ExecutionProviders, models.ExecutionProviderConfig{
			Name:     p,
			DeviceID: raw.Inference.DeviceID,
		})
	}
	return cfg
}

func applyAppEnvOverrides(cfg *models.AppConfig) {
	if v := os.Getenv("FUSION_LOG_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}
	if v := os.Getenv("FUSION_MODELS_PATH"); v != "" {
		cfg.ModelsPath = v
	}
	if v := os.Getenv("FUSION_CHECKPOINT_DIR"); v != "" {
		cfg.CheckpointDir = v
	}
	if v := os.Getenv("FUSION_CHECKPOINT_INTERVAL"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.CheckpointInterval = n
		}
	}
}

func setAppDefaults(cfg *models.AppConfig) {
	if len(cfg.ExecutionProviders) == 0 {
		cfg.ExecutionProviders = []models.ExecutionProviderConfig{{Name: "cpu"}}
	}
	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "info"
	}
	if cfg.Logging.Format == "" {
		cfg.Logging.Format = "json"
	}
	if cfg.ModelsPath == "" {
		cfg.ModelsPath = "./models"
	}
	if cfg.CheckpointDir == "" {
		cfg.CheckpointDir = "./checkpoints"
	}
	if cfg.CheckpointInterval == 0 {
		cfg.CheckpointInterval = 100
	}
	if cfg.SessionIdleTimeoutS == 0 {
		cfg.SessionIdleTimeoutS = 300
	}
}

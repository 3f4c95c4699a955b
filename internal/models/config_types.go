package models

import "fmt"

// FaceSelectorMode is the selection strategy applied after face analysis.
type FaceSelectorMode string

const (
	SelectOne       FaceSelectorMode = "one"
	SelectMany      FaceSelectorMode = "many"
	SelectReference FaceSelectorMode = "reference"
)

// FaceSelectorOrder controls the ordering applied before truncating to
// "one" or otherwise ranking faces.
type FaceSelectorOrder string

const (
	OrderLeftRight  FaceSelectorOrder = "left-right"
	OrderRightLeft  FaceSelectorOrder = "right-left"
	OrderTopBottom  FaceSelectorOrder = "top-bottom"
	OrderBottomTop  FaceSelectorOrder = "bottom-top"
	OrderSmallLarge FaceSelectorOrder = "small-large"
	OrderLargeSmall FaceSelectorOrder = "large-small"
	OrderBestWorst  FaceSelectorOrder = "best-worst"
	OrderWorstBest  FaceSelectorOrder = "worst-best"
)

// FaceSelector configures how the face analyser narrows its result set.
type FaceSelector struct {
	Mode               FaceSelectorMode
	Order              FaceSelectorOrder
	AgeMin, AgeMax     int
	Gender             Gender
	Race               Race
	ReferenceFacePath  string
	ReferenceDistance  float64
}

// DetectorType enumerates the supported face detector backbones.
type DetectorType string

const (
	DetectorYolo       DetectorType = "yolo"
	DetectorSCRFD      DetectorType = "scrfd"
	DetectorRetinaFace DetectorType = "retinaface"
	DetectorMany       DetectorType = "many"
)

// StepKind enumerates the processor stages a pipeline may run.
type StepKind string

const (
	StepFaceSwapper        StepKind = "face_swapper"
	StepFaceEnhancer       StepKind = "face_enhancer"
	StepExpressionRestorer StepKind = "expression_restorer"
	StepFrameEnhancer      StepKind = "frame_enhancer"
)

// StepParams carries the per-step tagged-union of parameters. Exactly the
// fields relevant to the owning PipelineStep's Step kind are consulted by
// the step's processor adapter.
type StepParams struct {
	Model             string
	BlendFactor       float64
	RestoreFactor     float64
	Scale             int
	Selector          FaceSelector
	MaskPaddingTRBL   [4]int
	MaskBlur          float64
	UseOcclusionMask  bool
	UseRegionMask     bool
	RegionSet         []string
	OccluderModel     string
	ParserModel       string
}

// PipelineStep is one entry of TaskConfig.Pipeline.
type PipelineStep struct {
	Step    StepKind
	Enabled bool
	Params  StepParams
}

// MemoryStrategy selects the runner's I/O topology.
type MemoryStrategy string

const (
	MemoryStrict   MemoryStrategy = "strict"
	MemoryTolerant MemoryStrategy = "tolerant"
)

// ExecutionOrder controls the outer loop across multiple targets.
type ExecutionOrder string

const (
	ExecutionSequential ExecutionOrder = "sequential"
	ExecutionBatch      ExecutionOrder = "batch"
)

// AudioPolicy controls whether the video runner remuxes original audio.
type AudioPolicy string

const (
	AudioCopy AudioPolicy = "copy"
	AudioDrop AudioPolicy = "drop"
)

// ConflictPolicy controls output name collision handling.
type ConflictPolicy string

const (
	ConflictOverwrite ConflictPolicy = "overwrite"
	ConflictSkip      ConflictPolicy = "skip"
	ConflictRename    ConflictPolicy = "rename"
)

// TaskInfo identifies a task and its resumability.
type TaskInfo struct {
	ID           string
	EnableResume bool
}

// IOOutput configures output naming and encoding.
type IOOutput struct {
	Path           string
	Prefix         string
	Suffix         string
	ImageFormat    string
	VideoEncoder   string
	VideoQuality   int
	AudioPolicy    AudioPolicy
	ConflictPolicy ConflictPolicy
}

// IOConfig carries source/target paths and output settings.
type IOConfig struct {
	SourcePaths []string
	TargetPaths []string
	Output      IOOutput
}

// FaceDetectorConfig configures the analyser's detector stage.
type FaceDetectorConfig struct {
	Type           DetectorType
	ScoreThreshold float64
	IOUThreshold   float64
}

// FaceRecognizerConfig configures the analyser's recogniser stage.
type FaceRecognizerConfig struct {
	SimilarityThreshold float64
}

// FaceAnalysisConfig groups the face analyser's task-level configuration.
type FaceAnalysisConfig struct {
	FaceDetector   FaceDetectorConfig
	FaceRecognizer FaceRecognizerConfig
}

// ResourceConfig controls pipeline engine sizing and execution strategy.
type ResourceConfig struct {
	MemoryStrategy        MemoryStrategy
	WorkerThreadCount     int
	MaxQueueSize          int
	MaxConcurrentGPUTasks int
	MaxFrames             int
	ExecutionOrder        ExecutionOrder
}

// TaskConfig is the full per-task configuration recognised by the core,
// per spec §6.
type TaskConfig struct {
	ConfigVersion string
	TaskInfo      TaskInfo
	IO            IOConfig
	FaceAnalysis  FaceAnalysisConfig
	Resource      ResourceConfig
	Pipeline      []PipelineStep
}

// ExecutionProviderConfig names one ONNX Runtime execution provider and
// its device binding.
type ExecutionProviderConfig struct {
	Name     string // "cpu", "cuda", "tensorrt"
	DeviceID int
}

// LoggingConfig controls the ambient logger.
type LoggingConfig struct {
	Level     string
	Format    string
	Directory string
	Rotation  string
}

// AppConfig is the process-level configuration, independent of any one
// task.
type AppConfig struct {
	ExecutionProviders []ExecutionProviderConfig
	Logging            LoggingConfig
	ModelsPath         string
	CheckpointDir       string
	CheckpointInterval  int // frames between checkpoint writes
	IntraOpThreads      int
	InterOpThreads      int
	SessionIdleTimeoutS int
}

// CheckpointRecord is the on-disk resumability record for a video task.
type CheckpointRecord struct {
	TaskID              string
	ConfigFingerprint   string // hex SHA-1
	LastCompletedSeqID  int64
	TotalFrames         int64
	IntendedOutputPath  string
}

// DatabaseConfig configures the daemon's Postgres connection, used for
// job bookkeeping and the reference-face gallery.
type DatabaseConfig struct {
	Host     string
	Port     int
	User     string
	Password string
	Name     string
	SSLMode  string
	MaxConns int
}

// DSN builds a libpq connection string from the config.
func (c DatabaseConfig) DSN() string {
	sslMode := c.SSLMode
	if sslMode == "" {
		sslMode = "disable"
	}
	return fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=%s",
		c.User, c.Password, c.Host, c.Port, c.Name, sslMode)
}

// MinIOConfig configures the daemon's object storage backend, used as the
// model repository's remote tier; job outputs are not uploaded to it.
type MinIOConfig struct {
	Endpoint  string
	AccessKey string
	SecretKey string
	Bucket    string
	UseSSL    bool
}

// NATSConfig configures the daemon's job queue transport.
type NATSConfig struct {
	URL string
}

// DaemonConfig is the long-lived daemon's process configuration. It
// extends AppConfig with the storage and queue backends that a
// single-shot fusionctl run never needs.
type DaemonConfig struct {
	AppConfig
	Database DatabaseConfig
	MinIO    MinIOConfig
	NATS     NATSConfig
	APIAddr  string
	APIKey   string
}

// JobStatus is the lifecycle state of a submitted task.
type JobStatus string

const (
	JobQueued    JobStatus = "queued"
	JobRunning   JobStatus = "running"
	JobSucceeded JobStatus = "succeeded"
	JobFailed    JobStatus = "failed"
	JobCancelled JobStatus = "cancelled"
)

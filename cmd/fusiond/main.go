// Command fusiond runs the long-lived daemon: an HTTP API for job
// submission/status and the reference-face gallery, plus a NATS-backed
// queue worker that executes submitted tasks to completion.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"runtime"
	"strings"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/nats-io/nats.go/jetstream"
	ort "github.com/yalue/onnxruntime_go"

	"github.com/fusion-core/engine/internal/api"
	"github.com/fusion-core/engine/internal/api/ws"
	"github.com/fusion-core/engine/internal/config"
	"github.com/fusion-core/engine/internal/inference"
	"github.com/fusion-core/engine/internal/modelrepo"
	"github.com/fusion-core/engine/internal/models"
	"github.com/fusion-core/engine/internal/observability"
	"github.com/fusion-core/engine/internal/queue"
	"github.com/fusion-core/engine/internal/runner"
	"github.com/fusion-core/engine/internal/storage"
	"github.com/fusion-core/engine/pkg/dto"
)

func main() {
	configPath := flag.String("config", "configs/daemon.yaml", "path to daemon config file")
	flag.Parse()

	cfg, err := config.LoadDaemonConfig(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "load daemon config: %v\n", err)
		os.Exit(1)
	}

	logger := observability.SetupLogger(cfg.Logging.Level, cfg.Logging.Format)
	logger.Info("starting fusiond", "cpu_cores", runtime.NumCPU())

	ort.SetSharedLibraryPath(onnxLibPath())
	if err := ort.InitializeEnvironment(); err != nil {
		logger.Error("init onnx runtime", "error", err)
		os.Exit(1)
	}
	defer ort.DestroyEnvironment()

	db, err := storage.NewPostgresStore(cfg.Database)
	if err != nil {
		logger.Error("connect to postgres", "error", err)
		os.Exit(1)
	}
	defer db.Close()

	minioStore, err := storage.NewMinIOStore(cfg.MinIO)
	if err != nil {
		logger.Error("connect to minio", "error", err)
		os.Exit(1)
	}
	if err := minioStore.EnsureBucket(context.Background()); err != nil {
		logger.Warn("ensure minio bucket", "error", err)
	}

	producer, err := queue.NewProducer(cfg.NATS.URL)
	if err != nil {
		logger.Error("connect to nats producer", "error", err)
		os.Exit(1)
	}
	defer producer.Close()
	if err := producer.EnsureStreams(context.Background()); err != nil {
		logger.Warn("ensure nats streams", "error", err)
	}

	reg := inference.NewRegistry(cfg.ExecutionProviders)
	defer reg.CloseAll()

	repo := modelrepo.New(cfg.ModelsPath, minioStore)
	provider, deviceID := primaryProvider(cfg.ExecutionProviders)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// The daemon's analyser serves the gallery endpoints (embedding
	// extraction for add/search) using a detector/recognizer configured
	// with permissive defaults; task-specific thresholds still apply
	// per-job inside the queue worker, which builds its own analyser
	// per task from that task's FaceAnalysisConfig.
	sharedAnalyser, err := runner.BuildAnalyser(ctx, repo, reg, provider, deviceID, models.FaceAnalysisConfig{
		FaceDetector:   models.FaceDetectorConfig{Type: models.DetectorSCRFD, ScoreThreshold: 0.5, IOUThreshold: 0.4},
		FaceRecognizer: models.FaceRecognizerConfig{SimilarityThreshold: 0.5},
	})
	if err != nil {
		logger.Error("build shared face analyser", "error", err)
		os.Exit(1)
	}

	hub := ws.NewHub()
	go hub.Run()

	consumer, err := queue.NewConsumer(cfg.NATS.URL)
	if err != nil {
		logger.Error("create job consumer", "error", err)
		os.Exit(1)
	}
	defer consumer.Close()

	err = consumer.ConsumeJobs(ctx, "fusion-workers", func(ctx context.Context, msg jetstream.Msg) error {
		var jobMsg models.JobMessage
		if err := json.Unmarshal(msg.Data(), &jobMsg); err != nil {
			logger.Error("unmarshal job message", "error", err)
			return nil // don't retry on unmarshal errors
		}
		runJob(ctx, logger, db, hub, repo, reg, &cfg.AppConfig, jobMsg)
		return nil
	}, runtime.NumCPU())
	if err != nil {
		logger.Error("start job consumer", "error", err)
		os.Exit(1)
	}

	router := api.NewRouter(api.RouterConfig{
		APIKey:   cfg.APIKey,
		DB:       db,
		MinIO:    minioStore,
		Producer: producer,
		Hub:      hub,
		Analyser: sharedAnalyser,
	})

	srv := &http.Server{
		Addr:         cfg.APIAddr,
		Handler:      router,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		logger.Info("fusiond API listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("shutting down fusiond...")
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown error", "error", err)
	}
	logger.Info("fusiond stopped")
}

// runJob loads a job's task config, runs it to completion through the
// image/video runners, and records its outcome. Each job builds its own
// analyser and pipeline stages from the task's own config, independent
// of the daemon's shared gallery analyser.
func runJob(ctx context.Context, logger *slog.Logger, db *storage.PostgresStore, hub *ws.Hub, repo *modelrepo.Repo, reg *inference.Registry, appCfg *models.AppConfig, jobMsg models.JobMessage) {
	_ = db.UpdateJobRunning(ctx, jobMsg.JobID)
	hub.BroadcastEvent(&dto.WSJobEvent{Type: "job_running", JobID: jobMsg.JobID, Status: string(models.JobRunning)})

	taskCfg, err := config.LoadTaskConfig(jobMsg.TaskConfigPath)
	if err != nil {
		finishJob(ctx, db, hub, jobMsg.JobID, models.JobFailed, err.Error(), nil)
		return
	}
	if err := config.ValidateTaskConfig(taskCfg); err != nil {
		finishJob(ctx, db, hub, jobMsg.JobID, models.JobFailed, err.Error(), nil)
		return
	}

	provider, deviceID := "cpu", 0
	analyser, err := runner.BuildAnalyser(ctx, repo, reg, provider, deviceID, taskCfg.FaceAnalysis)
	if err != nil {
		finishJob(ctx, db, hub, jobMsg.JobID, models.JobFailed, err.Error(), nil)
		return
	}

	if len(taskCfg.IO.SourcePaths) == 0 {
		finishJob(ctx, db, hub, jobMsg.JobID, models.JobFailed, "task config has no source_paths", nil)
		return
	}
	source, err := runner.LoadSourceFace(analyser, taskCfg.IO.SourcePaths[0])
	if err != nil {
		finishJob(ctx, db, hub, jobMsg.JobID, models.JobFailed, err.Error(), nil)
		return
	}

	stages, err := runner.BuildStages(ctx, taskCfg, repo, reg, analyser, provider, deviceID)
	if err != nil {
		finishJob(ctx, db, hub, jobMsg.JobID, models.JobFailed, err.Error(), nil)
		return
	}

	imageTargets, videoTargets := partitionTargets(taskCfg.IO.TargetPaths)

	var outputs []string
	if len(imageTargets) > 0 {
		imgCfg := *taskCfg
		imgCfg.IO.TargetPaths = imageTargets
		written, err := runner.RunImages(ctx, &imgCfg, source, stages)
		if err != nil {
			logger.Error("run job image targets", "job_id", jobMsg.JobID, "error", err)
			finishJob(ctx, db, hub, jobMsg.JobID, models.JobFailed, err.Error(), outputs)
			return
		}
		outputs = append(outputs, written...)
	}

	for _, target := range videoTargets {
		result, err := runner.RunVideo(ctx, taskCfg, appCfg, target, source, stages)
		if err != nil {
			logger.Error("run job video target", "job_id", jobMsg.JobID, "target", target, "error", err)
			finishJob(ctx, db, hub, jobMsg.JobID, models.JobFailed, err.Error(), outputs)
			return
		}
		if result.OutputPath != "" {
			outputs = append(outputs, result.OutputPath)
		}
	}

	finishJob(ctx, db, hub, jobMsg.JobID, models.JobSucceeded, "", outputs)
}

func finishJob(ctx context.Context, db *storage.PostgresStore, hub *ws.Hub, jobID uuid.UUID, status models.JobStatus, errMsg string, outputs []string) {
	if err := db.UpdateJobFinished(ctx, jobID, status, errMsg, outputs); err != nil {
		slog.Default().Error("update job finished", "job_id", jobID, "error", err)
	}
	eventType := "job_succeeded"
	if status == models.JobFailed {
		eventType = "job_failed"
	}
	hub.BroadcastEvent(&dto.WSJobEvent{
		Type:   eventType,
		JobID:  jobID,
		Status: string(status),
		Data: dto.JobResponse{
			ID:          jobID,
			Status:      string(status),
			Error:       errMsg,
			OutputPaths: outputs,
		},
	})
}

var videoExtensions = map[string]bool{
	".mp4": true, ".mov": true, ".mkv": true, ".avi": true, ".webm": true,
}

// partitionTargets splits a mixed target list so RunImages and RunVideo,
// which each assume a homogeneous target type, can both run from one
// task config.
func partitionTargets(targets []string) (images, videos []string) {
	for _, t := range targets {
		ext := strings.ToLower(filepath.Ext(t))
		if videoExtensions[ext] {
			videos = append(videos, t)
		} else {
			images = append(images, t)
		}
	}
	return images, videos
}

func primaryProvider(providers []models.ExecutionProviderConfig) (string, int) {
	if len(providers) == 0 {
		return "cpu", 0
	}
	return providers[0].Name, providers[0].DeviceID
}

func onnxLibPath() string {
	switch runtime.GOOS {
	case "windows":
		return "onnxruntime.dll"
	case "darwin":
		return "libonnxruntime.dylib"
	default:
		return "libonnxruntime.so"
	}
}

// Command fusionctl runs a single face-fusion task to completion and
// exits. It is the single-shot counterpart to fusiond's long-lived
// daemon: one process, one task config, one exit code.
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"runtime"
	"strings"
	"syscall"

	ort "github.com/yalue/onnxruntime_go"

	"github.com/fusion-core/engine/internal/config"
	"github.com/fusion-core/engine/internal/fusionerr"
	"github.com/fusion-core/engine/internal/inference"
	"github.com/fusion-core/engine/internal/modelrepo"
	"github.com/fusion-core/engine/internal/models"
	"github.com/fusion-core/engine/internal/observability"
	"github.com/fusion-core/engine/internal/runner"
)

func main() {
	appConfigPath := flag.String("app-config", "configs/app.yaml", "path to app config file")
	taskConfigPath := flag.String("task-config", "", "path to task config file")
	flag.Parse()

	if *taskConfigPath == "" {
		fmt.Fprintln(os.Stderr, "fusionctl: -task-config is required")
		os.Exit(1)
	}

	appCfg, err := config.LoadAppConfig(*appConfigPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "load app config: %v\n", err)
		os.Exit(exitCodeFor(err))
	}

	taskCfg, err := config.LoadTaskConfig(*taskConfigPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "load task config: %v\n", err)
		os.Exit(exitCodeFor(err))
	}
	if err := config.ValidateTaskConfig(taskCfg); err != nil {
		fmt.Fprintf(os.Stderr, "validate task config: %v\n", err)
		os.Exit(exitCodeFor(err))
	}

	logger := observability.SetupLogger(appCfg.Logging.Level, appCfg.Logging.Format)
	logger.Info("starting fusionctl", "task_id", taskCfg.TaskInfo.ID, "cpu_cores", runtime.NumCPU())

	ort.SetSharedLibraryPath(onnxLibPath())
	if err := ort.InitializeEnvironment(); err != nil {
		logger.Error("init onnx runtime", "error", err)
		os.Exit(1)
	}
	defer ort.DestroyEnvironment()

	reg := inference.NewRegistry(appCfg.ExecutionProviders)
	defer reg.CloseAll()

	repo := modelrepo.New(appCfg.ModelsPath, nil)

	provider, deviceID := primaryProvider(appCfg.ExecutionProviders)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() {
		quit := make(chan os.Signal, 1)
		signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
		<-quit
		logger.Warn("received shutdown signal, cancelling task")
		cancel()
	}()

	analyser, err := runner.BuildAnalyser(ctx, repo, reg, provider, deviceID, taskCfg.FaceAnalysis)
	if err != nil {
		logger.Error("build face analyser", "error", err)
		os.Exit(exitCodeFor(err))
	}

	if len(taskCfg.IO.SourcePaths) == 0 {
		fmt.Fprintln(os.Stderr, "fusionctl: task config has no source_paths")
		os.Exit(exitCodeFor(fusionerr.New(fusionerr.CodeFieldMissing, "source_paths empty")))
	}
	source, err := runner.LoadSourceFace(analyser, taskCfg.IO.SourcePaths[0])
	if err != nil {
		logger.Error("load source face", "error", err)
		os.Exit(exitCodeFor(err))
	}

	stages, err := runner.BuildStages(ctx, taskCfg, repo, reg, analyser, provider, deviceID)
	if err != nil {
		logger.Error("build pipeline stages", "error", err)
		os.Exit(exitCodeFor(err))
	}

	imageTargets, videoTargets := partitionTargets(taskCfg.IO.TargetPaths)

	var failed int
	if len(imageTargets) > 0 {
		imgCfg := *taskCfg
		imgCfg.IO.TargetPaths = imageTargets
		written, err := runner.RunImages(ctx, &imgCfg, source, stages)
		if err != nil {
			logger.Error("run image targets", "error", err)
			failed++
		}
		logger.Info("image targets complete", "written", len(written))
	}

	for _, target := range videoTargets {
		result, err := runner.RunVideo(ctx, taskCfg, appCfg, target, source, stages)
		if err != nil {
			logger.Error("run video target", "target", target, "error", err)
			failed++
			continue
		}
		logger.Info("video target complete",
			"target", target, "output", result.OutputPath,
			"frames_total", result.FramesTotal, "frames_failed", result.FramesFailed)
	}

	if failed > 0 {
		os.Exit(1)
	}
	logger.Info("fusionctl finished", "task_id", taskCfg.TaskInfo.ID)
}

func exitCodeFor(err error) int {
	if err == nil {
		return 0
	}
	if fe, ok := fusionerr.As(err); ok {
		return fusionerr.ExitCode(fe.Code)
	}
	return 1
}

func primaryProvider(providers []models.ExecutionProviderConfig) (string, int) {
	if len(providers) == 0 {
		return "cpu", 0
	}
	return providers[0].Name, providers[0].DeviceID
}

var videoExtensions = map[string]bool{
	".mp4": true, ".mkv": true, ".mov": true, ".avi": true,
	".webm": true, ".flv": true, ".wmv": true, ".m4v": true,
}

func partitionTargets(targets []string) (images, videos []string) {
	for _, t := range targets {
		if videoExtensions[strings.ToLower(filepath.Ext(t))] {
			videos = append(videos, t)
		} else {
			images = append(images, t)
		}
	}
	return images, videos
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

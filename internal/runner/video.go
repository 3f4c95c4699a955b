package runner

import (
	"context"
	"os"
	"sync"

	"github.com/fusion-core/engine/internal/fusionerr"
	"github.com/fusion-core/engine/internal/media"
	"github.com/fusion-core/engine/internal/models"
	"github.com/fusion-core/engine/internal/observability"
	"github.com/fusion-core/engine/internal/pipeline"
)

// VideoResult summarises a completed video task.
type VideoResult struct {
	OutputPath   string
	FramesTotal  int64
	FramesFailed int64
}

// RunVideo implements spec §4.6's normal-mode video path: open reader,
// resolve resume point, run the pipeline with a concurrent producer and
// writer thread, checkpoint periodically, and remux audio on completion.
func RunVideo(ctx context.Context, cfg *models.TaskConfig, appCfg *models.AppConfig, target string, source *SourceFace, stages []pipeline.Stage) (VideoResult, error) {
	dest, ok, err := ResolveOutputPath(cfg.IO.Output, target, true)
	if err != nil {
		return VideoResult{}, err
	}
	if !ok {
		return VideoResult{}, nil
	}

	reader, err := media.OpenVideoReader(ctx, target)
	if err != nil {
		return VideoResult{}, err
	}
	defer reader.Close()

	startSeq, resumed, err := ResolveResumePoint(appCfg.CheckpointDir, cfg)
	if err != nil {
		return VideoResult{}, err
	}
	if resumed {
		if err := skipFrames(reader, startSeq); err != nil {
			return VideoResult{}, err
		}
	}

	intermediate := dest + ".intermediate.mp4"
	writer, err := media.OpenVideoWriter(ctx, intermediate, reader.Info.Width, reader.Info.Height, reader.Info.FPS(),
		cfg.IO.Output.VideoEncoder, cfg.IO.Output.VideoQuality)
	if err != nil {
		return VideoResult{}, err
	}

	queueSize := cfg.Resource.MaxQueueSize
	if cfg.Resource.MemoryStrategy == models.MemoryStrict && queueSize > 4 {
		queueSize = 4
	}

	eng := pipeline.NewEngine(pipeline.Config{
		TaskID:                cfg.TaskInfo.ID,
		MaxQueueSize:          queueSize,
		WorkerThreadCount:     cfg.Resource.WorkerThreadCount,
		MaxConcurrentGPUTasks: cfg.Resource.MaxConcurrentGPUTasks,
	}, stages)
	eng.Start(startSeq)

	stopOnCancel := make(chan struct{})
	go func() {
		select {
		case <-ctx.Done():
			eng.Stop()
		case <-stopOnCancel:
		}
	}()
	defer close(stopOnCancel)

	ckptPath := CheckpointPath(appCfg.CheckpointDir, cfg.TaskInfo.ID)
	interval := appCfg.CheckpointInterval
	if interval <= 0 {
		interval = 100
	}

	var wg sync.WaitGroup
	var producerErr, writerErr error
	cancelled := ctx.Err() != nil

	wg.Add(1)
	go func() {
		defer wg.Done()
		producerErr = runProducer(ctx, eng, reader, startSeq, source, cfg.Resource.MaxFrames)
		if producerErr != nil {
			// Unblock the writer's PopFrame and the stop-watcher so a
			// mid-stream read/push failure can't deadlock the task.
			eng.Stop()
		}
	}()

	var framesWritten, framesFailed int64
	wg.Add(1)
	go func() {
		defer wg.Done()
		framesWritten, framesFailed, writerErr, cancelled = runWriter(ctx, eng, writer, ckptPath, cfg, dest, int64(interval))
	}()

	wg.Wait()
	eng.Stop()
	cancelled = cancelled || ctx.Err() != nil

	if cancelled {
		writer.Abort()
		_ = os.Remove(intermediate)
		return VideoResult{}, fusionerr.New(fusionerr.CodeCancelled, "video task cancelled")
	}

	if err := writer.Close(); err != nil {
		return VideoResult{}, err
	}
	if producerErr != nil {
		return VideoResult{}, producerErr
	}
	if writerErr != nil {
		return VideoResult{}, writerErr
	}

	if cfg.IO.Output.AudioPolicy == models.AudioCopy {
		if err := media.Remux(ctx, intermediate, target, dest); err != nil {
			return VideoResult{}, err
		}
		_ = os.Remove(intermediate)
	} else {
		if err := os.Rename(intermediate, dest); err != nil {
			return VideoResult{}, fusionerr.Wrap(fusionerr.CodeOutputWriteFailed, "finalize output", err).WithPath(dest)
		}
	}

	_ = DeleteCheckpoint(ckptPath)

	return VideoResult{OutputPath: dest, FramesTotal: framesWritten, FramesFailed: framesFailed}, nil
}

func skipFrames(reader *media.VideoReader, n int64) error {
	for i := int64(0); i < n; i++ {
		_, _, ok, err := reader.ReadFrame()
		if err != nil {
			return err
		}
		if !ok {
			return nil
		}
	}
	return nil
}

// runProducer reads frames from reader, assigns ascending sequence ids
// starting at startSeq, injects the shared source embedding, and pushes
// them into the engine. A cancelled context stops the read loop early.
func runProducer(ctx context.Context, eng *pipeline.Engine, reader *media.VideoReader, startSeq int64, source *SourceFace, maxFrames int) error {
	seq := startSeq
	produced := int64(0)

	for {
		if maxFrames > 0 && produced >= int64(maxFrames) {
			break
		}

		img, pts, ok, err := reader.ReadFrame()
		if err != nil {
			return err
		}
		if !ok {
			break
		}

		frame := &models.FrameData{SequenceID: seq, PTSMillis: pts, HasPTS: true, Image: img, OriginalImage: img}
		if source != nil {
			frame.SourceEmbedding = source.Embedding
		}

		if err := eng.PushFrame(ctx, frame); err != nil {
			return err
		}
		seq++
		produced++
	}

	return eng.PushFrame(ctx, &models.FrameData{SequenceID: seq, IsEndOfStream: true})
}

// runWriter drains the engine's output queue in order, writes every frame
// to the encoder, and persists a checkpoint every checkpointInterval
// frames. A context cancellation is reported via the cancelled return.
func runWriter(ctx context.Context, eng *pipeline.Engine, writer *media.VideoWriter, ckptPath string, cfg *models.TaskConfig, destPath string, checkpointInterval int64) (written, failed int64, err error, cancelled bool) {
	fingerprint := ConfigFingerprint(cfg)
	taskID := cfg.TaskInfo.ID

	for {
		frame, ok, popErr := eng.PopFrame(ctx)
		if popErr != nil {
			return written, failed, nil, true
		}
		if !ok || frame == nil {
			return written, failed, nil, false
		}
		if frame.IsEndOfStream {
			return written, failed, nil, false
		}

		if frame.Failed {
			failed++
			observability.FramesFailed.WithLabelValues(taskID).Inc()
		}

		if writeErr := writer.WriteFrame(frame.Image); writeErr != nil {
			return written, failed, writeErr, false
		}
		written++

		if checkpointInterval > 0 && written%checkpointInterval == 0 {
			_ = WriteCheckpoint(ckptPath, models.CheckpointRecord{
				TaskID:             taskID,
				ConfigFingerprint:  fingerprint,
				LastCompletedSeqID: frame.SequenceID,
				TotalFrames:        written,
				IntendedOutputPath: destPath,
			})
			observability.CheckpointsWritten.WithLabelValues(taskID).Inc()
		}
	}
}

package runner

import (
	"context"
	"image"

	"golang.org/x/sync/errgroup"

	"github.com/fusion-core/engine/internal/media"
	"github.com/fusion-core/engine/internal/models"
	"github.com/fusion-core/engine/internal/pipeline"
)

// RunImages processes every configured target image and returns the
// output path of each target that was actually written (skipped
// conflicts are omitted, in target order regardless of execution_order).
// Sequential runs one target at a time; Batch fans targets out across up
// to resource.worker_thread_count goroutines, since each target gets its
// own single-frame pipeline.Engine and the underlying inference sessions
// already serialise concurrent Run calls internally.
func RunImages(ctx context.Context, cfg *models.TaskConfig, source *SourceFace, stages []pipeline.Stage) ([]string, error) {
	if cfg.Resource.ExecutionOrder == models.ExecutionBatch {
		return runImagesBatch(ctx, cfg, source, stages)
	}
	return runImagesSequential(ctx, cfg, source, stages)
}

func runImagesSequential(ctx context.Context, cfg *models.TaskConfig, source *SourceFace, stages []pipeline.Stage) ([]string, error) {
	var written []string

	for _, target := range cfg.IO.TargetPaths {
		dest, ok, err := ResolveOutputPath(cfg.IO.Output, target, false)
		if err != nil {
			return written, err
		}
		if !ok {
			continue
		}

		out, err := runSingleImage(ctx, target, source, stages)
		if err != nil {
			return written, err
		}

		if err := media.WriteImage(dest, out, cfg.IO.Output.ImageFormat, cfg.IO.Output.VideoQuality); err != nil {
			return written, err
		}
		written = append(written, dest)
	}

	return written, nil
}

// runImagesBatch processes every target concurrently, bounded by
// resource.worker_thread_count, and returns the written paths in target
// order (not completion order).
func runImagesBatch(ctx context.Context, cfg *models.TaskConfig, source *SourceFace, stages []pipeline.Stage) ([]string, error) {
	results := make([]string, len(cfg.IO.TargetPaths))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(cfg.Resource.WorkerThreadCount)

	for i, target := range cfg.IO.TargetPaths {
		i, target := i, target
		g.Go(func() error {
			dest, ok, err := ResolveOutputPath(cfg.IO.Output, target, false)
			if err != nil {
				return err
			}
			if !ok {
				return nil
			}

			out, err := runSingleImage(gctx, target, source, stages)
			if err != nil {
				return err
			}
			if err := media.WriteImage(dest, out, cfg.IO.Output.ImageFormat, cfg.IO.Output.VideoQuality); err != nil {
				return err
			}
			results[i] = dest
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}

	written := make([]string, 0, len(results))
	for _, dest := range results {
		if dest != "" {
			written = append(written, dest)
		}
	}
	return written, nil
}

// runSingleImage builds a one-frame stream into a fresh Engine instance
// and reads back the single processed frame, per spec §4.6's image path.
func runSingleImage(ctx context.Context, targetPath string, source *SourceFace, stages []pipeline.Stage) (image.Image, error) {
	img, err := media.ReadImage(targetPath)
	if err != nil {
		return nil, err
	}

	eng := pipeline.NewEngine(pipeline.Config{
		TaskID:                targetPath,
		MaxQueueSize:          1,
		WorkerThreadCount:     1,
		MaxConcurrentGPUTasks: 1,
	}, stages)
	eng.Start(0)
	defer eng.Stop()

	frame := &models.FrameData{SequenceID: 0, Image: img, OriginalImage: img}
	if source != nil {
		frame.SourceEmbedding = source.Embedding
	}
	if err := eng.PushFrame(ctx, frame); err != nil {
		return nil, err
	}
	eos := &models.FrameData{SequenceID: 1, IsEndOfStream: true}
	if err := eng.PushFrame(ctx, eos); err != nil {
		return nil, err
	}

	result, _, err := eng.PopFrame(ctx)
	if err != nil {
		return nil, err
	}
	if result == nil {
		return img, nil
	}
	if result.Failed {
		return img, nil
	}
	return result.Image, nil
}

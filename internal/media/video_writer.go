package media

import (
	"bufio"
	"context"
	"fmt"
	"image"
	"image/draw"
	"io"
	"log/slog"
	"os/exec"

	"github.com/fusion-core/engine/internal/fusionerr"
)

// VideoWriter encodes a sequence of frames into an intermediate video
// file via an ffmpeg rawvideo pipe, the write-side counterpart of
// VideoReader.
type VideoWriter struct {
	width, height int
	cmd           *exec.Cmd
	stdin         io.WriteCloser
	cancel        context.CancelFunc
}

// OpenVideoWriter starts an ffmpeg encode subprocess writing to path at
// the given dimensions, fps, encoder and quality (1-100, 100 best, mapped
// onto CRF 51..0; 0 or less selects the encoder default CRF 23).
func OpenVideoWriter(ctx context.Context, path string, width, height int, fps float64, encoder string, quality int) (*VideoWriter, error) {
	if encoder == "" {
		encoder = "libx264"
	}
	crf := qualityToCRF(quality)

	runCtx, cancel := context.WithCancel(ctx)
	cmd := exec.CommandContext(runCtx, "ffmpeg",
		"-hide_banner", "-loglevel", "warning",
		"-y",
		"-f", "rawvideo",
		"-pix_fmt", "rgba",
		"-s", fmt.Sprintf("%dx%d", width, height),
		"-r", fmt.Sprintf("%.3f", fps),
		"-i", "pipe:0",
		"-an",
		"-c:v", encoder,
		"-pix_fmt", "yuv420p",
		"-crf", fmt.Sprintf("%d", crf),
		path,
	)

	stdin, err := cmd.StdinPipe()
	if err != nil {
		cancel()
		return nil, fusionerr.Wrap(fusionerr.CodeOutputWriteFailed, "ffmpeg stdin pipe", err).WithPath(path)
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		cancel()
		return nil, fusionerr.Wrap(fusionerr.CodeOutputWriteFailed, "ffmpeg stderr pipe", err).WithPath(path)
	}

	if err := cmd.Start(); err != nil {
		cancel()
		return nil, fusionerr.Wrap(fusionerr.CodeOutputWriteFailed, "start ffmpeg encoder", err).WithPath(path)
	}

	go func() {
		scanner := bufio.NewScanner(stderr)
		for scanner.Scan() {
			slog.Warn("ffmpeg encoder stderr", "output", scanner.Text(), "path", path)
		}
	}()

	return &VideoWriter{
		width:  width,
		height: height,
		cmd:    cmd,
		stdin:  stdin,
		cancel: cancel,
	}, nil
}

// WriteFrame encodes img, converting to RGBA if necessary and rejecting a
// dimension mismatch against the writer's fixed geometry.
func (w *VideoWriter) WriteFrame(img image.Image) error {
	b := img.Bounds()
	if b.Dx() != w.width || b.Dy() != w.height {
		return fusionerr.Newf(fusionerr.CodeOutputWriteFailed, "frame size %dx%d does not match writer size %dx%d", b.Dx(), b.Dy(), w.width, w.height)
	}

	rgba, ok := img.(*image.RGBA)
	if !ok {
		rgba = image.NewRGBA(b)
		draw.Draw(rgba, b, img, b.Min, draw.Src)
	}

	if _, err := w.stdin.Write(rgba.Pix); err != nil {
		return fusionerr.Wrap(fusionerr.CodeOutputWriteFailed, "write frame to encoder", err)
	}
	return nil
}

// Close flushes the input pipe and waits for ffmpeg to finish encoding.
func (w *VideoWriter) Close() error {
	defer w.cancel()
	if err := w.stdin.Close(); err != nil {
		return fusionerr.Wrap(fusionerr.CodeOutputWriteFailed, "close encoder stdin", err)
	}
	if err := w.cmd.Wait(); err != nil {
		return fusionerr.Wrap(fusionerr.CodeOutputWriteFailed, "ffmpeg encoder exited with error", err)
	}
	return nil
}

// Abort kills the encoder subprocess without waiting for a clean exit,
// used on cancellation when the intermediate output will be discarded.
func (w *VideoWriter) Abort() {
	w.cancel()
	if w.cmd.Process != nil {
		_ = w.cmd.Process.Kill()
	}
	_ = w.cmd.Wait()
}

func qualityToCRF(quality int) int {
	if quality <= 0 {
		return 23
	}
	if quality > 100 {
		quality = 100
	}
	// invert: 100 (best) -> crf 0, 1 (worst) -> crf 51
	return 51 - (quality*51)/100
}

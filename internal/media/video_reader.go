package media

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"image"
	"image/jpeg"
	"io"
	"log/slog"
	"os/exec"

	"github.com/fusion-core/engine/internal/fusionerr"
)

// VideoReader decodes a video file into a sequence of image.Image frames
// by piping ffmpeg's mjpeg image2pipe output and scanning JPEG markers,
// the same framing scheme the teacher's live-stream extractor uses.
type VideoReader struct {
	Info VideoInfo

	cmd    *exec.Cmd
	stdout *bufio.Reader
	cancel context.CancelFunc

	framesRead int64
}

// OpenVideoReader probes path and starts an ffmpeg decode subprocess.
func OpenVideoReader(ctx context.Context, path string) (*VideoReader, error) {
	info, err := Probe(ctx, path)
	if err != nil {
		return nil, err
	}

	runCtx, cancel := context.WithCancel(ctx)
	cmd := exec.CommandContext(runCtx, "ffmpeg",
		"-hide_banner", "-loglevel", "warning",
		"-i", path,
		"-f", "image2pipe",
		"-vcodec", "mjpeg",
		"-q:v", "2",
		"pipe:1",
	)

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		cancel()
		return nil, fusionerr.Wrap(fusionerr.CodeVideoOpenFailed, "ffmpeg stdout pipe", err).WithPath(path)
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		cancel()
		return nil, fusionerr.Wrap(fusionerr.CodeVideoOpenFailed, "ffmpeg stderr pipe", err).WithPath(path)
	}

	if err := cmd.Start(); err != nil {
		cancel()
		return nil, fusionerr.Wrap(fusionerr.CodeVideoOpenFailed, "start ffmpeg", err).WithPath(path)
	}

	go func() {
		scanner := bufio.NewScanner(stderr)
		for scanner.Scan() {
			slog.Warn("ffmpeg stderr", "output", scanner.Text(), "path", path)
		}
	}()

	return &VideoReader{
		Info:   info,
		cmd:    cmd,
		stdout: bufio.NewReaderSize(stdout, 512*1024),
		cancel: cancel,
	}, nil
}

// ReadFrame decodes the next frame. It returns ok=false once the stream is
// exhausted, with err nil for a clean end-of-stream.
func (r *VideoReader) ReadFrame() (img image.Image, ptsMillis int64, ok bool, err error) {
	if err := findJPEGStart(r.stdout); err != nil {
		if err == io.EOF {
			return nil, 0, false, nil
		}
		return nil, 0, false, fusionerr.Wrap(fusionerr.CodeVideoDecodeError, "scan jpeg marker", err)
	}

	data, err := readUntilJPEGEnd(r.stdout)
	if err != nil {
		if err == io.EOF {
			return nil, 0, false, nil
		}
		return nil, 0, false, fusionerr.Wrap(fusionerr.CodeVideoDecodeError, "read jpeg frame", err)
	}

	decoded, err := jpeg.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, 0, false, fusionerr.Wrap(fusionerr.CodeVideoDecodeError, "decode jpeg frame", err)
	}

	fps := r.Info.FPS()
	pts := int64(float64(r.framesRead) * 1000.0 / fps)
	r.framesRead++

	return decoded, pts, true, nil
}

// Close terminates the decode subprocess and releases its resources.
func (r *VideoReader) Close() error {
	r.cancel()
	if r.cmd.Process != nil {
		_ = r.cmd.Process.Kill()
	}
	return r.cmd.Wait()
}

func findJPEGStart(r *bufio.Reader) error {
	for {
		b, err := r.ReadByte()
		if err != nil {
			return err
		}
		if b != 0xFF {
			continue
		}
		b, err = r.ReadByte()
		if err != nil {
			return err
		}
		if b == 0xD8 {
			return nil
		}
	}
}

func readUntilJPEGEnd(r *bufio.Reader) ([]byte, error) {
	data := []byte{0xFF, 0xD8}

	for {
		b, err := r.ReadByte()
		if err != nil {
			return nil, err
		}
		data = append(data, b)

		if b == 0xFF {
			next, err := r.ReadByte()
			if err != nil {
				return nil, err
			}
			data = append(data, next)
			if next == 0xD9 {
				return data, nil
			}
		}

		if len(data) > 32*1024*1024 {
			return nil, fmt.Errorf("jpeg frame exceeds 32MB")
		}
	}
}

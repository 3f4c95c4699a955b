// Package media wraps ffmpeg/ffprobe subprocesses behind a small opaque
// video/image I/O surface, adapted from the teacher's stdout-pipe JPEG
// frame scanner in internal/ingest/ffmpeg.go (there used for a live RTSP
// source, here used for file-in/file-out decode and encode).
package media

import (
	"context"
	"encoding/json"
	"os/exec"
	"strconv"
	"strings"

	"github.com/fusion-core/engine/internal/fusionerr"
)

// VideoInfo summarises the stream properties needed to drive the
// pipeline runner's producer loop and the intermediate encoder.
type VideoInfo struct {
	Width      int
	Height     int
	FPSNum     int
	FPSDen     int
	FrameCount int64 // 0 if the container doesn't report a frame count
}

// FPS returns the stream's frame rate as a float, defaulting to 25 if the
// container reports a degenerate rate.
func (v VideoInfo) FPS() float64 {
	if v.FPSDen == 0 || v.FPSNum == 0 {
		return 25
	}
	return float64(v.FPSNum) / float64(v.FPSDen)
}

type probeStream struct {
	Width        int    `json:"width"`
	Height       int    `json:"height"`
	RFrameRate   string `json:"r_frame_rate"`
	NbFrames     string `json:"nb_frames"`
	CodecType    string `json:"codec_type"`
}

type probeOutput struct {
	Streams []probeStream `json:"streams"`
}

// Probe runs ffprobe against path and returns its first video stream's
// dimensions and frame rate.
func Probe(ctx context.Context, path string) (VideoInfo, error) {
	cmd := exec.CommandContext(ctx, "ffprobe",
		"-v", "error",
		"-select_streams", "v:0",
		"-show_entries", "stream=width,height,r_frame_rate,nb_frames,codec_type",
		"-of", "json",
		path,
	)
	out, err := cmd.Output()
	if err != nil {
		return VideoInfo{}, fusionerr.Wrap(fusionerr.CodeVideoOpenFailed, "ffprobe failed", err).WithPath(path)
	}

	var parsed probeOutput
	if err := json.Unmarshal(out, &parsed); err != nil {
		return VideoInfo{}, fusionerr.Wrap(fusionerr.CodeVideoOpenFailed, "ffprobe output unparsable", err).WithPath(path)
	}
	if len(parsed.Streams) == 0 {
		return VideoInfo{}, fusionerr.New(fusionerr.CodeVideoOpenFailed, "no video stream found").WithPath(path)
	}

	s := parsed.Streams[0]
	num, den := parseRational(s.RFrameRate)
	frames, _ := strconv.ParseInt(s.NbFrames, 10, 64)

	return VideoInfo{
		Width:      s.Width,
		Height:     s.Height,
		FPSNum:     num,
		FPSDen:     den,
		FrameCount: frames,
	}, nil
}

func parseRational(s string) (num, den int) {
	parts := strings.SplitN(s, "/", 2)
	if len(parts) != 2 {
		n, err := strconv.Atoi(s)
		if err != nil {
			return 0, 0
		}
		return n, 1
	}
	n, errN := strconv.Atoi(parts[0])
	d, errD := strconv.Atoi(parts[1])
	if errN != nil || errD != nil || d == 0 {
		return 0, 0
	}
	return n, d
}

package media

import (
	"context"
	"os/exec"

	"github.com/fusion-core/engine/internal/fusionerr"
)

// Remux copies videoPath's video stream into outPath without re-encoding
// and adds audioSourcePath's audio stream encoded as AAC, used for the
// AudioCopy output policy once the silent intermediate has been fully
// written.
func Remux(ctx context.Context, videoPath, audioSourcePath, outPath string) error {
	cmd := exec.CommandContext(ctx, "ffmpeg",
		"-hide_banner", "-loglevel", "warning",
		"-y",
		"-i", videoPath,
		"-i", audioSourcePath,
		"-map", "0:v:0",
		"-map", "1:a:0?",
		"-c:v", "copy",
		"-c:a", "aac",
		"-shortest",
		outPath,
	)
	if out, err := cmd.CombinedOutput(); err != nil {
		return fusionerr.Wrap(fusionerr.CodeOutputWriteFailed, "remux audio: "+string(out), err).WithPath(outPath)
	}
	return nil
}

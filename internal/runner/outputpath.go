package runner

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/fusion-core/engine/internal/models"
)

// ResolveOutputPath builds the destination path for one target, applying
// the output prefix/suffix/extension and the conflict policy. For Skip,
// ok is false when the destination already exists.
func ResolveOutputPath(out models.IOOutput, targetPath string, isVideo bool) (path string, ok bool, err error) {
	base := strings.TrimSuffix(filepath.Base(targetPath), filepath.Ext(targetPath))
	name := out.Prefix + base + out.Suffix

	ext := filepath.Ext(targetPath)
	if !isVideo {
		format := out.ImageFormat
		if format == "" {
			format = "png"
		}
		ext = "." + format
	}
	name += ext

	dest := out.Path
	if info, statErr := os.Stat(out.Path); statErr == nil && info.IsDir() {
		dest = filepath.Join(out.Path, name)
	} else if out.Path == "" {
		dest = name
	}

	if _, statErr := os.Stat(dest); statErr == nil {
		switch out.ConflictPolicy {
		case models.ConflictSkip:
			return dest, false, nil
		case models.ConflictRename:
			dest = renameForConflict(dest)
		case models.ConflictOverwrite, "":
			// fall through, overwrite in place
		}
	}

	if err := os.MkdirAll(filepath.Dir(dest), 0o755); err != nil {
		return "", false, err
	}
	return dest, true, nil
}

func renameForConflict(path string) string {
	ext := filepath.Ext(path)
	base := strings.TrimSuffix(path, ext)
	for i := 1; ; i++ {
		candidate := fmt.Sprintf("%s_%d%s", base, i, ext)
		if _, err := os.Stat(candidate); err != nil {
			return candidate
		}
	}
}

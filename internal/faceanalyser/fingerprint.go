package faceanalyser

import (
	"crypto/sha1"
	"fmt"
	"image"
)

// Fingerprint cheaply identifies a frame's pixel content for cache
// keying (spec §4.3 step 1): hash of a downsampled grid of pixels rather
// than the full image, since a cache key only needs to distinguish
// frames, not reproduce them.
type Fingerprint string

// ComputeFingerprint downsamples img to an 8x8 grid and hashes the
// samples. Two frames with identical fingerprints are treated as
// identical for caching purposes within a single task run.
func ComputeFingerprint(img image.Image) Fingerprint {
	const grid = 8
	bounds := img.Bounds()
	w, h := bounds.Dx(), bounds.Dy()
	if w == 0 || h == 0 {
		return ""
	}

	h1 := sha1.New()
	buf := make([]byte, 0, grid*grid*3)
	for gy := 0; gy < grid; gy++ {
		sy := bounds.Min.Y + gy*h/grid
		for gx := 0; gx < grid; gx++ {
			sx := bounds.Min.X + gx*w/grid
			r, g, b, _ := img.At(sx, sy).RGBA()
			buf = append(buf, byte(r>>8), byte(g>>8), byte(b>>8))
		}
	}
	h1.Write(buf)
	h1.Write([]byte(fmt.Sprintf("%dx%d", w, h)))
	return Fingerprint(fmt.Sprintf("%x", h1.Sum(nil)))
}

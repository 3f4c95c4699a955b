package media

import (
	"image"
	"image/jpeg"
	"image/png"
	"os"
	"strings"

	"golang.org/x/image/bmp"

	"github.com/fusion-core/engine/internal/fusionerr"
)

// ReadImage decodes a single image file, relying on Go's registered
// decoders (jpeg, png, gif) plus the x/image bmp decoder.
func ReadImage(path string) (image.Image, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fusionerr.Wrap(fusionerr.CodeInvalidPath, "open image", err).WithPath(path)
	}
	defer f.Close()

	img, _, err := image.Decode(f)
	if err != nil {
		return nil, fusionerr.Wrap(fusionerr.CodeVideoDecodeError, "decode image", err).WithPath(path)
	}
	return img, nil
}

// WriteImage encodes img to path in the given format ("png", "jpg",
// "jpeg", "bmp"), applying quality (0-100) to jpeg only. Unrecognised
// formats fall back to png.
func WriteImage(path string, img image.Image, format string, quality int) error {
	f, err := os.Create(path)
	if err != nil {
		return fusionerr.Wrap(fusionerr.CodeOutputWriteFailed, "create output image", err).WithPath(path)
	}
	defer f.Close()

	switch strings.ToLower(format) {
	case "jpg", "jpeg":
		q := quality
		if q <= 0 {
			q = 90
		}
		err = jpeg.Encode(f, img, &jpeg.Options{Quality: q})
	case "bmp":
		err = bmp.Encode(f, img)
	default:
		err = png.Encode(f, img)
	}
	if err != nil {
		return fusionerr.Wrap(fusionerr.CodeOutputWriteFailed, "encode output image", err).WithPath(path)
	}
	return nil
}

func init() {
	// registers image.Decode support for bmp inputs alongside the
	// stdlib-registered jpeg/png/gif decoders.
	image.RegisterFormat("bmp", "BM", bmp.Decode, bmp.DecodeConfig)
}

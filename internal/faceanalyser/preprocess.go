package faceanalyser

import (
	"image"
	"image/color"
)

// imageToFloat32CHW resizes img to targetW x targetH and converts to CHW
// float32 in a single pass, normalising as pixel = (pixel-mean)/std.
// Adapted from the teacher's internal/vision/pipeline.go preprocessing
// helper, generalised to take arbitrary mean/std per model family.
func imageToFloat32CHW(img image.Image, targetW, targetH int, mean, std [3]float32) []float32 {
	data := make([]float32, 3*targetH*targetW)
	planeSize := targetH * targetW

	bounds := img.Bounds()
	srcW, srcH := bounds.Dx(), bounds.Dy()
	minX, minY := bounds.Min.X, bounds.Min.Y

	switch src := img.(type) {
	case *image.RGBA:
		for y := 0; y < targetH; y++ {
			srcY := minY + y*srcH/targetH
			for x := 0; x < targetW; x++ {
				srcX := minX + x*srcW/targetW
				off := src.PixOffset(srcX, srcY)
				pix := src.Pix[off : off+3 : off+3]
				idx := y*targetW + x
				data[idx] = (float32(pix[0]) - mean[0]) / std[0]
				data[planeSize+idx] = (float32(pix[1]) - mean[1]) / std[1]
				data[2*planeSize+idx] = (float32(pix[2]) - mean[2]) / std[2]
			}
		}
	case *image.YCbCr:
		for y := 0; y < targetH; y++ {
			srcY := minY + y*srcH/targetH
			for x := 0; x < targetW; x++ {
				srcX := minX + x*srcW/targetW
				yi := src.YOffset(srcX, srcY)
				ci := src.COffset(srcX, srcY)
				r8, g8, b8 := color.YCbCrToRGB(src.Y[yi], src.Cb[ci], src.Cr[ci])
				idx := y*targetW + x
				data[idx] = (float32(r8) - mean[0]) / std[0]
				data[planeSize+idx] = (float32(g8) - mean[1]) / std[1]
				data[2*planeSize+idx] = (float32(b8) - mean[2]) / std[2]
			}
		}
	default:
		for y := 0; y < targetH; y++ {
			srcY := minY + y*srcH/targetH
			for x := 0; x < targetW; x++ {
				srcX := minX + x*srcW/targetW
				r, g, b, _ := img.At(srcX, srcY).RGBA()
				idx := y*targetW + x
				data[idx] = (float32(r>>8) - mean[0]) / std[0]
				data[planeSize+idx] = (float32(g>>8) - mean[1]) / std[1]
				data[2*planeSize+idx] = (float32(b>>8) - mean[2]) / std[2]
			}
		}
	}
	return data
}

// rotateImage90CW rotates img 90 degrees clockwise into a new RGBA image.
func rotateImage90CW(img image.Image) *image.RGBA {
	b := img.Bounds()
	w, h := b.Dx(), b.Dy()
	dst := image.NewRGBA(image.Rect(0, 0, h, w))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			dst.Set(h-1-y, x, img.At(b.Min.X+x, b.Min.Y+y))
		}
	}
	return dst
}

// rotateImage rotates img clockwise by the given angle, one of
// {0, 90, 180, 270}.
func rotateImage(img image.Image, angle int) image.Image {
	switch angle % 360 {
	case 90:
		return rotateImage90CW(img)
	case 180:
		return rotateImage90CW(rotateImage90CW(img))
	case 270:
		return rotateImage90CW(rotateImage90CW(rotateImage90CW(img)))
	default:
		return img
	}
}

// rotatePointBack maps a point detected in a rotated frame of size
// (rotW, rotH) back into the coordinate system of the original
// (origW, origH) frame that was rotated clockwise by angle to produce it.
func rotatePointBack(x, y float32, angle, origW, origH int) (float32, float32) {
	switch angle % 360 {
	case 90:
		// rotated frame is origH x origW; undo by rotating 90 CCW
		return y, float32(origH) - 1 - x
	case 180:
		return float32(origW) - 1 - x, float32(origH) - 1 - y
	case 270:
		return float32(origW) - 1 - y, x
	default:
		return x, y
	}
}

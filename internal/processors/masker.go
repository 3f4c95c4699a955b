package processors

import (
	"image"

	ort "github.com/yalue/onnxruntime_go"

	"github.com/fusion-core/engine/internal/inference"
)

const (
	occluderSize  = 256
	parserSize    = 512
	parserClasses = 19
)

var occluderMean = [3]float32{0, 0, 0}
var occluderStd = [3]float32{255, 255, 255}
var parserMean = [3]float32{127.5, 127.5, 127.5}
var parserStd = [3]float32{127.5, 127.5, 127.5}

// Masker runs the optional occluder and face-parser sub-models behind
// buildCropMask's occlusionRaw/regionIDs inputs, per spec §4.4. Either
// session is nil when the task's steps never request that mask type, so a
// Masker with both nil is a valid, inert zero value.
type Masker struct {
	occluder sessionRunner
	parser   sessionRunner
}

// NewMasker acquires whichever of the occluder/parser sessions the caller
// names; an empty path skips that session entirely.
func NewMasker(reg *inference.Registry, occluderPath, parserPath, provider string, deviceID int) (*Masker, error) {
	var m Masker

	if occluderPath != "" {
		spec := inference.IOSpec{
			InputNames:   []string{"input"},
			InputShapes:  []ort.Shape{ort.NewShape(1, 3, occluderSize, occluderSize)},
			OutputNames:  []string{"output"},
			OutputShapes: []ort.Shape{ort.NewShape(1, 1, occluderSize, occluderSize)},
		}
		h, err := reg.Acquire(inference.SessionKey{ModelPath: occluderPath, ProviderList: provider, DeviceID: deviceID}, spec)
		if err != nil {
			return nil, err
		}
		m.occluder = h
	}

	if parserPath != "" {
		spec := inference.IOSpec{
			InputNames:   []string{"input"},
			InputShapes:  []ort.Shape{ort.NewShape(1, 3, parserSize, parserSize)},
			OutputNames:  []string{"output"},
			OutputShapes: []ort.Shape{ort.NewShape(1, parserClasses, parserSize, parserSize)},
		}
		h, err := reg.Acquire(inference.SessionKey{ModelPath: parserPath, ProviderList: provider, DeviceID: deviceID}, spec)
		if err != nil {
			return nil, err
		}
		m.parser = h
	}

	return &m, nil
}

// Occlusion runs the occluder model over crop and resizes its raw
// single-channel output back to size x size. Returns nil when no occluder
// session is wired or the run fails, which buildCropMask treats as "no
// occlusion mask" rather than an error.
func (m *Masker) Occlusion(crop *image.RGBA, size int) [][]float32 {
	if m == nil || m.occluder == nil {
		return nil
	}
	resized := resizeRGBA(crop, occluderSize)
	input := cropToCHW(resized, occluderSize, occluderMean, occluderStd)
	out, err := m.occluder.Run(input)
	if err != nil {
		return nil
	}
	raw := reshapeSingleChannel(out, occluderSize)
	return resizeGrid(raw, size)
}

// Region runs the face-parser model, argmaxes its per-pixel class logits
// into region ids, and resizes the id grid to size x size.
func (m *Masker) Region(crop *image.RGBA, size int) [][]float32 {
	if m == nil || m.parser == nil {
		return nil
	}
	resized := resizeRGBA(crop, parserSize)
	input := cropToCHW(resized, parserSize, parserMean, parserStd)
	out, err := m.parser.Run(input)
	if err != nil {
		return nil
	}
	ids := argmaxChannels(out, parserClasses, parserSize)
	return resizeGrid(ids, size)
}

// resizeRGBA nearest-neighbour resizes src to size x size.
func resizeRGBA(src *image.RGBA, size int) *image.RGBA {
	b := src.Bounds()
	sw, sh := b.Dx(), b.Dy()
	if sw == size && sh == size {
		return src
	}
	dst := image.NewRGBA(image.Rect(0, 0, size, size))
	for y := 0; y < size; y++ {
		sy := y * sh / size
		for x := 0; x < size; x++ {
			sx := x * sw / size
			so := src.PixOffset(b.Min.X+sx, b.Min.Y+sy)
			do := dst.PixOffset(x, y)
			copy(dst.Pix[do:do+4], src.Pix[so:so+4])
		}
	}
	return dst
}

// reshapeSingleChannel turns a flat HxW float32 buffer into a [][]float32
// grid.
func reshapeSingleChannel(flat []float32, size int) [][]float32 {
	grid := make([][]float32, size)
	for y := 0; y < size; y++ {
		row := make([]float32, size)
		copy(row, flat[y*size:(y+1)*size])
		grid[y] = row
	}
	return grid
}

// argmaxChannels reduces a CHW logits buffer (classes x size x size) to a
// [][]float32 grid holding the winning class index per pixel.
func argmaxChannels(flat []float32, classes, size int) [][]float32 {
	plane := size * size
	grid := make([][]float32, size)
	for y := 0; y < size; y++ {
		grid[y] = make([]float32, size)
	}
	for y := 0; y < size; y++ {
		for x := 0; x < size; x++ {
			idx := y*size + x
			best, bestVal := 0, flat[idx]
			for c := 1; c < classes; c++ {
				v := flat[c*plane+idx]
				if v > bestVal {
					best, bestVal = c, v
				}
			}
			grid[y][x] = float32(best)
		}
	}
	return grid
}

// resizeGrid nearest-neighbour resizes a square [][]float32 grid to size x
// size.
func resizeGrid(src [][]float32, size int) [][]float32 {
	srcSize := len(src)
	if srcSize == size {
		return src
	}
	dst := make([][]float32, size)
	for y := 0; y < size; y++ {
		sy := y * srcSize / size
		row := make([]float32, size)
		for x := 0; x < size; x++ {
			sx := x * srcSize / size
			row[x] = src[sy][sx]
		}
		dst[y] = row
	}
	return dst
}

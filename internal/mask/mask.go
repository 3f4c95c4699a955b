// Package mask implements the box/occlusion/region mask generation and
// element-wise-minimum composition described in spec §4.4.
package mask

import "math"

// Mask is a 2-D float buffer with values in [0,1], row-major [y][x].
type Mask [][]float32

// NewOnes returns a size x size mask filled with 1.
func NewOnes(size int) Mask {
	m := make(Mask, size)
	for y := range m {
		row := make([]float32, size)
		for x := range row {
			row[x] = 1
		}
		m[y] = row
	}
	return m
}

// BoxMask builds the box mask: an all-ones mask with `padding` pixels
// zeroed from each side (top, right, bottom, left, each a pixel count,
// not scaled by the crop size), then blurred with a kernel derived from blur.
func BoxMask(size int, paddingTRBL [4]int, blur float64) Mask {
	m := NewOnes(size)

	top, right, bottom, left := paddingTRBL[0], paddingTRBL[1], paddingTRBL[2], paddingTRBL[3]
	for y := 0; y < size; y++ {
		for x := 0; x < size; x++ {
			if y < top || y >= size-bottom || x < left || x >= size-right {
				m[y][x] = 0
			}
		}
	}

	if blur > 0 {
		kernel := blurKernelSize(blur, size)
		m = GaussianBlur(m, kernel)
	}
	return m
}

// OcclusionMask turns raw occluder-model output (already resized to size
// x size, arbitrary range) into a composed-ready mask: clamp to [0,1],
// Gaussian blur sigma=5, then the remap-then-stretch transform.
func OcclusionMask(raw [][]float32, size int) Mask {
	m := cloneClamp(raw, size)
	m = GaussianBlurSigma(m, 5)
	return remapStretch(m)
}

// RegionMask unions the requested region indices from per-pixel logits
// (already resized to size x size and argmax-reduced to region ids),
// blurs, and applies the same remap-then-stretch transform as the
// occlusion mask.
func RegionMask(regionIDs [][]int, size int, selected map[int]bool) Mask {
	m := make(Mask, size)
	for y := 0; y < size; y++ {
		row := make([]float32, size)
		for x := 0; x < size; x++ {
			if selected[regionIDs[y][x]] {
				row[x] = 1
			}
		}
		m[y] = row
	}
	m = GaussianBlurSigma(m, 5)
	return remapStretch(m)
}

// remapStretch implements spec §4.4 / §9's "remap-then-stretch": sharpen
// a soft learned matte into a near-binary alpha while preserving a short
// feather band. Preserve this transform exactly: (max(m,0.5)-0.5)*2.
func remapStretch(m Mask) Mask {
	out := make(Mask, len(m))
	for y, row := range m {
		orow := make([]float32, len(row))
		for x, v := range row {
			if v < 0.5 {
				v = 0.5
			}
			orow[x] = (v - 0.5) * 2
		}
		out[y] = orow
	}
	return out
}

// Compose reduces active masks by element-wise minimum, clamped to
// [0,1]. An empty input returns nil; callers should treat that as "no
// mask", i.e. the identity paste.
func Compose(masks ...Mask) Mask {
	var active []Mask
	for _, m := range masks {
		if m != nil {
			active = append(active, m)
		}
	}
	if len(active) == 0 {
		return nil
	}

	size := len(active[0])
	out := make(Mask, size)
	for y := 0; y < size; y++ {
		row := make([]float32, size)
		for x := 0; x < size; x++ {
			v := float32(1)
			for _, m := range active {
				if m[y][x] < v {
					v = m[y][x]
				}
			}
			row[x] = clamp01(v)
		}
		out[y] = row
	}
	return out
}

func cloneClamp(raw [][]float32, size int) Mask {
	out := make(Mask, size)
	for y := 0; y < size; y++ {
		row := make([]float32, size)
		for x := 0; x < size; x++ {
			row[x] = clamp01(raw[y][x])
		}
		out[y] = row
	}
	return out
}

func clamp01(v float32) float32 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

// blurKernelSize derives an odd kernel size from a 0..1 blur factor,
// proportional to the crop dimension the way the original face masker
// scales its blur radius with crop size.
func blurKernelSize(blur float64, size int) int {
	k := int(math.Round(blur * float64(size) * 0.25))
	if k < 1 {
		k = 1
	}
	if k%2 == 0 {
		k++
	}
	return k
}

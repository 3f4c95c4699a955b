package warp

import (
	"image"
	"image/color"
	"image/draw"

	"gonum.org/v1/gonum/mat"
)

// Matrix is a 2x3 affine transform: [a b tx; c d ty].
type Matrix struct {
	A, B, TX float64
	C, D, TY float64
}

// Apply maps a point through the affine transform.
func (m Matrix) Apply(x, y float64) (float64, float64) {
	return m.A*x + m.B*y + m.TX, m.C*x + m.D*y + m.TY
}

// Invert returns the inverse affine transform. Callers must ensure the
// transform is non-degenerate (det != 0), which holds for any similarity
// transform estimated from five non-collinear landmark points.
func (m Matrix) Invert() Matrix {
	det := m.A*m.D - m.B*m.C
	return Matrix{
		A:  m.D / det,
		B:  -m.B / det,
		C:  -m.C / det,
		D:  m.A / det,
		TX: (m.B*m.TY - m.D*m.TX) / det,
		TY: (m.C*m.TX - m.A*m.TY) / det,
	}
}

// EstimateAffine solves the least-squares affine transform mapping src
// points onto dst points (5 correspondences, 2D). Grounded on gonum's
// mat.Dense least-squares solve, used here the way the runsys-core pack
// repo uses gonum for its own linear-algebra needs.
func EstimateAffine(src, dst [5][2]float64) Matrix {
	// Build the 10x6 design matrix for [a b tx c d ty]^T solving
	// [x_dst] = [x_src y_src 1 0 0 0] . params
	// [y_dst] = [0 0 0 x_src y_src 1] . params
	rows := 2 * len(src)
	a := mat.NewDense(rows, 6, nil)
	b := mat.NewVecDense(rows, nil)

	for i := range src {
		x, y := src[i][0], src[i][1]
		dx, dy := dst[i][0], dst[i][1]

		a.SetRow(2*i, []float64{x, y, 1, 0, 0, 0})
		a.SetRow(2*i+1, []float64{0, 0, 0, x, y, 1})
		b.SetVec(2*i, dx)
		b.SetVec(2*i+1, dy)
	}

	var ata mat.Dense
	ata.Mul(a.T(), a)
	var atb mat.VecDense
	atb.MulVec(a.T(), b)

	var params mat.VecDense
	if err := params.SolveVec(&ata, &atb); err != nil {
		// Degenerate configuration (collinear points); fall back to the
		// identity transform rather than propagating a solver error into
		// every processor adapter's hot path.
		return Matrix{A: 1, D: 1}
	}

	return Matrix{
		A: params.AtVec(0), B: params.AtVec(1), TX: params.AtVec(2),
		C: params.AtVec(3), D: params.AtVec(4), TY: params.AtVec(5),
	}
}

// WarpCrop applies m to src, producing a size x size destination image
// using inverse-mapped nearest-neighbour sampling (each dst pixel is
// mapped back through m.Invert() into src space).
func WarpCrop(src image.Image, m Matrix, size int) *image.RGBA {
	inv := m.Invert()
	dst := image.NewRGBA(image.Rect(0, 0, size, size))
	bounds := src.Bounds()

	for y := 0; y < size; y++ {
		for x := 0; x < size; x++ {
			sx, sy := inv.Apply(float64(x), float64(y))
			ix, iy := int(sx), int(sy)
			if ix < bounds.Min.X || ix >= bounds.Max.X || iy < bounds.Min.Y || iy >= bounds.Max.Y {
				continue
			}
			dst.Set(x, y, src.At(ix, iy))
		}
	}
	return dst
}

// PasteBack inverse-warps a processed crop back into frame coordinates
// and alpha-blends it using mask as the per-pixel alpha, mutating dst in
// place. mask values are in [0,1], sized cropSize x cropSize.
func PasteBack(dst draw.Image, crop image.Image, m Matrix, cropSize int, mask [][]float32) {
	bounds := dst.Bounds()
	for y := bounds.Min.Y; y < bounds.Max.Y; y++ {
		for x := bounds.Min.X; x < bounds.Max.X; x++ {
			cx, cy := m.Apply(float64(x), float64(y))
			icx, icy := int(cx), int(cy)
			if icx < 0 || icx >= cropSize || icy < 0 || icy >= cropSize {
				continue
			}
			alpha := mask[icy][icx]
			if alpha <= 0 {
				continue
			}
			cr, cg, cb, _ := crop.At(icx, icy).RGBA()
			dr, dg, db, _ := dst.At(x, y).RGBA()
			out := color.RGBA{
				R: blend8(uint8(cr>>8), uint8(dr>>8), alpha),
				G: blend8(uint8(cg>>8), uint8(dg>>8), alpha),
				B: blend8(uint8(cb>>8), uint8(db>>8), alpha),
				A: 255,
			}
			dst.Set(x, y, out)
		}
	}
}

func blend8(fg, bg uint8, alpha float32) uint8 {
	v := float32(fg)*alpha + float32(bg)*(1-alpha)
	if v < 0 {
		return 0
	}
	if v > 255 {
		return 255
	}
	return uint8(v)
}

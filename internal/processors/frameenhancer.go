package processors

import (
	"image"
	"image/draw"

	ximagedraw "golang.org/x/image/draw"
	ort "github.com/yalue/onnxruntime_go"

	"github.com/fusion-core/engine/internal/inference"
	"github.com/fusion-core/engine/internal/models"
)

const (
	tileSize    = 256
	tileOverlap = 16
)

var frameEnhancerMean = [3]float32{0, 0, 0}
var frameEnhancerStd = [3]float32{255, 255, 255}

// FrameEnhancer implements the Real-ESRGAN/Real-HATGAN super-resolution
// processor of spec §4.2: tile the frame with overlap, run the model per
// tile, stitch with linear seam blending, then blend the stitched result
// with a CatmullRom-upsampled copy of the original.
type FrameEnhancer struct {
	handle sessionRunner
	scale  int
	params models.StepParams
}

// NewFrameEnhancer acquires a tile-shaped super-resolution session. The
// upscale factor is params.Scale (2 when unset) and must match the
// model's fixed output size.
func NewFrameEnhancer(reg *inference.Registry, modelPath, provider string, deviceID int, params models.StepParams) (*FrameEnhancer, error) {
	scale := params.Scale
	if scale == 0 {
		scale = 2
	}
	spec := inference.IOSpec{
		InputNames:   []string{"input"},
		InputShapes:  []ort.Shape{ort.NewShape(1, 3, tileSize, tileSize)},
		OutputNames:  []string{"output"},
		OutputShapes: []ort.Shape{ort.NewShape(1, 3, int64(tileSize*scale), int64(tileSize*scale))},
	}
	key := inference.SessionKey{ModelPath: modelPath, ProviderList: provider, DeviceID: deviceID}
	h, err := reg.Acquire(key, spec)
	if err != nil {
		return nil, err
	}
	return &FrameEnhancer{handle: h, scale: scale, params: params}, nil
}

// Process upscales the whole frame, independent of any detected faces;
// faces is accepted to satisfy the Processor interface but unused.
func (f *FrameEnhancer) Process(frame *models.FrameData, _ []models.Face) error {
	src := toRGBA(frame.Image)
	bounds := src.Bounds()
	w, h := bounds.Dx(), bounds.Dy()

	upscaled := image.NewRGBA(image.Rect(0, 0, w*f.scale, h*f.scale))

	step := tileSize - tileOverlap
	for ty := 0; ty < h; ty += step {
		for tx := 0; tx < w; tx += step {
			tileRect := image.Rect(tx, ty, minInt(tx+tileSize, w), minInt(ty+tileSize, h))
			tile := image.NewRGBA(image.Rect(0, 0, tileSize, tileSize))
			draw.Draw(tile, image.Rect(0, 0, tileRect.Dx(), tileRect.Dy()), src, tileRect.Min, draw.Src)

			input := cropToCHW(tile, tileSize, frameEnhancerMean, frameEnhancerStd)
			out, err := f.handle.Run(input)
			if err != nil {
				return err
			}
			outTile := chwToRGBA(out, tileSize*f.scale, frameEnhancerMean, frameEnhancerStd)

			destRect := image.Rect(tx*f.scale, ty*f.scale, (tx*f.scale)+tileRect.Dx()*f.scale, (ty*f.scale)+tileRect.Dy()*f.scale)
			blendTileInto(upscaled, outTile, destRect, tileOverlap*f.scale)
		}
	}

	blend := float32(f.params.BlendFactor)
	if blend == 0 {
		blend = 0.8
	}
	resizedOriginal := image.NewRGBA(upscaled.Bounds())
	ximagedraw.CatmullRom.Scale(resizedOriginal, resizedOriginal.Bounds(), src, bounds, ximagedraw.Over, nil)

	out := image.NewRGBA(upscaled.Bounds())
	for y := upscaled.Bounds().Min.Y; y < upscaled.Bounds().Max.Y; y++ {
		for x := upscaled.Bounds().Min.X; x < upscaled.Bounds().Max.X; x++ {
			ur, ug, ub, _ := upscaled.At(x, y).RGBA()
			or, og, ob, _ := resizedOriginal.At(x, y).RGBA()
			out.Set(x, y, blendRGBA(
				uint8(ur>>8), uint8(ug>>8), uint8(ub>>8),
				uint8(or>>8), uint8(og>>8), uint8(ob>>8),
				blend,
			))
		}
	}

	frame.Image = out
	return nil
}

// blendTileInto copies src into dst at destRect, linearly feathering the
// overlap band against whatever dst already holds so adjacent tiles don't
// show a seam.
func blendTileInto(dst *image.RGBA, src *image.RGBA, destRect image.Rectangle, overlap int) {
	for y := 0; y < destRect.Dy(); y++ {
		for x := 0; x < destRect.Dx(); x++ {
			dx, dy := destRect.Min.X+x, destRect.Min.Y+y
			if dx < dst.Bounds().Min.X || dx >= dst.Bounds().Max.X || dy < dst.Bounds().Min.Y || dy >= dst.Bounds().Max.Y {
				continue
			}
			alpha := float32(1)
			if overlap > 0 {
				if x < overlap && destRect.Min.X > 0 {
					alpha = float32(x) / float32(overlap)
				}
				if y < overlap && destRect.Min.Y > 0 {
					a := float32(y) / float32(overlap)
					if a < alpha {
						alpha = a
					}
				}
			}
			sr, sg, sb, _ := src.At(x, y).RGBA()
			dr, dg, db, _ := dst.At(dx, dy).RGBA()
			dst.Set(dx, dy, blendRGBA(uint8(sr>>8), uint8(sg>>8), uint8(sb>>8), uint8(dr>>8), uint8(dg>>8), uint8(db>>8), alpha))
		}
	}
}

func blendRGBA(fr, fg, fb, br, bg, bb uint8, alpha float32) imageRGBAColor {
	return imageRGBAColor{
		r: blend8(fr, br, alpha),
		g: blend8(fg, bg, alpha),
		b: blend8(fb, bb, alpha),
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

// imageRGBAColor satisfies color.Color for blendRGBA's return value.
type imageRGBAColor struct {
	r, g, b uint8
}

func (c imageRGBAColor) RGBA() (r, g, b, a uint32) {
	return uint32(c.r) * 0x101, uint32(c.g) * 0x101, uint32(c.b) * 0x101, 0xffff
}

func minInt(a, b int) int {
	if a < b {
		return a
	}
	return b
}

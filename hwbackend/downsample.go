package hwbackend

import (
	"image"
	"image/color"
	"math"

	"golang.org/x/image/draw"
)

// BoxDownsample implements the "Box" downsample mode: a single pass
// averaging scale x scale texels from src into a display-size image,
// the anti-alias mode used whenever the adaptive chain is unavailable
// or the output is 24bpp (adaptive downsampling is reserved for 15/16bpp
// output).
func BoxDownsample(src *image.RGBA, scale int) *image.RGBA {
	if scale <= 1 {
		out := image.NewRGBA(src.Bounds())
		draw.Draw(out, out.Bounds(), src, src.Bounds().Min, draw.Src)
		return out
	}
	sb := src.Bounds()
	dw, dh := sb.Dx()/scale, sb.Dy()/scale
	dst := image.NewRGBA(image.Rect(0, 0, dw, dh))
	n := scale * scale
	for y := 0; y < dh; y++ {
		for x := 0; x < dw; x++ {
			var r, g, b, a int
			for sy := 0; sy < scale; sy++ {
				for sx := 0; sx < scale; sx++ {
					c := src.RGBAAt(sb.Min.X+x*scale+sx, sb.Min.Y+y*scale+sy)
					r, g, b, a = r+int(c.R), g+int(c.G), b+int(c.B), a+int(c.A)
				}
			}
			dst.SetRGBA(x, y, color.RGBA{uint8(r / n), uint8(g / n), uint8(b / n), uint8(a / n)})
		}
	}
	return dst
}

// AdaptiveDownsample implements the "Adaptive" mode of spec §4.4 in a
// reduced form: it builds a mip chain of log2(scale)+1 levels by
// repeated 2x box averaging, derives one detail weight w for the whole
// frame from the luminance variance of the deepest level, and blends
// the box average (weight w) with the deepest level (weight 1-w). The
// weight is a single scalar, not a per-pixel image, and is not
// blurred, so every output pixel uses the same mix; for a power-of-two
// scale the deepest level is the same size as the box average.
func AdaptiveDownsample(src *image.RGBA, scale int) *image.RGBA {
	if scale <= 1 {
		return BoxDownsample(src, scale)
	}
	levels := int(math.Log2(float64(scale))) + 1
	mips := make([]*image.RGBA, 0, levels)
	cur := src
	mips = append(mips, cur)
	for i := 1; i < levels; i++ {
		cur = BoxDownsample(cur, 2)
		mips = append(mips, cur)
	}
	sharp := BoxDownsample(src, scale)
	coarse := mips[len(mips)-1]
	if coarse.Bounds().Dx() != sharp.Bounds().Dx() || coarse.Bounds().Dy() != sharp.Bounds().Dy() {
		resized := image.NewRGBA(sharp.Bounds())
		draw.BiLinear.Scale(resized, resized.Bounds(), coarse, coarse.Bounds(), draw.Over, nil)
		coarse = resized
	}
	weight := detailWeight(mips[len(mips)-1])

	out := image.NewRGBA(sharp.Bounds())
	b := out.Bounds()
	for y := b.Min.Y; y < b.Max.Y; y++ {
		for x := b.Min.X; x < b.Max.X; x++ {
			w := weight
			sc := sharp.RGBAAt(x, y)
			co := coarse.RGBAAt(x, y)
			out.SetRGBA(x, y, blendRGBA(sc, co, w))
		}
	}
	return out
}

// detailWeight returns a single scalar in [0,1] approximating how much
// high-frequency detail the deepest mip level carries, derived from
// its luminance variance.
func detailWeight(mip *image.RGBA) float64 {
	b := mip.Bounds()
	n := 0
	var sum, sumSq float64
	for y := b.Min.Y; y < b.Max.Y; y++ {
		for x := b.Min.X; x < b.Max.X; x++ {
			c := mip.RGBAAt(x, y)
			l := 0.299*float64(c.R) + 0.587*float64(c.G) + 0.114*float64(c.B)
			sum += l
			sumSq += l * l
			n++
		}
	}
	if n == 0 {
		return 0
	}
	mean := sum / float64(n)
	variance := sumSq/float64(n) - mean*mean
	w := variance / (variance + 256)
	if w < 0 {
		w = 0
	}
	if w > 1 {
		w = 1
	}
	return w
}

func blendRGBA(a, b color.RGBA, w float64) color.RGBA {
	lerp := func(x, y uint8) uint8 {
		return uint8(float64(x)*w + float64(y)*(1-w))
	}
	return color.RGBA{
		R: lerp(a.R, b.R),
		G: lerp(a.G, b.G),
		B: lerp(a.B, b.B),
		A: lerp(a.A, b.A),
	}
}

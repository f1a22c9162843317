package swbackend

import "github.com/zeozeozeo/psxgpu/gpu"

// RasterizeSprite fills an axis-aligned textured (or flat) rectangle
// with two nested loops over (y, x), per spec §4.3: the texture window
// applies to U and V, dithering never applies, and interlaced output
// skips rows on the inactive field.
func RasterizeSprite(v *VRAM, x0, y0 int32, w, h int32, texX0, texY0 uint8, color gpu.Color, rc gpu.RenderCommand, page gpu.TexturePage, clut gpu.Vec2, win gpu.TextureWindow, semi gpu.SemiTransparencyMode, ctx fixedCtx) {
	for row := int32(0); row < h; row++ {
		y := y0 + row
		if ctx.mask.InterlacedRendering && uint32(y)&1 != uint32(ctx.mask.ActiveLineLSB)&1 {
			continue
		}
		v8 := uint8(int32(texY0) + row)
		for col := int32(0); col < w; col++ {
			x := x0 + col
			if !ctx.area.Contains(x, y) {
				continue
			}
			u8 := uint8(int32(texX0) + col)

			var outR, outG, outB uint8
			var texMaskBit bool
			if rc.Textured {
				texel, opaque := fetchTexel(v, page, clut, win.ApplyU(u8), win.ApplyV(v8))
				if !opaque {
					continue
				}
				var tr, tg, tb uint8
				tr, tg, tb, texMaskBit = UnpackColor(texel)
				if rc.RawTexture {
					outR, outG, outB = tr, tg, tb
				} else {
					outR, outG, outB = modulate(tr, tg, tb, color.R, color.G, color.B)
				}
			} else {
				outR, outG, outB = color.R, color.G, color.B
			}

			r5, g5, b5 := outR>>3, outG>>3, outB>>3
			val := uint16(r5) | uint16(g5)<<5 | uint16(b5)<<10
			if rc.Transparent && (!rc.Textured || texMaskBit) {
				bg := v.At(wrapX(x), wrapY(y))
				val = blend(semi, bg, val)
			}
			if rc.Textured && texMaskBit {
				val |= 0x8000
			} else if !rc.Textured && rc.Transparent {
				val |= 0x8000
			}
			v.writeMasked(x, y, val, ctx.mask)
		}
	}
}

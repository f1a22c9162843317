package swbackend

import "github.com/zeozeozeo/psxgpu/gpu"

const fixedBits = 12
const fixedOne = 1 << fixedBits

// fixedCtx bundles the per-draw state the scanline walker needs:
// drawing area clip and mask/interlace behaviour.
type fixedCtx struct {
	area gpu.Rect
	mask gpu.MaskSettings
}

// triangleVertex is one screen-space vertex fed to RasterizeTriangle,
// carrying color and (when textured) U,V.
type triangleVertex struct {
	x, y    int32
	r, g, b uint8
	u, v    uint8
}

// fixedAttrs is a vertex's color/UV attributes widened to 12-bit
// fixed point, so per-scanline interpolation never rounds until the
// final pixel write.
type fixedAttrs struct {
	r, g, b int64
	u, v    int64
}

func toFixed(v int32) int64   { return int64(v) << fixedBits }
func fromFixed(v int64) int32 { return int32(v >> fixedBits) }

func attrsOf(p triangleVertex) fixedAttrs {
	return fixedAttrs{
		r: toFixed(int32(p.r)), g: toFixed(int32(p.g)), b: toFixed(int32(p.b)),
		u: toFixed(int32(p.u)), v: toFixed(int32(p.v)),
	}
}

// edgeWalk steps x and every attribute by a fixed per-scanline delta,
// the "fixed-point edge slope" of spec §4.3.
type edgeWalk struct {
	x          int64
	dx         int64
	attrs      fixedAttrs
	dr, dg, db int64
	du, dv     int64
}

func newEdgeWalk(from, to triangleVertex) edgeWalk {
	dy := int64(to.y - from.y)
	if dy == 0 {
		dy = 1
	}
	fa, ta := attrsOf(from), attrsOf(to)
	return edgeWalk{
		x:     toFixed(from.x),
		dx:    (toFixed(to.x) - toFixed(from.x)) / dy,
		attrs: fa,
		dr:    (ta.r - fa.r) / dy,
		dg:    (ta.g - fa.g) / dy,
		db:    (ta.b - fa.b) / dy,
		du:    (ta.u - fa.u) / dy,
		dv:    (ta.v - fa.v) / dy,
	}
}

func (e *edgeWalk) step() {
	e.x += e.dx
	e.attrs.r += e.dr
	e.attrs.g += e.dg
	e.attrs.b += e.db
	e.attrs.u += e.du
	e.attrs.v += e.dv
}

// RasterizeTriangle walks the triangle using fixed-point edge slopes
// per spec §4.3: vertices are sorted top-to-bottom then left-to-right
// at equal y; the triangle is split into a top half (vertex a to b)
// and bottom half (b to c), both referencing the long edge a-c, which
// is the core-vertex construction described there. Triangles whose
// three vertices share one row and triangles whose bounding box reaches
// 1024x512 (the oversized-draw edge case of spec §4.1) draw nothing;
// other collinear triangles are not rejected.
func RasterizeTriangle(v *VRAM, verts [3]triangleVertex, rc gpu.RenderCommand, page gpu.TexturePage, clut gpu.Vec2, win gpu.TextureWindow, semi gpu.SemiTransparencyMode, dither bool, ctx fixedCtx) {
	pts := verts
	for i := 0; i < 3; i++ {
		for j := i + 1; j < 3; j++ {
			if pts[j].y < pts[i].y || (pts[j].y == pts[i].y && pts[j].x < pts[i].x) {
				pts[i], pts[j] = pts[j], pts[i]
			}
		}
	}
	a, b, c := pts[0], pts[1], pts[2]

	minX, maxX := a.x, a.x
	for _, p := range []triangleVertex{a, b, c} {
		if p.x < minX {
			minX = p.x
		}
		if p.x > maxX {
			maxX = p.x
		}
	}
	if maxX-minX >= 1024 || c.y-a.y >= 512 {
		return
	}
	if a.y == c.y {
		return // fully flat, zero area
	}

	long := newEdgeWalk(a, c)
	if b.y > a.y {
		top := newEdgeWalk(a, b)
		rasterizeSpan(v, a.y, b.y, false, &long, &top, rc, page, clut, win, semi, dither, ctx)
		long.x += long.dx * int64(b.y-a.y)
		long.attrs.r += long.dr * int64(b.y-a.y)
		long.attrs.g += long.dg * int64(b.y-a.y)
		long.attrs.b += long.db * int64(b.y-a.y)
		long.attrs.u += long.du * int64(b.y-a.y)
		long.attrs.v += long.dv * int64(b.y-a.y)
	}
	if c.y > b.y {
		bottom := newEdgeWalk(b, c)
		rasterizeSpan(v, b.y, c.y, true, &long, &bottom, rc, page, clut, win, semi, dither, ctx)
	}
}

// rasterizeSpan walks scanlines [y0,y1); when inclusiveEnd is set (the
// triangle's final half) y1 is drawn too, so the bottom-most vertex row
// is filled instead of left to the next primitive's top half.
func rasterizeSpan(v *VRAM, y0, y1 int32, inclusiveEnd bool, long, short *edgeWalk, rc gpu.RenderCommand, page gpu.TexturePage, clut gpu.Vec2, win gpu.TextureWindow, semi gpu.SemiTransparencyMode, dither bool, ctx fixedCtx) {
	if inclusiveEnd {
		y1++
	}
	for y := y0; y < y1; y++ {
		if ctx.mask.InterlacedRendering && uint32(y)&1 != uint32(ctx.mask.ActiveLineLSB)&1 {
			long.step()
			short.step()
			continue
		}
		xl, xr := long.x, short.x
		left, right := long, short
		if xl > xr {
			left, right = short, long
		}
		x0 := fromFixed(left.x)
		x1 := fromFixed(right.x)
		span := int64(x1 - x0)
		if span < 0 {
			long.step()
			short.step()
			continue
		}
		divisor := span
		if divisor == 0 {
			divisor = 1
		}
		// inclusive on both ends: the hypotenuse of a right triangle
		// at an exact integer lattice point is part of the triangle
		// (spec §8 scenario 1 fills "p.x + p.y <= 63" exactly).
		for x := x0; x <= x1; x++ {
			if !ctx.area.Contains(x, y) {
				continue
			}
			t := int64(x-x0) * fixedOne / divisor
			r8 := uint8(fromFixed(left.attrs.r + (right.attrs.r-left.attrs.r)*t/fixedOne))
			g8 := uint8(fromFixed(left.attrs.g + (right.attrs.g-left.attrs.g)*t/fixedOne))
			b8 := uint8(fromFixed(left.attrs.b + (right.attrs.b-left.attrs.b)*t/fixedOne))
			u8 := uint8(fromFixed(left.attrs.u + (right.attrs.u-left.attrs.u)*t/fixedOne))
			v8 := uint8(fromFixed(left.attrs.v + (right.attrs.v-left.attrs.v)*t/fixedOne))
			drawShadedPixel(v, x, y, r8, g8, b8, u8, v8, rc, page, clut, win, semi, dither, ctx.mask)
		}
		long.step()
		short.step()
	}
}

// drawShadedPixel resolves texturing, modulation, dithering, and
// semi-transparency for one pixel, then performs the masked write of
// spec §3 invariant 1.
func drawShadedPixel(v *VRAM, x, y int32, r8, g8, b8, u8, v8 uint8, rc gpu.RenderCommand, page gpu.TexturePage, clut gpu.Vec2, win gpu.TextureWindow, semi gpu.SemiTransparencyMode, dither bool, mask gpu.MaskSettings) {
	var outR, outG, outB uint8
	var texMaskBit bool
	isTextured := rc.Textured

	if isTextured {
		texel, opaque := fetchTexel(v, page, clut, win.ApplyU(u8), win.ApplyV(v8))
		if !opaque {
			return
		}
		var tr, tg, tb uint8
		tr, tg, tb, texMaskBit = UnpackColor(texel)
		if rc.RawTexture {
			outR, outG, outB = tr, tg, tb
		} else {
			outR, outG, outB = modulate(tr, tg, tb, r8, g8, b8)
		}
	} else {
		outR, outG, outB = r8, g8, b8
	}

	var r5, g5, b5 uint8
	if dither && rc.Shaded && !(isTextured && rc.RawTexture) {
		r5, g5, b5 = applyDither(x, y, outR, outG, outB)
	} else {
		r5, g5, b5 = outR>>3, outG>>3, outB>>3
	}

	val := uint16(r5) | uint16(g5)<<5 | uint16(b5)<<10
	if rc.Transparent && (!isTextured || texMaskBit) {
		bg := v.At(wrapX(x), wrapY(y))
		val = blend(semi, bg, val)
	}
	if isTextured && texMaskBit {
		val |= 0x8000
	} else if !isTextured && rc.Transparent {
		val |= 0x8000
	}
	v.writeMasked(x, y, val, mask)
}

package swbackend

import "github.com/zeozeozeo/psxgpu/gpu"

// RasterizeLine expands a 2-vertex line segment with a Bresenham-like
// fixed-point walk per spec §4.3: the major axis picks the one-pixel
// step direction, shading interpolates in 12-bit fixed point, and
// semi-transparency respects the mask bit exactly as triangles do.
func RasterizeLine(v *VRAM, from, to triangleVertex, rc gpu.RenderCommand, semi gpu.SemiTransparencyMode, dither bool, ctx fixedCtx) {
	dx := int64(to.x - from.x)
	dy := int64(to.y - from.y)
	steps := dx
	if steps < 0 {
		steps = -steps
	}
	if ady := dy; ady < 0 && -ady > steps {
		steps = -ady
	} else if ady > steps {
		steps = ady
	}
	if steps == 0 {
		drawLinePixel(v, from.x, from.y, from.r, from.g, from.b, rc, semi, dither, ctx)
		return
	}

	fa, ta := attrsOf(from), attrsOf(to)
	xFixed, yFixed := toFixed(from.x), toFixed(from.y)
	xStep := (toFixed(to.x) - toFixed(from.x)) / steps
	yStep := (toFixed(to.y) - toFixed(from.y)) / steps
	rStep := (ta.r - fa.r) / steps
	gStep := (ta.g - fa.g) / steps
	bStep := (ta.b - fa.b) / steps
	r, g, b := fa.r, fa.g, fa.b

	for i := int64(0); i <= steps; i++ {
		drawLinePixel(v, fromFixed(xFixed), fromFixed(yFixed), uint8(fromFixed(r)), uint8(fromFixed(g)), uint8(fromFixed(b)), rc, semi, dither, ctx)
		xFixed += xStep
		yFixed += yStep
		r += rStep
		g += gStep
		b += bStep
	}
}

func drawLinePixel(v *VRAM, x, y int32, r8, g8, b8 uint8, rc gpu.RenderCommand, semi gpu.SemiTransparencyMode, dither bool, ctx fixedCtx) {
	if !ctx.area.Contains(x, y) {
		return
	}
	if ctx.mask.InterlacedRendering && uint32(y)&1 != uint32(ctx.mask.ActiveLineLSB)&1 {
		return
	}
	var r5, g5, b5 uint8
	if dither && rc.Shaded {
		r5, g5, b5 = applyDither(x, y, r8, g8, b8)
	} else {
		r5, g5, b5 = r8>>3, g8>>3, b8>>3
	}
	val := uint16(r5) | uint16(g5)<<5 | uint16(b5)<<10
	if rc.Transparent {
		bg := v.At(wrapX(x), wrapY(y))
		val = blend(semi, bg, val)
		val |= 0x8000
	}
	v.writeMasked(x, y, val, ctx.mask)
}

// RasterizePolyline expands every segment of a polyline (spec §4.3:
// "polyline terminates on the sentinel word; a polyline must produce
// at least two vertices") by walking consecutive vertex pairs.
func RasterizePolyline(v *VRAM, verts []triangleVertex, rc gpu.RenderCommand, semi gpu.SemiTransparencyMode, dither bool, ctx fixedCtx) {
	for i := 0; i+1 < len(verts); i++ {
		RasterizeLine(v, verts[i], verts[i+1], rc, semi, dither, ctx)
	}
}

package swbackend

import "github.com/zeozeozeo/psxgpu/gpu"

// fetchTexel implements the three texture depths of spec §4.3: 4bpp
// and 8bpp index through a CLUT, 16bpp reads VRAM directly. u,v are
// already texture-window-masked by the caller. Returns (texel, opaque)
// where opaque is false for the fully-transparent 0x0000 texel.
func fetchTexel(v *VRAM, page gpu.TexturePage, clut gpu.Vec2, u, v8 uint8) (texel uint16, opaque bool) {
	pageX := int32(page.BaseX)
	pageY := int32(page.BaseY)

	switch page.Depth {
	case gpu.TextureDepth4BPP:
		texX := pageX + int32(u)/4
		texY := pageY + int32(v8)
		raw := v.At(wrapX(texX), wrapY(texY))
		nibble := (raw >> ((uint(u) % 4) * 4)) & 0xf
		texel = v.At(wrapX(clut.X+int32(nibble)), wrapY(clut.Y))
	case gpu.TextureDepth8BPP:
		texX := pageX + int32(u)/2
		texY := pageY + int32(v8)
		raw := v.At(wrapX(texX), wrapY(texY))
		index := (raw >> ((uint(u) % 2) * 8)) & 0xff
		texel = v.At(wrapX(clut.X+int32(index)), wrapY(clut.Y))
	default: // 15bpp direct
		texX := pageX + int32(u)
		texY := pageY + int32(v8)
		texel = v.At(wrapX(texX), wrapY(texY))
	}
	return texel, texel != 0
}

// modulate blends a texel's color with the shading color per spec
// §4.3: "clamp((tex * shade) >> 4, 0, 255)".
func modulate(texR, texG, texB, shadeR, shadeG, shadeB uint8) (r, g, b uint8) {
	mod := func(t, s uint8) uint8 {
		v := (uint32(t) * uint32(s)) >> 7
		if v > 255 {
			v = 255
		}
		return uint8(v)
	}
	return mod(texR, shadeR), mod(texG, shadeG), mod(texB, shadeB)
}

package hwbackend

import "github.com/zeozeozeo/psxgpu/gpu"

// textureCache tracks the two "dirty since last resolve" rectangles of
// spec §4.4: one for region drawn into vram_rt, one for region written
// via CPU->VRAM, VRAM->VRAM, or fill. A draw whose texture page (or
// CLUT rectangle, for paletted modes) intersects either triggers a
// resolve before the batch proceeds (Backend.maybeResolve, which
// flushes the open batch because vram_rt and vram_read are one target
// here), and clears the involved rectangle.
type textureCache struct {
	drawnSince  gpu.Rect
	writtenSince gpu.Rect
	hasDrawn    bool
	hasWritten  bool
}

func newTextureCache() *textureCache { return &textureCache{} }

func union(a gpu.Rect, hasA bool, b gpu.Rect) gpu.Rect {
	if !hasA {
		return b
	}
	r := a
	if b.Left < r.Left {
		r.Left = b.Left
	}
	if b.Top < r.Top {
		r.Top = b.Top
	}
	if b.Right > r.Right {
		r.Right = b.Right
	}
	if b.Bottom > r.Bottom {
		r.Bottom = b.Bottom
	}
	return r
}

func intersects(a, b gpu.Rect) bool {
	return a.Left <= b.Right && a.Right >= b.Left && a.Top <= b.Bottom && a.Bottom >= b.Top
}

// MarkDrawn records that a draw touched rect in vram_rt.
func (c *textureCache) MarkDrawn(rect gpu.Rect) {
	c.drawnSince = union(c.drawnSince, c.hasDrawn, rect)
	c.hasDrawn = true
}

// MarkWritten records a CPU->VRAM/VRAM->VRAM/fill write to rect.
func (c *textureCache) MarkWritten(rect gpu.Rect) {
	c.writtenSince = union(c.writtenSince, c.hasWritten, rect)
	c.hasWritten = true
}

// NeedsResolve reports whether samplingRect (the texture page or CLUT
// rectangle a new draw samples from) intersects either dirty rect, and
// if so clears the one(s) it intersected — resolving is the caller's
// responsibility, this only decides and retires the dirty state.
func (c *textureCache) NeedsResolve(samplingRect gpu.Rect) bool {
	needs := false
	if c.hasDrawn && intersects(c.drawnSince, samplingRect) {
		needs = true
		c.hasDrawn = false
		c.drawnSince = gpu.Rect{}
	}
	if c.hasWritten && intersects(c.writtenSince, samplingRect) {
		needs = true
		c.hasWritten = false
		c.writtenSince = gpu.Rect{}
	}
	return needs
}

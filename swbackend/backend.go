// Package swbackend implements the software rasterizer of spec §4.3:
// fixed-point scanline triangle/line/sprite rendering against an
// authoritative shadow VRAM, from which it services ReadVram (spec §5).
package swbackend

import (
	"context"
	"fmt"

	"github.com/zeozeozeo/psxgpu/device"
	"github.com/zeozeozeo/psxgpu/gpu"
)

// Backend implements worker.Backend against the software rasterizer.
// It owns the only copy of VRAM the worker thread sees; the emulation
// thread's own shadow copy (used for ReadVram replies before the
// record reaches here) is out of this package's scope.
type Backend struct {
	vram VRAM
	area gpu.Rect

	display gpu.DisplayUpdate
	frame   []byte
}

// NewBackend constructs a fresh software rasterizer backend with blank
// VRAM, matching the post soft-reset state.
func NewBackend() *Backend {
	return &Backend{}
}

// Dispatch executes one decoded CommandRecord against VRAM, per the
// switch on CommandKind spec §9 recommends in place of a 256-entry
// function table.
func (b *Backend) Dispatch(rec gpu.CommandRecord) error {
	switch rec.Kind {
	case gpu.CmdReset:
		b.vram = VRAM{}
		b.area = gpu.Rect{}
	case gpu.CmdFillVram:
		b.fillVram(rec)
	case gpu.CmdUpdateVram:
		b.updateVram(rec)
	case gpu.CmdCopyVram:
		b.copyVram(rec)
	case gpu.CmdReadVramAck:
		// the emulation thread already has the pixel data it needs
		// from its own shadow VRAM (spec §5 "Shared resources"); this
		// record exists only to preserve FIFO ordering against
		// in-flight writes, nothing further to do here.
	case gpu.CmdSetDrawingArea:
		b.area = rec.DrawingArea
	case gpu.CmdDrawPolygon, gpu.CmdDrawPrecisePolygon:
		b.drawPolygon(rec)
	case gpu.CmdDrawSprite:
		b.drawSprite(rec)
	case gpu.CmdDrawLine:
		b.drawLine(rec)
	case gpu.CmdUpdateDisplay:
		b.display = rec.Display
	case gpu.CmdClearDisplay:
		b.display = gpu.DisplayUpdate{}
	case gpu.CmdUpdateVsync, gpu.CmdChangeBackend, gpu.CmdAsyncCall:
		// worker.dispatchBytes intercepts these before they ever reach
		// Dispatch; reaching here would be a routing bug upstream.
	default:
		return fmt.Errorf("swbackend: unhandled command kind %d", rec.Kind)
	}
	return nil
}

func (b *Backend) ctx(rec gpu.CommandRecord) fixedCtx {
	return fixedCtx{area: b.area, mask: rec.Mask}
}

// fillVram honours the interlace skip rule but, per spec §4.1, never
// the mask bit: it always overwrites, even where CheckMaskBeforeDraw
// would otherwise forbid a write.
func (b *Backend) fillVram(rec gpu.CommandRecord) {
	f := rec.Fill
	val := uint16(f.Color.R>>3) | uint16(f.Color.G>>3)<<5 | uint16(f.Color.B>>3)<<10
	for row := uint32(0); row < f.H; row++ {
		y := int32(f.Y + row)
		if rec.Mask.InterlacedRendering && uint32(y)&1 != uint32(rec.Mask.ActiveLineLSB)&1 {
			continue
		}
		for col := uint32(0); col < f.W; col++ {
			b.vram.Set(wrapX(int32(f.X+col)), wrapY(y), val)
		}
	}
}

// updateVram writes the CPU->VRAM pixel payload, wrapping columns past
// 1023 to 0 and rows past 511 to 0 per spec §3 invariant 4.
func (b *Backend) updateVram(rec gpu.CommandRecord) {
	t := rec.Transfer
	i := 0
	for row := uint32(0); row < t.H && i < len(rec.Pixels); row++ {
		for col := uint32(0); col < t.W && i < len(rec.Pixels); col++ {
			b.vram.writeMasked(wrapX(int32(t.X+col)), wrapY(int32(t.Y+row)), rec.Pixels[i], rec.Mask)
			i++
		}
	}
}

func (b *Backend) copyVram(rec gpu.CommandRecord) {
	t := rec.Transfer
	for row := uint32(0); row < t.H; row++ {
		for col := uint32(0); col < t.W; col++ {
			srcX := wrapX(int32(rec.CopySrcX + col))
			srcY := wrapY(int32(rec.CopySrcY + row))
			val := b.vram.At(srcX, srcY)
			b.vram.writeMasked(wrapX(int32(t.X+col)), wrapY(int32(t.Y+row)), val, rec.Mask)
		}
	}
}

func toTriVertex(vv gpu.Vertex) triangleVertex {
	return triangleVertex{
		x: vv.Pos.X, y: vv.Pos.Y,
		r: vv.Color.R, g: vv.Color.G, b: vv.Color.B,
		u: vv.UV.U, v: vv.UV.V,
	}
}

// drawPolygon rasterizes a triangle directly, or a quad as two
// triangles sharing the diagonal (spec §4.1: "each triangle half of a
// quad is culled independently"). Both halves were already bounds-
// checked and independently culled by the parser, so every record that
// reaches here draws in full.
func (b *Backend) drawPolygon(rec gpu.CommandRecord) {
	ctx := b.ctx(rec)
	verts := rec.Vertices
	dither := rec.RC.Shaded
	RasterizeTriangle(&b.vram, [3]triangleVertex{toTriVertex(verts[0]), toTriVertex(verts[1]), toTriVertex(verts[2])}, rec.RC, rec.DrawMode, rec.Palette, rec.Window, rec.Semi, dither, ctx)
	if rec.RC.Quad {
		RasterizeTriangle(&b.vram, [3]triangleVertex{toTriVertex(verts[1]), toTriVertex(verts[2]), toTriVertex(verts[3])}, rec.RC, rec.DrawMode, rec.Palette, rec.Window, rec.Semi, dither, ctx)
	}
}

func (b *Backend) drawSprite(rec gpu.CommandRecord) {
	ctx := b.ctx(rec)
	s := rec.Sprite
	RasterizeSprite(&b.vram, s.Pos.X, s.Pos.Y, s.W, s.H, s.TexCoord.U, s.TexCoord.V, s.Color, rec.RC, rec.DrawMode, rec.Palette, rec.Window, rec.Semi, ctx)
}

func (b *Backend) drawLine(rec gpu.CommandRecord) {
	ctx := b.ctx(rec)
	verts := make([]triangleVertex, len(rec.Vertices))
	for i, vv := range rec.Vertices {
		verts[i] = toTriVertex(vv)
	}
	if rec.RC.Polyline {
		RasterizePolyline(&b.vram, verts, rec.RC, rec.Semi, false, ctx)
		return
	}
	if len(verts) >= 2 {
		RasterizeLine(&b.vram, verts[0], verts[1], rec.RC, rec.Semi, false, ctx)
	}
}

// Present repacks the current display rectangle into an RGBA8 frame
// and uploads it to the device's present target. The software backend
// always presents through the same ScanOut + UploadTexture path
// regardless of which device.Device is bound, unlike hwbackend which
// renders directly into device-owned targets.
func (b *Backend) Present(dev device.Device, vsync bool, maxFPS int) error {
	w, h := int(b.display.Width), int(b.display.Height)
	if w == 0 || h == 0 {
		return nil
	}
	need := w * h * 4
	if cap(b.frame) < need {
		b.frame = make([]byte, need)
	}
	b.frame = b.frame[:need]
	b.vram.ScanOut(b.display, OutputRGBA8, b.frame)

	tex, err := dev.CreateTexture(device.TextureDesc{Width: w, Height: h, Format: device.FormatRGBA8, Usage: device.UsageDynamic})
	if err != nil {
		return fmt.Errorf("swbackend: create present texture: %w", err)
	}
	defer dev.DestroyTexture(tex)
	if err := dev.UploadTexture(tex, 0, 0, w, h, b.frame); err != nil {
		return fmt.Errorf("swbackend: upload present texture: %w", err)
	}
	if err := dev.BeginPresent(); err != nil {
		return fmt.Errorf("swbackend: begin present: %w", err)
	}
	dev.BindTexture(0, tex)
	return dev.EndPresent(vsync, maxFPS)
}

func (b *Backend) Close() error { return nil }

// ReadVram satisfies worker.VramReader directly against the shadow
// VRAM this backend owns; the caller is responsible for having drained
// the ring first so every queued write already landed.
func (b *Backend) ReadVram(ctx context.Context, t gpu.TransferParams) ([]uint16, error) {
	out := make([]uint16, 0, int(t.W)*int(t.H))
	for row := uint32(0); row < t.H; row++ {
		for col := uint32(0); col < t.W; col++ {
			out = append(out, b.vram.At(wrapX(int32(t.X+col)), wrapY(int32(t.Y+row))))
		}
	}
	return out, nil
}

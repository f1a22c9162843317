package swbackend

import (
	"testing"

	"github.com/zeozeozeo/psxgpu/gpu"
)

func TestDispatchFillThenReadBackViaCopy(t *testing.T) {
	b := NewBackend()
	if err := b.Dispatch(gpu.CommandRecord{
		Kind: gpu.CmdFillVram,
		Fill: gpu.FillParams{X: 0, Y: 0, W: 16, H: 16, Color: gpu.Color{R: 0, G: 0, B: 255}},
	}); err != nil {
		t.Fatalf("fill: %v", err)
	}
	if err := b.Dispatch(gpu.CommandRecord{
		Kind:     gpu.CmdCopyVram,
		CopySrcX: 0, CopySrcY: 0,
		Transfer: gpu.TransferParams{X: 100, Y: 100, W: 16, H: 16},
	}); err != nil {
		t.Fatalf("copy: %v", err)
	}
	if got := b.vram.At(100, 100); got != 0x7c00 {
		t.Fatalf("expected copied blue pixel 0x7c00, got 0x%04x", got)
	}
}

func TestDispatchDrawPolygonHonoursDrawingArea(t *testing.T) {
	b := NewBackend()
	if err := b.Dispatch(gpu.CommandRecord{Kind: gpu.CmdSetDrawingArea, DrawingArea: gpu.Rect{Left: 0, Top: 0, Right: 9, Bottom: 9}}); err != nil {
		t.Fatalf("set drawing area: %v", err)
	}
	rec := gpu.CommandRecord{
		Kind: gpu.CmdDrawPolygon,
		RC:   gpu.RenderCommand{},
		Vertices: []gpu.Vertex{
			{Pos: gpu.Vec2{X: 0, Y: 0}, Color: gpu.Color{R: 255}},
			{Pos: gpu.Vec2{X: 20, Y: 0}, Color: gpu.Color{R: 255}},
			{Pos: gpu.Vec2{X: 0, Y: 20}, Color: gpu.Color{R: 255}},
		},
	}
	if err := b.Dispatch(rec); err != nil {
		t.Fatalf("draw polygon: %v", err)
	}
	if b.vram.At(15, 2) != 0 {
		t.Fatalf("expected pixel outside drawing area to stay clear, got 0x%04x", b.vram.At(15, 2))
	}
	if b.vram.At(2, 2) == 0 {
		t.Fatalf("expected pixel inside drawing area to be drawn")
	}
}

func TestDispatchUpdateDisplayTracksScanoutRect(t *testing.T) {
	b := NewBackend()
	upd := gpu.DisplayUpdate{VRamX: 0, VRamY: 0, Width: 4, Height: 4}
	if err := b.Dispatch(gpu.CommandRecord{Kind: gpu.CmdUpdateDisplay, Display: upd}); err != nil {
		t.Fatalf("update display: %v", err)
	}
	if b.display != upd {
		t.Fatalf("display state not recorded: %+v", b.display)
	}
}

func TestDispatchUnknownKindErrors(t *testing.T) {
	b := NewBackend()
	err := b.Dispatch(gpu.CommandRecord{Kind: gpu.CommandKind(200)})
	if err == nil {
		t.Fatalf("expected error for unhandled command kind")
	}
}

package gpu

import "testing"

func TestEncodeDecodeDrawPolygonRoundTrip(t *testing.T) {
	rec := CommandRecord{
		Kind: CmdDrawPolygon,
		RC:   RenderCommand{Shaded: true, Textured: true},
		DrawMode: TexturePage{BaseX: 64, BaseY: 256, Depth: TextureDepth8BPP},
		Palette:  Vec2{X: 320, Y: 240},
		Window:   TextureWindow{MaskX: 1, MaskY: 2, OffX: 3, OffY: 4},
		Vertices: []Vertex{
			{Pos: Vec2{X: 0, Y: 0}, Color: Color{R: 1, G: 2, B: 3}, UV: TexCoord{U: 5, V: 6}, HasUV: true},
			{Pos: Vec2{X: -10, Y: 20}, Color: Color{R: 7, G: 8, B: 9}},
		},
		Mask: MaskSettings{SetMaskWhileDrawing: true, ActiveLineLSB: 1},
	}

	tag, payload := EncodeCommandRecord(rec)
	if tag != uint32(CmdDrawPolygon) {
		t.Fatalf("unexpected tag %d", tag)
	}

	got, isFrame, err := DecodeCommandRecord(tag, payload)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if isFrame {
		t.Fatalf("draw polygon must not be treated as a frame boundary")
	}
	if got.Kind != CmdDrawPolygon {
		t.Fatalf("unexpected kind %v", got.Kind)
	}
	if !got.RC.Shaded || !got.RC.Textured {
		t.Fatalf("render command flags lost: %+v", got.RC)
	}
	if got.DrawMode != rec.DrawMode {
		t.Fatalf("draw mode mismatch: %+v vs %+v", got.DrawMode, rec.DrawMode)
	}
	if len(got.Vertices) != 2 {
		t.Fatalf("expected 2 vertices, got %d", len(got.Vertices))
	}
	if got.Vertices[1].Pos.X != -10 {
		t.Fatalf("expected negative X to round-trip, got %d", got.Vertices[1].Pos.X)
	}
	if !got.Mask.SetMaskWhileDrawing || got.Mask.ActiveLineLSB != 1 {
		t.Fatalf("mask settings lost: %+v", got.Mask)
	}
}

func TestEncodeDecodeUpdateDisplayIsFrameBoundary(t *testing.T) {
	rec := CommandRecord{
		Kind: CmdUpdateDisplay,
		Display: DisplayUpdate{
			VRamX: 0, VRamY: 0, Width: 320, Height: 240,
			Interlaced: true, Field: FieldTop,
		},
	}
	tag, payload := EncodeCommandRecord(rec)
	got, isFrame, err := DecodeCommandRecord(tag, payload)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if !isFrame {
		t.Fatalf("expected UpdateDisplay to be a frame boundary")
	}
	if got.Display.Width != 320 || got.Display.Field != FieldTop {
		t.Fatalf("display fields lost: %+v", got.Display)
	}
}

func TestEncodeDecodeUpdateVramPixelPayload(t *testing.T) {
	rec := CommandRecord{
		Kind:     CmdUpdateVram,
		Transfer: TransferParams{X: 1000, Y: 0, W: 100, H: 1},
		Pixels:   []uint16{0x0001, 0x7fff, 0x8000},
	}
	tag, payload := EncodeCommandRecord(rec)
	got, _, err := DecodeCommandRecord(tag, payload)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if got.Transfer != rec.Transfer {
		t.Fatalf("transfer mismatch: %+v", got.Transfer)
	}
	if len(got.Pixels) != 3 || got.Pixels[2] != 0x8000 {
		t.Fatalf("pixels mismatch: %v", got.Pixels)
	}
}

func TestDecodeTruncatedRecordErrors(t *testing.T) {
	_, _, err := DecodeCommandRecord(uint32(CmdFillVram), []byte{1, 2, 3})
	if err == nil {
		t.Fatalf("expected truncated payload to error")
	}
}

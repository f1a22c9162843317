package gpu

import "testing"

func assert(t *testing.T, v bool, msg string) {
	t.Helper()
	if !v {
		t.Error(msg)
	}
}

func newTestParser() (*Parser, *[]CommandRecord) {
	var recs []CommandRecord
	p := NewParser()
	p.Emit = func(r CommandRecord) error {
		recs = append(recs, r)
		return nil
	}
	return p, &recs
}

func TestOpaqueTriangleWords(t *testing.T) {
	p, recs := newTestParser()

	must := func(err error) {
		t.Helper()
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
	}

	must(p.GP0(0x20ff0000)) // flat triangle, color r=0 g=0 b=255
	must(p.GP0(uint32(Vec2{0, 0}.packWord())))
	must(p.GP0(uint32(Vec2{63, 0}.packWord())))
	must(p.GP0(uint32(Vec2{0, 63}.packWord())))

	if len(*recs) != 1 {
		t.Fatalf("expected 1 record, got %d", len(*recs))
	}
	r := (*recs)[0]
	assert(t, r.Kind == CmdDrawPolygon, "expected DrawPolygon")
	assert(t, len(r.Vertices) == 3, "expected 3 vertices")
	assert(t, r.Vertices[0].Color == Color{0, 0, 255}, "unexpected color")
}

func (v Vec2) packWord() uint32 {
	return uint32(uint16(v.X)) | uint32(uint16(v.Y))<<16
}

func TestPolylineTerminator(t *testing.T) {
	p, recs := newTestParser()

	_ = p.GP0(0x58ffffff) // shaded polyline, color0 white in the opcode word
	_ = p.GP0(Vec2{10, 10}.packWord())
	_ = p.GP0(0x00000000) // color1 black
	_ = p.GP0(Vec2{20, 10}.packWord())
	_ = p.GP0(0x50005000) // terminator

	if len(*recs) != 1 {
		t.Fatalf("expected exactly 1 line record, got %d", len(*recs))
	}
	r := (*recs)[0]
	assert(t, r.Kind == CmdDrawLine, "expected DrawLine")
	assert(t, len(r.Vertices) == 2, "expected 2 vertices")
	assert(t, r.Vertices[0].Pos == Vec2{10, 10}, "unexpected vertex0 pos")
	assert(t, r.Vertices[1].Pos == Vec2{20, 10}, "unexpected vertex1 pos")
	assert(t, p.state == stateIdle, "parser must return to idle")
}

func TestEnvironmentWritesDoNotEmit(t *testing.T) {
	p, recs := newTestParser()
	_ = p.GP0(0xe1000000)
	_ = p.GP0(0xe3000000)
	_ = p.GP0(0xe6000003)
	if len(*recs) != 0 {
		t.Fatalf("environment writes must not emit records, got %d", len(*recs))
	}
	assert(t, p.Env.ForceSetMaskBit, "expected mask bit force set")
	assert(t, p.Env.PreserveMaskedPixels, "expected preserve masked pixels")
}

func TestFillSnapAndWraparound(t *testing.T) {
	p, recs := newTestParser()
	// x=5 (snaps to 0), w=5 (rounds to 16)
	_ = p.GP0(0x02ff0000)
	_ = p.GP0(0x00000005)
	_ = p.GP0(0x00000005)

	r := (*recs)[0]
	assert(t, r.Fill.X == 0, "expected snapped x=0")
	assert(t, r.Fill.W == 16, "expected rounded w=16")
}

func TestTransferSizeWraparound(t *testing.T) {
	w, h := wrapTransferSize(0)
	assert(t, w == 0x400, "expected width wraparound to 0x400")
	assert(t, h == 0x200, "expected height wraparound to 0x200")
}

func TestGpuIrqEdgeLatch(t *testing.T) {
	p, _ := newTestParser()
	assert(t, !p.IRQLine(), "expected IRQ initially low")
	_ = p.GP0(0x1f000000)
	assert(t, p.IRQLine(), "expected IRQ asserted")
	_ = p.GP0(0x1f000000) // no-op while already asserted
	assert(t, p.IRQLine(), "expected IRQ to remain asserted")
	p.AckIRQ()
	assert(t, !p.IRQLine(), "expected IRQ cleared after ack")
}

func TestQuadDegradesToTriangleOnOversizedHalf(t *testing.T) {
	p, recs := newTestParser()
	_ = p.GP0(0x28000000) // flat quad
	_ = p.GP0(Vec2{0, 0}.packWord())
	_ = p.GP0(Vec2{10, 0}.packWord())
	_ = p.GP0(Vec2{0, 10}.packWord())
	_ = p.GP0(Vec2{-1020, 10}.packWord()) // pushes triangle 1 out of bounds

	// triangle0 = (0,0),(10,0),(0,10) -> 10x10, kept
	// triangle1 = (10,0),(0,10),(-1020,10) -> width 1030 >= 1024, culled
	if len(*recs) != 1 {
		t.Fatalf("expected only triangle 0 to survive, got %d records", len(*recs))
	}
}

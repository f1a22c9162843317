package gpu

import (
	"encoding/binary"
	"fmt"
	"math"
)

// EncodeCommandRecord flattens a CommandRecord into the byte payload
// carried by one ring.Ring record. The tag is the record's
// CommandKind, matching spec §4.2's "{tag, size}" header; only the
// fields relevant to Kind are written, mirroring the source's
// per-command payload union.
func EncodeCommandRecord(rec CommandRecord) (tag uint32, payload []byte) {
	w := newByteWriter()
	switch rec.Kind {
	case CmdReset, CmdClearDisplay:
		// no payload
	case CmdFillVram:
		w.putFill(rec.Fill)
	case CmdUpdateVram:
		w.putTransfer(rec.Transfer)
		w.putUint16Slice(rec.Pixels)
	case CmdCopyVram:
		w.putTransfer(rec.Transfer)
		w.putUint32(rec.CopySrcX)
		w.putUint32(rec.CopySrcY)
	case CmdReadVramAck:
		w.putTransfer(rec.Transfer)
	case CmdSetDrawingArea:
		w.putRect(rec.DrawingArea)
	case CmdDrawPolygon, CmdDrawPrecisePolygon:
		w.putRenderCommand(rec.RC)
		w.putTexturePage(rec.DrawMode)
		w.putVec2(rec.Palette)
		w.putTextureWindow(rec.Window)
		w.putUint8(uint8(rec.Semi))
		w.putVertices(rec.Vertices)
	case CmdDrawSprite:
		w.putRenderCommand(rec.RC)
		w.putTexturePage(rec.DrawMode)
		w.putVec2(rec.Palette)
		w.putTextureWindow(rec.Window)
		w.putUint8(uint8(rec.Semi))
		w.putSprite(rec.Sprite)
	case CmdDrawLine:
		w.putRenderCommand(rec.RC)
		w.putUint8(uint8(rec.Semi))
		w.putVertices(rec.Vertices)
	case CmdUpdateDisplay:
		w.putDisplay(rec.Display)
	case CmdChangeBackend:
		w.putUint8(uint8(rec.Backend))
	case CmdUpdateVsync:
		w.putBool(rec.Vsync)
	case CmdAsyncCall:
		w.putUint8(uint8(rec.AsyncOp))
		w.putUint64(rec.AsyncParam)
	}
	w.putMask(rec.Mask)
	return uint32(rec.Kind), w.Bytes()
}

// DecodeCommandRecord reverses EncodeCommandRecord. isFrame reports
// whether this record should trigger a present (UpdateDisplay) so the
// worker can account the frame-backpressure counter correctly.
func DecodeCommandRecord(tag uint32, payload []byte) (rec CommandRecord, isFrame bool, err error) {
	kind := CommandKind(tag)
	rec.Kind = kind
	r := newByteReader(payload)

	switch kind {
	case CmdReset, CmdClearDisplay:
	case CmdFillVram:
		rec.Fill = r.getFill()
	case CmdUpdateVram:
		rec.Transfer = r.getTransfer()
		rec.Pixels = r.getUint16Slice()
	case CmdCopyVram:
		rec.Transfer = r.getTransfer()
		rec.CopySrcX = r.getUint32()
		rec.CopySrcY = r.getUint32()
	case CmdReadVramAck:
		rec.Transfer = r.getTransfer()
	case CmdSetDrawingArea:
		rec.DrawingArea = r.getRect()
	case CmdDrawPolygon, CmdDrawPrecisePolygon:
		rec.RC = r.getRenderCommand()
		rec.DrawMode = r.getTexturePage()
		rec.Palette = r.getVec2()
		rec.Window = r.getTextureWindow()
		rec.Semi = SemiTransparencyMode(r.getUint8())
		rec.Vertices = r.getVertices()
	case CmdDrawSprite:
		rec.RC = r.getRenderCommand()
		rec.DrawMode = r.getTexturePage()
		rec.Palette = r.getVec2()
		rec.Window = r.getTextureWindow()
		rec.Semi = SemiTransparencyMode(r.getUint8())
		rec.Sprite = r.getSprite()
	case CmdDrawLine:
		rec.RC = r.getRenderCommand()
		rec.Semi = SemiTransparencyMode(r.getUint8())
		rec.Vertices = r.getVertices()
	case CmdUpdateDisplay:
		rec.Display = r.getDisplay()
		isFrame = true
	case CmdChangeBackend:
		rec.Backend = BackendKind(r.getUint8())
	case CmdUpdateVsync:
		rec.Vsync = r.getBool()
	case CmdAsyncCall:
		rec.AsyncOp = AsyncOpKind(r.getUint8())
		rec.AsyncParam = r.getUint64()
	default:
		return CommandRecord{}, false, fmt.Errorf("gpu: unknown queued command kind %d", tag)
	}
	rec.Mask = r.getMask()
	if r.err != nil {
		return CommandRecord{}, false, fmt.Errorf("gpu: truncated queued record: %w", r.err)
	}
	return rec, isFrame, nil
}

type byteWriter struct{ buf []byte }

func newByteWriter() *byteWriter { return &byteWriter{} }

func (w *byteWriter) Bytes() []byte { return w.buf }

func (w *byteWriter) putUint8(v uint8)   { w.buf = append(w.buf, v) }
func (w *byteWriter) putBool(v bool) {
	if v {
		w.putUint8(1)
	} else {
		w.putUint8(0)
	}
}
func (w *byteWriter) putUint16(v uint16) {
	var b [2]byte
	binary.LittleEndian.PutUint16(b[:], v)
	w.buf = append(w.buf, b[:]...)
}
func (w *byteWriter) putUint32(v uint32) {
	var b [4]byte
	binary.LittleEndian.PutUint32(b[:], v)
	w.buf = append(w.buf, b[:]...)
}
func (w *byteWriter) putInt32(v int32) { w.putUint32(uint32(v)) }
func (w *byteWriter) putUint64(v uint64) {
	var b [8]byte
	binary.LittleEndian.PutUint64(b[:], v)
	w.buf = append(w.buf, b[:]...)
}

func (w *byteWriter) putColor(c Color) {
	w.putUint8(c.R)
	w.putUint8(c.G)
	w.putUint8(c.B)
}

func (w *byteWriter) putVec2(v Vec2) {
	w.putInt32(v.X)
	w.putInt32(v.Y)
}

func (w *byteWriter) putFill(f FillParams) {
	w.putUint32(f.X)
	w.putUint32(f.Y)
	w.putUint32(f.W)
	w.putUint32(f.H)
	w.putColor(f.Color)
}

func (w *byteWriter) putTransfer(t TransferParams) {
	w.putUint32(t.X)
	w.putUint32(t.Y)
	w.putUint32(t.W)
	w.putUint32(t.H)
}

func (w *byteWriter) putRect(r Rect) {
	w.putInt32(r.Left)
	w.putInt32(r.Top)
	w.putInt32(r.Right)
	w.putInt32(r.Bottom)
}

func (w *byteWriter) putRenderCommand(rc RenderCommand) {
	var bits uint8
	if rc.Quad {
		bits |= 1
	}
	if rc.Shaded {
		bits |= 2
	}
	if rc.Textured {
		bits |= 4
	}
	if rc.RawTexture {
		bits |= 8
	}
	if rc.Transparent {
		bits |= 16
	}
	if rc.Polyline {
		bits |= 32
	}
	w.putUint8(bits)
}

func (w *byteWriter) putTexturePage(tp TexturePage) {
	w.putUint16(tp.BaseX)
	w.putUint16(tp.BaseY)
	w.putUint8(uint8(tp.Depth))
}

func (w *byteWriter) putTextureWindow(tw TextureWindow) {
	w.putUint8(tw.MaskX)
	w.putUint8(tw.MaskY)
	w.putUint8(tw.OffX)
	w.putUint8(tw.OffY)
}

func (w *byteWriter) putMask(m MaskSettings) {
	var bits uint8
	if m.SetMaskWhileDrawing {
		bits |= 1
	}
	if m.CheckMaskBeforeDraw {
		bits |= 2
	}
	if m.InterlacedRendering {
		bits |= 4
	}
	w.putUint8(bits)
	w.putUint8(m.ActiveLineLSB)
}

func (w *byteWriter) putVertex(v Vertex) {
	w.putVec2(v.Pos)
	w.putColor(v.Color)
	w.putUint8(v.UV.U)
	w.putUint8(v.UV.V)
	w.putBool(v.HasUV)
	w.putBool(v.Precise.Valid)
	if v.Precise.Valid {
		w.putUint32(math.Float32bits(v.Precise.X))
		w.putUint32(math.Float32bits(v.Precise.Y))
		w.putUint32(math.Float32bits(v.Precise.W))
	}
}

func (w *byteWriter) putVertices(vs []Vertex) {
	w.putUint32(uint32(len(vs)))
	for _, v := range vs {
		w.putVertex(v)
	}
}

func (w *byteWriter) putSprite(s SpriteParams) {
	w.putVec2(s.Pos)
	w.putInt32(s.W)
	w.putInt32(s.H)
	w.putUint8(s.TexCoord.U)
	w.putUint8(s.TexCoord.V)
	w.putColor(s.Color)
}

func (w *byteWriter) putDisplay(d DisplayUpdate) {
	w.putUint16(d.VRamX)
	w.putUint16(d.VRamY)
	w.putUint16(d.Width)
	w.putUint16(d.Height)
	w.putUint16(d.HorizStart)
	w.putUint16(d.HorizEnd)
	w.putUint16(d.LineStart)
	w.putUint16(d.LineEnd)
	w.putBool(d.Depth24Bit)
	w.putBool(d.Interlaced)
	w.putUint8(uint8(d.Field))
}

func (w *byteWriter) putUint16Slice(vs []uint16) {
	w.putUint32(uint32(len(vs)))
	for _, v := range vs {
		w.putUint16(v)
	}
}

type byteReader struct {
	buf []byte
	pos int
	err error
}

func newByteReader(buf []byte) *byteReader { return &byteReader{buf: buf} }

func (r *byteReader) need(n int) []byte {
	if r.err != nil || r.pos+n > len(r.buf) {
		r.err = fmt.Errorf("need %d bytes at %d, have %d", n, r.pos, len(r.buf))
		return make([]byte, n)
	}
	b := r.buf[r.pos : r.pos+n]
	r.pos += n
	return b
}

func (r *byteReader) getUint8() uint8  { return r.need(1)[0] }
func (r *byteReader) getBool() bool    { return r.getUint8() != 0 }
func (r *byteReader) getUint16() uint16 { return binary.LittleEndian.Uint16(r.need(2)) }
func (r *byteReader) getUint32() uint32 { return binary.LittleEndian.Uint32(r.need(4)) }
func (r *byteReader) getInt32() int32   { return int32(r.getUint32()) }
func (r *byteReader) getUint64() uint64 { return binary.LittleEndian.Uint64(r.need(8)) }

func (r *byteReader) getColor() Color {
	return Color{R: r.getUint8(), G: r.getUint8(), B: r.getUint8()}
}

func (r *byteReader) getVec2() Vec2 {
	return Vec2{X: r.getInt32(), Y: r.getInt32()}
}

func (r *byteReader) getFill() FillParams {
	return FillParams{X: r.getUint32(), Y: r.getUint32(), W: r.getUint32(), H: r.getUint32(), Color: r.getColor()}
}

func (r *byteReader) getTransfer() TransferParams {
	return TransferParams{X: r.getUint32(), Y: r.getUint32(), W: r.getUint32(), H: r.getUint32()}
}

func (r *byteReader) getRect() Rect {
	return Rect{Left: r.getInt32(), Top: r.getInt32(), Right: r.getInt32(), Bottom: r.getInt32()}
}

func (r *byteReader) getRenderCommand() RenderCommand {
	bits := r.getUint8()
	return RenderCommand{
		Quad:        bits&1 != 0,
		Shaded:      bits&2 != 0,
		Textured:    bits&4 != 0,
		RawTexture:  bits&8 != 0,
		Transparent: bits&16 != 0,
		Polyline:    bits&32 != 0,
	}
}

func (r *byteReader) getTexturePage() TexturePage {
	return TexturePage{
		BaseX: r.getUint16(),
		BaseY: r.getUint16(),
		Depth: TextureDepth(r.getUint8()),
	}
}

func (r *byteReader) getTextureWindow() TextureWindow {
	return TextureWindow{MaskX: r.getUint8(), MaskY: r.getUint8(), OffX: r.getUint8(), OffY: r.getUint8()}
}

func (r *byteReader) getMask() MaskSettings {
	bits := r.getUint8()
	lsb := r.getUint8()
	return MaskSettings{
		SetMaskWhileDrawing: bits&1 != 0,
		CheckMaskBeforeDraw: bits&2 != 0,
		InterlacedRendering: bits&4 != 0,
		ActiveLineLSB:       lsb,
	}
}

func (r *byteReader) getVertex() Vertex {
	v := Vertex{}
	v.Pos = r.getVec2()
	v.Color = r.getColor()
	v.UV = TexCoord{U: r.getUint8(), V: r.getUint8()}
	v.HasUV = r.getBool()
	v.Precise.Valid = r.getBool()
	if v.Precise.Valid {
		v.Precise.X = math.Float32frombits(r.getUint32())
		v.Precise.Y = math.Float32frombits(r.getUint32())
		v.Precise.W = math.Float32frombits(r.getUint32())
	}
	return v
}

func (r *byteReader) getVertices() []Vertex {
	n := r.getUint32()
	vs := make([]Vertex, 0, n)
	for i := uint32(0); i < n; i++ {
		vs = append(vs, r.getVertex())
	}
	return vs
}

func (r *byteReader) getSprite() SpriteParams {
	return SpriteParams{
		Pos:      r.getVec2(),
		W:        r.getInt32(),
		H:        r.getInt32(),
		TexCoord: TexCoord{U: r.getUint8(), V: r.getUint8()},
		Color:    r.getColor(),
	}
}

func (r *byteReader) getDisplay() DisplayUpdate {
	return DisplayUpdate{
		VRamX:      r.getUint16(),
		VRamY:      r.getUint16(),
		Width:      r.getUint16(),
		Height:     r.getUint16(),
		HorizStart: r.getUint16(),
		HorizEnd:   r.getUint16(),
		LineStart:  r.getUint16(),
		LineEnd:    r.getUint16(),
		Depth24Bit: r.getBool(),
		Interlaced: r.getBool(),
		Field:      Field(r.getUint8()),
	}
}

func (r *byteReader) getUint16Slice() []uint16 {
	n := r.getUint32()
	vs := make([]uint16, 0, n)
	for i := uint32(0); i < n; i++ {
		vs = append(vs, r.getUint16())
	}
	return vs
}

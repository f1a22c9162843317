package gpu

import "log/slog"

// parserState is the GP0 byte-stream state machine of spec §4.1.
type parserState uint8

const (
	stateIdle parserState = iota
	stateAccumulatePolygon
	stateAccumulateSprite
	stateAccumulateLine
	stateAccumulateFill
	stateAccumulateCopy
	stateAccumulateWriteHeader
	stateWritingVram
	stateAccumulateReadHeader
)

// Parser decodes the GP0/GP1 word stream into CommandRecords and
// drives the Environment/DisplayState registers. It is owned
// exclusively by the emulation thread (spec §5).
type Parser struct {
	Env     *Environment
	Display *DisplayState
	Read    ReadFIFO

	// Emit is called once per completed GP0 command that produces a
	// record (environment-only writes never call it). A non-nil error
	// is treated as fatal (spec §7 QueueAllocation) and propagated out
	// of GP0/GP0Run.
	Emit func(CommandRecord) error

	// Logger receives non-fatal diagnostics: malformed opcodes,
	// clamped transfers. Defaults to slog.Default() if nil.
	Logger *slog.Logger

	// SyncRead is invoked synchronously when a VRAM->CPU transfer
	// completes; it must fill the []uint16 of length w*h with the
	// current VRAM contents of the given rectangle before returning.
	// This is the "parser waits for backend to mirror" suspension
	// point of spec §4.1/§5.
	SyncRead func(x, y, w, h uint32, into []uint16)

	irqLine       bool
	activeLineLSB uint8
	cycles        uint64

	state parserState
	words []uint32 // accumulator buffer, opcode word at index 0

	needed int // additional words required before completing

	// polygon/sprite decode context, valid while state is one of the
	// Accumulate* polygon/sprite/line states
	rc       RenderCommand
	nVerts   int
	spriteSz spriteSize

	// line-specific sub-state
	lineVerts       []Vertex
	lineAwaitingPos bool
	linePendingClr  Color

	// fill/copy/transfer header scratch
	header [3]uint32

	// CPU->VRAM streaming state
	writeRect  TransferParams
	writeTotal int // total pixels expected
	writeBuf   []uint16
	writeMask  MaskSettings
}

// NewParser returns a Parser in the post soft-reset state.
func NewParser() *Parser {
	p := &Parser{
		Env:     NewEnvironment(),
		Display: NewDisplayState(),
	}
	return p
}

func (p *Parser) logger() *slog.Logger {
	if p.Logger != nil {
		return p.Logger
	}
	return slog.Default()
}

func (p *Parser) mask() MaskSettings {
	m := p.Env.Mask()
	m.InterlacedRendering = p.Display.Interlaced
	m.ActiveLineLSB = p.activeLineLSB
	return m
}

// SetActiveLine records the LSB of the scanline currently being
// displayed; an external scanline/vblank timer (out of scope per
// spec §1) is expected to call this once per line.
func (p *Parser) SetActiveLine(lsb uint8) { p.activeLineLSB = lsb & 1 }

// IRQLine returns the current state of the GPU IRQ line (spec §6).
func (p *Parser) IRQLine() bool { return p.irqLine }

// AckIRQ clears the IRQ line; called by the external interrupt
// controller acknowledgment path.
func (p *Parser) AckIRQ() { p.irqLine = false }

func (p *Parser) emit(rec CommandRecord) error {
	if p.Emit == nil {
		return nil
	}
	return p.Emit(rec)
}

// GP0Run is the batched form of GP0; it must behave identically to
// calling GP0 once per word (spec §6).
func (p *Parser) GP0Run(words []uint32) error {
	for _, w := range words {
		if err := p.GP0(w); err != nil {
			return err
		}
	}
	return nil
}

// GP0 appends one word to the parser's internal FIFO and advances the
// state machine, possibly completing a command and emitting a record.
func (p *Parser) GP0(word uint32) error {
	switch p.state {
	case stateIdle:
		return p.gp0Idle(word)
	case stateAccumulatePolygon, stateAccumulateSprite, stateAccumulateFill, stateAccumulateCopy,
		stateAccumulateWriteHeader, stateAccumulateReadHeader:
		return p.gp0Accumulate(word)
	case stateAccumulateLine:
		return p.gp0Line(word)
	case stateWritingVram:
		return p.gp0WritingVram(word)
	}
	return nil
}

func (p *Parser) gp0Idle(word uint32) error {
	opcode := uint8(word >> 24)

	switch {
	case opcode == 0x00:
		// NOP
	case opcode == 0x01:
		// Clear texture cache: no record, hwbackend tracks dirtiness
		// per-draw instead (spec §4.4 "Texture page dirty tracking").
	case opcode == 0x1f:
		p.handleIRQRequest()
	case opcode >= 0xe1 && opcode <= 0xe6:
		p.applyEnvironmentWrite(opcode, word)
	case opcode == 0x02:
		p.beginFixedAccumulate(stateAccumulateFill, word, 2)
	case opcode >= 0x20 && opcode <= 0x3f:
		p.beginPolygon(word)
	case opcode >= 0x40 && opcode <= 0x5f:
		p.beginLine(word)
	case opcode >= 0x60 && opcode <= 0x7f:
		p.beginSprite(word)
	case opcode >= 0x80 && opcode <= 0x9f:
		p.beginFixedAccumulate(stateAccumulateCopy, word, 3)
	case opcode >= 0xa0 && opcode <= 0xbf:
		p.beginFixedAccumulate(stateAccumulateWriteHeader, word, 2)
	case opcode >= 0xc0 && opcode <= 0xdf:
		p.beginFixedAccumulate(stateAccumulateReadHeader, word, 2)
	default:
		p.logger().Warn("gpu: malformed GP0 command", "opcode", opcode, "word", word)
	}
	return nil
}

func (p *Parser) handleIRQRequest() {
	// "subsequent invocations while the line is already asserted are
	// no-ops" (spec §4.1 edge case).
	if !p.irqLine {
		p.irqLine = true
	}
}

func (p *Parser) applyEnvironmentWrite(opcode uint8, word uint32) {
	switch opcode {
	case 0xe1:
		p.Env.GP0DrawMode(word)
	case 0xe2:
		p.Env.GP0TextureWindow(word)
	case 0xe3:
		p.Env.GP0DrawingAreaTopLeft(word)
	case 0xe4:
		p.Env.GP0DrawingAreaBottomRight(word)
	case 0xe5:
		p.Env.GP0DrawingOffset(word)
	case 0xe6:
		p.Env.GP0MaskBitSetting(word)
	}
}

func (p *Parser) beginFixedAccumulate(state parserState, opcodeWord uint32, needed int) {
	p.state = state
	p.words = p.words[:0]
	p.words = append(p.words, opcodeWord)
	p.needed = needed
}

func (p *Parser) gp0Accumulate(word uint32) error {
	p.words = append(p.words, word)
	p.needed--
	if p.needed > 0 {
		return nil
	}
	switch p.state {
	case stateAccumulatePolygon:
		return p.completePolygon()
	case stateAccumulateSprite:
		return p.completeSprite()
	case stateAccumulateFill:
		return p.completeFill()
	case stateAccumulateCopy:
		return p.completeCopy()
	case stateAccumulateWriteHeader:
		return p.completeWriteHeader()
	case stateAccumulateReadHeader:
		return p.completeReadHeader()
	}
	return nil
}

// --- polygons ---

func (p *Parser) beginPolygon(word uint32) {
	opcode := uint8(word >> 24)
	p.rc = RenderCommand{
		Quad:        opcode&0x08 != 0,
		Shaded:      opcode&0x10 != 0,
		Textured:    opcode&0x04 != 0,
		RawTexture:  opcode&0x01 != 0,
		Transparent: opcode&0x02 != 0,
	}
	p.nVerts = 3
	if p.rc.Quad {
		p.nVerts = 4
	}
	t, s := boolToInt(p.rc.Textured), boolToInt(p.rc.Shaded)
	total := p.nVerts*(1+t+s) + boolToInt(!p.rc.Shaded)
	p.state = stateAccumulatePolygon
	p.words = p.words[:0]
	p.words = append(p.words, word)
	p.needed = total - 1
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

func (p *Parser) completePolygon() error {
	verts := make([]Vertex, p.nVerts)
	flatColor := ColorFromGP0(p.words[0])
	verts[0].Color = flatColor

	idx := 1
	var palette Vec2
	var pageOverride *TexturePage

	for i := 0; i < p.nVerts; i++ {
		if i > 0 {
			if p.rc.Shaded {
				verts[i].Color = ColorFromGP0(p.words[idx])
				idx++
			} else {
				verts[i].Color = flatColor
			}
		}
		pos := Vec2FromGP0(p.words[idx])
		idx++
		verts[i].Pos = ApplyDrawingOffset(pos, p.Env)

		if p.rc.Textured {
			uvWord := p.words[idx]
			idx++
			verts[i].UV = TexCoordFromGP0(uvWord)
			verts[i].HasUV = true
			switch i {
			case 0:
				palette = Vec2{X: int32((uvWord >> 16) & 0x3f) * 16, Y: int32((uvWord >> 22) & 0x1ff)}
			case 1:
				page := decodeTexpageWord(uvWord >> 16)
				pageOverride = &page
			}
		}
	}

	page := p.Env.Page
	if pageOverride != nil {
		page = *pageOverride
	}

	return p.emitTriangles(verts, page, palette)
}

// decodeTexpageWord decodes the low bits of a vertex-1 texcoord word's
// high half into a texture page override (base X/Y and colour depth
// only; semi-transparency and dither bits of that same sub-word are
// ignored, and the record's blend mode comes from
// Environment.SemiTransparency instead).
func decodeTexpageWord(bits uint32) TexturePage {
	depth := TextureDepth4BPP
	switch (bits >> 7) & 3 {
	case 1:
		depth = TextureDepth8BPP
	case 2:
		depth = TextureDepth15BPP
	}
	return TexturePage{
		BaseX: uint16(bits&0xf) * 64,
		BaseY: uint16((bits>>4)&1) * 256,
		Depth: depth,
	}
}

// emitTriangles applies the per-triangle culling rule of spec §4.1:
// each triangle of a (possibly degraded) quad is culled independently
// against the 1023x511 bounding-box limit (invariant 4 in §3).
func (p *Parser) emitTriangles(verts []Vertex, page TexturePage, palette Vec2) error {
	tris := [][]Vertex{verts}
	if len(verts) == 4 {
		tris = [][]Vertex{verts[0:3], append(append([]Vertex{}, verts[1:3]...), verts[3])}
	}
	for _, tri := range tris {
		if !boundsOK(tri) {
			continue
		}
		rec := CommandRecord{
			Kind:        CmdDrawPolygon,
			RC:          RenderCommand{Shaded: p.rc.Shaded, Textured: p.rc.Textured, RawTexture: p.rc.RawTexture, Transparent: p.rc.Transparent},
			DrawMode:    page,
			Palette:     palette,
			Window:      p.Env.Window,
			Semi:        p.Env.SemiTransparency,
			Vertices:    tri,
			DrawingArea: p.Env.DrawingArea,
			Mask:        p.mask(),
		}
		if err := p.emit(rec); err != nil {
			return err
		}
	}
	return nil
}

func boundsOK(verts []Vertex) bool {
	minX, maxX := verts[0].Pos.X, verts[0].Pos.X
	minY, maxY := verts[0].Pos.Y, verts[0].Pos.Y
	for _, v := range verts[1:] {
		if v.Pos.X < minX {
			minX = v.Pos.X
		}
		if v.Pos.X > maxX {
			maxX = v.Pos.X
		}
		if v.Pos.Y < minY {
			minY = v.Pos.Y
		}
		if v.Pos.Y > maxY {
			maxY = v.Pos.Y
		}
	}
	return (maxX-minX) < 1024 && (maxY-minY) < 512
}

// --- sprites ---

type spriteSize uint8

const (
	spriteVariable spriteSize = 0
	sprite1x1      spriteSize = 1
	sprite8x8      spriteSize = 2
	sprite16x16    spriteSize = 3
)

func (p *Parser) beginSprite(word uint32) {
	opcode := uint8(word >> 24)
	p.rc = RenderCommand{
		Textured:    opcode&0x04 != 0,
		Transparent: opcode&0x02 != 0,
		RawTexture:  opcode&0x01 != 0,
	}
	size := spriteSize((opcode >> 3) & 3)
	needed := 1 // position
	if p.rc.Textured {
		needed++
	}
	if size == spriteVariable {
		needed++
	}
	p.spriteSz = size
	p.state = stateAccumulateSprite
	p.words = p.words[:0]
	p.words = append(p.words, word)
	p.needed = needed
}

func (p *Parser) completeSprite() error {
	flatColor := ColorFromGP0(p.words[0])
	size := p.spriteSz
	idx := 1
	pos := ApplyDrawingOffset(Vec2FromGP0(p.words[idx]), p.Env)
	idx++

	var tc TexCoord
	var palette Vec2
	if p.rc.Textured {
		uvWord := p.words[idx]
		idx++
		tc = TexCoordFromGP0(uvWord)
		palette = Vec2{X: int32((uvWord >> 16) & 0x3f) * 16, Y: int32((uvWord >> 22) & 0x1ff)}
	}

	var w, h int32
	switch size {
	case sprite1x1:
		w, h = 1, 1
	case sprite8x8:
		w, h = 8, 8
	case sprite16x16:
		w, h = 16, 16
	default:
		sizeWord := p.words[idx]
		idx++
		w = int32(int16(uint16(sizeWord))) & 0x3ff
		h = int32(int16(uint16(sizeWord>>16))) & 0x1ff
	}

	if w >= 1024 || h >= 512 {
		p.state = stateIdle
		return nil
	}

	rec := CommandRecord{
		Kind:     CmdDrawSprite,
		RC:       p.rc,
		DrawMode: p.Env.Page,
		Palette:  palette,
		Window:   p.Env.Window,
		Semi:     p.Env.SemiTransparency,
		Sprite: SpriteParams{
			Pos:      pos,
			W:        w,
			H:        h,
			TexCoord: tc,
			Color:    flatColor,
		},
		DrawingArea: p.Env.DrawingArea,
		Mask:        p.mask(),
	}
	p.state = stateIdle
	return p.emit(rec)
}

// --- lines ---

func (p *Parser) beginLine(word uint32) {
	opcode := uint8(word >> 24)
	p.rc = RenderCommand{
		Shaded:      opcode&0x10 != 0,
		Polyline:    opcode&0x08 != 0,
		Transparent: opcode&0x02 != 0,
	}
	p.lineVerts = p.lineVerts[:0]
	p.linePendingClr = ColorFromGP0(word)
	p.lineAwaitingPos = true
	p.state = stateAccumulateLine
}

func (p *Parser) gp0Line(word uint32) error {
	if p.lineAwaitingPos {
		pos := ApplyDrawingOffset(Vec2FromGP0(word), p.Env)
		p.lineVerts = append(p.lineVerts, Vertex{Pos: pos, Color: p.linePendingClr})
		p.lineAwaitingPos = false

		if !p.rc.Polyline && len(p.lineVerts) == 2 {
			return p.completeLine()
		}
		return nil
	}

	// first word of a new vertex: check polyline terminator first
	if p.rc.Polyline && len(p.lineVerts) >= 2 && (word&0xf000f000) == 0x50005000 {
		return p.completeLine()
	}

	if p.rc.Shaded {
		p.linePendingClr = ColorFromGP0(word)
		p.lineAwaitingPos = true
		return nil
	}
	// unshaded: this word IS the position, reusing vertex0's colour
	pos := ApplyDrawingOffset(Vec2FromGP0(word), p.Env)
	p.linePendingClr = p.lineVerts[0].Color
	p.lineVerts = append(p.lineVerts, Vertex{Pos: pos, Color: p.linePendingClr})
	if p.rc.Polyline {
		return nil
	}
	if len(p.lineVerts) == 2 {
		return p.completeLine()
	}
	return nil
}

func (p *Parser) completeLine() error {
	verts := append([]Vertex{}, p.lineVerts...)
	p.state = stateIdle
	if len(verts) < 2 {
		return nil
	}
	rec := CommandRecord{
		Kind:        CmdDrawLine,
		RC:          p.rc,
		Semi:        p.Env.SemiTransparency,
		Vertices:    verts,
		DrawingArea: p.Env.DrawingArea,
		Mask:        p.mask(),
	}
	return p.emit(rec)
}

// --- fill / copy / transfers ---

func wrapTransferSize(raw uint32) (w, h uint32) {
	w = raw & 0xffff
	h = (raw >> 16) & 0xffff
	w &= 0x3ff
	h &= 0x1ff
	if w == 0 {
		w = 0x400
	}
	if h == 0 {
		h = 0x200
	}
	return
}

func (p *Parser) completeFill() error {
	color := ColorFromGP0(p.words[0])
	posWord := p.words[1]
	sizeWord := p.words[2]
	x := (posWord & 0x3ff) &^ 0xf // snap to multiple of 16 (spec §4.1)
	y := (posWord >> 16) & 0x1ff
	wRaw := sizeWord & 0x3ff
	h := (sizeWord >> 16) & 0x1ff
	w := (wRaw + 0xf) &^ 0xf

	p.state = stateIdle
	rec := CommandRecord{
		Kind: CmdFillVram,
		Fill: FillParams{X: x, Y: y, W: w, H: h, Color: color},
		Mask: p.mask(),
	}
	return p.emit(rec)
}

func (p *Parser) completeCopy() error {
	src := p.words[1]
	dst := p.words[2]
	w, h := wrapTransferSize(p.words[3])

	p.state = stateIdle
	rec := CommandRecord{
		Kind:     CmdCopyVram,
		CopySrcX: src & 0x3ff,
		CopySrcY: (src >> 16) & 0x1ff,
		Transfer: TransferParams{X: dst & 0x3ff, Y: (dst >> 16) & 0x1ff, W: w, H: h},
		Mask:     p.mask(),
	}
	return p.emit(rec)
}

func (p *Parser) completeWriteHeader() error {
	pos := p.words[1]
	w, h := wrapTransferSize(p.words[2])
	p.writeRect = TransferParams{X: pos & 0x3ff, Y: (pos >> 16) & 0x1ff, W: w, H: h}
	p.writeTotal = int(w * h)
	p.writeBuf = make([]uint16, 0, (p.writeTotal+1)/2*2)
	p.writeMask = p.mask()
	p.state = stateWritingVram
	return nil
}

func (p *Parser) gp0WritingVram(word uint32) error {
	p.writeBuf = append(p.writeBuf, uint16(word), uint16(word>>16))
	if len(p.writeBuf) < p.writeTotal {
		return nil
	}
	return p.finishUpdateVram(p.writeBuf[:p.writeTotal])
}

// FinishUpdateVramEarly force-completes an in-flight CPU->VRAM write
// with whatever has been received so far, writing "as many full rows
// as the data covers, then one partial row" (spec §9 open question,
// kept for compatibility with software observed to rely on it).
func (p *Parser) FinishUpdateVramEarly() error {
	if p.state != stateWritingVram {
		return nil
	}
	pixels := p.writeBuf
	if len(pixels) > p.writeTotal {
		pixels = pixels[:p.writeTotal]
	}
	return p.finishUpdateVram(pixels)
}

func (p *Parser) finishUpdateVram(pixels []uint16) error {
	rec := CommandRecord{
		Kind:     CmdUpdateVram,
		Transfer: p.writeRect,
		Pixels:   append([]uint16{}, pixels...),
		Mask:     p.writeMask,
	}
	p.state = stateIdle
	p.writeBuf = nil
	return p.emit(rec)
}

func (p *Parser) completeReadHeader() error {
	pos := p.words[1]
	w, h := wrapTransferSize(p.words[2])
	x, y := pos&0x3ff, (pos>>16)&0x1ff

	buf := make([]uint16, w*h)
	if p.SyncRead != nil {
		p.SyncRead(x, y, w, h, buf)
	}
	p.Read.Fill(buf)

	p.state = stateIdle
	rec := CommandRecord{
		Kind:     CmdReadVramAck,
		Transfer: TransferParams{X: x, Y: y, W: w, H: h},
	}
	return p.emit(rec)
}

// --- GPUREAD / GP1 ---

// ReadWord services a CPU read of the GPUREAD register: a pending
// VRAM->CPU word if the read FIFO is non-empty, otherwise status.
func (p *Parser) ReadWord() uint32 {
	if !p.Read.Empty() {
		return p.Read.PopWord()
	}
	return p.Status()
}

// GP1 handles a write to the GP1 display-control port, always
// synchronous and never producing a ring record (spec §4.1). Resets
// change only parser state; nothing in this module queues a Reset
// record for them.
func (p *Parser) GP1(word uint32) {
	opcode := uint8(word >> 24)
	switch opcode {
	case 0x00:
		p.Env.Reset()
		p.Display.Reset()
		p.irqLine = false
		p.state = stateIdle
	case 0x01:
		p.state = stateIdle
		p.words = p.words[:0]
	case 0x02:
		p.irqLine = false
	case 0x03:
		p.Display.Disabled = word&1 != 0
	case 0x04:
		p.Display.DMADirection = DMADirection(word & 3)
	case 0x05:
		p.Display.VRamXStart = uint16(word & 0x3fe)
		p.Display.VRamYStart = uint16((word >> 10) & 0x1ff)
	case 0x06:
		p.Display.HorizStart = uint16(word & 0xfff)
		p.Display.HorizEnd = uint16((word >> 12) & 0xfff)
	case 0x07:
		p.Display.LineStart = uint16(word & 0x3ff)
		p.Display.LineEnd = uint16((word >> 10) & 0x3ff)
	case 0x08:
		p.gp1DisplayMode(word)
	default:
		p.logger().Warn("gpu: unhandled GP1 command", "opcode", opcode, "word", word)
	}
}

func (p *Parser) gp1DisplayMode(word uint32) {
	hr1 := uint8(word & 3)
	hr2 := uint8((word >> 6) & 1)
	p.Display.HRes = HResFromFields(hr1, hr2)

	if word&0x4 != 0 {
		p.Display.VRes = VRes480Lines
	} else {
		p.Display.VRes = VRes240Lines
	}
	if word&0x8 != 0 {
		p.Display.Mode = VideoModePAL
	} else {
		p.Display.Mode = VideoModeNTSC
	}
	p.Display.Depth = DisplayDepth15Bit
	if word&0x10 != 0 {
		p.Display.Depth = DisplayDepth24Bit
	}
	p.Display.Interlaced = word&0x20 != 0
	p.Display.AllowVRAM368Wide = word&0x40 != 0
}

// Status returns the GPUSTAT value (spec §6).
func (p *Parser) Status() uint32 {
	var r uint32
	r |= uint32(p.Env.Page.BaseX / 64)
	r |= uint32(p.Env.Page.BaseY/256) << 4
	r |= uint32(p.Env.SemiTransparency) << 5
	r |= uint32(p.Env.Page.Depth) << 7
	r |= oneIf(p.Env.Dithering) << 9
	r |= oneIf(p.Env.DrawToDisplay) << 10
	r |= oneIf(p.Env.ForceSetMaskBit) << 11
	r |= oneIf(p.Env.PreserveMaskedPixels) << 12
	r |= uint32(p.Display.Field) << 13
	r |= oneIf(p.Env.TextureDisable) << 15
	r |= p.Display.HRes.IntoStatus()
	r |= uint32(p.Display.VRes) << 19
	r |= uint32(p.Display.Mode) << 20
	r |= uint32(p.Display.Depth) << 21
	r |= oneIf(p.Display.Interlaced) << 22
	r |= oneIf(p.Display.Disabled) << 23
	r |= oneIf(p.irqLine) << 24
	r |= 1 << 26 // ready to receive command
	r |= 1 << 27 // ready to send VRAM to CPU
	r |= 1 << 28 // ready to receive DMA block
	r |= uint32(p.Display.DMADirection) << 29
	return r
}

func oneIf(b bool) uint32 {
	if b {
		return 1
	}
	return 0
}

// Package gpu implements the GP0/GP1 command parser and drawing
// environment for the PS1 GPU: the state machine that turns a stream of
// 32-bit words from the CPU into typed CommandRecords for the ring
// queue, plus the environment registers (texture page, texture window,
// drawing area/offset, mask bits) those commands read and mutate.
package gpu

// TextureDepth is the colour mode of a texture page.
type TextureDepth uint8

const (
	TextureDepth4BPP      TextureDepth = 0 // 4 bits per pixel, CLUT
	TextureDepth8BPP      TextureDepth = 1 // 8 bits per pixel, CLUT
	TextureDepth15BPP     TextureDepth = 2 // 16 bits per pixel, direct
	textureDepthReserved3 TextureDepth = 3 // decoded as an alias for 4bpp
)

// SemiTransparencyMode selects one of the four hardware blend modes.
type SemiTransparencyMode uint8

const (
	STHalfBackHalfFront SemiTransparencyMode = 0 // ½B + ½F
	STBackPlusFront     SemiTransparencyMode = 1 // B + F
	STBackMinusFront    SemiTransparencyMode = 2 // B − F
	STBackPlusQuarter   SemiTransparencyMode = 3 // B + ¼F
)

// Field identifies the currently displayed interlace field.
type Field uint8

const (
	FieldBottom Field = 0 // even lines
	FieldTop    Field = 1 // odd lines
)

// TexturePage describes the 64x256 VRAM region a primitive samples.
type TexturePage struct {
	BaseX uint16 // in pixels, a multiple of 64
	BaseY uint16 // in pixels, 0 or 256
	Depth TextureDepth
}

// TextureWindow is the per-axis AND/OR mask applied to incoming U,V
// before the texel fetch: (uv & and) | or.
type TextureWindow struct {
	MaskX, MaskY uint8 // 5-bit AND mask, in 8px steps
	OffX, OffY   uint8 // 5-bit OR offset, in 8px steps
}

// ApplyU masks and offsets a single U coordinate.
func (w TextureWindow) ApplyU(u uint8) uint8 {
	and := ^(w.MaskX * 8) & 0xff
	or := (w.OffX & w.MaskX) * 8
	return (u & and) | or
}

func (w TextureWindow) ApplyV(v uint8) uint8 {
	and := ^(w.MaskY * 8) & 0xff
	or := (w.OffY & w.MaskY) * 8
	return (v & and) | or
}

// Rect is an inclusive VRAM rectangle (left,top,right,bottom).
type Rect struct {
	Left, Top, Right, Bottom int32
}

// Contains reports whether (x,y) lies within the inclusive rectangle.
func (r Rect) Contains(x, y int32) bool {
	return x >= r.Left && x <= r.Right && y >= r.Top && y <= r.Bottom
}

// MaskSettings carries the mask-bit behaviour active when a command is
// submitted; snapshotted into every CommandRecord per spec §4.1.
type MaskSettings struct {
	SetMaskWhileDrawing bool
	CheckMaskBeforeDraw bool
	InterlacedRendering bool
	ActiveLineLSB       uint8 // 0 or 1
}

// MaskAnd is the bit pattern an existing pixel must clear for the write
// to be permitted (invariant 2 in spec §3).
func (m MaskSettings) MaskAnd() uint16 {
	if m.CheckMaskBeforeDraw {
		return 0x8000
	}
	return 0
}

// MaskOr is the bit ORed into every pixel this command writes.
func (m MaskSettings) MaskOr() uint16 {
	if m.SetMaskWhileDrawing {
		return 0x8000
	}
	return 0
}

// Environment is the full drawing-environment register set written by
// GP0(0xE1..0xE6). It is owned exclusively by the emulation thread.
type Environment struct {
	Page                  TexturePage
	SemiTransparency      SemiTransparencyMode
	Dithering             bool
	DrawToDisplay         bool
	TextureDisable        bool
	RectTextureXFlip      bool
	RectTextureYFlip      bool
	Window                TextureWindow
	DrawingArea           Rect
	DrawingOffsetX        int16
	DrawingOffsetY        int16
	ForceSetMaskBit       bool
	PreserveMaskedPixels  bool
	AllowVRAM368Wide      bool // not set by the parser; GP1(0x08) bit 6 is kept in DisplayState.AllowVRAM368Wide
}

// NewEnvironment returns the post soft-reset environment state.
func NewEnvironment() *Environment {
	return &Environment{Page: TexturePage{Depth: TextureDepth4BPP}}
}

// Reset restores GP1(0x00) soft-reset defaults.
func (e *Environment) Reset() {
	*e = Environment{Page: TexturePage{Depth: TextureDepth4BPP}}
}

// Mask returns the current MaskSettings sans field/interlace, which the
// Parser fills in per-command from display state at submission time.
func (e *Environment) Mask() MaskSettings {
	return MaskSettings{
		SetMaskWhileDrawing: e.ForceSetMaskBit,
		CheckMaskBeforeDraw: e.PreserveMaskedPixels,
	}
}

// GP0DrawMode handles GP0(0xE1): Draw Mode setting.
func (e *Environment) GP0DrawMode(val uint32) {
	e.Page.BaseX = uint16(val&0xf) * 64
	e.Page.BaseY = uint16((val>>4)&1) * 256
	e.SemiTransparency = SemiTransparencyMode((val >> 5) & 3)

	switch (val >> 7) & 3 {
	case 0:
		e.Page.Depth = TextureDepth4BPP
	case 1:
		e.Page.Depth = TextureDepth8BPP
	case 2:
		e.Page.Depth = TextureDepth15BPP
	default:
		// reserved value: hardware behaves as 4bpp (SPEC_FULL.md supplement 3)
		e.Page.Depth = TextureDepth4BPP
	}

	e.Dithering = (val>>9)&1 != 0
	e.DrawToDisplay = (val>>10)&1 != 0
	e.TextureDisable = (val>>11)&1 != 0
	e.RectTextureXFlip = (val>>12)&1 != 0
	e.RectTextureYFlip = (val>>13)&1 != 0
}

// GP0TextureWindow handles GP0(0xE2): Set Texture Window.
func (e *Environment) GP0TextureWindow(val uint32) {
	e.Window.MaskX = uint8(val & 0x1f)
	e.Window.MaskY = uint8((val >> 5) & 0x1f)
	e.Window.OffX = uint8((val >> 10) & 0x1f)
	e.Window.OffY = uint8((val >> 15) & 0x1f)
}

// GP0DrawingAreaTopLeft handles GP0(0xE3).
func (e *Environment) GP0DrawingAreaTopLeft(val uint32) {
	e.DrawingArea.Top = int32((val >> 10) & 0x3ff)
	e.DrawingArea.Left = int32(val & 0x3ff)
}

// GP0DrawingAreaBottomRight handles GP0(0xE4).
func (e *Environment) GP0DrawingAreaBottomRight(val uint32) {
	e.DrawingArea.Bottom = int32((val >> 10) & 0x3ff)
	e.DrawingArea.Right = int32(val & 0x3ff)
}

// GP0DrawingOffset handles GP0(0xE5). Values are signed 11-bit
// two's-complement; shifting into the top of a 16-bit word forces sign
// extension on the arithmetic right shift.
func (e *Environment) GP0DrawingOffset(val uint32) {
	x := uint16(val & 0x7ff)
	y := uint16((val >> 11) & 0x7ff)
	e.DrawingOffsetX = int16(x<<5) >> 5
	e.DrawingOffsetY = int16(y<<5) >> 5
}

// GP0MaskBitSetting handles GP0(0xE6).
func (e *Environment) GP0MaskBitSetting(val uint32) {
	e.ForceSetMaskBit = val&1 != 0
	e.PreserveMaskedPixels = val&2 != 0
}

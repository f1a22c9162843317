package gpu

// HorizontalRes is the video output horizontal resolution selector
// (hr1, hr2 packed together as the hardware does).
type HorizontalRes uint8

// HResFromFields builds a HorizontalRes from the 2-bit hr1 and 1-bit
// hr2 fields of GP1(0x08).
func HResFromFields(hr1, hr2 uint8) HorizontalRes {
	return HorizontalRes((hr2 & 1) | ((hr1 & 3) << 1))
}

// IntoStatus returns this field's contribution to the status word.
func (hr HorizontalRes) IntoStatus() uint32 { return uint32(hr) << 16 }

// VerticalRes is the video output vertical resolution.
type VerticalRes uint8

const (
	VRes240Lines VerticalRes = 0
	VRes480Lines VerticalRes = 1 // only valid with interlaced output
)

// VideoMode selects NTSC or PAL timing.
type VideoMode uint8

const (
	VideoModeNTSC VideoMode = 0
	VideoModePAL  VideoMode = 1
)

// DisplayDepth is the colour depth of the displayed framebuffer.
type DisplayDepth uint8

const (
	DisplayDepth15Bit DisplayDepth = 0
	DisplayDepth24Bit DisplayDepth = 1
)

// DMADirection is the requested DMA transfer direction (GP1(0x04)).
type DMADirection uint8

const (
	DMAOff      DMADirection = 0
	DMAFIFO     DMADirection = 1
	DMACPUToGP0 DMADirection = 2
	DMAVRAMToCPU DMADirection = 3
)

// DisplayState is the GP1-controlled display geometry and video mode,
// separate from the drawing Environment because it is read back
// through the status word and changes on a different cadence (vblank,
// not per-primitive).
type DisplayState struct {
	VRamXStart, VRamYStart   uint16
	HorizStart, HorizEnd     uint16
	LineStart, LineEnd       uint16
	HRes                     HorizontalRes
	VRes                     VerticalRes
	Mode                     VideoMode
	Depth                    DisplayDepth
	Interlaced               bool
	Disabled                 bool
	DMADirection             DMADirection
	Field                    Field
	AllowVRAM368Wide         bool
}

// NewDisplayState returns the post soft-reset display state.
func NewDisplayState() *DisplayState {
	return &DisplayState{
		Mode:       VideoModeNTSC,
		Depth:      DisplayDepth15Bit,
		Disabled:   true,
		HorizStart: 0x200,
		HorizEnd:   0xc00,
		LineStart:  0x10,
		LineEnd:    0x100,
		Interlaced: true,
	}
}

// Reset restores GP1(0x00) soft-reset defaults.
func (d *DisplayState) Reset() { *d = *NewDisplayState() }

package gpu

// CommandKind tags the variant held by a CommandRecord. Kept as a
// small enum rather than the source's 256-entry function-pointer
// table per spec §9 ("Dynamic dispatch on commands").
type CommandKind uint8

const (
	CmdReset CommandKind = iota
	CmdFillVram
	CmdUpdateVram
	CmdCopyVram
	CmdReadVramAck
	CmdSetDrawingArea
	CmdDrawPolygon
	CmdDrawPrecisePolygon
	CmdDrawSprite
	CmdDrawLine
	CmdUpdateDisplay
	CmdClearDisplay
	CmdChangeBackend
	CmdUpdateVsync
	CmdAsyncCall
)

// RenderCommand holds the primitive flags decoded from a polygon, line
// or sprite opcode: vertex count, shading, texturing, transparency and
// polyline.
type RenderCommand struct {
	Quad         bool // polygon has 4 vertices instead of 3
	Shaded       bool // per-vertex color (gouraud) rather than flat
	Textured     bool
	RawTexture   bool // skip color modulation, use texel verbatim
	Transparent  bool // semi-transparency enabled for this primitive
	Polyline     bool // line command accumulates until terminator
}

// FillParams describes a FillVram command: a quick VRAM rectangle
// clear that honours the interlace skip rule but not masking.
type FillParams struct {
	X, Y, W, H uint32
	Color      Color
}

// TransferParams describes a CPU<->VRAM or VRAM<->VRAM rectangle
// transfer, already wrapped to VRAM bounds (spec §3 invariant 4 /
// edge cases in §4.1).
type TransferParams struct {
	X, Y, W, H uint32
}

// CommandRecord is a single self-describing unit traveling through the
// ring queue from the emulation thread to the GPU worker thread. Only
// the fields relevant to Kind are populated; this mirrors the
// source's per-command payload union (gpu_commands.cpp) but as a Go
// struct with a discriminant rather than a C++ variant, since every
// record is small and short-lived (no benefit from separate types that
// would need their own queue framing).
type CommandRecord struct {
	Kind CommandKind

	Fill     FillParams
	Transfer TransferParams
	Pixels   []uint16 // inline payload for UpdateVram

	CopySrcX, CopySrcY uint32 // CopyVram source origin

	DrawingArea Rect

	RC       RenderCommand
	DrawMode TexturePage
	Palette  Vec2 // CLUT base position in VRAM
	Window   TextureWindow
	Semi     SemiTransparencyMode // snapshotted from Environment.SemiTransparency
	Vertices []Vertex

	Sprite SpriteParams

	Mask MaskSettings

	Display  DisplayUpdate
	Backend  BackendKind
	Vsync    bool

	AsyncOp    AsyncOpKind
	AsyncParam uint64
}

// AsyncOpKind enumerates the settings changes spec §5 describes as
// "marshalled as AsyncCall records". Unlike the source's closure-based
// marshalling, a ring record is a byte blob with no function pointers,
// so settings changes carry a small opcode and a scalar parameter
// instead of an arbitrary callback.
type AsyncOpKind uint8

const (
	AsyncSetMaxFPS AsyncOpKind = iota
	AsyncSetLogSeverity

	// AsyncBarrier carries no setting; the worker intercepts it like any
	// other AsyncCall and applies nothing, making it a pure ring-drain
	// barrier for callers that need PushAndSync without a side effect
	// (gpu.Parser.SyncRead's ReadVram synchronization).
	AsyncBarrier
)

// SpriteParams describes an axis-aligned textured rectangle (GP0
// 0x60..0x7F).
type SpriteParams struct {
	Pos      Vec2
	W, H     int32
	TexCoord TexCoord
	Color    Color
}

// DisplayUpdate carries the GP1-derived display geometry a frame is
// presented with.
type DisplayUpdate struct {
	VRamX, VRamY     uint16
	Width, Height    uint16
	HorizStart, HorizEnd uint16
	LineStart, LineEnd   uint16
	Depth24Bit       bool
	Interlaced       bool
	Field            Field
}

// BackendKind selects which GPUBackend implementation is active.
type BackendKind uint8

const (
	BackendSoftware BackendKind = iota
	BackendHardware
)

// Package device defines the GpuDevice capability set: the narrow
// surface the hardware backend uses to talk to a real graphics API,
// plus a concrete implementation built on ebiten.Image.
package device

import "context"

// TextureFormat enumerates the pixel layouts GpuDevice textures may
// take (spec §6).
type TextureFormat uint8

const (
	FormatRGBA8 TextureFormat = iota
	FormatBGRA8
	FormatRGB565
	FormatRGBA5551
	FormatR8
	FormatR16U
	FormatD16
)

// TextureUsage enumerates the five texture kinds named in spec §6.
type TextureUsage uint8

const (
	UsageTexture TextureUsage = iota
	UsageRenderTarget
	UsageDepthStencil
	UsageDynamic
	UsageRW
)

// TextureDesc describes a texture to be created via Device.CreateTexture.
type TextureDesc struct {
	Width, Height int
	Format        TextureFormat
	Usage         TextureUsage
	Samples       int
}

// Texture is an opaque handle to device-side image memory.
type Texture interface {
	Width() int
	Height() int
	Format() TextureFormat
}

// BlendMode picks one of the four hardware semi-transparency paths a
// pipeline encodes, or none for opaque draws (spec §4.4).
type BlendMode uint8

const (
	BlendNone BlendMode = iota
	BlendHalfAdd
	BlendAdd
	BlendSubtract
	BlendQuarterAdd
)

// PipelineDesc mirrors the device-agnostic pipeline record of spec §6:
// "{layout, input_layout, rasterization, depth, blend, vertex_shader,
// fragment_shader, target_formats, samples}".
type PipelineDesc struct {
	DepthTest        bool
	DepthWriteGE     bool // depth_test = greater_equal, for mask-check emulation
	Blend            BlendMode
	Dither           bool
	Interlace        bool
	TextureMode      int // 0=none,4bpp,8bpp,16bpp
	TargetFormats    []TextureFormat
	Samples          int
	VertexShaderSrc  string
	FragmentShaderSrc string
}

// Pipeline is an opaque compiled draw pipeline.
type Pipeline interface {
	Key() PipelineKey
}

// PipelineKey is the cache key spec §4.4 describes: "(depth_test,
// render_mode, texture_mode, transparency_mode, dither, interlace)".
type PipelineKey struct {
	DepthTest     bool
	RenderMode    int
	TextureMode   int
	Transparency  BlendMode
	Dither        bool
	Interlace     bool
}

// Vertex is the compact per-vertex draw record of spec §4.4:
// "{pos(x,y,z,w), rgba8, texpage, u, v, uv_limits}".
type Vertex struct {
	X, Y, Z, W     float32
	R, G, B, A     uint8
	TexPage        uint16
	U, V           uint8
	UVMin, UVMax   [2]uint8
}

// UniformBuffer is a small (<=128 byte) push-constant-style payload,
// or a larger bound buffer (spec §6 "push a uniform buffer ... and
// bind larger UBOs").
type UniformBuffer []byte

// Features reports capability bits a hardware backend probes before
// choosing a semi-transparency path or filter (spec §6).
type Features struct {
	DualSourceBlend         bool
	FramebufferFetch        bool
	GeometryShaders         bool
	NoPerspectiveInterp     bool
	TextureBuffers          bool
	TextureBuffersAsSSBO    bool
	PartialMSAAResolve      bool
}

// Device is the GpuDevice abstraction of spec §6: "capability set, not
// a class". Exactly one goroutine (the worker) may call into it
// (spec §5).
type Device interface {
	Features() Features

	CreateTexture(desc TextureDesc) (Texture, error)
	DestroyTexture(t Texture)
	UploadTexture(t Texture, x, y, w, h int, pixels []byte) error
	DownloadTexture(ctx context.Context, t Texture, x, y, w, h int, into []byte) error
	CopyTexture(src Texture, sx, sy int, dst Texture, dx, dy, w, h int) error
	ResolveTexture(src, dst Texture) error

	CreatePipeline(desc PipelineDesc) (Pipeline, error)

	SetRenderTargets(color []Texture, depth Texture)
	SetViewport(x, y, w, h int)
	SetScissor(x, y, w, h int)

	MapVertexStream(n int) (buf []Vertex, baseOffset int)
	PushUniform(u UniformBuffer)
	BindUniformBuffer(slot int, u UniformBuffer)
	BindTexture(slot int, t Texture)

	Draw(pipeline Pipeline, vertexOffset, vertexCount int) error

	BeginPresent() error
	EndPresent(vsync bool, maxFPS int) error

	Close() error
}

// ErrDeviceLost is returned by Draw/EndPresent when the underlying API
// reports context/device loss (spec §7 DeviceLost).
var ErrDeviceLost = deviceError("device lost")

// ErrPipelineCompile wraps shader/pipeline compilation failure
// (spec §7 PipelineCompile).
type ErrPipelineCompile struct{ Reason string }

func (e *ErrPipelineCompile) Error() string { return "pipeline compile failed: " + e.Reason }

type deviceError string

func (e deviceError) Error() string { return string(e) }

package device

import (
	"context"
	"fmt"
	"image"
	"image/color"

	"github.com/hajimehoshi/ebiten/v2"
)

// ebitenTexture adapts an *ebiten.Image to the Texture interface.
type ebitenTexture struct {
	img    *ebiten.Image
	format TextureFormat
}

func (t *ebitenTexture) Width() int          { return t.img.Bounds().Dx() }
func (t *ebitenTexture) Height() int         { return t.img.Bounds().Dy() }
func (t *ebitenTexture) Format() TextureFormat { return t.format }

// ebitenPipeline has no real GPU-side compiled state; ebiten picks its
// draw mode from DrawTrianglesOptions at Draw time, so the pipeline is
// just a cache key plus the resolved blend mode.
type ebitenPipeline struct {
	key   PipelineKey
	blend ebiten.Blend
}

func (p *ebitenPipeline) Key() PipelineKey { return p.key }

// EbitenDevice implements Device on top of ebiten.Image render
// targets and DrawTriangles: a single empty white 2x2 image used as
// the default "no texture" source, and per-vertex color/position
// fields fed straight into ebiten.Vertex.
type EbitenDevice struct {
	targets []*ebitenTexture
	depth   *ebitenTexture
	white   *ebiten.Image

	vtxScratch []Vertex
	uniform    UniformBuffer
	boundTex   map[int]*ebitenTexture

	viewport struct{ x, y, w, h int }
	scissor  struct{ x, y, w, h int }
}

// NewEbitenDevice constructs a Device with no render target bound;
// targets are bound with SetRenderTargets. hwbackend creates its own
// VRAM-sized target via CreateTexture.
func NewEbitenDevice() *EbitenDevice {
	white := ebiten.NewImage(2, 2)
	white.Fill(color.RGBA{255, 255, 255, 255})
	return &EbitenDevice{
		white:    white,
		boundTex: make(map[int]*ebitenTexture),
	}
}

func (d *EbitenDevice) Features() Features {
	return Features{
		DualSourceBlend:      false,
		FramebufferFetch:     false,
		GeometryShaders:      false,
		NoPerspectiveInterp:  true,
		TextureBuffers:       false,
		TextureBuffersAsSSBO: false,
		PartialMSAAResolve:   false,
	}
}

func (d *EbitenDevice) CreateTexture(desc TextureDesc) (Texture, error) {
	if desc.Width <= 0 || desc.Height <= 0 {
		return nil, fmt.Errorf("device: invalid texture size %dx%d", desc.Width, desc.Height)
	}
	img := ebiten.NewImage(desc.Width, desc.Height)
	return &ebitenTexture{img: img, format: desc.Format}, nil
}

func (d *EbitenDevice) DestroyTexture(t Texture) {
	if et, ok := t.(*ebitenTexture); ok {
		et.img.Deallocate()
	}
}

// UploadTexture writes raw RGBA8 pixels into the texture sub-region.
// Callers (the hwbackend CPU->VRAM path) are responsible for
// converting from 15-bit VRAM format to RGBA8 beforehand; ebiten has
// no native 5551 upload path.
func (d *EbitenDevice) UploadTexture(t Texture, x, y, w, h int, pixels []byte) error {
	et, ok := t.(*ebitenTexture)
	if !ok {
		return fmt.Errorf("device: foreign texture handle")
	}
	if len(pixels) < w*h*4 {
		return fmt.Errorf("device: short pixel buffer, want %d got %d", w*h*4, len(pixels))
	}
	region := image.NewRGBA(image.Rect(0, 0, w, h))
	copy(region.Pix, pixels[:w*h*4])
	et.img.SubImage(image.Rect(x, y, x+w, y+h)).(*ebiten.Image).WritePixels(region.Pix)
	return nil
}

func (d *EbitenDevice) DownloadTexture(ctx context.Context, t Texture, x, y, w, h int, into []byte) error {
	et, ok := t.(*ebitenTexture)
	if !ok {
		return fmt.Errorf("device: foreign texture handle")
	}
	select {
	case <-ctx.Done():
		return ctx.Err()
	default:
	}
	sub := et.img.SubImage(image.Rect(x, y, x+w, y+h)).(*ebiten.Image)
	buf := make([]byte, w*h*4)
	sub.ReadPixels(buf)
	copy(into, buf)
	return nil
}

func (d *EbitenDevice) CopyTexture(src Texture, sx, sy int, dst Texture, dx, dy, w, h int) error {
	s, ok := src.(*ebitenTexture)
	if !ok {
		return fmt.Errorf("device: foreign src texture")
	}
	dstT, ok := dst.(*ebitenTexture)
	if !ok {
		return fmt.Errorf("device: foreign dst texture")
	}
	op := &ebiten.DrawImageOptions{}
	op.GeoM.Translate(float64(dx-sx), float64(dy-sy))
	sub := s.img.SubImage(image.Rect(sx, sy, sx+w, sy+h)).(*ebiten.Image)
	dstT.img.DrawImage(sub, op)
	return nil
}

func (d *EbitenDevice) ResolveTexture(src, dst Texture) error {
	return d.CopyTexture(src, 0, 0, dst, 0, 0, src.Width(), src.Height())
}

func (d *EbitenDevice) CreatePipeline(desc PipelineDesc) (Pipeline, error) {
	key := PipelineKey{
		DepthTest:    desc.DepthTest,
		TextureMode:  desc.TextureMode,
		Transparency: desc.Blend,
		Dither:       desc.Dither,
		Interlace:    desc.Interlace,
	}
	blend := ebiten.Blend{
		BlendFactorSourceRGB:        ebiten.BlendFactorOne,
		BlendFactorDestinationRGB:   ebiten.BlendFactorZero,
		BlendOperationRGB:           ebiten.BlendOperationAdd,
		BlendFactorSourceAlpha:      ebiten.BlendFactorOne,
		BlendFactorDestinationAlpha: ebiten.BlendFactorZero,
		BlendOperationAlpha:         ebiten.BlendOperationAdd,
	}
	switch desc.Blend {
	case BlendAdd, BlendHalfAdd, BlendQuarterAdd:
		blend.BlendFactorDestinationRGB = ebiten.BlendFactorOne
	case BlendSubtract:
		blend.BlendFactorDestinationRGB = ebiten.BlendFactorOne
		blend.BlendOperationRGB = ebiten.BlendOperationReverseSubtract
	}
	return &ebitenPipeline{key: key, blend: blend}, nil
}

func (d *EbitenDevice) SetRenderTargets(color []Texture, depth Texture) {
	d.targets = d.targets[:0]
	for _, c := range color {
		if et, ok := c.(*ebitenTexture); ok {
			d.targets = append(d.targets, et)
		}
	}
	if et, ok := depth.(*ebitenTexture); ok {
		d.depth = et
	} else {
		d.depth = nil
	}
}

func (d *EbitenDevice) SetViewport(x, y, w, h int) { d.viewport = struct{ x, y, w, h int }{x, y, w, h} }
func (d *EbitenDevice) SetScissor(x, y, w, h int)  { d.scissor = struct{ x, y, w, h int }{x, y, w, h} }

func (d *EbitenDevice) MapVertexStream(n int) ([]Vertex, int) {
	base := len(d.vtxScratch)
	d.vtxScratch = append(d.vtxScratch, make([]Vertex, n)...)
	return d.vtxScratch[base : base+n], base
}

func (d *EbitenDevice) PushUniform(u UniformBuffer)              { d.uniform = u }
func (d *EbitenDevice) BindUniformBuffer(slot int, u UniformBuffer) { d.uniform = u }
func (d *EbitenDevice) BindTexture(slot int, t Texture) {
	if et, ok := t.(*ebitenTexture); ok {
		d.boundTex[slot] = et
	} else {
		delete(d.boundTex, slot)
	}
}

// Draw converts the mapped vertex run to ebiten.Vertex/indices and
// issues a single DrawTriangles call.
func (d *EbitenDevice) Draw(pipeline Pipeline, vertexOffset, vertexCount int) error {
	if len(d.targets) == 0 {
		return fmt.Errorf("device: draw with no render target bound")
	}
	p, ok := pipeline.(*ebitenPipeline)
	if !ok {
		return fmt.Errorf("device: foreign pipeline handle")
	}
	src := d.white
	if t, ok := d.boundTex[0]; ok {
		src = t.img
	}

	verts := d.vtxScratch[vertexOffset : vertexOffset+vertexCount]
	vertices := make([]ebiten.Vertex, vertexCount)
	indices := make([]uint16, vertexCount)
	for i, v := range verts {
		vertices[i] = ebiten.Vertex{
			DstX:   v.X,
			DstY:   v.Y,
			SrcX:   float32(v.U),
			SrcY:   float32(v.V),
			ColorR: float32(v.R) / 255,
			ColorG: float32(v.G) / 255,
			ColorB: float32(v.B) / 255,
			ColorA: float32(v.A) / 255,
		}
		indices[i] = uint16(i)
	}

	op := &ebiten.DrawTrianglesOptions{Blend: p.blend}
	d.targets[0].img.DrawTriangles(vertices, indices, src, op)
	return nil
}

// Presented returns the image bound to texture slot 0 at the most
// recent BindTexture call, the convention both backends use to hand
// their final frame to EndPresent. Intended for a host ebiten.Game's
// own Draw callback, outside the Device interface proper since
// spec §6 only requires presentation, not frame retrieval.
func (d *EbitenDevice) Presented() *ebiten.Image {
	if t, ok := d.boundTex[0]; ok {
		return t.img
	}
	return d.white
}

func (d *EbitenDevice) BeginPresent() error {
	d.vtxScratch = d.vtxScratch[:0]
	return nil
}

func (d *EbitenDevice) EndPresent(vsync bool, maxFPS int) error {
	if maxFPS > 0 {
		ebiten.SetTPS(maxFPS)
	}
	ebiten.SetVsyncEnabled(vsync)
	return nil
}

func (d *EbitenDevice) Close() error {
	for _, t := range d.targets {
		t.img.Deallocate()
	}
	if d.depth != nil {
		d.depth.img.Deallocate()
	}
	d.white.Deallocate()
	return nil
}

package hwbackend

import (
	"context"
	"fmt"

	"github.com/zeozeozeo/psxgpu/device"
)

// fakeTexture is an in-memory RGBA8 buffer standing in for a real GPU
// texture, letting the package tests exercise Backend/transfers without
// an ebiten/GL context.
type fakeTexture struct {
	w, h   int
	format device.TextureFormat
	pix    []byte
}

func (t *fakeTexture) Width() int                    { return t.w }
func (t *fakeTexture) Height() int                   { return t.h }
func (t *fakeTexture) Format() device.TextureFormat  { return t.format }

func (t *fakeTexture) at(x, y int) int { return (y*t.w + x) * 4 }

type fakePipeline struct{ key device.PipelineKey }

func (p *fakePipeline) Key() device.PipelineKey { return p.key }

// fakeDevice implements device.Device entirely in terms of Go slices,
// enough to drive batch/transfers/backend logic under `testing`.
type fakeDevice struct {
	targets []*fakeTexture
	bound   map[int]*fakeTexture
	scratch []device.Vertex
	draws   int
}

func newFakeDevice() *fakeDevice {
	return &fakeDevice{bound: make(map[int]*fakeTexture)}
}

func (d *fakeDevice) Features() device.Features { return device.Features{} }

func (d *fakeDevice) CreateTexture(desc device.TextureDesc) (device.Texture, error) {
	if desc.Width <= 0 || desc.Height <= 0 {
		return nil, fmt.Errorf("fakedevice: bad size")
	}
	return &fakeTexture{w: desc.Width, h: desc.Height, format: desc.Format, pix: make([]byte, desc.Width*desc.Height*4)}, nil
}

func (d *fakeDevice) DestroyTexture(t device.Texture) {}

func (d *fakeDevice) UploadTexture(t device.Texture, x, y, w, h int, pixels []byte) error {
	ft := t.(*fakeTexture)
	for row := 0; row < h; row++ {
		srcOff := row * w * 4
		dst := ft.at(x, y+row)
		copy(ft.pix[dst:dst+w*4], pixels[srcOff:srcOff+w*4])
	}
	return nil
}

func (d *fakeDevice) DownloadTexture(ctx context.Context, t device.Texture, x, y, w, h int, into []byte) error {
	ft := t.(*fakeTexture)
	for row := 0; row < h; row++ {
		src := ft.at(x, y+row)
		dstOff := row * w * 4
		copy(into[dstOff:dstOff+w*4], ft.pix[src:src+w*4])
	}
	return nil
}

func (d *fakeDevice) CopyTexture(src device.Texture, sx, sy int, dst device.Texture, dx, dy, w, h int) error {
	s, dd := src.(*fakeTexture), dst.(*fakeTexture)
	for row := 0; row < h; row++ {
		so := s.at(sx, sy+row)
		doo := dd.at(dx, dy+row)
		copy(dd.pix[doo:doo+w*4], s.pix[so:so+w*4])
	}
	return nil
}

func (d *fakeDevice) ResolveTexture(src, dst device.Texture) error {
	s := src.(*fakeTexture)
	return d.CopyTexture(src, 0, 0, dst, 0, 0, s.w, s.h)
}

func (d *fakeDevice) CreatePipeline(desc device.PipelineDesc) (device.Pipeline, error) {
	return &fakePipeline{key: device.PipelineKey{
		DepthTest: desc.DepthTest, Transparency: desc.Blend, Dither: desc.Dither,
	}}, nil
}

func (d *fakeDevice) SetRenderTargets(color []device.Texture, depth device.Texture) {
	d.targets = d.targets[:0]
	for _, c := range color {
		d.targets = append(d.targets, c.(*fakeTexture))
	}
}

func (d *fakeDevice) SetViewport(x, y, w, h int) {}
func (d *fakeDevice) SetScissor(x, y, w, h int)  {}

func (d *fakeDevice) MapVertexStream(n int) ([]device.Vertex, int) {
	base := len(d.scratch)
	d.scratch = append(d.scratch, make([]device.Vertex, n)...)
	return d.scratch[base : base+n], base
}

func (d *fakeDevice) PushUniform(u device.UniformBuffer)              {}
func (d *fakeDevice) BindUniformBuffer(slot int, u device.UniformBuffer) {}
func (d *fakeDevice) BindTexture(slot int, t device.Texture)          { d.bound[slot] = t.(*fakeTexture) }

func (d *fakeDevice) Draw(pipeline device.Pipeline, vertexOffset, vertexCount int) error {
	d.draws++
	return nil
}

func (d *fakeDevice) BeginPresent() error             { d.scratch = d.scratch[:0]; return nil }
func (d *fakeDevice) EndPresent(vsync bool, maxFPS int) error { return nil }
func (d *fakeDevice) Close() error                    { return nil }

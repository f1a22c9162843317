// Package hwbackend implements the hardware rasterizer of spec §4.4:
// a scale-S render-target pipeline built on the device.Device
// capability set, with vertex batching and a dirty-rectangle
// texture-page cache. Each batch is one Draw whose pipeline carries the
// blend mode; there is a single semi-transparency path (no dual-source
// or framebuffer-fetch variant), and vertices carry Z = 0, so depth
// does not encode the mask bit.
package hwbackend

import "github.com/zeozeozeo/psxgpu/device"

// batchKey is the set of state a batch flush is sensitive to (spec
// §4.4 "Draw batching": "flushed whenever texpage, transparency mode,
// dither, mask settings, texture window, or scissor changes").
type batchKey struct {
	texPage      uint16
	transparency device.BlendMode
	dither       bool
	maskCheck    bool
	maskSet      bool
	window       [4]uint8
	scissor      [4]int
}

// batch accumulates same-key vertices until a key change, a dirty
// texture page, or an explicit flush forces them out as one draw call.
type batch struct {
	key   batchKey
	pipe  device.Pipeline
	valid bool
	verts []device.Vertex
}

func newBatch() *batch { return &batch{} }

// append adds vertices to the open batch, flushing the previously
// accumulated run first if key differs.
func (b *batch) append(dev device.Device, key batchKey, pipe device.Pipeline, verts []device.Vertex) error {
	if b.valid && key != b.key {
		if err := b.flush(dev); err != nil {
			return err
		}
	}
	b.key = key
	b.pipe = pipe
	b.valid = true
	b.verts = append(b.verts, verts...)
	return nil
}

// flush issues one Draw for everything accumulated so far and resets
// the batch, matching spec §4.4's "appended ... and emitted in
// homogeneous runs".
func (b *batch) flush(dev device.Device) error {
	if !b.valid || len(b.verts) == 0 {
		b.verts = b.verts[:0]
		b.valid = false
		return nil
	}
	dst, base := dev.MapVertexStream(len(b.verts))
	copy(dst, b.verts)
	err := dev.Draw(b.pipe, base, len(b.verts))
	b.verts = b.verts[:0]
	b.valid = false
	return err
}

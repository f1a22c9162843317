// Package ring implements the single-producer/single-consumer,
// byte-granular command queue that carries gpu.CommandRecords from the
// emulation thread to the GPU worker thread (spec §4.2).
package ring

import (
	"context"
	"encoding/binary"
	"errors"
	"runtime"
	"sync/atomic"

	"golang.org/x/sync/semaphore"
)

// ErrFull is returned by Push when ctx is cancelled while it waits for
// room; spec §7 QueueAllocation, fatal to the caller.
var ErrFull = errors.New("ring: queue allocation failure, no room for record")

const headerSize = 8 // {tag uint32, size uint32}

// tagWraparound is the distinguished tombstone record that consumes
// the remainder of the buffer when a write would otherwise split
// across the wrap boundary (spec §4.2).
const tagWraparound uint32 = 0xffffffff

// Ring is a fixed-capacity byte ring buffer. Exactly one goroutine may
// call the Push* methods and exactly one goroutine may call Pop; this
// is not enforced, only documented, matching the hardware-thread
// contract of spec §5.
type Ring struct {
	buf  []byte
	mask uint64 // len(buf)-1, buf length is a power of two

	writeIdx atomic.Uint64
	readIdx  atomic.Uint64

	// work is a buffered(1) edge-triggered wake signal: Push performs a
	// non-blocking send, WaitWork/Wake receive. A semaphore.Weighted
	// can't model this (Release requires a matching prior Acquire, and
	// here the producer posts with no Acquire of its own), so this one
	// signal uses a channel while frameSem below, a true bounded
	// resource count, keeps using the semaphore package.
	work chan struct{}

	queuedFrames atomic.Int64
	frameCap     int64
	frameSem     *semaphore.Weighted // backpressure: blocks producer at the cap
}

// New returns a Ring with the given capacity (rounded up to a power of
// two) and queued-frame cap (spec §4.2 "queued frames limit").
func New(capacity int, queuedFrameCap int) *Ring {
	capacity = nextPow2(capacity)
	r := &Ring{
		buf:      make([]byte, capacity),
		mask:     uint64(capacity - 1),
		work:     make(chan struct{}, 1),
		frameCap: int64(queuedFrameCap),
		frameSem: semaphore.NewWeighted(int64(queuedFrameCap)),
	}
	return r
}

// signalWork performs a non-blocking post to work, coalescing with any
// already-pending signal (the reader only needs to know "there may be
// something to pop", not how many times it was posted).
func (r *Ring) signalWork() {
	select {
	case r.work <- struct{}{}:
	default:
	}
}

func nextPow2(n int) int {
	p := 1
	for p < n {
		p <<= 1
	}
	return p
}

func (r *Ring) free() uint64 {
	w := r.writeIdx.Load()
	rd := r.readIdx.Load()
	used := w - rd
	return uint64(len(r.buf)) - used
}

// contiguousFree returns the free span from the write cursor to the
// end of the underlying buffer, without wrapping.
func (r *Ring) contiguousFree() uint64 {
	w := r.writeIdx.Load() & r.mask
	return uint64(len(r.buf)) - w
}

func align4(n int) int { return (n + 3) &^ 3 }

// Push appends a record with the given tag and payload. It blocks
// (spinning briefly, matching spec §4.2's "the reader may spin-wait for
// very short synchronizations") until enough room exists, then returns
// ErrFull only if ctx is cancelled first.
func (r *Ring) Push(ctx context.Context, tag uint32, payload []byte) error {
	size := align4(headerSize + len(payload))
	for {
		if r.contiguousFree() < uint64(size) {
			if r.contiguousFree() < uint64(len(r.buf)) {
				// not enough room before wrap: only write the
				// tombstone if there IS a tail to consume and the
				// reader has caught up enough to allow it
				if err := r.writeWraparoundIfPossible(ctx); err != nil {
					return err
				}
				continue
			}
		}
		if r.free() >= uint64(size) {
			break
		}
		if err := r.waitRoom(ctx); err != nil {
			return err
		}
	}

	w := r.writeIdx.Load()
	off := w & r.mask
	var hdr [headerSize]byte
	binary.LittleEndian.PutUint32(hdr[0:4], tag)
	binary.LittleEndian.PutUint32(hdr[4:8], uint32(size))
	r.writeAt(off, hdr[:])
	r.writeAt((off+headerSize)&r.mask, payload)

	r.writeIdx.Store(w + uint64(size))
	r.signalWork()
	return nil
}

func (r *Ring) writeWraparoundIfPossible(ctx context.Context) error {
	tail := r.contiguousFree()
	if tail == 0 {
		return nil
	}
	if r.free() < tail {
		return r.waitRoom(ctx)
	}
	w := r.writeIdx.Load()
	off := w & r.mask
	var hdr [headerSize]byte
	binary.LittleEndian.PutUint32(hdr[0:4], tagWraparound)
	binary.LittleEndian.PutUint32(hdr[4:8], uint32(tail))
	r.writeAt(off, hdr[:])
	r.writeIdx.Store(w + tail)
	return nil
}

func (r *Ring) waitRoom(ctx context.Context) error {
	// No dedicated "room" signal is kept (the reader advances readIdx
	// without posting one); poll with a cooperative yield instead,
	// which is what "spin-wait for very short synchronizations" in
	// §4.2 describes in the small.
	select {
	case <-ctx.Done():
		return ErrFull
	default:
	}
	runtime.Gosched()
	return nil
}

func (r *Ring) writeAt(off uint64, data []byte) {
	n := copy(r.buf[off:], data)
	if n < len(data) {
		copy(r.buf[0:], data[n:])
	}
}

func (r *Ring) readAt(off uint64, n int) []byte {
	out := make([]byte, n)
	m := copy(out, r.buf[off:])
	if m < n {
		copy(out[m:], r.buf[0:])
	}
	return out
}

// Record is one decoded entry popped from the ring.
type Record struct {
	Tag     uint32
	Payload []byte
}

// Pop removes and returns the next record, or ok=false if the queue is
// empty. Wraparound tombstones are consumed transparently.
func (r *Ring) Pop() (rec Record, ok bool) {
	for {
		rd := r.readIdx.Load()
		w := r.writeIdx.Load()
		if rd == w {
			return Record{}, false
		}
		off := rd & r.mask
		hdr := r.readAt(off, headerSize)
		tag := binary.LittleEndian.Uint32(hdr[0:4])
		size := binary.LittleEndian.Uint32(hdr[4:8])

		if tag == tagWraparound {
			r.readIdx.Store(rd + uint64(size))
			continue
		}

		payload := r.readAt((off+headerSize)&r.mask, int(size)-headerSize)
		r.readIdx.Store(rd + uint64(size))
		return Record{Tag: tag, Payload: payload}, true
	}
}

// WaitWork blocks until a push has signaled new work, or ctx is
// cancelled. Signals posted before this call was reached are not
// lost: the channel buffer holds the most recent one.
func (r *Ring) WaitWork(ctx context.Context) error {
	select {
	case <-r.work:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Wake posts the work signal with no corresponding push, so a reader
// parked in WaitWork returns even though the queue may still be empty.
// Used by worker teardown to unblock the dispatch loop promptly
// instead of waiting on a producer that may never write again.
func (r *Ring) Wake() { r.signalWork() }

// PushAndSync pushes the record then blocks until the reader has
// drained the queue back to empty, implementing PushCommandAndSync
// (spec §4.2/§5 suspension point 3). It polls the read/write cursors
// directly rather than a semaphore signal, since a signal posted by an
// earlier, unrelated drain could otherwise be consumed here before the
// record just pushed has actually been processed.
func (r *Ring) PushAndSync(ctx context.Context, tag uint32, payload []byte) error {
	if err := r.Push(ctx, tag, payload); err != nil {
		return err
	}
	for r.readIdx.Load() != r.writeIdx.Load() {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}
		runtime.Gosched()
	}
	return nil
}

// BeginFrame must be called by the producer before enqueuing an
// UpdateDisplay record; it blocks once the queued-frame cap is reached
// (spec §4.2 "Frame backpressure").
func (r *Ring) BeginFrame(ctx context.Context) error {
	if err := r.frameSem.Acquire(ctx, 1); err != nil {
		return err
	}
	r.queuedFrames.Add(1)
	return nil
}

// EndFrame is called by the worker after presenting a frame, releasing
// one slot of the queued-frame cap.
func (r *Ring) EndFrame() {
	r.queuedFrames.Add(-1)
	r.frameSem.Release(1)
}

// QueuedFrames reports the current backpressure counter, for tests and
// diagnostics.
func (r *Ring) QueuedFrames() int64 { return r.queuedFrames.Load() }

// Package worker implements the GPU worker thread: the sole reader of
// the ring queue and sole owner of the device.Device handle. Teardown
// follows a flag-plus-done-channel pattern: stop() sets a flag, the
// loop observes it between dispatches, then closes a done channel the
// caller waits on.
package worker

import (
	"context"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/zeozeozeo/psxgpu/device"
	"github.com/zeozeozeo/psxgpu/gpu"
	"github.com/zeozeozeo/psxgpu/ring"
)

// Backend is the capability surface a rasterizer backend (software or
// hardware) exposes to the worker: decode and execute one
// gpu.CommandRecord, and present the current frame. vsync/maxFPS are
// passed in at present time rather than fixed at construction, so a
// queued UpdateVsync/AsyncSetMaxFPS record can change them without a
// backend swap.
type Backend interface {
	Dispatch(rec gpu.CommandRecord) error
	Present(dev device.Device, vsync bool, maxFPS int) error
	Close() error
}

// VramReader is implemented by backends able to service a synchronous
// VRAM->CPU readback against their own render target/shadow copy. The
// caller (gpu.Parser.SyncRead, wired by the host) must first drain the
// ring with Ring.PushAndSync so every queued write lands before this
// runs; Worker.ReadVram only reads, it does not wait itself.
type VramReader interface {
	ReadVram(ctx context.Context, t gpu.TransferParams) ([]uint16, error)
}

// BackendFactory builds a Backend bound to a freshly created device,
// used both at startup and by ChangeBackend.
type BackendFactory func(dev device.Device) (Backend, error)

// Config bundles the tunables the worker loop needs: idle-present
// polling cadence, the default max-FPS throttle, and the optional
// hooks a queued ChangeBackend/AsyncSetLogSeverity record exercises.
type Config struct {
	IdlePresentPollInterval time.Duration
	MaxFPS                  int
	Logger                  *slog.Logger

	// LevelVar, if set, lets a queued AsyncSetLogSeverity record adjust
	// the logger's minimum level at runtime.
	LevelVar *slog.LevelVar

	// DeviceFactories and BackendFactories let a queued ChangeBackend
	// record actually swap the active device/backend pair. A
	// BackendKind with no registered pair is logged and ignored rather
	// than treated as fatal.
	DeviceFactories  map[gpu.BackendKind]func() (device.Device, error)
	BackendFactories map[gpu.BackendKind]BackendFactory
}

// Worker owns the ring reader, the device.Device handle, and the
// active Backend. Exactly one goroutine should call Run.
type Worker struct {
	r       *ring.Ring
	dev     device.Device
	backend Backend
	cfg     Config

	stopping atomic.Bool
	done     chan struct{}

	idlePresent atomic.Bool
	vsync       atomic.Bool
	maxFPS      atomic.Int64
}

// New constructs a Worker over an already-created device and backend;
// ChangeBackend may swap both later.
func New(r *ring.Ring, dev device.Device, backend Backend, cfg Config) *Worker {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.IdlePresentPollInterval <= 0 {
		cfg.IdlePresentPollInterval = 4 * time.Millisecond
	}
	w := &Worker{
		r:       r,
		dev:     dev,
		backend: backend,
		cfg:     cfg,
		done:    make(chan struct{}),
	}
	w.vsync.Store(true)
	w.maxFPS.Store(int64(cfg.MaxFPS))
	return w
}

// SetIdlePresenting toggles whether the worker polls for work between
// presents instead of blocking on the empty queue (spec §5: "The
// worker thread blocks only on 'queue empty AND not in idle-present
// mode'").
func (w *Worker) SetIdlePresenting(v bool) { w.idlePresent.Store(v) }

// Run is the dispatch loop: pop records in FIFO order, dispatch each
// to the active backend, and present on an UpdateDisplay boundary.
// Run blocks until Stop is called and the queue has drained.
func (w *Worker) Run(ctx context.Context) {
	defer close(w.done)
	for {
		rec, ok := w.r.Pop()
		if !ok {
			if w.stopping.Load() {
				return
			}
			if w.idlePresent.Load() {
				w.pollPresent()
				continue
			}
			if err := w.r.WaitWork(ctx); err != nil {
				if w.stopping.Load() {
					w.drainRemaining()
					return
				}
				if ctx.Err() != nil {
					w.drainRemaining()
					return
				}
			}
			continue
		}
		w.dispatchBytes(rec)
	}
}

// drainRemaining implements the teardown contract of spec §4.2: "The
// worker drains pending records (with backend present) until the flag
// is observed and the queue empty, then destroys the backend and
// device."
func (w *Worker) drainRemaining() {
	for {
		rec, ok := w.r.Pop()
		if !ok {
			return
		}
		w.dispatchBytes(rec)
	}
}

// dispatchBytes decodes one queued record and routes it either to the
// worker-level settings it owns (vsync, backend swap, async settings)
// or down to the active rasterizer backend. The three worker-level
// kinds never reach Backend.Dispatch.
func (w *Worker) dispatchBytes(rec ring.Record) {
	cmd, isFrame, err := gpu.DecodeCommandRecord(rec.Tag, rec.Payload)
	if err != nil {
		w.cfg.Logger.Error("worker: malformed queued record", "err", err)
		return
	}

	switch cmd.Kind {
	case gpu.CmdUpdateVsync:
		w.vsync.Store(cmd.Vsync)
		return
	case gpu.CmdChangeBackend:
		if err := w.changeBackendTo(cmd.Backend); err != nil {
			w.cfg.Logger.Error("worker: change backend failed", "backend", cmd.Backend, "err", err)
		}
		return
	case gpu.CmdAsyncCall:
		w.dispatchAsync(cmd)
		return
	}

	if err := w.backend.Dispatch(cmd); err != nil {
		w.cfg.Logger.Error("worker: dispatch failed", "kind", cmd.Kind, "err", err)
	}
	if isFrame {
		if err := w.backend.Present(w.dev, w.vsync.Load(), int(w.maxFPS.Load())); err != nil {
			w.cfg.Logger.Error("worker: present failed", "err", err)
		}
		w.r.EndFrame()
	}
}

// dispatchAsync applies one of the settings changes spec §5 marshals
// as AsyncCall records.
func (w *Worker) dispatchAsync(cmd gpu.CommandRecord) {
	switch cmd.AsyncOp {
	case gpu.AsyncSetMaxFPS:
		w.maxFPS.Store(int64(cmd.AsyncParam))
	case gpu.AsyncSetLogSeverity:
		if w.cfg.LevelVar == nil {
			w.cfg.Logger.Warn("worker: log severity change requested with no LevelVar configured")
			return
		}
		w.cfg.LevelVar.Set(slog.Level(int64(cmd.AsyncParam)))
	}
}

// changeBackendTo looks up the device/backend factory pair registered
// for kind and performs the swap via ChangeBackend.
func (w *Worker) changeBackendTo(kind gpu.BackendKind) error {
	devFactory, ok := w.cfg.DeviceFactories[kind]
	if !ok {
		return fmt.Errorf("no device factory registered for backend kind %d", kind)
	}
	backendFactory, ok := w.cfg.BackendFactories[kind]
	if !ok {
		return fmt.Errorf("no backend factory registered for backend kind %d", kind)
	}
	newDev, err := devFactory()
	if err != nil {
		return fmt.Errorf("create device: %w", err)
	}
	return w.ChangeBackend(newDev, backendFactory)
}

func (w *Worker) pollPresent() {
	if err := w.backend.Present(w.dev, w.vsync.Load(), int(w.maxFPS.Load())); err != nil {
		w.cfg.Logger.Error("worker: idle present failed", "err", err)
	}
	time.Sleep(w.cfg.IdlePresentPollInterval)
}

// ReadVram services the synchronous ReadVram suspension point: the
// caller must have already drained the ring (Ring.PushAndSync) so
// every queued write has landed, and must call this only while the
// worker goroutine is idle between Pop calls (true immediately after a
// PushAndSync return, before any further Push). Returns an error if
// the active backend has no shadow copy or render target to read.
func (w *Worker) ReadVram(ctx context.Context, t gpu.TransferParams) ([]uint16, error) {
	r, ok := w.backend.(VramReader)
	if !ok {
		return nil, fmt.Errorf("worker: active backend cannot service ReadVram")
	}
	return r.ReadVram(ctx, t)
}

// Stop signals the teardown flag and blocks until Run has drained and
// returned, matching CoprocWorker.stop()+<-done in the wider example
// pack's coprocessor_manager.go.
func (w *Worker) Stop(ctx context.Context) error {
	w.stopping.Store(true)
	w.r.Wake()
	select {
	case <-w.done:
		return w.teardown()
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (w *Worker) teardown() error {
	if err := w.backend.Close(); err != nil {
		w.cfg.Logger.Warn("worker: backend close error", "err", err)
	}
	return w.dev.Close()
}

// ChangeBackend is the synchronous ChangeBackend operation of spec §5
// suspension point 3: it must only be invoked from the worker's own
// goroutine context, which changeBackendTo satisfies by calling it
// from within dispatchBytes.
func (w *Worker) ChangeBackend(newDev device.Device, factory BackendFactory) error {
	if err := w.backend.Close(); err != nil {
		w.cfg.Logger.Warn("worker: old backend close error during swap", "err", err)
	}
	if err := w.dev.Close(); err != nil {
		w.cfg.Logger.Warn("worker: old device close error during swap", "err", err)
	}
	backend, err := factory(newDev)
	if err != nil {
		return err
	}
	w.dev = newDev
	w.backend = backend
	return nil
}

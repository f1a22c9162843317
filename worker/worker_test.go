package worker

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/zeozeozeo/psxgpu/device"
	"github.com/zeozeozeo/psxgpu/gpu"
	"github.com/zeozeozeo/psxgpu/ring"
)

type fakeDevice struct{ closed bool }

func (f *fakeDevice) Features() device.Features                         { return device.Features{} }
func (f *fakeDevice) CreateTexture(device.TextureDesc) (device.Texture, error) { return nil, nil }
func (f *fakeDevice) DestroyTexture(device.Texture)                     {}
func (f *fakeDevice) UploadTexture(device.Texture, int, int, int, int, []byte) error { return nil }
func (f *fakeDevice) DownloadTexture(context.Context, device.Texture, int, int, int, int, []byte) error {
	return nil
}
func (f *fakeDevice) CopyTexture(device.Texture, int, int, device.Texture, int, int, int, int) error {
	return nil
}
func (f *fakeDevice) ResolveTexture(device.Texture, device.Texture) error { return nil }
func (f *fakeDevice) CreatePipeline(device.PipelineDesc) (device.Pipeline, error) { return nil, nil }
func (f *fakeDevice) SetRenderTargets([]device.Texture, device.Texture)  {}
func (f *fakeDevice) SetViewport(int, int, int, int)                     {}
func (f *fakeDevice) SetScissor(int, int, int, int)                      {}
func (f *fakeDevice) MapVertexStream(n int) ([]device.Vertex, int)       { return make([]device.Vertex, n), 0 }
func (f *fakeDevice) PushUniform(device.UniformBuffer)                   {}
func (f *fakeDevice) BindUniformBuffer(int, device.UniformBuffer)        {}
func (f *fakeDevice) BindTexture(int, device.Texture)                    {}
func (f *fakeDevice) Draw(device.Pipeline, int, int) error               { return nil }
func (f *fakeDevice) BeginPresent() error                                { return nil }
func (f *fakeDevice) EndPresent(bool, int) error                         { return nil }
func (f *fakeDevice) Close() error                                       { f.closed = true; return nil }

type fakeBackend struct {
	mu       sync.Mutex
	dispatched []gpu.CommandKind
	presents   int
	lastVsync  bool
	lastMaxFPS int
	closed     bool
}

func (b *fakeBackend) Dispatch(rec gpu.CommandRecord) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.dispatched = append(b.dispatched, rec.Kind)
	return nil
}

func (b *fakeBackend) Present(dev device.Device, vsync bool, maxFPS int) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.presents++
	b.lastVsync = vsync
	b.lastMaxFPS = maxFPS
	return nil
}

func (b *fakeBackend) Close() error { b.closed = true; return nil }

func (b *fakeBackend) ReadVram(ctx context.Context, t gpu.TransferParams) ([]uint16, error) {
	out := make([]uint16, t.W*t.H)
	for i := range out {
		out[i] = 0xbeef
	}
	return out, nil
}

func TestWorkerDispatchesQueuedRecordsInOrder(t *testing.T) {
	r := ring.New(64 * 1024, 4)
	dev := &fakeDevice{}
	backend := &fakeBackend{}
	w := New(r, dev, backend, Config{})

	ctx, cancel := context.WithCancel(context.Background())
	go w.Run(ctx)

	push := func(rec gpu.CommandRecord) {
		tag, payload := gpu.EncodeCommandRecord(rec)
		if err := r.Push(ctx, tag, payload); err != nil {
			t.Fatalf("push: %v", err)
		}
	}
	push(gpu.CommandRecord{Kind: gpu.CmdFillVram, Fill: gpu.FillParams{W: 16, H: 16}})
	if err := r.BeginFrame(ctx); err != nil {
		t.Fatalf("begin frame: %v", err)
	}
	push(gpu.CommandRecord{Kind: gpu.CmdUpdateDisplay})

	deadline := time.Now().Add(2 * time.Second)
	for {
		backend.mu.Lock()
		n := len(backend.dispatched)
		presents := backend.presents
		backend.mu.Unlock()
		if n >= 2 && presents >= 1 {
			break
		}
		if time.Now().After(deadline) {
			t.Fatalf("timed out waiting for dispatch, got %d dispatched, %d presents", n, presents)
		}
		time.Sleep(time.Millisecond)
	}

	if err := w.Stop(context.Background()); err != nil {
		t.Fatalf("stop: %v", err)
	}
	cancel()

	if !backend.closed {
		t.Fatalf("expected backend closed after stop")
	}
	if !dev.closed {
		t.Fatalf("expected device closed after stop")
	}
	if backend.dispatched[0] != gpu.CmdFillVram || backend.dispatched[1] != gpu.CmdUpdateDisplay {
		t.Fatalf("expected FillVram then UpdateDisplay, got %v", backend.dispatched)
	}
	if r.QueuedFrames() != 0 {
		t.Fatalf("expected queued frame counter to drain to 0, got %d", r.QueuedFrames())
	}
}

func TestWorkerDrainsPendingRecordsOnStop(t *testing.T) {
	r := ring.New(64*1024, 4)
	dev := &fakeDevice{}
	backend := &fakeBackend{}
	w := New(r, dev, backend, Config{})

	ctx := context.Background()
	for i := 0; i < 5; i++ {
		tag, payload := gpu.EncodeCommandRecord(gpu.CommandRecord{Kind: gpu.CmdFillVram})
		if err := r.Push(ctx, tag, payload); err != nil {
			t.Fatalf("push %d: %v", i, err)
		}
	}

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	go w.Run(runCtx)

	if err := w.Stop(context.Background()); err != nil {
		t.Fatalf("stop: %v", err)
	}

	backend.mu.Lock()
	n := len(backend.dispatched)
	backend.mu.Unlock()
	if n != 5 {
		t.Fatalf("expected all 5 pending records drained before teardown, got %d", n)
	}
}

func TestWorkerAppliesVsyncAndMaxFPSWithoutDispatchingToBackend(t *testing.T) {
	r := ring.New(64*1024, 4)
	dev := &fakeDevice{}
	backend := &fakeBackend{}
	w := New(r, dev, backend, Config{MaxFPS: 60})

	ctx, cancel := context.WithCancel(context.Background())
	go w.Run(ctx)

	push := func(rec gpu.CommandRecord) {
		tag, payload := gpu.EncodeCommandRecord(rec)
		if err := r.Push(ctx, tag, payload); err != nil {
			t.Fatalf("push: %v", err)
		}
	}
	push(gpu.CommandRecord{Kind: gpu.CmdUpdateVsync, Vsync: false})
	push(gpu.CommandRecord{Kind: gpu.CmdAsyncCall, AsyncOp: gpu.AsyncSetMaxFPS, AsyncParam: 30})
	if err := r.BeginFrame(ctx); err != nil {
		t.Fatalf("begin frame: %v", err)
	}
	push(gpu.CommandRecord{Kind: gpu.CmdUpdateDisplay})

	deadline := time.Now().Add(2 * time.Second)
	for {
		backend.mu.Lock()
		presents := backend.presents
		vsync, maxFPS := backend.lastVsync, backend.lastMaxFPS
		backend.mu.Unlock()
		if presents >= 1 {
			if vsync {
				t.Fatalf("expected vsync disabled by queued UpdateVsync record")
			}
			if maxFPS != 30 {
				t.Fatalf("expected max FPS 30 from queued AsyncSetMaxFPS record, got %d", maxFPS)
			}
			break
		}
		if time.Now().After(deadline) {
			t.Fatalf("timed out waiting for present")
		}
		time.Sleep(time.Millisecond)
	}

	if err := w.Stop(context.Background()); err != nil {
		t.Fatalf("stop: %v", err)
	}
	cancel()

	backend.mu.Lock()
	defer backend.mu.Unlock()
	for _, k := range backend.dispatched {
		if k == gpu.CmdUpdateVsync || k == gpu.CmdAsyncCall || k == gpu.CmdChangeBackend {
			t.Fatalf("expected worker-level kind %v never forwarded to Backend.Dispatch", k)
		}
	}
}

func TestWorkerReadVramUsesActiveBackend(t *testing.T) {
	r := ring.New(64*1024, 4)
	dev := &fakeDevice{}
	backend := &fakeBackend{}
	w := New(r, dev, backend, Config{})

	ctx := context.Background()
	go w.Run(ctx)

	tag, payload := gpu.EncodeCommandRecord(gpu.CommandRecord{Kind: gpu.CmdAsyncCall, AsyncOp: gpu.AsyncBarrier})
	if err := r.PushAndSync(ctx, tag, payload); err != nil {
		t.Fatalf("push and sync: %v", err)
	}

	pixels, err := w.ReadVram(ctx, gpu.TransferParams{X: 0, Y: 0, W: 2, H: 2})
	if err != nil {
		t.Fatalf("read vram: %v", err)
	}
	if len(pixels) != 4 || pixels[0] != 0xbeef {
		t.Fatalf("expected 4 canned pixels from fake backend, got %v", pixels)
	}

	if err := w.Stop(context.Background()); err != nil {
		t.Fatalf("stop: %v", err)
	}
}

func TestWorkerChangeBackendViaQueuedRecord(t *testing.T) {
	r := ring.New(64*1024, 4)
	oldDev := &fakeDevice{}
	oldBackend := &fakeBackend{}
	newDev := &fakeDevice{}
	newBackend := &fakeBackend{}

	cfg := Config{
		DeviceFactories: map[gpu.BackendKind]func() (device.Device, error){
			gpu.BackendHardware: func() (device.Device, error) { return newDev, nil },
		},
		BackendFactories: map[gpu.BackendKind]BackendFactory{
			gpu.BackendHardware: func(device.Device) (Backend, error) { return newBackend, nil },
		},
	}
	w := New(r, oldDev, oldBackend, cfg)

	ctx, cancel := context.WithCancel(context.Background())
	go w.Run(ctx)

	tag, payload := gpu.EncodeCommandRecord(gpu.CommandRecord{Kind: gpu.CmdChangeBackend, Backend: gpu.BackendHardware})
	if err := r.Push(ctx, tag, payload); err != nil {
		t.Fatalf("push change backend: %v", err)
	}

	deadline := time.Now().Add(2 * time.Second)
	for !oldBackend.closed {
		if time.Now().After(deadline) {
			t.Fatalf("timed out waiting for backend swap")
		}
		time.Sleep(time.Millisecond)
	}
	if !oldDev.closed {
		t.Fatalf("expected old device closed during swap")
	}

	tag2, payload2 := gpu.EncodeCommandRecord(gpu.CommandRecord{Kind: gpu.CmdFillVram})
	if err := r.Push(ctx, tag2, payload2); err != nil {
		t.Fatalf("push after swap: %v", err)
	}

	deadline = time.Now().Add(2 * time.Second)
	for {
		newBackend.mu.Lock()
		n := len(newBackend.dispatched)
		newBackend.mu.Unlock()
		if n >= 1 {
			break
		}
		if time.Now().After(deadline) {
			t.Fatalf("timed out waiting for new backend to receive dispatch")
		}
		time.Sleep(time.Millisecond)
	}

	if err := w.Stop(context.Background()); err != nil {
		t.Fatalf("stop: %v", err)
	}
	cancel()
}

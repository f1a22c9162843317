// Command psxgpu-demo drives the GPU pipeline against a synthetic
// GP0/GP1 word feed instead of a full CPU core, exercising the
// parser -> ring -> worker -> backend path end to end with an ebiten
// window for presentation: flag parsing, window setup, and a goroutine
// split between the emulation feed and the render loop.
package main

import (
	"context"
	"flag"
	"log"
	"log/slog"
	"time"

	"github.com/hajimehoshi/ebiten/v2"

	"github.com/zeozeozeo/psxgpu/device"
	"github.com/zeozeozeo/psxgpu/gpu"
	"github.com/zeozeozeo/psxgpu/hwbackend"
	"github.com/zeozeozeo/psxgpu/ring"
	"github.com/zeozeozeo/psxgpu/swbackend"
	"github.com/zeozeozeo/psxgpu/worker"
)

var (
	useHardware = flag.Bool("hardware", false, "use the hardware (upscaling) backend instead of the software rasterizer")
	scale       = flag.Int("scale", 2, "hwbackend internal resolution multiplier")
	maxFPS      = flag.Int("fps", 60, "worker present throttle")
)

type game struct {
	dev *device.EbitenDevice
}

func (g *game) Update() error { return nil }

func (g *game) Draw(screen *ebiten.Image) {
	frame := g.dev.Presented()
	op := &ebiten.DrawImageOptions{}
	sw, sh := screen.Bounds().Dx(), screen.Bounds().Dy()
	fw, fh := frame.Bounds().Dx(), frame.Bounds().Dy()
	if fw > 0 && fh > 0 {
		op.GeoM.Scale(float64(sw)/float64(fw), float64(sh)/float64(fh))
	}
	screen.DrawImage(frame, op)
}

func (g *game) Layout(outsideWidth, outsideHeight int) (int, int) {
	return 640, 480
}

func main() {
	flag.Parse()
	logger := slog.Default()

	r := ring.New(1<<20, 4)
	dev := device.NewEbitenDevice()

	var backend worker.Backend
	var err error
	if *useHardware {
		backend, err = hwbackend.New(dev, *scale)
	} else {
		backend = swbackend.NewBackend()
	}
	if err != nil {
		log.Fatalf("psxgpu-demo: create backend: %v", err)
	}

	wk := worker.New(r, dev, backend, worker.Config{MaxFPS: *maxFPS, Logger: logger})
	ctx, cancel := context.WithCancel(context.Background())
	go wk.Run(ctx)

	p := gpu.NewParser()
	p.Logger = logger
	p.Emit = func(rec gpu.CommandRecord) error {
		tag, payload := gpu.EncodeCommandRecord(rec)
		return r.Push(ctx, tag, payload)
	}
	// SyncRead backs the GPUREAD VRAM->CPU path: PushAndSync drains
	// every record queued ahead of it so the worker is guaranteed idle
	// before ReadVram samples the active backend's own copy.
	p.SyncRead = func(x, y, w, h uint32, into []uint16) {
		tag, payload := gpu.EncodeCommandRecord(gpu.CommandRecord{Kind: gpu.CmdAsyncCall, AsyncOp: gpu.AsyncBarrier})
		if err := r.PushAndSync(ctx, tag, payload); err != nil {
			logger.Error("psxgpu-demo: sync read drain failed", "err", err)
			return
		}
		pixels, err := wk.ReadVram(ctx, gpu.TransferParams{X: x, Y: y, W: w, H: h})
		if err != nil {
			logger.Error("psxgpu-demo: read vram failed", "err", err)
			return
		}
		copy(into, pixels)
	}

	go feedSyntheticFrames(p, r, ctx)

	ebiten.SetWindowSize(640, 480)
	ebiten.SetWindowTitle("psxgpu-demo")
	if err := ebiten.RunGame(&game{dev: dev}); err != nil {
		log.Printf("psxgpu-demo: ebiten exited: %v", err)
	}

	cancel()
	if err := wk.Stop(context.Background()); err != nil {
		log.Printf("psxgpu-demo: worker stop: %v", err)
	}
}

// feedSyntheticFrames plays a small fixed GP0/GP1 word program on a
// timer, standing in for the CPU-driven command stream a real
// emulator would produce.
func feedSyntheticFrames(p *gpu.Parser, r *ring.Ring, ctx context.Context) {
	p.GP1(0x00000000) // soft reset
	p.GP1(0x03000000) // display enable (bit0=0 -> enabled)
	p.GP1(0x05000000) // display area start: vram (0,0)
	p.GP1(0x06c00200) // horizontal display range
	p.GP1(0x07100100) // vertical display range
	p.GP1(0x08000000) // display mode: 256h, NTSC, 15bit, non-interlaced

	ticker := time.NewTicker(time.Second / 60)
	defer ticker.Stop()
	frame := 0
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := drawSyntheticTriangle(p, frame); err != nil {
				p.Logger.Error("psxgpu-demo: submit failed", "err", err)
				return
			}
			if err := pushFrameBoundary(p, r, ctx); err != nil {
				return
			}
			frame++
		}
	}
}

// pushFrameBoundary emits the UpdateDisplay record that marks a
// present point; a real scanline/vblank timer would drive this
// instead, so the demo submits it once per synthetic frame.
func pushFrameBoundary(p *gpu.Parser, r *ring.Ring, ctx context.Context) error {
	if err := r.BeginFrame(ctx); err != nil {
		return err
	}
	return p.Emit(gpu.CommandRecord{
		Kind: gpu.CmdUpdateDisplay,
		Display: gpu.DisplayUpdate{
			VRamX: p.Display.VRamXStart, VRamY: p.Display.VRamYStart,
			Width: 256, Height: 240,
			Depth24Bit: p.Display.Depth == gpu.DisplayDepth24Bit,
			Interlaced: p.Display.Interlaced,
		},
	})
}

// drawSyntheticTriangle submits a flat-shaded opaque triangle whose
// color cycles with frame, so the window visibly animates.
func drawSyntheticTriangle(p *gpu.Parser, frame int) error {
	r := uint32(frame*4) & 0xff
	color := r | (0x80 << 8) | (0xc0 << 16)
	words := []uint32{
		0x20<<24 | color, // monochrome opaque triangle
		uint32(uint16(50)) | uint32(uint16(50))<<16,
		uint32(uint16(200)) | uint32(uint16(50))<<16,
		uint32(uint16(50)) | uint32(uint16(200))<<16,
	}
	return p.GP0Run(words)
}

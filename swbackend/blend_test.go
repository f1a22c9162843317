package swbackend

import (
	"testing"

	"github.com/zeozeozeo/psxgpu/gpu"
)

func TestHalfAddBlendScenario(t *testing.T) {
	got := blend(gpu.STHalfBackHalfFront, 0x7fff, 0x0421)
	if got != 0x4210 {
		t.Fatalf("expected 0x4210, got 0x%04x", got)
	}
}

func TestSaturatingAddClampsPerChannel(t *testing.T) {
	got := blend(gpu.STBackPlusFront, 0x7fff, 0x7fff)
	want := uint16(0x7fff) // every channel already at max, add clamps at 31
	if got != want {
		t.Fatalf("expected 0x%04x, got 0x%04x", want, got)
	}
}

func TestSaturatingSubClampsAtZero(t *testing.T) {
	got := blend(gpu.STBackMinusFront, 0x0000, 0x7fff)
	if got != 0 {
		t.Fatalf("expected all channels clamped to 0, got 0x%04x", got)
	}
}

func TestQuarterAddMasksSourceBeforeAdding(t *testing.T) {
	bg := uint16(0)
	fg := uint16(0x7fff)
	got := blend(gpu.STBackPlusQuarter, bg, fg)
	// (fg>>2)&0x1ce7 applied before adding to a zero background
	want := (fg >> 2) & 0x1ce7
	if got != want {
		t.Fatalf("expected 0x%04x, got 0x%04x", want, got)
	}
}

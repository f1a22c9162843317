package hwbackend

import (
	"image"
	"image/color"
	"testing"
)

func solidImage(w, h int, c color.RGBA) *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.SetRGBA(x, y, c)
		}
	}
	return img
}

func TestBoxDownsampleShrinksBySameFactorAndPreservesFlatColor(t *testing.T) {
	src := solidImage(16, 16, color.RGBA{R: 40, G: 80, B: 120, A: 255})
	out := BoxDownsample(src, 4)
	if out.Bounds().Dx() != 4 || out.Bounds().Dy() != 4 {
		t.Fatalf("expected 4x4 output, got %dx%d", out.Bounds().Dx(), out.Bounds().Dy())
	}
	c := out.RGBAAt(1, 1)
	if c.R < 30 || c.R > 50 {
		t.Fatalf("expected flat color to survive averaging, got R=%d", c.R)
	}
}

func TestAdaptiveDownsampleMatchesBoxDimensions(t *testing.T) {
	src := solidImage(32, 32, color.RGBA{R: 10, G: 200, B: 30, A: 255})
	out := AdaptiveDownsample(src, 4)
	want := BoxDownsample(src, 4)
	if out.Bounds() != want.Bounds() {
		t.Fatalf("expected adaptive output to match box dimensions %v, got %v", want.Bounds(), out.Bounds())
	}
}

func TestDetailWeightIsZeroForFlatImage(t *testing.T) {
	flat := solidImage(8, 8, color.RGBA{R: 100, G: 100, B: 100, A: 255})
	if w := detailWeight(flat); w != 0 {
		t.Fatalf("expected zero variance weight for a flat image, got %v", w)
	}
}

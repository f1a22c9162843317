package display

import (
	"image"
	"image/color"
	"testing"
)

func checker(w, h int) *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			if (x+y)%2 == 0 {
				img.SetRGBA(x, y, color.RGBA{255, 255, 255, 255})
			} else {
				img.SetRGBA(x, y, color.RGBA{0, 0, 0, 255})
			}
		}
	}
	return img
}

func TestScaleDepth24ForcesSourceDimensions(t *testing.T) {
	src := checker(320, 240)
	out := Scale(src, 1280, 960, Nearest, true)
	if out.Bounds().Dx() != 320 || out.Bounds().Dy() != 240 {
		t.Fatalf("expected 24bpp frame to stay at source size, got %dx%d", out.Bounds().Dx(), out.Bounds().Dy())
	}
}

func TestScaleNearestIntegerProducesExactMultipleBlock(t *testing.T) {
	src := checker(4, 4)
	out := Scale(src, 17, 17, NearestInteger, false)
	if out.Bounds().Dx() != 17 || out.Bounds().Dy() != 17 {
		t.Fatalf("expected requested window size %dx%d, got %dx%d", 17, 17, out.Bounds().Dx(), out.Bounds().Dy())
	}
	// factor = 4 (17/4), block occupies 16x16 at offset (17-16)/2 = 0,
	// leaving column and row 16 as the 1px border.
	if c := out.RGBAAt(16, 16); c.A != 0 {
		t.Fatalf("expected the letterboxed border to stay transparent, got %v", c)
	}
}

func TestScaleBilinearSmoothFillsRequestedSize(t *testing.T) {
	src := checker(8, 8)
	out := Scale(src, 64, 64, BilinearSmooth, false)
	if out.Bounds().Dx() != 64 || out.Bounds().Dy() != 64 {
		t.Fatalf("expected 64x64 output, got %dx%d", out.Bounds().Dx(), out.Bounds().Dy())
	}
}

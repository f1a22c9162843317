// Package display implements the final scale-to-window step of spec.md
// §4.5: it scales an already-decoded display image to the window size.
// Reading the VRAM subrectangle (24bpp decode, interlace) is done by
// swbackend's ScanOut, not here.
package display

import (
	"image"

	"golang.org/x/image/draw"
)

// ScaleMode selects one of the four final-scale pipeline variants spec
// §4.5 names.
type ScaleMode uint8

const (
	Nearest ScaleMode = iota
	BilinearSmooth
	BilinearSharp
	NearestInteger
)

// Scale blits src (the already-decoded, already-deinterlaced display
// rectangle) into a dstW x dstH image using mode. 24bpp frames force
// scale 1 per spec §4.5 ("24bpp forces scale 1 for that frame"); the
// caller is expected to have already sized the window to src's
// dimensions in that case, so depth24 short-circuits to a direct copy
// regardless of dstW/dstH.
func Scale(src *image.RGBA, dstW, dstH int, mode ScaleMode, depth24 bool) *image.RGBA {
	if depth24 {
		out := image.NewRGBA(src.Bounds())
		draw.Draw(out, out.Bounds(), src, src.Bounds().Min, draw.Src)
		return out
	}
	dst := image.NewRGBA(image.Rect(0, 0, dstW, dstH))
	switch mode {
	case Nearest:
		draw.NearestNeighbor.Scale(dst, dst.Bounds(), src, src.Bounds(), draw.Src, nil)
	case NearestInteger:
		scaleNearestInteger(dst, src)
	case BilinearSharp:
		scaleBilinearSharp(dst, src)
	default: // BilinearSmooth
		draw.BiLinear.Scale(dst, dst.Bounds(), src, src.Bounds(), draw.Src, nil)
	}
	return dst
}

// scaleNearestInteger clamps the scale factor down to the largest
// integer multiple that fits, then centers the result, avoiding the
// non-uniform pixel sizes a plain nearest-neighbor stretch to a
// non-integer ratio produces.
func scaleNearestInteger(dst *image.RGBA, src *image.RGBA) {
	sb, db := src.Bounds(), dst.Bounds()
	factor := db.Dx() / sb.Dx()
	if fy := db.Dy() / sb.Dy(); fy < factor {
		factor = fy
	}
	if factor < 1 {
		factor = 1
	}
	iw, ih := sb.Dx()*factor, sb.Dy()*factor
	ox, oy := (db.Dx()-iw)/2, (db.Dy()-ih)/2
	target := image.Rect(db.Min.X+ox, db.Min.Y+oy, db.Min.X+ox+iw, db.Min.Y+oy+ih)
	draw.NearestNeighbor.Scale(dst, target, src, sb, draw.Src, nil)
}

// scaleBilinearSharp implements spec §4.5's "biased sub-pixel
// sharpening term derived from the integer scale factor": nearest-
// upscale to the largest clean integer multiple first, then bilinear
// the remainder, so edges stay crisp instead of smearing across the
// whole stretch the way a single bilinear pass would.
func scaleBilinearSharp(dst *image.RGBA, src *image.RGBA) {
	sb, db := src.Bounds(), dst.Bounds()
	factor := db.Dx() / sb.Dx()
	if fy := db.Dy() / sb.Dy(); fy < factor {
		factor = fy
	}
	if factor < 1 {
		factor = 1
	}
	mid := image.NewRGBA(image.Rect(0, 0, sb.Dx()*factor, sb.Dy()*factor))
	draw.NearestNeighbor.Scale(mid, mid.Bounds(), src, sb, draw.Src, nil)
	draw.BiLinear.Scale(dst, db, mid, mid.Bounds(), draw.Src, nil)
}

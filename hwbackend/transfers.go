package hwbackend

import (
	"context"
	"fmt"

	"github.com/zeozeozeo/psxgpu/device"
	"github.com/zeozeozeo/psxgpu/gpu"
)

// fillRegion implements spec §4.4 "Fill": the destination region is
// flooded with the clear colour, quantized to 5551 and re-expanded to
// match the software reference's loss of precision, with the mask bit
// clear (alpha 0), honouring the interlace discard rule the same way
// swbackend's fillVram does: skipped rows are not uploaded at all.
func fillRegion(dev device.Device, target device.Texture, scale int, x, y, w, h uint32, clr gpu.Color, interlaced bool, activeLineLSB uint8) error {
	r5, g5, b5 := clr.R>>3, clr.G>>3, clr.B>>3
	r8, g8, b8 := expand5to8(r5), expand5to8(g5), expand5to8(b5)
	sw, sh := int(w)*scale, int(h)*scale
	if sw == 0 || sh == 0 {
		return nil
	}
	line := make([]byte, sw*4)
	for col := 0; col < sw; col++ {
		i := col * 4
		line[i], line[i+1], line[i+2], line[i+3] = r8, g8, b8, 0
	}
	for row := 0; row < sh; row++ {
		if interlaced && (int(y)+row/scale)&1 != int(activeLineLSB)&1 {
			continue
		}
		if err := dev.UploadTexture(target, int(x)*scale, int(y)*scale+row, sw, 1, line); err != nil {
			return err
		}
	}
	return nil
}

func expand5to8(c uint8) uint8 {
	c &= 0x1f
	return (c << 3) | (c >> 2)
}

// updateVramRegion implements the "CPU->VRAM write" path: the 16bpp
// pixel payload is expanded to RGBA8 and uploaded into the scaled
// render target (spec §4.4: "upload ... draw a quad ... applies mask
// OR"; the mask OR is folded into the expansion here since this
// backend uploads rather than shades the destination).
func updateVramRegion(dev device.Device, target device.Texture, scale int, t gpu.TransferParams, pixels []uint16, mask gpu.MaskSettings) error {
	sw, sh := int(t.W)*scale, int(t.H)*scale
	if sw == 0 || sh == 0 {
		return nil
	}
	buf := make([]byte, sw*sh*4)
	idx := 0
	for row := 0; row < int(t.H) && idx < len(pixels); row++ {
		for col := 0; col < int(t.W) && idx < len(pixels); col++ {
			px := pixels[idx]
			idx++
			if mask.SetMaskWhileDrawing {
				px |= 0x8000
			}
			r := expand5to8(uint8(px))
			g := expand5to8(uint8(px >> 5))
			b := expand5to8(uint8(px >> 10))
			a := uint8(0)
			if px&0x8000 != 0 {
				a = 0xff
			}
			for sy := 0; sy < scale; sy++ {
				for sx := 0; sx < scale; sx++ {
					dstRow := row*scale + sy
					dstCol := col*scale + sx
					i := (dstRow*sw + dstCol) * 4
					buf[i], buf[i+1], buf[i+2], buf[i+3] = r, g, b, a
				}
			}
		}
	}
	return dev.UploadTexture(target, int(t.X)*scale, int(t.Y)*scale, sw, sh, buf)
}

// copyVramRegion implements "VRAM->VRAM copy" as a direct sub-image
// copy of the scaled region in every case: overlapping source and
// destination rectangles and the mask settings get no separate path.
func copyVramRegion(dev device.Device, target device.Texture, scale int, srcX, srcY uint32, t gpu.TransferParams) error {
	return dev.CopyTexture(target, int(srcX)*scale, int(srcY)*scale, target, int(t.X)*scale, int(t.Y)*scale, int(t.W)*scale, int(t.H)*scale)
}

// readVramRegion implements "VRAM->CPU read": download the region and
// quantize back into 16bpp pixels for the shadow VRAM mirror kept by
// the emulation thread (spec §4.4 "VRAM->CPU read").
func readVramRegion(ctx context.Context, dev device.Device, target device.Texture, scale int, t gpu.TransferParams) ([]uint16, error) {
	sw, sh := int(t.W)*scale, int(t.H)*scale
	if sw == 0 || sh == 0 {
		return nil, nil
	}
	buf := make([]byte, sw*sh*4)
	if err := dev.DownloadTexture(ctx, target, int(t.X)*scale, int(t.Y)*scale, sw, sh, buf); err != nil {
		return nil, fmt.Errorf("hwbackend: download vram region: %w", err)
	}
	out := make([]uint16, t.W*t.H)
	for row := uint32(0); row < t.H; row++ {
		for col := uint32(0); col < t.W; col++ {
			srow, scol := int(row)*scale, int(col)*scale
			i := (srow*sw + scol) * 4
			r, g, b, a := buf[i], buf[i+1], buf[i+2], buf[i+3]
			val := uint16(r>>3) | uint16(g>>3)<<5 | uint16(b>>3)<<10
			if a != 0 {
				val |= 0x8000
			}
			out[row*t.W+col] = val
		}
	}
	return out, nil
}

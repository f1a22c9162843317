package swbackend

import "github.com/zeozeozeo/psxgpu/gpu"

// OutputFormat selects the CPU-side pixel layout ScanOut repacks into,
// per spec §4.3 ("repacks to one of four CPU-side formats").
type OutputFormat uint8

const (
	OutputRGBA5551 OutputFormat = iota
	OutputRGB565
	OutputRGBA8
	OutputBGRA8
)

// ScanOut reads the VRAM sub-rectangle named by upd and repacks it into
// dst (tightly packed rows of the requested format), honouring the
// 24bpp unpack and interlace weave rules of spec §4.3/§4.5. dst must be
// sized for upd.Width x upd.Height pixels in the requested format.
func (v *VRAM) ScanOut(upd gpu.DisplayUpdate, format OutputFormat, dst []byte) {
	bpp := bytesPerPixel(format)
	stride := int(upd.Width) * bpp

	startRow := 0
	rowStep := 1
	if upd.Interlaced {
		// only the active field's rows are refreshed this scanout;
		// the caller is expected to call ScanOut once per field and
		// weave the two outputs itself, so here we only ever touch
		// rows belonging to upd.Field.
		rowStep = 2
		if upd.Field == gpu.FieldTop {
			startRow = 1
		}
	}

	for row := startRow; row < int(upd.Height); row += rowStep {
		srcY := int32(upd.VRamY) + int32(row)
		rowOff := row * stride
		if upd.Depth24Bit {
			scanRow24(v, int32(upd.VRamX), srcY, int(upd.Width), format, dst[rowOff:rowOff+stride])
		} else {
			scanRow16(v, int32(upd.VRamX), srcY, int(upd.Width), format, dst[rowOff:rowOff+stride])
		}
	}
}

func bytesPerPixel(f OutputFormat) int {
	switch f {
	case OutputRGBA5551, OutputRGB565:
		return 2
	default:
		return 4
	}
}

func scanRow16(v *VRAM, x0, y int32, width int, format OutputFormat, dst []byte) {
	bpp := bytesPerPixel(format)
	for col := 0; col < width; col++ {
		px := v.At(wrapX(x0+int32(col)), wrapY(y))
		r, g, b, mask := UnpackColor(px)
		putPixel(dst[col*bpp:], format, r, g, b, mask)
	}
}

// scanRow24 unpacks 24-bit-per-pixel mode: three 8-bit color bytes are
// packed across consecutive 16-bit VRAM cells, two pixels per three
// cells, and a horizontal display offset may land mid-cell (spec
// §4.3: "a horizontal offset may half-step into a cell").
func scanRow24(v *VRAM, x0, y int32, width int, format OutputFormat, dst []byte) {
	bpp := bytesPerPixel(format)
	for col := 0; col < width; col++ {
		// each pixel consumes 1.5 VRAM cells; byteOff is the pixel's
		// start offset in bytes within the 24bpp-packed row.
		byteOff := col * 3
		cellIdx := byteOff / 2
		cell0 := v.At(wrapX(x0+int32(cellIdx)), wrapY(y))
		cell1 := v.At(wrapX(x0+int32(cellIdx)+1), wrapY(y))
		merged := uint32(cell0) | uint32(cell1)<<16
		shift := uint((byteOff % 2) * 8)
		r := uint8(merged >> shift)
		g := uint8(merged >> (shift + 8))
		b := uint8(merged >> (shift + 16))
		putPixel(dst[col*bpp:], format, r, g, b, false)
	}
}

func putPixel(dst []byte, format OutputFormat, r, g, b uint8, mask bool) {
	switch format {
	case OutputRGBA5551:
		val := uint16(r>>3) | uint16(g>>3)<<5 | uint16(b>>3)<<10
		if mask {
			val |= 0x8000
		}
		dst[0] = byte(val)
		dst[1] = byte(val >> 8)
	case OutputRGB565:
		val := uint16(r>>3) | uint16(g>>2)<<5 | uint16(b>>3)<<11
		dst[0] = byte(val)
		dst[1] = byte(val >> 8)
	case OutputRGBA8:
		dst[0], dst[1], dst[2] = r, g, b
		dst[3] = 0xff
		if mask {
			dst[3] = 0xff
		}
	case OutputBGRA8:
		dst[0], dst[1], dst[2] = b, g, r
		dst[3] = 0xff
	}
}

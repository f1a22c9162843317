package swbackend

// ditherMatrix is the standard 4x4 ordered-dither pattern used by
// PS1 hardware, offsets in {-4,+4} per spec §4.3.
var ditherMatrix = [4][4]int16{
	{-4, 0, -3, 1},
	{2, -2, 3, -1},
	{-3, 1, -4, 0},
	{3, -1, 2, -2},
}

// ditherLUT[cellIndex][channel] precomputes the clamped
// channel+offset result for every possible 8-bit channel value, one
// table per dither matrix cell (spec §4.3: "A 256-entry lookup table
// per matrix cell precomputes the clamped result").
var ditherLUT [16][256]uint8

func init() {
	for cell := 0; cell < 16; cell++ {
		row, col := cell/4, cell%4
		offset := int32(ditherMatrix[row][col])
		for v := 0; v < 256; v++ {
			biased := int32(v) + offset
			if biased < 0 {
				biased = 0
			} else if biased > 255 {
				biased = 255
			}
			ditherLUT[cell][v] = uint8(biased)
		}
	}
}

// ditherChannel applies the ordered-dither bias to a single 8-bit
// channel value at screen position (x,y), before the 8->5 bit
// reduction in applyDither.
func ditherChannel(x, y int32, v uint8) uint8 {
	cell := (uint32(y)&3)*4 + (uint32(x) & 3)
	return ditherLUT[cell][v]
}

// applyDither biases r,g,b by the matrix entry at (x mod 4, y mod 4)
// and reduces to 5 bits per channel, per spec §4.3: "the
// post-modulation RGB is biased ... before the >>3 reduction".
func applyDither(x, y int32, r, g, b uint8) (uint8, uint8, uint8) {
	return ditherChannel(x, y, r) >> 3, ditherChannel(x, y, g) >> 3, ditherChannel(x, y, b) >> 3
}

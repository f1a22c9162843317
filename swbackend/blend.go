package swbackend

import "github.com/zeozeozeo/psxgpu/gpu"

// blend applies one of the four hardware semi-transparency modes of
// spec §4.3 to a 15-bit bg/fg pair. The result carries bg's mask bit
// in the add, subtract and quarter-add modes, a clear mask bit in the
// half-add mode, and fg's mask bit for any other mode value.
func blend(mode gpu.SemiTransparencyMode, bg, fg uint16) uint16 {
	switch mode {
	case gpu.STHalfBackHalfFront:
		return halfAdd(bg, fg)
	case gpu.STBackPlusFront:
		return saturatingAdd(bg, fg)
	case gpu.STBackMinusFront:
		return saturatingSub(bg, fg)
	case gpu.STBackPlusQuarter:
		quarter := (fg >> 2) & 0x1ce7
		return saturatingAdd(bg, quarter)
	default:
		return fg
	}
}

// halfAdd computes the per-channel average (bg+fg)>>1 for each 5-bit
// channel independently. Hardware performs this as a single packed-word
// add using the bg|0x8000 guard bit and an 0x0421 "one bit per channel"
// mask to stop carries leaking across channel boundaries; done here
// channel-by-channel instead, since the three channels never need more
// than 6 bits of headroom and the per-channel form is unambiguous.
func halfAdd(bg, fg uint16) uint16 {
	var out uint16
	for shift := uint(0); shift < 15; shift += 5 {
		a := (bg >> shift) & 0x1f
		b := (fg >> shift) & 0x1f
		out |= ((a + b) >> 1) << shift
	}
	return out
}

// saturatingAdd adds bg+fg per 5-bit channel, clamping each channel to
// 31 independently (the "parallel carry" trick's observable result,
// computed channel by channel), and keeps bg's mask bit.
func saturatingAdd(bg, fg uint16) uint16 {
	var out uint16
	for shift := uint(0); shift < 15; shift += 5 {
		a := (bg >> shift) & 0x1f
		b := (fg >> shift) & 0x1f
		sum := a + b
		if sum > 0x1f {
			sum = 0x1f
		}
		out |= sum << shift
	}
	out |= bg & 0x8000
	return out
}

// saturatingSub subtracts fg from bg per channel, clamping at 0 (the
// "parallel borrow" trick's observable result).
func saturatingSub(bg, fg uint16) uint16 {
	var out uint16
	for shift := uint(0); shift < 15; shift += 5 {
		a := int16((bg >> shift) & 0x1f)
		b := int16((fg >> shift) & 0x1f)
		diff := a - b
		if diff < 0 {
			diff = 0
		}
		out |= uint16(diff) << shift
	}
	out |= bg & 0x8000
	return out
}

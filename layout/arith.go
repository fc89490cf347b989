package layout

import "math"

func safeMul(a, b uint64) (uint64, bool) {
	if b != 0 && a > math.MaxUint64/b {
		return 0, false
	}
	return a * b, true
}

func safeAdd(a, b uint64) (uint64, bool) {
	if a > math.MaxUint64-b {
		return 0, false
	}
	return a + b, true
}

// AlignTo rounds offset up to the next multiple of align.
// The second result is false if rounding overflows.
func AlignTo(offset, align uint64) (uint64, bool) {
	if align <= 1 {
		return offset, true
	}
	rem := offset % align
	if rem == 0 {
		return offset, true
	}
	return safeAdd(offset, align-rem)
}

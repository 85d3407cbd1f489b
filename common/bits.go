package common

// Mask keeps the low bits of v. Widths of 64 or more return v unchanged.
func Mask(v uint64, bits uint) uint64 {
	if bits >= 64 {
		return v
	}
	return v & ((uint64(1) << bits) - 1)
}

// SignExtend interprets the low bits of v as a two's complement number and
// widens it to 64 bits.
func SignExtend(v uint64, bits uint) uint64 {
	if bits == 0 || bits >= 64 {
		return v
	}
	shift := 64 - bits
	return uint64(int64(v<<shift) >> shift)
}

// Signed returns the low bits of v as a signed integer.
func Signed(v uint64, bits uint) int64 {
	return int64(SignExtend(Mask(v, bits), bits))
}

// ByteSize rounds a bit count up to whole bytes.
func ByteSize(bits uint64) uint64 {
	return (bits + 7) / 8
}

func GCD(a, b uint64) uint64 {
	for b != 0 {
		a, b = b, a%b
	}
	return a
}

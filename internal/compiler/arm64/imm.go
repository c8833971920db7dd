package arm64

import "math/bits"

// Immediate legality is the encoder's responsibility: callers ask whether a
// value fits an opcode's immediate form and fall back to MOVZ/MOVK
// materialization when it does not.

// CanEncodeAddSubImm reports whether imm fits ADD/SUB's 12-bit unsigned
// immediate, optionally shifted left by 12.
func CanEncodeAddSubImm(imm int64) bool {
	if imm >= 0 && imm <= 0xFFF {
		return true
	}
	if imm&0xFFF == 0 && imm >= 0 && (imm>>12) <= 0xFFF {
		return true
	}
	return false
}

// EncodeBitmaskImm computes the (N, immr, imms) fields for a logical
// immediate, implementing the ARM rotated-mask decoder exactly: the value
// must be a repetition of a 2/4/8/16/32/64-bit element that is itself a
// rotation of a contiguous run of ones. This accepts precisely the 5334
// legal 64-bit patterns (and, through the 32-bit entry, the 1302 legal
// 32-bit ones).
func EncodeBitmaskImm(v uint64, is64 bool) (n, immr, imms uint32, ok bool) {
	if !is64 {
		if v>>32 != 0 {
			return 0, 0, 0, false
		}
		v |= v << 32
	}
	if v == 0 || v == ^uint64(0) {
		return 0, 0, 0, false
	}

	// Shrink to the smallest repeating element.
	size := uint(64)
	for size > 2 {
		half := size / 2
		mask := uint64(1)<<half - 1
		if v&mask != (v>>half)&mask {
			break
		}
		size = half
	}
	var elemMask uint64
	if size == 64 {
		elemMask = ^uint64(0)
	} else {
		elemMask = uint64(1)<<size - 1
	}
	elem := v & elemMask

	ones := uint(bits.OnesCount64(elem))
	if ones == 0 || ones == size {
		return 0, 0, 0, false
	}

	// Find the rotation that produces elem from the canonical low run.
	run := uint64(1)<<ones - 1
	rot := uint(0)
	found := false
	for r := uint(0); r < size; r++ {
		rotated := ((run >> r) | (run << (size - r))) & elemMask
		if rotated == elem {
			rot, found = r, true
			break
		}
	}
	if !found {
		return 0, 0, 0, false
	}

	if size == 64 {
		n = 1
		imms = uint32(ones - 1)
	} else {
		n = 0
		// The size field is encoded as a prefix of ones in imms.
		imms = uint32((64-2*size)&0x3f) | uint32(ones-1)
	}
	immr = uint32(rot)
	return n, immr, imms, true
}

// CanEncodeLogicalImm reports whether imm is a legal logical immediate at
// either width.
func CanEncodeLogicalImm(imm int64) bool {
	if _, _, _, ok := EncodeBitmaskImm(uint64(imm), true); ok {
		return true
	}
	_, _, _, ok := EncodeBitmaskImm(uint64(imm)&0xFFFFFFFF, false)
	return ok
}

// CanEncodeAsImmediate answers the legality query for the opcodes that have
// an immediate form. Unknown opcodes are conservatively rejected.
func CanEncodeAsImmediate(op Opcode, imm int64) bool {
	switch op {
	case OpADD, OpSUB, OpSUBS, OpCMP:
		return CanEncodeAddSubImm(imm)
	case OpAND, OpORR, OpEOR:
		return CanEncodeLogicalImm(imm)
	case OpLSL, OpLSR, OpASR:
		return imm >= 0 && imm < 64
	default:
		return false
	}
}

// IsPowerOfTwo reports n > 0 with a single set bit.
func IsPowerOfTwo(n int64) bool { return n > 0 && n&(n-1) == 0 }

// Log2 returns log2 for a power of two, -1 otherwise.
func Log2(n int64) int {
	if !IsPowerOfTwo(n) {
		return -1
	}
	return bits.TrailingZeros64(uint64(n))
}

package arm64

import (
	"testing"

	"github.com/stretchr/testify/require"
)

// TestBitmaskImmediatePatternCount checks the decoder against the
// architectural pattern counts: 5334 legal 64-bit values and 1302 legal
// 32-bit values.
func TestBitmaskImmediatePatternCount(t *testing.T) {
	gen := func(width uint) map[uint64]bool {
		values := make(map[uint64]bool)
		for size := uint(2); size <= width; size *= 2 {
			for ones := uint(1); ones < size; ones++ {
				run := uint64(1)<<ones - 1
				for rot := uint(0); rot < size; rot++ {
					elem := (run >> rot) | (run << (size - rot))
					if size < 64 {
						elem &= uint64(1)<<size - 1
					}
					// Replicate the element across the full width.
					v := elem
					for rep := size; rep < width; rep *= 2 {
						v |= v << rep
					}
					if width == 32 {
						v &= 0xFFFFFFFF
					}
					values[v] = true
				}
			}
		}
		return values
	}

	legal64 := gen(64)
	require.Equal(t, 5334, len(legal64))
	legal32 := gen(32)
	require.Equal(t, 1302, len(legal32))

	for v := range legal64 {
		_, _, _, ok := EncodeBitmaskImm(v, true)
		require.True(t, ok, "expected %#x to encode", v)
	}
	for v := range legal32 {
		_, _, _, ok := EncodeBitmaskImm(v, false)
		require.True(t, ok, "expected %#x to encode as 32-bit", v)
	}
}

func TestBitmaskImmediateRejects(t *testing.T) {
	for _, v := range []uint64{0, ^uint64(0), 0x5, 0x1234567890ABCDEF} {
		_, _, _, ok := EncodeBitmaskImm(v, true)
		require.False(t, ok, "expected %#x to be rejected", v)
	}
}

func TestBitmaskImmediateFields(t *testing.T) {
	// 0xFF is a 64-bit element: run of 8 ones, no rotation.
	n, immr, imms, ok := EncodeBitmaskImm(0xFF, true)
	require.True(t, ok)
	require.Equal(t, uint32(1), n)
	require.Equal(t, uint32(0), immr)
	require.Equal(t, uint32(7), imms)

	// 0x5555...55: alternating bits, element size 2.
	n, immr, imms, ok = EncodeBitmaskImm(0x5555555555555555, true)
	require.True(t, ok)
	require.Equal(t, uint32(0), n)
	require.Equal(t, uint32(0), immr)
	require.Equal(t, uint32(0x3C), imms)
}

func TestCanEncodeAddSubImm(t *testing.T) {
	for _, tc := range []struct {
		imm int64
		exp bool
	}{
		{0, true},
		{4095, true},
		{4096, true},        // 1 << 12
		{4095 << 12, true},  // shifted form
		{4097, false},       // needs both halves
		{-1, false},         // negative never encodes
		{1 << 24, false},    // beyond the shifted range
	} {
		require.Equal(t, tc.exp, CanEncodeAddSubImm(tc.imm), "imm=%d", tc.imm)
	}
}

func TestCanEncodeAsImmediate(t *testing.T) {
	require.True(t, CanEncodeAsImmediate(OpADD, 4095))
	require.True(t, CanEncodeAsImmediate(OpAND, 0xFF))
	require.False(t, CanEncodeAsImmediate(OpAND, 0x1234567890ABCDEF))
	require.False(t, CanEncodeAsImmediate(OpMUL, 4)) // no immediate form
	require.True(t, CanEncodeAsImmediate(OpLSL, 63))
	require.False(t, CanEncodeAsImmediate(OpLSL, 64))
}

func TestPowerOfTwo(t *testing.T) {
	require.True(t, IsPowerOfTwo(1))
	require.True(t, IsPowerOfTwo(1024))
	require.False(t, IsPowerOfTwo(0))
	require.False(t, IsPowerOfTwo(-8))
	require.False(t, IsPowerOfTwo(12))
	require.Equal(t, 10, Log2(1024))
	require.Equal(t, -1, Log2(12))
}

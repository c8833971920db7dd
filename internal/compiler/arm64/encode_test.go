package arm64

import (
	"testing"

	"github.com/stretchr/testify/require"
)

// Golden encodings, checked against an independent assembler.
func TestEncodings(t *testing.T) {
	for _, tc := range []struct {
		name string
		i    Instruction
		exp  uint32
	}{
		{"movz x0, #42", MovZ(X0, 42, 0), 0xD2800540},
		{"movk x3, #1, lsl #16", MovK(X3, 1, 1), 0xF2A00023},
		{"mov x1, x2", MovReg(X1, X2), 0xAA0203E1},
		{"add x0, x1, #4", AddImm(X0, X1, 4), 0x91001020},
		{"sub sp, sp, #16", SubImm(SP, SP, 16), 0xD10043FF},
		{"add x0, x1, x2", AddReg(X0, X1, X2), 0x8B020020},
		{"sub x3, x4, x5", SubReg(X3, X4, X5), 0xCB050083},
		{"mul x0, x1, x2", Mul(X0, X1, X2), 0x9B027C20},
		{"sdiv x0, x1, x2", SDiv(X0, X1, X2), 0x9AC20C20},
		{"cmp x1, #0", CmpImm(X1, 0), 0xF100003F},
		{"cmp x1, x2", CmpReg(X1, X2), 0xEB02003F},
		{"and x0, x1, x2", AndReg(X0, X1, X2), 0x8A020020},
		{"orr x0, x1, x2", OrrReg(X0, X1, X2), 0xAA020020},
		{"eor x0, x1, x2", EorReg(X0, X1, X2), 0xCA020020},
		{"lsl x0, x1, #3", Lsl(X0, X1, 3), 0xD37DF020},
		{"lsr x0, x1, #3", Lsr(X0, X1, 3), 0xD343FC20},
		{"asr x0, x1, #3", Asr(X0, X1, 3), 0x9343FC20},
		{"ubfx x0, x1, #0, #32", Ubfx(X0, X1, 0, 32), 0xD3407C20},
		{"sbfx x0, x1, #32, #32", Sbfx(X0, X1, 32, 32), 0x9360FC20},
		{"bfi x0, x1, #32, #32", Bfi(X0, X1, 32, 32), 0xB3607C20},
		{"ldr x0, [x1, #8]", LdrImm(X0, X1, 8), 0xF9400420},
		{"str x0, [x1, #8]", StrImm(X0, X1, 8), 0xF9000420},
		{"ldr d0, [x1, #8]", LdrFImm(D0, X1, 8), 0xFD400420},
		{"stp x29, x30, [sp, #-16]!", StpPre(FP, LR, SP, -16), 0xA9BF7BFD},
		{"ldp x29, x30, [sp], #16", LdpPost(FP, LR, SP, 16), 0xA8C17BFD},
		{"ret", Ret(), 0xD65F03C0},
		{"br x10", Br(X10), 0xD61F0140},
		{"blr x16", Blr(X16), 0xD63F0200},
		{"nop", Nop(), 0xD503201F},
		{"dmb ish", DmbIsh(), 0xD5033BBF},
		{"isb", Isb(), 0xD5033FDF},
		{"scvtf d0, x1", Scvtf(D0, X1), 0x9E620020},
		{"fcvtzs x0, d1", Fcvtzs(X0, D1), 0x9E780020},
		{"fadd d0, d1, d2", FAdd(D0, D1, D2), 0x1E622820},
		{"fmul d0, d1, d2", FMul(D0, D1, D2), 0x1E620820},
		{"fmov d0, x1", FMovToFP(D0, X1), 0x9E670020},
		{"fmov x0, d1", FMovFromFP(X0, D1), 0x9E660020},
		{"csetm x0, eq", Csetm(X0, EQ), 0xDA9F13E0},
		{"faddp v0.4s, v1.4s, v2.4s", FAddP(D0, D1, D2, Arr4S), 0x6E22D420},
		{"fminp v0.2s, v1.2s, v2.2s", FMinP(D0, D1, D2, Arr2S), 0x2EA2F420},
		{"addp v0.4s, v1.4s, v2.4s", AddP(D0, D1, D2, Arr4S), 0x4EA2BC20},
		{"sminp v0.4h, v1.4h, v2.4h", SMinP(D0, D1, D2, Arr4H), 0x0E62AC20},
	} {
		t.Run(tc.name, func(t *testing.T) {
			require.Equal(t, tc.exp, tc.i.Encoding)
			require.Equal(t, tc.name, tc.i.Assembly)
		})
	}
}

func TestMovImm(t *testing.T) {
	for _, tc := range []struct {
		v   int64
		len int
	}{
		{0, 1},
		{42, 1},
		{1 << 16, 1},
		{0x12345678, 2},
		{0x123456789ABC, 3},
		{-1, 1}, // MOVN
	} {
		seq := MovImm(X0, tc.v)
		require.Len(t, seq, tc.len, "value %#x", tc.v)
	}
}

func TestBranchRecordsCarryRelocations(t *testing.T) {
	b := BL("WRITEF")
	require.Equal(t, RelocPcRelative26, b.Relocation)
	require.Equal(t, "WRITEF", b.TargetLabel)
	require.Zero(t, b.Encoding&0x03FFFFFF) // immediate left for the linker

	cb := Cbz(X3, "loop_exit_1")
	require.Equal(t, RelocPcRelative19, cb.Relocation)
	require.Equal(t, "cbz x3, loop_exit_1", cb.Assembly)

	adrp := Adrp(X0, "str_1")
	require.Equal(t, RelocAdrpHigh21, adrp.Relocation)
	require.Equal(t, AttrAddressLoad, adrp.JITAttr)
}

func TestReadsWrites(t *testing.T) {
	add := AddReg(X0, X1, X2)
	require.True(t, add.Reads(X1))
	require.True(t, add.Reads(X2))
	require.False(t, add.Reads(X0))
	require.True(t, add.Writes(X0))

	// A store reads its value operand.
	st := StrImm(X5, X1, 8)
	require.True(t, st.Reads(X5))
	require.True(t, st.Reads(X1))
	require.False(t, st.Writes(X5))

	mk := MovK(X0, 1, 0)
	require.True(t, mk.Reads(X0)) // merges into the existing value
}

func TestDecodeBranchOffset(t *testing.T) {
	b := B("x")
	b.Encoding |= 0x10 // offset 16 words... (imm26 = 16)
	off, err := DecodeBranchOffset(&b)
	require.NoError(t, err)
	require.Equal(t, int64(64), off)

	// Negative 19-bit offset.
	c := BCond(NE, "x")
	c.Encoding = patchCond19(c.Encoding, -8)
	off, err = DecodeBranchOffset(&c)
	require.NoError(t, err)
	require.Equal(t, int64(-32), off)

	n := Nop()
	_, err = DecodeBranchOffset(&n)
	require.Error(t, err)
}

func patchCond19(enc uint32, words int32) uint32 {
	return enc | (uint32(words)&0x7FFFF)<<5
}

func TestCondInvert(t *testing.T) {
	pairs := [][2]Cond{{EQ, NE}, {LT, GE}, {GT, LE}, {HI, LS}, {HS, LO}, {MI, PL}}
	for _, p := range pairs {
		require.Equal(t, p[1], p[0].Invert())
		require.Equal(t, p[0], p[1].Invert())
	}
	c, ok := CondFromString("EQ")
	require.True(t, ok)
	require.Equal(t, EQ, c)
	_, ok = CondFromString("zz")
	require.False(t, ok)
}

func TestEquivalentIgnoresAddress(t *testing.T) {
	a := AddReg(X0, X1, X2)
	b := AddReg(X0, X1, X2)
	b.Address = 0x1000
	b.Assembly = "different text"
	require.True(t, Equivalent(&a, &b))

	c := AddReg(X0, X1, X3)
	require.False(t, Equivalent(&a, &c))
}

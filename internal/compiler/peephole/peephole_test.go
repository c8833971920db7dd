package peephole

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/albanread/nbcgo/internal/compiler/arm64"
)

func opcodes(stream []arm64.Instruction) []arm64.Opcode {
	var out []arm64.Opcode
	for i := range stream {
		if stream[i].IsPseudo() {
			continue
		}
		out = append(out, stream[i].Opcode)
	}
	return out
}

func TestIdentityElimination(t *testing.T) {
	o := New(1)

	// add x1, x1, #0 disappears entirely.
	out := o.Run([]arm64.Instruction{arm64.AddImm(arm64.X1, arm64.X1, 0), arm64.Ret()})
	require.Equal(t, []arm64.Opcode{arm64.OpRET}, opcodes(out))

	// add x1, x2, #0 becomes a mov.
	out = o.Run([]arm64.Instruction{arm64.AddImm(arm64.X1, arm64.X2, 0), arm64.Ret()})
	require.Equal(t, []arm64.Opcode{arm64.OpMOV, arm64.OpRET}, opcodes(out))

	// sub x0, x3, x3 becomes mov x0, #0.
	out = o.Run([]arm64.Instruction{arm64.SubReg(arm64.X0, arm64.X3, arm64.X3), arm64.Ret()})
	require.Equal(t, arm64.OpMOVZ, out[0].Opcode)
}

func TestSelfMoveElimination(t *testing.T) {
	o := New(1)
	out := o.Run([]arm64.Instruction{arm64.MovReg(arm64.X4, arm64.X4), arm64.Ret()})
	require.Equal(t, []arm64.Opcode{arm64.OpRET}, opcodes(out))
}

func TestCmpZeroBranchFusion(t *testing.T) {
	o := New(1)
	out := o.Run([]arm64.Instruction{
		arm64.CmpImm(arm64.X3, 0),
		arm64.BCond(arm64.EQ, "L1"),
		arm64.Ret(),
	})
	require.Equal(t, []arm64.Opcode{arm64.OpCBZ, arm64.OpRET}, opcodes(out))
	require.Equal(t, "L1", out[0].BranchTarget)
	require.Equal(t, arm64.X3, out[0].Src1)

	out = o.Run([]arm64.Instruction{
		arm64.CmpImm(arm64.X3, 0),
		arm64.BCond(arm64.NE, "L2"),
		arm64.Ret(),
	})
	require.Equal(t, arm64.OpCBNZ, out[0].Opcode)
}

func TestStoreLoadForwarding(t *testing.T) {
	o := New(1)
	out := o.Run([]arm64.Instruction{
		arm64.StrImm(arm64.X2, arm64.X29, 16),
		arm64.LdrImm(arm64.X5, arm64.X29, 16),
		arm64.Ret(),
	})
	require.Equal(t, []arm64.Opcode{arm64.OpSTR, arm64.OpMOV, arm64.OpRET}, opcodes(out))
	require.Equal(t, arm64.X5, out[1].Dest)
	require.Equal(t, arm64.X2, out[1].Src1)
}

func TestRedundantLoadElimination(t *testing.T) {
	o := New(1)
	out := o.Run([]arm64.Instruction{
		arm64.LdrImm(arm64.X2, arm64.X29, 24),
		arm64.LdrImm(arm64.X3, arm64.X29, 24),
		arm64.Ret(),
	})
	require.Equal(t, []arm64.Opcode{arm64.OpLDR, arm64.OpMOV, arm64.OpRET}, opcodes(out))

	// Dependency check: the first destination feeds the second's base.
	depend := []arm64.Instruction{
		arm64.LdrImm(arm64.X2, arm64.X29, 24),
		arm64.LdrImm(arm64.X3, arm64.X2, 24),
		arm64.Ret(),
	}
	out = o.Run(depend)
	require.Equal(t, []arm64.Opcode{arm64.OpLDR, arm64.OpLDR, arm64.OpRET}, opcodes(out))
}

func TestDeadStoreElimination(t *testing.T) {
	o := New(1)
	out := o.Run([]arm64.Instruction{
		arm64.StrImm(arm64.X2, arm64.X29, 32),
		arm64.StrImm(arm64.X3, arm64.X29, 32),
		arm64.Ret(),
	})
	require.Equal(t, []arm64.Opcode{arm64.OpSTR, arm64.OpRET}, opcodes(out))
	require.Equal(t, arm64.X3, out[0].Dest)
}

func TestStpFusion(t *testing.T) {
	o := New(1)
	out := o.Run([]arm64.Instruction{
		arm64.StrImm(arm64.X2, arm64.X29, 16),
		arm64.StrImm(arm64.X3, arm64.X29, 24),
		arm64.Ret(),
	})
	require.Equal(t, []arm64.Opcode{arm64.OpSTP, arm64.OpRET}, opcodes(out))
	require.Equal(t, int64(16), out[0].Immediate)
}

func TestMovzScratchFusion(t *testing.T) {
	o := New(1)
	out := o.Run([]arm64.Instruction{
		arm64.MovZ(arm64.X9, 7, 0),
		arm64.MovReg(arm64.X19, arm64.X9),
		arm64.MovZ(arm64.X9, 1, 0), // redefinition proves the scratch dead
		arm64.Ret(),
	})
	require.Equal(t, []arm64.Opcode{arm64.OpMOVZ, arm64.OpMOVZ, arm64.OpRET}, opcodes(out))
	require.Equal(t, arm64.X19, out[0].Dest)
	require.Equal(t, int64(7), out[0].Immediate)
}

func TestMulByTrackedConstant(t *testing.T) {
	o := New(1)
	// movz x9, #8 ; mul x0, x1, x9 — the constant is visible, so lsl.
	out := o.Run([]arm64.Instruction{
		arm64.MovZ(arm64.X9, 8, 0),
		arm64.Mul(arm64.X0, arm64.X1, arm64.X9),
		arm64.MovZ(arm64.X9, 0, 0),
		arm64.Ret(),
	})
	require.Equal(t, arm64.OpLSL, out[0].Opcode)
	require.Equal(t, int64(3), out[0].Immediate)
}

func TestLabelsAreNeverDeleted(t *testing.T) {
	o := New(3)
	label := arm64.LabelDef("keep_me")
	out := o.Run([]arm64.Instruction{
		arm64.AddImm(arm64.X1, arm64.X1, 0), // removable
		label,
		arm64.AddImm(arm64.X2, arm64.X2, 0), // removable
		arm64.Ret(),
	})
	found := false
	for i := range out {
		if out[i].IsLabelDefinition && out[i].TargetLabel == "keep_me" {
			found = true
		}
	}
	require.True(t, found)
	require.Equal(t, []arm64.Opcode{arm64.OpRET}, opcodes(out))
}

func TestNoPeepIsRespected(t *testing.T) {
	o := New(3)
	pinned := arm64.AddImm(arm64.X1, arm64.X1, 0)
	pinned.NoPeep = true
	out := o.Run([]arm64.Instruction{pinned, arm64.Ret()})
	require.Equal(t, []arm64.Opcode{arm64.OpADD, arm64.OpRET}, opcodes(out))
}

func TestBranchChaining(t *testing.T) {
	o := New(2)
	out := o.Run([]arm64.Instruction{
		arm64.B("L1"),
		arm64.LabelDef("L1"),
		arm64.B("L2"),
		arm64.LabelDef("L2"),
		arm64.Ret(),
	})
	require.Equal(t, "L2", out[0].BranchTarget)
}

func TestAdrpAddFusion(t *testing.T) {
	o := New(1)
	out := o.Run([]arm64.Instruction{
		arm64.Adrp(arm64.X0, "str_1"),
		arm64.AddLo12(arm64.X0, arm64.X0, "str_1"),
		arm64.Ret(),
	})
	require.Equal(t, []arm64.Opcode{arm64.OpADR, arm64.OpRET}, opcodes(out))
	require.Equal(t, "str_1", out[0].TargetLabel)
}

func TestStability(t *testing.T) {
	// Once optimized, further passes change nothing.
	mk := func() []arm64.Instruction {
		return []arm64.Instruction{
			arm64.CmpImm(arm64.X3, 0),
			arm64.BCond(arm64.EQ, "L1"),
			arm64.StrImm(arm64.X2, arm64.X29, 16),
			arm64.LdrImm(arm64.X5, arm64.X29, 16),
			arm64.LabelDef("L1"),
			arm64.Ret(),
		}
	}
	once := New(1).Run(mk())
	five := New(5).Run(mk())
	require.Equal(t, len(once), len(five))
	for i := range once {
		require.True(t, arm64.Equivalent(&once[i], &five[i]))
	}
}

package peephole

import (
	"fmt"

	"github.com/albanread/nbcgo/internal/compiler/arm64"
)

// The pattern catalog, in pipeline stages: simplification, immediate
// strength reduction, memory, control flow.

// livenessScanBound caps the forward scans the fusion patterns run.
const livenessScanBound = 10

func keep(ins arm64.Instruction) []arm64.Instruction {
	return []arm64.Instruction{ins}
}

// --- Stage 1: simplification ---

func simplificationPatterns() []Pattern {
	return []Pattern{
		{
			WindowSize:  1,
			Description: "add/sub #0 identity elimination",
			Matcher: func(s []arm64.Instruction, pos int) bool {
				i := &s[pos]
				// Register 31 is SP in these forms; the ORR-encoded MOV the
				// rewrite produces cannot name it.
				return (i.Opcode == arm64.OpADD || i.Opcode == arm64.OpSUB) &&
					i.UsesImmediate && i.Immediate == 0 && !i.IsMemOp &&
					i.Relocation == arm64.RelocNone && i.Dest.Valid() && i.Src1.Valid() &&
					i.Dest != arm64.XZR && i.Src1 != arm64.XZR
			},
			Transformer: func(s []arm64.Instruction, pos int) []arm64.Instruction {
				i := &s[pos]
				if i.Dest == i.Src1 {
					return []arm64.Instruction{}
				}
				return keep(arm64.MovReg(i.Dest, i.Src1))
			},
		},
		{
			WindowSize:  1,
			Description: "sub rd, rn, rn -> mov rd, #0",
			Matcher: func(s []arm64.Instruction, pos int) bool {
				i := &s[pos]
				return i.Opcode == arm64.OpSUB && !i.UsesImmediate &&
					i.Src1.Valid() && i.Src1 == i.Src2
			},
			Transformer: func(s []arm64.Instruction, pos int) []arm64.Instruction {
				return keep(arm64.MovZ(s[pos].Dest, 0, 0))
			},
		},
		{
			WindowSize:  1,
			Description: "self-move elimination",
			Matcher: func(s []arm64.Instruction, pos int) bool {
				i := &s[pos]
				return i.Opcode == arm64.OpMOV && i.Dest == i.Src1
			},
			Transformer: func(s []arm64.Instruction, pos int) []arm64.Instruction {
				return []arm64.Instruction{}
			},
		},
		{
			WindowSize:  2,
			Description: "identical mov elimination",
			Matcher: func(s []arm64.Instruction, pos int) bool {
				a, b := &s[pos], &s[pos+1]
				return a.Opcode == arm64.OpMOV && b.Opcode == arm64.OpMOV &&
					a.Dest == b.Dest && a.Src1 == b.Src1
			},
			Transformer: func(s []arm64.Instruction, pos int) []arm64.Instruction {
				return keep(s[pos])
			},
		},
		{
			WindowSize:  2,
			Description: "producer/mov fusion (dead intermediate)",
			Matcher: func(s []arm64.Instruction, pos int) bool {
				a, b := &s[pos], &s[pos+1]
				if b.Opcode != arm64.OpMOV || !a.Dest.Valid() || a.Dest != b.Src1 {
					return false
				}
				if a.Opcode.IsBranch() || a.Opcode.IsStore() || a.IsMemOp ||
					a.Relocation != arm64.RelocNone {
					return false
				}
				// The producer may not read the register it would newly
				// clobber, must not read its own destination (MOVK, BFI),
				// and the intermediate must be dead afterwards.
				if a.Reads(b.Dest) || a.Reads(a.Dest) {
					return false
				}
				return regDeadWithin(s, pos+2, a.Dest, livenessScanBound)
			},
			Transformer: func(s []arm64.Instruction, pos int) []arm64.Instruction {
				fused := s[pos]
				fused.Dest = s[pos+1].Dest
				fused.Encoding = reencodeDest(fused)
				fused.Assembly = fmt.Sprintf("%s %s, ... ; fused", fused.Opcode, fused.Dest)
				return keep(fused)
			},
		},
		{
			WindowSize:  2,
			Description: "adrp/add fusion into adr",
			Matcher: func(s []arm64.Instruction, pos int) bool {
				a, b := &s[pos], &s[pos+1]
				return a.Opcode == arm64.OpADRP && b.Opcode == arm64.OpADD &&
					b.Relocation == arm64.RelocAdd12Unsigned &&
					a.Dest == b.Dest && b.Src1 == a.Dest &&
					a.TargetLabel == b.TargetLabel
			},
			Transformer: func(s []arm64.Instruction, pos int) []arm64.Instruction {
				return keep(arm64.Adr(s[pos].Dest, s[pos].TargetLabel))
			},
		},
		{
			WindowSize:  3,
			Description: "adrp/add/add three-instruction address fusion",
			Matcher: func(s []arm64.Instruction, pos int) bool {
				a, b, c := &s[pos], &s[pos+1], &s[pos+2]
				return a.Opcode == arm64.OpADRP && b.Opcode == arm64.OpADD &&
					b.Relocation == arm64.RelocAdd12Unsigned &&
					a.TargetLabel == b.TargetLabel &&
					a.Dest == b.Dest && b.Src1 == a.Dest &&
					c.Opcode == arm64.OpADD && c.UsesImmediate &&
					c.Relocation == arm64.RelocNone &&
					c.Src1 == b.Dest && c.Dest == b.Dest &&
					arm64.CanEncodeAddSubImm(c.Immediate)
			},
			Transformer: func(s []arm64.Instruction, pos int) []arm64.Instruction {
				adr := arm64.Adr(s[pos].Dest, s[pos].TargetLabel)
				add := arm64.AddImm(s[pos+2].Dest, s[pos+2].Src1, s[pos+2].Immediate)
				return []arm64.Instruction{adr, add}
			},
		},
	}
}

// reencodeDest rebuilds the encoding of a record whose destination register
// field changed. Only the low five bits carry Rd in every form this pattern
// touches.
func reencodeDest(i arm64.Instruction) uint32 {
	return i.Encoding&^uint32(31) | uint32(i.Dest)&31
}

// --- Stage 2: strength reduction on tracked immediates ---

// These two patterns were disabled upstream for want of constant
// propagation; here the constant is only accepted when it is visible
// through the MOVZ in the same window.
func strengthPatterns() []Pattern {
	return []Pattern{
		{
			WindowSize:  2,
			Description: "mul by movz power-of-two -> lsl",
			Matcher: func(s []arm64.Instruction, pos int) bool {
				mz, mul := &s[pos], &s[pos+1]
				if mz.Opcode != arm64.OpMOVZ || mul.Opcode != arm64.OpMUL {
					return false
				}
				if mul.Src2 != mz.Dest || mul.Src1 == mz.Dest {
					return false
				}
				if !arm64.IsPowerOfTwo(mz.Immediate) {
					return false
				}
				return regDeadWithin(s, pos+2, mz.Dest, livenessScanBound)
			},
			Transformer: func(s []arm64.Instruction, pos int) []arm64.Instruction {
				mul := &s[pos+1]
				shift := arm64.Log2(s[pos].Immediate)
				return keep(arm64.Lsl(mul.Dest, mul.Src1, shift))
			},
		},
		{
			WindowSize:  2,
			Description: "mul/sdiv by movz #1 -> mov",
			Matcher: func(s []arm64.Instruction, pos int) bool {
				mz, op := &s[pos], &s[pos+1]
				if mz.Opcode != arm64.OpMOVZ || mz.Immediate != 1 {
					return false
				}
				if op.Opcode != arm64.OpMUL && op.Opcode != arm64.OpSDIV {
					return false
				}
				if op.Src2 != mz.Dest || op.Src1 == mz.Dest {
					return false
				}
				return regDeadWithin(s, pos+2, mz.Dest, livenessScanBound)
			},
			Transformer: func(s []arm64.Instruction, pos int) []arm64.Instruction {
				op := &s[pos+1]
				return keep(arm64.MovReg(op.Dest, op.Src1))
			},
		},
	}
}

// --- Stage 3: memory ---

func memoryPatterns() []Pattern {
	return []Pattern{
		{
			WindowSize:  2,
			Description: "store-load forwarding",
			Matcher: func(s []arm64.Instruction, pos int) bool {
				st, ld := &s[pos], &s[pos+1]
				return st.Opcode == arm64.OpSTR && ld.Opcode == arm64.OpLDR &&
					st.SameAddress(ld)
			},
			Transformer: func(s []arm64.Instruction, pos int) []arm64.Instruction {
				st, ld := s[pos], s[pos+1]
				if ld.Dest == st.Dest {
					return keep(st)
				}
				return []arm64.Instruction{st, arm64.MovReg(ld.Dest, st.Dest)}
			},
		},
		{
			WindowSize:  2,
			Description: "redundant load elimination",
			Matcher: func(s []arm64.Instruction, pos int) bool {
				a, b := &s[pos], &s[pos+1]
				// Dependency check: the first load's destination must not
				// feed the second load's addressing.
				return a.Opcode == arm64.OpLDR && b.Opcode == arm64.OpLDR &&
					a.SameAddress(b) && a.Dest != b.Base
			},
			Transformer: func(s []arm64.Instruction, pos int) []arm64.Instruction {
				a, b := s[pos], s[pos+1]
				if a.Dest == b.Dest {
					return keep(a)
				}
				return []arm64.Instruction{a, arm64.MovReg(b.Dest, a.Dest)}
			},
		},
		{
			WindowSize:  2,
			Description: "dead store elimination",
			Matcher: func(s []arm64.Instruction, pos int) bool {
				a, b := &s[pos], &s[pos+1]
				return a.Opcode == arm64.OpSTR && b.Opcode == arm64.OpSTR &&
					a.SameAddress(b)
			},
			Transformer: func(s []arm64.Instruction, pos int) []arm64.Instruction {
				return keep(s[pos+1])
			},
		},
		{
			WindowSize:  2,
			Description: "str/str pair fusion into stp",
			Matcher: func(s []arm64.Instruction, pos int) bool {
				a, b := &s[pos], &s[pos+1]
				return a.Opcode == arm64.OpSTR && b.Opcode == arm64.OpSTR &&
					a.Base == b.Base && a.UsesImmediate && b.UsesImmediate &&
					b.Immediate == a.Immediate+8 &&
					stpOffsetOK(a.Immediate) && a.Base != arm64.NoReg
			},
			Transformer: func(s []arm64.Instruction, pos int) []arm64.Instruction {
				a, b := &s[pos], &s[pos+1]
				return keep(arm64.Stp(a.Dest, b.Dest, a.Base, a.Immediate))
			},
		},
		{
			WindowSize:  2,
			Description: "ldr/ldr pair fusion into ldp",
			Matcher: func(s []arm64.Instruction, pos int) bool {
				a, b := &s[pos], &s[pos+1]
				return a.Opcode == arm64.OpLDR && b.Opcode == arm64.OpLDR &&
					a.Base == b.Base && a.UsesImmediate && b.UsesImmediate &&
					b.Immediate == a.Immediate+8 &&
					stpOffsetOK(a.Immediate) &&
					a.Dest != b.Dest && a.Dest != b.Base
			},
			Transformer: func(s []arm64.Instruction, pos int) []arm64.Instruction {
				a, b := &s[pos], &s[pos+1]
				return keep(arm64.Ldp(a.Dest, b.Dest, a.Base, a.Immediate))
			},
		},
		{
			WindowSize:  2,
			Description: "load-through-scratch elimination",
			Matcher: func(s []arm64.Instruction, pos int) bool {
				ld, mv := &s[pos], &s[pos+1]
				if ld.Opcode != arm64.OpLDR || mv.Opcode != arm64.OpMOV {
					return false
				}
				if mv.Src1 != ld.Dest || !isScratch(ld.Dest) || ld.Dest == mv.Dest {
					return false
				}
				return regDeadWithin(s, pos+2, ld.Dest, livenessScanBound)
			},
			Transformer: func(s []arm64.Instruction, pos int) []arm64.Instruction {
				ld := s[pos]
				return keep(arm64.LdrImm(s[pos+1].Dest, ld.Base, ld.Immediate))
			},
		},
		{
			WindowSize:  2,
			Description: "movz-to-scratch + mov-to-callee-saved fusion",
			Matcher: func(s []arm64.Instruction, pos int) bool {
				mz, mv := &s[pos], &s[pos+1]
				if mz.Opcode != arm64.OpMOVZ || mv.Opcode != arm64.OpMOV {
					return false
				}
				if mz.Relocation != arm64.RelocNone {
					return false
				}
				if mv.Src1 != mz.Dest || !isScratch(mz.Dest) || !isCalleeSaved(mv.Dest) {
					return false
				}
				// Conservative: the scratch must die within ten
				// instructions or be redefined first.
				return regDeadWithin(s, pos+2, mz.Dest, livenessScanBound)
			},
			Transformer: func(s []arm64.Instruction, pos int) []arm64.Instruction {
				mz := s[pos]
				shift := int(mz.Encoding >> 21 & 3)
				return keep(arm64.MovZ(s[pos+1].Dest, uint16(mz.Immediate), shift))
			},
		},
	}
}

func stpOffsetOK(offset int64) bool {
	return offset%8 == 0 && offset >= -512 && offset <= 504
}

func isScratch(r arm64.Reg) bool {
	return r >= arm64.X9 && r <= arm64.X15
}

func isCalleeSaved(r arm64.Reg) bool {
	return r >= arm64.X19 && r <= arm64.X28
}

// --- Stage 4: control flow ---

func controlFlowPatterns() []Pattern {
	return []Pattern{
		{
			WindowSize:  2,
			Description: "cmp #0 + b.eq/b.ne -> cbz/cbnz",
			Matcher: func(s []arm64.Instruction, pos int) bool {
				cmp, br := &s[pos], &s[pos+1]
				if cmp.Opcode != arm64.OpCMP || br.Opcode != arm64.OpBCond {
					return false
				}
				zero := (cmp.UsesImmediate && cmp.Immediate == 0) ||
					(!cmp.UsesImmediate && cmp.Src2 == arm64.XZR)
				return zero && (br.Cond == arm64.EQ || br.Cond == arm64.NE)
			},
			Transformer: func(s []arm64.Instruction, pos int) []arm64.Instruction {
				cmp, br := &s[pos], &s[pos+1]
				if br.Cond == arm64.EQ {
					return keep(arm64.Cbz(cmp.Src1, br.BranchTarget))
				}
				return keep(arm64.Cbnz(cmp.Src1, br.BranchTarget))
			},
		},
	}
}

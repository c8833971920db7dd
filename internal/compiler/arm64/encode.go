package arm64

import "fmt"

// Pure encoder functions: (mnemonic, operands) → Instruction. Every function
// returns a structurally complete record; instructions that reference labels
// carry a zero immediate and a relocation for the linker to patch.

func ins(op Opcode, enc uint32) Instruction {
	return Instruction{
		Opcode: op, Encoding: enc, Cond: CondNone,
		Dest: NoReg, Src1: NoReg, Src2: NoReg, Base: NoReg, Ra: NoReg,
	}
}

// --- Move wide ---

// MovZ is MOVZ xd, #imm16, LSL #(shift*16).
func MovZ(rd Reg, imm16 uint16, shift int) Instruction {
	i := ins(OpMOVZ, 0xD2800000|uint32(shift&3)<<21|uint32(imm16)<<5|rd.enc())
	i.Dest = rd
	i.Immediate = int64(imm16)
	i.UsesImmediate = true
	i.Assembly = movWideText("movz", rd, imm16, shift)
	return i
}

// MovK is MOVK xd, #imm16, LSL #(shift*16).
func MovK(rd Reg, imm16 uint16, shift int) Instruction {
	i := ins(OpMOVK, 0xF2800000|uint32(shift&3)<<21|uint32(imm16)<<5|rd.enc())
	i.Dest = rd
	i.Src1 = rd // MOVK merges into the existing value
	i.Immediate = int64(imm16)
	i.UsesImmediate = true
	i.Assembly = movWideText("movk", rd, imm16, shift)
	return i
}

// MovN is MOVN xd, #imm16, LSL #(shift*16).
func MovN(rd Reg, imm16 uint16, shift int) Instruction {
	i := ins(OpMOVN, 0x92800000|uint32(shift&3)<<21|uint32(imm16)<<5|rd.enc())
	i.Dest = rd
	i.Immediate = int64(imm16)
	i.UsesImmediate = true
	i.Assembly = movWideText("movn", rd, imm16, shift)
	return i
}

func movWideText(op string, rd Reg, imm16 uint16, shift int) string {
	if shift == 0 {
		return fmt.Sprintf("%s %s, #%d", op, rd, imm16)
	}
	return fmt.Sprintf("%s %s, #%d, lsl #%d", op, rd, imm16, shift*16)
}

// MovReg is MOV xd, xn (an ORR against xzr).
func MovReg(rd, rn Reg) Instruction {
	i := ins(OpMOV, 0xAA0003E0|rn.enc()<<16|rd.enc())
	i.Dest, i.Src1 = rd, rn
	i.Assembly = fmt.Sprintf("mov %s, %s", rd, rn)
	return i
}

// MovSP is MOV between sp and a general register (an ADD #0).
func MovSP(rd, rn Reg) Instruction {
	i := ins(OpMOV, 0x91000000|rn.enc()<<5|rd.enc())
	i.Dest, i.Src1 = rd, rn
	i.Assembly = fmt.Sprintf("mov %s, %s", SPName(rd), SPName(rn))
	return i
}

// MovImm materializes a 64-bit constant with MOVZ and as many MOVKs as the
// value needs. This is the fallback when an immediate form is unavailable.
func MovImm(rd Reg, v int64) []Instruction {
	u := uint64(v)
	// All-ones chunks favor MOVN.
	if v < 0 && ^u&0xFFFF_FFFF_FFFF_0000 == 0 {
		return []Instruction{MovN(rd, uint16(^u), 0)}
	}
	var out []Instruction
	first := true
	for shift := 0; shift < 4; shift++ {
		chunk := uint16(u >> (16 * shift))
		if chunk == 0 && !(first && shift == 3) {
			continue
		}
		if first {
			out = append(out, MovZ(rd, chunk, shift))
			first = false
		} else {
			out = append(out, MovK(rd, chunk, shift))
		}
	}
	if first {
		out = append(out, MovZ(rd, 0, 0))
	}
	return out
}

// --- Integer arithmetic ---

func addSubImm(op Opcode, base uint32, rd, rn Reg, imm int64, text string) Instruction {
	shifted := uint32(0)
	v := imm
	if v > 0xFFF {
		shifted = 1 << 22
		v >>= 12
	}
	i := ins(op, base|shifted|uint32(v&0xFFF)<<10|rn.enc()<<5|rd.enc())
	i.Dest, i.Src1 = rd, rn
	i.Immediate = imm
	i.UsesImmediate = true
	i.Assembly = fmt.Sprintf("%s %s, %s, #%d", text, SPName(rd), SPName(rn), imm)
	return i
}

// AddImm is ADD xd, xn, #imm (imm must satisfy CanEncodeAddSubImm).
func AddImm(rd, rn Reg, imm int64) Instruction {
	return addSubImm(OpADD, 0x91000000, rd, rn, imm, "add")
}

// SubImm is SUB xd, xn, #imm.
func SubImm(rd, rn Reg, imm int64) Instruction {
	return addSubImm(OpSUB, 0xD1000000, rd, rn, imm, "sub")
}

// CmpImm is CMP xn, #imm (SUBS xzr).
func CmpImm(rn Reg, imm int64) Instruction {
	i := addSubImm(OpCMP, 0xF1000000, XZR, rn, imm, "subs")
	i.Dest = NoReg
	i.Src1 = rn
	i.Assembly = fmt.Sprintf("cmp %s, #%d", rn, imm)
	return i
}

func threeReg(op Opcode, base uint32, rd, rn, rm Reg, text string) Instruction {
	i := ins(op, base|rm.enc()<<16|rn.enc()<<5|rd.enc())
	i.Dest, i.Src1, i.Src2 = rd, rn, rm
	i.Assembly = fmt.Sprintf("%s %s, %s, %s", text, rd, rn, rm)
	return i
}

// AddReg is ADD xd, xn, xm.
func AddReg(rd, rn, rm Reg) Instruction { return threeReg(OpADD, 0x8B000000, rd, rn, rm, "add") }

// SubReg is SUB xd, xn, xm.
func SubReg(rd, rn, rm Reg) Instruction { return threeReg(OpSUB, 0xCB000000, rd, rn, rm, "sub") }

// AddRegShifted is ADD xd, xn, xm, LSL #amount.
func AddRegShifted(rd, rn, rm Reg, amount int) Instruction {
	i := threeReg(OpADD, 0x8B000000|uint32(amount&63)<<10, rd, rn, rm, "add")
	i.Assembly = fmt.Sprintf("add %s, %s, %s, lsl #%d", rd, rn, rm, amount)
	return i
}

// Neg is NEG xd, xm (SUB from xzr).
func Neg(rd, rm Reg) Instruction {
	i := ins(OpNEG, 0xCB000000|rm.enc()<<16|XZR.enc()<<5|rd.enc())
	i.Dest, i.Src1 = rd, rm
	i.Assembly = fmt.Sprintf("neg %s, %s", rd, rm)
	return i
}

// CmpReg is CMP xn, xm (SUBS xzr).
func CmpReg(rn, rm Reg) Instruction {
	i := ins(OpCMP, 0xEB000000|rm.enc()<<16|rn.enc()<<5|XZR.enc())
	i.Src1, i.Src2 = rn, rm
	i.Assembly = fmt.Sprintf("cmp %s, %s", rn, rm)
	return i
}

// Madd is MADD xd, xn, xm, xa.
func Madd(rd, rn, rm, ra Reg) Instruction {
	i := ins(OpMADD, 0x9B000000|rm.enc()<<16|ra.enc()<<10|rn.enc()<<5|rd.enc())
	i.Dest, i.Src1, i.Src2, i.Ra = rd, rn, rm, ra
	i.Assembly = fmt.Sprintf("madd %s, %s, %s, %s", rd, rn, rm, ra)
	return i
}

// Msub is MSUB xd, xn, xm, xa.
func Msub(rd, rn, rm, ra Reg) Instruction {
	i := ins(OpMSUB, 0x9B008000|rm.enc()<<16|ra.enc()<<10|rn.enc()<<5|rd.enc())
	i.Dest, i.Src1, i.Src2, i.Ra = rd, rn, rm, ra
	i.Assembly = fmt.Sprintf("msub %s, %s, %s, %s", rd, rn, rm, ra)
	return i
}

// Mul is MUL xd, xn, xm (MADD with xzr accumulator).
func Mul(rd, rn, rm Reg) Instruction {
	i := ins(OpMUL, 0x9B007C00|rm.enc()<<16|rn.enc()<<5|rd.enc())
	i.Dest, i.Src1, i.Src2 = rd, rn, rm
	i.Assembly = fmt.Sprintf("mul %s, %s, %s", rd, rn, rm)
	return i
}

// SDiv is SDIV xd, xn, xm.
func SDiv(rd, rn, rm Reg) Instruction { return threeReg(OpSDIV, 0x9AC00C00, rd, rn, rm, "sdiv") }

// UDiv is UDIV xd, xn, xm.
func UDiv(rd, rn, rm Reg) Instruction { return threeReg(OpUDIV, 0x9AC00800, rd, rn, rm, "udiv") }

// --- Logical ---

// AndReg is AND xd, xn, xm.
func AndReg(rd, rn, rm Reg) Instruction { return threeReg(OpAND, 0x8A000000, rd, rn, rm, "and") }

// OrrReg is ORR xd, xn, xm.
func OrrReg(rd, rn, rm Reg) Instruction { return threeReg(OpORR, 0xAA000000, rd, rn, rm, "orr") }

// EorReg is EOR xd, xn, xm.
func EorReg(rd, rn, rm Reg) Instruction { return threeReg(OpEOR, 0xCA000000, rd, rn, rm, "eor") }

// BicReg is BIC xd, xn, xm.
func BicReg(rd, rn, rm Reg) Instruction { return threeReg(OpBIC, 0x8A200000, rd, rn, rm, "bic") }

// Mvn is MVN xd, xm (ORN against xzr).
func Mvn(rd, rm Reg) Instruction {
	i := ins(OpMVN, 0xAA2003E0|rm.enc()<<16|rd.enc())
	i.Dest, i.Src1 = rd, rm
	i.Assembly = fmt.Sprintf("mvn %s, %s", rd, rm)
	return i
}

func logicalImm(op Opcode, base uint32, rd, rn Reg, imm int64, text string) Instruction {
	n, immr, imms, ok := EncodeBitmaskImm(uint64(imm), true)
	if !ok {
		panic(fmt.Sprintf("BUG: %s immediate %#x is not a bitmask immediate", text, imm))
	}
	i := ins(op, base|n<<22|immr<<16|imms<<10|rn.enc()<<5|rd.enc())
	i.Dest, i.Src1 = rd, rn
	i.Immediate = imm
	i.UsesImmediate = true
	i.Assembly = fmt.Sprintf("%s %s, %s, #%#x", text, rd, rn, uint64(imm))
	return i
}

// AndImm is AND xd, xn, #bitmask.
func AndImm(rd, rn Reg, imm int64) Instruction {
	return logicalImm(OpAND, 0x92000000, rd, rn, imm, "and")
}

// OrrImm is ORR xd, xn, #bitmask.
func OrrImm(rd, rn Reg, imm int64) Instruction {
	return logicalImm(OpORR, 0xB2000000, rd, rn, imm, "orr")
}

// EorImm is EOR xd, xn, #bitmask.
func EorImm(rd, rn Reg, imm int64) Instruction {
	return logicalImm(OpEOR, 0xD2000000, rd, rn, imm, "eor")
}

// --- Shifts and bitfields ---

// Lsl is LSL xd, xn, #shift (a UBFM alias).
func Lsl(rd, rn Reg, shift int) Instruction {
	immr := uint32((64 - shift) % 64)
	imms := uint32(63 - shift)
	i := ins(OpLSL, 0xD3400000|immr<<16|imms<<10|rn.enc()<<5|rd.enc())
	i.Dest, i.Src1 = rd, rn
	i.Immediate = int64(shift)
	i.UsesImmediate = true
	i.Assembly = fmt.Sprintf("lsl %s, %s, #%d", rd, rn, shift)
	return i
}

// Lsr is LSR xd, xn, #shift.
func Lsr(rd, rn Reg, shift int) Instruction {
	i := ins(OpLSR, 0xD3400000|uint32(shift)<<16|63<<10|rn.enc()<<5|rd.enc())
	i.Dest, i.Src1 = rd, rn
	i.Immediate = int64(shift)
	i.UsesImmediate = true
	i.Assembly = fmt.Sprintf("lsr %s, %s, #%d", rd, rn, shift)
	return i
}

// Asr is ASR xd, xn, #shift (an SBFM alias).
func Asr(rd, rn Reg, shift int) Instruction {
	i := ins(OpASR, 0x93400000|uint32(shift)<<16|63<<10|rn.enc()<<5|rd.enc())
	i.Dest, i.Src1 = rd, rn
	i.Immediate = int64(shift)
	i.UsesImmediate = true
	i.Assembly = fmt.Sprintf("asr %s, %s, #%d", rd, rn, shift)
	return i
}

// LslReg is LSL xd, xn, xm (LSLV).
func LslReg(rd, rn, rm Reg) Instruction { return threeReg(OpLSL, 0x9AC02000, rd, rn, rm, "lsl") }

// LsrReg is LSR xd, xn, xm (LSRV).
func LsrReg(rd, rn, rm Reg) Instruction { return threeReg(OpLSR, 0x9AC02400, rd, rn, rm, "lsr") }

// AsrReg is ASR xd, xn, xm (ASRV).
func AsrReg(rd, rn, rm Reg) Instruction { return threeReg(OpASR, 0x9AC02800, rd, rn, rm, "asr") }

// Ubfx is UBFX xd, xn, #lsb, #width.
func Ubfx(rd, rn Reg, lsb, width int) Instruction {
	i := ins(OpUBFX, 0xD3400000|uint32(lsb)<<16|uint32(lsb+width-1)<<10|rn.enc()<<5|rd.enc())
	i.Dest, i.Src1 = rd, rn
	i.Immediate = int64(lsb)
	i.UsesImmediate = true
	i.Assembly = fmt.Sprintf("ubfx %s, %s, #%d, #%d", rd, rn, lsb, width)
	return i
}

// Sbfx is SBFX xd, xn, #lsb, #width.
func Sbfx(rd, rn Reg, lsb, width int) Instruction {
	i := ins(OpSBFX, 0x93400000|uint32(lsb)<<16|uint32(lsb+width-1)<<10|rn.enc()<<5|rd.enc())
	i.Dest, i.Src1 = rd, rn
	i.Immediate = int64(lsb)
	i.UsesImmediate = true
	i.Assembly = fmt.Sprintf("sbfx %s, %s, #%d, #%d", rd, rn, lsb, width)
	return i
}

// Bfi is BFI xd, xn, #lsb, #width (a BFM alias; xd is also a source).
func Bfi(rd, rn Reg, lsb, width int) Instruction {
	immr := uint32((64 - lsb) % 64)
	imms := uint32(width - 1)
	i := ins(OpBFI, 0xB3400000|immr<<16|imms<<10|rn.enc()<<5|rd.enc())
	i.Dest, i.Src1, i.Src2 = rd, rn, rd
	i.Immediate = int64(lsb)
	i.UsesImmediate = true
	i.Assembly = fmt.Sprintf("bfi %s, %s, #%d, #%d", rd, rn, lsb, width)
	return i
}

// Bfxil is BFXIL xd, xn, #lsb, #width.
func Bfxil(rd, rn Reg, lsb, width int) Instruction {
	i := ins(OpBFXIL, 0xB3400000|uint32(lsb)<<16|uint32(lsb+width-1)<<10|rn.enc()<<5|rd.enc())
	i.Dest, i.Src1, i.Src2 = rd, rn, rd
	i.Immediate = int64(lsb)
	i.UsesImmediate = true
	i.Assembly = fmt.Sprintf("bfxil %s, %s, #%d, #%d", rd, rn, lsb, width)
	return i
}

// --- Loads and stores ---

func memOp(op Opcode, enc uint32, val, base Reg, offset int64, text string) Instruction {
	i := ins(op, enc)
	i.Dest, i.Base = val, base
	i.Immediate = offset
	i.UsesImmediate = true
	i.IsMemOp = true
	i.Assembly = fmt.Sprintf("%s %s, [%s, #%d]", text, val, SPName(base), offset)
	return i
}

// LdrImm is LDR xt, [xn, #offset] (offset a multiple of 8 in [0,32760]).
func LdrImm(rt, rn Reg, offset int64) Instruction {
	return memOp(OpLDR, 0xF9400000|uint32(offset/8)<<10|rn.enc()<<5|rt.enc(), rt, rn, offset, "ldr")
}

// StrImm is STR xt, [xn, #offset].
func StrImm(rt, rn Reg, offset int64) Instruction {
	return memOp(OpSTR, 0xF9000000|uint32(offset/8)<<10|rn.enc()<<5|rt.enc(), rt, rn, offset, "str")
}

// LdrWImm is LDR wt, [xn, #offset] (32-bit, offset a multiple of 4).
func LdrWImm(rt, rn Reg, offset int64) Instruction {
	i := memOp(OpLDRW, 0xB9400000|uint32(offset/4)<<10|rn.enc()<<5|rt.enc(), rt, rn, offset, "ldr")
	i.Assembly = fmt.Sprintf("ldr %s, [%s, #%d]", rt.W(), SPName(rn), offset)
	return i
}

// StrWImm is STR wt, [xn, #offset].
func StrWImm(rt, rn Reg, offset int64) Instruction {
	i := memOp(OpSTRW, 0xB9000000|uint32(offset/4)<<10|rn.enc()<<5|rt.enc(), rt, rn, offset, "str")
	i.Assembly = fmt.Sprintf("str %s, [%s, #%d]", rt.W(), SPName(rn), offset)
	return i
}

// LdrswImm is LDRSW xt, [xn, #offset].
func LdrswImm(rt, rn Reg, offset int64) Instruction {
	return memOp(OpLDRSW, 0xB9800000|uint32(offset/4)<<10|rn.enc()<<5|rt.enc(), rt, rn, offset, "ldrsw")
}

// LdrbImm is LDRB wt, [xn, #offset].
func LdrbImm(rt, rn Reg, offset int64) Instruction {
	i := memOp(OpLDRB, 0x39400000|uint32(offset)<<10|rn.enc()<<5|rt.enc(), rt, rn, offset, "ldrb")
	i.Assembly = fmt.Sprintf("ldrb %s, [%s, #%d]", rt.W(), SPName(rn), offset)
	return i
}

// Ldur is LDUR xt, [xn, #simm9].
func Ldur(rt, rn Reg, offset int64) Instruction {
	return memOp(OpLDUR, 0xF8400000|uint32(offset&0x1FF)<<12|rn.enc()<<5|rt.enc(), rt, rn, offset, "ldur")
}

// Stur is STUR xt, [xn, #simm9].
func Stur(rt, rn Reg, offset int64) Instruction {
	return memOp(OpSTUR, 0xF8000000|uint32(offset&0x1FF)<<12|rn.enc()<<5|rt.enc(), rt, rn, offset, "stur")
}

// SturF is STUR dt, [xn, #simm9].
func SturF(dt, rn Reg, offset int64) Instruction {
	i := memOp(OpSTRF, 0xFC000000|uint32(offset&0x1FF)<<12|rn.enc()<<5|dt.enc(), dt, rn, offset, "stur")
	return i
}

// LdurF is LDUR dt, [xn, #simm9].
func LdurF(dt, rn Reg, offset int64) Instruction {
	i := memOp(OpLDRF, 0xFC400000|uint32(offset&0x1FF)<<12|rn.enc()<<5|dt.enc(), dt, rn, offset, "ldur")
	return i
}

// LdrFImm is LDR dt, [xn, #offset] (FP 64-bit).
func LdrFImm(dt, rn Reg, offset int64) Instruction {
	return memOp(OpLDRF, 0xFD400000|uint32(offset/8)<<10|rn.enc()<<5|dt.enc(), dt, rn, offset, "ldr")
}

// StrFImm is STR dt, [xn, #offset].
func StrFImm(dt, rn Reg, offset int64) Instruction {
	return memOp(OpSTRF, 0xFD000000|uint32(offset/8)<<10|rn.enc()<<5|dt.enc(), dt, rn, offset, "str")
}

// LdrScaled is LDR xt, [xn, xm, LSL #3].
func LdrScaled(rt, rn, rm Reg) Instruction {
	i := ins(OpLDRScaled, 0xF8607800|rm.enc()<<16|rn.enc()<<5|rt.enc())
	i.Dest, i.Base, i.Src2 = rt, rn, rm
	i.IsMemOp = true
	i.Assembly = fmt.Sprintf("ldr %s, [%s, %s, lsl #3]", rt, SPName(rn), rm)
	return i
}

// LdrWScaled is LDR wt, [xn, xm, LSL #2] (32-bit character cells).
func LdrWScaled(rt, rn, rm Reg) Instruction {
	i := ins(OpLDRScaled, 0xB8607800|rm.enc()<<16|rn.enc()<<5|rt.enc())
	i.Dest, i.Base, i.Src2 = rt, rn, rm
	i.IsMemOp = true
	i.Assembly = fmt.Sprintf("ldr %s, [%s, %s, lsl #2]", rt.W(), SPName(rn), rm)
	return i
}

// StrScaled is STR xt, [xn, xm, LSL #3].
func StrScaled(rt, rn, rm Reg) Instruction {
	i := ins(OpSTR, 0xF8207800|rm.enc()<<16|rn.enc()<<5|rt.enc())
	i.Dest, i.Base, i.Src2 = rt, rn, rm
	i.IsMemOp = true
	i.Assembly = fmt.Sprintf("str %s, [%s, %s, lsl #3]", rt, SPName(rn), rm)
	return i
}

// StrWScaled is STR wt, [xn, xm, LSL #2].
func StrWScaled(rt, rn, rm Reg) Instruction {
	i := ins(OpSTRW, 0xB8207800|rm.enc()<<16|rn.enc()<<5|rt.enc())
	i.Dest, i.Base, i.Src2 = rt, rn, rm
	i.IsMemOp = true
	i.Assembly = fmt.Sprintf("str %s, [%s, %s, lsl #2]", rt.W(), SPName(rn), rm)
	return i
}

// StrFScaled is STR dt, [xn, xm, LSL #3].
func StrFScaled(dt, rn, rm Reg) Instruction {
	i := ins(OpSTRF, 0xFC207800|rm.enc()<<16|rn.enc()<<5|dt.enc())
	i.Dest, i.Base, i.Src2 = dt, rn, rm
	i.IsMemOp = true
	i.Assembly = fmt.Sprintf("str %s, [%s, %s, lsl #3]", dt, SPName(rn), rm)
	return i
}

// LdrFScaled is LDR dt, [xn, xm, LSL #3].
func LdrFScaled(dt, rn, rm Reg) Instruction {
	i := ins(OpLDRF, 0xFC607800|rm.enc()<<16|rn.enc()<<5|dt.enc())
	i.Dest, i.Base, i.Src2 = dt, rn, rm
	i.IsMemOp = true
	i.Assembly = fmt.Sprintf("ldr %s, [%s, %s, lsl #3]", dt, SPName(rn), rm)
	return i
}

// StrPre is STR xt, [xn, #offset]! (pre-indexed).
func StrPre(rt, rn Reg, offset int64) Instruction {
	i := memOp(OpSTR, 0xF8000C00|uint32(offset&0x1FF)<<12|rn.enc()<<5|rt.enc(), rt, rn, offset, "str")
	i.Assembly = fmt.Sprintf("str %s, [%s, #%d]!", rt, SPName(rn), offset)
	i.NoPeep = true // base register update must not be rewritten
	return i
}

// LdrPost is LDR xt, [xn], #offset (post-indexed).
func LdrPost(rt, rn Reg, offset int64) Instruction {
	i := memOp(OpLDR, 0xF8400400|uint32(offset&0x1FF)<<12|rn.enc()<<5|rt.enc(), rt, rn, offset, "ldr")
	i.Assembly = fmt.Sprintf("ldr %s, [%s], #%d", rt, SPName(rn), offset)
	i.NoPeep = true
	return i
}

// Stp is STP xt1, xt2, [xn, #offset].
func Stp(rt1, rt2, rn Reg, offset int64) Instruction {
	i := ins(OpSTP, 0xA9000000|uint32((offset/8)&0x7F)<<15|rt2.enc()<<10|rn.enc()<<5|rt1.enc())
	i.Dest, i.Src1, i.Base = rt1, rt2, rn
	i.Immediate = offset
	i.UsesImmediate = true
	i.IsMemOp = true
	i.Assembly = fmt.Sprintf("stp %s, %s, [%s, #%d]", rt1, rt2, SPName(rn), offset)
	return i
}

// Ldp is LDP xt1, xt2, [xn, #offset].
func Ldp(rt1, rt2, rn Reg, offset int64) Instruction {
	i := ins(OpLDP, 0xA9400000|uint32((offset/8)&0x7F)<<15|rt2.enc()<<10|rn.enc()<<5|rt1.enc())
	i.Dest, i.Src1, i.Base = rt1, rt2, rn
	i.Immediate = offset
	i.UsesImmediate = true
	i.IsMemOp = true
	i.Assembly = fmt.Sprintf("ldp %s, %s, [%s, #%d]", rt1, rt2, SPName(rn), offset)
	return i
}

// StpPre is STP xt1, xt2, [xn, #offset]! — the prologue save form.
func StpPre(rt1, rt2, rn Reg, offset int64) Instruction {
	i := Stp(rt1, rt2, rn, offset)
	i.Encoding = 0xA9800000 | uint32((offset/8)&0x7F)<<15 | rt2.enc()<<10 | rn.enc()<<5 | rt1.enc()
	i.Assembly = fmt.Sprintf("stp %s, %s, [%s, #%d]!", rt1, rt2, SPName(rn), offset)
	i.NoPeep = true
	return i
}

// LdpPost is LDP xt1, xt2, [xn], #offset — the epilogue restore form.
func LdpPost(rt1, rt2, rn Reg, offset int64) Instruction {
	i := Ldp(rt1, rt2, rn, 0)
	i.Encoding = 0xA8C00000 | uint32((offset/8)&0x7F)<<15 | rt2.enc()<<10 | rn.enc()<<5 | rt1.enc()
	i.Immediate = offset
	i.Assembly = fmt.Sprintf("ldp %s, %s, [%s], #%d", rt1, rt2, SPName(rn), offset)
	i.NoPeep = true
	return i
}

// --- Branches ---

// B is an unconditional branch to a label.
func B(label string) Instruction {
	i := ins(OpB, 0x14000000)
	i.Relocation = RelocPcRelative26
	i.TargetLabel, i.BranchTarget = label, label
	i.Assembly = "b " + label
	return i
}

// BL is a branch-and-link to a label or runtime symbol.
func BL(label string) Instruction {
	i := ins(OpBL, 0x94000000)
	i.Relocation = RelocPcRelative26
	i.TargetLabel, i.BranchTarget = label, label
	i.Assembly = "bl " + label
	return i
}

// BCond is B.<cond> to a label.
func BCond(c Cond, label string) Instruction {
	i := ins(OpBCond, 0x54000000|uint32(c))
	i.Cond = c
	i.Relocation = RelocPcRelative19
	i.TargetLabel, i.BranchTarget = label, label
	i.Assembly = fmt.Sprintf("b.%s %s", c, label)
	return i
}

// Cbz is CBZ xt, label.
func Cbz(rt Reg, label string) Instruction {
	i := ins(OpCBZ, 0xB4000000|rt.enc())
	i.Src1 = rt
	i.Relocation = RelocPcRelative19
	i.TargetLabel, i.BranchTarget = label, label
	i.Assembly = fmt.Sprintf("cbz %s, %s", rt, label)
	return i
}

// Cbnz is CBNZ xt, label.
func Cbnz(rt Reg, label string) Instruction {
	i := ins(OpCBNZ, 0xB5000000|rt.enc())
	i.Src1 = rt
	i.Relocation = RelocPcRelative19
	i.TargetLabel, i.BranchTarget = label, label
	i.Assembly = fmt.Sprintf("cbnz %s, %s", rt, label)
	return i
}

// Br is BR xn.
func Br(rn Reg) Instruction {
	i := ins(OpBR, 0xD61F0000|rn.enc()<<5)
	i.Src1 = rn
	i.Assembly = fmt.Sprintf("br %s", rn)
	return i
}

// Blr is BLR xn.
func Blr(rn Reg) Instruction {
	i := ins(OpBLR, 0xD63F0000|rn.enc()<<5)
	i.Src1 = rn
	i.Assembly = fmt.Sprintf("blr %s", rn)
	return i
}

// Ret is RET (through x30).
func Ret() Instruction {
	i := ins(OpRET, 0xD65F03C0)
	i.Src1 = LR
	i.Assembly = "ret"
	return i
}

// --- Address formation ---

// Adr is ADR xd, label (byte-precise, ±1 MiB).
func Adr(rd Reg, label string) Instruction {
	i := ins(OpADR, 0x10000000|rd.enc())
	i.Dest = rd
	i.Relocation = RelocPcRelative19 // patched via the 21-bit immlo/immhi split
	i.TargetLabel = label
	i.JITAttr = AttrAddressLoad
	i.Assembly = fmt.Sprintf("adr %s, %s", rd, label)
	return i
}

// Adrp is ADRP xd, label (page-aligned base).
func Adrp(rd Reg, label string) Instruction {
	i := ins(OpADRP, 0x90000000|rd.enc())
	i.Dest = rd
	i.Relocation = RelocAdrpHigh21
	i.TargetLabel = label
	i.JITAttr = AttrAddressLoad
	i.Assembly = fmt.Sprintf("adrp %s, %s", rd, label)
	return i
}

// AddLo12 is ADD xd, xn, :lo12:label.
func AddLo12(rd, rn Reg, label string) Instruction {
	i := ins(OpADD, 0x91000000|rn.enc()<<5|rd.enc())
	i.Dest, i.Src1 = rd, rn
	i.Relocation = RelocAdd12Unsigned
	i.TargetLabel = label
	i.JITAttr = AttrAddressLoad
	i.Assembly = fmt.Sprintf("add %s, %s, :lo12:%s", rd, rn, label)
	return i
}

// LdrLo12 is LDR xt, [xn, :lo12:label] with the scaled page-offset
// relocation.
func LdrLo12(rt, rn Reg, label string) Instruction {
	i := ins(OpLDR, 0xF9400000|rn.enc()<<5|rt.enc())
	i.Dest, i.Base = rt, rn
	i.IsMemOp = true
	i.Relocation = RelocPageOffset12Scaled
	i.TargetLabel = label
	i.JITAttr = AttrAddressLoad
	i.Assembly = fmt.Sprintf("ldr %s, [%s, :lo12:%s]", rt, rn, label)
	return i
}

// LdrLit is LDR xt, <label> (PC-relative literal, ±1 MiB) — the veneer's
// address-word load.
func LdrLit(rt Reg, label string) Instruction {
	i := ins(OpLDR, 0x58000000|rt.enc())
	i.Dest = rt
	i.IsMemOp = true
	i.Relocation = RelocPcRelative19
	i.TargetLabel = label
	i.Assembly = fmt.Sprintf("ldr %s, %s", rt, label)
	return i
}

// MovzAbs / MovkAbs materialize a symbol's 64-bit absolute address across a
// MOVZ + MOVK×3 group patched by the linker.
func MovzAbs(rd Reg, label string, shift int) Instruction {
	i := MovZ(rd, 0, shift)
	i.Relocation = RelocMovzMovkAbs64
	i.TargetLabel = label
	i.Assembly = fmt.Sprintf("movz %s, #:abs_g%d:%s", rd, shift, label)
	return i
}

// MovkAbs is the MOVK member of an abs64 group.
func MovkAbs(rd Reg, label string, shift int) Instruction {
	i := MovK(rd, 0, shift)
	i.Relocation = RelocMovzMovkAbs64
	i.TargetLabel = label
	i.Assembly = fmt.Sprintf("movk %s, #:abs_g%d:%s", rd, shift, label)
	return i
}

// --- Conditional set / select ---

// Cset is CSET xd, cond.
func Cset(rd Reg, c Cond) Instruction {
	i := ins(OpCSET, 0x9A9F07E0|uint32(c.Invert())<<12|rd.enc())
	i.Dest = rd
	i.Cond = c
	i.Assembly = fmt.Sprintf("cset %s, %s", rd, c)
	return i
}

// Csetm is CSETM xd, cond — all-ones on true, the BCPL boolean form.
func Csetm(rd Reg, c Cond) Instruction {
	i := ins(OpCSETM, 0xDA9F03E0|uint32(c.Invert())<<12|rd.enc())
	i.Dest = rd
	i.Cond = c
	i.Assembly = fmt.Sprintf("csetm %s, %s", rd, c)
	return i
}

// Csinv is CSINV xd, xn, xm, cond.
func Csinv(rd, rn, rm Reg, c Cond) Instruction {
	i := ins(OpCSINV, 0xDA800000|rm.enc()<<16|uint32(c)<<12|rn.enc()<<5|rd.enc())
	i.Dest, i.Src1, i.Src2 = rd, rn, rm
	i.Cond = c
	i.Assembly = fmt.Sprintf("csinv %s, %s, %s, %s", rd, rn, rm, c)
	return i
}

// Csel is CSEL xd, xn, xm, cond.
func Csel(rd, rn, rm Reg, c Cond) Instruction {
	i := ins(OpCSEL, 0x9A800000|rm.enc()<<16|uint32(c)<<12|rn.enc()<<5|rd.enc())
	i.Dest, i.Src1, i.Src2 = rd, rn, rm
	i.Cond = c
	i.Assembly = fmt.Sprintf("csel %s, %s, %s, %s", rd, rn, rm, c)
	return i
}

// Fcsel is FCSEL dd, dn, dm, cond.
func Fcsel(dd, dn, dm Reg, c Cond) Instruction {
	i := ins(OpFCSEL, 0x1E600C00|dm.enc()<<16|uint32(c)<<12|dn.enc()<<5|dd.enc())
	i.Dest, i.Src1, i.Src2 = dd, dn, dm
	i.Cond = c
	i.Assembly = fmt.Sprintf("fcsel %s, %s, %s, %s", dd, dn, dm, c)
	return i
}

// --- Floating point ---

func fpThreeReg(op Opcode, base uint32, dd, dn, dm Reg, text string) Instruction {
	i := ins(op, base|dm.enc()<<16|dn.enc()<<5|dd.enc())
	i.Dest, i.Src1, i.Src2 = dd, dn, dm
	i.Assembly = fmt.Sprintf("%s %s, %s, %s", text, dd, dn, dm)
	return i
}

// FAdd is FADD dd, dn, dm.
func FAdd(dd, dn, dm Reg) Instruction { return fpThreeReg(OpFADD, 0x1E602800, dd, dn, dm, "fadd") }

// FSub is FSUB dd, dn, dm.
func FSub(dd, dn, dm Reg) Instruction { return fpThreeReg(OpFSUB, 0x1E603800, dd, dn, dm, "fsub") }

// FMul is FMUL dd, dn, dm.
func FMul(dd, dn, dm Reg) Instruction { return fpThreeReg(OpFMUL, 0x1E600800, dd, dn, dm, "fmul") }

// FDiv is FDIV dd, dn, dm.
func FDiv(dd, dn, dm Reg) Instruction { return fpThreeReg(OpFDIV, 0x1E601800, dd, dn, dm, "fdiv") }

// FMadd is FMADD dd, dn, dm, da.
func FMadd(dd, dn, dm, da Reg) Instruction {
	i := ins(OpFMADD, 0x1F400000|dm.enc()<<16|da.enc()<<10|dn.enc()<<5|dd.enc())
	i.Dest, i.Src1, i.Src2, i.Ra = dd, dn, dm, da
	i.Assembly = fmt.Sprintf("fmadd %s, %s, %s, %s", dd, dn, dm, da)
	return i
}

// FMsub is FMSUB dd, dn, dm, da.
func FMsub(dd, dn, dm, da Reg) Instruction {
	i := ins(OpFMSUB, 0x1F408000|dm.enc()<<16|da.enc()<<10|dn.enc()<<5|dd.enc())
	i.Dest, i.Src1, i.Src2, i.Ra = dd, dn, dm, da
	i.Assembly = fmt.Sprintf("fmsub %s, %s, %s, %s", dd, dn, dm, da)
	return i
}

func fpTwoReg(op Opcode, base uint32, dd, dn Reg, text string) Instruction {
	i := ins(op, base|dn.enc()<<5|dd.enc())
	i.Dest, i.Src1 = dd, dn
	i.Assembly = fmt.Sprintf("%s %s, %s", text, dd, dn)
	return i
}

// FNeg is FNEG dd, dn.
func FNeg(dd, dn Reg) Instruction { return fpTwoReg(OpFNEG, 0x1E614000, dd, dn, "fneg") }

// FSqrt is FSQRT dd, dn.
func FSqrt(dd, dn Reg) Instruction { return fpTwoReg(OpFSQRT, 0x1E61C000, dd, dn, "fsqrt") }

// FAbs is FABS dd, dn.
func FAbs(dd, dn Reg) Instruction { return fpTwoReg(OpFABS, 0x1E60C000, dd, dn, "fabs") }

// FRintM is FRINTM dd, dn — round toward minus infinity (ENTIER).
func FRintM(dd, dn Reg) Instruction { return fpTwoReg(OpFRINTM, 0x1E654000, dd, dn, "frintm") }

// FRintZ is FRINTZ dd, dn — round toward zero (TRUNC).
func FRintZ(dd, dn Reg) Instruction { return fpTwoReg(OpFRINTZ, 0x1E65C000, dd, dn, "frintz") }

// FCmp is FCMP dn, dm.
func FCmp(dn, dm Reg) Instruction {
	i := ins(OpFCMP, 0x1E602000|dm.enc()<<16|dn.enc()<<5)
	i.Src1, i.Src2 = dn, dm
	i.Assembly = fmt.Sprintf("fcmp %s, %s", dn, dm)
	return i
}

// FMovRegFP is FMOV dd, dn.
func FMovRegFP(dd, dn Reg) Instruction { return fpTwoReg(OpFMOV, 0x1E604000, dd, dn, "fmov") }

// FMovToFP is FMOV dd, xn — a bit-pattern move into a float register.
func FMovToFP(dd, xn Reg) Instruction {
	i := ins(OpFMOV, 0x9E670000|xn.enc()<<5|dd.enc())
	i.Dest, i.Src1 = dd, xn
	i.Assembly = fmt.Sprintf("fmov %s, %s", dd, xn)
	return i
}

// FMovFromFP is FMOV xd, dn — a bit-pattern move out of a float register.
func FMovFromFP(xd, dn Reg) Instruction {
	i := ins(OpFMOV, 0x9E660000|dn.enc()<<5|xd.enc())
	i.Dest, i.Src1 = xd, dn
	i.Assembly = fmt.Sprintf("fmov %s, %s", xd, dn)
	return i
}

// FMovWS is FMOV wd, sn — the low 32 bits of a single out to a GPR.
func FMovWS(wd, sn Reg) Instruction {
	i := ins(OpFMOV, 0x1E260000|sn.enc()<<5|wd.enc())
	i.Dest, i.Src1 = wd, sn
	i.Assembly = fmt.Sprintf("fmov %s, s%d", wd.W(), sn-D0)
	return i
}

// FMovSW is FMOV sd, wn — a 32-bit pattern into a single register.
func FMovSW(sd, wn Reg) Instruction {
	i := ins(OpFMOV, 0x1E270000|wn.enc()<<5|sd.enc())
	i.Dest, i.Src1 = sd, wn
	i.Assembly = fmt.Sprintf("fmov s%d, %s", sd-D0, wn.W())
	return i
}

// Scvtf is SCVTF dd, xn — signed 64-bit integer to double.
func Scvtf(dd, xn Reg) Instruction {
	i := ins(OpSCVTF, 0x9E620000|xn.enc()<<5|dd.enc())
	i.Dest, i.Src1 = dd, xn
	i.Assembly = fmt.Sprintf("scvtf %s, %s", dd, xn)
	return i
}

// Fcvtzs is FCVTZS xd, dn — double to signed 64-bit, toward zero.
func Fcvtzs(xd, dn Reg) Instruction {
	i := ins(OpFCVTZS, 0x9E780000|dn.enc()<<5|xd.enc())
	i.Dest, i.Src1 = xd, dn
	i.Assembly = fmt.Sprintf("fcvtzs %s, %s", xd, dn)
	return i
}

// Fcvtms is FCVTMS xd, dn — double to signed 64-bit, toward minus infinity.
func Fcvtms(xd, dn Reg) Instruction {
	i := ins(OpFCVTMS, 0x9E700000|dn.enc()<<5|xd.enc())
	i.Dest, i.Src1 = xd, dn
	i.Assembly = fmt.Sprintf("fcvtms %s, %s", xd, dn)
	return i
}

// FcvtSD is FCVT dd, sn — single to double.
func FcvtSD(dd, sn Reg) Instruction {
	i := ins(OpFCVT, 0x1E22C000|sn.enc()<<5|dd.enc())
	i.Dest, i.Src1 = dd, sn
	i.Assembly = fmt.Sprintf("fcvt %s, s%d", dd, sn-D0)
	return i
}

// FcvtDS is FCVT sd, dn — double to single.
func FcvtDS(sd, dn Reg) Instruction {
	i := ins(OpFCVT, 0x1E624000|dn.enc()<<5|sd.enc())
	i.Dest, i.Src1 = sd, dn
	i.Assembly = fmt.Sprintf("fcvt s%d, %s", sd-D0, dn)
	return i
}

// --- System ---

// Nop is NOP.
func Nop() Instruction {
	i := ins(OpNOP, 0xD503201F)
	i.Assembly = "nop"
	return i
}

// DmbIsh is DMB ISH.
func DmbIsh() Instruction {
	i := ins(OpDMB, 0xD5033BBF)
	i.Assembly = "dmb ish"
	i.NoPeep = true
	return i
}

// Isb is ISB.
func Isb() Instruction {
	i := ins(OpISB, 0xD5033FDF)
	i.Assembly = "isb"
	i.NoPeep = true
	return i
}

// Brk is BRK #imm16.
func Brk(imm uint16) Instruction {
	i := ins(OpBRK, 0xD4200000|uint32(imm)<<5)
	i.Immediate = int64(imm)
	i.UsesImmediate = true
	i.Assembly = fmt.Sprintf("brk #%d", imm)
	i.NoPeep = true
	return i
}

// Svc is SVC #imm16.
func Svc(imm uint16) Instruction {
	i := ins(OpSVC, 0xD4000001|uint32(imm)<<5)
	i.Immediate = int64(imm)
	i.UsesImmediate = true
	i.Assembly = fmt.Sprintf("svc #%d", imm)
	i.NoPeep = true
	return i
}

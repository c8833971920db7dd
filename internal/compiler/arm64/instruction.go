package arm64

import "fmt"

// Opcode is the semantic operation of an instruction record. It covers
// exactly the families the code generator emits.
type Opcode uint8

const (
	OpUnknown Opcode = iota

	// Moves.
	OpMOV
	OpMOVZ
	OpMOVK
	OpMOVN
	OpFMOV

	// Integer arithmetic.
	OpADD
	OpSUB
	OpSUBS
	OpMUL
	OpMADD
	OpMSUB
	OpSDIV
	OpUDIV
	OpNEG

	// Float arithmetic.
	OpFADD
	OpFSUB
	OpFMUL
	OpFDIV
	OpFMADD
	OpFMSUB
	OpFNEG
	OpFSQRT
	OpFABS
	OpFRINTM
	OpFRINTZ

	// Logical.
	OpAND
	OpORR
	OpEOR
	OpBIC
	OpMVN

	// Compares.
	OpCMP
	OpFCMP

	// Shifts and bitfields.
	OpLSL
	OpLSR
	OpASR
	OpUBFX
	OpSBFX
	OpBFI
	OpBFXIL

	// Memory.
	OpSTR
	OpLDR
	OpLDUR
	OpSTUR
	OpLDRB
	OpSTRB
	OpSTP
	OpLDP
	OpSTRF
	OpLDRF
	OpSTRW
	OpLDRW
	OpLDRSW
	OpLDRScaled

	// Branches.
	OpB
	OpBL
	OpBR
	OpBLR
	OpRET
	OpBCond
	OpCBZ
	OpCBNZ

	// Address formation.
	OpADR
	OpADRP

	// Conditional sets/selects.
	OpCSET
	OpCSETM
	OpCSINV
	OpCSEL
	OpFCSEL

	// Conversions.
	OpSCVTF
	OpFCVTZS
	OpFCVTMS
	OpFCVT

	// System.
	OpNOP
	OpDMB
	OpISB
	OpBRK
	OpSVC

	// SIMD pairwise reductions.
	OpFADDP
	OpFMINP
	OpFMAXP
	OpADDP
	OpSMINP
	OpSMAXP

	// Pseudo records: label definitions, raw data words, directives.
	OpDirective
)

var opcodeNames = [...]string{
	OpUnknown: "unknown",
	OpMOV:     "mov", OpMOVZ: "movz", OpMOVK: "movk", OpMOVN: "movn", OpFMOV: "fmov",
	OpADD: "add", OpSUB: "sub", OpSUBS: "subs", OpMUL: "mul", OpMADD: "madd",
	OpMSUB: "msub", OpSDIV: "sdiv", OpUDIV: "udiv", OpNEG: "neg",
	OpFADD: "fadd", OpFSUB: "fsub", OpFMUL: "fmul", OpFDIV: "fdiv",
	OpFMADD: "fmadd", OpFMSUB: "fmsub", OpFNEG: "fneg", OpFSQRT: "fsqrt",
	OpFABS: "fabs", OpFRINTM: "frintm", OpFRINTZ: "frintz",
	OpAND: "and", OpORR: "orr", OpEOR: "eor", OpBIC: "bic", OpMVN: "mvn",
	OpCMP: "cmp", OpFCMP: "fcmp",
	OpLSL: "lsl", OpLSR: "lsr", OpASR: "asr",
	OpUBFX: "ubfx", OpSBFX: "sbfx", OpBFI: "bfi", OpBFXIL: "bfxil",
	OpSTR: "str", OpLDR: "ldr", OpLDUR: "ldur", OpSTUR: "stur",
	OpLDRB: "ldrb", OpSTRB: "strb", OpSTP: "stp", OpLDP: "ldp",
	OpSTRF: "str", OpLDRF: "ldr", OpSTRW: "str", OpLDRW: "ldr",
	OpLDRSW: "ldrsw", OpLDRScaled: "ldr",
	OpB: "b", OpBL: "bl", OpBR: "br", OpBLR: "blr", OpRET: "ret",
	OpBCond: "b.", OpCBZ: "cbz", OpCBNZ: "cbnz",
	OpADR: "adr", OpADRP: "adrp",
	OpCSET: "cset", OpCSETM: "csetm", OpCSINV: "csinv", OpCSEL: "csel", OpFCSEL: "fcsel",
	OpSCVTF: "scvtf", OpFCVTZS: "fcvtzs", OpFCVTMS: "fcvtms", OpFCVT: "fcvt",
	OpNOP: "nop", OpDMB: "dmb", OpISB: "isb", OpBRK: "brk", OpSVC: "svc",
	OpFADDP: "faddp", OpFMINP: "fminp", OpFMAXP: "fmaxp",
	OpADDP: "addp", OpSMINP: "sminp", OpSMAXP: "smaxp",
	OpDirective: "directive",
}

// String implements fmt.Stringer.
func (o Opcode) String() string { return opcodeNames[o] }

// IsBranch reports control-transfer opcodes.
func (o Opcode) IsBranch() bool {
	switch o {
	case OpB, OpBL, OpBR, OpBLR, OpRET, OpBCond, OpCBZ, OpCBNZ:
		return true
	}
	return false
}

// IsLoad reports memory-read opcodes.
func (o Opcode) IsLoad() bool {
	switch o {
	case OpLDR, OpLDUR, OpLDRB, OpLDP, OpLDRF, OpLDRW, OpLDRSW, OpLDRScaled:
		return true
	}
	return false
}

// IsStore reports memory-write opcodes.
func (o Opcode) IsStore() bool {
	switch o {
	case OpSTR, OpSTUR, OpSTRB, OpSTP, OpSTRF, OpSTRW:
		return true
	}
	return false
}

// Segment places an instruction record in the output image.
type Segment uint8

const (
	SegCode Segment = iota
	SegData
	SegRodata
)

// String implements fmt.Stringer.
func (s Segment) String() string {
	switch s {
	case SegCode:
		return "code"
	case SegData:
		return "data"
	case SegRodata:
		return "rodata"
	default:
		return "segment?"
	}
}

// Relocation tags how the linker must patch an instruction's encoding.
type Relocation uint8

const (
	RelocNone Relocation = iota
	RelocPcRelative19
	RelocPcRelative26
	RelocAdrpHigh21
	RelocAdd12Unsigned
	RelocPageOffset12Scaled
	RelocMovzMovkAbs64
)

var relocNames = [...]string{
	RelocNone:               "none",
	RelocPcRelative19:       "pcrel19",
	RelocPcRelative26:       "pcrel26",
	RelocAdrpHigh21:         "adrp-hi21",
	RelocAdd12Unsigned:      "add-lo12",
	RelocPageOffset12Scaled: "pageoff12",
	RelocMovzMovkAbs64:      "abs64",
}

// String implements fmt.Stringer.
func (r Relocation) String() string { return relocNames[r] }

// JITAttr carries auxiliary semantic tags for the peephole and linker.
type JITAttr uint8

const (
	AttrNone JITAttr = iota
	// AttrAddressLoad marks an instruction participating in an
	// ADRP/ADD/LDR address-materialization group.
	AttrAddressLoad
	// AttrVeneerWord marks a veneer's embedded absolute-address quadword.
	AttrVeneerWord
)

// Instruction is the unit the encoder emits and the peephole, linker and
// JIT consume. Encoding is the 32-bit little-endian instruction word;
// Assembly is for listings only and is never parsed.
type Instruction struct {
	Encoding uint32
	Address  uint64
	Assembly string

	Opcode Opcode

	Dest Reg
	Src1 Reg
	Src2 Reg
	Base Reg
	Ra   Reg

	Immediate     int64
	UsesImmediate bool
	IsMemOp       bool

	Segment    Segment
	Relocation Relocation

	// TargetLabel names the symbol a relocation refers to. BranchTarget
	// carries the label a branch jumps to (for branches the two coincide).
	TargetLabel  string
	BranchTarget string

	ResolvedSymbol    string
	ResolvedAddress   uint64
	RelocationApplied bool

	IsLabelDefinition bool
	IsDataValue       bool
	NoPeep            bool

	JITAttr JITAttr
	Cond    Cond
}

// LabelDef builds the pseudo-record defining a label.
func LabelDef(name string) Instruction {
	return Instruction{
		Opcode:            OpDirective,
		IsLabelDefinition: true,
		TargetLabel:       name,
		Assembly:          name + ":",
		Cond:              CondNone,
		Dest:              NoReg, Src1: NoReg, Src2: NoReg, Base: NoReg, Ra: NoReg,
	}
}

// DataWord64 builds the pair of records holding one little-endian 64-bit
// data value (each record carries 32 bits of the image).
func DataWord64(v uint64, segment Segment) [2]Instruction {
	lo := Instruction{
		Opcode: OpDirective, IsDataValue: true, Segment: segment,
		Encoding: uint32(v), Assembly: fmt.Sprintf(".quad %#x", v),
		Cond: CondNone, Dest: NoReg, Src1: NoReg, Src2: NoReg, Base: NoReg, Ra: NoReg,
		Immediate: int64(v), UsesImmediate: true,
	}
	hi := Instruction{
		Opcode: OpDirective, IsDataValue: true, Segment: segment,
		Encoding: uint32(v >> 32), Assembly: "; high half",
		Cond: CondNone, Dest: NoReg, Src1: NoReg, Src2: NoReg, Base: NoReg, Ra: NoReg,
	}
	return [2]Instruction{lo, hi}
}

// IsPseudo reports records that occupy no code bytes themselves (labels and
// directives; data values do occupy image bytes).
func (i *Instruction) IsPseudo() bool {
	return i.Opcode == OpDirective && !i.IsDataValue
}

// SameAddress reports whether two memory operations address the same
// base+offset slot.
func (i *Instruction) SameAddress(o *Instruction) bool {
	return i.IsMemOp && o.IsMemOp && i.Base == o.Base &&
		i.UsesImmediate && o.UsesImmediate && i.Immediate == o.Immediate
}

// Reads reports whether the instruction reads register r.
func (i *Instruction) Reads(r Reg) bool {
	if r == NoReg {
		return false
	}
	if i.Src1 == r || i.Src2 == r || i.Base == r || i.Ra == r {
		return true
	}
	// Stores read their "destination" field as the value source.
	if i.Opcode.IsStore() && i.Dest == r {
		return true
	}
	return false
}

// Writes reports whether the instruction writes register r.
func (i *Instruction) Writes(r Reg) bool {
	if r == NoReg || i.Dest == NoReg {
		return false
	}
	return i.Dest == r && !i.Opcode.IsStore()
}

// String implements fmt.Stringer, rendering the listing text.
func (i *Instruction) String() string {
	if i.Assembly != "" {
		return i.Assembly
	}
	return fmt.Sprintf("%s ...", i.Opcode)
}

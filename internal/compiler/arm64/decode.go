package arm64

import "fmt"

// Decoding queries used by the linker round-trip property and the lister.

// DecodeBranchOffset extracts the byte offset a patched branch encodes,
// so that decode(encoding) == target − address can be asserted after
// linking.
func DecodeBranchOffset(i *Instruction) (int64, error) {
	switch i.Opcode {
	case OpB, OpBL:
		imm26 := int64(i.Encoding & 0x03FFFFFF)
		// sign extend 26 bits
		imm26 = imm26 << 38 >> 38
		return imm26 * 4, nil
	case OpBCond, OpCBZ, OpCBNZ:
		imm19 := int64(i.Encoding >> 5 & 0x7FFFF)
		imm19 = imm19 << 45 >> 45
		return imm19 * 4, nil
	default:
		return 0, fmt.Errorf("arm64: %s does not encode a branch offset", i.Opcode)
	}
}

// IsDirectCall reports a BL record.
func IsDirectCall(i *Instruction) bool { return i.Opcode == OpBL }

// BranchRange returns the reach in bytes of the instruction's branch form.
func BranchRange(i *Instruction) int64 {
	switch i.Opcode {
	case OpB, OpBL:
		return 128 << 20 // ±128 MiB
	case OpBCond, OpCBZ, OpCBNZ:
		return 1 << 20 // ±1 MiB
	default:
		return 0
	}
}

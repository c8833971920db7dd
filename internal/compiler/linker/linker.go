// Package linker finalizes instruction streams: it assigns addresses,
// collects label definitions, patches relocations through a bit patcher,
// and synthesizes veneers for runtime calls beyond direct-branch range.
package linker

import (
	"encoding/binary"
	"fmt"

	"github.com/albanread/nbcgo/internal/compiler/arm64"
	"github.com/albanread/nbcgo/internal/compiler/rt"
)

const (
	// VeneerSize is the fixed footprint of one veneer:
	// ldr x10, #8 ; br x10 ; .quad address.
	VeneerSize = 16

	directRange = 128 << 20 // BL/B reach
	condRange   = 1 << 20   // B.cond/CBZ/CBNZ reach
)

// VeneerLabel names the veneer for an external symbol.
func VeneerLabel(symbol string) string { return "veneer_" + symbol }

// Image is a linked code image ready for the JIT commit or object writer.
type Image struct {
	Base         uint64
	Instructions []arm64.Instruction
	Labels       map[string]uint64
	// Size is the byte length of the image.
	Size int
}

// Bytes renders the image's little-endian byte representation.
func (img *Image) Bytes() []byte {
	out := make([]byte, 0, img.Size)
	var word [4]byte
	for i := range img.Instructions {
		ins := &img.Instructions[i]
		if ins.IsPseudo() {
			continue
		}
		binary.LittleEndian.PutUint32(word[:], ins.Encoding)
		out = append(out, word[:]...)
	}
	return out
}

// EntryAddress returns the address of a defined label.
func (img *Image) EntryAddress(label string) (uint64, error) {
	addr, ok := img.Labels[label]
	if !ok {
		return 0, fmt.Errorf("linker: label %q not defined in image", label)
	}
	return addr, nil
}

// Linker links one image at a time. It consults the runtime registry for
// symbols no label defines.
type Linker struct {
	registry *rt.Registry
}

// New returns a linker over the given registry.
func New(registry *rt.Registry) *Linker {
	return &Linker{registry: registry}
}

// Link lays the stream out at base. externals lists the runtime symbols the
// external-function scanner found; one veneer per symbol is placed at the
// head of the code section and used for any call the direct range cannot
// cover.
func (l *Linker) Link(base uint64, externals []string, stream []arm64.Instruction) (*Image, error) {
	img := &Image{Base: base, Labels: make(map[string]uint64)}

	// Veneers first so their addresses precede all code.
	img.Instructions = append(img.Instructions, l.veneers(externals)...)
	img.Instructions = append(img.Instructions, stream...)

	// Pass 1: address assignment and label collection. Every non-pseudo
	// record occupies 4 bytes; labels consume none.
	addr := base
	for i := range img.Instructions {
		ins := &img.Instructions[i]
		ins.Address = addr
		if ins.IsLabelDefinition {
			if _, dup := img.Labels[ins.TargetLabel]; dup {
				return nil, fmt.Errorf("linker: label %q defined twice", ins.TargetLabel)
			}
			img.Labels[ins.TargetLabel] = addr
			continue
		}
		if ins.IsPseudo() {
			continue
		}
		addr += 4
	}
	img.Size = int(addr - base)

	// Pass 2: relocation patching.
	for i := range img.Instructions {
		ins := &img.Instructions[i]
		if ins.Relocation == arm64.RelocNone || ins.IsLabelDefinition {
			continue
		}
		target, symbol, err := l.resolve(img, ins)
		if err != nil {
			return nil, err
		}
		if ins.IsDataValue {
			// An absolute quadword (vtable slot): the pair of records
			// carries the full 64-bit target.
			if i+1 >= len(img.Instructions) || !img.Instructions[i+1].IsDataValue {
				return nil, fmt.Errorf("linker: data relocation for %q missing its pair record", ins.TargetLabel)
			}
			ins.Encoding = uint32(target)
			img.Instructions[i+1].Encoding = uint32(target >> 32)
			ins.RelocationApplied = true
			ins.ResolvedSymbol = symbol
			ins.ResolvedAddress = target
			continue
		}
		if err := patch(ins, target); err != nil {
			return nil, err
		}
		ins.ResolvedSymbol = symbol
		ins.ResolvedAddress = target
	}
	return img, nil
}

// resolve finds the target address for an instruction's label: a defined
// label wins; otherwise the runtime registry is consulted, rerouting through
// the symbol's veneer when the direct branch cannot reach.
func (l *Linker) resolve(img *Image, ins *arm64.Instruction) (uint64, string, error) {
	label := ins.TargetLabel
	if addr, ok := img.Labels[label]; ok {
		return addr, label, nil
	}
	entry, ok := l.registry.Lookup(label)
	if !ok {
		return 0, "", fmt.Errorf("linker: undefined label %q", label)
	}
	if entry.Addr == 0 {
		return 0, "", fmt.Errorf("linker: runtime symbol %q has no bound address", label)
	}
	target := uint64(entry.Addr)
	if ins.Opcode == arm64.OpBL && !inRange(ins.Address, target, directRange) {
		veneer, ok := img.Labels[VeneerLabel(label)]
		if !ok {
			return 0, "", fmt.Errorf("linker: call to %q out of range and no veneer reserved", label)
		}
		return veneer, label, nil
	}
	return target, label, nil
}

// veneers synthesizes the 16-byte stubs: ldr x10, #8 ; br x10 ; .quad addr.
// The quadword lives in the code section so instruction and data cache
// maintenance both cover it.
func (l *Linker) veneers(externals []string) []arm64.Instruction {
	var out []arm64.Instruction
	for _, symbol := range externals {
		entry, ok := l.registry.Lookup(symbol)
		if !ok {
			continue
		}
		wordLabel := VeneerLabel(symbol) + "_addr"
		out = append(out, arm64.LabelDef(VeneerLabel(symbol)))

		ldr := arm64.LdrLit(arm64.X10, wordLabel)
		ldr.NoPeep = true
		out = append(out, ldr)

		br := arm64.Br(arm64.X10)
		br.NoPeep = true
		out = append(out, br)

		out = append(out, arm64.LabelDef(wordLabel))
		words := arm64.DataWord64(uint64(entry.Addr), arm64.SegCode)
		words[0].JITAttr = arm64.AttrVeneerWord
		words[1].JITAttr = arm64.AttrVeneerWord
		out = append(out, words[0], words[1])
	}
	return out
}

func inRange(pc, target uint64, reach int64) bool {
	diff := int64(target) - int64(pc)
	return diff >= -reach && diff < reach
}

func patch(ins *arm64.Instruction, target uint64) error {
	pc := ins.Address
	switch ins.Relocation {
	case arm64.RelocPcRelative26:
		diff := int64(target) - int64(pc)
		if diff%4 != 0 || !inRange(pc, target, directRange) {
			return fmt.Errorf("linker: pcrel26 target %#x out of range from %#x", target, pc)
		}
		ins.Encoding = patchBits(ins.Encoding, 0, 26, uint32(diff/4))
	case arm64.RelocPcRelative19:
		if ins.Opcode == arm64.OpADR {
			// ADR carries a split 21-bit byte offset.
			diff := int64(target) - int64(pc)
			if diff < -(1<<20) || diff >= 1<<20 {
				return fmt.Errorf("linker: adr target %#x out of range from %#x", target, pc)
			}
			ins.Encoding = patchBits(ins.Encoding, 29, 2, uint32(diff&3))
			ins.Encoding = patchBits(ins.Encoding, 5, 19, uint32(diff>>2))
			break
		}
		diff := int64(target) - int64(pc)
		if diff%4 != 0 || !inRange(pc, target, condRange) {
			return fmt.Errorf("linker: pcrel19 target %#x out of range from %#x", target, pc)
		}
		ins.Encoding = patchBits(ins.Encoding, 5, 19, uint32(diff/4))
	case arm64.RelocAdrpHigh21:
		pagediff := int64(target>>12) - int64(pc>>12)
		if pagediff < -(1<<20) || pagediff >= 1<<20 {
			return fmt.Errorf("linker: adrp target %#x out of range from %#x", target, pc)
		}
		ins.Encoding = patchBits(ins.Encoding, 29, 2, uint32(pagediff&3))
		ins.Encoding = patchBits(ins.Encoding, 5, 19, uint32(pagediff>>2))
	case arm64.RelocAdd12Unsigned:
		ins.Encoding = patchBits(ins.Encoding, 10, 12, uint32(target&0xFFF))
	case arm64.RelocPageOffset12Scaled:
		off := target & 0xFFF
		if off%8 != 0 {
			return fmt.Errorf("linker: pageoff12 target %#x not 8-byte aligned", target)
		}
		ins.Encoding = patchBits(ins.Encoding, 10, 12, uint32(off/8))
	case arm64.RelocMovzMovkAbs64:
		hw := ins.Encoding >> 21 & 3
		ins.Encoding = patchBits(ins.Encoding, 5, 16, uint32(target>>(16*hw)))
	default:
		return fmt.Errorf("linker: unhandled relocation %s", ins.Relocation)
	}
	ins.RelocationApplied = true
	return nil
}

// patchBits splices value into encoding's bit range [lo, lo+width).
func patchBits(encoding uint32, lo, width uint, value uint32) uint32 {
	mask := (uint32(1)<<width - 1) << lo
	return encoding&^mask | value<<lo&mask
}

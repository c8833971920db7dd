package linker

import (
	"fmt"

	"github.com/albanread/nbcgo/internal/compiler/arm64"
)

// ExternalReloc records a relocation left for a downstream static linker:
// the object path keeps runtime calls symbolic instead of patching them.
type ExternalReloc struct {
	Offset uint64
	Symbol string // the source-level name; the object uses the _-prefixed label
	Kind   arm64.Relocation
}

// LinkObject lays the stream out at offset zero, resolves internal labels,
// and returns the image plus the external relocations the object file must
// carry. No veneers are synthesized: reaching far symbols is the static
// linker's business.
func (l *Linker) LinkObject(stream []arm64.Instruction) (*Image, []ExternalReloc, error) {
	img := &Image{Base: 0, Labels: make(map[string]uint64)}
	img.Instructions = append(img.Instructions, stream...)

	addr := uint64(0)
	for i := range img.Instructions {
		ins := &img.Instructions[i]
		ins.Address = addr
		if ins.IsLabelDefinition {
			if _, dup := img.Labels[ins.TargetLabel]; dup {
				return nil, nil, fmt.Errorf("linker: label %q defined twice", ins.TargetLabel)
			}
			img.Labels[ins.TargetLabel] = addr
			continue
		}
		if ins.IsPseudo() {
			continue
		}
		addr += 4
	}
	img.Size = int(addr)

	var externals []ExternalReloc
	for i := range img.Instructions {
		ins := &img.Instructions[i]
		if ins.Relocation == arm64.RelocNone || ins.IsLabelDefinition {
			continue
		}
		if target, defined := img.Labels[ins.TargetLabel]; defined {
			if ins.IsDataValue {
				if i+1 >= len(img.Instructions) || !img.Instructions[i+1].IsDataValue {
					return nil, nil, fmt.Errorf("linker: data relocation for %q missing its pair record", ins.TargetLabel)
				}
				ins.Encoding = uint32(target)
				img.Instructions[i+1].Encoding = uint32(target >> 32)
				ins.RelocationApplied = true
				continue
			}
			if err := patch(ins, target); err != nil {
				return nil, nil, err
			}
			ins.ResolvedSymbol = ins.TargetLabel
			ins.ResolvedAddress = target
			continue
		}
		if _, known := l.registry.Lookup(ins.TargetLabel); !known {
			return nil, nil, fmt.Errorf("linker: undefined label %q", ins.TargetLabel)
		}
		externals = append(externals, ExternalReloc{
			Offset: ins.Address,
			Symbol: ins.TargetLabel,
			Kind:   ins.Relocation,
		})
	}
	return img, externals, nil
}

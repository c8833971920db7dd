package linker

import (
	"fmt"
	"io"
)

// WriteListing produces the disassembly listing: address, hex encoding,
// assembly text, and a relocation annotation where one was applied.
func WriteListing(w io.Writer, img *Image) {
	for i := range img.Instructions {
		ins := &img.Instructions[i]
		if ins.IsLabelDefinition {
			fmt.Fprintf(w, "%016x %s\n", ins.Address, ins.Assembly)
			continue
		}
		if ins.IsPseudo() {
			continue
		}
		note := ""
		if ins.RelocationApplied {
			note = fmt.Sprintf("\t; %s -> %s @ %#x", ins.Relocation, ins.ResolvedSymbol, ins.ResolvedAddress)
		}
		fmt.Fprintf(w, "%016x  %08x  %s%s\n", ins.Address, ins.Encoding, ins.Assembly, note)
	}
}

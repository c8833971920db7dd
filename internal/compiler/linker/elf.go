package linker

import (
	"bytes"
	"encoding/binary"
	"sort"

	"github.com/albanread/nbcgo/internal/compiler/arm64"
	"github.com/albanread/nbcgo/internal/compiler/rt"
)

// WriteELF serializes a relocatable AArch64 ELF64 object: the image bytes
// as .text, defined labels as local symbols, runtime imports as undefined
// globals under their standalone labels (e.g. _WRITEF), and the external
// relocations as .rela.text entries.
func WriteELF(img *Image, externals []ExternalReloc, registry *rt.Registry) []byte {
	const (
		shnUndef   = 0
		textShndx  = 1
		ehSize     = 64
		shentSize  = 64
		symentSize = 24
		relaSize   = 24
	)

	text := img.Bytes()

	// Symbol table: null, section, locals (defined labels), then globals
	// (undefined imports). sh_info = index of first global.
	type sym struct {
		name  string
		value uint64
		shndx uint16
		info  uint8
	}
	var symsList []sym
	symsList = append(symsList, sym{}) // null symbol

	labelNames := make([]string, 0, len(img.Labels))
	for name := range img.Labels {
		labelNames = append(labelNames, name)
	}
	sort.Strings(labelNames)
	for _, name := range labelNames {
		symsList = append(symsList, sym{
			name: name, value: img.Labels[name], shndx: textShndx,
			info: 0<<4 | 2, // STB_LOCAL, STT_FUNC
		})
	}
	firstGlobal := len(symsList)

	symIndex := make(map[string]int)
	importNames := make(map[string]bool)
	for _, r := range externals {
		importNames[r.Symbol] = true
	}
	imports := make([]string, 0, len(importNames))
	for name := range importNames {
		imports = append(imports, name)
	}
	sort.Strings(imports)
	for _, name := range imports {
		label := "_" + name
		if entry, ok := registry.Lookup(name); ok {
			label = entry.Label
		}
		symIndex[name] = len(symsList)
		symsList = append(symsList, sym{
			name: label, shndx: shnUndef,
			info: 1<<4 | 2, // STB_GLOBAL, STT_FUNC
		})
	}

	// String table.
	var strtab bytes.Buffer
	strtab.WriteByte(0)
	strOff := make([]uint32, len(symsList))
	for i := 1; i < len(symsList); i++ {
		strOff[i] = uint32(strtab.Len())
		strtab.WriteString(symsList[i].name)
		strtab.WriteByte(0)
	}

	var symtab bytes.Buffer
	le := binary.LittleEndian
	for i, s := range symsList {
		var rec [symentSize]byte
		le.PutUint32(rec[0:], strOff[i])
		rec[4] = s.info
		le.PutUint16(rec[6:], s.shndx)
		le.PutUint64(rec[8:], s.value)
		symtab.Write(rec[:])
	}

	// Relocations.
	var rela bytes.Buffer
	for _, r := range externals {
		var rec [relaSize]byte
		le.PutUint64(rec[0:], r.Offset)
		le.PutUint64(rec[8:], uint64(symIndex[r.Symbol])<<32|uint64(elfRelocType(r.Kind)))
		rela.Write(rec[:])
	}

	// Section layout: null, .text, .rela.text, .symtab, .strtab, .shstrtab.
	shstr := []string{"", ".text", ".rela.text", ".symtab", ".strtab", ".shstrtab"}
	var shstrtab bytes.Buffer
	shstrOff := make([]uint32, len(shstr))
	for i, s := range shstr {
		shstrOff[i] = uint32(shstrtab.Len())
		shstrtab.WriteString(s)
		shstrtab.WriteByte(0)
	}

	type section struct {
		nameOff   uint32
		typ       uint32
		flags     uint64
		data      []byte
		link      uint32
		info      uint32
		align     uint64
		entsize   uint64
	}
	sections := []section{
		{},
		{nameOff: shstrOff[1], typ: 1 /* PROGBITS */, flags: 0x2 | 0x4, data: text, align: 4},
		{nameOff: shstrOff[2], typ: 4 /* RELA */, data: rela.Bytes(), link: 3, info: 1, align: 8, entsize: relaSize},
		{nameOff: shstrOff[3], typ: 2 /* SYMTAB */, data: symtab.Bytes(), link: 4, info: uint32(firstGlobal), align: 8, entsize: symentSize},
		{nameOff: shstrOff[4], typ: 3 /* STRTAB */, data: strtab.Bytes(), align: 1},
		{nameOff: shstrOff[5], typ: 3 /* STRTAB */, data: shstrtab.Bytes(), align: 1},
	}

	// Place section bodies after the ELF header, then the section headers.
	var body bytes.Buffer
	offsets := make([]uint64, len(sections))
	cursor := uint64(ehSize)
	for i := 1; i < len(sections); i++ {
		for cursor%8 != 0 {
			body.WriteByte(0)
			cursor++
		}
		offsets[i] = cursor
		body.Write(sections[i].data)
		cursor += uint64(len(sections[i].data))
	}
	for cursor%8 != 0 {
		body.WriteByte(0)
		cursor++
	}
	shoff := cursor

	var out bytes.Buffer
	// ELF header.
	out.Write([]byte{0x7f, 'E', 'L', 'F', 2, 1, 1, 0, 0, 0, 0, 0, 0, 0, 0, 0})
	hdr := make([]byte, ehSize-16)
	le.PutUint16(hdr[0:], 1)    // ET_REL
	le.PutUint16(hdr[2:], 183)  // EM_AARCH64
	le.PutUint32(hdr[4:], 1)    // EV_CURRENT
	le.PutUint64(hdr[24:], shoff)
	le.PutUint16(hdr[36:], ehSize)
	le.PutUint16(hdr[42:], shentSize)
	le.PutUint16(hdr[44:], uint16(len(sections)))
	le.PutUint16(hdr[46:], uint16(len(sections)-1)) // shstrtab index
	out.Write(hdr)
	out.Write(body.Bytes())

	for i, s := range sections {
		var sh [shentSize]byte
		le.PutUint32(sh[0:], s.nameOff)
		le.PutUint32(sh[4:], s.typ)
		le.PutUint64(sh[8:], s.flags)
		le.PutUint64(sh[24:], offsets[i])
		le.PutUint64(sh[32:], uint64(len(s.data)))
		le.PutUint32(sh[40:], s.link)
		le.PutUint32(sh[44:], s.info)
		le.PutUint64(sh[48:], s.align)
		le.PutUint64(sh[56:], s.entsize)
		out.Write(sh[:])
	}
	return out.Bytes()
}

// elfRelocType maps the backend relocation kinds onto R_AARCH64_*.
func elfRelocType(k arm64.Relocation) uint32 {
	switch k {
	case arm64.RelocPcRelative26:
		return 283 // R_AARCH64_CALL26
	case arm64.RelocPcRelative19:
		return 280 // R_AARCH64_CONDBR19
	case arm64.RelocAdrpHigh21:
		return 275 // R_AARCH64_ADR_PREL_PG_HI21
	case arm64.RelocAdd12Unsigned:
		return 277 // R_AARCH64_ADD_ABS_LO12_NC
	case arm64.RelocPageOffset12Scaled:
		return 286 // R_AARCH64_LDST64_ABS_LO12_NC
	case arm64.RelocMovzMovkAbs64:
		return 263 // R_AARCH64_MOVW_UABS_G0
	default:
		return 0
	}
}

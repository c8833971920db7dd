package codegen

import (
	"encoding/binary"
	"fmt"
	"math"

	"github.com/albanread/nbcgo/internal/compiler/analysis"
	"github.com/albanread/nbcgo/internal/compiler/arm64"
)

// DataGenerator interns literals into the rodata section and lays out
// vtables. Layout contracts:
//
//   - string literal: a 64-bit length word, then length 32-bit character
//     cells, padded to 16 bytes
//   - float constant: an 8-byte IEEE-754 double
//   - packed literal: its 64-bit bit-identical image (only shapes of at
//     most 64 bits are interned; wider shapes are built on the heap)
//   - vtable: 64-bit method addresses, slot-indexed by the class table
type DataGenerator struct {
	records []arm64.Instruction
	strings map[string]string  // literal -> label
	floats  map[float64]string // value -> label
	packed  map[uint64]string  // image -> label
	labels  *LabelManager
}

// NewDataGenerator returns an empty rodata generator.
func NewDataGenerator(labels *LabelManager) *DataGenerator {
	return &DataGenerator{
		strings: make(map[string]string),
		floats:  make(map[float64]string),
		packed:  make(map[uint64]string),
		labels:  labels,
	}
}

// Records returns the accumulated rodata stream, appended after all code.
func (d *DataGenerator) Records() []arm64.Instruction { return d.records }

func (d *DataGenerator) emitWord(v uint64) {
	words := arm64.DataWord64(v, arm64.SegRodata)
	d.records = append(d.records, words[0], words[1])
}

// InternString returns the label of the string's rodata image, interning it
// on first use.
func (d *DataGenerator) InternString(value string) string {
	if label, ok := d.strings[value]; ok {
		return label
	}
	label := d.labels.Fresh("str")
	d.strings[value] = label
	d.records = append(d.records, arm64.LabelDef(label))

	runes := []rune(value)
	d.emitWord(uint64(len(runes)))
	// 32-bit cells, two per quadword.
	quads := 0
	for i := 0; i < len(runes); i += 2 {
		w := uint64(uint32(runes[i]))
		if i+1 < len(runes) {
			w |= uint64(uint32(runes[i+1])) << 32
		}
		d.emitWord(w)
		quads++
	}
	// Pad the image to a 16-byte boundary.
	if (8+quads*8)%16 != 0 {
		d.emitWord(0)
	}
	return label
}

// InternFloat returns the label of an 8-byte double constant.
func (d *DataGenerator) InternFloat(value float64) string {
	if label, ok := d.floats[value]; ok {
		return label
	}
	label := d.labels.Fresh("fconst")
	d.floats[value] = label
	d.records = append(d.records, arm64.LabelDef(label))
	d.emitWord(math.Float64bits(value))
	return label
}

// InternPacked returns the label of a packed literal's 64-bit image.
func (d *DataGenerator) InternPacked(image uint64) string {
	if label, ok := d.packed[image]; ok {
		return label
	}
	label := d.labels.Fresh("packed")
	d.packed[image] = label
	d.records = append(d.records, arm64.LabelDef(label))
	d.emitWord(image)
	return label
}

// EmitTable lays out a TABLE initializer: a length word then the elements.
func (d *DataGenerator) EmitTable(values []uint64) string {
	label := d.labels.Fresh("table")
	d.records = append(d.records, arm64.LabelDef(label))
	d.emitWord(uint64(len(values)))
	for _, v := range values {
		d.emitWord(v)
	}
	return label
}

// EmitVTables lays out one vtable per class: an array of method code
// addresses, slot-indexed. Slots are emitted as data words carrying a
// label reference each; the linker patches them through the abs64 pair
// convention used for data (the image writer resolves the label directly).
func (d *DataGenerator) EmitVTables(classes *analysis.ClassTable) {
	for _, name := range classes.Order() {
		info, _ := classes.Lookup(name)
		d.records = append(d.records, arm64.LabelDef(info.VTableLabel()))
		for _, m := range info.Methods {
			words := arm64.DataWord64(0, arm64.SegRodata)
			words[0].TargetLabel = analysis.MethodLabel(m.Definer, m.Name)
			words[0].Relocation = arm64.RelocMovzMovkAbs64
			words[0].Assembly = fmt.Sprintf(".quad %s", words[0].TargetLabel)
			d.records = append(d.records, words[0], words[1])
		}
	}
}

// AppendBytes is used by the object-file path to render rodata words.
func AppendBytes(out []byte, records []arm64.Instruction) []byte {
	var w [4]byte
	for i := range records {
		r := &records[i]
		if r.IsPseudo() {
			continue
		}
		binary.LittleEndian.PutUint32(w[:], r.Encoding)
		out = append(out, w[:]...)
	}
	return out
}

package linker

import (
	"bytes"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/albanread/nbcgo/internal/compiler/arm64"
	"github.com/albanread/nbcgo/internal/compiler/rt"
)

func newLinker(t *testing.T, bindings map[string]uintptr) *Linker {
	t.Helper()
	reg := rt.NewRegistry()
	for name, addr := range bindings {
		require.NoError(t, reg.Bind(name, addr))
	}
	return New(reg)
}

func TestAddressAssignment(t *testing.T) {
	lk := newLinker(t, nil)
	img, err := lk.Link(0x10000, nil, []arm64.Instruction{
		arm64.LabelDef("START"),
		arm64.Nop(),
		arm64.Nop(),
		arm64.LabelDef("mid"),
		arm64.Ret(),
	})
	require.NoError(t, err)
	require.Equal(t, uint64(0x10000), img.Labels["START"])
	require.Equal(t, uint64(0x10008), img.Labels["mid"], "labels consume no space")
	require.Equal(t, 12, img.Size)
}

func TestBranchRoundTrip(t *testing.T) {
	// For every branch with a defined target:
	// decode(encoding) == target_address - instruction_address.
	lk := newLinker(t, nil)
	img, err := lk.Link(0x4000, nil, []arm64.Instruction{
		arm64.LabelDef("START"),
		arm64.B("end"),
		arm64.Cbz(arm64.X0, "end"),
		arm64.BCond(arm64.NE, "START"),
		arm64.Nop(),
		arm64.LabelDef("end"),
		arm64.Ret(),
	})
	require.NoError(t, err)

	for i := range img.Instructions {
		ins := &img.Instructions[i]
		if !ins.Opcode.IsBranch() || ins.Relocation == arm64.RelocNone {
			continue
		}
		require.True(t, ins.RelocationApplied)
		off, err := arm64.DecodeBranchOffset(ins)
		require.NoError(t, err)
		require.Equal(t, int64(ins.ResolvedAddress)-int64(ins.Address), off,
			"round-trip failed for %s", ins.Assembly)
	}
}

func TestUndefinedLabelIsFatal(t *testing.T) {
	lk := newLinker(t, nil)
	_, err := lk.Link(0, nil, []arm64.Instruction{arm64.B("nowhere")})
	require.Error(t, err)
	require.Contains(t, err.Error(), "nowhere")
}

func TestDuplicateLabelIsFatal(t *testing.T) {
	lk := newLinker(t, nil)
	_, err := lk.Link(0, nil, []arm64.Instruction{
		arm64.LabelDef("twice"),
		arm64.LabelDef("twice"),
	})
	require.Error(t, err)
}

func TestDirectRuntimeCallInRange(t *testing.T) {
	lk := newLinker(t, map[string]uintptr{"WRITEN": 0x20000})
	img, err := lk.Link(0x10000, nil, []arm64.Instruction{
		arm64.LabelDef("START"),
		arm64.BL("WRITEN"),
		arm64.Ret(),
	})
	require.NoError(t, err)

	bl := &img.Instructions[1]
	require.Equal(t, uint64(0x20000), bl.ResolvedAddress)
	off, err := arm64.DecodeBranchOffset(bl)
	require.NoError(t, err)
	require.Equal(t, int64(0x20000-0x10000), off)
}

func TestVeneerForOutOfRangeCall(t *testing.T) {
	far := uintptr(1) << 40
	lk := newLinker(t, map[string]uintptr{"WRITEN": far})
	img, err := lk.Link(0x10000, []string{"WRITEN"}, []arm64.Instruction{
		arm64.LabelDef("START"),
		arm64.BL("WRITEN"),
		arm64.Ret(),
	})
	require.NoError(t, err)

	// The veneer sits at the head of the code section: 16 bytes of
	// ldr/br/address-quadword, and the call targets it.
	veneerAddr, ok := img.Labels[VeneerLabel("WRITEN")]
	require.True(t, ok)
	require.Equal(t, uint64(0x10000), veneerAddr)

	var bl *arm64.Instruction
	for i := range img.Instructions {
		if img.Instructions[i].Opcode == arm64.OpBL {
			bl = &img.Instructions[i]
		}
	}
	require.NotNil(t, bl)
	require.Equal(t, veneerAddr, bl.ResolvedAddress)

	// The veneer's embedded quadword is the absolute target, stored in the
	// code segment so cache maintenance covers it.
	addrWordAt, ok := img.Labels[VeneerLabel("WRITEN")+"_addr"]
	require.True(t, ok)
	require.Equal(t, veneerAddr+8, addrWordAt)
	for i := range img.Instructions {
		ins := &img.Instructions[i]
		if ins.JITAttr == arm64.AttrVeneerWord && ins.Address == addrWordAt {
			require.Equal(t, uint32(far), ins.Encoding)
			require.Equal(t, arm64.SegCode, ins.Segment)
		}
	}
}

func TestUnboundRuntimeSymbolIsFatal(t *testing.T) {
	lk := newLinker(t, nil)
	_, err := lk.Link(0, nil, []arm64.Instruction{arm64.BL("WRITEN")})
	require.Error(t, err)
	require.Contains(t, err.Error(), "no bound address")
}

func TestAdrpAddPatching(t *testing.T) {
	lk := newLinker(t, nil)
	img, err := lk.Link(0x10000, nil, []arm64.Instruction{
		arm64.LabelDef("START"),
		arm64.Adrp(arm64.X0, "blob"),
		arm64.AddLo12(arm64.X0, arm64.X0, "blob"),
		arm64.Ret(),
		arm64.LabelDef("blob"),
		arm64.DataWord64(0xDEADBEEF, arm64.SegRodata)[0],
		arm64.DataWord64(0xDEADBEEF, arm64.SegRodata)[1],
	})
	require.NoError(t, err)

	blob := img.Labels["blob"]
	adrp := &img.Instructions[1]
	add := &img.Instructions[2]
	require.True(t, adrp.RelocationApplied)
	require.True(t, add.RelocationApplied)
	// The ADD's low-12 field carries the byte offset within the page.
	require.Equal(t, uint32(blob&0xFFF), add.Encoding>>10&0xFFF)
}

func TestDataQuadRelocation(t *testing.T) {
	words := arm64.DataWord64(0, arm64.SegRodata)
	words[0].TargetLabel = "target"
	words[0].Relocation = arm64.RelocMovzMovkAbs64

	lk := newLinker(t, nil)
	img, err := lk.Link(0x7FF0000, nil, []arm64.Instruction{
		arm64.LabelDef("START"),
		arm64.Ret(),
		arm64.LabelDef("vt"),
		words[0],
		words[1],
		arm64.LabelDef("target"),
		arm64.Ret(),
	})
	require.NoError(t, err)

	target := img.Labels["target"]
	lo := img.Instructions[3]
	hi := img.Instructions[4]
	require.Equal(t, uint32(target), lo.Encoding)
	require.Equal(t, uint32(target>>32), hi.Encoding)
}

func TestImageBytes(t *testing.T) {
	lk := newLinker(t, nil)
	img, err := lk.Link(0, nil, []arm64.Instruction{
		arm64.LabelDef("START"),
		arm64.Nop(),
		arm64.Ret(),
	})
	require.NoError(t, err)

	raw := img.Bytes()
	require.Len(t, raw, 8)
	// JIT cache-coherence property: the first word of the image is the
	// first emitted encoding.
	require.Equal(t, []byte{0x1F, 0x20, 0x03, 0xD5}, raw[:4])
}

func TestListing(t *testing.T) {
	lk := newLinker(t, map[string]uintptr{"WRITEN": 0x20000})
	img, err := lk.Link(0x10000, nil, []arm64.Instruction{
		arm64.LabelDef("START"),
		arm64.BL("WRITEN"),
		arm64.Ret(),
	})
	require.NoError(t, err)

	var buf bytes.Buffer
	WriteListing(&buf, img)
	out := buf.String()
	require.Contains(t, out, "START:")
	require.Contains(t, out, "bl WRITEN")
	require.Contains(t, out, "pcrel26")
}

func TestLinkObjectKeepsExternals(t *testing.T) {
	lk := newLinker(t, nil)
	img, externals, err := lk.LinkObject([]arm64.Instruction{
		arm64.LabelDef("START"),
		arm64.BL("WRITEN"),
		arm64.B("done"),
		arm64.LabelDef("done"),
		arm64.Ret(),
	})
	require.NoError(t, err)

	// The internal branch resolved; the runtime call stayed symbolic.
	require.Len(t, externals, 1)
	require.Equal(t, "WRITEN", externals[0].Symbol)
	require.Equal(t, arm64.RelocPcRelative26, externals[0].Kind)
	require.Equal(t, uint64(0), img.Labels["START"])
}

func TestWriteELF(t *testing.T) {
	reg := rt.NewRegistry()
	lk := New(reg)
	img, externals, err := lk.LinkObject([]arm64.Instruction{
		arm64.LabelDef("START"),
		arm64.BL("WRITEN"),
		arm64.Ret(),
	})
	require.NoError(t, err)

	data := WriteELF(img, externals, reg)
	require.True(t, bytes.HasPrefix(data, []byte{0x7f, 'E', 'L', 'F'}))
	// Class 64, little-endian, EM_AARCH64.
	require.Equal(t, byte(2), data[4])
	require.Equal(t, byte(1), data[5])
	require.Equal(t, byte(183), data[18])
	// The import surfaces under its standalone label.
	require.True(t, strings.Contains(string(data), "_WRITEN"))
	require.True(t, strings.Contains(string(data), ".rela.text"))
}

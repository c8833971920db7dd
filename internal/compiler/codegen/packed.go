package codegen

import (
	"math"

	"github.com/albanread/nbcgo/internal/compiler/arm64"
	"github.com/albanread/nbcgo/internal/compiler/ast"
)

// Packed composites are generated once against the shape table
// (ast.PackedKind): a PAIR is one 64-bit word with lane 0 in bits 0–31 and
// lane 1 in bits 32–63; a QUAD packs four 16-bit fields; OCT/FOCT carry
// eight 32-bit lanes and live in memory. Constructors with all-literal
// operands route through the data generator: the value is encoded once in
// rodata and loaded with ADRP+ADD+LDR.

// packedLiteralImage computes the 64-bit image when every element is a
// literal.
func packedLiteralImage(n *ast.PackedExpr) (uint64, bool) {
	if n.Kind.TotalBits() > 64 {
		return 0, false
	}
	var image uint64
	bits := uint(n.Kind.LaneBits())
	mask := uint64(1)<<bits - 1
	for i, e := range n.Elems {
		var lane uint64
		switch v := e.(type) {
		case *ast.NumberLit:
			lane = uint64(v.Value) & mask
		case *ast.CharLit:
			lane = uint64(v.Value) & mask
		case *ast.FloatLit:
			if !n.Kind.IsFloat() {
				return 0, false
			}
			lane = uint64(math.Float32bits(float32(v.Value)))
		default:
			return 0, false
		}
		image |= lane << (uint(i) * bits)
	}
	return image, true
}

func (f *fnGen) packedConstruct(n *ast.PackedExpr) arm64.Reg {
	if len(n.Elems) != n.Kind.Lanes() {
		f.g.userError("%s: %s takes %d elements, got %d", f.name, n.Kind, n.Kind.Lanes(), len(n.Elems))
	}

	if image, ok := packedLiteralImage(n); ok {
		label := f.g.data.InternPacked(image)
		addr := f.materializeAddress(label)
		r := f.acquire(KindInt, "")
		f.emit(arm64.LdrImm(r, addr, 0))
		f.release(addr)
		return r
	}

	if n.Kind.TotalBits() > 64 {
		// OCT shapes build in a heap vector of 32-bit lanes.
		return f.packedConstructWide(n)
	}

	bits := n.Kind.LaneBits()
	dest := f.acquire(KindInt, "")
	f.emit(arm64.MovZ(dest, 0, 0))
	for i, e := range n.Elems {
		v := f.expr(e)
		if n.Kind.IsFloat() {
			// Pack the 32-bit single-precision image of the lane.
			vd := f.toFloat(v)
			single := f.acquire(KindFloat, "")
			f.emit(arm64.FcvtDS(single, vd))
			f.release(vd)
			lane := f.acquire(KindInt, "")
			f.emit(arm64.FMovWS(lane, single))
			f.release(single)
			f.emit(arm64.Bfi(dest, lane, i*bits, bits))
			f.release(lane)
			continue
		}
		f.emit(arm64.Bfi(dest, v, i*bits, bits))
		f.release(v)
	}
	return dest
}

func (f *fnGen) packedConstructWide(n *ast.PackedExpr) arm64.Reg {
	words := int64(n.Kind.TotalBits() / 64)
	vec := f.callRuntime("GETVEC", []ast.Expr{&ast.NumberLit{Value: words}}, false)
	base, ok := f.regs.Acquire(KindInt, true, "")
	if !ok {
		base = vec
	} else {
		f.emit(arm64.MovReg(base, vec))
		f.release(vec)
	}
	// Zero the backing words before the lane inserts.
	zero := f.acquire(KindInt, "")
	f.emit(arm64.MovZ(zero, 0, 0))
	for w := int64(0); w < words; w++ {
		f.emit(arm64.StrImm(zero, base, w*8))
	}
	f.release(zero)

	bits := n.Kind.LaneBits()
	perWord := 64 / bits
	for i, e := range n.Elems {
		v := f.expr(e)
		if n.Kind.IsFloat() {
			vd := f.toFloat(v)
			single := f.acquire(KindFloat, "")
			f.emit(arm64.FcvtDS(single, vd))
			f.release(vd)
			v = f.acquire(KindInt, "")
			f.emit(arm64.FMovWS(v, single))
			f.release(single)
		}
		word := int64(i / perWord)
		lane := i % perWord
		tmp := f.acquire(KindInt, "")
		f.emit(arm64.LdrImm(tmp, base, word*8))
		f.emit(arm64.Bfi(tmp, v, lane*bits, bits))
		f.emit(arm64.StrImm(tmp, base, word*8))
		f.release(tmp)
		f.release(v)
	}
	return base
}

func (f *fnGen) packedAccess(n *ast.PackedAccess) arm64.Reg {
	lanes := n.Kind.Lanes()
	if n.Field < 0 || n.Field >= lanes {
		f.g.userError("%s: invalid .%s access on %s", f.name, ast.FieldName(n.Field), n.Kind)
		r := f.acquire(KindInt, "")
		f.emit(arm64.MovZ(r, 0, 0))
		return r
	}
	bits := n.Kind.LaneBits()

	base := f.expr(n.Base)
	if n.Kind.TotalBits() > 64 {
		// Wide shapes: the value is a base pointer; load the word and
		// extract.
		perWord := 64 / bits
		word := int64(n.Field / perWord)
		lane := n.Field % perWord
		tmp := f.acquire(KindInt, "")
		f.emit(arm64.LdrImm(tmp, base, word*8))
		f.release(base)
		base = tmp
		n = &ast.PackedAccess{Kind: n.Kind, Field: lane}
	}

	if n.Kind.IsFloat() {
		lane := f.acquire(KindInt, "")
		f.emit(arm64.Ubfx(lane, base, n.Field*bits, bits))
		f.release(base)
		single := f.acquire(KindFloat, "")
		f.emit(arm64.FMovSW(single, lane))
		f.release(lane)
		d := f.acquire(KindFloat, "")
		f.emit(arm64.FcvtSD(d, single))
		f.release(single)
		return d
	}

	r := f.acquire(KindInt, "")
	// Packed integer lanes are signed; extraction sign-extends.
	f.emit(arm64.Sbfx(r, base, n.Field*bits, bits))
	f.release(base)
	return r
}

package codegen

import (
	"math"

	"github.com/albanread/nbcgo/internal/compiler/arm64"
	"github.com/albanread/nbcgo/internal/compiler/ast"
	"github.com/albanread/nbcgo/internal/compiler/symbols"
)

// expr evaluates an expression into a freshly acquired register, which the
// caller releases. Float-typed values come back in a d register.
func (f *fnGen) expr(e ast.Expr) arm64.Reg {
	switch n := e.(type) {
	case *ast.NumberLit:
		r := f.acquire(KindInt, "")
		f.emit(arm64.MovImm(r, n.Value)...)
		return r
	case *ast.CharLit:
		r := f.acquire(KindInt, "")
		f.emit(arm64.MovImm(r, int64(n.Value))...)
		return r
	case *ast.BoolLit:
		r := f.acquire(KindInt, "")
		v := int64(0)
		if n.Value {
			v = -1
		}
		f.emit(arm64.MovImm(r, v)...)
		return r
	case *ast.NullLit:
		r := f.acquire(KindInt, "")
		f.emit(arm64.MovZ(r, 0, 0))
		return r
	case *ast.FloatLit:
		return f.floatConst(n.Value)
	case *ast.StringLit:
		label := f.g.data.InternString(n.Value)
		return f.materializeAddress(label)
	case *ast.VarAccess:
		return f.loadVar(n.Name)
	case *ast.BinaryOp:
		return f.binary(n)
	case *ast.UnaryOp:
		return f.unary(n)
	case *ast.VectorAccess:
		base := f.expr(n.Vector)
		idx := f.expr(n.Index)
		r := f.acquire(KindInt, "")
		f.emit(arm64.LdrScaled(r, base, idx))
		f.release(base)
		f.release(idx)
		return r
	case *ast.FloatVectorIndirection:
		base := f.expr(n.Vector)
		idx := f.expr(n.Index)
		r := f.acquire(KindFloat, "")
		f.emit(arm64.LdrFScaled(r, base, idx))
		f.release(base)
		f.release(idx)
		return r
	case *ast.CharIndirection:
		// The string layout is a 64-bit length word then 32-bit cells;
		// cell i sits at base + 8 + 4*i, naturally 4-byte aligned.
		base := f.expr(n.Str)
		idx := f.expr(n.Index)
		cells := f.acquire(KindInt, "")
		f.emit(arm64.AddImm(cells, base, 8))
		r := f.acquire(KindInt, "")
		f.emit(arm64.LdrWScaled(r, cells, idx))
		f.release(base)
		f.release(idx)
		f.release(cells)
		return r
	case *ast.BitfieldAccess:
		return f.bitfield(n)
	case *ast.FunctionCall:
		return f.call(n.Target, n.Args, false)
	case *ast.SysCall:
		args := append([]ast.Expr{n.Number}, n.Args...)
		return f.callRuntime("SYSCALL", args, false)
	case *ast.Conditional:
		return f.conditional(n)
	case *ast.Valof:
		return f.valof(n.Body, false)
	case *ast.FloatValof:
		return f.valof(n.Body, true)
	case *ast.Alloc:
		return f.alloc(n)
	case *ast.Table:
		return f.table(n)
	case *ast.List:
		return f.list(n)
	case *ast.New:
		return f.newObject(n)
	case *ast.MemberAccess:
		return f.memberLoad(n)
	case *ast.SuperMethodCall:
		return f.superCall(n)
	case *ast.SuperMethodAccess:
		// Passthrough: evaluates the receiver, exactly as the source
		// compiler treats this node.
		return f.loadVar("_this")
	case *ast.PackedExpr:
		return f.packedConstruct(n)
	case *ast.PackedAccess:
		return f.packedAccess(n)
	case *ast.LaneAccess:
		base := f.expr(n.Vector)
		idx := f.expr(n.Lane)
		r := f.acquire(KindInt, "")
		f.emit(arm64.LdrScaled(r, base, idx))
		f.release(base)
		f.release(idx)
		return r
	case *ast.VecInitializer:
		return f.vecInitializer(n)
	default:
		f.g.userError("%s: cannot generate code for %s", f.name, ast.Sprint(e))
		r := f.acquire(KindInt, "")
		f.emit(arm64.MovZ(r, 0, 0))
		return r
	}
}

// floatConst loads a double constant from rodata.
func (f *fnGen) floatConst(v float64) arm64.Reg {
	if v == 0 {
		d := f.acquire(KindFloat, "")
		zero := f.acquire(KindInt, "")
		f.emit(arm64.MovZ(zero, 0, 0))
		f.emit(arm64.FMovToFP(d, zero))
		f.release(zero)
		return d
	}
	label := f.g.data.InternFloat(v)
	addr := f.materializeAddress(label)
	d := f.acquire(KindFloat, "")
	f.emit(arm64.LdrFImm(d, addr, 0))
	f.release(addr)
	return d
}

// materializeAddress forms a label's address with ADRP+ADD.
func (f *fnGen) materializeAddress(label string) arm64.Reg {
	r := f.acquire(KindInt, "")
	f.emit(arm64.Adrp(r, label))
	f.emit(arm64.AddLo12(r, r, label))
	return r
}

// resolveVar finds the symbol for a name in this function's context,
// falling back to an implicit class member inside methods.
func (f *fnGen) resolveVar(name string) (*symbols.Symbol, bool) {
	if sym, ok := f.g.table.LookupIn(f.name, name); ok {
		return sym, true
	}
	return nil, false
}

func (f *fnGen) loadVar(name string) arm64.Reg {
	if off, ok := f.frame[name]; ok {
		kind := KindInt
		if sym, found := f.resolveVar(name); found && sym.Type.IsFloat() {
			kind = KindFloat
		}
		r := f.acquire(kind, name)
		f.emitLocalLoad(r, off)
		return r
	}
	sym, ok := f.resolveVar(name)
	if !ok {
		// Inside a method a bare name may be an implicit member of this.
		if f.class != "" {
			if info, found := f.g.analysis.Classes.Lookup(f.class); found {
				if m, isMember := info.Member(name); isMember {
					return f.memberLoadByOffset(f.loadVar("_this"), m)
				}
			}
		}
		f.g.userError("%s: unknown variable %q", f.name, name)
		r := f.acquire(KindInt, "")
		f.emit(arm64.MovZ(r, 0, 0))
		return r
	}
	switch {
	case sym.IsGlobal():
		addr := f.materializeAddress(GlobalsLabel)
		kind := KindInt
		if sym.Type.IsFloat() {
			kind = KindFloat
		}
		r := f.acquire(kind, name)
		off := f.g.globalOffsets[name]
		if r.IsFloat() {
			f.emit(arm64.LdrFImm(r, addr, off))
		} else {
			f.emit(arm64.LdrImm(r, addr, off))
		}
		f.release(addr)
		return r
	case sym.IsFunctionLike() || sym.Kind == symbols.Label:
		// A function or label used as a value: its address.
		return f.materializeAddress(sym.Location.Label)
	case sym.Kind == symbols.Manifest:
		r := f.acquire(KindInt, "")
		f.emit(arm64.MovImm(r, sym.Location.Absolute)...)
		return r
	default:
		// A local that never got a slot (declared in dead code).
		off := f.allocSlot(name)
		r := f.acquire(KindInt, name)
		f.emitLocalLoad(r, off)
		return r
	}
}

func (f *fnGen) binary(n *ast.BinaryOp) arm64.Reg {
	if n.Inferred.IsFloat() || exprIsFloat(n.Left) || exprIsFloat(n.Right) {
		return f.floatBinary(n)
	}

	left := f.expr(n.Left)
	var spilled int64 = -1
	if f.lowOnInts() {
		spilled = f.spillTemp(left)
	}
	right := f.expr(n.Right)
	if spilled >= 0 {
		left = f.reloadTemp(spilled, KindInt)
	}

	dest := f.acquire(KindInt, "")
	switch n.Op {
	case ast.Add:
		f.emit(arm64.AddReg(dest, left, right))
	case ast.Sub:
		f.emit(arm64.SubReg(dest, left, right))
	case ast.Mul:
		f.emit(arm64.Mul(dest, left, right))
	case ast.Div:
		f.emit(arm64.SDiv(dest, left, right))
	case ast.Rem:
		// a REM b = a - (a/b)*b
		quot := f.acquire(KindInt, "")
		f.emit(arm64.SDiv(quot, left, right))
		f.emit(arm64.Msub(dest, quot, right, left))
		f.release(quot)
	case ast.Eq, ast.Ne, ast.Lt, ast.Le, ast.Gt, ast.Ge:
		f.emit(arm64.CmpReg(left, right))
		f.emit(arm64.Csetm(dest, compareCond(n.Op)))
	case ast.BitwiseAnd, ast.LogicalAnd:
		f.emit(arm64.AndReg(dest, left, right))
	case ast.BitwiseOr, ast.LogicalOr:
		f.emit(arm64.OrrReg(dest, left, right))
	case ast.NotEquivalence:
		f.emit(arm64.EorReg(dest, left, right))
	case ast.Equivalence:
		f.emit(arm64.EorReg(dest, left, right))
		f.emit(arm64.Mvn(dest, dest))
	case ast.LeftShift:
		f.emit(arm64.LslReg(dest, left, right))
	case ast.RightShift:
		f.emit(arm64.LsrReg(dest, left, right))
	default:
		f.g.userError("%s: unsupported integer operator %s", f.name, n.Op)
	}
	f.release(left)
	f.release(right)
	return dest
}

func (f *fnGen) floatBinary(n *ast.BinaryOp) arm64.Reg {
	left := f.toFloat(f.expr(n.Left))
	right := f.toFloat(f.expr(n.Right))

	if n.Op.IsComparison() {
		dest := f.acquire(KindInt, "")
		f.emit(arm64.FCmp(left, right))
		f.emit(arm64.Csetm(dest, compareCond(n.Op)))
		f.release(left)
		f.release(right)
		return dest
	}

	dest := f.acquire(KindFloat, "")
	switch n.Op {
	case ast.Add:
		f.emit(arm64.FAdd(dest, left, right))
	case ast.Sub:
		f.emit(arm64.FSub(dest, left, right))
	case ast.Mul:
		f.emit(arm64.FMul(dest, left, right))
	case ast.Div:
		f.emit(arm64.FDiv(dest, left, right))
	default:
		f.g.userError("%s: unsupported float operator %s", f.name, n.Op)
	}
	f.release(left)
	f.release(right)
	return dest
}

// toFloat converts an integer-register value to a d register in place.
func (f *fnGen) toFloat(r arm64.Reg) arm64.Reg {
	if r.IsFloat() {
		return r
	}
	d := f.acquire(KindFloat, "")
	f.emit(arm64.Scvtf(d, r))
	f.release(r)
	return d
}

func compareCond(op ast.BinOp) arm64.Cond {
	switch op {
	case ast.Eq:
		return arm64.EQ
	case ast.Ne:
		return arm64.NE
	case ast.Lt:
		return arm64.LT
	case ast.Le:
		return arm64.LE
	case ast.Gt:
		return arm64.GT
	case ast.Ge:
		return arm64.GE
	default:
		panic("BUG: not a comparison operator")
	}
}

func exprIsFloat(e ast.Expr) bool {
	switch n := e.(type) {
	case *ast.FloatLit, *ast.FloatValof:
		return true
	case *ast.VarAccess:
		return n.Inferred.IsFloat()
	case *ast.BinaryOp:
		return n.Inferred.IsFloat()
	case *ast.UnaryOp:
		return n.Inferred.IsFloat()
	case *ast.FunctionCall:
		return n.Inferred.IsFloat()
	case *ast.MemberAccess:
		return n.Inferred.IsFloat()
	case *ast.PackedAccess:
		return n.Kind.IsFloat()
	}
	return false
}

func (f *fnGen) unary(n *ast.UnaryOp) arm64.Reg {
	switch n.Op {
	case ast.AddressOf:
		if v, ok := n.Operand.(*ast.VarAccess); ok {
			if off, has := f.frame[v.Name]; has {
				r := f.acquire(KindInt, "")
				f.emit(arm64.SubImm(r, arm64.FP, off))
				return r
			}
			if sym, has := f.resolveVar(v.Name); has && sym.IsGlobal() {
				addr := f.materializeAddress(GlobalsLabel)
				f.emit(arm64.AddImm(addr, addr, f.g.globalOffsets[v.Name]))
				return addr
			}
		}
		f.g.userError("%s: cannot take the address of %s", f.name, ast.Sprint(n.Operand))
		r := f.acquire(KindInt, "")
		f.emit(arm64.MovZ(r, 0, 0))
		return r
	case ast.Indirection:
		p := f.expr(n.Operand)
		r := f.acquire(KindInt, "")
		f.emit(arm64.LdrImm(r, p, 0))
		f.release(p)
		return r
	case ast.LogicalNot:
		v := f.expr(n.Operand)
		r := f.acquire(KindInt, "")
		f.emit(arm64.CmpImm(v, 0))
		f.emit(arm64.Csetm(r, arm64.EQ))
		f.release(v)
		return r
	case ast.BitwiseNot:
		v := f.expr(n.Operand)
		r := f.acquire(KindInt, "")
		f.emit(arm64.Mvn(r, v))
		f.release(v)
		return r
	case ast.Negate:
		v := f.expr(n.Operand)
		if v.IsFloat() {
			r := f.acquire(KindFloat, "")
			f.emit(arm64.FNeg(r, v))
			f.release(v)
			return r
		}
		r := f.acquire(KindInt, "")
		f.emit(arm64.Neg(r, v))
		f.release(v)
		return r
	case ast.FloatConvert:
		return f.toFloat(f.expr(n.Operand))
	case ast.IntegerConvert:
		v := f.toFloat(f.expr(n.Operand))
		r := f.acquire(KindInt, "")
		f.emit(arm64.Fcvtzs(r, v))
		f.release(v)
		return r
	case ast.FloatSqrt:
		v := f.toFloat(f.expr(n.Operand))
		r := f.acquire(KindFloat, "")
		f.emit(arm64.FSqrt(r, v))
		f.release(v)
		return r
	case ast.FloatFloor:
		v := f.toFloat(f.expr(n.Operand))
		r := f.acquire(KindFloat, "")
		f.emit(arm64.FRintM(r, v))
		f.release(v)
		return r
	case ast.FloatTruncate:
		v := f.toFloat(f.expr(n.Operand))
		r := f.acquire(KindFloat, "")
		f.emit(arm64.FRintZ(r, v))
		f.release(v)
		return r
	case ast.LengthOf:
		// Allocation length lives in the word just below the base pointer.
		v := f.expr(n.Operand)
		r := f.acquire(KindInt, "")
		f.emit(arm64.Ldur(r, v, -8))
		f.release(v)
		return r
	case ast.HeadOf:
		return f.callRuntime("LIST_HEAD", []ast.Expr{n.Operand}, false)
	case ast.HeadOfAsFloat:
		return f.callRuntime("LIST_HEAD_FLOAT", []ast.Expr{n.Operand}, true)
	case ast.TailOf:
		return f.callRuntime("LIST_TAIL", []ast.Expr{n.Operand}, false)
	case ast.TailOfNonDestructive:
		return f.callRuntime("LIST_REST", []ast.Expr{n.Operand}, false)
	case ast.TypeOf:
		// The allocator stores the type tag two words below the base.
		v := f.expr(n.Operand)
		r := f.acquire(KindInt, "")
		f.emit(arm64.Ldur(r, v, -16))
		f.release(v)
		return r
	case ast.TypeAsString:
		return f.callRuntime("TYPENAME", []ast.Expr{n.Operand}, false)
	default:
		f.g.userError("%s: unsupported unary operator %s", f.name, n.Op)
		r := f.acquire(KindInt, "")
		f.emit(arm64.MovZ(r, 0, 0))
		return r
	}
}

func (f *fnGen) bitfield(n *ast.BitfieldAccess) arm64.Reg {
	base := f.expr(n.Base)
	start, startLit := litInt(n.StartBit)
	width, widthLit := litInt(n.Width)
	if startLit && widthLit && start >= 0 && width > 0 && start+width <= 64 {
		r := f.acquire(KindInt, "")
		f.emit(arm64.Ubfx(r, base, int(start), int(width)))
		f.release(base)
		return r
	}
	// Dynamic select: (base >> start) & ((1 << width) - 1).
	startReg := f.expr(n.StartBit)
	widthReg := f.expr(n.Width)
	r := f.acquire(KindInt, "")
	f.emit(arm64.LsrReg(r, base, startReg))
	mask := f.acquire(KindInt, "")
	one := f.acquire(KindInt, "")
	f.emit(arm64.MovZ(one, 1, 0))
	f.emit(arm64.LslReg(mask, one, widthReg))
	f.emit(arm64.SubImm(mask, mask, 1))
	f.emit(arm64.AndReg(r, r, mask))
	f.release(one)
	f.release(mask)
	f.release(base)
	f.release(startReg)
	f.release(widthReg)
	return r
}

func litInt(e ast.Expr) (int64, bool) {
	if n, ok := e.(*ast.NumberLit); ok {
		return n.Value, true
	}
	return 0, false
}

func (f *fnGen) conditional(n *ast.Conditional) arm64.Reg {
	elseLabel := f.g.labels.Fresh("cond_else")
	joinLabel := f.g.labels.Fresh("cond_join")

	cond := f.expr(n.Cond)
	f.emit(arm64.Cbz(cond, elseLabel))
	f.release(cond)

	float := exprIsFloat(n.Then) || exprIsFloat(n.Else)
	kind := KindInt
	if float {
		kind = KindFloat
	}
	dest := f.acquire(kind, "")

	thenReg := f.expr(n.Then)
	f.moveInto(dest, thenReg, float)
	f.release(thenReg)
	f.emit(arm64.B(joinLabel))

	f.emit(arm64.LabelDef(elseLabel))
	elseReg := f.expr(n.Else)
	f.moveInto(dest, elseReg, float)
	f.release(elseReg)
	f.emit(arm64.LabelDef(joinLabel))
	return dest
}

func (f *fnGen) moveInto(dest, src arm64.Reg, float bool) {
	if dest == src {
		return
	}
	if float {
		src = f.toFloatKeep(src)
		f.emit(arm64.FMovRegFP(dest, src))
		return
	}
	f.emit(arm64.MovReg(dest, src))
}

// toFloatKeep converts without releasing the source.
func (f *fnGen) toFloatKeep(r arm64.Reg) arm64.Reg {
	if r.IsFloat() {
		return r
	}
	d := f.acquire(KindFloat, "")
	f.emit(arm64.Scvtf(d, r))
	f.release(d) // dest copy happens immediately after
	return d
}

func (f *fnGen) valof(body ast.Stmt, float bool) arm64.Reg {
	kind := KindInt
	if float {
		kind = KindFloat
	}
	dest := f.acquire(kind, "")
	ctx := valofCtx{endLabel: f.g.labels.Fresh("valof_end"), result: dest, float: float}
	f.valofs = append(f.valofs, ctx)
	f.stmt(body)
	f.valofs = f.valofs[:len(f.valofs)-1]
	f.emit(arm64.LabelDef(ctx.endLabel))
	return dest
}

func (f *fnGen) alloc(n *ast.Alloc) arm64.Reg {
	name := "GETVEC"
	switch n.Kind {
	case ast.AllocFVec:
		name = "FGETVEC"
	case ast.AllocString:
		name = "GETSTRING"
	case ast.AllocPairs, ast.AllocFPairs:
		name = "GETVEC"
	}
	return f.callRuntime(name, []ast.Expr{n.Size}, false)
}

func (f *fnGen) table(n *ast.Table) arm64.Reg {
	values := make([]uint64, 0, len(n.Exprs))
	allLiteral := true
	for _, e := range n.Exprs {
		switch v := e.(type) {
		case *ast.NumberLit:
			values = append(values, uint64(v.Value))
		case *ast.FloatLit:
			values = append(values, math.Float64bits(v.Value))
		case *ast.CharLit:
			values = append(values, uint64(v.Value))
		default:
			allLiteral = false
		}
	}
	if !allLiteral {
		f.g.userError("%s: TABLE entries must be literal", f.name)
	}
	label := f.g.data.EmitTable(values)
	addr := f.materializeAddress(label)
	// The table pointer addresses the first element, past the length word.
	f.emit(arm64.AddImm(addr, addr, 8))
	return addr
}

func (f *fnGen) list(n *ast.List) arm64.Reg {
	created := f.callRuntime("LIST_CREATE", nil, false)
	// The pointer survives the append calls, so it moves to callee-saved
	// storage.
	listReg, ok := f.regs.Acquire(KindInt, true, "")
	if !ok {
		listReg = created
	} else {
		f.emit(arm64.MovReg(listReg, created))
		f.release(created)
	}
	for _, e := range n.Exprs {
		// LIST_APPEND(list, value)
		v := f.expr(e)
		f.emit(arm64.MovReg(arm64.X0, listReg))
		if v.IsFloat() {
			f.emit(arm64.FMovFromFP(arm64.X1, v))
		} else {
			f.emit(arm64.MovReg(arm64.X1, v))
		}
		f.release(v)
		f.emit(arm64.BL("LIST_APPEND"))
	}
	return listReg
}

func (f *fnGen) vecInitializer(n *ast.VecInitializer) arm64.Reg {
	created := f.callRuntime("GETVEC", []ast.Expr{&ast.NumberLit{Value: int64(len(n.Values))}}, false)
	vec, ok := f.regs.Acquire(KindInt, true, "")
	if !ok {
		vec = created
	} else {
		f.emit(arm64.MovReg(vec, created))
		f.release(created)
	}
	for i, e := range n.Values {
		v := f.expr(e)
		if v.IsFloat() {
			tmp := f.acquire(KindInt, "")
			f.emit(arm64.FMovFromFP(tmp, v))
			f.emit(arm64.StrImm(tmp, vec, int64(i*8)))
			f.release(tmp)
		} else {
			f.emit(arm64.StrImm(v, vec, int64(i*8)))
		}
		f.release(v)
	}
	return vec
}

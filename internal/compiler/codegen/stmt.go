package codegen

import (
	"github.com/albanread/nbcgo/internal/compiler/arm64"
	"github.com/albanread/nbcgo/internal/compiler/ast"
	"github.com/albanread/nbcgo/internal/compiler/symbols"
)

func (f *fnGen) stmt(s ast.Stmt) {
	switch n := s.(type) {
	case nil:
	case *ast.Compound:
		for _, st := range n.Stmts {
			f.stmt(st)
		}
	case *ast.Block:
		for _, d := range n.Decls {
			f.blockDecl(d)
		}
		for _, st := range n.Stmts {
			f.stmt(st)
		}
	case *ast.Assign:
		f.assign(n)
	case *ast.RoutineCall:
		r := f.call(n.Target, n.Args, false)
		f.release(r)
	case *ast.If:
		f.ifStmt(n.Cond, n.Then, false)
	case *ast.Unless:
		f.ifStmt(n.Cond, n.Then, true)
	case *ast.Test:
		f.testStmt(n)
	case *ast.While:
		f.loopStmt(n.Cond, n.Body, false)
	case *ast.Until:
		f.loopStmt(n.Cond, n.Body, true)
	case *ast.Repeat:
		f.repeatStmt(n)
	case *ast.For:
		f.forStmt(n)
	case *ast.ForEach:
		f.forEachStmt(n)
	case *ast.Switchon:
		f.switchStmt(n)
	case *ast.Goto:
		f.gotoStmt(n)
	case *ast.Return:
		f.emit(arm64.B(f.retLabel))
	case *ast.Resultis:
		f.resultis(n)
	case *ast.Break:
		if len(f.breakLabels) == 0 {
			f.g.userError("%s: BREAK outside a loop", f.name)
			return
		}
		f.emit(arm64.B(f.breakLabels[len(f.breakLabels)-1]))
	case *ast.Loop:
		if len(f.loopLabels) == 0 {
			f.g.userError("%s: LOOP outside a loop", f.name)
			return
		}
		f.emit(arm64.B(f.loopLabels[len(f.loopLabels)-1]))
	case *ast.Endcase:
		if len(f.endcaseLabels) == 0 {
			f.g.userError("%s: ENDCASE outside a SWITCHON", f.name)
			return
		}
		f.emit(arm64.B(f.endcaseLabels[len(f.endcaseLabels)-1]))
	case *ast.Finish:
		f.finish(n)
	case *ast.LabelTarget:
		f.emit(arm64.LabelDef(n.Name))
	case *ast.CondBranch:
		f.condBranch(n)
	case *ast.Brk:
		f.emit(arm64.Brk(0xF000))
	case *ast.Free:
		r := f.callRuntime("FREEVEC", []ast.Expr{n.Target}, false)
		f.release(r)
	case *ast.Defer:
		f.defers = append(f.defers, n.Body)
	case *ast.Retain, *ast.Remanage:
		// Ownership annotations; retain analysis already consumed them.
	case *ast.StringAllocStmt:
		r := f.callRuntime("GETSTRING", []ast.Expr{n.Size}, false)
		f.release(r)
	case *ast.MinMaxSum:
		// Deprecated fixed-form reductions reduce like the scalar
		// fallback: the first argument's first element.
		if len(n.Args) > 0 {
			f.scalarReduction(n.Result, n.Args[0])
		}
	case *ast.Reduction:
		f.scalarReduction(n.Result, n.Left)
	case *ast.ReductionLoop:
		f.reductionLoop(n.Result, n.Left, n.Right, n.Intrinsic, n.VecType, false)
	case *ast.PairwiseReductionLoop:
		f.reductionLoop(n.Result, n.Left, n.Right, n.Intrinsic, n.VecType, true)
	case *ast.Case, *ast.Default:
		f.g.userError("%s: CASE outside a SWITCHON", f.name)
	default:
		f.g.userError("%s: cannot generate code for statement %s", f.name, ast.Sprint(s))
	}
}

func (f *fnGen) blockDecl(d ast.Decl) {
	let, ok := d.(*ast.Let)
	if !ok {
		return
	}
	for i, name := range let.Names {
		off := f.allocSlot(name)
		if i < len(let.Inits) && let.Inits[i] != nil {
			v := f.expr(let.Inits[i])
			f.emitLocalStore(v, off)
			f.release(v)
		}
	}
}

func (f *fnGen) assign(n *ast.Assign) {
	if len(n.Lhs) != len(n.Rhs) {
		f.g.userError("%s: assignment arity mismatch (%d := %d)", f.name, len(n.Lhs), len(n.Rhs))
		return
	}
	// Parallel semantics: all right sides evaluate before any store.
	offs := make([]int64, len(n.Rhs))
	floats := make([]bool, len(n.Rhs))
	for i, rhs := range n.Rhs {
		v := f.expr(rhs)
		floats[i] = v.IsFloat()
		offs[i] = f.spillTemp(v)
	}
	for i, lhs := range n.Lhs {
		kind := KindInt
		if floats[i] {
			kind = KindFloat
		}
		v := f.reloadTemp(offs[i], kind)
		f.store(lhs, v)
		f.release(v)
	}
}

// store writes a value to an lvalue expression.
func (f *fnGen) store(lhs ast.Expr, v arm64.Reg) {
	switch t := lhs.(type) {
	case *ast.VarAccess:
		f.storeVar(t.Name, v)
	case *ast.VectorAccess:
		base := f.expr(t.Vector)
		idx := f.expr(t.Index)
		if v.IsFloat() {
			f.emit(arm64.StrFScaled(v, base, idx))
		} else {
			f.emit(arm64.StrScaled(v, base, idx))
		}
		f.release(base)
		f.release(idx)
	case *ast.FloatVectorIndirection:
		base := f.expr(t.Vector)
		idx := f.expr(t.Index)
		d := v
		if !d.IsFloat() {
			d = f.toFloatKeep(v)
		}
		f.emit(arm64.StrFScaled(d, base, idx))
		f.release(base)
		f.release(idx)
	case *ast.CharIndirection:
		base := f.expr(t.Str)
		idx := f.expr(t.Index)
		cells := f.acquire(KindInt, "")
		f.emit(arm64.AddImm(cells, base, 8))
		f.emit(arm64.StrWScaled(v, cells, idx))
		f.release(cells)
		f.release(base)
		f.release(idx)
	case *ast.UnaryOp:
		if t.Op == ast.Indirection {
			p := f.expr(t.Operand)
			f.emit(arm64.StrImm(v, p, 0))
			f.release(p)
			return
		}
		f.g.userError("%s: %s is not assignable", f.name, ast.Sprint(lhs))
	case *ast.MemberAccess:
		obj := f.expr(t.Object)
		_, m, ok := f.classOfMember(t.Member)
		if !ok {
			f.g.userError("%s: cannot resolve member %q", f.name, t.Member)
			f.release(obj)
			return
		}
		if v.IsFloat() {
			f.emit(arm64.StrFImm(v, obj, int64(m.Offset)))
		} else {
			f.emit(arm64.StrImm(v, obj, int64(m.Offset)))
		}
		f.release(obj)
	case *ast.PackedAccess:
		// Read-modify-write on the packed word held by the base lvalue.
		bits := t.Kind.LaneBits()
		word := f.expr(t.Base)
		f.emit(arm64.Bfi(word, v, t.Field*bits, bits))
		f.store(t.Base, word)
		f.release(word)
	case *ast.BitfieldAccess:
		start, sok := litInt(t.StartBit)
		width, wok := litInt(t.Width)
		if !sok || !wok {
			f.g.userError("%s: bitfield store needs literal start and width", f.name)
			return
		}
		word := f.expr(t.Base)
		f.emit(arm64.Bfi(word, v, int(start), int(width)))
		f.store(t.Base, word)
		f.release(word)
	default:
		f.g.userError("%s: %s is not assignable", f.name, ast.Sprint(lhs))
	}
}

func (f *fnGen) storeVar(name string, v arm64.Reg) {
	if off, ok := f.frame[name]; ok {
		f.emitLocalStore(v, off)
		return
	}
	sym, ok := f.resolveVar(name)
	if !ok {
		if f.class != "" {
			if info, found := f.g.analysis.Classes.Lookup(f.class); found {
				if m, isMember := info.Member(name); isMember {
					this := f.loadVar("_this")
					if v.IsFloat() {
						f.emit(arm64.StrFImm(v, this, int64(m.Offset)))
					} else {
						f.emit(arm64.StrImm(v, this, int64(m.Offset)))
					}
					f.release(this)
					return
				}
			}
		}
		// First write to an undeclared name: give it a slot.
		off := f.allocSlot(name)
		f.emitLocalStore(v, off)
		return
	}
	if sym.IsGlobal() {
		addr := f.materializeAddress(GlobalsLabel)
		off := f.g.globalOffsets[name]
		if v.IsFloat() {
			f.emit(arm64.StrFImm(v, addr, off))
		} else {
			f.emit(arm64.StrImm(v, addr, off))
		}
		f.release(addr)
		return
	}
	off := f.allocSlot(name)
	f.emitLocalStore(v, off)
}

func (f *fnGen) ifStmt(cond ast.Expr, then ast.Stmt, invert bool) {
	skip := f.g.labels.Fresh("if_end")
	c := f.expr(cond)
	if invert {
		f.emit(arm64.Cbnz(c, skip))
	} else {
		f.emit(arm64.Cbz(c, skip))
	}
	f.release(c)
	f.stmt(then)
	f.emit(arm64.LabelDef(skip))
}

func (f *fnGen) testStmt(n *ast.Test) {
	elseLabel := f.g.labels.Fresh("test_else")
	endLabel := f.g.labels.Fresh("test_end")
	c := f.expr(n.Cond)
	f.emit(arm64.Cbz(c, elseLabel))
	f.release(c)
	f.stmt(n.Then)
	f.emit(arm64.B(endLabel))
	f.emit(arm64.LabelDef(elseLabel))
	f.stmt(n.Else)
	f.emit(arm64.LabelDef(endLabel))
}

func (f *fnGen) loopStmt(cond ast.Expr, body ast.Stmt, until bool) {
	head := f.g.labels.Fresh("loop_head")
	exit := f.g.labels.Fresh("loop_exit")
	f.emit(arm64.LabelDef(head))
	c := f.expr(cond)
	if until {
		f.emit(arm64.Cbnz(c, exit))
	} else {
		f.emit(arm64.Cbz(c, exit))
	}
	f.release(c)
	f.pushLoop(exit, head)
	f.stmt(body)
	f.popLoop()
	f.emit(arm64.B(head))
	f.emit(arm64.LabelDef(exit))
}

func (f *fnGen) repeatStmt(n *ast.Repeat) {
	head := f.g.labels.Fresh("repeat_head")
	exit := f.g.labels.Fresh("repeat_exit")
	f.emit(arm64.LabelDef(head))
	f.pushLoop(exit, head)
	f.stmt(n.Body)
	f.popLoop()
	switch n.Mode {
	case ast.RepeatBare:
		f.emit(arm64.B(head))
	case ast.RepeatWhile:
		c := f.expr(n.Cond)
		f.emit(arm64.Cbnz(c, head))
		f.release(c)
	case ast.RepeatUntil:
		c := f.expr(n.Cond)
		f.emit(arm64.Cbz(c, head))
		f.release(c)
	}
	f.emit(arm64.LabelDef(exit))
}

func (f *fnGen) forStmt(n *ast.For) {
	head := f.g.labels.Fresh("for_head")
	exit := f.g.labels.Fresh("for_exit")
	step := f.g.labels.Fresh("for_step")

	varOff := f.allocSlot(n.Var)
	start := f.expr(n.Start)
	f.emitLocalStore(start, varOff)
	f.release(start)

	// A non-constant end expression is evaluated once and cached in a frame
	// slot, so it survives the body's calls.
	var endOff int64 = -1
	if !n.EndConst {
		endReg := f.expr(n.End)
		endOff = f.allocSlot("_forend_" + n.Var)
		f.emitLocalStore(endReg, endOff)
		f.release(endReg)
	}

	f.emit(arm64.LabelDef(head))
	iv := f.reloadTemp(varOff, KindInt)
	var limit arm64.Reg
	if n.EndConst {
		limit = f.expr(n.End)
	} else {
		limit = f.reloadTemp(endOff, KindInt)
	}
	f.emit(arm64.CmpReg(iv, limit))
	f.release(iv)
	f.release(limit)
	f.emit(arm64.BCond(arm64.GT, exit))

	f.pushLoop(exit, step)
	f.stmt(n.Body)
	f.popLoop()

	f.emit(arm64.LabelDef(step))
	iv = f.reloadTemp(varOff, KindInt)
	if n.Step == nil {
		f.emit(arm64.AddImm(iv, iv, 1))
	} else {
		stepReg := f.expr(n.Step)
		f.emit(arm64.AddReg(iv, iv, stepReg))
		f.release(stepReg)
	}
	f.emitLocalStore(iv, varOff)
	f.release(iv)
	f.emit(arm64.B(head))
	f.emit(arm64.LabelDef(exit))
}

// forEachStmt walks a list collection: cursor := collection; while cursor
// do { value := HD cursor; body; cursor := TL cursor }.
func (f *fnGen) forEachStmt(n *ast.ForEach) {
	head := f.g.labels.Fresh("foreach_head")
	exit := f.g.labels.Fresh("foreach_exit")
	next := f.g.labels.Fresh("foreach_next")

	cursorOff := f.allocSlot("_cursor_" + n.Value)
	coll := f.expr(n.Collection)
	f.emitLocalStore(coll, cursorOff)
	f.release(coll)

	valueOff := f.allocSlot(n.Value)
	var tagOff int64
	if n.Tag != "" {
		tagOff = f.allocSlot(n.Tag)
	}

	f.emit(arm64.LabelDef(head))
	cursor := f.reloadTemp(cursorOff, KindInt)
	f.emit(arm64.Cbz(cursor, exit))

	// value := LIST_HEAD(cursor)
	f.emit(arm64.MovReg(arm64.X0, cursor))
	f.release(cursor)
	f.emit(arm64.BL("LIST_HEAD"))
	v := f.callResult(false)
	f.emitLocalStore(v, valueOff)
	f.release(v)
	if n.Tag != "" {
		// The tag is the element's type word.
		cursor = f.reloadTemp(cursorOff, KindInt)
		tag := f.acquire(KindInt, "")
		f.emit(arm64.Ldur(tag, cursor, -16))
		f.release(cursor)
		f.emitLocalStore(tag, tagOff)
		f.release(tag)
	}

	f.pushLoop(exit, next)
	f.stmt(n.Body)
	f.popLoop()

	f.emit(arm64.LabelDef(next))
	cursor = f.reloadTemp(cursorOff, KindInt)
	f.emit(arm64.MovReg(arm64.X0, cursor))
	f.release(cursor)
	f.emit(arm64.BL("LIST_REST"))
	c := f.callResult(false)
	f.emitLocalStore(c, cursorOff)
	f.release(c)
	f.emit(arm64.B(head))
	f.emit(arm64.LabelDef(exit))
}

func (f *fnGen) switchStmt(n *ast.Switchon) {
	exit := f.g.labels.Fresh("switch_exit")
	defaultLabel := exit
	if n.Default != nil {
		defaultLabel = f.g.labels.Fresh("switch_default")
	}

	v := f.expr(n.Value)
	caseLabels := make([]string, len(n.Cases))
	for i, c := range n.Cases {
		caseLabels[i] = f.g.labels.Fresh("switch_case")
		if arm64.CanEncodeAddSubImm(c.Resolved) {
			f.emit(arm64.CmpImm(v, c.Resolved))
		} else {
			cv := f.acquire(KindInt, "")
			f.emit(arm64.MovImm(cv, c.Resolved)...)
			f.emit(arm64.CmpReg(v, cv))
			f.release(cv)
		}
		f.emit(arm64.BCond(arm64.EQ, caseLabels[i]))
	}
	f.release(v)
	f.emit(arm64.B(defaultLabel))

	f.endcaseLabels = append(f.endcaseLabels, exit)
	for i, c := range n.Cases {
		f.emit(arm64.LabelDef(caseLabels[i]))
		f.stmt(c.Body)
		// Fallthrough to the next case, the BCPL way; ENDCASE leaves.
	}
	if n.Default != nil {
		f.emit(arm64.LabelDef(defaultLabel))
		f.stmt(n.Default.Body)
	}
	f.endcaseLabels = f.endcaseLabels[:len(f.endcaseLabels)-1]
	f.emit(arm64.LabelDef(exit))
}

func (f *fnGen) gotoStmt(n *ast.Goto) {
	if v, ok := n.Target.(*ast.VarAccess); ok {
		if sym, found := f.resolveVar(v.Name); found && sym.Kind == symbols.Label {
			f.emit(arm64.B(sym.Location.Label))
			return
		}
		// A label defined inside this body.
		f.emit(arm64.B(v.Name))
		return
	}
	t := f.expr(n.Target)
	f.emit(arm64.Br(t))
	f.release(t)
}

func (f *fnGen) resultis(n *ast.Resultis) {
	if len(f.valofs) > 0 {
		ctx := f.valofs[len(f.valofs)-1]
		v := f.expr(n.Value)
		f.moveInto(ctx.result, v, ctx.float)
		f.release(v)
		f.emit(arm64.B(ctx.endLabel))
		return
	}
	// RESULTIS at function level: set the return register and leave.
	v := f.expr(n.Value)
	f.moveToReturn(v, f.returnsFlt || v.IsFloat())
	f.release(v)
	f.emit(arm64.B(f.retLabel))
}

func (f *fnGen) finish(n *ast.Finish) {
	if n.Syscall != nil {
		args := append([]ast.Expr{n.Syscall}, n.Args...)
		r := f.callRuntime("SYSCALL", args, false)
		f.release(r)
	}
	code := []ast.Expr{&ast.NumberLit{Value: 0}}
	r := f.callRuntime("FINISH", code, false)
	f.release(r)
}

func (f *fnGen) condBranch(n *ast.CondBranch) {
	cond, ok := arm64.CondFromString(n.Cond)
	if !ok {
		f.g.userError("%s: unknown condition %q", f.name, n.Cond)
		return
	}
	v := f.expr(n.Value)
	f.emit(arm64.CmpImm(v, 0))
	f.release(v)
	f.emit(arm64.BCond(cond, n.Target))
}

func (f *fnGen) pushLoop(brk, cont string) {
	f.breakLabels = append(f.breakLabels, brk)
	f.loopLabels = append(f.loopLabels, cont)
}

func (f *fnGen) popLoop() {
	f.breakLabels = f.breakLabels[:len(f.breakLabels)-1]
	f.loopLabels = f.loopLabels[:len(f.loopLabels)-1]
}

// scalarReduction is the fallback when no NEON encoder fits: a
// single-element reduction seeding the result from the vector's first lane.
func (f *fnGen) scalarReduction(result string, vec ast.Expr) {
	base := f.expr(vec)
	v := f.acquire(KindInt, "")
	f.emit(arm64.LdrImm(v, base, 0))
	f.release(base)
	f.storeVar(result, v)
	f.release(v)
}

// reductionLoop lowers the NEON reduction forms through the reducer
// registry; a missing encoder falls back to the scalar expansion.
func (f *fnGen) reductionLoop(result string, left, right ast.Expr, intrinsic string, vecType ast.Type, pairwise bool) {
	enc, ok := f.g.reducers.Lookup(intrinsic, vecType)
	if !ok || !pairwise {
		f.scalarReduction(result, left)
		return
	}

	lbase := f.expr(left)
	vn := f.acquire(KindFloat, "")
	f.emit(arm64.LdrFImm(vn, lbase, 0))
	f.release(lbase)

	vm := vn
	if right != nil {
		rbase := f.expr(right)
		vm = f.acquire(KindFloat, "")
		f.emit(arm64.LdrFImm(vm, rbase, 0))
		f.release(rbase)
	}

	vd := f.acquire(KindFloat, "")
	f.emit(enc(vd, vn, vm))
	if vm != vn {
		f.release(vm)
	}
	f.release(vn)

	if vecType.IsFloat() || vecType.Has(ast.TypeFVec) || vecType.Has(ast.TypeFPair) {
		f.storeVar(result, vd)
		f.release(vd)
		return
	}
	r := f.acquire(KindInt, "")
	f.emit(arm64.FMovFromFP(r, vd))
	f.release(vd)
	f.storeVar(result, r)
	f.release(r)
}

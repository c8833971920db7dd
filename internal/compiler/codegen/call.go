package codegen

import (
	"github.com/albanread/nbcgo/internal/compiler/analysis"
	"github.com/albanread/nbcgo/internal/compiler/arm64"
	"github.com/albanread/nbcgo/internal/compiler/ast"
	"github.com/albanread/nbcgo/internal/compiler/rt"
)

// marshalArgs evaluates arguments and places them per AAPCS: integers in
// x0–x7, floats in d0–d7. floatFamily forces the float registers for every
// argument (runtime float-family symbols).
func (f *fnGen) marshalArgs(args []ast.Expr, floatFamily bool, firstInt int) {
	// Evaluate into temporaries first so later evaluations cannot clobber
	// earlier argument registers.
	type slot struct {
		off   int64
		float bool
	}
	slots := make([]slot, len(args))
	for i, a := range args {
		r := f.expr(a)
		slots[i] = slot{float: r.IsFloat() || floatFamily}
		if !r.IsFloat() && floatFamily {
			r = f.toFloat(r)
		}
		slots[i].off = f.spillTemp(r)
	}
	intIdx, fltIdx := firstInt, 0
	for _, s := range slots {
		if s.float {
			d := arm64.D0 + arm64.Reg(fltIdx)
			f.emitLocalLoad(d, s.off)
			fltIdx++
		} else {
			x := arm64.X0 + arm64.Reg(intIdx)
			f.emitLocalLoad(x, s.off)
			intIdx++
		}
	}
}

// call generates a direct or computed call and returns the result register.
func (f *fnGen) call(target ast.Expr, args []ast.Expr, wantFloat bool) arm64.Reg {
	if v, ok := target.(*ast.VarAccess); ok {
		if entry, isRuntime := f.g.registry.Lookup(v.Name); isRuntime {
			return f.callRuntime(v.Name, args, entry.Family == rt.FamilyFloat || entry.ReturnType.IsFloat())
		}
		if sym, found := f.g.table.Lookup(v.Name); found && sym.IsFunctionLike() {
			f.marshalArgs(args, false, 0)
			f.emit(arm64.BL(sym.Location.Label))
			return f.callResult(sym.ReturnsFloat())
		}
	}
	if m, ok := target.(*ast.MemberAccess); ok {
		return f.methodCall(m, args)
	}
	// Computed call: evaluate the target, then branch through it.
	t := f.expr(target)
	saved := f.spillTemp(t)
	f.marshalArgs(args, false, 0)
	scratch := arm64.X16
	f.emitLocalLoad(scratch, saved)
	f.emit(arm64.Blr(scratch))
	return f.callResult(wantFloat)
}

// callRuntime emits a call to a registry symbol. Range permitting the
// linker keeps `bl SYM` direct; otherwise the call is patched through the
// symbol's veneer.
func (f *fnGen) callRuntime(name string, args []ast.Expr, floatResult bool) arm64.Reg {
	entry, ok := f.g.registry.Lookup(name)
	if !ok {
		f.g.userError("%s: unknown runtime symbol %q", f.name, name)
		r := f.acquire(KindInt, "")
		f.emit(arm64.MovZ(r, 0, 0))
		return r
	}
	if len(args) > entry.Arity {
		f.g.userError("%s: %s takes at most %d arguments, got %d", f.name, name, entry.Arity, len(args))
	}
	f.marshalArgs(args, entry.Family == rt.FamilyFloat, 0)
	f.emit(arm64.BL(name))
	return f.callResult(floatResult)
}

// callResult moves the AAPCS return register into a fresh temporary.
func (f *fnGen) callResult(float bool) arm64.Reg {
	if float {
		d := f.acquire(KindFloat, "")
		f.emit(arm64.FMovRegFP(d, arm64.D0))
		return d
	}
	r := f.acquire(KindInt, "")
	f.emit(arm64.MovReg(r, arm64.X0))
	return r
}

// --- classes ---

// classOfMember finds the unique class layout defining the named member.
func (f *fnGen) classOfMember(member string) (*analysis.ClassInfo, analysis.MemberInfo, bool) {
	var owner *analysis.ClassInfo
	var info analysis.MemberInfo
	count := 0
	if f.class != "" {
		if c, ok := f.g.analysis.Classes.Lookup(f.class); ok {
			if m, has := c.Member(member); has {
				return c, m, true
			}
		}
	}
	for _, name := range f.g.analysis.Classes.Order() {
		c, _ := f.g.analysis.Classes.Lookup(name)
		if m, has := c.Member(member); has {
			// Inherited members would count once per subclass; only the
			// defining offset matters, so identical offsets collapse.
			if owner != nil && info.Offset == m.Offset {
				continue
			}
			owner, info = c, m
			count++
		}
	}
	if count != 1 {
		return nil, analysis.MemberInfo{}, false
	}
	return owner, info, true
}

func (f *fnGen) memberLoad(n *ast.MemberAccess) arm64.Reg {
	obj := f.expr(n.Object)
	_, m, ok := f.classOfMember(n.Member)
	if !ok {
		f.g.userError("%s: cannot resolve member %q", f.name, n.Member)
		f.release(obj)
		r := f.acquire(KindInt, "")
		f.emit(arm64.MovZ(r, 0, 0))
		return r
	}
	return f.memberLoadByOffset(obj, m)
}

func (f *fnGen) memberLoadByOffset(obj arm64.Reg, m analysis.MemberInfo) arm64.Reg {
	kind := KindInt
	if m.Type.IsFloat() {
		kind = KindFloat
	}
	r := f.acquire(kind, "")
	if r.IsFloat() {
		f.emit(arm64.LdrFImm(r, obj, int64(m.Offset)))
	} else {
		f.emit(arm64.LdrImm(r, obj, int64(m.Offset)))
	}
	f.release(obj)
	return r
}

// methodCall dispatches obj.method(args). Final methods bypass the vtable;
// virtual ones branch through it.
func (f *fnGen) methodCall(m *ast.MemberAccess, args []ast.Expr) arm64.Reg {
	obj := f.expr(m.Object)
	objSlot := f.spillTemp(obj)

	var target analysis.MethodInfo
	var found bool
	for _, name := range f.g.analysis.Classes.Order() {
		c, _ := f.g.analysis.Classes.Lookup(name)
		if mi, has := c.Method(m.Member); has {
			target, found = mi, true
			if f.class == name {
				break
			}
		}
	}
	if !found {
		f.g.userError("%s: cannot resolve method %q", f.name, m.Member)
		r := f.acquire(KindInt, "")
		f.emit(arm64.MovZ(r, 0, 0))
		return r
	}

	f.marshalArgs(args, false, 1)
	f.emitLocalLoad(arm64.X0, objSlot) // receiver
	if target.Final || !target.Virtual {
		f.emit(arm64.BL(analysis.MethodLabel(target.Definer, target.Name)))
	} else {
		// Load the vtable pointer from obj[0], index the slot, branch.
		vt := arm64.X16
		f.emit(arm64.LdrImm(vt, arm64.X0, analysis.VTablePointerOffset))
		f.emit(arm64.LdrImm(vt, vt, int64(target.Slot)*8))
		f.emit(arm64.Blr(vt))
	}
	metrics := f.g.analysis.Metrics[analysis.MethodLabel(target.Definer, target.Name)]
	return f.callResult(metrics != nil && metrics.ReturnType == ast.TypeFloat)
}

// superCall branches through the parent's slot statically.
func (f *fnGen) superCall(n *ast.SuperMethodCall) arm64.Reg {
	if f.class == "" {
		f.g.userError("%s: SUPER outside a method", f.name)
		r := f.acquire(KindInt, "")
		f.emit(arm64.MovZ(r, 0, 0))
		return r
	}
	info, _ := f.g.analysis.Classes.Lookup(f.class)
	if info == nil || info.Parent == nil {
		f.g.userError("%s: class %s has no parent for SUPER.%s", f.name, f.class, n.Method)
		r := f.acquire(KindInt, "")
		f.emit(arm64.MovZ(r, 0, 0))
		return r
	}
	parentMethod, ok := info.Parent.Method(n.Method)
	if !ok {
		f.g.userError("%s: parent of %s has no method %q", f.name, f.class, n.Method)
		r := f.acquire(KindInt, "")
		f.emit(arm64.MovZ(r, 0, 0))
		return r
	}
	this := f.loadVar("_this")
	thisSlot := f.spillTemp(this)
	f.marshalArgs(n.Args, false, 1)
	f.emitLocalLoad(arm64.X0, thisSlot)
	f.emit(arm64.BL(analysis.MethodLabel(parentMethod.Definer, parentMethod.Name)))
	metrics := f.g.analysis.Metrics[analysis.MethodLabel(parentMethod.Definer, parentMethod.Name)]
	return f.callResult(metrics != nil && metrics.ReturnType == ast.TypeFloat)
}

// newObject lowers NEW: allocate by class size, store the vtable pointer,
// run CREATE.
func (f *fnGen) newObject(n *ast.New) arm64.Reg {
	info, ok := f.g.analysis.Classes.Lookup(n.ClassName)
	if !ok {
		f.g.userError("%s: NEW of unknown class %q", f.name, n.ClassName)
		r := f.acquire(KindInt, "")
		f.emit(arm64.MovZ(r, 0, 0))
		return r
	}

	allocated := f.callRuntime("BCPL_ALLOC", []ast.Expr{&ast.NumberLit{Value: int64(info.Size())}}, false)
	obj, ok := f.regs.Acquire(KindInt, true, n.Binding)
	if !ok {
		obj = allocated
	} else {
		f.emit(arm64.MovReg(obj, allocated))
		f.release(allocated)
	}

	vt := f.materializeAddress(info.VTableLabel())
	f.emit(arm64.StrImm(vt, obj, analysis.VTablePointerOffset))
	f.release(vt)

	if create, has := info.Method("CREATE"); has {
		objSlot := f.spillTemp(obj)
		f.marshalArgs(n.Args, false, 1)
		f.emitLocalLoad(arm64.X0, objSlot)
		f.emit(arm64.BL(analysis.MethodLabel(create.Definer, create.Name)))
		obj = f.acquire(KindInt, n.Binding)
		f.emitLocalLoad(obj, objSlot)
	}
	return obj
}

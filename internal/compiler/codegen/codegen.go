// Package codegen walks the lowered AST and produces the ordered
// instruction stream per function, plus the rodata section for literals and
// vtables. The calling convention is AAPCS: integer arguments in x0–x7,
// floats in d0–d7, return in x0 or d0. FP and LR are saved at entry for
// non-leaf functions; callee-saved registers are saved on demand.
package codegen

import (
	"errors"
	"fmt"

	"github.com/albanread/nbcgo/internal/compiler/analysis"
	"github.com/albanread/nbcgo/internal/compiler/arm64"
	"github.com/albanread/nbcgo/internal/compiler/ast"
	"github.com/albanread/nbcgo/internal/compiler/rt"
	"github.com/albanread/nbcgo/internal/compiler/symbols"
)

// GlobalsLabel names the zeroed data zone global variables live in.
const GlobalsLabel = "globals_base"

// Generator produces the whole program's stream.
type Generator struct {
	table    *symbols.Table
	analysis *analysis.Result
	registry *rt.Registry
	labels   *LabelManager
	data     *DataGenerator
	reducers *ReducerRegistry

	globalOffsets map[string]int64
	globalsSize   int64
	errs          []error
}

// NewGenerator wires the generator to the tables it consults.
func NewGenerator(table *symbols.Table, res *analysis.Result, registry *rt.Registry) *Generator {
	labels := &LabelManager{}
	return &Generator{
		table:         table,
		analysis:      res,
		registry:      registry,
		labels:        labels,
		data:          NewDataGenerator(labels),
		reducers:      NewReducerRegistry(),
		globalOffsets: make(map[string]int64),
	}
}

// Program generates every function followed by the data section. The
// returned stream is ready for the peephole optimizer and linker.
func (g *Generator) Program(p *ast.Program) ([]arm64.Instruction, error) {
	g.layoutGlobals()

	var out []arm64.Instruction
	for _, d := range p.Decls {
		switch n := d.(type) {
		case *ast.Routine:
			out = append(out, g.function(n.Name, "", n.Params, nil, n.Body)...)
		case *ast.Function:
			out = append(out, g.function(n.Name, "", n.Params, n.Body, nil)...)
		case *ast.Class:
			for _, m := range n.Members {
				switch f := m.Decl.(type) {
				case *ast.Routine:
					out = append(out, g.function(analysis.MethodLabel(n.Name, f.Name), n.Name, f.Params, nil, f.Body)...)
				case *ast.Function:
					out = append(out, g.function(analysis.MethodLabel(n.Name, f.Name), n.Name, f.Params, f.Body, nil)...)
				}
			}
		}
	}

	g.data.EmitVTables(g.analysis.Classes)
	out = append(out, g.data.Records()...)
	out = append(out, g.globalsZone()...)

	if len(g.errs) > 0 {
		return out, errors.Join(g.errs...)
	}
	return out, nil
}

// layoutGlobals assigns each global and static symbol a slot in the
// globals zone.
func (g *Generator) layoutGlobals() {
	var next int64
	for _, sym := range g.table.All() {
		if !sym.IsGlobal() {
			continue
		}
		if sym.Location.Type == symbols.LocData {
			// GLOBALS declarations carry explicit slots.
			g.globalOffsets[sym.Name] = int64(sym.Location.DataOffset)
			if end := int64(sym.Location.DataOffset) + 8; end > next {
				next = end
			}
			continue
		}
		g.globalOffsets[sym.Name] = next
		sym.Location = symbols.DataLocation(int(next))
		next += 8
	}
	g.globalsSize = next
}

// globalsZone renders the zero-initialized data records.
func (g *Generator) globalsZone() []arm64.Instruction {
	out := []arm64.Instruction{arm64.LabelDef(GlobalsLabel)}
	for off := int64(0); off < g.globalsSize; off += 8 {
		words := arm64.DataWord64(0, arm64.SegData)
		out = append(out, words[0], words[1])
	}
	return out
}

func (g *Generator) userError(format string, args ...any) {
	g.errs = append(g.errs, fmt.Errorf(format, args...))
}

// --- per-function generation ---

type valofCtx struct {
	endLabel string
	result   arm64.Reg
	float    bool
}

type fnGen struct {
	g     *Generator
	name  string
	class string
	regs  *RegisterManager
	out   []arm64.Instruction

	frame     map[string]int64 // local name -> positive offset below FP
	frameSize int64
	leaf      bool
	returnsFlt bool
	retLabel   string

	acrossCalls map[string]bool

	breakLabels   []string
	loopLabels    []string
	endcaseLabels []string
	valofs        []valofCtx
	defers        []ast.Stmt
}

func (g *Generator) function(name, class string, params []string, exprBody ast.Expr, stmtBody ast.Stmt) []arm64.Instruction {
	metrics := g.analysis.MetricsFor(name)
	f := &fnGen{
		g:           g,
		name:        name,
		class:       class,
		regs:        NewRegisterManager(),
		frame:       make(map[string]int64),
		leaf:        !metrics.ContainsCall,
		returnsFlt:  metrics.ReturnType == ast.TypeFloat,
		retLabel:    name + "_ret",
		acrossCalls: make(map[string]bool),
	}
	if flow, ok := g.analysis.Flow[name]; ok {
		for _, blk := range flow.Blocks {
			for v := range blk.VarsUsedAcrossCalls {
				f.acrossCalls[v] = true
			}
		}
	}

	// Frame layout: [saved regs][locals][outgoing args]; SP stays 16-byte
	// aligned at every call boundary. Slot offsets are FP-relative.
	allParams := params
	if class != "" {
		allParams = append([]string{"_this"}, params...)
	}
	for _, p := range allParams {
		f.allocSlot(p)
	}
	for _, sym := range g.table.FunctionLocals(name) {
		f.allocSlot(sym.Name)
	}

	// Body into a scratch buffer; the prologue needs the callee-saved set
	// and final frame size, known only afterwards.
	if exprBody != nil {
		r := f.expr(exprBody)
		f.moveToReturn(r, f.returnsFlt)
		f.release(r)
	}
	if stmtBody != nil {
		f.stmt(stmtBody)
	}
	body := f.out
	f.out = nil

	// Epilogue block: label, deferred releases, restores, ret.
	f.out = append(f.out, arm64.LabelDef(f.retLabel))
	epilogueDefers := f.defers
	f.defers = nil
	if len(epilogueDefers) > 0 {
		// Deferred actions run on every exit path; all paths funnel here.
		saved := f.returnSave()
		for i := len(epilogueDefers) - 1; i >= 0; i-- {
			f.stmt(epilogueDefers[i])
		}
		f.returnRestore(saved)
	}
	f.emitOwnedReleases()
	epilogue := f.out
	f.out = nil

	// Prologue. A leaf function with no frame skips the FP/LR save
	// entirely; anything with locals or calls establishes a frame.
	frame := alignTo16(f.frameSize)
	needFrame := frame > 0 || !f.leaf
	var pro []arm64.Instruction
	pro = append(pro, arm64.LabelDef(name))
	if needFrame {
		pro = append(pro, arm64.StpPre(arm64.FP, arm64.LR, arm64.SP, -16))
		pro = append(pro, arm64.MovSP(arm64.FP, arm64.SP))
	}
	if frame > 0 {
		pro = append(pro, arm64.SubImm(arm64.SP, arm64.SP, frame))
	}
	callees := f.regs.UsedCalleeSaved()
	for i := 0; i+1 < len(callees); i += 2 {
		pro = append(pro, arm64.StpPre(callees[i], callees[i+1], arm64.SP, -16))
	}
	if len(callees)%2 == 1 {
		pro = append(pro, arm64.StrPre(callees[len(callees)-1], arm64.SP, -16))
	}
	// Spill incoming arguments to their slots.
	for i, p := range allParams {
		if i >= 8 {
			f.g.userError("%s: more than eight parameters are not supported", name)
			break
		}
		pro = append(pro, localStore(arm64.X0+arm64.Reg(i), f.frame[p])...)
	}

	// Epilogue restores mirror the prologue.
	var resto []arm64.Instruction
	if len(callees)%2 == 1 {
		resto = append(resto, arm64.LdrPost(callees[len(callees)-1], arm64.SP, 16))
	}
	for i := len(callees) - 2; i >= 0; i -= 2 {
		resto = append(resto, arm64.LdpPost(callees[i], callees[i+1], arm64.SP, 16))
	}
	if frame > 0 {
		resto = append(resto, arm64.AddImm(arm64.SP, arm64.SP, frame))
	}
	if needFrame {
		resto = append(resto, arm64.LdpPost(arm64.FP, arm64.LR, arm64.SP, 16))
	}
	resto = append(resto, arm64.Ret())

	out := make([]arm64.Instruction, 0, len(pro)+len(body)+len(epilogue)+len(resto))
	out = append(out, pro...)
	out = append(out, body...)
	out = append(out, epilogue...)
	out = append(out, resto...)
	return out
}

func alignTo16(n int64) int64 { return (n + 15) &^ 15 }

func (f *fnGen) allocSlot(name string) int64 {
	if off, ok := f.frame[name]; ok {
		return off
	}
	f.frameSize += 8
	f.frame[name] = f.frameSize
	return f.frameSize
}

func (f *fnGen) emit(ins ...arm64.Instruction) {
	f.out = append(f.out, ins...)
}

func (f *fnGen) acquire(kind Kind, owner string) arm64.Reg {
	r, ok := f.regs.Acquire(kind, f.acrossCalls[owner], owner)
	if !ok {
		panic("BUG: register pools exhausted; expression spilling failed to trigger")
	}
	return r
}

func (f *fnGen) release(r arm64.Reg) { f.regs.Release(r) }

// lowOnInts reports whether the caller-saved integer pool is nearly empty;
// binary operands spill their left value around the right's evaluation then.
func (f *fnGen) lowOnInts() bool {
	freeCount := 0
	for _, r := range callerSavedInts {
		if f.regs.free[r] {
			freeCount++
		}
	}
	return freeCount < 2
}

// spillTemp stores r into the next numbered spill slot (a named frame slot
// like any local) and releases the register.
func (f *fnGen) spillTemp(r arm64.Reg) int64 {
	slot := f.regs.Spill()
	off := f.allocSlot(fmt.Sprintf("_spill%d", slot))
	f.emitLocalStore(r, off)
	f.release(r)
	return off
}

func (f *fnGen) reloadTemp(off int64, kind Kind) arm64.Reg {
	r := f.acquire(kind, "")
	f.emitLocalLoad(r, off)
	return r
}

// emitLocalStore/emitLocalLoad address a frame slot at [FP, -off]. Offsets
// within the unscaled-immediate range use STUR/LDUR; larger frames go
// through x16 as the address scratch.
func (f *fnGen) emitLocalStore(r arm64.Reg, off int64) {
	f.emit(localStore(r, off)...)
}

func (f *fnGen) emitLocalLoad(r arm64.Reg, off int64) {
	f.emit(localLoad(r, off)...)
}

func localStore(r arm64.Reg, off int64) []arm64.Instruction {
	if off <= 256 {
		if r.IsFloat() {
			return []arm64.Instruction{arm64.SturF(r, arm64.FP, -off)}
		}
		return []arm64.Instruction{arm64.Stur(r, arm64.FP, -off)}
	}
	addr := arm64.SubImm(arm64.X16, arm64.FP, off)
	if r.IsFloat() {
		return []arm64.Instruction{addr, arm64.StrFImm(r, arm64.X16, 0)}
	}
	return []arm64.Instruction{addr, arm64.StrImm(r, arm64.X16, 0)}
}

func localLoad(r arm64.Reg, off int64) []arm64.Instruction {
	if off <= 256 {
		if r.IsFloat() {
			return []arm64.Instruction{arm64.LdurF(r, arm64.FP, -off)}
		}
		return []arm64.Instruction{arm64.Ldur(r, arm64.FP, -off)}
	}
	addr := arm64.SubImm(arm64.X16, arm64.FP, off)
	if r.IsFloat() {
		return []arm64.Instruction{addr, arm64.LdrFImm(r, arm64.X16, 0)}
	}
	return []arm64.Instruction{addr, arm64.LdrImm(r, arm64.X16, 0)}
}

type returnSnapshot struct {
	intOff, fltOff int64
}

// returnSave preserves the return registers around epilogue work (deferred
// statements may call and clobber them).
func (f *fnGen) returnSave() returnSnapshot {
	snap := returnSnapshot{
		intOff: f.allocSlot("_retint"),
		fltOff: f.allocSlot("_retflt"),
	}
	f.emitLocalStore(arm64.X0, snap.intOff)
	f.emitLocalStore(arm64.D0, snap.fltOff)
	return snap
}

func (f *fnGen) returnRestore(snap returnSnapshot) {
	f.emitLocalLoad(arm64.X0, snap.intOff)
	f.emitLocalLoad(arm64.D0, snap.fltOff)
}

// emitOwnedReleases synthesizes the scope-exit release for every local that
// still owns heap memory (retain analysis cleared the flag for values that
// escape or were RETAINed).
func (f *fnGen) emitOwnedReleases() {
	locals := f.g.table.FunctionLocals(f.name)
	var owned []*symbols.Symbol
	for _, sym := range locals {
		if sym.OwnsHeapMemory {
			owned = append(owned, sym)
		}
	}
	if len(owned) == 0 {
		return
	}
	snap := f.returnSave()
	for _, sym := range owned {
		off, ok := f.frame[sym.Name]
		if !ok {
			continue
		}
		release := "FREEVEC"
		switch {
		case sym.Type.Has(ast.TypeList) && sym.Type.Has(ast.TypePointer):
			release = "LIST_FREE"
		case sym.Type.Has(ast.TypeObject):
			release = "BCPL_FREE"
		}
		f.emitLocalLoad(arm64.X0, off)
		f.emit(arm64.BL(release))
	}
	f.returnRestore(snap)
}

// moveToReturn places a value in the return register.
func (f *fnGen) moveToReturn(r arm64.Reg, float bool) {
	if r == arm64.NoReg {
		return
	}
	if float {
		if r != arm64.D0 {
			f.emit(arm64.FMovRegFP(arm64.D0, r))
		}
		return
	}
	if r != arm64.X0 {
		f.emit(arm64.MovReg(arm64.X0, r))
	}
}

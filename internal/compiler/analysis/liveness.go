package analysis

import (
	"github.com/albanread/nbcgo/internal/compiler/ast"
	"github.com/albanread/nbcgo/internal/compiler/symbols"
)

// Liveness: per-block use/def from the statements, call-interval detection,
// then the iterative data-flow fixpoint
//
//	live_out(b) = ⋃ live_in(s) over successors s
//	live_in(b)  = use(b) ∪ (live_out(b) \ def(b))
//
// iterated to stability. Variable identity is the source name; only names
// that resolve to variable symbols participate.

// ComputeLiveness fills every block's sets. The resolver decides whether a
// name denotes a variable in this function's context.
func (g *FlowGraph) ComputeLiveness(table *symbols.Table) {
	isVar := func(name string) bool {
		sym, ok := table.LookupIn(g.Function, name)
		return ok && sym.IsVariable()
	}
	for _, blk := range g.Blocks {
		analyzeBlock(blk, isVar)
	}

	// Fixpoint.
	for changed := true; changed; {
		changed = false
		for i := len(g.Blocks) - 1; i >= 0; i-- {
			blk := g.Blocks[i]
			for _, succ := range blk.Succs {
				for v := range succ.LiveIn {
					if !blk.LiveOut[v] {
						blk.LiveOut[v] = true
						changed = true
					}
				}
			}
			for v := range blk.Use {
				if !blk.LiveIn[v] {
					blk.LiveIn[v] = true
					changed = true
				}
			}
			for v := range blk.LiveOut {
				if !blk.Def[v] && !blk.LiveIn[v] {
					blk.LiveIn[v] = true
					changed = true
				}
			}
		}
	}
}

// analyzeBlock walks the block's statements computing use/def in order, and
// performs the intra-block call-interval scan: after a call, every
// subsequent variable use lands in VarsUsedAcrossCalls.
func analyzeBlock(blk *Block, isVar func(string) bool) {
	sawCall := false
	for _, s := range blk.Stmts {
		switch n := s.(type) {
		case *ast.Assign:
			for _, rhs := range n.Rhs {
				useExpr(blk, rhs, isVar, &sawCall)
			}
			for _, lhs := range n.Lhs {
				if v, ok := lhs.(*ast.VarAccess); ok && isVar(v.Name) {
					// use stays upward-exposed only; def records every
					// assignment, including one after a use.
					blk.Def[v.Name] = true
					if sawCall {
						blk.VarsUsedAcrossCalls[v.Name] = true
					}
				} else {
					// Stores through vectors/members use their operands.
					useExpr(blk, lhs, isVar, &sawCall)
				}
			}
		case *ast.RoutineCall:
			for _, a := range n.Args {
				useExpr(blk, a, isVar, &sawCall)
			}
			sawCall = true
		case *ast.CondBranch:
			useExpr(blk, n.Value, isVar, &sawCall)
		case *ast.Resultis:
			useExpr(blk, n.Value, isVar, &sawCall)
		case *ast.Free:
			useExpr(blk, n.Target, isVar, &sawCall)
		case *ast.Goto:
			useExpr(blk, n.Target, isVar, &sawCall)
		case *ast.Finish:
			if n.Syscall != nil {
				useExpr(blk, n.Syscall, isVar, &sawCall)
				for _, a := range n.Args {
					useExpr(blk, a, isVar, &sawCall)
				}
			}
		case *ast.Reduction:
			useExpr(blk, n.Left, isVar, &sawCall)
			if n.Right != nil {
				useExpr(blk, n.Right, isVar, &sawCall)
			}
			blk.Def[n.Result] = true
		case *ast.ReductionLoop:
			useExpr(blk, n.Left, isVar, &sawCall)
			if n.Right != nil {
				useExpr(blk, n.Right, isVar, &sawCall)
			}
			blk.Def[n.Result] = true
		case *ast.PairwiseReductionLoop:
			useExpr(blk, n.Left, isVar, &sawCall)
			if n.Right != nil {
				useExpr(blk, n.Right, isVar, &sawCall)
			}
			blk.Def[n.Result] = true
		}
	}
}

// useExpr records variable uses in an expression, tracks calls, and runs the
// "used across calls within one expression" walker: in a binary operation
// where one side contains a call, the variables on the other side are live
// across that call.
func useExpr(blk *Block, e ast.Expr, isVar func(string) bool, sawCall *bool) {
	if e == nil {
		return
	}
	// The "used across calls within one expression" walker: at every binary
	// operation, when one side embeds a call the other side's variables are
	// live across it.
	ast.Walk(e, func(n ast.Node) bool {
		if bin, ok := n.(*ast.BinaryOp); ok {
			leftCalls := containsCall(bin.Left)
			rightCalls := containsCall(bin.Right)
			if leftCalls && !rightCalls {
				markVars(blk, bin.Right, isVar)
			}
			if rightCalls && !leftCalls {
				markVars(blk, bin.Left, isVar)
			}
		}
		return true
	})
	ast.Walk(e, func(n ast.Node) bool {
		if v, ok := n.(*ast.VarAccess); ok && isVar(v.Name) {
			if !blk.Def[v.Name] {
				blk.Use[v.Name] = true
			}
			if *sawCall {
				blk.VarsUsedAcrossCalls[v.Name] = true
			}
		}
		return true
	})
	if containsCall(e) {
		*sawCall = true
	}
}

// markVars adds every variable in e to the block's across-calls set.
func markVars(blk *Block, e ast.Expr, isVar func(string) bool) {
	ast.Walk(e, func(n ast.Node) bool {
		if v, ok := n.(*ast.VarAccess); ok && isVar(v.Name) {
			blk.VarsUsedAcrossCalls[v.Name] = true
		}
		return true
	})
}

// containsCall reports whether the expression embeds any call.
func containsCall(e ast.Expr) bool {
	found := false
	ast.Walk(e, func(n ast.Node) bool {
		switch n.(type) {
		case *ast.FunctionCall, *ast.SuperMethodCall, *ast.New, *ast.SysCall:
			found = true
			return false
		}
		return !found
	})
	return found
}

// AnalyzeProgram builds and solves the flow graph of every function and
// routine, storing results in res.Flow.
func AnalyzeProgram(p *ast.Program, table *symbols.Table, res *Result) {
	addFn := func(name string, body ast.Stmt) {
		g := BuildCFG(name, body)
		g.ComputeLiveness(table)
		res.Flow[name] = g
	}
	for _, d := range p.Decls {
		switch n := d.(type) {
		case *ast.Routine:
			addFn(n.Name, n.Body)
		case *ast.Function:
			addFn(n.Name, &ast.Resultis{Value: n.Body})
		case *ast.Class:
			for _, m := range n.Members {
				switch f := m.Decl.(type) {
				case *ast.Routine:
					addFn(MethodLabel(n.Name, f.Name), f.Body)
				case *ast.Function:
					addFn(MethodLabel(n.Name, f.Name), &ast.Resultis{Value: f.Body})
				}
			}
		}
	}
}

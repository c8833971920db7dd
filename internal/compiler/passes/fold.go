package passes

import (
	"github.com/albanread/nbcgo/internal/compiler/ast"
	"github.com/albanread/nbcgo/internal/compiler/symbols"
)

// FoldConstants rewrites operators over literals into literals and elides
// branches whose condition is a known constant. Language semantics apply:
// TRUE is −1, integer division by zero never folds (the node stays intact),
// and mixed int/float operations promote to float. A per-function map of
// locally known constants propagates values across straight-line
// assignments; entering a loop body or passing a call invalidates it.
// LEN(v) folds to the symbol's size when statically known.
func FoldConstants(p *ast.Program, table *symbols.Table) *ast.Program {
	for _, d := range p.Decls {
		switch n := d.(type) {
		case *ast.Function:
			f := &folder{table: table, function: n.Name, consts: map[string]ast.Expr{}}
			n.Body = f.expr(n.Body)
		case *ast.Routine:
			f := &folder{table: table, function: n.Name, consts: map[string]ast.Expr{}}
			n.Body = f.stmt(n.Body)
		case *ast.Class:
			for _, m := range n.Members {
				switch f := m.Decl.(type) {
				case *ast.Function:
					fl := &folder{table: table, function: f.Name, consts: map[string]ast.Expr{}}
					f.Body = fl.expr(f.Body)
				case *ast.Routine:
					fl := &folder{table: table, function: f.Name, consts: map[string]ast.Expr{}}
					f.Body = fl.stmt(f.Body)
				}
			}
		}
	}
	return p
}

type folder struct {
	table    *symbols.Table
	function string
	// consts maps locally known constant variables to their literal.
	consts map[string]ast.Expr
}

func (f *folder) invalidate() {
	for k := range f.consts {
		delete(f.consts, k)
	}
}

// literal classification

func intLit(e ast.Expr) (int64, bool) {
	switch n := e.(type) {
	case *ast.NumberLit:
		return n.Value, true
	case *ast.CharLit:
		return int64(n.Value), true
	case *ast.BoolLit:
		if n.Value {
			return -1, true
		}
		return 0, true
	}
	return 0, false
}

func floatLit(e ast.Expr) (float64, bool) {
	if n, ok := e.(*ast.FloatLit); ok {
		return n.Value, true
	}
	return 0, false
}

func isLiteral(e ast.Expr) bool {
	switch e.(type) {
	case *ast.NumberLit, *ast.FloatLit, *ast.CharLit, *ast.BoolLit, *ast.StringLit, *ast.NullLit:
		return true
	}
	return false
}

func boolExpr(v bool) ast.Expr { return &ast.BoolLit{Value: v} }

// truth evaluates a literal condition; BCPL truth is non-zero.
func truth(e ast.Expr) (bool, bool) {
	if v, ok := intLit(e); ok {
		return v != 0, true
	}
	if v, ok := floatLit(e); ok {
		return v != 0, true
	}
	return false, false
}

func (f *folder) expr(e ast.Expr) ast.Expr {
	if e == nil {
		return nil
	}
	switch n := e.(type) {
	case *ast.VarAccess:
		if lit, ok := f.consts[n.Name]; ok {
			return ast.CloneExpr(lit)
		}
		return n
	case *ast.BinaryOp:
		n.Left = f.expr(n.Left)
		n.Right = f.expr(n.Right)
		return foldBinary(n)
	case *ast.UnaryOp:
		n.Operand = f.expr(n.Operand)
		return f.foldUnary(n)
	case *ast.Conditional:
		n.Cond = f.expr(n.Cond)
		if known, ok := truth(n.Cond); ok {
			if known {
				return f.expr(n.Then)
			}
			return f.expr(n.Else)
		}
		n.Then = f.expr(n.Then)
		n.Else = f.expr(n.Else)
		return n
	case *ast.Valof:
		n.Body = f.stmt(n.Body)
		return n
	case *ast.FloatValof:
		n.Body = f.stmt(n.Body)
		return n
	case *ast.FunctionCall:
		n.Target = f.expr(n.Target)
		for i, a := range n.Args {
			n.Args[i] = f.expr(a)
		}
		f.invalidate() // the callee may write any non-local state
		return n
	default:
		return f.genericExpr(e)
	}
}

// genericExpr folds the children of expression variants with no special
// folding behavior of their own.
func (f *folder) genericExpr(e ast.Expr) ast.Expr {
	switch n := e.(type) {
	case *ast.VectorAccess:
		n.Vector = f.expr(n.Vector)
		n.Index = f.expr(n.Index)
	case *ast.CharIndirection:
		n.Str = f.expr(n.Str)
		n.Index = f.expr(n.Index)
	case *ast.FloatVectorIndirection:
		n.Vector = f.expr(n.Vector)
		n.Index = f.expr(n.Index)
	case *ast.BitfieldAccess:
		n.Base = f.expr(n.Base)
		n.StartBit = f.expr(n.StartBit)
		n.Width = f.expr(n.Width)
	case *ast.SysCall:
		n.Number = f.expr(n.Number)
		for i, a := range n.Args {
			n.Args[i] = f.expr(a)
		}
		f.invalidate()
	case *ast.Alloc:
		n.Size = f.expr(n.Size)
	case *ast.Table:
		for i, x := range n.Exprs {
			n.Exprs[i] = f.expr(x)
		}
	case *ast.List:
		for i, x := range n.Exprs {
			n.Exprs[i] = f.expr(x)
		}
	case *ast.New:
		for i, a := range n.Args {
			n.Args[i] = f.expr(a)
		}
		f.invalidate()
	case *ast.MemberAccess:
		n.Object = f.expr(n.Object)
	case *ast.SuperMethodCall:
		for i, a := range n.Args {
			n.Args[i] = f.expr(a)
		}
		f.invalidate()
	case *ast.PackedExpr:
		for i, x := range n.Elems {
			n.Elems[i] = f.expr(x)
		}
	case *ast.PackedAccess:
		n.Base = f.expr(n.Base)
	case *ast.LaneAccess:
		n.Vector = f.expr(n.Vector)
		n.Lane = f.expr(n.Lane)
	case *ast.VecInitializer:
		for i, x := range n.Values {
			n.Values[i] = f.expr(x)
		}
	}
	return e
}

func foldBinary(n *ast.BinaryOp) ast.Expr {
	li, liok := intLit(n.Left)
	ri, riok := intLit(n.Right)
	lf, lfok := floatLit(n.Left)
	rf, rfok := floatLit(n.Right)

	// Mixed int/float promotes to float.
	if (liok || lfok) && (riok || rfok) && (lfok || rfok) {
		a, b := lf, rf
		if !lfok {
			a = float64(li)
		}
		if !rfok {
			b = float64(ri)
		}
		return foldFloat(n, a, b)
	}
	if liok && riok {
		return foldInt(n, li, ri)
	}
	return n
}

func foldInt(n *ast.BinaryOp, a, b int64) ast.Expr {
	switch n.Op {
	case ast.Add:
		return &ast.NumberLit{Value: a + b}
	case ast.Sub:
		return &ast.NumberLit{Value: a - b}
	case ast.Mul:
		return &ast.NumberLit{Value: a * b}
	case ast.Div:
		if b == 0 {
			return n // left intact; dividing by zero is a runtime matter
		}
		return &ast.NumberLit{Value: a / b}
	case ast.Rem:
		if b == 0 {
			return n
		}
		return &ast.NumberLit{Value: a % b}
	case ast.Eq:
		return boolExpr(a == b)
	case ast.Ne:
		return boolExpr(a != b)
	case ast.Lt:
		return boolExpr(a < b)
	case ast.Le:
		return boolExpr(a <= b)
	case ast.Gt:
		return boolExpr(a > b)
	case ast.Ge:
		return boolExpr(a >= b)
	case ast.BitwiseAnd, ast.LogicalAnd:
		return &ast.NumberLit{Value: a & b}
	case ast.BitwiseOr, ast.LogicalOr:
		return &ast.NumberLit{Value: a | b}
	case ast.Equivalence:
		return &ast.NumberLit{Value: ^(a ^ b)}
	case ast.NotEquivalence:
		return &ast.NumberLit{Value: a ^ b}
	case ast.LeftShift:
		if b < 0 || b > 63 {
			return n
		}
		return &ast.NumberLit{Value: a << uint(b)}
	case ast.RightShift:
		if b < 0 || b > 63 {
			return n
		}
		return &ast.NumberLit{Value: int64(uint64(a) >> uint(b))}
	}
	return n
}

func foldFloat(n *ast.BinaryOp, a, b float64) ast.Expr {
	switch n.Op {
	case ast.Add:
		return &ast.FloatLit{Value: a + b}
	case ast.Sub:
		return &ast.FloatLit{Value: a - b}
	case ast.Mul:
		return &ast.FloatLit{Value: a * b}
	case ast.Div:
		if b == 0 {
			return n
		}
		return &ast.FloatLit{Value: a / b}
	case ast.Eq:
		return boolExpr(a == b)
	case ast.Ne:
		return boolExpr(a != b)
	case ast.Lt:
		return boolExpr(a < b)
	case ast.Le:
		return boolExpr(a <= b)
	case ast.Gt:
		return boolExpr(a > b)
	case ast.Ge:
		return boolExpr(a >= b)
	}
	return n
}

func (f *folder) foldUnary(n *ast.UnaryOp) ast.Expr {
	switch n.Op {
	case ast.Negate:
		if v, ok := intLit(n.Operand); ok {
			return &ast.NumberLit{Value: -v}
		}
		if v, ok := floatLit(n.Operand); ok {
			return &ast.FloatLit{Value: -v}
		}
	case ast.LogicalNot:
		if v, ok := truth(n.Operand); ok {
			return boolExpr(!v)
		}
	case ast.BitwiseNot:
		if v, ok := intLit(n.Operand); ok {
			return &ast.NumberLit{Value: ^v}
		}
	case ast.FloatConvert:
		if v, ok := intLit(n.Operand); ok {
			return &ast.FloatLit{Value: float64(v)}
		}
	case ast.IntegerConvert:
		if v, ok := floatLit(n.Operand); ok {
			return &ast.NumberLit{Value: int64(v)}
		}
	case ast.LengthOf:
		if v, ok := n.Operand.(*ast.VarAccess); ok {
			if sym, found := f.table.LookupIn(f.function, v.Name); found && sym.HasSize {
				return &ast.NumberLit{Value: int64(sym.Size)}
			}
		}
	}
	return n
}

func (f *folder) stmt(s ast.Stmt) ast.Stmt {
	switch n := s.(type) {
	case nil:
		return nil
	case *ast.Compound:
		out := n.Stmts[:0]
		for _, st := range n.Stmts {
			if folded := f.stmt(st); folded != nil {
				out = append(out, folded)
			}
		}
		n.Stmts = out
		return n
	case *ast.Block:
		for _, d := range n.Decls {
			if let, ok := d.(*ast.Let); ok {
				for i, init := range let.Inits {
					let.Inits[i] = f.expr(init)
				}
				for i, name := range let.Names {
					if i < len(let.Inits) && isLiteral(let.Inits[i]) {
						f.consts[name] = let.Inits[i]
					}
				}
			}
		}
		out := n.Stmts[:0]
		for _, st := range n.Stmts {
			if folded := f.stmt(st); folded != nil {
				out = append(out, folded)
			}
		}
		n.Stmts = out
		return n
	case *ast.Assign:
		for i, rhs := range n.Rhs {
			n.Rhs[i] = f.expr(rhs)
		}
		for i, lhs := range n.Lhs {
			if v, ok := lhs.(*ast.VarAccess); ok {
				if i < len(n.Rhs) && isLiteral(n.Rhs[i]) {
					f.consts[v.Name] = n.Rhs[i]
				} else {
					delete(f.consts, v.Name)
				}
			} else {
				n.Lhs[i] = f.genericExpr(lhs)
				// A store through memory may alias anything tracked.
				f.invalidate()
			}
		}
		return n
	case *ast.If:
		n.Cond = f.expr(n.Cond)
		if known, ok := truth(n.Cond); ok {
			if known {
				return f.stmt(n.Then)
			}
			return nil
		}
		f.branchBody(&n.Then)
		return n
	case *ast.Unless:
		n.Cond = f.expr(n.Cond)
		if known, ok := truth(n.Cond); ok {
			if !known {
				return f.stmt(n.Then)
			}
			return nil
		}
		f.branchBody(&n.Then)
		return n
	case *ast.Test:
		n.Cond = f.expr(n.Cond)
		if known, ok := truth(n.Cond); ok {
			if known {
				return f.stmt(n.Then)
			}
			return f.stmt(n.Else)
		}
		f.branchBody(&n.Then)
		f.branchBody(&n.Else)
		return n
	case *ast.While:
		n.Cond = f.expr(n.Cond)
		if known, ok := truth(n.Cond); ok && !known {
			return nil
		}
		f.loopBody(&n.Body)
		return n
	case *ast.Until:
		n.Cond = f.expr(n.Cond)
		if known, ok := truth(n.Cond); ok && known {
			return nil
		}
		f.loopBody(&n.Body)
		return n
	case *ast.Repeat:
		f.loopBody(&n.Body)
		if n.Cond != nil {
			n.Cond = f.expr(n.Cond)
		}
		return n
	case *ast.For:
		n.Start = f.expr(n.Start)
		n.End = f.expr(n.End)
		if isLiteral(n.End) {
			n.EndConst = true
		}
		if n.Step != nil {
			n.Step = f.expr(n.Step)
			if isLiteral(n.Step) {
				n.StepConst = true
			}
		} else {
			n.StepConst = true
		}
		f.loopBody(&n.Body)
		return n
	case *ast.ForEach:
		n.Collection = f.expr(n.Collection)
		f.loopBody(&n.Body)
		return n
	case *ast.Switchon:
		n.Value = f.expr(n.Value)
		for _, c := range n.Cases {
			c.Value = f.expr(c.Value)
			f.branchBody(&c.Body)
		}
		if n.Default != nil {
			f.branchBody(&n.Default.Body)
		}
		return n
	case *ast.RoutineCall:
		n.Target = f.expr(n.Target)
		for i, a := range n.Args {
			n.Args[i] = f.expr(a)
		}
		f.invalidate()
		return n
	case *ast.Resultis:
		n.Value = f.expr(n.Value)
		return n
	case *ast.CondBranch:
		n.Value = f.expr(n.Value)
		return n
	case *ast.Free:
		n.Target = f.expr(n.Target)
		return n
	case *ast.Defer:
		n.Body = f.stmt(n.Body)
		return n
	case *ast.StringAllocStmt:
		n.Size = f.expr(n.Size)
		return n
	case *ast.Goto:
		n.Target = f.expr(n.Target)
		return n
	case *ast.Finish:
		if n.Syscall != nil {
			n.Syscall = f.expr(n.Syscall)
			for i, a := range n.Args {
				n.Args[i] = f.expr(a)
			}
		}
		return n
	default:
		return s
	}
}

// branchBody folds a conditional arm: values assigned inside may or may not
// happen, so the constants map is invalidated afterwards for the names the
// arm writes. Simplicity over precision: the whole map is cleared when the
// arm assigns anything.
func (f *folder) branchBody(body *ast.Stmt) {
	*body = f.stmt(*body)
	if assignsAnything(*body) {
		f.invalidate()
	}
}

// loopBody folds a loop body. Entering the loop invalidates the map, and it
// stays invalid after, because the body runs an unknown number of times.
func (f *folder) loopBody(body *ast.Stmt) {
	f.invalidate()
	*body = f.stmt(*body)
	f.invalidate()
}

func assignsAnything(s ast.Stmt) bool {
	if s == nil {
		return false
	}
	found := false
	ast.Walk(s, func(n ast.Node) bool {
		switch n.(type) {
		case *ast.Assign, *ast.RoutineCall, *ast.FunctionCall:
			found = true
			return false
		}
		return !found
	})
	return found
}

package passes

import "github.com/albanread/nbcgo/internal/compiler/ast"

// LowerShortCircuit rewrites the logical connectives into conditionals,
// establishing the evaluation order the language requires:
//
//	a & b  →  a -> b, FALSE
//	a | b  →  a -> TRUE, b
func LowerShortCircuit(p *ast.Program) *ast.Program {
	rw := &ast.Rewriter{
		Expr: func(e ast.Expr) ast.Expr {
			bin, ok := e.(*ast.BinaryOp)
			if !ok {
				return e
			}
			switch bin.Op {
			case ast.LogicalAnd:
				return &ast.Conditional{
					Cond: bin.Left,
					Then: bin.Right,
					Else: &ast.BoolLit{Value: false},
				}
			case ast.LogicalOr:
				return &ast.Conditional{
					Cond: bin.Left,
					Then: &ast.BoolLit{Value: true},
					Else: bin.Right,
				}
			}
			return e
		},
	}
	return rw.Program(p)
}

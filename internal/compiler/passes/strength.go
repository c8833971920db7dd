package passes

import (
	"github.com/albanread/nbcgo/internal/compiler/arm64"
	"github.com/albanread/nbcgo/internal/compiler/ast"
)

// ReduceStrength rewrites expensive operations into cheaper equivalents:
//
//	x * 2^k  →  x << k          (integer)
//	x / 2^k  →  x >> k          (integer, positive divisor only)
//	x * 2.0  →  x + x           (float)
//	x / c    →  x * (1/c)       (float; operand order preserved)
func ReduceStrength(p *ast.Program) *ast.Program {
	rw := &ast.Rewriter{Expr: reduceExpr}
	return rw.Program(p)
}

func reduceExpr(e ast.Expr) ast.Expr {
	bin, ok := e.(*ast.BinaryOp)
	if !ok {
		return e
	}
	switch bin.Op {
	case ast.Mul:
		if c, isInt := intLit(bin.Right); isInt && arm64.IsPowerOfTwo(c) {
			return &ast.BinaryOp{
				Op: ast.LeftShift, Left: bin.Left,
				Right: &ast.NumberLit{Value: int64(arm64.Log2(c))},
			}
		}
		if c, isInt := intLit(bin.Left); isInt && arm64.IsPowerOfTwo(c) {
			return &ast.BinaryOp{
				Op: ast.LeftShift, Left: bin.Right,
				Right: &ast.NumberLit{Value: int64(arm64.Log2(c))},
			}
		}
		if c, isFloat := floatLit(bin.Right); isFloat && c == 2.0 {
			return &ast.BinaryOp{Op: ast.Add, Left: bin.Left, Right: ast.CloneExpr(bin.Left)}
		}
	case ast.Div:
		// Division is not commutative; only a constant right operand
		// qualifies, and only a positive one for the shift form.
		if c, isInt := intLit(bin.Right); isInt && c > 0 && arm64.IsPowerOfTwo(c) {
			return &ast.BinaryOp{
				Op: ast.RightShift, Left: bin.Left,
				Right: &ast.NumberLit{Value: int64(arm64.Log2(c))},
			}
		}
		if c, isFloat := floatLit(bin.Right); isFloat && c != 0 {
			return &ast.BinaryOp{
				Op: ast.Mul, Left: bin.Left,
				Right: &ast.FloatLit{Value: 1 / c},
			}
		}
	}
	return e
}

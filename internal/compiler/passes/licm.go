package passes

import (
	"fmt"

	"github.com/albanread/nbcgo/internal/compiler/ast"
)

// HoistLoopInvariants extracts loop-invariant expressions into fresh
// temporaries declared in a synthesized preheader. A variable-usage visitor
// first computes the set of variables the loop body modifies; any candidate
// expression inside the body whose free variables all fall outside that set
// is hoisted. A failed hoist cancels with a warning, never a silent
// corruption.
func HoistLoopInvariants(p *ast.Program) (*ast.Program, []Warning) {
	h := &hoister{}
	rw := &ast.Rewriter{Stmt: h.hoistLoops}
	return rw.Program(p), h.warnings
}

type hoister struct {
	nextTemp int
	warnings []Warning
}

func (h *hoister) hoistLoops(s ast.Stmt) ast.Stmt {
	switch loop := s.(type) {
	case *ast.While:
		return h.hoist(loop, &loop.Body, loop.Cond)
	case *ast.Until:
		return h.hoist(loop, &loop.Body, loop.Cond)
	case *ast.Repeat:
		return h.hoist(loop, &loop.Body, nil)
	case *ast.For:
		modified := modifiedVars(loop.Body)
		modified[loop.Var] = true
		return h.hoistWith(loop, &loop.Body, modified)
	default:
		return s
	}
}

func (h *hoister) hoist(loop ast.Stmt, body *ast.Stmt, cond ast.Expr) ast.Stmt {
	modified := modifiedVars(*body)
	if cond != nil {
		// The condition re-evaluates each iteration; variables it reads
		// stay where they are, but writes inside it count as modified.
		for v := range modifiedVars(&ast.CondBranch{Value: cond}) {
			modified[v] = true
		}
	}
	return h.hoistWith(loop, body, modified)
}

func (h *hoister) hoistWith(loop ast.Stmt, body *ast.Stmt, modified map[string]bool) ast.Stmt {
	var hoisted []ast.Stmt
	rw := &ast.Rewriter{
		Expr: func(e ast.Expr) ast.Expr {
			if !h.candidate(e, modified) {
				return e
			}
			temp, ok := h.newTemp()
			if !ok {
				// Cancel the hoist, keep the expression in place.
				h.warnings = append(h.warnings, Warning{
					Pass:    "licm",
					Message: "could not create temporary for " + ast.Sprint(e),
				})
				return e
			}
			hoisted = append(hoisted, &ast.Block{
				Decls: []ast.Decl{&ast.Let{Names: []string{temp}, Inits: []ast.Expr{e}}},
			})
			return &ast.VarAccess{Name: temp}
		},
	}
	*body = rw.RewriteStmt(*body)
	if len(hoisted) == 0 {
		return loop
	}
	// Preheader: the temporaries run once, then the loop.
	pre := &ast.Block{Stmts: []ast.Stmt{loop}}
	for _, hstmt := range hoisted {
		blk := hstmt.(*ast.Block)
		pre.Decls = append(pre.Decls, blk.Decls...)
	}
	return pre
}

// maxTemps bounds temporary creation; hitting it cancels further hoists.
const maxTemps = 1 << 16

func (h *hoister) newTemp() (string, bool) {
	if h.nextTemp >= maxTemps {
		return "", false
	}
	h.nextTemp++
	return fmt.Sprintf("_licm%d", h.nextTemp), true
}

// candidate decides whether an expression is worth and safe to hoist:
// a non-trivial pure computation whose free variables are all external to
// the loop's modified set.
func (h *hoister) candidate(e ast.Expr, modified map[string]bool) bool {
	bin, ok := e.(*ast.BinaryOp)
	if !ok {
		return false
	}
	// A literal-only tree is the folder's job.
	if isLiteral(bin.Left) && isLiteral(bin.Right) {
		return false
	}
	pure := true
	hasVar := false
	ast.Walk(e, func(n ast.Node) bool {
		switch c := n.(type) {
		case *ast.VarAccess:
			hasVar = true
			if modified[c.Name] {
				pure = false
			}
		case *ast.FunctionCall, *ast.SysCall, *ast.New, *ast.SuperMethodCall,
			*ast.Alloc, *ast.Valof, *ast.FloatValof,
			*ast.VectorAccess, *ast.CharIndirection, *ast.FloatVectorIndirection,
			*ast.MemberAccess, *ast.LaneAccess:
			// Calls and memory reads may observe loop effects.
			pure = false
		}
		return pure
	})
	return pure && hasVar
}

// modifiedVars runs the variable-usage visitor over a loop body and returns
// every variable it assigns.
func modifiedVars(body ast.Stmt) map[string]bool {
	out := make(map[string]bool)
	if body == nil {
		return out
	}
	ast.Walk(body, func(n ast.Node) bool {
		switch c := n.(type) {
		case *ast.Assign:
			for _, lhs := range c.Lhs {
				if v, ok := lhs.(*ast.VarAccess); ok {
					out[v.Name] = true
				}
			}
		case *ast.For:
			out[c.Var] = true
		case *ast.ForEach:
			out[c.Value] = true
			if c.Tag != "" {
				out[c.Tag] = true
			}
		case *ast.Reduction:
			out[c.Result] = true
		case *ast.ReductionLoop:
			out[c.Result] = true
		case *ast.PairwiseReductionLoop:
			out[c.Result] = true
		}
		return true
	})
	return out
}

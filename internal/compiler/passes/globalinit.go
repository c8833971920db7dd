package passes

import "github.com/albanread/nbcgo/internal/compiler/ast"

// GlobalInitRoutine names the synthetic routine the initializers are hoisted
// into; a call to it is injected at the start of START.
const GlobalInitRoutine = "GLOBAL_INIT"

// HoistGlobalInitializers extracts every initializer from top-level
// LET/FLET declarations into a synthetic routine and injects a call to it
// at the start of START.
func HoistGlobalInitializers(p *ast.Program) *ast.Program {
	var inits []ast.Stmt
	for _, d := range p.Decls {
		g, ok := d.(*ast.GlobalVariable)
		if !ok || len(g.Inits) == 0 {
			continue
		}
		lhs := make([]ast.Expr, 0, len(g.Names))
		rhs := make([]ast.Expr, 0, len(g.Inits))
		for i, name := range g.Names {
			if i >= len(g.Inits) || g.Inits[i] == nil {
				continue
			}
			lhs = append(lhs, &ast.VarAccess{Name: name})
			rhs = append(rhs, g.Inits[i])
		}
		if len(lhs) > 0 {
			inits = append(inits, &ast.Assign{Lhs: lhs, Rhs: rhs})
		}
		g.Inits = nil
	}
	if len(inits) == 0 {
		return p
	}

	p.Decls = append(p.Decls, &ast.Routine{
		Name: GlobalInitRoutine,
		Body: &ast.Compound{Stmts: inits},
	})

	call := &ast.RoutineCall{Target: &ast.VarAccess{Name: GlobalInitRoutine}}
	for _, d := range p.Decls {
		r, ok := d.(*ast.Routine)
		if !ok || r.Name != "START" {
			continue
		}
		switch body := r.Body.(type) {
		case *ast.Compound:
			body.Stmts = append([]ast.Stmt{call}, body.Stmts...)
		case *ast.Block:
			body.Stmts = append([]ast.Stmt{call}, body.Stmts...)
		default:
			r.Body = &ast.Compound{Stmts: []ast.Stmt{call, body}}
		}
		break
	}
	return p
}

package passes

import (
	"github.com/albanread/nbcgo/internal/compiler/analysis"
	"github.com/albanread/nbcgo/internal/compiler/ast"
	"github.com/albanread/nbcgo/internal/compiler/symbols"
)

// AnalyzeRetain collects, per function, the variables named in RETAIN
// statements and the variables escaping through RESULTIS; those symbols get
// OwnsHeapMemory cleared so cleanup insertion will not synthesize a DEFER
// release for them. REMANAGE puts a name back under scope management.
func AnalyzeRetain(p *ast.Program, table *symbols.Table) *ast.Program {
	for _, d := range p.Decls {
		switch n := d.(type) {
		case *ast.Function:
			retainInFunction(n.Name, exprBody(n.Body), table)
		case *ast.Routine:
			retainInFunction(n.Name, n.Body, table)
		case *ast.Class:
			// Method symbols live under their qualified Class_method scope.
			for _, m := range n.Members {
				switch f := m.Decl.(type) {
				case *ast.Function:
					retainInFunction(analysis.MethodLabel(n.Name, f.Name), exprBody(f.Body), table)
				case *ast.Routine:
					retainInFunction(analysis.MethodLabel(n.Name, f.Name), f.Body, table)
				}
			}
		}
	}
	return p
}

func exprBody(e ast.Expr) ast.Stmt {
	if e == nil {
		return nil
	}
	return &ast.Resultis{Value: e}
}

func retainInFunction(function string, body ast.Stmt, table *symbols.Table) {
	if body == nil {
		return
	}
	retained := make(map[string]bool)
	ast.Walk(body, func(n ast.Node) bool {
		switch c := n.(type) {
		case *ast.Retain:
			for _, name := range c.Names {
				retained[name] = true
			}
		case *ast.Remanage:
			for _, name := range c.Names {
				delete(retained, name)
			}
		case *ast.Resultis:
			// A returned value escapes the scope; releasing it here would
			// hand the caller freed memory.
			ast.Walk(c.Value, func(vn ast.Node) bool {
				if v, ok := vn.(*ast.VarAccess); ok {
					retained[v.Name] = true
				}
				return true
			})
		}
		return true
	})
	for name := range retained {
		if sym, ok := table.LookupIn(function, name); ok {
			sym.OwnsHeapMemory = false
		}
	}
}

package passes

import "github.com/albanread/nbcgo/internal/compiler/ast"

// ResolveManifests records every MANIFEST declaration into a lexical scope
// stack, removes the declaration, and replaces each in-scope reference with
// an integer literal. Scopes track functions, routines and blocks; inner
// manifests shadow outer ones. After the pass no VariableAccess in the tree
// resolves to a manifest constant.
func ResolveManifests(p *ast.Program) *ast.Program {
	r := &manifestResolver{}
	r.push()
	out := p.Decls[:0]
	for _, d := range p.Decls {
		if m, ok := d.(*ast.Manifest); ok {
			r.record(m)
			continue
		}
		out = append(out, r.decl(d))
	}
	p.Decls = out
	r.pop()
	return p
}

type manifestResolver struct {
	scopes []map[string]int64
}

func (r *manifestResolver) push() { r.scopes = append(r.scopes, map[string]int64{}) }
func (r *manifestResolver) pop()  { r.scopes = r.scopes[:len(r.scopes)-1] }

func (r *manifestResolver) record(m *ast.Manifest) {
	r.scopes[len(r.scopes)-1][m.Name] = m.Value
}

func (r *manifestResolver) lookup(name string) (int64, bool) {
	for i := len(r.scopes) - 1; i >= 0; i-- {
		if v, ok := r.scopes[i][name]; ok {
			return v, true
		}
	}
	return 0, false
}

func (r *manifestResolver) decl(d ast.Decl) ast.Decl {
	switch n := d.(type) {
	case *ast.Function:
		r.push()
		n.Body = r.expr(n.Body)
		r.pop()
	case *ast.Routine:
		r.push()
		n.Body = r.stmt(n.Body)
		r.pop()
	case *ast.Let:
		for i, init := range n.Inits {
			n.Inits[i] = r.expr(init)
		}
	case *ast.Static:
		n.Init = r.expr(n.Init)
	case *ast.GlobalVariable:
		for i, init := range n.Inits {
			n.Inits[i] = r.expr(init)
		}
	case *ast.Class:
		for i := range n.Members {
			n.Members[i].Decl = r.decl(n.Members[i].Decl)
		}
	}
	return d
}

// expr rewrites references below and at e. The rewrite is applied through
// the generic helper; the scope stack only changes at statement structure,
// handled in stmt.
func (r *manifestResolver) expr(e ast.Expr) ast.Expr {
	if e == nil {
		return nil
	}
	rw := &ast.Rewriter{
		Expr: func(e ast.Expr) ast.Expr {
			if v, ok := e.(*ast.VarAccess); ok {
				if value, isManifest := r.lookup(v.Name); isManifest {
					return &ast.NumberLit{Value: value}
				}
			}
			return e
		},
		Stmt: func(s ast.Stmt) ast.Stmt { return s },
	}
	// Statement bodies inside VALOF need scope-aware handling, so they are
	// resolved before the generic rewrite sees them.
	switch n := e.(type) {
	case *ast.Valof:
		n.Body = r.stmt(n.Body)
		return n
	case *ast.FloatValof:
		n.Body = r.stmt(n.Body)
		return n
	}
	return rw.RewriteExpr(e)
}

func (r *manifestResolver) stmt(s ast.Stmt) ast.Stmt {
	switch n := s.(type) {
	case nil:
		return nil
	case *ast.Block:
		r.push()
		decls := n.Decls[:0]
		for _, d := range n.Decls {
			if m, ok := d.(*ast.Manifest); ok {
				r.record(m)
				continue
			}
			decls = append(decls, r.decl(d))
		}
		n.Decls = decls
		for i, st := range n.Stmts {
			n.Stmts[i] = r.stmt(st)
		}
		r.pop()
		return n
	case *ast.Compound:
		for i, st := range n.Stmts {
			n.Stmts[i] = r.stmt(st)
		}
		return n
	case *ast.If:
		n.Cond = r.expr(n.Cond)
		n.Then = r.stmt(n.Then)
		return n
	case *ast.Unless:
		n.Cond = r.expr(n.Cond)
		n.Then = r.stmt(n.Then)
		return n
	case *ast.Test:
		n.Cond = r.expr(n.Cond)
		n.Then = r.stmt(n.Then)
		n.Else = r.stmt(n.Else)
		return n
	case *ast.While:
		n.Cond = r.expr(n.Cond)
		n.Body = r.stmt(n.Body)
		return n
	case *ast.Until:
		n.Cond = r.expr(n.Cond)
		n.Body = r.stmt(n.Body)
		return n
	case *ast.Repeat:
		n.Body = r.stmt(n.Body)
		if n.Cond != nil {
			n.Cond = r.expr(n.Cond)
		}
		return n
	case *ast.For:
		n.Start = r.expr(n.Start)
		n.End = r.expr(n.End)
		if n.Step != nil {
			n.Step = r.expr(n.Step)
		}
		n.Body = r.stmt(n.Body)
		return n
	case *ast.ForEach:
		n.Collection = r.expr(n.Collection)
		n.Body = r.stmt(n.Body)
		return n
	case *ast.Switchon:
		n.Value = r.expr(n.Value)
		for _, c := range n.Cases {
			c.Value = r.expr(c.Value)
			c.Body = r.stmt(c.Body)
		}
		if n.Default != nil {
			n.Default.Body = r.stmt(n.Default.Body)
		}
		return n
	case *ast.Defer:
		n.Body = r.stmt(n.Body)
		return n
	default:
		// Leaf statements only hold expressions; the generic rewriter with
		// the same substitution handles them.
		rw := &ast.Rewriter{
			Expr: func(e ast.Expr) ast.Expr {
				if v, ok := e.(*ast.VarAccess); ok {
					if value, isManifest := r.lookup(v.Name); isManifest {
						return &ast.NumberLit{Value: value}
					}
				}
				return e
			},
		}
		return rw.RewriteStmt(s)
	}
}

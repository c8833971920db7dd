package passes

import "github.com/albanread/nbcgo/internal/compiler/ast"

// ReorderCreateMethods guarantees that inside a class CREATE routine, every
// assignment to a member of this precedes the SUPER.CREATE(...) call. The
// super call clobbers argument registers; stores that would otherwise sit
// between evaluations interfere with register allocation across it.
func ReorderCreateMethods(p *ast.Program) *ast.Program {
	for _, d := range p.Decls {
		class, ok := d.(*ast.Class)
		if !ok {
			continue
		}
		memberNames := map[string]bool{}
		for _, m := range class.Members {
			if let, isLet := m.Decl.(*ast.Let); isLet {
				for _, name := range let.Names {
					memberNames[name] = true
				}
			}
		}
		for _, m := range class.Members {
			routine, isRoutine := m.Decl.(*ast.Routine)
			if !isRoutine || routine.Name != "CREATE" {
				continue
			}
			routine.Body = reorderCreateBody(routine.Body, memberNames)
		}
	}
	return p
}

func reorderCreateBody(body ast.Stmt, members map[string]bool) ast.Stmt {
	stmts := flatStmts(body)
	if stmts == nil {
		return body
	}

	superIdx := -1
	for i, s := range stmts {
		if isSuperCreate(s) {
			superIdx = i
			break
		}
	}
	if superIdx < 0 {
		return body
	}

	// Member stores after the super call move in front of it, keeping their
	// relative order.
	var before, moved, after []ast.Stmt
	before = append(before, stmts[:superIdx]...)
	for _, s := range stmts[superIdx+1:] {
		if isMemberStore(s, members) {
			moved = append(moved, s)
		} else {
			after = append(after, s)
		}
	}
	if len(moved) == 0 {
		return body
	}

	out := make([]ast.Stmt, 0, len(stmts))
	out = append(out, before...)
	out = append(out, moved...)
	out = append(out, stmts[superIdx])
	out = append(out, after...)
	return replaceStmts(body, out)
}

func flatStmts(body ast.Stmt) []ast.Stmt {
	switch b := body.(type) {
	case *ast.Compound:
		return b.Stmts
	case *ast.Block:
		return b.Stmts
	default:
		return nil
	}
}

func replaceStmts(body ast.Stmt, stmts []ast.Stmt) ast.Stmt {
	switch b := body.(type) {
	case *ast.Compound:
		b.Stmts = stmts
	case *ast.Block:
		b.Stmts = stmts
	}
	return body
}

func isSuperCreate(s ast.Stmt) bool {
	rc, ok := s.(*ast.RoutineCall)
	if !ok {
		return false
	}
	if sup, isSuper := rc.Target.(*ast.SuperMethodAccess); isSuper {
		return sup.Method == "CREATE"
	}
	return false
}

// isMemberStore matches `member := v` (implicit this) and `x.member := v`
// where x is any variable, not only `this`.
func isMemberStore(s ast.Stmt, members map[string]bool) bool {
	assign, ok := s.(*ast.Assign)
	if !ok || len(assign.Lhs) != 1 {
		return false
	}
	switch lhs := assign.Lhs[0].(type) {
	case *ast.VarAccess:
		return members[lhs.Name]
	case *ast.MemberAccess:
		_, isVar := lhs.Object.(*ast.VarAccess)
		return isVar
	}
	return false
}

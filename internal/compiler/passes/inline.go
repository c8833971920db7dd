package passes

import (
	"strings"

	"github.com/albanread/nbcgo/internal/compiler/analysis"
	"github.com/albanread/nbcgo/internal/compiler/ast"
)

// InlineMethods replaces calls to methods the analyzer marked trivial:
//
//	obj.getter()   →  obj.field
//	obj.setter(v)  →  obj.field := v
//
// A rewrite happens only when every class defining a method of that name
// agrees it is trivial and names the same member, since the receiver's
// dynamic class is unknown here.
func InlineMethods(p *ast.Program, metrics map[string]*analysis.Metrics) *ast.Program {
	accessors, setters := trivialIndex(metrics)
	rw := &ast.Rewriter{
		Expr: func(e ast.Expr) ast.Expr {
			call, ok := e.(*ast.FunctionCall)
			if !ok || len(call.Args) != 0 {
				return e
			}
			m, isMember := call.Target.(*ast.MemberAccess)
			if !isMember {
				return e
			}
			if field, trivial := accessors[m.Member]; trivial {
				return &ast.MemberAccess{Object: m.Object, Member: field}
			}
			return e
		},
		Stmt: func(s ast.Stmt) ast.Stmt {
			rc, ok := s.(*ast.RoutineCall)
			if !ok || len(rc.Args) != 1 {
				return s
			}
			m, isMember := rc.Target.(*ast.MemberAccess)
			if !isMember {
				return s
			}
			if field, trivial := setters[m.Member]; trivial {
				return &ast.Assign{
					Lhs: []ast.Expr{&ast.MemberAccess{Object: m.Object, Member: field}},
					Rhs: []ast.Expr{rc.Args[0]},
				}
			}
			return s
		},
	}
	return rw.Program(p)
}

// trivialIndex maps method names to accessed members, dropping any method
// name whose definitions disagree (or are not all trivial).
func trivialIndex(metrics map[string]*analysis.Metrics) (accessors, setters map[string]string) {
	accessors = make(map[string]string)
	setters = make(map[string]string)
	conflictA := make(map[string]bool)
	conflictS := make(map[string]bool)

	for name, m := range metrics {
		// Method metrics are keyed Class_method.
		idx := strings.LastIndexByte(name, '_')
		if idx <= 0 {
			continue
		}
		method := name[idx+1:]
		if m.TrivialAccessor {
			if prev, seen := accessors[method]; seen && prev != m.AccessedMember {
				conflictA[method] = true
			}
			accessors[method] = m.AccessedMember
		} else {
			conflictA[method] = true
		}
		if m.TrivialSetter {
			if prev, seen := setters[method]; seen && prev != m.AccessedMember {
				conflictS[method] = true
			}
			setters[method] = m.AccessedMember
		} else {
			conflictS[method] = true
		}
	}
	for method := range conflictA {
		delete(accessors, method)
	}
	for method := range conflictS {
		delete(setters, method)
	}
	return accessors, setters
}

package codegen

import (
	"sort"

	"github.com/albanread/nbcgo/internal/compiler/ast"
	"github.com/albanread/nbcgo/internal/compiler/rt"
)

// ScanExternalFunctions pre-walks the AST once and returns the set of
// runtime symbols the program references, sorted for determinism. The
// linker reserves veneer space at the head of the code section for exactly
// these.
func ScanExternalFunctions(p *ast.Program, registry *rt.Registry) []string {
	seen := make(map[string]bool)
	ast.Walk(p, func(n ast.Node) bool {
		var name string
		switch c := n.(type) {
		case *ast.FunctionCall:
			if v, ok := c.Target.(*ast.VarAccess); ok {
				name = v.Name
			}
		case *ast.RoutineCall:
			if v, ok := c.Target.(*ast.VarAccess); ok {
				name = v.Name
			}
		case *ast.Alloc:
			// Allocation forms lower to runtime calls.
			switch c.Kind {
			case ast.AllocFVec:
				name = "FGETVEC"
			case ast.AllocString:
				name = "GETSTRING"
			default:
				name = "GETVEC"
			}
		case *ast.New:
			name = "BCPL_ALLOC"
		case *ast.List:
			seen["LIST_CREATE"] = true
			name = "LIST_APPEND"
		case *ast.Free:
			name = "FREEVEC"
		case *ast.Finish:
			name = "FINISH"
		case *ast.UnaryOp:
			switch c.Op {
			case ast.HeadOf:
				name = "LIST_HEAD"
			case ast.TailOf:
				name = "LIST_TAIL"
			case ast.TailOfNonDestructive:
				name = "LIST_REST"
			case ast.HeadOfAsFloat:
				name = "LIST_HEAD_FLOAT"
			case ast.TypeAsString:
				name = "TYPENAME"
			}
		}
		if name != "" {
			if _, known := registry.Lookup(name); known {
				seen[name] = true
			}
		}
		return true
	})

	out := make([]string, 0, len(seen))
	for name := range seen {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

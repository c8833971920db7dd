package analysis

import (
	"errors"
	"fmt"

	"github.com/albanread/nbcgo/internal/compiler/ast"
	"github.com/albanread/nbcgo/internal/compiler/symbols"
)

// BuildSymbols walks the program once and populates the symbol table:
// globals and statics, every function and routine with its parameters and
// locals, class members and methods. Duplicate declarations are user errors,
// accumulated so one walk reports all of them.
func BuildSymbols(p *ast.Program, table *symbols.Table, classes *ClassTable) error {
	b := &symbolBuilder{table: table, classes: classes}
	for _, d := range p.Decls {
		b.decl(d, "")
	}
	if len(b.errs) > 0 {
		return errors.Join(b.errs...)
	}
	return nil
}

type symbolBuilder struct {
	table   *symbols.Table
	classes *ClassTable
	errs    []error
}

func (b *symbolBuilder) define(sym *symbols.Symbol) {
	if err := b.table.Define(sym); err != nil {
		b.errs = append(b.errs, err)
	}
}

func (b *symbolBuilder) decl(d ast.Decl, class string) {
	switch n := d.(type) {
	case *ast.GlobalVariable:
		for _, name := range n.Names {
			typ := ast.TypeInteger
			if n.IsFloat {
				typ = ast.TypeFloat
			}
			b.define(&symbols.Symbol{Name: name, Kind: symbols.GlobalVar, Type: typ})
		}
	case *ast.Static:
		b.define(&symbols.Symbol{Name: n.Name, Kind: symbols.StaticVar, Type: ast.TypeInteger})
	case *ast.Global:
		for _, pair := range n.Pairs {
			b.define(&symbols.Symbol{
				Name: pair.Name, Kind: symbols.GlobalVar, Type: ast.TypeInteger,
				Location: symbols.DataLocation(pair.Slot * WordSize),
			})
		}
	case *ast.LabelDecl:
		b.define(&symbols.Symbol{
			Name: n.Name, Kind: symbols.Label,
			Location: symbols.LabelLocation(n.Name),
		})
	case *ast.Function:
		b.function(n, class)
	case *ast.Routine:
		b.routine(n, class)
	case *ast.Class:
		b.class(n)
	}
}

func (b *symbolBuilder) function(n *ast.Function, class string) {
	name := n.Name
	kind := symbols.Function
	retType := ast.TypeInteger
	if n.IsFloat {
		kind = symbols.FloatFunction
		retType = ast.TypeFloat
	}
	if class != "" {
		name = MethodLabel(class, n.Name)
	}
	params := make([]symbols.ParameterInfo, len(n.Params))
	for i := range params {
		params[i] = symbols.ParameterInfo{Type: ast.TypeAny}
	}
	b.define(&symbols.Symbol{
		Name: name, Kind: kind, Type: retType, ClassName: class,
		Parameters: params, Location: symbols.LabelLocation(name),
	})

	b.table.EnterFunctionScope(name)
	defer b.table.ExitScope()
	b.params(name, class, n.Params)
	if n.Body != nil {
		b.walkExpr(n.Body)
	}
}

func (b *symbolBuilder) routine(n *ast.Routine, class string) {
	name := n.Name
	if class != "" {
		name = MethodLabel(class, n.Name)
	}
	params := make([]symbols.ParameterInfo, len(n.Params))
	for i := range params {
		params[i] = symbols.ParameterInfo{Type: ast.TypeAny}
	}
	b.define(&symbols.Symbol{
		Name: name, Kind: symbols.Routine, ClassName: class,
		Parameters: params, Location: symbols.LabelLocation(name),
	})

	b.table.EnterFunctionScope(name)
	defer b.table.ExitScope()
	b.params(name, class, n.Params)
	if n.Body != nil {
		b.walkStmt(n.Body)
	}
}

func (b *symbolBuilder) params(function, class string, names []string) {
	if class != "" {
		// Methods receive the implicit receiver first.
		b.define(&symbols.Symbol{
			Name: "_this", Kind: symbols.Parameter, Type: ast.TypePointerToObject,
			FunctionName: function, ClassName: class,
		})
	}
	for _, p := range names {
		b.define(&symbols.Symbol{
			Name: p, Kind: symbols.Parameter, Type: ast.TypeAny,
			FunctionName: function, ClassName: class,
		})
	}
}

func (b *symbolBuilder) class(n *ast.Class) {
	info, ok := b.classes.Lookup(n.Name)
	if !ok {
		b.errs = append(b.errs, fmt.Errorf("class %s missing from class table", n.Name))
		return
	}
	for _, m := range info.Members {
		b.define(&symbols.Symbol{
			Name: n.Name + "." + m.Name, Kind: symbols.MemberVar, Type: m.Type,
			ClassName: n.Name, Location: symbols.DataLocation(m.Offset),
		})
	}
	for _, member := range n.Members {
		switch f := member.Decl.(type) {
		case *ast.Function:
			b.function(f, n.Name)
		case *ast.Routine:
			b.routine(f, n.Name)
		}
	}
}

// walkStmt descends into statements defining locals as it meets them.
// Blocks open their own scopes.
func (b *symbolBuilder) walkStmt(s ast.Stmt) {
	switch n := s.(type) {
	case nil:
	case *ast.Block:
		b.table.EnterScope()
		for _, d := range n.Decls {
			b.blockDecl(d)
		}
		for _, st := range n.Stmts {
			b.walkStmt(st)
		}
		b.table.ExitScope()
	case *ast.Compound:
		for _, st := range n.Stmts {
			b.walkStmt(st)
		}
	case *ast.If:
		b.walkStmt(n.Then)
	case *ast.Unless:
		b.walkStmt(n.Then)
	case *ast.Test:
		b.walkStmt(n.Then)
		b.walkStmt(n.Else)
	case *ast.While:
		b.walkStmt(n.Body)
	case *ast.Until:
		b.walkStmt(n.Body)
	case *ast.Repeat:
		b.walkStmt(n.Body)
	case *ast.For:
		// The loop variable belongs to the loop's own scope.
		b.table.EnterScope()
		b.define(&symbols.Symbol{Name: n.Var, Kind: symbols.LocalVar, Type: ast.TypeInteger})
		b.walkStmt(n.Body)
		b.table.ExitScope()
	case *ast.ForEach:
		b.table.EnterScope()
		b.define(&symbols.Symbol{Name: n.Value, Kind: symbols.LocalVar, Type: ast.TypeAny})
		if n.Tag != "" {
			b.define(&symbols.Symbol{Name: n.Tag, Kind: symbols.LocalVar, Type: ast.TypeAny})
		}
		b.walkStmt(n.Body)
		b.table.ExitScope()
	case *ast.Switchon:
		for _, c := range n.Cases {
			b.walkStmt(c.Body)
		}
		if n.Default != nil {
			b.walkStmt(n.Default.Body)
		}
	case *ast.Resultis:
		b.walkExpr(n.Value)
	case *ast.Assign:
		for _, e := range n.Rhs {
			b.walkExpr(e)
		}
	case *ast.RoutineCall:
		for _, e := range n.Args {
			b.walkExpr(e)
		}
	case *ast.Defer:
		b.walkStmt(n.Body)
	}
}

// blockDecl defines a block-level declaration's names.
func (b *symbolBuilder) blockDecl(d ast.Decl) {
	switch n := d.(type) {
	case *ast.Let:
		for i, name := range n.Names {
			typ := n.DeclType
			if typ == ast.TypeUnknown {
				if n.IsFloat {
					typ = ast.TypeFloat
				} else {
					typ = ast.TypeInteger
				}
			}
			sym := &symbols.Symbol{Name: name, Kind: symbols.LocalVar, Type: typ}
			if i < len(n.Inits) {
				b.annotateInit(sym, n.Inits[i])
				b.walkExpr(n.Inits[i])
			}
			b.define(sym)
		}
	case *ast.Manifest:
		b.define(&symbols.Symbol{
			Name: n.Name, Kind: symbols.Manifest, Type: ast.TypeInteger,
			Location: symbols.AbsoluteLocation(n.Value),
		})
	default:
		b.decl(d, "")
	}
}

// annotateInit records heap ownership and sized-vector facts visible in the
// initializer. OwnsHeapMemory drives DEFER synthesis; retain analysis may
// clear it later.
func (b *symbolBuilder) annotateInit(sym *symbols.Symbol, init ast.Expr) {
	switch e := init.(type) {
	case *ast.Alloc:
		sym.OwnsHeapMemory = true
		sym.Type = allocType(e.Kind)
		if size, ok := constValue(e.Size); ok {
			sym.Size = int(size)
			sym.HasSize = true
		}
	case *ast.StringLit:
		sym.ContainsLiterals = true
		sym.Type = ast.TypePointerToString
	case *ast.Table:
		sym.ContainsLiterals = true
	case *ast.List:
		sym.OwnsHeapMemory = true
		sym.Type = ast.TypePointerToList
	case *ast.New:
		sym.OwnsHeapMemory = true
		sym.Type = ast.TypePointerToObject
	case *ast.FloatLit:
		sym.Type = ast.TypeFloat
	case *ast.VecInitializer:
		sym.OwnsHeapMemory = true
		sym.Size = len(e.Values)
		sym.HasSize = true
	}
}

func allocType(k ast.AllocKind) ast.Type {
	switch k {
	case ast.AllocFVec:
		return ast.TypePointerToFloatVec
	case ast.AllocPairs:
		return ast.TypePointerToPairs
	case ast.AllocFPairs:
		return ast.TypePointerToFPairs
	case ast.AllocString:
		return ast.TypePointerToString
	default:
		return ast.TypePointerToIntVec
	}
}

// walkExpr descends into expressions that contain statement bodies.
func (b *symbolBuilder) walkExpr(e ast.Expr) {
	ast.Walk(e, func(n ast.Node) bool {
		switch v := n.(type) {
		case *ast.Valof:
			b.walkStmt(v.Body)
			return false
		case *ast.FloatValof:
			b.walkStmt(v.Body)
			return false
		}
		return true
	})
}

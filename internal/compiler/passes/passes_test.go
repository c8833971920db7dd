package passes

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/albanread/nbcgo/internal/compiler/analysis"
	"github.com/albanread/nbcgo/internal/compiler/ast"
	"github.com/albanread/nbcgo/internal/compiler/symbols"
)

func wrap(stmts ...ast.Stmt) *ast.Program {
	return &ast.Program{Decls: []ast.Decl{
		&ast.Routine{Name: "START", Body: &ast.Compound{Stmts: stmts}},
	}}
}

func startBody(p *ast.Program) *ast.Compound {
	for _, d := range p.Decls {
		if r, ok := d.(*ast.Routine); ok && r.Name == "START" {
			return r.Body.(*ast.Compound)
		}
	}
	return nil
}

func num(v int64) *ast.NumberLit { return &ast.NumberLit{Value: v} }

func TestManifestResolution(t *testing.T) {
	p := &ast.Program{Decls: []ast.Decl{
		&ast.Manifest{Name: "MAX", Value: 100},
		&ast.Routine{Name: "START", Body: &ast.Compound{Stmts: []ast.Stmt{
			&ast.Assign{
				Lhs: []ast.Expr{&ast.VarAccess{Name: "S"}},
				Rhs: []ast.Expr{&ast.VarAccess{Name: "MAX"}},
			},
		}}},
	}}
	p = ResolveManifests(p)

	// The declaration is gone.
	for _, d := range p.Decls {
		_, isManifest := d.(*ast.Manifest)
		require.False(t, isManifest)
	}
	// The reference became a literal; no access resolves to a manifest.
	rhs := startBody(p).Stmts[0].(*ast.Assign).Rhs[0]
	require.Equal(t, "100", ast.Sprint(rhs))
	ast.Walk(p, func(n ast.Node) bool {
		if v, ok := n.(*ast.VarAccess); ok {
			require.NotEqual(t, "MAX", v.Name)
		}
		return true
	})
}

func TestManifestShadowing(t *testing.T) {
	p := &ast.Program{Decls: []ast.Decl{
		&ast.Manifest{Name: "K", Value: 1},
		&ast.Routine{Name: "START", Body: &ast.Block{
			Decls: []ast.Decl{&ast.Manifest{Name: "K", Value: 2}},
			Stmts: []ast.Stmt{&ast.Resultis{Value: &ast.VarAccess{Name: "K"}}},
		}},
	}}
	p = ResolveManifests(p)
	body := p.Decls[0].(*ast.Routine).Body.(*ast.Block)
	require.Equal(t, "(Resultis 2)", ast.Sprint(body.Stmts[0]))
}

func TestConstantFoldingSoundness(t *testing.T) {
	table := symbols.NewTable()
	for _, tc := range []struct {
		name string
		in   ast.Expr
		exp  string
	}{
		{"add", &ast.BinaryOp{Op: ast.Add, Left: num(2), Right: num(3)}, "5"},
		{"mul", &ast.BinaryOp{Op: ast.Mul, Left: num(6), Right: num(7)}, "42"},
		{"cmp true is -1", &ast.BinaryOp{Op: ast.Lt, Left: num(1), Right: num(2)}, "TRUE"},
		{"cmp false", &ast.BinaryOp{Op: ast.Gt, Left: num(1), Right: num(2)}, "FALSE"},
		{"div by zero unfoldable", &ast.BinaryOp{Op: ast.Div, Left: num(1), Right: num(0)}, "(/ 1 0)"},
		{"mixed promotes", &ast.BinaryOp{Op: ast.Add, Left: num(1), Right: &ast.FloatLit{Value: 2.5}}, "3.5"},
		{"neg", &ast.UnaryOp{Op: ast.Negate, Operand: num(9)}, "-9"},
		{"not true", &ast.UnaryOp{Op: ast.LogicalNot, Operand: &ast.BoolLit{Value: true}}, "FALSE"},
		{"nested", &ast.BinaryOp{Op: ast.Mul,
			Left:  &ast.BinaryOp{Op: ast.Add, Left: num(1), Right: num(2)},
			Right: num(4)}, "12"},
		{"shift", &ast.BinaryOp{Op: ast.LeftShift, Left: num(3), Right: num(4)}, "48"},
	} {
		t.Run(tc.name, func(t *testing.T) {
			p := wrap(&ast.Resultis{Value: tc.in})
			p = FoldConstants(p, table)
			got := startBody(p).Stmts[0].(*ast.Resultis).Value
			require.Equal(t, tc.exp, ast.Sprint(got))
		})
	}
}

func TestDeadBranchElimination(t *testing.T) {
	table := symbols.NewTable()

	// IF TRUE THEN S  ->  S
	p := wrap(&ast.If{Cond: &ast.BoolLit{Value: true}, Then: &ast.Brk{}})
	p = FoldConstants(p, table)
	require.Equal(t, "(Seq (Brk))", ast.Sprint(startBody(p)))

	// IF FALSE THEN S  ->  nothing
	p = wrap(&ast.If{Cond: &ast.BoolLit{Value: false}, Then: &ast.Brk{}})
	p = FoldConstants(p, table)
	require.Equal(t, "(Seq)", ast.Sprint(startBody(p)))

	// TEST collapses to the live arm.
	p = wrap(&ast.Test{Cond: num(0), Then: &ast.Brk{}, Else: &ast.Return{}})
	p = FoldConstants(p, table)
	require.Equal(t, "(Seq (Return))", ast.Sprint(startBody(p)))

	// WHILE FALSE disappears.
	p = wrap(&ast.While{Cond: &ast.BoolLit{Value: false}, Body: &ast.Brk{}})
	p = FoldConstants(p, table)
	require.Equal(t, "(Seq)", ast.Sprint(startBody(p)))
}

func TestLocalConstantPropagation(t *testing.T) {
	table := symbols.NewTable()
	p := wrap(
		&ast.Assign{Lhs: []ast.Expr{&ast.VarAccess{Name: "A"}}, Rhs: []ast.Expr{num(10)}},
		&ast.Resultis{Value: &ast.BinaryOp{Op: ast.Add, Left: &ast.VarAccess{Name: "A"}, Right: num(5)}},
	)
	p = FoldConstants(p, table)
	require.Equal(t, "15", ast.Sprint(startBody(p).Stmts[1].(*ast.Resultis).Value))
}

func TestConstantMapInvalidatedByLoop(t *testing.T) {
	table := symbols.NewTable()
	p := wrap(
		&ast.Assign{Lhs: []ast.Expr{&ast.VarAccess{Name: "A"}}, Rhs: []ast.Expr{num(10)}},
		&ast.While{
			Cond: &ast.VarAccess{Name: "G"},
			Body: &ast.Assign{Lhs: []ast.Expr{&ast.VarAccess{Name: "A"}}, Rhs: []ast.Expr{&ast.VarAccess{Name: "G"}}},
		},
		&ast.Resultis{Value: &ast.VarAccess{Name: "A"}},
	)
	p = FoldConstants(p, table)
	// A was reassigned inside the loop; the use after it must not fold.
	require.Equal(t, "(Resultis A)", ast.Sprint(startBody(p).Stmts[2]))
}

func TestStrengthReduction(t *testing.T) {
	for _, tc := range []struct {
		name string
		in   ast.Expr
		exp  string
	}{
		{"mul pow2", &ast.BinaryOp{Op: ast.Mul, Left: &ast.VarAccess{Name: "X"}, Right: num(8)}, "(<< X 3)"},
		{"div pow2", &ast.BinaryOp{Op: ast.Div, Left: &ast.VarAccess{Name: "X"}, Right: num(4)}, "(>> X 2)"},
		{"div neg untouched", &ast.BinaryOp{Op: ast.Div, Left: &ast.VarAccess{Name: "X"}, Right: num(-4)}, "(/ X -4)"},
		{"float mul 2", &ast.BinaryOp{Op: ast.Mul, Left: &ast.VarAccess{Name: "F"}, Right: &ast.FloatLit{Value: 2}}, "(+ F F)"},
		{"float div const", &ast.BinaryOp{Op: ast.Div, Left: &ast.VarAccess{Name: "F"}, Right: &ast.FloatLit{Value: 4}}, "(* F 0.25)"},
		{"mul non-pow2 untouched", &ast.BinaryOp{Op: ast.Mul, Left: &ast.VarAccess{Name: "X"}, Right: num(12)}, "(* X 12)"},
	} {
		t.Run(tc.name, func(t *testing.T) {
			p := wrap(&ast.Resultis{Value: tc.in})
			p = ReduceStrength(p)
			require.Equal(t, tc.exp, ast.Sprint(startBody(p).Stmts[0].(*ast.Resultis).Value))
		})
	}
}

func TestShortCircuitLowering(t *testing.T) {
	p := wrap(&ast.Resultis{Value: &ast.BinaryOp{
		Op:    ast.LogicalAnd,
		Left:  &ast.VarAccess{Name: "A"},
		Right: &ast.VarAccess{Name: "B"},
	}})
	p = LowerShortCircuit(p)
	require.Equal(t, "(Cond A B FALSE)", ast.Sprint(startBody(p).Stmts[0].(*ast.Resultis).Value))

	p = wrap(&ast.Resultis{Value: &ast.BinaryOp{
		Op:    ast.LogicalOr,
		Left:  &ast.VarAccess{Name: "A"},
		Right: &ast.VarAccess{Name: "B"},
	}})
	p = LowerShortCircuit(p)
	require.Equal(t, "(Cond A TRUE B)", ast.Sprint(startBody(p).Stmts[0].(*ast.Resultis).Value))
}

func TestLoopInvariantHoisting(t *testing.T) {
	loop := &ast.While{
		Cond: &ast.VarAccess{Name: "I"},
		Body: &ast.Compound{Stmts: []ast.Stmt{
			&ast.Assign{
				Lhs: []ast.Expr{&ast.VarAccess{Name: "I"}},
				Rhs: []ast.Expr{&ast.BinaryOp{Op: ast.Add,
					Left:  &ast.VarAccess{Name: "I"},
					Right: &ast.BinaryOp{Op: ast.Mul, Left: &ast.VarAccess{Name: "A"}, Right: &ast.VarAccess{Name: "B"}},
				}},
			},
		}},
	}
	p := wrap(loop)
	p, warnings := HoistLoopInvariants(p)
	require.Empty(t, warnings)

	// A*B does not depend on I, so a preheader block declares a temporary.
	pre, ok := startBody(p).Stmts[0].(*ast.Block)
	require.True(t, ok, "expected a synthesized preheader, got %s", ast.Sprint(startBody(p).Stmts[0]))
	require.Len(t, pre.Decls, 1)
	let := pre.Decls[0].(*ast.Let)
	require.Equal(t, "(* A B)", ast.Sprint(let.Inits[0]))

	// The loop now references the temporary.
	found := false
	ast.Walk(pre.Stmts[0], func(n ast.Node) bool {
		if v, ok := n.(*ast.VarAccess); ok && v.Name == let.Names[0] {
			found = true
		}
		return true
	})
	require.True(t, found)
}

func TestLoopVariantNotHoisted(t *testing.T) {
	loop := &ast.While{
		Cond: &ast.VarAccess{Name: "I"},
		Body: &ast.Assign{
			Lhs: []ast.Expr{&ast.VarAccess{Name: "I"}},
			Rhs: []ast.Expr{&ast.BinaryOp{Op: ast.Add, Left: &ast.VarAccess{Name: "I"}, Right: &ast.VarAccess{Name: "A"}}},
		},
	}
	p := wrap(loop)
	p, _ = HoistLoopInvariants(p)
	// I+A reads the modified I; the loop stays as written.
	_, stillLoop := startBody(p).Stmts[0].(*ast.While)
	require.True(t, stillLoop)
}

func TestGlobalInitializerHoisting(t *testing.T) {
	p := &ast.Program{Decls: []ast.Decl{
		&ast.GlobalVariable{Names: []string{"G"}, Inits: []ast.Expr{num(7)}},
		&ast.Routine{Name: "START", Body: &ast.Compound{Stmts: []ast.Stmt{&ast.Return{}}}},
	}}
	p = HoistGlobalInitializers(p)

	var initRoutine *ast.Routine
	for _, d := range p.Decls {
		if r, ok := d.(*ast.Routine); ok && r.Name == GlobalInitRoutine {
			initRoutine = r
		}
	}
	require.NotNil(t, initRoutine)
	require.Equal(t, "(Seq (Assign G := 7))", ast.Sprint(initRoutine.Body))

	start := startBody(p)
	rc, ok := start.Stmts[0].(*ast.RoutineCall)
	require.True(t, ok)
	require.Equal(t, GlobalInitRoutine, rc.Target.(*ast.VarAccess).Name)
}

func TestCreateMethodReorder(t *testing.T) {
	create := &ast.Routine{Name: "CREATE", Params: []string{"v"}, Body: &ast.Compound{Stmts: []ast.Stmt{
		&ast.RoutineCall{Target: &ast.SuperMethodAccess{Method: "CREATE"}},
		&ast.Assign{Lhs: []ast.Expr{&ast.VarAccess{Name: "age"}}, Rhs: []ast.Expr{&ast.VarAccess{Name: "v"}}},
	}}}
	p := &ast.Program{Decls: []ast.Decl{
		&ast.Class{Name: "Dog", Parent: "Animal", Members: []ast.ClassMember{
			{Decl: &ast.Let{Names: []string{"age"}}},
			{Decl: create},
		}},
	}}
	p = ReorderCreateMethods(p)

	stmts := create.Body.(*ast.Compound).Stmts
	_, firstIsAssign := stmts[0].(*ast.Assign)
	require.True(t, firstIsAssign, "member store must precede SUPER.CREATE")
	_, secondIsSuper := stmts[1].(*ast.RoutineCall)
	require.True(t, secondIsSuper)
}

func TestRetainAnalysisClearsOwnership(t *testing.T) {
	table := symbols.NewTable()
	table.EnterFunctionScope("F")
	owned := &symbols.Symbol{Name: "V", Kind: symbols.LocalVar, OwnsHeapMemory: true}
	escaping := &symbols.Symbol{Name: "R", Kind: symbols.LocalVar, OwnsHeapMemory: true}
	kept := &symbols.Symbol{Name: "W", Kind: symbols.LocalVar, OwnsHeapMemory: true}
	require.NoError(t, table.Define(owned))
	require.NoError(t, table.Define(escaping))
	require.NoError(t, table.Define(kept))
	table.ExitScope()

	p := &ast.Program{Decls: []ast.Decl{
		&ast.Function{Name: "F", Body: &ast.Valof{Body: &ast.Compound{Stmts: []ast.Stmt{
			&ast.Retain{Names: []string{"V"}},
			&ast.Resultis{Value: &ast.VarAccess{Name: "R"}},
		}}}},
	}}
	AnalyzeRetain(p, table)

	require.False(t, owned.OwnsHeapMemory, "RETAINed variable keeps its memory")
	require.False(t, escaping.OwnsHeapMemory, "escaping value must not be released")
	require.True(t, kept.OwnsHeapMemory, "untouched variable still owns its memory")
}

// Class methods are registered under their qualified Class_method scope; the
// retain pass must look them up the same way. This drives the real symbol
// construction path rather than hand-built symbols.
func TestRetainAnalysisInsideClassMethod(t *testing.T) {
	p := &ast.Program{Decls: []ast.Decl{
		&ast.Class{Name: "Buf", Members: []ast.ClassMember{
			{Decl: &ast.Routine{Name: "fill", Body: &ast.Block{
				Decls: []ast.Decl{
					&ast.Let{Names: []string{"V"},
						Inits: []ast.Expr{&ast.Alloc{Kind: ast.AllocVec, Size: num(8)}}},
					&ast.Let{Names: []string{"W"},
						Inits: []ast.Expr{&ast.Alloc{Kind: ast.AllocVec, Size: num(8)}}},
				},
				Stmts: []ast.Stmt{&ast.Retain{Names: []string{"V"}}},
			}}},
			{Decl: &ast.Function{Name: "grab", Body: &ast.Valof{Body: &ast.Block{
				Decls: []ast.Decl{&ast.Let{Names: []string{"R"},
					Inits: []ast.Expr{&ast.Alloc{Kind: ast.AllocVec, Size: num(4)}}}},
				Stmts: []ast.Stmt{&ast.Resultis{Value: &ast.VarAccess{Name: "R"}}},
			}}}},
		}},
	}}

	table := symbols.NewTable()
	classes, errs := analysis.BuildClassTable(p)
	require.Empty(t, errs)
	require.NoError(t, analysis.BuildSymbols(p, table, classes))

	AnalyzeRetain(p, table)

	v, ok := table.LookupIn(analysis.MethodLabel("Buf", "fill"), "V")
	require.True(t, ok)
	require.False(t, v.OwnsHeapMemory, "RETAIN inside a method clears ownership")

	w, ok := table.LookupIn(analysis.MethodLabel("Buf", "fill"), "W")
	require.True(t, ok)
	require.True(t, w.OwnsHeapMemory, "the untouched method local still owns its memory")

	r, ok := table.LookupIn(analysis.MethodLabel("Buf", "grab"), "R")
	require.True(t, ok)
	require.False(t, r.OwnsHeapMemory, "a RESULTIS escape inside a method must not be released")
}

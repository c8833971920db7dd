package analysis

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/albanread/nbcgo/internal/compiler/ast"
	"github.com/albanread/nbcgo/internal/compiler/symbols"
)

func num(v int64) *ast.NumberLit { return &ast.NumberLit{Value: v} }

func classProgram() *ast.Program {
	return &ast.Program{Decls: []ast.Decl{
		&ast.Class{Name: "Animal", Members: []ast.ClassMember{
			{Decl: &ast.Let{Names: []string{"name"}}},
			{Decl: &ast.Function{Name: "speak", Virtual: true, Body: num(0)}},
		}},
		&ast.Class{Name: "Dog", Parent: "Animal", Members: []ast.ClassMember{
			{Decl: &ast.Let{Names: []string{"age"}}},
			{Decl: &ast.Function{Name: "speak", Virtual: true, Body: num(1)}},
			{Decl: &ast.Function{Name: "fetch", Virtual: true, Final: true, Body: num(2)}},
		}},
	}}
}

func TestClassTableLayout(t *testing.T) {
	classes, errs := BuildClassTable(classProgram())
	require.Empty(t, errs)

	animal, ok := classes.Lookup("Animal")
	require.True(t, ok)
	name, ok := animal.Member("name")
	require.True(t, ok)
	require.Equal(t, WordSize, name.Offset) // vtable pointer sits at 0
	require.Equal(t, 2*WordSize, animal.Size())

	dog, ok := classes.Lookup("Dog")
	require.True(t, ok)
	// Inherited member keeps its offset; the new one appends.
	inherited, _ := dog.Member("name")
	require.Equal(t, WordSize, inherited.Offset)
	age, _ := dog.Member("age")
	require.Equal(t, 2*WordSize, age.Offset)
	require.Equal(t, 3*WordSize, dog.Size())

	// The override keeps the parent's vtable slot; the new method appends.
	speak, _ := dog.Method("speak")
	require.Equal(t, 0, speak.Slot)
	require.Equal(t, "Dog", speak.Definer)
	fetch, _ := dog.Method("fetch")
	require.Equal(t, 1, fetch.Slot)
	require.True(t, fetch.Final)

	parentSpeak, _ := animal.Method("speak")
	require.Equal(t, 0, parentSpeak.Slot)
	require.Equal(t, "Animal", parentSpeak.Definer)
}

func TestClassTableErrors(t *testing.T) {
	_, errs := BuildClassTable(&ast.Program{Decls: []ast.Decl{
		&ast.Class{Name: "A", Parent: "Missing"},
	}})
	require.NotEmpty(t, errs)

	_, errs = BuildClassTable(&ast.Program{Decls: []ast.Decl{
		&ast.Class{Name: "Base", Members: []ast.ClassMember{
			{Decl: &ast.Function{Name: "m", Final: true, Body: num(0)}},
		}},
		&ast.Class{Name: "Child", Parent: "Base", Members: []ast.ClassMember{
			{Decl: &ast.Function{Name: "m", Body: num(1)}},
		}},
	}})
	require.NotEmpty(t, errs, "overriding a final method is a user error")
}

func TestAnalyzerMetrics(t *testing.T) {
	p := &ast.Program{Decls: []ast.Decl{
		&ast.Function{Name: "F", Params: []string{"N"},
			Body: &ast.Conditional{
				Cond: &ast.BinaryOp{Op: ast.Eq, Left: &ast.VarAccess{Name: "N"}, Right: num(0)},
				Then: num(1),
				Else: &ast.BinaryOp{Op: ast.Mul,
					Left: &ast.VarAccess{Name: "N"},
					Right: &ast.FunctionCall{Target: &ast.VarAccess{Name: "F"},
						Args: []ast.Expr{&ast.BinaryOp{Op: ast.Sub, Left: &ast.VarAccess{Name: "N"}, Right: num(1)}}},
				},
			}},
		&ast.Function{Name: "Leaf", Body: num(3)},
		&ast.Routine{Name: "START", Body: &ast.RoutineCall{
			Target: &ast.VarAccess{Name: "F"}, Args: []ast.Expr{num(10)},
		}},
	}}
	table := symbols.NewTable()
	classes, _ := BuildClassTable(p)
	res, err := Analyze(p, table, classes)
	require.NoError(t, err)

	f := res.Metrics["F"]
	require.True(t, f.Recursive)
	require.True(t, f.ContainsCall)
	require.Equal(t, 2, f.CallSites) // the self-call and START's call

	leaf := res.Metrics["Leaf"]
	require.False(t, leaf.ContainsCall)
	require.False(t, leaf.Recursive)
	require.Equal(t, ast.TypeInteger, leaf.ReturnType)
}

func TestCaseResolution(t *testing.T) {
	sw := &ast.Switchon{
		Value: &ast.VarAccess{Name: "X"},
		Cases: []*ast.Case{
			{Value: num(10), Body: &ast.Endcase{}},
			{Value: &ast.UnaryOp{Op: ast.Negate, Operand: num(3)}, Body: &ast.Endcase{}},
		},
	}
	p := &ast.Program{Decls: []ast.Decl{&ast.Routine{Name: "START", Body: sw}}}
	table := symbols.NewTable()
	classes, _ := BuildClassTable(p)
	_, err := Analyze(p, table, classes)
	require.NoError(t, err)
	require.Equal(t, int64(10), sw.Cases[0].Resolved)
	require.Equal(t, int64(-3), sw.Cases[1].Resolved)
}

func TestTrivialAccessorDetection(t *testing.T) {
	p := &ast.Program{Decls: []ast.Decl{
		&ast.Class{Name: "Point", Members: []ast.ClassMember{
			{Decl: &ast.Let{Names: []string{"x"}}},
			{Decl: &ast.Function{Name: "getx", Body: &ast.MemberAccess{
				Object: &ast.VarAccess{Name: "_this"}, Member: "x",
			}}},
			{Decl: &ast.Routine{Name: "setx", Params: []string{"v"}, Body: &ast.Assign{
				Lhs: []ast.Expr{&ast.MemberAccess{Object: &ast.VarAccess{Name: "_this"}, Member: "x"}},
				Rhs: []ast.Expr{&ast.VarAccess{Name: "v"}},
			}}},
		}},
	}}
	table := symbols.NewTable()
	classes, _ := BuildClassTable(p)
	res, err := Analyze(p, table, classes)
	require.NoError(t, err)

	getter := res.Metrics[MethodLabel("Point", "getx")]
	require.True(t, getter.TrivialAccessor)
	require.Equal(t, "x", getter.AccessedMember)

	setter := res.Metrics[MethodLabel("Point", "setx")]
	require.True(t, setter.TrivialSetter)
	require.Equal(t, "x", setter.AccessedMember)
}

// --- liveness ---

func liveFixture(t *testing.T) (*FlowGraph, *symbols.Table) {
	t.Helper()
	table := symbols.NewTable()
	table.EnterFunctionScope("F")
	for _, name := range []string{"N", "S", "I"} {
		require.NoError(t, table.Define(&symbols.Symbol{Name: name, Kind: symbols.LocalVar}))
	}
	table.ExitScope()

	// S := 0; FOR I = 1 TO N DO S := S + I; RESULTIS S
	body := &ast.Compound{Stmts: []ast.Stmt{
		&ast.Assign{Lhs: []ast.Expr{&ast.VarAccess{Name: "S"}}, Rhs: []ast.Expr{num(0)}},
		&ast.For{Var: "I", Start: num(1), End: &ast.VarAccess{Name: "N"},
			Body: &ast.Assign{
				Lhs: []ast.Expr{&ast.VarAccess{Name: "S"}},
				Rhs: []ast.Expr{&ast.BinaryOp{Op: ast.Add, Left: &ast.VarAccess{Name: "S"}, Right: &ast.VarAccess{Name: "I"}}},
			}},
		&ast.Resultis{Value: &ast.VarAccess{Name: "S"}},
	}}
	g := BuildCFG("F", body)
	g.ComputeLiveness(table)
	return g, table
}

func TestLivenessSets(t *testing.T) {
	g, _ := liveFixture(t)

	entry := g.Entry()
	require.True(t, entry.Def["S"])
	require.False(t, entry.Use["S"], "defined before any use in the block")

	// S is live around the loop: some block carries it in live-in and the
	// loop body both uses and defines it.
	var bodyBlk *Block
	for _, b := range g.Blocks {
		if len(b.Stmts) > 0 && b.Use["S"] && b.Def["S"] {
			bodyBlk = b
		}
	}
	require.NotNil(t, bodyBlk)
	require.True(t, bodyBlk.Use["I"])
}

func TestLivenessFixpointMonotone(t *testing.T) {
	g, table := liveFixture(t)

	snapshot := func() map[string]map[string]bool {
		out := make(map[string]map[string]bool)
		for _, b := range g.Blocks {
			sets := make(map[string]bool)
			for v := range b.LiveIn {
				sets["in:"+v] = true
			}
			for v := range b.LiveOut {
				sets["out:"+v] = true
			}
			out[b.ID] = sets
		}
		return out
	}

	before := snapshot()
	g.ComputeLiveness(table) // rerun on the converged graph
	require.Equal(t, before, snapshot())
}

func TestCallIntervalDetection(t *testing.T) {
	table := symbols.NewTable()
	table.EnterFunctionScope("F")
	require.NoError(t, table.Define(&symbols.Symbol{Name: "N", Kind: symbols.Parameter}))
	table.ExitScope()

	// N * F(N - 1): N on the left is live across the embedded call.
	body := &ast.Resultis{Value: &ast.BinaryOp{
		Op:   ast.Mul,
		Left: &ast.VarAccess{Name: "N"},
		Right: &ast.FunctionCall{
			Target: &ast.VarAccess{Name: "F"},
			Args:   []ast.Expr{&ast.BinaryOp{Op: ast.Sub, Left: &ast.VarAccess{Name: "N"}, Right: num(1)}},
		},
	}}
	g := BuildCFG("F", body)
	g.ComputeLiveness(table)

	marked := false
	for _, b := range g.Blocks {
		if b.VarsUsedAcrossCalls["N"] {
			marked = true
		}
	}
	require.True(t, marked, "N must be flagged for callee-saved allocation")
}

func TestCallIntervalAfterCall(t *testing.T) {
	table := symbols.NewTable()
	table.EnterFunctionScope("F")
	require.NoError(t, table.Define(&symbols.Symbol{Name: "A", Kind: symbols.LocalVar}))
	table.ExitScope()

	body := &ast.Compound{Stmts: []ast.Stmt{
		&ast.RoutineCall{Target: &ast.VarAccess{Name: "WRITEN"}, Args: []ast.Expr{num(1)}},
		&ast.Resultis{Value: &ast.VarAccess{Name: "A"}},
	}}
	g := BuildCFG("F", body)
	g.ComputeLiveness(table)

	marked := false
	for _, b := range g.Blocks {
		if b.VarsUsedAcrossCalls["A"] {
			marked = true
		}
	}
	require.True(t, marked, "a use after a call joins vars_used_across_calls")
}

func TestGotoEdgesInCFG(t *testing.T) {
	table := symbols.NewTable()
	table.EnterFunctionScope("F")
	require.NoError(t, table.Define(&symbols.Symbol{Name: "A", Kind: symbols.LocalVar}))
	table.ExitScope()

	// A forward GOTO over the assignment, a label, then a backward GOTO:
	// both edges must reach the label's block for liveness to be sound.
	body := &ast.Compound{Stmts: []ast.Stmt{
		&ast.Goto{Target: &ast.VarAccess{Name: "again"}},
		&ast.Assign{Lhs: []ast.Expr{&ast.VarAccess{Name: "A"}}, Rhs: []ast.Expr{num(0)}},
		&ast.LabelTarget{Name: "again"},
		&ast.Resultis{Value: &ast.VarAccess{Name: "A"}},
		&ast.Goto{Target: &ast.VarAccess{Name: "again"}},
	}}
	g := BuildCFG("F", body)
	g.ComputeLiveness(table)

	var labelBlk *Block
	for _, b := range g.Blocks {
		for _, s := range b.Stmts {
			if lt, ok := s.(*ast.LabelTarget); ok && lt.Name == "again" {
				labelBlk = b
			}
		}
	}
	require.NotNil(t, labelBlk)

	// Every block ending in GOTO again has the label block as a successor.
	gotoEdges := 0
	for _, b := range g.Blocks {
		if len(b.Stmts) == 0 {
			continue
		}
		if _, ok := b.Stmts[len(b.Stmts)-1].(*ast.Goto); !ok {
			continue
		}
		for _, succ := range b.Succs {
			if succ == labelBlk {
				gotoEdges++
			}
		}
	}
	require.Equal(t, 2, gotoEdges, "forward and backward GOTO both link to the label")

	// A is used at the label, so it is live into the entry block: the
	// forward GOTO bypasses the assignment.
	require.True(t, labelBlk.Use["A"])
	require.True(t, g.Entry().LiveIn["A"], "liveness must flow back through the GOTO edge")
}

func TestBlockIDsAreStable(t *testing.T) {
	body := &ast.Test{Cond: num(1), Then: &ast.Return{}, Else: &ast.Return{}}
	g := BuildCFG("fn", body)
	ids := make(map[string]bool)
	for _, b := range g.Blocks {
		require.False(t, ids[b.ID], "duplicate block id %s", b.ID)
		ids[b.ID] = true
	}
	require.True(t, ids["fn_entry"])
	require.True(t, ids["test_then_1"])
}

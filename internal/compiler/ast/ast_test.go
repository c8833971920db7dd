package ast

import (
	"testing"

	"github.com/stretchr/testify/require"
)

// sampleProgram exercises every category: declarations, expressions with
// annotations, statements with resolved data.
func sampleProgram() *Program {
	return &Program{Decls: []Decl{
		&Manifest{Name: "MAX", Value: 100},
		&GlobalVariable{Names: []string{"G"}, Inits: []Expr{&NumberLit{Value: 7}}},
		&Class{
			Name:   "Dog",
			Parent: "Animal",
			Members: []ClassMember{
				{Decl: &Let{Names: []string{"age"}}, Visibility: Private},
				{Decl: &Function{Name: "speak", Virtual: true, Body: &NumberLit{Value: 1}}, Visibility: Public},
			},
		},
		&Function{
			Name: "F", Params: []string{"N"},
			Body: &Conditional{
				Cond: &BinaryOp{Op: Eq, Left: &VarAccess{Name: "N", Inferred: TypeInteger}, Right: &NumberLit{}},
				Then: &NumberLit{Value: 1},
				Else: &BinaryOp{Op: Mul,
					Left: &VarAccess{Name: "N"},
					Right: &FunctionCall{
						Target: &VarAccess{Name: "F"},
						Args:   []Expr{&BinaryOp{Op: Sub, Left: &VarAccess{Name: "N"}, Right: &NumberLit{Value: 1}}},
					},
				},
			},
		},
		&Routine{
			Name: "START",
			Body: &Block{
				Decls: []Decl{&Let{Names: []string{"V"}, Inits: []Expr{&Alloc{Kind: AllocVec, Size: &NumberLit{Value: 8}}}}},
				Stmts: []Stmt{
					&For{Var: "I", Start: &NumberLit{Value: 0}, End: &NumberLit{Value: 7}, EndConst: true,
						Body: &Assign{
							Lhs: []Expr{&VectorAccess{Vector: &VarAccess{Name: "V"}, Index: &VarAccess{Name: "I"}}},
							Rhs: []Expr{&BinaryOp{Op: Mul, Left: &VarAccess{Name: "I"}, Right: &VarAccess{Name: "I"}}},
						}},
					&Switchon{
						Value: &VarAccess{Name: "G"},
						Cases: []*Case{{Value: &NumberLit{Value: 3}, Resolved: 3, Body: &Endcase{}}},
						Default: &Default{Body: &RoutineCall{
							Target: &VarAccess{Name: "WRITEN"},
							Args:   []Expr{&PackedAccess{Kind: PackedPair, Base: &VarAccess{Name: "P"}, Field: 1}},
						}},
					},
					&Defer{Body: &Free{Target: &VarAccess{Name: "V"}}},
					&Resultis{Value: &Valof{Body: &Resultis{Value: &NumberLit{Value: 5}}}},
				},
			},
		},
	}}
}

func TestCloneIdentity(t *testing.T) {
	p := sampleProgram()
	clone := CloneProgram(p)
	require.Equal(t, Sprint(p), Sprint(clone))
}

func TestCloneIsDeep(t *testing.T) {
	p := sampleProgram()
	clone := CloneProgram(p)

	// Mutating the clone must not show through the original.
	clone.Decls[0].(*Manifest).Value = 999
	fn := clone.Decls[3].(*Function)
	fn.Body.(*Conditional).Then = &NumberLit{Value: 42}

	require.Equal(t, int64(100), p.Decls[0].(*Manifest).Value)
	orig := p.Decls[3].(*Function).Body.(*Conditional).Then.(*NumberLit)
	require.Equal(t, int64(1), orig.Value)
}

func TestCloneCarriesAnnotations(t *testing.T) {
	v := &VarAccess{Name: "X", Inferred: TypeFloat}
	c := CloneExpr(v).(*VarAccess)
	require.Equal(t, TypeFloat, c.Inferred)

	cs := &Case{Value: &NumberLit{Value: 9}, Resolved: 9, Body: &Endcase{}}
	cc := CloneStmt(cs).(*Case)
	require.Equal(t, int64(9), cc.Resolved)
}

func TestJSONRoundTrip(t *testing.T) {
	p := sampleProgram()
	data, err := EncodeJSON(p)
	require.NoError(t, err)

	back, err := DecodeJSON(data)
	require.NoError(t, err)
	require.Equal(t, Sprint(p), Sprint(back))
}

func TestRewriteDropsStatements(t *testing.T) {
	body := &Compound{Stmts: []Stmt{
		&Brk{},
		&Return{},
	}}
	rw := &Rewriter{Stmt: func(s Stmt) Stmt {
		if _, ok := s.(*Brk); ok {
			return nil
		}
		return s
	}}
	out := rw.RewriteStmt(body).(*Compound)
	require.Len(t, out.Stmts, 1)
	require.IsType(t, &Return{}, out.Stmts[0])
}

func TestWalkPrunes(t *testing.T) {
	p := sampleProgram()
	var calls int
	Walk(p, func(n Node) bool {
		calls++
		_, isFn := n.(*Function)
		return !isFn // do not descend into function bodies
	})
	require.Greater(t, calls, 5)

	var sawConditional bool
	Walk(p, func(n Node) bool {
		if _, ok := n.(*Conditional); ok {
			sawConditional = true
		}
		_, isFn := n.(*Function)
		return !isFn
	})
	require.False(t, sawConditional)
}

func TestTypeBitset(t *testing.T) {
	for _, tc := range []struct {
		t   Type
		exp string
	}{
		{TypeInteger, "INTEGER"},
		{TypeFloat, "FLOAT"},
		{TypePointerToFloatVec, "POINTER|FVEC"},
		{TypeAny, "ANY"},
		{TypeUnknown, "UNKNOWN"},
	} {
		require.Equal(t, tc.exp, tc.t.String())
	}

	require.True(t, TypeFloat.IsFloat())
	require.False(t, TypePointerToFloat.IsFloat())
	require.True(t, TypePair.IsPacked())
	require.False(t, TypePointerToIntVec.IsPacked())

	k, ok := TypeFQuad.PackedKind()
	require.True(t, ok)
	require.Equal(t, PackedFQuad, k)
	require.Equal(t, 4, k.Lanes())
	require.Equal(t, 16, k.LaneBits())
}

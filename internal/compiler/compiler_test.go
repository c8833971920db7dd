package compiler

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/albanread/nbcgo/internal/compiler/arm64"
	"github.com/albanread/nbcgo/internal/compiler/ast"
	"github.com/albanread/nbcgo/internal/compiler/linker"
)

func num(v int64) *ast.NumberLit { return &ast.NumberLit{Value: v} }
func ref(name string) *ast.VarAccess {
	return &ast.VarAccess{Name: name}
}

func build(t *testing.T, p *ast.Program, cfg Config) ([]arm64.Instruction, *Context) {
	t.Helper()
	p, ctx, err := Frontend(p, &cfg)
	require.NoError(t, err)
	stream, err := Backend(p, ctx, &cfg)
	require.NoError(t, err)
	return stream, ctx
}

func hasOpcode(stream []arm64.Instruction, op arm64.Opcode) bool {
	for i := range stream {
		if stream[i].Opcode == op {
			return true
		}
	}
	return false
}

func callsTo(stream []arm64.Instruction, symbol string) int {
	n := 0
	for i := range stream {
		if stream[i].Opcode == arm64.OpBL && stream[i].TargetLabel == symbol {
			n++
		}
	}
	return n
}

// Scenario 1: LET F(N) = N EQ 0 -> 1, N * F(N - 1); WRITEF("%N*N", F(10)).
// Recursion; call-interval analysis places N in a callee-saved register.
func factorialProgram() *ast.Program {
	return &ast.Program{Decls: []ast.Decl{
		&ast.Function{Name: "F", Params: []string{"N"},
			Body: &ast.Conditional{
				Cond: &ast.BinaryOp{Op: ast.Eq, Left: ref("N"), Right: num(0)},
				Then: num(1),
				Else: &ast.BinaryOp{Op: ast.Mul,
					Left: ref("N"),
					Right: &ast.FunctionCall{Target: ref("F"),
						Args: []ast.Expr{&ast.BinaryOp{Op: ast.Sub, Left: ref("N"), Right: num(1)}}},
				},
			}},
		&ast.Routine{Name: "START", Body: &ast.Compound{Stmts: []ast.Stmt{
			&ast.RoutineCall{Target: ref("WRITEF"), Args: []ast.Expr{
				&ast.StringLit{Value: "%N*N"},
				num(10),
				&ast.FunctionCall{Target: ref("F"), Args: []ast.Expr{num(10)}},
			}},
		}}},
	}}
}

func TestScenarioFactorial(t *testing.T) {
	stream, ctx := build(t, factorialProgram(), Config{})

	require.Equal(t, 2, callsTo(stream, "F"), "the recursive call inside F and START's")
	require.Equal(t, 1, callsTo(stream, "WRITEF"))

	// N is live across the recursive call, so F saves a callee-saved
	// register in its prologue.
	flow := ctx.Analysis.Flow["F"]
	require.NotNil(t, flow)
	marked := false
	for _, b := range flow.Blocks {
		if b.VarsUsedAcrossCalls["N"] {
			marked = true
		}
	}
	require.True(t, marked)

	savesCallee := false
	for i := range stream {
		ins := &stream[i]
		if ins.Opcode.IsStore() && ins.Dest >= arm64.X19 && ins.Dest <= arm64.X28 {
			savesCallee = true
		}
	}
	require.True(t, savesCallee)

	require.Contains(t, ctx.Externals, "WRITEF")
}

// Scenario 2: MANIFEST MAX = 100; LET S = 0; FOR I = 1 TO MAX DO
// S := S + I; WRITEN(S).
func TestScenarioManifestLoop(t *testing.T) {
	forLoop := &ast.For{Var: "I", Start: num(1), End: ref("MAX"),
		Body: &ast.Assign{
			Lhs: []ast.Expr{ref("S")},
			Rhs: []ast.Expr{&ast.BinaryOp{Op: ast.Add, Left: ref("S"), Right: ref("I")}},
		}}
	p := &ast.Program{Decls: []ast.Decl{
		&ast.Manifest{Name: "MAX", Value: 100},
		&ast.Routine{Name: "START", Body: &ast.Block{
			Decls: []ast.Decl{&ast.Let{Names: []string{"S"}, Inits: []ast.Expr{num(0)}}},
			Stmts: []ast.Stmt{
				forLoop,
				&ast.RoutineCall{Target: ref("WRITEN"), Args: []ast.Expr{ref("S")}},
			},
		}},
	}}
	stream, _ := build(t, p, Config{})

	// Manifest resolution turned MAX into a literal, so the folder marked
	// the bound constant.
	require.True(t, forLoop.EndConst)
	require.Equal(t, "100", ast.Sprint(forLoop.End))
	require.Equal(t, 1, callsTo(stream, "WRITEN"))
}

// Scenario 3: LET V = VEC 8; FOR I = 0 TO 7 DO V!I := I*I; WRITEN(V!3).
func TestScenarioVector(t *testing.T) {
	p := &ast.Program{Decls: []ast.Decl{
		&ast.Routine{Name: "START", Body: &ast.Block{
			Decls: []ast.Decl{&ast.Let{Names: []string{"V"},
				Inits: []ast.Expr{&ast.Alloc{Kind: ast.AllocVec, Size: num(8)}}}},
			Stmts: []ast.Stmt{
				&ast.For{Var: "I", Start: num(0), End: num(7),
					Body: &ast.Assign{
						Lhs: []ast.Expr{&ast.VectorAccess{Vector: ref("V"), Index: ref("I")}},
						Rhs: []ast.Expr{&ast.BinaryOp{Op: ast.Mul, Left: ref("I"), Right: ref("I")}},
					}},
				&ast.RoutineCall{Target: ref("WRITEN"), Args: []ast.Expr{
					&ast.VectorAccess{Vector: ref("V"), Index: num(3)},
				}},
				&ast.Retain{Names: []string{"V"}},
			},
		}},
	}}
	stream, ctx := build(t, p, Config{})

	require.Equal(t, 1, callsTo(stream, "GETVEC"))
	require.True(t, hasOpcode(stream, arm64.OpLDRScaled), "indexed load")
	scaledStore := false
	for i := range stream {
		if stream[i].Opcode == arm64.OpSTR && stream[i].Src2 != arm64.NoReg {
			scaledStore = true
		}
	}
	require.True(t, scaledStore, "indexed store")
	require.Contains(t, ctx.Externals, "GETVEC")
}

// Scenario 4: LET P = PAIR(7, 42); WRITEN(P.first); WRITEN(P.second).
func TestScenarioPair(t *testing.T) {
	p := &ast.Program{Decls: []ast.Decl{
		&ast.Routine{Name: "START", Body: &ast.Block{
			Decls: []ast.Decl{&ast.Let{Names: []string{"P"},
				Inits: []ast.Expr{&ast.PackedExpr{Kind: ast.PackedPair, Elems: []ast.Expr{num(7), num(42)}}}}},
			Stmts: []ast.Stmt{
				&ast.RoutineCall{Target: ref("WRITEN"), Args: []ast.Expr{
					&ast.PackedAccess{Kind: ast.PackedPair, Base: ref("P"), Field: 0}}},
				&ast.RoutineCall{Target: ref("WRITEN"), Args: []ast.Expr{
					&ast.PackedAccess{Kind: ast.PackedPair, Base: ref("P"), Field: 1}}},
			},
		}},
	}}
	stream, _ := build(t, p, Config{})

	// The all-literal constructor routes through rodata: the packed image
	// 42<<32|7 appears as a data value.
	image := uint64(42)<<32 | 7
	foundImage := false
	for i := range stream {
		if stream[i].IsDataValue && stream[i].Encoding == uint32(image) {
			foundImage = true
		}
	}
	require.True(t, foundImage)

	// Accesses extract with signed bitfield extracts.
	require.True(t, hasOpcode(stream, arm64.OpSBFX))
}

// A non-literal PAIR constructor lowers to MOVZ + two BFIs.
func TestPairConstructionFromValues(t *testing.T) {
	p := &ast.Program{Decls: []ast.Decl{
		&ast.Routine{Name: "START", Body: &ast.Block{
			Decls: []ast.Decl{&ast.Let{Names: []string{"A"}, Inits: []ast.Expr{&ast.FunctionCall{Target: ref("READN")}}}},
			Stmts: []ast.Stmt{
				&ast.Assign{
					Lhs: []ast.Expr{ref("Q")},
					Rhs: []ast.Expr{&ast.PackedExpr{Kind: ast.PackedPair,
						Elems: []ast.Expr{ref("A"), ref("A")}}},
				},
			},
		}},
	}}
	stream, _ := build(t, p, Config{})

	bfis := 0
	for i := range stream {
		if stream[i].Opcode == arm64.OpBFI {
			bfis++
		}
	}
	require.Equal(t, 2, bfis)
}

// Scenario 5: class Animal with virtual speak, Dog overriding; NEW Dog;
// A.speak() dispatches through the vtable.
func TestScenarioVirtualDispatch(t *testing.T) {
	p := &ast.Program{Decls: []ast.Decl{
		&ast.Class{Name: "Animal", Members: []ast.ClassMember{
			{Decl: &ast.Function{Name: "speak", Virtual: true, Body: num(0)}},
		}},
		&ast.Class{Name: "Dog", Parent: "Animal", Members: []ast.ClassMember{
			{Decl: &ast.Function{Name: "speak", Virtual: true, Body: num(1)}},
		}},
		&ast.Routine{Name: "START", Body: &ast.Block{
			Decls: []ast.Decl{&ast.Let{Names: []string{"A"},
				Inits: []ast.Expr{&ast.New{ClassName: "Dog"}}}},
			Stmts: []ast.Stmt{
				&ast.RoutineCall{
					Target: &ast.MemberAccess{Object: ref("A"), Member: "speak"},
				},
				&ast.Retain{Names: []string{"A"}},
			},
		}},
	}}
	stream, ctx := build(t, p, Config{})

	require.Equal(t, 1, callsTo(stream, "BCPL_ALLOC"))
	require.True(t, hasOpcode(stream, arm64.OpBLR), "virtual dispatch is indirect")

	// Both vtables are laid out; Dog's slot 0 points at Dog_speak.
	labels := map[string]bool{}
	for i := range stream {
		if stream[i].IsLabelDefinition {
			labels[stream[i].TargetLabel] = true
		}
	}
	require.True(t, labels["vtable_Animal"])
	require.True(t, labels["vtable_Dog"])
	require.True(t, labels["Dog_speak"])

	slotTargets := map[string]bool{}
	for i := range stream {
		if stream[i].IsDataValue && stream[i].Relocation != arm64.RelocNone {
			slotTargets[stream[i].TargetLabel] = true
		}
	}
	require.True(t, slotTargets["Dog_speak"])
	require.True(t, slotTargets["Animal_speak"])

	dog, ok := ctx.Analysis.Classes.Lookup("Dog")
	require.True(t, ok)
	speak, _ := dog.Method("speak")
	require.Equal(t, 0, speak.Slot)
	require.Equal(t, "Dog", speak.Definer)
}

// Scenario 6: strength reduction leaves no multiply for I*1 and the
// optimized stream is stable at five peephole passes.
func TestScenarioStrengthAndStability(t *testing.T) {
	mk := func() *ast.Program {
		return &ast.Program{Decls: []ast.Decl{
			&ast.Routine{Name: "START", Body: &ast.Block{
				Decls: []ast.Decl{&ast.Let{Names: []string{"R"}, Inits: []ast.Expr{num(0)}}},
				Stmts: []ast.Stmt{
					&ast.For{Var: "I", Start: num(1), End: num(1024),
						Body: &ast.Assign{
							Lhs: []ast.Expr{ref("R")},
							Rhs: []ast.Expr{&ast.BinaryOp{Op: ast.Add, Left: ref("R"),
								Right: &ast.BinaryOp{Op: ast.Mul, Left: ref("I"), Right: num(1)}}},
						}},
					&ast.RoutineCall{Target: ref("WRITEN"), Args: []ast.Expr{ref("R")}},
				},
			}},
		}}
	}

	stream, _ := build(t, mk(), Config{PeepholePasses: 5})
	require.False(t, hasOpcode(stream, arm64.OpMUL), "I*1 must not multiply")

	again, _ := build(t, mk(), Config{PeepholePasses: 5})
	require.Equal(t, len(stream), len(again))
	for i := range stream {
		require.True(t, arm64.Equivalent(&stream[i], &again[i]),
			"instruction %d differs between identical builds", i)
	}
}

func TestObjectPath(t *testing.T) {
	cfg := Config{}
	p, ctx, err := Frontend(factorialProgram(), &cfg)
	require.NoError(t, err)
	stream, err := Backend(p, ctx, &cfg)
	require.NoError(t, err)

	lk := linker.New(ctx.Registry)
	img, externals, err := lk.LinkObject(stream)
	require.NoError(t, err)
	require.NotEmpty(t, externals)

	data := linker.WriteELF(img, externals, ctx.Registry)
	require.Greater(t, len(data), 64)
}

func TestUserErrorsAreReported(t *testing.T) {
	p := &ast.Program{Decls: []ast.Decl{
		&ast.Routine{Name: "START", Body: &ast.Compound{Stmts: []ast.Stmt{
			&ast.RoutineCall{Target: ref("WRITEN"), Args: []ast.Expr{
				// .third on a PAIR is a user error.
				&ast.PackedAccess{Kind: ast.PackedPair, Base: ref("P"), Field: 2},
			}},
		}}},
	}}
	cfg := Config{}
	p, ctx, err := Frontend(p, &cfg)
	require.NoError(t, err)
	_, err = Backend(p, ctx, &cfg)
	require.Error(t, err)
	require.Contains(t, err.Error(), "invalid .third access")
}

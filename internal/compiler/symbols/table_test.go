package symbols

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/albanread/nbcgo/internal/compiler/ast"
)

func TestScopingAndShadowing(t *testing.T) {
	table := NewTable()
	require.NoError(t, table.DefineGlobal(&Symbol{Name: "X", Kind: GlobalVar, Type: ast.TypeInteger}))

	table.EnterFunctionScope("F")
	require.NoError(t, table.Define(&Symbol{Name: "X", Kind: LocalVar, Type: ast.TypeFloat}))

	sym, ok := table.Lookup("X")
	require.True(t, ok)
	require.Equal(t, LocalVar, sym.Kind, "inner declaration shadows the global")

	table.ExitScope()
	sym, ok = table.Lookup("X")
	require.True(t, ok)
	require.Equal(t, GlobalVar, sym.Kind)
}

func TestDuplicateDeclarationIsError(t *testing.T) {
	table := NewTable()
	table.EnterFunctionScope("F")
	require.NoError(t, table.Define(&Symbol{Name: "A", Kind: LocalVar}))
	require.Error(t, table.Define(&Symbol{Name: "A", Kind: LocalVar}))
}

func TestFunctionScopeTemporaries(t *testing.T) {
	table := NewTable()
	table.EnterFunctionScope("F")
	for _, name := range []string{"_temp1", "_temp2", "_temp3", "_temp4"} {
		sym, ok := table.Lookup(name)
		require.True(t, ok)
		require.Equal(t, ast.TypeAny, sym.Type)
	}
	table.ExitScope()
}

func TestFunctionContextLookup(t *testing.T) {
	table := NewTable()
	table.EnterFunctionScope("F")
	require.NoError(t, table.Define(&Symbol{Name: "local", Kind: LocalVar}))
	table.ExitScope()

	// After exit, the plain lookup misses but the function-context lookup
	// still resolves through the retained function scope.
	_, ok := table.Lookup("local")
	require.False(t, ok)
	sym, ok := table.LookupIn("F", "local")
	require.True(t, ok)
	require.Equal(t, "F", sym.FunctionName)
}

func TestLocationConstructors(t *testing.T) {
	require.Equal(t, LocStack, StackLocation(-8).Type)
	require.Equal(t, LocData, DataLocation(16).Type)
	require.Equal(t, LocAbsolute, AbsoluteLocation(42).Type)
	require.Equal(t, int64(42), AbsoluteLocation(42).Absolute)
	require.Equal(t, "L1", LabelLocation("L1").Label)
}

func TestSymbolPredicates(t *testing.T) {
	require.True(t, (&Symbol{Kind: Manifest}).IsManifest())
	require.True(t, (&Symbol{Kind: Parameter}).IsLocal())
	require.True(t, (&Symbol{Kind: StaticVar}).IsGlobal())
	require.True(t, (&Symbol{Kind: RuntimeFloatFunction}).IsRuntime())
	require.True(t, (&Symbol{Kind: RuntimeFloatFunction}).ReturnsFloat())
	require.True(t, (&Symbol{Kind: Routine}).IsFunctionLike())
	require.False(t, (&Symbol{Kind: Label}).IsVariable())
}

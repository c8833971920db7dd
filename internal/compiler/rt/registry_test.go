package rt

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/albanread/nbcgo/internal/compiler/symbols"
)

func TestRegistryPopulatesAndVerifies(t *testing.T) {
	r := NewRegistry()
	table := symbols.NewTable()
	require.NoError(t, r.PopulateSymbolTable(table))

	// Every registered name round-trips through the symbol table.
	for _, name := range r.Names() {
		sym, ok := table.Lookup(name)
		require.True(t, ok, "missing %s", name)
		require.True(t, sym.IsRuntime())
	}

	writef, ok := table.Lookup("WRITEF")
	require.True(t, ok)
	require.Equal(t, symbols.RuntimeRoutine, writef.Kind)
	require.Len(t, writef.Parameters, 8)

	fsin, ok := table.Lookup("FSIN")
	require.True(t, ok)
	require.True(t, fsin.ReturnsFloat())
}

func TestStandaloneLabels(t *testing.T) {
	r := NewRegistry()
	for _, name := range r.Names() {
		e, _ := r.Lookup(name)
		require.Equal(t, "_"+name, e.Label)
	}
}

func TestBind(t *testing.T) {
	r := NewRegistry()
	require.NoError(t, r.Bind("WRITEN", 0x1234))
	e, _ := r.Lookup("WRITEN")
	require.Equal(t, uintptr(0x1234), e.Addr)

	require.Error(t, r.Bind("NOPE", 1), "binding an unknown symbol surfaces the typo")

	r.BindAll(func(name string) (uintptr, bool) {
		if name == "GETVEC" {
			return 0x9000, true
		}
		return 0, false
	})
	gv, _ := r.Lookup("GETVEC")
	require.Equal(t, uintptr(0x9000), gv.Addr)
}

func TestDoublePopulateIsFatal(t *testing.T) {
	r := NewRegistry()
	table := symbols.NewTable()
	require.NoError(t, r.PopulateSymbolTable(table))
	require.Error(t, r.PopulateSymbolTable(table))
}

func TestList(t *testing.T) {
	out := NewRegistry().List()
	require.True(t, strings.Contains(out, "WRITEF"))
	require.True(t, strings.Contains(out, "_GETVEC"))
	require.True(t, strings.Contains(out, "float"))
}

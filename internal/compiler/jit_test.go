//go:build unix

package compiler

import (
	"testing"
	"unsafe"

	"github.com/stretchr/testify/require"

	"github.com/albanread/nbcgo/internal/compiler/ast"
)

// TestJITCommitCoherence checks the cache-coherence property: after commit,
// reading the first four bytes at a linked label yields the first emitted
// encoding. The program is runtime-free so no resolver is needed.
func TestJITCommitCoherence(t *testing.T) {
	p := &ast.Program{Decls: []ast.Decl{
		&ast.Routine{Name: "START", Body: &ast.Compound{Stmts: []ast.Stmt{
			&ast.Resultis{Value: &ast.BinaryOp{Op: ast.Add, Left: &ast.NumberLit{Value: 40}, Right: &ast.NumberLit{Value: 2}}},
		}}},
	}}
	compiled, err := Compile(p, Config{})
	require.NoError(t, err)
	defer compiled.Close()

	require.NotZero(t, compiled.Entry)
	require.True(t, compiled.Memory.Executable())

	startAddr, err := compiled.Image.EntryAddress("START")
	require.NoError(t, err)
	require.Equal(t, uintptr(startAddr), compiled.Entry)

	var firstEncoding uint32
	for i := range compiled.Image.Instructions {
		ins := &compiled.Image.Instructions[i]
		if ins.Address == startAddr && !ins.IsPseudo() {
			firstEncoding = ins.Encoding
			break
		}
	}
	require.NotZero(t, firstEncoding)

	inMemory := *(*uint32)(unsafe.Pointer(compiled.Entry))
	require.Equal(t, firstEncoding, inMemory)
}

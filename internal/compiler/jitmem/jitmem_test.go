//go:build unix

package jitmem

import (
	"os"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestAllocateAlignsToPage(t *testing.T) {
	m, err := New(100)
	require.NoError(t, err)
	defer m.Close()

	page := os.Getpagesize()
	require.Equal(t, 100, m.Size())
	require.Equal(t, 0, m.AlignedSize()%page)
	require.GreaterOrEqual(t, m.AlignedSize(), 100)
	require.Zero(t, int(m.Base())%page)
	require.False(t, m.Executable())
}

func TestWriteBounds(t *testing.T) {
	m, err := New(64)
	require.NoError(t, err)
	defer m.Close()

	require.NoError(t, m.Write(0, []byte{1, 2, 3, 4}))
	require.Error(t, m.Write(m.AlignedSize()-2, []byte{1, 2, 3, 4}))
	require.Error(t, m.Write(-1, []byte{1}))
}

func TestProtectionTransitions(t *testing.T) {
	m, err := New(64)
	require.NoError(t, err)
	defer m.Close()

	require.NoError(t, m.Write(0, []byte{0x1F, 0x20, 0x03, 0xD5}))
	require.NoError(t, m.MakeExecutable())
	require.True(t, m.Executable())
	require.Error(t, m.Write(0, []byte{0}), "executable blocks are not writable")

	require.NoError(t, m.MakeWritable())
	require.NoError(t, m.Write(0, []byte{0}))
}

func TestInvalidSize(t *testing.T) {
	_, err := New(0)
	require.Error(t, err)
	_, err = New(-5)
	require.Error(t, err)
}

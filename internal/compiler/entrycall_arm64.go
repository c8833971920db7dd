//go:build arm64

package compiler

// Call invokes a compiled entry pointer of C type int64 (*)().
func Call(entry uintptr) (int64, error) {
	return callEntry(entry), nil
}

// callEntry is implemented in entrycall_arm64.s.
func callEntry(entry uintptr) int64

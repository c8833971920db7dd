//go:build !arm64

package jitmem

// Non-ARM hosts have coherent instruction fetch; the protection flip is
// sufficient.
func synchronizeCache(begin uintptr, size int) {}

//go:build !arm64

package compiler

import "errors"

// Call is unavailable off ARM64; compilation still works, execution does
// not.
func Call(entry uintptr) (int64, error) {
	return 0, errors.New("compiler: executing JIT code requires an arm64 host")
}

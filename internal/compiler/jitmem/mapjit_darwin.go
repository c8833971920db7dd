//go:build darwin && arm64

package jitmem

import "golang.org/x/sys/unix"

// Apple Silicon requires MAP_JIT for pages that will flip between W and X.
const mapJITFlag = unix.MAP_JIT

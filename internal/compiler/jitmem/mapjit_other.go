//go:build !(darwin && arm64)

package jitmem

const mapJITFlag = 0

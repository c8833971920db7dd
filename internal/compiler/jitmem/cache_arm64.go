//go:build arm64

package jitmem

// synchronizeCache orders the commit against later execution: DMB ISH, then
// D-cache clean + I-cache invalidate over the range, then ISB. Omitting any
// step leaves stale instructions observable.
func synchronizeCache(begin uintptr, size int) {
	cacheFlush(begin, uintptr(size))
}

// cacheFlush is implemented in cache_arm64.s.
func cacheFlush(begin, length uintptr)

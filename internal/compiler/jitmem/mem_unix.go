//go:build unix

package jitmem

import "golang.org/x/sys/unix"

func platformAlloc(size int) ([]byte, error) {
	return unix.Mmap(-1, 0, size,
		unix.PROT_READ|unix.PROT_WRITE,
		unix.MAP_PRIVATE|unix.MAP_ANON|mapJITFlag)
}

func platformProtectRX(buf []byte) error {
	return unix.Mprotect(buf, unix.PROT_READ|unix.PROT_EXEC)
}

func platformProtectRW(buf []byte) error {
	return unix.Mprotect(buf, unix.PROT_READ|unix.PROT_WRITE)
}

func platformFree(buf []byte) error {
	return unix.Munmap(buf)
}

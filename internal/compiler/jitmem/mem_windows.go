//go:build windows

package jitmem

import (
	"unsafe"

	"golang.org/x/sys/windows"
)

func platformAlloc(size int) ([]byte, error) {
	addr, err := windows.VirtualAlloc(0, uintptr(size),
		windows.MEM_COMMIT|windows.MEM_RESERVE, windows.PAGE_READWRITE)
	if err != nil {
		return nil, err
	}
	return unsafe.Slice((*byte)(unsafe.Pointer(addr)), size), nil
}

func protect(buf []byte, prot uint32) error {
	var old uint32
	return windows.VirtualProtect(
		uintptr(unsafe.Pointer(&buf[0])), uintptr(len(buf)), prot, &old)
}

func platformProtectRX(buf []byte) error {
	return protect(buf, windows.PAGE_EXECUTE_READ)
}

func platformProtectRW(buf []byte) error {
	return protect(buf, windows.PAGE_READWRITE)
}

func platformFree(buf []byte) error {
	return windows.VirtualFree(uintptr(unsafe.Pointer(&buf[0])), 0, windows.MEM_RELEASE)
}

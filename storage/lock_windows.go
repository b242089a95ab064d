//go:build windows

// LockFileEx/UnlockFileEx and MapViewOfFile implementation for
// Windows, grounded on folio's lock_windows.go.
package storage

import (
	"os"
	"unsafe"

	"golang.org/x/sys/windows"
)

func osLockExclusive(f *os.File) error {
	h := windows.Handle(f.Fd())
	var overlapped windows.Overlapped
	return windows.LockFileEx(
		h,
		windows.LOCKFILE_EXCLUSIVE_LOCK|windows.LOCKFILE_FAIL_IMMEDIATELY,
		0,
		0xFFFFFFFF,
		0xFFFFFFFF,
		&overlapped,
	)
}

func osUnlock(f *os.File) error {
	h := windows.Handle(f.Fd())
	var overlapped windows.Overlapped
	return windows.UnlockFileEx(h, 0, 0xFFFFFFFF, 0xFFFFFFFF, &overlapped)
}

func mmapFile(f *os.File, size int64) ([]byte, error) {
	h := windows.Handle(f.Fd())
	mapping, err := windows.CreateFileMapping(h, nil, windows.PAGE_READONLY, 0, 0, nil)
	if err != nil {
		return nil, err
	}
	defer windows.CloseHandle(mapping)

	addr, err := windows.MapViewOfFile(mapping, windows.FILE_MAP_READ, 0, 0, uintptr(size))
	if err != nil {
		return nil, err
	}
	data := unsafe.Slice((*byte)(unsafe.Pointer(addr)), size)
	return data, nil
}

func munmapFile(data []byte) error {
	addr := uintptr(unsafe.Pointer(&data[0]))
	return windows.UnmapViewOfFile(addr)
}

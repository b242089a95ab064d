//go:build unix

// flock(2) implementation for Unix platforms, grounded on folio's
// lock_unix.go but using golang.org/x/sys/unix in place of syscall so
// the same package backs both locking and mmap.
package storage

import (
	"os"

	"golang.org/x/sys/unix"
)

func osLockExclusive(f *os.File) error {
	return unix.Flock(int(f.Fd()), unix.LOCK_EX|unix.LOCK_NB)
}

func osUnlock(f *os.File) error {
	return unix.Flock(int(f.Fd()), unix.LOCK_UN)
}

func mmapFile(f *os.File, size int64) ([]byte, error) {
	return unix.Mmap(int(f.Fd()), 0, int(size), unix.PROT_READ, unix.MAP_SHARED)
}

func munmapFile(data []byte) error {
	return unix.Munmap(data)
}

// Package storage provides an abstract byte-stream namespace for named
// files: create, open, rename, delete, list, stat, and lock. Two
// implementations satisfy the contract — a sandboxed on-disk directory
// and an in-memory map — so the rest of loom never depends on the
// filesystem directly.
//
// Rename is atomic with respect to concurrent readers (replace in
// place); locks are named, reentrant within the acquiring goroutine,
// and block with a caller-supplied deadline.
package storage

import (
	"context"
	"io"
	"time"
)

// Storage is the abstract namespace an Index is built on.
type Storage interface {
	// CreateFile creates (or truncates) name for writing.
	CreateFile(name string) (io.WriteCloser, error)

	// OpenFile opens name for reading. When mapped is true and the
	// implementation supports it, File.Map returns the whole file as a
	// read-only byte slice; otherwise Map returns errs.ErrNotMapped.
	OpenFile(name string, mapped bool) (File, error)

	// RenameFile atomically replaces newName with oldName's contents.
	// If overwrite is false and newName already exists, it returns
	// errs.ErrAlreadyExists.
	RenameFile(oldName, newName string, overwrite bool) error

	// DeleteFile removes name. Deleting a file that is still open for
	// reading elsewhere may fail benignly (Windows semantics); callers
	// should treat DeleteFile failures as best-effort.
	DeleteFile(name string) error

	// ListFiles returns every file name currently in the namespace.
	ListFiles() ([]string, error)

	// FileModified returns name's last-modified timestamp.
	FileModified(name string) (time.Time, error)

	// Lock returns a named advisory lock handle. Calling Lock twice
	// with the same name returns handles to the same underlying lock.
	Lock(name string) (Lock, error)

	// Close releases any resources held by the Storage (directory
	// handles, lock registries). It does not delete any files.
	Close() error
}

// File is a read-only handle over a stored byte stream.
type File interface {
	io.ReaderAt
	io.Closer
	Size() int64
	// Map returns the whole file as a read-only byte slice if the file
	// was opened with mapped=true, else errs.ErrNotMapped.
	Map() ([]byte, error)
}

// Lock is a named, reentrant, blocking-with-deadline advisory lock.
type Lock interface {
	// Lock blocks until acquired, ctx is done, or the lock's owner
	// releases it. Returns errs.LockError on ctx expiry.
	Lock(ctx context.Context) error
	Unlock() error
}

package storage

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/jpl-au/loom/errs"
)

// FileStorage is a Storage implementation sandboxed to one directory,
// modeled on folio's os.Root-rooted DB.Open: every name is resolved
// relative to the root so the index can never escape its directory.
type FileStorage struct {
	root *os.Root

	mu    sync.Mutex
	locks map[string]*fileLock
}

// Open opens (creating if necessary) dir as the backing directory for
// a FileStorage.
func Open(dir string) (*FileStorage, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("storage: mkdir: %w", err)
	}
	root, err := os.OpenRoot(dir)
	if err != nil {
		return nil, fmt.Errorf("storage: open root: %w", err)
	}
	return &FileStorage{root: root, locks: make(map[string]*fileLock)}, nil
}

func (s *FileStorage) CreateFile(name string) (io.WriteCloser, error) {
	f, err := s.root.Create(name)
	if err != nil {
		return nil, fmt.Errorf("storage: create %s: %w", name, err)
	}
	return f, nil
}

func (s *FileStorage) OpenFile(name string, mapped bool) (File, error) {
	f, err := s.root.OpenFile(name, os.O_RDONLY, 0o644)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("storage: open %s: %w", name, errs.ErrFileNotFound)
		}
		return nil, fmt.Errorf("storage: open %s: %w", name, err)
	}
	return newOSFile(f, mapped)
}

func (s *FileStorage) RenameFile(oldName, newName string, overwrite bool) error {
	if !overwrite {
		if _, err := s.root.Stat(newName); err == nil {
			return fmt.Errorf("storage: rename %s -> %s: %w", oldName, newName, errs.ErrAlreadyExists)
		}
	}
	if err := s.root.Rename(oldName, newName); err != nil {
		return fmt.Errorf("storage: rename %s -> %s: %w", oldName, newName, err)
	}
	return nil
}

func (s *FileStorage) DeleteFile(name string) error {
	if err := s.root.Remove(name); err != nil {
		return fmt.Errorf("storage: delete %s: %w", name, err)
	}
	return nil
}

func (s *FileStorage) ListFiles() ([]string, error) {
	dir, err := os.Open(s.root.Name())
	if err != nil {
		return nil, fmt.Errorf("storage: list: %w", err)
	}
	defer dir.Close()
	names, err := dir.Readdirnames(-1)
	if err != nil {
		return nil, fmt.Errorf("storage: list: %w", err)
	}
	return names, nil
}

func (s *FileStorage) FileModified(name string) (time.Time, error) {
	info, err := s.root.Stat(name)
	if err != nil {
		return time.Time{}, fmt.Errorf("storage: stat %s: %w", name, err)
	}
	return info.ModTime(), nil
}

func (s *FileStorage) Lock(name string) (Lock, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if l, ok := s.locks[name]; ok {
		return l, nil
	}

	path := filepath.Join(s.root.Name(), name+".lock")
	f, err := os.OpenFile(path, os.O_CREATE|os.O_RDWR, 0o644)
	if err != nil {
		return nil, fmt.Errorf("storage: lock %s: %w", name, err)
	}
	l := &fileLock{f: f}
	s.locks[name] = l
	return l, nil
}

func (s *FileStorage) Close() error {
	s.mu.Lock()
	for _, l := range s.locks {
		l.f.Close()
	}
	s.locks = nil
	s.mu.Unlock()
	return s.root.Close()
}

// osFile adapts *os.File to the File contract, optionally backed by a
// read-only memory mapping.
type osFile struct {
	f    *os.File
	size int64
	data []byte // non-nil iff opened mapped
}

func newOSFile(f *os.File, mapped bool) (*osFile, error) {
	info, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, err
	}
	of := &osFile{f: f, size: info.Size()}
	if mapped && info.Size() > 0 {
		data, err := mmapFile(f, info.Size())
		if err != nil {
			f.Close()
			return nil, fmt.Errorf("storage: mmap: %w", err)
		}
		of.data = data
	}
	return of, nil
}

func (f *osFile) ReadAt(p []byte, off int64) (int, error) { return f.f.ReadAt(p, off) }
func (f *osFile) Size() int64                             { return f.size }

func (f *osFile) Map() ([]byte, error) {
	if f.data == nil {
		return nil, errs.ErrNotMapped
	}
	return f.data, nil
}

func (f *osFile) Close() error {
	if f.data != nil {
		munmapFile(f.data)
		f.data = nil
	}
	return f.f.Close()
}

// fileLock is an OS-level advisory lock reentrant within the process:
// recursive Lock calls from the same goroutine nest rather than
// deadlock, tracked via an owner+depth pair guarded by mu, following
// the same "mutex guards the syscall, not the semantics" shape as
// folio's fileLock.
type fileLock struct {
	mu    sync.Mutex
	f     *os.File
	owner uint64
	depth int
}

func (l *fileLock) Lock(ctx context.Context) error {
	gid := goroutineID()

	l.mu.Lock()
	if l.depth > 0 && l.owner == gid {
		l.depth++
		l.mu.Unlock()
		return nil
	}
	l.mu.Unlock()

	ticker := time.NewTicker(2 * time.Millisecond)
	defer ticker.Stop()
	for {
		l.mu.Lock()
		if l.depth == 0 {
			if err := osLockExclusive(l.f); err == nil {
				l.owner = gid
				l.depth = 1
				l.mu.Unlock()
				return nil
			}
		}
		l.mu.Unlock()

		select {
		case <-ctx.Done():
			return fmt.Errorf("storage: %w", errs.LockError)
		case <-ticker.C:
		}
	}
}

func (l *fileLock) Unlock() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.depth == 0 {
		return nil
	}
	l.depth--
	if l.depth == 0 {
		return osUnlock(l.f)
	}
	return nil
}

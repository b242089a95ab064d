package storage

import (
	"bytes"
	"runtime"
	"strconv"
)

// goroutineID extracts the calling goroutine's id from its stack trace
// header ("goroutine 123 [running]:"). It exists solely to make
// fileLock reentrant within a single goroutine, matching the "named,
// reentrant within the acquiring agent" contract; it is never used for
// scheduling or correctness beyond that.
func goroutineID() uint64 {
	var buf [64]byte
	n := runtime.Stack(buf[:], false)
	b := buf[:n]
	b = bytes.TrimPrefix(b, []byte("goroutine "))
	if i := bytes.IndexByte(b, ' '); i >= 0 {
		b = b[:i]
	}
	id, _ := strconv.ParseUint(string(b), 10, 64)
	return id
}

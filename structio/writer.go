// Package structio is the typed I/o layer over a storage.File: fixed
// width ints/floats, varints, length-prefixed byte strings, arrays,
// and JSON-encoded object slots. The read side may memory-map the
// underlying file for random-access positional getters.
//
// Every fixed-width value is written little-endian via
// encoding/binary.LittleEndian explicitly, so there is no host-endian
// dependent code path to get wrong; only the positional getters over a
// raw memory mapping would need host-endian awareness, and those stay
// within the same explicit LittleEndian decode.
package structio

import (
	"encoding/binary"
	"fmt"
	"io"
	"math"

	json "github.com/goccy/go-json"
)

// Writer appends typed values sequentially to an underlying io.Writer,
// tracking the running byte offset.
type Writer struct {
	w   io.Writer
	off int64
	buf [8]byte
}

// NewWriter wraps w for typed sequential writes.
func NewWriter(w io.Writer) *Writer {
	return &Writer{w: w}
}

// Offset returns the number of bytes written so far.
func (w *Writer) Offset() int64 { return w.off }

func (w *Writer) write(p []byte) error {
	n, err := w.w.Write(p)
	w.off += int64(n)
	return err
}

func (w *Writer) WriteUint8(v uint8) error { return w.write([]byte{v}) }
func (w *Writer) WriteInt8(v int8) error   { return w.WriteUint8(uint8(v)) }

func (w *Writer) WriteUint16(v uint16) error {
	binary.LittleEndian.PutUint16(w.buf[:2], v)
	return w.write(w.buf[:2])
}
func (w *Writer) WriteInt16(v int16) error { return w.WriteUint16(uint16(v)) }

func (w *Writer) WriteUint32(v uint32) error {
	binary.LittleEndian.PutUint32(w.buf[:4], v)
	return w.write(w.buf[:4])
}
func (w *Writer) WriteInt32(v int32) error { return w.WriteUint32(uint32(v)) }

func (w *Writer) WriteUint64(v uint64) error {
	binary.LittleEndian.PutUint64(w.buf[:8], v)
	return w.write(w.buf[:8])
}
func (w *Writer) WriteInt64(v int64) error { return w.WriteUint64(uint64(v)) }

func (w *Writer) WriteFloat32(v float32) error {
	return w.WriteUint32(math.Float32bits(v))
}

func (w *Writer) WriteFloat64(v float64) error {
	return w.WriteUint64(math.Float64bits(v))
}

// WriteVarint writes v as an unsigned LEB128 varint.
func (w *Writer) WriteVarint(v uint64) error {
	var buf [binary.MaxVarintLen64]byte
	n := binary.PutUvarint(buf[:], v)
	return w.write(buf[:n])
}

// WriteSVarint writes v as a zigzag-encoded signed varint.
func (w *Writer) WriteSVarint(v int64) error {
	return w.WriteVarint(zigzagEncode(v))
}

// WriteBytes writes a varint length prefix followed by p's bytes.
func (w *Writer) WriteBytes(p []byte) error {
	if err := w.WriteVarint(uint64(len(p))); err != nil {
		return err
	}
	return w.write(p)
}

// WriteString writes a varint length prefix followed by s's bytes.
func (w *Writer) WriteString(s string) error {
	return w.WriteBytes([]byte(s))
}

// WriteArray writes count as a varint, then invokes writeElem n times;
// writeElem is responsible for encoding one element.
func (w *Writer) WriteArray(n int, writeElem func(i int) error) error {
	if err := w.WriteVarint(uint64(n)); err != nil {
		return err
	}
	for i := 0; i < n; i++ {
		if err := writeElem(i); err != nil {
			return err
		}
	}
	return nil
}

// WriteObject marshals v to JSON and writes it as a length-prefixed
// byte string, backed by goccy/go-json for speed.
func (w *Writer) WriteObject(v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("structio: marshal object: %w", err)
	}
	return w.WriteBytes(data)
}

func zigzagEncode(v int64) uint64 {
	return uint64((v << 1) ^ (v >> 63))
}

func zigzagDecode(v uint64) int64 {
	return int64(v>>1) ^ -int64(v&1)
}

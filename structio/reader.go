package structio

import (
	"encoding/binary"
	"fmt"
	"io"
	"math"

	json "github.com/goccy/go-json"

	"github.com/jpl-au/loom/storage"
)

// Reader provides typed sequential reads over a storage.File, plus
// positional getters that read through a memory mapping when one is
// available (set up by the caller via storage.Storage.OpenFile(...,
// mapped=true)), falling back to ReadAt otherwise. Positional getters
// never move the sequential cursor.
type Reader struct {
	f      storage.File
	mapped []byte // nil if the file wasn't opened mapped
	pos    int64
	size   int64
}

// NewReader wraps f for typed reads. If f exposes a memory mapping,
// positional getters use it directly.
func NewReader(f storage.File) *Reader {
	r := &Reader{f: f, size: f.Size()}
	if data, err := f.Map(); err == nil {
		r.mapped = data
	}
	return r
}

// Seek repositions the sequential read cursor.
func (r *Reader) Seek(off int64) { r.pos = off }

// Pos returns the current sequential read cursor.
func (r *Reader) Pos() int64 { return r.pos }

func (r *Reader) readAt(n int, off int64) ([]byte, error) {
	buf := make([]byte, n)
	if _, err := r.f.ReadAt(buf, off); err != nil {
		return nil, err
	}
	return buf, nil
}

func (r *Reader) read(n int) ([]byte, error) {
	b, err := r.readAt(n, r.pos)
	if err != nil {
		return nil, err
	}
	r.pos += int64(n)
	return b, nil
}

func (r *Reader) ReadUint8() (uint8, error) {
	b, err := r.read(1)
	if err != nil {
		return 0, err
	}
	return b[0], nil
}

func (r *Reader) ReadInt8() (int8, error) {
	v, err := r.ReadUint8()
	return int8(v), err
}

func (r *Reader) ReadUint16() (uint16, error) {
	b, err := r.read(2)
	if err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint16(b), nil
}

func (r *Reader) ReadInt16() (int16, error) {
	v, err := r.ReadUint16()
	return int16(v), err
}

func (r *Reader) ReadUint32() (uint32, error) {
	b, err := r.read(4)
	if err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint32(b), nil
}

func (r *Reader) ReadInt32() (int32, error) {
	v, err := r.ReadUint32()
	return int32(v), err
}

func (r *Reader) ReadUint64() (uint64, error) {
	b, err := r.read(8)
	if err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint64(b), nil
}

func (r *Reader) ReadInt64() (int64, error) {
	v, err := r.ReadUint64()
	return int64(v), err
}

func (r *Reader) ReadFloat32() (float32, error) {
	v, err := r.ReadUint32()
	return math.Float32frombits(v), err
}

func (r *Reader) ReadFloat64() (float64, error) {
	v, err := r.ReadUint64()
	return math.Float64frombits(v), err
}

// ReadVarint reads an unsigned LEB128 varint, advancing the cursor by
// its encoded width.
func (r *Reader) ReadVarint() (uint64, error) {
	var x uint64
	var s uint
	for {
		b, err := r.ReadUint8()
		if err != nil {
			return 0, err
		}
		if b < 0x80 {
			if s >= 63 && b > 1 {
				return 0, fmt.Errorf("structio: varint overflow")
			}
			return x | uint64(b)<<s, nil
		}
		x |= uint64(b&0x7f) << s
		s += 7
	}
}

func (r *Reader) ReadSVarint() (int64, error) {
	v, err := r.ReadVarint()
	if err != nil {
		return 0, err
	}
	return zigzagDecode(v), nil
}

// ReadBytes reads a varint length prefix followed by that many bytes.
func (r *Reader) ReadBytes() ([]byte, error) {
	n, err := r.ReadVarint()
	if err != nil {
		return nil, err
	}
	if n == 0 {
		return nil, nil
	}
	return r.read(int(n))
}

func (r *Reader) ReadString() (string, error) {
	b, err := r.ReadBytes()
	if err != nil {
		return "", err
	}
	return string(b), nil
}

// ReadArray reads a varint count, then invokes readElem that many
// times; readElem is responsible for decoding one element.
func (r *Reader) ReadArray(readElem func(i int) error) (int, error) {
	n, err := r.ReadVarint()
	if err != nil {
		return 0, err
	}
	for i := 0; i < int(n); i++ {
		if err := readElem(i); err != nil {
			return i, err
		}
	}
	return int(n), nil
}

// ReadObject reads a length-prefixed JSON blob into v.
func (r *Reader) ReadObject(v any) error {
	data, err := r.ReadBytes()
	if err != nil {
		return err
	}
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("structio: unmarshal object: %w", err)
	}
	return nil
}

// --- Positional getters (random access, never move the cursor) ---

func (r *Reader) GetUint8At(off int64) (uint8, error) {
	if r.mapped != nil {
		if off < 0 || off >= int64(len(r.mapped)) {
			return 0, io.ErrUnexpectedEOF
		}
		return r.mapped[off], nil
	}
	b, err := r.readAt(1, off)
	if err != nil {
		return 0, err
	}
	return b[0], nil
}

func (r *Reader) GetUint32At(off int64) (uint32, error) {
	b, err := r.bytesAt(off, 4)
	if err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint32(b), nil
}

func (r *Reader) GetInt32At(off int64) (int32, error) {
	v, err := r.GetUint32At(off)
	return int32(v), err
}

func (r *Reader) GetUint64At(off int64) (uint64, error) {
	b, err := r.bytesAt(off, 8)
	if err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint64(b), nil
}

func (r *Reader) GetInt64At(off int64) (int64, error) {
	v, err := r.GetUint64At(off)
	return int64(v), err
}

func (r *Reader) GetFloat64At(off int64) (float64, error) {
	v, err := r.GetUint64At(off)
	return math.Float64frombits(v), err
}

// GetBytesAt reads a varint length prefix at off, returning the bytes
// that follow and the offset immediately after them.
func (r *Reader) GetBytesAt(off int64) ([]byte, int64, error) {
	n, next, err := r.getVarintAt(off)
	if err != nil {
		return nil, 0, err
	}
	if n == 0 {
		return nil, next, nil
	}
	b, err := r.bytesAt(next, int(n))
	if err != nil {
		return nil, 0, err
	}
	return b, next + int64(n), nil
}

func (r *Reader) getVarintAt(off int64) (uint64, int64, error) {
	var x uint64
	var s uint
	pos := off
	for {
		b, err := r.GetUint8At(pos)
		if err != nil {
			return 0, 0, err
		}
		pos++
		if b < 0x80 {
			return x | uint64(b)<<s, pos, nil
		}
		x |= uint64(b&0x7f) << s
		s += 7
	}
}

func (r *Reader) bytesAt(off int64, n int) ([]byte, error) {
	if r.mapped != nil {
		if off < 0 || off+int64(n) > int64(len(r.mapped)) {
			return nil, io.ErrUnexpectedEOF
		}
		return r.mapped[off : off+int64(n)], nil
	}
	return r.readAt(n, off)
}

// Typed I/O round-trip tests.
//
// Every typed write method has a symmetric read; the tests drive both
// through a RAM storage file so the positional getters exercise the
// same Map() path the on-disk readers use.
package structio

import (
	"math"
	"testing"

	"github.com/jpl-au/loom/storage"
)

// writeThenOpen runs build against a fresh Writer, commits the file,
// and reopens it for reading.
func writeThenOpen(t *testing.T, build func(*Writer)) *Reader {
	t.Helper()
	st := storage.NewRAM()
	wc, err := st.CreateFile("t.bin")
	if err != nil {
		t.Fatal(err)
	}
	w := NewWriter(wc)
	build(w)
	if err := wc.Close(); err != nil {
		t.Fatal(err)
	}
	f, err := st.OpenFile("t.bin", true)
	if err != nil {
		t.Fatal(err)
	}
	return NewReader(f)
}

func TestFixedWidthRoundTrip(t *testing.T) {
	r := writeThenOpen(t, func(w *Writer) {
		w.WriteUint8(200)
		w.WriteInt8(-100)
		w.WriteUint16(60000)
		w.WriteInt16(-30000)
		w.WriteUint32(4000000000)
		w.WriteInt32(-12345)
		w.WriteUint64(1 << 60)
		w.WriteInt64(-(1 << 60))
		w.WriteFloat32(1.5)
		w.WriteFloat64(math.Pi)
	})

	if v, _ := r.ReadUint8(); v != 200 {
		t.Errorf("uint8 = %d", v)
	}
	if v, _ := r.ReadInt8(); v != -100 {
		t.Errorf("int8 = %d", v)
	}
	if v, _ := r.ReadUint16(); v != 60000 {
		t.Errorf("uint16 = %d", v)
	}
	if v, _ := r.ReadInt16(); v != -30000 {
		t.Errorf("int16 = %d", v)
	}
	if v, _ := r.ReadUint32(); v != 4000000000 {
		t.Errorf("uint32 = %d", v)
	}
	if v, _ := r.ReadInt32(); v != -12345 {
		t.Errorf("int32 = %d", v)
	}
	if v, _ := r.ReadUint64(); v != 1<<60 {
		t.Errorf("uint64 = %d", v)
	}
	if v, _ := r.ReadInt64(); v != -(1 << 60) {
		t.Errorf("int64 = %d", v)
	}
	if v, _ := r.ReadFloat32(); v != 1.5 {
		t.Errorf("float32 = %v", v)
	}
	if v, _ := r.ReadFloat64(); v != math.Pi {
		t.Errorf("float64 = %v", v)
	}
}

func TestVarintRoundTrip(t *testing.T) {
	values := []uint64{0, 1, 127, 128, 300, 1 << 20, 1 << 50}
	signed := []int64{0, -1, 1, -64, 64, -(1 << 40), 1 << 40}
	r := writeThenOpen(t, func(w *Writer) {
		for _, v := range values {
			w.WriteVarint(v)
		}
		for _, v := range signed {
			w.WriteSVarint(v)
		}
	})
	for _, want := range values {
		got, err := r.ReadVarint()
		if err != nil || got != want {
			t.Errorf("varint = %d (%v), want %d", got, err, want)
		}
	}
	for _, want := range signed {
		got, err := r.ReadSVarint()
		if err != nil || got != want {
			t.Errorf("svarint = %d (%v), want %d", got, err, want)
		}
	}
}

func TestBytesAndStrings(t *testing.T) {
	r := writeThenOpen(t, func(w *Writer) {
		w.WriteBytes([]byte("hello"))
		w.WriteBytes(nil)
		w.WriteString("wörld")
	})
	b, err := r.ReadBytes()
	if err != nil || string(b) != "hello" {
		t.Errorf("bytes = %q (%v)", b, err)
	}
	b, err = r.ReadBytes()
	if err != nil || len(b) != 0 {
		t.Errorf("empty bytes = %q (%v)", b, err)
	}
	s, err := r.ReadString()
	if err != nil || s != "wörld" {
		t.Errorf("string = %q (%v)", s, err)
	}
}

func TestArrayRoundTrip(t *testing.T) {
	src := []uint32{5, 10, 15, 20}
	r := writeThenOpen(t, func(w *Writer) {
		w.WriteArray(len(src), func(i int) error { return w.WriteUint32(src[i]) })
	})
	var got []uint32
	n, err := r.ReadArray(func(i int) error {
		v, err := r.ReadUint32()
		got = append(got, v)
		return err
	})
	if err != nil || n != len(src) {
		t.Fatalf("ReadArray n=%d err=%v", n, err)
	}
	for i := range src {
		if got[i] != src[i] {
			t.Errorf("array[%d] = %d, want %d", i, got[i], src[i])
		}
	}
}

func TestObjectRoundTrip(t *testing.T) {
	src := map[string]any{"title": "doc", "rank": float64(3)}
	r := writeThenOpen(t, func(w *Writer) {
		w.WriteObject(src)
	})
	got := make(map[string]any)
	if err := r.ReadObject(&got); err != nil {
		t.Fatal(err)
	}
	if got["title"] != "doc" || got["rank"] != float64(3) {
		t.Errorf("object = %v", got)
	}
}

func TestCompressedObjectRoundTrip(t *testing.T) {
	src := map[string]any{"body": "the quick brown fox jumps over the lazy dog", "n": float64(7)}
	r := writeThenOpen(t, func(w *Writer) {
		w.WriteCompressedObject(src)
		w.WriteString("after")
	})
	got := make(map[string]any)
	if err := r.ReadCompressedObject(&got); err != nil {
		t.Fatal(err)
	}
	if got["body"] != src["body"] || got["n"] != float64(7) {
		t.Errorf("compressed object = %v", got)
	}
	// The slot is length-prefixed, so the stream stays aligned.
	if s, err := r.ReadString(); err != nil || s != "after" {
		t.Errorf("post-object string = %q (%v)", s, err)
	}
}

func TestPositionalGetters(t *testing.T) {
	r := writeThenOpen(t, func(w *Writer) {
		w.WriteUint32(0xAABBCCDD)
		w.WriteFloat64(2.5)
		w.WriteInt64(-99)
	})
	if v, err := r.GetUint32At(0); err != nil || v != 0xAABBCCDD {
		t.Errorf("GetUint32At(0) = %x (%v)", v, err)
	}
	if v, err := r.GetFloat64At(4); err != nil || v != 2.5 {
		t.Errorf("GetFloat64At(4) = %v (%v)", v, err)
	}
	if v, err := r.GetInt64At(12); err != nil || v != -99 {
		t.Errorf("GetInt64At(12) = %v (%v)", v, err)
	}
	// Positional getters never move the sequential cursor.
	if r.Pos() != 0 {
		t.Errorf("positional getter moved cursor to %d", r.Pos())
	}
}

func TestOffsetTracksBytesWritten(t *testing.T) {
	st := storage.NewRAM()
	wc, _ := st.CreateFile("o.bin")
	w := NewWriter(wc)
	w.WriteUint32(1)
	if w.Offset() != 4 {
		t.Errorf("offset after uint32 = %d, want 4", w.Offset())
	}
	w.WriteBytes([]byte("abc"))
	// varint length (1 byte) + 3 payload bytes
	if w.Offset() != 8 {
		t.Errorf("offset after bytes = %d, want 8", w.Offset())
	}
}

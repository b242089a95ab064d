package segment

import (
	"errors"
	"testing"

	"github.com/jpl-au/loom/errs"
)

func TestNamesAreDeterministic(t *testing.T) {
	s := New("idx", 7)
	if s.Name() != "_idx_7" {
		t.Errorf("Name = %q, want _idx_7", s.Name())
	}
	if got := s.FileName(ExtTermsIndex); got != "_idx_7.trm" {
		t.Errorf("FileName = %q, want _idx_7.trm", got)
	}
	if got := len(s.FileNames()); got != 6 {
		t.Errorf("FileNames count = %d, want 6", got)
	}
}

func TestDeleteAndUndelete(t *testing.T) {
	s := New("idx", 1)
	s.DocCountAll = 5

	if err := s.DeleteDocument(2, true); err != nil {
		t.Fatal(err)
	}
	if !s.IsDeleted(2) || s.DocCount() != 4 || !s.HasDeletions() {
		t.Errorf("after delete: deleted=%v count=%d", s.IsDeleted(2), s.DocCount())
	}

	// Redeletion is an error.
	if err := s.DeleteDocument(2, true); !errors.Is(err, errs.ErrRedeletion) {
		t.Errorf("redeletion = %v, want ErrRedeletion", err)
	}

	// Undelete removes membership; undeleting a never-deleted doc errors.
	if err := s.DeleteDocument(2, false); err != nil {
		t.Fatal(err)
	}
	if s.IsDeleted(2) || s.DeletedCount() != 0 {
		t.Error("undelete did not remove membership")
	}
	if err := s.DeleteDocument(3, false); !errors.Is(err, errs.ErrUnknownUndelete) {
		t.Errorf("unknown undelete = %v, want ErrUnknownUndelete", err)
	}
}

func TestDeleteOutOfRange(t *testing.T) {
	s := New("idx", 1)
	s.DocCountAll = 3
	for _, d := range []int{-1, 3, 99} {
		if err := s.DeleteDocument(d, true); !errors.Is(err, errs.ErrDocOutOfRange) {
			t.Errorf("delete %d = %v, want ErrDocOutOfRange", d, err)
		}
	}
}

func TestCloneDeletedIsIndependent(t *testing.T) {
	s := New("idx", 1)
	s.DocCountAll = 4
	s.DeleteDocument(1, true)

	clone := s.CloneDeleted()
	s.DeleteDocument(2, true)
	if _, leaked := clone[2]; leaked {
		t.Error("later deletion visible through clone")
	}
}

func makeSet(counts ...int) *Set {
	segs := make([]*Segment, len(counts))
	for i, n := range counts {
		segs[i] = New("idx", i+1)
		segs[i].DocCountAll = n
	}
	return NewSet(segs)
}

func TestSetLocate(t *testing.T) {
	set := makeSet(3, 4, 2) // offsets 0, 3, 7; total 9
	cases := []struct {
		global int64
		segIdx int
		local  int
	}{
		{0, 0, 0},
		{2, 0, 2},
		{3, 1, 0},
		{6, 1, 3},
		{7, 2, 0},
		{8, 2, 1},
	}
	for _, tc := range cases {
		segIdx, local, ok := set.Locate(tc.global)
		if !ok || segIdx != tc.segIdx || local != tc.local {
			t.Errorf("Locate(%d) = (%d, %d, %v), want (%d, %d, true)",
				tc.global, segIdx, local, ok, tc.segIdx, tc.local)
		}
	}
	if _, _, ok := set.Locate(9); ok {
		t.Error("Locate past end succeeded")
	}
	if _, _, ok := set.Locate(-1); ok {
		t.Error("Locate(-1) succeeded")
	}
}

func TestSetGlobalDocnumInvertsLocate(t *testing.T) {
	set := makeSet(3, 4, 2)
	for g := int64(0); g < 9; g++ {
		segIdx, local, ok := set.Locate(g)
		if !ok {
			t.Fatalf("Locate(%d) failed", g)
		}
		if back := set.GlobalDocnum(segIdx, local); back != g {
			t.Errorf("GlobalDocnum(Locate(%d)) = %d", g, back)
		}
	}
}

func TestSetCountsAndLengths(t *testing.T) {
	set := makeSet(3, 4)
	set.Segments()[0].FieldLengthTotals["body"] = 10
	set.Segments()[1].FieldLengthTotals["body"] = 5
	set.Segments()[1].Deleted = map[int]struct{}{0: {}}

	if got := set.DocCountAll(); got != 7 {
		t.Errorf("DocCountAll = %d, want 7", got)
	}
	if got := set.DocCount(); got != 6 {
		t.Errorf("DocCount = %d, want 6", got)
	}
	if got := set.FieldLength("body"); got != 15 {
		t.Errorf("FieldLength = %d, want 15", got)
	}
}

func TestSetAppendRebuildsOffsets(t *testing.T) {
	set := makeSet(3)
	extra := New("idx", 9)
	extra.DocCountAll = 5
	set.Append(extra)
	segIdx, local, ok := set.Locate(6)
	if !ok || segIdx != 1 || local != 3 {
		t.Errorf("Locate(6) after append = (%d, %d, %v)", segIdx, local, ok)
	}
}

func TestSetRemove(t *testing.T) {
	set := makeSet(3, 4, 2)
	set.Remove("_idx_2")
	if set.Len() != 2 {
		t.Fatalf("Len = %d after remove", set.Len())
	}
	if got := set.DocCountAll(); got != 5 {
		t.Errorf("DocCountAll = %d, want 5", got)
	}
}

package bufstore

import (
	"bytes"
	"testing"
)

func TestAddReleaseBalanced(t *testing.T) {
	s := New(nil)
	orig := []byte{1, 2, 3, 4}
	const extra = 3
	if !s.Add(7, orig) {
		t.Fatalf("add failed")
	}
	for i := 0; i < extra; i++ {
		if !s.Add(7, []byte{9}) {
			t.Fatalf("re-add %d failed", i)
		}
	}
	if got := s.Count(7); got != extra+1 {
		t.Fatalf("count = %d, want %d", got, extra+1)
	}
	for i := 0; i < extra; i++ {
		s.Release(7)
		if got := s.Get(7); !bytes.Equal(got, orig) {
			t.Fatalf("after %d releases data = %v, want %v", i+1, got, orig)
		}
	}
	s.Release(7)
	if s.Has(7) || s.Get(7) != nil {
		t.Fatalf("entry should be gone after balanced release")
	}
	if s.Len() != 0 {
		t.Fatalf("store should be empty, len=%d", s.Len())
	}
}

func TestAddCopiesInput(t *testing.T) {
	s := New(nil)
	data := []byte{1, 2, 3}
	s.Add(1, data)
	data[0] = 42
	if got := s.Get(1)[0]; got != 1 {
		t.Fatalf("stored data aliased caller slice, got %d", got)
	}
}

func TestAddRejectsEmpty(t *testing.T) {
	s := New(nil)
	if s.Add(1, nil) {
		t.Fatalf("nil data should be rejected")
	}
	if s.Adopt(1, []byte{}) {
		t.Fatalf("empty data should be rejected")
	}
	if s.Has(1) {
		t.Fatalf("rejected add must not create an entry")
	}
}

func TestReleaseUnknownKeyIsNoop(t *testing.T) {
	s := New(nil)
	s.Add(1, []byte{1})
	s.Release(99)
	if s.Count(1) != 1 {
		t.Fatalf("unrelated entry changed")
	}
}

func TestNextKeySkipsUsedKeys(t *testing.T) {
	s := New(nil)
	s.Add(1, []byte{1})
	s.Add(2, []byte{1})
	if k := s.NextKey(); k != 3 {
		t.Fatalf("next key = %d, want 3", k)
	}
	if k := s.NextKey(); k != 4 {
		t.Fatalf("next key = %d, want 4", k)
	}
}

func TestRetainOnlyExistingKeys(t *testing.T) {
	s := New(nil)
	if s.Retain(3) {
		t.Fatalf("retain of unknown key succeeded")
	}
	s.Add(3, []byte{1})
	if !s.Retain(3) || s.Count(3) != 2 {
		t.Fatalf("count after retain = %d, want 2", s.Count(3))
	}
	s.Release(3)
	s.Release(3)
	if s.Has(3) {
		t.Fatalf("entry should be gone after releasing both references")
	}
}

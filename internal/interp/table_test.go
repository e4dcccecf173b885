package interp

import (
	"testing"

	"luavm/internal/heap"
)

func TestTableFloatKeyNormalizesToInteger(t *testing.T) {
	h := heap.New()
	tbl := NewTable(h)
	tbl.Set(h, Float(1.0), Int(42))
	if got := tbl.Get(Int(1)); got.AsInt() != 42 {
		t.Fatalf("Get(Int(1)) after Set(Float(1.0)) = %v, want 42", got)
	}
}

func TestTableRejectsNilAndNaNKeys(t *testing.T) {
	h := heap.New()
	tbl := NewTable(h)
	if invalid := tbl.Set(h, Nil, Int(1)); !invalid {
		t.Fatalf("nil key must be rejected")
	}
	nan := Float(0)
	nan = Float(nan.AsFloat() / nan.AsFloat()) // 0/0 = NaN without importing math twice
	if invalid := tbl.Set(h, nan, Int(1)); !invalid {
		t.Fatalf("NaN key must be rejected")
	}
}

func TestTableArrayPartGrowsContiguously(t *testing.T) {
	h := heap.New()
	tbl := NewTable(h)
	tbl.Set(h, Int(1), Int(10))
	tbl.Set(h, Int(2), Int(20))
	tbl.Set(h, Int(3), Int(30))
	if tbl.Len() != 3 {
		t.Fatalf("Len() = %d, want 3", tbl.Len())
	}
	if tbl.Get(Int(2)).AsInt() != 20 {
		t.Fatalf("Get(2) wrong")
	}
}

func TestTableHashEntryMigratesIntoArrayOnContiguity(t *testing.T) {
	h := heap.New()
	tbl := NewTable(h)
	tbl.Set(h, Int(1), Int(10))
	// key 2 is set before key... actually insert out of order into the hash
	// part first, then make it contiguous.
	tbl.Set(h, Int(3), Int(30)) // goes to hash, array has only slot 1
	tbl.Set(h, Int(2), Int(20)) // now 1,2 are contiguous; 3 should migrate in
	if tbl.Len() != 3 {
		t.Fatalf("Len() = %d, want 3 once the hash entry migrates into the array", tbl.Len())
	}
	if tbl.Get(Int(3)).AsInt() != 30 {
		t.Fatalf("Get(3) after migration = %v, want 30", tbl.Get(Int(3)))
	}
}

func TestTableSetNilRemovesEntry(t *testing.T) {
	h := heap.New()
	tbl := NewTable(h)
	s := NewStrings(h)
	k := s.Intern("name")
	tbl.Set(h, k, Int(1))
	tbl.Set(h, k, Nil)
	if got := tbl.Get(k); !got.IsNil() {
		t.Fatalf("setting a key to nil should remove it, got %v", got)
	}
}

package interp

import "luavm/internal/heap"

// StringObj is an immutable byte string. Lua strings are not guaranteed to
// be UTF-8; Value is stored as a Go string purely as a byte container.
type StringObj struct {
	heap.Object
	Value string
	hash  uint64
}

func (s *StringObj) Header() *heap.Object { return &s.Object }

// Trace is a no-op: strings hold no managed references.
func (s *StringObj) Trace(t *heap.Tracer) {}

func hashBytes(s string) uint64 {
	h := uint64(14695981039346656037)
	for i := 0; i < len(s); i++ {
		h ^= uint64(s[i])
		h *= 1099511628211
	}
	return h
}

// Strings is a canonicalising intern store. Interning is permitted but not
// required by the spec; canonicalising keeps table hash-part lookups by
// string key cheap (pointer compare after interning) and keeps identical
// source-level string constants from being re-allocated on every load.
type Strings struct {
	h     *heap.Heap
	table map[string]*StringObj
}

func NewStrings(h *heap.Heap) *Strings {
	return &Strings{h: h, table: make(map[string]*StringObj)}
}

// Intern returns the canonical Value for the given bytes, allocating a new
// StringObj on first sight.
func (s *Strings) Intern(bytes string) Value {
	if existing, ok := s.table[bytes]; ok {
		return fromString(existing)
	}
	obj := heap.Register(s.h, &StringObj{Object: heap.Tag("string"), Value: bytes, hash: hashBytes(bytes)})
	s.table[bytes] = obj
	return fromString(obj)
}

// CompareStrings implements byte-lexicographic ordering.
func CompareStrings(a, b *StringObj) int {
	switch {
	case a.Value < b.Value:
		return -1
	case a.Value > b.Value:
		return 1
	default:
		return 0
	}
}

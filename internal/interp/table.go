package interp

import (
	"math"

	"luavm/internal/heap"
)

// Table is the array+hash hybrid associative container. Positive integer
// keys starting at 1 live in the array part; everything else lives in the
// hash part. An optional metatable reference is tracked alongside.
type Table struct {
	heap.Object
	array []Value // array[0] corresponds to key 1
	hash  map[Value]Value
	meta  *Table
}

func NewTable(h *heap.Heap) *Table {
	return heap.Register(h, &Table{Object: heap.Tag("table")})
}

func (t *Table) Header() *heap.Object { return &t.Object }

func (t *Table) Trace(tr *heap.Tracer) {
	for _, v := range t.array {
		if ref := v.heapRef(); ref != nil {
			tr.Mark(ref)
		}
	}
	for k, v := range t.hash {
		if ref := k.heapRef(); ref != nil {
			tr.Mark(ref)
		}
		if ref := v.heapRef(); ref != nil {
			tr.Mark(ref)
		}
	}
	if t.meta != nil {
		tr.Mark(t.meta)
	}
}

// normalizeKey folds an integer-valued float key to the equivalent Integer
// key, per the data model's key normalisation rule.
func normalizeKey(k Value) (Value, bool) {
	switch k.kind {
	case KNil:
		return k, false
	case KFloat:
		f := k.AsFloat()
		if math.IsNaN(f) {
			return k, false
		}
		if f == math.Trunc(f) && f >= math.MinInt64 && f < math.MaxInt64 {
			return Int(int64(f)), true
		}
		return k, true
	default:
		return k, true
	}
}

// arrayIndex reports whether key is a positive integer usable as an array
// index, along with its zero-based slot.
func arrayIndex(key Value) (int, bool) {
	if key.kind != KInt {
		return 0, false
	}
	i := key.AsInt()
	if i < 1 {
		return 0, false
	}
	return int(i - 1), true
}

// Get looks up key, returning Nil if absent. NaN and nil keys never match
// anything (they cannot be stored).
func (t *Table) Get(key Value) Value {
	key, ok := normalizeKey(key)
	if !ok {
		return Nil
	}
	if idx, isArr := arrayIndex(key); isArr {
		if idx < len(t.array) {
			return t.array[idx]
		}
		return Nil
	}
	if t.hash == nil {
		return Nil
	}
	return t.hash[key]
}

// Set stores value at key, heap write-barriering the new reference and
// removing the entry entirely when value is Nil. Set stores nothing and
// returns invalidKey=true for an invalid key (nil or NaN) so the caller can
// raise the appropriate error.
func (t *Table) Set(h *heap.Heap, key, value Value) (invalidKey bool) {
	key, ok := normalizeKey(key)
	if !ok {
		return true
	}
	if idx, isArr := arrayIndex(key); isArr {
		t.setArray(idx, value)
	} else {
		t.setHash(key, value)
	}
	if ref := value.heapRef(); ref != nil {
		h.WriteBarrier(ref)
	}
	if ref := key.heapRef(); ref != nil {
		h.WriteBarrier(ref)
	}
	return false
}

func (t *Table) setArray(idx int, value Value) {
	switch {
	case idx < len(t.array):
		t.array[idx] = value
		if value.IsNil() && idx == len(t.array)-1 {
			t.array = t.array[:idx]
		}
	case idx == len(t.array) && !value.IsNil():
		t.array = append(t.array, value)
		// Migrate any hash-part entries that now extend the array
		// contiguously, matching how Lua grows the array part.
		for {
			next := Int(int64(len(t.array) + 1))
			v, found := t.hash[next]
			if !found {
				break
			}
			delete(t.hash, next)
			t.array = append(t.array, v)
		}
	case !value.IsNil():
		t.setHash(Int(int64(idx+1)), value)
	}
}

func (t *Table) setHash(key, value Value) {
	if value.IsNil() {
		if t.hash != nil {
			delete(t.hash, key)
		}
		return
	}
	if t.hash == nil {
		t.hash = make(map[Value]Value)
	}
	t.hash[key] = value
}

// Len returns the array part's length (a Lua table's "border").
func (t *Table) Len() int { return len(t.array) }

// SetMeta installs (or clears, with nil) the table's metatable.
func (t *Table) SetMeta(h *heap.Heap, mt *Table) {
	t.meta = mt
	if mt != nil {
		h.WriteBarrier(mt)
	}
}

func (t *Table) Meta() *Table { return t.meta }

// Keys returns a snapshot of every live key (array indices as Integer
// values followed by hash-part keys), used by native iteration helpers.
func (t *Table) Keys() []Value {
	keys := make([]Value, 0, len(t.array)+len(t.hash))
	for i := range t.array {
		if !t.array[i].IsNil() {
			keys = append(keys, Int(int64(i+1)))
		}
	}
	for k := range t.hash {
		keys = append(keys, k)
	}
	return keys
}

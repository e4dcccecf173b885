// Package interp implements the register-based bytecode interpreter: the
// typed value union, the table and closure object model, the 32-bit
// instruction encoding, and the per-frame dispatch loop. It is the
// register-VM half of the runtime; internal/heap supplies the tracing
// collector it cooperates with at every safepoint.
package interp

import (
	"fmt"
	"math"

	"luavm/internal/heap"
)

// Kind tags the variant a Value currently holds.
type Kind uint8

const (
	KNil Kind = iota
	KBool
	KInt
	KFloat
	KString
	KTable
	KLuaClosure
	KNativeClosure
)

func (k Kind) String() string {
	switch k {
	case KNil:
		return "nil"
	case KBool:
		return "boolean"
	case KInt:
		return "number"
	case KFloat:
		return "number"
	case KString:
		return "string"
	case KTable:
		return "table"
	case KLuaClosure, KNativeClosure:
		return "function"
	default:
		return "unknown"
	}
}

// Value is the tagged union described by the data model: Nil, Boolean,
// Integer, Number, String, Table, LuaClosure and NativeClosure. Primitive
// variants live directly in n; the four heap-allocated variants carry a
// Traceable reference the GC can follow. Value is comparable, so it can be
// used directly as a Go map key for the table's hash part.
type Value struct {
	kind Kind
	n    uint64
	obj  heap.Traceable
}

// Nil is the canonical nil value.
var Nil = Value{kind: KNil}

func Bool(b bool) Value {
	var n uint64
	if b {
		n = 1
	}
	return Value{kind: KBool, n: n}
}

func Int(i int64) Value { return Value{kind: KInt, n: uint64(i)} }

func Float(f float64) Value { return Value{kind: KFloat, n: math.Float64bits(f)} }

func fromString(s *StringObj) Value   { return Value{kind: KString, obj: s} }
func fromTable(t *Table) Value        { return Value{kind: KTable, obj: t} }
func fromLuaClosure(c *LuaClosure) Value     { return Value{kind: KLuaClosure, obj: c} }
func fromNativeClosure(c *NativeClosure) Value { return Value{kind: KNativeClosure, obj: c} }

// TableValue wraps an existing *Table as a Value, for host code (stdlib,
// driver) that already holds a table reference obtained via AsTable/Meta
// and needs to hand it back as a Value.
func TableValue(t *Table) Value { return fromTable(t) }

func (v Value) Kind() Kind { return v.kind }

func (v Value) IsNil() bool    { return v.kind == KNil }
func (v Value) IsBool() bool   { return v.kind == KBool }
func (v Value) IsInt() bool    { return v.kind == KInt }
func (v Value) IsFloat() bool  { return v.kind == KFloat }
func (v Value) IsNumber() bool { return v.kind == KInt || v.kind == KFloat }
func (v Value) IsString() bool { return v.kind == KString }
func (v Value) IsTable() bool  { return v.kind == KTable }
func (v Value) IsLuaClosure() bool    { return v.kind == KLuaClosure }
func (v Value) IsNativeClosure() bool { return v.kind == KNativeClosure }
func (v Value) IsCallable() bool      { return v.kind == KLuaClosure || v.kind == KNativeClosure }

func (v Value) AsBool() bool     { return v.n != 0 }
func (v Value) AsInt() int64     { return int64(v.n) }
func (v Value) AsFloat() float64 { return math.Float64frombits(v.n) }
func (v Value) AsString() *StringObj       { return v.obj.(*StringObj) }
func (v Value) AsTable() *Table            { return v.obj.(*Table) }
func (v Value) AsLuaClosure() *LuaClosure  { return v.obj.(*LuaClosure) }
func (v Value) AsNativeClosure() *NativeClosure { return v.obj.(*NativeClosure) }

// heapRef returns the Traceable backing a heap-allocated Value, or nil for
// primitive variants. Used by the dispatch loop's GC root enumeration.
func (v Value) heapRef() heap.Traceable { return v.obj }

// Truthy reports whether v is truthy. Nil and false are the only falsy
// values; everything else, including 0 and the empty string, is truthy.
func Truthy(v Value) bool {
	switch v.kind {
	case KNil:
		return false
	case KBool:
		return v.AsBool()
	default:
		return true
	}
}

// Equals implements the per-variant equality rule, including the numeric
// cross-rule: Integer(i) == Number(n) iff n is finite and equals i exactly.
func Equals(a, b Value) bool {
	if a.kind == b.kind {
		switch a.kind {
		case KNil:
			return true
		case KBool:
			return a.n == b.n
		case KInt:
			return a.AsInt() == b.AsInt()
		case KFloat:
			return a.AsFloat() == b.AsFloat()
		case KString:
			return a.AsString().Value == b.AsString().Value
		default:
			return a.obj == b.obj
		}
	}
	if a.kind == KInt && b.kind == KFloat {
		return intEqualsFloat(a.AsInt(), b.AsFloat())
	}
	if a.kind == KFloat && b.kind == KInt {
		return intEqualsFloat(b.AsInt(), a.AsFloat())
	}
	return false
}

func intEqualsFloat(i int64, f float64) bool {
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return false
	}
	return f == math.Trunc(f) && float64(i) == f
}

// TypeName returns the Lua-visible type name of v, as surfaced by type().
func TypeName(v Value) string { return v.kind.String() }

// ToDisplayString renders v the way print() and string concatenation do.
func ToDisplayString(v Value) string {
	switch v.kind {
	case KNil:
		return "nil"
	case KBool:
		if v.AsBool() {
			return "true"
		}
		return "false"
	case KInt:
		return fmt.Sprintf("%d", v.AsInt())
	case KFloat:
		f := v.AsFloat()
		if math.IsInf(f, 1) {
			return "inf"
		}
		if math.IsInf(f, -1) {
			return "-inf"
		}
		if math.IsNaN(f) {
			return "nan"
		}
		return fmt.Sprintf("%g", f)
	case KString:
		return v.AsString().Value
	case KTable:
		return fmt.Sprintf("table: %p", v.obj)
	case KLuaClosure, KNativeClosure:
		return fmt.Sprintf("function: %p", v.obj)
	default:
		return "?"
	}
}

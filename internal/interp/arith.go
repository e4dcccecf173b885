package interp

import "math"

// ToIntegerNoStringCoercion succeeds on Integer directly, and on Number
// iff it has no fractional part and fits in a signed 64-bit integer.
// String coercion (the "without_string_coercion" name implies a sibling
// that would also accept numeric strings) is not offered: the core never
// parses strings as numbers, that belongs to the stdlib layer.
func ToIntegerNoStringCoercion(v Value) (int64, bool) {
	switch v.kind {
	case KInt:
		return v.AsInt(), true
	case KFloat:
		f := v.AsFloat()
		if f != math.Trunc(f) || math.IsNaN(f) || math.IsInf(f, 0) {
			return 0, false
		}
		if f < math.MinInt64 || f >= math.MaxInt64 { // float64(MaxInt64) is 2^63, one past the range
			return 0, false
		}
		return int64(f), true
	default:
		return 0, false
	}
}

// ToNumberNoStringCoercion succeeds on Integer (exact widening) and Number.
func ToNumberNoStringCoercion(v Value) (float64, bool) {
	switch v.kind {
	case KInt:
		return float64(v.AsInt()), true
	case KFloat:
		return v.AsFloat(), true
	default:
		return 0, false
	}
}

// ArithOp identifies a binary arithmetic opcode's operation for selection.
type ArithOp int

const (
	OpArithAdd ArithOp = iota
	OpArithSub
	OpArithMul
	OpArithMod
	OpArithIDiv
	OpArithDiv  // always float
	OpArithPow  // always float
	OpArithBAnd
	OpArithBOr
	OpArithBXor
	OpArithShl
	OpArithShr
)

// Arith selects and performs the arithmetic op per the rules in the spec:
// integer op if both operands are Integer, float op if both coerce to
// Number, else a soft failure (ok=false, no result produced). Division
// and exponentiation always go through the float path even for two
// integers. raised, if non-nil, carries the reason a hard error (integer
// divide by zero) must be raised instead of failing soft.
func Arith(op ArithOp, a, b Value) (result Value, ok bool, raised error) {
	switch op {
	case OpArithBAnd, OpArithBOr, OpArithBXor, OpArithShl, OpArithShr:
		ai, aok := ToIntegerNoStringCoercion(a)
		bi, bok := ToIntegerNoStringCoercion(b)
		if !aok || !bok {
			return Nil, false, nil
		}
		switch op {
		case OpArithBAnd:
			return Int(ai & bi), true, nil
		case OpArithBOr:
			return Int(ai | bi), true, nil
		case OpArithBXor:
			return Int(ai ^ bi), true, nil
		case OpArithShl:
			return Int(ShiftLeft(ai, bi)), true, nil
		case OpArithShr:
			return Int(ShiftLeft(ai, -bi)), true, nil
		}
	case OpArithDiv:
		af, aok := ToNumberNoStringCoercion(a)
		bf, bok := ToNumberNoStringCoercion(b)
		if !aok || !bok {
			return Nil, false, nil
		}
		return Float(af / bf), true, nil
	case OpArithPow:
		af, aok := ToNumberNoStringCoercion(a)
		bf, bok := ToNumberNoStringCoercion(b)
		if !aok || !bok {
			return Nil, false, nil
		}
		return Float(math.Pow(af, bf)), true, nil
	default:
		if a.kind == KInt && b.kind == KInt {
			ai, bi := a.AsInt(), b.AsInt()
			switch op {
			case OpArithAdd:
				return Int(ai + bi), true, nil // wrapping
			case OpArithSub:
				return Int(ai - bi), true, nil // wrapping
			case OpArithMul:
				return Int(ai * bi), true, nil // wrapping
			case OpArithMod:
				q, err := IMod(ai, bi)
				if err != nil {
					return Nil, true, err
				}
				return Int(q), true, nil
			case OpArithIDiv:
				q, err := IDiv(ai, bi)
				if err != nil {
					return Nil, true, err
				}
				return Int(q), true, nil
			}
		}
		af, aok := ToNumberNoStringCoercion(a)
		bf, bok := ToNumberNoStringCoercion(b)
		if !aok || !bok {
			return Nil, false, nil
		}
		switch op {
		case OpArithAdd:
			return Float(af + bf), true, nil
		case OpArithSub:
			return Float(af - bf), true, nil
		case OpArithMul:
			return Float(af * bf), true, nil
		case OpArithMod:
			return Float(af - math.Floor(af/bf)*bf), true, nil
		case OpArithIDiv:
			return Float(math.Floor(af / bf)), true, nil
		}
	}
	return Nil, false, nil
}

// DivideByZero is returned by IDiv/IMod when the divisor is zero.
var DivideByZero = errDivideByZero{}

type errDivideByZero struct{}

func (errDivideByZero) Error() string { return "attempt to perform 'n//0'" }

// IDiv computes floored integer division: truncated a/b, decremented by
// one when the signs of a and b differ and the truncated division left a
// remainder. Divisor 0 raises; divisor -1 returns the wrapping negation of
// a (so math.MinInt64 / -1 == math.MinInt64, not a panic).
func IDiv(a, b int64) (int64, error) {
	if b == 0 {
		return 0, DivideByZero
	}
	if b == -1 {
		return int64(uint64(-a)), nil // wrapping negate
	}
	q := a / b
	if (a%b != 0) && ((a < 0) != (b < 0)) {
		q--
	}
	return q, nil
}

// IMod computes truncated remainder adjusted toward the sign of b, so the
// result is always in [0, b) or (b, 0]. Divisor 0 raises; divisor -1
// always returns 0.
func IMod(a, b int64) (int64, error) {
	if b == 0 {
		return 0, DivideByZero
	}
	if b == -1 {
		return 0, nil
	}
	r := a % b
	if r != 0 && (r < 0) != (b < 0) {
		r += b
	}
	return r, nil
}

// ShiftLeft implements the signed shift rule shared by SHL/SHR: a negative
// y shifts right by -y, |y| >= 64 always yields 0.
func ShiftLeft(x, y int64) int64 {
	if y <= -64 || y >= 64 {
		return 0
	}
	if y >= 0 {
		return int64(uint64(x) << uint(y))
	}
	return int64(uint64(x) >> uint(-y))
}

// Compare is the result of an ordered comparison: a three-way ordering,
// plus two distinct "not less/greater/equal" outcomes. CmpNaN means the
// operands were comparable numbers but at least one was NaN — lt/le must
// quietly evaluate false, never raise. CmpUndefined means the operands
// were never comparable at all (mismatched types) — lt/le must raise.
type Compare int

const (
	CmpLess Compare = iota - 1
	CmpEqual
	CmpGreater
	CmpNaN
	CmpUndefined
)

// OrderedCompare implements the lt/le rules: same-type numeric compares
// directly, string compares by byte order, mixed Integer/Number compares
// by converting the float to a representable integer bound (or, failing
// that, comparing its sign against zero relative to the integer), and any
// other combination is undefined (the caller reports a type error).
func OrderedCompare(a, b Value) Compare {
	switch {
	case a.kind == KInt && b.kind == KInt:
		return cmpInt(a.AsInt(), b.AsInt())
	case a.kind == KFloat && b.kind == KFloat:
		return cmpFloat(a.AsFloat(), b.AsFloat())
	case a.kind == KInt && b.kind == KFloat:
		return cmpIntFloat(a.AsInt(), b.AsFloat())
	case a.kind == KFloat && b.kind == KInt:
		switch cmpIntFloat(b.AsInt(), a.AsFloat()) {
		case CmpLess:
			return CmpGreater
		case CmpGreater:
			return CmpLess
		case CmpEqual:
			return CmpEqual
		default:
			return CmpNaN
		}
	case a.kind == KString && b.kind == KString:
		return cmpInt(int64(CompareStrings(a.AsString(), b.AsString())), 0)
	default:
		return CmpUndefined
	}
}

func cmpInt(a, b int64) Compare {
	switch {
	case a < b:
		return CmpLess
	case a > b:
		return CmpGreater
	default:
		return CmpEqual
	}
}

func cmpFloat(a, b float64) Compare {
	if math.IsNaN(a) || math.IsNaN(b) {
		return CmpNaN
	}
	switch {
	case a < b:
		return CmpLess
	case a > b:
		return CmpGreater
	default:
		return CmpEqual
	}
}

// cmpIntFloat compares integer i against float f by converting f to a
// representable integer bound when possible, otherwise by comparing its
// sign relative to i.
func cmpIntFloat(i int64, f float64) Compare {
	if math.IsNaN(f) {
		return CmpNaN
	}
	if f >= math.MinInt64 && f < math.MaxInt64 {
		ceil, floor := math.Ceil(f), math.Floor(f)
		if floor == f {
			return cmpInt(i, int64(f))
		}
		// f is not integral: i < f iff i <= floor(f); i > f iff i >= ceil(f).
		fi := int64(floor)
		if i <= fi {
			return CmpLess
		}
		_ = ceil
		return CmpGreater
	}
	if f > 0 {
		return CmpLess
	}
	return CmpGreater
}

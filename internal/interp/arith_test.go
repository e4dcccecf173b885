package interp

import (
	"math"
	"testing"
)

func TestArithIntegerStaysInteger(t *testing.T) {
	tests := []struct {
		name     string
		op       ArithOp
		a, b     int64
		expected int64
	}{
		{"add", OpArithAdd, 2, 3, 5},
		{"sub", OpArithSub, 10, 4, 6},
		{"mul", OpArithMul, 6, 7, 42},
		{"add wraps", OpArithAdd, math.MaxInt64, 1, math.MinInt64},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			v, ok, raised := Arith(tt.op, Int(tt.a), Int(tt.b))
			if raised != nil {
				t.Fatalf("unexpected error: %v", raised)
			}
			if !ok {
				t.Fatalf("expected ok result")
			}
			if !v.IsInt() || v.AsInt() != tt.expected {
				t.Fatalf("got %v, want int %d", v, tt.expected)
			}
		})
	}
}

func TestArithDivAndPowAlwaysFloat(t *testing.T) {
	v, ok, raised := Arith(OpArithDiv, Int(10), Int(2))
	if raised != nil || !ok {
		t.Fatalf("unexpected failure: ok=%v err=%v", ok, raised)
	}
	if !v.IsFloat() || v.AsFloat() != 5.0 {
		t.Fatalf("10/2 should be float 5, got %v", v)
	}

	v, ok, raised = Arith(OpArithPow, Int(2), Int(10))
	if raised != nil || !ok {
		t.Fatalf("unexpected failure: ok=%v err=%v", ok, raised)
	}
	if !v.IsFloat() || v.AsFloat() != 1024.0 {
		t.Fatalf("2^10 should be float 1024, got %v", v)
	}
}

func TestArithSoftFailureOnNonNumber(t *testing.T) {
	_, ok, raised := Arith(OpArithAdd, Bool(true), Int(1))
	if raised != nil {
		t.Fatalf("a non-numeric operand must fail soft, not raise: %v", raised)
	}
	if ok {
		t.Fatalf("expected soft failure (ok=false)")
	}
}

func TestIDivFlooredAndSignedEdgeCases(t *testing.T) {
	tests := []struct {
		a, b, want int64
	}{
		{7, 2, 3},
		{-7, 2, -4},
		{7, -2, -4},
		{-7, -2, 3},
	}
	for _, tt := range tests {
		got, err := IDiv(tt.a, tt.b)
		if err != nil {
			t.Fatalf("IDiv(%d,%d): %v", tt.a, tt.b, err)
		}
		if got != tt.want {
			t.Fatalf("IDiv(%d,%d) = %d, want %d", tt.a, tt.b, got, tt.want)
		}
	}
}

func TestIDivByZeroRaises(t *testing.T) {
	if _, err := IDiv(1, 0); err != DivideByZero {
		t.Fatalf("expected DivideByZero, got %v", err)
	}
	if _, err := IMod(1, 0); err != DivideByZero {
		t.Fatalf("expected DivideByZero, got %v", err)
	}
}

func TestIDivMinusOneWrapsInsteadOfPanicking(t *testing.T) {
	got, err := IDiv(math.MinInt64, -1)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != math.MinInt64 {
		t.Fatalf("MinInt64 / -1 should wrap to MinInt64, got %d", got)
	}
}

func TestShiftLeftSaturatesBeyondWidth(t *testing.T) {
	if ShiftLeft(1, 64) != 0 {
		t.Fatalf("shift by >= 64 must yield 0")
	}
	if ShiftLeft(1, -64) != 0 {
		t.Fatalf("shift by <= -64 must yield 0")
	}
	if ShiftLeft(1, 4) != 16 {
		t.Fatalf("1 << 4 should be 16")
	}
	if ShiftLeft(16, -4) != 1 {
		t.Fatalf("negative y should shift right")
	}
}

func TestOrderedCompareMixedIntFloat(t *testing.T) {
	if OrderedCompare(Int(3), Float(3.5)) != CmpLess {
		t.Fatalf("3 should be less than 3.5")
	}
	if OrderedCompare(Float(3.5), Int(3)) != CmpGreater {
		t.Fatalf("3.5 should be greater than 3")
	}
	if OrderedCompare(Int(3), Float(3.0)) != CmpEqual {
		t.Fatalf("3 should equal 3.0")
	}
}

func TestOrderedCompareUndefinedAcrossIncompatibleTypes(t *testing.T) {
	if OrderedCompare(Int(1), Bool(true)) != CmpUndefined {
		t.Fatalf("number vs boolean must be undefined, not coerced")
	}
}

func TestOrderedCompareNaNIsFalseNotUndefined(t *testing.T) {
	nan := Float(math.NaN())
	if OrderedCompare(nan, Float(1)) != CmpNaN {
		t.Fatalf("NaN must compare CmpNaN (lt/le false), not CmpUndefined (which raises)")
	}
	if OrderedCompare(Float(1), nan) != CmpNaN {
		t.Fatalf("NaN on the right side must also compare CmpNaN")
	}
	if OrderedCompare(Int(1), nan) != CmpNaN {
		t.Fatalf("mixed int/NaN-float must also compare CmpNaN")
	}
}

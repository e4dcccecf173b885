package interp_test

import (
	"math"
	"strings"
	"testing"

	"luavm/internal/heap"
	"luavm/internal/interp"
	"luavm/internal/loader"
	"luavm/internal/rterrors"
)

func TestVMArithmeticReturnsExpectedValue(t *testing.T) {
	h := heap.New()
	vm := interp.NewVM(h)

	b := loader.NewBuilder("test")
	b.SetMaxStackSize(3)
	b.Emit(interp.EncodeAsBx(interp.OpLoadI, 0, 2), 1)
	b.Emit(interp.EncodeAsBx(interp.OpLoadI, 1, 3), 1)
	b.Emit(interp.EncodeABC(interp.OpAdd, 2, 0, 1, false), 1)
	b.Emit(interp.EncodeABC(interp.OpReturn1, 2, 0, 0, false), 1)
	proto := b.Build()

	closure := interp.NewLuaClosure(h, proto, nil)
	results, err := vm.Call(closure, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(results) != 1 || results[0].AsInt() != 5 {
		t.Fatalf("got %v, want [5]", results)
	}
}

// TestVMSharedUpvalueIdentity builds a closure whose upvalue aliases the
// same local variable across two separate closure values, the testable
// property that shared-upvalue identity (not just equal value) must hold:
// calling either instance advances the same counter.
func TestVMSharedUpvalueIdentity(t *testing.T) {
	h := heap.New()
	vm := interp.NewVM(h)

	child := loader.NewFunctionBuilder("test", 1, 1)
	child.SetMaxStackSize(1)
	child.AddUpvalue(true, 0) // captures register 0 of the enclosing frame
	child.Emit(interp.EncodeABC(interp.OpGetUpval, 0, 0, 0, false), 1)
	child.Emit(interp.EncodeABC(interp.OpAddI, 0, 0, 1, false), 1)
	child.Emit(interp.EncodeABC(interp.OpSetUpval, 0, 0, 0, false), 1)
	child.Emit(interp.EncodeABC(interp.OpReturn1, 0, 0, 0, false), 1)
	childProto := child.Build()

	main := loader.NewBuilder("test")
	main.SetMaxStackSize(7)
	protoIdx := main.AddProto(childProto)
	main.Emit(interp.EncodeAsBx(interp.OpLoadI, 0, 0), 1)                       // x = 0
	main.Emit(interp.EncodeABx(interp.OpClosure, 1, protoIdx), 1)               // R1 = closure over x
	main.Emit(interp.EncodeABx(interp.OpClosure, 2, protoIdx), 1)               // R2 = another closure over the same x
	main.Emit(interp.EncodeABC(interp.OpMove, 3, 1, 0, false), 1)
	main.Emit(interp.EncodeABC(interp.OpCall, 3, 1, 2, false), 1) // R3 = closure1() == 1
	main.Emit(interp.EncodeABC(interp.OpMove, 4, 3, 0, false), 1)
	main.Emit(interp.EncodeABC(interp.OpMove, 3, 2, 0, false), 1)
	main.Emit(interp.EncodeABC(interp.OpCall, 3, 1, 2, false), 1) // R3 = closure2() == 2
	main.Emit(interp.EncodeABC(interp.OpMove, 5, 3, 0, false), 1)
	main.Emit(interp.EncodeABC(interp.OpMove, 3, 1, 0, false), 1)
	main.Emit(interp.EncodeABC(interp.OpCall, 3, 1, 2, false), 1) // R3 = closure1() == 3
	main.Emit(interp.EncodeABC(interp.OpMove, 6, 3, 0, false), 1)
	main.Emit(interp.EncodeABC(interp.OpReturn, 4, 4, 0, false), 1) // return R4,R5,R6
	proto := main.Build()

	closure := interp.NewLuaClosure(h, proto, nil)
	results, err := vm.Call(closure, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(results) != 3 {
		t.Fatalf("got %d results, want 3", len(results))
	}
	want := []int64{1, 2, 3}
	for i, w := range want {
		if results[i].AsInt() != w {
			t.Fatalf("result[%d] = %d, want %d (shared upvalue must persist across both closure instances)", i, results[i].AsInt(), w)
		}
	}
}

func TestVMIndexingNonTableRaisesWithTraceback(t *testing.T) {
	h := heap.New()
	vm := interp.NewVM(h)

	b := loader.NewBuilder("test")
	b.SetMaxStackSize(2)
	fieldIdx := b.AddStringConstant(vm.Strings(), "x")
	b.Emit(interp.EncodeAsBx(interp.OpLoadI, 0, 1), 1)
	b.Emit(interp.EncodeABC(interp.OpGetField, 1, 0, uint8(fieldIdx), false), 2)
	b.Emit(interp.EncodeABC(interp.OpReturn1, 1, 0, 0, false), 2)
	proto := b.Build()

	closure := interp.NewLuaClosure(h, proto, nil)
	_, err := vm.Call(closure, nil)
	if err == nil {
		t.Fatalf("indexing a number must raise")
	}
	rt, ok := err.(*rterrors.RuntimeError)
	if !ok {
		t.Fatalf("expected *rterrors.RuntimeError, got %T: %v", err, err)
	}
	if !strings.Contains(rt.Error(), "stack traceback") {
		t.Fatalf("traceback missing from error text: %q", rt.Error())
	}
	if len(rt.Traceback) != 1 || !rt.Traceback[0].MainChunk {
		t.Fatalf("expected a single main-chunk traceback frame, got %v", rt.Traceback)
	}
}

// TestVMOrderedCompareNaNEvaluatesFalseWithoutRaising exercises OP_LT at
// the dispatch level: a NaN operand must make the comparison quietly
// false, never a raised type error, even though the two operands share a
// well-defined numeric type.
func TestVMOrderedCompareNaNEvaluatesFalseWithoutRaising(t *testing.T) {
	h := heap.New()
	vm := interp.NewVM(h)

	b := loader.NewBuilder("test")
	b.SetMaxStackSize(2)
	nanIdx := b.AddConstant(interp.Float(math.NaN()))
	b.Emit(interp.EncodeABx(interp.OpLoadK, 0, nanIdx), 1)
	b.Emit(interp.EncodeAsBx(interp.OpLoadI, 1, 1), 1)
	b.Emit(interp.EncodeABC(interp.OpLt, 0, 1, 0, false), 1) // NaN < 1: must not raise
	b.Emit(interp.EncodeABC(interp.OpReturn0, 0, 0, 0, false), 1)
	b.Emit(interp.EncodeABC(interp.OpReturn0, 0, 0, 0, false), 1)
	proto := b.Build()

	closure := interp.NewLuaClosure(h, proto, nil)
	if _, err := vm.Call(closure, nil); err != nil {
		t.Fatalf("NaN comparison must evaluate false, not raise: %v", err)
	}
}

func TestVMSoftArithmeticFailureLeavesDestinationUnwritten(t *testing.T) {
	h := heap.New()
	vm := interp.NewVM(h)

	b := loader.NewBuilder("test")
	b.SetMaxStackSize(3)
	b.Emit(interp.EncodeAsBx(interp.OpLoadI, 2, 99), 1) // sentinel
	b.Emit(interp.EncodeABC(interp.OpLoadTrue, 0, 0, 0, false), 1)
	b.Emit(interp.EncodeAsBx(interp.OpLoadI, 1, 1), 1)
	b.Emit(interp.EncodeABC(interp.OpAdd, 2, 0, 1, false), 1) // boolean + int: soft failure
	b.Emit(interp.EncodeABC(interp.OpMMBin, 0, 0, 0, false), 1)
	b.Emit(interp.EncodeABC(interp.OpReturn1, 2, 0, 0, false), 1)
	proto := b.Build()

	closure := interp.NewLuaClosure(h, proto, nil)
	results, err := vm.Call(closure, nil)
	if err != nil {
		t.Fatalf("a soft arithmetic failure must not raise: %v", err)
	}
	if results[0].AsInt() != 99 {
		t.Fatalf("R2 should be left untouched by the failed ADD, got %v", results[0])
	}
}

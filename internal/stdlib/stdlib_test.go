package stdlib_test

import (
	"testing"

	"luavm/internal/heap"
	"luavm/internal/interp"
	"luavm/internal/stdlib"
)

func call(t *testing.T, vm *interp.VM, name string, args ...interp.Value) []interp.Value {
	t.Helper()
	fn := vm.Globals().Get(vm.Strings().Intern(name))
	if !fn.IsNativeClosure() {
		t.Fatalf("global %q is not a native closure: %v", name, fn)
	}
	results, err := vm.Call(fn, args)
	if err != nil {
		t.Fatalf("calling %q: %v", name, err)
	}
	return results
}

func TestTypeReportsLuaVisibleTypeNames(t *testing.T) {
	h := heap.New()
	vm := interp.NewVM(h)
	stdlib.Install(vm)

	results := call(t, vm, "type", interp.Int(1))
	if results[0].AsString().Value != "number" {
		t.Fatalf("type(1) = %q, want number", results[0].AsString().Value)
	}

	results = call(t, vm, "type", interp.Nil)
	if results[0].AsString().Value != "nil" {
		t.Fatalf("type(nil) = %q, want nil", results[0].AsString().Value)
	}
}

func TestAssertPassesThroughOnTruthyValue(t *testing.T) {
	h := heap.New()
	vm := interp.NewVM(h)
	stdlib.Install(vm)

	results := call(t, vm, "assert", interp.Bool(true), interp.Int(42))
	if len(results) != 2 || results[1].AsInt() != 42 {
		t.Fatalf("assert(true, 42) should pass both values through, got %v", results)
	}
}

func TestAssertRaisesOnFalsyValue(t *testing.T) {
	h := heap.New()
	vm := interp.NewVM(h)
	stdlib.Install(vm)

	fn := vm.Globals().Get(vm.Strings().Intern("assert"))
	_, err := vm.Call(fn, []interp.Value{interp.Bool(false)})
	if err == nil {
		t.Fatalf("assert(false) must raise")
	}
}

func TestPcallCatchesAnError(t *testing.T) {
	h := heap.New()
	vm := interp.NewVM(h)
	stdlib.Install(vm)

	errorFn := vm.Globals().Get(vm.Strings().Intern("error"))
	results := call(t, vm, "pcall", errorFn, vm.Strings().Intern("boom"))
	if len(results) != 2 || results[0].AsBool() != false {
		t.Fatalf("pcall(error, \"boom\") should report failure, got %v", results)
	}
	if results[1].AsString().Value != "boom" {
		t.Fatalf("pcall should surface the error message, got %v", results[1])
	}
}

func TestSetmetatableAndGetmetatableRoundTrip(t *testing.T) {
	h := heap.New()
	vm := interp.NewVM(h)
	stdlib.Install(vm)

	tbl := interp.NewTable(h)
	meta := interp.NewTable(h)

	call(t, vm, "setmetatable", interp.TableValue(tbl), interp.TableValue(meta))
	results := call(t, vm, "getmetatable", interp.TableValue(tbl))
	if !results[0].IsTable() || results[0].AsTable() != meta {
		t.Fatalf("getmetatable after setmetatable = %v, want the same meta table", results[0])
	}
}

func TestSetmetatableRejectsNonTableTarget(t *testing.T) {
	h := heap.New()
	vm := interp.NewVM(h)
	stdlib.Install(vm)

	fn := vm.Globals().Get(vm.Strings().Intern("setmetatable"))
	_, err := vm.Call(fn, []interp.Value{interp.Int(1), interp.Nil})
	if err == nil {
		t.Fatalf("setmetatable(1, nil) must raise an argument type error")
	}
}

func TestRawequalFollowsNumericCrossTypeEquality(t *testing.T) {
	h := heap.New()
	vm := interp.NewVM(h)
	stdlib.Install(vm)

	results := call(t, vm, "rawequal", interp.Int(1), interp.Float(1.0))
	if !results[0].AsBool() {
		t.Fatalf("rawequal(1, 1.0) should follow the numeric cross-type equality rule")
	}
}

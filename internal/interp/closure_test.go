package interp

import (
	"testing"

	"luavm/internal/heap"
)

// TestUpvalueSurvivesRegisterFileReallocation guards against the failure
// mode where an open Upvalue caches a slice header into the VM's register
// file directly: growing that file (ensureCapacity) reallocates the
// backing array, which would strand any upvalue created before the grow.
func TestUpvalueSurvivesRegisterFileReallocation(t *testing.T) {
	h := heap.New()
	vm := NewVM(h)

	vm.registers[3] = Int(10)
	uv := vm.openUpvalueAt(3)

	if got := uv.Get(); got.AsInt() != 10 {
		t.Fatalf("Get() before grow = %v, want 10", got)
	}

	vm.ensureCapacity(len(vm.registers) + 10000)

	vm.registers[3] = Int(20)
	if got := uv.Get(); got.AsInt() != 20 {
		t.Fatalf("Get() after grow = %v, want 20 (upvalue must track the live register, not a stale slice)", got)
	}
}

func TestUpvalueCloseSnapshotsValue(t *testing.T) {
	h := heap.New()
	vm := NewVM(h)
	vm.registers[0] = Int(5)
	uv := vm.openUpvalueAt(0)

	uv.Close()
	vm.registers[0] = Int(999) // mutating the old slot must not affect the closed cell

	if got := uv.Get(); got.AsInt() != 5 {
		t.Fatalf("closed upvalue = %v, want the snapshot taken at Close time (5)", got)
	}
}

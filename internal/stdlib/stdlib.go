// Package stdlib installs the base global functions: print, type, tostring,
// tonumber, assert, error, pcall, rawequal, getmetatable and setmetatable.
// It is deliberately not a standard library (string/math/io/os are named
// out of scope) — this is the minimal base surface needed to drive the
// scenario tests and to give embedders a starting global table.
package stdlib

import (
	"fmt"
	"os"

	"luavm/internal/heap"
	"luavm/internal/interp"
	"luavm/internal/rterrors"
)

// Install populates vm's global table with the base functions and _VERSION.
func Install(vm *interp.VM) {
	register(vm, "print", print)
	register(vm, "type", typeFn)
	register(vm, "tostring", tostring)
	register(vm, "tonumber", tonumber)
	register(vm, "assert", assert)
	register(vm, "error", errorFn)
	register(vm, "pcall", pcall)
	register(vm, "rawequal", rawequal)
	register(vm, "getmetatable", getmetatable)
	register(vm, "setmetatable", setmetatable)
	vm.SetGlobal("_VERSION", vm.Strings().Intern("Lua 5.4"))
}

func register(vm *interp.VM, name string, fn interp.NativeFn) {
	vm.SetGlobal(name, interp.NewNativeClosure(vm.Heap(), name, fn))
}

// print writes every argument's display form, tab-separated, newline
// terminated, to the driver's standard output.
func print(h *heap.Heap, vm *interp.VM, stack interp.StackRange) (int, error) {
	args := stack.Args()
	for i, a := range args {
		if i > 0 {
			fmt.Fprint(os.Stdout, "\t")
		}
		fmt.Fprint(os.Stdout, interp.ToDisplayString(a))
	}
	fmt.Fprintln(os.Stdout)
	return 0, nil
}

func typeFn(h *heap.Heap, vm *interp.VM, stack interp.StackRange) (int, error) {
	args := stack.Args()
	if len(args) == 0 {
		return 0, &rterrors.ArgumentError{Nth: 1, Message: "value expected"}
	}
	stack.Set(0, vm.Strings().Intern(interp.TypeName(args[0])))
	return 1, nil
}

func tostring(h *heap.Heap, vm *interp.VM, stack interp.StackRange) (int, error) {
	args := stack.Args()
	if len(args) == 0 {
		return 0, &rterrors.ArgumentError{Nth: 1, Message: "value expected"}
	}
	stack.Set(0, vm.Strings().Intern(interp.ToDisplayString(args[0])))
	return 1, nil
}

// tonumber converts a number argument to itself and anything else to nil.
// String-to-number coercion belongs to the stdlib's numeric parsing, which
// is out of scope here (see Non-goals: no string library).
func tonumber(h *heap.Heap, vm *interp.VM, stack interp.StackRange) (int, error) {
	args := stack.Args()
	if len(args) == 0 || !args[0].IsNumber() {
		stack.Set(0, interp.Nil)
		return 1, nil
	}
	stack.Set(0, args[0])
	return 1, nil
}

func assert(h *heap.Heap, vm *interp.VM, stack interp.StackRange) (int, error) {
	args := stack.Args()
	if len(args) == 0 || !interp.Truthy(args[0]) {
		msg := "assertion failed!"
		if len(args) > 1 {
			msg = interp.ToDisplayString(args[1])
		}
		return 0, &rterrors.ExplicitError{Message: msg}
	}
	for i, a := range args {
		stack.Set(i, a)
	}
	return len(args), nil
}

func errorFn(h *heap.Heap, vm *interp.VM, stack interp.StackRange) (int, error) {
	args := stack.Args()
	if len(args) == 0 {
		return 0, &rterrors.ExplicitError{Message: "nil"}
	}
	if args[0].IsString() {
		return 0, &rterrors.ExplicitError{Message: args[0].AsString().Value}
	}
	return 0, &rterrors.ExplicitError{Message: fmt.Sprintf("(error object is a %s value)", interp.TypeName(args[0]))}
}

// pcall invokes its first argument, catching any error it raises (or that
// propagates through any call it makes) and reporting it as a second
// return value instead of unwinding further. It is implemented directly
// against VM.Call, the same entry point OP_CALL uses, rather than as
// anything the bytecode dispatcher special-cases.
func pcall(h *heap.Heap, vm *interp.VM, stack interp.StackRange) (int, error) {
	args := stack.Args()
	if len(args) == 0 {
		return 0, &rterrors.ArgumentError{Nth: 1, Message: "value expected"}
	}
	results, err := vm.Call(args[0], args[1:])
	if err != nil {
		stack.Set(0, interp.Bool(false))
		stack.Set(1, vm.Strings().Intern(err.Error()))
		return 2, nil
	}
	stack.Set(0, interp.Bool(true))
	for i, r := range results {
		stack.Set(i+1, r)
	}
	return len(results) + 1, nil
}

func rawequal(h *heap.Heap, vm *interp.VM, stack interp.StackRange) (int, error) {
	args := stack.Args()
	if len(args) < 2 {
		return 0, &rterrors.ArgumentError{Nth: 2, Message: "value expected"}
	}
	stack.Set(0, interp.Bool(interp.Equals(args[0], args[1])))
	return 1, nil
}

// getmetatable reads a table's metatable slot directly; no __metatable
// field is consulted since the core dispatches no metamethods.
func getmetatable(h *heap.Heap, vm *interp.VM, stack interp.StackRange) (int, error) {
	args := stack.Args()
	if len(args) == 0 || !args[0].IsTable() {
		stack.Set(0, interp.Nil)
		return 1, nil
	}
	if mt := args[0].AsTable().Meta(); mt != nil {
		stack.Set(0, interp.TableValue(mt))
	} else {
		stack.Set(0, interp.Nil)
	}
	return 1, nil
}

func setmetatable(h *heap.Heap, vm *interp.VM, stack interp.StackRange) (int, error) {
	args := stack.Args()
	if len(args) == 0 || !args[0].IsTable() {
		got := "no value"
		if len(args) > 0 {
			got = interp.TypeName(args[0])
		}
		return 0, &rterrors.ArgumentTypeError{Nth: 1, Expected: "table", Got: got}
	}
	tbl := args[0].AsTable()
	switch {
	case len(args) < 2 || args[1].IsNil():
		tbl.SetMeta(h, nil)
	case args[1].IsTable():
		tbl.SetMeta(h, args[1].AsTable())
	default:
		return 0, &rterrors.ArgumentTypeError{Nth: 2, Expected: "table", Got: interp.TypeName(args[1])}
	}
	stack.Set(0, args[0])
	return 1, nil
}

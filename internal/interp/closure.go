package interp

import "luavm/internal/heap"

// Upvalue is a shared mutable cell capturing a variable from an enclosing
// scope. While Open it aliases a live register in some frame's window;
// once that frame returns the cell is Closed and owns its value directly.
// Multiple closures may hold the very same *Upvalue, so mutations through
// one are visible through all of them (invariant #3 in the testable
// properties: identity, not equality).
type Upvalue struct {
	heap.Object
	closed bool
	value  Value // valid once closed
	vm     *VM   // owning VM, while open: registers are looked up live so a
	// register-file reallocation (ensureCapacity) never strands this cell
	index int // index into vm.registers, while open
}

func (u *Upvalue) Header() *heap.Object { return &u.Object }

func (u *Upvalue) Trace(t *heap.Tracer) {
	if u.closed {
		if ref := u.value.heapRef(); ref != nil {
			t.Mark(ref)
		}
	}
	// While open the backing register is reachable via the interpreter's
	// own stack root scan, so there is nothing further to mark here.
}

func newOpenUpvalue(h *heap.Heap, vm *VM, index int) *Upvalue {
	return heap.Register(h, &Upvalue{Object: heap.Tag("upvalue"), vm: vm, index: index})
}

// Get reads the upvalue's current value.
func (u *Upvalue) Get() Value {
	if u.closed {
		return u.value
	}
	return u.vm.registers[u.index]
}

// Set writes through the upvalue, write-barriering the stored reference if
// the heap is mid-cycle.
func (u *Upvalue) Set(h *heap.Heap, v Value) {
	if u.closed {
		u.value = v
	} else {
		u.vm.registers[u.index] = v
	}
	if ref := v.heapRef(); ref != nil {
		h.WriteBarrier(ref)
	}
}

// Close severs the upvalue from the stack, copying out the live register
// so the cell survives the owning frame's disposal.
func (u *Upvalue) Close() {
	if u.closed {
		return
	}
	u.value = u.vm.registers[u.index]
	u.closed = true
	u.vm = nil
}

// StackIndex reports the register index this upvalue aliases while open;
// used by the open-upvalue map to find/close cells by index.
func (u *Upvalue) StackIndex() int { return u.index }
func (u *Upvalue) IsOpen() bool    { return !u.closed }

// LuaClosure pairs an immutable Prototype with the Upvalue cells it
// captured at creation time.
type LuaClosure struct {
	heap.Object
	Proto    *Prototype
	Upvalues []*Upvalue
}

func (c *LuaClosure) Header() *heap.Object { return &c.Object }

func (c *LuaClosure) Trace(t *heap.Tracer) {
	for _, k := range c.Proto.Constants {
		if ref := k.heapRef(); ref != nil {
			t.Mark(ref)
		}
	}
	for _, uv := range c.Upvalues {
		t.Mark(uv)
	}
}

func NewLuaClosure(h *heap.Heap, proto *Prototype, upvalues []*Upvalue) Value {
	c := heap.Register(h, &LuaClosure{Object: heap.Tag("closure"), Proto: proto, Upvalues: upvalues})
	return fromLuaClosure(c)
}

// NativeFn is the native-call ABI: the callee sees its arguments in
// stack[1:], slot 0 is the callee itself and doubles as the first result
// slot. The return value is how many values, starting at slot 0, are
// results.
type NativeFn func(h *heap.Heap, vm *VM, stack StackRange) (int, error)

// NativeClosure wraps a host-supplied function.
type NativeClosure struct {
	heap.Object
	Name string
	Fn   NativeFn
}

func (c *NativeClosure) Header() *heap.Object { return &c.Object }
func (c *NativeClosure) Trace(t *heap.Tracer) {}

func NewNativeClosure(h *heap.Heap, name string, fn NativeFn) Value {
	c := heap.Register(h, &NativeClosure{Object: heap.Tag("native"), Name: name, Fn: fn})
	return fromNativeClosure(c)
}

// StackRange is a transient mutable window into the VM's register file,
// handed to a native closure for the duration of one call. It must not be
// retained past the call: the VM may truncate or relocate the underlying
// register file afterward.
type StackRange struct {
	vm   *VM
	base int
	len  int
}

// Len is the number of slots available, including slot 0 (the callee).
func (s StackRange) Len() int { return s.len }

func (s StackRange) Get(i int) Value {
	if i < 0 || i >= s.len {
		return Nil
	}
	return s.vm.registers[s.base+i]
}

func (s StackRange) Set(i int, v Value) {
	if i < 0 || i >= s.len {
		return
	}
	s.vm.registers[s.base+i] = v
}

// Args returns the arguments (slots 1..) as a plain slice snapshot.
func (s StackRange) Args() []Value {
	if s.len <= 1 {
		return nil
	}
	out := make([]Value, s.len-1)
	copy(out, s.vm.registers[s.base+1:s.base+s.len])
	return out
}

package interp

import (
	"fmt"

	"luavm/internal/heap"
	"luavm/internal/rterrors"
)

// callFrame is one activation on the call stack: the closure executing, its
// base register (where its window into the shared register file starts),
// and its own program counter.
type callFrame struct {
	closure *LuaClosure
	code    []Instruction
	base    int // absolute index of register 0 for this frame
	pc      int
}

// VM is the register-based interpreter. One VM owns one register file, one
// call stack and one set of still-open upvalues; it cooperates with a Heap
// for all managed allocation and collection.
type VM struct {
	heap    *heap.Heap
	strings *Strings
	globals *Table

	registers []Value
	frames    []callFrame

	// openUpvalues maps a register's absolute stack index to the Upvalue
	// cell currently aliasing it. Kept in ascending index order so Close
	// can truncate everything at or above a threshold in one pass, the
	// same shape reference Lua's linked open-upvalue list gives for free.
	openUpvalues []*Upvalue

	instructionCount uint64
	maxCallDepth     int
	gcStride         int // GC steps driven per gcSafepoint call

	// errorTraceback accumulates one rterrors.Frame per frame unwound while
	// an error propagates out of run(); callLua wraps it into a
	// RuntimeError only at the outermost Lua call, so a pcall'd or nested
	// call sees a plain Go error instead of a doubly-wrapped one.
	errorTraceback []rterrors.Frame
}

const defaultMaxCallDepth = 200
const defaultRegisterFile = 4096

// NewVM builds a VM with a fresh register file and an empty global table.
func NewVM(h *heap.Heap) *VM {
	vm := &VM{
		heap:         h,
		strings:      NewStrings(h),
		registers:    make([]Value, defaultRegisterFile),
		frames:       make([]callFrame, 0, 64),
		maxCallDepth: defaultMaxCallDepth,
		gcStride:     8,
	}
	vm.globals = NewTable(h)
	return vm
}

func (vm *VM) Heap() *heap.Heap     { return vm.heap }
func (vm *VM) Strings() *Strings    { return vm.strings }
func (vm *VM) Globals() *Table      { return vm.globals }

// SetGlobal is a convenience used by the stdlib/driver layer to populate
// the global table before execution starts.
func (vm *VM) SetGlobal(name string, v Value) {
	vm.globals.Set(vm.heap, vm.strings.Intern(name), v)
}

// Header reports that the VM is not heap-allocated. VM has no Trace method
// of its own; root below wraps it as the GC root handed to Step/Collect,
// tracing every register, the global table, every still-open upvalue, and
// every closure on the call stack.
func (vm *VM) Header() *heap.Object { return nil } // VM is not itself heap-allocated.

// root wraps the VM for use as the Step/Collect root argument, since VM
// does not carry its own heap.Object header (it never needs to be
// collected itself). heap.Heap treats a Header() == nil Traceable as a
// pseudo-root: it is queued for tracing like any other gray object, but
// skipped by the color-flipping the sweep relies on, since it has no
// Object of its own to flip.
type root struct{ vm *VM }

func (r root) Header() *heap.Object { return nil }

func (r root) Trace(t *heap.Tracer) {
	vm := r.vm
	for i := range vm.registers {
		if ref := vm.registers[i].heapRef(); ref != nil {
			t.Mark(ref)
		}
	}
	t.Mark(vm.globals)
	for _, uv := range vm.openUpvalues {
		t.Mark(uv)
	}
	for _, f := range vm.frames {
		t.Mark(f.closure)
	}
}

// Collect runs a full mark-sweep cycle rooted at vm to completion. Exposed
// for diagnostics and the driver's --stats mode; the interpreter itself
// only ever takes bounded Step increments via gcSafepoint.
func (vm *VM) Collect() { vm.heap.Collect(root{vm}) }

// gcSafepoint drives a bounded amount of incremental collector work. Called
// at backward jumps (FORLOOP, and JMP with a negative offset), before each
// call and at each return; it is not run after every instruction.
func (vm *VM) gcSafepoint() {
	for i := 0; i < vm.gcStride; i++ {
		vm.heap.Step(root{vm})
	}
}

// findOpenUpvalue returns the existing open cell for stack index idx, if any.
func (vm *VM) findOpenUpvalue(idx int) *Upvalue {
	for _, uv := range vm.openUpvalues {
		if uv.IsOpen() && uv.StackIndex() == idx {
			return uv
		}
	}
	return nil
}

// openUpvalueAt returns the shared open cell for absolute register idx,
// creating it on first capture. Two closures created over the same live
// register must receive the very same *Upvalue (invariant #3).
func (vm *VM) openUpvalueAt(idx int) *Upvalue {
	if uv := vm.findOpenUpvalue(idx); uv != nil {
		return uv
	}
	uv := newOpenUpvalue(vm.heap, vm, idx)
	pos := len(vm.openUpvalues)
	for pos > 0 && vm.openUpvalues[pos-1].StackIndex() > idx {
		pos--
	}
	vm.openUpvalues = append(vm.openUpvalues, nil)
	copy(vm.openUpvalues[pos+1:], vm.openUpvalues[pos:])
	vm.openUpvalues[pos] = uv
	return uv
}

// closeUpvaluesFrom closes (and discards from the open list) every open
// upvalue aliasing register floor or above. Called when a frame whose
// registers start at floor returns, and by OP_CLOSE/the <close> protocol.
func (vm *VM) closeUpvaluesFrom(floor int) {
	kept := vm.openUpvalues[:0]
	for _, uv := range vm.openUpvalues {
		if uv.IsOpen() && uv.StackIndex() >= floor {
			uv.Close()
		} else {
			kept = append(kept, uv)
		}
	}
	vm.openUpvalues = kept
}

func (vm *VM) ensureCapacity(n int) {
	if n <= len(vm.registers) {
		return
	}
	grown := make([]Value, n*2)
	copy(grown, vm.registers)
	vm.registers = grown
}

// Call invokes callee with args (args[0] is the first argument, i.e. there
// is no slot-0 callee convention at this level) and returns however many
// results the callee produced. It is the one entry point shared by OP_CALL
// and the pcall native: it never panics, every failure is a plain Go error.
func (vm *VM) Call(callee Value, args []Value) ([]Value, error) {
	switch {
	case callee.IsNativeClosure():
		return vm.callNative(callee.AsNativeClosure(), args)
	case callee.IsLuaClosure():
		return vm.callLua(callee.AsLuaClosure(), args)
	default:
		return nil, &rterrors.TypeError{Operation: "call", Type: TypeName(callee)}
	}
}

func (vm *VM) callNative(nc *NativeClosure, args []Value) ([]Value, error) {
	base := len(vm.registers)
	vm.ensureCapacity(base + len(args) + 1)
	vm.registers[base] = Nil
	for i, a := range args {
		vm.registers[base+1+i] = a
	}
	sr := StackRange{vm: vm, base: base, len: len(args) + 1}
	n, err := nc.Fn(vm.heap, vm, sr)
	if err != nil {
		return nil, err
	}
	out := make([]Value, n)
	for i := 0; i < n; i++ {
		out[i] = vm.registers[base+i]
	}
	return out, nil
}

func (vm *VM) callLua(lc *LuaClosure, args []Value) ([]Value, error) {
	if len(vm.frames) >= vm.maxCallDepth {
		return nil, fmt.Errorf("stack overflow")
	}
	proto := lc.Proto
	base := len(vm.registers)
	need := base + int(proto.MaxStackSize) + 1
	vm.ensureCapacity(need)
	for i := base; i < need; i++ {
		vm.registers[i] = Nil
	}
	for i, a := range args {
		if i >= int(proto.MaxStackSize) {
			break
		}
		vm.registers[base+i] = a
	}

	depthBefore := len(vm.frames)
	frame := callFrame{closure: lc, code: proto.Code, base: base, pc: 0}
	vm.frames = append(vm.frames, frame)
	results, err := vm.run()

	if err != nil && depthBefore == 0 {
		tb := vm.errorTraceback
		vm.errorTraceback = nil
		if _, already := err.(*rterrors.RuntimeError); !already {
			err = &rterrors.RuntimeError{Cause: err, Traceback: tb}
		}
	}
	return results, err
}

// run executes instructions for the top-most frame until it returns,
// yielding that frame's result values.
func (vm *VM) run() ([]Value, error) {
	frameIdx := len(vm.frames) - 1
	for {
		f := &vm.frames[frameIdx]
		if f.pc >= len(f.code) {
			vm.popFrame(frameIdx)
			return nil, nil
		}
		instr := f.code[f.pc]
		f.pc++

		results, done, err := vm.dispatch(frameIdx, instr)
		if err != nil {
			vm.errorTraceback = append(vm.errorTraceback, rterrors.Frame{
				MainChunk: f.closure.Proto.Lines.WholeFile,
				Source:    f.closure.Proto.Source,
				Line:      f.closure.Proto.LineFor(f.pc - 1),
			})
			vm.closeUpvaluesFrom(f.base)
			vm.frames = vm.frames[:frameIdx]
			vm.registers = vm.registers[:f.base]
			return nil, err
		}
		if done {
			return results, nil
		}
	}
}

func (vm *VM) popFrame(frameIdx int) {
	f := vm.frames[frameIdx]
	vm.closeUpvaluesFrom(f.base)
	vm.frames = vm.frames[:frameIdx]
	vm.registers = vm.registers[:f.base]
}

func (vm *VM) reg(frameIdx int, i uint8) *Value {
	return &vm.registers[vm.frames[frameIdx].base+int(i)]
}

func (vm *VM) proto(frameIdx int) *Prototype { return vm.frames[frameIdx].closure.Proto }

// dispatch executes a single instruction for the given frame. done reports
// whether the frame returned (results is then meaningful, possibly nil).
func (vm *VM) dispatch(frameIdx int, instr Instruction) (results []Value, done bool, err error) {
	f := &vm.frames[frameIdx]
	proto := f.closure.Proto
	op := instr.OpCode()

	switch op {
	case OpMove:
		*vm.reg(frameIdx, instr.A()) = *vm.reg(frameIdx, instr.B())

	case OpLoadK:
		*vm.reg(frameIdx, instr.A()) = proto.Constants[instr.Bx()]

	case OpLoadKX:
		extra := f.code[f.pc]
		f.pc++
		*vm.reg(frameIdx, instr.A()) = proto.Constants[extra.Ax()]

	case OpLoadI:
		*vm.reg(frameIdx, instr.A()) = Int(int64(instr.SBx()))

	case OpLoadF:
		*vm.reg(frameIdx, instr.A()) = Float(float64(instr.SBx()))

	case OpLoadTrue:
		*vm.reg(frameIdx, instr.A()) = Bool(true)

	case OpLoadFalse:
		*vm.reg(frameIdx, instr.A()) = Bool(false)

	case OpLFalseSkip:
		*vm.reg(frameIdx, instr.A()) = Bool(false)
		f.pc++

	case OpLoadNil:
		a, n := int(instr.A()), int(instr.B())
		for i := 0; i <= n; i++ {
			*vm.reg(frameIdx, uint8(a+i)) = Nil
		}

	case OpGetUpval:
		*vm.reg(frameIdx, instr.A()) = f.closure.Upvalues[instr.B()].Get()

	case OpSetUpval:
		f.closure.Upvalues[instr.B()].Set(vm.heap, *vm.reg(frameIdx, instr.A()))

	case OpGetTabUp:
		uv := f.closure.Upvalues[instr.B()]
		key := proto.Constants[instr.C()]
		v, ierr := vm.index(uv.Get(), key)
		if ierr != nil {
			return nil, false, ierr
		}
		*vm.reg(frameIdx, instr.A()) = v

	case OpSetTabUp:
		uv := f.closure.Upvalues[instr.A()]
		key := proto.Constants[instr.B()]
		val := *vm.reg(frameIdx, instr.C())
		if err := vm.newindex(uv.Get(), key, val); err != nil {
			return nil, false, err
		}

	case OpGetTable:
		tbl := *vm.reg(frameIdx, instr.B())
		key := *vm.reg(frameIdx, instr.C())
		v, ierr := vm.index(tbl, key)
		if ierr != nil {
			return nil, false, ierr
		}
		*vm.reg(frameIdx, instr.A()) = v

	case OpGetI:
		tbl := *vm.reg(frameIdx, instr.B())
		v, ierr := vm.index(tbl, Int(int64(instr.C())))
		if ierr != nil {
			return nil, false, ierr
		}
		*vm.reg(frameIdx, instr.A()) = v

	case OpGetField:
		tbl := *vm.reg(frameIdx, instr.B())
		key := proto.Constants[instr.C()]
		v, ierr := vm.index(tbl, key)
		if ierr != nil {
			return nil, false, ierr
		}
		*vm.reg(frameIdx, instr.A()) = v

	case OpSetTable:
		tbl := *vm.reg(frameIdx, instr.A())
		key := *vm.reg(frameIdx, instr.B())
		val := *vm.reg(frameIdx, instr.C())
		if err := vm.newindex(tbl, key, val); err != nil {
			return nil, false, err
		}

	case OpSetI:
		tbl := *vm.reg(frameIdx, instr.A())
		val := *vm.reg(frameIdx, instr.C())
		if err := vm.newindex(tbl, Int(int64(instr.B())), val); err != nil {
			return nil, false, err
		}

	case OpSetField:
		tbl := *vm.reg(frameIdx, instr.A())
		key := proto.Constants[instr.B()]
		val := *vm.reg(frameIdx, instr.C())
		if err := vm.newindex(tbl, key, val); err != nil {
			return nil, false, err
		}

	case OpNewTable:
		*vm.reg(frameIdx, instr.A()) = fromTable(NewTable(vm.heap))
		f.pc++ // skip the array/hash size-hint EXTRAARG slot, unused here

	case OpSelf:
		obj := *vm.reg(frameIdx, instr.B())
		key := proto.Constants[instr.C()]
		v, ierr := vm.index(obj, key)
		if ierr != nil {
			return nil, false, ierr
		}
		*vm.reg(frameIdx, instr.A()+1) = obj
		*vm.reg(frameIdx, instr.A()) = v

	case OpAdd, OpSub, OpMul, OpMod, OpPow, OpDiv, OpIDiv, OpBAnd, OpBOr, OpBXor, OpShl, OpShr:
		a := *vm.reg(frameIdx, instr.B())
		b := *vm.reg(frameIdx, instr.C())
		v, ok, raised := Arith(arithOpFor(op), a, b)
		if raised != nil {
			return nil, false, raised
		}
		if ok {
			*vm.reg(frameIdx, instr.A()) = v
		}
		// A soft failure is not an error (§4.2): leave R[A] untouched and
		// fall through to the following MMBIN marker, which is a no-op
		// since this build dispatches no metamethods.

	case OpAddK, OpSubK, OpMulK, OpModK, OpPowK, OpDivK, OpIDivK, OpBAndK, OpBOrK, OpBXorK:
		a := *vm.reg(frameIdx, instr.B())
		b := proto.Constants[instr.C()]
		v, ok, raised := Arith(arithOpFor(op), a, b)
		if raised != nil {
			return nil, false, raised
		}
		if ok {
			*vm.reg(frameIdx, instr.A()) = v
		}

	case OpAddI:
		a := *vm.reg(frameIdx, instr.B())
		v, ok, raised := Arith(OpArithAdd, a, Int(int64(int8(instr.C()))))
		if raised != nil {
			return nil, false, raised
		}
		if ok {
			*vm.reg(frameIdx, instr.A()) = v
		}

	case OpShlI:
		a := *vm.reg(frameIdx, instr.B())
		if ai, ok := ToIntegerNoStringCoercion(a); ok {
			*vm.reg(frameIdx, instr.A()) = Int(ShiftLeft(ai, int64(int8(instr.C()))))
		}

	case OpShrI:
		a := *vm.reg(frameIdx, instr.B())
		if ai, ok := ToIntegerNoStringCoercion(a); ok {
			*vm.reg(frameIdx, instr.A()) = Int(ShiftLeft(ai, -int64(int8(instr.C()))))
		}

	case OpUnm:
		a := *vm.reg(frameIdx, instr.B())
		switch a.Kind() {
		case KInt:
			*vm.reg(frameIdx, instr.A()) = Int(-a.AsInt())
		case KFloat:
			*vm.reg(frameIdx, instr.A()) = Float(-a.AsFloat())
		default:
			return nil, false, &rterrors.TypeError{Operation: "perform arithmetic on", Type: TypeName(a)}
		}

	case OpBNot:
		a := *vm.reg(frameIdx, instr.B())
		ai, ok := ToIntegerNoStringCoercion(a)
		if !ok {
			return nil, false, &rterrors.TypeError{Operation: "perform bitwise operation on", Type: TypeName(a)}
		}
		*vm.reg(frameIdx, instr.A()) = Int(^ai)

	case OpNot:
		a := *vm.reg(frameIdx, instr.B())
		*vm.reg(frameIdx, instr.A()) = Bool(!Truthy(a))

	case OpLen:
		a := *vm.reg(frameIdx, instr.B())
		switch a.Kind() {
		case KString:
			*vm.reg(frameIdx, instr.A()) = Int(int64(len(a.AsString().Value)))
		case KTable:
			*vm.reg(frameIdx, instr.A()) = Int(int64(a.AsTable().Len()))
		default:
			return nil, false, &rterrors.TypeError{Operation: "get length of", Type: TypeName(a)}
		}

	case OpConcat:
		a, n := int(instr.A()), int(instr.B())
		var sb []byte
		for i := 0; i < n; i++ {
			v := *vm.reg(frameIdx, uint8(a+i))
			switch v.Kind() {
			case KString:
				sb = append(sb, v.AsString().Value...)
			case KInt, KFloat:
				sb = append(sb, ToDisplayString(v)...)
			default:
				return nil, false, &rterrors.TypeError{Operation: "concatenate", Type: TypeName(v)}
			}
		}
		*vm.reg(frameIdx, uint8(a)) = vm.strings.Intern(string(sb))

	case OpEq, OpLt, OpLe:
		a := *vm.reg(frameIdx, instr.A())
		b := *vm.reg(frameIdx, instr.B())
		var cond bool
		switch op {
		case OpEq:
			cond = Equals(a, b)
		case OpLt:
			c := OrderedCompare(a, b)
			if c == CmpUndefined {
				return nil, false, &rterrors.TypeError{Operation: "compare", Type: worseType(a, b)}
			}
			cond = c == CmpLess // CmpNaN falls through here: NaN compares are always false, never an error
		case OpLe:
			c := OrderedCompare(a, b)
			if c == CmpUndefined {
				return nil, false, &rterrors.TypeError{Operation: "compare", Type: worseType(a, b)}
			}
			cond = c == CmpLess || c == CmpEqual // CmpNaN falls through here too
		}
		if cond != instr.K() {
			f.pc++ // skip the following JMP
		}

	case OpEqK:
		a := *vm.reg(frameIdx, instr.A())
		b := proto.Constants[instr.B()]
		if Equals(a, b) != instr.K() {
			f.pc++
		}

	case OpEqI:
		a := *vm.reg(frameIdx, instr.A())
		cond := a.IsInt() && a.AsInt() == int64(int8(instr.B()))
		if cond != instr.K() {
			f.pc++
		}

	case OpLtI, OpLeI, OpGtI, OpGeI:
		a := *vm.reg(frameIdx, instr.A())
		imm := Int(int64(int8(instr.B())))
		c := OrderedCompare(a, imm)
		if c == CmpUndefined {
			return nil, false, &rterrors.TypeError{Operation: "compare", Type: TypeName(a)}
		}
		var cond bool
		switch op {
		case OpLtI:
			cond = c == CmpLess
		case OpLeI:
			cond = c == CmpLess || c == CmpEqual
		case OpGtI:
			cond = c == CmpGreater
		case OpGeI:
			cond = c == CmpGreater || c == CmpEqual
		}
		if cond != instr.K() {
			f.pc++
		}

	case OpTest:
		a := *vm.reg(frameIdx, instr.A())
		if Truthy(a) != instr.K() {
			f.pc++
		}

	case OpTestSet:
		b := *vm.reg(frameIdx, instr.B())
		if Truthy(b) == instr.K() {
			*vm.reg(frameIdx, instr.A()) = b
		} else {
			f.pc++
		}

	case OpJmp:
		f.pc += int(instr.SJ())
		if instr.SJ() < 0 {
			vm.gcSafepoint()
		}

	case OpCall:
		res, err := vm.execCall(frameIdx, instr)
		if err != nil {
			return nil, false, err
		}
		_ = res

	case OpReturn:
		a, n := int(instr.A()), int(instr.B())
		var out []Value
		if n == 0 {
			out = append(out, vm.registers[f.base+a:]...)
		} else {
			out = make([]Value, n-1)
			for i := range out {
				out[i] = *vm.reg(frameIdx, uint8(a+i))
			}
		}
		vm.gcSafepoint() // results are still in registers, so still rooted
		vm.popFrame(frameIdx)
		return out, true, nil

	case OpReturn0:
		vm.gcSafepoint()
		vm.popFrame(frameIdx)
		return nil, true, nil

	case OpReturn1:
		v := *vm.reg(frameIdx, instr.A())
		vm.gcSafepoint()
		vm.popFrame(frameIdx)
		return []Value{v}, true, nil

	case OpForPrep:
		a := int(instr.A())
		init := *vm.reg(frameIdx, uint8(a))
		limit := *vm.reg(frameIdx, uint8(a+1))
		step := *vm.reg(frameIdx, uint8(a+2))
		ii, iok := ToIntegerNoStringCoercion(init)
		li, lok := ToIntegerNoStringCoercion(limit)
		si, sok := ToIntegerNoStringCoercion(step)
		if !iok || !lok || !sok {
			return nil, false, &rterrors.TypeError{Operation: "perform 'for'", Type: "number"}
		}
		if si == 0 {
			return nil, false, fmt.Errorf("'for' step is zero")
		}
		skip := (si > 0 && ii > li) || (si < 0 && ii < li)
		*vm.reg(frameIdx, uint8(a)) = Int(ii - si)
		*vm.reg(frameIdx, uint8(a+1)) = Int(li)
		*vm.reg(frameIdx, uint8(a+2)) = Int(si)
		if skip {
			f.pc += int(instr.SBx()) + 1
		}

	case OpForLoop:
		a := int(instr.A())
		counter := vm.reg(frameIdx, uint8(a)).AsInt()
		limit := vm.reg(frameIdx, uint8(a+1)).AsInt()
		step := vm.reg(frameIdx, uint8(a+2)).AsInt()
		counter += step
		cont := (step > 0 && counter <= limit) || (step < 0 && counter >= limit)
		if cont {
			*vm.reg(frameIdx, uint8(a)) = Int(counter)
			*vm.reg(frameIdx, uint8(a+3)) = Int(counter)
			f.pc -= int(instr.SBx())
			vm.gcSafepoint()
		}

	case OpSetList:
		a, b, c := int(instr.A()), int(instr.B()), int(instr.C())
		tbl := vm.reg(frameIdx, uint8(a)).AsTable()
		n := b
		if n == 0 {
			n = len(vm.registers) - (f.base + a + 1)
		}
		for i := 0; i < n; i++ {
			tbl.Set(vm.heap, Int(int64(c+i+1)), *vm.reg(frameIdx, uint8(a+1+i)))
		}

	case OpClosure:
		child := proto.Protos[instr.Bx()]
		ups := make([]*Upvalue, len(child.Upvalues))
		for i, desc := range child.Upvalues {
			if desc.InStack {
				ups[i] = vm.openUpvalueAt(f.base + int(desc.Index))
			} else {
				ups[i] = f.closure.Upvalues[desc.Index]
			}
		}
		*vm.reg(frameIdx, instr.A()) = NewLuaClosure(vm.heap, child, ups)

	case OpClose:
		vm.closeUpvaluesFrom(f.base + int(instr.A()))

	case OpTBC:
		// to-be-closed variable tracking is not implemented: no component
		// in this runtime models finalizers. Treated as a no-op.

	case OpMMBin, OpMMBinI, OpMMBinK:
		// Metamethod dispatch is out of scope for this build (no component
		// resolves a metatable event handler); per §4.2/§7 a soft-failed
		// arithmetic op's fallback instruction is a documented silent skip.

	case OpTForPrep, OpTForCall, OpTForLoop, OpVararg, OpVarargPrep, OpTailCall, OpExtraArg:
		return nil, false, fmt.Errorf("opcode %s not implemented", op)

	default:
		return nil, false, fmt.Errorf("unknown opcode %d", op)
	}

	vm.instructionCount++
	return nil, false, nil
}

func arithOpFor(op OpCode) ArithOp {
	switch op {
	case OpAdd, OpAddK:
		return OpArithAdd
	case OpSub, OpSubK:
		return OpArithSub
	case OpMul, OpMulK:
		return OpArithMul
	case OpMod, OpModK:
		return OpArithMod
	case OpPow, OpPowK:
		return OpArithPow
	case OpDiv, OpDivK:
		return OpArithDiv
	case OpIDiv, OpIDivK:
		return OpArithIDiv
	case OpBAnd, OpBAndK:
		return OpArithBAnd
	case OpBOr, OpBOrK:
		return OpArithBOr
	case OpBXor, OpBXorK:
		return OpArithBXor
	case OpShl:
		return OpArithShl
	case OpShr:
		return OpArithShr
	default:
		return OpArithAdd
	}
}

func worseType(a, b Value) string {
	if !a.IsNumber() {
		return TypeName(a)
	}
	return TypeName(b)
}

// index implements table/upvalue read access for GETTABLE/GETFIELD/GETI/
// GETTABUP/SELF. Metatables are not consulted: the core ships no
// metamethod dispatch (see design notes), so indexing a non-table raises,
// matching newindex's symmetric behaviour on write.
func (vm *VM) index(container, key Value) (Value, error) {
	if !container.IsTable() {
		return Nil, &rterrors.TypeError{Operation: "index", Type: TypeName(container)}
	}
	return container.AsTable().Get(key), nil
}

// newindex implements table write access, raising a type error when the
// target is not a table and a key error when the key is nil or NaN.
func (vm *VM) newindex(container, key, value Value) error {
	if !container.IsTable() {
		return &rterrors.TypeError{Operation: "index", Type: TypeName(container)}
	}
	if invalid := container.AsTable().Set(vm.heap, key, value); invalid {
		if key.IsNil() {
			return fmt.Errorf("table index is nil")
		}
		return fmt.Errorf("table index is NaN")
	}
	return nil
}

// execCall implements OP_CALL: gathers the callee and argument window
// starting at A, invokes it, and writes back however many results the
// caller wants (C-1, or every result produced when C==0).
func (vm *VM) execCall(frameIdx int, instr Instruction) ([]Value, error) {
	f := &vm.frames[frameIdx]
	a, b, c := int(instr.A()), int(instr.B()), int(instr.C())
	callee := *vm.reg(frameIdx, uint8(a))

	var args []Value
	if b == 0 {
		args = append(args, vm.registers[f.base+a+1:]...)
	} else {
		args = make([]Value, b-1)
		for i := range args {
			args[i] = *vm.reg(frameIdx, uint8(a+1+i))
		}
	}

	vm.gcSafepoint()
	results, err := vm.Call(callee, args)
	if err != nil {
		return nil, err
	}

	f = &vm.frames[frameIdx] // vm.registers may have been reallocated by the call
	want := c - 1
	if c == 0 {
		want = len(results)
	}
	base := f.base + a
	vm.ensureCapacity(base + want)
	for i := 0; i < want; i++ {
		if i < len(results) {
			vm.registers[base+i] = results[i]
		} else {
			vm.registers[base+i] = Nil
		}
	}
	return results, nil
}

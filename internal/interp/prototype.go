package interp

// LineInfo records where a prototype's source text begins. Either it
// spans the whole file (the top-level chunk) or a specific line range
// (a function definition).
type LineInfo struct {
	WholeFile bool
	First     int
	Last      int
}

// UpvalueDesc describes how a child prototype's closure should resolve one
// of its upvalues at CLOSURE time: either by capturing a live register in
// the enclosing frame (InStack) or by inheriting an upvalue cell already
// held by the enclosing closure.
type UpvalueDesc struct {
	InStack bool
	Index   uint8
}

// Prototype is the immutable compiled representation of a function: its
// code, constants, child prototypes and upvalue descriptors. Prototypes
// never change after the loader produces them, so they need no GC header
// of their own beyond the constants they hold (which are traced through
// every LuaClosure built from this prototype).
type Prototype struct {
	Name         string
	Source       string
	MaxStackSize uint8
	Lines        LineInfo
	Constants    []Value
	Code         []Instruction
	Protos       []*Prototype
	Upvalues     []UpvalueDesc
	InstrLines   []int // source line for each instruction, parallel to Code
}

// LineFor returns the source line associated with the instruction at pc,
// or 0 if no debug info was recorded.
func (p *Prototype) LineFor(pc int) int {
	if pc >= 0 && pc < len(p.InstrLines) {
		return p.InstrLines[pc]
	}
	return 0
}

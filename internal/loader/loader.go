// Package loader supplies the core with function prototypes. The
// source-to-bytecode compiler is an external collaborator (out of scope for
// this module); what lives here is the consumer-facing half: a Builder for
// assembling a Prototype tree programmatically (used by tests and by any
// embedder that already has compiled instructions), and a binary chunk
// codec so a prototype tree can round-trip through a file or network byte
// stream the way the driver's "load from source buffer or file" interface
// requires.
package loader

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"math"

	"github.com/google/uuid"

	"luavm/internal/interp"
)

// Loader decodes a compiled chunk into a root prototype ready to be wrapped
// as a closure and executed. Each successful load also returns a fresh
// identifier that tells this load apart from any other, even when two
// chunks share a source name. strings is the target VM's intern store:
// string constants are allocated into it as they're decoded, since a
// Prototype's constants must already be live heap values by the time the
// core touches them.
type Loader interface {
	Load(chunk []byte, strings *interp.Strings) (*interp.Prototype, ChunkID, error)
}

// ChunkID names one load of a chunk, independent of its source-name text
// (two loads of the same file get distinct IDs).
type ChunkID uuid.UUID

func (id ChunkID) String() string { return uuid.UUID(id).String() }

func newChunkID() ChunkID { return ChunkID(uuid.New()) }

// Builder assembles a Prototype by hand: the shape a bytecode decoder (or a
// test) produces instruction-by-instruction rather than via a textual
// compiler front end.
type Builder struct {
	proto *interp.Prototype
}

// NewBuilder starts a prototype for the named source, spanning the whole
// file (the top-level chunk shape; use NewFunctionBuilder for a nested one).
func NewBuilder(source string) *Builder {
	return &Builder{proto: &interp.Prototype{
		Source: source,
		Lines:  interp.LineInfo{WholeFile: true},
	}}
}

// NewFunctionBuilder starts a prototype for a function defined on lines
// [first, last] of source.
func NewFunctionBuilder(source string, first, last int) *Builder {
	return &Builder{proto: &interp.Prototype{
		Source: source,
		Lines:  interp.LineInfo{First: first, Last: last},
	}}
}

func (b *Builder) SetMaxStackSize(n uint8) *Builder { b.proto.MaxStackSize = n; return b }
func (b *Builder) SetName(name string) *Builder     { b.proto.Name = name; return b }

// AddConstant appends a constant and returns its index for use in LOADK/
// GETFIELD/etc operands.
func (b *Builder) AddConstant(v interp.Value) uint32 {
	b.proto.Constants = append(b.proto.Constants, v)
	return uint32(len(b.proto.Constants) - 1)
}

// AddStringConstant interns s into strings and appends the resulting Value
// as a constant, for the common case of building a prototype whose string
// literals aren't already heap values.
func (b *Builder) AddStringConstant(strings *interp.Strings, s string) uint32 {
	return b.AddConstant(strings.Intern(s))
}

// AddProto appends a child function prototype (for CLOSURE's Bx operand).
func (b *Builder) AddProto(child *interp.Prototype) uint32 {
	b.proto.Protos = append(b.proto.Protos, child)
	return uint32(len(b.proto.Protos) - 1)
}

// AddUpvalue appends an upvalue descriptor (for the child closure's
// resolution order).
func (b *Builder) AddUpvalue(inStack bool, index uint8) uint8 {
	b.proto.Upvalues = append(b.proto.Upvalues, interp.UpvalueDesc{InStack: inStack, Index: index})
	return uint8(len(b.proto.Upvalues) - 1)
}

// Emit appends one instruction, recording line for debug/traceback info.
func (b *Builder) Emit(instr interp.Instruction, line int) int {
	b.proto.Code = append(b.proto.Code, instr)
	b.proto.InstrLines = append(b.proto.InstrLines, line)
	return len(b.proto.Code) - 1
}

// PatchSBx rewrites the sBx field of a previously emitted jump/loop
// instruction, for the common pattern of emitting a placeholder jump and
// backpatching its offset once the target address is known.
func (b *Builder) PatchSBx(pc int, sbx int32) {
	old := b.proto.Code[pc]
	b.proto.Code[pc] = interp.EncodeAsBx(old.OpCode(), old.A(), sbx)
}

// PatchSJ is PatchSBx's counterpart for unconditional-jump (iAx/sJ) words.
func (b *Builder) PatchSJ(pc int, sj int32) {
	old := b.proto.Code[pc]
	b.proto.Code[pc] = interp.EncodeSJ(old.OpCode(), sj)
}

// Here returns the address the next Emit call will use, for forward-jump
// patching (emit placeholder, remember Here, patch once target is known).
func (b *Builder) Here() int { return len(b.proto.Code) }

func (b *Builder) Build() *interp.Prototype { return b.proto }

// magic identifies the binary chunk format understood by BinaryLoader.
// It deliberately does not claim compatibility with the reference
// interpreter's own bytecode signature (see Non-goals: no C API compat).
var magic = [4]byte{'L', 'U', 'A', 'V'}

// BinaryLoader decodes chunks produced by EncodeChunk: a flat binary
// serialization of a Prototype tree behind a 4-byte magic number, with no
// version field. It exists so the driver's
// "load from a file or buffer" interface has a concrete, round-trippable
// format to point at, standing in for the real bytecode compiler this
// module treats as an external collaborator.
type BinaryLoader struct{}

func (BinaryLoader) Load(chunk []byte, strings *interp.Strings) (*interp.Prototype, ChunkID, error) {
	r := bytes.NewReader(chunk)
	var got [4]byte
	if _, err := r.Read(got[:]); err != nil {
		return nil, ChunkID{}, fmt.Errorf("read magic: %w", err)
	}
	if got != magic {
		return nil, ChunkID{}, fmt.Errorf("not a recognised chunk (bad magic)")
	}
	proto, err := decodeProto(r, strings)
	if err != nil {
		return nil, ChunkID{}, err
	}
	return proto, newChunkID(), nil
}

// EncodeChunk serialises a prototype tree to the binary format BinaryLoader
// reads back. Used by tests and by any tool that persists a Builder's
// output for later loading.
func EncodeChunk(root *interp.Prototype) []byte {
	var buf bytes.Buffer
	buf.Write(magic[:])
	encodeProto(&buf, root)
	return buf.Bytes()
}

func encodeString(buf *bytes.Buffer, s string) {
	binary.Write(buf, binary.LittleEndian, uint32(len(s)))
	buf.WriteString(s)
}

func decodeString(r *bytes.Reader) (string, error) {
	var n uint32
	if err := binary.Read(r, binary.LittleEndian, &n); err != nil {
		return "", err
	}
	out := make([]byte, n)
	if _, err := r.Read(out); err != nil {
		return "", err
	}
	return string(out), nil
}

func encodeProto(buf *bytes.Buffer, p *interp.Prototype) {
	encodeString(buf, p.Name)
	encodeString(buf, p.Source)
	buf.WriteByte(p.MaxStackSize)
	if p.Lines.WholeFile {
		buf.WriteByte(1)
	} else {
		buf.WriteByte(0)
		binary.Write(buf, binary.LittleEndian, int32(p.Lines.First))
		binary.Write(buf, binary.LittleEndian, int32(p.Lines.Last))
	}

	binary.Write(buf, binary.LittleEndian, uint32(len(p.Constants)))
	for _, c := range p.Constants {
		encodeConstant(buf, c)
	}

	binary.Write(buf, binary.LittleEndian, uint32(len(p.Code)))
	for _, instr := range p.Code {
		binary.Write(buf, binary.LittleEndian, uint32(instr))
	}

	binary.Write(buf, binary.LittleEndian, uint32(len(p.InstrLines)))
	for _, l := range p.InstrLines {
		binary.Write(buf, binary.LittleEndian, int32(l))
	}

	binary.Write(buf, binary.LittleEndian, uint32(len(p.Upvalues)))
	for _, u := range p.Upvalues {
		if u.InStack {
			buf.WriteByte(1)
		} else {
			buf.WriteByte(0)
		}
		buf.WriteByte(u.Index)
	}

	binary.Write(buf, binary.LittleEndian, uint32(len(p.Protos)))
	for _, child := range p.Protos {
		encodeProto(buf, child)
	}
}

// constant tags. Prototypes may only hold constants with no further managed
// references (data model: "no Table/Closure"), so the tag set is closed.
const (
	tagNil = iota
	tagBool
	tagInt
	tagFloat
	tagString
)

func encodeConstant(buf *bytes.Buffer, v interp.Value) {
	switch v.Kind() {
	case interp.KNil:
		buf.WriteByte(tagNil)
	case interp.KBool:
		buf.WriteByte(tagBool)
		if v.AsBool() {
			buf.WriteByte(1)
		} else {
			buf.WriteByte(0)
		}
	case interp.KInt:
		buf.WriteByte(tagInt)
		binary.Write(buf, binary.LittleEndian, v.AsInt())
	case interp.KFloat:
		buf.WriteByte(tagFloat)
		binary.Write(buf, binary.LittleEndian, math.Float64bits(v.AsFloat()))
	case interp.KString:
		buf.WriteByte(tagString)
		encodeString(buf, v.AsString().Value)
	default:
		panic(fmt.Sprintf("constant of kind %v is not encodable", v.Kind()))
	}
}

func decodeProto(r *bytes.Reader, strings *interp.Strings) (*interp.Prototype, error) {
	name, err := decodeString(r)
	if err != nil {
		return nil, err
	}
	source, err := decodeString(r)
	if err != nil {
		return nil, err
	}
	maxStack, err := r.ReadByte()
	if err != nil {
		return nil, err
	}
	wholeFileFlag, err := r.ReadByte()
	if err != nil {
		return nil, err
	}
	var lines interp.LineInfo
	if wholeFileFlag == 1 {
		lines.WholeFile = true
	} else {
		var first, last int32
		if err := binary.Read(r, binary.LittleEndian, &first); err != nil {
			return nil, err
		}
		if err := binary.Read(r, binary.LittleEndian, &last); err != nil {
			return nil, err
		}
		lines.First, lines.Last = int(first), int(last)
	}

	var nConsts uint32
	if err := binary.Read(r, binary.LittleEndian, &nConsts); err != nil {
		return nil, err
	}
	consts := make([]interp.Value, nConsts)
	for i := range consts {
		v, err := decodeConstant(r, strings)
		if err != nil {
			return nil, err
		}
		consts[i] = v
	}

	var nCode uint32
	if err := binary.Read(r, binary.LittleEndian, &nCode); err != nil {
		return nil, err
	}
	code := make([]interp.Instruction, nCode)
	for i := range code {
		var w uint32
		if err := binary.Read(r, binary.LittleEndian, &w); err != nil {
			return nil, err
		}
		code[i] = interp.Instruction(w)
	}

	var nLines uint32
	if err := binary.Read(r, binary.LittleEndian, &nLines); err != nil {
		return nil, err
	}
	instrLines := make([]int, nLines)
	for i := range instrLines {
		var l int32
		if err := binary.Read(r, binary.LittleEndian, &l); err != nil {
			return nil, err
		}
		instrLines[i] = int(l)
	}

	var nUp uint32
	if err := binary.Read(r, binary.LittleEndian, &nUp); err != nil {
		return nil, err
	}
	ups := make([]interp.UpvalueDesc, nUp)
	for i := range ups {
		flag, err := r.ReadByte()
		if err != nil {
			return nil, err
		}
		idx, err := r.ReadByte()
		if err != nil {
			return nil, err
		}
		ups[i] = interp.UpvalueDesc{InStack: flag == 1, Index: idx}
	}

	var nProtos uint32
	if err := binary.Read(r, binary.LittleEndian, &nProtos); err != nil {
		return nil, err
	}
	protos := make([]*interp.Prototype, nProtos)
	for i := range protos {
		child, err := decodeProto(r, strings)
		if err != nil {
			return nil, err
		}
		protos[i] = child
	}

	return &interp.Prototype{
		Name:         name,
		Source:       source,
		MaxStackSize: maxStack,
		Lines:        lines,
		Constants:    consts,
		Code:         code,
		Protos:       protos,
		Upvalues:     ups,
		InstrLines:   instrLines,
	}, nil
}

func decodeConstant(r *bytes.Reader, strings *interp.Strings) (interp.Value, error) {
	tag, err := r.ReadByte()
	if err != nil {
		return interp.Nil, err
	}
	switch tag {
	case tagNil:
		return interp.Nil, nil
	case tagBool:
		b, err := r.ReadByte()
		if err != nil {
			return interp.Nil, err
		}
		return interp.Bool(b == 1), nil
	case tagInt:
		var i int64
		if err := binary.Read(r, binary.LittleEndian, &i); err != nil {
			return interp.Nil, err
		}
		return interp.Int(i), nil
	case tagFloat:
		var bits uint64
		if err := binary.Read(r, binary.LittleEndian, &bits); err != nil {
			return interp.Nil, err
		}
		return interp.Float(math.Float64frombits(bits)), nil
	case tagString:
		str, err := decodeString(r)
		if err != nil {
			return interp.Nil, err
		}
		return strings.Intern(str), nil
	default:
		return interp.Nil, fmt.Errorf("unknown constant tag %d", tag)
	}
}

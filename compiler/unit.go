package compiler

import (
	"fmt"

	"github.com/chazu/abacus/vm"
)

// ---------------------------------------------------------------------------
// Instruction units: bytecode before linking
// ---------------------------------------------------------------------------

// UnitKind tags an instruction unit.
type UnitKind uint8

const (
	UnitByte    UnitKind = iota // opcode or u8 operand
	UnitFloat                   // 8-byte float immediate
	UnitWord                    // word immediate
	UnitFuncRef                 // function index, becomes an absolute address
	UnitLabel                   // local label, becomes an absolute address
)

// Unit is one opcode or immediate of a function's instruction stream. Calls
// and jumps hold symbolic targets until the linker knows where every
// function starts.
type Unit struct {
	Kind  UnitKind
	Byte  byte
	Float float64
	Int   int // word value, function index or label id
}

// Size returns the encoded width of the unit in bytes.
func (u Unit) Size() int {
	switch u.Kind {
	case UnitByte:
		return 1
	case UnitFloat:
		return vm.FloatSize
	}
	return vm.WordSize
}

func (u Unit) String() string {
	switch u.Kind {
	case UnitByte:
		return fmt.Sprintf("byte(%d)", u.Byte)
	case UnitFloat:
		return fmt.Sprintf("f64(%v)", u.Float)
	case UnitWord:
		return fmt.Sprintf("word(%d)", u.Int)
	case UnitFuncRef:
		return fmt.Sprintf("func(#%d)", u.Int)
	case UnitLabel:
		return fmt.Sprintf("label(L%d)", u.Int)
	}
	return "unit(?)"
}

// Function is the unlinked instruction stream of main or a user function.
type Function struct {
	Name   string
	Index  int // function index, -1 for main
	Params int
	Slots  int
	Line   int

	Units  []Unit
	Labels []int          // label id -> byte offset within the function, -1 until marked
	Lines  []vm.LineEntry // function-relative offsets

	size int
}

// Size returns the encoded length of the function in bytes.
func (f *Function) Size() int {
	return f.size
}

func (f *Function) push(u Unit) {
	f.Units = append(f.Units, u)
	f.size += u.Size()
}

// Emit appends an opcode with no operands.
func (f *Function) Emit(op vm.Opcode) {
	f.push(Unit{Kind: UnitByte, Byte: byte(op)})
}

// EmitByte appends an opcode with a u8 operand.
func (f *Function) EmitByte(op vm.Opcode, operand byte) {
	f.Emit(op)
	f.push(Unit{Kind: UnitByte, Byte: operand})
}

// EmitFloat64 appends an opcode with a float operand.
func (f *Function) EmitFloat64(op vm.Opcode, v float64) {
	f.Emit(op)
	f.push(Unit{Kind: UnitFloat, Float: v})
}

// EmitWord appends an opcode with a word operand.
func (f *Function) EmitWord(op vm.Opcode, v int) {
	f.Emit(op)
	f.push(Unit{Kind: UnitWord, Int: v})
}

// EmitCall appends a call to the function with the given index.
func (f *Function) EmitCall(index int) {
	f.Emit(vm.OpCall)
	f.push(Unit{Kind: UnitFuncRef, Int: index})
}

// NewLabel creates an unmarked label.
func (f *Function) NewLabel() int {
	f.Labels = append(f.Labels, -1)
	return len(f.Labels) - 1
}

// Mark binds a label to the current end of the stream.
func (f *Function) Mark(label int) {
	f.Labels[label] = f.size
}

// EmitJump appends a jump to a label.
func (f *Function) EmitJump(op vm.Opcode, label int) {
	f.Emit(op)
	f.push(Unit{Kind: UnitLabel, Int: label})
}

// MarkLine records that code emitted from here on came from line.
func (f *Function) MarkLine(line int) {
	if line <= 0 {
		return
	}
	if n := len(f.Lines); n > 0 {
		last := f.Lines[n-1]
		if last.Line == line {
			return
		}
		if last.Offset == f.size {
			f.Lines[n-1].Line = line
			return
		}
	}
	f.Lines = append(f.Lines, vm.LineEntry{Offset: f.size, Line: line})
}

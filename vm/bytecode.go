package vm

import (
	"encoding/binary"
	"fmt"
	"math"
	"strconv"
	"strings"
)

// WordSize is the width in bytes of address and index immediates and of
// saved instruction pointers and frame bases on the stack.
const WordSize = strconv.IntSize / 8

// FloatSize is the width in bytes of a float immediate or stack value.
const FloatSize = 8

// ---------------------------------------------------------------------------
// Opcode definitions
// ---------------------------------------------------------------------------

// Opcode represents a single bytecode instruction.
type Opcode byte

// Arithmetic and constants
const (
	OpNOP       Opcode = 0x00 // no operation
	OpAddF64    Opcode = 0x01 // [a b] -> [a + b]
	OpSubF64    Opcode = 0x02 // [a b] -> [a - b]
	OpMulF64    Opcode = 0x03 // [a b] -> [a * b]
	OpDivF64    Opcode = 0x04 // [a b] -> [a / b]
	OpConstF64  Opcode = 0x05 // push inline float64 (8 bytes)
	OpPrintF64  Opcode = 0x06 // print top of stack, no pop
	OpPopF64    Opcode = 0x07 // discard top float
	OpConstU8   Opcode = 0x08 // push inline byte
	OpU8ToF64   Opcode = 0x09 // [b] -> [float64(b)]
	OpPopU8     Opcode = 0x0A // discard top byte
	OpConst0F64 Opcode = 0x0D // push 0.0
)

// Frames
const (
	OpSetCtx Opcode = 0x0B // push ctx as word, ctx = stack length
	OpRetCtx Opcode = 0x0C // ctx = pop word
)

// Locals
const (
	OpLoad0F64   Opcode = 0x0E // push slot 0
	OpLoad1F64   Opcode = 0x0F // push slot 1
	OpLoad2F64   Opcode = 0x10 // push slot 2
	OpLoadF64U8  Opcode = 0x11 // push slot (8-bit index)
	OpStore0F64  Opcode = 0x12 // slot 0 = top, no pop
	OpStore1F64  Opcode = 0x13 // slot 1 = top, no pop
	OpStore2F64  Opcode = 0x14 // slot 2 = top, no pop
	OpStoreF64U8 Opcode = 0x15 // slot (8-bit index) = top, no pop
	OpZero64     Opcode = 0x16 // push n zero floats (word count)
	OpZero64U8   Opcode = 0x17 // push n zero floats (8-bit count)
	OpPop64U8    Opcode = 0x1A // drop n floats (8-bit count)
)

// Calls and control flow
const (
	OpCall        Opcode = 0x18 // push return address, jump (word target)
	OpRet         Opcode = 0x19 // ip = pop word
	OpExit        Opcode = 0x1B // halt
	OpRetF64      Opcode = 0x1C // keep top float, ip = pop word, drop n argument floats (8-bit count)
	OpArgF64U8    Opcode = 0x21 // push argument k floats below the saved words (8-bit k)
	OpRetCtxF64   Opcode = 0x22 // keep top float, truncate to ctx, ctx = pop word
	OpFinishF64   Opcode = 0x23 // result = pop float, halt
	OpJump        Opcode = 0x24 // unconditional jump (word target)
	OpJumpZeroF64 Opcode = 0x25 // pop float, jump if zero (word target)
)

// Intrinsics
const (
	OpPowF64  Opcode = 0x1D // [a b] -> [a ^ b]
	OpSinF64  Opcode = 0x1E // [x] -> [sin x]
	OpCosF64  Opcode = 0x1F // [x] -> [cos x]
	OpSqrtF64 Opcode = 0x20 // [x] -> [sqrt x]
)

// ---------------------------------------------------------------------------
// Opcode metadata
// ---------------------------------------------------------------------------

// OperandKind describes the immediate that follows an opcode.
type OperandKind uint8

const (
	OperandNone OperandKind = iota
	OperandU8
	OperandF64
	OperandWord
)

// Size returns the encoded width of the operand in bytes.
func (k OperandKind) Size() int {
	switch k {
	case OperandU8:
		return 1
	case OperandF64:
		return FloatSize
	case OperandWord:
		return WordSize
	}
	return 0
}

// OpcodeInfo holds metadata about an opcode.
type OpcodeInfo struct {
	Name    string      // human-readable name
	Operand OperandKind // immediate following the opcode
	Effect  string      // stack effect, for documentation and disassembly
}

// opcodeTable maps opcodes to their metadata.
var opcodeTable = map[Opcode]OpcodeInfo{
	OpNOP:       {"NOP", OperandNone, "[] -> []"},
	OpAddF64:    {"ADD_F64", OperandNone, "[a b] -> [a+b]"},
	OpSubF64:    {"SUB_F64", OperandNone, "[a b] -> [a-b]"},
	OpMulF64:    {"MUL_F64", OperandNone, "[a b] -> [a*b]"},
	OpDivF64:    {"DIV_F64", OperandNone, "[a b] -> [a/b]"},
	OpConstF64:  {"CONST_F64", OperandF64, "[] -> [x]"},
	OpPrintF64:  {"PRINT_F64", OperandNone, "[x] -> [x]"},
	OpPopF64:    {"POP_F64", OperandNone, "[x] -> []"},
	OpConstU8:   {"CONST_U8", OperandU8, "[] -> [b]"},
	OpU8ToF64:   {"U8_2_F64", OperandNone, "[b] -> [x]"},
	OpPopU8:     {"POP_U8", OperandNone, "[b] -> []"},
	OpSetCtx:    {"SET_CTX", OperandNone, "[] -> [ctx]"},
	OpRetCtx:    {"RET_CTX", OperandNone, "[ctx] -> []"},
	OpConst0F64: {"CONST_0_F64", OperandNone, "[] -> [0]"},

	OpLoad0F64:   {"LOAD_0_F64", OperandNone, "[] -> [v]"},
	OpLoad1F64:   {"LOAD_1_F64", OperandNone, "[] -> [v]"},
	OpLoad2F64:   {"LOAD_2_F64", OperandNone, "[] -> [v]"},
	OpLoadF64U8:  {"LOAD_F64_U8", OperandU8, "[] -> [v]"},
	OpStore0F64:  {"STORE_0_F64", OperandNone, "[v] -> [v]"},
	OpStore1F64:  {"STORE_1_F64", OperandNone, "[v] -> [v]"},
	OpStore2F64:  {"STORE_2_F64", OperandNone, "[v] -> [v]"},
	OpStoreF64U8: {"STORE_F64_U8", OperandU8, "[v] -> [v]"},
	OpZero64:     {"ZERO_64", OperandWord, "[] -> [0 ...]"},
	OpZero64U8:   {"ZERO_64_U8", OperandU8, "[] -> [0 ...]"},
	OpPop64U8:    {"POP_64_U8", OperandU8, "[x ...] -> []"},

	OpCall:        {"CALL", OperandWord, "[] -> [ret]"},
	OpRet:         {"RET", OperandNone, "[ret] -> []"},
	OpExit:        {"EXIT", OperandNone, "[] -> []"},
	OpRetF64:      {"RET_F64", OperandU8, "[args... ret v] -> [v]"},
	OpArgF64U8:    {"ARG_F64_U8", OperandU8, "[] -> [arg]"},
	OpRetCtxF64:   {"RET_CTX_F64", OperandNone, "[ctx locals... v] -> [v]"},
	OpFinishF64:   {"FINISH_F64", OperandNone, "[v] -> []"},
	OpJump:        {"JUMP", OperandWord, "[] -> []"},
	OpJumpZeroF64: {"JUMP_ZERO_F64", OperandWord, "[x] -> []"},

	OpPowF64:  {"POW_F64", OperandNone, "[a b] -> [a^b]"},
	OpSinF64:  {"SIN_F64", OperandNone, "[x] -> [sin x]"},
	OpCosF64:  {"COS_F64", OperandNone, "[x] -> [cos x]"},
	OpSqrtF64: {"SQRT_F64", OperandNone, "[x] -> [sqrt x]"},
}

// Info returns the metadata for an opcode.
func (op Opcode) Info() OpcodeInfo {
	if info, ok := opcodeTable[op]; ok {
		return info
	}
	return OpcodeInfo{Name: fmt.Sprintf("UNKNOWN_%02X", byte(op))}
}

// Valid reports whether op is a defined opcode.
func (op Opcode) Valid() bool {
	_, ok := opcodeTable[op]
	return ok
}

// Name returns the human-readable name for an opcode.
func (op Opcode) Name() string {
	return op.Info().Name
}

// OperandBytes returns the number of operand bytes for an opcode.
func (op Opcode) OperandBytes() int {
	return op.Info().Operand.Size()
}

// String implements the Stringer interface.
func (op Opcode) String() string {
	return op.Name()
}

// AllOpcodes returns every defined opcode in ascending order.
func AllOpcodes() []Opcode {
	ops := make([]Opcode, 0, len(opcodeTable))
	for i := 0; i < 256; i++ {
		if Opcode(i).Valid() {
			ops = append(ops, Opcode(i))
		}
	}
	return ops
}

// ---------------------------------------------------------------------------
// Operand encoding
// ---------------------------------------------------------------------------

// AppendF64 appends the little-endian IEEE-754 encoding of v.
func AppendF64(buf []byte, v float64) []byte {
	return binary.LittleEndian.AppendUint64(buf, math.Float64bits(v))
}

// AppendWord appends v as a little-endian word of WordSize bytes.
func AppendWord(buf []byte, v int) []byte {
	if WordSize == 8 {
		return binary.LittleEndian.AppendUint64(buf, uint64(v))
	}
	return binary.LittleEndian.AppendUint32(buf, uint32(v))
}

func decodeWord(b []byte) int {
	if WordSize == 8 {
		return int(binary.LittleEndian.Uint64(b))
	}
	return int(int32(binary.LittleEndian.Uint32(b)))
}

// ---------------------------------------------------------------------------
// BytecodeBuilder: Helper for constructing bytecode
// ---------------------------------------------------------------------------

// BytecodeBuilder appends encoded instructions and raw operands.
type BytecodeBuilder struct {
	bytes []byte
}

// NewBytecodeBuilder creates a new bytecode builder.
func NewBytecodeBuilder() *BytecodeBuilder {
	return &BytecodeBuilder{
		bytes: make([]byte, 0, 64),
	}
}

// Bytes returns the constructed bytecode.
func (b *BytecodeBuilder) Bytes() []byte {
	return b.bytes
}

// Len returns the current length.
func (b *BytecodeBuilder) Len() int {
	return len(b.bytes)
}

// Emit appends an opcode with no operands.
func (b *BytecodeBuilder) Emit(op Opcode) {
	b.bytes = append(b.bytes, byte(op))
}

// EmitRaw appends a raw byte.
func (b *BytecodeBuilder) EmitRaw(data byte) {
	b.bytes = append(b.bytes, data)
}

// EmitRawFloat64 appends a bare float immediate.
func (b *BytecodeBuilder) EmitRawFloat64(v float64) {
	b.bytes = AppendF64(b.bytes, v)
}

// EmitRawWord appends a bare word immediate.
func (b *BytecodeBuilder) EmitRawWord(v int) {
	b.bytes = AppendWord(b.bytes, v)
}

// EmitByte appends an opcode with a single byte operand.
func (b *BytecodeBuilder) EmitByte(op Opcode, operand byte) {
	b.bytes = append(b.bytes, byte(op), operand)
}

// EmitFloat64 appends an opcode with a 64-bit float operand.
func (b *BytecodeBuilder) EmitFloat64(op Opcode, operand float64) {
	b.bytes = append(b.bytes, byte(op))
	b.EmitRawFloat64(operand)
}

// EmitWord appends an opcode with a word operand.
func (b *BytecodeBuilder) EmitWord(op Opcode, operand int) {
	b.bytes = append(b.bytes, byte(op))
	b.EmitRawWord(operand)
}

// ---------------------------------------------------------------------------
// Bytecode reader
// ---------------------------------------------------------------------------

// BytecodeReader reads bytecode for interpretation or disassembly. Every
// read is bounds-checked and reports ErrTruncated instead of slicing past
// the end of the code.
type BytecodeReader struct {
	bytes []byte
	pos   int
}

// NewBytecodeReader creates a reader for bytecode.
func NewBytecodeReader(bc []byte) *BytecodeReader {
	return &BytecodeReader{bytes: bc, pos: 0}
}

// Position returns the current read position.
func (r *BytecodeReader) Position() int {
	return r.pos
}

// Len returns the length of the underlying code.
func (r *BytecodeReader) Len() int {
	return len(r.bytes)
}

// HasMore returns true if there are more bytes to read.
func (r *BytecodeReader) HasMore() bool {
	return r.pos >= 0 && r.pos < len(r.bytes)
}

// Seek sets the read position.
func (r *BytecodeReader) Seek(pos int) {
	r.pos = pos
}

// ReadOpcode reads and returns the next opcode.
func (r *BytecodeReader) ReadOpcode() (Opcode, error) {
	b, err := r.ReadByte()
	return Opcode(b), err
}

// ReadByte reads a single byte operand.
func (r *BytecodeReader) ReadByte() (byte, error) {
	if !r.HasMore() {
		return 0, ErrTruncated
	}
	b := r.bytes[r.pos]
	r.pos++
	return b, nil
}

// ReadFloat64 reads a 64-bit float operand.
func (r *BytecodeReader) ReadFloat64() (float64, error) {
	if r.pos < 0 || r.pos+FloatSize > len(r.bytes) {
		return 0, ErrTruncated
	}
	bits := binary.LittleEndian.Uint64(r.bytes[r.pos:])
	r.pos += FloatSize
	return math.Float64frombits(bits), nil
}

// ReadWord reads a word-sized operand.
func (r *BytecodeReader) ReadWord() (int, error) {
	if r.pos < 0 || r.pos+WordSize > len(r.bytes) {
		return 0, ErrTruncated
	}
	v := decodeWord(r.bytes[r.pos:])
	r.pos += WordSize
	return v, nil
}

// ---------------------------------------------------------------------------
// Disassembly
// ---------------------------------------------------------------------------

// DisassembleInstruction disassembles a single instruction at the reader's
// position and advances the reader past it.
func DisassembleInstruction(r *BytecodeReader) (string, error) {
	pos := r.Position()
	op, err := r.ReadOpcode()
	if err != nil {
		return "", err
	}
	info := op.Info()
	if !op.Valid() {
		return fmt.Sprintf("%04d  %s", pos, info.Name), fmt.Errorf("%w: 0x%02X at %d", ErrUnknownOpcode, byte(op), pos)
	}

	switch info.Operand {
	case OperandU8:
		b, err := r.ReadByte()
		if err != nil {
			return fmt.Sprintf("%04d  %s <truncated>", pos, info.Name), err
		}
		return fmt.Sprintf("%04d  %s %d", pos, info.Name, b), nil

	case OperandF64:
		v, err := r.ReadFloat64()
		if err != nil {
			return fmt.Sprintf("%04d  %s <truncated>", pos, info.Name), err
		}
		return fmt.Sprintf("%04d  %s %v", pos, info.Name, v), nil

	case OperandWord:
		w, err := r.ReadWord()
		if err != nil {
			return fmt.Sprintf("%04d  %s <truncated>", pos, info.Name), err
		}
		if op == OpZero64 {
			return fmt.Sprintf("%04d  %s %d", pos, info.Name, w), nil
		}
		return fmt.Sprintf("%04d  %s -> %04d", pos, info.Name, w), nil
	}
	return fmt.Sprintf("%04d  %s", pos, info.Name), nil
}

// Disassemble returns a full disassembly of bytecode, one instruction per
// line. Disassembly stops at the first undecodable instruction.
func Disassemble(bc []byte) string {
	r := NewBytecodeReader(bc)
	var lines []string
	for r.HasMore() {
		line, err := DisassembleInstruction(r)
		if line != "" {
			lines = append(lines, line)
		}
		if err != nil {
			lines = append(lines, fmt.Sprintf("; %v", err))
			break
		}
	}
	return strings.Join(lines, "\n")
}

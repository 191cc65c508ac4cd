// Package vm implements the abacus stack machine.
//
// This package contains:
//   - Opcode definitions, operand encoding and disassembly
//   - A kind-checked byte stack shared by floats, words and raw bytes
//   - The Program format produced by the linker
//   - The fetch-decode-execute interpreter
//   - CBOR listings of linked programs for tooling
//   - An execution profiler fed from the trace hook
package vm

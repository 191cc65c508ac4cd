package vm

import (
	"errors"
	"fmt"
)

// Fatal runtime conditions. A RuntimeError wraps exactly one of these.
var (
	ErrUnknownOpcode  = errors.New("unknown opcode")
	ErrStackUnderflow = errors.New("stack underflow")
	ErrOutOfBounds    = errors.New("stack access out of bounds")
	ErrKindMismatch   = errors.New("stack cell kind mismatch")
	ErrTruncated      = errors.New("truncated instruction")
	ErrBadTarget      = errors.New("jump target outside program")
	ErrStepLimit      = errors.New("step limit exceeded")
)

// RuntimeError reports a fatal condition raised while executing a program.
// Execution cannot be resumed after one.
type RuntimeError struct {
	IP   int    // offset of the faulting instruction
	Op   Opcode // opcode at IP
	Line int    // source line, 0 when unknown
	Err  error
}

func (e *RuntimeError) Error() string {
	if e.Line > 0 {
		return fmt.Sprintf("vm: %v at %04d (%s, line %d)", e.Err, e.IP, e.Op, e.Line)
	}
	return fmt.Sprintf("vm: %v at %04d (%s)", e.Err, e.IP, e.Op)
}

func (e *RuntimeError) Unwrap() error {
	return e.Err
}

// fault carries an error out of the dispatch loop via panic.
type fault struct {
	err error
}

func throw(err error) {
	panic(fault{err})
}

func throwf(err error, format string, args ...any) {
	panic(fault{fmt.Errorf("%w: "+format, append([]any{err}, args...)...)})
}

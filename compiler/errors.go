package compiler

import (
	"errors"
	"fmt"
)

var (
	// ErrTooManyLocals is returned when a function needs more local slots
	// than an 8-bit slot operand can address.
	ErrTooManyLocals = errors.New("too many locals")

	// ErrUnresolvedCall is returned by the linker when a call refers to a
	// function index with no compiled body.
	ErrUnresolvedCall = errors.New("call to unresolved function")
)

// ParseError reports a lexical or syntax error.
type ParseError struct {
	Line   int
	Column int
	Msg    string
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("line %d, column %d: %s", e.Line, e.Column, e.Msg)
}

// UnknownIdentifierError reports a variable or function that is never
// defined.
type UnknownIdentifierError struct {
	Name string
	Line int
}

func (e *UnknownIdentifierError) Error() string {
	return fmt.Sprintf("line %d: unknown identifier %q", e.Line, e.Name)
}

// WrongNumberOfArgumentsError reports a call whose argument count differs
// from the callee's parameter count.
type WrongNumberOfArgumentsError struct {
	Name     string
	Line     int
	Expected int
	Actual   int
}

func (e *WrongNumberOfArgumentsError) Error() string {
	return fmt.Sprintf("line %d: %s expects %d argument(s), got %d", e.Line, e.Name, e.Expected, e.Actual)
}

// DuplicateFunctionError reports a function defined twice, or a definition
// that shadows an intrinsic.
type DuplicateFunctionError struct {
	Name     string
	Line     int
	PrevLine int // 0 for intrinsics
}

func (e *DuplicateFunctionError) Error() string {
	if e.PrevLine == 0 {
		return fmt.Sprintf("line %d: function %q redefines a builtin", e.Line, e.Name)
	}
	return fmt.Sprintf("line %d: function %q already defined on line %d", e.Line, e.Name, e.PrevLine)
}

// DuplicateParameterError reports a parameter name used twice in one
// definition.
type DuplicateParameterError struct {
	Func string
	Name string
	Line int
}

func (e *DuplicateParameterError) Error() string {
	return fmt.Sprintf("line %d: duplicate parameter %q in %s", e.Line, e.Name, e.Func)
}

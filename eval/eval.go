// Package eval is a tree-walking evaluator for the expression language. It
// executes a parsed Block directly, without compiling it, and serves as the
// reference the compiler and VM are checked against.
package eval

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/chazu/abacus/compiler"
)

// ErrRecursionDepth is returned when calls nest deeper than the limit.
var ErrRecursionDepth = errors.New("recursion depth exceeded")

// DefaultMaxDepth bounds call nesting when no limit is configured.
const DefaultMaxDepth = 10000

// Option configures an Evaluator.
type Option func(*Evaluator)

// WithOutput sets where echoed values are written. Defaults to os.Stdout.
func WithOutput(w io.Writer) Option {
	return func(ev *Evaluator) { ev.out = w }
}

// WithEcho selects which top-level values are printed.
func WithEcho(m compiler.EchoMode) Option {
	return func(ev *Evaluator) { ev.echo = m }
}

// WithMaxDepth bounds call nesting. Zero or less means DefaultMaxDepth.
func WithMaxDepth(n int) Option {
	return func(ev *Evaluator) {
		if n <= 0 {
			n = DefaultMaxDepth
		}
		ev.maxDepth = n
	}
}

// Evaluator walks the AST and evaluates expressions. It owns all evaluation
// state; recursion in the source program is ordinary Go recursion through
// the evaluator's methods.
type Evaluator struct {
	out      io.Writer
	echo     compiler.EchoMode
	maxDepth int

	funcs *compiler.FuncTable
	depth int
	ctx   context.Context
}

// NewEvaluator creates an evaluator.
func NewEvaluator(opts ...Option) *Evaluator {
	ev := &Evaluator{
		out:      os.Stdout,
		maxDepth: DefaultMaxDepth,
	}
	for _, opt := range opts {
		opt(ev)
	}
	return ev
}

// Eval evaluates a whole program and returns the value of its last
// expression (0 for an empty program). Function definitions anywhere in the
// program are visible to every call, as in compiled code.
func (ev *Evaluator) Eval(ctx context.Context, program *compiler.Block) (float64, error) {
	funcs, err := compiler.Declare(program)
	if err != nil {
		return 0, err
	}
	ev.funcs = funcs
	ev.depth = 0
	ev.ctx = ctx

	env := NewEnvironment(compiler.Resolve(nil, program))
	if program.Empty() {
		if ev.echo != compiler.EchoNone {
			fmt.Fprintln(ev.out, 0.0)
		}
		return 0, nil
	}

	var result float64
	last := len(program.Exprs) - 1
	for i, e := range program.Exprs {
		v, err := ev.evalExpr(env, e)
		if err != nil {
			return 0, err
		}
		if ev.echo == compiler.EchoAll || (ev.echo == compiler.EchoLast && i == last) {
			fmt.Fprintln(ev.out, v)
		}
		result = v
	}
	return result, nil
}

// Eval is a convenience wrapper: evaluate program with a fresh evaluator.
func Eval(ctx context.Context, program *compiler.Block, opts ...Option) (float64, error) {
	return NewEvaluator(opts...).Eval(ctx, program)
}

// evalBlock returns the value of b's last expression, or 0 for the empty
// block, including a missing else.
func (ev *Evaluator) evalBlock(env *Environment, b *compiler.Block) (float64, error) {
	if b.Empty() {
		return 0, nil
	}
	var result float64
	for _, e := range b.Exprs {
		v, err := ev.evalExpr(env, e)
		if err != nil {
			return 0, err
		}
		result = v
	}
	return result, nil
}

func (ev *Evaluator) evalExpr(env *Environment, e compiler.Expr) (float64, error) {
	switch n := e.(type) {
	case *compiler.NumLit:
		return n.Value, nil

	case *compiler.Binary:
		a, err := ev.evalExpr(env, n.Left)
		if err != nil {
			return 0, err
		}
		b, err := ev.evalExpr(env, n.Right)
		if err != nil {
			return 0, err
		}
		return n.Op.Apply(a, b), nil

	case *compiler.Var:
		v, ok := env.Get(n.Name)
		if !ok {
			return 0, &compiler.UnknownIdentifierError{Name: n.Name, Line: n.Line()}
		}
		return v, nil

	case *compiler.Assign:
		v, err := ev.evalExpr(env, n.Value)
		if err != nil {
			return 0, err
		}
		env.Set(n.Name, v)
		return v, nil

	case *compiler.FuncCall:
		return ev.evalCall(env, n)

	case *compiler.FuncDef:
		return 0, nil

	case *compiler.If:
		c, err := ev.evalExpr(env, n.Cond)
		if err != nil {
			return 0, err
		}
		if c != 0 {
			return ev.evalBlock(env, n.Then)
		}
		return ev.evalBlock(env, n.Else)
	}
	return 0, fmt.Errorf("line %d: cannot evaluate %T", e.Line(), e)
}

func (ev *Evaluator) evalCall(env *Environment, n *compiler.FuncCall) (float64, error) {
	if in, ok := compiler.LookupIntrinsic(n.Name); ok {
		if len(n.Args) != 1 {
			return 0, &compiler.WrongNumberOfArgumentsError{Name: n.Name, Line: n.Line(), Expected: 1, Actual: len(n.Args)}
		}
		x, err := ev.evalExpr(env, n.Args[0])
		if err != nil {
			return 0, err
		}
		return in.Fn(x), nil
	}

	d, ok := ev.funcs.Lookup(n.Name)
	if !ok {
		return 0, &compiler.UnknownIdentifierError{Name: n.Name, Line: n.Line()}
	}
	params := d.Def.Params
	if len(params) != len(n.Args) {
		return 0, &compiler.WrongNumberOfArgumentsError{Name: n.Name, Line: n.Line(), Expected: len(params), Actual: len(n.Args)}
	}

	args := make([]float64, len(n.Args))
	for i, a := range n.Args {
		v, err := ev.evalExpr(env, a)
		if err != nil {
			return 0, err
		}
		args[i] = v
	}

	if ev.depth >= ev.maxDepth {
		return 0, fmt.Errorf("line %d: calling %s: %w", n.Line(), n.Name, ErrRecursionDepth)
	}
	if err := ev.ctx.Err(); err != nil {
		return 0, err
	}

	callee := NewEnvironment(d.Scope)
	for i, p := range params {
		callee.Set(p, args[i])
	}

	ev.depth++
	defer func() { ev.depth-- }()
	return ev.evalBlock(callee, d.Def.Body)
}

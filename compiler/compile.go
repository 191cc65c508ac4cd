package compiler

import (
	"context"
	"fmt"
	"strings"

	"github.com/chazu/abacus/vm"
	"github.com/tliron/commonlog"
)

var log = commonlog.GetLogger("abacus.compiler")

// EchoMode selects which top-level results the compiled program prints.
type EchoMode int

const (
	EchoNone EchoMode = iota // print nothing
	EchoLast                 // print the final value
	EchoAll                  // print every top-level value
)

var echoNames = map[EchoMode]string{
	EchoNone: "none",
	EchoLast: "last",
	EchoAll:  "all",
}

func (m EchoMode) String() string {
	if name, ok := echoNames[m]; ok {
		return name
	}
	return fmt.Sprintf("EchoMode(%d)", int(m))
}

// ParseEchoMode parses "none", "last" or "all". The empty string is none.
func ParseEchoMode(s string) (EchoMode, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	if s == "" {
		return EchoNone, nil
	}
	for m, name := range echoNames {
		if name == s {
			return m, nil
		}
	}
	return EchoNone, fmt.Errorf("unknown echo mode %q (want none, last or all)", s)
}

// Options configures compilation.
type Options struct {
	Echo EchoMode
}

// Compile resolves, compiles and links a program. Nothing is linked when
// any function fails to compile.
func Compile(program *Block, opts Options) (*vm.Program, error) {
	funcs, err := Declare(program)
	if err != nil {
		return nil, err
	}

	main, err := CompileMain(program, funcs, opts.Echo)
	if err != nil {
		return nil, err
	}

	compiled := make([]*Function, funcs.Len())
	for _, d := range funcs.Decls {
		fn, err := CompileFunction(d, funcs)
		if err != nil {
			return nil, err
		}
		compiled[d.Index] = fn
	}

	p, err := Link(main, compiled)
	if err != nil {
		return nil, err
	}
	if log.AllowLevel(commonlog.Debug) {
		for _, fn := range p.Functions {
			log.Debugf("linked %s at %04d: %d bytes, %d params, %d slots", fn.Name, fn.Entry, fn.Size, fn.Params, fn.Slots)
		}
	}
	return p, nil
}

// CompileSource parses and compiles source text.
func CompileSource(src string, opts Options) (*vm.Program, error) {
	block, err := Parse(src)
	if err != nil {
		return nil, err
	}
	return Compile(block, opts)
}

// Run compiles program and executes it on a fresh VM, returning the value
// of the last top-level expression. Compile errors are returned before any
// VM exists.
func Run(ctx context.Context, program *Block, opts Options, vmOpts ...vm.Option) (float64, error) {
	p, err := Compile(program, opts)
	if err != nil {
		return 0, err
	}
	res, err := vm.New(p, vmOpts...).Run(ctx)
	if err != nil {
		return 0, err
	}
	log.Debugf("run finished after %d steps", res.Steps)
	return res.Value, nil
}

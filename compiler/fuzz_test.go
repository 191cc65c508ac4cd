package compiler

import (
	"context"
	"errors"
	"testing"

	"github.com/chazu/abacus/vm"
)

// ---------------------------------------------------------------------------
// FuzzLexer: ensure the lexer never panics on arbitrary input.
// ---------------------------------------------------------------------------

func FuzzLexer(f *testing.F) {
	seeds := []string{
		`( ) { } , = + - * / ^`,
		`42`, `0`, `3.14`, `.5`, `1e10`, `1.5e-3`, `2E+5`, `2e`, `1e+`,
		`x`, `_tmp`, `def`, `if`, `else`, `café`,
		"// comment\nx",
		`$`, `#`, `"`, ``, "\t\n\r",
	}
	for _, s := range seeds {
		f.Add(s)
	}

	f.Fuzz(func(t *testing.T, input string) {
		toks := Tokenize(input)
		if len(toks) == 0 {
			t.Fatal("Tokenize returned no tokens")
		}
		last := toks[len(toks)-1].Type
		if last != TokenEOF && last != TokenError {
			t.Fatalf("last token = %v, want EOF or ERROR", last)
		}
	})
}

// ---------------------------------------------------------------------------
// FuzzCompileRun: parse, compile and run arbitrary source under a step
// budget. Compile errors are fine; runtime errors other than the budget
// mean the compiler emitted a bad program.
// ---------------------------------------------------------------------------

func FuzzCompileRun(f *testing.F) {
	seeds := []string{
		"1 + 2 * 3",
		"x = 5\nx ^ 2",
		"def sq(n) { n * n }\nsq(4)",
		"def fact(n) { if (n) { n * fact(n - 1) } else { 1 } }\nfact(5)",
		"if (0) { 1 } else if (1) { 2 }",
		"def f(a, b, c, d) { d - a }\nf(1, 2, 3, 4)",
		"def loop() { loop() }\nloop()",
		"sqrt(sin(pi) + cos(e))",
		"",
	}
	for _, s := range seeds {
		f.Add(s)
	}

	f.Fuzz(func(t *testing.T, src string) {
		p, err := CompileSource(src, Options{Echo: EchoNone})
		if err != nil {
			return
		}
		_, err = vm.New(p, vm.WithStepLimit(5000)).Run(context.Background())
		if err != nil && !errors.Is(err, vm.ErrStepLimit) {
			t.Fatalf("runtime error for %q: %v\n%s", src, err, vm.Disassemble(p.Code))
		}
	})
}

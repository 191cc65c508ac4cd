package compiler

import (
	"bytes"
	"context"
	"errors"
	"math"
	"testing"

	"github.com/chazu/abacus/vm"
)

func runSrc(t *testing.T, src string, echo EchoMode, opts ...vm.Option) (float64, string) {
	t.Helper()
	var out bytes.Buffer
	block := mustParse(t, src)
	v, err := Run(context.Background(), block, Options{Echo: echo}, append([]vm.Option{vm.WithOutput(&out)}, opts...)...)
	if err != nil {
		t.Fatalf("Run(%q): %v", src, err)
	}
	return v, out.String()
}

// ---------------------------------------------------------------------------
// Arithmetic and assignment
// ---------------------------------------------------------------------------

func TestRunArithmeticRoundTrip(t *testing.T) {
	values := []float64{0, 1, -1, 2.5, -0.75, 3, 1e-3, 1234.5}
	ops := []BinOp{OpAdd, OpSub, OpMul, OpDiv, OpPow}

	for _, op := range ops {
		for _, a := range values {
			for _, b := range values {
				block := NewBlock(&Binary{Op: op, Left: &NumLit{Value: a}, Right: &NumLit{Value: b}})
				got, err := Run(context.Background(), block, Options{})
				if err != nil {
					t.Fatalf("%v %s %v: %v", a, op, b, err)
				}
				want := op.Apply(a, b)
				if got != want && !(math.IsNaN(got) && math.IsNaN(want)) {
					t.Errorf("%v %s %v = %v, want %v", a, op, b, got, want)
				}
			}
		}
	}
}

func TestRunAssignmentIsExpression(t *testing.T) {
	block := NewBlock(&Assign{Name: "x", Value: &NumLit{Value: 5}})
	if v, err := Run(context.Background(), block, Options{}); err != nil || v != 5 {
		t.Errorf("x = 5 evaluates to %v, %v; want 5", v, err)
	}

	block.Exprs = append(block.Exprs, &Var{Name: "x"})
	if v, err := Run(context.Background(), block, Options{}); err != nil || v != 5 {
		t.Errorf("x after x = 5 is %v, %v; want 5", v, err)
	}

	if v, _ := runSrc(t, "a = b = 3\na * b", EchoNone); v != 9 {
		t.Errorf("chained assignment: %v, want 9", v)
	}
}

func TestRunConstants(t *testing.T) {
	if v, _ := runSrc(t, "pi", EchoNone); v != math.Pi {
		t.Errorf("pi = %v", v)
	}
	if v, _ := runSrc(t, "e", EchoNone); v != math.E {
		t.Errorf("e = %v", v)
	}
	if v, _ := runSrc(t, "pi = 3\npi", EchoNone); v != 3 {
		t.Errorf("assigned pi = %v, want 3", v)
	}
	want := 8.0
	want += math.E
	if v, _ := runSrc(t, "def f(e) { e * 2 }\nf(4) + e", EchoNone); v != want {
		t.Errorf("parameter e shadows the constant only inside f: %v", v)
	}
}

func TestRunIntrinsics(t *testing.T) {
	v, _ := runSrc(t, "sin(1) + cos(1) + sqrt(16)", EchoNone)
	if want := math.Sin(1) + math.Cos(1) + 4; v != want {
		t.Errorf("got %v, want %v", v, want)
	}
}

// ---------------------------------------------------------------------------
// Functions
// ---------------------------------------------------------------------------

func TestRunFunctionCall(t *testing.T) {
	block := NewBlock(
		&FuncDef{Name: "sq", Params: []string{"n"}, Body: NewBlock(
			&Binary{Op: OpMul, Left: &Var{Name: "n"}, Right: &Var{Name: "n"}},
		)},
		&FuncCall{Name: "sq", Args: []Expr{&NumLit{Value: 4}}},
	)

	var atCall, atFinish vm.TraceEvent
	trace := vm.WithTrace(func(ev vm.TraceEvent) {
		switch ev.Op {
		case vm.OpCall:
			atCall = ev
		case vm.OpFinishF64:
			atFinish = ev
		}
	})

	v, err := Run(context.Background(), block, Options{}, trace)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if v != 16 {
		t.Errorf("sq(4) = %v, want 16", v)
	}
	// One argument pushed before the call, one result after it.
	if atFinish.StackLen != atCall.StackLen {
		t.Errorf("stack after call = %d, want %d", atFinish.StackLen, atCall.StackLen)
	}
	if atFinish.Ctx != 0 {
		t.Errorf("ctx after call = %d, want 0", atFinish.Ctx)
	}
}

func TestRunCallerLocalsSurvive(t *testing.T) {
	src := `
def clobber(a) {
  x = 100
  y = a * 2
  y
}
x = 1
y = 2
z = clobber(7)
x + y + z
`
	if v, _ := runSrc(t, src, EchoNone); v != 17 {
		t.Errorf("got %v, want 17", v)
	}
}

func TestRunManyParams(t *testing.T) {
	src := "def f(a, b, c, d, e) { a - b + c * d - e }\nf(1, 2, 3, 4, 5)"
	if v, _ := runSrc(t, src, EchoNone); v != 1-2+3*4-5 {
		t.Errorf("got %v, want %v", v, 1-2+3*4-5)
	}
}

func TestRunCallBeforeDefinition(t *testing.T) {
	if v, _ := runSrc(t, "twice(3)\ndef twice(x) { x + x }", EchoNone); v != 0 {
		t.Errorf("last expression is the definition: got %v, want 0", v)
	}
	if v, _ := runSrc(t, "y = twice(3)\ndef twice(x) { x + x }\ny", EchoNone); v != 6 {
		t.Errorf("got %v, want 6", v)
	}
}

func TestRunNestedDefinitionIsGlobal(t *testing.T) {
	src := `
def outer(x) {
  def helper(y) { y + 1 }
  helper(x) * 10
}
outer(1) + helper(100)
`
	if v, _ := runSrc(t, src, EchoNone); v != 121 {
		t.Errorf("got %v, want 121", v)
	}
}

func TestRunEmptyBodies(t *testing.T) {
	if v, _ := runSrc(t, "def nothing() {}\nnothing() + 1", EchoNone); v != 1 {
		t.Errorf("got %v, want 1", v)
	}
	if v, _ := runSrc(t, "", EchoNone); v != 0 {
		t.Errorf("empty program = %v, want 0", v)
	}
}

// ---------------------------------------------------------------------------
// Conditionals and recursion
// ---------------------------------------------------------------------------

func TestRunIf(t *testing.T) {
	tests := []struct {
		src  string
		want float64
	}{
		{"if (1) { 10 } else { 20 }", 10},
		{"if (0) { 10 } else { 20 }", 20},
		{"if (0) { 10 }", 0},
		{"if (-0.5) { 1 }", 1},
		{"x = 3\nif (x - 3) { 1 } else if (x - 2) { 2 } else { 3 }", 2},
		{"if (1) { a = 4\n a * a }", 16},
	}
	for _, tt := range tests {
		if v, _ := runSrc(t, tt.src, EchoNone); v != tt.want {
			t.Errorf("%q = %v, want %v", tt.src, v, tt.want)
		}
	}
}

func TestRunRecursion(t *testing.T) {
	src := `
def fact(n) {
  if (n) { n * fact(n - 1) } else { 1 }
}
x = 5
y = fact(x)
x + y
`
	if v, _ := runSrc(t, src, EchoNone); v != 125 {
		t.Errorf("x + fact(x) = %v, want 125", v)
	}
	if v, _ := runSrc(t, "def fact(n) { if (n) { n * fact(n - 1) } else { 1 } }\nfact(10)", EchoNone); v != 3628800 {
		t.Errorf("fact(10) = %v, want 3628800", v)
	}
}

func TestRunMutualRecursion(t *testing.T) {
	src := `
def even(n) { if (n) { odd(n - 1) } else { 1 } }
def odd(n) { if (n) { even(n - 1) } else { 0 } }
even(10) * 10 + odd(7)
`
	if v, _ := runSrc(t, src, EchoNone); v != 11 {
		t.Errorf("got %v, want 11", v)
	}
}

func TestRunDivergentRecursionHitsStepLimit(t *testing.T) {
	block := mustParse(t, "def loop(n) { loop(n + 1) }\nloop(0)")
	_, err := Run(context.Background(), block, Options{}, vm.WithStepLimit(10000))
	if !errors.Is(err, vm.ErrStepLimit) {
		t.Errorf("err = %v, want ErrStepLimit", err)
	}
}

// ---------------------------------------------------------------------------
// Statement boundaries and output
// ---------------------------------------------------------------------------

func TestRunDiscardPopBalance(t *testing.T) {
	block := NewBlock(&NumLit{Value: 1}, &NumLit{Value: 2}, &NumLit{Value: 3})

	var heights []int
	trace := vm.WithTrace(func(ev vm.TraceEvent) {
		if ev.Op == vm.OpConstF64 || ev.Op == vm.OpFinishF64 {
			heights = append(heights, ev.StackLen)
		}
	})
	v, err := Run(context.Background(), block, Options{}, trace)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if v != 3 {
		t.Errorf("result = %v, want 3", v)
	}

	// Every statement starts from an empty stack; only the final value is
	// left for FINISH_F64.
	want := []int{0, 0, 0, vm.FloatSize}
	if len(heights) != len(want) {
		t.Fatalf("heights = %v, want %v", heights, want)
	}
	for i := range want {
		if heights[i] != want[i] {
			t.Errorf("height at boundary %d = %d, want %d", i, heights[i], want[i])
		}
	}
}

func TestRunEchoOutput(t *testing.T) {
	src := "x = 2\nx * 1.5\ndef f() { 1 }"
	tests := []struct {
		echo EchoMode
		want string
	}{
		{EchoNone, ""},
		{EchoLast, "0\n"},
		{EchoAll, "2\n3\n0\n"},
	}
	for _, tt := range tests {
		if _, out := runSrc(t, src, tt.echo); out != tt.want {
			t.Errorf("echo %s: output %q, want %q", tt.echo, out, tt.want)
		}
	}
}

func TestRunArityMismatchNeverRuns(t *testing.T) {
	block := mustParse(t, "def f() { 1 }\nf(2)")
	ran := false
	_, err := Run(context.Background(), block, Options{}, vm.WithTrace(func(vm.TraceEvent) { ran = true }))

	var e *WrongNumberOfArgumentsError
	if !errors.As(err, &e) || e.Expected != 0 || e.Actual != 1 {
		t.Errorf("err = %v, want WrongNumberOfArguments(0, 1)", err)
	}
	if ran {
		t.Error("VM executed despite a compile error")
	}
}

func TestParseEchoMode(t *testing.T) {
	tests := []struct {
		in   string
		want EchoMode
		ok   bool
	}{
		{"", EchoNone, true},
		{"none", EchoNone, true},
		{"LAST", EchoLast, true},
		{" all ", EchoAll, true},
		{"some", EchoNone, false},
	}
	for _, tt := range tests {
		got, err := ParseEchoMode(tt.in)
		if (err == nil) != tt.ok || got != tt.want {
			t.Errorf("ParseEchoMode(%q) = %v, %v", tt.in, got, err)
		}
	}
}

package conformance

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"math"

	"github.com/chazu/abacus/compiler"
	"github.com/chazu/abacus/eval"
	"github.com/chazu/abacus/vm"
)

// Defaults applied when a case sets no limit of its own.
const (
	DefaultStepLimit = 1_000_000
	DefaultMaxDepth  = 1000
)

// TestResult represents the outcome of running a single test on one engine
type TestResult struct {
	Test       LoadedTest
	Engine     string
	Passed     bool
	Skipped    bool
	SkipReason string
	Error      error
}

// Outcome is what one engine produced for one program.
type Outcome struct {
	Value  float64
	Output string
	Err    error
}

// Runner executes conformance tests
type Runner struct {
	ctx context.Context
}

// NewRunner creates a test runner. ctx bounds every run.
func NewRunner(ctx context.Context) *Runner {
	return &Runner{ctx: ctx}
}

// Execute runs a case's source on engine without checking anything.
func (r *Runner) Execute(tc TestCase, engine string) Outcome {
	echo, err := compiler.ParseEchoMode(tc.Echo)
	if err != nil {
		return Outcome{Err: err}
	}
	block, err := compiler.Parse(tc.Source)
	if err != nil {
		return Outcome{Err: err}
	}

	var out bytes.Buffer
	var v float64
	switch engine {
	case EngineVM:
		steps := tc.StepLimit
		if steps == 0 {
			steps = DefaultStepLimit
		}
		v, err = compiler.Run(r.ctx, block, compiler.Options{Echo: echo},
			vm.WithOutput(&out), vm.WithStepLimit(steps))
	case EngineEval:
		depth := tc.MaxDepth
		if depth == 0 {
			depth = DefaultMaxDepth
		}
		v, err = eval.Eval(r.ctx, block,
			eval.WithEcho(echo), eval.WithOutput(&out), eval.WithMaxDepth(depth))
	default:
		err = fmt.Errorf("unknown engine %q", engine)
	}
	return Outcome{Value: v, Output: out.String(), Err: err}
}

// Run executes a single test case on one engine
func (r *Runner) Run(test LoadedTest, engine string) TestResult {
	result := TestResult{Test: test, Engine: engine}
	if skipped, reason := test.Test.IsSkipped(); skipped {
		result.Skipped, result.SkipReason = true, reason
		return result
	}
	if !test.Test.RunsOn(engine) {
		result.Skipped, result.SkipReason = true, "not applicable to "+engine
		return result
	}

	result.Error = check(test.Test.Expect, r.Execute(test.Test, engine))
	result.Passed = result.Error == nil
	return result
}

// RunAll executes every test on every engine
func (r *Runner) RunAll(tests []LoadedTest) []TestResult {
	results := make([]TestResult, 0, len(tests)*len(Engines))
	for _, test := range tests {
		for _, engine := range Engines {
			results = append(results, r.Run(test, engine))
		}
	}
	return results
}

// SummaryStats counts results by outcome
type SummaryStats struct {
	Total   int
	Passed  int
	Failed  int
	Skipped int
}

// ComputeStats summarizes results
func ComputeStats(results []TestResult) SummaryStats {
	stats := SummaryStats{Total: len(results)}
	for _, r := range results {
		if r.Skipped {
			stats.Skipped++
		} else if r.Passed {
			stats.Passed++
		} else {
			stats.Failed++
		}
	}
	return stats
}

// FormatStats returns a human-readable summary
func FormatStats(stats SummaryStats) string {
	return fmt.Sprintf("%d passed, %d failed, %d skipped (%d total)",
		stats.Passed, stats.Failed, stats.Skipped, stats.Total)
}

// check compares an outcome with what the case expects.
func check(expect Expectation, got Outcome) error {
	if expect.Error != "" {
		if got.Err == nil {
			return fmt.Errorf("expected error %s, got value %v", expect.Error, got.Value)
		}
		if name := ErrorName(got.Err); name != expect.Error {
			return fmt.Errorf("expected error %s, got %s (%v)", expect.Error, name, got.Err)
		}
		if expect.Line != 0 {
			if line := ErrorLine(got.Err); line != expect.Line {
				return fmt.Errorf("expected error on line %d, got line %d (%v)", expect.Line, line, got.Err)
			}
		}
		return nil
	}

	if got.Err != nil {
		return fmt.Errorf("unexpected error: %w", got.Err)
	}
	if expect.Value != nil {
		want := *expect.Value
		if !(got.Value == want || math.IsNaN(got.Value) && math.IsNaN(want)) {
			return fmt.Errorf("value = %v, want %v", got.Value, want)
		}
	}
	if r := expect.Range; r != nil {
		if got.Value < r[0] || got.Value > r[1] {
			return fmt.Errorf("value = %v, want within [%v, %v]", got.Value, r[0], r[1])
		}
	}
	if expect.Output != nil && got.Output != *expect.Output {
		return fmt.Errorf("output = %q, want %q", got.Output, *expect.Output)
	}
	return nil
}

// ErrorName classifies an error by the names used in suite files.
func ErrorName(err error) string {
	var (
		parseErr *compiler.ParseError
		unknown  *compiler.UnknownIdentifierError
		arity    *compiler.WrongNumberOfArgumentsError
		dupFunc  *compiler.DuplicateFunctionError
		dupParam *compiler.DuplicateParameterError
	)
	switch {
	case errors.As(err, &parseErr):
		return "parse"
	case errors.As(err, &unknown):
		return "unknown_identifier"
	case errors.As(err, &arity):
		return "wrong_arguments"
	case errors.As(err, &dupFunc):
		return "duplicate_function"
	case errors.As(err, &dupParam):
		return "duplicate_parameter"
	case errors.Is(err, compiler.ErrTooManyLocals):
		return "too_many_locals"
	case errors.Is(err, vm.ErrStepLimit):
		return "step_limit"
	case errors.Is(err, eval.ErrRecursionDepth):
		return "recursion_depth"
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return "canceled"
	}
	return "other"
}

// ErrorLine returns the source line an error reports, or 0.
func ErrorLine(err error) int {
	var (
		parseErr *compiler.ParseError
		unknown  *compiler.UnknownIdentifierError
		arity    *compiler.WrongNumberOfArgumentsError
		dupFunc  *compiler.DuplicateFunctionError
		rt       *vm.RuntimeError
	)
	switch {
	case errors.As(err, &parseErr):
		return parseErr.Line
	case errors.As(err, &unknown):
		return unknown.Line
	case errors.As(err, &arity):
		return arity.Line
	case errors.As(err, &dupFunc):
		return dupFunc.Line
	case errors.As(err, &rt):
		return rt.Line
	}
	return 0
}

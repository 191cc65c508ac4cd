package conformance

import "slices"

// Engine names accepted in a test case's engines list.
const (
	EngineVM   = "vm"
	EngineEval = "eval"
)

// Engines lists every engine a case runs on when it names none.
var Engines = []string{EngineVM, EngineEval}

// TestSuite represents a complete YAML test file
type TestSuite struct {
	Name        string     `yaml:"name"`
	Description string     `yaml:"description,omitempty"`
	Tests       []TestCase `yaml:"tests"`
}

// TestCase represents a single test within a suite
type TestCase struct {
	Name        string      `yaml:"name"`
	Description string      `yaml:"description,omitempty"`
	Skip        interface{} `yaml:"skip,omitempty"`    // bool or string
	Engines     []string    `yaml:"engines,omitempty"` // default: all
	Source      string      `yaml:"source"`
	Echo        string      `yaml:"echo,omitempty"` // none|last|all
	StepLimit   int         `yaml:"step_limit,omitempty"`
	MaxDepth    int         `yaml:"max_depth,omitempty"`
	Expect      Expectation `yaml:"expect"`
}

// Expectation defines what result is expected from a test
type Expectation struct {
	Value  *float64  `yaml:"value,omitempty"`  // exact match, NaN matches NaN
	Range  []float64 `yaml:"range,omitempty"`  // min, max inclusive
	Output *string   `yaml:"output,omitempty"` // everything printed
	Error  string    `yaml:"error,omitempty"`  // see ErrorName
	Line   int       `yaml:"line,omitempty"`   // line the error is reported at
}

// Empty reports whether the expectation checks nothing.
func (e *Expectation) Empty() bool {
	return e.Value == nil && e.Range == nil && e.Output == nil && e.Error == ""
}

// IsSkipped returns true if this test should be skipped
func (tc *TestCase) IsSkipped() (bool, string) {
	switch v := tc.Skip.(type) {
	case bool:
		if v {
			return true, "skipped"
		}
	case string:
		return true, v
	}
	return false, ""
}

// RunsOn reports whether the case applies to engine.
func (tc *TestCase) RunsOn(engine string) bool {
	if len(tc.Engines) == 0 {
		return true
	}
	return slices.Contains(tc.Engines, engine)
}

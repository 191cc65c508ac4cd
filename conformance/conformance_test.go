package conformance

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestConformance(t *testing.T) {
	tests, err := LoadAllTests(TestPath)
	require.NoError(t, err)
	require.NotEmpty(t, tests)

	runner := NewRunner(context.Background())
	for _, test := range tests {
		for _, engine := range Engines {
			t.Run(test.File+"/"+test.Test.Name+"/"+engine, func(t *testing.T) {
				result := runner.Run(test, engine)
				if result.Skipped {
					t.Skipf("Skipped: %s", result.SkipReason)
				}
				require.NoError(t, result.Error, "source:\n%s", test.Test.Source)
				require.True(t, result.Passed)
			})
		}
	}
}

// Cases that run on both engines must produce the same value and output,
// whatever their expectation says.
func TestEnginesAgree(t *testing.T) {
	tests, err := LoadAllTests(TestPath)
	require.NoError(t, err)

	runner := NewRunner(context.Background())
	for _, test := range tests {
		tc := test.Test
		if skipped, _ := tc.IsSkipped(); skipped || !tc.RunsOn(EngineVM) || !tc.RunsOn(EngineEval) {
			continue
		}
		t.Run(test.File+"/"+tc.Name, func(t *testing.T) {
			a := runner.Execute(tc, EngineVM)
			b := runner.Execute(tc, EngineEval)
			require.Equal(t, ErrorName(a.Err), ErrorName(b.Err), "vm: %v\neval: %v", a.Err, b.Err)
			if a.Err != nil {
				return
			}
			if a.Value == a.Value { // NaN never equals itself
				require.Equal(t, a.Value, b.Value)
			}
			require.Equal(t, a.Output, b.Output)
		})
	}
}

func TestLoadAllTests(t *testing.T) {
	tests, err := LoadAllTests(TestPath)
	require.NoError(t, err)

	files := make(map[string]bool)
	for _, test := range tests {
		require.NotEmpty(t, test.Test.Name)
		require.NotEmpty(t, test.File)
		require.NotNil(t, test.Suite)
		files[test.File] = true
	}
	require.Len(t, files, 6)
	t.Logf("Loaded %d test cases from %d files", len(tests), len(files))
}

func TestLoadFileRejectsBadSuites(t *testing.T) {
	tests := []struct {
		name    string
		content string
	}{
		{"unknown key", "name: x\ntests:\n  - name: a\n    source: '1'\n    expect: {valeu: 1}\n"},
		{"no expectation", "name: x\ntests:\n  - name: a\n    source: '1'\n"},
		{"no name", "name: x\ntests:\n  - source: '1'\n    expect: {value: 1}\n"},
		{"duplicate name", "name: x\ntests:\n  - name: a\n    expect: {value: 1}\n  - name: a\n    expect: {value: 1}\n"},
		{"bad range", "name: x\ntests:\n  - name: a\n    expect: {range: [2, 1]}\n"},
		{"bad engine", "name: x\ntests:\n  - name: a\n    engines: [jit]\n    expect: {value: 1}\n"},
		{"not yaml", "name: [x\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), "suite.yaml")
			require.NoError(t, os.WriteFile(path, []byte(tt.content), 0644))
			_, err := LoadFile(path)
			require.Error(t, err)
		})
	}
}

func TestRunnerReportsFailures(t *testing.T) {
	runner := NewRunner(context.Background())
	one := 1.0
	empty := ""

	tests := []struct {
		name string
		tc   TestCase
	}{
		{"wrong value", TestCase{Name: "a", Source: "2", Expect: Expectation{Value: &one}}},
		{"out of range", TestCase{Name: "a", Source: "2", Expect: Expectation{Range: []float64{0, 1}}}},
		{"wrong output", TestCase{Name: "a", Source: "2", Echo: "last", Expect: Expectation{Output: &empty}}},
		{"missing error", TestCase{Name: "a", Source: "2", Expect: Expectation{Error: "parse"}}},
		{"wrong error", TestCase{Name: "a", Source: "x", Expect: Expectation{Error: "parse"}}},
		{"wrong line", TestCase{Name: "a", Source: "x", Expect: Expectation{Error: "unknown_identifier", Line: 3}}},
		{"unexpected error", TestCase{Name: "a", Source: "x", Expect: Expectation{Value: &one}}},
		{"bad echo", TestCase{Name: "a", Source: "1", Echo: "loud", Expect: Expectation{Value: &one}}},
	}
	for _, tt := range tests {
		for _, engine := range Engines {
			t.Run(tt.name+"/"+engine, func(t *testing.T) {
				result := runner.Run(LoadedTest{Test: tt.tc}, engine)
				require.False(t, result.Skipped)
				require.False(t, result.Passed)
				require.Error(t, result.Error)
			})
		}
	}
}

func TestRunnerSkips(t *testing.T) {
	runner := NewRunner(context.Background())
	one := 1.0

	result := runner.Run(LoadedTest{Test: TestCase{Name: "a", Skip: "later", Source: "1", Expect: Expectation{Value: &one}}}, EngineVM)
	require.True(t, result.Skipped)
	require.Equal(t, "later", result.SkipReason)

	result = runner.Run(LoadedTest{Test: TestCase{Name: "a", Skip: true, Source: "1", Expect: Expectation{Value: &one}}}, EngineVM)
	require.True(t, result.Skipped)

	result = runner.Run(LoadedTest{Test: TestCase{Name: "a", Engines: []string{EngineVM}, Source: "1", Expect: Expectation{Value: &one}}}, EngineEval)
	require.True(t, result.Skipped)

	result = runner.Run(LoadedTest{Test: TestCase{Name: "a", Skip: false, Source: "1", Expect: Expectation{Value: &one}}}, EngineEval)
	require.True(t, result.Passed)
}

func TestComputeStats(t *testing.T) {
	stats := ComputeStats([]TestResult{{Passed: true}, {Passed: true}, {Skipped: true}, {}})
	require.Equal(t, SummaryStats{Total: 4, Passed: 2, Failed: 1, Skipped: 1}, stats)
	require.Equal(t, "2 passed, 1 failed, 1 skipped (4 total)", FormatStats(stats))
}

func TestRunnerCanceled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	runner := NewRunner(ctx)

	// The VM checks the context every 1024 steps and the evaluator at every
	// call, so a long recursion notices on both.
	tc := TestCase{Source: "def f(n) { if (n) { f(n - 1) } else { 0 } }\nf(5000)"}
	for _, engine := range Engines {
		require.Equal(t, "canceled", ErrorName(runner.Execute(tc, engine).Err), engine)
	}
}

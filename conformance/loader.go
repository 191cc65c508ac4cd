package conformance

import (
	"bytes"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"

	"gopkg.in/yaml.v3"
)

// TestPath is the conformance suite shipped with the package.
const TestPath = "testdata"

// LoadedTest represents a test with its source file path
type LoadedTest struct {
	File  string
	Suite *TestSuite
	Test  TestCase
}

// LoadAllTests walks dir and loads every case of every .yaml file under it,
// in file name order.
func LoadAllTests(dir string) ([]LoadedTest, error) {
	var paths []string
	err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() && filepath.Ext(path) == ".yaml" {
			paths = append(paths, path)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	sort.Strings(paths)

	var loaded []LoadedTest
	for _, path := range paths {
		suite, err := LoadFile(path)
		if err != nil {
			return nil, err
		}
		rel, err := filepath.Rel(dir, path)
		if err != nil {
			rel = path
		}
		for _, tc := range suite.Tests {
			loaded = append(loaded, LoadedTest{File: rel, Suite: suite, Test: tc})
		}
	}
	return loaded, nil
}

// LoadFile parses a single YAML suite. Unknown keys are errors so that a
// misspelled expectation cannot silently pass.
func LoadFile(path string) (*TestSuite, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var suite TestSuite
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&suite); err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	if err := suite.validate(); err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return &suite, nil
}

func (s *TestSuite) validate() error {
	seen := make(map[string]bool, len(s.Tests))
	for i, tc := range s.Tests {
		if tc.Name == "" {
			return fmt.Errorf("test %d has no name", i)
		}
		if seen[tc.Name] {
			return fmt.Errorf("duplicate test name %q", tc.Name)
		}
		seen[tc.Name] = true
		if tc.Expect.Empty() {
			return fmt.Errorf("test %q has no expectation", tc.Name)
		}
		if r := tc.Expect.Range; r != nil && (len(r) != 2 || r[0] > r[1]) {
			return fmt.Errorf("test %q: range must be [min, max]", tc.Name)
		}
		for _, e := range tc.Engines {
			if e != EngineVM && e != EngineEval {
				return fmt.Errorf("test %q: unknown engine %q", tc.Name, e)
			}
		}
	}
	return nil
}

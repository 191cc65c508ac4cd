// Package manifest handles abacus.toml project configuration.
package manifest

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/BurntSushi/toml"
	"gopkg.in/yaml.v3"

	"github.com/chazu/abacus/compiler"
)

// FileNames lists the manifest file names searched for, in order.
var FileNames = []string{"abacus.toml", "abacus.yaml", "abacus.yml"}

// ErrNotFound is returned by Load when a directory has no manifest.
var ErrNotFound = errors.New("no abacus manifest")

// Manifest represents an abacus.toml project configuration.
type Manifest struct {
	Project Project       `toml:"project" yaml:"project"`
	Source  Source        `toml:"source" yaml:"source"`
	Run     RunConfig     `toml:"run" yaml:"run"`
	Listing ListingConfig `toml:"listing" yaml:"listing"`

	// Dir is the directory containing the manifest file (set at load time).
	Dir string `toml:"-" yaml:"-"`
	// Path is the manifest file itself.
	Path string `toml:"-" yaml:"-"`
}

// Project contains project metadata.
type Project struct {
	Name    string `toml:"name" yaml:"name"`
	Version string `toml:"version" yaml:"version"`
}

// Source configures the program to run.
type Source struct {
	Entry string `toml:"entry" yaml:"entry"`
}

// RunConfig holds the defaults for running the entry program. Command-line
// flags override them.
type RunConfig struct {
	Echo      string `toml:"echo" yaml:"echo"`
	StepLimit int    `toml:"step-limit" yaml:"step-limit"`
	Trace     bool   `toml:"trace" yaml:"trace"`
}

// ListingConfig configures listing output.
type ListingConfig struct {
	Output        string `toml:"output" yaml:"output"`
	IncludeSource bool   `toml:"include-source" yaml:"include-source"`
}

// Default returns the manifest used when a project has none.
func Default() *Manifest {
	m := &Manifest{}
	m.applyDefaults()
	return m
}

func (m *Manifest) applyDefaults() {
	if m.Run.Echo == "" {
		m.Run.Echo = "last"
	}
}

// Load parses the manifest in the given directory. It returns an error
// wrapping ErrNotFound if the directory has none.
func Load(dir string) (*Manifest, error) {
	for _, name := range FileNames {
		path := filepath.Join(dir, name)
		if _, err := os.Stat(path); err == nil {
			return LoadFile(path)
		}
	}
	return nil, fmt.Errorf("%w in %s", ErrNotFound, dir)
}

// LoadFile parses one manifest file. The format follows the extension:
// .yaml and .yml are YAML, anything else is TOML.
func LoadFile(path string) (*Manifest, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("cannot read %s: %w", path, err)
	}

	var m Manifest
	switch filepath.Ext(path) {
	case ".yaml", ".yml":
		dec := yaml.NewDecoder(bytes.NewReader(data))
		dec.KnownFields(true)
		if err := dec.Decode(&m); err != nil && !errors.Is(err, io.EOF) {
			return nil, fmt.Errorf("parse error in %s: %w", path, err)
		}
	default:
		md, err := toml.Decode(string(data), &m)
		if err != nil {
			return nil, fmt.Errorf("parse error in %s: %w", path, err)
		}
		if undecoded := md.Undecoded(); len(undecoded) > 0 {
			return nil, fmt.Errorf("parse error in %s: unknown key %s", path, undecoded[0])
		}
	}

	m.Path, err = filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("cannot resolve path %s: %w", path, err)
	}
	m.Dir = filepath.Dir(m.Path)
	m.applyDefaults()

	if err := m.Validate(); err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return &m, nil
}

// FindAndLoad walks up from startDir to find a manifest file, then loads
// and returns it. Returns nil if no manifest is found.
func FindAndLoad(startDir string) (*Manifest, error) {
	dir, err := filepath.Abs(startDir)
	if err != nil {
		return nil, err
	}

	for {
		for _, name := range FileNames {
			path := filepath.Join(dir, name)
			if _, err := os.Stat(path); err == nil {
				return LoadFile(path)
			}
		}

		parent := filepath.Dir(dir)
		if parent == dir {
			// Reached root
			return nil, nil
		}
		dir = parent
	}
}

// Validate checks the values that have a restricted range.
func (m *Manifest) Validate() error {
	if _, err := compiler.ParseEchoMode(m.Run.Echo); err != nil {
		return fmt.Errorf("run.echo: %w", err)
	}
	if m.Run.StepLimit < 0 {
		return fmt.Errorf("run.step-limit: must not be negative, got %d", m.Run.StepLimit)
	}
	return nil
}

// EchoMode returns the configured echo mode.
func (m *Manifest) EchoMode() compiler.EchoMode {
	mode, _ := compiler.ParseEchoMode(m.Run.Echo)
	return mode
}

// EntryPath returns the absolute path of the entry program, or "" if none
// is configured.
func (m *Manifest) EntryPath() string {
	return m.resolve(m.Source.Entry)
}

// ListingPath returns the absolute path listings are written to, or "" if
// none is configured.
func (m *Manifest) ListingPath() string {
	return m.resolve(m.Listing.Output)
}

func (m *Manifest) resolve(p string) string {
	if p == "" || filepath.IsAbs(p) {
		return p
	}
	return filepath.Join(m.Dir, p)
}

package main

import (
	"flag"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/chazu/abacus/compiler"
	"github.com/chazu/abacus/vm"
)

// cmdDisasm prints the listing of a source file or of a dumped .cbor
// listing.
func cmdDisasm(args []string, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet("disasm", flag.ContinueOnError)
	fs.SetOutput(stderr)
	raw := fs.Bool("raw", false, "Plain disassembly without function headers")
	if err := fs.Parse(args); err != nil {
		return 2
	}
	if fs.NArg() != 1 {
		fmt.Fprintln(stderr, "usage: abacus disasm [-raw] file.calc|file.cbor")
		return 2
	}

	l, err := loadListing(fs.Arg(0))
	if err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return 1
	}
	if *raw {
		fmt.Fprintln(stdout, vm.Disassemble(l.Code))
	} else {
		fmt.Fprint(stdout, l.Format())
	}
	return 0
}

// loadListing decodes a .cbor listing or compiles a source file into one.
// Source files are compiled without echo.
func loadListing(path string) (*vm.Listing, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	if filepath.Ext(path) == ".cbor" {
		return vm.UnmarshalListing(data)
	}
	p, err := compiler.CompileSource(string(data), compiler.Options{})
	if err != nil {
		return nil, fmt.Errorf("%s: %w", filepath.Base(path), err)
	}
	return vm.NewListing(p, string(data)), nil
}

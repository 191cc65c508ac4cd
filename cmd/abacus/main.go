// abacus CLI - compiles and runs expression-language programs
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"

	"github.com/tliron/commonlog"

	"github.com/chazu/abacus/compiler"
	"github.com/chazu/abacus/eval"
	"github.com/chazu/abacus/manifest"
	"github.com/chazu/abacus/server"
	"github.com/chazu/abacus/vm"

	_ "github.com/tliron/commonlog/simple"
)

var log = commonlog.GetLogger("abacus.cli")

// runOptions is the merged result of the manifest and the command line.
type runOptions struct {
	Echo      compiler.EchoMode
	StepLimit int
	Trace     bool
	Profile   bool
	Oracle    bool
	Dump      string
	DumpSrc   bool
}

func main() {
	if len(os.Args) > 1 {
		switch os.Args[1] {
		case "disasm":
			os.Exit(cmdDisasm(os.Args[2:], os.Stdout, os.Stderr))
		case "lsp":
			os.Exit(cmdLSP(os.Args[2:]))
		}
	}

	verbose := flag.Int("v", 0, "Log verbosity (1 info, 2 debug)")
	trace := flag.Bool("trace", false, "Trace every executed instruction to stderr")
	echo := flag.String("echo", "", "Print top-level values: none, last or all (default from manifest, else last)")
	steps := flag.Int("steps", -1, "Instruction budget, 0 for unlimited (default from manifest)")
	configPath := flag.String("config", "", "Manifest file (default: search upwards for abacus.toml)")
	dump := flag.String("dump", "", "Write the linked program listing (CBOR) to this file")
	oracle := flag.Bool("oracle", false, "Run the tree-walking evaluator instead of the VM")
	expr := flag.String("e", "", "Evaluate an expression and exit")
	profile := flag.Bool("profile", false, "Print per-function and per-opcode counts to stderr after the run")

	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: abacus [options] [file.calc]\n")
		fmt.Fprintf(os.Stderr, "       abacus disasm file.calc|file.cbor\n")
		fmt.Fprintf(os.Stderr, "       abacus lsp [-v n]\n\n")
		fmt.Fprintf(os.Stderr, "Runs a program, or starts a REPL when no file is given.\n\n")
		fmt.Fprintf(os.Stderr, "Options:\n")
		flag.PrintDefaults()
		fmt.Fprintf(os.Stderr, "\nExamples:\n")
		fmt.Fprintf(os.Stderr, "  abacus                       # Start REPL\n")
		fmt.Fprintf(os.Stderr, "  abacus prog.calc             # Run a file, print the last value\n")
		fmt.Fprintf(os.Stderr, "  abacus -echo all prog.calc   # Print every top-level value\n")
		fmt.Fprintf(os.Stderr, "  abacus -e '2 ^ 10'           # Evaluate one expression\n")
		fmt.Fprintf(os.Stderr, "  abacus -dump p.cbor prog.calc && abacus disasm p.cbor\n")
	}
	flag.Parse()

	commonlog.Configure(*verbose, nil)

	m, err := loadManifest(*configPath)
	if err != nil {
		fatal(err)
	}

	opts, err := mergeOptions(m, *echo, *steps, *trace)
	if err != nil {
		fatal(err)
	}
	opts.Oracle = *oracle
	opts.Profile = *profile
	opts.Dump = *dump
	if opts.Dump == "" {
		opts.Dump = m.ListingPath()
	}
	opts.DumpSrc = m.Listing.IncludeSource

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	if *expr != "" {
		if err := runSource(ctx, *expr, opts, os.Stdout, os.Stderr); err != nil {
			fatal(err)
		}
		return
	}

	path := flag.Arg(0)
	if path == "" {
		path = m.EntryPath()
	}
	if path == "" {
		os.Exit(runREPL(ctx, opts))
	}

	src, err := os.ReadFile(path)
	if err != nil {
		fatal(err)
	}
	log.Infof("running %s", path)
	if err := runSource(ctx, string(src), opts, os.Stdout, os.Stderr); err != nil {
		fatal(fmt.Errorf("%s: %w", filepath.Base(path), err))
	}
}

func fatal(err error) {
	fmt.Fprintf(os.Stderr, "Error: %v\n", err)
	os.Exit(1)
}

// loadManifest reads the manifest named by -config, or the nearest one
// above the working directory, or falls back to the defaults.
func loadManifest(path string) (*manifest.Manifest, error) {
	if path != "" {
		return manifest.LoadFile(path)
	}
	m, err := manifest.FindAndLoad(".")
	if err != nil {
		return nil, err
	}
	if m == nil {
		return manifest.Default(), nil
	}
	log.Infof("using manifest %s", m.Path)
	return m, nil
}

// mergeOptions lets explicit flags override the manifest. steps < 0 and an
// empty echo mean "not given".
func mergeOptions(m *manifest.Manifest, echo string, steps int, trace bool) (runOptions, error) {
	opts := runOptions{
		Echo:      m.EchoMode(),
		StepLimit: m.Run.StepLimit,
		Trace:     m.Run.Trace || trace,
	}
	if echo != "" {
		mode, err := compiler.ParseEchoMode(echo)
		if err != nil {
			return opts, err
		}
		opts.Echo = mode
	}
	if steps >= 0 {
		opts.StepLimit = steps
	}
	return opts, nil
}

// runSource parses src and runs it on the VM or, with Oracle set, on the
// evaluator. Program output goes to stdout, traces to stderr.
func runSource(ctx context.Context, src string, opts runOptions, stdout, stderr io.Writer) error {
	block, err := compiler.Parse(src)
	if err != nil {
		return err
	}

	if opts.Oracle {
		_, err := eval.Eval(ctx, block, eval.WithEcho(opts.Echo), eval.WithOutput(stdout))
		return err
	}

	p, err := compiler.Compile(block, compiler.Options{Echo: opts.Echo})
	if err != nil {
		return err
	}
	if opts.Dump != "" {
		if err := writeListing(opts.Dump, p, src, opts.DumpSrc); err != nil {
			return err
		}
	}

	var hooks []func(vm.TraceEvent)
	if opts.Trace {
		hooks = append(hooks, traceTo(stderr, p))
	}
	var prof *vm.Profiler
	if opts.Profile {
		prof = vm.NewProfiler(p)
		hooks = append(hooks, prof.Record)
	}

	vmOpts := []vm.Option{vm.WithOutput(stdout), vm.WithStepLimit(opts.StepLimit)}
	if len(hooks) > 0 {
		vmOpts = append(vmOpts, vm.WithTrace(func(ev vm.TraceEvent) {
			for _, h := range hooks {
				h(ev)
			}
		}))
	}
	res, err := vm.New(p, vmOpts...).Run(ctx)
	if prof != nil {
		fmt.Fprint(stderr, prof.Report())
	}
	if err != nil {
		var rt *vm.RuntimeError
		if errors.As(err, &rt) {
			log.Errorf("runtime error at %04d (%s)", rt.IP, rt.Op)
		}
		return err
	}
	log.Infof("finished in %d steps", res.Steps)
	return nil
}

// traceTo returns a trace hook printing one line per instruction.
func traceTo(w io.Writer, p *vm.Program) func(vm.TraceEvent) {
	return func(ev vm.TraceEvent) {
		fn, _ := p.FunctionAt(ev.IP)
		fmt.Fprintf(w, "%04d  %-14s stack=%-4d ctx=%-4d %s\n", ev.IP, ev.Op, ev.StackLen, ev.Ctx, fn.Name)
	}
}

func writeListing(path string, p *vm.Program, src string, includeSource bool) error {
	if !includeSource {
		src = ""
	}
	data, err := vm.MarshalListing(vm.NewListing(p, src))
	if err != nil {
		return err
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return err
		}
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("cannot write listing: %w", err)
	}
	log.Infof("wrote listing %s (%d bytes)", path, len(data))
	return nil
}

// cmdLSP serves the language server protocol on stdio. Logs go to stderr,
// which editors keep apart from the protocol stream.
func cmdLSP(args []string) int {
	fs := flag.NewFlagSet("lsp", flag.ContinueOnError)
	verbose := fs.Int("v", 0, "Log verbosity (1 info, 2 debug)")
	if err := fs.Parse(args); err != nil {
		return 2
	}
	commonlog.Configure(*verbose, nil)

	if err := server.NewLSP().Run(); err != nil {
		fmt.Fprintf(os.Stderr, "Server error: %v\n", err)
		return 1
	}
	return 0
}

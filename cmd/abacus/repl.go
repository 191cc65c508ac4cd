package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
	"github.com/peterh/liner"

	"github.com/chazu/abacus/compiler"
	"github.com/chazu/abacus/vm"
)

const (
	historyFile = ".abacus_history"
	promptMain  = ">> "
	promptCont  = ".. "
)

// session is the program a REPL has built so far. Every accepted input is
// appended to it and the whole program is rerun, so definitions and
// variables from earlier inputs stay visible. Only the value of the newest
// input is echoed.
type session struct {
	id    string
	lines []string
	opts  runOptions
}

func newSession(opts runOptions) *session {
	opts.Echo = compiler.EchoLast
	opts.Dump = ""
	return &session{id: uuid.New().String(), opts: opts}
}

func (s *session) source() string {
	return strings.Join(s.lines, "\n")
}

// eval runs the session extended by input. The input is kept only if the
// extended program runs cleanly.
func (s *session) eval(ctx context.Context, input string, stdout, stderr io.Writer) error {
	candidate := append(s.lines[:len(s.lines):len(s.lines)], input)
	if err := runSource(ctx, strings.Join(candidate, "\n"), s.opts, stdout, stderr); err != nil {
		return err
	}
	s.lines = candidate
	log.Debugf("session %s: %d inputs", s.id, len(s.lines))
	return nil
}

func (s *session) reset() {
	s.lines = nil
}

// command handles a ":" meta-command. It returns true when the REPL should
// exit.
func (s *session) command(cmd string, stdout io.Writer) bool {
	switch strings.TrimSpace(strings.ToLower(cmd)) {
	case ":quit", ":q":
		return true
	case ":help", ":h", ":?":
		fmt.Fprintln(stdout, "REPL Commands:")
		fmt.Fprintln(stdout, "  :help, :h, :?     Show this help")
		fmt.Fprintln(stdout, "  :source           Show the session program")
		fmt.Fprintln(stdout, "  :disasm           Disassemble the session program")
		fmt.Fprintln(stdout, "  :reset            Forget all definitions and variables")
		fmt.Fprintln(stdout, "  :quit, :q         Exit REPL")
	case ":source":
		fmt.Fprintln(stdout, s.source())
	case ":disasm":
		p, err := compiler.CompileSource(s.source(), compiler.Options{Echo: compiler.EchoLast})
		if err != nil {
			fmt.Fprintf(stdout, "Error: %v\n", err)
			break
		}
		fmt.Fprint(stdout, vm.NewListing(p, "").Format())
	case ":reset":
		s.reset()
		fmt.Fprintln(stdout, "Session cleared")
	default:
		fmt.Fprintln(stdout, "unknown command. Type :help for a list.")
	}
	return false
}

// incomplete reports whether src has unclosed parentheses or braces, in
// which case the REPL keeps reading.
func incomplete(src string) bool {
	depth := 0
	for _, tok := range compiler.Tokenize(src) {
		switch tok.Type {
		case compiler.TokenLParen, compiler.TokenLBrace:
			depth++
		case compiler.TokenRParen, compiler.TokenRBrace:
			depth--
		case compiler.TokenError:
			return false
		}
	}
	return depth > 0
}

func runREPL(ctx context.Context, opts runOptions) int {
	s := newSession(opts)
	log.Infof("REPL session %s", s.id)

	fmt.Println("abacus REPL (type :help for commands, :quit to exit)")

	ln := liner.NewLiner()
	defer ln.Close()
	ln.SetCtrlCAborts(true)

	home, _ := os.UserHomeDir()
	histPath := filepath.Join(home, historyFile)
	if f, err := os.Open(histPath); err == nil {
		_, _ = ln.ReadHistory(f)
		_ = f.Close()
	}
	defer func() {
		if f, err := os.Create(histPath); err == nil {
			_, _ = ln.WriteHistory(f)
			_ = f.Close()
		}
	}()

	for {
		input, ok := readInput(ln)
		if !ok {
			fmt.Println()
			return 0
		}
		if strings.TrimSpace(input) == "" {
			continue
		}
		ln.AppendHistory(strings.ReplaceAll(input, "\n", " "))

		if strings.HasPrefix(strings.TrimSpace(input), ":") {
			if s.command(input, os.Stdout) {
				return 0
			}
			continue
		}
		if err := s.eval(ctx, input, os.Stdout, os.Stderr); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		}
	}
}

// readInput reads one input, continuing across lines while brackets are
// open. It returns false at end of input or when the user aborts.
func readInput(ln *liner.State) (string, bool) {
	var b strings.Builder
	for {
		prompt := promptMain
		if b.Len() > 0 {
			prompt = promptCont
		}
		line, err := ln.Prompt(prompt)
		if errors.Is(err, io.EOF) || errors.Is(err, liner.ErrPromptAborted) {
			return "", false
		}
		if err != nil {
			return "", false
		}
		if b.Len() > 0 {
			b.WriteByte('\n')
		}
		b.WriteString(line)
		if !incomplete(b.String()) {
			return b.String(), true
		}
	}
}

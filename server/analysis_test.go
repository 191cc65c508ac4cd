package server

import (
	"strings"
	"testing"

	protocol "github.com/tliron/glsp/protocol_3_16"
)

const sample = `def square(n) { n * n }
def twice(f, x) {
  square(x) + square(x)
}
total = twice(1, 2)
square(total)`

func TestAnalyzeClean(t *testing.T) {
	a := Analyze(sample)
	if len(a.Diagnostics) != 0 {
		t.Fatalf("diagnostics = %v", a.Diagnostics)
	}
	if len(a.Funcs) != 2 || a.Funcs["square"] == nil || a.Funcs["twice"] == nil {
		t.Errorf("funcs = %v", a.Funcs)
	}
	if len(a.Vars) != 1 || a.Vars[0] != "total" {
		t.Errorf("vars = %v, want [total]", a.Vars)
	}
}

func TestAnalyzeDiagnostics(t *testing.T) {
	tests := []struct {
		name      string
		src       string
		line      uint32 // 0-based
		char      uint32
		width     uint32
		message   string
		keepsFunc bool
	}{
		{"unknown identifier", "x = 1\ny + x", 1, 0, 1, "unknown identifier", false},
		{"arity", "def f(a) { a }\n1 + f(1, 2)", 1, 4, 1, "f", true},
		{"duplicate", "def g() { 1 }\n  def g() { 2 }", 1, 6, 1, "g", true},
		{"parse", "1 +\n(2", 1, 2, 0, "line 2", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			a := Analyze(tt.src)
			if len(a.Diagnostics) != 1 {
				t.Fatalf("diagnostics = %v, want 1", a.Diagnostics)
			}
			d := a.Diagnostics[0]
			if d.Range.Start.Line != tt.line || d.Range.Start.Character != tt.char {
				t.Errorf("start = %d:%d, want %d:%d", d.Range.Start.Line, d.Range.Start.Character, tt.line, tt.char)
			}
			if w := d.Range.End.Character - d.Range.Start.Character; w != tt.width {
				t.Errorf("width = %d, want %d", w, tt.width)
			}
			if !strings.Contains(d.Message, tt.message) {
				t.Errorf("message %q does not mention %q", d.Message, tt.message)
			}
			if d.Severity == nil || *d.Severity != protocol.DiagnosticSeverityError {
				t.Error("severity should be error")
			}
			if tt.keepsFunc && len(a.Funcs) == 0 {
				t.Error("symbols lost on a compile error")
			}
		})
	}
}

func TestAnalysisComplete(t *testing.T) {
	a := Analyze(sample)

	labels := func(items []protocol.CompletionItem) []string {
		var out []string
		for _, it := range items {
			out = append(out, it.Label)
		}
		return out
	}

	tests := []struct {
		prefix string
		want   []string
	}{
		{"sq", []string{"square", "sqrt"}},
		{"t", []string{"twice", "total"}},
		{"p", []string{"pi"}},
		{"d", []string{"def"}},
		{"zzz", nil},
	}
	for _, tt := range tests {
		got := labels(a.Complete(tt.prefix))
		if strings.Join(got, ",") != strings.Join(tt.want, ",") {
			t.Errorf("Complete(%q) = %v, want %v", tt.prefix, got, tt.want)
		}
	}

	items := a.Complete("square")
	if len(items) != 1 || items[0].Detail == nil || *items[0].Detail != "square(n)" {
		t.Errorf("square detail = %+v", items)
	}
}

func TestAnalysisHover(t *testing.T) {
	a := Analyze(sample)

	tests := []struct {
		word string
		want string
	}{
		{"twice", "**twice(f, x)**\n\ndefined on line 2"},
		{"cos", "**cos(x)**\n\nbuiltin"},
		{"e", "**e** = 2.718281828459045"},
	}
	for _, tt := range tests {
		h := a.Hover(tt.word)
		if h == nil {
			t.Errorf("Hover(%q) = nil", tt.word)
			continue
		}
		mc, ok := h.Contents.(protocol.MarkupContent)
		if !ok || mc.Value != tt.want {
			t.Errorf("Hover(%q) = %+v, want %q", tt.word, h.Contents, tt.want)
		}
	}

	if h := a.Hover("total"); h != nil {
		t.Errorf("Hover(total) = %+v, want nil", h)
	}
}

func TestAnalysisDefinition(t *testing.T) {
	a := Analyze(sample)
	uri := protocol.DocumentUri("file:///sample.calc")

	locs := a.Definition(uri, "twice")
	if len(locs) != 1 {
		t.Fatalf("locations = %v", locs)
	}
	r := locs[0].Range
	if locs[0].URI != uri || r.Start.Line != 1 || r.Start.Character != 4 || r.End.Character != 9 {
		t.Errorf("twice defined at %+v", locs[0])
	}

	if locs := a.Definition(uri, "sqrt"); locs != nil {
		t.Errorf("builtin has a definition: %v", locs)
	}
}

func TestAnalysisReferences(t *testing.T) {
	a := Analyze(sample)
	uri := protocol.DocumentUri("file:///sample.calc")

	locs := a.References(uri, "square")
	if len(locs) != 4 {
		t.Fatalf("references = %d, want 4", len(locs))
	}
	wantLines := []uint32{0, 2, 2, 5}
	for i, loc := range locs {
		if loc.Range.Start.Line != wantLines[i] {
			t.Errorf("reference %d on line %d, want %d", i, loc.Range.Start.Line, wantLines[i])
		}
	}

	if locs := a.References(uri, "nothing"); len(locs) != 0 {
		t.Errorf("references to unknown name = %v", locs)
	}
}

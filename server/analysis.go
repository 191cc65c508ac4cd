package server

import (
	"errors"
	"fmt"
	"sort"
	"strings"

	protocol "github.com/tliron/glsp/protocol_3_16"

	"github.com/chazu/abacus/compiler"
)

// Analysis is what the server knows about one document: the diagnostics of
// its last compile and the symbols of its last successful parse.
type Analysis struct {
	Diagnostics []protocol.Diagnostic
	Funcs       map[string]*compiler.FuncDef
	Vars        []string
	tokens      []compiler.Token
}

// Analyze parses and compiles text. A document that fails to parse keeps
// no symbols; one that parses but fails to compile keeps them.
func Analyze(text string) *Analysis {
	a := &Analysis{
		Funcs:  make(map[string]*compiler.FuncDef),
		tokens: compiler.Tokenize(text),
	}

	block, err := compiler.Parse(text)
	if err != nil {
		a.addError(err)
		return a
	}

	compiler.Walk(block, func(e compiler.Expr) bool {
		if def, ok := e.(*compiler.FuncDef); ok {
			if _, dup := a.Funcs[def.Name]; !dup {
				a.Funcs[def.Name] = def
			}
		}
		return true
	})
	for name := range compiler.Resolve(nil, block).Vars {
		a.Vars = append(a.Vars, name)
	}
	sort.Strings(a.Vars)

	if _, err := compiler.Compile(block, compiler.Options{}); err != nil {
		a.addError(err)
	}
	return a
}

func (a *Analysis) addError(err error) {
	severity := protocol.DiagnosticSeverityError
	source := lspName
	a.Diagnostics = append(a.Diagnostics, protocol.Diagnostic{
		Range:    a.errorRange(err),
		Severity: &severity,
		Source:   &source,
		Message:  err.Error(),
	})
}

// errorRange places an error on the token it names when it can, else on
// the start of its line.
func (a *Analysis) errorRange(err error) protocol.Range {
	var (
		parseErr *compiler.ParseError
		unknown  *compiler.UnknownIdentifierError
		arity    *compiler.WrongNumberOfArgumentsError
		dupFunc  *compiler.DuplicateFunctionError
		dupParam *compiler.DuplicateParameterError
	)
	switch {
	case errors.As(err, &parseErr):
		return pointRange(parseErr.Line, parseErr.Column)
	case errors.As(err, &unknown):
		return a.nameRange(unknown.Line, unknown.Name)
	case errors.As(err, &arity):
		return a.nameRange(arity.Line, arity.Name)
	case errors.As(err, &dupFunc):
		return a.nameRange(dupFunc.Line, dupFunc.Name)
	case errors.As(err, &dupParam):
		return a.nameRange(dupParam.Line, dupParam.Func)
	}
	return pointRange(1, 1)
}

// nameRange finds the first identifier token spelled name on line.
func (a *Analysis) nameRange(line int, name string) protocol.Range {
	for _, tok := range a.tokens {
		if tok.Type == compiler.TokenIdentifier && tok.Pos.Line == line && tok.Literal == name {
			return tokenRange(tok)
		}
	}
	return pointRange(line, 1)
}

// Complete lists the names starting with prefix: functions, intrinsics,
// constants, top-level variables and keywords.
func (a *Analysis) Complete(prefix string) []protocol.CompletionItem {
	var items []protocol.CompletionItem
	add := func(name string, kind protocol.CompletionItemKind, detail string) {
		if !strings.HasPrefix(name, prefix) {
			return
		}
		label := name
		items = append(items, protocol.CompletionItem{
			Label:      label,
			Kind:       &kind,
			Detail:     &detail,
			InsertText: &label,
		})
	}

	for _, name := range sortedKeys(a.Funcs) {
		add(name, protocol.CompletionItemKindFunction, signature(a.Funcs[name]))
	}
	for _, name := range compiler.IntrinsicNames() {
		add(name, protocol.CompletionItemKindFunction, name+"(x) builtin")
	}
	for _, name := range sortedKeys(compiler.Constants) {
		add(name, protocol.CompletionItemKindConstant, fmt.Sprint(compiler.Constants[name]))
	}
	for _, name := range a.Vars {
		if _, isConst := compiler.Constants[name]; isConst {
			continue
		}
		add(name, protocol.CompletionItemKindVariable, "variable")
	}
	for _, kw := range []string{"def", "if", "else"} {
		add(kw, protocol.CompletionItemKindKeyword, "keyword")
	}

	const maxItems = 100
	if len(items) > maxItems {
		items = items[:maxItems]
	}
	return items
}

// Hover describes word, or returns nil if it names nothing known.
func (a *Analysis) Hover(word string) *protocol.Hover {
	var text string
	if def, ok := a.Funcs[word]; ok {
		text = fmt.Sprintf("**%s**\n\ndefined on line %d", signature(def), def.Line())
	} else if _, ok := compiler.LookupIntrinsic(word); ok {
		text = fmt.Sprintf("**%s(x)**\n\nbuiltin", word)
	} else if v, ok := compiler.Constants[word]; ok {
		text = fmt.Sprintf("**%s** = %v", word, v)
	} else {
		return nil
	}
	return &protocol.Hover{
		Contents: protocol.MarkupContent{
			Kind:  protocol.MarkupKindMarkdown,
			Value: text,
		},
	}
}

// Definition locates the definition of function word in the document.
func (a *Analysis) Definition(uri protocol.DocumentUri, word string) []protocol.Location {
	def, ok := a.Funcs[word]
	if !ok {
		return nil
	}
	// The name follows the def keyword on the definition's line.
	afterDef := false
	for _, tok := range a.tokens {
		if tok.Pos.Line != def.Line() {
			continue
		}
		if tok.Type == compiler.TokenDef {
			afterDef = true
			continue
		}
		if afterDef && tok.Type == compiler.TokenIdentifier && tok.Literal == word {
			return []protocol.Location{{URI: uri, Range: tokenRange(tok)}}
		}
		afterDef = false
	}
	return []protocol.Location{{URI: uri, Range: pointRange(def.Line(), 1)}}
}

// References lists every occurrence of identifier word.
func (a *Analysis) References(uri protocol.DocumentUri, word string) []protocol.Location {
	var locations []protocol.Location
	for _, tok := range a.tokens {
		if tok.Type == compiler.TokenIdentifier && tok.Literal == word {
			locations = append(locations, protocol.Location{URI: uri, Range: tokenRange(tok)})
		}
	}
	return locations
}

func signature(def *compiler.FuncDef) string {
	return fmt.Sprintf("%s(%s)", def.Name, strings.Join(def.Params, ", "))
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// pointRange converts a 1-based line and column to an empty LSP range.
func pointRange(line, col int) protocol.Range {
	p := protocol.Position{Line: protocol.UInteger(max(line-1, 0)), Character: protocol.UInteger(max(col-1, 0))}
	return protocol.Range{Start: p, End: p}
}

func tokenRange(tok compiler.Token) protocol.Range {
	r := pointRange(tok.Pos.Line, tok.Pos.Column)
	r.End.Character += protocol.UInteger(len(tok.Literal))
	return r
}

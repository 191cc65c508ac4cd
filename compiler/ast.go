package compiler

import (
	"math"
	"strconv"
	"strings"
)

// ---------------------------------------------------------------------------
// AST: Abstract Syntax Tree for the expression language
// ---------------------------------------------------------------------------

// Position represents a source location.
type Position struct {
	Offset int // byte offset
	Line   int // 1-based line number
	Column int // 1-based column number
}

// Expr is the interface implemented by all expression nodes. Every
// expression evaluates to exactly one float64.
type Expr interface {
	Line() int // 1-based source line, 0 for synthesized nodes
	String() string
	expr() // marker method
}

// Block is an ordered sequence of expressions. A nil or empty Block is the
// empty block, whose value is 0.
type Block struct {
	Exprs []Expr
}

// NewBlock creates a block from exprs.
func NewBlock(exprs ...Expr) *Block {
	return &Block{Exprs: exprs}
}

// Len returns the number of expressions in b. A nil block has none.
func (b *Block) Len() int {
	if b == nil {
		return 0
	}
	return len(b.Exprs)
}

// Empty reports whether b is the empty block.
func (b *Block) Empty() bool {
	return b.Len() == 0
}

func (b *Block) String() string {
	if b.Empty() {
		return "{}"
	}
	parts := make([]string, len(b.Exprs))
	for i, e := range b.Exprs {
		parts[i] = e.String()
	}
	return "{" + strings.Join(parts, "; ") + "}"
}

// ---------------------------------------------------------------------------
// Operators
// ---------------------------------------------------------------------------

// BinOp is a binary arithmetic operator.
type BinOp int

const (
	OpAdd BinOp = iota // +
	OpSub              // -
	OpMul              // *
	OpDiv              // /
	OpPow              // ^
)

var binOpNames = [...]string{"+", "-", "*", "/", "^"}

func (op BinOp) String() string {
	if op >= 0 && int(op) < len(binOpNames) {
		return binOpNames[op]
	}
	return "?"
}

// Apply evaluates a op b in float64 arithmetic.
func (op BinOp) Apply(a, b float64) float64 {
	switch op {
	case OpAdd:
		return a + b
	case OpSub:
		return a - b
	case OpMul:
		return a * b
	case OpDiv:
		return a / b
	case OpPow:
		return math.Pow(a, b)
	}
	return 0
}

// ---------------------------------------------------------------------------
// Expression nodes
// ---------------------------------------------------------------------------

// NumLit is a numeric literal.
type NumLit struct {
	SrcLine int
	Value   float64
}

func (n *NumLit) Line() int { return n.SrcLine }
func (n *NumLit) expr()     {}
func (n *NumLit) String() string {
	return strconv.FormatFloat(n.Value, 'g', -1, 64)
}

// Binary is a binary arithmetic expression. Left is evaluated first.
type Binary struct {
	SrcLine int
	Op      BinOp
	Left    Expr
	Right   Expr
}

func (n *Binary) Line() int { return n.SrcLine }
func (n *Binary) expr()     {}
func (n *Binary) String() string {
	return "(" + n.Left.String() + " " + n.Op.String() + " " + n.Right.String() + ")"
}

// Var reads a variable of the enclosing function activation.
type Var struct {
	SrcLine int
	Name    string
}

func (n *Var) Line() int      { return n.SrcLine }
func (n *Var) expr()          {}
func (n *Var) String() string { return n.Name }

// Assign stores a value into a variable and evaluates to that value.
type Assign struct {
	SrcLine int
	Name    string
	Value   Expr
}

func (n *Assign) Line() int { return n.SrcLine }
func (n *Assign) expr()     {}
func (n *Assign) String() string {
	return "(" + n.Name + " = " + n.Value.String() + ")"
}

// FuncCall calls a user function or intrinsic. Arguments are evaluated left
// to right.
type FuncCall struct {
	SrcLine int
	Name    string
	Args    []Expr
}

func (n *FuncCall) Line() int { return n.SrcLine }
func (n *FuncCall) expr()     {}
func (n *FuncCall) String() string {
	args := make([]string, len(n.Args))
	for i, a := range n.Args {
		args[i] = a.String()
	}
	return n.Name + "(" + strings.Join(args, ", ") + ")"
}

// FuncDef defines a globally visible function. The definition itself
// evaluates to 0 wherever it appears.
type FuncDef struct {
	SrcLine int
	Name    string
	Params  []string
	Body    *Block
}

func (n *FuncDef) Line() int { return n.SrcLine }
func (n *FuncDef) expr()     {}
func (n *FuncDef) String() string {
	return "def " + n.Name + "(" + strings.Join(n.Params, ", ") + ") " + n.Body.String()
}

// If evaluates Then when Cond is non-zero and Else otherwise. A nil Else is
// the empty block.
type If struct {
	SrcLine int
	Cond    Expr
	Then    *Block
	Else    *Block
}

func (n *If) Line() int { return n.SrcLine }
func (n *If) expr()     {}
func (n *If) String() string {
	s := "if " + n.Cond.String() + " " + n.Then.String()
	if n.Else != nil {
		s += " else " + n.Else.String()
	}
	return s
}

// Walk calls fn for every expression in b in evaluation order, depth first.
// When fn returns false the children of that expression are skipped.
// Function bodies are only entered when fn returns true for the FuncDef.
func Walk(b *Block, fn func(Expr) bool) {
	if b == nil {
		return
	}
	for _, e := range b.Exprs {
		walkExpr(e, fn)
	}
}

func walkExpr(e Expr, fn func(Expr) bool) {
	if !fn(e) {
		return
	}
	switch n := e.(type) {
	case *Binary:
		walkExpr(n.Left, fn)
		walkExpr(n.Right, fn)
	case *Assign:
		walkExpr(n.Value, fn)
	case *FuncCall:
		for _, a := range n.Args {
			walkExpr(a, fn)
		}
	case *FuncDef:
		Walk(n.Body, fn)
	case *If:
		walkExpr(n.Cond, fn)
		Walk(n.Then, fn)
		Walk(n.Else, fn)
	}
}

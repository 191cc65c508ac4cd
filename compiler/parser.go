package compiler

import (
	"fmt"
	"strconv"
)

// ---------------------------------------------------------------------------
// Parser: Recursive descent parser for the expression language
// ---------------------------------------------------------------------------

// Parser parses source code into a Block. Parsing stops at the first error.
type Parser struct {
	lexer     *Lexer
	curToken  Token
	peekToken Token
	err       *ParseError
}

// NewParser creates a new parser for the given input.
func NewParser(input string) *Parser {
	p := &Parser{lexer: NewLexer(input)}
	// Read two tokens to fill curToken and peekToken
	p.nextToken()
	p.nextToken()
	return p
}

// Parse parses a whole source file.
func Parse(input string) (*Block, error) {
	p := NewParser(input)
	b := p.ParseFile()
	if p.err != nil {
		return nil, p.err
	}
	return b, nil
}

// nextToken advances to the next token.
func (p *Parser) nextToken() {
	p.curToken = p.peekToken
	p.peekToken = p.lexer.NextToken()
	if p.curToken.Type == TokenError {
		p.errorAt(p.curToken, "%s", p.curToken.Literal)
	}
}

// curTokenIs checks if the current token is of the given type.
func (p *Parser) curTokenIs(t TokenType) bool {
	return p.curToken.Type == t
}

// peekTokenIs checks if the peek token is of the given type.
func (p *Parser) peekTokenIs(t TokenType) bool {
	return p.peekToken.Type == t
}

// failed reports whether an error has been recorded.
func (p *Parser) failed() bool {
	return p.err != nil
}

// expect advances if the current token matches, otherwise records an error.
func (p *Parser) expect(t TokenType) bool {
	if p.curTokenIs(t) {
		p.nextToken()
		return true
	}
	p.errorf("expected %s, got %s", t, describe(p.curToken))
	return false
}

// errorf records a parse error at the current token.
func (p *Parser) errorf(format string, args ...any) {
	p.errorAt(p.curToken, format, args...)
}

func (p *Parser) errorAt(tok Token, format string, args ...any) {
	if p.err != nil {
		return
	}
	p.err = &ParseError{Line: tok.Pos.Line, Column: tok.Pos.Column, Msg: fmt.Sprintf(format, args...)}
}

// Err returns the first parse error, if any.
func (p *Parser) Err() error {
	if p.err == nil {
		return nil
	}
	return p.err
}

func describe(tok Token) string {
	switch tok.Type {
	case TokenEOF:
		return "end of input"
	case TokenNumber, TokenIdentifier:
		return fmt.Sprintf("%s %q", tok.Type, tok.Literal)
	}
	return fmt.Sprintf("%q", tok.Literal)
}

// ---------------------------------------------------------------------------
// Top-level parsing
// ---------------------------------------------------------------------------

// ParseFile parses expressions until EOF.
func (p *Parser) ParseFile() *Block {
	b := &Block{}
	for !p.curTokenIs(TokenEOF) && !p.failed() {
		e := p.ParseExpression()
		if e == nil {
			break
		}
		b.Exprs = append(b.Exprs, e)
	}
	return b
}

// parseBlock parses "{" { expression } "}".
func (p *Parser) parseBlock() *Block {
	if !p.expect(TokenLBrace) {
		return nil
	}
	b := &Block{}
	for !p.curTokenIs(TokenRBrace) && !p.failed() {
		if p.curTokenIs(TokenEOF) {
			p.errorf("unexpected end of input, expected }")
			return nil
		}
		e := p.ParseExpression()
		if e == nil {
			return nil
		}
		b.Exprs = append(b.Exprs, e)
	}
	if !p.expect(TokenRBrace) {
		return nil
	}
	return b
}

// ParseExpression parses a single expression.
func (p *Parser) ParseExpression() Expr {
	if p.failed() {
		return nil
	}
	switch {
	case p.curTokenIs(TokenDef):
		return p.parseFuncDef()
	case p.curTokenIs(TokenIf):
		return p.parseIf()
	case p.curTokenIs(TokenIdentifier) && p.peekTokenIs(TokenAssign):
		return p.parseAssign()
	}
	return p.parseAdditive()
}

// parseFuncDef parses: "def" IDENT "(" [IDENT {"," IDENT}] ")" block
func (p *Parser) parseFuncDef() Expr {
	line := p.curToken.Pos.Line
	p.nextToken() // def

	if !p.curTokenIs(TokenIdentifier) {
		p.errorf("expected function name, got %s", describe(p.curToken))
		return nil
	}
	name := p.curToken.Literal
	p.nextToken()

	if !p.expect(TokenLParen) {
		return nil
	}
	var params []string
	for !p.curTokenIs(TokenRParen) {
		if !p.curTokenIs(TokenIdentifier) {
			p.errorf("expected parameter name, got %s", describe(p.curToken))
			return nil
		}
		params = append(params, p.curToken.Literal)
		p.nextToken()
		if p.curTokenIs(TokenComma) {
			p.nextToken()
			if !p.curTokenIs(TokenIdentifier) {
				p.errorf("expected parameter name, got %s", describe(p.curToken))
				return nil
			}
		} else if !p.curTokenIs(TokenRParen) {
			p.errorf("expected , or ), got %s", describe(p.curToken))
			return nil
		}
	}
	p.nextToken() // )

	body := p.parseBlock()
	if body == nil {
		return nil
	}
	return &FuncDef{SrcLine: line, Name: name, Params: params, Body: body}
}

// parseIf parses: "if" "(" expression ")" block [ "else" ( block | if ) ]
func (p *Parser) parseIf() Expr {
	line := p.curToken.Pos.Line
	p.nextToken() // if

	if !p.expect(TokenLParen) {
		return nil
	}
	cond := p.ParseExpression()
	if cond == nil || !p.expect(TokenRParen) {
		return nil
	}
	then := p.parseBlock()
	if then == nil {
		return nil
	}
	n := &If{SrcLine: line, Cond: cond, Then: then}

	if p.curTokenIs(TokenElse) {
		p.nextToken()
		if p.curTokenIs(TokenIf) {
			nested := p.parseIf()
			if nested == nil {
				return nil
			}
			n.Else = NewBlock(nested)
		} else {
			n.Else = p.parseBlock()
			if n.Else == nil {
				return nil
			}
		}
	}
	return n
}

// parseAssign parses: IDENT "=" expression
func (p *Parser) parseAssign() Expr {
	line := p.curToken.Pos.Line
	name := p.curToken.Literal
	p.nextToken() // name
	p.nextToken() // =
	value := p.ParseExpression()
	if value == nil {
		return nil
	}
	return &Assign{SrcLine: line, Name: name, Value: value}
}

// ---------------------------------------------------------------------------
// Arithmetic
// ---------------------------------------------------------------------------

func (p *Parser) parseAdditive() Expr {
	left := p.parseMultiplicative()
	for left != nil && (p.curTokenIs(TokenPlus) || p.curTokenIs(TokenMinus)) {
		op := OpAdd
		if p.curTokenIs(TokenMinus) {
			op = OpSub
		}
		line := p.curToken.Pos.Line
		p.nextToken()
		right := p.parseMultiplicative()
		if right == nil {
			return nil
		}
		left = &Binary{SrcLine: line, Op: op, Left: left, Right: right}
	}
	return left
}

func (p *Parser) parseMultiplicative() Expr {
	left := p.parseExponent()
	for left != nil && (p.curTokenIs(TokenStar) || p.curTokenIs(TokenSlash)) {
		op := OpMul
		if p.curTokenIs(TokenSlash) {
			op = OpDiv
		}
		line := p.curToken.Pos.Line
		p.nextToken()
		right := p.parseExponent()
		if right == nil {
			return nil
		}
		left = &Binary{SrcLine: line, Op: op, Left: left, Right: right}
	}
	return left
}

// parseExponent folds ^ to the left: 2^3^2 is (2^3)^2.
func (p *Parser) parseExponent() Expr {
	left := p.parseUnary()
	for left != nil && p.curTokenIs(TokenCaret) {
		line := p.curToken.Pos.Line
		p.nextToken()
		right := p.parseUnary()
		if right == nil {
			return nil
		}
		left = &Binary{SrcLine: line, Op: OpPow, Left: left, Right: right}
	}
	return left
}

// parseUnary desugars -x to 0 - x.
func (p *Parser) parseUnary() Expr {
	if p.curTokenIs(TokenMinus) {
		line := p.curToken.Pos.Line
		p.nextToken()
		operand := p.parseUnary()
		if operand == nil {
			return nil
		}
		return &Binary{SrcLine: line, Op: OpSub, Left: &NumLit{SrcLine: line}, Right: operand}
	}
	return p.parseFactor()
}

func (p *Parser) parseFactor() Expr {
	tok := p.curToken
	switch tok.Type {
	case TokenNumber:
		p.nextToken()
		v, err := strconv.ParseFloat(tok.Literal, 64)
		if err != nil {
			p.errorAt(tok, "invalid number %q", tok.Literal)
			return nil
		}
		return &NumLit{SrcLine: tok.Pos.Line, Value: v}

	case TokenIdentifier:
		p.nextToken()
		if !p.curTokenIs(TokenLParen) {
			return &Var{SrcLine: tok.Pos.Line, Name: tok.Literal}
		}
		args := p.parseArgs()
		if p.failed() {
			return nil
		}
		return &FuncCall{SrcLine: tok.Pos.Line, Name: tok.Literal, Args: args}

	case TokenLParen:
		p.nextToken()
		e := p.ParseExpression()
		if e == nil || !p.expect(TokenRParen) {
			return nil
		}
		return e

	case TokenEOF:
		p.errorf("unexpected end of input")
		return nil
	}

	p.errorf("unexpected %s", describe(tok))
	return nil
}

// parseArgs parses "(" [expression {"," expression}] ")".
func (p *Parser) parseArgs() []Expr {
	p.nextToken() // (
	var args []Expr
	for !p.curTokenIs(TokenRParen) {
		arg := p.ParseExpression()
		if arg == nil {
			return nil
		}
		args = append(args, arg)
		if p.curTokenIs(TokenComma) {
			p.nextToken()
			continue
		}
		if !p.curTokenIs(TokenRParen) {
			p.errorf("expected , or ), got %s", describe(p.curToken))
			return nil
		}
	}
	p.nextToken() // )
	return args
}

// Package parser implements a recursive-descent, precedence-climbed parser
// over the expression lexer's token stream, producing an ast.Node tree.
//
// Grounded on lang/parser/lexparse.go's LexParseErr (row/column-carrying
// error) shape, adapted to a hand-written recursive-descent parser per the
// exact grammar of spec §4.G rather than mgmt's goyacc-generated one.
package parser

import (
	"fmt"

	"github.com/purpleidea/poietic-core/internal/errwrap"
	"github.com/purpleidea/poietic-core/internal/expr/ast"
	"github.com/purpleidea/poietic-core/internal/expr/lexer"
)

// ErrorKind tags the specific syntax error a ParseError carries.
type ErrorKind int

// The syntax error kinds the parser can report, plus lexer errors
// propagated verbatim (spec §4.G).
const (
	ExpressionExpected ErrorKind = iota
	MissingRightParenthesis
	UnexpectedToken
	LexError
)

// String renders the canonical name of an ErrorKind.
func (k ErrorKind) String() string {
	switch k {
	case ExpressionExpected:
		return "ExpressionExpected"
	case MissingRightParenthesis:
		return "MissingRightParenthesis"
	case UnexpectedToken:
		return "UnexpectedToken"
	case LexError:
		return "LexError"
	default:
		return "unknown"
	}
}

// ParseError is a syntax error at a specific source location.
type ParseError struct {
	Kind ErrorKind
	Loc  lexer.Location
	Text string
}

// Error implements the error interface.
func (e *ParseError) Error() string {
	return fmt.Sprintf("%s: %q @%d:%d", e.Kind, e.Text, e.Loc.Line, e.Loc.Column)
}

// Errors returned by this package for non-ParseError failure paths.
const (
	ErrEmptySource = errwrap.ConstError("parser: empty source")
)

// Parse lexes and parses source into an expression tree. The returned
// node's String() is a normalized rendering, not the source text: trivia is
// dropped, binary operators are printed with single spaces around them, and
// numeric literals are printed from their parsed values (so "1_000" renders
// as "1000"). Spec §8's parser round-trip law operates on fullText, which
// callers reconstruct from the token stream, not from ast.Node.String().
func Parse(source string) (ast.Node, error) {
	tokens := lexer.Lex(source)
	p := &parser{tokens: tokens}
	node, err := p.parseExpression()
	if err != nil {
		return nil, err
	}
	if !p.atEmpty() {
		tok := p.current()
		return nil, &ParseError{Kind: UnexpectedToken, Loc: tok.Loc, Text: tok.Text}
	}
	return node, nil
}

type parser struct {
	tokens []lexer.Token
	pos    int
}

func (p *parser) current() lexer.Token { return p.tokens[p.pos] }

func (p *parser) atEmpty() bool { return p.current().Kind == lexer.KindEmpty }

func (p *parser) advance() lexer.Token {
	tok := p.tokens[p.pos]
	if p.pos < len(p.tokens)-1 {
		p.pos++
	}
	return tok
}

func (p *parser) checkLexError() error {
	tok := p.current()
	if tok.Kind == lexer.KindError {
		return &ParseError{Kind: LexError, Loc: tok.Loc, Text: fmt.Sprintf("%s: %s", tok.ErrorKind, tok.Text)}
	}
	return nil
}

// parseExpression := equality
func (p *parser) parseExpression() (ast.Node, error) {
	return p.parseEquality()
}

// equality := comparison (('=='|'!=') comparison)*
func (p *parser) parseEquality() (ast.Node, error) {
	return p.parseBinaryLevel(p.parseComparison, "==", "!=")
}

// comparison := term (('<'|'<='|'>'|'>=') term)*
func (p *parser) parseComparison() (ast.Node, error) {
	return p.parseBinaryLevel(p.parseTerm, "<", "<=", ">", ">=")
}

// term := factor (('+'|'-') factor)*
func (p *parser) parseTerm() (ast.Node, error) {
	return p.parseBinaryLevel(p.parseFactor, "+", "-")
}

// factor := unary (('*'|'/'|'%') unary)*
func (p *parser) parseFactor() (ast.Node, error) {
	return p.parseBinaryLevel(p.parseUnary, "*", "/", "%")
}

func (p *parser) parseBinaryLevel(next func() (ast.Node, error), ops ...string) (ast.Node, error) {
	left, err := next()
	if err != nil {
		return nil, err
	}
	for {
		if err := p.checkLexError(); err != nil {
			return nil, err
		}
		tok := p.current()
		if tok.Kind != lexer.KindOperator || !contains(ops, tok.Text) {
			return left, nil
		}
		p.advance()
		right, err := next()
		if err != nil {
			return nil, err
		}
		left = &ast.Binary{
			Span:  ast.Span{Start: left.Location().Start, End: right.Location().End, Line: left.Location().Line, Col: left.Location().Col},
			Op:    tok.Text,
			Left:  left,
			Right: right,
		}
	}
}

func contains(set []string, s string) bool {
	for _, x := range set {
		if x == s {
			return true
		}
	}
	return false
}

// unary := '-' unary | primary
func (p *parser) parseUnary() (ast.Node, error) {
	if err := p.checkLexError(); err != nil {
		return nil, err
	}
	tok := p.current()
	if tok.Kind == lexer.KindOperator && tok.Text == "-" {
		p.advance()
		inner, err := p.parseUnary()
		if err != nil {
			return nil, err
		}
		return &ast.Unary{Span: ast.Span{Line: tok.Loc.Line, Col: tok.Loc.Column}, Op: "-", Expr: inner}, nil
	}
	return p.parsePrimary()
}

// primary := literal | callOrVar | '(' expression ')'
func (p *parser) parsePrimary() (ast.Node, error) {
	if err := p.checkLexError(); err != nil {
		return nil, err
	}
	tok := p.current()
	switch tok.Kind {
	case lexer.KindInt:
		p.advance()
		return &ast.IntLit{Span: spanOf(tok), Value: tok.IntValue}, nil
	case lexer.KindDouble:
		p.advance()
		return &ast.DoubleLit{Span: spanOf(tok), Value: tok.DoubleValue}, nil
	case lexer.KindIdentifier:
		return p.parseCallOrVar()
	case lexer.KindLeftParen:
		p.advance()
		inner, err := p.parseExpression()
		if err != nil {
			return nil, err
		}
		if p.current().Kind != lexer.KindRightParen {
			t := p.current()
			return nil, &ParseError{Kind: MissingRightParenthesis, Loc: t.Loc, Text: t.Text}
		}
		p.advance()
		return &ast.Paren{Span: spanOf(tok), Inner: inner}, nil
	default:
		return nil, &ParseError{Kind: ExpressionExpected, Loc: tok.Loc, Text: tok.Text}
	}
}

// callOrVar := IDENT ['(' [expression (',' expression)*] ')']
func (p *parser) parseCallOrVar() (ast.Node, error) {
	nameTok := p.advance()
	if p.current().Kind != lexer.KindLeftParen {
		return &ast.Var{Span: spanOf(nameTok), Name: nameTok.Text}, nil
	}
	p.advance() // '('
	var args []ast.Node
	if p.current().Kind != lexer.KindRightParen {
		for {
			arg, err := p.parseExpression()
			if err != nil {
				return nil, err
			}
			args = append(args, arg)
			if p.current().Kind == lexer.KindComma {
				p.advance()
				continue
			}
			break
		}
	}
	if p.current().Kind != lexer.KindRightParen {
		t := p.current()
		return nil, &ParseError{Kind: MissingRightParenthesis, Loc: t.Loc, Text: t.Text}
	}
	p.advance()
	return &ast.Call{Span: spanOf(nameTok), Name: nameTok.Text, Args: args}, nil
}

func spanOf(tok lexer.Token) ast.Span {
	return ast.Span{Line: tok.Loc.Line, Col: tok.Loc.Column, Start: 0, End: len(tok.Text)}
}

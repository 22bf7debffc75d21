package kicadsexp

import (
	"fmt"
	"io"
	"regexp"
	"strings"
)

var (
	intPattern   = regexp.MustCompile(`^[+-]?[0-9]+$`)
	floatPattern = regexp.MustCompile(`^[+-]?([0-9]+\.?[0-9]*|\.[0-9]+)([eE][+-]?[0-9]+)?$`)
)

// classify decides the atom kind of an unquoted symbol from its lexical form
func classify(text string) Kind {
	switch {
	case intPattern.MatchString(text):
		return KindInt
	case floatPattern.MatchString(text):
		return KindFloat
	default:
		return KindSymbol
	}
}

// Parser parses S-expressions from a lexer
type Parser struct {
	lexer   *Lexer
	current Token
}

// NewParser creates a new parser over an in-memory source
func NewParser(src string) *Parser {
	return &Parser{
		lexer: NewLexer(src),
	}
}

// Parse reads all of r and parses it into a Document
func Parse(r io.Reader) (*Document, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("failed to read input: %w", err)
	}
	return ParseString(string(data))
}

// ParseString parses S-expressions from a string (convenience function)
func ParseString(s string) (*Document, error) {
	return NewParser(s).ParseDocument()
}

// ParseDocument parses all top-level S-expressions from the input
func (p *Parser) ParseDocument() (*Document, error) {
	doc := &Document{}

	if err := p.next(); err != nil {
		return nil, err
	}

	for p.current.Type != TokenEOF {
		expr, err := p.parseExpr()
		if err != nil {
			return nil, err
		}
		doc.Items = append(doc.Items, expr)

		if err := p.next(); err != nil {
			return nil, err
		}
	}
	doc.Trail = p.current.Lead

	if len(doc.Items) == 0 {
		return nil, &ParseError{Line: p.current.Pos.Line, Column: p.current.Pos.Column, Message: "empty document"}
	}

	doc.Indent = detectIndent(doc)
	return doc, nil
}

func (p *Parser) next() error {
	tok, err := p.lexer.NextToken()
	if err != nil {
		return err
	}
	p.current = tok
	return nil
}

// parseExpr parses a single S-expression starting at the current token
func (p *Parser) parseExpr() (Node, error) {
	tok := p.current
	switch tok.Type {
	case TokenLeftParen:
		return p.parseList()

	case TokenSymbol:
		return &Atom{Kind: classify(tok.Text), Text: tok.Text, Value: tok.Value, Lead: tok.Lead, Pos: tok.Pos}, nil

	case TokenString:
		return &Atom{Kind: KindString, Text: tok.Text, Value: tok.Value, Lead: tok.Lead, Pos: tok.Pos}, nil

	case TokenRightParen:
		return nil, p.lexer.errorf(tok.Pos, "unexpected ')'")

	default:
		return nil, p.lexer.errorf(tok.Pos, "unexpected %s", tok.Type)
	}
}

// parseList parses a list: ( ... )
func (p *Parser) parseList() (Node, error) {
	open := p.current
	list := &List{Lead: open.Lead, Pos: open.Pos}

	for {
		if err := p.next(); err != nil {
			return nil, err
		}

		switch p.current.Type {
		case TokenRightParen:
			list.Trail = p.current.Lead
			return list, nil

		case TokenEOF:
			return nil, p.lexer.errorf(open.Pos, "unexpected EOF in list")
		}

		elem, err := p.parseExpr()
		if err != nil {
			return nil, err
		}
		list.Items = append(list.Items, elem)
	}
}

// detectIndent picks the indentation unit from the first indented child of the
// root list. KiCad 8 and later indent with tabs, earlier versions with two spaces.
func detectIndent(doc *Document) string {
	root, ok := doc.Root()
	if !ok {
		return "\t"
	}
	for _, item := range root.Items {
		lead := item.Leading()
		idx := strings.LastIndex(lead, "\n")
		if idx < 0 {
			continue
		}
		if indent := lead[idx+1:]; indent != "" {
			return indent
		}
	}
	return "\t"
}

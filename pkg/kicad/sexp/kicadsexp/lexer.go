package kicadsexp

import (
	"fmt"
	"strings"
	"unicode"
	"unicode/utf8"
)

// TokenType represents the type of a token
type TokenType int

const (
	TokenEOF TokenType = iota
	TokenLeftParen
	TokenRightParen
	TokenSymbol
	TokenString
)

func (t TokenType) String() string {
	switch t {
	case TokenEOF:
		return "EOF"
	case TokenLeftParen:
		return "'('"
	case TokenRightParen:
		return "')'"
	case TokenSymbol:
		return "symbol"
	case TokenString:
		return "string"
	default:
		return fmt.Sprintf("TokenType(%d)", int(t))
	}
}

// Token represents a lexical token together with the whitespace before it
type Token struct {
	Type  TokenType
	Text  string // exact source text
	Value string // decoded value (strings unescaped)
	Lead  string // whitespace preceding the token
	Pos   Pos
}

// ParseError reports malformed S-expression syntax
type ParseError struct {
	Line    int
	Column  int
	Message string
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("parse error at line %d, column %d: %s", e.Line, e.Column, e.Message)
}

const byteOrderMark = "\uFEFF"

// Lexer tokenizes S-expressions from an in-memory source. The whole input is
// kept so that token text and trivia can be sliced out exactly.
type Lexer struct {
	src    string
	offset int
	line   int
	column int
}

// NewLexer creates a new lexer
func NewLexer(src string) *Lexer {
	return &Lexer{
		src:    src,
		line:   1,
		column: 1,
	}
}

// NextToken reads the next token from the input
func (l *Lexer) NextToken() (Token, error) {
	// Collect whitespace as trivia for the next token
	start := l.offset
	for l.offset < len(l.src) {
		if strings.HasPrefix(l.src[l.offset:], byteOrderMark) {
			l.advance()
			continue
		}
		ch, _ := utf8.DecodeRuneInString(l.src[l.offset:])
		if !unicode.IsSpace(ch) {
			break
		}
		l.advance()
	}
	lead := l.src[start:l.offset]

	pos := Pos{Offset: l.offset, Line: l.line, Column: l.column}
	if l.offset >= len(l.src) {
		return Token{Type: TokenEOF, Lead: lead, Pos: pos}, nil
	}

	switch l.src[l.offset] {
	case '(':
		l.advance()
		return Token{Type: TokenLeftParen, Text: "(", Lead: lead, Pos: pos}, nil

	case ')':
		l.advance()
		return Token{Type: TokenRightParen, Text: ")", Lead: lead, Pos: pos}, nil

	case '"':
		tok, err := l.readString(pos)
		tok.Lead = lead
		return tok, err

	default:
		tok := l.readSymbol(pos)
		tok.Lead = lead
		return tok, nil
	}
}

// advance consumes one rune and tracks line/column
func (l *Lexer) advance() rune {
	ch, size := utf8.DecodeRuneInString(l.src[l.offset:])
	l.offset += size
	if ch == '\n' {
		l.line++
		l.column = 1
	} else {
		l.column++
	}
	return ch
}

func (l *Lexer) errorf(pos Pos, format string, args ...any) error {
	return &ParseError{Line: pos.Line, Column: pos.Column, Message: fmt.Sprintf(format, args...)}
}

// readString reads a quoted string, keeping the raw text for exact reproduction
func (l *Lexer) readString(pos Pos) (Token, error) {
	start := l.offset
	l.advance() // opening quote

	var value strings.Builder
	for {
		if l.offset >= len(l.src) {
			return Token{}, l.errorf(pos, "unterminated string")
		}

		ch := l.advance()
		if ch == '"' {
			break
		}

		if ch == '\\' {
			if l.offset >= len(l.src) {
				return Token{}, l.errorf(pos, "unterminated escape sequence")
			}
			next := l.advance()
			switch next {
			case 'n':
				value.WriteRune('\n')
			case 't':
				value.WriteRune('\t')
			case 'r':
				value.WriteRune('\r')
			default:
				// \\ and \" as well as unknown escapes keep the escaped rune
				value.WriteRune(next)
			}
			continue
		}

		value.WriteRune(ch)
	}

	return Token{
		Type:  TokenString,
		Text:  l.src[start:l.offset],
		Value: value.String(),
		Pos:   pos,
	}, nil
}

// readSymbol reads an unquoted symbol (identifier, number, etc.)
func (l *Lexer) readSymbol(pos Pos) Token {
	start := l.offset
	for l.offset < len(l.src) {
		ch, _ := utf8.DecodeRuneInString(l.src[l.offset:])

		// Stop at delimiters
		if unicode.IsSpace(ch) || ch == '(' || ch == ')' || ch == '"' {
			break
		}
		l.advance()
	}

	text := l.src[start:l.offset]
	return Token{Type: TokenSymbol, Text: text, Value: text, Pos: pos}
}

package expr

import (
	"fmt"
	"strings"
	"unicode"
	"unicode/utf8"
)

// Lexer tokenizes expression source text.
type Lexer struct {
	input  string
	pos    int
	col    int
	errors []error
}

// NewLexer creates a lexer for input.
func NewLexer(input string) *Lexer {
	return &Lexer{input: input, col: 1}
}

// Tokenize scans the whole input. The last token is always TokenEOF.
func (l *Lexer) Tokenize() ([]Token, []error) {
	var tokens []Token
	for {
		tok := l.next()
		tokens = append(tokens, tok)
		if tok.Type == TokenEOF {
			return tokens, l.errors
		}
	}
}

func (l *Lexer) peek() rune {
	return l.peekAt(0)
}

func (l *Lexer) peekAt(offset int) rune {
	p := l.pos + offset
	if p >= len(l.input) {
		return 0
	}
	r, _ := utf8.DecodeRuneInString(l.input[p:])
	return r
}

func (l *Lexer) advance() rune {
	if l.pos >= len(l.input) {
		return 0
	}
	r, size := utf8.DecodeRuneInString(l.input[l.pos:])
	l.pos += size
	l.col++
	return r
}

func (l *Lexer) errorf(col int, format string, args ...any) {
	l.errors = append(l.errors, &Error{Message: fmt.Sprintf(format, args...), Col: col})
}

func (l *Lexer) next() Token {
	for unicode.IsSpace(l.peek()) {
		l.advance()
	}
	start, col := l.pos, l.col
	if l.pos >= len(l.input) {
		return Token{Type: TokenEOF, Pos: start, Col: col}
	}

	r := l.peek()
	switch {
	case r == '"' || r == '\'':
		return l.scanString(start, col)
	case r >= '0' && r <= '9':
		return l.scanNumber(start, col)
	case isIdentStart(r):
		return l.scanIdent(start, col)
	}

	two := func(typ TokenType, lit string) Token {
		l.advance()
		l.advance()
		return Token{Type: typ, Literal: lit, Pos: start, Col: col}
	}
	switch {
	case r == '=' && l.peekAt(1) == '=':
		return two(TokenEQ, "==")
	case r == '!' && l.peekAt(1) == '=':
		return two(TokenNEQ, "!=")
	case r == '>' && l.peekAt(1) == '=':
		return two(TokenGTE, ">=")
	case r == '<' && l.peekAt(1) == '=':
		return two(TokenLTE, "<=")
	case r == '&' && l.peekAt(1) == '&':
		return two(TokenAnd, "&&")
	case r == '|' && l.peekAt(1) == '|':
		return two(TokenOr, "||")
	}

	l.advance()
	one := map[rune]TokenType{
		'+': TokenPlus, '-': TokenMinus, '*': TokenStar, '/': TokenSlash, '%': TokenPercent,
		'>': TokenGT, '<': TokenLT, '!': TokenNot, '?': TokenQuestion, ':': TokenColon,
		'.': TokenDot, ',': TokenComma, '(': TokenLParen, ')': TokenRParen,
	}
	if typ, ok := one[r]; ok {
		return Token{Type: typ, Literal: string(r), Pos: start, Col: col}
	}
	l.errorf(col, "unexpected character %q", r)
	return Token{Type: TokenIdent, Literal: string(r), Pos: start, Col: col}
}

func (l *Lexer) scanString(start, col int) Token {
	quote := l.advance()
	var b strings.Builder
	for l.pos < len(l.input) {
		r := l.advance()
		if r == quote {
			return Token{Type: TokenString, Literal: b.String(), Pos: start, Col: col}
		}
		if r == '\\' && l.pos < len(l.input) {
			r = l.advance()
		}
		b.WriteRune(r)
	}
	l.errorf(col, "unterminated string")
	return Token{Type: TokenString, Literal: b.String(), Pos: start, Col: col}
}

func (l *Lexer) scanNumber(start, col int) Token {
	seenDot := false
	for l.pos < len(l.input) {
		r := l.peek()
		if r >= '0' && r <= '9' {
			l.advance()
			continue
		}
		if r == '.' && !seenDot && l.peekAt(1) >= '0' && l.peekAt(1) <= '9' {
			seenDot = true
			l.advance()
			continue
		}
		break
	}
	return Token{Type: TokenNumber, Literal: l.input[start:l.pos], Pos: start, Col: col}
}

func (l *Lexer) scanIdent(start, col int) Token {
	for l.pos < len(l.input) && isIdentPart(l.peek()) {
		l.advance()
	}
	return Token{Type: TokenIdent, Literal: l.input[start:l.pos], Pos: start, Col: col}
}

func isIdentStart(r rune) bool {
	return r == '_' || unicode.IsLetter(r)
}

func isIdentPart(r rune) bool {
	return r == '_' || unicode.IsLetter(r) || unicode.IsDigit(r)
}

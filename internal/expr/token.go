// Package expr tokenizes payroll formula expressions and checks them
// against the variable names a formula may reference. Expressions are never
// evaluated here; evaluation happens server-side.
package expr

import "strings"

// TokenType identifies the kind of lexical token.
type TokenType int

const (
	TokenEOF TokenType = iota
	TokenIdent
	TokenString
	TokenNumber

	// Arithmetic
	TokenPlus
	TokenMinus
	TokenStar
	TokenSlash
	TokenPercent

	// Comparison and logic
	TokenEQ
	TokenNEQ
	TokenGT
	TokenLT
	TokenGTE
	TokenLTE
	TokenAnd
	TokenOr
	TokenNot
	TokenQuestion
	TokenColon

	TokenDot
	TokenComma
	TokenLParen
	TokenRParen
)

var tokenNames = map[TokenType]string{
	TokenEOF:      "end of expression",
	TokenIdent:    "identifier",
	TokenString:   "string",
	TokenNumber:   "number",
	TokenPlus:     "+",
	TokenMinus:    "-",
	TokenStar:     "*",
	TokenSlash:    "/",
	TokenPercent:  "%",
	TokenEQ:       "==",
	TokenNEQ:      "!=",
	TokenGT:       ">",
	TokenLT:       "<",
	TokenGTE:      ">=",
	TokenLTE:      "<=",
	TokenAnd:      "&&",
	TokenOr:       "||",
	TokenNot:      "!",
	TokenQuestion: "?",
	TokenColon:    ":",
	TokenDot:      ".",
	TokenComma:    ",",
	TokenLParen:   "(",
	TokenRParen:   ")",
}

func (t TokenType) String() string {
	if s, ok := tokenNames[t]; ok {
		return s
	}
	return "unknown"
}

// IsOperator reports whether the token is a binary or ternary operator.
func (t TokenType) IsOperator() bool {
	switch t {
	case TokenPlus, TokenMinus, TokenStar, TokenSlash, TokenPercent,
		TokenEQ, TokenNEQ, TokenGT, TokenLT, TokenGTE, TokenLTE,
		TokenAnd, TokenOr, TokenQuestion, TokenColon:
		return true
	}
	return false
}

// Token is a single lexical token.
type Token struct {
	Type    TokenType
	Literal string
	Pos     int // byte offset
	Col     int // 1-based
}

// functions are the built-ins the formula engine provides. Names are
// case-insensitive.
var functions = map[string]bool{
	"min":   true,
	"max":   true,
	"round": true,
	"floor": true,
	"ceil":  true,
	"abs":   true,
	"if":    true,
}

// literals are identifiers that are values rather than variable references.
var literals = map[string]bool{
	"true":  true,
	"false": true,
	"null":  true,
}

// IsFunction reports whether name is a built-in function.
func IsFunction(name string) bool {
	return functions[strings.ToLower(name)]
}

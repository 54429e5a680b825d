package expr

import (
	"fmt"
	"strings"
)

// Error is a positioned problem in an expression.
type Error struct {
	Message    string
	Col        int
	Suggestion string
}

func (e *Error) Error() string {
	msg := fmt.Sprintf("col %d: %s", e.Col, e.Message)
	if e.Suggestion != "" {
		msg += " (" + e.Suggestion + ")"
	}
	return msg
}

func errorAt(tok Token, format string, args ...any) *Error {
	return &Error{Message: fmt.Sprintf(format, args...), Col: tok.Col}
}

// Check validates src against the allowed variable names. It checks that
// the expression is well formed and that every variable it references is
// allowed. An empty expression is valid. The first problem found is
// returned as an *Error.
func Check(src string, variables []string) error {
	if strings.TrimSpace(src) == "" {
		return nil
	}
	tokens, errs := NewLexer(src).Tokenize()
	if len(errs) > 0 {
		return errs[0]
	}
	allowed := make(map[string]bool, len(variables))
	for _, v := range variables {
		allowed[v] = true
	}
	c := &checker{tokens: tokens, allowed: allowed, variables: variables}
	return c.run()
}

// Variables returns the variable references in src, in order of first
// appearance. Function names and literals are excluded.
func Variables(src string) []string {
	tokens, _ := NewLexer(src).Tokenize()
	seen := map[string]bool{}
	var out []string
	for i := 0; i < len(tokens); {
		name, next := reference(tokens, i)
		if name == "" {
			i++
			continue
		}
		i = next
		if isCall(tokens, next) || literals[strings.ToLower(name)] || seen[name] {
			continue
		}
		seen[name] = true
		out = append(out, name)
	}
	return out
}

type checker struct {
	tokens    []Token
	allowed   map[string]bool
	variables []string
}

// reference reads a dotted identifier starting at i. It returns "" when
// tokens[i] is not an identifier.
func reference(tokens []Token, i int) (string, int) {
	if tokens[i].Type != TokenIdent {
		return "", i
	}
	parts := []string{tokens[i].Literal}
	i++
	for i+1 < len(tokens) && tokens[i].Type == TokenDot && tokens[i+1].Type == TokenIdent {
		parts = append(parts, tokens[i+1].Literal)
		i += 2
	}
	return strings.Join(parts, "."), i
}

func isCall(tokens []Token, i int) bool {
	return i < len(tokens) && tokens[i].Type == TokenLParen
}

func (c *checker) run() error {
	// calls records, per open paren, whether it opened a function call.
	var calls []bool
	expectOperand := true
	for i := 0; i < len(c.tokens); {
		tok := c.tokens[i]
		if expectOperand {
			switch tok.Type {
			case TokenIdent:
				name, next := reference(c.tokens, i)
				if isCall(c.tokens, next) {
					if !IsFunction(name) {
						return errorAt(tok, "unknown function %q", name)
					}
					calls = append(calls, true)
					i = next + 1
					if i < len(c.tokens) && c.tokens[i].Type == TokenRParen {
						calls = calls[:len(calls)-1]
						expectOperand = false
						i++
					}
					continue
				}
				if err := c.variable(tok, name); err != nil {
					return err
				}
				expectOperand = false
				i = next
				continue
			case TokenNumber, TokenString:
				expectOperand = false
			case TokenLParen:
				calls = append(calls, false)
			case TokenMinus, TokenPlus, TokenNot:
			case TokenEOF:
				return errorAt(tok, "unexpected end of expression")
			default:
				return errorAt(tok, "expected a value, found %s", tok.Type)
			}
			i++
			continue
		}

		switch {
		case tok.Type.IsOperator():
			expectOperand = true
		case tok.Type == TokenRParen:
			if len(calls) == 0 {
				return errorAt(tok, "unexpected )")
			}
			calls = calls[:len(calls)-1]
		case tok.Type == TokenComma:
			if len(calls) == 0 || !calls[len(calls)-1] {
				return errorAt(tok, "unexpected , outside a function call")
			}
			expectOperand = true
		case tok.Type == TokenEOF:
			if len(calls) > 0 {
				return errorAt(tok, "missing )")
			}
			return nil
		default:
			return errorAt(tok, "expected an operator, found %s", tok.Type)
		}
		i++
	}
	return nil
}

func (c *checker) variable(tok Token, name string) error {
	if literals[strings.ToLower(name)] || c.allowed[name] {
		return nil
	}
	err := errorAt(tok, "unknown variable %q", name)
	err.Suggestion = SuggestFrom(name, c.variables, 2)
	return err
}

// Levenshtein computes the edit distance between two strings.
func Levenshtein(a, b string) int {
	la, lb := len(a), len(b)
	if la == 0 {
		return lb
	}
	if lb == 0 {
		return la
	}
	prev := make([]int, lb+1)
	for j := range prev {
		prev[j] = j
	}
	for i := 1; i <= la; i++ {
		curr := make([]int, lb+1)
		curr[0] = i
		for j := 1; j <= lb; j++ {
			cost := 1
			if a[i-1] == b[j-1] {
				cost = 0
			}
			curr[j] = min(curr[j-1]+1, prev[j]+1, prev[j-1]+cost)
		}
		prev = curr
	}
	return prev[lb]
}

// SuggestFrom returns a "did you mean" hint for the closest candidate within
// maxDist edits, or "".
func SuggestFrom(input string, candidates []string, maxDist int) string {
	best, bestDist := "", maxDist+1
	for _, c := range candidates {
		if d := Levenshtein(input, c); d < bestDist {
			best, bestDist = c, d
		}
	}
	if bestDist <= maxDist {
		return fmt.Sprintf("did you mean %q?", best)
	}
	return ""
}

package expr

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var payrollVars = []string{"baseSalary", "overtimeHours", "hourlyRate", "employee.grade"}

func TestLexer_Operators(t *testing.T) {
	tokens, errs := NewLexer(`a >= 1.5 && b != "x" || !c`).Tokenize()
	require.Empty(t, errs)

	expected := []TokenType{
		TokenIdent, TokenGTE, TokenNumber, TokenAnd, TokenIdent, TokenNEQ,
		TokenString, TokenOr, TokenNot, TokenIdent, TokenEOF,
	}
	require.Len(t, tokens, len(expected))
	for i, exp := range expected {
		assert.Equal(t, exp, tokens[i].Type, "token %d", i)
	}
	assert.Equal(t, "x", tokens[6].Literal)
}

func TestLexer_Positions(t *testing.T) {
	tokens, _ := NewLexer("  rate * 2").Tokenize()
	assert.Equal(t, 3, tokens[0].Col)
	assert.Equal(t, 8, tokens[1].Col)
}

func TestLexer_Errors(t *testing.T) {
	_, errs := NewLexer(`a # b`).Tokenize()
	require.Len(t, errs, 1)
	assert.Contains(t, errs[0].Error(), "unexpected character")

	_, errs = NewLexer(`"open`).Tokenize()
	require.Len(t, errs, 1)
	assert.Contains(t, errs[0].Error(), "unterminated string")
}

func TestCheck_Valid(t *testing.T) {
	valid := []string{
		"",
		"baseSalary",
		"baseSalary + overtimeHours * hourlyRate * 1.5",
		"round(baseSalary / 12, 2)",
		"max(0, baseSalary - 100) > 10 ? 1 : 0",
		`employee.grade == "A" && !false`,
		"-(baseSalary)",
		"min()",
	}
	for _, src := range valid {
		assert.NoError(t, Check(src, payrollVars), src)
	}
}

func TestCheck_Invalid(t *testing.T) {
	cases := map[string]string{
		"baseSalry * 2":         "unknown variable \"baseSalry\"",
		"bonus + 1":             "unknown variable \"bonus\"",
		"sqrt(baseSalary)":      "unknown function \"sqrt\"",
		"baseSalary +":          "unexpected end of expression",
		"baseSalary hourlyRate": "expected an operator",
		"(baseSalary":           "missing )",
		"baseSalary)":           "unexpected )",
		"baseSalary, 1":         "outside a function call",
		"* 2":                   "expected a value",
	}
	for src, want := range cases {
		err := Check(src, payrollVars)
		require.Error(t, err, src)
		assert.Contains(t, err.Error(), want, src)
	}
}

func TestCheck_Suggestion(t *testing.T) {
	err := Check("baseSalry", payrollVars)
	var exprErr *Error
	require.True(t, errors.As(err, &exprErr))
	assert.Equal(t, `did you mean "baseSalary"?`, exprErr.Suggestion)
	assert.Equal(t, 1, exprErr.Col)
}

func TestVariables(t *testing.T) {
	got := Variables("round(baseSalary * hourlyRate, 2) + baseSalary + employee.grade + true")
	assert.Equal(t, []string{"baseSalary", "hourlyRate", "employee.grade"}, got)
}

func TestLevenshtein(t *testing.T) {
	assert.Equal(t, 0, Levenshtein("rate", "rate"))
	assert.Equal(t, 1, Levenshtein("rate", "rat"))
	assert.Equal(t, 3, Levenshtein("", "abc"))
}

package meta

import (
	"strings"
	"unicode"
)

// Known abbreviations for label generation.
var knownAbbreviations = map[string]string{
	"id": "ID", "hr": "HR", "pdf": "PDF", "url": "URL", "iban": "IBAN",
	"vat": "VAT", "kpi": "KPI", "ssn": "SSN", "api": "API", "uuid": "UUID",
}

// Known phrases that do not split cleanly.
var knownPhrases = map[string]string{
	"payslip":  "Payslip",
	"payslips": "Payslips",
	"fourEye":  "Four-Eye",
}

// LabelFromKey turns a field key into a human label. The last ".id" segment
// of a relation path is dropped: "payrollBatch.id" becomes "Payroll Batch".
func LabelFromKey(key string) string {
	key = strings.TrimSuffix(key, ".id")
	segs := strings.Split(key, ".")
	var words []string
	for _, seg := range segs {
		if p, ok := knownPhrases[seg]; ok {
			words = append(words, p)
			continue
		}
		for _, w := range splitWords(seg) {
			if abbr, ok := knownAbbreviations[strings.ToLower(w)]; ok {
				words = append(words, abbr)
				continue
			}
			words = append(words, strings.ToUpper(w[:1])+w[1:])
		}
	}
	return strings.Join(words, " ")
}

// splitWords splits camelCase, snake_case and kebab-case identifiers.
func splitWords(s string) []string {
	var words []string
	var cur []rune
	flush := func() {
		if len(cur) > 0 {
			words = append(words, string(cur))
			cur = cur[:0]
		}
	}
	runes := []rune(s)
	for i, r := range runes {
		switch {
		case r == '_' || r == '-' || r == ' ':
			flush()
		case unicode.IsUpper(r):
			// Keep acronyms together: "HTTPServer" -> HTTP, Server.
			if i > 0 && (!unicode.IsUpper(runes[i-1]) || (i+1 < len(runes) && unicode.IsLower(runes[i+1]))) {
				flush()
			}
			cur = append(cur, unicode.ToLower(r))
		default:
			cur = append(cur, r)
		}
	}
	flush()
	return words
}

package field

import (
	"fmt"
	"strconv"

	"github.com/matthewbaird/erpui/internal/expr"
	"github.com/matthewbaird/erpui/internal/meta"
	"github.com/matthewbaird/erpui/internal/record"
)

// Validate checks the value of a visible field. It returns the message to
// show, or "" when the value is acceptable. variables are the names an
// expression field may reference.
func Validate(f meta.FieldMeta, values record.Record, variables []string) string {
	form := f.Form
	if form == nil {
		return ""
	}
	v, _ := values.Get(f.Key)
	if form.Required && isBlank(form.Input, v) {
		if form.ValidationErrorMessage != "" {
			return form.ValidationErrorMessage
		}
		return f.Label() + " is required"
	}
	if v == nil {
		return ""
	}

	switch in := form.Input.(type) {
	case meta.NumberInput:
		n, ok := record.ToFloat(v)
		if !ok {
			s, isString := v.(string)
			parsed, err := strconv.ParseFloat(s, 64)
			if !isString || err != nil {
				return messageOr(form, f.Label()+" must be a number")
			}
			n = parsed
		}
		if in.Min != nil && n < *in.Min {
			return fmt.Sprintf("%s must be at least %s", f.Label(), record.Stringify(*in.Min))
		}
		if in.Max != nil && n > *in.Max {
			return fmt.Sprintf("%s must be at most %s", f.Label(), record.Stringify(*in.Max))
		}
	case meta.DateTimeInput:
		s, ok := v.(string)
		if !ok {
			return messageOr(form, f.Label()+" must be a valid date")
		}
		if _, err := ParseDate(s); err != nil {
			return messageOr(form, f.Label()+" must be a valid date")
		}
	case meta.ExpressionInput:
		if err := expr.Check(record.Stringify(v), variables); err != nil {
			return err.Error()
		}
	}
	return ""
}

func isBlank(in meta.Input, v any) bool {
	if _, ok := in.(meta.BooleanInput); ok {
		return false
	}
	return record.IsEmpty(v)
}

func messageOr(form *meta.FormRelated, fallback string) string {
	if form.ValidationErrorMessage != "" {
		return form.ValidationErrorMessage
	}
	return fallback
}

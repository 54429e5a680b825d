package field

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/matthewbaird/erpui/internal/meta"
	"github.com/matthewbaird/erpui/internal/record"
)

// ErrNotEditable is returned when input targets a field without a control.
var ErrNotEditable = errors.New("field is not editable")

// Apply writes raw user input for f into values at the field's key path.
// Empty input is stored as nil, never as "" or 0. Input that cannot be
// coerced is kept verbatim so validation can report it at submit time.
func Apply(f meta.FieldMeta, values record.Record, raw any) error {
	if f.Form == nil {
		return fmt.Errorf("%s: %w", f.Key, ErrNotEditable)
	}
	switch in := f.Form.Input.(type) {
	case meta.TextInput, meta.ExpressionInput:
		values.Set(f.Key, emptyToNil(record.Stringify(raw)))
	case meta.NumberInput:
		values.Set(f.Key, coerceNumber(raw))
	case meta.BooleanInput:
		values.Set(f.Key, coerceBool(raw))
	case meta.DateTimeInput:
		values.Set(f.Key, emptyToNil(strings.TrimSpace(record.Stringify(raw))))
	case meta.AutoCompleteInput:
		values.Set(f.Key, coerceChoice(in, raw))
	case meta.ObjectInput:
		id := coerceChoice(in.Ref, raw)
		if id == nil {
			values.Set(f.Key, nil)
			return nil
		}
		values.Set(f.Key, map[string]any{"id": id})
	case meta.TableOnlyInput:
		return fmt.Errorf("%s: %w", f.Key, ErrNotEditable)
	default:
		panic("field: unhandled input kind " + string(f.Form.Input.Kind()))
	}
	return nil
}

func emptyToNil(s string) any {
	if s == "" {
		return nil
	}
	return s
}

func coerceNumber(raw any) any {
	if n, ok := record.ToFloat(raw); ok {
		return n
	}
	s := strings.TrimSpace(record.Stringify(raw))
	if s == "" {
		return nil
	}
	if n, err := strconv.ParseFloat(s, 64); err == nil {
		return n
	}
	return s
}

func coerceBool(raw any) bool {
	switch t := raw.(type) {
	case bool:
		return t
	case string:
		switch strings.ToLower(t) {
		case "true", "on", "1", "yes":
			return true
		}
	}
	return false
}

func coerceChoice(in meta.AutoCompleteInput, raw any) any {
	if in.Multiple {
		var list []any
		switch t := raw.(type) {
		case []any:
			list = t
		case []string:
			for _, s := range t {
				list = append(list, s)
			}
		default:
			if !record.IsEmpty(raw) {
				list = []any{raw}
			}
		}
		out := make([]any, 0, len(list))
		for _, v := range list {
			if !record.IsEmpty(v) {
				out = append(out, v)
			}
		}
		if len(out) == 0 {
			return nil
		}
		return out
	}
	if m, ok := record.AsRecord(raw); ok {
		raw = in.OptionValue(m)
	}
	if record.IsEmpty(raw) {
		return nil
	}
	return raw
}

// Package field maps one FieldMeta and the current form values to a
// Control view model, and writes user input back into the values with the
// coercion its input kind requires.
package field

import (
	"context"
	"time"

	"github.com/matthewbaird/erpui/internal/meta"
	"github.com/matthewbaird/erpui/internal/record"
)

// Control is the rendered state of one form field.
type Control struct {
	Key         string         `json:"key"`
	Kind        meta.InputKind `json:"kind"`
	Label       string         `json:"label"`
	Placeholder string         `json:"placeholder,omitempty"`
	Required    bool           `json:"required,omitempty"`
	Section     string         `json:"section,omitempty"`

	// Value is the display value: "" for an empty number or an invalid date,
	// false for an absent boolean.
	Value any `json:"value"`

	Multiline bool     `json:"multiline,omitempty"`
	Min       *float64 `json:"min,omitempty"`
	Max       *float64 `json:"max,omitempty"`

	Options  []Option `json:"options,omitempty"`
	Multiple bool     `json:"multiple,omitempty"`
	// Loading marks an async option list still being fetched. Clients show a
	// spinner in the field's leading adornment.
	Loading   bool       `json:"loading,omitempty"`
	CreateNew *CreateNew `json:"createNew,omitempty"`

	Variables []string `json:"variables,omitempty"`

	// HelperText is the validation error when Error is set, otherwise the
	// field description.
	HelperText string `json:"helperText,omitempty"`
	Error      bool   `json:"error,omitempty"`
}

// Option is one auto-complete choice.
type Option struct {
	Label    string `json:"label"`
	Value    any    `json:"value"`
	Selected bool   `json:"selected,omitempty"`
}

// CreateNew describes the nested form a relation field can open.
type CreateNew struct {
	Schema string `json:"schema"`
	Field  string `json:"field"`
}

// OptionSource supplies rows for async option lists and expression
// variables. loading is true when the rows are not available yet.
type OptionSource interface {
	Rows(ctx context.Context, endpoint string) (rows []record.Record, loading bool, err error)
}

// Visible reports whether f is shown for values. A conditional field is
// shown only while its sibling holds ShowIf; table-only fields never are.
func Visible(f meta.FieldMeta, values record.Record) bool {
	if f.Form == nil {
		return false
	}
	if _, ok := f.Form.Input.(meta.TableOnlyInput); ok {
		return false
	}
	c := f.Form.Conditional
	if c == nil {
		return true
	}
	v, _ := values.Get(c.DependsOn)
	if _, isBool := c.ShowIf.(bool); isBool && v == nil {
		v = false
	}
	return record.Equal(v, c.ShowIf)
}

// Render builds the control for f. The second result is false when the
// field is not visible, in which case no control is produced.
func Render(ctx context.Context, f meta.FieldMeta, values record.Record, errMsg string, src OptionSource) (Control, bool) {
	if !Visible(f, values) {
		return Control{}, false
	}
	form := f.Form
	c := Control{
		Key:         f.Key,
		Kind:        form.Input.Kind(),
		Label:       f.Label(),
		Placeholder: form.Placeholder,
		Required:    form.Required,
		Section:     form.Section,
		HelperText:  form.Description,
	}
	if errMsg != "" {
		c.HelperText = errMsg
		c.Error = true
	}

	raw, _ := values.Get(f.Key)
	switch in := form.Input.(type) {
	case meta.TextInput:
		c.Multiline = in.Multiline
		c.Value = record.Stringify(raw)
	case meta.NumberInput:
		c.Min, c.Max = in.Min, in.Max
		c.Value = displayNumber(raw)
	case meta.BooleanInput:
		b, _ := raw.(bool)
		c.Value = b
	case meta.DateTimeInput:
		c.Value = DisplayDate(raw)
	case meta.AutoCompleteInput:
		c.Value = raw
		renderOptions(ctx, &c, f.Key, in, raw, src)
	case meta.ObjectInput:
		id, _ := values.Get(f.Key + ".id")
		c.Value = id
		renderOptions(ctx, &c, f.Key, in.Ref, id, src)
	case meta.ExpressionInput:
		c.Value = record.Stringify(raw)
		c.Variables, c.Loading = variables(ctx, in, src)
	default:
		panic("field: unhandled input kind " + string(form.Input.Kind()))
	}
	return c, true
}

func displayNumber(v any) any {
	if v == nil {
		return ""
	}
	if f, ok := record.ToFloat(v); ok {
		return f
	}
	// Unparsed input is shown back to the user as typed.
	return record.Stringify(v)
}

// DisplayDate renders the YYYY-MM-DD part of an ISO-8601 value. Missing or
// invalid values render as "".
func DisplayDate(v any) string {
	s, ok := v.(string)
	if !ok || len(s) < 10 {
		return ""
	}
	if _, err := ParseDate(s); err != nil {
		return ""
	}
	return s[:10]
}

var dateLayouts = []string{time.RFC3339Nano, "2006-01-02T15:04:05", "2006-01-02T15:04", "2006-01-02"}

// ParseDate parses the ISO-8601 forms a date-time field accepts.
func ParseDate(s string) (time.Time, error) {
	var err error
	for _, layout := range dateLayouts {
		var t time.Time
		if t, err = time.Parse(layout, s); err == nil {
			return t, nil
		}
	}
	return time.Time{}, err
}

func renderOptions(ctx context.Context, c *Control, key string, in meta.AutoCompleteInput, current any, src OptionSource) {
	c.Multiple = in.Multiple
	if in.AllowCreateNew {
		c.CreateNew = &CreateNew{Schema: in.CreateSchema, Field: key}
	}
	rows := in.Options
	if in.Async {
		if src == nil {
			c.Loading = true
			return
		}
		var err error
		rows, c.Loading, err = src.Rows(ctx, in.Endpoint)
		if err != nil && !c.Error {
			c.HelperText = "Failed to load options"
			c.Error = true
		}
	}
	c.Options = make([]Option, 0, len(rows))
	for _, row := range rows {
		v := in.OptionValue(row)
		c.Options = append(c.Options, Option{
			Label:    in.OptionLabel(row),
			Value:    v,
			Selected: selected(current, v),
		})
	}
}

func selected(current, v any) bool {
	if list, ok := current.([]any); ok {
		for _, item := range list {
			if record.Equal(item, v) {
				return true
			}
		}
		return false
	}
	return current != nil && record.Equal(current, v)
}

func variables(ctx context.Context, in meta.ExpressionInput, src OptionSource) ([]string, bool) {
	if src == nil {
		return nil, true
	}
	rows, loading, err := src.Rows(ctx, in.VariablesEndpoint)
	if err != nil {
		return nil, false
	}
	return VariableNames(rows), loading
}

// VariableNames extracts the "name" of each variable row.
func VariableNames(rows []record.Record) []string {
	names := make([]string, 0, len(rows))
	for _, r := range rows {
		if n := record.Stringify(r["name"]); n != "" {
			names = append(names, n)
		}
	}
	return names
}

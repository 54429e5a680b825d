// Package meta defines the declarative entity metadata that drives form and
// table generation.
//
// A SchemaMeta describes one entity: its REST endpoint, its titles, the
// ordered sections that become form tabs, and a list of FieldMeta. A field
// with no Form metadata is table-display-only; one with no Table metadata is
// form-only. Schemas are declared in Go or loaded from CUE files, registered
// once, and shared read-only by every consumer.
package meta

import (
	"errors"
	"fmt"

	"github.com/go-openapi/inflect"

	"github.com/matthewbaird/erpui/internal/record"
)

// ErrUnknownSchema is returned when a schema name is not registered.
var ErrUnknownSchema = errors.New("unknown schema")

// Conditional shows a field only while the sibling field DependsOn holds
// the value ShowIf.
type Conditional struct {
	DependsOn string
	ShowIf    any
}

// FormRelated is the form half of a field's metadata.
type FormRelated struct {
	Input                  Input
	Label                  string
	Placeholder            string
	Description            string
	ValidationErrorMessage string
	Required               bool
	Section                string
	Conditional            *Conditional
}

// TableRelated is the table half of a field's metadata.
type TableRelated struct {
	Header string
	// AccessorKey is a dot-path into the row. Accessor, when set, wins.
	AccessorKey string
	Accessor    func(record.Record) any
	MinSize     int
	// Cell names a cell renderer known to the table package.
	Cell string

	// Aggregation is one of sum, count, mean, min, max.
	Aggregation       string
	AggregationFormat string

	// GroupBy forces grouping on this column. Rows with no value are
	// bucketed under GroupDefaultLabel and styled with GroupHighlight.
	GroupBy           bool
	GroupDefaultLabel string
	GroupHighlight    string
}

// FieldMeta describes one entity attribute.
type FieldMeta struct {
	Key   string
	Form  *FormRelated
	Table *TableRelated
}

// Label returns the configured form label, the table header, or a label
// derived from the key, in that order.
func (f FieldMeta) Label() string {
	if f.Form != nil && f.Form.Label != "" {
		return f.Form.Label
	}
	if f.Table != nil && f.Table.Header != "" {
		return f.Table.Header
	}
	return LabelFromKey(f.Key)
}

// TableValue extracts the field's cell value from a row.
func (f FieldMeta) TableValue(row record.Record) (any, bool) {
	if f.Table != nil && f.Table.Accessor != nil {
		v := f.Table.Accessor(row)
		return v, v != nil
	}
	return row.Get(f.AccessorPath())
}

// AccessorPath is the dot-path the table reads.
func (f FieldMeta) AccessorPath() string {
	if f.Table != nil && f.Table.AccessorKey != "" {
		return f.Table.AccessorKey
	}
	return f.Key
}

// SchemaMeta is the entity-level metadata.
type SchemaMeta struct {
	Name        string
	TableName   string
	APIEndpoint string
	FormName    string

	AllowDelete    bool
	AllowCreateNew bool
	AllowEdit      bool

	Sections    []string
	CreateTitle string
	EditTitle   string

	// InvalidateKeys are the query keys refreshed after a successful
	// mutation. The endpoint itself is always included.
	InvalidateKeys []string
	// TenantScoped mutations carry x-tenant-code taken from the record's
	// "code" field.
	TenantScoped bool
	// ServerSide tables delegate pagination, sorting and filtering to the
	// API.
	ServerSide bool

	Fields []FieldMeta
}

// Field looks up a field by key.
func (s *SchemaMeta) Field(key string) (FieldMeta, bool) {
	for _, f := range s.Fields {
		if f.Key == key {
			return f, true
		}
	}
	return FieldMeta{}, false
}

// FormFields returns fields with form metadata, in declaration order.
func (s *SchemaMeta) FormFields() []FieldMeta {
	var out []FieldMeta
	for _, f := range s.Fields {
		if f.Form != nil {
			out = append(out, f)
		}
	}
	return out
}

// TableFields returns fields with table metadata, in declaration order.
func (s *SchemaMeta) TableFields() []FieldMeta {
	var out []FieldMeta
	for _, f := range s.Fields {
		if f.Table != nil {
			out = append(out, f)
		}
	}
	return out
}

// QueryKeys returns the keys a successful mutation on this schema must
// invalidate: the endpoint followed by any configured extras.
func (s *SchemaMeta) QueryKeys() []string {
	keys := []string{s.APIEndpoint}
	for _, k := range s.InvalidateKeys {
		if k != s.APIEndpoint {
			keys = append(keys, k)
		}
	}
	return keys
}

// Title returns the dialog title for create or edit.
func (s *SchemaMeta) Title(editing bool) string {
	if editing {
		if s.EditTitle != "" {
			return s.EditTitle
		}
		return "Edit " + s.DisplayName()
	}
	if s.CreateTitle != "" {
		return s.CreateTitle
	}
	return "Create " + s.DisplayName()
}

// DisplayName is the singular entity name used in titles and toasts.
func (s *SchemaMeta) DisplayName() string {
	if s.FormName != "" {
		return s.FormName
	}
	return LabelFromKey(inflect.Singularize(s.Name))
}

// Validate checks the schema for declaration mistakes. All problems are
// reported together.
func (s *SchemaMeta) Validate() error {
	var errs []error
	if s.Name == "" {
		errs = append(errs, errors.New("schema name is required"))
	}
	if s.APIEndpoint == "" {
		errs = append(errs, fmt.Errorf("%s: apiEndPoint is required", s.Name))
	}

	sections := make(map[string]bool, len(s.Sections))
	for _, sec := range s.Sections {
		sections[sec] = true
	}
	keys := make(map[string]bool, len(s.Fields))
	for _, f := range s.Fields {
		if f.Key == "" {
			errs = append(errs, fmt.Errorf("%s: field with empty key", s.Name))
			continue
		}
		if keys[f.Key] {
			errs = append(errs, fmt.Errorf("%s: duplicate field %q", s.Name, f.Key))
		}
		keys[f.Key] = true
	}

	for _, f := range s.Fields {
		if f.Form == nil {
			continue
		}
		if f.Form.Input == nil {
			errs = append(errs, fmt.Errorf("%s.%s: form field without input type", s.Name, f.Key))
			continue
		}
		if f.Form.Section != "" && !sections[f.Form.Section] {
			errs = append(errs, fmt.Errorf("%s.%s: unknown section %q", s.Name, f.Key, f.Form.Section))
		}
		if c := f.Form.Conditional; c != nil && !keys[c.DependsOn] {
			errs = append(errs, fmt.Errorf("%s.%s: conditional depends on unknown field %q", s.Name, f.Key, c.DependsOn))
		}
		switch in := f.Form.Input.(type) {
		case AutoCompleteInput:
			errs = append(errs, validateAutoComplete(s.Name, f.Key, in)...)
		case ObjectInput:
			errs = append(errs, validateAutoComplete(s.Name, f.Key, in.Ref)...)
		case ExpressionInput:
			if in.VariablesEndpoint == "" {
				errs = append(errs, fmt.Errorf("%s.%s: expression field needs a variables endpoint", s.Name, f.Key))
			}
		}
	}
	return errors.Join(errs...)
}

func validateAutoComplete(schema, key string, in AutoCompleteInput) []error {
	var errs []error
	if in.Async && in.Endpoint == "" {
		errs = append(errs, fmt.Errorf("%s.%s: async auto-complete needs an endpoint", schema, key))
	}
	if !in.Async && len(in.Options) == 0 {
		errs = append(errs, fmt.Errorf("%s.%s: auto-complete needs options or an endpoint", schema, key))
	}
	if in.AllowCreateNew && in.CreateSchema == "" {
		errs = append(errs, fmt.Errorf("%s.%s: allowCreateNew without createSchema", schema, key))
	}
	return errs
}

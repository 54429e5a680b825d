package meta

import (
	"encoding/json"
	"fmt"

	"github.com/matthewbaird/erpui/internal/record"
)

// The document types below are the serialized form of the metadata: what
// CUE files decode into and what the UI server hands to the browser. They
// are flat where the Go model is a sum type.

// SchemaDoc is the serialized SchemaMeta.
type SchemaDoc struct {
	Name           string     `json:"name"`
	TableName      string     `json:"tableName,omitempty"`
	APIEndpoint    string     `json:"apiEndPoint"`
	FormName       string     `json:"formName,omitempty"`
	AllowDelete    bool       `json:"allowDelete"`
	AllowCreateNew bool       `json:"allowCreateNew"`
	AllowEdit      bool       `json:"allowEdit"`
	Sections       []string   `json:"sections,omitempty"`
	CreateTitle    string     `json:"createTitle,omitempty"`
	EditTitle      string     `json:"editTitle,omitempty"`
	InvalidateKeys []string   `json:"invalidateKeys,omitempty"`
	TenantScoped   bool       `json:"tenantScoped,omitempty"`
	ServerSide     bool       `json:"serverSide,omitempty"`
	Fields         []FieldDoc `json:"fields"`
}

// FieldDoc is the serialized FieldMeta.
type FieldDoc struct {
	Key          string           `json:"key"`
	FormRelated  *FormRelatedDoc  `json:"formRelated,omitempty"`
	TableRelated *TableRelatedDoc `json:"tableRelated,omitempty"`
}

// FormRelatedDoc is the serialized FormRelated.
type FormRelatedDoc struct {
	InputType              InputKind        `json:"inputType"`
	Label                  string           `json:"label,omitempty"`
	Placeholder            string           `json:"placeholder,omitempty"`
	Description            string           `json:"description,omitempty"`
	ValidationErrorMessage string           `json:"validationErrorMessage,omitempty"`
	Required               bool             `json:"required,omitempty"`
	Section                string           `json:"section,omitempty"`
	Conditional            *ConditionalDoc  `json:"conditional,omitempty"`
	AutoComplete           *AutoCompleteDoc `json:"autoComplete,omitempty"`
	Min                    *float64         `json:"min,omitempty"`
	Max                    *float64         `json:"max,omitempty"`
	Multiline              bool             `json:"multiline,omitempty"`
	VariablesEndpoint      string           `json:"variablesEndpoint,omitempty"`
}

// ConditionalDoc is the serialized Conditional.
type ConditionalDoc struct {
	DependsOn string `json:"dependsOn"`
	ShowIf    any    `json:"showIf"`
}

// AutoCompleteDoc is the serialized AutoCompleteInput.
type AutoCompleteDoc struct {
	Multiple       bool             `json:"multiple,omitempty"`
	Async          bool             `json:"async,omitempty"`
	Endpoint       string           `json:"getEndpoint,omitempty"`
	Options        []map[string]any `json:"options,omitempty"`
	LabelKey       string           `json:"labelKey,omitempty"`
	ValueKey       string           `json:"valueKey,omitempty"`
	AllowCreateNew bool             `json:"allowCreateNew,omitempty"`
	CreateSchema   string           `json:"createSchema,omitempty"`
}

// TableRelatedDoc is the serialized TableRelated. Accessor functions have
// no serialized form.
type TableRelatedDoc struct {
	Header            string `json:"header,omitempty"`
	AccessorKey       string `json:"accessorKey,omitempty"`
	MinSize           int    `json:"minSize,omitempty"`
	Cell              string `json:"cell,omitempty"`
	Aggregation       string `json:"aggregationFn,omitempty"`
	AggregationFormat string `json:"aggregationFormat,omitempty"`
	GroupBy           bool   `json:"groupBy,omitempty"`
	GroupDefaultLabel string `json:"groupDefaultLabel,omitempty"`
	GroupHighlight    string `json:"groupHighlight,omitempty"`
}

// Doc converts the schema to its serialized form.
func (s *SchemaMeta) Doc() SchemaDoc {
	d := SchemaDoc{
		Name:           s.Name,
		TableName:      s.TableName,
		APIEndpoint:    s.APIEndpoint,
		FormName:       s.FormName,
		AllowDelete:    s.AllowDelete,
		AllowCreateNew: s.AllowCreateNew,
		AllowEdit:      s.AllowEdit,
		Sections:       s.Sections,
		CreateTitle:    s.CreateTitle,
		EditTitle:      s.EditTitle,
		InvalidateKeys: s.InvalidateKeys,
		TenantScoped:   s.TenantScoped,
		ServerSide:     s.ServerSide,
		Fields:         make([]FieldDoc, 0, len(s.Fields)),
	}
	for _, f := range s.Fields {
		d.Fields = append(d.Fields, f.Doc())
	}
	return d
}

// MarshalJSON encodes the schema through its document form.
func (s *SchemaMeta) MarshalJSON() ([]byte, error) {
	return json.Marshal(s.Doc())
}

// Doc converts the field to its serialized form.
func (f FieldMeta) Doc() FieldDoc {
	d := FieldDoc{Key: f.Key}
	if t := f.Table; t != nil {
		d.TableRelated = &TableRelatedDoc{
			Header:            t.Header,
			AccessorKey:       t.AccessorKey,
			MinSize:           t.MinSize,
			Cell:              t.Cell,
			Aggregation:       t.Aggregation,
			AggregationFormat: t.AggregationFormat,
			GroupBy:           t.GroupBy,
			GroupDefaultLabel: t.GroupDefaultLabel,
			GroupHighlight:    t.GroupHighlight,
		}
	}
	fr := f.Form
	if fr == nil {
		return d
	}
	fd := &FormRelatedDoc{
		Label:                  fr.Label,
		Placeholder:            fr.Placeholder,
		Description:            fr.Description,
		ValidationErrorMessage: fr.ValidationErrorMessage,
		Required:               fr.Required,
		Section:                fr.Section,
	}
	if c := fr.Conditional; c != nil {
		fd.Conditional = &ConditionalDoc{DependsOn: c.DependsOn, ShowIf: c.ShowIf}
	}
	if fr.Input != nil {
		fd.InputType = fr.Input.Kind()
	}
	switch in := fr.Input.(type) {
	case TextInput:
		fd.Multiline = in.Multiline
	case NumberInput:
		fd.Min, fd.Max = in.Min, in.Max
	case AutoCompleteInput:
		fd.AutoComplete = autoCompleteDoc(in)
	case ObjectInput:
		fd.AutoComplete = autoCompleteDoc(in.Ref)
	case ExpressionInput:
		fd.VariablesEndpoint = in.VariablesEndpoint
	case BooleanInput, DateTimeInput, TableOnlyInput, nil:
	}
	d.FormRelated = fd
	return d
}

func autoCompleteDoc(in AutoCompleteInput) *AutoCompleteDoc {
	d := &AutoCompleteDoc{
		Multiple:       in.Multiple,
		Async:          in.Async,
		Endpoint:       in.Endpoint,
		LabelKey:       in.LabelKey,
		ValueKey:       in.ValueKey,
		AllowCreateNew: in.AllowCreateNew,
		CreateSchema:   in.CreateSchema,
	}
	for _, o := range in.Options {
		d.Options = append(d.Options, map[string]any(o))
	}
	return d
}

// Schema converts a document back to the Go model.
func (d SchemaDoc) Schema() (*SchemaMeta, error) {
	s := &SchemaMeta{
		Name:           d.Name,
		TableName:      d.TableName,
		APIEndpoint:    d.APIEndpoint,
		FormName:       d.FormName,
		AllowDelete:    d.AllowDelete,
		AllowCreateNew: d.AllowCreateNew,
		AllowEdit:      d.AllowEdit,
		Sections:       d.Sections,
		CreateTitle:    d.CreateTitle,
		EditTitle:      d.EditTitle,
		InvalidateKeys: d.InvalidateKeys,
		TenantScoped:   d.TenantScoped,
		ServerSide:     d.ServerSide,
	}
	for _, fd := range d.Fields {
		f, err := fd.Field()
		if err != nil {
			return nil, fmt.Errorf("%s: %w", d.Name, err)
		}
		s.Fields = append(s.Fields, f)
	}
	return s, nil
}

// Field converts a field document back to the Go model.
func (d FieldDoc) Field() (FieldMeta, error) {
	f := FieldMeta{Key: d.Key}
	if t := d.TableRelated; t != nil {
		f.Table = &TableRelated{
			Header:            t.Header,
			AccessorKey:       t.AccessorKey,
			MinSize:           t.MinSize,
			Cell:              t.Cell,
			Aggregation:       t.Aggregation,
			AggregationFormat: t.AggregationFormat,
			GroupBy:           t.GroupBy,
			GroupDefaultLabel: t.GroupDefaultLabel,
			GroupHighlight:    t.GroupHighlight,
		}
	}
	fd := d.FormRelated
	if fd == nil {
		return f, nil
	}
	in, err := fd.input()
	if err != nil {
		return FieldMeta{}, fmt.Errorf("field %s: %w", d.Key, err)
	}
	f.Form = &FormRelated{
		Input:                  in,
		Label:                  fd.Label,
		Placeholder:            fd.Placeholder,
		Description:            fd.Description,
		ValidationErrorMessage: fd.ValidationErrorMessage,
		Required:               fd.Required,
		Section:                fd.Section,
	}
	if c := fd.Conditional; c != nil {
		f.Form.Conditional = &Conditional{DependsOn: c.DependsOn, ShowIf: c.ShowIf}
	}
	return f, nil
}

func (fd *FormRelatedDoc) input() (Input, error) {
	switch fd.InputType {
	case KindText, "":
		return TextInput{Multiline: fd.Multiline}, nil
	case KindNumber:
		return NumberInput{Min: fd.Min, Max: fd.Max}, nil
	case KindBoolean:
		return BooleanInput{}, nil
	case KindDateTime:
		return DateTimeInput{}, nil
	case KindAutoComplete:
		return fd.autoComplete(), nil
	case KindObject:
		return ObjectInput{Ref: fd.autoComplete()}, nil
	case KindExpression:
		return ExpressionInput{VariablesEndpoint: fd.VariablesEndpoint}, nil
	case KindTableOnly:
		return TableOnlyInput{}, nil
	default:
		return nil, fmt.Errorf("unknown input type %q", fd.InputType)
	}
}

func (fd *FormRelatedDoc) autoComplete() AutoCompleteInput {
	ac := fd.AutoComplete
	if ac == nil {
		return AutoCompleteInput{}
	}
	in := AutoCompleteInput{
		Multiple:       ac.Multiple,
		Async:          ac.Async,
		Endpoint:       ac.Endpoint,
		LabelKey:       ac.LabelKey,
		ValueKey:       ac.ValueKey,
		AllowCreateNew: ac.AllowCreateNew,
		CreateSchema:   ac.CreateSchema,
	}
	for _, o := range ac.Options {
		in.Options = append(in.Options, record.Record(o))
	}
	return in
}

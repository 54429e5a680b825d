package meta

import "github.com/matthewbaird/erpui/internal/record"

// InputKind is the wire name of an input variant, as written in schema files.
type InputKind string

const (
	KindText         InputKind = "text-field"
	KindNumber       InputKind = "number-field"
	KindBoolean      InputKind = "boolean-field"
	KindDateTime     InputKind = "date-time"
	KindAutoComplete InputKind = "auto-complete"
	KindObject       InputKind = "object"
	KindExpression   InputKind = "expression-field"
	KindTableOnly    InputKind = "table-only"
)

// Input is the closed set of form input variants. Each variant carries its
// own configuration; consumers dispatch with a type switch over the concrete
// types below.
type Input interface {
	Kind() InputKind
	input()
}

// TextInput is a free-text field.
type TextInput struct {
	Multiline bool
}

// NumberInput binds a numeric value. Min and Max are optional bounds.
type NumberInput struct {
	Min *float64
	Max *float64
}

// BooleanInput is a checkbox or switch. An absent value reads as false.
type BooleanInput struct{}

// DateTimeInput stores an ISO-8601 string and displays its date part.
type DateTimeInput struct{}

// AutoCompleteInput selects one or more values from a list of options.
// Options are either inline (Async false) or fetched from Endpoint.
type AutoCompleteInput struct {
	Multiple bool
	Async    bool
	Endpoint string
	Options  []record.Record
	// LabelKey and ValueKey are the extractor paths applied to each option.
	LabelKey string
	ValueKey string
	// AllowCreateNew offers a nested form for CreateSchema.
	AllowCreateNew bool
	CreateSchema   string
}

// OptionLabel extracts the display label of an option.
func (a AutoCompleteInput) OptionLabel(opt record.Record) string {
	key := a.LabelKey
	if key == "" {
		key = "name"
	}
	v, _ := opt.Get(key)
	return record.Stringify(v)
}

// OptionValue extracts the stored value of an option.
func (a AutoCompleteInput) OptionValue(opt record.Record) any {
	key := a.ValueKey
	if key == "" {
		key = "id"
	}
	v, _ := opt.Get(key)
	return v
}

// ObjectInput is a relation field whose only editable leaf is the related
// record's id, chosen through Ref.
type ObjectInput struct {
	Ref AutoCompleteInput
}

// ExpressionInput is free text checked against the variable names published
// at VariablesEndpoint. Expressions are never evaluated here.
type ExpressionInput struct {
	VariablesEndpoint string
}

// TableOnlyInput marks a field that has form metadata for labelling but is
// never rendered as a control.
type TableOnlyInput struct{}

func (TextInput) Kind() InputKind         { return KindText }
func (NumberInput) Kind() InputKind       { return KindNumber }
func (BooleanInput) Kind() InputKind      { return KindBoolean }
func (DateTimeInput) Kind() InputKind     { return KindDateTime }
func (AutoCompleteInput) Kind() InputKind { return KindAutoComplete }
func (ObjectInput) Kind() InputKind       { return KindObject }
func (ExpressionInput) Kind() InputKind   { return KindExpression }
func (TableOnlyInput) Kind() InputKind    { return KindTableOnly }

func (TextInput) input()         {}
func (NumberInput) input()       {}
func (BooleanInput) input()      {}
func (DateTimeInput) input()     {}
func (AutoCompleteInput) input() {}
func (ObjectInput) input()       {}
func (ExpressionInput) input()   {}
func (TableOnlyInput) input()    {}

// Relation returns the option configuration of an auto-complete or object
// field.
func (f FieldMeta) Relation() (AutoCompleteInput, bool) {
	if f.Form == nil {
		return AutoCompleteInput{}, false
	}
	switch in := f.Form.Input.(type) {
	case AutoCompleteInput:
		return in, true
	case ObjectInput:
		return in.Ref, true
	}
	return AutoCompleteInput{}, false
}

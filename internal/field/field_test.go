package field

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/matthewbaird/erpui/internal/meta"
	"github.com/matthewbaird/erpui/internal/record"
)

type stubSource struct {
	rows    map[string][]record.Record
	loading bool
	err     error
}

func (s stubSource) Rows(_ context.Context, endpoint string) ([]record.Record, bool, error) {
	return s.rows[endpoint], s.loading, s.err
}

func formField(key string, in meta.Input) meta.FieldMeta {
	return meta.FieldMeta{Key: key, Form: &meta.FormRelated{Input: in}}
}

func render(t *testing.T, f meta.FieldMeta, values record.Record, src OptionSource) Control {
	t.Helper()
	c, ok := Render(context.Background(), f, values, "", src)
	require.True(t, ok)
	return c
}

func TestConditionalVisibility(t *testing.T) {
	f := formField("contractEndDate", meta.DateTimeInput{})
	f.Form.Conditional = &meta.Conditional{DependsOn: "employmentType", ShowIf: "contractor"}

	cases := []struct {
		values record.Record
		want   bool
	}{
		{record.Record{"employmentType": "contractor"}, true},
		{record.Record{"employmentType": "full_time"}, false},
		{record.Record{}, false},
	}
	for _, tc := range cases {
		_, ok := Render(context.Background(), f, tc.values, "", nil)
		assert.Equal(t, tc.want, ok, "%v", tc.values)
		assert.Equal(t, tc.want, Visible(f, tc.values))
	}
}

func TestConditionalOnAbsentBoolean(t *testing.T) {
	f := formField("reason", meta.TextInput{})
	f.Form.Conditional = &meta.Conditional{DependsOn: "active", ShowIf: false}
	assert.True(t, Visible(f, record.Record{}))
	assert.False(t, Visible(f, record.Record{"active": true}))
}

func TestConditionalNumericEquality(t *testing.T) {
	f := formField("note", meta.TextInput{})
	f.Form.Conditional = &meta.Conditional{DependsOn: "level", ShowIf: 3}
	assert.True(t, Visible(f, record.Record{"level": 3.0}))
}

func TestTableOnlyIsNeverRendered(t *testing.T) {
	_, ok := Render(context.Background(), formField("createdAt", meta.TableOnlyInput{}), record.Record{}, "", nil)
	assert.False(t, ok)
	_, ok = Render(context.Background(), meta.FieldMeta{Key: "x"}, record.Record{}, "", nil)
	assert.False(t, ok)
}

func TestDateTimeDisplay(t *testing.T) {
	f := formField("hireDate", meta.DateTimeInput{})
	assert.Equal(t, "2024-03-05", render(t, f, record.Record{"hireDate": "2024-03-05T10:00:00Z"}, nil).Value)
	assert.Equal(t, "2024-03-05", render(t, f, record.Record{"hireDate": "2024-03-05"}, nil).Value)
	assert.Equal(t, "", render(t, f, record.Record{"hireDate": "not a date"}, nil).Value)
	assert.Equal(t, "", render(t, f, record.Record{}, nil).Value)
	assert.Equal(t, "", DisplayDate(20240305))
}

func TestNumberDisplayAndApply(t *testing.T) {
	f := formField("baseSalary", meta.NumberInput{})
	values := record.Record{}

	assert.Equal(t, "", render(t, f, values, nil).Value)

	require.NoError(t, Apply(f, values, "4200.5"))
	assert.Equal(t, 4200.5, values["baseSalary"])
	assert.Equal(t, 4200.5, render(t, f, values, nil).Value)

	require.NoError(t, Apply(f, values, ""))
	v, present := values.Get("baseSalary")
	assert.True(t, present)
	assert.Nil(t, v, "empty input stores nil, never 0 or \"\"")

	require.NoError(t, Apply(f, values, "12abc"))
	assert.Equal(t, "12abc", values["baseSalary"])
	assert.Equal(t, "Base Salary must be a number", Validate(f, values, nil))
}

func TestBooleanAbsentIsFalse(t *testing.T) {
	f := formField("active", meta.BooleanInput{})
	assert.Equal(t, false, render(t, f, record.Record{}, nil).Value)

	values := record.Record{}
	require.NoError(t, Apply(f, values, "on"))
	assert.Equal(t, true, values["active"])
}

func TestSyncAutoCompleteSelectsByValueKey(t *testing.T) {
	f := formField("employmentType", meta.AutoCompleteInput{
		Options: []record.Record{
			{"value": "full_time", "label": "Full time"},
			{"value": "contractor", "label": "Contractor"},
		},
		LabelKey: "label",
		ValueKey: "value",
	})
	c := render(t, f, record.Record{"employmentType": "contractor"}, nil)
	require.Len(t, c.Options, 2)
	assert.False(t, c.Options[0].Selected)
	assert.True(t, c.Options[1].Selected)
	assert.Equal(t, "Contractor", c.Options[1].Label)
	assert.False(t, c.Loading)
}

func TestAsyncAutoCompleteLoading(t *testing.T) {
	f := formField("department", meta.ObjectInput{Ref: meta.AutoCompleteInput{
		Async:          true,
		Endpoint:       "/api/hr/departments",
		AllowCreateNew: true,
		CreateSchema:   "departments",
	}})

	c := render(t, f, record.Record{}, stubSource{loading: true})
	assert.True(t, c.Loading)
	assert.Empty(t, c.Options)
	assert.Equal(t, &CreateNew{Schema: "departments", Field: "department"}, c.CreateNew)

	src := stubSource{rows: map[string][]record.Record{
		"/api/hr/departments": {{"id": "d1", "name": "Finance"}, {"id": "d2", "name": "Ops"}},
	}}
	c = render(t, f, record.Record{"department": map[string]any{"id": "d2", "name": "Ops"}}, src)
	assert.False(t, c.Loading)
	assert.Equal(t, "d2", c.Value)
	assert.True(t, c.Options[1].Selected)

	c = render(t, f, record.Record{}, stubSource{err: errors.New("boom")})
	assert.True(t, c.Error)
	assert.Equal(t, "Failed to load options", c.HelperText)
}

func TestObjectApplyWritesIDReference(t *testing.T) {
	f := formField("department", meta.ObjectInput{Ref: meta.AutoCompleteInput{Async: true, Endpoint: "/api/hr/departments"}})
	values := record.Record{}

	require.NoError(t, Apply(f, values, "d1"))
	assert.Equal(t, map[string]any{"id": "d1"}, values["department"])

	require.NoError(t, Apply(f, values, map[string]any{"id": "d2", "name": "Ops"}))
	id, _ := values.Get("department.id")
	assert.Equal(t, "d2", id)

	require.NoError(t, Apply(f, values, ""))
	assert.Nil(t, values["department"])
}

func TestMultipleAutoCompleteApply(t *testing.T) {
	f := formField("skills", meta.AutoCompleteInput{Multiple: true, Options: []record.Record{{"id": "go"}}})
	values := record.Record{}
	require.NoError(t, Apply(f, values, []any{"go", "", "sql"}))
	assert.Equal(t, []any{"go", "sql"}, values["skills"])

	c := render(t, f, values, nil)
	assert.True(t, c.Multiple)
	assert.True(t, c.Options[0].Selected)

	require.NoError(t, Apply(f, values, []any{}))
	assert.Nil(t, values["skills"])
}

func TestApplyTableOnlyFails(t *testing.T) {
	err := Apply(formField("createdAt", meta.TableOnlyInput{}), record.Record{}, "x")
	assert.ErrorIs(t, err, ErrNotEditable)
}

func TestValidateRequired(t *testing.T) {
	f := formField("department", meta.ObjectInput{Ref: meta.AutoCompleteInput{Async: true, Endpoint: "/x"}})
	f.Form.Required = true
	assert.Equal(t, "Department is required", Validate(f, record.Record{}, nil))
	assert.Equal(t, "Department is required", Validate(f, record.Record{"department": map[string]any{"id": nil}}, nil))

	f.Form.ValidationErrorMessage = "Please select a department"
	assert.Equal(t, "Please select a department", Validate(f, record.Record{}, nil))
	assert.Equal(t, "", Validate(f, record.Record{"department": map[string]any{"id": "d1"}}, nil))
}

func TestValidateNumberBounds(t *testing.T) {
	lo, hi := 0.0, 365.0
	f := formField("daysPerYear", meta.NumberInput{Min: &lo, Max: &hi})
	assert.Equal(t, "Days Per Year must be at least 0", Validate(f, record.Record{"daysPerYear": -1.0}, nil))
	assert.Equal(t, "Days Per Year must be at most 365", Validate(f, record.Record{"daysPerYear": 400.0}, nil))
	assert.Equal(t, "", Validate(f, record.Record{"daysPerYear": 25.0}, nil))
}

func TestValidateDate(t *testing.T) {
	f := formField("hireDate", meta.DateTimeInput{})
	assert.Equal(t, "Hire Date must be a valid date", Validate(f, record.Record{"hireDate": "05/03/2024"}, nil))
	assert.Equal(t, "", Validate(f, record.Record{"hireDate": "2024-03-05"}, nil))
}

func TestExpressionField(t *testing.T) {
	f := formField("formula", meta.ExpressionInput{VariablesEndpoint: "/api/hr/payroll-variables"})
	src := stubSource{rows: map[string][]record.Record{
		"/api/hr/payroll-variables": {{"name": "baseSalary"}, {"name": "overtimeHours"}},
	}}
	values := record.Record{}
	require.NoError(t, Apply(f, values, "baseSalary * 1.1 + bonus"))

	c := render(t, f, values, src)
	assert.Equal(t, []string{"baseSalary", "overtimeHours"}, c.Variables)
	assert.Equal(t, "baseSalary * 1.1 + bonus", c.Value)

	msg := Validate(f, values, c.Variables)
	assert.Contains(t, msg, `unknown variable "bonus"`)

	require.NoError(t, Apply(f, values, "baseSalary * 1.1"))
	assert.Equal(t, "", Validate(f, values, c.Variables))
}

func TestRenderErrorReplacesDescription(t *testing.T) {
	f := formField("firstName", meta.TextInput{})
	f.Form.Description = "Legal first name"
	c := render(t, f, record.Record{}, nil)
	assert.Equal(t, "Legal first name", c.HelperText)
	assert.False(t, c.Error)

	c, _ = Render(context.Background(), f, record.Record{}, "First Name is required", nil)
	assert.Equal(t, "First Name is required", c.HelperText)
	assert.True(t, c.Error)
}

package meta

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBuiltinSchemasLoadAndValidate(t *testing.T) {
	l, err := NewLoader()
	require.NoError(t, err)

	schemas, err := l.Builtin()
	require.NoError(t, err)

	reg := NewRegistry()
	require.NoError(t, reg.Replace(schemas))
	assert.Equal(t, []string{"departments", "employees", "leave_types", "payroll_batches", "payslips"}, reg.Names())

	payslips, err := reg.Schema("payslips")
	require.NoError(t, err)
	assert.Equal(t, "/api/hr/payslips", payslips.APIEndpoint)
	assert.True(t, payslips.AllowDelete, "allowDelete defaults to true")

	batch, ok := payslips.Field("payrollBatch")
	require.True(t, ok)
	obj, ok := batch.Form.Input.(ObjectInput)
	require.True(t, ok, "payrollBatch should decode as an object input, got %T", batch.Form.Input)
	assert.True(t, obj.Ref.Async)
	assert.Equal(t, "/api/hr/payroll-batches", obj.Ref.Endpoint)
	assert.Equal(t, "Generated without Batch", batch.Table.GroupDefaultLabel)

	employees, err := reg.Schema("employees")
	require.NoError(t, err)
	end, ok := employees.Field("contractEndDate")
	require.True(t, ok)
	require.NotNil(t, end.Form.Conditional)
	assert.Equal(t, "employmentType", end.Form.Conditional.DependsOn)
	assert.Equal(t, "contractor", end.Form.Conditional.ShowIf)
	assert.Nil(t, end.Table, "form-only field")

	id, ok := employees.Field("id")
	require.True(t, ok)
	assert.Nil(t, id.Form, "table-only field")
}

func TestLoadBytesDefaultsInputType(t *testing.T) {
	l, err := NewLoader()
	require.NoError(t, err)

	schemas, err := l.LoadBytes("inline.cue", []byte(`
schemas: projects: {
	apiEndPoint: "/api/projects"
	fields: [{key: "title", formRelated: {required: true}}]
}
`))
	require.NoError(t, err)
	require.Len(t, schemas, 1)
	assert.Equal(t, "projects", schemas[0].Name)
	assert.IsType(t, TextInput{}, schemas[0].Fields[0].Form.Input)
}

func TestLoadBytesRejectsUnknownAttribute(t *testing.T) {
	l, err := NewLoader()
	require.NoError(t, err)

	_, err = l.LoadBytes("bad.cue", []byte(`
schemas: projects: {
	apiEndPoint: "/api/projects"
	colour: "red"
	fields: []
}
`))
	assert.Error(t, err)
}

func TestLoadBytesRejectsUnknownInputType(t *testing.T) {
	l, err := NewLoader()
	require.NoError(t, err)

	_, err = l.LoadBytes("bad.cue", []byte(`
schemas: projects: {
	apiEndPoint: "/api/projects"
	fields: [{key: "x", formRelated: {inputType: "slider"}}]
}
`))
	assert.Error(t, err)
}

func TestLoadBytesRequiresLeadingSlashEndpoint(t *testing.T) {
	l, err := NewLoader()
	require.NoError(t, err)

	_, err = l.LoadBytes("bad.cue", []byte(`
schemas: projects: {
	apiEndPoint: "api/projects"
	fields: []
}
`))
	assert.Error(t, err)
}

func TestDocRoundTripKeepsVariant(t *testing.T) {
	l, err := NewLoader()
	require.NoError(t, err)
	schemas, err := l.Builtin()
	require.NoError(t, err)

	for _, s := range schemas {
		back, err := s.Doc().Schema()
		require.NoError(t, err)
		require.Len(t, back.Fields, len(s.Fields))
		for i, f := range s.Fields {
			if f.Form == nil {
				assert.Nil(t, back.Fields[i].Form)
				continue
			}
			assert.Equal(t, f.Form.Input.Kind(), back.Fields[i].Form.Input.Kind(), "%s.%s", s.Name, f.Key)
		}
	}
}

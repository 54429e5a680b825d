package form

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"github.com/matthewbaird/erpui/internal/data"
	"github.com/matthewbaird/erpui/internal/meta"
	"github.com/matthewbaird/erpui/internal/notify"
	"github.com/matthewbaird/erpui/internal/record"
)

type fakeBackend struct {
	mu          sync.Mutex
	mutations   []data.Mutation
	invalidated [][]string
	response    record.Record
	err         error
	// invalidateErr fails every Invalidate call.
	invalidateErr error
}

func (b *fakeBackend) Mutate(_ context.Context, m data.Mutation) (record.Record, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.mutations = append(b.mutations, m)
	if b.err != nil {
		return nil, b.err
	}
	return b.response, nil
}

func (b *fakeBackend) Invalidate(_ context.Context, prefixes ...string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.invalidated = append(b.invalidated, prefixes)
	return b.invalidateErr
}

type staticOptions map[string][]record.Record

func (s staticOptions) Rows(_ context.Context, endpoint string) ([]record.Record, bool, error) {
	return s[endpoint], false, nil
}

func registry(t *testing.T) *meta.Registry {
	t.Helper()
	l, err := meta.NewLoader()
	require.NoError(t, err)
	schemas, err := l.Builtin()
	require.NoError(t, err)
	reg := meta.NewRegistry()
	require.NoError(t, reg.Replace(schemas))
	return reg
}

func setup(t *testing.T, schema string) (*meta.SchemaMeta, Deps, *fakeBackend, *notify.Recorder) {
	t.Helper()
	reg := registry(t)
	s, err := reg.Schema(schema)
	require.NoError(t, err)
	backend := &fakeBackend{}
	toasts := &notify.Recorder{}
	return s, Deps{
		Registry: reg,
		Backend:  backend,
		Notifier: toasts,
		Options: staticOptions{
			"/api/hr/departments":       {{"id": "d1", "name": "Finance"}},
			"/api/hr/payroll-variables": {{"name": "baseSalary"}, {"name": "overtimeHours"}},
		},
	}, backend, toasts
}

func TestValidateTransition(t *testing.T) {
	assert.NoError(t, validateTransition(PhaseEditing, PhaseSubmitting))
	assert.NoError(t, validateTransition(PhaseError, PhaseEditing))
	assert.Error(t, validateTransition(PhaseClosed, PhaseEditing))
	assert.Error(t, validateTransition(PhaseSubmitting, PhaseClosed))
	assert.Error(t, validateTransition(Phase("bogus"), PhaseClosed))
}

func TestCreateOpensEditingEmpty(t *testing.T) {
	s, deps, _, _ := setup(t, "employees")
	o := NewCreate(s, deps)
	assert.Equal(t, PhaseEditing, o.Phase())
	assert.False(t, o.Editing())
	assert.Empty(t, o.Values())
	assert.Equal(t, "Create Employee", o.View(context.Background()).Title)
}

func TestEditOpensPrePopulated(t *testing.T) {
	s, deps, _, _ := setup(t, "employees")
	existing := record.Record{"id": "e1", "firstName": "Ada"}
	o := NewEdit(s, deps, existing)
	assert.True(t, o.Editing())
	assert.Equal(t, "Ada", o.Values()["firstName"])

	require.NoError(t, o.Set("firstName", "Grace"))
	assert.Equal(t, "Ada", existing["firstName"], "existing record is not aliased")
	assert.Equal(t, "Edit Employee", o.View(context.Background()).Title)
}

func TestTabsFollowSectionsAndHideConditional(t *testing.T) {
	s, deps, _, _ := setup(t, "employees")
	o := NewCreate(s, deps)

	names := func() []string {
		var out []string
		for _, tab := range o.View(context.Background()).Tabs {
			out = append(out, tab.Name)
		}
		return out
	}
	assert.Equal(t, []string{"Personal", "Employment", "Payroll"}, names())

	hasControl := func(key string) bool {
		for _, tab := range o.View(context.Background()).Tabs {
			for _, c := range tab.Controls {
				if c.Key == key {
					return true
				}
			}
		}
		return false
	}
	assert.False(t, hasControl("contractEndDate"))
	require.NoError(t, o.Set("employmentType", "contractor"))
	assert.True(t, hasControl("contractEndDate"))
	assert.False(t, hasControl("id"), "table-only fields have no control")
}

func TestUndeclaredSectionGoesToTrailingGeneral(t *testing.T) {
	s := &meta.SchemaMeta{
		Name:        "notes",
		APIEndpoint: "/api/notes",
		Sections:    []string{"Main"},
		Fields: []meta.FieldMeta{
			{Key: "misc", Form: &meta.FormRelated{Input: meta.TextInput{}}},
			{Key: "title", Form: &meta.FormRelated{Input: meta.TextInput{}, Section: "Main"}},
		},
	}
	o := NewCreate(s, Deps{Backend: &fakeBackend{}})
	tabs := o.View(context.Background()).Tabs
	require.Len(t, tabs, 2)
	assert.Equal(t, "Main", tabs[0].Name)
	assert.Equal(t, DefaultTab, tabs[1].Name)
	assert.Equal(t, "misc", tabs[1].Controls[0].Key)
}

func TestRequiredRelationBlocksSubmitWithoutNetwork(t *testing.T) {
	s, deps, backend, toasts := setup(t, "employees")
	o := NewCreate(s, deps)
	require.NoError(t, o.Set("firstName", "Ada"))
	require.NoError(t, o.Set("lastName", "Lovelace"))
	require.NoError(t, o.Set("hireDate", "2024-03-05"))

	_, err := o.Submit(context.Background())
	require.ErrorIs(t, err, ErrInvalid)
	assert.Empty(t, backend.mutations, "no network call")
	assert.Empty(t, toasts.Toasts())
	assert.Equal(t, PhaseEditing, o.Phase())

	errs := o.Errors()
	assert.Equal(t, map[string]string{"department": "Please select a department"}, errs)
	view := o.View(context.Background())
	assert.Equal(t, "department", view.Focus)
}

func TestFocusFollowsTabOrder(t *testing.T) {
	s, deps, _, _ := setup(t, "employees")
	o := NewCreate(s, deps)
	assert.False(t, o.Validate(context.Background()))
	assert.Equal(t, "firstName", o.View(context.Background()).Focus)
}

func TestErrorsClearOnlyOnNextValidation(t *testing.T) {
	s, deps, _, _ := setup(t, "departments")
	o := NewCreate(s, deps)
	assert.False(t, o.Validate(context.Background()))
	require.NoError(t, o.Set("name", "Finance"))
	assert.Contains(t, o.Errors(), "name", "editing does not clear errors")
	assert.True(t, o.Validate(context.Background()))
	assert.Empty(t, o.Errors())
}

func TestSuccessfulCreate(t *testing.T) {
	s, deps, backend, toasts := setup(t, "employees")
	backend.response = record.Record{"id": "e9"}
	o := NewCreate(s, deps)
	for k, v := range map[string]any{
		"firstName":  "Ada",
		"lastName":   "Lovelace",
		"hireDate":   "2024-03-05T10:00:00Z",
		"department": "d1",
		"baseSalary": "",
		"email":      "",
	} {
		require.NoError(t, o.Set(k, v))
	}

	out, err := o.Submit(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "e9", out.ID())
	assert.Equal(t, PhaseClosed, o.Phase())

	require.Len(t, backend.mutations, 1)
	m := backend.mutations[0]
	assert.Equal(t, http.MethodPost, m.Method)
	assert.Equal(t, "/api/hr/employees", m.Endpoint)
	assert.Equal(t, []string{"/api/hr/employees", "/api/hr/payslips"}, m.InvalidateKeys)
	want := record.Record{
		"firstName":  "Ada",
		"lastName":   "Lovelace",
		"hireDate":   "2024-03-05T10:00:00Z",
		"department": map[string]any{"id": "d1"},
	}
	if diff := cmp.Diff(want, m.Body); diff != "" {
		t.Errorf("payload mismatch (-want +got):\n%s", diff)
	}

	toastList := toasts.Toasts()
	require.Len(t, toastList, 1)
	assert.Equal(t, notify.LevelSuccess, toastList[0].Level)
	assert.Equal(t, "Employee created successfully", toastList[0].Message)

	_, err = o.Submit(context.Background())
	assert.ErrorIs(t, err, ErrClosed)
	assert.ErrorIs(t, o.Set("firstName", "x"), ErrClosed)
}

func TestEditPatchesByID(t *testing.T) {
	s, deps, backend, _ := setup(t, "departments")
	o := NewEdit(s, deps, record.Record{"id": "d1", "name": "Finance", "createdAt": "2024-01-01T00:00:00Z", "createdBy": "bob"})
	_, err := o.Submit(context.Background())
	require.NoError(t, err)

	m := backend.mutations[0]
	assert.Equal(t, http.MethodPatch, m.Method)
	assert.Equal(t, "d1", m.ID)
	assert.Equal(t, record.Record{"name": "Finance"}, m.Body)
}

func TestTenantScopedSubmitCarriesCode(t *testing.T) {
	s, deps, backend, _ := setup(t, "leave_types")
	o := NewCreate(s, deps)
	require.NoError(t, o.Set("code", "acme"))
	require.NoError(t, o.Set("name", "Annual"))
	_, err := o.Submit(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "acme", backend.mutations[0].Tenant)
}

func TestFailedSubmitKeepsValues(t *testing.T) {
	s, deps, backend, toasts := setup(t, "departments")
	backend.err = &data.APIError{Status: http.StatusConflict, Message: "Department name already exists"}
	o := NewCreate(s, deps)
	require.NoError(t, o.Set("name", "Finance"))

	_, err := o.Submit(context.Background())
	var apiErr *data.APIError
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, PhaseEditing, o.Phase())
	assert.Equal(t, "Finance", o.Values()["name"])

	toastList := toasts.Toasts()
	require.Len(t, toastList, 1)
	assert.Equal(t, notify.LevelError, toastList[0].Level)
	assert.Equal(t, "Department name already exists", toastList[0].Message)

	backend.err = errors.New("connection reset")
	_, err = o.Submit(context.Background())
	require.Error(t, err)
	assert.Equal(t, GenericError, toasts.Toasts()[1].Message)
	assert.Len(t, backend.mutations, 2, "each resubmit is one request")
}

func TestExpressionValidatedAgainstVariables(t *testing.T) {
	s, deps, backend, _ := setup(t, "payslips")
	o := NewCreate(s, deps)
	require.NoError(t, o.Set("employee", "e1"))
	require.NoError(t, o.Set("grossAmount", 1000))
	require.NoError(t, o.Set("formula", "baseSalary * bonusRate"))

	_, err := o.Submit(context.Background())
	require.ErrorIs(t, err, ErrInvalid)
	assert.Contains(t, o.Errors()["formula"], `unknown variable "bonusRate"`)

	require.NoError(t, o.Set("formula", "baseSalary * 0.1"))
	_, err = o.Submit(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "baseSalary * 0.1", backend.mutations[0].Body["formula"])
}

// editingOptions runs onRows the first time variables are looked up, which
// happens while a submit is validating.
type editingOptions struct {
	staticOptions
	once   sync.Once
	onRows func()
}

func (e *editingOptions) Rows(ctx context.Context, endpoint string) ([]record.Record, bool, error) {
	e.once.Do(e.onRows)
	return e.staticOptions.Rows(ctx, endpoint)
}

func TestSubmitSendsTheValidatedValues(t *testing.T) {
	s, deps, backend, _ := setup(t, "payslips")
	opts := &editingOptions{staticOptions: deps.Options.(staticOptions)}
	deps.Options = opts
	o := NewCreate(s, deps)
	require.NoError(t, o.Set("employee", "e1"))
	require.NoError(t, o.Set("grossAmount", 1000))
	require.NoError(t, o.Set("formula", "baseSalary * 0.1"))
	opts.onRows = func() { _ = o.Set("formula", "baseSalary * bonusRate") }

	_, err := o.Submit(context.Background())
	require.NoError(t, err)
	require.Len(t, backend.mutations, 1)
	assert.Equal(t, "baseSalary * 0.1", backend.mutations[0].Body["formula"])
}

func TestHiddenConditionalExcludedFromValidationAndPayload(t *testing.T) {
	s, deps, backend, _ := setup(t, "employees")
	o := NewCreate(s, deps)
	for k, v := range map[string]any{
		"firstName":       "Ada",
		"lastName":        "Lovelace",
		"hireDate":        "2024-03-05",
		"department":      "d1",
		"employmentType":  "contractor",
		"contractEndDate": "not a date",
	} {
		require.NoError(t, o.Set(k, v))
	}
	assert.False(t, o.Validate(context.Background()))

	require.NoError(t, o.Set("employmentType", "full_time"))
	_, err := o.Submit(context.Background())
	require.NoError(t, err)
	assert.NotContains(t, backend.mutations[0].Body, "contractEndDate")
	assert.Equal(t, "not a date", o.Values()["contractEndDate"], "hidden values are retained")
}

func TestCloseAndSetUnknownField(t *testing.T) {
	s, deps, _, _ := setup(t, "departments")
	o := NewCreate(s, deps)
	assert.Error(t, o.Set("nope", "x"))
	require.NoError(t, o.Close())
	require.NoError(t, o.Close())
	assert.Equal(t, PhaseClosed, o.Phase())
}

func TestOpenRelatedInvalidatesParentOptions(t *testing.T) {
	s, deps, backend, toasts := setup(t, "employees")
	parent := NewCreate(s, deps)

	_, err := parent.OpenRelated("firstName")
	assert.ErrorIs(t, err, ErrNoCreateNew)

	child, err := parent.OpenRelated("department")
	require.NoError(t, err)
	assert.Equal(t, "departments", child.Schema().Name)
	assert.Equal(t, "Create Department", child.View(context.Background()).Title)

	backend.response = record.Record{"id": "d7", "name": "Legal"}
	require.NoError(t, child.Set("name", "Legal"))
	_, err = child.Submit(context.Background())
	require.NoError(t, err)

	assert.Equal(t, PhaseClosed, child.Phase())
	assert.Equal(t, PhaseEditing, parent.Phase(), "parent stays open")
	require.Len(t, backend.invalidated, 1)
	assert.Equal(t, []string{"/api/hr/departments"}, backend.invalidated[0])
	id, _ := parent.Values().Get("department.id")
	assert.Equal(t, "d7", id, "new record is selected in the parent")
	assert.Len(t, toasts.Toasts(), 1)
}

func TestRelatedOptionRefreshFailureIsLogged(t *testing.T) {
	s, deps, backend, _ := setup(t, "employees")
	core, logs := observer.New(zap.WarnLevel)
	deps.Log = zap.New(core)
	backend.invalidateErr = errors.New("cache closed")
	parent := NewCreate(s, deps)

	child, err := parent.OpenRelated("department")
	require.NoError(t, err)
	backend.response = record.Record{"id": "d7", "name": "Legal"}
	require.NoError(t, child.Set("name", "Legal"))
	_, err = child.Submit(context.Background())
	require.NoError(t, err)

	entries := logs.FilterMessage("refreshing related options failed").All()
	require.Len(t, entries, 1)
	assert.Equal(t, "department", entries[0].ContextMap()["field"])
	assert.Equal(t, "cache closed", entries[0].ContextMap()["error"])
	id, _ := parent.Values().Get("department.id")
	assert.Equal(t, "d7", id, "selection still happens")
}

func TestTransform(t *testing.T) {
	s := &meta.SchemaMeta{
		Name:        "payslips",
		APIEndpoint: "/api/hr/payslips",
		Fields: []meta.FieldMeta{
			{Key: "employee", Form: &meta.FormRelated{Input: meta.ObjectInput{}}},
			{Key: "bonus", Form: &meta.FormRelated{Input: meta.NumberInput{}, Conditional: &meta.Conditional{DependsOn: "eligible", ShowIf: true}}},
			{Key: "eligible", Form: &meta.FormRelated{Input: meta.BooleanInput{}}},
		},
	}
	values := record.Record{
		"id":           "p1",
		"createdAt":    "2024-01-01",
		"updatedBy":    "bob",
		"employee":     map[string]any{"id": "e1", "firstName": "Ada", "createdAt": "x"},
		"payrollBatch": map[string]any{"id": nil, "name": ""},
		"bonus":        250.0,
		"eligible":     false,
		"grossAmount":  0.0,
		"note":         "",
		"memo":         nil,
		"address":      map[string]any{"street": "Main 1", "zip": ""},
		"tags":         []any{map[string]any{"id": "t1", "label": "x"}, ""},
	}
	got := Transform(s, values)
	want := record.Record{
		"employee":    map[string]any{"id": "e1"},
		"eligible":    false,
		"grossAmount": 0.0,
		"address":     map[string]any{"street": "Main 1"},
		"tags":        []any{map[string]any{"id": "t1"}},
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("Transform mismatch (-want +got):\n%s", diff)
	}
	assert.Equal(t, "p1", values["id"], "input is not modified")
}

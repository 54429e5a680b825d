// Package form orchestrates one create or edit interaction: it groups field
// controls into tabs, validates on submit, shapes the payload and performs
// the mutation.
package form

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"

	"go.uber.org/zap"

	"github.com/matthewbaird/erpui/internal/data"
	"github.com/matthewbaird/erpui/internal/field"
	"github.com/matthewbaird/erpui/internal/meta"
	"github.com/matthewbaird/erpui/internal/notify"
	"github.com/matthewbaird/erpui/internal/record"
)

var (
	// ErrClosed is returned for any operation on a closed form.
	ErrClosed = errors.New("form is closed")
	// ErrInvalid is returned by Submit when validation fails. No request is
	// made.
	ErrInvalid = errors.New("form has invalid fields")
	// ErrBusy is returned when the form is not accepting edits, for example
	// while a submit is in flight.
	ErrBusy = errors.New("form is not editable")
)

// DefaultTab collects fields whose section is empty or not declared.
const DefaultTab = "General"

// GenericError is shown when a failed mutation carries no server message.
const GenericError = "Something went wrong. Please try again."

// Backend performs mutations and explicit invalidations.
type Backend interface {
	Mutate(ctx context.Context, m data.Mutation) (record.Record, error)
	Invalidate(ctx context.Context, prefixes ...string) error
}

// Deps are the collaborators shared by every form.
type Deps struct {
	Registry *meta.Registry
	Backend  Backend
	Options  field.OptionSource
	Notifier notify.Notifier
	// Log may be nil.
	Log *zap.Logger
}

func (d Deps) logger() *zap.Logger {
	if d.Log == nil {
		return zap.NewNop()
	}
	return d.Log
}

// Tab is one section of a form.
type Tab struct {
	Name     string          `json:"name"`
	Controls []field.Control `json:"controls"`
}

// View is the rendered state of a form.
type View struct {
	Schema  string            `json:"schema"`
	Title   string            `json:"title"`
	Phase   Phase             `json:"phase"`
	Editing bool              `json:"editing"`
	Tabs    []Tab             `json:"tabs"`
	Focus   string            `json:"focus,omitempty"`
	Errors  map[string]string `json:"errors,omitempty"`
}

// Orchestrator owns the FormState of one open form. It is safe for
// concurrent use.
type Orchestrator struct {
	schema *meta.SchemaMeta
	deps   Deps

	mu     sync.Mutex
	phase  Phase
	id     string
	values record.Record
	errors map[string]string
	focus  string

	parent      *Orchestrator
	parentField string
}

// NewCreate opens an empty create form.
func NewCreate(schema *meta.SchemaMeta, deps Deps) *Orchestrator {
	return open(schema, deps, "", record.Record{})
}

// NewEdit opens an edit form pre-populated with existing.
func NewEdit(schema *meta.SchemaMeta, deps Deps, existing record.Record) *Orchestrator {
	return open(schema, deps, existing.ID(), existing.Clone())
}

func open(schema *meta.SchemaMeta, deps Deps, id string, values record.Record) *Orchestrator {
	if deps.Notifier == nil {
		deps.Notifier = notify.Multi(nil)
	}
	o := &Orchestrator{
		schema: schema,
		deps:   deps,
		phase:  PhaseIdle,
		id:     id,
		values: values,
		errors: map[string]string{},
	}
	o.moveTo(PhaseEditing)
	return o
}

// moveTo applies a transition. Callers hold o.mu. The transition table is
// internal, so an illegal move is a bug.
func (o *Orchestrator) moveTo(p Phase) {
	if err := validateTransition(o.phase, p); err != nil {
		panic("form: " + err.Error())
	}
	o.phase = p
}

// Schema returns the schema the form edits.
func (o *Orchestrator) Schema() *meta.SchemaMeta { return o.schema }

// Phase returns the current phase.
func (o *Orchestrator) Phase() Phase {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.phase
}

// Editing reports whether this is an edit of an existing record.
func (o *Orchestrator) Editing() bool { return o.id != "" }

// Values returns a copy of the current values.
func (o *Orchestrator) Values() record.Record {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.values.Clone()
}

// Errors returns a copy of the per-field errors of the last validation.
func (o *Orchestrator) Errors() map[string]string {
	o.mu.Lock()
	defer o.mu.Unlock()
	out := make(map[string]string, len(o.errors))
	for k, v := range o.errors {
		out[k] = v
	}
	return out
}

// Set applies raw user input to the field key. Errors from the previous
// validation are kept until the next submit.
func (o *Orchestrator) Set(key string, raw any) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	if err := o.editable(); err != nil {
		return err
	}
	f, ok := o.schema.Field(key)
	if !ok {
		return fmt.Errorf("%s: unknown field %q", o.schema.Name, key)
	}
	return field.Apply(f, o.values, raw)
}

func (o *Orchestrator) editable() error {
	switch o.phase {
	case PhaseClosed:
		return ErrClosed
	case PhaseEditing:
		return nil
	default:
		return fmt.Errorf("%w in phase %s", ErrBusy, o.phase)
	}
}

// View renders the form.
func (o *Orchestrator) View(ctx context.Context) View {
	o.mu.Lock()
	values := o.values.Clone()
	errs := make(map[string]string, len(o.errors))
	for k, v := range o.errors {
		errs[k] = v
	}
	v := View{
		Schema:  o.schema.Name,
		Title:   o.schema.Title(o.Editing()),
		Phase:   o.phase,
		Editing: o.Editing(),
		Focus:   o.focus,
	}
	o.mu.Unlock()

	// Options are resolved without holding the lock; sources may block.
	v.Tabs = o.tabs(ctx, values, errs)
	if len(errs) > 0 {
		v.Errors = errs
	}
	return v
}

// tabs groups visible controls by the schema's section order. Fields with
// an empty or undeclared section go to DefaultTab, which is last unless the
// schema declares it. Tabs without visible controls are omitted.
func (o *Orchestrator) tabs(ctx context.Context, values record.Record, errs map[string]string) []Tab {
	order := o.tabOrder()
	byName := map[string]*Tab{}
	for _, f := range o.orderedFields() {
		c, ok := field.Render(ctx, f, values, errs[f.Key], o.deps.Options)
		if !ok {
			continue
		}
		name := o.sectionOf(f)
		t, ok := byName[name]
		if !ok {
			t = &Tab{Name: name}
			byName[name] = t
		}
		t.Controls = append(t.Controls, c)
	}
	out := make([]Tab, 0, len(byName))
	for _, name := range order {
		if t, ok := byName[name]; ok {
			out = append(out, *t)
		}
	}
	return out
}

func (o *Orchestrator) tabOrder() []string {
	order := append([]string(nil), o.schema.Sections...)
	for _, s := range order {
		if s == DefaultTab {
			return order
		}
	}
	return append(order, DefaultTab)
}

func (o *Orchestrator) sectionOf(f meta.FieldMeta) string {
	for _, s := range o.schema.Sections {
		if s == f.Form.Section {
			return s
		}
	}
	return DefaultTab
}

// orderedFields returns form fields in tab order, declaration order within
// a tab. Focus follows this order.
func (o *Orchestrator) orderedFields() []meta.FieldMeta {
	fields := o.schema.FormFields()
	var out []meta.FieldMeta
	for _, tab := range o.tabOrder() {
		for _, f := range fields {
			if o.sectionOf(f) == tab {
				out = append(out, f)
			}
		}
	}
	return out
}

// Validate runs validation over the visible fields, replacing the previous
// errors, and reports whether the form is valid. The first invalid field in
// tab order becomes the focus.
func (o *Orchestrator) Validate(ctx context.Context) bool {
	o.mu.Lock()
	values := o.values.Clone()
	o.mu.Unlock()
	return o.validateSnapshot(ctx, values)
}

// validateSnapshot validates values and records the outcome on the form.
func (o *Orchestrator) validateSnapshot(ctx context.Context, values record.Record) bool {
	errs, focus := o.validate(ctx, values)

	o.mu.Lock()
	defer o.mu.Unlock()
	o.errors = errs
	o.focus = focus
	return len(errs) == 0
}

func (o *Orchestrator) validate(ctx context.Context, values record.Record) (map[string]string, string) {
	errs := map[string]string{}
	focus := ""
	for _, f := range o.orderedFields() {
		if !field.Visible(f, values) {
			continue
		}
		var msg string
		if in, ok := f.Form.Input.(meta.ExpressionInput); ok {
			msg = o.validateExpression(ctx, f, in, values)
		} else {
			msg = field.Validate(f, values, nil)
		}
		if msg == "" {
			continue
		}
		errs[f.Key] = msg
		if focus == "" {
			focus = f.Key
		}
	}
	return errs, focus
}

func (o *Orchestrator) validateExpression(ctx context.Context, f meta.FieldMeta, in meta.ExpressionInput, values record.Record) string {
	if v, _ := values.Get(f.Key); record.IsEmpty(v) {
		return field.Validate(f, values, nil)
	}
	if o.deps.Options == nil {
		return "Variables are unavailable"
	}
	rows, loading, err := o.deps.Options.Rows(ctx, in.VariablesEndpoint)
	switch {
	case err != nil:
		return "Failed to load variables"
	case loading:
		return "Variables are still loading, try again"
	}
	return field.Validate(f, values, field.VariableNames(rows))
}

// Payload returns the transformed request body for the current values.
func (o *Orchestrator) Payload() record.Record {
	o.mu.Lock()
	defer o.mu.Unlock()
	return Transform(o.schema, o.values)
}

// Submit validates and, when valid, creates or updates the record. On
// success the schema's query keys are refetched, a success toast is shown
// and the form closes. On failure an error toast is shown and the form
// returns to editing with its values intact. There is no retry.
func (o *Orchestrator) Submit(ctx context.Context) (record.Record, error) {
	o.mu.Lock()
	if err := o.editable(); err != nil {
		o.mu.Unlock()
		return nil, err
	}
	values := o.values.Clone()
	o.mu.Unlock()

	// The payload is built from the same snapshot that was validated.
	if !o.validateSnapshot(ctx, values) {
		return nil, ErrInvalid
	}

	o.mu.Lock()
	if err := o.editable(); err != nil {
		o.mu.Unlock()
		return nil, err
	}
	o.moveTo(PhaseSubmitting)
	o.mu.Unlock()

	m := data.Mutation{
		Method:         http.MethodPost,
		Endpoint:       o.schema.APIEndpoint,
		Body:           Transform(o.schema, values),
		InvalidateKeys: o.schema.QueryKeys(),
	}
	if o.Editing() {
		m.Method = http.MethodPatch
		m.ID = o.id
	}
	if o.schema.TenantScoped {
		m.Tenant = record.Stringify(values["code"])
	}

	out, err := o.deps.Backend.Mutate(ctx, m)
	if err != nil {
		o.mu.Lock()
		o.moveTo(PhaseError)
		o.moveTo(PhaseEditing)
		o.mu.Unlock()
		o.deps.Notifier.Error(ctx, data.UserMessage(err, GenericError))
		return nil, fmt.Errorf("submitting %s: %w", o.schema.Name, err)
	}

	o.mu.Lock()
	o.moveTo(PhaseSuccess)
	o.mu.Unlock()
	o.deps.Notifier.Success(ctx, o.successMessage())

	if o.parent != nil {
		o.parent.relatedCreated(ctx, o.parentField, out)
	}

	o.mu.Lock()
	o.moveTo(PhaseClosed)
	o.mu.Unlock()
	return out, nil
}

func (o *Orchestrator) successMessage() string {
	name := o.schema.DisplayName()
	if o.Editing() {
		return name + " updated successfully"
	}
	return name + " created successfully"
}

// Close dismisses the form. Closing a closed form is a no-op.
func (o *Orchestrator) Close() error {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.phase == PhaseClosed {
		return nil
	}
	if err := validateTransition(o.phase, PhaseClosed); err != nil {
		return fmt.Errorf("%w: %v", ErrBusy, err)
	}
	o.phase = PhaseClosed
	return nil
}

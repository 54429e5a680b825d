// Package ui exposes the form, table and dashboard orchestrators over HTTP
// and pushes toasts and invalidations over a WebSocket.
package ui

import (
	"context"
	"errors"
	"io"
	"net/http"
	"sync"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/matthewbaird/erpui/internal/dashboard"
	"github.com/matthewbaird/erpui/internal/data"
	"github.com/matthewbaird/erpui/internal/field"
	"github.com/matthewbaird/erpui/internal/form"
	"github.com/matthewbaird/erpui/internal/handler"
	"github.com/matthewbaird/erpui/internal/meta"
	"github.com/matthewbaird/erpui/internal/notify"
	"github.com/matthewbaird/erpui/internal/permission"
	"github.com/matthewbaird/erpui/internal/record"
	"github.com/matthewbaird/erpui/internal/table"
	"github.com/matthewbaird/erpui/internal/ui/session"
	"github.com/matthewbaird/erpui/internal/ui/wire"
)

// Error codes specific to the UI routes.
const (
	CodeSessionNotFound = "SESSION_NOT_FOUND"
	CodeFormBusy        = "FORM_BUSY"
	CodeInvalidForm     = "INVALID_FORM"
	CodeMutationFailed  = "MUTATION_FAILED"
	CodeInvalidAction   = "INVALID_ACTION"
)

// RecordGetter fetches the record an edit form opens with.
type RecordGetter interface {
	Get(ctx context.Context, endpoint, id string, opts ...data.RequestOption) (record.Record, error)
}

// Config wires the UI server to the engine.
type Config struct {
	Registry    *meta.Registry
	Cache       *data.Cache
	Records     RecordGetter
	Tables      *table.Store
	Bus         *notify.Bus
	Dashboards  *dashboard.Loader
	Permissions *permission.Matrix
	Sessions    *session.Manager
	// Async renders forms and tables from the cache without waiting on
	// fetches; clients re-read the view when an invalidate push arrives.
	Async bool
	Log   *zap.Logger
}

// Handler serves the UI routes.
type Handler struct {
	cfg      Config
	notifier notify.Notifier
	forms    form.Deps

	mu     sync.Mutex
	tables map[string]tableEntry
}

// tableEntry is an open table together with the schema it was built from.
// A reloaded schema is a new pointer, which rebuilds the orchestrator.
type tableEntry struct {
	name   string
	schema *meta.SchemaMeta
	t      *table.Orchestrator
}

// NewHandler creates the UI handler.
func NewHandler(cfg Config) *Handler {
	n := notify.Notifier(notify.NewToaster(cfg.Bus))
	return &Handler{
		cfg:      cfg,
		notifier: n,
		forms: form.Deps{
			Registry: cfg.Registry,
			Backend:  cfg.Cache,
			Options:  field.NewCacheSource(cfg.Cache, !cfg.Async),
			Notifier: n,
			Log:      cfg.Log.Named("form"),
		},
		tables: make(map[string]tableEntry),
	}
}

// Routes returns the router for everything under /ui.
func (h *Handler) Routes() chi.Router {
	r := chi.NewRouter()

	r.Get("/schemas", h.listSchemas)
	r.Get("/schemas/{name}", h.getSchema)

	r.Post("/forms", h.openForm)
	r.Get("/forms/{id}", h.getForm)
	r.Patch("/forms/{id}", h.setForm)
	r.Post("/forms/{id}/submit", h.submitForm)
	r.Post("/forms/{id}/related/{field}", h.openRelated)
	r.Delete("/forms/{id}", h.closeForm)

	r.Get("/tables/{table}", h.getTable)
	r.Post("/tables/{table}/state", h.dispatchTable)
	r.Delete("/tables/{table}/rows/{id}", h.deleteRow)
	r.Post("/tables/{table}/rows/{id}/{action}", h.invokeRow)

	r.Get("/dashboards/{name}", h.getDashboard)

	r.Get("/permissions", h.listPermissions)
	r.Patch("/permissions/{module}/four-eye", h.setFourEye)

	r.Get("/ws", wire.NewHandler(h.cfg.Bus, h.cfg.Log).ServeHTTP)
	return r
}

// ── Schemas ─────────────────────────────────────────────────────────────────

func (h *Handler) listSchemas(w http.ResponseWriter, r *http.Request) {
	all := h.cfg.Registry.All()
	docs := make([]meta.SchemaDoc, len(all))
	for i, s := range all {
		docs[i] = s.Doc()
	}
	handler.WriteJSON(w, http.StatusOK, docs)
}

func (h *Handler) getSchema(w http.ResponseWriter, r *http.Request) {
	s, ok := h.schema(w, chi.URLParam(r, "name"))
	if !ok {
		return
	}
	handler.WriteJSON(w, http.StatusOK, s.Doc())
}

func (h *Handler) schema(w http.ResponseWriter, name string) (*meta.SchemaMeta, bool) {
	s, err := h.cfg.Registry.Schema(name)
	if err != nil {
		handler.WriteError(w, http.StatusNotFound, handler.CodeNotFound, err.Error())
		return nil, false
	}
	return s, true
}

// ── Forms ───────────────────────────────────────────────────────────────────

type formResponse struct {
	ID     string        `json:"id"`
	Parent string        `json:"parent,omitempty"`
	View   form.View     `json:"view"`
	Record record.Record `json:"record,omitempty"`
}

func (h *Handler) formResponse(ctx context.Context, s *session.Session) formResponse {
	return formResponse{ID: s.ID, Parent: s.Parent, View: s.Form.View(ctx)}
}

type openRequest struct {
	Schema string `json:"schema"`
	ID     string `json:"id,omitempty"`
}

func (h *Handler) openForm(w http.ResponseWriter, r *http.Request) {
	var req openRequest
	if err := handler.DecodeJSON(r, &req); err != nil {
		handler.WriteError(w, http.StatusBadRequest, handler.CodeInvalidJSON, "invalid JSON body")
		return
	}
	s, ok := h.schema(w, req.Schema)
	if !ok {
		return
	}
	ctx := r.Context()

	var f *form.Orchestrator
	if req.ID == "" {
		f = form.NewCreate(s, h.forms)
	} else {
		existing, err := h.cfg.Records.Get(ctx, s.APIEndpoint, req.ID)
		if err != nil {
			writeAPIError(w, err)
			return
		}
		f = form.NewEdit(s, h.forms, existing)
	}
	sess := h.cfg.Sessions.Create(f, "")
	handler.WriteJSON(w, http.StatusCreated, h.formResponse(ctx, sess))
}

func (h *Handler) session(w http.ResponseWriter, r *http.Request) (*session.Session, bool) {
	s, err := h.cfg.Sessions.Get(chi.URLParam(r, "id"))
	if err != nil {
		handler.WriteError(w, http.StatusNotFound, CodeSessionNotFound, err.Error())
		return nil, false
	}
	return s, true
}

func (h *Handler) getForm(w http.ResponseWriter, r *http.Request) {
	s, ok := h.session(w, r)
	if !ok {
		return
	}
	handler.WriteJSON(w, http.StatusOK, h.formResponse(r.Context(), s))
}

// setForm applies raw input values keyed by field key.
func (h *Handler) setForm(w http.ResponseWriter, r *http.Request) {
	s, ok := h.session(w, r)
	if !ok {
		return
	}
	var input map[string]any
	if err := handler.DecodeJSON(r, &input); err != nil {
		handler.WriteError(w, http.StatusBadRequest, handler.CodeInvalidJSON, "invalid JSON body")
		return
	}
	for key, raw := range input {
		if err := s.Form.Set(key, raw); err != nil {
			writeFormError(w, err)
			return
		}
	}
	handler.WriteJSON(w, http.StatusOK, h.formResponse(r.Context(), s))
}

func (h *Handler) submitForm(w http.ResponseWriter, r *http.Request) {
	s, ok := h.session(w, r)
	if !ok {
		return
	}
	ctx := r.Context()
	out, err := s.Form.Submit(ctx)
	switch {
	case errors.Is(err, form.ErrInvalid):
		handler.WriteJSON(w, http.StatusUnprocessableEntity, h.formResponse(ctx, s))
		return
	case err != nil:
		writeFormError(w, err)
		return
	}
	resp := h.formResponse(ctx, s)
	resp.Record = out
	h.cfg.Sessions.Remove(s.ID)
	handler.WriteJSON(w, http.StatusOK, resp)
}

func (h *Handler) openRelated(w http.ResponseWriter, r *http.Request) {
	s, ok := h.session(w, r)
	if !ok {
		return
	}
	child, err := s.Form.OpenRelated(chi.URLParam(r, "field"))
	if err != nil {
		writeFormError(w, err)
		return
	}
	sess := h.cfg.Sessions.Create(child, s.ID)
	handler.WriteJSON(w, http.StatusCreated, h.formResponse(r.Context(), sess))
}

func (h *Handler) closeForm(w http.ResponseWriter, r *http.Request) {
	s, ok := h.session(w, r)
	if !ok {
		return
	}
	if err := s.Form.Close(); err != nil {
		writeFormError(w, err)
		return
	}
	h.cfg.Sessions.Remove(s.ID)
	w.WriteHeader(http.StatusNoContent)
}

func writeFormError(w http.ResponseWriter, err error) {
	var apiErr *data.APIError
	switch {
	case errors.As(err, &apiErr):
		writeAPIError(w, err)
	case errors.Is(err, form.ErrClosed), errors.Is(err, form.ErrBusy):
		handler.WriteError(w, http.StatusConflict, CodeFormBusy, err.Error())
	default:
		handler.WriteError(w, http.StatusBadRequest, handler.CodeBadRequest, err.Error())
	}
}

func writeAPIError(w http.ResponseWriter, err error) {
	var apiErr *data.APIError
	if errors.As(err, &apiErr) {
		status := apiErr.Status
		if status < 400 {
			status = http.StatusBadGateway
		}
		code := apiErr.Code
		if code == "" {
			code = CodeMutationFailed
		}
		handler.WriteError(w, status, code, data.UserMessage(err, form.GenericError))
		return
	}
	handler.WriteError(w, http.StatusBadGateway, CodeMutationFailed, err.Error())
}

// ── Tables ──────────────────────────────────────────────────────────────────

// table returns the orchestrator of table id, creating it for the schema
// named by the schema query parameter or, failing that, by id itself.
func (h *Handler) table(w http.ResponseWriter, r *http.Request) (*table.Orchestrator, bool) {
	id := chi.URLParam(r, "table")
	h.mu.Lock()
	entry, open := h.tables[id]
	h.mu.Unlock()

	name := r.URL.Query().Get("schema")
	switch {
	case name != "":
	case open:
		name = entry.name
	default:
		name = id
	}
	s, ok := h.schema(w, name)
	if !ok {
		return nil, false
	}
	if open && entry.name == name && entry.schema == s {
		return entry.t, true
	}

	t := table.New(table.Config{
		ID:       id,
		Schema:   s,
		Store:    h.cfg.Tables,
		Backend:  h.cfg.Cache,
		Notifier: h.notifier,
		Handlers: h.rowHandlers(s),
		Async:    h.cfg.Async,
	})

	h.mu.Lock()
	defer h.mu.Unlock()
	if existing, ok := h.tables[id]; ok && existing.name == name && existing.schema == s {
		return existing.t, true
	}
	h.tables[id] = tableEntry{name: name, schema: s, t: t}
	return t, true
}

// rowHandlers wires the view and edit row actions: view returns the row,
// edit opens an edit form session on it.
func (h *Handler) rowHandlers(s *meta.SchemaMeta) map[string]table.ActionFunc {
	return map[string]table.ActionFunc{
		table.ActionView: func(_ context.Context, row record.Record) (any, error) {
			return row, nil
		},
		table.ActionEdit: func(ctx context.Context, row record.Record) (any, error) {
			sess := h.cfg.Sessions.Create(form.NewEdit(s, h.forms, row), "")
			return h.formResponse(ctx, sess), nil
		},
	}
}

func (h *Handler) getTable(w http.ResponseWriter, r *http.Request) {
	t, ok := h.table(w, r)
	if !ok {
		return
	}
	handler.WriteJSON(w, http.StatusOK, t.View(r.Context()))
}

func (h *Handler) dispatchTable(w http.ResponseWriter, r *http.Request) {
	t, ok := h.table(w, r)
	if !ok {
		return
	}
	raw, err := io.ReadAll(r.Body)
	if err != nil {
		handler.WriteError(w, http.StatusBadRequest, handler.CodeBadRequest, "reading body")
		return
	}
	action, err := table.DecodeAction(raw)
	if err != nil {
		handler.WriteError(w, http.StatusBadRequest, CodeInvalidAction, err.Error())
		return
	}
	ctx := r.Context()
	if _, err := h.cfg.Tables.Dispatch(ctx, chi.URLParam(r, "table"), action); err != nil {
		handler.WriteError(w, http.StatusBadRequest, CodeInvalidAction, err.Error())
		return
	}
	handler.WriteJSON(w, http.StatusOK, t.View(ctx))
}

func (h *Handler) deleteRow(w http.ResponseWriter, r *http.Request) {
	t, ok := h.table(w, r)
	if !ok {
		return
	}
	q := r.URL.Query()
	err := t.Delete(r.Context(), chi.URLParam(r, "id"), table.DeleteMode(q.Get("mode")), q.Get("relation"))
	var apiErr *data.APIError
	switch {
	case err == nil:
		w.WriteHeader(http.StatusNoContent)
	case errors.Is(err, table.ErrDeleteNotAllowed):
		handler.WriteError(w, http.StatusForbidden, CodeInvalidAction, err.Error())
	case errors.Is(err, table.ErrInvalidAction):
		handler.WriteError(w, http.StatusBadRequest, CodeInvalidAction, err.Error())
	case errors.As(err, &apiErr):
		writeAPIError(w, err)
	default:
		handler.WriteError(w, http.StatusBadGateway, CodeMutationFailed, err.Error())
	}
}

func (h *Handler) invokeRow(w http.ResponseWriter, r *http.Request) {
	t, ok := h.table(w, r)
	if !ok {
		return
	}
	out, err := t.Invoke(r.Context(), chi.URLParam(r, "action"), chi.URLParam(r, "id"))
	switch {
	case errors.Is(err, table.ErrUnknownAction):
		handler.WriteError(w, http.StatusBadRequest, CodeInvalidAction, err.Error())
	case errors.Is(err, table.ErrRowNotFound):
		handler.WriteError(w, http.StatusNotFound, handler.CodeNotFound, err.Error())
	case err != nil:
		handler.WriteError(w, http.StatusInternalServerError, handler.CodeInternal, err.Error())
	default:
		handler.WriteJSON(w, http.StatusOK, out)
	}
}

// ── Dashboards and permissions ──────────────────────────────────────────────

func (h *Handler) getDashboard(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")
	def, err := h.cfg.Dashboards.Definition(name)
	if err != nil {
		handler.WriteError(w, http.StatusNotFound, handler.CodeNotFound, err.Error())
		return
	}
	cards, err := h.cfg.Dashboards.Load(r.Context(), name)
	if err != nil {
		handler.WriteError(w, http.StatusInternalServerError, handler.CodeInternal, err.Error())
		return
	}
	handler.WriteJSON(w, http.StatusOK, map[string]any{
		"name":  def.Name,
		"title": def.Title,
		"cards": cards,
	})
}

func (h *Handler) listPermissions(w http.ResponseWriter, r *http.Request) {
	handler.WriteJSON(w, http.StatusOK, h.cfg.Permissions.Modules())
}

type fourEyeRequest struct {
	Enabled *bool `json:"enabled"`
}

func (h *Handler) setFourEye(w http.ResponseWriter, r *http.Request) {
	var req fourEyeRequest
	if err := handler.DecodeJSON(r, &req); err != nil || req.Enabled == nil {
		handler.WriteError(w, http.StatusBadRequest, handler.CodeInvalidJSON, `body must be {"enabled": bool}`)
		return
	}
	mod, err := h.cfg.Permissions.SetFourEye(chi.URLParam(r, "module"), *req.Enabled)
	if err != nil {
		handler.WriteError(w, http.StatusNotFound, handler.CodeNotFound, err.Error())
		return
	}
	h.notifier.Success(r.Context(), "Permissions updated")
	handler.WriteJSON(w, http.StatusOK, mod)
}

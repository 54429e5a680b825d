package handler

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"path"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/matthewbaird/erpui/internal/activity"
	"github.com/matthewbaird/erpui/internal/field"
	"github.com/matthewbaird/erpui/internal/meta"
	"github.com/matthewbaird/erpui/internal/record"
)

// Config configures the development API.
type Config struct {
	Registry *meta.Registry
	Store    Store
	// Collections are extra endpoints served without a schema, such as
	// expression variable lists or dashboard statistics.
	Collections []string
	// Activity receives an audit entry per mutation. Nil disables the trail
	// and its _activity routes.
	Activity activity.Store
	Log      *zap.Logger
}

// API serves every registered schema endpoint from a Store. Records are
// stamped with audit fields, relations are expanded one level on read, and
// deletes honour the disconnect mode.
type API struct {
	reg         *meta.Registry
	store       Store
	collections map[string]bool
	activity    activity.Store
	indexer     *activity.Indexer
	log         *zap.Logger
	now         func() time.Time
	newID       func() string
}

// NewAPI creates the API.
func NewAPI(cfg Config) *API {
	a := &API{
		reg:         cfg.Registry,
		store:       cfg.Store,
		collections: make(map[string]bool, len(cfg.Collections)),
		activity:    cfg.Activity,
		log:         cfg.Log,
		now:         time.Now,
		newID:       uuid.NewString,
	}
	for _, c := range cfg.Collections {
		a.collections[strings.TrimSuffix(c, "/")] = true
	}
	if cfg.Activity != nil {
		a.indexer = activity.NewIndexer(cfg.Activity, cfg.Log)
	}
	return a
}

// Routes returns the router. Endpoints are matched against the full request
// path, so the router can be mounted anywhere.
func (a *API) Routes() chi.Router {
	r := chi.NewRouter()
	r.Get("/*", a.get)
	r.Post("/*", a.create)
	r.Patch("/*", a.update)
	r.Delete("/*", a.remove)
	return r
}

type target struct {
	endpoint string
	id       string
	// schema is nil for plain collections.
	schema *meta.SchemaMeta
}

func (a *API) collection(p string) (*meta.SchemaMeta, bool) {
	if s, ok := a.reg.ByEndpoint(p); ok {
		return s, true
	}
	return nil, a.collections[p]
}

func (a *API) resolve(w http.ResponseWriter, r *http.Request) (target, bool) {
	p := strings.TrimSuffix(r.URL.Path, "/")
	if s, ok := a.collection(p); ok {
		return target{endpoint: p, schema: s}, true
	}
	dir, id := path.Split(p)
	dir = strings.TrimSuffix(dir, "/")
	if s, ok := a.collection(dir); ok && id != "" {
		return target{endpoint: dir, id: id, schema: s}, true
	}
	WriteError(w, http.StatusNotFound, CodeNotFound, "no collection at "+r.URL.Path)
	return target{}, false
}

func requireID(w http.ResponseWriter, r *http.Request, t target) bool {
	if t.id == "" {
		WriteError(w, http.StatusMethodNotAllowed, CodeBadRequest, r.Method+" needs a record id")
		return false
	}
	return true
}

type listResponse struct {
	Data  []record.Record `json:"data"`
	Total int             `json:"total"`
}

func (a *API) get(w http.ResponseWriter, r *http.Request) {
	if a.activity != nil && path.Base(r.URL.Path) == activitySegment {
		a.history(w, r)
		return
	}
	t, ok := a.resolve(w, r)
	if !ok {
		return
	}
	ctx := r.Context()
	if t.id != "" {
		doc, err := a.store.Get(ctx, t.endpoint, t.id)
		if err != nil {
			a.storeError(w, err)
			return
		}
		rows := []record.Record{doc.Data}
		a.expand(ctx, t.schema, rows)
		WriteJSON(w, http.StatusOK, rows[0])
		return
	}

	docs, err := a.store.List(ctx, t.endpoint)
	if err != nil {
		a.storeError(w, err)
		return
	}
	rows := make([]record.Record, len(docs))
	for i, d := range docs {
		rows[i] = d.Data
	}
	// Relations are expanded before filtering so filters and sorts see
	// related names.
	a.expand(ctx, t.schema, rows)
	page, total := ParseListQuery(r).Apply(rows)
	WriteJSON(w, http.StatusOK, listResponse{Data: page, Total: total})
}

func (a *API) create(w http.ResponseWriter, r *http.Request) {
	t, ok := a.resolve(w, r)
	if !ok {
		return
	}
	if t.id != "" {
		WriteError(w, http.StatusMethodNotAllowed, CodeBadRequest, "POST goes to the collection")
		return
	}
	audit, ok := parseAuditContext(w, r)
	if !ok {
		return
	}
	if t.schema != nil && t.schema.TenantScoped && audit.Tenant == "" {
		WriteError(w, http.StatusBadRequest, CodeMissingTenant, "x-tenant-code header is required")
		return
	}
	var body record.Record
	if err := DecodeJSON(r, &body); err != nil {
		WriteError(w, http.StatusBadRequest, CodeInvalidJSON, "invalid JSON body")
		return
	}
	if body == nil {
		body = record.Record{}
	}

	id := body.ID()
	if id == "" {
		id = a.newID()
	}
	for _, k := range meta.AuditFields {
		delete(body, k)
	}
	stamp := a.now().UTC().Format(time.RFC3339)
	body[meta.FieldID] = id
	body[meta.FieldCreatedAt] = stamp
	body[meta.FieldUpdatedAt] = stamp
	body[meta.FieldCreatedBy] = audit.Actor
	body[meta.FieldUpdatedBy] = audit.Actor

	ctx := r.Context()
	if !a.validate(ctx, w, t.schema, body) {
		return
	}
	doc := Document{Endpoint: t.endpoint, ID: id, Tenant: audit.Tenant, Data: body}
	if err := a.store.Insert(ctx, doc); err != nil {
		a.storeError(w, err)
		return
	}
	a.log.Debug("record created", zap.String("endpoint", t.endpoint), zap.String("id", id), zap.String("actor", audit.Actor))
	a.audit(ctx, t, audit, activity.KindCreated, nil, body, "")

	out := []record.Record{body.Clone()}
	a.expand(ctx, t.schema, out)
	WriteJSON(w, http.StatusCreated, out[0])
}

func (a *API) update(w http.ResponseWriter, r *http.Request) {
	t, ok := a.resolve(w, r)
	if !ok || !requireID(w, r, t) {
		return
	}
	audit, ok := parseAuditContext(w, r)
	if !ok {
		return
	}
	var patch record.Record
	if err := DecodeJSON(r, &patch); err != nil {
		WriteError(w, http.StatusBadRequest, CodeInvalidJSON, "invalid JSON body")
		return
	}

	ctx := r.Context()
	doc, err := a.store.Get(ctx, t.endpoint, t.id)
	if err != nil {
		a.storeError(w, err)
		return
	}
	if !tenantAllowed(w, t.schema, doc, audit) {
		return
	}
	before := doc.Data.Clone()
	for k, v := range patch {
		if meta.IsAuditField(k) {
			continue
		}
		if v == nil {
			delete(doc.Data, k)
			continue
		}
		doc.Data[k] = v
	}
	a.touch(doc.Data, audit)

	if !a.validate(ctx, w, t.schema, doc.Data) {
		return
	}
	if err := a.store.Update(ctx, doc); err != nil {
		a.storeError(w, err)
		return
	}
	a.audit(ctx, t, audit, activity.KindUpdated, before, doc.Data, "")
	out := []record.Record{doc.Data.Clone()}
	a.expand(ctx, t.schema, out)
	WriteJSON(w, http.StatusOK, out[0])
}

// Delete modes.
const (
	modeDelete     = "delete"
	modeDisconnect = "disconnect"
)

func (a *API) remove(w http.ResponseWriter, r *http.Request) {
	t, ok := a.resolve(w, r)
	if !ok || !requireID(w, r, t) {
		return
	}
	audit, ok := parseAuditContext(w, r)
	if !ok {
		return
	}
	ctx := r.Context()
	doc, err := a.store.Get(ctx, t.endpoint, t.id)
	if err != nil {
		a.storeError(w, err)
		return
	}
	if !tenantAllowed(w, t.schema, doc, audit) {
		return
	}

	switch mode := r.URL.Query().Get("mode"); mode {
	case "", modeDelete:
		if msg, err := a.referenced(ctx, t); err != nil {
			a.storeError(w, err)
			return
		} else if msg != "" {
			WriteError(w, http.StatusConflict, CodeConstraint, msg)
			return
		}
		if err := a.store.Delete(ctx, t.endpoint, t.id); err != nil {
			a.storeError(w, err)
			return
		}
		a.log.Debug("record deleted", zap.String("endpoint", t.endpoint), zap.String("id", t.id), zap.String("actor", audit.Actor))
		a.audit(ctx, t, audit, activity.KindDeleted, doc.Data, nil, "")
		w.WriteHeader(http.StatusNoContent)

	case modeDisconnect:
		relation := r.URL.Query().Get("relation")
		if !isRelation(t.schema, relation) {
			WriteError(w, http.StatusBadRequest, CodeBadRequest, fmt.Sprintf("%q is not a relation of %s", relation, t.endpoint))
			return
		}
		before := doc.Data.Clone()
		doc.Data.Delete(relation)
		a.touch(doc.Data, audit)
		if err := a.store.Update(ctx, doc); err != nil {
			a.storeError(w, err)
			return
		}
		a.audit(ctx, t, audit, activity.KindDisconnected, before, doc.Data, relation)
		WriteJSON(w, http.StatusOK, doc.Data)

	default:
		WriteError(w, http.StatusBadRequest, CodeBadRequest, fmt.Sprintf("unknown delete mode %q", mode))
	}
}

func (a *API) touch(rec record.Record, audit AuditInfo) {
	rec[meta.FieldUpdatedAt] = a.now().UTC().Format(time.RFC3339)
	rec[meta.FieldUpdatedBy] = audit.Actor
}

func tenantAllowed(w http.ResponseWriter, s *meta.SchemaMeta, doc Document, audit AuditInfo) bool {
	if s == nil || !s.TenantScoped {
		return true
	}
	if audit.Tenant == "" {
		WriteError(w, http.StatusBadRequest, CodeMissingTenant, "x-tenant-code header is required")
		return false
	}
	if doc.Tenant != "" && doc.Tenant != audit.Tenant {
		WriteError(w, http.StatusForbidden, CodeTenantMismatch, "record belongs to another tenant")
		return false
	}
	return true
}

func isRelation(s *meta.SchemaMeta, key string) bool {
	if s == nil || key == "" {
		return false
	}
	f, ok := s.Field(key)
	if !ok {
		return false
	}
	_, ok = f.Relation()
	return ok
}

// validate checks rec against the form metadata of s and writes a 422 with
// the first problem. Related records must exist.
func (a *API) validate(ctx context.Context, w http.ResponseWriter, s *meta.SchemaMeta, rec record.Record) bool {
	if s == nil {
		return true
	}
	for _, f := range s.FormFields() {
		if !field.Visible(f, rec) {
			continue
		}
		v, _ := rec.Get(f.Key)
		var variables []string
		if in, ok := f.Form.Input.(meta.ExpressionInput); ok && !record.IsEmpty(v) {
			docs, err := a.store.List(ctx, in.VariablesEndpoint)
			if err != nil {
				a.storeError(w, err)
				return false
			}
			variables = field.VariableNames(dataOf(docs))
		}
		if msg := field.Validate(f, rec, variables); msg != "" {
			WriteError(w, http.StatusUnprocessableEntity, CodeValidation, msg)
			return false
		}

		in, ok := f.Relation()
		if !ok || in.Endpoint == "" {
			continue
		}
		for _, id := range refIDs(v) {
			_, err := a.store.Get(ctx, in.Endpoint, id)
			if errors.Is(err, ErrNotFound) {
				WriteError(w, http.StatusUnprocessableEntity, CodeValidation, fmt.Sprintf("%s %s does not exist", f.Label(), id))
				return false
			}
			if err != nil {
				a.storeError(w, err)
				return false
			}
		}
	}
	return true
}

// referenced describes the records still pointing at t, or returns "" when
// there are none.
func (a *API) referenced(ctx context.Context, t target) (string, error) {
	for _, s := range a.reg.All() {
		for _, f := range s.Fields {
			in, ok := f.Relation()
			if !ok || in.Endpoint != t.endpoint {
				continue
			}
			docs, err := a.store.List(ctx, s.APIEndpoint)
			if err != nil {
				return "", err
			}
			n := 0
			for _, d := range docs {
				v, _ := d.Data.Get(f.Key)
				for _, id := range refIDs(v) {
					if id == t.id {
						n++
						break
					}
				}
			}
			if n > 0 {
				name := t.endpoint
				if t.schema != nil {
					name = t.schema.DisplayName()
				}
				return fmt.Sprintf("%s %s is still referenced by %d %s", name, t.id, n, strings.ToLower(s.TableName)), nil
			}
		}
	}
	return "", nil
}

// refIDs lists the ids held by a relation value: a {id} object, a bare id,
// or a list of either.
func refIDs(v any) []string {
	switch t := v.(type) {
	case nil:
		return nil
	case []any:
		var out []string
		for _, x := range t {
			out = append(out, refIDs(x)...)
		}
		return out
	}
	if rel, ok := record.AsRecord(v); ok {
		if id := rel.ID(); id != "" {
			return []string{id}
		}
		return nil
	}
	if id := record.Stringify(v); id != "" {
		return []string{id}
	}
	return nil
}

// expand replaces relation references in rows with the related records,
// one level deep. References that do not resolve are left as they are.
func (a *API) expand(ctx context.Context, s *meta.SchemaMeta, rows []record.Record) {
	if s == nil {
		return
	}
	seen := map[string]record.Record{}
	lookup := func(endpoint string, ref record.Record) any {
		id := ref.ID()
		if id == "" {
			return ref
		}
		k := endpoint + "/" + id
		rel, ok := seen[k]
		if !ok {
			doc, err := a.store.Get(ctx, endpoint, id)
			if err != nil {
				if !errors.Is(err, ErrNotFound) {
					a.log.Warn("expanding relation", zap.String("ref", k), zap.Error(err))
				}
				return ref
			}
			rel = doc.Data
			seen[k] = rel
		}
		return rel.Clone()
	}

	for _, f := range s.Fields {
		in, ok := f.Relation()
		if !ok || in.Endpoint == "" {
			continue
		}
		for _, row := range rows {
			v, ok := row.Get(f.Key)
			if !ok {
				continue
			}
			switch t := v.(type) {
			case []any:
				out := make([]any, len(t))
				for i, x := range t {
					out[i] = x
					if ref, ok := record.AsRecord(x); ok {
						out[i] = lookup(in.Endpoint, ref)
					}
				}
				row.Set(f.Key, out)
			default:
				if ref, ok := record.AsRecord(v); ok {
					row.Set(f.Key, lookup(in.Endpoint, ref))
				}
			}
		}
	}
}

func dataOf(docs []Document) []record.Record {
	out := make([]record.Record, len(docs))
	for i, d := range docs {
		out[i] = d.Data
	}
	return out
}

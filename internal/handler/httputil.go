package handler

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"go.uber.org/zap"
)

// Error codes returned in the "code" member of error responses.
const (
	CodeNotFound       = "NOT_FOUND"
	CodeInvalidJSON    = "INVALID_JSON"
	CodeValidation     = "VALIDATION_ERROR"
	CodeConflict       = "CONFLICT"
	CodeConstraint     = "CONSTRAINT_ERROR"
	CodeMissingActor   = "MISSING_ACTOR"
	CodeMissingTenant  = "MISSING_TENANT"
	CodeTenantMismatch = "TENANT_MISMATCH"
	CodeBadRequest     = "BAD_REQUEST"
	CodeInternal       = "INTERNAL_ERROR"
)

// AuditInfo holds audit metadata extracted from request headers.
type AuditInfo struct {
	Actor  string
	Tenant string
}

// WriteJSON marshals v as JSON and writes it with the given status code.
// Encoding failures go to the global logger, which cmd/server installs.
func WriteJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		zap.L().Warn("encoding response", zap.Error(err))
	}
}

// WriteError writes a structured JSON error response.
func WriteError(w http.ResponseWriter, status int, code, message string) {
	WriteJSON(w, status, map[string]string{
		"error": message,
		"code":  code,
	})
}

// DecodeJSON decodes the request body into v.
func DecodeJSON(r *http.Request, v any) error {
	defer r.Body.Close()
	return json.NewDecoder(r.Body).Decode(v)
}

// Pagination holds parsed pagination parameters. Limit 0 means the whole
// collection.
type Pagination struct {
	Limit  int
	Offset int
}

// MaxPageSize caps page_size.
const MaxPageSize = 100

// ParsePagination extracts page_size and offset from query params. Without
// page_size every row is returned, which is what client-driven tables ask
// for.
func ParsePagination(r *http.Request) Pagination {
	var p Pagination
	if v := r.URL.Query().Get("page_size"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			p.Limit = min(n, MaxPageSize)
		}
	}
	if v := r.URL.Query().Get("offset"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n >= 0 {
			p.Offset = n
		}
	}
	return p
}

// storeError maps store errors to HTTP responses. Unexpected failures are
// logged and reported as a generic 500.
func (a *API) storeError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, ErrNotFound):
		WriteError(w, http.StatusNotFound, CodeNotFound, err.Error())
	case errors.Is(err, ErrConflict):
		WriteError(w, http.StatusConflict, CodeConflict, err.Error())
	default:
		a.log.Error("store failure", zap.Error(err))
		WriteError(w, http.StatusInternalServerError, CodeInternal, "internal server error")
	}
}

// parseAuditContext extracts audit metadata from request headers. The actor
// is required on every mutation.
func parseAuditContext(w http.ResponseWriter, r *http.Request) (AuditInfo, bool) {
	actor := r.Header.Get("X-Actor")
	if actor == "" {
		WriteError(w, http.StatusBadRequest, CodeMissingActor, "X-Actor header is required")
		return AuditInfo{}, false
	}
	return AuditInfo{
		Actor:  actor,
		Tenant: r.Header.Get("x-tenant-code"),
	}, true
}

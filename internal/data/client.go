// Package data is the data access layer shared by forms, tables and
// dashboards: a REST client for the per-entity endpoints and a query cache
// that de-duplicates in-flight requests and refetches invalidated keys.
package data

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sort"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/matthewbaird/erpui/internal/record"
)

// TenantHeader carries the tenant code on tenant-scoped mutations.
const TenantHeader = "x-tenant-code"

// ActorHeader names the user on whose behalf the request is made. The API
// stamps it into createdBy/updatedBy.
const ActorHeader = "X-Actor"

// APIError is a non-2xx response from the REST API.
type APIError struct {
	Status  int
	Code    string
	Message string
}

func (e *APIError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("api %d %s: %s", e.Status, e.Code, e.Message)
	}
	return fmt.Sprintf("api %d: %s", e.Status, e.Message)
}

// UserMessage returns the server-provided message of an APIError, or
// fallback for any other error.
func UserMessage(err error, fallback string) string {
	var apiErr *APIError
	if errors.As(err, &apiErr) && apiErr.Message != "" {
		return apiErr.Message
	}
	return fallback
}

// Params are the list query parameters understood by server-driven tables.
type Params struct {
	Offset   int
	PageSize int
	// Sort entries are field keys, prefixed with "-" for descending.
	Sort   []string
	Filter map[string]string
	Q      string
}

// Values encodes the params as a query string.
func (p Params) Values() url.Values {
	v := url.Values{}
	if p.Offset > 0 {
		v.Set("offset", strconv.Itoa(p.Offset))
	}
	if p.PageSize > 0 {
		v.Set("page_size", strconv.Itoa(p.PageSize))
	}
	for _, s := range p.Sort {
		v.Add("sort", s)
	}
	keys := make([]string, 0, len(p.Filter))
	for k := range p.Filter {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		v.Add("filter", k+":"+p.Filter[k])
	}
	if p.Q != "" {
		v.Set("q", p.Q)
	}
	return v
}

// IsZero reports whether no parameter is set.
func (p Params) IsZero() bool {
	return p.Offset == 0 && p.PageSize == 0 && len(p.Sort) == 0 && len(p.Filter) == 0 && p.Q == ""
}

// ListResult is one page of rows plus the total row count.
type ListResult struct {
	Rows  []record.Record `json:"data"`
	Total int             `json:"total"`
}

// RequestOption customises a single request.
type RequestOption func(*http.Request)

// WithTenant sets the tenant header. An empty code is ignored.
func WithTenant(code string) RequestOption {
	return func(r *http.Request) {
		if code != "" {
			r.Header.Set(TenantHeader, code)
		}
	}
}

// WithActor overrides the client's default actor.
func WithActor(actor string) RequestOption {
	return func(r *http.Request) {
		if actor != "" {
			r.Header.Set(ActorHeader, actor)
		}
	}
}

// ClientConfig configures a Client.
type ClientConfig struct {
	BaseURL string
	// Timeout of zero means requests wait on the transport's own defaults.
	Timeout time.Duration
	Actor   string
}

// Client talks to the REST API. It is safe for concurrent use.
type Client struct {
	base  *url.URL
	http  *http.Client
	actor string
	log   *zap.Logger
}

// NewClient creates a Client for the API at cfg.BaseURL.
func NewClient(cfg ClientConfig, log *zap.Logger) (*Client, error) {
	base, err := url.Parse(strings.TrimSuffix(cfg.BaseURL, "/"))
	if err != nil {
		return nil, fmt.Errorf("parsing api base url: %w", err)
	}
	if base.Scheme == "" || base.Host == "" {
		return nil, fmt.Errorf("api base url %q must be absolute", cfg.BaseURL)
	}
	actor := cfg.Actor
	if actor == "" {
		actor = "system"
	}
	return &Client{
		base:  base,
		http:  &http.Client{Timeout: cfg.Timeout},
		actor: actor,
		log:   log,
	}, nil
}

// List fetches a page of an endpoint.
func (c *Client) List(ctx context.Context, endpoint string, p Params, opts ...RequestOption) (ListResult, error) {
	var raw json.RawMessage
	if err := c.do(ctx, http.MethodGet, endpoint, p.Values(), nil, &raw, opts); err != nil {
		return ListResult{}, err
	}
	return decodeList(raw)
}

// decodeList accepts either {"data": [...], "total": n} or a bare array.
func decodeList(raw json.RawMessage) (ListResult, error) {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) > 0 && trimmed[0] == '[' {
		var rows []record.Record
		if err := json.Unmarshal(trimmed, &rows); err != nil {
			return ListResult{}, fmt.Errorf("decoding list: %w", err)
		}
		return ListResult{Rows: rows, Total: len(rows)}, nil
	}
	var res ListResult
	if err := json.Unmarshal(trimmed, &res); err != nil {
		return ListResult{}, fmt.Errorf("decoding list: %w", err)
	}
	if res.Total == 0 {
		res.Total = len(res.Rows)
	}
	return res, nil
}

// Get fetches a single record.
func (c *Client) Get(ctx context.Context, endpoint, id string, opts ...RequestOption) (record.Record, error) {
	var out record.Record
	err := c.do(ctx, http.MethodGet, joinID(endpoint, id), nil, nil, &out, opts)
	return out, err
}

// Send performs a mutation. id is empty for POST. The decoded response body
// is returned when there is one.
func (c *Client) Send(ctx context.Context, method, endpoint, id string, query url.Values, body record.Record, opts ...RequestOption) (record.Record, error) {
	var out record.Record
	var in any
	if body != nil {
		in = body
	}
	err := c.do(ctx, method, joinID(endpoint, id), query, in, &out, opts)
	return out, err
}

// Create POSTs a new record.
func (c *Client) Create(ctx context.Context, endpoint string, body record.Record, opts ...RequestOption) (record.Record, error) {
	return c.Send(ctx, http.MethodPost, endpoint, "", nil, body, opts...)
}

// Update PATCHes an existing record.
func (c *Client) Update(ctx context.Context, endpoint, id string, body record.Record, opts ...RequestOption) (record.Record, error) {
	return c.Send(ctx, http.MethodPatch, endpoint, id, nil, body, opts...)
}

// Delete DELETEs a record. query carries the delete mode.
func (c *Client) Delete(ctx context.Context, endpoint, id string, query url.Values, opts ...RequestOption) error {
	_, err := c.Send(ctx, http.MethodDelete, endpoint, id, query, nil, opts...)
	return err
}

func joinID(endpoint, id string) string {
	if id == "" {
		return endpoint
	}
	return strings.TrimSuffix(endpoint, "/") + "/" + id
}

func (c *Client) do(ctx context.Context, method, path string, query url.Values, body any, out any, opts []RequestOption) error {
	u := *c.base
	u.Path = c.base.Path + path
	if len(query) > 0 {
		u.RawQuery = query.Encode()
	}

	var rd io.Reader
	if body != nil {
		buf, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encoding request body: %w", err)
		}
		rd = bytes.NewReader(buf)
	}
	req, err := http.NewRequestWithContext(ctx, method, u.String(), rd)
	if err != nil {
		return fmt.Errorf("building request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set(ActorHeader, c.actor)
	for _, o := range opts {
		o(req)
	}

	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()
	c.log.Debug("api request",
		zap.String("method", method),
		zap.String("path", path),
		zap.Int("status", resp.StatusCode),
		zap.Duration("elapsed", time.Since(start)))

	payload, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("reading response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return decodeAPIError(resp.StatusCode, payload)
	}
	if out == nil || len(bytes.TrimSpace(payload)) == 0 {
		return nil
	}
	if err := json.Unmarshal(payload, out); err != nil {
		return fmt.Errorf("decoding response: %w", err)
	}
	return nil
}

func decodeAPIError(status int, payload []byte) error {
	var body struct {
		Error   string `json:"error"`
		Message string `json:"message"`
		Code    string `json:"code"`
	}
	apiErr := &APIError{Status: status}
	if json.Unmarshal(payload, &body) == nil {
		apiErr.Code = body.Code
		apiErr.Message = body.Error
		if apiErr.Message == "" {
			apiErr.Message = body.Message
		}
	}
	if apiErr.Message == "" {
		apiErr.Message = http.StatusText(status)
	}
	return apiErr
}

// Package table projects entity rows through table metadata into columns,
// rows, groups and aggregates, driven by a keyed TableState store.
package table

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"slices"
	"strings"
	"sync"

	"github.com/matthewbaird/erpui/internal/data"
	"github.com/matthewbaird/erpui/internal/meta"
	"github.com/matthewbaird/erpui/internal/notify"
	"github.com/matthewbaird/erpui/internal/record"
)

// Messages shown by the table.
const (
	LoadFailedBanner = "Failed to load data"
	DeleteFailed     = "Failed to delete. Please try again."
	DefaultGroup     = "(empty)"
)

var (
	ErrRowNotFound      = errors.New("row not found")
	ErrUnknownAction    = errors.New("unknown row action")
	ErrDeleteNotAllowed = errors.New("delete is not allowed")
)

// Backend loads rows and performs deletes.
type Backend interface {
	Query(ctx context.Context, opts data.QueryOptions) data.Result
	Peek(opts data.QueryOptions) data.Result
	Prefetch(opts data.QueryOptions)
	Mutate(ctx context.Context, m data.Mutation) (record.Record, error)
}

// ActionFunc handles a row action such as view, edit or chat. Its result is
// returned to the caller of Invoke.
type ActionFunc func(ctx context.Context, row record.Record) (any, error)

// Row action names.
const (
	ActionView   = "view"
	ActionEdit   = "edit"
	ActionDelete = "delete"
	ActionChat   = "chat"
)

// DeleteMode chooses between removing a record and unlinking it from its
// parent relation.
type DeleteMode string

const (
	ModeDelete     DeleteMode = "delete"
	ModeDisconnect DeleteMode = "disconnect"
)

// EmptyState distinguishes a table still loading from one with no rows.
type EmptyState string

const (
	EmptyLoading EmptyState = "loading"
	EmptyNoData  EmptyState = "no-data"
)

// Config configures an Orchestrator.
type Config struct {
	// ID keys the table's state in the store.
	ID       string
	Schema   *meta.SchemaMeta
	Store    *Store
	Backend  Backend
	Notifier notify.Notifier
	Handlers map[string]ActionFunc
	// Async renders from the cache without waiting, reporting the empty
	// state as loading while the first fetch runs.
	Async bool
}

// Row is one rendered row.
type Row struct {
	ID       string         `json:"id"`
	Cells    map[string]any `json:"cells"`
	Selected bool           `json:"selected,omitempty"`
}

// Group is a bucket of rows sharing a grouping value.
type Group struct {
	Column     string               `json:"column"`
	Label      string               `json:"label"`
	Highlight  string               `json:"highlight,omitempty"`
	Rows       []Row                `json:"rows"`
	Aggregates map[string]Aggregate `json:"aggregates,omitempty"`
}

// View is the rendered table.
type View struct {
	ID         string               `json:"id"`
	Schema     string               `json:"schema"`
	Title      string               `json:"title"`
	ServerSide bool                 `json:"serverSide"`
	State      State                `json:"state"`
	Columns    []Column             `json:"columns"`
	Rows       []Row                `json:"rows,omitempty"`
	Groups     []Group              `json:"groups,omitempty"`
	Totals     map[string]Aggregate `json:"totals,omitempty"`
	RowCount   int                  `json:"rowCount"`
	PageCount  int                  `json:"pageCount"`
	Banner     string               `json:"banner,omitempty"`
	Empty      EmptyState           `json:"empty,omitempty"`
	Fetching   bool                 `json:"fetching,omitempty"`
	CanCreate  bool                 `json:"canCreate"`
}

// Orchestrator renders one table and runs its row actions.
type Orchestrator struct {
	cfg Config

	mu       sync.Mutex
	local    []record.Record
	hasLocal bool
	lastRows []record.Record
}

// New creates an Orchestrator.
func New(cfg Config) *Orchestrator {
	if cfg.Notifier == nil {
		cfg.Notifier = notify.Multi(nil)
	}
	if cfg.ID == "" {
		cfg.ID = cfg.Schema.Name
	}
	return &Orchestrator{cfg: cfg}
}

// SetRows makes the table render a local row set instead of querying the
// endpoint, for example the rows of a parent record. Hard deletes remove
// rows from this set.
func (o *Orchestrator) SetRows(rows []record.Record) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.local = cloneRows(rows)
	o.hasLocal = true
}

// Rows returns the current local row set.
func (o *Orchestrator) Rows() []record.Record {
	o.mu.Lock()
	defer o.mu.Unlock()
	return cloneRows(o.local)
}

func cloneRows(rows []record.Record) []record.Record {
	out := make([]record.Record, len(rows))
	for i, r := range rows {
		out[i] = r.Clone()
	}
	return out
}

// Actions lists the row actions available on this table.
func (o *Orchestrator) Actions() []string {
	s := o.cfg.Schema
	var out []string
	if o.cfg.Handlers[ActionView] != nil {
		out = append(out, ActionView)
	}
	if s.AllowEdit && o.cfg.Handlers[ActionEdit] != nil {
		out = append(out, ActionEdit)
	}
	if s.AllowDelete {
		out = append(out, ActionDelete)
	}
	if o.cfg.Handlers[ActionChat] != nil {
		out = append(out, ActionChat)
	}
	return out
}

// Params translates table state into list query parameters.
func Params(st State) data.Params {
	p := data.Params{
		Offset:   st.PageIndex * st.PageSize,
		PageSize: st.PageSize,
		Q:        st.GlobalFilter,
	}
	for _, s := range st.Sorting {
		if s.Desc {
			p.Sort = append(p.Sort, "-"+s.ID)
		} else {
			p.Sort = append(p.Sort, s.ID)
		}
	}
	if len(st.ColumnFilters) > 0 {
		p.Filter = make(map[string]string, len(st.ColumnFilters))
		for k, v := range st.ColumnFilters {
			p.Filter[k] = v
		}
	}
	return p
}

func (o *Orchestrator) query(ctx context.Context, opts data.QueryOptions) data.Result {
	if !o.cfg.Async {
		return o.cfg.Backend.Query(ctx, opts)
	}
	res := o.cfg.Backend.Peek(opts)
	if !res.HasData && !res.IsFetching && res.Err == nil {
		o.cfg.Backend.Prefetch(opts)
		res.IsLoading = true
		res.IsFetching = true
	}
	return res
}

// View renders the table for its current state.
func (o *Orchestrator) View(ctx context.Context) View {
	s := o.cfg.Schema
	st := o.cfg.Store.Get(ctx, o.cfg.ID)
	v := View{
		ID:         o.cfg.ID,
		Schema:     s.Name,
		Title:      s.TableName,
		ServerSide: s.ServerSide,
		State:      st,
		CanCreate:  s.AllowCreateNew,
	}

	var rows []record.Record
	var res data.Result
	o.mu.Lock()
	local, hasLocal := cloneRows(o.local), o.hasLocal
	o.mu.Unlock()
	switch {
	case hasLocal:
		rows = local
		res.HasData = true
	case s.ServerSide:
		res = o.query(ctx, data.QueryOptions{Endpoint: s.APIEndpoint, Params: Params(st)})
		rows = res.Data.Rows
	default:
		res = o.query(ctx, data.QueryOptions{Endpoint: s.APIEndpoint})
		rows = res.Data.Rows
	}
	if res.Err != nil {
		v.Banner = LoadFailedBanner
	}
	v.Fetching = res.IsFetching

	o.mu.Lock()
	o.lastRows = rows
	o.mu.Unlock()

	v.Columns = BuildColumns(s, rows, o.Actions())
	cols := dataColumns(v.Columns)

	page := rows
	v.RowCount = res.Data.Total
	if hasLocal || !s.ServerSide {
		filtered := filterRows(cols, rows, st)
		sortRows(cols, filtered, st.Sorting)
		v.RowCount = len(filtered)
		page = paginate(filtered, st)
	}
	if st.PageSize > 0 {
		v.PageCount = (v.RowCount + st.PageSize - 1) / st.PageSize
	}

	if len(page) == 0 {
		if res.IsLoading {
			v.Empty = EmptyLoading
		} else {
			v.Empty = EmptyNoData
		}
	}

	if gc, ok := groupColumn(cols, st); ok && len(page) > 0 {
		v.Groups = groupRows(gc, cols, page, st)
	} else {
		v.Rows = renderRows(cols, page, st)
	}
	v.Totals = aggregates(cols, page)
	return v
}

func filterRows(cols []Column, rows []record.Record, st State) []record.Record {
	global := strings.ToLower(strings.TrimSpace(st.GlobalFilter))
	out := make([]record.Record, 0, len(rows))
	for _, r := range rows {
		if global != "" && !matchesAny(cols, r, global) {
			continue
		}
		if !matchesColumns(cols, r, st.ColumnFilters) {
			continue
		}
		out = append(out, r)
	}
	return out
}

func matchesAny(cols []Column, r record.Record, needle string) bool {
	for _, c := range cols {
		if strings.Contains(strings.ToLower(c.text(r)), needle) {
			return true
		}
	}
	return false
}

func matchesColumns(cols []Column, r record.Record, filters map[string]string) bool {
	for id, want := range filters {
		idx := slices.IndexFunc(cols, func(c Column) bool { return c.ID == id })
		if idx < 0 {
			// A filter on a column that is not shown cannot match anything.
			return false
		}
		if !strings.Contains(strings.ToLower(cols[idx].text(r)), strings.ToLower(want)) {
			return false
		}
	}
	return true
}

func sortRows(cols []Column, rows []record.Record, sorting []Sort) {
	if len(sorting) == 0 {
		return
	}
	slices.SortStableFunc(rows, func(a, b record.Record) int {
		for _, s := range sorting {
			idx := slices.IndexFunc(cols, func(c Column) bool { return c.ID == s.ID })
			if idx < 0 {
				continue
			}
			va, vb := cols[idx].raw(a), cols[idx].raw(b)
			// Empty values sort last in either direction.
			switch {
			case va == nil && vb == nil:
				continue
			case va == nil:
				return 1
			case vb == nil:
				return -1
			}
			c := compareValues(va, vb)
			if s.Desc {
				c = -c
			}
			if c != 0 {
				return c
			}
		}
		return 0
	})
}

func compareValues(a, b any) int {
	if fa, ok := record.ToFloat(a); ok {
		if fb, ok := record.ToFloat(b); ok {
			return cmp.Compare(fa, fb)
		}
	}
	return strings.Compare(
		strings.ToLower(record.Stringify(FormatCell("", a))),
		strings.ToLower(record.Stringify(FormatCell("", b))),
	)
}

func paginate(rows []record.Record, st State) []record.Record {
	if st.PageSize <= 0 {
		return rows
	}
	start := st.PageIndex * st.PageSize
	if start >= len(rows) {
		return nil
	}
	end := min(start+st.PageSize, len(rows))
	return rows[start:end]
}

func renderRows(cols []Column, rows []record.Record, st State) []Row {
	out := make([]Row, 0, len(rows))
	for _, r := range rows {
		cells := make(map[string]any, len(cols))
		for _, c := range cols {
			cells[c.ID] = c.display(r)
		}
		id := r.ID()
		out = append(out, Row{ID: id, Cells: cells, Selected: id != "" && st.IsSelected(id)})
	}
	return out
}

// groupColumn picks the grouping column: a forced GroupBy column first,
// then the first state-selected grouping that names a shown column.
func groupColumn(cols []Column, st State) (Column, bool) {
	for _, c := range cols {
		if c.GroupBy {
			return c, true
		}
	}
	for _, id := range st.Grouping {
		for _, c := range cols {
			if c.ID == id {
				return c, true
			}
		}
	}
	return Column{}, false
}

// groupRows buckets rows by the grouping column's value, in order of first
// appearance. Rows without a value go to a trailing bucket labelled with the
// field's default label and styled with its highlight.
func groupRows(gc Column, cols []Column, rows []record.Record, st State) []Group {
	var order []string
	buckets := map[string][]record.Record{}
	var missing []record.Record
	for _, r := range rows {
		label := gc.text(r)
		if label == "" {
			missing = append(missing, r)
			continue
		}
		if _, ok := buckets[label]; !ok {
			order = append(order, label)
		}
		buckets[label] = append(buckets[label], r)
	}

	groups := make([]Group, 0, len(order)+1)
	for _, label := range order {
		groups = append(groups, Group{
			Column:     gc.ID,
			Label:      label,
			Rows:       renderRows(cols, buckets[label], st),
			Aggregates: aggregates(cols, buckets[label]),
		})
	}
	if len(missing) > 0 {
		t := gc.field.Table
		label := DefaultGroup
		if t != nil && t.GroupDefaultLabel != "" {
			label = t.GroupDefaultLabel
		}
		g := Group{
			Column:     gc.ID,
			Label:      label,
			Rows:       renderRows(cols, missing, st),
			Aggregates: aggregates(cols, missing),
		}
		if t != nil {
			g.Highlight = t.GroupHighlight
		}
		groups = append(groups, g)
	}
	return groups
}

func (o *Orchestrator) findRow(id string) (record.Record, bool) {
	o.mu.Lock()
	defer o.mu.Unlock()
	rows := o.lastRows
	if o.hasLocal {
		rows = o.local
	}
	for _, r := range rows {
		if r.ID() == id {
			return r.Clone(), true
		}
	}
	return nil, false
}

// Invoke runs the injected handler of a row action on the row with id. The
// row must have been part of the last rendered view.
func (o *Orchestrator) Invoke(ctx context.Context, action, id string) (any, error) {
	if !slices.Contains(o.Actions(), action) || action == ActionDelete {
		return nil, fmt.Errorf("%w: %s", ErrUnknownAction, action)
	}
	row, ok := o.findRow(id)
	if !ok {
		return nil, fmt.Errorf("%s %s: %w", o.cfg.Schema.Name, id, ErrRowNotFound)
	}
	return o.cfg.Handlers[action](ctx, row)
}

// Delete removes or disconnects the row with id. Disconnect unlinks the
// record from relation and keeps it; delete removes it and, on success,
// drops it from the local row set. On failure rows are left unchanged and
// an error toast is shown.
func (o *Orchestrator) Delete(ctx context.Context, id string, mode DeleteMode, relation string) error {
	s := o.cfg.Schema
	if !s.AllowDelete {
		return fmt.Errorf("%s: %w", s.Name, ErrDeleteNotAllowed)
	}
	m := data.Mutation{
		Method:         http.MethodDelete,
		Endpoint:       s.APIEndpoint,
		ID:             id,
		InvalidateKeys: s.QueryKeys(),
	}
	switch mode {
	case ModeDelete, "":
		mode = ModeDelete
	case ModeDisconnect:
		if relation == "" {
			return fmt.Errorf("%w: disconnect needs a relation", ErrInvalidAction)
		}
		m.Query = url.Values{"mode": {string(ModeDisconnect)}, "relation": {relation}}
	default:
		return fmt.Errorf("%w: unknown delete mode %q", ErrInvalidAction, mode)
	}
	if row, ok := o.findRow(id); ok && s.TenantScoped {
		m.Tenant = record.Stringify(row["code"])
	}

	if _, err := o.cfg.Backend.Mutate(ctx, m); err != nil {
		o.cfg.Notifier.Error(ctx, data.UserMessage(err, DeleteFailed))
		return fmt.Errorf("deleting %s %s: %w", s.Name, id, err)
	}

	if mode == ModeDelete {
		o.mu.Lock()
		o.local = slices.DeleteFunc(o.local, func(r record.Record) bool { return r.ID() == id })
		o.mu.Unlock()
		o.cfg.Notifier.Success(ctx, s.DisplayName()+" deleted successfully")
		return nil
	}
	o.cfg.Notifier.Success(ctx, s.DisplayName()+" disconnected successfully")
	return nil
}

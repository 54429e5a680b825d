package table

import (
	"context"
	"fmt"
	"sync"

	"go.uber.org/zap"
)

// DefaultPageSize is the page size of a table seen for the first time.
const DefaultPageSize = 20

// MaxPageSize bounds SetPageSize.
const MaxPageSize = 100

// ViewMode selects how rows are laid out.
type ViewMode string

const (
	ViewTable ViewMode = "table"
	ViewCards ViewMode = "cards"
)

// Sort orders by one column.
type Sort struct {
	ID   string `json:"id"`
	Desc bool   `json:"desc,omitempty"`
}

// State is the per-table UI state shared by every view of one table id.
type State struct {
	PageIndex     int               `json:"pageIndex"`
	PageSize      int               `json:"pageSize"`
	Sorting       []Sort            `json:"sorting,omitempty"`
	GlobalFilter  string            `json:"globalFilter,omitempty"`
	ColumnFilters map[string]string `json:"columnFilters,omitempty"`
	Grouping      []string          `json:"grouping,omitempty"`
	ViewMode      ViewMode          `json:"viewMode"`
	Selected      []string          `json:"selected,omitempty"`
}

// DefaultState is the state a table starts with.
func DefaultState() State {
	return State{PageSize: DefaultPageSize, ViewMode: ViewTable}
}

func (s State) clone() State {
	out := s
	out.Sorting = append([]Sort(nil), s.Sorting...)
	out.Grouping = append([]string(nil), s.Grouping...)
	out.Selected = append([]string(nil), s.Selected...)
	if s.ColumnFilters != nil {
		out.ColumnFilters = make(map[string]string, len(s.ColumnFilters))
		for k, v := range s.ColumnFilters {
			out.ColumnFilters[k] = v
		}
	}
	return out
}

// IsSelected reports whether the row id is selected.
func (s State) IsSelected(id string) bool {
	for _, sel := range s.Selected {
		if sel == id {
			return true
		}
	}
	return false
}

// Persister stores table state across restarts.
type Persister interface {
	Load(ctx context.Context, id string) (State, bool, error)
	Save(ctx context.Context, id string, s State) error
}

// Store holds the state of every table, keyed by table id. State is created
// on first access and changed only through Dispatch.
type Store struct {
	mu      sync.Mutex
	states  map[string]State
	persist Persister
	log     *zap.Logger
}

// NewStore creates a Store. p may be nil for a memory-only store.
func NewStore(p Persister, log *zap.Logger) *Store {
	return &Store{states: make(map[string]State), persist: p, log: log}
}

// Get returns the state of table id, creating it on first access.
func (s *Store) Get(ctx context.Context, id string) State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.load(ctx, id).clone()
}

// load returns the cached state, falling back to the persister and then to
// the default. Callers hold s.mu.
func (s *Store) load(ctx context.Context, id string) State {
	if st, ok := s.states[id]; ok {
		return st
	}
	st := DefaultState()
	if s.persist != nil {
		loaded, ok, err := s.persist.Load(ctx, id)
		switch {
		case err != nil:
			s.log.Warn("loading table state", zap.String("table", id), zap.Error(err))
		case ok:
			st = loaded
		}
	}
	s.states[id] = st
	return st
}

// Dispatch applies a to the state of table id and returns the new state.
// A failing persister is logged; the in-memory state still changes.
func (s *Store) Dispatch(ctx context.Context, id string, a Action) (State, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	cur := s.load(ctx, id).clone()
	next, err := a.apply(cur)
	if err != nil {
		return cur, fmt.Errorf("table %s: %w", id, err)
	}
	s.states[id] = next
	if s.persist != nil {
		if err := s.persist.Save(ctx, id, next); err != nil {
			s.log.Warn("saving table state", zap.String("table", id), zap.Error(err))
		}
	}
	return next.clone(), nil
}

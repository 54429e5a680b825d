package table

import (
	"encoding/json"
	"errors"
	"fmt"
)

// ErrInvalidAction is returned for actions that cannot be applied.
var ErrInvalidAction = errors.New("invalid table action")

// Action is a single change to a table's state. Every state change goes
// through Store.Dispatch with one of the actions below.
type Action interface {
	apply(State) (State, error)
}

type (
	SetPage         struct{ Index int }
	SetPageSize     struct{ Size int }
	SetSorting      struct{ Sorting []Sort }
	SetGlobalFilter struct{ Value string }
	// SetColumnFilter sets one column filter. An empty value removes it.
	SetColumnFilter struct {
		Column string
		Value  string
	}
	SetGrouping   struct{ Columns []string }
	SetViewMode   struct{ Mode ViewMode }
	ToggleSelect  struct{ ID string }
	ClearSelected struct{}
	Reset         struct{}
)

func (a SetPage) apply(s State) (State, error) {
	if a.Index < 0 {
		return s, fmt.Errorf("%w: negative page index", ErrInvalidAction)
	}
	s.PageIndex = a.Index
	return s, nil
}

func (a SetPageSize) apply(s State) (State, error) {
	if a.Size < 1 || a.Size > MaxPageSize {
		return s, fmt.Errorf("%w: page size must be between 1 and %d", ErrInvalidAction, MaxPageSize)
	}
	s.PageSize = a.Size
	s.PageIndex = 0
	return s, nil
}

func (a SetSorting) apply(s State) (State, error) {
	s.Sorting = append([]Sort(nil), a.Sorting...)
	return s, nil
}

func (a SetGlobalFilter) apply(s State) (State, error) {
	s.GlobalFilter = a.Value
	s.PageIndex = 0
	return s, nil
}

func (a SetColumnFilter) apply(s State) (State, error) {
	if a.Column == "" {
		return s, fmt.Errorf("%w: column filter without column", ErrInvalidAction)
	}
	if a.Value == "" {
		delete(s.ColumnFilters, a.Column)
	} else {
		if s.ColumnFilters == nil {
			s.ColumnFilters = map[string]string{}
		}
		s.ColumnFilters[a.Column] = a.Value
	}
	s.PageIndex = 0
	return s, nil
}

func (a SetGrouping) apply(s State) (State, error) {
	s.Grouping = append([]string(nil), a.Columns...)
	s.PageIndex = 0
	return s, nil
}

func (a SetViewMode) apply(s State) (State, error) {
	switch a.Mode {
	case ViewTable, ViewCards:
		s.ViewMode = a.Mode
		return s, nil
	}
	return s, fmt.Errorf("%w: unknown view mode %q", ErrInvalidAction, a.Mode)
}

func (a ToggleSelect) apply(s State) (State, error) {
	for i, id := range s.Selected {
		if id == a.ID {
			s.Selected = append(s.Selected[:i], s.Selected[i+1:]...)
			return s, nil
		}
	}
	s.Selected = append(s.Selected, a.ID)
	return s, nil
}

func (ClearSelected) apply(s State) (State, error) {
	s.Selected = nil
	return s, nil
}

func (Reset) apply(State) (State, error) {
	return DefaultState(), nil
}

// actionMessage is the wire form of an action.
type actionMessage struct {
	Type    string   `json:"type"`
	Index   int      `json:"index"`
	Size    int      `json:"size"`
	Sorting []Sort   `json:"sorting"`
	Value   string   `json:"value"`
	Column  string   `json:"column"`
	Columns []string `json:"columns"`
	Mode    ViewMode `json:"mode"`
	ID      string   `json:"id"`
}

// DecodeAction parses an action sent by a client, for example
// {"type":"setColumnFilter","column":"status","value":"active"}.
func DecodeAction(raw []byte) (Action, error) {
	var m actionMessage
	if err := json.Unmarshal(raw, &m); err != nil {
		return nil, fmt.Errorf("decoding table action: %w", err)
	}
	switch m.Type {
	case "setPage":
		return SetPage{Index: m.Index}, nil
	case "setPageSize":
		return SetPageSize{Size: m.Size}, nil
	case "setSorting":
		return SetSorting{Sorting: m.Sorting}, nil
	case "setGlobalFilter":
		return SetGlobalFilter{Value: m.Value}, nil
	case "setColumnFilter":
		return SetColumnFilter{Column: m.Column, Value: m.Value}, nil
	case "setGrouping":
		return SetGrouping{Columns: m.Columns}, nil
	case "setViewMode":
		return SetViewMode{Mode: m.Mode}, nil
	case "toggleSelect":
		return ToggleSelect{ID: m.ID}, nil
	case "clearSelected":
		return ClearSelected{}, nil
	case "reset":
		return Reset{}, nil
	}
	return nil, fmt.Errorf("%w: unknown type %q", ErrInvalidAction, m.Type)
}

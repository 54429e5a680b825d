// Package dashboard loads the stat cards of dashboard views. Every card of a
// view is fetched concurrently under the view's context, so closing the view
// cancels whatever is still in flight.
package dashboard

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/matthewbaird/erpui/internal/data"
	"github.com/matthewbaird/erpui/internal/record"
	"github.com/matthewbaird/erpui/internal/table"
)

// LoadFailed is shown on a card whose fetch failed.
const LoadFailed = "Failed to load"

// maxConcurrent bounds the card fetches of one view.
const maxConcurrent = 4

var ErrUnknownDashboard = errors.New("unknown dashboard")

// Card declares one stat card. A card either reads Field from the first row
// of Endpoint, or aggregates Field over the rows with Aggregation. count
// uses the endpoint's total and needs no field.
type Card struct {
	ID          string            `json:"id" yaml:"id"`
	Title       string            `json:"title" yaml:"title"`
	Endpoint    string            `json:"endpoint" yaml:"endpoint"`
	Filter      map[string]string `json:"filter,omitempty" yaml:"filter"`
	Field       string            `json:"field,omitempty" yaml:"field"`
	Aggregation string            `json:"aggregation,omitempty" yaml:"aggregation"`
	Format      string            `json:"format,omitempty" yaml:"format"`
}

// Definition is a named dashboard.
type Definition struct {
	Name  string `json:"name" yaml:"name"`
	Title string `json:"title" yaml:"title"`
	Cards []Card `json:"cards" yaml:"cards"`
}

// Status is the state of a card.
type Status string

const (
	StatusLoading Status = "loading"
	StatusError   Status = "error"
	StatusReady   Status = "ready"
)

// CardState is a card as rendered.
type CardState struct {
	ID      string  `json:"id"`
	Title   string  `json:"title"`
	Status  Status  `json:"status"`
	Value   float64 `json:"value,omitempty"`
	Display string  `json:"display,omitempty"`
	Error   string  `json:"error,omitempty"`
}

// Lister fetches list endpoints. *data.Client satisfies it.
type Lister interface {
	List(ctx context.Context, endpoint string, p data.Params, opts ...data.RequestOption) (data.ListResult, error)
}

// Loader resolves dashboards by name and fetches their cards.
type Loader struct {
	api  Lister
	log  *zap.Logger
	defs map[string]Definition
}

// NewLoader creates a Loader for defs.
func NewLoader(api Lister, log *zap.Logger, defs ...Definition) *Loader {
	l := &Loader{api: api, log: log, defs: make(map[string]Definition, len(defs))}
	for _, d := range defs {
		l.defs[d.Name] = d
	}
	return l
}

// Definition looks up a dashboard.
func (l *Loader) Definition(name string) (Definition, error) {
	d, ok := l.defs[name]
	if !ok {
		return Definition{}, fmt.Errorf("%w: %s", ErrUnknownDashboard, name)
	}
	return d, nil
}

// Load fetches every card of the named dashboard and waits for all of them.
// A failing card does not stop the others. If ctx ends first the cards
// still in flight report an error.
func (l *Loader) Load(ctx context.Context, name string) ([]CardState, error) {
	d, err := l.Definition(name)
	if err != nil {
		return nil, err
	}
	v := l.open(ctx, d)
	defer v.Close()
	v.wait()
	return v.Cards(), nil
}

// Open starts fetching the named dashboard in the background. The returned
// view reports cards as loading until their fetch completes.
func (l *Loader) Open(ctx context.Context, name string) (*View, error) {
	d, err := l.Definition(name)
	if err != nil {
		return nil, err
	}
	return l.open(ctx, d), nil
}

// View is an open dashboard.
type View struct {
	Definition Definition

	cancel context.CancelFunc
	done   chan struct{}

	mu    sync.Mutex
	cards []CardState
}

func (l *Loader) open(parent context.Context, d Definition) *View {
	ctx, cancel := context.WithCancel(parent)
	v := &View{
		Definition: d,
		cancel:     cancel,
		done:       make(chan struct{}),
		cards:      make([]CardState, len(d.Cards)),
	}
	for i, c := range d.Cards {
		v.cards[i] = CardState{ID: c.ID, Title: c.Title, Status: StatusLoading}
	}

	var g errgroup.Group
	g.SetLimit(maxConcurrent)
	go func() {
		defer close(v.done)
		for i, c := range d.Cards {
			g.Go(func() error {
				value, err := l.fetch(ctx, c)
				if err != nil && ctx.Err() == nil {
					l.log.Warn("dashboard card failed",
						zap.String("dashboard", d.Name),
						zap.String("card", c.ID),
						zap.Error(err))
				}
				v.set(i, c, value, err)
				return nil
			})
		}
		_ = g.Wait()
	}()
	return v
}

func (v *View) set(i int, c Card, value float64, err error) {
	v.mu.Lock()
	defer v.mu.Unlock()
	st := &v.cards[i]
	if err != nil {
		st.Status = StatusError
		st.Error = LoadFailed
		return
	}
	st.Status = StatusReady
	st.Value = value
	st.Display = table.Format(c.Format, value)
}

func (v *View) wait() { <-v.done }

// Cards returns a snapshot of the cards.
func (v *View) Cards() []CardState {
	v.mu.Lock()
	defer v.mu.Unlock()
	return append([]CardState(nil), v.cards...)
}

// Close cancels fetches still in flight and waits for them to return.
func (v *View) Close() {
	v.cancel()
	<-v.done
}

func (l *Loader) fetch(ctx context.Context, c Card) (float64, error) {
	p := data.Params{Filter: c.Filter}
	if c.Aggregation == "count" {
		p.PageSize = 1
	}
	res, err := l.api.List(ctx, c.Endpoint, p)
	if err != nil {
		return 0, err
	}
	switch c.Aggregation {
	case "":
		if len(res.Rows) == 0 {
			return 0, fmt.Errorf("card %s: empty response", c.ID)
		}
		return numberAt(res.Rows[0], c.Field)
	case "count":
		return float64(res.Total), nil
	}
	values := make([]any, 0, len(res.Rows))
	for _, r := range res.Rows {
		v, _ := r.Get(c.Field)
		values = append(values, v)
	}
	n, ok := table.Compute(c.Aggregation, values)
	if !ok {
		return 0, fmt.Errorf("card %s: cannot %s %s", c.ID, c.Aggregation, c.Field)
	}
	return n, nil
}

func numberAt(r record.Record, path string) (float64, error) {
	v, ok := r.Get(path)
	if !ok {
		return 0, fmt.Errorf("no value at %q", path)
	}
	n, ok := record.ToFloat(v)
	if !ok {
		return 0, fmt.Errorf("value at %q is not a number", path)
	}
	return n, nil
}

package form

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/matthewbaird/erpui/internal/field"
	"github.com/matthewbaird/erpui/internal/record"
)

// ErrNoCreateNew is returned by OpenRelated for fields that do not offer a
// nested create form.
var ErrNoCreateNew = errors.New("field does not allow creating related records")

// OpenRelated opens a nested create form for the related schema of the
// relation field key. When the nested form succeeds, the parent's option
// list for that field is invalidated and the new record is selected.
func (o *Orchestrator) OpenRelated(key string) (*Orchestrator, error) {
	o.mu.Lock()
	err := o.editable()
	o.mu.Unlock()
	if err != nil {
		return nil, err
	}

	f, ok := o.schema.Field(key)
	if !ok {
		return nil, fmt.Errorf("%s: unknown field %q", o.schema.Name, key)
	}
	in, ok := f.Relation()
	if !ok || !in.AllowCreateNew {
		return nil, fmt.Errorf("%s.%s: %w", o.schema.Name, key, ErrNoCreateNew)
	}
	if o.deps.Registry == nil {
		return nil, fmt.Errorf("%s.%s: no schema registry", o.schema.Name, key)
	}
	child, err := o.deps.Registry.Schema(in.CreateSchema)
	if err != nil {
		return nil, fmt.Errorf("opening related form: %w", err)
	}

	c := NewCreate(child, o.deps)
	c.parent = o
	c.parentField = key
	return c, nil
}

func (o *Orchestrator) relatedCreated(ctx context.Context, key string, created record.Record) {
	f, _ := o.schema.Field(key)
	in, ok := f.Relation()
	if !ok {
		return
	}
	if in.Async {
		if err := o.deps.Backend.Invalidate(ctx, field.OptionKey(in.Endpoint)); err != nil {
			o.deps.logger().Warn("refreshing related options failed",
				zap.String("schema", o.schema.Name),
				zap.String("field", key),
				zap.Error(err))
		}
	}
	if created == nil {
		return
	}
	if v := in.OptionValue(created); !record.IsEmpty(v) {
		// The parent may have been closed meanwhile; then there is nothing
		// to select.
		_ = o.Set(key, v)
	}
}

package table

import (
	"strings"

	"github.com/matthewbaird/erpui/internal/field"
	"github.com/matthewbaird/erpui/internal/meta"
	"github.com/matthewbaird/erpui/internal/record"
)

// ColumnKind distinguishes synthetic columns from schema columns.
type ColumnKind string

const (
	KindSelect  ColumnKind = "select"
	KindActions ColumnKind = "actions"
	KindData    ColumnKind = "data"
)

// Ids of the synthetic leading columns.
const (
	SelectColumn  = "_select"
	ActionsColumn = "_actions"
)

// Column is one rendered table column.
type Column struct {
	ID                string     `json:"id"`
	Kind              ColumnKind `json:"kind"`
	Header            string     `json:"header,omitempty"`
	AccessorKey       string     `json:"accessorKey,omitempty"`
	MinSize           int        `json:"minSize,omitempty"`
	Cell              string     `json:"cell,omitempty"`
	Aggregation       string     `json:"aggregation,omitempty"`
	AggregationFormat string     `json:"aggregationFormat,omitempty"`
	GroupBy           bool       `json:"groupBy,omitempty"`
	Actions           []string   `json:"actions,omitempty"`

	field meta.FieldMeta
}

// BuildColumns derives the columns of a schema: the select column, the
// actions column when any action is available, then one column per field
// with table metadata. A nested accessor path that resolves on none of the
// rows is dropped, since its relation is absent everywhere. Columns with a
// computed accessor or forced grouping are always kept.
func BuildColumns(s *meta.SchemaMeta, rows []record.Record, actions []string) []Column {
	cols := []Column{{ID: SelectColumn, Kind: KindSelect}}
	if len(actions) > 0 {
		cols = append(cols, Column{ID: ActionsColumn, Kind: KindActions, Actions: actions})
	}
	for _, f := range s.TableFields() {
		if !resolvable(f, rows) {
			continue
		}
		t := f.Table
		cols = append(cols, Column{
			ID:                f.Key,
			Kind:              KindData,
			Header:            f.Label(),
			AccessorKey:       f.AccessorPath(),
			MinSize:           t.MinSize,
			Cell:              t.Cell,
			Aggregation:       t.Aggregation,
			AggregationFormat: t.AggregationFormat,
			GroupBy:           t.GroupBy,
			field:             f,
		})
	}
	return cols
}

func resolvable(f meta.FieldMeta, rows []record.Record) bool {
	if f.Table.Accessor != nil || f.Table.GroupBy {
		return true
	}
	path := f.AccessorPath()
	if !strings.Contains(path, ".") || len(rows) == 0 {
		return true
	}
	for _, row := range rows {
		if _, ok := row.Get(path); ok {
			return true
		}
	}
	return false
}

func dataColumns(cols []Column) []Column {
	out := make([]Column, 0, len(cols))
	for _, c := range cols {
		if c.Kind == KindData {
			out = append(out, c)
		}
	}
	return out
}

// raw returns the column's value for row before formatting.
func (c Column) raw(row record.Record) any {
	v, _ := c.field.TableValue(row)
	return v
}

// display returns the formatted cell value.
func (c Column) display(row record.Record) any {
	return FormatCell(c.Cell, c.raw(row))
}

// text is the cell rendered as a string for filtering and grouping.
func (c Column) text(row record.Record) string {
	return record.Stringify(c.display(row))
}

// FormatCell renders v with the named cell renderer. Relation objects
// render as their name, falling back to the id.
func FormatCell(cell string, v any) any {
	switch cell {
	case "date":
		return field.DisplayDate(v)
	case "boolean":
		b, _ := v.(bool)
		return b
	case "currency", "integer", "percent":
		if n, ok := record.ToFloat(v); ok {
			return Format(cell, n)
		}
		return ""
	}
	if rel, ok := record.AsRecord(v); ok {
		if name, ok := rel["name"]; ok && name != nil {
			return name
		}
		return rel.ID()
	}
	return v
}

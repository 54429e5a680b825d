package form

import (
	"github.com/matthewbaird/erpui/internal/field"
	"github.com/matthewbaird/erpui/internal/meta"
	"github.com/matthewbaird/erpui/internal/record"
)

// Transform shapes form values into an API payload. It strips audit fields
// and the id, drops fields whose control is hidden, reduces relation objects
// to {id} references and omits every empty value. values is not modified.
func Transform(s *meta.SchemaMeta, values record.Record) record.Record {
	work := values.Clone()
	for _, f := range s.Fields {
		if f.Form != nil && !field.Visible(f, values) {
			work.Delete(f.Key)
		}
	}

	out := record.Record{}
	for k, v := range work {
		if meta.IsAuditField(k) {
			continue
		}
		if v = shape(v); !isEmpty(v) {
			out[k] = v
		}
	}
	return out
}

// shape reduces relations to references and prunes empty values inside
// embedded objects.
func shape(v any) any {
	switch t := v.(type) {
	case map[string]any:
		if id, ok := t["id"]; ok {
			if record.IsEmpty(id) {
				return nil
			}
			return map[string]any{"id": id}
		}
		out := map[string]any{}
		for k, inner := range t {
			if inner = shape(inner); !isEmpty(inner) {
				out[k] = inner
			}
		}
		if len(out) == 0 {
			return nil
		}
		return out
	case record.Record:
		return shape(map[string]any(t))
	case []any:
		out := make([]any, 0, len(t))
		for _, item := range t {
			if item = shape(item); !isEmpty(item) {
				out = append(out, item)
			}
		}
		return out
	default:
		return v
	}
}

// isEmpty is true for values already pruned by shape: nil, "" and empty
// collections.
func isEmpty(v any) bool {
	switch t := v.(type) {
	case nil:
		return true
	case string:
		return t == ""
	case []any:
		return len(t) == 0
	case map[string]any:
		return len(t) == 0
	}
	return false
}

// Package record provides the entity instance representation shared by the
// form and table layers: a JSON-shaped map addressed by dot-paths such as
// "payrollBatch.id".
package record

import (
	"encoding/json"
	"fmt"
	"strings"
)

// Record is one entity instance as returned by the REST API. Relations are
// nested objects carrying at least an "id".
type Record map[string]any

// Clone returns a deep copy of r. Nested maps and slices are copied; scalar
// values are shared.
func (r Record) Clone() Record {
	if r == nil {
		return Record{}
	}
	out := make(Record, len(r))
	for k, v := range r {
		out[k] = cloneValue(v)
	}
	return out
}

func cloneValue(v any) any {
	switch t := v.(type) {
	case Record:
		return t.Clone()
	case map[string]any:
		return Record(t).Clone()
	case []any:
		cp := make([]any, len(t))
		for i, e := range t {
			cp[i] = cloneValue(e)
		}
		return cp
	default:
		return v
	}
}

// Get resolves a dot-path. The second result is false when any segment is
// missing or a non-object is traversed.
func (r Record) Get(path string) (any, bool) {
	if path == "" {
		return nil, false
	}
	var cur any = map[string]any(r)
	for _, seg := range strings.Split(path, ".") {
		m, ok := asMap(cur)
		if !ok {
			return nil, false
		}
		cur, ok = m[seg]
		if !ok {
			return nil, false
		}
	}
	return cur, true
}

// Set writes v at path, creating intermediate objects as needed. An
// intermediate scalar is replaced by an object.
func (r Record) Set(path string, v any) {
	segs := strings.Split(path, ".")
	cur := map[string]any(r)
	for _, seg := range segs[:len(segs)-1] {
		next, ok := asMap(cur[seg])
		if !ok {
			next = map[string]any{}
			cur[seg] = next
		}
		cur = next
	}
	cur[segs[len(segs)-1]] = v
}

// Delete removes the value at path. Missing paths are ignored.
func (r Record) Delete(path string) {
	segs := strings.Split(path, ".")
	cur := map[string]any(r)
	for _, seg := range segs[:len(segs)-1] {
		next, ok := asMap(cur[seg])
		if !ok {
			return
		}
		cur = next
	}
	delete(cur, segs[len(segs)-1])
}

// ID returns the record's "id" rendered as a string, or "" when absent.
func (r Record) ID() string {
	v, ok := r["id"]
	if !ok || v == nil {
		return ""
	}
	return Stringify(v)
}

// Stringify renders scalar JSON values the way they appear in a URL or a
// table cell. Whole floats print without a fractional part.
func Stringify(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return t
	case float64:
		if t == float64(int64(t)) {
			return fmt.Sprintf("%d", int64(t))
		}
		return fmt.Sprintf("%g", t)
	case json.Number:
		return t.String()
	default:
		return fmt.Sprint(t)
	}
}

// Equal compares two JSON-decoded scalars. Numbers compare by value
// regardless of their Go type, so an option value of 3 matches a stored 3.0.
// Booleans only ever equal booleans: true does not match "true".
func Equal(a, b any) bool {
	ba, aBool := a.(bool)
	bb, bBool := b.(bool)
	if aBool || bBool {
		return aBool && bBool && ba == bb
	}
	if fa, ok := ToFloat(a); ok {
		if fb, ok := ToFloat(b); ok {
			return fa == fb
		}
	}
	return Stringify(a) == Stringify(b) && (a == nil) == (b == nil)
}

// ToFloat converts numeric JSON values to float64.
func ToFloat(v any) (float64, bool) {
	switch t := v.(type) {
	case float64:
		return t, true
	case float32:
		return float64(t), true
	case int:
		return float64(t), true
	case int64:
		return float64(t), true
	case int32:
		return float64(t), true
	case json.Number:
		f, err := t.Float64()
		return f, err == nil
	default:
		return 0, false
	}
}

// IsEmpty reports whether v is one of the "no value" forms a form may hold:
// nil, the empty string, or a relation object without an id.
func IsEmpty(v any) bool {
	switch t := v.(type) {
	case nil:
		return true
	case string:
		return t == ""
	case map[string]any:
		id, ok := t["id"]
		return !ok || IsEmpty(id)
	case Record:
		return IsEmpty(map[string]any(t))
	case []any:
		return len(t) == 0
	default:
		return false
	}
}

func asMap(v any) (map[string]any, bool) {
	switch t := v.(type) {
	case map[string]any:
		return t, true
	case Record:
		return map[string]any(t), true
	default:
		return nil, false
	}
}

// AsRecord converts a decoded JSON object into a Record.
func AsRecord(v any) (Record, bool) {
	m, ok := asMap(v)
	if !ok {
		return nil, false
	}
	return Record(m), true
}

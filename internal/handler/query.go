package handler

import (
	"cmp"
	"net/http"
	"slices"
	"strings"

	"github.com/matthewbaird/erpui/internal/record"
)

// ListQuery is a parsed list request.
type ListQuery struct {
	Pagination
	// Sort entries are dot-paths, prefixed with "-" for descending.
	Sort   []string
	Filter map[string]string
	Q      string
}

// ParseListQuery reads offset, page_size, sort, filter and q. Filters are
// key:value pairs; a pair without a colon is ignored.
func ParseListQuery(r *http.Request) ListQuery {
	v := r.URL.Query()
	q := ListQuery{
		Pagination: ParsePagination(r),
		Sort:       v["sort"],
		Q:          strings.TrimSpace(v.Get("q")),
	}
	for _, f := range v["filter"] {
		k, val, ok := strings.Cut(f, ":")
		if !ok || k == "" {
			continue
		}
		if q.Filter == nil {
			q.Filter = map[string]string{}
		}
		q.Filter[k] = val
	}
	return q
}

// Apply filters, sorts and pages rows. It returns the page and the number
// of rows that matched before paging.
func (q ListQuery) Apply(rows []record.Record) ([]record.Record, int) {
	matched := make([]record.Record, 0, len(rows))
	needle := strings.ToLower(q.Q)
	for _, r := range rows {
		if needle != "" && !containsText(r, needle) {
			continue
		}
		if !q.matches(r) {
			continue
		}
		matched = append(matched, r)
	}
	q.sort(matched)

	total := len(matched)
	if q.Offset >= total {
		return []record.Record{}, total
	}
	matched = matched[q.Offset:]
	if q.Limit > 0 && len(matched) > q.Limit {
		matched = matched[:q.Limit]
	}
	return matched, total
}

func (q ListQuery) matches(r record.Record) bool {
	for k, want := range q.Filter {
		v, _ := r.Get(k)
		if !strings.Contains(strings.ToLower(text(v)), strings.ToLower(want)) {
			return false
		}
	}
	return true
}

func (q ListQuery) sort(rows []record.Record) {
	if len(q.Sort) == 0 {
		return
	}
	slices.SortStableFunc(rows, func(a, b record.Record) int {
		for _, s := range q.Sort {
			path, desc := strings.CutPrefix(s, "-")
			va, _ := a.Get(path)
			vb, _ := b.Get(path)
			switch {
			case va == nil && vb == nil:
				continue
			case va == nil:
				return 1
			case vb == nil:
				return -1
			}
			c := compare(va, vb)
			if desc {
				c = -c
			}
			if c != 0 {
				return c
			}
		}
		return 0
	})
}

func compare(a, b any) int {
	if fa, ok := record.ToFloat(a); ok {
		if fb, ok := record.ToFloat(b); ok {
			return cmp.Compare(fa, fb)
		}
	}
	return strings.Compare(strings.ToLower(text(a)), strings.ToLower(text(b)))
}

// text renders a value for matching. Relations match on their name, then
// their id.
func text(v any) string {
	if rel, ok := record.AsRecord(v); ok {
		if name, ok := rel["name"]; ok && name != nil {
			return record.Stringify(name)
		}
		return rel.ID()
	}
	return record.Stringify(v)
}

// containsText reports whether any scalar anywhere in v contains needle.
func containsText(v any, needle string) bool {
	switch t := v.(type) {
	case record.Record:
		for _, x := range t {
			if containsText(x, needle) {
				return true
			}
		}
		return false
	case map[string]any:
		return containsText(record.Record(t), needle)
	case []any:
		for _, x := range t {
			if containsText(x, needle) {
				return true
			}
		}
		return false
	case nil:
		return false
	}
	return strings.Contains(strings.ToLower(record.Stringify(v)), needle)
}

package handler

import (
	"context"
	"net/http"
	"path"
	"strconv"
	"strings"
	"time"

	"github.com/matthewbaird/erpui/internal/activity"
	"github.com/matthewbaird/erpui/internal/record"
)

// activitySegment ends the paths serving the audit trail:
//
//	GET {endpoint}/_activity       entries of a collection
//	GET {endpoint}/{id}/_activity  entries of one record
//	GET {anything else}/_activity?q=  summary search
const activitySegment = "_activity"

type activityResponse struct {
	Data       []activity.Entry `json:"data"`
	Total      int              `json:"total"`
	NextCursor string           `json:"nextCursor,omitempty"`
}

func (a *API) audit(ctx context.Context, t target, audit AuditInfo, kind activity.Kind, before, after record.Record, relation string) {
	if a.indexer == nil {
		return
	}
	label := ""
	if t.schema != nil {
		label = t.schema.DisplayName()
	}
	id := t.id
	if id == "" {
		id = after.ID()
	}
	a.indexer.Record(ctx, activity.Mutation{
		Kind:     kind,
		Endpoint: t.endpoint,
		ID:       id,
		Actor:    audit.Actor,
		Tenant:   audit.Tenant,
		Label:    label,
		Relation: relation,
		Before:   before,
		After:    after,
	})
}

func (a *API) history(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	var since *time.Time
	if v := q.Get("since"); v != "" {
		ts, err := time.Parse(time.RFC3339, v)
		if err != nil {
			WriteError(w, http.StatusBadRequest, CodeBadRequest, "since must be an RFC 3339 timestamp")
			return
		}
		since = &ts
	}
	var kinds []activity.Kind
	for _, k := range q["kind"] {
		kinds = append(kinds, activity.Kind(k))
	}
	limit, _ := strconv.Atoi(q.Get("limit"))

	ctx := r.Context()
	p := strings.TrimSuffix(path.Dir(r.URL.Path), "/")
	endpoint, id := p, ""
	if _, ok := a.collection(p); !ok {
		dir, last := path.Split(p)
		dir = strings.TrimSuffix(dir, "/")
		if _, ok := a.collection(dir); ok && last != "" {
			endpoint, id = dir, last
		} else {
			endpoint = ""
		}
	}

	if endpoint == "" || q.Get("q") != "" {
		entries, total, err := a.activity.Search(ctx, q.Get("q"), activity.SearchOptions{
			Endpoint: endpoint,
			Since:    since,
			Kinds:    kinds,
			Limit:    limit,
		})
		if err != nil {
			a.storeError(w, err)
			return
		}
		WriteJSON(w, http.StatusOK, activityResponse{Data: orEmpty(entries), Total: total})
		return
	}

	entries, next, total, err := a.activity.QueryByRecord(ctx, endpoint, id, activity.QueryOptions{
		Since:  since,
		Kinds:  kinds,
		Limit:  limit,
		Cursor: q.Get("cursor"),
	})
	if err != nil {
		a.storeError(w, err)
		return
	}
	WriteJSON(w, http.StatusOK, activityResponse{Data: orEmpty(entries), Total: total, NextCursor: next})
}

func orEmpty(entries []activity.Entry) []activity.Entry {
	if entries == nil {
		return []activity.Entry{}
	}
	return entries
}

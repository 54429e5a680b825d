package activity

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"entgo.io/ent/dialect"
	entsql "entgo.io/ent/dialect/sql"
)

// Store reads and writes activity entries.
type Store interface {
	// WriteEntries appends entries. Entries whose EventID already exists are
	// skipped.
	WriteEntries(ctx context.Context, entries ...Entry) error

	// QueryByRecord returns the entries of one record, newest first. An empty
	// id returns the entries of the whole endpoint.
	QueryByRecord(ctx context.Context, endpoint, id string, opts QueryOptions) (entries []Entry, nextCursor string, total int, err error)

	// Search matches query case-insensitively against entry summaries.
	Search(ctx context.Context, query string, opts SearchOptions) (entries []Entry, total int, err error)
}

const entriesTable = "activity_entries"

// Timestamps are stored as fixed-width UTC text so that string comparison
// orders them.
const timeLayout = "2006-01-02T15:04:05.000000000Z"

var columns = []string{"event_id", "kind", "occurred_at", "endpoint", "record_id", "actor", "tenant", "summary", "fields"}

// SQLStore implements Store on a SQLite database shared with the document
// store.
type SQLStore struct {
	db *sql.DB
	b  *entsql.DialectBuilder
}

// NewSQLStore creates the activity table on db if needed.
func NewSQLStore(ctx context.Context, db *sql.DB) (*SQLStore, error) {
	s := &SQLStore{db: db, b: entsql.Dialect(dialect.SQLite)}
	if err := s.CreateTable(ctx); err != nil {
		return nil, err
	}
	return s, nil
}

// CreateTable creates the activity_entries table and its indexes.
func (s *SQLStore) CreateTable(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS activity_entries (
			event_id    TEXT PRIMARY KEY,
			kind        TEXT NOT NULL,
			occurred_at TEXT NOT NULL,
			endpoint    TEXT NOT NULL,
			record_id   TEXT NOT NULL,
			actor       TEXT NOT NULL,
			tenant      TEXT NOT NULL DEFAULT '',
			summary     TEXT NOT NULL,
			fields      TEXT NOT NULL DEFAULT '[]'
		);

		CREATE INDEX IF NOT EXISTS idx_activity_record_time
			ON activity_entries (endpoint, record_id, occurred_at DESC);
	`)
	if err != nil {
		return fmt.Errorf("creating activity table: %w", err)
	}
	return nil
}

func (s *SQLStore) WriteEntries(ctx context.Context, entries ...Entry) error {
	if len(entries) == 0 {
		return nil
	}
	ins := s.b.Insert(entriesTable).Columns(columns...)
	for _, e := range entries {
		fields, err := json.Marshal(e.Fields)
		if err != nil {
			return fmt.Errorf("encoding fields of %s: %w", e.EventID, err)
		}
		ins.Values(e.EventID, string(e.Kind), e.OccurredAt.UTC().Format(timeLayout),
			e.Endpoint, e.RecordID, e.Actor, e.Tenant, e.Summary, string(fields))
	}
	query, args := ins.OnConflict(entsql.ConflictColumns("event_id"), entsql.DoNothing()).Query()
	if _, err := s.db.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("writing activity entries: %w", err)
	}
	return nil
}

func kindsIn(kinds []Kind) *entsql.Predicate {
	vals := make([]any, len(kinds))
	for i, k := range kinds {
		vals[i] = string(k)
	}
	return entsql.In("kind", vals...)
}

func (s *SQLStore) QueryByRecord(ctx context.Context, endpoint, id string, opts QueryOptions) ([]Entry, string, int, error) {
	where := func(withCursor bool) *entsql.Predicate {
		preds := []*entsql.Predicate{entsql.EQ("endpoint", endpoint)}
		if id != "" {
			preds = append(preds, entsql.EQ("record_id", id))
		}
		if opts.Since != nil {
			preds = append(preds, entsql.GTE("occurred_at", opts.Since.UTC().Format(timeLayout)))
		}
		if opts.Until != nil {
			preds = append(preds, entsql.LTE("occurred_at", opts.Until.UTC().Format(timeLayout)))
		}
		if len(opts.Kinds) > 0 {
			preds = append(preds, kindsIn(opts.Kinds))
		}
		if c, ok := opts.cursor(); ok && withCursor {
			preds = append(preds, entsql.LT("occurred_at", c.UTC().Format(timeLayout)))
		}
		return entsql.And(preds...)
	}

	limit := opts.limit()
	entries, err := s.selectEntries(ctx, where(true), limit+1)
	if err != nil {
		return nil, "", 0, err
	}
	var next string
	if len(entries) > limit {
		entries = entries[:limit]
		next = entries[limit-1].OccurredAt.Format(time.RFC3339Nano)
	}
	total, err := s.count(ctx, where(false))
	if err != nil {
		return nil, "", 0, err
	}
	return entries, next, total, nil
}

func (s *SQLStore) Search(ctx context.Context, query string, opts SearchOptions) ([]Entry, int, error) {
	where := func() *entsql.Predicate {
		preds := []*entsql.Predicate{entsql.ContainsFold("summary", query)}
		if opts.Endpoint != "" {
			preds = append(preds, entsql.EQ("endpoint", opts.Endpoint))
		}
		if opts.Since != nil {
			preds = append(preds, entsql.GTE("occurred_at", opts.Since.UTC().Format(timeLayout)))
		}
		if len(opts.Kinds) > 0 {
			preds = append(preds, kindsIn(opts.Kinds))
		}
		return entsql.And(preds...)
	}
	entries, err := s.selectEntries(ctx, where(), opts.limit())
	if err != nil {
		return nil, 0, err
	}
	total, err := s.count(ctx, where())
	if err != nil {
		return nil, 0, err
	}
	return entries, total, nil
}

func (s *SQLStore) selectEntries(ctx context.Context, where *entsql.Predicate, limit int) ([]Entry, error) {
	query, args := s.b.Select(columns...).
		From(entsql.Table(entriesTable)).
		Where(where).
		OrderBy(entsql.Desc("occurred_at"), entsql.Desc("rowid")).
		Limit(limit).
		Query()
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying activity entries: %w", err)
	}
	defer rows.Close()

	var out []Entry
	for rows.Next() {
		var (
			e              Entry
			kind, at, flds string
		)
		if err := rows.Scan(&e.EventID, &kind, &at, &e.Endpoint, &e.RecordID, &e.Actor, &e.Tenant, &e.Summary, &flds); err != nil {
			return nil, fmt.Errorf("scanning activity entry: %w", err)
		}
		e.Kind = Kind(kind)
		if e.OccurredAt, err = time.Parse(timeLayout, at); err != nil {
			return nil, fmt.Errorf("parsing occurred_at of %s: %w", e.EventID, err)
		}
		if err := json.Unmarshal([]byte(flds), &e.Fields); err != nil {
			return nil, fmt.Errorf("decoding fields of %s: %w", e.EventID, err)
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

func (s *SQLStore) count(ctx context.Context, where *entsql.Predicate) (int, error) {
	query, args := s.b.Select(entsql.Count("*")).
		From(entsql.Table(entriesTable)).
		Where(where).
		Query()
	var n int
	if err := s.db.QueryRowContext(ctx, query, args...).Scan(&n); err != nil {
		return 0, fmt.Errorf("counting activity entries: %w", err)
	}
	return n, nil
}

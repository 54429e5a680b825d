package handler

import (
	"context"
	stdsql "database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"entgo.io/ent/dialect"
	entsql "entgo.io/ent/dialect/sql"
	_ "modernc.org/sqlite"

	"github.com/matthewbaird/erpui/internal/record"
)

const documentsTable = "documents"

const createDocuments = `
	CREATE TABLE IF NOT EXISTS documents (
		seq        INTEGER PRIMARY KEY AUTOINCREMENT,
		endpoint   TEXT NOT NULL,
		id         TEXT NOT NULL,
		tenant     TEXT NOT NULL DEFAULT '',
		data       TEXT NOT NULL,
		updated_at TEXT NOT NULL,
		UNIQUE (endpoint, id)
	);
	CREATE INDEX IF NOT EXISTS idx_documents_endpoint ON documents (endpoint, seq);
`

// SQLStore implements Store on a SQLite database. Statements are built
// with the ent SQL builder; records are stored as JSON documents.
type SQLStore struct {
	db *stdsql.DB
	b  *entsql.DialectBuilder
}

// OpenSQLite opens the database at dsn and creates the documents table.
func OpenSQLite(ctx context.Context, dsn string) (*SQLStore, error) {
	db, err := stdsql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}
	db.SetMaxOpenConns(1)
	s := &SQLStore{db: db, b: entsql.Dialect(dialect.SQLite)}
	if err := s.CreateTable(ctx); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

// CreateTable creates the documents table if it does not exist.
func (s *SQLStore) CreateTable(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, createDocuments); err != nil {
		return fmt.Errorf("creating documents table: %w", err)
	}
	return nil
}

// Close closes the database.
func (s *SQLStore) Close() error {
	return s.db.Close()
}

func key(endpoint, id string) *entsql.Predicate {
	return entsql.And(entsql.EQ("endpoint", endpoint), entsql.EQ("id", id))
}

func (s *SQLStore) List(ctx context.Context, endpoint string) ([]Document, error) {
	query, args := s.b.Select("id", "tenant", "data").
		From(entsql.Table(documentsTable)).
		Where(entsql.EQ("endpoint", endpoint)).
		OrderBy("seq").
		Query()
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("listing %s: %w", endpoint, err)
	}
	defer rows.Close()

	var out []Document
	for rows.Next() {
		d := Document{Endpoint: endpoint}
		var raw string
		if err := rows.Scan(&d.ID, &d.Tenant, &raw); err != nil {
			return nil, fmt.Errorf("scanning %s: %w", endpoint, err)
		}
		if err := json.Unmarshal([]byte(raw), &d.Data); err != nil {
			return nil, fmt.Errorf("decoding %s/%s: %w", endpoint, d.ID, err)
		}
		out = append(out, d)
	}
	return out, rows.Err()
}

func (s *SQLStore) Get(ctx context.Context, endpoint, id string) (Document, error) {
	query, args := s.b.Select("tenant", "data").
		From(entsql.Table(documentsTable)).
		Where(key(endpoint, id)).
		Query()
	d := Document{Endpoint: endpoint, ID: id}
	var raw string
	err := s.db.QueryRowContext(ctx, query, args...).Scan(&d.Tenant, &raw)
	if errors.Is(err, stdsql.ErrNoRows) {
		return Document{}, fmt.Errorf("%s/%s: %w", endpoint, id, ErrNotFound)
	}
	if err != nil {
		return Document{}, fmt.Errorf("loading %s/%s: %w", endpoint, id, err)
	}
	if err := json.Unmarshal([]byte(raw), &d.Data); err != nil {
		return Document{}, fmt.Errorf("decoding %s/%s: %w", endpoint, id, err)
	}
	return d, nil
}

func (s *SQLStore) Insert(ctx context.Context, d Document) error {
	raw, err := encode(d.Data)
	if err != nil {
		return err
	}
	query, args := s.b.Insert(documentsTable).
		Columns("endpoint", "id", "tenant", "data", "updated_at").
		Values(d.Endpoint, d.ID, d.Tenant, raw, time.Now().UTC().Format(time.RFC3339Nano)).
		Query()
	if _, err := s.db.ExecContext(ctx, query, args...); err != nil {
		if strings.Contains(err.Error(), "UNIQUE constraint failed") {
			return fmt.Errorf("%s/%s: %w", d.Endpoint, d.ID, ErrConflict)
		}
		return fmt.Errorf("inserting %s/%s: %w", d.Endpoint, d.ID, err)
	}
	return nil
}

func (s *SQLStore) Update(ctx context.Context, d Document) error {
	raw, err := encode(d.Data)
	if err != nil {
		return err
	}
	query, args := s.b.Update(documentsTable).
		Set("tenant", d.Tenant).
		Set("data", raw).
		Set("updated_at", time.Now().UTC().Format(time.RFC3339Nano)).
		Where(key(d.Endpoint, d.ID)).
		Query()
	res, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("updating %s/%s: %w", d.Endpoint, d.ID, err)
	}
	return affected(res, d.Endpoint, d.ID)
}

func (s *SQLStore) Delete(ctx context.Context, endpoint, id string) error {
	query, args := s.b.Delete(documentsTable).Where(key(endpoint, id)).Query()
	res, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("deleting %s/%s: %w", endpoint, id, err)
	}
	return affected(res, endpoint, id)
}

func affected(res stdsql.Result, endpoint, id string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("%s/%s: %w", endpoint, id, err)
	}
	if n == 0 {
		return fmt.Errorf("%s/%s: %w", endpoint, id, ErrNotFound)
	}
	return nil
}

func encode(r record.Record) (string, error) {
	buf, err := json.Marshal(r)
	if err != nil {
		return "", fmt.Errorf("encoding record: %w", err)
	}
	return string(buf), nil
}

// DB returns the underlying database so that other tables, such as the
// activity trail, can share it.
func (s *SQLStore) DB() *stdsql.DB {
	return s.db
}

package activity

import (
	"context"
	"fmt"
	"path"
	"sort"
	"strings"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/matthewbaird/erpui/internal/meta"
	"github.com/matthewbaird/erpui/internal/record"
)

// Mutation is a change applied to one record.
type Mutation struct {
	Kind     Kind
	Endpoint string
	ID       string
	Actor    string
	Tenant   string
	// Label names the record type in summaries, e.g. "Employee". The last
	// endpoint segment is used when empty.
	Label string
	// Relation is the disconnected field for KindDisconnected.
	Relation string
	Before   record.Record
	After    record.Record
}

// Indexer turns mutations into entries and writes them to a Store.
type Indexer struct {
	store Store
	log   *zap.Logger
	now   func() time.Time
	newID func() string
}

// NewIndexer creates an Indexer writing to store.
func NewIndexer(store Store, log *zap.Logger) *Indexer {
	return &Indexer{store: store, log: log, now: time.Now, newID: uuid.NewString}
}

// Index builds the entry for m.
func (ix *Indexer) Index(m Mutation) Entry {
	e := Entry{
		EventID:    ix.newID(),
		Kind:       m.Kind,
		OccurredAt: ix.now().UTC(),
		Endpoint:   m.Endpoint,
		RecordID:   m.ID,
		Actor:      m.Actor,
		Tenant:     m.Tenant,
	}
	switch m.Kind {
	case KindUpdated:
		e.Fields = Changed(m.Before, m.After)
	case KindDisconnected:
		e.Fields = []string{m.Relation}
	}
	e.Summary = summarize(m, e.Fields)
	return e
}

// Record indexes m and writes the entry. A failed write is logged; the
// mutation itself has already succeeded.
func (ix *Indexer) Record(ctx context.Context, m Mutation) {
	e := ix.Index(m)
	if err := ix.store.WriteEntries(ctx, e); err != nil {
		ix.log.Warn("writing activity entry failed",
			zap.String("endpoint", m.Endpoint),
			zap.String("id", m.ID),
			zap.Error(err))
	}
}

// Changed returns the sorted top-level keys whose values differ between
// before and after. Audit fields are ignored.
func Changed(before, after record.Record) []string {
	var keys []string
	seen := make(map[string]bool)
	check := func(k string) {
		if seen[k] || meta.IsAuditField(k) {
			return
		}
		seen[k] = true
		if !cmp.Equal(before[k], after[k]) {
			keys = append(keys, k)
		}
	}
	for k := range before {
		check(k)
	}
	for k := range after {
		check(k)
	}
	sort.Strings(keys)
	return keys
}

func summarize(m Mutation, fields []string) string {
	label := m.Label
	if label == "" {
		label = path.Base(m.Endpoint)
	}
	subject := label + " " + m.ID
	switch m.Kind {
	case KindUpdated:
		if len(fields) == 0 {
			return fmt.Sprintf("%s saved %s without changes", m.Actor, subject)
		}
		return fmt.Sprintf("%s updated %s (%s)", m.Actor, subject, strings.Join(fields, ", "))
	case KindDisconnected:
		return fmt.Sprintf("%s disconnected %s from %s", m.Actor, m.Relation, subject)
	}
	return fmt.Sprintf("%s %s %s", m.Actor, m.Kind, subject)
}

package activity

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"github.com/matthewbaird/erpui/internal/record"
)

func newTestIndexer(store Store, log *zap.Logger) *Indexer {
	ix := NewIndexer(store, log)
	ix.now = func() time.Time { return base }
	ix.newID = func() string { return "evt" }
	return ix
}

func TestChanged(t *testing.T) {
	before := record.Record{
		"id":        "emp-1",
		"salary":    5200.0,
		"status":    "active",
		"tags":      []any{"a"},
		"updatedAt": "2024-01-01T00:00:00Z",
	}
	after := record.Record{
		"id":        "emp-1",
		"salary":    5400.0,
		"status":    "active",
		"tags":      []any{"a"},
		"note":      "raise",
		"updatedAt": "2024-03-05T10:00:00Z",
	}
	if diff := cmp.Diff([]string{"note", "salary"}, Changed(before, after)); diff != "" {
		t.Errorf("Changed mismatch (-want +got):\n%s", diff)
	}
	assert.Empty(t, Changed(before, before.Clone()))
}

func TestIndexer_Summaries(t *testing.T) {
	ix := newTestIndexer(NewMemoryStore(), zap.NewNop())
	tests := []struct {
		name string
		m    Mutation
		want string
	}{
		{
			name: "created",
			m:    Mutation{Kind: KindCreated, Endpoint: "/api/hr/employees", ID: "emp-9", Actor: "alice", Label: "Employee"},
			want: "alice created Employee emp-9",
		},
		{
			name: "updated",
			m: Mutation{Kind: KindUpdated, Endpoint: "/api/hr/employees", ID: "emp-1", Actor: "bob", Label: "Employee",
				Before: record.Record{"salary": 1.0}, After: record.Record{"salary": 2.0}},
			want: "bob updated Employee emp-1 (salary)",
		},
		{
			name: "saved unchanged",
			m:    Mutation{Kind: KindUpdated, Endpoint: "/api/hr/employees", ID: "emp-1", Actor: "bob", Label: "Employee"},
			want: "bob saved Employee emp-1 without changes",
		},
		{
			name: "disconnected",
			m:    Mutation{Kind: KindDisconnected, Endpoint: "/api/hr/employees", ID: "emp-1", Actor: "alice", Label: "Employee", Relation: "department"},
			want: "alice disconnected department from Employee emp-1",
		},
		{
			name: "label from endpoint",
			m:    Mutation{Kind: KindDeleted, Endpoint: "/api/hr/payroll-variables", ID: "v1", Actor: "alice"},
			want: "alice deleted payroll-variables v1",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := ix.Index(tt.m)
			assert.Equal(t, tt.want, e.Summary)
			assert.Equal(t, base, e.OccurredAt)
			assert.Equal(t, tt.m.Kind, e.Kind)
		})
	}
}

type failingStore struct{ MemoryStore }

func (*failingStore) WriteEntries(context.Context, ...Entry) error {
	return errors.New("disk full")
}

func TestIndexer_RecordLogsWriteFailure(t *testing.T) {
	core, logs := observer.New(zap.WarnLevel)
	ix := newTestIndexer(&failingStore{}, zap.New(core))

	ix.Record(context.Background(), Mutation{Kind: KindCreated, Endpoint: "/api/hr/employees", ID: "emp-1", Actor: "alice"})

	entries := logs.FilterMessage("writing activity entry failed").All()
	require.Len(t, entries, 1)
	assert.Equal(t, "emp-1", entries[0].ContextMap()["id"])
}

func TestIndexer_RecordWrites(t *testing.T) {
	store := NewMemoryStore()
	ix := newTestIndexer(store, zap.NewNop())
	ix.Record(context.Background(), Mutation{Kind: KindCreated, Endpoint: "/api/hr/employees", ID: "emp-1", Actor: "alice", Tenant: "HQ"})

	got, _, _, err := store.QueryByRecord(context.Background(), "/api/hr/employees", "emp-1", QueryOptions{})
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "HQ", got[0].Tenant)
	assert.Equal(t, "evt", got[0].EventID)
}

package handler

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/matthewbaird/erpui/internal/record"
)

func TestStores(t *testing.T) {
	stores := map[string]func(t *testing.T) Store{
		"memory": func(*testing.T) Store { return NewMemoryStore() },
		"sqlite": func(t *testing.T) Store {
			s, err := OpenSQLite(context.Background(), filepath.Join(t.TempDir(), "dev.db"))
			require.NoError(t, err)
			t.Cleanup(func() { s.Close() })
			return s
		},
	}
	for name, open := range stores {
		t.Run(name, func(t *testing.T) {
			testStore(t, open(t))
		})
	}
}

func testStore(t *testing.T, s Store) {
	ctx := context.Background()
	const ep = "/api/hr/departments"

	for _, id := range []string{"d2", "d1", "d3"} {
		require.NoError(t, s.Insert(ctx, Document{Endpoint: ep, ID: id, Data: record.Record{"id": id, "name": "dept " + id}}))
	}
	require.NoError(t, s.Insert(ctx, Document{Endpoint: "/api/other", ID: "d1", Tenant: "AL", Data: record.Record{"id": "d1"}}))

	err := s.Insert(ctx, Document{Endpoint: ep, ID: "d1", Data: record.Record{}})
	require.ErrorIs(t, err, ErrConflict)

	docs, err := s.List(ctx, ep)
	require.NoError(t, err)
	var order []string
	for _, d := range docs {
		order = append(order, d.ID)
	}
	assert.Equal(t, []string{"d2", "d1", "d3"}, order, "insertion order")

	got, err := s.Get(ctx, "/api/other", "d1")
	require.NoError(t, err)
	assert.Equal(t, "AL", got.Tenant)

	got, err = s.Get(ctx, ep, "d1")
	require.NoError(t, err)
	got.Data["name"] = "Finance"
	got.Data["meta"] = map[string]any{"cost": 12.5}
	require.NoError(t, s.Update(ctx, got))

	got, err = s.Get(ctx, ep, "d1")
	require.NoError(t, err)
	assert.Equal(t, "Finance", got.Data["name"])
	cost, _ := got.Data.Get("meta.cost")
	assert.Equal(t, 12.5, cost)

	require.ErrorIs(t, s.Update(ctx, Document{Endpoint: ep, ID: "nope", Data: record.Record{}}), ErrNotFound)
	require.NoError(t, s.Delete(ctx, ep, "d2"))
	require.ErrorIs(t, s.Delete(ctx, ep, "d2"), ErrNotFound)
	_, err = s.Get(ctx, ep, "d2")
	require.ErrorIs(t, err, ErrNotFound)

	docs, err = s.List(ctx, ep)
	require.NoError(t, err)
	assert.Len(t, docs, 2)
}

func TestMemoryStoreReturnsCopies(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	in := record.Record{"id": "a", "name": "x"}
	require.NoError(t, s.Insert(ctx, Document{Endpoint: "/e", ID: "a", Data: in}))
	in["name"] = "changed"

	got, err := s.Get(ctx, "/e", "a")
	require.NoError(t, err)
	assert.Equal(t, "x", got.Data["name"])
}

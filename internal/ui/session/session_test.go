package session

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/matthewbaird/erpui/internal/form"
	"github.com/matthewbaird/erpui/internal/meta"
)

func newForm() *form.Orchestrator {
	return form.NewCreate(&meta.SchemaMeta{Name: "departments", APIEndpoint: "/api/hr/departments"}, form.Deps{})
}

func TestManagerExpiry(t *testing.T) {
	now := time.Date(2024, 3, 5, 10, 0, 0, 0, time.UTC)
	m := NewManager(time.Hour, 10*time.Minute)
	m.now = func() time.Time { return now }

	s := m.Create(newForm(), "")
	assert.Equal(t, "departments", s.Schema)

	now = now.Add(9 * time.Minute)
	got, err := m.Get(s.ID)
	require.NoError(t, err)
	assert.Same(t, s, got)

	now = now.Add(9 * time.Minute)
	_, err = m.Get(s.ID)
	require.NoError(t, err, "Get refreshes the idle timer")

	now = now.Add(11 * time.Minute)
	_, err = m.Get(s.ID)
	require.ErrorIs(t, err, ErrNotFound)
	assert.Zero(t, m.Len())
}

func TestManagerCleanup(t *testing.T) {
	now := time.Date(2024, 3, 5, 10, 0, 0, 0, time.UTC)
	m := NewManager(30*time.Minute, 20*time.Minute)
	m.now = func() time.Time { return now }

	old := m.Create(newForm(), "")
	now = now.Add(15 * time.Minute)
	fresh := m.Create(newForm(), old.ID)
	assert.Equal(t, old.ID, fresh.Parent)

	now = now.Add(10 * time.Minute)
	assert.Equal(t, 1, m.Cleanup())
	_, err := m.Get(fresh.ID)
	require.NoError(t, err)

	m.Remove(fresh.ID)
	_, err = m.Get(fresh.ID)
	require.ErrorIs(t, err, ErrNotFound)
}

func TestRunStopsWithContext(t *testing.T) {
	defer goleak.VerifyNone(t)
	m := NewManager(time.Hour, time.Hour)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		m.Run(ctx, time.Millisecond)
		close(done)
	}()
	cancel()
	<-done
}

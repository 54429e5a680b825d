package seed

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"github.com/matthewbaird/erpui/internal/handler"
	"github.com/matthewbaird/erpui/internal/meta"
	"github.com/matthewbaird/erpui/internal/record"
)

func TestSeedHR(t *testing.T) {
	ctx := context.Background()
	store := handler.NewMemoryStore()
	core, logs := observer.New(zap.InfoLevel)
	log := zap.New(core)

	require.NoError(t, SeedHR(ctx, store, log))

	counts := map[string]int{}
	for _, ep := range []string{Departments, Employees, PayrollBatches, Payslips, LeaveTypes, PayrollVariables} {
		docs, err := store.List(ctx, ep)
		require.NoError(t, err)
		counts[ep] = len(docs)
	}
	assert.Equal(t, map[string]int{
		Departments: 3, Employees: 4, PayrollBatches: 2, Payslips: 4, LeaveTypes: 4, PayrollVariables: 4,
	}, counts)

	lt, err := store.Get(ctx, LeaveTypes, "lt-br-annual")
	require.NoError(t, err)
	assert.Equal(t, "BR", lt.Tenant)

	ps, err := store.Get(ctx, Payslips, "ps-4")
	require.NoError(t, err)
	assert.NotContains(t, ps.Data, "payrollBatch")
	assert.Equal(t, "system", ps.Data[meta.FieldCreatedBy])

	require.NoError(t, SeedHR(ctx, store, log))
	assert.Equal(t, 1, logs.FilterMessage("hr data already seeded, skipping").Len())
	docs, err := store.List(ctx, Departments)
	require.NoError(t, err)
	assert.Len(t, docs, 3)
}

// The seeded records must pass the same checks the API applies to writes.
func TestSeedIsValid(t *testing.T) {
	ctx := context.Background()
	l, err := meta.NewLoader()
	require.NoError(t, err)
	schemas, err := l.Builtin()
	require.NoError(t, err)
	reg := meta.NewRegistry()
	require.NoError(t, reg.Replace(schemas))

	store := handler.NewMemoryStore()
	require.NoError(t, SeedHR(ctx, store, zap.NewNop()))

	for _, s := range reg.All() {
		docs, err := store.List(ctx, s.APIEndpoint)
		require.NoError(t, err)
		require.NotEmpty(t, docs, s.Name)
		for _, d := range docs {
			for _, f := range s.Fields {
				in, ok := f.Relation()
				if !ok || in.Endpoint == "" {
					continue
				}
				v, ok := d.Data.Get(f.Key)
				if !ok {
					continue
				}
				rel, ok := record.AsRecord(v)
				require.True(t, ok)
				_, err := store.Get(ctx, in.Endpoint, rel.ID())
				assert.NoError(t, err, "%s %s.%s", s.Name, d.ID, f.Key)
			}
		}
	}
}

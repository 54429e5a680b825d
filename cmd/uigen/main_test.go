package main

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/matthewbaird/erpui/internal/meta"
)

func TestExport(t *testing.T) {
	loader, err := meta.NewLoader()
	require.NoError(t, err)
	schemas, err := loader.Builtin()
	require.NoError(t, err)

	dir := filepath.Join(t.TempDir(), "out")
	n, err := export(schemas, dir)
	require.NoError(t, err)
	assert.Equal(t, 5, n)

	raw, err := os.ReadFile(filepath.Join(dir, "index.json"))
	require.NoError(t, err)
	var index []meta.IndexEntry
	require.NoError(t, json.Unmarshal(raw, &index))
	require.Len(t, index, 5)

	var leave meta.IndexEntry
	for _, e := range index {
		if e.Name == "leave_types" {
			leave = e
		}
	}
	assert.Equal(t, "/api/hr/leave-types", leave.Endpoint)
	assert.True(t, leave.ServerSide)

	raw, err = os.ReadFile(filepath.Join(dir, leave.File))
	require.NoError(t, err)
	var doc meta.SchemaDoc
	require.NoError(t, json.Unmarshal(raw, &doc))
	s, err := doc.Schema()
	require.NoError(t, err)
	assert.True(t, s.TenantScoped)
}

func TestExportRejectsInvalidSchema(t *testing.T) {
	_, err := export([]*meta.SchemaMeta{{Name: "a"}}, t.TempDir())
	assert.ErrorContains(t, err, "validating schemas")
}

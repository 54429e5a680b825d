package main

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/matthewbaird/erpui/internal/meta"
)

func builtinFiles(t *testing.T) map[string][]byte {
	t.Helper()
	loader, err := meta.NewLoader()
	require.NoError(t, err)
	schemas, err := loader.Builtin()
	require.NoError(t, err)
	files, err := meta.Export(schemas)
	require.NoError(t, err)
	return files
}

func write(t *testing.T, dir string, files map[string][]byte) {
	t.Helper()
	for name, data := range files {
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), data, 0o644))
	}
}

func TestCheck(t *testing.T) {
	files := builtinFiles(t)
	dir := t.TempDir()
	write(t, dir, files)

	d, err := check(files, dir)
	require.NoError(t, err)
	assert.True(t, d.Clean())

	require.NoError(t, os.Remove(filepath.Join(dir, "payslips.json")))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "employees.json"), []byte("{}\n"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "contracts.json"), []byte("{}\n"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("ignored"), 0o644))

	d, err = check(files, dir)
	require.NoError(t, err)
	want := Drift{
		Missing: []string{"payslips.json"},
		Stale:   []string{"employees.json"},
		Extra:   []string{"contracts.json"},
	}
	if diff := cmp.Diff(want, d); diff != "" {
		t.Errorf("drift mismatch (-want +got):\n%s", diff)
	}
}

func TestCheckMissingDir(t *testing.T) {
	files := builtinFiles(t)
	d, err := check(files, filepath.Join(t.TempDir(), "nope"))
	require.NoError(t, err)
	assert.Len(t, d.Missing, len(files))
	assert.Empty(t, d.Extra)
}

func TestRun(t *testing.T) {
	dir := t.TempDir()
	var out bytes.Buffer
	err := run(&out, "", dir)
	require.ErrorIs(t, err, errDrift)
	assert.Contains(t, out.String(), "missing: departments.json")

	write(t, dir, builtinFiles(t))
	out.Reset()
	require.NoError(t, run(&out, "", dir))
	assert.Contains(t, out.String(), "Exported schemas are up to date.")
}

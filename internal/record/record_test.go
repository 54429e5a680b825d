package record

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGetNestedPath(t *testing.T) {
	r := Record{"payrollBatch": map[string]any{"id": "b1", "name": "March"}}

	v, ok := r.Get("payrollBatch.name")
	require.True(t, ok)
	assert.Equal(t, "March", v)

	_, ok = r.Get("payrollBatch.missing")
	assert.False(t, ok)

	_, ok = r.Get("employee.id")
	assert.False(t, ok)
}

func TestGetThroughScalar(t *testing.T) {
	r := Record{"employee": "not-an-object"}
	_, ok := r.Get("employee.id")
	assert.False(t, ok)
}

func TestSetCreatesIntermediates(t *testing.T) {
	r := Record{}
	r.Set("employee.id", "e1")

	v, ok := r.Get("employee.id")
	require.True(t, ok)
	assert.Equal(t, "e1", v)

	r.Set("employee", "flat")
	r.Set("employee.id", "e2")
	v, _ = r.Get("employee.id")
	assert.Equal(t, "e2", v)
}

func TestDelete(t *testing.T) {
	r := Record{"a": map[string]any{"b": 1, "c": 2}}
	r.Delete("a.b")
	_, ok := r.Get("a.b")
	assert.False(t, ok)
	_, ok = r.Get("a.c")
	assert.True(t, ok)

	r.Delete("x.y")
}

func TestCloneIsDeep(t *testing.T) {
	r := Record{"a": map[string]any{"b": 1}, "list": []any{map[string]any{"id": "1"}}}
	cp := r.Clone()
	cp.Set("a.b", 2)

	v, _ := r.Get("a.b")
	assert.Equal(t, 1, v)
}

func TestEqualNumbers(t *testing.T) {
	assert.True(t, Equal(3, 3.0))
	assert.True(t, Equal("x", "x"))
	assert.False(t, Equal("1", nil))
	assert.False(t, Equal(1, 2))
}

func TestEqualBooleansAreTypeStrict(t *testing.T) {
	assert.True(t, Equal(true, true))
	assert.True(t, Equal(false, false))
	assert.False(t, Equal(true, "true"))
	assert.False(t, Equal("false", false))
	assert.False(t, Equal(true, 1))
	assert.False(t, Equal(false, nil))
}

func TestIsEmpty(t *testing.T) {
	assert.True(t, IsEmpty(nil))
	assert.True(t, IsEmpty(""))
	assert.True(t, IsEmpty(map[string]any{"name": "x"}))
	assert.False(t, IsEmpty(map[string]any{"id": "1"}))
	assert.False(t, IsEmpty(0.0))
	assert.False(t, IsEmpty(false))
}

func TestStringify(t *testing.T) {
	assert.Equal(t, "12", Stringify(12.0))
	assert.Equal(t, "1.5", Stringify(1.5))
	assert.Equal(t, "", Stringify(nil))
	assert.Equal(t, "true", Stringify(true))
}

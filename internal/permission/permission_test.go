package permission

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func payroll() Module {
	return Module{
		Name:    "payroll",
		FourEye: true,
		Roles: map[string]Grant{
			"admin":   {View: true, Edit: true, Delete: true, Approve: true},
			"manager": {View: true, Edit: true, Approve: true},
			"clerk":   {View: true},
		},
	}
}

func TestFourEyeOffClearsOnlyApprove(t *testing.T) {
	m := NewMatrix(payroll(), Module{Name: "hr", FourEye: true, Roles: map[string]Grant{"admin": {View: true, Approve: true}}})

	mod, err := m.SetFourEye("payroll", false)
	require.NoError(t, err)
	assert.False(t, mod.FourEye)
	assert.Equal(t, map[string]Grant{
		"admin":   {View: true, Edit: true, Delete: true},
		"manager": {View: true, Edit: true},
		"clerk":   {View: true},
	}, mod.Roles)

	assert.True(t, m.Allowed("hr", "admin", Approve), "other modules are untouched")
	assert.False(t, m.Allowed("payroll", "admin", Approve))
	assert.True(t, m.Allowed("payroll", "admin", Delete))

	mod, err = m.SetFourEye("payroll", true)
	require.NoError(t, err)
	assert.False(t, mod.Roles["admin"].Approve, "switching on restores nothing")
}

func TestSetGrant(t *testing.T) {
	m := NewMatrix(payroll())

	_, err := m.SetGrant("payroll", "clerk", Grant{View: true, Approve: true})
	require.NoError(t, err)
	assert.True(t, m.Allowed("payroll", "clerk", Approve))

	_, err = m.SetGrant("payroll", "intern", Grant{View: true})
	require.ErrorIs(t, err, ErrUnknownRole)
	_, err = m.SetGrant("projects", "clerk", Grant{})
	require.ErrorIs(t, err, ErrUnknownModule)

	_, err = m.SetFourEye("payroll", false)
	require.NoError(t, err)
	_, err = m.SetGrant("payroll", "clerk", Grant{View: true, Approve: true})
	require.ErrorIs(t, err, ErrFourEyeDisabled)
}

func TestNewMatrixClearsApproveWithoutFourEye(t *testing.T) {
	mod := payroll()
	mod.FourEye = false
	m := NewMatrix(mod)
	assert.False(t, m.Allowed("payroll", "manager", Approve))
	assert.True(t, mod.Roles["manager"].Approve, "input is not modified")
}

func TestModuleReturnsCopy(t *testing.T) {
	m := NewMatrix(payroll())
	mod, err := m.Module("payroll")
	require.NoError(t, err)
	mod.Roles["clerk"] = Grant{Delete: true}
	assert.False(t, m.Allowed("payroll", "clerk", Delete))

	assert.Equal(t, []string{"admin", "clerk", "manager"}, mod.RoleNames())
	assert.False(t, m.Allowed("payroll", "nobody", View))
	assert.False(t, m.Allowed("nothing", "admin", View))

	_, err = m.Module("nothing")
	require.ErrorIs(t, err, ErrUnknownModule)
}

func TestModulesSorted(t *testing.T) {
	m := NewMatrix(payroll(), Module{Name: "hr"}, Module{Name: "compliance"})
	var names []string
	for _, mod := range m.Modules() {
		names = append(names, mod.Name)
	}
	assert.Equal(t, []string{"compliance", "hr", "payroll"}, names)
}

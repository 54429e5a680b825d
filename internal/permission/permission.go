// Package permission holds the per-module role matrix edited on the role
// settings screen, including each module's Four-Eye switch.
package permission

import (
	"cmp"
	"errors"
	"fmt"
	"slices"
	"sync"
)

var (
	ErrUnknownModule   = errors.New("unknown module")
	ErrUnknownRole     = errors.New("unknown role")
	ErrFourEyeDisabled = errors.New("approve requires the Four-Eye principle")
)

// Action is one permission column.
type Action string

const (
	View    Action = "view"
	Edit    Action = "edit"
	Delete  Action = "delete"
	Approve Action = "approve"
)

// Grant is one role's row in a module.
type Grant struct {
	View    bool `json:"view" yaml:"view"`
	Edit    bool `json:"edit" yaml:"edit"`
	Delete  bool `json:"delete" yaml:"delete"`
	Approve bool `json:"approve" yaml:"approve"`
}

// Allows reports whether the grant includes a.
func (g Grant) Allows(a Action) bool {
	switch a {
	case View:
		return g.View
	case Edit:
		return g.Edit
	case Delete:
		return g.Delete
	case Approve:
		return g.Approve
	}
	return false
}

// Module is the permission block of one ERP module.
type Module struct {
	Name string `json:"name" yaml:"name"`
	// FourEye requires a second user's approval for sensitive actions. With
	// it off no role may approve.
	FourEye bool             `json:"fourEye" yaml:"fourEye"`
	Roles   map[string]Grant `json:"roles" yaml:"roles"`
}

func (m Module) clone() Module {
	out := m
	out.Roles = make(map[string]Grant, len(m.Roles))
	for r, g := range m.Roles {
		out.Roles[r] = g
	}
	return out
}

// RoleNames returns the module's roles in name order.
func (m Module) RoleNames() []string {
	out := make([]string, 0, len(m.Roles))
	for r := range m.Roles {
		out = append(out, r)
	}
	slices.Sort(out)
	return out
}

// Matrix is the permission matrix of every module. It is safe for
// concurrent use.
type Matrix struct {
	mu      sync.RWMutex
	modules map[string]Module
}

// NewMatrix creates a matrix from modules. Modules declared with Four-Eye
// off have their approve grants cleared.
func NewMatrix(modules ...Module) *Matrix {
	m := &Matrix{modules: make(map[string]Module, len(modules))}
	for _, mod := range modules {
		mod = mod.clone()
		if !mod.FourEye {
			clearApprove(&mod)
		}
		m.modules[mod.Name] = mod
	}
	return m
}

// Modules returns every module in name order.
func (m *Matrix) Modules() []Module {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]Module, 0, len(m.modules))
	for _, mod := range m.modules {
		out = append(out, mod.clone())
	}
	slices.SortFunc(out, func(a, b Module) int { return cmp.Compare(a.Name, b.Name) })
	return out
}

// Module returns a copy of the named module.
func (m *Matrix) Module(name string) (Module, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	mod, ok := m.modules[name]
	if !ok {
		return Module{}, fmt.Errorf("%w: %s", ErrUnknownModule, name)
	}
	return mod.clone(), nil
}

// SetFourEye switches the Four-Eye principle of a module. Switching it off
// sets approve to false for every role and leaves the other grants alone.
// Switching it on restores nothing; approvals are granted again per role.
func (m *Matrix) SetFourEye(name string, on bool) (Module, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	mod, ok := m.modules[name]
	if !ok {
		return Module{}, fmt.Errorf("%w: %s", ErrUnknownModule, name)
	}
	mod = mod.clone()
	mod.FourEye = on
	if !on {
		clearApprove(&mod)
	}
	m.modules[name] = mod
	return mod.clone(), nil
}

func clearApprove(mod *Module) {
	for r, g := range mod.Roles {
		g.Approve = false
		mod.Roles[r] = g
	}
}

// SetGrant replaces one role's grant in a module. The role must already
// exist in the module.
func (m *Matrix) SetGrant(name, role string, g Grant) (Module, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	mod, ok := m.modules[name]
	if !ok {
		return Module{}, fmt.Errorf("%w: %s", ErrUnknownModule, name)
	}
	if _, ok := mod.Roles[role]; !ok {
		return Module{}, fmt.Errorf("%w: %s in %s", ErrUnknownRole, role, name)
	}
	if g.Approve && !mod.FourEye {
		return Module{}, fmt.Errorf("%s: %w", name, ErrFourEyeDisabled)
	}
	mod = mod.clone()
	mod.Roles[role] = g
	m.modules[name] = mod
	return mod.clone(), nil
}

// Allowed reports whether role may perform a in module. Unknown modules
// and roles allow nothing.
func (m *Matrix) Allowed(module, role string, a Action) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	mod, ok := m.modules[module]
	if !ok {
		return false
	}
	return mod.Roles[role].Allows(a)
}

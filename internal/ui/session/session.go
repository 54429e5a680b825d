// Package session keeps the open form sessions of the UI server.
package session

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/matthewbaird/erpui/internal/form"
)

// ErrNotFound is returned for unknown or expired sessions.
var ErrNotFound = errors.New("form session not found")

// Session is one open form.
type Session struct {
	ID           string    `json:"id"`
	Schema       string    `json:"schema"`
	Parent       string    `json:"parent,omitempty"`
	CreatedAt    time.Time `json:"createdAt"`
	LastActiveAt time.Time `json:"lastActiveAt"`

	Form *form.Orchestrator `json:"-"`
}

func (s *Session) expired(now time.Time, maxAge, idle time.Duration) bool {
	return now.Sub(s.CreatedAt) > maxAge || now.Sub(s.LastActiveAt) > idle
}

// Manager handles session creation, lookup and cleanup.
type Manager struct {
	mu          sync.Mutex
	sessions    map[string]*Session
	maxAge      time.Duration
	idleTimeout time.Duration
	now         func() time.Time
}

// NewManager creates a session manager with the given timeouts.
func NewManager(maxAge, idleTimeout time.Duration) *Manager {
	return &Manager{
		sessions:    make(map[string]*Session),
		maxAge:      maxAge,
		idleTimeout: idleTimeout,
		now:         time.Now,
	}
}

// Create stores f under a new session id. parent is the id of the session
// that opened f as a nested form, or "".
func (m *Manager) Create(f *form.Orchestrator, parent string) *Session {
	now := m.now()
	s := &Session{
		ID:           uuid.NewString(),
		Schema:       f.Schema().Name,
		Parent:       parent,
		CreatedAt:    now,
		LastActiveAt: now,
		Form:         f,
	}
	m.mu.Lock()
	m.sessions[s.ID] = s
	m.mu.Unlock()
	return s
}

// Get returns the session and marks it active. Expired sessions are removed
// and reported as not found.
func (m *Manager) Get(id string) (*Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	now := m.now()
	if s.expired(now, m.maxAge, m.idleTimeout) {
		delete(m.sessions, id)
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	s.LastActiveAt = now
	return s, nil
}

// Remove deletes a session.
func (m *Manager) Remove(id string) {
	m.mu.Lock()
	delete(m.sessions, id)
	m.mu.Unlock()
}

// Len returns the number of stored sessions, expired ones included.
func (m *Manager) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.sessions)
}

// Cleanup removes all expired and idle sessions and returns how many went.
func (m *Manager) Cleanup() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	now := m.now()
	n := 0
	for id, s := range m.sessions {
		if s.expired(now, m.maxAge, m.idleTimeout) {
			delete(m.sessions, id)
			n++
		}
	}
	return n
}

// Run calls Cleanup every interval until ctx is done.
func (m *Manager) Run(ctx context.Context, interval time.Duration) {
	t := time.NewTicker(interval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			m.Cleanup()
		}
	}
}

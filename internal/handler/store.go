// Package handler is the development REST API: a schema-less document store
// served per entity endpoint with the list, detail, create, update and
// delete verbs the UI engine expects, plus the JSON and middleware helpers
// shared by every HTTP surface of the server.
package handler

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/matthewbaird/erpui/internal/record"
)

var (
	ErrNotFound = errors.New("record not found")
	ErrConflict = errors.New("record already exists")
)

// Document is one stored record.
type Document struct {
	Endpoint string
	ID       string
	// Tenant is the x-tenant-code the record was created under, if any.
	Tenant string
	Data   record.Record
}

// Store persists documents per endpoint. List returns documents in
// insertion order.
type Store interface {
	List(ctx context.Context, endpoint string) ([]Document, error)
	Get(ctx context.Context, endpoint, id string) (Document, error)
	Insert(ctx context.Context, d Document) error
	Update(ctx context.Context, d Document) error
	Delete(ctx context.Context, endpoint, id string) error
}

// MemoryStore implements Store using in-memory slices.
// Intended for tests and throwaway demos.
type MemoryStore struct {
	mu   sync.RWMutex
	docs map[string][]Document
}

// NewMemoryStore creates an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{docs: make(map[string][]Document)}
}

func (s *MemoryStore) List(_ context.Context, endpoint string) ([]Document, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]Document, 0, len(s.docs[endpoint]))
	for _, d := range s.docs[endpoint] {
		out = append(out, cloneDoc(d))
	}
	return out, nil
}

func (s *MemoryStore) Get(_ context.Context, endpoint, id string) (Document, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if i := s.index(endpoint, id); i >= 0 {
		return cloneDoc(s.docs[endpoint][i]), nil
	}
	return Document{}, fmt.Errorf("%s/%s: %w", endpoint, id, ErrNotFound)
}

func (s *MemoryStore) Insert(_ context.Context, d Document) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.index(d.Endpoint, d.ID) >= 0 {
		return fmt.Errorf("%s/%s: %w", d.Endpoint, d.ID, ErrConflict)
	}
	s.docs[d.Endpoint] = append(s.docs[d.Endpoint], cloneDoc(d))
	return nil
}

func (s *MemoryStore) Update(_ context.Context, d Document) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	i := s.index(d.Endpoint, d.ID)
	if i < 0 {
		return fmt.Errorf("%s/%s: %w", d.Endpoint, d.ID, ErrNotFound)
	}
	s.docs[d.Endpoint][i] = cloneDoc(d)
	return nil
}

func (s *MemoryStore) Delete(_ context.Context, endpoint, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	i := s.index(endpoint, id)
	if i < 0 {
		return fmt.Errorf("%s/%s: %w", endpoint, id, ErrNotFound)
	}
	docs := s.docs[endpoint]
	s.docs[endpoint] = append(docs[:i:i], docs[i+1:]...)
	return nil
}

// index returns the position of id in endpoint, or -1. Callers hold s.mu.
func (s *MemoryStore) index(endpoint, id string) int {
	for i, d := range s.docs[endpoint] {
		if d.ID == id {
			return i
		}
	}
	return -1
}

func cloneDoc(d Document) Document {
	d.Data = d.Data.Clone()
	return d
}

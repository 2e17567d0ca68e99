// Package store provides the session registry for FormPipe.
//
// Sessions live for the duration of the interaction only; there is no
// cross-restart persistence. The registry needs nothing beyond exclusive
// access discipline: insert on create, lookup by id, no concurrent same-id
// writers.
package store

import (
	"errors"
	"fmt"
	"sync"

	"github.com/formpipe/formpipe/internal/models"
)

// Error variables for registry operations.
var (
	ErrSessionNotFound = errors.New("session not found")
	ErrSessionExists   = errors.New("session already exists")
)

// Store defines the session registry consumed by the decision engine. It is
// injected as a capability, never reached through a process-wide singleton.
type Store interface {
	// CreateSession inserts a new session; the id must be unused.
	CreateSession(sess *models.Session) error

	// GetSession returns the session with the given id.
	GetSession(id string) (*models.Session, error)

	// SaveSession writes back a mutated session.
	SaveSession(sess *models.Session) error

	// DeleteSession removes a session. Deleting an unknown id is a no-op.
	DeleteSession(id string) error
}

// InMemoryStore is the in-memory session registry. Sessions across different
// ids are fully independent; the map itself is guarded by a single RWMutex.
type InMemoryStore struct {
	mu       sync.RWMutex
	sessions map[string]*models.Session
}

var _ Store = (*InMemoryStore)(nil)

// NewInMemoryStore creates an empty session registry.
func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{sessions: make(map[string]*models.Session)}
}

// CreateSession inserts a new session, rejecting duplicate ids.
func (s *InMemoryStore) CreateSession(sess *models.Session) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.sessions[sess.ID]; exists {
		return fmt.Errorf("%w: %s", ErrSessionExists, sess.ID)
	}
	s.sessions[sess.ID] = sess
	return nil
}

// GetSession looks up a session by id.
func (s *InMemoryStore) GetSession(id string) (*models.Session, error) {
	s.mu.RLock()
	sess, ok := s.sessions[id]
	s.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrSessionNotFound, id)
	}
	return sess, nil
}

// SaveSession writes back a mutated session, inserting it if absent.
func (s *InMemoryStore) SaveSession(sess *models.Session) error {
	s.mu.Lock()
	s.sessions[sess.ID] = sess
	s.mu.Unlock()
	return nil
}

// DeleteSession removes a session from the registry.
func (s *InMemoryStore) DeleteSession(id string) error {
	s.mu.Lock()
	delete(s.sessions, id)
	s.mu.Unlock()
	return nil
}

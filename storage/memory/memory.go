// Package memory provides an in-memory profile store.
// This implementation is primarily intended for testing and development.
package memory

import (
	"context"
	"fmt"
	"strconv"
	"sync"

	"github.com/mihaimyh/arcana/pkg/entitlement"
)

// Store implements entitlement.AttributeStore, entitlement.Incrementer and a
// guest flag store using in-memory maps.
type Store struct {
	mu    sync.RWMutex
	users map[string]entitlement.Attributes
	flags map[string]struct{}
}

// New creates a new in-memory store.
func New() *Store {
	return &Store{
		users: make(map[string]entitlement.Attributes),
		flags: make(map[string]struct{}),
	}
}

// GetAttributes implements entitlement.AttributeStore
func (s *Store) GetAttributes(_ context.Context, userID string) (entitlement.Attributes, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	// Return a copy to prevent external mutations
	out := make(entitlement.Attributes, len(s.users[userID]))
	for k, v := range s.users[userID] {
		out[k] = v
	}
	return out, nil
}

// SetAttributes implements entitlement.AttributeStore
func (s *Store) SetAttributes(_ context.Context, userID string, attrs entitlement.Attributes) error {
	if userID == "" {
		return entitlement.ErrInvalidUserID
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	user, ok := s.users[userID]
	if !ok {
		user = make(entitlement.Attributes, len(attrs))
		s.users[userID] = user
	}
	for k, v := range attrs {
		user[k] = v
	}
	return nil
}

// PatchAttributes merges attrs into an existing profile. It reports false
// and writes nothing when the user has no profile.
func (s *Store) PatchAttributes(_ context.Context, userID string, attrs entitlement.Attributes) (bool, error) {
	if userID == "" {
		return false, entitlement.ErrInvalidUserID
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	user, ok := s.users[userID]
	if !ok || len(user) == 0 {
		return false, nil
	}
	for k, v := range attrs {
		user[k] = v
	}
	return true, nil
}

// DeleteAttributes removes the user's profile.
func (s *Store) DeleteAttributes(_ context.Context, userID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.users, userID)
	return nil
}

// IncrementAttribute implements entitlement.Incrementer
func (s *Store) IncrementAttribute(_ context.Context, userID, name string, delta int) (int, error) {
	if userID == "" {
		return 0, entitlement.ErrInvalidUserID
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	user, ok := s.users[userID]
	if !ok {
		user = make(entitlement.Attributes)
		s.users[userID] = user
	}

	current := 0
	if v := user[name]; v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return 0, fmt.Errorf("attribute %s is not numeric: %w", name, err)
		}
		current = n
	}
	current += delta
	user[name] = strconv.Itoa(current)
	return current, nil
}

// HasFlag reports whether the flag was set.
func (s *Store) HasFlag(_ context.Context, key string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.flags[key]
	return ok, nil
}

// SetFlag sets a persistent flag.
func (s *Store) SetFlag(_ context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.flags[key] = struct{}{}
	return nil
}

// Clear removes all data.
func (s *Store) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.users = make(map[string]entitlement.Attributes)
	s.flags = make(map[string]struct{})
}

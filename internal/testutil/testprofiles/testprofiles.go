// Package testprofiles provides an in-memory profile directory for tests.
package testprofiles

import (
	"context"
	"sync"

	"github.com/chirino/chat-service/internal/model"
	registrystore "github.com/chirino/chat-service/internal/registry/store"
)

// Store is a map-backed ProfileStore. Err, when set, is returned from every
// GetProfile call.
type Store struct {
	mu       sync.Mutex
	profiles map[string]model.UserProfile
	Err      error
}

// New returns a Store seeded with profiles.
func New(profiles ...model.UserProfile) *Store {
	s := &Store{profiles: map[string]model.UserProfile{}}
	for _, p := range profiles {
		s.profiles[p.Username] = p
	}
	return s
}

func (s *Store) AddProfile(_ context.Context, p model.UserProfile) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.profiles[p.Username]; ok {
		return &registrystore.AlreadyExistsError{Resource: "profile", ID: p.Username}
	}
	s.profiles[p.Username] = p
	return nil
}

func (s *Store) GetProfile(_ context.Context, username string) (*model.UserProfile, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.Err != nil {
		return nil, s.Err
	}
	p, ok := s.profiles[username]
	if !ok {
		return nil, &registrystore.NotFoundError{Resource: "profile", ID: username}
	}
	return &p, nil
}

func (s *Store) UpdateProfile(_ context.Context, p model.UserProfile) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.profiles[p.Username]; !ok {
		return &registrystore.NotFoundError{Resource: "profile", ID: p.Username}
	}
	s.profiles[p.Username] = p
	return nil
}

func (s *Store) DeleteProfile(_ context.Context, username string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.profiles[username]; !ok {
		return &registrystore.NotFoundError{Resource: "profile", ID: username}
	}
	delete(s.profiles, username)
	return nil
}

// Package memstore is an in-memory implementation of session.Store for
// tests.
package memstore

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/vuiis/prearc/pkg/prearc/internalerr"
	"github.com/vuiis/prearc/pkg/prearc/session"
)

// Store is an in-memory session store.
type Store struct {
	mu       sync.Mutex
	sessions map[session.Key]session.Data

	// Now is swappable so tests can control the touch debounce clock.
	Now func() time.Time
}

// New creates an empty in-memory store.
func New() *Store {
	return &Store{
		sessions: make(map[session.Key]session.Data),
		Now:      time.Now,
	}
}

// Close implements session.Store.
func (s *Store) Close() error { return nil }

// GetOrCreate implements session.Store.
func (s *Store) GetOrCreate(ctx context.Context, initial session.Data) (session.GetOrCreateResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if existing, ok := s.sessions[initial.Key()]; ok {
		return session.GetOrCreateResult{Session: existing, Created: false}, nil
	}
	s.sessions[initial.Key()] = initial
	return session.GetOrCreateResult{Session: initial, Created: true}, nil
}

// TouchLastBuilt implements session.Store.
func (s *Store) TouchLastBuilt(ctx context.Context, sess session.Data) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	stored, ok := s.sessions[sess.Key()]
	if !ok {
		return internalerr.ErrNotFound
	}
	now := s.Now()
	if now.Sub(stored.LastBuiltAt) <= session.TouchInterval {
		return nil
	}
	stored.LastBuiltAt = now
	s.sessions[sess.Key()] = stored
	return nil
}

// Delete implements session.Store.
func (s *Store) Delete(ctx context.Context, folderName, timestamp, projectID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for key, d := range s.sessions {
		if d.FolderName == folderName && d.Timestamp == timestamp && d.Project == projectID {
			delete(s.sessions, key)
			return nil
		}
	}
	return internalerr.ErrNotFound
}

// Get implements session.Store.
func (s *Store) Get(ctx context.Context, key session.Key) (session.Data, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	d, ok := s.sessions[key]
	return d, ok, nil
}

// List implements session.Store.
func (s *Store) List(ctx context.Context) ([]session.Data, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]session.Data, 0, len(s.sessions))
	for _, d := range s.sessions {
		out = append(out, d)
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].Timestamp > out[j].Timestamp
	})
	return out, nil
}

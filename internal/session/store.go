// Package session holds the expiry-tagged authentication artifact (token,
// customer id or cookie string) for a single supplier. Each stateful adapter
// owns its own Store; nothing is shared across suppliers or persisted.
package session

import (
	"sync"
	"time"
)

type State struct {
	Value     string
	IssuedAt  time.Time
	ExpiresAt time.Time
}

// Store is safe for concurrent use. Two searches racing through a cache miss
// may both log in; the last write wins and both end up with a usable session.
type Store struct {
	mu  sync.Mutex
	cur State
}

func NewStore() *Store {
	return &Store{}
}

// Valid returns the cached artifact if one exists and has not expired.
func (s *Store) Valid(now time.Time) (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cur.Value == "" || !now.Before(s.cur.ExpiresAt) {
		return "", false
	}
	return s.cur.Value, true
}

// Put stores a freshly obtained artifact. ttl must already account for the
// supplier's safety margin; callers never store a failed login.
func (s *Store) Put(value string, ttl time.Duration) {
	now := time.Now()
	s.mu.Lock()
	s.cur = State{Value: value, IssuedAt: now, ExpiresAt: now.Add(ttl)}
	s.mu.Unlock()
}

// Invalidate drops the cached artifact, forcing a fresh login on next use.
func (s *Store) Invalidate() {
	s.mu.Lock()
	s.cur = State{}
	s.mu.Unlock()
}

// Active reports whether a currently valid session is cached.
func (s *Store) Active() bool {
	_, ok := s.Valid(time.Now())
	return ok
}

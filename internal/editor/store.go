package editor

import (
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/hashicorp/golang-lru/v2/expirable"
	"github.com/heimdex/heimdex-overlay/internal/composition"
)

const (
	DefaultSessionTTL  = 2 * time.Hour
	DefaultMaxSessions = 64
)

// Store keeps edit sessions in memory. Sessions expire after ttl without
// access and the least recently used one is dropped when the store is full.
// Nothing is persisted.
type Store struct {
	// mu orders the renew in Get against Delete so a removed session never
	// comes back.
	mu       sync.Mutex
	sessions *expirable.LRU[string, *Session]
}

func NewStore(maxSessions int, ttl time.Duration) *Store {
	if maxSessions <= 0 {
		maxSessions = DefaultMaxSessions
	}
	if ttl <= 0 {
		ttl = DefaultSessionTTL
	}
	return &Store{
		sessions: expirable.NewLRU[string, *Session](maxSessions, nil, ttl),
	}
}

// Create starts a session over c.
func (s *Store) Create(mediaID string, c composition.Composition) (*Session, error) {
	sess, err := NewSession(uuid.NewString(), mediaID, c)
	if err != nil {
		return nil, err
	}
	s.sessions.Add(sess.ID, sess)
	return sess, nil
}

// Get returns the session and renews its expiry.
func (s *Store) Get(id string) (*Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess, ok := s.sessions.Get(id)
	if !ok {
		return nil, fmt.Errorf("%s: %w", id, ErrSessionNotFound)
	}
	s.sessions.Add(id, sess)
	return sess, nil
}

func (s *Store) Delete(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.sessions.Remove(id)
}

func (s *Store) Len() int {
	return s.sessions.Len()
}

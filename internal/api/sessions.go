package api

import (
	"errors"

	"github.com/google/uuid"
	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/rs/zerolog/log"

	"github.com/todmy/embedscope/internal/explorer"
	"github.com/todmy/embedscope/internal/metrics"
)

var ErrSessionNotFound = errors.New("session not found")

// SessionStore keeps the most recently used explorer sessions in memory
type SessionStore struct {
	cache *lru.Cache[uuid.UUID, *explorer.Session]
}

// NewSessionStore creates a store holding at most size sessions
func NewSessionStore(size int) (*SessionStore, error) {
	cache, err := lru.NewWithEvict[uuid.UUID, *explorer.Session](size, func(id uuid.UUID, _ *explorer.Session) {
		log.Debug().Str("session", id.String()).Msg("session evicted")
	})
	if err != nil {
		return nil, err
	}
	return &SessionStore{cache: cache}, nil
}

// Add stores a session under a new id
func (s *SessionStore) Add(session *explorer.Session) uuid.UUID {
	id := uuid.New()
	s.cache.Add(id, session)
	metrics.ActiveSessions.Set(float64(s.cache.Len()))
	return id
}

// Get returns the session with id
func (s *SessionStore) Get(id uuid.UUID) (*explorer.Session, error) {
	session, ok := s.cache.Get(id)
	if !ok {
		return nil, ErrSessionNotFound
	}
	return session, nil
}

// Remove deletes the session with id
func (s *SessionStore) Remove(id uuid.UUID) error {
	if !s.cache.Remove(id) {
		return ErrSessionNotFound
	}
	metrics.ActiveSessions.Set(float64(s.cache.Len()))
	return nil
}

// Len returns the number of stored sessions
func (s *SessionStore) Len() int {
	return s.cache.Len()
}

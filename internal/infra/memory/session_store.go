package memory

import (
	"context"
	"sync"

	"quiz-session-engine/internal/session"
)

// SessionStore is an in-memory implementation of app.SessionRepository.
type SessionStore struct {
	mu       sync.RWMutex
	sessions map[string]*session.Controller
}

func NewSessionStore() *SessionStore {
	return &SessionStore{
		sessions: make(map[string]*session.Controller),
	}
}

func (s *SessionStore) Put(_ context.Context, sessionID string, ctrl *session.Controller) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sessions[sessionID] = ctrl
	return nil
}

func (s *SessionStore) Get(sessionID string) (*session.Controller, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	ctrl, ok := s.sessions[sessionID]
	return ctrl, ok
}

func (s *SessionStore) Delete(_ context.Context, sessionID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.sessions, sessionID)
}

// Len returns the number of registered sessions.
func (s *SessionStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.sessions)
}

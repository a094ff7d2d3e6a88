package redis

import (
	"context"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"quiz-session-engine/internal/session"
)

// SessionStore is a Redis-aware implementation of app.SessionRepository.
// Controllers live in process; Redis only carries a liveness marker per
// session so other instances and operators can see which attempts are running.
type SessionStore struct {
	client   *redis.Client
	ttl      time.Duration
	mu       sync.RWMutex
	sessions map[string]*session.Controller
}

func NewSessionStore(client *redis.Client, ttl time.Duration) *SessionStore {
	return &SessionStore{
		client:   client,
		ttl:      ttl,
		sessions: make(map[string]*session.Controller),
	}
}

func (s *SessionStore) Put(ctx context.Context, sessionID string, ctrl *session.Controller) error {
	s.mu.Lock()
	s.sessions[sessionID] = ctrl
	s.mu.Unlock()

	marker := ctrl.QuizID() + ":" + ctrl.UserID()
	return s.client.Set(ctx, s.key(sessionID), marker, s.ttl).Err()
}

func (s *SessionStore) Get(sessionID string) (*session.Controller, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	ctrl, ok := s.sessions[sessionID]
	return ctrl, ok
}

// Touch extends the liveness marker of a running session.
func (s *SessionStore) Touch(ctx context.Context, sessionID string) error {
	if s.ttl <= 0 {
		return nil
	}
	return s.client.Expire(ctx, s.key(sessionID), s.ttl).Err()
}

func (s *SessionStore) Delete(ctx context.Context, sessionID string) {
	s.mu.Lock()
	delete(s.sessions, sessionID)
	s.mu.Unlock()
	// best-effort; the marker expires on its own
	_ = s.client.Del(ctx, s.key(sessionID)).Err()
}

func (s *SessionStore) key(sessionID string) string {
	return "quiz:session:" + sessionID
}

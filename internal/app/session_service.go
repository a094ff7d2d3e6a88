package app

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"quiz-session-engine/internal/domain"
	"quiz-session-engine/internal/session"
)

// SessionRepository abstracts where running sessions are registered (in-memory, Redis, etc).
type SessionRepository interface {
	Put(ctx context.Context, sessionID string, ctrl *session.Controller) error
	Get(sessionID string) (*session.Controller, bool)
	Delete(ctx context.Context, sessionID string)
}

// QuizRepository loads quiz content (from cache/backing store).
type QuizRepository interface {
	GetQuiz(ctx context.Context, quizID string) (domain.Quiz, error)
}

// SessionConfig carries the per-session timing settings.
type SessionConfig struct {
	DefaultTimeLimit int
	TickInterval     time.Duration
	SubmitTimeout    time.Duration
}

// StartRequest identifies the user starting an attempt and where the session is shown.
type StartRequest struct {
	QuizID      string
	UserID      string
	DisplayName string
	Origin      string
	Guard       session.ProctoringGuard
}

// SessionService contains the quiz attempt use cases.
type SessionService struct {
	sessions SessionRepository
	quizzes  QuizRepository
	grader   *Grader
	cfg      SessionConfig
	logger   *slog.Logger
	newID    func() string
	opts     []session.Option
}

func NewSessionService(sessions SessionRepository, quizzes QuizRepository, grader *Grader, cfg SessionConfig, logger *slog.Logger) *SessionService {
	if logger == nil {
		logger = slog.Default()
	}
	return &SessionService{
		sessions: sessions,
		quizzes:  quizzes,
		grader:   grader,
		cfg:      cfg,
		logger:   logger,
		newID:    uuid.NewString,
	}
}

// WithSessionOptions appends controller options applied to every started session.
func (s *SessionService) WithSessionOptions(opts ...session.Option) *SessionService {
	s.opts = append(s.opts, opts...)
	return s
}

// Start registers a new session and loads its quiz. A failed load leaves the
// session registered in PhaseLoadFailed so the caller may retry with Load.
func (s *SessionService) Start(ctx context.Context, req StartRequest) (string, *session.Controller, error) {
	id := s.newID()
	opts := append([]session.Option{session.WithLogger(s.logger.With("session_id", id))}, s.opts...)
	ctrl := session.NewController(session.Config{
		QuizID:           req.QuizID,
		UserID:           req.UserID,
		DisplayName:      req.DisplayName,
		Origin:           req.Origin,
		DefaultTimeLimit: s.cfg.DefaultTimeLimit,
		TickInterval:     s.cfg.TickInterval,
		RequestTimeout:   s.cfg.SubmitTimeout,
	}, s.quizzes, s.grader, req.Guard, opts...)

	if err := s.sessions.Put(ctx, id, ctrl); err != nil {
		ctrl.Close()
		return "", nil, err
	}
	s.logger.Info("session started", "session_id", id, "quiz_id", req.QuizID, "user_id", req.UserID)

	if _, err := ctrl.Load(ctx); err != nil {
		return id, ctrl, err
	}
	return id, ctrl, nil
}

// Get returns a running session.
func (s *SessionService) Get(sessionID string) (*session.Controller, error) {
	ctrl, ok := s.sessions.Get(sessionID)
	if !ok {
		return nil, domain.ErrSessionNotFound
	}
	return ctrl, nil
}

// End tears a session down. An unsubmitted session is abandoned: nothing is transmitted.
func (s *SessionService) End(ctx context.Context, sessionID string) {
	ctrl, ok := s.sessions.Get(sessionID)
	if !ok {
		return
	}
	phase := ctrl.Current().Phase
	ctrl.Close()
	s.sessions.Delete(ctx, sessionID)
	if phase != session.PhaseSubmitted {
		s.logger.Info("session abandoned", "session_id", sessionID, "phase", phase)
		return
	}
	s.logger.Info("session ended", "session_id", sessionID)
}

// liveness is implemented by registries that expire idle sessions.
type liveness interface {
	Touch(ctx context.Context, sessionID string) error
}

// Touch refreshes the liveness marker of a session whose client is still active.
func (s *SessionService) Touch(ctx context.Context, sessionID string) {
	l, ok := s.sessions.(liveness)
	if !ok {
		return
	}
	if err := l.Touch(ctx, sessionID); err != nil {
		s.logger.Warn("session touch failed", "session_id", sessionID, "error", err)
	}
}

// Leaderboard returns the ranked leaderboard of a quiz.
func (s *SessionService) Leaderboard(ctx context.Context, quizID string) ([]domain.LeaderboardRow, error) {
	if _, err := s.quizzes.GetQuiz(ctx, quizID); err != nil {
		return nil, err
	}
	return s.grader.FetchLeaderboard(ctx, quizID)
}

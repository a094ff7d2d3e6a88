package session

import (
	"context"
	"log/slog"
	"sync"

	"quiz-session-engine/internal/domain"
)

// SubmissionService grades submissions and serves leaderboards.
type SubmissionService interface {
	SubmitAnswers(ctx context.Context, submission domain.Submission) (domain.SubmissionResult, error)
	FetchLeaderboard(ctx context.Context, quizID string) ([]domain.LeaderboardRow, error)
}

// Outcome is a successful submission together with the leaderboard fetched after it.
type Outcome struct {
	Result      domain.SubmissionResult
	Leaderboard []domain.LeaderboardRow
}

// Pipeline submits one session's answers. It never has two calls in flight and
// refuses to submit again once a call succeeded.
type Pipeline struct {
	service     SubmissionService
	userID      string
	studentName string
	logger      *slog.Logger

	mu       sync.Mutex
	inFlight bool
	done     bool
}

func NewPipeline(service SubmissionService, userID, studentName string, logger *slog.Logger) *Pipeline {
	if logger == nil {
		logger = slog.Default()
	}
	return &Pipeline{service: service, userID: userID, studentName: studentName, logger: logger}
}

// Submit transmits the answers. A failed leaderboard fetch is not an error and
// yields an empty leaderboard; a failed submission returns a *SubmissionError
// and leaves the pipeline ready for another attempt.
func (p *Pipeline) Submit(ctx context.Context, quizID string, slots []AnswerSlot) (Outcome, error) {
	p.mu.Lock()
	switch {
	case p.done:
		p.mu.Unlock()
		return Outcome{}, ErrAlreadySubmitted
	case p.inFlight:
		p.mu.Unlock()
		return Outcome{}, ErrSubmitInFlight
	}
	p.inFlight = true
	p.mu.Unlock()

	result, err := p.service.SubmitAnswers(ctx, domain.Submission{
		QuizID:      quizID,
		UserID:      p.userID,
		StudentName: p.studentName,
		Answers:     EncodeAnswers(slots),
	})

	p.mu.Lock()
	p.inFlight = false
	if err == nil {
		p.done = true
	}
	p.mu.Unlock()

	if err != nil {
		return Outcome{}, &SubmissionError{QuizID: quizID, Err: err}
	}

	rows, err := p.service.FetchLeaderboard(ctx, quizID)
	if err != nil {
		p.logger.Warn("leaderboard fetch failed", "quiz_id", quizID, "error", err)
		rows = []domain.LeaderboardRow{}
	}
	return Outcome{Result: result, Leaderboard: rows}, nil
}

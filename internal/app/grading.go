package app

import (
	"context"
	"fmt"
	"time"

	"quiz-session-engine/internal/domain"
)

// AttemptStore keeps graded attempts and answers the queries grading needs.
type AttemptStore interface {
	// BestScore returns the user's best percentage on a quiz; ok is false without a prior attempt.
	BestScore(ctx context.Context, quizID, userID string) (best float64, ok bool, err error)
	SaveAttempt(ctx context.Context, attempt domain.Attempt) error
	// HighScoreCount returns the number of distinct quizzes the user has a high score on.
	HighScoreCount(ctx context.Context, userID string) (int, error)
	// Leaderboard returns each student's best attempt on the quiz, best first, at most limit rows.
	Leaderboard(ctx context.Context, quizID string, limit int) ([]domain.LeaderboardRow, error)
}

// GradingConfig holds the scoring thresholds.
type GradingConfig struct {
	HighScoreThreshold float64
	LevelStep          int
	LeaderboardSize    int
}

// DefaultGradingConfig matches the defaults of the configuration file.
func DefaultGradingConfig() GradingConfig {
	return GradingConfig{HighScoreThreshold: 80, LevelStep: 3, LeaderboardSize: 10}
}

// Grader scores submissions against quiz content and records attempts.
// It is the submission service used by every session.
type Grader struct {
	quizzes  QuizRepository
	attempts AttemptStore
	cfg      GradingConfig
	now      func() time.Time
}

func NewGrader(quizzes QuizRepository, attempts AttemptStore, cfg GradingConfig) *Grader {
	return NewGraderWithClock(quizzes, attempts, cfg, time.Now)
}

// NewGraderWithClock is used by tests for deterministic attempt timestamps.
func NewGraderWithClock(quizzes QuizRepository, attempts AttemptStore, cfg GradingConfig, now func() time.Time) *Grader {
	defaults := DefaultGradingConfig()
	if cfg.HighScoreThreshold <= 0 {
		cfg.HighScoreThreshold = defaults.HighScoreThreshold
	}
	if cfg.LevelStep <= 0 {
		cfg.LevelStep = defaults.LevelStep
	}
	if cfg.LeaderboardSize <= 0 {
		cfg.LeaderboardSize = defaults.LeaderboardSize
	}
	return &Grader{quizzes: quizzes, attempts: attempts, cfg: cfg, now: now}
}

// SubmitAnswers grades one submission and stores it as an attempt.
func (g *Grader) SubmitAnswers(ctx context.Context, sub domain.Submission) (domain.SubmissionResult, error) {
	quiz, err := g.quizzes.GetQuiz(ctx, sub.QuizID)
	if err != nil {
		return domain.SubmissionResult{}, err
	}
	if len(sub.Answers) != len(quiz.Questions) {
		return domain.SubmissionResult{}, fmt.Errorf("%w: got %d answers for %d questions",
			domain.ErrAnswerCountMismatch, len(sub.Answers), len(quiz.Questions))
	}

	correct := 0
	for i, question := range quiz.Questions {
		if sub.Answers[i] != domain.SkipAnswer && sub.Answers[i] == question.CorrectOption() {
			correct++
		}
	}
	total := len(quiz.Questions)
	pct := domain.Percentage(correct, total)

	best, hasPrior, err := g.attempts.BestScore(ctx, sub.QuizID, sub.UserID)
	if err != nil {
		return domain.SubmissionResult{}, fmt.Errorf("best score: %w", err)
	}
	before, err := g.attempts.HighScoreCount(ctx, sub.UserID)
	if err != nil {
		return domain.SubmissionResult{}, fmt.Errorf("high score count: %w", err)
	}

	result := domain.SubmissionResult{
		CorrectCount:    correct,
		TotalCount:      total,
		ScorePercentage: pct,
		IsHighScore:     pct >= g.cfg.HighScoreThreshold,
		IsNewBestScore:  !hasPrior || pct > best,
	}

	// The quiz joins the user's high-score set only on its first high score.
	after := before
	if result.IsHighScore && !(hasPrior && best >= g.cfg.HighScoreThreshold) {
		after++
	}
	if prev, cur := g.level(before), g.level(after); cur > prev {
		result.LevelUpdate = &domain.LevelUpdate{Previous: prev, Current: cur}
	}

	// SaveAttempt is the last store call; nothing after it may fail.
	answers := make([]string, len(sub.Answers))
	copy(answers, sub.Answers)
	if err := g.attempts.SaveAttempt(ctx, domain.Attempt{
		QuizID:          sub.QuizID,
		UserID:          sub.UserID,
		StudentName:     sub.StudentName,
		Answers:         answers,
		CorrectCount:    correct,
		TotalCount:      total,
		ScorePercentage: pct,
		IsHighScore:     result.IsHighScore,
		AttemptedAt:     g.now(),
	}); err != nil {
		return domain.SubmissionResult{}, fmt.Errorf("save attempt: %w", err)
	}
	return result, nil
}

// FetchLeaderboard returns the ranked leaderboard of a quiz.
func (g *Grader) FetchLeaderboard(ctx context.Context, quizID string) ([]domain.LeaderboardRow, error) {
	rows, err := g.attempts.Leaderboard(ctx, quizID, g.cfg.LeaderboardSize)
	if err != nil {
		return nil, err
	}
	if rows == nil {
		rows = []domain.LeaderboardRow{}
	}
	return domain.RankLeaderboard(rows, g.cfg.LeaderboardSize), nil
}

func (g *Grader) level(highScores int) int {
	return 1 + highScores/g.cfg.LevelStep
}

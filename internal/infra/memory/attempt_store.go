package memory

import (
	"context"
	"sync"

	"quiz-session-engine/internal/domain"
)

// AttemptStore keeps attempts in process memory.
type AttemptStore struct {
	mu       sync.RWMutex
	attempts map[string][]domain.Attempt // by quiz id, in insertion order
}

func NewAttemptStore() *AttemptStore {
	return &AttemptStore{attempts: make(map[string][]domain.Attempt)}
}

func (s *AttemptStore) SaveAttempt(_ context.Context, attempt domain.Attempt) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.attempts[attempt.QuizID] = append(s.attempts[attempt.QuizID], attempt)
	return nil
}

func (s *AttemptStore) BestScore(_ context.Context, quizID, userID string) (float64, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	best, found := 0.0, false
	for _, a := range s.attempts[quizID] {
		if a.UserID != userID {
			continue
		}
		if !found || a.ScorePercentage > best {
			best, found = a.ScorePercentage, true
		}
	}
	return best, found, nil
}

func (s *AttemptStore) HighScoreCount(_ context.Context, userID string) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	count := 0
	for _, attempts := range s.attempts {
		for _, a := range attempts {
			if a.UserID == userID && a.IsHighScore {
				count++
				break
			}
		}
	}
	return count, nil
}

func (s *AttemptStore) Leaderboard(_ context.Context, quizID string, limit int) ([]domain.LeaderboardRow, error) {
	s.mu.RLock()
	best := make(map[string]domain.Attempt)
	for _, a := range s.attempts[quizID] {
		prev, ok := best[a.UserID]
		// an equal score keeps the earlier attempt
		if !ok || a.ScorePercentage > prev.ScorePercentage {
			best[a.UserID] = a
		}
	}
	s.mu.RUnlock()

	rows := make([]domain.LeaderboardRow, 0, len(best))
	for _, a := range best {
		rows = append(rows, domain.LeaderboardRow{
			StudentName: a.StudentName,
			StudentID:   a.UserID,
			Score:       a.ScorePercentage,
			AttemptedAt: a.AttemptedAt,
		})
	}
	return domain.RankLeaderboard(rows, limit), nil
}

package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v4"
	"github.com/jackc/pgx/v4/pgxpool"

	"quiz-session-engine/internal/domain"
)

// AttemptStore keeps attempts in the attempts table.
type AttemptStore struct {
	pool *pgxpool.Pool
}

func NewAttemptStore(pool *pgxpool.Pool) *AttemptStore {
	return &AttemptStore{pool: pool}
}

func (s *AttemptStore) SaveAttempt(ctx context.Context, a domain.Attempt) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO attempts (quiz_id, user_id, student_name, answers, correct_count, total_count, score_percentage, is_high_score, attempted_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		a.QuizID, a.UserID, a.StudentName, a.Answers, a.CorrectCount, a.TotalCount, a.ScorePercentage, a.IsHighScore, a.AttemptedAt)
	if err != nil {
		return fmt.Errorf("insert attempt: %w", err)
	}
	return nil
}

func (s *AttemptStore) BestScore(ctx context.Context, quizID, userID string) (float64, bool, error) {
	var best float64
	err := s.pool.QueryRow(ctx,
		`SELECT MAX(score_percentage) FROM attempts WHERE quiz_id=$1 AND user_id=$2 HAVING COUNT(*) > 0`,
		quizID, userID).Scan(&best)
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, fmt.Errorf("best score: %w", err)
	}
	return best, true, nil
}

func (s *AttemptStore) HighScoreCount(ctx context.Context, userID string) (int, error) {
	var n int
	err := s.pool.QueryRow(ctx,
		`SELECT COUNT(DISTINCT quiz_id) FROM attempts WHERE user_id=$1 AND is_high_score`,
		userID).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("high score count: %w", err)
	}
	return n, nil
}

func (s *AttemptStore) Leaderboard(ctx context.Context, quizID string, limit int) ([]domain.LeaderboardRow, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT student_name, user_id, score_percentage, attempted_at FROM (
			SELECT DISTINCT ON (user_id) student_name, user_id, score_percentage, attempted_at
			FROM attempts
			WHERE quiz_id = $1
			ORDER BY user_id, score_percentage DESC, attempted_at ASC
		) best
		ORDER BY score_percentage DESC, attempted_at ASC, student_name ASC
		LIMIT $2`, quizID, limitOrAll(limit))
	if err != nil {
		return nil, fmt.Errorf("leaderboard: %w", err)
	}
	defer rows.Close()

	out := []domain.LeaderboardRow{}
	for rows.Next() {
		var row domain.LeaderboardRow
		if err := rows.Scan(&row.StudentName, &row.StudentID, &row.Score, &row.AttemptedAt); err != nil {
			return nil, fmt.Errorf("scan leaderboard: %w", err)
		}
		out = append(out, row)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("leaderboard rows: %w", err)
	}
	return domain.RankLeaderboard(out, limit), nil
}

// limitOrAll maps a non-positive limit to NULL, which LIMIT reads as no limit.
func limitOrAll(limit int) *int {
	if limit <= 0 {
		return nil
	}
	return &limit
}

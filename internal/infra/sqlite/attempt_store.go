package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	_ "modernc.org/sqlite"

	"quiz-session-engine/internal/domain"
)

// AttemptStore keeps attempts in a single SQLite file, for deployments without Postgres.
type AttemptStore struct {
	db *sql.DB
}

func New(dbPath string) (*AttemptStore, error) {
	db, err := sql.Open("sqlite", dbPath+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	// a second connection to :memory: would see a different database
	db.SetMaxOpenConns(1)
	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("ping database: %w", err)
	}
	s := &AttemptStore{db: db}
	if err := s.migrate(); err != nil {
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return s, nil
}

func (s *AttemptStore) Close() error {
	return s.db.Close()
}

func (s *AttemptStore) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS attempts (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		quiz_id TEXT NOT NULL,
		user_id TEXT NOT NULL,
		student_name TEXT NOT NULL,
		answers TEXT NOT NULL,
		correct_count INTEGER NOT NULL,
		total_count INTEGER NOT NULL,
		score_percentage REAL NOT NULL,
		is_high_score INTEGER NOT NULL DEFAULT 0,
		attempted_at INTEGER NOT NULL
	);

	CREATE INDEX IF NOT EXISTS attempts_quiz_user_idx ON attempts (quiz_id, user_id);
	`
	_, err := s.db.Exec(schema)
	return err
}

func (s *AttemptStore) SaveAttempt(ctx context.Context, a domain.Attempt) error {
	answers, err := json.Marshal(a.Answers)
	if err != nil {
		return fmt.Errorf("marshal answers: %w", err)
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO attempts (quiz_id, user_id, student_name, answers, correct_count, total_count, score_percentage, is_high_score, attempted_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		a.QuizID, a.UserID, a.StudentName, string(answers), a.CorrectCount, a.TotalCount,
		a.ScorePercentage, a.IsHighScore, a.AttemptedAt.UnixNano(),
	)
	if err != nil {
		return fmt.Errorf("insert attempt: %w", err)
	}
	return nil
}

func (s *AttemptStore) BestScore(ctx context.Context, quizID, userID string) (float64, bool, error) {
	var best sql.NullFloat64
	err := s.db.QueryRowContext(ctx,
		`SELECT MAX(score_percentage) FROM attempts WHERE quiz_id = ? AND user_id = ?`,
		quizID, userID).Scan(&best)
	if err != nil {
		return 0, false, fmt.Errorf("best score: %w", err)
	}
	return best.Float64, best.Valid, nil
}

func (s *AttemptStore) HighScoreCount(ctx context.Context, userID string) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(DISTINCT quiz_id) FROM attempts WHERE user_id = ? AND is_high_score = 1`,
		userID).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("high score count: %w", err)
	}
	return n, nil
}

func (s *AttemptStore) Leaderboard(ctx context.Context, quizID string, limit int) ([]domain.LeaderboardRow, error) {
	if limit <= 0 {
		limit = -1
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT student_name, user_id, score_percentage, attempted_at FROM (
			SELECT student_name, user_id, score_percentage, attempted_at,
				ROW_NUMBER() OVER (PARTITION BY user_id ORDER BY score_percentage DESC, attempted_at ASC) AS rn
			FROM attempts
			WHERE quiz_id = ?
		)
		WHERE rn = 1
		ORDER BY score_percentage DESC, attempted_at ASC, student_name ASC
		LIMIT ?`, quizID, limit)
	if err != nil {
		return nil, fmt.Errorf("leaderboard: %w", err)
	}
	defer rows.Close()

	out := []domain.LeaderboardRow{}
	for rows.Next() {
		var row domain.LeaderboardRow
		var at int64
		if err := rows.Scan(&row.StudentName, &row.StudentID, &row.Score, &at); err != nil {
			return nil, fmt.Errorf("scan leaderboard: %w", err)
		}
		row.AttemptedAt = time.Unix(0, at).UTC()
		out = append(out, row)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return domain.RankLeaderboard(out, limit), nil
}

// attempts returns a user's attempts on a quiz, oldest first.
func (s *AttemptStore) attempts(ctx context.Context, quizID, userID string) ([]domain.Attempt, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT student_name, answers, correct_count, total_count, score_percentage, is_high_score, attempted_at
		 FROM attempts WHERE quiz_id = ? AND user_id = ? ORDER BY attempted_at, id`,
		quizID, userID)
	if err != nil {
		return nil, fmt.Errorf("attempts: %w", err)
	}
	defer rows.Close()

	var out []domain.Attempt
	for rows.Next() {
		a := domain.Attempt{QuizID: quizID, UserID: userID}
		var answers string
		var at int64
		if err := rows.Scan(&a.StudentName, &answers, &a.CorrectCount, &a.TotalCount, &a.ScorePercentage, &a.IsHighScore, &at); err != nil {
			return nil, fmt.Errorf("scan attempt: %w", err)
		}
		if err := json.Unmarshal([]byte(answers), &a.Answers); err != nil {
			return nil, fmt.Errorf("unmarshal answers: %w", err)
		}
		a.AttemptedAt = time.Unix(0, at).UTC()
		out = append(out, a)
	}
	return out, rows.Err()
}

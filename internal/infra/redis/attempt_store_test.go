package redis

import (
	"context"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"

	"quiz-session-engine/internal/domain"
)

func TestAttemptStoreKeepsBestPerStudent(t *testing.T) {
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("run miniredis: %v", err)
	}
	defer mr.Close()

	ctx := context.Background()
	store := NewAttemptStore(newClient(mr))
	base := time.Date(2024, 11, 22, 10, 0, 0, 0, time.UTC)

	attempts := []domain.Attempt{
		{QuizID: "quiz-1", UserID: "u1", StudentName: "Alice", ScorePercentage: 100, IsHighScore: true, AttemptedAt: base.Add(time.Minute)},
		{QuizID: "quiz-1", UserID: "u1", StudentName: "Alice", ScorePercentage: 40, AttemptedAt: base.Add(2 * time.Minute)},
		{QuizID: "quiz-1", UserID: "u2", StudentName: "Bob", ScorePercentage: 100, IsHighScore: true, AttemptedAt: base},
		{QuizID: "quiz-1", UserID: "u3", StudentName: "Carol", ScorePercentage: 60, AttemptedAt: base},
	}
	for _, a := range attempts {
		if err := store.SaveAttempt(ctx, a); err != nil {
			t.Fatalf("save: %v", err)
		}
	}

	best, ok, err := store.BestScore(ctx, "quiz-1", "u1")
	if err != nil || !ok || best != 100 {
		t.Fatalf("expected best 100, got %v %v %v", best, ok, err)
	}
	if _, ok, err := store.BestScore(ctx, "quiz-1", "nobody"); err != nil || ok {
		t.Fatalf("expected no prior attempt, got %v %v", ok, err)
	}
	if n, err := store.HighScoreCount(ctx, "u1"); err != nil || n != 1 {
		t.Fatalf("expected 1 high-score quiz, got %d %v", n, err)
	}

	rows, err := store.Leaderboard(ctx, "quiz-1", 10)
	if err != nil {
		t.Fatalf("leaderboard: %v", err)
	}
	if len(rows) != 3 {
		t.Fatalf("expected one row per student, got %+v", rows)
	}
	if rows[0].StudentName != "Bob" || rows[1].StudentName != "Alice" || rows[2].StudentName != "Carol" {
		t.Fatalf("unexpected order: %+v", rows)
	}
	if !rows[1].AttemptedAt.Equal(base.Add(time.Minute)) {
		t.Fatalf("expected best attempt time kept, got %s", rows[1].AttemptedAt)
	}

	history, err := store.history(ctx, "quiz-1")
	if err != nil || len(history) != 4 {
		t.Fatalf("expected full history, got %d %v", len(history), err)
	}
}

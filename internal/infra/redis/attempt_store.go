package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"quiz-session-engine/internal/domain"
)

// AttemptStore keeps attempts in Redis:
//
//	ZADD  quiz:{quizID}:leaderboard {best pct} {userID}
//	HSET  quiz:{quizID}:best:{userID} name {studentName} at {unix nanos}
//	RPUSH quiz:{quizID}:attempts {attempt json}
//	SADD  user:{userID}:highscores {quizID}
type AttemptStore struct {
	client *redis.Client
}

func NewAttemptStore(client *redis.Client) *AttemptStore {
	return &AttemptStore{client: client}
}

func (s *AttemptStore) SaveAttempt(ctx context.Context, attempt domain.Attempt) error {
	raw, err := json.Marshal(attempt)
	if err != nil {
		return fmt.Errorf("marshal attempt: %w", err)
	}

	lbKey := leaderboardKey(attempt.QuizID)
	save := func(tx *redis.Tx) error {
		current, err := tx.ZScore(ctx, lbKey, attempt.UserID).Result()
		if err != nil && !isNil(err) {
			return err
		}
		improves := isNil(err) || attempt.ScorePercentage > current
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.RPush(ctx, attemptsKey(attempt.QuizID), raw)
			if attempt.IsHighScore {
				pipe.SAdd(ctx, highScoresKey(attempt.UserID), attempt.QuizID)
			}
			if improves {
				pipe.ZAdd(ctx, lbKey, redis.Z{Score: attempt.ScorePercentage, Member: attempt.UserID})
				pipe.HSet(ctx, bestKey(attempt.QuizID, attempt.UserID),
					"name", attempt.StudentName,
					"at", strconv.FormatInt(attempt.AttemptedAt.UnixNano(), 10))
			}
			return nil
		})
		return err
	}

	for i := 0; i < 3; i++ {
		err = s.client.Watch(ctx, save, lbKey)
		if !errors.Is(err, redis.TxFailedErr) {
			return err
		}
	}
	return fmt.Errorf("save attempt: %w", err)
}

func (s *AttemptStore) BestScore(ctx context.Context, quizID, userID string) (float64, bool, error) {
	score, err := s.client.ZScore(ctx, leaderboardKey(quizID), userID).Result()
	if isNil(err) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, err
	}
	return score, true, nil
}

func (s *AttemptStore) HighScoreCount(ctx context.Context, userID string) (int, error) {
	n, err := s.client.SCard(ctx, highScoresKey(userID)).Result()
	return int(n), err
}

func (s *AttemptStore) Leaderboard(ctx context.Context, quizID string, limit int) ([]domain.LeaderboardRow, error) {
	// Ties are ordered by attempt time, which the sorted set does not know,
	// so every best score is read and ranked here.
	entries, err := s.client.ZRevRangeWithScores(ctx, leaderboardKey(quizID), 0, -1).Result()
	if err != nil {
		return nil, err
	}

	pipe := s.client.Pipeline()
	metas := make([]*redis.MapStringStringCmd, len(entries))
	for i, z := range entries {
		metas[i] = pipe.HGetAll(ctx, bestKey(quizID, z.Member.(string)))
	}
	if len(entries) > 0 {
		if _, err := pipe.Exec(ctx); err != nil {
			return nil, err
		}
	}

	rows := make([]domain.LeaderboardRow, 0, len(entries))
	for i, z := range entries {
		meta := metas[i].Val()
		row := domain.LeaderboardRow{
			StudentID:   z.Member.(string),
			StudentName: meta["name"],
			Score:       z.Score,
		}
		if nanos, err := strconv.ParseInt(meta["at"], 10, 64); err == nil {
			row.AttemptedAt = time.Unix(0, nanos).UTC()
		}
		rows = append(rows, row)
	}
	return domain.RankLeaderboard(rows, limit), nil
}

// history returns every attempt recorded for a quiz, oldest first.
func (s *AttemptStore) history(ctx context.Context, quizID string) ([]domain.Attempt, error) {
	raws, err := s.client.LRange(ctx, attemptsKey(quizID), 0, -1).Result()
	if err != nil {
		return nil, err
	}
	attempts := make([]domain.Attempt, 0, len(raws))
	for _, raw := range raws {
		var a domain.Attempt
		if err := json.Unmarshal([]byte(raw), &a); err != nil {
			return nil, fmt.Errorf("unmarshal attempt: %w", err)
		}
		attempts = append(attempts, a)
	}
	return attempts, nil
}

func leaderboardKey(quizID string) string {
	return "quiz:" + quizID + ":leaderboard"
}

func bestKey(quizID, userID string) string {
	return "quiz:" + quizID + ":best:" + userID
}

func attemptsKey(quizID string) string {
	return "quiz:" + quizID + ":attempts"
}

func highScoresKey(userID string) string {
	return "user:" + userID + ":highscores"
}

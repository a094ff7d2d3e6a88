package domain

import (
	"fmt"
	"math"
	"sort"
	"time"
)

// SkipAnswer is transmitted for a question passed without a selection.
// Quizzes whose options contain this value are rejected at load.
const SkipAnswer = "__SKIP__"

// Question models a single-choice question with its own countdown.
type Question struct {
	ID                 string   `json:"id" yaml:"id"`
	Text               string   `json:"text" yaml:"text"`
	Options            []string `json:"options" yaml:"options"`
	CorrectOptionIndex int      `json:"correctOptionIndex" yaml:"correctOptionIndex"`
	TimeLimitSeconds   int      `json:"timeLimitSeconds" yaml:"timeLimitSeconds"`
}

// CorrectOption returns the text of the correct option.
func (q Question) CorrectOption() string {
	if q.CorrectOptionIndex < 0 || q.CorrectOptionIndex >= len(q.Options) {
		return ""
	}
	return q.Options[q.CorrectOptionIndex]
}

// Quiz is an ordered collection of questions.
type Quiz struct {
	ID        string     `json:"id" yaml:"id"`
	Title     string     `json:"title" yaml:"title"`
	Questions []Question `json:"questions" yaml:"questions"`
}

// Validate reports whether the quiz can be run as a session.
func (q Quiz) Validate() error {
	if len(q.Questions) == 0 {
		return fmt.Errorf("%w: quiz %q has no questions", ErrInvalidQuiz, q.ID)
	}
	for i, question := range q.Questions {
		if len(question.Options) < 2 {
			return fmt.Errorf("%w: question %d has %d options", ErrInvalidQuiz, i, len(question.Options))
		}
		if question.CorrectOptionIndex < 0 || question.CorrectOptionIndex >= len(question.Options) {
			return fmt.Errorf("%w: question %d correct option %d out of range", ErrInvalidQuiz, i, question.CorrectOptionIndex)
		}
		for _, opt := range question.Options {
			if opt == SkipAnswer {
				return fmt.Errorf("%w: question %d uses the reserved skip value as an option", ErrInvalidQuiz, i)
			}
		}
	}
	return nil
}

// LevelUpdate is reported when a submission moves the student to a new level.
type LevelUpdate struct {
	Previous int `json:"previous"`
	Current  int `json:"current"`
}

// SubmissionResult is the graded outcome of one submission.
type SubmissionResult struct {
	CorrectCount    int          `json:"correctCount"`
	TotalCount      int          `json:"totalCount"`
	ScorePercentage float64      `json:"scorePercentage"`
	IsHighScore     bool         `json:"isHighScore"`
	IsNewBestScore  bool         `json:"isNewBestScore"`
	LevelUpdate     *LevelUpdate `json:"levelUpdate,omitempty"`
}

// Submission is what a session transmits to the submission service.
type Submission struct {
	QuizID      string
	UserID      string
	StudentName string
	Answers     []string
}

// Attempt is a graded submission as kept by attempt stores.
type Attempt struct {
	QuizID          string    `json:"quizId"`
	UserID          string    `json:"userId"`
	StudentName     string    `json:"studentName"`
	Answers         []string  `json:"answers"`
	CorrectCount    int       `json:"correctCount"`
	TotalCount      int       `json:"totalCount"`
	ScorePercentage float64   `json:"scorePercentage"`
	IsHighScore     bool      `json:"isHighScore"`
	AttemptedAt     time.Time `json:"attemptedAt"`
}

// LeaderboardRow is one ranked line of a quiz leaderboard.
type LeaderboardRow struct {
	Rank        int       `json:"rank"`
	StudentName string    `json:"studentName"`
	StudentID   string    `json:"studentId"`
	Score       float64   `json:"score"`
	AttemptedAt time.Time `json:"attemptedAt"`
}

// RankLeaderboard orders rows by score desc, then earliest attempt, then name,
// assigns ranks starting at 1 and truncates to limit (limit <= 0 keeps all).
func RankLeaderboard(rows []LeaderboardRow, limit int) []LeaderboardRow {
	sort.SliceStable(rows, func(i, j int) bool {
		if rows[i].Score != rows[j].Score {
			return rows[i].Score > rows[j].Score
		}
		if !rows[i].AttemptedAt.Equal(rows[j].AttemptedAt) {
			return rows[i].AttemptedAt.Before(rows[j].AttemptedAt)
		}
		return rows[i].StudentName < rows[j].StudentName
	})
	if limit > 0 && len(rows) > limit {
		rows = rows[:limit]
	}
	for i := range rows {
		rows[i].Rank = i + 1
	}
	return rows
}

// Percentage returns 100*correct/total rounded to two decimals.
func Percentage(correct, total int) float64 {
	if total <= 0 {
		return 0
	}
	return math.Round(float64(correct)*10000/float64(total)) / 100
}

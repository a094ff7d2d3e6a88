package memory

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"quiz-session-engine/internal/domain"
)

type quizFile struct {
	Quizzes []domain.Quiz `yaml:"quizzes"`
}

// LoadQuizFile reads quiz definitions from a YAML file. Every quiz is
// validated; a single invalid quiz rejects the whole file.
func LoadQuizFile(path string) (*StaticQuizLoader, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read quiz file: %w", err)
	}
	return ParseQuizzes(data)
}

// ParseQuizzes decodes the YAML quiz file format.
func ParseQuizzes(data []byte) (*StaticQuizLoader, error) {
	var file quizFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("parse quiz file: %w", err)
	}
	quizzes := make(map[string]domain.Quiz, len(file.Quizzes))
	for _, quiz := range file.Quizzes {
		if quiz.ID == "" {
			return nil, fmt.Errorf("%w: quiz without id", domain.ErrInvalidQuiz)
		}
		if err := quiz.Validate(); err != nil {
			return nil, err
		}
		if _, dup := quizzes[quiz.ID]; dup {
			return nil, fmt.Errorf("%w: duplicate quiz id %q", domain.ErrInvalidQuiz, quiz.ID)
		}
		quizzes[quiz.ID] = quiz
	}
	return NewStaticQuizLoader(quizzes), nil
}

// SampleQuizzes is the built-in catalog used when no quiz source is configured.
func SampleQuizzes() *StaticQuizLoader {
	return NewStaticQuizLoader(map[string]domain.Quiz{
		"quiz-1": {
			ID:    "quiz-1",
			Title: "Warm-up",
			Questions: []domain.Question{
				{ID: "q1", Text: "What is 2 + 2?", Options: []string{"3", "4", "5"}, CorrectOptionIndex: 1, TimeLimitSeconds: 30},
				{ID: "q2", Text: "Which planet is known as the red planet?", Options: []string{"Venus", "Mars", "Jupiter"}, CorrectOptionIndex: 1, TimeLimitSeconds: 30},
				{ID: "q3", Text: "What is the capital of France?", Options: []string{"Paris", "Rome", "Madrid"}, CorrectOptionIndex: 0},
			},
		},
	})
}

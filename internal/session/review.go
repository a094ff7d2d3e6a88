package session

import "quiz-session-engine/internal/domain"

// ReviewItem compares one answer with the correct option.
type ReviewItem struct {
	Index         int        `json:"index"`
	Text          string     `json:"text"`
	Options       []string   `json:"options"`
	CorrectOption string     `json:"correctOption"`
	Answer        AnswerSlot `json:"answer"`
	IsCorrect     bool       `json:"isCorrect"`
	IsSkipped     bool       `json:"isSkipped"`
}

// Review is the post-submission view of a session.
type Review struct {
	Items           []ReviewItem `json:"items"`
	CorrectCount    int          `json:"correctCount"`
	TotalCount      int          `json:"totalCount"`
	ScorePercentage float64      `json:"scorePercentage"`
}

// Render builds the review. It has no side effects and returns equal output for equal input.
func Render(quiz domain.Quiz, answers []AnswerSlot, result domain.SubmissionResult) Review {
	items := make([]ReviewItem, len(quiz.Questions))
	for i, q := range quiz.Questions {
		var slot AnswerSlot
		if i < len(answers) {
			slot = answers[i]
		}
		correct := q.CorrectOption()
		options := make([]string, len(q.Options))
		copy(options, q.Options)
		items[i] = ReviewItem{
			Index:         i,
			Text:          q.Text,
			Options:       options,
			CorrectOption: correct,
			Answer:        slot,
			IsCorrect:     slot.State == Selected && slot.Value == correct,
			IsSkipped:     slot.State == Skipped,
		}
	}
	return Review{
		Items:           items,
		CorrectCount:    result.CorrectCount,
		TotalCount:      result.TotalCount,
		ScorePercentage: result.ScorePercentage,
	}
}

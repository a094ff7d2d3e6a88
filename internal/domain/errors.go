package domain

import "errors"

var (
	// ErrQuizNotFound indicates the quiz content could not be loaded.
	ErrQuizNotFound = errors.New("quiz not found")
	// ErrInvalidQuiz is returned for quiz content that cannot be run as a session.
	ErrInvalidQuiz = errors.New("invalid quiz")
	// ErrSessionNotFound is returned when a session id is unknown or already ended.
	ErrSessionNotFound = errors.New("quiz session not found")
	// ErrAnswerCountMismatch indicates a submission whose length differs from the quiz.
	ErrAnswerCountMismatch = errors.New("answer count does not match question count")
)

package session

import (
	"errors"
	"fmt"
)

var (
	// ErrSessionClosed is returned for commands sent to a torn-down session.
	ErrSessionClosed = errors.New("session closed")
	// ErrAlreadySubmitted is returned when a pipeline is asked to submit twice after success.
	ErrAlreadySubmitted = errors.New("answers already submitted")
	// ErrSubmitInFlight is returned when a submission is requested while another is running.
	ErrSubmitInFlight = errors.New("submission already in flight")
)

// LoadError wraps a failure to fetch or validate the quiz definition.
type LoadError struct {
	QuizID string
	Err    error
}

func (e *LoadError) Error() string {
	return fmt.Sprintf("load quiz %s: %v", e.QuizID, e.Err)
}

func (e *LoadError) Unwrap() error {
	return e.Err
}

// SubmissionError wraps a failed submission call. The session stays retryable.
type SubmissionError struct {
	QuizID string
	Err    error
}

func (e *SubmissionError) Error() string {
	return fmt.Sprintf("submit quiz %s: %v", e.QuizID, e.Err)
}

func (e *SubmissionError) Unwrap() error {
	return e.Err
}

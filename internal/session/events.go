package session

import "quiz-session-engine/internal/domain"

// Event is an input to the session state machine. Every source (timer,
// user, guard, network completion) is turned into one of these.
type Event interface {
	event()
}

type (
	// LoadRequested starts (or retries) fetching the quiz definition.
	LoadRequested  struct{}
	QuizLoaded     struct{ Quiz domain.Quiz }
	QuizLoadFailed struct{ Err error }

	// Tick is one countdown second stamped with the generation it belongs to.
	Tick struct{ Gen uint64 }

	SelectAnswer struct{ Option int }
	Advance      struct{}

	// ProctorSignal is a raw guard report; the machine decides whether it is an unauthorized exit.
	ProctorSignal struct{ Kind SignalKind }
	// ProctorExitDetected raises the exit confirmation directly.
	ProctorExitDetected struct{}
	ConfirmExit         struct{}
	CancelExit          struct{}

	SubmitSucceeded struct {
		Result      domain.SubmissionResult
		Leaderboard []domain.LeaderboardRow
	}
	SubmitFailed struct{ Err error }
)

func (LoadRequested) event()       {}
func (QuizLoaded) event()          {}
func (QuizLoadFailed) event()      {}
func (Tick) event()                {}
func (SelectAnswer) event()        {}
func (Advance) event()             {}
func (ProctorSignal) event()       {}
func (ProctorExitDetected) event() {}
func (ConfirmExit) event()         {}
func (CancelExit) event()          {}
func (SubmitSucceeded) event()     {}
func (SubmitFailed) event()        {}

// isUserAction reports events that win a tie against an expiring tick.
func isUserAction(ev Event) bool {
	switch ev.(type) {
	case SelectAnswer, Advance:
		return true
	}
	return false
}

// Effect is a side effect requested by the machine and carried out by the Controller.
type Effect interface {
	effect()
}

type (
	FetchQuiz        struct{}
	StartTimer       struct{ Gen uint64 }
	StopTimer        struct{}
	RequestExclusive struct{}
	ReleaseExclusive struct{}
	WarnLeave        struct{}
	SubmitAnswers    struct{ Answers []AnswerSlot }
	SignalReturn     struct{}
)

func (FetchQuiz) effect()        {}
func (StartTimer) effect()       {}
func (StopTimer) effect()        {}
func (RequestExclusive) effect() {}
func (ReleaseExclusive) effect() {}
func (WarnLeave) effect()        {}
func (SubmitAnswers) effect()    {}
func (SignalReturn) effect()     {}

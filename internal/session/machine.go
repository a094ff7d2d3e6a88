package session

import (
	"errors"

	"quiz-session-engine/internal/domain"
)

// DefaultTimeLimit is used for questions that do not carry their own limit.
const DefaultTimeLimit = 30

// Phase is the lifecycle position of a session.
type Phase string

const (
	PhaseLoading     Phase = "loading"
	PhaseInProgress  Phase = "in_progress"
	PhaseExitConfirm Phase = "exit_confirm"
	PhaseSubmitting  Phase = "submitting"
	PhaseSubmitted   Phase = "submitted"
	PhaseLoadFailed  Phase = "load_failed"
)

// MachineConfig identifies the session a Machine runs.
type MachineConfig struct {
	QuizID           string
	UserID           string
	Origin           string
	DefaultTimeLimit int
}

// Machine is the session state machine. It is not safe for concurrent use;
// the Controller feeds it one event at a time and carries out the effects it returns.
type Machine struct {
	cfg MachineConfig

	phase    Phase
	fetching bool
	quiz     domain.Quiz
	index    int
	answers  *AnswerStore
	timer    Countdown
	proctor  proctorTracker

	// retrySubmit is set after a failed submission; the next advance submits again.
	retrySubmit bool

	result      *domain.SubmissionResult
	leaderboard []domain.LeaderboardRow
	err         error
	notice      string
}

func NewMachine(cfg MachineConfig) *Machine {
	if cfg.DefaultTimeLimit <= 0 {
		cfg.DefaultTimeLimit = DefaultTimeLimit
	}
	return &Machine{
		cfg:     cfg,
		phase:   PhaseLoading,
		answers: NewAnswerStore(0),
		proctor: newProctorTracker(),
	}
}

func (m *Machine) Phase() Phase {
	return m.phase
}

func (m *Machine) Index() int {
	return m.index
}

func (m *Machine) Answers() []AnswerSlot {
	return m.answers.Snapshot()
}

func (m *Machine) Remaining() int {
	return m.timer.Remaining()
}

func (m *Machine) Err() error {
	return m.err
}

// Expires reports whether t would end the current question's countdown.
func (m *Machine) Expires(t Tick) bool {
	return m.phase == PhaseInProgress && m.timer.WouldExpire(t.Gen)
}

// Apply handles one event and returns the effects to carry out, in order.
// Events that do not apply to the current phase are ignored.
func (m *Machine) Apply(ev Event) []Effect {
	switch ev := ev.(type) {
	case LoadRequested:
		return m.requestLoad()
	case QuizLoaded:
		return m.loaded(ev.Quiz)
	case QuizLoadFailed:
		return m.loadFailed(ev.Err)
	case Tick:
		return m.tick(ev.Gen)
	case SelectAnswer:
		return m.selectAnswer(ev.Option)
	case Advance:
		if m.phase != PhaseInProgress {
			return nil
		}
		return m.advance()
	case ProctorSignal:
		return m.proctorSignal(ev.Kind)
	case ProctorExitDetected:
		return m.exitDetected()
	case ConfirmExit:
		if m.phase != PhaseExitConfirm {
			return nil
		}
		return m.submit()
	case CancelExit:
		return m.cancelExit()
	case SubmitSucceeded:
		return m.submitted(ev)
	case SubmitFailed:
		return m.submitFailed(ev.Err)
	}
	return nil
}

func (m *Machine) requestLoad() []Effect {
	if m.fetching || (m.phase != PhaseLoading && m.phase != PhaseLoadFailed) {
		return nil
	}
	m.phase = PhaseLoading
	m.fetching = true
	m.err = nil
	return []Effect{FetchQuiz{}}
}

func (m *Machine) loaded(quiz domain.Quiz) []Effect {
	if m.phase != PhaseLoading || !m.fetching {
		return nil
	}
	if err := quiz.Validate(); err != nil {
		return m.loadFailed(err)
	}
	m.fetching = false
	m.quiz = quiz
	m.answers = NewAnswerStore(len(quiz.Questions))
	m.index = 0
	m.phase = PhaseInProgress
	m.proctor.requested()
	gen := m.timer.Start(m.limitFor(0))
	return []Effect{RequestExclusive{}, StartTimer{Gen: gen}}
}

func (m *Machine) loadFailed(err error) []Effect {
	if m.phase != PhaseLoading || !m.fetching {
		return nil
	}
	m.fetching = false
	m.phase = PhaseLoadFailed
	var loadErr *LoadError
	if !errors.As(err, &loadErr) {
		err = &LoadError{QuizID: m.cfg.QuizID, Err: err}
	}
	m.err = err
	return nil
}

func (m *Machine) tick(gen uint64) []Effect {
	if m.phase != PhaseInProgress {
		return nil
	}
	if !m.timer.Tick(gen) {
		return nil
	}
	return m.timeoutSkip()
}

func (m *Machine) timeoutSkip() []Effect {
	_, _ = m.answers.SkipIfUnanswered(m.index)
	return m.advance()
}

func (m *Machine) selectAnswer(option int) []Effect {
	if m.phase != PhaseInProgress {
		return nil
	}
	question := m.quiz.Questions[m.index]
	if option < 0 || option >= len(question.Options) {
		return nil
	}
	_ = m.answers.Select(m.index, question.Options[option])
	return nil
}

// advance is the single path that moves past the current question, shared by
// user advances and timeouts. A question left without a selection becomes Skipped.
func (m *Machine) advance() []Effect {
	_, _ = m.answers.SkipIfUnanswered(m.index)
	if m.retrySubmit || m.isLast() {
		return m.submit()
	}
	m.index++
	m.answers.Freeze(m.index)
	gen := m.timer.Start(m.limitFor(m.index))
	return []Effect{StartTimer{Gen: gen}}
}

func (m *Machine) exitDetected() []Effect {
	if m.phase != PhaseInProgress {
		// ExitConfirm already open: simultaneous triggers collapse into it.
		return nil
	}
	if m.isLast() {
		m.proctor.exitPermitted()
		return nil
	}
	m.phase = PhaseExitConfirm
	m.timer.Pause()
	return []Effect{StopTimer{}}
}

func (m *Machine) cancelExit() []Effect {
	if m.phase != PhaseExitConfirm {
		return nil
	}
	m.phase = PhaseInProgress
	m.proctor.requested()
	effects := []Effect{RequestExclusive{}}
	if gen, ok := m.timer.Resume(); ok {
		effects = append(effects, StartTimer{Gen: gen})
	}
	return effects
}

func (m *Machine) submit() []Effect {
	if m.phase != PhaseInProgress && m.phase != PhaseExitConfirm {
		return nil
	}
	m.phase = PhaseSubmitting
	m.timer.Stop()
	m.err = nil
	return []Effect{StopTimer{}, SubmitAnswers{Answers: m.answers.Snapshot()}}
}

func (m *Machine) submitted(ev SubmitSucceeded) []Effect {
	if m.phase != PhaseSubmitting {
		return nil
	}
	m.phase = PhaseSubmitted
	m.retrySubmit = false
	m.answers.Freeze(m.answers.Len())
	result := ev.Result
	m.result = &result
	m.leaderboard = ev.Leaderboard
	if m.leaderboard == nil {
		m.leaderboard = []domain.LeaderboardRow{}
	}
	m.proctor.released()
	return []Effect{ReleaseExclusive{}, SignalReturn{}}
}

func (m *Machine) submitFailed(err error) []Effect {
	if m.phase != PhaseSubmitting {
		return nil
	}
	m.phase = PhaseInProgress
	m.retrySubmit = true
	var subErr *SubmissionError
	if !errors.As(err, &subErr) {
		err = &SubmissionError{QuizID: m.cfg.QuizID, Err: err}
	}
	m.err = err
	return nil
}

func (m *Machine) proctorSignal(kind SignalKind) []Effect {
	action, notice := m.proctor.signal(kind, m.phase == PhaseInProgress)
	if notice != "" {
		m.notice = notice
	}
	switch action {
	case proctorRaiseExit:
		return m.exitDetected()
	case proctorWarnLeave:
		switch m.phase {
		case PhaseInProgress, PhaseExitConfirm, PhaseSubmitting:
			return []Effect{WarnLeave{}}
		}
	}
	return nil
}

func (m *Machine) isLast() bool {
	return m.index == len(m.quiz.Questions)-1
}

func (m *Machine) limitFor(i int) int {
	if limit := m.quiz.Questions[i].TimeLimitSeconds; limit > 0 {
		return limit
	}
	return m.cfg.DefaultTimeLimit
}

package session

import (
	"errors"
	"testing"

	"quiz-session-engine/internal/domain"
)

func sampleQuiz(n int) domain.Quiz {
	quiz := domain.Quiz{ID: "quiz-1", Title: "Sample"}
	for i := 0; i < n; i++ {
		quiz.Questions = append(quiz.Questions, domain.Question{
			ID:                 string(rune('a' + i)),
			Text:               "Pick one",
			Options:            []string{"A", "B", "C", "D"},
			CorrectOptionIndex: i % 4,
			TimeLimitSeconds:   30,
		})
	}
	return quiz
}

// startedMachine returns a machine that has loaded quiz and the generation of its first countdown.
func startedMachine(t *testing.T, quiz domain.Quiz) (*Machine, uint64) {
	t.Helper()
	m := NewMachine(MachineConfig{QuizID: quiz.ID, UserID: "u1", Origin: "catalog"})
	if effects := m.Apply(LoadRequested{}); !hasEffect[FetchQuiz](effects) {
		t.Fatalf("expected fetch effect, got %#v", effects)
	}
	effects := m.Apply(QuizLoaded{Quiz: quiz})
	if !hasEffect[RequestExclusive](effects) {
		t.Fatalf("expected exclusive request on load, got %#v", effects)
	}
	start, ok := findEffect[StartTimer](effects)
	if !ok {
		t.Fatalf("expected timer start on load, got %#v", effects)
	}
	if m.Phase() != PhaseInProgress || m.Index() != 0 {
		t.Fatalf("expected in progress at question 0, got %s at %d", m.Phase(), m.Index())
	}
	return m, start.Gen
}

func findEffect[T Effect](effects []Effect) (T, bool) {
	for _, eff := range effects {
		if typed, ok := eff.(T); ok {
			return typed, true
		}
	}
	var zero T
	return zero, false
}

func hasEffect[T Effect](effects []Effect) bool {
	_, ok := findEffect[T](effects)
	return ok
}

func countEffects[T Effect](effects []Effect) int {
	n := 0
	for _, eff := range effects {
		if _, ok := eff.(T); ok {
			n++
		}
	}
	return n
}

// tickDown applies n ticks and collects every effect produced.
func tickDown(m *Machine, gen uint64, n int) []Effect {
	var all []Effect
	for i := 0; i < n; i++ {
		all = append(all, m.Apply(Tick{Gen: gen})...)
	}
	return all
}

func TestAnswerTimeoutAnswerOnLastQuestion(t *testing.T) {
	m, gen := startedMachine(t, sampleQuiz(3))

	m.Apply(SelectAnswer{Option: 0})
	effects := m.Apply(Advance{})
	next, ok := findEffect[StartTimer](effects)
	if !ok {
		t.Fatalf("expected timer restart on advance")
	}
	if next.Gen == gen {
		t.Fatalf("expected a new timer generation")
	}

	effects = tickDown(m, next.Gen, 30)
	if m.Index() != 2 {
		t.Fatalf("expected timeout to advance to question 2, got %d", m.Index())
	}
	if got := m.Answers()[1]; got.State != Skipped {
		t.Fatalf("expected question 2 skipped, got %+v", got)
	}
	last, ok := findEffect[StartTimer](effects)
	if !ok {
		t.Fatalf("expected timer restart after timeout")
	}

	// Leaving exclusive mode on the last question needs no confirmation.
	m.Apply(ProctorSignal{Kind: SignalExclusiveExited})
	if m.Phase() != PhaseInProgress {
		t.Fatalf("expected no confirmation on last question, got %s", m.Phase())
	}

	m.Apply(SelectAnswer{Option: 2})
	effects = m.Apply(Advance{})
	effects = append(effects, m.Apply(Advance{})...)
	effects = append(effects, m.Apply(Tick{Gen: last.Gen})...)
	if n := countEffects[SubmitAnswers](effects); n != 1 {
		t.Fatalf("expected one submission, got %d", n)
	}
	submit, _ := findEffect[SubmitAnswers](effects)
	got := EncodeAnswers(submit.Answers)
	want := []string{"A", domain.SkipAnswer, "C"}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("expected answers %v, got %v", want, got)
		}
	}
	if m.Phase() != PhaseSubmitting {
		t.Fatalf("expected submitting, got %s", m.Phase())
	}
}

func TestExitConfirmContinueResumesTimer(t *testing.T) {
	m, gen := startedMachine(t, sampleQuiz(3))
	tickDown(m, gen, 5)
	if m.Remaining() != 25 {
		t.Fatalf("expected 25s remaining, got %d", m.Remaining())
	}

	effects := m.Apply(ProctorSignal{Kind: SignalExclusiveExited})
	if m.Phase() != PhaseExitConfirm || !hasEffect[StopTimer](effects) {
		t.Fatalf("expected exit confirmation with paused timer, got %s %#v", m.Phase(), effects)
	}

	// Ticks delivered while the dialog is open do nothing.
	tickDown(m, gen, 10)
	if m.Remaining() != 25 {
		t.Fatalf("expected timer paused at 25, got %d", m.Remaining())
	}

	before := m.Answers()
	effects = m.Apply(CancelExit{})
	if m.Phase() != PhaseInProgress {
		t.Fatalf("expected in progress after continue, got %s", m.Phase())
	}
	if !hasEffect[RequestExclusive](effects) {
		t.Fatalf("expected exclusive mode re-request, got %#v", effects)
	}
	resumed, ok := findEffect[StartTimer](effects)
	if !ok || resumed.Gen == gen {
		t.Fatalf("expected resumed timer with new generation, got %#v", effects)
	}
	if m.Remaining() != 25 || m.Index() != 0 {
		t.Fatalf("expected resume at 25s on question 0, got %ds on %d", m.Remaining(), m.Index())
	}
	after := m.Answers()
	for i := range before {
		if before[i] != after[i] {
			t.Fatalf("continue changed answers: %v -> %v", before, after)
		}
	}

	tickDown(m, resumed.Gen, 1)
	if m.Remaining() != 24 {
		t.Fatalf("expected countdown to continue, got %d", m.Remaining())
	}
}

func TestSimultaneousExitTriggersCollapse(t *testing.T) {
	m, _ := startedMachine(t, sampleQuiz(3))

	var effects []Effect
	effects = append(effects, m.Apply(ProctorSignal{Kind: SignalExclusiveExited})...)
	effects = append(effects, m.Apply(ProctorSignal{Kind: SignalBackNavigation})...)
	effects = append(effects, m.Apply(ProctorExitDetected{})...)

	if m.Phase() != PhaseExitConfirm {
		t.Fatalf("expected exit confirmation, got %s", m.Phase())
	}
	if n := countEffects[StopTimer](effects); n != 1 {
		t.Fatalf("expected a single confirmation, got %d timer stops", n)
	}
}

func TestConfirmExitSubmitsCurrentAnswers(t *testing.T) {
	m, _ := startedMachine(t, sampleQuiz(3))
	m.Apply(SelectAnswer{Option: 1})
	m.Apply(ProctorSignal{Kind: SignalBackNavigation})

	effects := m.Apply(ConfirmExit{})
	submit, ok := findEffect[SubmitAnswers](effects)
	if !ok {
		t.Fatalf("expected submission on confirmed exit, got %#v", effects)
	}
	got := EncodeAnswers(submit.Answers)
	want := []string{"B", domain.SkipAnswer, domain.SkipAnswer}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("expected %v, got %v", want, got)
		}
	}
	if m.Phase() != PhaseSubmitting {
		t.Fatalf("expected submitting, got %s", m.Phase())
	}
}

func TestSubmitFailureRevertsAndRetries(t *testing.T) {
	m, _ := startedMachine(t, sampleQuiz(1))
	m.Apply(SelectAnswer{Option: 3})
	m.Apply(Advance{})
	before := m.Answers()

	m.Apply(SubmitFailed{Err: errors.New("network down")})
	if m.Phase() != PhaseInProgress {
		t.Fatalf("expected revert to in progress, got %s", m.Phase())
	}
	var subErr *SubmissionError
	if !errors.As(m.Err(), &subErr) {
		t.Fatalf("expected submission error, got %v", m.Err())
	}
	if v := m.View(); v.Error == "" {
		t.Fatalf("expected error surfaced in view")
	}
	after := m.Answers()
	if before[0] != after[0] {
		t.Fatalf("failure changed answers: %v -> %v", before, after)
	}

	effects := m.Apply(Advance{})
	if !hasEffect[SubmitAnswers](effects) {
		t.Fatalf("expected retry via advance, got %#v", effects)
	}
	m.Apply(SubmitSucceeded{Result: domain.SubmissionResult{CorrectCount: 1, TotalCount: 1, ScorePercentage: 100}})
	if m.Phase() != PhaseSubmitted || m.Err() != nil {
		t.Fatalf("expected submitted without error, got %s %v", m.Phase(), m.Err())
	}
}

func TestRetryAfterEarlyExitSubmitsInsteadOfAdvancing(t *testing.T) {
	m, _ := startedMachine(t, sampleQuiz(3))
	m.Apply(ProctorExitDetected{})
	m.Apply(ConfirmExit{})
	m.Apply(SubmitFailed{Err: errors.New("timeout")})

	effects := m.Apply(Advance{})
	if !hasEffect[SubmitAnswers](effects) || m.Index() != 0 {
		t.Fatalf("expected resubmission from question 0, got index %d %#v", m.Index(), effects)
	}
}

func TestDoubleAdvanceOnSingleQuestion(t *testing.T) {
	m, _ := startedMachine(t, sampleQuiz(1))
	effects := m.Apply(Advance{})
	effects = append(effects, m.Apply(Advance{})...)
	if n := countEffects[SubmitAnswers](effects); n != 1 {
		t.Fatalf("expected exactly one submission, got %d", n)
	}
}

func TestStaleTickAfterAdvanceIsIgnored(t *testing.T) {
	m, gen := startedMachine(t, sampleQuiz(3))
	tickDown(m, gen, 29)

	m.Apply(Advance{})
	m.Apply(Tick{Gen: gen})
	if m.Index() != 1 {
		t.Fatalf("expected a single advance, got index %d", m.Index())
	}
	if m.Remaining() != 30 {
		t.Fatalf("expected fresh countdown, got %d", m.Remaining())
	}
}

func TestPassedSlotsAreFrozen(t *testing.T) {
	m, _ := startedMachine(t, sampleQuiz(3))
	m.Apply(SelectAnswer{Option: 0})
	m.Apply(Advance{})
	m.Apply(SelectAnswer{Option: 3})

	answers := m.Answers()
	if answers[0].Value != "A" || answers[1].Value != "D" {
		t.Fatalf("expected selection on current index only, got %+v", answers)
	}
	if len(answers) != 3 {
		t.Fatalf("expected answer store sized to questions, got %d", len(answers))
	}
}

func TestLoadFailureIsRetryable(t *testing.T) {
	m := NewMachine(MachineConfig{QuizID: "quiz-1"})
	m.Apply(LoadRequested{})
	m.Apply(QuizLoadFailed{Err: domain.ErrQuizNotFound})
	if m.Phase() != PhaseLoadFailed {
		t.Fatalf("expected load failed, got %s", m.Phase())
	}
	var loadErr *LoadError
	if !errors.As(m.Err(), &loadErr) || !errors.Is(m.Err(), domain.ErrQuizNotFound) {
		t.Fatalf("expected wrapped load error, got %v", m.Err())
	}

	// Session events are ignored before the quiz is loaded.
	if effects := m.Apply(Advance{}); effects != nil {
		t.Fatalf("expected advance ignored, got %#v", effects)
	}

	if effects := m.Apply(LoadRequested{}); !hasEffect[FetchQuiz](effects) {
		t.Fatalf("expected refetch, got %#v", effects)
	}
	m.Apply(QuizLoaded{Quiz: sampleQuiz(2)})
	if m.Phase() != PhaseInProgress || len(m.Answers()) != 2 {
		t.Fatalf("expected loaded session, got %s with %d slots", m.Phase(), len(m.Answers()))
	}
}

func TestInvalidQuizFailsLoad(t *testing.T) {
	m := NewMachine(MachineConfig{QuizID: "quiz-1"})
	m.Apply(LoadRequested{})
	m.Apply(QuizLoaded{Quiz: domain.Quiz{ID: "quiz-1"}})
	if m.Phase() != PhaseLoadFailed || !errors.Is(m.Err(), domain.ErrInvalidQuiz) {
		t.Fatalf("expected invalid quiz load failure, got %s %v", m.Phase(), m.Err())
	}
}

func TestUnsupportedExclusiveModeNoticeOnce(t *testing.T) {
	m, _ := startedMachine(t, sampleQuiz(2))
	m.Apply(ProctorSignal{Kind: SignalExclusiveUnsupported})
	if v := m.View(); v.Notice != NoticeExclusiveUnsupported || v.Proctor != ProctorNormal {
		t.Fatalf("expected degraded notice, got %+v", v)
	}
	m.notice = ""
	m.Apply(ProctorSignal{Kind: SignalExclusiveUnsupported})
	if v := m.View(); v.Notice != "" {
		t.Fatalf("expected notice only once, got %q", v.Notice)
	}
	if m.Phase() != PhaseInProgress {
		t.Fatalf("expected quiz to proceed, got %s", m.Phase())
	}
}

func TestCloseAttemptWarnsWithoutStateChange(t *testing.T) {
	m, _ := startedMachine(t, sampleQuiz(2))
	effects := m.Apply(ProctorSignal{Kind: SignalCloseAttempt})
	if !hasEffect[WarnLeave](effects) {
		t.Fatalf("expected leave warning, got %#v", effects)
	}
	if m.Phase() != PhaseInProgress || m.Index() != 0 {
		t.Fatalf("expected no state change, got %s at %d", m.Phase(), m.Index())
	}
}

func TestSubmittedReleasesExclusiveAndIgnoresExit(t *testing.T) {
	m, _ := startedMachine(t, sampleQuiz(1))
	m.Apply(SelectAnswer{Option: 0})
	m.Apply(Advance{})
	effects := m.Apply(SubmitSucceeded{
		Result: domain.SubmissionResult{CorrectCount: 1, TotalCount: 1, ScorePercentage: 100},
		Leaderboard: []domain.LeaderboardRow{
			{Rank: 1, StudentID: "u1", StudentName: "Alice", Score: 100},
			{Rank: 2, StudentID: "u2", StudentName: "Bob", Score: 50},
		},
	})
	if !hasEffect[ReleaseExclusive](effects) || !hasEffect[SignalReturn](effects) {
		t.Fatalf("expected release and return, got %#v", effects)
	}

	if effects := m.Apply(ProctorSignal{Kind: SignalExclusiveExited}); effects != nil {
		t.Fatalf("expected own release to be ignored, got %#v", effects)
	}
	if effects := m.Apply(Advance{}); effects != nil {
		t.Fatalf("expected no transition out of submitted, got %#v", effects)
	}

	v := m.View()
	if v.Phase != PhaseSubmitted || v.Result == nil || v.Review == nil {
		t.Fatalf("expected result view, got %+v", v)
	}
	if !v.Leaderboard[0].IsCurrentUser || v.Leaderboard[1].IsCurrentUser {
		t.Fatalf("expected current user highlighted, got %+v", v.Leaderboard)
	}
	if v.Return == nil || v.Return.Origin != "catalog" {
		t.Fatalf("expected return signal with origin, got %+v", v.Return)
	}
	if v.Progress != 1 {
		t.Fatalf("expected full progress, got %v", v.Progress)
	}
}

func TestViewHidesAnswerKey(t *testing.T) {
	m, _ := startedMachine(t, sampleQuiz(2))
	m.Apply(SelectAnswer{Option: 2})
	v := m.View()
	if v.Question == nil || v.Question.Selected != 2 {
		t.Fatalf("expected selected option 2, got %+v", v.Question)
	}
	if v.Progress != 0.5 || v.TimeRemaining != 30 {
		t.Fatalf("unexpected progress/time: %v %d", v.Progress, v.TimeRemaining)
	}
}

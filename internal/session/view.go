package session

import "quiz-session-engine/internal/domain"

// QuestionView is the current question without its answer key.
type QuestionView struct {
	ID       string   `json:"id,omitempty"`
	Text     string   `json:"text"`
	Options  []string `json:"options"`
	Selected int      `json:"selected"` // -1 when nothing is selected
}

// LeaderboardEntry is a leaderboard row flagged for the session's own user.
type LeaderboardEntry struct {
	domain.LeaderboardRow
	IsCurrentUser bool `json:"isCurrentUser"`
}

// ReturnSignal tells the host to navigate away once results were shown.
type ReturnSignal struct {
	Origin string `json:"origin,omitempty"`
}

// View is the renderable snapshot of a session.
type View struct {
	QuizID        string                   `json:"quizId"`
	Title         string                   `json:"title,omitempty"`
	Phase         Phase                    `json:"phase"`
	QuestionIndex int                      `json:"questionIndex"`
	QuestionCount int                      `json:"questionCount"`
	Question      *QuestionView            `json:"question,omitempty"`
	TimeRemaining int                      `json:"timeRemaining"`
	Progress      float64                  `json:"progress"`
	Proctor       ProctorState             `json:"proctor"`
	Notice        string                   `json:"notice,omitempty"`
	Error         string                   `json:"error,omitempty"`
	Err           error                    `json:"-"`
	Result        *domain.SubmissionResult `json:"result,omitempty"`
	Leaderboard   []LeaderboardEntry       `json:"leaderboard"`
	Review        *Review                  `json:"review,omitempty"`
	Return        *ReturnSignal            `json:"return,omitempty"`
}

// View renders the current state.
func (m *Machine) View() View {
	v := View{
		QuizID:        m.cfg.QuizID,
		Title:         m.quiz.Title,
		Phase:         m.phase,
		QuestionIndex: m.index,
		QuestionCount: len(m.quiz.Questions),
		TimeRemaining: m.timer.Remaining(),
		Proctor:       m.proctor.state,
		Notice:        m.notice,
		Err:           m.err,
	}
	if m.err != nil {
		v.Error = m.err.Error()
	}

	switch m.phase {
	case PhaseInProgress, PhaseExitConfirm, PhaseSubmitting:
		q := m.quiz.Questions[m.index]
		selected := -1
		if slot := m.answers.At(m.index); slot.State == Selected {
			for i, opt := range q.Options {
				if opt == slot.Value {
					selected = i
					break
				}
			}
		}
		options := make([]string, len(q.Options))
		copy(options, q.Options)
		v.Question = &QuestionView{ID: q.ID, Text: q.Text, Options: options, Selected: selected}
		v.Progress = float64(m.index+1) / float64(len(m.quiz.Questions))
	case PhaseSubmitted:
		v.Progress = 1
		v.TimeRemaining = 0
		result := *m.result
		v.Result = &result
		review := Render(m.quiz, m.answers.Snapshot(), result)
		v.Review = &review
		v.Leaderboard = make([]LeaderboardEntry, len(m.leaderboard))
		for i, row := range m.leaderboard {
			v.Leaderboard[i] = LeaderboardEntry{LeaderboardRow: row, IsCurrentUser: row.StudentID == m.cfg.UserID}
		}
		v.Return = &ReturnSignal{Origin: m.cfg.Origin}
	}
	return v
}

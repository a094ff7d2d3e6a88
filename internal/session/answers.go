package session

import (
	"errors"

	"quiz-session-engine/internal/domain"
)

var (
	// ErrSlotOutOfRange is returned for an index outside the answer sequence.
	ErrSlotOutOfRange = errors.New("answer slot out of range")
	// ErrSlotFrozen is returned when writing a slot the session has already moved past.
	ErrSlotFrozen = errors.New("answer slot is frozen")
)

// SlotState tells which of the three answer states a slot holds.
type SlotState uint8

const (
	NotAnswered SlotState = iota
	Selected
	Skipped
)

func (s SlotState) String() string {
	switch s {
	case Selected:
		return "selected"
	case Skipped:
		return "skipped"
	default:
		return "not_answered"
	}
}

// MarshalText encodes the state by name.
func (s SlotState) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// AnswerSlot holds the answer for one question. Value is set only when State is Selected.
type AnswerSlot struct {
	State SlotState `json:"state"`
	Value string    `json:"value,omitempty"`
}

// Transmit maps the slot to the value sent to the submission service.
func (a AnswerSlot) Transmit() string {
	if a.State == Selected {
		return a.Value
	}
	return domain.SkipAnswer
}

// AnswerStore is a fixed-length answer sequence aligned to the quiz questions.
// Slots below the frozen boundary are read-only.
type AnswerStore struct {
	slots  []AnswerSlot
	frozen int
}

// NewAnswerStore returns n slots, all NotAnswered.
func NewAnswerStore(n int) *AnswerStore {
	return &AnswerStore{slots: make([]AnswerSlot, n)}
}

func (a *AnswerStore) Len() int {
	return len(a.slots)
}

// At returns the slot at i, or a NotAnswered slot when i is out of range.
func (a *AnswerStore) At(i int) AnswerSlot {
	if i < 0 || i >= len(a.slots) {
		return AnswerSlot{}
	}
	return a.slots[i]
}

// Select overwrites slot i with the given option value.
func (a *AnswerStore) Select(i int, value string) error {
	if err := a.writable(i); err != nil {
		return err
	}
	a.slots[i] = AnswerSlot{State: Selected, Value: value}
	return nil
}

// SkipIfUnanswered marks slot i Skipped unless it already holds an answer.
// It reports whether the slot changed.
func (a *AnswerStore) SkipIfUnanswered(i int) (bool, error) {
	if err := a.writable(i); err != nil {
		return false, err
	}
	if a.slots[i].State != NotAnswered {
		return false, nil
	}
	a.slots[i] = AnswerSlot{State: Skipped}
	return true, nil
}

// Freeze makes every slot below upTo read-only. The boundary never moves back.
func (a *AnswerStore) Freeze(upTo int) {
	if upTo > len(a.slots) {
		upTo = len(a.slots)
	}
	if upTo > a.frozen {
		a.frozen = upTo
	}
}

// Snapshot returns a copy of all slots.
func (a *AnswerStore) Snapshot() []AnswerSlot {
	out := make([]AnswerSlot, len(a.slots))
	copy(out, a.slots)
	return out
}

func (a *AnswerStore) writable(i int) error {
	if i < 0 || i >= len(a.slots) {
		return ErrSlotOutOfRange
	}
	if i < a.frozen {
		return ErrSlotFrozen
	}
	return nil
}

// EncodeAnswers maps slots to transmittable values.
func EncodeAnswers(slots []AnswerSlot) []string {
	out := make([]string, len(slots))
	for i, slot := range slots {
		out[i] = slot.Transmit()
	}
	return out
}

package session

import (
	"context"
	"errors"
)

// ErrExclusiveUnsupported is returned by guards whose environment has no exclusive mode.
var ErrExclusiveUnsupported = errors.New("exclusive mode not supported")

// NoticeExclusiveUnsupported is surfaced once when the session runs in normal mode.
const NoticeExclusiveUnsupported = "exclusive mode is not available; the quiz continues in normal mode"

// SignalKind is a presentation event reported by a ProctoringGuard.
type SignalKind uint8

const (
	SignalExclusiveEntered SignalKind = iota + 1
	SignalExclusiveUnsupported
	SignalExclusiveExited
	SignalBackNavigation
	SignalCloseAttempt
)

var signalNames = map[SignalKind]string{
	SignalExclusiveEntered:     "exclusive_entered",
	SignalExclusiveUnsupported: "exclusive_unsupported",
	SignalExclusiveExited:      "exclusive_exited",
	SignalBackNavigation:       "back_navigation",
	SignalCloseAttempt:         "close_attempt",
}

func (k SignalKind) String() string {
	if name, ok := signalNames[k]; ok {
		return name
	}
	return "unknown"
}

// ParseSignal maps a wire name back to a SignalKind.
func ParseSignal(name string) (SignalKind, bool) {
	for kind, n := range signalNames {
		if n == name {
			return kind, true
		}
	}
	return 0, false
}

// ProctoringGuard abstracts the exclusive presentation mode and navigation
// interception of the environment the session is shown in.
type ProctoringGuard interface {
	// RequestExclusive asks for exclusive mode. Entering may be confirmed later
	// through a SignalExclusiveEntered.
	RequestExclusive(ctx context.Context) error
	// ReleaseExclusive leaves exclusive mode on the session's own behalf.
	ReleaseExclusive(ctx context.Context) error
	// WarnLeave shows the environment's generic leave warning.
	WarnLeave(ctx context.Context) error
	// Signals yields reports the guard raises on its own. Nil when reports
	// reach the session through Controller.Signal instead.
	Signals() <-chan SignalKind
}

// HeadlessGuard is a guard for environments without any presentation layer.
type HeadlessGuard struct{}

func (HeadlessGuard) RequestExclusive(context.Context) error { return ErrExclusiveUnsupported }
func (HeadlessGuard) ReleaseExclusive(context.Context) error { return nil }
func (HeadlessGuard) WarnLeave(context.Context) error        { return nil }
func (HeadlessGuard) Signals() <-chan SignalKind             { return nil }

// ProctorState is the session's view of the presentation mode.
type ProctorState string

const (
	ProctorIdle      ProctorState = "idle"
	ProctorRequested ProctorState = "requested"
	ProctorExclusive ProctorState = "exclusive"
	ProctorNormal    ProctorState = "normal"
	ProctorExited    ProctorState = "exited"
	ProctorReleased  ProctorState = "released"
)

// proctorAction is what the machine must do in response to a guard signal.
type proctorAction uint8

const (
	proctorNone proctorAction = iota
	proctorRaiseExit
	proctorWarnLeave
)

// proctorTracker keeps the presentation state and decides which signals are
// unauthorized exits.
type proctorTracker struct {
	state       ProctorState
	releasing   bool
	noticeShown bool
}

func newProctorTracker() proctorTracker {
	return proctorTracker{state: ProctorIdle}
}

func (p *proctorTracker) requested() {
	p.releasing = false
	if p.state != ProctorNormal {
		p.state = ProctorRequested
	}
}

// released marks exits from now on as initiated by the session itself.
func (p *proctorTracker) released() {
	p.releasing = true
	p.state = ProctorReleased
}

// exitPermitted records an exit on the final question, which needs no confirmation.
func (p *proctorTracker) exitPermitted() {
	p.state = ProctorExited
}

// signal updates the state and returns the action to take. notice is non-empty
// the first time the environment turns out not to support exclusive mode.
func (p *proctorTracker) signal(kind SignalKind, inProgress bool) (action proctorAction, notice string) {
	switch kind {
	case SignalExclusiveEntered:
		if !p.releasing {
			p.state = ProctorExclusive
		}
	case SignalExclusiveUnsupported:
		p.state = ProctorNormal
		if !p.noticeShown {
			p.noticeShown = true
			notice = NoticeExclusiveUnsupported
		}
	case SignalExclusiveExited:
		if p.releasing {
			p.state = ProctorReleased
			return proctorNone, ""
		}
		if p.state == ProctorNormal {
			return proctorNone, ""
		}
		p.state = ProctorExited
		return proctorRaiseExit, ""
	case SignalBackNavigation:
		if inProgress {
			return proctorRaiseExit, ""
		}
	case SignalCloseAttempt:
		if !p.releasing {
			return proctorWarnLeave, ""
		}
	}
	return proctorNone, notice
}

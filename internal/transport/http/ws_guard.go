package http

import (
	"context"
	"errors"

	"quiz-session-engine/internal/session"
)

var errConnClosed = errors.New("websocket connection closed")

const (
	actionRequestExclusive = "request_exclusive"
	actionReleaseExclusive = "release_exclusive"
	actionLeaveWarning     = "leave_warning"
)

type commandPayload struct {
	Action string `json:"action"`
}

// wsGuard is the proctoring guard of a browser client. Commands are sent to
// the client as "command" messages; the client reports what happened with
// "proctor" messages, which the read loop passes to Controller.Signal.
type wsGuard struct {
	out *outbox
}

func newWSGuard(out *outbox) *wsGuard {
	return &wsGuard{out: out}
}

func (g *wsGuard) RequestExclusive(ctx context.Context) error {
	return g.command(ctx, actionRequestExclusive)
}

func (g *wsGuard) ReleaseExclusive(ctx context.Context) error {
	return g.command(ctx, actionReleaseExclusive)
}

func (g *wsGuard) WarnLeave(ctx context.Context) error {
	return g.command(ctx, actionLeaveWarning)
}

func (g *wsGuard) Signals() <-chan session.SignalKind {
	return nil
}

func (g *wsGuard) command(ctx context.Context, action string) error {
	return g.out.push(ctx, outboundMessage{Type: "command", Payload: commandPayload{Action: action}})
}

// outbox serializes writes to one websocket connection.
type outbox struct {
	send       chan outboundMessage
	closing    chan struct{} // closed when the handler tears down
	writerDone chan struct{} // closed when the writer goroutine exits
}

func newOutbox() *outbox {
	return &outbox{
		send:       make(chan outboundMessage, 16),
		closing:    make(chan struct{}),
		writerDone: make(chan struct{}),
	}
}

func (o *outbox) push(ctx context.Context, msg outboundMessage) error {
	select {
	case o.send <- msg:
		return nil
	case <-o.closing:
		return errConnClosed
	case <-o.writerDone:
		return errConnClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}

package http

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/gorilla/websocket"

	"quiz-session-engine/internal/app"
	"quiz-session-engine/internal/session"
)

type WSHandler struct {
	service  *app.SessionService
	upgrader websocket.Upgrader
	logger   *slog.Logger
}

func NewWSHandler(service *app.SessionService, logger *slog.Logger) *WSHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &WSHandler{
		service: service,
		logger:  logger,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
	}
}

type inboundMessage struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

type selectPayload struct {
	Option int `json:"option"`
}

type confirmExitPayload struct {
	Submit bool `json:"submit"`
}

type proctorPayload struct {
	Signal string `json:"signal"`
}

type outboundMessage struct {
	Type    string `json:"type"`
	Payload any    `json:"payload"`
}

type sessionPayload struct {
	ID string `json:"id"`
}

type errorPayload struct {
	Message string `json:"message"`
}

// ServeWS upgrades HTTP requests to websockets and runs one quiz attempt per connection.
// Closing the connection abandons an unsubmitted attempt.
func (h *WSHandler) ServeWS(w http.ResponseWriter, r *http.Request) {
	quizID := r.URL.Query().Get("quizId")
	userID := r.URL.Query().Get("userId")
	displayName := r.URL.Query().Get("name")
	origin := r.URL.Query().Get("origin")
	if quizID == "" || userID == "" || displayName == "" {
		http.Error(w, "missing quizId, userId, or name", http.StatusBadRequest)
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn("ws upgrade failed", "error", err)
		return
	}
	defer conn.Close()

	out := newOutbox()
	go func() {
		defer close(out.writerDone)
		for msg := range out.send {
			if err := conn.WriteJSON(msg); err != nil {
				h.logger.Warn("ws write error", "error", err)
				return
			}
		}
	}()

	guard := newWSGuard(out)
	sessionID, ctrl, err := h.service.Start(r.Context(), app.StartRequest{
		QuizID:      quizID,
		UserID:      userID,
		DisplayName: displayName,
		Origin:      origin,
		Guard:       guard,
	})
	if ctrl == nil {
		_ = out.push(r.Context(), errorMessage(err))
		close(out.closing)
		close(out.send)
		<-out.writerDone
		return
	}
	if err != nil {
		// the state message carries the load failure; the client may retry with "load"
		h.logger.Info("quiz load failed", "session_id", sessionID, "error", err)
	}
	log := h.logger.With("session_id", sessionID)
	_ = out.push(r.Context(), outboundMessage{Type: "session", Payload: sessionPayload{ID: sessionID}})

	views, cancel := ctrl.Subscribe()
	forwardDone := make(chan struct{})
	go func() {
		defer close(forwardDone)
		returned := ctrl.Returned()
		for {
			select {
			case v, ok := <-views:
				if !ok {
					return
				}
				if out.push(context.Background(), outboundMessage{Type: "state", Payload: v}) != nil {
					return
				}
			case sig := <-returned:
				// the final state view is published before the return signal
				returned = nil
				if out.push(context.Background(), outboundMessage{Type: "return", Payload: sig}) != nil {
					return
				}
			case <-out.closing:
				return
			}
		}
	}()

	for {
		var inbound inboundMessage
		if err := conn.ReadJSON(&inbound); err != nil {
			break
		}
		h.service.Touch(r.Context(), sessionID)
		if err := h.dispatch(r.Context(), ctrl, inbound); err != nil {
			log.Debug("ws message rejected", "type", inbound.Type, "error", err)
			if out.push(r.Context(), errorMessage(err)) != nil {
				break
			}
		}
	}

	cancel()
	h.service.End(context.Background(), sessionID)
	close(out.closing)
	<-forwardDone
	close(out.send)
	<-out.writerDone
}

func (h *WSHandler) dispatch(ctx context.Context, ctrl *session.Controller, inbound inboundMessage) error {
	switch inbound.Type {
	case "select":
		var payload selectPayload
		if err := json.Unmarshal(inbound.Payload, &payload); err != nil {
			return errInvalidPayload
		}
		_, err := ctrl.SelectAnswer(ctx, payload.Option)
		return err
	case "advance":
		_, err := ctrl.Advance(ctx)
		return err
	case "confirmExit":
		var payload confirmExitPayload
		if err := json.Unmarshal(inbound.Payload, &payload); err != nil {
			return errInvalidPayload
		}
		_, err := ctrl.ConfirmExit(ctx, payload.Submit)
		return err
	case "proctor":
		var payload proctorPayload
		if err := json.Unmarshal(inbound.Payload, &payload); err != nil {
			return errInvalidPayload
		}
		kind, ok := session.ParseSignal(payload.Signal)
		if !ok {
			return errUnknownSignal
		}
		_, err := ctrl.Signal(ctx, kind)
		return err
	case "load":
		_, err := ctrl.Load(ctx)
		return err
	default:
		return errUnsupportedType
	}
}

func errorMessage(err error) outboundMessage {
	return outboundMessage{Type: "error", Payload: errorPayload{Message: err.Error()}}
}

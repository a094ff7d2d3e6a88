package http

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"quiz-session-engine/internal/app"
	"quiz-session-engine/internal/domain"
)

var (
	errInvalidPayload  = errors.New("invalid payload")
	errUnknownSignal   = errors.New("unknown proctor signal")
	errUnsupportedType = errors.New("unsupported message type")
)

type envelope struct {
	OK    bool   `json:"ok"`
	Data  any    `json:"data,omitempty"`
	Error string `json:"error,omitempty"`
	Meta  meta   `json:"meta"`
}

type meta struct {
	RequestID string `json:"request_id,omitempty"`
}

// NewRouter wires the HTTP surface: health, leaderboards, session state and the websocket endpoint.
func NewRouter(service *app.SessionService, logger *slog.Logger) http.Handler {
	if logger == nil {
		logger = slog.Default()
	}
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, r, http.StatusOK, envelope{OK: true})
	})

	r.Route("/api/v1", func(api chi.Router) {
		api.Get("/quizzes/{quizID}/leaderboard", func(w http.ResponseWriter, r *http.Request) {
			rows, err := service.Leaderboard(r.Context(), chi.URLParam(r, "quizID"))
			if err != nil {
				writeError(w, r, logger, err)
				return
			}
			writeJSON(w, r, http.StatusOK, envelope{OK: true, Data: rows})
		})
		api.Get("/sessions/{sessionID}", func(w http.ResponseWriter, r *http.Request) {
			ctrl, err := service.Get(chi.URLParam(r, "sessionID"))
			if err != nil {
				writeError(w, r, logger, err)
				return
			}
			writeJSON(w, r, http.StatusOK, envelope{OK: true, Data: ctrl.Current()})
		})
	})

	r.Get("/ws", NewWSHandler(service, logger).ServeWS)
	return r
}

func writeError(w http.ResponseWriter, r *http.Request, logger *slog.Logger, err error) {
	switch {
	case errors.Is(err, domain.ErrQuizNotFound), errors.Is(err, domain.ErrSessionNotFound):
		writeJSON(w, r, http.StatusNotFound, envelope{Error: err.Error()})
	default:
		logger.Error("request failed", "path", r.URL.Path, "error", err)
		writeJSON(w, r, http.StatusInternalServerError, envelope{Error: "internal error"})
	}
}

func writeJSON(w http.ResponseWriter, r *http.Request, status int, body envelope) {
	body.Meta.RequestID = middleware.GetReqID(r.Context())
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

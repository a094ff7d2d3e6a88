package http

import (
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"quiz-session-engine/internal/app"
	"quiz-session-engine/internal/infra/memory"
)

type testEnv struct {
	server  *httptest.Server
	service *app.SessionService
	store   *memory.SessionStore
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	quizzes := memory.NewQuizRepository(memory.SampleQuizzes(), time.Minute)
	grader := app.NewGrader(quizzes, memory.NewAttemptStore(), app.DefaultGradingConfig())
	store := memory.NewSessionStore()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	service := app.NewSessionService(store, quizzes, grader, app.SessionConfig{
		DefaultTimeLimit: 30,
		TickInterval:     time.Hour,
		SubmitTimeout:    time.Second,
	}, logger)

	server := httptest.NewServer(NewRouter(service, logger))
	t.Cleanup(server.Close)
	return &testEnv{server: server, service: service, store: store}
}

func (e *testEnv) dial(t *testing.T, query string) *websocket.Conn {
	t.Helper()
	u := "ws" + e.server.URL[len("http"):] + "/ws?" + query
	conn, _, err := websocket.DefaultDialer.Dial(u, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	return conn
}

type wsMessage struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

type stateView struct {
	Phase         string `json:"phase"`
	QuestionIndex int    `json:"questionIndex"`
	Proctor       string `json:"proctor"`
	Result        *struct {
		CorrectCount    int     `json:"correctCount"`
		ScorePercentage float64 `json:"scorePercentage"`
	} `json:"result"`
	Leaderboard []struct {
		StudentName   string `json:"studentName"`
		IsCurrentUser bool   `json:"isCurrentUser"`
	} `json:"leaderboard"`
}

func readNext(conn *websocket.Conn, t *testing.T) wsMessage {
	t.Helper()
	var msg wsMessage
	_ = conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	if err := conn.ReadJSON(&msg); err != nil {
		t.Fatalf("read json: %v", err)
	}
	return msg
}

// readUntil reads messages until one matches, returning it. Other messages are skipped.
func readUntil(conn *websocket.Conn, t *testing.T, match func(wsMessage) bool) wsMessage {
	t.Helper()
	for i := 0; i < 50; i++ {
		if msg := readNext(conn, t); match(msg) {
			return msg
		}
	}
	t.Fatalf("expected message not received")
	return wsMessage{}
}

func stateIn(phase string, index int) func(wsMessage) bool {
	return func(msg wsMessage) bool {
		if msg.Type != "state" {
			return false
		}
		var v stateView
		_ = json.Unmarshal(msg.Payload, &v)
		return v.Phase == phase && v.QuestionIndex == index
	}
}

func send(t *testing.T, conn *websocket.Conn, typ string, payload any) {
	t.Helper()
	if err := conn.WriteJSON(map[string]any{"type": typ, "payload": payload}); err != nil {
		t.Fatalf("write %s: %v", typ, err)
	}
}

func TestWebSocketQuizFlow(t *testing.T) {
	env := newTestEnv(t)
	conn := env.dial(t, "quizId=quiz-1&userId=u1&name=Alice&origin=catalog")
	defer conn.Close()

	cmd := readUntil(conn, t, func(m wsMessage) bool { return m.Type == "command" })
	var action commandPayload
	_ = json.Unmarshal(cmd.Payload, &action)
	if action.Action != actionRequestExclusive {
		t.Fatalf("expected exclusive request, got %q", action.Action)
	}
	readUntil(conn, t, stateIn("in_progress", 0))

	send(t, conn, "proctor", map[string]any{"signal": "exclusive_entered"})
	for i, option := range []int{1, 1, 0} {
		send(t, conn, "select", map[string]any{"option": option})
		send(t, conn, "advance", nil)
		if i < 2 {
			readUntil(conn, t, stateIn("in_progress", i+1))
		}
	}

	final := readUntil(conn, t, stateIn("submitted", 2))
	var v stateView
	if err := json.Unmarshal(final.Payload, &v); err != nil {
		t.Fatalf("decode state: %v", err)
	}
	if v.Result == nil || v.Result.ScorePercentage != 100 {
		t.Fatalf("expected perfect score, got %+v", v.Result)
	}
	if len(v.Leaderboard) != 1 || !v.Leaderboard[0].IsCurrentUser {
		t.Fatalf("expected highlighted leaderboard, got %+v", v.Leaderboard)
	}

	ret := readUntil(conn, t, func(m wsMessage) bool { return m.Type == "return" })
	var sig struct {
		Origin string `json:"origin"`
	}
	_ = json.Unmarshal(ret.Payload, &sig)
	if sig.Origin != "catalog" {
		t.Fatalf("expected origin catalog, got %q", sig.Origin)
	}
}

func TestWebSocketExitConfirm(t *testing.T) {
	env := newTestEnv(t)
	conn := env.dial(t, "quizId=quiz-1&userId=u1&name=Alice")
	defer conn.Close()
	readUntil(conn, t, stateIn("in_progress", 0))

	send(t, conn, "proctor", map[string]any{"signal": "exclusive_entered"})
	send(t, conn, "proctor", map[string]any{"signal": "exclusive_exited"})
	readUntil(conn, t, stateIn("exit_confirm", 0))

	send(t, conn, "confirmExit", map[string]any{"submit": false})
	readUntil(conn, t, stateIn("in_progress", 0))

	send(t, conn, "proctor", map[string]any{"signal": "back_navigation"})
	readUntil(conn, t, stateIn("exit_confirm", 0))
	send(t, conn, "confirmExit", map[string]any{"submit": true})
	readUntil(conn, t, stateIn("submitted", 0))
}

func TestWebSocketProctorSignalOrderedWithAdvance(t *testing.T) {
	env := newTestEnv(t)
	conn := env.dial(t, "quizId=quiz-1&userId=u1&name=Alice")
	defer conn.Close()
	readUntil(conn, t, stateIn("in_progress", 0))

	send(t, conn, "proctor", map[string]any{"signal": "back_navigation"})
	send(t, conn, "advance", nil)
	readUntil(conn, t, stateIn("exit_confirm", 0))

	send(t, conn, "confirmExit", map[string]any{"submit": false})
	readUntil(conn, t, stateIn("in_progress", 0))
}

func TestWebSocketRejectsBadMessages(t *testing.T) {
	env := newTestEnv(t)
	conn := env.dial(t, "quizId=quiz-1&userId=u1&name=Alice")
	defer conn.Close()
	readUntil(conn, t, stateIn("in_progress", 0))

	send(t, conn, "teleport", nil)
	msg := readUntil(conn, t, func(m wsMessage) bool { return m.Type == "error" })
	var e errorPayload
	_ = json.Unmarshal(msg.Payload, &e)
	if e.Message != errUnsupportedType.Error() {
		t.Fatalf("unexpected error %q", e.Message)
	}

	send(t, conn, "proctor", map[string]any{"signal": "levitate"})
	msg = readUntil(conn, t, func(m wsMessage) bool { return m.Type == "error" })
	_ = json.Unmarshal(msg.Payload, &e)
	if e.Message != errUnknownSignal.Error() {
		t.Fatalf("unexpected error %q", e.Message)
	}
}

func TestWebSocketDisconnectAbandons(t *testing.T) {
	env := newTestEnv(t)
	conn := env.dial(t, "quizId=quiz-1&userId=u1&name=Alice")
	readUntil(conn, t, stateIn("in_progress", 0))
	send(t, conn, "select", map[string]any{"option": 1})
	if env.store.Len() != 1 {
		t.Fatalf("expected a registered session")
	}
	conn.Close()

	deadline := time.Now().Add(2 * time.Second)
	for env.store.Len() != 0 {
		if time.Now().After(deadline) {
			t.Fatalf("session not torn down after disconnect")
		}
		time.Sleep(10 * time.Millisecond)
	}

	resp, err := http.Get(env.server.URL + "/api/v1/quizzes/quiz-1/leaderboard")
	if err != nil {
		t.Fatalf("get leaderboard: %v", err)
	}
	defer resp.Body.Close()
	var body struct {
		OK   bool              `json:"ok"`
		Data []json.RawMessage `json:"data"`
	}
	_ = json.NewDecoder(resp.Body).Decode(&body)
	if !body.OK || len(body.Data) != 0 {
		t.Fatalf("expected no attempt recorded, got %+v", body)
	}
}

func TestWebSocketUnknownQuiz(t *testing.T) {
	env := newTestEnv(t)
	conn := env.dial(t, "quizId=missing&userId=u1&name=Alice")
	defer conn.Close()
	readUntil(conn, t, func(m wsMessage) bool {
		if m.Type != "state" {
			return false
		}
		var v stateView
		_ = json.Unmarshal(m.Payload, &v)
		return v.Phase == "load_failed"
	})
}

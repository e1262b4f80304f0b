package http

import (
	"context"
	"encoding/json"
	"strconv"
	"testing"
	"time"

	"funquiz-service/internal/domain"
	"funquiz-service/internal/game"
	"funquiz-service/internal/txn"
	"github.com/gorilla/websocket"
)

type wsMessage struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

func dialPlay(t *testing.T, env *testEnv, quizID int64, address string) *websocket.Conn {
	t.Helper()
	u := "ws" + env.server.URL[len("http"):] + "/ws/play?quizId=" + strconv.FormatInt(quizID, 10) + "&address=" + address
	conn, _, err := websocket.DefaultDialer.Dial(u, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	return conn
}

// readUntil skips messages until one of type typ arrives.
func readUntil(t *testing.T, conn *websocket.Conn, typ string, match func(json.RawMessage) bool) json.RawMessage {
	t.Helper()
	_ = conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	for {
		var msg wsMessage
		if err := conn.ReadJSON(&msg); err != nil {
			t.Fatalf("waiting for %s: %v", typ, err)
		}
		if msg.Type == typ && (match == nil || match(msg.Payload)) {
			return msg.Payload
		}
	}
}

func (e *testEnv) paidQuiz(t *testing.T) int64 {
	t.Helper()
	id := e.quiz.Seed(ownerAddr, quizInput("Live"))
	resp, body := e.do(t, "POST", "/quizzes/"+strconv.FormatInt(id, 10)+"/pay", playerAddr, nil)
	if resp.StatusCode != 202 {
		t.Fatalf("pay: %d %s", resp.StatusCode, body)
	}
	e.waitConfirmed(t, "pay:"+strconv.FormatInt(id, 10)+":"+playerAddr)
	return id
}

func TestPlayRefusesUnpaidWallet(t *testing.T) {
	env := newTestEnv(t, time.Hour)
	id := env.quiz.Seed(ownerAddr, quizInput("Unpaid"))
	conn := dialPlay(t, env, id, playerAddr)

	var payload errorPayload
	if err := json.Unmarshal(readUntil(t, conn, "error", nil), &payload); err != nil {
		t.Fatalf("decode error: %v", err)
	}
	if payload.Message == "" {
		t.Fatalf("expected an error message")
	}
}

func TestPlayAnswerDuringCountdownIsRefused(t *testing.T) {
	env := newTestEnv(t, time.Hour)
	id := env.paidQuiz(t)
	conn := dialPlay(t, env, id, playerAddr)

	var first sessionPayload
	if err := json.Unmarshal(readUntil(t, conn, "session", nil), &first); err != nil {
		t.Fatalf("decode session: %v", err)
	}
	if first.Session.Phase != game.PhaseCountdown || first.Session.Countdown != game.StartCountdown {
		t.Fatalf("unexpected first snapshot %+v", first.Session)
	}
	if len(first.Quiz.Questions) != domain.QuestionsPerQuiz {
		t.Fatalf("expected the quiz with the session, got %+v", first.Quiz)
	}

	if err := conn.WriteJSON(map[string]any{"type": "answer", "payload": map[string]int{"option": 1}}); err != nil {
		t.Fatalf("write answer: %v", err)
	}
	readUntil(t, conn, "error", nil)
}

func TestPlayAnswerFlow(t *testing.T) {
	env := newTestEnv(t, 20*time.Millisecond)
	id := env.paidQuiz(t)
	conn := dialPlay(t, env, id, playerAddr)
	readUntil(t, conn, "session", nil)

	readUntil(t, conn, "phase", func(raw json.RawMessage) bool {
		var snap game.Snapshot
		return json.Unmarshal(raw, &snap) == nil && snap.Phase == game.PhasePlaying
	})
	if err := conn.WriteJSON(map[string]any{"type": "answer", "payload": map[string]int{"option": 0}}); err != nil {
		t.Fatalf("write answer: %v", err)
	}
	var res game.Result
	if err := json.Unmarshal(readUntil(t, conn, "result", nil), &res); err != nil {
		t.Fatalf("decode result: %v", err)
	}
	if !res.Correct || res.QuestionIndex != 0 || res.Points <= domain.DefaultPoints {
		t.Fatalf("unexpected result %+v", res)
	}
}

func TestPlayTimeoutsThenSubmit(t *testing.T) {
	env := newTestEnv(t, time.Millisecond)
	id := env.paidQuiz(t)
	conn := dialPlay(t, env, id, playerAddr)

	var snap game.Snapshot
	if err := json.Unmarshal(readUntil(t, conn, "finished", nil), &snap); err != nil {
		t.Fatalf("decode finished: %v", err)
	}
	if snap.Score != 0 || snap.Finish != game.FinishAwaitingSubmission {
		t.Fatalf("unexpected finish %+v", snap)
	}

	if err := conn.WriteJSON(map[string]string{"type": "submit"}); err != nil {
		t.Fatalf("write submit: %v", err)
	}
	readUntil(t, conn, "transaction", func(raw json.RawMessage) bool {
		var st txn.Status
		return json.Unmarshal(raw, &st) == nil && st.IsConfirmed()
	})

	paid, err := env.quiz.HasPaidToPlay(context.Background(), id, playerAddr)
	if err != nil || !paid {
		t.Fatalf("expected paid player, got %v err=%v", paid, err)
	}
	if _, err := env.quiz.PlayerScore(context.Background(), id, playerAddr); err != nil {
		t.Fatalf("score: %v", err)
	}
}

package http

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"math/big"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"funquiz-service/internal/app"
	"funquiz-service/internal/chain"
	"funquiz-service/internal/domain"
	"funquiz-service/internal/infra/memory"
	"funquiz-service/internal/txn"
)

const (
	ownerAddr  = "0x00000000000000000000000000000000000000aa"
	playerAddr = "0x00000000000000000000000000000000000000bb"
)

type stubRenderer struct{}

func (stubRenderer) Render(context.Context, domain.CardDetails, string) ([]byte, error) {
	return []byte{0x89, 'P', 'N', 'G', '\r', '\n', 0x1a, '\n'}, nil
}

type stubPinner struct{}

func (stubPinner) PinFile(context.Context, string, []byte) (string, error) { return "QmImage", nil }
func (stubPinner) PinJSON(context.Context, string, any) (string, error)    { return "QmMeta", nil }

type testEnv struct {
	quiz    *chain.SimulatedQuiz
	card    *chain.SimulatedCard
	tracker *txn.Tracker
	server  *httptest.Server
}

func newTestEnv(t *testing.T, tick time.Duration) *testEnv {
	t.Helper()
	quiz := chain.NewSimulatedQuiz(ownerAddr, big.NewInt(1000), big.NewInt(100))
	card := chain.NewSimulatedCard(ownerAddr, big.NewInt(50))
	cache := memory.NewCache(time.Minute)
	reader := app.NewCachedReader(nil, quiz, card, cache, time.Minute)
	tracker := txn.NewTracker(nil, reader, 5*time.Second)

	svc := Services{
		Quizzes: app.NewQuizService(nil, reader, quiz, tracker),
		Play:    app.NewPlayService(nil, reader, quiz, tracker, memory.NewSessionStore()),
		Cards:   app.NewCardService(nil, reader, card, tracker, stubRenderer{}, stubPinner{}, cache, time.Minute),
		Players: app.NewPlayerService(nil, reader, nil, nil),
		Tracker: tracker,
	}
	server := httptest.NewServer(NewRouter(nil, svc, RouterConfig{Tick: tick}))
	t.Cleanup(server.Close)
	return &testEnv{quiz: quiz, card: card, tracker: tracker, server: server}
}

func quizInput(title string) domain.CreateQuizInput {
	questions := make([]domain.Question, domain.QuestionsPerQuiz)
	for i := range questions {
		questions[i] = domain.Question{
			Text:               "Question",
			Options:            [domain.OptionsPerQuestion]string{"a", "b", "c", "d"},
			CorrectAnswerIndex: i % domain.OptionsPerQuestion,
			TimeLimit:          domain.DefaultTimeLimit,
			Points:             domain.DefaultPoints,
		}
	}
	return domain.CreateQuizInput{Title: title, Description: "for tests", Questions: questions}
}

func (e *testEnv) do(t *testing.T, method, path, wallet string, body any) (*http.Response, []byte) {
	t.Helper()
	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("encode body: %v", err)
		}
		reader = bytes.NewReader(raw)
	}
	req, err := http.NewRequest(method, e.server.URL+path, reader)
	if err != nil {
		t.Fatalf("new request: %v", err)
	}
	if wallet != "" {
		req.Header.Set(WalletHeader, wallet)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("%s %s: %v", method, path, err)
	}
	defer resp.Body.Close()
	raw, _ := io.ReadAll(resp.Body)
	return resp, raw
}

// waitConfirmed polls the tracker endpoint until action settles.
func (e *testEnv) waitConfirmed(t *testing.T, action string) txn.Status {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		_, raw := e.do(t, http.MethodGet, "/transactions/"+action, "", nil)
		var st txn.Status
		if err := json.Unmarshal(raw, &st); err != nil {
			t.Fatalf("decode status: %v", err)
		}
		if st.Terminal() {
			if !st.IsConfirmed() {
				t.Fatalf("%s failed: %+v", action, st)
			}
			return st
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("%s never settled", action)
	return txn.Status{}
}

func TestHealthz(t *testing.T) {
	env := newTestEnv(t, time.Second)
	resp, body := env.do(t, http.MethodGet, "/healthz", "", nil)
	if resp.StatusCode != http.StatusOK || string(body) != "ok" {
		t.Fatalf("unexpected health response %d %q", resp.StatusCode, body)
	}
}

func TestGetQuizHidesAnswers(t *testing.T) {
	env := newTestEnv(t, time.Second)
	id := env.quiz.Seed(ownerAddr, quizInput("Public"))

	resp, body := env.do(t, http.MethodGet, "/quizzes/1", "", nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", resp.StatusCode, body)
	}
	if strings.Contains(string(body), "correctAnswerIndex") {
		t.Fatalf("answer key leaked: %s", body)
	}
	var view quizView
	if err := json.Unmarshal(body, &view); err != nil {
		t.Fatalf("decode quiz: %v", err)
	}
	if view.ID != id || len(view.Questions) != domain.QuestionsPerQuiz {
		t.Fatalf("unexpected quiz %+v", view)
	}

	if resp, _ := env.do(t, http.MethodGet, "/quizzes/9", "", nil); resp.StatusCode != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", resp.StatusCode)
	}
	if resp, _ := env.do(t, http.MethodGet, "/quizzes/abc", "", nil); resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", resp.StatusCode)
	}
}

func TestCreateAndPayOverHTTP(t *testing.T) {
	env := newTestEnv(t, time.Second)

	if resp, _ := env.do(t, http.MethodPost, "/quizzes/", "", quizInput("Anon")); resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("expected 401 without wallet, got %d", resp.StatusCode)
	}
	if resp, _ := env.do(t, http.MethodPost, "/quizzes/", playerAddr, quizInput("")); resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("expected 400 for invalid quiz, got %d", resp.StatusCode)
	}
	resp, body := env.do(t, http.MethodPost, "/quizzes/", playerAddr, quizInput("Over HTTP"))
	if resp.StatusCode != http.StatusAccepted {
		t.Fatalf("expected 202, got %d: %s", resp.StatusCode, body)
	}
	env.waitConfirmed(t, "create:"+playerAddr)

	resp, body = env.do(t, http.MethodPost, "/quizzes/1/pay", playerAddr, nil)
	if resp.StatusCode != http.StatusAccepted {
		t.Fatalf("expected 202, got %d: %s", resp.StatusCode, body)
	}
	env.waitConfirmed(t, "pay:1:"+playerAddr)

	_, body = env.do(t, http.MethodGet, "/stats", "", nil)
	var stats struct {
		Quiz app.Stats `json:"quiz"`
	}
	if err := json.Unmarshal(body, &stats); err != nil {
		t.Fatalf("decode stats: %v", err)
	}
	if stats.Quiz.QuizCount != 1 || stats.Quiz.BalanceWei != "1100" {
		t.Fatalf("unexpected stats %+v", stats.Quiz)
	}

	resp, _ = env.do(t, http.MethodPost, "/quizzes/1/pay", playerAddr, nil)
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("expected second pay to be refused, got %d", resp.StatusCode)
	}
}

func TestAdminRoutesRequireOwner(t *testing.T) {
	env := newTestEnv(t, time.Second)

	resp, _ := env.do(t, http.MethodPost, "/admin/quiz/fees", playerAddr, app.FeeUpdate{PlayQuizFee: "0.1"})
	if resp.StatusCode != http.StatusForbidden {
		t.Fatalf("expected 403, got %d", resp.StatusCode)
	}
	resp, body := env.do(t, http.MethodPost, "/admin/quiz/fees", ownerAddr, app.FeeUpdate{PlayQuizFee: "0.1"})
	if resp.StatusCode != http.StatusAccepted {
		t.Fatalf("expected 202, got %d: %s", resp.StatusCode, body)
	}
	env.waitConfirmed(t, "admin:quiz:play-fee")

	resp, body = env.do(t, http.MethodPost, "/admin/card/fee", ownerAddr, map[string]string{"mintFee": "0.2"})
	if resp.StatusCode != http.StatusAccepted {
		t.Fatalf("expected 202, got %d: %s", resp.StatusCode, body)
	}
	env.waitConfirmed(t, "admin:card:mint-fee")

	_, body = env.do(t, http.MethodGet, "/fees", "", nil)
	var fees app.Fees
	if err := json.Unmarshal(body, &fees); err != nil || fees.PlayQuizFeeWei != "100000000000000000" {
		t.Fatalf("unexpected fees %+v err=%v", fees, err)
	}
}

func TestCardRoutes(t *testing.T) {
	env := newTestEnv(t, time.Second)

	resp, _ := env.do(t, http.MethodPost, "/cards/missing/mint", playerAddr, nil)
	if resp.StatusCode != http.StatusConflict {
		t.Fatalf("expected 409 before generation, got %d", resp.StatusCode)
	}

	resp, body := env.do(t, http.MethodPost, "/cards/", playerAddr, map[string]any{
		"details": domain.CardDetails{Name: "Ada"},
	})
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", resp.StatusCode, body)
	}
	var card cardView
	if err := json.Unmarshal(body, &card); err != nil {
		t.Fatalf("decode card: %v", err)
	}

	resp, body = env.do(t, http.MethodGet, card.ImageURL, "", nil)
	if resp.StatusCode != http.StatusOK || resp.Header.Get("Content-Type") != "image/png" || len(body) == 0 {
		t.Fatalf("unexpected image response %d %q", resp.StatusCode, resp.Header.Get("Content-Type"))
	}

	resp, body = env.do(t, http.MethodPost, "/cards/"+card.ID+"/mint", playerAddr, nil)
	if resp.StatusCode != http.StatusAccepted {
		t.Fatalf("expected 202, got %d: %s", resp.StatusCode, body)
	}
	env.waitConfirmed(t, "mint:"+playerAddr)
	if tokens := env.card.Tokens(); len(tokens) != 1 || tokens[0].URI != "ipfs://QmMeta" {
		t.Fatalf("unexpected tokens %+v", tokens)
	}
}

func TestPlayerRoutes(t *testing.T) {
	env := newTestEnv(t, time.Second)
	env.quiz.Seed(playerAddr, quizInput("Mine"))

	if resp, _ := env.do(t, http.MethodGet, "/players/nope", "", nil); resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", resp.StatusCode)
	}
	resp, body := env.do(t, http.MethodGet, "/players/"+playerAddr, "", nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", resp.StatusCode, body)
	}
	var summary domain.PlayerSummary
	if err := json.Unmarshal(body, &summary); err != nil || !summary.HasCreatedQuiz {
		t.Fatalf("unexpected summary %+v err=%v", summary, err)
	}

	resp, body = env.do(t, http.MethodGet, "/players/"+playerAddr+"/transactions", "", nil)
	if resp.StatusCode != http.StatusOK || strings.TrimSpace(string(body)) != "[]" {
		t.Fatalf("expected empty history, got %d %s", resp.StatusCode, body)
	}
}

func TestTransactionStatusIdle(t *testing.T) {
	env := newTestEnv(t, time.Second)
	_, body := env.do(t, http.MethodGet, "/transactions/pay:1:"+playerAddr, "", nil)
	var st txn.Status
	if err := json.Unmarshal(body, &st); err != nil || st.State != txn.StateIdle {
		t.Fatalf("expected idle status, got %+v err=%v", st, err)
	}
}

func TestListQuizzesNewestFirst(t *testing.T) {
	env := newTestEnv(t, time.Second)
	for _, title := range []string{"First", "Second", "Third"} {
		env.quiz.Seed(ownerAddr, quizInput(title))
	}

	resp, body := env.do(t, http.MethodGet, "/quizzes/", "", nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", resp.StatusCode, body)
	}
	if strings.Contains(string(body), "correctAnswerIndex") {
		t.Fatalf("answer key leaked: %s", body)
	}
	var all []quizView
	if err := json.Unmarshal(body, &all); err != nil {
		t.Fatalf("decode list: %v", err)
	}
	if len(all) != 3 || all[0].Title != "Third" || all[2].Title != "First" {
		t.Fatalf("expected newest first, got %+v", all)
	}

	_, body = env.do(t, http.MethodGet, "/quizzes/?limit=2", "", nil)
	var page []quizView
	if err := json.Unmarshal(body, &page); err != nil {
		t.Fatalf("decode list: %v", err)
	}
	if len(page) != 2 || page[0].ID != 3 || page[1].ID != 2 {
		t.Fatalf("unexpected limited list %+v", page)
	}
}

func TestPlayStatusRoutesThroughPayment(t *testing.T) {
	env := newTestEnv(t, time.Second)
	id := env.quiz.Seed(ownerAddr, quizInput("Status"))

	if resp, _ := env.do(t, http.MethodGet, "/quizzes/1/status", "", nil); resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("expected 401 without wallet, got %d", resp.StatusCode)
	}
	if resp, _ := env.do(t, http.MethodGet, "/quizzes/9/status", playerAddr, nil); resp.StatusCode != http.StatusNotFound {
		t.Fatalf("expected 404 for unknown quiz, got %d", resp.StatusCode)
	}

	status := func() app.PlayStatus {
		t.Helper()
		resp, body := env.do(t, http.MethodGet, "/quizzes/1/status", playerAddr, nil)
		if resp.StatusCode != http.StatusOK {
			t.Fatalf("expected 200, got %d: %s", resp.StatusCode, body)
		}
		var st app.PlayStatus
		if err := json.Unmarshal(body, &st); err != nil {
			t.Fatalf("decode status: %v", err)
		}
		return st
	}
	if st := status(); st.QuizID != id || st.Paid || st.Completed || st.Player != playerAddr {
		t.Fatalf("expected unpaid status, got %+v", st)
	}

	resp, body := env.do(t, http.MethodPost, "/quizzes/1/pay", playerAddr, nil)
	if resp.StatusCode != http.StatusAccepted {
		t.Fatalf("expected 202, got %d: %s", resp.StatusCode, body)
	}
	env.waitConfirmed(t, "pay:1:"+playerAddr)
	if st := status(); !st.Paid || st.Completed || st.Score != 0 {
		t.Fatalf("expected paid status after confirmation, got %+v", st)
	}
}

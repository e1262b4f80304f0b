package http

import (
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"funquiz-service/internal/app"
	"funquiz-service/internal/domain"
	"funquiz-service/internal/txn"
	"github.com/go-chi/chi/v5"
)

// API holds the REST handlers.
type API struct {
	log *slog.Logger
	svc Services
}

// quizView is a quiz as players see it, without the answer key.
type quizView struct {
	ID          int64                   `json:"id"`
	Title       string                  `json:"title"`
	Description string                  `json:"description"`
	Creator     string                  `json:"creator"`
	Questions   []domain.PublicQuestion `json:"questions"`
}

func newQuizView(q domain.Quiz) quizView {
	return quizView{
		ID:          q.ID,
		Title:       q.Title,
		Description: q.Description,
		Creator:     q.Creator,
		Questions:   q.PublicQuestions(),
	}
}

type cardView struct {
	ID        string             `json:"id"`
	Owner     string             `json:"owner"`
	Details   domain.CardDetails `json:"details"`
	ImageURL  string             `json:"imageUrl"`
	CreatedAt time.Time          `json:"createdAt"`
}

func quizIDParam(r *http.Request) (int64, error) {
	raw := chi.URLParam(r, "id")
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("%w: quiz id %q", domain.ErrInvalidInput, raw)
	}
	return id, nil
}

func limitParam(r *http.Request) int {
	limit, err := strconv.Atoi(r.URL.Query().Get("limit"))
	if err != nil || limit < 0 {
		return 0
	}
	return limit
}

// accepted answers a submitted transaction with its current status.
func accepted(w http.ResponseWriter, h *txn.Handle, err error) {
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusAccepted, h.Status())
}

func (a *API) GetQuiz(w http.ResponseWriter, r *http.Request) {
	id, err := quizIDParam(r)
	if err != nil {
		writeError(w, err)
		return
	}
	quiz, err := a.svc.Quizzes.Quiz(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, newQuizView(quiz))
}

func (a *API) ListQuizzes(w http.ResponseWriter, r *http.Request) {
	quizzes, err := a.svc.Quizzes.List(r.Context(), limitParam(r))
	if err != nil {
		writeError(w, err)
		return
	}
	out := make([]quizView, 0, len(quizzes))
	for _, q := range quizzes {
		out = append(out, newQuizView(q))
	}
	writeJSON(w, http.StatusOK, out)
}

func (a *API) PlayStatus(w http.ResponseWriter, r *http.Request) {
	id, err := quizIDParam(r)
	if err != nil {
		writeError(w, err)
		return
	}
	st, err := a.svc.Quizzes.PlayStatus(r.Context(), walletFrom(r), id)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, st)
}

func (a *API) Leaderboard(w http.ResponseWriter, r *http.Request) {
	id, err := quizIDParam(r)
	if err != nil {
		writeError(w, err)
		return
	}
	lb, err := a.svc.Quizzes.Leaderboard(r.Context(), id, limitParam(r))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, lb)
}

func (a *API) Fees(w http.ResponseWriter, r *http.Request) {
	fees, err := a.svc.Quizzes.Fees(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, fees)
}

func (a *API) Stats(w http.ResponseWriter, r *http.Request) {
	quiz, err := a.svc.Quizzes.Stats(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	card, err := a.svc.Cards.Stats(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, struct {
		Quiz app.Stats     `json:"quiz"`
		Card app.CardStats `json:"card"`
	}{quiz, card})
}

func (a *API) CreateQuiz(w http.ResponseWriter, r *http.Request) {
	var in domain.CreateQuizInput
	if err := decodeBody(r, &in); err != nil {
		writeError(w, err)
		return
	}
	h, err := a.svc.Quizzes.Create(r.Context(), walletFrom(r), in)
	accepted(w, h, err)
}

func (a *API) PayQuiz(w http.ResponseWriter, r *http.Request) {
	id, err := quizIDParam(r)
	if err != nil {
		writeError(w, err)
		return
	}
	h, err := a.svc.Quizzes.Pay(r.Context(), walletFrom(r), id)
	accepted(w, h, err)
}

func (a *API) Transaction(w http.ResponseWriter, r *http.Request) {
	st, _ := a.svc.Tracker.Status(chi.URLParam(r, "action"))
	writeJSON(w, http.StatusOK, st)
}

func (a *API) PlayerSummary(w http.ResponseWriter, r *http.Request) {
	summary, err := a.svc.Players.Summary(r.Context(), chi.URLParam(r, "address"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, summary)
}

func (a *API) PlayerTransactions(w http.ResponseWriter, r *http.Request) {
	rows, err := a.svc.Players.Transactions(r.Context(), chi.URLParam(r, "address"), limitParam(r))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, rows)
}

func (a *API) GenerateCard(w http.ResponseWriter, r *http.Request) {
	var in struct {
		Details      domain.CardDetails `json:"details"`
		ProfileImage string             `json:"profileImage"`
	}
	if err := decodeBody(r, &in); err != nil {
		writeError(w, err)
		return
	}
	draft, err := a.svc.Cards.Generate(r.Context(), walletFrom(r), in.Details, in.ProfileImage)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, cardView{
		ID:        draft.ID,
		Owner:     draft.Owner,
		Details:   draft.Details,
		ImageURL:  "/cards/" + draft.ID + "/image",
		CreatedAt: draft.CreatedAt,
	})
}

func (a *API) CardImage(w http.ResponseWriter, r *http.Request) {
	draft, err := a.svc.Cards.Draft(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, err)
		return
	}
	w.Header().Set("Content-Type", "image/png")
	w.Header().Set("Content-Length", strconv.Itoa(len(draft.Image)))
	if _, err := w.Write(draft.Image); err != nil {
		a.log.Warn("write card image failed", "card", draft.ID, "err", err)
	}
}

func (a *API) MintCard(w http.ResponseWriter, r *http.Request) {
	h, err := a.svc.Cards.Mint(r.Context(), walletFrom(r), chi.URLParam(r, "id"))
	accepted(w, h, err)
}

func (a *API) SetQuizFees(w http.ResponseWriter, r *http.Request) {
	var in app.FeeUpdate
	if err := decodeBody(r, &in); err != nil {
		writeError(w, err)
		return
	}
	handles, err := a.svc.Quizzes.SetFees(r.Context(), walletFrom(r), in)
	if err != nil {
		writeError(w, err)
		return
	}
	out := make([]txn.Status, 0, len(handles))
	for _, h := range handles {
		out = append(out, h.Status())
	}
	writeJSON(w, http.StatusAccepted, out)
}

func (a *API) WithdrawQuiz(w http.ResponseWriter, r *http.Request) {
	h, err := a.svc.Quizzes.Withdraw(r.Context(), walletFrom(r))
	accepted(w, h, err)
}

func (a *API) SetMintFee(w http.ResponseWriter, r *http.Request) {
	var in struct {
		MintFee string `json:"mintFee"`
	}
	if err := decodeBody(r, &in); err != nil {
		writeError(w, err)
		return
	}
	h, err := a.svc.Cards.SetMintFee(r.Context(), walletFrom(r), in.MintFee)
	accepted(w, h, err)
}

func (a *API) WithdrawCard(w http.ResponseWriter, r *http.Request) {
	h, err := a.svc.Cards.Withdraw(r.Context(), walletFrom(r))
	accepted(w, h, err)
}

package http

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"funquiz-service/internal/domain"
)

// WalletHeader carries the caller's wallet address.
const WalletHeader = "X-Wallet-Address"

type contextKey string

const walletKey contextKey = "wallet"

func walletMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		wallet := domain.NewWallet(r.Header.Get(WalletHeader))
		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), walletKey, wallet)))
	})
}

func walletFrom(r *http.Request) domain.Wallet {
	if wallet, ok := r.Context().Value(walletKey).(domain.Wallet); ok {
		return wallet
	}
	return domain.NewWallet(r.Header.Get(WalletHeader))
}

type errorBody struct {
	Error string `json:"error"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, err error) {
	writeJSON(w, statusFor(err), errorBody{Error: err.Error()})
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, domain.ErrInvalidInput),
		errors.Is(err, domain.ErrInvalidQuiz),
		errors.Is(err, domain.ErrIncomplete):
		return http.StatusBadRequest
	case errors.Is(err, domain.ErrWalletDisconnected):
		return http.StatusUnauthorized
	case errors.Is(err, domain.ErrNotOwner),
		errors.Is(err, domain.ErrNotPaid),
		errors.Is(err, domain.ErrRejected):
		return http.StatusForbidden
	case errors.Is(err, domain.ErrQuizNotFound),
		errors.Is(err, domain.ErrSessionNotFound):
		return http.StatusNotFound
	case errors.Is(err, domain.ErrNotReady),
		errors.Is(err, domain.ErrInFlight),
		errors.Is(err, domain.ErrAlreadyCompleted),
		errors.Is(err, domain.ErrWrongPhase):
		return http.StatusConflict
	case errors.Is(err, domain.ErrUpstream),
		errors.Is(err, domain.ErrCallFailed):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

func decodeBody(r *http.Request, v any) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return errors.Join(domain.ErrInvalidInput, err)
	}
	return nil
}

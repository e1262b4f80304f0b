package domain

import "errors"

var (
	// ErrInvalidInput covers bad quiz fields, option indices and fee amounts. Never sent to chain.
	ErrInvalidInput = errors.New("invalid input")
	// ErrNotReady is returned when a card is minted or downloaded before its image exists.
	ErrNotReady = errors.New("asset not ready")
	// ErrRejected means the signer declined the transaction.
	ErrRejected = errors.New("transaction rejected by signer")
	// ErrCallFailed wraps network failures and contract reverts.
	ErrCallFailed = errors.New("contract call failed")
	// ErrUpstream is returned when the indexer, pinning or render service fails.
	ErrUpstream = errors.New("upstream service error")

	// ErrSessionNotFound is returned when a play session does not exist or was discarded.
	ErrSessionNotFound = errors.New("play session not found")
	// ErrQuizNotFound indicates the quiz does not exist on the contract.
	ErrQuizNotFound = errors.New("quiz not found")
	// ErrInvalidQuiz is returned for quizzes that do not have exactly ten questions.
	ErrInvalidQuiz = errors.New("quiz must have exactly 10 questions")
	ErrNotPaid     = errors.New("play fee not paid")
	// ErrAlreadyCompleted is returned when the player already has a recorded score.
	ErrAlreadyCompleted = errors.New("quiz already completed")
	// ErrWalletDisconnected is returned for actions that need a connected wallet.
	ErrWalletDisconnected = errors.New("wallet not connected")
	ErrNotOwner           = errors.New("wallet is not the contract owner")
	// ErrInFlight is returned when an action already has a non-terminal transaction.
	ErrInFlight   = errors.New("transaction already in flight")
	ErrWrongPhase = errors.New("action not allowed in current phase")
	// ErrIncomplete is returned when a submission is requested before all answers are recorded.
	ErrIncomplete = errors.New("not all questions answered")
)

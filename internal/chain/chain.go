// Package chain holds the typed clients for the quiz and card contracts.
package chain

import (
	"context"
	"math/big"

	"funquiz-service/internal/domain"
)

// Tx is a broadcast transaction awaiting finality.
type Tx interface {
	Hash() string
	// Wait blocks until the transaction is final. A revert is returned as domain.ErrCallFailed.
	Wait(ctx context.Context) error
}

// QuizReader is one method per quiz contract getter.
type QuizReader interface {
	GetQuizByID(ctx context.Context, quizID int64) (domain.Quiz, error)
	PlayQuizFee(ctx context.Context) (*big.Int, error)
	CreateQuizFee(ctx context.Context) (*big.Int, error)
	HasPaidToPlay(ctx context.Context, quizID int64, player string) (bool, error)
	PlayerScore(ctx context.Context, quizID int64, player string) (int64, error)
	Leaderboard(ctx context.Context, quizID int64) ([]string, []int64, error)
	QuizCounter(ctx context.Context) (int64, error)
	ContractBalance(ctx context.Context) (*big.Int, error)
	Owner(ctx context.Context) (string, error)
}

// QuizWriter sends state-changing quiz contract calls on behalf of from.
type QuizWriter interface {
	CreateQuiz(ctx context.Context, from string, in domain.CreateQuizInput, fee *big.Int) (Tx, error)
	PayToPlay(ctx context.Context, from string, quizID int64, fee *big.Int) (Tx, error)
	SubmitAnswers(ctx context.Context, from string, sub domain.ScoreSubmission) (Tx, error)
	SetCreateQuizFee(ctx context.Context, from string, fee *big.Int) (Tx, error)
	SetPlayQuizFee(ctx context.Context, from string, fee *big.Int) (Tx, error)
	Withdraw(ctx context.Context, from string) (Tx, error)
}

type QuizContract interface {
	QuizReader
	QuizWriter
}

// CardContract is the ID card NFT contract.
type CardContract interface {
	MintFee(ctx context.Context) (*big.Int, error)
	ContractBalance(ctx context.Context) (*big.Int, error)
	Owner(ctx context.Context) (string, error)
	SafeMint(ctx context.Context, from, to, uri string, fee *big.Int) (Tx, error)
	SetMintFee(ctx context.Context, from string, fee *big.Int) (Tx, error)
	Withdraw(ctx context.Context, from string) (Tx, error)
}

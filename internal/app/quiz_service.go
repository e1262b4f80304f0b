package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/big"
	"strconv"

	"funquiz-service/internal/chain"
	"funquiz-service/internal/domain"
	"funquiz-service/internal/game"
	"funquiz-service/internal/txn"
	"golang.org/x/sync/errgroup"
)

// DefaultListSize is how many quizzes List returns when no limit is given.
const DefaultListSize = 50

// Fees are the current contract fees in wei and as ether strings.
type Fees struct {
	CreateQuizFee    string `json:"createQuizFee"`
	CreateQuizFeeWei string `json:"createQuizFeeWei"`
	PlayQuizFee      string `json:"playQuizFee"`
	PlayQuizFeeWei   string `json:"playQuizFeeWei"`
}

// Stats is the admin dashboard view of the quiz contract.
type Stats struct {
	Owner      string `json:"owner"`
	Balance    string `json:"balance"`
	BalanceWei string `json:"balanceWei"`
	QuizCount  int64  `json:"quizCount"`
	Fees       Fees   `json:"fees"`
}

// FeeUpdate carries new fees as decimal ether strings. Empty fields are left unchanged.
type FeeUpdate struct {
	CreateQuizFee string `json:"createQuizFee"`
	PlayQuizFee   string `json:"playQuizFee"`
}

// PlayStatus tells a wallet whether it has to pay, can play, or has already played a quiz.
type PlayStatus struct {
	QuizID    int64  `json:"quizId"`
	Player    string `json:"player"`
	Paid      bool   `json:"paid"`
	Score     int64  `json:"score"`
	Completed bool   `json:"completed"`
}

// QuizService covers the quiz read API, creation, pay-to-play and the owner operations.
type QuizService struct {
	log     *slog.Logger
	reader  *CachedReader
	quiz    chain.QuizWriter
	tracker *txn.Tracker
}

func NewQuizService(log *slog.Logger, reader *CachedReader, quiz chain.QuizWriter, tracker *txn.Tracker) *QuizService {
	if log == nil {
		log = slog.Default()
	}
	return &QuizService{log: log, reader: reader, quiz: quiz, tracker: tracker}
}

func (s *QuizService) Quiz(ctx context.Context, quizID int64) (domain.Quiz, error) {
	if quizID <= 0 {
		return domain.Quiz{}, fmt.Errorf("%w: quiz id must be positive", domain.ErrInvalidInput)
	}
	return s.reader.Quiz(ctx, quizID)
}

// List returns up to limit quizzes, newest first.
func (s *QuizService) List(ctx context.Context, limit int) ([]domain.Quiz, error) {
	if limit <= 0 {
		limit = DefaultListSize
	}
	count, err := s.reader.QuizCounter(ctx)
	if err != nil {
		return nil, err
	}
	n := int64(limit)
	if count < n {
		n = count
	}
	found := make([]*domain.Quiz, n)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(DefaultScanConcurrency)
	for i := int64(0); i < n; i++ {
		i := i
		id := count - i
		g.Go(func() error {
			quiz, err := s.reader.Quiz(gctx, id)
			if errors.Is(err, domain.ErrQuizNotFound) {
				return nil
			}
			if err != nil {
				return err
			}
			found[i] = &quiz
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("list quizzes: %w", err)
	}

	out := make([]domain.Quiz, 0, n)
	for _, q := range found {
		if q != nil {
			out = append(out, *q)
		}
	}
	return out, nil
}

// PlayStatus reports the wallet's paid flag and recorded score for a quiz.
func (s *QuizService) PlayStatus(ctx context.Context, wallet domain.Wallet, quizID int64) (PlayStatus, error) {
	if !wallet.Connected {
		return PlayStatus{}, domain.ErrWalletDisconnected
	}
	if _, err := s.Quiz(ctx, quizID); err != nil {
		return PlayStatus{}, err
	}
	paid, err := s.reader.HasPaidToPlay(ctx, quizID, wallet.Address)
	if err != nil {
		return PlayStatus{}, err
	}
	score, err := s.reader.PlayerScore(ctx, quizID, wallet.Address)
	if err != nil {
		return PlayStatus{}, err
	}
	return PlayStatus{
		QuizID:    quizID,
		Player:    wallet.Address,
		Paid:      paid,
		Score:     score,
		Completed: score > 0,
	}, nil
}

// Leaderboard returns the top limit entries, highest score first.
func (s *QuizService) Leaderboard(ctx context.Context, quizID int64, limit int) (domain.Leaderboard, error) {
	if limit <= 0 {
		limit = game.DefaultLeaderboardSize
	}
	players, scores, err := s.reader.Leaderboard(ctx, quizID)
	if err != nil {
		return domain.Leaderboard{}, err
	}
	if len(players) != len(scores) {
		s.log.Warn("leaderboard arrays differ in length", "quiz_id", quizID, "players", len(players), "scores", len(scores))
	}
	return game.BuildLeaderboard(quizID, players, scores, limit), nil
}

func (s *QuizService) Fees(ctx context.Context) (Fees, error) {
	create, err := s.reader.CreateQuizFee(ctx)
	if err != nil {
		return Fees{}, err
	}
	play, err := s.reader.PlayQuizFee(ctx)
	if err != nil {
		return Fees{}, err
	}
	return Fees{
		CreateQuizFee:    domain.FormatEther(create),
		CreateQuizFeeWei: create.String(),
		PlayQuizFee:      domain.FormatEther(play),
		PlayQuizFeeWei:   play.String(),
	}, nil
}

func (s *QuizService) Stats(ctx context.Context) (Stats, error) {
	fees, err := s.Fees(ctx)
	if err != nil {
		return Stats{}, err
	}
	balance, err := s.reader.QuizBalance(ctx)
	if err != nil {
		return Stats{}, err
	}
	count, err := s.reader.QuizCounter(ctx)
	if err != nil {
		return Stats{}, err
	}
	owner, err := s.reader.QuizOwner(ctx)
	if err != nil {
		return Stats{}, err
	}
	return Stats{
		Owner:      owner,
		Balance:    domain.FormatEther(balance),
		BalanceWei: balance.String(),
		QuizCount:  count,
		Fees:       fees,
	}, nil
}

// Create validates the quiz locally and sends createQuiz with the current create fee.
func (s *QuizService) Create(ctx context.Context, wallet domain.Wallet, in domain.CreateQuizInput) (*txn.Handle, error) {
	if !wallet.Connected {
		return nil, domain.ErrWalletDisconnected
	}
	if err := in.Validate(); err != nil {
		return nil, err
	}
	fee, err := s.reader.CreateQuizFee(ctx)
	if err != nil {
		return nil, err
	}
	return s.tracker.Submit(ctx, txn.Operation{
		Action: "create:" + wallet.Address,
		From:   wallet.Address,
		Send: func(ctx context.Context) (txn.Transaction, error) {
			return s.quiz.CreateQuiz(ctx, wallet.Address, in, fee)
		},
		Invalidates: []string{KeyQuizCounter, KeyQuizBalance},
	})
}

// Pay sends payToPlay with the current play fee.
func (s *QuizService) Pay(ctx context.Context, wallet domain.Wallet, quizID int64) (*txn.Handle, error) {
	if !wallet.Connected {
		return nil, domain.ErrWalletDisconnected
	}
	if _, err := s.Quiz(ctx, quizID); err != nil {
		return nil, err
	}
	paid, err := s.reader.HasPaidToPlay(ctx, quizID, wallet.Address)
	if err != nil {
		return nil, err
	}
	if paid {
		return nil, fmt.Errorf("%w: quiz %d already paid", domain.ErrInvalidInput, quizID)
	}
	fee, err := s.reader.PlayQuizFee(ctx)
	if err != nil {
		return nil, err
	}
	return s.tracker.Submit(ctx, txn.Operation{
		Action: "pay:" + strconv.FormatInt(quizID, 10) + ":" + wallet.Address,
		From:   wallet.Address,
		Send: func(ctx context.Context) (txn.Transaction, error) {
			return s.quiz.PayToPlay(ctx, wallet.Address, quizID, fee)
		},
		Invalidates: []string{PaidKey(quizID, wallet.Address), KeyQuizBalance},
	})
}

// SetFees sends one transaction per changed fee. Both amounts are validated before anything is sent.
func (s *QuizService) SetFees(ctx context.Context, wallet domain.Wallet, update FeeUpdate) ([]*txn.Handle, error) {
	if err := requireOwner(ctx, wallet, s.reader.QuizOwner); err != nil {
		return nil, err
	}
	if update.CreateQuizFee == "" && update.PlayQuizFee == "" {
		return nil, fmt.Errorf("%w: no fee given", domain.ErrInvalidInput)
	}
	var createFee, playFee *big.Int
	var err error
	if update.CreateQuizFee != "" {
		if createFee, err = domain.ParseEther(update.CreateQuizFee); err != nil {
			return nil, err
		}
	}
	if update.PlayQuizFee != "" {
		if playFee, err = domain.ParseEther(update.PlayQuizFee); err != nil {
			return nil, err
		}
	}

	var handles []*txn.Handle
	if createFee != nil {
		h, err := s.tracker.Submit(ctx, txn.Operation{
			Action: "admin:quiz:create-fee",
			From:   wallet.Address,
			Send: func(ctx context.Context) (txn.Transaction, error) {
				return s.quiz.SetCreateQuizFee(ctx, wallet.Address, createFee)
			},
			Invalidates: []string{KeyCreateFee},
		})
		if err != nil {
			return handles, err
		}
		handles = append(handles, h)
	}
	if playFee != nil {
		h, err := s.tracker.Submit(ctx, txn.Operation{
			Action: "admin:quiz:play-fee",
			From:   wallet.Address,
			Send: func(ctx context.Context) (txn.Transaction, error) {
				return s.quiz.SetPlayQuizFee(ctx, wallet.Address, playFee)
			},
			Invalidates: []string{KeyPlayFee},
		})
		if err != nil {
			return handles, err
		}
		handles = append(handles, h)
	}
	return handles, nil
}

// Withdraw moves the quiz contract balance to the owner.
func (s *QuizService) Withdraw(ctx context.Context, wallet domain.Wallet) (*txn.Handle, error) {
	if err := requireOwner(ctx, wallet, s.reader.QuizOwner); err != nil {
		return nil, err
	}
	return s.tracker.Submit(ctx, txn.Operation{
		Action: "admin:quiz:withdraw",
		From:   wallet.Address,
		Send: func(ctx context.Context) (txn.Transaction, error) {
			return s.quiz.Withdraw(ctx, wallet.Address)
		},
		Invalidates: []string{KeyQuizBalance},
	})
}

func requireOwner(ctx context.Context, wallet domain.Wallet, owner func(context.Context) (string, error)) error {
	if !wallet.Connected {
		return domain.ErrWalletDisconnected
	}
	addr, err := owner(ctx)
	if err != nil {
		return err
	}
	if domain.NormalizeAddress(addr) != wallet.Address {
		return domain.ErrNotOwner
	}
	return nil
}

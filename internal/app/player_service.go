package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"funquiz-service/internal/domain"
	"funquiz-service/internal/txn"
	"github.com/ethereum/go-ethereum/common"
	"golang.org/x/sync/errgroup"
)

// DefaultScanConcurrency bounds parallel contract reads during an on-chain scan.
const DefaultScanConcurrency = 8

// Indexer answers account queries from the indexing service.
type Indexer interface {
	Account(ctx context.Context, address string) ([]domain.CreatedQuiz, []domain.CompletedQuiz, error)
}

// Ledger keeps settled transactions.
type Ledger interface {
	Record(ctx context.Context, st txn.Status) error
	ListByAddress(ctx context.Context, address string, limit int) ([]txn.Status, error)
}

// PlayerService builds player summaries for community verification.
type PlayerService struct {
	log             *slog.Logger
	reader          *CachedReader
	indexer         Indexer
	ledger          Ledger
	scanConcurrency int
	now             func() time.Time
}

// NewPlayerService builds the service. indexer and ledger may be nil; summaries then come from an
// on-chain scan and the transaction history is empty.
func NewPlayerService(log *slog.Logger, reader *CachedReader, indexer Indexer, ledger Ledger) *PlayerService {
	if log == nil {
		log = slog.Default()
	}
	return &PlayerService{
		log:             log,
		reader:          reader,
		indexer:         indexer,
		ledger:          ledger,
		scanConcurrency: DefaultScanConcurrency,
		now:             time.Now,
	}
}

// ParseAddress validates a hex wallet address and returns it lower-cased.
func ParseAddress(raw string) (string, error) {
	if !common.IsHexAddress(raw) {
		return "", fmt.Errorf("%w: invalid wallet address %q", domain.ErrInvalidInput, raw)
	}
	return domain.NormalizeAddress(raw), nil
}

// Summary reports the quizzes an address created and completed. The indexer is asked first; if it
// is unavailable the quiz contract is scanned directly.
func (s *PlayerService) Summary(ctx context.Context, address string) (domain.PlayerSummary, error) {
	addr, err := ParseAddress(address)
	if err != nil {
		return domain.PlayerSummary{}, err
	}
	if s.indexer != nil {
		created, completed, err := s.indexer.Account(ctx, addr)
		if err == nil {
			return domain.Summarize(addr, created, completed, s.now()), nil
		}
		s.log.Warn("indexer lookup failed, scanning contract", "player", addr, "err", err)
	}
	created, completed, err := s.scan(ctx, addr)
	if err != nil {
		return domain.PlayerSummary{}, err
	}
	return domain.Summarize(addr, created, completed, s.now()), nil
}

func (s *PlayerService) scan(ctx context.Context, addr string) ([]domain.CreatedQuiz, []domain.CompletedQuiz, error) {
	count, err := s.reader.QuizCounter(ctx)
	if err != nil {
		return nil, nil, err
	}
	created := make([]*domain.CreatedQuiz, count)
	completed := make([]*domain.CompletedQuiz, count)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.scanConcurrency)
	for id := int64(1); id <= count; id++ {
		id := id
		g.Go(func() error {
			quiz, err := s.reader.Quiz(gctx, id)
			if errors.Is(err, domain.ErrQuizNotFound) {
				return nil
			}
			if err != nil {
				return err
			}
			if quiz.Creator == addr {
				created[id-1] = &domain.CreatedQuiz{QuizID: id, Title: quiz.Title, Description: quiz.Description}
			}
			score, err := s.reader.PlayerScore(gctx, id, addr)
			if err != nil {
				return err
			}
			if score > 0 {
				completed[id-1] = &domain.CompletedQuiz{QuizID: id, Score: score}
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, nil, fmt.Errorf("scan quizzes: %w", err)
	}

	var outCreated []domain.CreatedQuiz
	var outCompleted []domain.CompletedQuiz
	for i := range created {
		if created[i] != nil {
			outCreated = append(outCreated, *created[i])
		}
		if completed[i] != nil {
			outCompleted = append(outCompleted, *completed[i])
		}
	}
	return outCreated, outCompleted, nil
}

// Transactions lists the settled transactions sent from address, newest first.
func (s *PlayerService) Transactions(ctx context.Context, address string, limit int) ([]txn.Status, error) {
	addr, err := ParseAddress(address)
	if err != nil {
		return nil, err
	}
	if s.ledger == nil {
		return []txn.Status{}, nil
	}
	return s.ledger.ListByAddress(ctx, addr, limit)
}

package app

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"sync"

	"funquiz-service/internal/chain"
	"funquiz-service/internal/domain"
	"funquiz-service/internal/game"
	"funquiz-service/internal/txn"
)

// SessionRepository abstracts where live play sessions are kept (in-memory, Redis-marked, etc).
type SessionRepository interface {
	Put(ctx context.Context, session *game.Session) error
	Get(ctx context.Context, sessionID string) (*game.Session, bool)
	Delete(ctx context.Context, sessionID string)
}

// SubmitAction is the tracker key for a player's score submission.
func SubmitAction(quizID int64, player string) string {
	return "submit:" + strconv.FormatInt(quizID, 10) + ":" + domain.NormalizeAddress(player)
}

// PlayService runs timed play sessions and submits their scores. A wallet has at most one live
// session per quiz.
type PlayService struct {
	log      *slog.Logger
	reader   *CachedReader
	quiz     chain.QuizWriter
	tracker  *txn.Tracker
	sessions SessionRepository

	mu     sync.Mutex
	active map[string]string // SubmitAction key -> session ID
}

func NewPlayService(log *slog.Logger, reader *CachedReader, quiz chain.QuizWriter, tracker *txn.Tracker, sessions SessionRepository) *PlayService {
	if log == nil {
		log = slog.Default()
	}
	return &PlayService{
		log:      log,
		reader:   reader,
		quiz:     quiz,
		tracker:  tracker,
		sessions: sessions,
		active:   make(map[string]string),
	}
}

// Start opens a session for a connected wallet that has paid and has no recorded score.
func (s *PlayService) Start(ctx context.Context, wallet domain.Wallet, quizID int64, opts ...game.Option) (*game.Session, error) {
	if !wallet.Connected {
		return nil, domain.ErrWalletDisconnected
	}
	quiz, err := s.reader.Quiz(ctx, quizID)
	if err != nil {
		return nil, err
	}
	paid, err := s.reader.HasPaidToPlay(ctx, quizID, wallet.Address)
	if err != nil {
		return nil, err
	}
	if !paid {
		return nil, fmt.Errorf("quiz %d: %w", quizID, domain.ErrNotPaid)
	}
	score, err := s.reader.PlayerScore(ctx, quizID, wallet.Address)
	if err != nil {
		return nil, err
	}
	if score > 0 {
		return nil, fmt.Errorf("quiz %d: %w", quizID, domain.ErrAlreadyCompleted)
	}

	session, err := game.NewSession(quiz, wallet.Address, opts...)
	if err != nil {
		return nil, err
	}
	if err := s.claim(session); err != nil {
		return nil, err
	}
	if err := s.sessions.Put(ctx, session); err != nil {
		s.drop(ctx, session)
		return nil, fmt.Errorf("store session: %w", err)
	}
	s.log.Info("play session started", "session", session.ID(), "quiz_id", quizID, "player", wallet.Address)
	return session, nil
}

func (s *PlayService) Quiz(ctx context.Context, quizID int64) (domain.Quiz, error) {
	return s.reader.Quiz(ctx, quizID)
}

func (s *PlayService) Session(ctx context.Context, sessionID string) (*game.Session, error) {
	session, ok := s.sessions.Get(ctx, sessionID)
	if !ok {
		return nil, domain.ErrSessionNotFound
	}
	return session, nil
}

// Answer records an explicit answer for the current question.
func (s *PlayService) Answer(ctx context.Context, sessionID string, option int) (game.Result, error) {
	session, err := s.Session(ctx, sessionID)
	if err != nil {
		return game.Result{}, err
	}
	return session.Answer(option)
}

// Tick advances the session clock by one second.
func (s *PlayService) Tick(ctx context.Context, sessionID string) error {
	session, err := s.Session(ctx, sessionID)
	if err != nil {
		return err
	}
	session.Tick()
	return nil
}

// SubmitScore sends the finished session's answers and time-lefts to the quiz contract. The
// session is marked submitted and discarded once the transaction is confirmed; on failure it stays
// finished so the player can retry.
func (s *PlayService) SubmitScore(ctx context.Context, wallet domain.Wallet, sessionID string) (*txn.Handle, error) {
	if !wallet.Connected {
		return nil, domain.ErrWalletDisconnected
	}
	session, err := s.Session(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if session.Player() != wallet.Address {
		return nil, fmt.Errorf("%w: session belongs to another wallet", domain.ErrInvalidInput)
	}
	if session.Snapshot().Finish == game.FinishSubmitted {
		return nil, domain.ErrAlreadyCompleted
	}
	sub, err := session.Submission()
	if err != nil {
		return nil, err
	}
	localScore := int64(session.Snapshot().Score)
	player := session.Player()

	return s.tracker.Submit(ctx, txn.Operation{
		Action: SubmitAction(sub.QuizID, player),
		From:   player,
		Send: func(ctx context.Context) (txn.Transaction, error) {
			return s.quiz.SubmitAnswers(ctx, player, sub)
		},
		Invalidates: []string{ScoreKey(sub.QuizID, player), LeaderboardKey(sub.QuizID)},
		OnSettled: func(st txn.Status) {
			if !st.IsConfirmed() {
				return
			}
			session.MarkSubmitted()
			s.checkRecordedScore(sub.QuizID, player, localScore)
			s.drop(context.Background(), session)
		},
	})
}

// checkRecordedScore compares the contract's score with the one computed locally.
func (s *PlayService) checkRecordedScore(quizID int64, player string, local int64) {
	recorded, err := s.reader.PlayerScore(context.Background(), quizID, player)
	if err != nil {
		s.log.Warn("read back score failed", "quiz_id", quizID, "player", player, "err", err)
		return
	}
	if recorded != local {
		s.log.Warn("recorded score differs from local score", "quiz_id", quizID, "player", player, "local", local, "recorded", recorded)
	}
}

// Discard drops a session, e.g. when the player leaves mid-game.
func (s *PlayService) Discard(ctx context.Context, sessionID string) {
	session, ok := s.sessions.Get(ctx, sessionID)
	if !ok {
		return
	}
	s.drop(ctx, session)
}

// claim reserves the wallet's slot for the session's quiz.
func (s *PlayService) claim(session *game.Session) error {
	key := SubmitAction(session.QuizID(), session.Player())
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, busy := s.active[key]; busy {
		return fmt.Errorf("quiz %d: %w: a play session is already open", session.QuizID(), domain.ErrInFlight)
	}
	s.active[key] = session.ID()
	return nil
}

func (s *PlayService) drop(ctx context.Context, session *game.Session) {
	key := SubmitAction(session.QuizID(), session.Player())
	s.mu.Lock()
	if s.active[key] == session.ID() {
		delete(s.active, key)
	}
	s.mu.Unlock()
	s.sessions.Delete(ctx, session.ID())
}

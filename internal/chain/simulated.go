package chain

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"sync"
	"sync/atomic"

	"funquiz-service/internal/domain"
	"funquiz-service/internal/game"
)

// errReverted marks contract-level failures in the simulated contracts.
var errReverted = errors.New("execution reverted")

var txSeq atomic.Uint64

// simTx applies its state change when it is first waited on, like a block inclusion.
type simTx struct {
	hash  string
	apply func() error
	once  sync.Once
	err   error
}

func newSimTx(apply func() error) *simTx {
	return &simTx{hash: fmt.Sprintf("0x%064x", txSeq.Add(1)), apply: apply}
}

func (t *simTx) Hash() string { return t.hash }

func (t *simTx) Wait(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("%w: %v", domain.ErrCallFailed, err)
	}
	t.once.Do(func() {
		if err := t.apply(); err != nil {
			t.err = fmt.Errorf("%w: %v", domain.ErrCallFailed, err)
		}
	})
	return t.err
}

// signers tracks wallets whose signer declines every request.
type signers struct {
	mu       sync.RWMutex
	rejected map[string]bool
}

// RejectSigner makes every future transaction from addr fail as declined by the signer.
func (s *signers) RejectSigner(addr string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.rejected == nil {
		s.rejected = make(map[string]bool)
	}
	s.rejected[domain.NormalizeAddress(addr)] = true
}

func (s *signers) sign(from string) error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.rejected[domain.NormalizeAddress(from)] {
		return fmt.Errorf("%w: %s declined the request", domain.ErrRejected, from)
	}
	return nil
}

// SimulatedQuiz is an in-process quiz contract. It scores submissions with game.Evaluate, which is
// the formula the deployed contract is expected to use.
type SimulatedQuiz struct {
	signers

	mu         sync.RWMutex
	owner      string
	createFee  *big.Int
	playFee    *big.Int
	balance    *big.Int
	counter    int64
	quizzes    map[int64]domain.Quiz
	paid       map[int64]map[string]bool
	scores     map[int64]map[string]int64
	scoreOrder map[int64][]string
}

func NewSimulatedQuiz(owner string, createFee, playFee *big.Int) *SimulatedQuiz {
	return &SimulatedQuiz{
		owner:      domain.NormalizeAddress(owner),
		createFee:  new(big.Int).Set(createFee),
		playFee:    new(big.Int).Set(playFee),
		balance:    new(big.Int),
		quizzes:    make(map[int64]domain.Quiz),
		paid:       make(map[int64]map[string]bool),
		scores:     make(map[int64]map[string]int64),
		scoreOrder: make(map[int64][]string),
	}
}

// Seed stores a quiz directly, bypassing fees. Used for demos and tests.
func (s *SimulatedQuiz) Seed(creator string, in domain.CreateQuizInput) int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.storeLocked(creator, in)
}

func (s *SimulatedQuiz) storeLocked(creator string, in domain.CreateQuizInput) int64 {
	s.counter++
	questions := make([]domain.Question, len(in.Questions))
	copy(questions, in.Questions)
	s.quizzes[s.counter] = domain.Quiz{
		ID:          s.counter,
		Title:       in.Title,
		Description: in.Description,
		Creator:     domain.NormalizeAddress(creator),
		Questions:   questions,
	}
	return s.counter
}

func (s *SimulatedQuiz) GetQuizByID(_ context.Context, quizID int64) (domain.Quiz, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	quiz, ok := s.quizzes[quizID]
	if !ok {
		return domain.Quiz{}, fmt.Errorf("quiz %d: %w", quizID, domain.ErrQuizNotFound)
	}
	return quiz, nil
}

func (s *SimulatedQuiz) PlayQuizFee(context.Context) (*big.Int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return new(big.Int).Set(s.playFee), nil
}

func (s *SimulatedQuiz) CreateQuizFee(context.Context) (*big.Int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return new(big.Int).Set(s.createFee), nil
}

func (s *SimulatedQuiz) HasPaidToPlay(_ context.Context, quizID int64, player string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.paid[quizID][domain.NormalizeAddress(player)], nil
}

func (s *SimulatedQuiz) PlayerScore(_ context.Context, quizID int64, player string) (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.scores[quizID][domain.NormalizeAddress(player)], nil
}

func (s *SimulatedQuiz) Leaderboard(_ context.Context, quizID int64) ([]string, []int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	order := s.scoreOrder[quizID]
	players := make([]string, len(order))
	scores := make([]int64, len(order))
	for i, p := range order {
		players[i] = p
		scores[i] = s.scores[quizID][p]
	}
	return players, scores, nil
}

func (s *SimulatedQuiz) QuizCounter(context.Context) (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.counter, nil
}

func (s *SimulatedQuiz) ContractBalance(context.Context) (*big.Int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return new(big.Int).Set(s.balance), nil
}

func (s *SimulatedQuiz) Owner(context.Context) (string, error) {
	return s.owner, nil
}

func (s *SimulatedQuiz) CreateQuiz(_ context.Context, from string, in domain.CreateQuizInput, fee *big.Int) (Tx, error) {
	if err := s.sign(from); err != nil {
		return nil, err
	}
	return newSimTx(func() error {
		if err := in.Validate(); err != nil {
			return fmt.Errorf("%w: %v", errReverted, err)
		}
		s.mu.Lock()
		defer s.mu.Unlock()
		if fee == nil || fee.Cmp(s.createFee) < 0 {
			return fmt.Errorf("%w: insufficient create fee", errReverted)
		}
		s.storeLocked(from, in)
		s.balance.Add(s.balance, fee)
		return nil
	}), nil
}

func (s *SimulatedQuiz) PayToPlay(_ context.Context, from string, quizID int64, fee *big.Int) (Tx, error) {
	if err := s.sign(from); err != nil {
		return nil, err
	}
	player := domain.NormalizeAddress(from)
	return newSimTx(func() error {
		s.mu.Lock()
		defer s.mu.Unlock()
		if _, ok := s.quizzes[quizID]; !ok {
			return fmt.Errorf("%w: quiz does not exist", errReverted)
		}
		if fee == nil || fee.Cmp(s.playFee) < 0 {
			return fmt.Errorf("%w: insufficient play fee", errReverted)
		}
		if s.paid[quizID][player] {
			return fmt.Errorf("%w: already paid", errReverted)
		}
		if s.paid[quizID] == nil {
			s.paid[quizID] = make(map[string]bool)
		}
		s.paid[quizID][player] = true
		s.balance.Add(s.balance, fee)
		return nil
	}), nil
}

func (s *SimulatedQuiz) SubmitAnswers(_ context.Context, from string, sub domain.ScoreSubmission) (Tx, error) {
	if err := s.sign(from); err != nil {
		return nil, err
	}
	player := domain.NormalizeAddress(from)
	return newSimTx(func() error {
		s.mu.Lock()
		defer s.mu.Unlock()
		quiz, ok := s.quizzes[sub.QuizID]
		if !ok {
			return fmt.Errorf("%w: quiz does not exist", errReverted)
		}
		if !s.paid[sub.QuizID][player] {
			return fmt.Errorf("%w: play fee not paid", errReverted)
		}
		if _, done := s.scores[sub.QuizID][player]; done {
			return fmt.Errorf("%w: answers already submitted", errReverted)
		}
		score, err := game.Replay(quiz, sub)
		if err != nil {
			return fmt.Errorf("%w: %v", errReverted, err)
		}
		if s.scores[sub.QuizID] == nil {
			s.scores[sub.QuizID] = make(map[string]int64)
		}
		s.scores[sub.QuizID][player] = int64(score)
		s.scoreOrder[sub.QuizID] = append(s.scoreOrder[sub.QuizID], player)
		return nil
	}), nil
}

func (s *SimulatedQuiz) SetCreateQuizFee(_ context.Context, from string, fee *big.Int) (Tx, error) {
	return s.ownerTx(from, func() { s.createFee = new(big.Int).Set(fee) })
}

func (s *SimulatedQuiz) SetPlayQuizFee(_ context.Context, from string, fee *big.Int) (Tx, error) {
	return s.ownerTx(from, func() { s.playFee = new(big.Int).Set(fee) })
}

func (s *SimulatedQuiz) Withdraw(_ context.Context, from string) (Tx, error) {
	return s.ownerTx(from, func() { s.balance = new(big.Int) })
}

func (s *SimulatedQuiz) ownerTx(from string, mutate func()) (Tx, error) {
	if err := s.sign(from); err != nil {
		return nil, err
	}
	caller := domain.NormalizeAddress(from)
	return newSimTx(func() error {
		s.mu.Lock()
		defer s.mu.Unlock()
		if caller != s.owner {
			return fmt.Errorf("%w: caller is not the owner", errReverted)
		}
		mutate()
		return nil
	}), nil
}

// SimulatedCard is an in-process ID card NFT contract.
type SimulatedCard struct {
	signers

	mu      sync.RWMutex
	owner   string
	mintFee *big.Int
	balance *big.Int
	tokens  []MintedCard
}

// MintedCard is a token held by the simulated card contract.
type MintedCard struct {
	TokenID int64
	Owner   string
	URI     string
}

func NewSimulatedCard(owner string, mintFee *big.Int) *SimulatedCard {
	return &SimulatedCard{
		owner:   domain.NormalizeAddress(owner),
		mintFee: new(big.Int).Set(mintFee),
		balance: new(big.Int),
	}
}

// Tokens lists minted cards in mint order.
func (c *SimulatedCard) Tokens() []MintedCard {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]MintedCard, len(c.tokens))
	copy(out, c.tokens)
	return out
}

func (c *SimulatedCard) MintFee(context.Context) (*big.Int, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return new(big.Int).Set(c.mintFee), nil
}

func (c *SimulatedCard) ContractBalance(context.Context) (*big.Int, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return new(big.Int).Set(c.balance), nil
}

func (c *SimulatedCard) Owner(context.Context) (string, error) {
	return c.owner, nil
}

func (c *SimulatedCard) SafeMint(_ context.Context, from, to, uri string, fee *big.Int) (Tx, error) {
	if err := c.sign(from); err != nil {
		return nil, err
	}
	return newSimTx(func() error {
		c.mu.Lock()
		defer c.mu.Unlock()
		if fee == nil || fee.Cmp(c.mintFee) < 0 {
			return fmt.Errorf("%w: insufficient mint fee", errReverted)
		}
		c.tokens = append(c.tokens, MintedCard{
			TokenID: int64(len(c.tokens)),
			Owner:   domain.NormalizeAddress(to),
			URI:     uri,
		})
		c.balance.Add(c.balance, fee)
		return nil
	}), nil
}

func (c *SimulatedCard) SetMintFee(_ context.Context, from string, fee *big.Int) (Tx, error) {
	return c.ownerTx(from, func() { c.mintFee = new(big.Int).Set(fee) })
}

func (c *SimulatedCard) Withdraw(_ context.Context, from string) (Tx, error) {
	return c.ownerTx(from, func() { c.balance = new(big.Int) })
}

func (c *SimulatedCard) ownerTx(from string, mutate func()) (Tx, error) {
	if err := c.sign(from); err != nil {
		return nil, err
	}
	caller := domain.NormalizeAddress(from)
	return newSimTx(func() error {
		c.mu.Lock()
		defer c.mu.Unlock()
		if caller != c.owner {
			return fmt.Errorf("%w: caller is not the owner", errReverted)
		}
		mutate()
		return nil
	}), nil
}

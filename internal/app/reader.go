package app

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"math/big"
	"strconv"
	"sync"
	"time"

	"funquiz-service/internal/chain"
	"funquiz-service/internal/domain"
	"golang.org/x/sync/singleflight"
)

// Cache stores encoded contract reads (in-process, Redis, etc).
type Cache interface {
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	Delete(ctx context.Context, keys ...string) error
}

// Cache keys for contract reads. Transactions list the keys they make stale.
const (
	KeyPlayFee     = "fee:play"
	KeyCreateFee   = "fee:create"
	KeyMintFee     = "fee:mint"
	KeyQuizBalance = "balance:quiz"
	KeyCardBalance = "balance:card"
	KeyQuizCounter = "counter"
	KeyQuizOwner   = "owner:quiz"
	KeyCardOwner   = "owner:card"
)

func QuizKey(quizID int64) string        { return "quiz:" + strconv.FormatInt(quizID, 10) }
func LeaderboardKey(quizID int64) string { return "leaderboard:" + strconv.FormatInt(quizID, 10) }

func PaidKey(quizID int64, player string) string {
	return "paid:" + strconv.FormatInt(quizID, 10) + ":" + domain.NormalizeAddress(player)
}

func ScoreKey(quizID int64, player string) string {
	return "score:" + strconv.FormatInt(quizID, 10) + ":" + domain.NormalizeAddress(player)
}

type fillFunc func(ctx context.Context) ([]byte, error)

// fillEntry remembers how to reload a served key until its cache entry can have expired.
type fillEntry struct {
	fill    fillFunc
	expires time.Time
}

// CachedReader serves contract reads through a cache. Concurrent misses for one key share a
// single contract call. It implements txn.Invalidator: confirmed transactions drop their keys and
// the reader re-fetches the ones it served within the cache TTL.
type CachedReader struct {
	log   *slog.Logger
	quiz  chain.QuizReader
	card  chain.CardContract
	cache Cache
	ttl   time.Duration
	sf    singleflight.Group

	now       func() time.Time
	mu        sync.Mutex
	fills     map[string]fillEntry
	lastSweep time.Time
}

func NewCachedReader(log *slog.Logger, quiz chain.QuizReader, card chain.CardContract, cache Cache, ttl time.Duration) *CachedReader {
	if log == nil {
		log = slog.Default()
	}
	return &CachedReader{
		log:   log,
		quiz:  quiz,
		card:  card,
		cache: cache,
		ttl:   ttl,
		now:   time.Now,
		fills: make(map[string]fillEntry),
	}
}

func cached[T any](ctx context.Context, r *CachedReader, key string, load func(context.Context) (T, error)) (T, error) {
	var zero T
	fill := func(ctx context.Context) ([]byte, error) {
		v, err := load(ctx)
		if err != nil {
			return nil, err
		}
		return json.Marshal(v)
	}
	r.track(key, fill)

	raw, err := r.get(ctx, key, fill)
	if err != nil {
		return zero, err
	}
	var out T
	if err := json.Unmarshal(raw, &out); err != nil {
		return zero, fmt.Errorf("decode cached %s: %w", key, err)
	}
	return out, nil
}

// track registers key for refetch on invalidation and sweeps entries past their retention.
func (r *CachedReader) track(key string, fill fillFunc) {
	r.mu.Lock()
	defer r.mu.Unlock()
	now := r.now()
	entry := fillEntry{fill: fill}
	if r.ttl > 0 {
		// Cache backends add up to 10% jitter on top of ttl.
		entry.expires = now.Add(r.ttl + r.ttl/10)
	}
	r.fills[key] = entry
	if r.ttl <= 0 || now.Sub(r.lastSweep) < r.ttl {
		return
	}
	for k, e := range r.fills {
		if e.expired(now) {
			delete(r.fills, k)
		}
	}
	r.lastSweep = now
}

func (e fillEntry) expired(now time.Time) bool {
	return !e.expires.IsZero() && now.After(e.expires)
}

func (r *CachedReader) get(ctx context.Context, key string, fill fillFunc) ([]byte, error) {
	if raw, ok := r.lookup(ctx, key); ok {
		return raw, nil
	}
	result, err, _ := r.sf.Do(key, func() (interface{}, error) {
		// Re-check in case another caller filled it.
		if raw, ok := r.lookup(ctx, key); ok {
			return raw, nil
		}
		raw, err := fill(ctx)
		if err != nil {
			return nil, err
		}
		if err := r.cache.Set(ctx, key, raw, r.ttl); err != nil {
			r.log.Warn("cache set failed", "key", key, "err", err)
		}
		return raw, nil
	})
	if err != nil {
		return nil, err
	}
	return result.([]byte), nil
}

func (r *CachedReader) lookup(ctx context.Context, key string) ([]byte, bool) {
	raw, ok, err := r.cache.Get(ctx, key)
	if err != nil {
		r.log.Warn("cache get failed", "key", key, "err", err)
		return nil, false
	}
	return raw, ok
}

// Invalidate drops keys and re-fetches those still within their retention window. Keys that were
// never read, or whose entries have expired, are only dropped.
func (r *CachedReader) Invalidate(ctx context.Context, keys ...string) error {
	if len(keys) == 0 {
		return nil
	}
	if err := r.cache.Delete(ctx, keys...); err != nil {
		return fmt.Errorf("invalidate %v: %w", keys, err)
	}
	var errs []error
	for _, key := range keys {
		r.sf.Forget(key)
		r.mu.Lock()
		entry, ok := r.fills[key]
		delete(r.fills, key)
		r.mu.Unlock()
		if !ok || entry.expired(r.now()) {
			continue
		}
		if _, err := r.get(ctx, key, entry.fill); err != nil {
			errs = append(errs, fmt.Errorf("refetch %s: %w", key, err))
			continue
		}
		r.track(key, entry.fill)
	}
	return errors.Join(errs...)
}

func (r *CachedReader) Quiz(ctx context.Context, quizID int64) (domain.Quiz, error) {
	return cached(ctx, r, QuizKey(quizID), func(ctx context.Context) (domain.Quiz, error) {
		return r.quiz.GetQuizByID(ctx, quizID)
	})
}

func (r *CachedReader) PlayQuizFee(ctx context.Context) (*big.Int, error) {
	return cached(ctx, r, KeyPlayFee, r.quiz.PlayQuizFee)
}

func (r *CachedReader) CreateQuizFee(ctx context.Context) (*big.Int, error) {
	return cached(ctx, r, KeyCreateFee, r.quiz.CreateQuizFee)
}

func (r *CachedReader) HasPaidToPlay(ctx context.Context, quizID int64, player string) (bool, error) {
	return cached(ctx, r, PaidKey(quizID, player), func(ctx context.Context) (bool, error) {
		return r.quiz.HasPaidToPlay(ctx, quizID, player)
	})
}

func (r *CachedReader) PlayerScore(ctx context.Context, quizID int64, player string) (int64, error) {
	return cached(ctx, r, ScoreKey(quizID, player), func(ctx context.Context) (int64, error) {
		return r.quiz.PlayerScore(ctx, quizID, player)
	})
}

// rawLeaderboard keeps the contract's parallel arrays as returned.
type rawLeaderboard struct {
	Players []string `json:"players"`
	Scores  []int64  `json:"scores"`
}

func (r *CachedReader) Leaderboard(ctx context.Context, quizID int64) ([]string, []int64, error) {
	lb, err := cached(ctx, r, LeaderboardKey(quizID), func(ctx context.Context) (rawLeaderboard, error) {
		players, scores, err := r.quiz.Leaderboard(ctx, quizID)
		return rawLeaderboard{Players: players, Scores: scores}, err
	})
	if err != nil {
		return nil, nil, err
	}
	return lb.Players, lb.Scores, nil
}

func (r *CachedReader) QuizCounter(ctx context.Context) (int64, error) {
	return cached(ctx, r, KeyQuizCounter, r.quiz.QuizCounter)
}

func (r *CachedReader) QuizBalance(ctx context.Context) (*big.Int, error) {
	return cached(ctx, r, KeyQuizBalance, r.quiz.ContractBalance)
}

func (r *CachedReader) QuizOwner(ctx context.Context) (string, error) {
	return cached(ctx, r, KeyQuizOwner, r.quiz.Owner)
}

func (r *CachedReader) MintFee(ctx context.Context) (*big.Int, error) {
	return cached(ctx, r, KeyMintFee, r.card.MintFee)
}

func (r *CachedReader) CardBalance(ctx context.Context) (*big.Int, error) {
	return cached(ctx, r, KeyCardBalance, r.card.ContractBalance)
}

func (r *CachedReader) CardOwner(ctx context.Context) (string, error) {
	return cached(ctx, r, KeyCardOwner, r.card.Owner)
}

package cli

import (
	"context"
	"fmt"
	"log/slog"
	"math/big"
	"net/http"
	"time"

	"funquiz-service/internal/app"
	"funquiz-service/internal/chain"
	"funquiz-service/internal/config"
	"funquiz-service/internal/domain"
	"funquiz-service/internal/indexer"
	"funquiz-service/internal/infra/memory"
	"funquiz-service/internal/infra/postgres"
	rediscache "funquiz-service/internal/infra/redis"
	"funquiz-service/internal/pinning"
	"funquiz-service/internal/render"
	transport "funquiz-service/internal/transport/http"
	"funquiz-service/internal/txn"
	"github.com/jackc/pgx/v4/pgxpool"
	"github.com/redis/go-redis/v9"
)

// defaultSimOwner owns the simulated contracts unless chain.owner is set.
const defaultSimOwner = "0x0000000000000000000000000000000000000001"

// runtime holds the wired services and the resources to release on shutdown.
type runtime struct {
	services transport.Services
	closers  []func()
}

func (rt *runtime) Close() {
	for i := len(rt.closers) - 1; i >= 0; i-- {
		rt.closers[i]()
	}
}

func buildRuntime(ctx context.Context, cfg config.Config, log *slog.Logger) (*runtime, error) {
	rt := &runtime{}
	built := false
	defer func() {
		if !built {
			rt.Close()
		}
	}()

	quiz, card, err := buildChain(ctx, cfg, log, rt)
	if err != nil {
		return nil, err
	}

	cacheTTL := config.TTLDuration(cfg.Cache.TTL, 30*time.Second)
	sessionTTL := config.TTLDuration(cfg.Session.TTL, 30*time.Minute)
	var cache app.Cache
	var sessions app.SessionRepository
	if cfg.Redis.Addr != "" {
		client := redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		rt.closers = append(rt.closers, func() { _ = client.Close() })
		if err := client.Ping(ctx).Err(); err != nil {
			return nil, fmt.Errorf("redis ping: %w", err)
		}
		cache = rediscache.NewCache(client, config.Or(cfg.Redis.Prefix, "funquiz:"))
		sessions = rediscache.NewSessionStore(client, sessionTTL)
	} else {
		cache = memory.NewCache(config.TTLDuration(cfg.Cache.Cleanup, time.Minute))
		sessions = memory.NewSessionStore()
	}

	reader := app.NewCachedReader(log, quiz, card, cache, cacheTTL)
	tracker := txn.NewTracker(log, reader, config.TTLDuration(cfg.Chain.ConfirmTimeout, txn.DefaultTimeout))

	var ledger app.Ledger
	if cfg.Postgres.URL != "" {
		pool, err := pgxpool.Connect(ctx, cfg.Postgres.URL)
		if err != nil {
			return nil, fmt.Errorf("postgres connect: %w", err)
		}
		rt.closers = append(rt.closers, pool.Close)
		pg := postgres.NewLedger(pool)
		ledger = pg
		tracker.OnSettled(func(st txn.Status) {
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := pg.Record(ctx, st); err != nil {
				log.Warn("ledger record failed", "action", st.Action, "err", err)
			}
		})
	}

	var idx app.Indexer
	if cfg.Indexer.URL != "" {
		idx = indexer.New(cfg.Indexer.URL, &http.Client{Timeout: config.TTLDuration(cfg.Indexer.Timeout, 10*time.Second)})
	}
	if cfg.Render.URL == "" {
		log.Warn("render.url not set, card generation will fail")
	}
	renderer := render.New(log, cfg.Render.URL, cfg.Render.DefaultProfileImage,
		&http.Client{Timeout: config.TTLDuration(cfg.Render.Timeout, 30*time.Second)})
	pinner := pinning.New(cfg.Pinning.BaseURL, cfg.Pinning.JWT,
		&http.Client{Timeout: config.TTLDuration(cfg.Pinning.Timeout, 30*time.Second)})

	rt.services = transport.Services{
		Quizzes: app.NewQuizService(log, reader, quiz, tracker),
		Play:    app.NewPlayService(log, reader, quiz, tracker, sessions),
		Cards:   app.NewCardService(log, reader, card, tracker, renderer, pinner, cache, config.TTLDuration(cfg.Cache.CardTTL, app.DefaultCardTTL)),
		Players: app.NewPlayerService(log, reader, idx, ledger),
		Tracker: tracker,
	}
	built = true
	return rt, nil
}

func buildChain(ctx context.Context, cfg config.Config, log *slog.Logger, rt *runtime) (chain.QuizContract, chain.CardContract, error) {
	if cfg.Chain.Mode == config.ChainEthereum {
		backend, err := chain.Dial(ctx, cfg.Chain.RPCURL, cfg.Chain.ChainID, cfg.Chain.PrivateKey)
		if err != nil {
			return nil, nil, err
		}
		rt.closers = append(rt.closers, backend.Close)
		quiz, err := chain.NewEthQuizContract(backend, cfg.Chain.QuizAddress)
		if err != nil {
			return nil, nil, err
		}
		card, err := chain.NewEthCardContract(backend, cfg.Chain.CardAddress)
		if err != nil {
			return nil, nil, err
		}
		log.Info("using ethereum contracts", "rpc", cfg.Chain.RPCURL, "chain_id", cfg.Chain.ChainID,
			"quiz", cfg.Chain.QuizAddress, "card", cfg.Chain.CardAddress, "signer", backend.SignerAddress())
		return quiz, card, nil
	}

	createFee, err := etherOr(cfg.Chain.CreateFee, "0.01")
	if err != nil {
		return nil, nil, fmt.Errorf("chain.create_fee: %w", err)
	}
	playFee, err := etherOr(cfg.Chain.PlayFee, "0.001")
	if err != nil {
		return nil, nil, fmt.Errorf("chain.play_fee: %w", err)
	}
	mintFee, err := etherOr(cfg.Chain.MintFee, "0.005")
	if err != nil {
		return nil, nil, fmt.Errorf("chain.mint_fee: %w", err)
	}
	owner := config.Or(cfg.Chain.Owner, defaultSimOwner)
	quiz := chain.NewSimulatedQuiz(owner, createFee, playFee)
	id := quiz.Seed(owner, sampleQuiz())
	log.Info("using simulated contracts", "owner", owner, "sample_quiz", id)
	return quiz, chain.NewSimulatedCard(owner, mintFee), nil
}

func etherOr(raw, fallback string) (*big.Int, error) {
	return domain.ParseEther(config.Or(raw, fallback))
}

// sampleQuiz is seeded into the simulated contract so a fresh instance is playable.
func sampleQuiz() domain.CreateQuizInput {
	q := func(text string, correct int, options ...string) domain.Question {
		var opts [domain.OptionsPerQuestion]string
		copy(opts[:], options)
		return domain.Question{
			Text:               text,
			Options:            opts,
			CorrectAnswerIndex: correct,
			TimeLimit:          domain.DefaultTimeLimit,
			Points:             domain.DefaultPoints,
		}
	}
	return domain.CreateQuizInput{
		Title:       "Warm-up",
		Description: "Ten quick questions to try the game.",
		Questions: []domain.Question{
			q("What is 2 + 2?", 1, "3", "4", "5", "22"),
			q("Which planet is known as the red planet?", 2, "Venus", "Jupiter", "Mars", "Saturn"),
			q("How many days are in a leap year?", 3, "364", "365", "360", "366"),
			q("What is the chemical symbol for gold?", 0, "Au", "Ag", "Gd", "Go"),
			q("Which ocean is the largest?", 1, "Atlantic", "Pacific", "Indian", "Arctic"),
			q("How many sides does a hexagon have?", 2, "5", "8", "6", "7"),
			q("What is the boiling point of water at sea level in Celsius?", 0, "100", "90", "110", "120"),
			q("Which unit pays for gas on Ethereum-compatible chains?", 3, "Satoshi", "Lamport", "Drop", "Wei"),
			q("What is 9 x 7?", 1, "56", "63", "72", "65"),
			q("Which continent is Kenya in?", 0, "Africa", "Asia", "Europe", "South America"),
		},
	}
}

package http

import (
	"log/slog"
	"net/http"
	"time"

	"funquiz-service/internal/app"
	"funquiz-service/internal/txn"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
)

// Services are the use cases exposed over HTTP.
type Services struct {
	Quizzes *app.QuizService
	Play    *app.PlayService
	Cards   *app.CardService
	Players *app.PlayerService
	Tracker *txn.Tracker
}

type RouterConfig struct {
	CORSOrigins []string
	// Tick is how often play sessions advance; one second in production.
	Tick time.Duration
}

// NewRouter wires the REST API and the websocket play endpoint.
func NewRouter(log *slog.Logger, svc Services, cfg RouterConfig) http.Handler {
	if log == nil {
		log = slog.Default()
	}
	origins := cfg.CORSOrigins
	if len(origins) == 0 {
		origins = []string{"*"}
	}

	api := &API{log: log, svc: svc}
	play := NewPlayHandler(log, svc.Play, cfg.Tick)

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(requestLogger(log))
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: origins,
		AllowedMethods: []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Content-Type", WalletHeader},
		MaxAge:         300,
	}))
	r.Use(walletMiddleware)

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("ok"))
	})
	r.Get("/ws/play", play.ServeWS)

	r.Get("/fees", api.Fees)
	r.Get("/stats", api.Stats)
	r.Get("/transactions/{action}", api.Transaction)

	r.Route("/quizzes", func(r chi.Router) {
		r.Get("/", api.ListQuizzes)
		r.Post("/", api.CreateQuiz)
		r.Get("/{id}", api.GetQuiz)
		r.Get("/{id}/status", api.PlayStatus)
		r.Get("/{id}/leaderboard", api.Leaderboard)
		r.Post("/{id}/pay", api.PayQuiz)
	})

	r.Route("/players/{address}", func(r chi.Router) {
		r.Get("/", api.PlayerSummary)
		r.Get("/transactions", api.PlayerTransactions)
	})

	r.Route("/cards", func(r chi.Router) {
		r.Post("/", api.GenerateCard)
		r.Get("/{id}/image", api.CardImage)
		r.Post("/{id}/mint", api.MintCard)
	})

	r.Route("/admin", func(r chi.Router) {
		r.Post("/quiz/fees", api.SetQuizFees)
		r.Post("/quiz/withdraw", api.WithdrawQuiz)
		r.Post("/card/fee", api.SetMintFee)
		r.Post("/card/withdraw", api.WithdrawCard)
	})

	return r
}

func requestLogger(log *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			next.ServeHTTP(ww, r)
			log.Debug("http request",
				"method", r.Method,
				"path", r.URL.Path,
				"status", ww.Status(),
				"duration", time.Since(start),
				"request_id", middleware.GetReqID(r.Context()),
			)
		})
	}
}

package http

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"
	"sync"
	"time"

	"funquiz-service/internal/app"
	"funquiz-service/internal/domain"
	"funquiz-service/internal/game"
	"github.com/gorilla/websocket"
)

// DefaultTick is the real-time length of one session tick.
const DefaultTick = time.Second

// PlayHandler runs one play session per websocket connection. The server owns the clock: a ticker
// drives the session and every phase change and tick is pushed to the client.
type PlayHandler struct {
	log      *slog.Logger
	play     *app.PlayService
	tick     time.Duration
	upgrader websocket.Upgrader
}

func NewPlayHandler(log *slog.Logger, play *app.PlayService, tick time.Duration) *PlayHandler {
	if log == nil {
		log = slog.Default()
	}
	if tick <= 0 {
		tick = DefaultTick
	}
	return &PlayHandler{
		log:  log,
		play: play,
		tick: tick,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
	}
}

type inboundMessage struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

type answerPayload struct {
	Option *int `json:"option"`
}

type outboundMessage struct {
	Type    string `json:"type"`
	Payload any    `json:"payload"`
}

type errorPayload struct {
	Message string `json:"message"`
}

type sessionPayload struct {
	Session game.Snapshot `json:"session"`
	Quiz    quizView      `json:"quiz"`
}

// outbox serialises writes to the connection. Session hooks may fire from the ticker, the read
// loop or the tracker, so pushes after close are dropped instead of panicking.
type outbox struct {
	mu         sync.Mutex
	closed     bool
	ch         chan outboundMessage
	writerDone chan struct{}
}

func (o *outbox) push(typ string, payload any) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.closed {
		return
	}
	select {
	case o.ch <- outboundMessage{Type: typ, Payload: payload}:
	case <-o.writerDone:
	}
}

func (o *outbox) close() {
	o.mu.Lock()
	defer o.mu.Unlock()
	if !o.closed {
		o.closed = true
		close(o.ch)
	}
}

// ServeWS upgrades the request and plays quizId for the wallet given by the address query
// parameter or the wallet header.
func (h *PlayHandler) ServeWS(w http.ResponseWriter, r *http.Request) {
	quizID, err := strconv.ParseInt(r.URL.Query().Get("quizId"), 10, 64)
	if err != nil || quizID <= 0 {
		http.Error(w, "missing or invalid quizId", http.StatusBadRequest)
		return
	}
	address := r.URL.Query().Get("address")
	if address == "" {
		address = r.Header.Get(WalletHeader)
	}
	wallet := domain.NewWallet(address)

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.Warn("ws upgrade failed", "err", err)
		return
	}
	defer conn.Close()

	out := &outbox{ch: make(chan outboundMessage, 32), writerDone: make(chan struct{})}
	go func() {
		defer close(out.writerDone)
		for msg := range out.ch {
			if err := conn.WriteJSON(msg); err != nil {
				h.log.Debug("ws write failed", "err", err)
				conn.Close()
				return
			}
		}
	}()

	session, err := h.play.Start(r.Context(), wallet, quizID, game.WithHooks(game.Hooks{
		OnPhaseChange: func(snap game.Snapshot) {
			if snap.Phase == game.PhaseFinished {
				out.push("finished", snap)
				return
			}
			out.push("phase", snap)
		},
		OnTick: func(snap game.Snapshot) { out.push("tick", snap) },
	}))
	if err != nil {
		out.push("error", errorPayload{Message: err.Error()})
		out.close()
		<-out.writerDone
		return
	}
	defer h.play.Discard(r.Context(), session.ID())

	quiz, err := h.play.Quiz(r.Context(), quizID)
	if err != nil {
		out.push("error", errorPayload{Message: err.Error()})
		out.close()
		<-out.writerDone
		return
	}
	out.push("session", sessionPayload{Session: session.Snapshot(), Quiz: newQuizView(quiz)})

	closeSignals := make(chan struct{})
	var wg sync.WaitGroup

	wg.Add(1)
	go func() {
		defer wg.Done()
		ticker := time.NewTicker(h.tick)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				session.Tick()
			case <-closeSignals:
				return
			}
		}
	}()

	for {
		var inbound inboundMessage
		if err := conn.ReadJSON(&inbound); err != nil {
			break
		}
		switch inbound.Type {
		case "answer":
			var payload answerPayload
			if err := json.Unmarshal(inbound.Payload, &payload); err != nil || payload.Option == nil {
				out.push("error", errorPayload{Message: "invalid answer payload"})
				continue
			}
			res, err := h.play.Answer(r.Context(), session.ID(), *payload.Option)
			if err != nil {
				out.push("error", errorPayload{Message: err.Error()})
				continue
			}
			out.push("result", res)
		case "submit":
			handle, err := h.play.SubmitScore(r.Context(), wallet, session.ID())
			if err != nil {
				out.push("error", errorPayload{Message: err.Error()})
				continue
			}
			updates, cancel := handle.Subscribe()
			wg.Add(1)
			go func() {
				defer wg.Done()
				defer cancel()
				for {
					select {
					case st, ok := <-updates:
						if !ok {
							return
						}
						out.push("transaction", st)
					case <-closeSignals:
						return
					}
				}
			}()
		default:
			out.push("error", errorPayload{Message: "unsupported message type"})
		}
	}

	close(closeSignals)
	wg.Wait()
	out.close()
	<-out.writerDone
}

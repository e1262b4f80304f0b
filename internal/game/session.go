package game

import (
	"fmt"
	"sync"
	"time"

	"funquiz-service/internal/domain"
	"github.com/google/uuid"
)

const (
	// StartCountdown is the number of ticks before the first question.
	StartCountdown = 3
	// FeedbackCountdown is the number of ticks the answer feedback stays up.
	FeedbackCountdown = 3
)

// Phase is the coarse state of a play session.
type Phase string

const (
	PhaseCountdown Phase = "countdown"
	PhasePlaying   Phase = "playing"
	PhaseAnswered  Phase = "answered"
	PhaseFinished  Phase = "finished"
)

// FinishState tracks the score submission once gameplay is over. It never affects scoring.
type FinishState string

const (
	FinishAwaitingSubmission FinishState = "awaiting_submission"
	FinishSubmitted          FinishState = "submitted"
)

// Snapshot is a read-only view of a session.
type Snapshot struct {
	SessionID      string      `json:"sessionId"`
	QuizID         int64       `json:"quizId"`
	Player         string      `json:"player"`
	Phase          Phase       `json:"phase"`
	QuestionIndex  int         `json:"questionIndex"`
	TotalQuestions int         `json:"totalQuestions"`
	Countdown      int         `json:"countdown"`
	TimeLeft       int         `json:"timeLeft"`
	TimeLimit      int         `json:"timeLimit"`
	Score          int         `json:"score"`
	LastResult     *Result     `json:"lastResult,omitempty"`
	Finish         FinishState `json:"finish,omitempty"`
}

// Hooks are invoked after the session lock is released. Deliveries from Tick, Answer and
// MarkSubmitted are serialized, so hooks observe snapshots in transition order across goroutines.
// A hook may call Snapshot but must not call Tick, Answer or MarkSubmitted.
type Hooks struct {
	OnPhaseChange func(Snapshot)
	OnTick        func(Snapshot)
}

// Option configures a Session.
type Option func(*Session)

func WithHooks(h Hooks) Option { return func(s *Session) { s.hooks = h } }

func WithID(id string) Option { return func(s *Session) { s.id = id } }

// WithClock is used by tests for deterministic timestamps.
func WithClock(now func() time.Time) Option { return func(s *Session) { s.now = now } }

// Session is one player's timed playthrough of one quiz.
type Session struct {
	id        string
	player    string
	quiz      domain.Quiz
	now       func() time.Time
	createdAt time.Time
	hooks     Hooks

	// deliver is taken before mu and held until hooks return.
	deliver   sync.Mutex
	mu        sync.Mutex
	phase     Phase
	index     int
	countdown int
	timer     Timer
	agg       *Aggregator
	last      *Result
	finish    FinishState
}

// NewSession starts a session in Countdown. The quiz must have exactly ten questions.
func NewSession(quiz domain.Quiz, player string, opts ...Option) (*Session, error) {
	if len(quiz.Questions) != domain.QuestionsPerQuiz {
		return nil, fmt.Errorf("quiz %d: %w", quiz.ID, domain.ErrInvalidQuiz)
	}
	s := &Session{
		id:        uuid.NewString(),
		player:    domain.NormalizeAddress(player),
		quiz:      quiz,
		now:       time.Now,
		phase:     PhaseCountdown,
		countdown: StartCountdown,
		agg:       NewAggregator(),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.createdAt = s.now()
	return s, nil
}

func (s *Session) ID() string           { return s.id }
func (s *Session) QuizID() int64        { return s.quiz.ID }
func (s *Session) Player() string       { return s.player }
func (s *Session) CreatedAt() time.Time { return s.createdAt }

type event struct {
	phaseChange bool
	snap        Snapshot
}

// Tick advances the session by one second. It is a no-op once Finished.
func (s *Session) Tick() {
	s.deliver.Lock()
	defer s.deliver.Unlock()
	s.mu.Lock()
	var evs []event
	switch s.phase {
	case PhaseCountdown:
		s.countdown--
		if s.countdown <= 0 {
			s.countdown = 0
			evs = s.enterPlayingLocked(0, evs)
		} else {
			evs = append(evs, event{snap: s.snapshotLocked()})
		}
	case PhasePlaying:
		s.timer.Tick()
		if s.timer.Expired() {
			evs = s.resolveLocked(domain.NoAnswer, evs)
		} else {
			evs = append(evs, event{snap: s.snapshotLocked()})
		}
	case PhaseAnswered:
		s.countdown--
		if s.countdown > 0 {
			evs = append(evs, event{snap: s.snapshotLocked()})
			break
		}
		s.countdown = 0
		if s.index < len(s.quiz.Questions)-1 {
			evs = s.enterPlayingLocked(s.index+1, evs)
		} else {
			s.phase = PhaseFinished
			s.finish = FinishAwaitingSubmission
			evs = append(evs, event{phaseChange: true, snap: s.snapshotLocked()})
		}
	case PhaseFinished:
	}
	s.mu.Unlock()
	s.dispatch(evs)
}

// Answer records an explicit answer for the current question.
func (s *Session) Answer(option int) (Result, error) {
	s.deliver.Lock()
	defer s.deliver.Unlock()
	s.mu.Lock()
	if s.phase != PhasePlaying {
		phase := s.phase
		s.mu.Unlock()
		return Result{}, fmt.Errorf("%w: answer during %s", domain.ErrWrongPhase, phase)
	}
	if option < 0 || option >= domain.OptionsPerQuestion {
		s.mu.Unlock()
		return Result{}, fmt.Errorf("%w: option %d", domain.ErrInvalidInput, option)
	}
	evs := s.resolveLocked(option, nil)
	res := *s.last
	s.mu.Unlock()
	s.dispatch(evs)
	return res, nil
}

// Snapshot returns the current view of the session.
func (s *Session) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snapshotLocked()
}

// Submission returns the payload for the contract. Only available once Finished.
func (s *Session) Submission() (domain.ScoreSubmission, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.phase != PhaseFinished {
		return domain.ScoreSubmission{}, fmt.Errorf("%w: submission during %s", domain.ErrWrongPhase, s.phase)
	}
	return s.agg.Submission(s.quiz.ID)
}

// MarkSubmitted moves the finished session to the submitted sub-state.
func (s *Session) MarkSubmitted() {
	s.deliver.Lock()
	defer s.deliver.Unlock()
	s.mu.Lock()
	if s.phase != PhaseFinished || s.finish == FinishSubmitted {
		s.mu.Unlock()
		return
	}
	s.finish = FinishSubmitted
	snap := s.snapshotLocked()
	s.mu.Unlock()
	s.dispatch([]event{{phaseChange: true, snap: snap}})
}

func (s *Session) enterPlayingLocked(index int, evs []event) []event {
	s.phase = PhasePlaying
	s.index = index
	s.last = nil
	s.timer.Start(s.quiz.Questions[index].TimeLimit)
	evs = append(evs, event{phaseChange: true, snap: s.snapshotLocked()})
	if s.timer.Expired() {
		evs = s.resolveLocked(domain.NoAnswer, evs)
	}
	return evs
}

func (s *Session) resolveLocked(selected int, evs []event) []event {
	res := Evaluate(s.quiz.Questions[s.index], selected, s.timer.Remaining())
	res.QuestionIndex = s.index
	// Playing is entered once per index, so the slot is empty.
	if err := s.agg.Record(res); err != nil {
		panic(fmt.Sprintf("game: session %s: %v", s.id, err))
	}
	s.last = &res
	s.phase = PhaseAnswered
	s.countdown = FeedbackCountdown
	return append(evs, event{phaseChange: true, snap: s.snapshotLocked()})
}

func (s *Session) snapshotLocked() Snapshot {
	snap := Snapshot{
		SessionID:      s.id,
		QuizID:         s.quiz.ID,
		Player:         s.player,
		Phase:          s.phase,
		QuestionIndex:  s.index,
		TotalQuestions: len(s.quiz.Questions),
		Countdown:      s.countdown,
		TimeLeft:       s.timer.Remaining(),
		TimeLimit:      s.timer.Limit(),
		Score:          s.agg.Total(),
		Finish:         s.finish,
	}
	if s.last != nil {
		r := *s.last
		snap.LastResult = &r
	}
	return snap
}

func (s *Session) dispatch(evs []event) {
	for _, ev := range evs {
		if ev.phaseChange {
			if s.hooks.OnPhaseChange != nil {
				s.hooks.OnPhaseChange(ev.snap)
			}
			continue
		}
		if s.hooks.OnTick != nil {
			s.hooks.OnTick(ev.snap)
		}
	}
}

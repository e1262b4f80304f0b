package txn

import (
	"context"
	"sync"
	"time"
)

// State is a step of the transaction lifecycle.
type State string

const (
	StateIdle       State = "idle"
	StatePending    State = "pending"
	StateConfirming State = "confirming"
	StateConfirmed  State = "confirmed"
	StateFailed     State = "failed"
)

// Status is a point-in-time view of one operation.
type Status struct {
	Action    string    `json:"action"`
	From      string    `json:"from,omitempty"`
	State     State     `json:"state"`
	Hash      string    `json:"hash,omitempty"`
	Err       error     `json:"-"`
	Error     string    `json:"error,omitempty"`
	UpdatedAt time.Time `json:"updatedAt"`
}

func (s Status) IsPending() bool    { return s.State == StatePending }
func (s Status) IsConfirming() bool { return s.State == StateConfirming }
func (s Status) IsConfirmed() bool  { return s.State == StateConfirmed }
func (s Status) Terminal() bool     { return s.State == StateConfirmed || s.State == StateFailed }

// Handle follows a single submitted operation.
type Handle struct {
	mu     sync.Mutex
	status Status
	subs   map[chan Status]struct{}
	done   chan struct{}
}

func newHandle(initial Status) *Handle {
	return &Handle{
		status: initial,
		subs:   make(map[chan Status]struct{}),
		done:   make(chan struct{}),
	}
}

func (h *Handle) Status() Status {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.status
}

// Done is closed once the operation is confirmed or failed.
func (h *Handle) Done() <-chan struct{} { return h.done }

// Wait blocks until the operation settles and returns the final status and its error.
func (h *Handle) Wait(ctx context.Context) (Status, error) {
	select {
	case <-h.done:
		st := h.Status()
		return st, st.Err
	case <-ctx.Done():
		return h.Status(), ctx.Err()
	}
}

// Subscribe returns a channel receiving the current status and every later one. The channel is
// closed after the terminal status. The caller must invoke cancel to stop early.
func (h *Handle) Subscribe() (<-chan Status, func()) {
	ch := make(chan Status, 4)

	h.mu.Lock()
	ch <- h.status
	if h.status.Terminal() {
		close(ch)
		h.mu.Unlock()
		return ch, func() {}
	}
	h.subs[ch] = struct{}{}
	h.mu.Unlock()

	cancel := func() {
		h.mu.Lock()
		if _, ok := h.subs[ch]; ok {
			delete(h.subs, ch)
			close(ch)
		}
		h.mu.Unlock()
	}
	return ch, cancel
}

func (h *Handle) update(st Status) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.status = st
	h.broadcastLocked()
}

func (h *Handle) finish(st Status) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.status = st
	h.broadcastLocked()
	for ch := range h.subs {
		close(ch)
	}
	h.subs = make(map[chan Status]struct{})
	close(h.done)
}

func (h *Handle) broadcastLocked() {
	for ch := range h.subs {
		select {
		case ch <- h.status:
		default:
			// Drop the oldest update so a slow reader never blocks the tracker.
			select {
			case <-ch:
			default:
			}
			ch <- h.status
		}
	}
}

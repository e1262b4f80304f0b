// Package txn tracks state-changing contract calls from signing to finality.
package txn

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"funquiz-service/internal/domain"
)

// DefaultTimeout bounds how long a transaction may take to confirm.
const DefaultTimeout = 2 * time.Minute

// Transaction is a broadcast transaction. chain.Tx satisfies it.
type Transaction interface {
	Hash() string
	Wait(ctx context.Context) error
}

// Invalidator drops and re-fetches cached reads that a confirmed transaction made stale.
type Invalidator interface {
	Invalidate(ctx context.Context, keys ...string) error
}

// Operation describes one contract write.
type Operation struct {
	// Action is the single-flight key, e.g. "pay:3:0xabc".
	Action string
	// From is the wallet that signs the transaction.
	From string

	Send func(ctx context.Context) (Transaction, error)

	// Invalidates lists the cache keys refreshed once the transaction is confirmed.
	Invalidates []string
	// OnSettled runs once the terminal status is recorded, while the action is still in flight and
	// before waiters on the handle are released.
	OnSettled func(Status)
}

// Tracker runs operations and exposes their lifecycle.
type Tracker struct {
	log         *slog.Logger
	invalidator Invalidator
	timeout     time.Duration
	now         func() time.Time

	mu        sync.Mutex
	inflight  map[string]*Handle
	latest    map[string]Status
	observers []func(Status)
}

func NewTracker(log *slog.Logger, invalidator Invalidator, timeout time.Duration) *Tracker {
	if log == nil {
		log = slog.Default()
	}
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Tracker{
		log:         log,
		invalidator: invalidator,
		timeout:     timeout,
		now:         time.Now,
		inflight:    make(map[string]*Handle),
		latest:      make(map[string]Status),
	}
}

// OnSettled registers an observer for every terminal status.
func (t *Tracker) OnSettled(fn func(Status)) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.observers = append(t.observers, fn)
}

// Submit starts op in the background. A second submit for an action that has not settled returns
// the existing handle and ErrInFlight. The request context only contributes values; cancelling it
// does not abandon the transaction.
func (t *Tracker) Submit(ctx context.Context, op Operation) (*Handle, error) {
	if op.Action == "" || op.Send == nil {
		return nil, fmt.Errorf("%w: operation needs an action and a sender", domain.ErrInvalidInput)
	}

	t.mu.Lock()
	if h, ok := t.inflight[op.Action]; ok {
		t.mu.Unlock()
		return h, fmt.Errorf("%s: %w", op.Action, domain.ErrInFlight)
	}
	h := newHandle(Status{Action: op.Action, From: op.From, State: StatePending, UpdatedAt: t.now()})
	t.inflight[op.Action] = h
	t.latest[op.Action] = h.Status()
	t.mu.Unlock()

	go t.run(context.WithoutCancel(ctx), op, h)
	return h, nil
}

// Status returns the most recent status for action, or an idle status if it never ran.
func (t *Tracker) Status(action string) (Status, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	st, ok := t.latest[action]
	if !ok {
		return Status{Action: action, State: StateIdle}, false
	}
	return st, true
}

func (t *Tracker) run(ctx context.Context, op Operation, h *Handle) {
	ctx, cancel := context.WithTimeout(ctx, t.timeout)
	defer cancel()

	tx, err := op.Send(ctx)
	if err != nil {
		t.settle(op, h, Status{Action: op.Action, From: op.From, State: StateFailed, Err: classify(err)})
		return
	}

	confirming := Status{Action: op.Action, From: op.From, State: StateConfirming, Hash: tx.Hash(), UpdatedAt: t.now()}
	t.mu.Lock()
	t.latest[op.Action] = confirming
	t.mu.Unlock()
	h.update(confirming)
	t.log.Info("transaction broadcast", "action", op.Action, "tx", confirming.Hash)

	if err := tx.Wait(ctx); err != nil {
		t.settle(op, h, Status{Action: op.Action, From: op.From, State: StateFailed, Hash: confirming.Hash, Err: classify(err)})
		return
	}

	if t.invalidator != nil && len(op.Invalidates) > 0 {
		if err := t.invalidator.Invalidate(ctx, op.Invalidates...); err != nil {
			t.log.Warn("refresh after confirmation failed", "action", op.Action, "keys", op.Invalidates, "err", err)
		}
	}
	t.settle(op, h, Status{Action: op.Action, From: op.From, State: StateConfirmed, Hash: confirming.Hash})
}

func (t *Tracker) settle(op Operation, h *Handle, st Status) {
	st.UpdatedAt = t.now()
	if st.Err != nil {
		st.Error = st.Err.Error()
		t.log.Warn("transaction failed", "action", st.Action, "tx", st.Hash, "err", st.Err)
	} else {
		t.log.Info("transaction confirmed", "action", st.Action, "tx", st.Hash)
	}

	t.mu.Lock()
	t.latest[op.Action] = st
	observers := append([]func(Status){}, t.observers...)
	t.mu.Unlock()

	// The action stays in flight until OnSettled has applied its effects.
	if op.OnSettled != nil {
		op.OnSettled(st)
	}
	t.mu.Lock()
	delete(t.inflight, op.Action)
	t.mu.Unlock()
	h.finish(st)
	for _, fn := range observers {
		fn(st)
	}
}

// classify keeps signer rejections distinct from everything else, which counts as a failed call.
func classify(err error) error {
	if errors.Is(err, domain.ErrRejected) || errors.Is(err, domain.ErrCallFailed) {
		return err
	}
	return fmt.Errorf("%w: %v", domain.ErrCallFailed, err)
}

package txn

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"funquiz-service/internal/domain"
)

type fakeTx struct {
	hash    string
	release chan struct{}
	err     error
}

func (f *fakeTx) Hash() string { return f.hash }

func (f *fakeTx) Wait(ctx context.Context) error {
	if f.release != nil {
		select {
		case <-f.release:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return f.err
}

type recordingInvalidator struct {
	mu    sync.Mutex
	calls [][]string
}

func (r *recordingInvalidator) Invalidate(_ context.Context, keys ...string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls = append(r.calls, append([]string(nil), keys...))
	return nil
}

func (r *recordingInvalidator) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.calls)
}

func waitSettled(t *testing.T, h *Handle) Status {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	st, _ := h.Wait(ctx)
	if !st.Terminal() {
		t.Fatalf("operation did not settle: %+v", st)
	}
	return st
}

func TestTrackerLifecycleConfirmed(t *testing.T) {
	inv := &recordingInvalidator{}
	tracker := NewTracker(nil, inv, time.Second)
	tx := &fakeTx{hash: "0x01", release: make(chan struct{})}

	h, err := tracker.Submit(context.Background(), Operation{
		Action:      "submit:1:0xabc",
		Send:        func(context.Context) (Transaction, error) { return tx, nil },
		Invalidates: []string{"leaderboard:1", "score:1:0xabc"},
	})
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	updates, cancel := h.Subscribe()
	defer cancel()

	var seen []State
	deadline := time.After(2 * time.Second)
	for len(seen) == 0 || seen[len(seen)-1] != StateConfirming {
		select {
		case st := <-updates:
			seen = append(seen, st.State)
		case <-deadline:
			t.Fatalf("never reached confirming, saw %v", seen)
		}
	}
	if seen[0] != StatePending && seen[0] != StateConfirming {
		t.Fatalf("unexpected first state %v", seen)
	}
	if inv.count() != 0 {
		t.Fatalf("caches must not be touched before confirmation")
	}

	close(tx.release)
	st := waitSettled(t, h)
	if !st.IsConfirmed() || st.Hash != "0x01" {
		t.Fatalf("expected confirmed 0x01, got %+v", st)
	}
	if inv.count() != 1 {
		t.Fatalf("expected exactly one invalidation, got %d", inv.count())
	}
	if got := inv.calls[0]; len(got) != 2 || got[0] != "leaderboard:1" {
		t.Fatalf("unexpected invalidated keys %v", got)
	}
	if latest, ok := tracker.Status("submit:1:0xabc"); !ok || !latest.IsConfirmed() {
		t.Fatalf("tracker status not updated: %+v", latest)
	}
}

func TestTrackerRejectedBySigner(t *testing.T) {
	inv := &recordingInvalidator{}
	tracker := NewTracker(nil, inv, time.Second)
	h, err := tracker.Submit(context.Background(), Operation{
		Action: "pay:1:0xabc",
		Send: func(context.Context) (Transaction, error) {
			return nil, domain.ErrRejected
		},
		Invalidates: []string{"paid:1:0xabc"},
	})
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	st := waitSettled(t, h)
	if st.State != StateFailed || !errors.Is(st.Err, domain.ErrRejected) {
		t.Fatalf("expected rejected failure, got %+v", st)
	}
	if st.Error == "" {
		t.Fatalf("expected error message to be kept")
	}
	if inv.count() != 0 {
		t.Fatalf("failed transactions must not invalidate caches")
	}
}

func TestTrackerRevertIsCallFailed(t *testing.T) {
	tracker := NewTracker(nil, nil, time.Second)
	h, _ := tracker.Submit(context.Background(), Operation{
		Action: "withdraw",
		Send: func(context.Context) (Transaction, error) {
			return &fakeTx{hash: "0x02", err: errors.New("execution reverted")}, nil
		},
	})
	st := waitSettled(t, h)
	if !errors.Is(st.Err, domain.ErrCallFailed) || st.Hash != "0x02" {
		t.Fatalf("expected call failure with hash, got %+v", st)
	}
}

func TestTrackerSingleFlight(t *testing.T) {
	tracker := NewTracker(nil, nil, time.Second)
	tx := &fakeTx{hash: "0x03", release: make(chan struct{})}
	sends := 0
	op := Operation{
		Action: "create:0xabc",
		Send: func(context.Context) (Transaction, error) {
			sends++
			return tx, nil
		},
	}
	first, err := tracker.Submit(context.Background(), op)
	if err != nil {
		t.Fatalf("first submit: %v", err)
	}
	second, err := tracker.Submit(context.Background(), op)
	if !errors.Is(err, domain.ErrInFlight) {
		t.Fatalf("expected ErrInFlight, got %v", err)
	}
	if second != first {
		t.Fatalf("expected the in-flight handle back")
	}
	close(tx.release)
	waitSettled(t, first)
	if sends != 1 {
		t.Fatalf("expected one send, got %d", sends)
	}

	third, err := tracker.Submit(context.Background(), Operation{
		Action: "create:0xabc",
		Send:   func(context.Context) (Transaction, error) { return &fakeTx{hash: "0x04"}, nil },
	})
	if err != nil {
		t.Fatalf("resubmit after settle: %v", err)
	}
	waitSettled(t, third)
}

func TestTrackerHoldsActionUntilOnSettledReturns(t *testing.T) {
	tracker := NewTracker(nil, nil, time.Second)
	entered := make(chan struct{})
	release := make(chan struct{})
	op := Operation{
		Action: "submit:1:0xabc",
		Send:   func(context.Context) (Transaction, error) { return &fakeTx{hash: "0x06"}, nil },
		OnSettled: func(Status) {
			close(entered)
			<-release
		},
	}
	first, err := tracker.Submit(context.Background(), op)
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	select {
	case <-entered:
	case <-time.After(2 * time.Second):
		t.Fatalf("OnSettled never ran")
	}

	dup, err := tracker.Submit(context.Background(), Operation{
		Action: "submit:1:0xabc",
		Send: func(context.Context) (Transaction, error) {
			t.Errorf("duplicate send while settling")
			return &fakeTx{hash: "0x07"}, nil
		},
	})
	if !errors.Is(err, domain.ErrInFlight) || dup != first {
		t.Fatalf("expected the settling handle and ErrInFlight, got %v", err)
	}
	select {
	case <-first.Done():
		t.Fatalf("handle released before OnSettled returned")
	default:
	}

	close(release)
	if st := waitSettled(t, first); !st.IsConfirmed() {
		t.Fatalf("unexpected status %+v", st)
	}
	next, err := tracker.Submit(context.Background(), Operation{
		Action: "submit:1:0xabc",
		Send:   func(context.Context) (Transaction, error) { return &fakeTx{hash: "0x08"}, nil },
	})
	if err != nil {
		t.Fatalf("submit after settle: %v", err)
	}
	waitSettled(t, next)
}

func TestTrackerDetachedFromRequestContext(t *testing.T) {
	tracker := NewTracker(nil, nil, time.Second)
	ctx, cancel := context.WithCancel(context.Background())
	tx := &fakeTx{hash: "0x05", release: make(chan struct{})}
	h, _ := tracker.Submit(ctx, Operation{
		Action: "mint:0xabc",
		Send:   func(context.Context) (Transaction, error) { return tx, nil },
	})
	cancel()
	close(tx.release)
	if st := waitSettled(t, h); !st.IsConfirmed() {
		t.Fatalf("request cancellation must not fail the transaction: %+v", st)
	}
}

func TestTrackerObservers(t *testing.T) {
	tracker := NewTracker(nil, nil, time.Second)
	got := make(chan Status, 2)
	tracker.OnSettled(func(st Status) { got <- st })

	var opSettled Status
	h, _ := tracker.Submit(context.Background(), Operation{
		Action:    "fees",
		Send:      func(context.Context) (Transaction, error) { return &fakeTx{hash: "0x06"}, nil },
		OnSettled: func(st Status) { opSettled = st },
	})
	waitSettled(t, h)
	select {
	case st := <-got:
		if !st.IsConfirmed() || opSettled.Hash != "0x06" {
			t.Fatalf("unexpected observed status %+v / %+v", st, opSettled)
		}
	case <-time.After(time.Second):
		t.Fatalf("observer never called")
	}
}

func TestTrackerUnknownActionIsIdle(t *testing.T) {
	tracker := NewTracker(nil, nil, time.Second)
	st, ok := tracker.Status("nothing")
	if ok || st.State != StateIdle {
		t.Fatalf("expected idle, got %+v", st)
	}
}

package game

// Timer is a per-question countdown with one-second ticks. It never goes below zero.
type Timer struct {
	limit     int
	remaining int
}

// Start resets the timer to limit seconds.
func (t *Timer) Start(limit int) {
	if limit < 0 {
		limit = 0
	}
	t.limit = limit
	t.remaining = limit
}

// Tick consumes one second and returns the remaining time.
func (t *Timer) Tick() int {
	if t.remaining > 0 {
		t.remaining--
	}
	return t.remaining
}

func (t *Timer) Remaining() int { return t.remaining }

func (t *Timer) Limit() int { return t.limit }

// Expired reports whether the countdown reached zero.
func (t *Timer) Expired() bool { return t.remaining == 0 }

package app

import "time"

// TrackedKeys reports how many keys the reader would refetch on invalidation.
func (r *CachedReader) TrackedKeys() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.fills)
}

func (r *CachedReader) SetClock(now func() time.Time) { r.now = now }

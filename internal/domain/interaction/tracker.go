package interaction

import (
	"sync"
	"time"
)

// LocationTracker remembers the most recent fix posted by the device so
// that chat messages without GPS can still be placed.
type LocationTracker struct {
	mu       sync.RWMutex
	ttl      time.Duration
	now      func() time.Time
	location *Location
	seenAt   time.Time
}

// NewLocationTracker creates a tracker whose fix expires after ttl. A zero
// ttl keeps the fix forever.
func NewLocationTracker(ttl time.Duration) *LocationTracker {
	return &LocationTracker{ttl: ttl, now: time.Now}
}

// Update records a new fix. Nil locations are ignored.
func (t *LocationTracker) Update(loc *Location) {
	if loc == nil {
		return
	}
	copied := *loc
	t.mu.Lock()
	defer t.mu.Unlock()
	t.location = &copied
	t.seenAt = t.now()
}

// Current returns the last fix if it has not expired.
func (t *LocationTracker) Current() *Location {
	t.mu.RLock()
	defer t.mu.RUnlock()
	if t.location == nil {
		return nil
	}
	if t.ttl > 0 && t.now().Sub(t.seenAt) > t.ttl {
		return nil
	}
	copied := *t.location
	return &copied
}

package conversation

import "sync"

// History is a bounded conversation log holding at most k user/assistant
// pairs. Turns are always appended and trimmed in whole pairs, so the log
// length stays even and starts with a user turn.
type History struct {
	mu       sync.Mutex
	maxPairs int
	turns    []Turn
}

// NewHistory creates a history bounded to maxPairs pairs. Values below one
// are raised to one.
func NewHistory(maxPairs int) *History {
	if maxPairs < 1 {
		maxPairs = 1
	}
	return &History{
		maxPairs: maxPairs,
		turns:    make([]Turn, 0, 2*maxPairs+2),
	}
}

// MaxPairs returns the pair bound.
func (h *History) MaxPairs() int {
	return h.maxPairs
}

// Append records one exchange and trims the oldest pairs beyond the bound.
func (h *History) Append(user, assistant string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.appendLocked(user, assistant)
}

// AppendAndSnapshot records one exchange and returns a copy of the history
// taken under the same lock, so the exchange is guaranteed to be last.
func (h *History) AppendAndSnapshot(user, assistant string) []Turn {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.appendLocked(user, assistant)
	return h.snapshotLocked()
}

// Snapshot returns a copy of the current turns.
func (h *History) Snapshot() []Turn {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.snapshotLocked()
}

// Len returns the number of stored turns.
func (h *History) Len() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.turns)
}

// Clear drops all turns.
func (h *History) Clear() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.turns = h.turns[:0]
}

func (h *History) appendLocked(user, assistant string) {
	h.turns = append(h.turns,
		Turn{Role: RoleUser, Content: user},
		Turn{Role: RoleAssistant, Content: assistant},
	)
	if excess := len(h.turns) - 2*h.maxPairs; excess > 0 {
		// excess is always even because turns only grow in pairs.
		kept := make([]Turn, len(h.turns)-excess, 2*h.maxPairs+2)
		copy(kept, h.turns[excess:])
		h.turns = kept
	}
}

func (h *History) snapshotLocked() []Turn {
	out := make([]Turn, len(h.turns))
	copy(out, h.turns)
	return out
}

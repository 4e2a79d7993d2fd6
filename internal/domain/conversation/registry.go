package conversation

import (
	"github.com/rs/zerolog"

	"travel-companion/internal/infrastructure/metrics"
)

// Scope selects which history an interaction reads and writes.
type Scope int

const (
	// ScopeShared uses the process-wide history.
	ScopeShared Scope = iota
	// ScopeRequest uses a fresh history that lives for one request.
	ScopeRequest
)

// Registry owns the conversation histories of the process.
type Registry struct {
	maxPairs int
	shared   *History
	log      zerolog.Logger
}

// NewRegistry creates a registry whose histories hold maxPairs pairs.
func NewRegistry(maxPairs int, log zerolog.Logger) *Registry {
	return &Registry{
		maxPairs: maxPairs,
		shared:   NewHistory(maxPairs),
		log:      log.With().Str("component", "conversation-registry").Logger(),
	}
}

// Shared returns the process-wide history.
func (r *Registry) Shared() *History {
	return r.shared
}

// ForRequest returns a fresh, empty history that lives for one request.
func (r *Registry) ForRequest() *History {
	return NewHistory(r.maxPairs)
}

// ForScope returns the history for a scope.
func (r *Registry) ForScope(scope Scope) *History {
	if scope == ScopeShared {
		return r.shared
	}
	return r.ForRequest()
}

// Reset clears the shared history.
func (r *Registry) Reset() {
	before := r.shared.Len()
	r.shared.Clear()
	metrics.HistoryTurns.Set(0)
	r.log.Info().Int("dropped_turns", before).Msg("shared history cleared")
}

// Observe publishes the shared history size.
func (r *Registry) Observe() {
	metrics.HistoryTurns.Set(float64(r.shared.Len()))
}

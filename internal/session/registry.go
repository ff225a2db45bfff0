// Package session owns the lifecycle of conversation sessions: creation on
// first contact, per-session turn serialization, and idle eviction.
package session

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/letsdeepchat/MedAppAuto/internal/dialogue"
	"github.com/letsdeepchat/MedAppAuto/internal/observability/metrics"
	"github.com/letsdeepchat/MedAppAuto/pkg/logging"
)

// Registry maps session ids to dialogue sessions. Concurrent messages for
// the same id are serialized through the entry's lock; messages for
// different sessions proceed in parallel.
type Registry struct {
	logger  *logging.Logger
	metrics *metrics.ConversationMetrics

	now          func() time.Time
	idleTimeout  time.Duration
	historyLimit int

	mu      sync.Mutex
	entries map[string]*entry
}

type entry struct {
	mu      sync.Mutex
	session *dialogue.Session

	// lastActive is guarded by the registry mutex, not the turn lock. The
	// janitor never reads session state that an in-flight turn may be
	// writing.
	lastActive time.Time
}

// Option configures the registry.
type Option func(*Registry)

// WithClock injects the time source.
func WithClock(now func() time.Time) Option {
	return func(r *Registry) {
		if now != nil {
			r.now = now
		}
	}
}

// WithIdleTimeout sets how long a session may sit idle before eviction.
func WithIdleTimeout(d time.Duration) Option {
	return func(r *Registry) {
		if d > 0 {
			r.idleTimeout = d
		}
	}
}

// WithHistoryLimit bounds each session's conversation history.
func WithHistoryLimit(n int) Option {
	return func(r *Registry) {
		if n > 0 {
			r.historyLimit = n
		}
	}
}

// WithMetrics attaches the active-session gauge.
func WithMetrics(m *metrics.ConversationMetrics) Option {
	return func(r *Registry) { r.metrics = m }
}

// NewRegistry creates an empty registry.
func NewRegistry(logger *logging.Logger, opts ...Option) *Registry {
	if logger == nil {
		logger = logging.Default()
	}
	r := &Registry{
		logger:       logger,
		now:          time.Now,
		idleTimeout:  30 * time.Minute,
		historyLimit: 20,
		entries:      make(map[string]*entry),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// GetOrCreate returns the session for the id, creating it on first contact.
// A blank id gets a fresh uuid, returned via the session's ID field.
func (r *Registry) GetOrCreate(id string) *dialogue.Session {
	r.mu.Lock()
	defer r.mu.Unlock()

	if id == "" {
		id = uuid.NewString()
	}
	e, ok := r.entries[id]
	if !ok {
		now := r.now()
		e = &entry{session: dialogue.NewSession(id, now, r.historyLimit), lastActive: now}
		r.entries[id] = e
		r.metrics.SetActiveSessions(len(r.entries))
		r.logger.Debug("session created", "session_id", id)
	}
	return e.session
}

// WithSession runs fn while holding the session's turn lock, creating the
// session if needed. This is the serialization point for message handling.
func (r *Registry) WithSession(id string, fn func(s *dialogue.Session)) {
	r.mu.Lock()
	if id == "" {
		id = uuid.NewString()
	}
	e, ok := r.entries[id]
	if !ok {
		e = &entry{session: dialogue.NewSession(id, r.now(), r.historyLimit)}
		r.entries[id] = e
		r.metrics.SetActiveSessions(len(r.entries))
		r.logger.Debug("session created", "session_id", id)
	}
	e.lastActive = r.now()
	r.mu.Unlock()

	// Refresh again after the turn so a long turn is not counted as idle
	// time. Harmless if the janitor dropped the entry mid-turn.
	defer func() {
		r.mu.Lock()
		e.lastActive = r.now()
		r.mu.Unlock()
	}()

	e.mu.Lock()
	defer e.mu.Unlock()
	fn(e.session)
}

// Touch refreshes the session's activity timestamp if it exists.
func (r *Registry) Touch(id string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if e, ok := r.entries[id]; ok {
		e.lastActive = r.now()
	}
}

// Len reports the number of live sessions.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.entries)
}

// EvictExpired drops sessions idle past the timeout and returns how many
// were removed. In-progress booking drafts die with the session; committed
// appointments are unaffected.
func (r *Registry) EvictExpired(now time.Time) int {
	r.mu.Lock()
	defer r.mu.Unlock()

	evicted := 0
	for id, e := range r.entries {
		if now.Sub(e.lastActive) > r.idleTimeout {
			delete(r.entries, id)
			evicted++
		}
	}
	if evicted > 0 {
		r.metrics.SetActiveSessions(len(r.entries))
		r.logger.Info("evicted idle sessions", "count", evicted, "remaining", len(r.entries))
	}
	return evicted
}

// Run evicts idle sessions on the interval until the context is cancelled.
func (r *Registry) Run(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = 5 * time.Minute
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			r.EvictExpired(r.now())
		}
	}
}

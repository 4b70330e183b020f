// Package session provides the in-process session state and orchestration
// for the game-master backend.
//
// A [Session] is the set of conversational turns between one user and the
// system since their last summarisation. The [Registry] owns all live
// sessions; the [Orchestrator] coordinates the message store, the agent
// factory, and the registry to implement the interactive turn and the
// close/summarise operations.
//
// All exported types are safe for concurrent use.
package session

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
)

// DefaultMaxIdle is how long a session may sit without a turn before the
// sweeper evicts it. Sessions are in-memory only; eviction discards turns
// that have not been summarised, but every turn is already durable in the
// message store.
const DefaultMaxIdle = 2 * time.Hour

// DefaultSweepInterval is how often the sweeper scans for idle sessions.
const DefaultSweepInterval = 5 * time.Minute

// Turn is one (user input, GM output) pair.
type Turn struct {
	// User is the player's message text.
	User string

	// GM is the game master's reply text.
	GM string
}

// Session is the per-user, in-memory conversation record. At most one
// Session exists per user at any time; the [Registry] enforces this.
//
// Sessions are not persisted: a process restart loses all active
// (non-summarised) sessions. This is an accepted design risk — the
// underlying chat turns remain durable in the message store.
type Session struct {
	// UserID is the owning user. Immutable after creation.
	UserID string

	// ID uniquely identifies this session instance, for logging.
	ID string

	// StartedAt is when the session was created (first interaction after
	// absence).
	StartedAt time.Time

	mu         sync.Mutex
	turns      []Turn
	lastActive time.Time
}

// RecordTurn appends one completed exchange to the session.
func (s *Session) RecordTurn(user, gm string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.turns = append(s.turns, Turn{User: user, GM: gm})
	s.lastActive = time.Now()
}

// Turns returns a snapshot of the recorded turns in insertion order.
func (s *Session) Turns() []Turn {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Turn, len(s.turns))
	copy(out, s.turns)
	return out
}

// LastActive returns when the session last recorded a turn (or its start
// time if it never did).
func (s *Session) LastActive() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastActive
}

// Registry is the process-wide mapping from user ID to live [Session].
// Sessions are created lazily on first lookup and removed exactly once —
// either by an explicit close/summarise or by the idle sweeper.
//
// GetOrCreate and Remove are atomic with respect to concurrent calls for the
// same user ID: two goroutines can never create two sessions for one user,
// and Remove can never hand the same session to two callers.
type Registry struct {
	mu       sync.Mutex
	sessions map[string]*Session

	maxIdle       time.Duration
	sweepInterval time.Duration

	// onEvict, when set, is called for every session removed by the sweeper
	// (not for explicit Remove calls). Called outside the registry lock.
	onEvict func(*Session)
}

// RegistryOption configures a [Registry].
type RegistryOption func(*Registry)

// WithMaxIdle overrides the idle TTL after which the sweeper evicts a
// session. Values <= 0 keep the default.
func WithMaxIdle(d time.Duration) RegistryOption {
	return func(r *Registry) {
		if d > 0 {
			r.maxIdle = d
		}
	}
}

// WithSweepInterval overrides how often the sweeper runs. Values <= 0 keep
// the default.
func WithSweepInterval(d time.Duration) RegistryOption {
	return func(r *Registry) {
		if d > 0 {
			r.sweepInterval = d
		}
	}
}

// WithEvictionHook registers fn to be called for every session the sweeper
// evicts.
func WithEvictionHook(fn func(*Session)) RegistryOption {
	return func(r *Registry) {
		r.onEvict = fn
	}
}

// NewRegistry creates an empty [Registry].
func NewRegistry(opts ...RegistryOption) *Registry {
	r := &Registry{
		sessions:      make(map[string]*Session),
		maxIdle:       DefaultMaxIdle,
		sweepInterval: DefaultSweepInterval,
	}
	for _, o := range opts {
		o(r)
	}
	return r
}

// GetOrCreate returns the user's live session, creating an empty one if none
// exists. The boolean reports whether a new session was created by this call.
func (r *Registry) GetOrCreate(userID string) (*Session, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if s, ok := r.sessions[userID]; ok {
		return s, false
	}

	now := time.Now()
	s := &Session{
		UserID:     userID,
		ID:         uuid.NewString(),
		StartedAt:  now,
		lastActive: now,
	}
	r.sessions[userID] = s
	return s, true
}

// Remove atomically removes and returns the user's session. The boolean is
// false when no session exists — the "no active session" case, which callers
// treat as a normal result rather than an error.
func (r *Registry) Remove(userID string) (*Session, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	s, ok := r.sessions[userID]
	if ok {
		delete(r.sessions, userID)
	}
	return s, ok
}

// Len returns the number of live sessions.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.sessions)
}

// Sweep removes every session idle longer than the max-idle TTL as of now
// and returns the evicted sessions. The eviction hook is invoked for each.
func (r *Registry) Sweep(now time.Time) []*Session {
	r.mu.Lock()
	var evicted []*Session
	for userID, s := range r.sessions {
		if now.Sub(s.LastActive()) > r.maxIdle {
			delete(r.sessions, userID)
			evicted = append(evicted, s)
		}
	}
	r.mu.Unlock()

	for _, s := range evicted {
		slog.Info("session evicted after idle timeout",
			"user_id", s.UserID,
			"session_id", s.ID,
			"turns", len(s.Turns()),
		)
		if r.onEvict != nil {
			r.onEvict(s)
		}
	}
	return evicted
}

// Run sweeps periodically until ctx is cancelled. Returns ctx.Err().
func (r *Registry) Run(ctx context.Context) error {
	ticker := time.NewTicker(r.sweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case now := <-ticker.C:
			r.Sweep(now)
		}
	}
}

// Drain removes and returns all live sessions. Called during shutdown so
// the count of discarded sessions can be logged; their turns remain durable
// in the message store.
func (r *Registry) Drain() []*Session {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make([]*Session, 0, len(r.sessions))
	for _, s := range r.sessions {
		out = append(out, s)
	}
	r.sessions = make(map[string]*Session)
	return out
}

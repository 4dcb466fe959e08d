// Package session provides the in-memory conversation state store.
//
// Each user has at most one session holding the current conversation state,
// auxiliary flow data, and an expiry timer that resets the session to idle
// after a period of inactivity.
package session

import (
	"log/slog"
	"sync"
	"time"

	"github.com/avans-mx/avanbot/internal/models"
)

// DefaultTimeout is the inactivity window after which a non-idle session
// resets to idle.
const DefaultTimeout = 300 * time.Second

// entry is one user's session. generation increments on every state write or
// clear; a fired expiry timer only acts if its captured generation still
// matches, so a cancelled timer that already left time.AfterFunc becomes a
// no-op instead of clearing a freshly written state.
type entry struct {
	mu              sync.Mutex
	state           models.SessionState
	data            map[string]string
	lastInteraction time.Time
	timer           *time.Timer
	generation      uint64
}

// Store manages per-user conversation sessions.
type Store struct {
	mu      sync.RWMutex
	entries map[string]*entry
	timeout time.Duration
}

// Option configures a Store.
type Option func(*Store)

// WithTimeout overrides the session expiry timeout.
func WithTimeout(d time.Duration) Option {
	return func(s *Store) {
		s.timeout = d
	}
}

// NewStore creates a session store with the default expiry timeout.
func NewStore(opts ...Option) *Store {
	s := &Store{
		entries: make(map[string]*entry),
		timeout: DefaultTimeout,
	}
	for _, opt := range opts {
		opt(s)
	}
	slog.Debug("SessionStore created", "timeout", s.timeout)
	return s
}

// lookup returns the entry for a user, creating it when create is set.
func (s *Store) lookup(user string, create bool) *entry {
	s.mu.RLock()
	e, ok := s.entries[user]
	s.mu.RUnlock()
	if ok || !create {
		return e
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if e, ok = s.entries[user]; ok {
		return e
	}
	e = &entry{state: models.StateIdle, data: make(map[string]string)}
	s.entries[user] = e
	return e
}

// Get returns the live state for a user. The second return is false when the
// user has no session or the session is idle; the router treats that user as
// stateless.
func (s *Store) Get(user string) (models.SessionState, bool) {
	e := s.lookup(user, false)
	if e == nil {
		return models.StateIdle, false
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.state == models.StateIdle {
		return models.StateIdle, false
	}
	return e.state, true
}

// Set transitions a user to the given state, merging data into the session,
// and reschedules the expiry timer. Setting StateIdle cancels the timer and
// leaves no expiry pending.
func (s *Store) Set(user string, state models.SessionState, data map[string]string) {
	e := s.lookup(user, true)
	e.mu.Lock()
	defer e.mu.Unlock()

	e.cancelTimerLocked()
	e.generation++
	e.state = state
	e.lastInteraction = time.Now()
	for k, v := range data {
		e.data[k] = v
	}

	if state != models.StateIdle {
		gen := e.generation
		e.timer = time.AfterFunc(s.timeout, func() {
			s.expire(user, gen)
		})
	}

	slog.Debug("SessionStore Set", "user", user, "state", state)
}

// Clear resets a user's session to idle, emptying data and cancelling any
// pending expiry. Clearing an already-idle session is a no-op.
func (s *Store) Clear(user string) {
	e := s.lookup(user, false)
	if e == nil {
		return
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	e.clearLocked()
	slog.Debug("SessionStore Clear", "user", user)
}

// Data returns a value stored in the user's session data.
func (s *Store) Data(user, key string) (string, bool) {
	e := s.lookup(user, false)
	if e == nil {
		return "", false
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	v, ok := e.data[key]
	return v, ok
}

// SetData stores a single value in the user's session data and refreshes the
// interaction timestamp without touching the state or the expiry timer.
func (s *Store) SetData(user, key, value string) {
	e := s.lookup(user, true)
	e.mu.Lock()
	defer e.mu.Unlock()
	e.data[key] = value
	e.lastInteraction = time.Now()
}

// expire is the timer callback. It re-checks the generation under the entry
// lock; a stale generation means a Set or Clear raced ahead and the timer
// must not act.
func (s *Store) expire(user string, gen uint64) {
	e := s.lookup(user, false)
	if e == nil {
		return
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.generation != gen {
		slog.Debug("SessionStore expiry superseded", "user", user)
		return
	}
	e.clearLocked()
	slog.Info("SessionStore session expired", "user", user)
}

// Sweep removes entries whose last interaction predates now-maxAge, cancelling
// their timers, and returns the number removed. Entries touched mid-sweep keep
// their sessions: removal re-checks lastInteraction under the entry lock.
func (s *Store) Sweep(maxAge time.Duration) int {
	cutoff := time.Now().Add(-maxAge)

	s.mu.RLock()
	candidates := make([]string, 0)
	for user, e := range s.entries {
		e.mu.Lock()
		if e.lastInteraction.Before(cutoff) {
			candidates = append(candidates, user)
		}
		e.mu.Unlock()
	}
	s.mu.RUnlock()

	removed := 0
	for _, user := range candidates {
		s.mu.Lock()
		e, ok := s.entries[user]
		if !ok {
			s.mu.Unlock()
			continue
		}
		e.mu.Lock()
		if e.lastInteraction.Before(cutoff) {
			e.clearLocked()
			delete(s.entries, user)
			removed++
		}
		e.mu.Unlock()
		s.mu.Unlock()
	}

	if removed > 0 {
		slog.Info("SessionStore sweep removed inactive sessions", "count", removed)
	}
	return removed
}

// RunSweeper starts a background goroutine that sweeps on the given cadence
// until stop is closed.
func (s *Store) RunSweeper(interval, maxAge time.Duration, stop <-chan struct{}) {
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				s.Sweep(maxAge)
			case <-stop:
				slog.Debug("SessionStore sweeper stopped")
				return
			}
		}
	}()
}

// Stats summarizes the sessions currently held, for the monitoring endpoint.
type Stats struct {
	TotalSessions  int            `json:"total_sessions"`
	ActiveSessions int            `json:"active_sessions"`
	ByState        map[string]int `json:"by_state"`
}

// Snapshot returns current session statistics.
func (s *Store) Snapshot() Stats {
	s.mu.RLock()
	defer s.mu.RUnlock()

	st := Stats{ByState: make(map[string]int)}
	for _, e := range s.entries {
		e.mu.Lock()
		st.TotalSessions++
		st.ByState[string(e.state)]++
		if e.state != models.StateIdle {
			st.ActiveSessions++
		}
		e.mu.Unlock()
	}
	return st
}

// clearLocked resets an entry to idle. Caller holds e.mu.
func (e *entry) clearLocked() {
	e.cancelTimerLocked()
	e.generation++
	e.state = models.StateIdle
	e.data = make(map[string]string)
}

// cancelTimerLocked stops and drops the pending timer, if any. Caller holds e.mu.
func (e *entry) cancelTimerLocked() {
	if e.timer != nil {
		e.timer.Stop()
		e.timer = nil
	}
}

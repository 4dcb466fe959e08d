// Package ratelimit suppresses duplicate inbound messages and tracks which
// users have a message in flight.
//
// WhatsApp webhooks redeliver on slow acknowledgements, and users double-tap
// buttons; both arrive as near-identical messages within seconds. The guard
// keys on the sender plus a short prefix of the text so a rapid repeat is
// dropped while a different message from the same user passes.
package ratelimit

import (
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/avans-mx/avanbot/internal/util"
)

const (
	// DefaultCooldown is how long a repeated identical message is suppressed.
	DefaultCooldown = 10 * time.Second

	// purgeAge is how old an entry must be before the purge removes it.
	purgeAge = 600 * time.Second

	// purgeThreshold is the table size beyond which a purge runs.
	purgeThreshold = 100

	// keyPrefixLen is how many characters of the message participate in the
	// dedup key.
	keyPrefixLen = 20
)

// Guard implements message deduplication and in-flight tracking.
type Guard struct {
	mu         sync.Mutex
	seen       map[string]time.Time
	processing map[string]struct{}
	cooldown   time.Duration
	now        func() time.Time
}

// Option configures a Guard.
type Option func(*Guard)

// WithCooldown overrides the suppression window.
func WithCooldown(d time.Duration) Option {
	return func(g *Guard) {
		g.cooldown = d
	}
}

// WithClock overrides the time source, for tests.
func WithClock(now func() time.Time) Option {
	return func(g *Guard) {
		g.now = now
	}
}

// NewGuard creates a Guard with the default cooldown.
func NewGuard(opts ...Option) *Guard {
	g := &Guard{
		seen:       make(map[string]time.Time),
		processing: make(map[string]struct{}),
		cooldown:   DefaultCooldown,
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// key builds the dedup key from the sender and the first characters of the
// message, lowercased.
func key(user, text string) string {
	return user + "_" + strings.ToLower(util.TruncateRunes(text, keyPrefixLen))
}

// ShouldSuppress reports whether this message must be dropped: the user
// already has a message in flight, or the message is a rapid repeat. Only a
// message that passes is recorded, so an in-flight drop does not arm a
// cooldown against the user's next attempt.
func (g *Guard) ShouldSuppress(user, text string) bool {
	k := key(user, text)
	now := g.now()

	g.mu.Lock()
	defer g.mu.Unlock()

	if _, ok := g.processing[user]; ok {
		slog.Debug("RateLimit user already processing", "user", user)
		return true
	}
	if last, ok := g.seen[k]; ok && now.Sub(last) < g.cooldown {
		slog.Debug("RateLimit message suppressed", "user", user)
		return true
	}
	g.seen[k] = now

	if len(g.seen) > purgeThreshold {
		g.purgeLocked(now)
	}
	return false
}

// purgeLocked drops entries older than purgeAge. Caller holds g.mu.
func (g *Guard) purgeLocked(now time.Time) {
	removed := 0
	for k, t := range g.seen {
		if now.Sub(t) > purgeAge {
			delete(g.seen, k)
			removed++
		}
	}
	if removed > 0 {
		slog.Debug("RateLimit purged stale entries", "count", removed)
	}
}

// MarkProcessing records the user as having a message in flight. Returns
// false when the user is already being processed, in which case the new
// message must be dropped.
func (g *Guard) MarkProcessing(user string) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	if _, ok := g.processing[user]; ok {
		slog.Debug("RateLimit user already processing", "user", user)
		return false
	}
	g.processing[user] = struct{}{}
	return true
}

// UnmarkProcessing clears the in-flight flag for the user. Safe to call when
// the flag is not set.
func (g *Guard) UnmarkProcessing(user string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	delete(g.processing, user)
}

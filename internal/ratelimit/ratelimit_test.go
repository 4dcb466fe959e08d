package ratelimit

import (
	"fmt"
	"strings"
	"testing"
	"time"
	"unicode/utf8"
)

// fakeClock is a manually advanced time source.
type fakeClock struct {
	t time.Time
}

func (c *fakeClock) now() time.Time           { return c.t }
func (c *fakeClock) advance(d time.Duration) { c.t = c.t.Add(d) }

func newTestGuard() (*Guard, *fakeClock) {
	clock := &fakeClock{t: time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC)}
	return NewGuard(WithClock(clock.now)), clock
}

func TestRepeatWithinCooldownSuppressed(t *testing.T) {
	g, clock := newTestGuard()

	if g.ShouldSuppress("user1", "hola") {
		t.Fatal("first message must not be suppressed")
	}
	clock.advance(3 * time.Second)
	if !g.ShouldSuppress("user1", "hola") {
		t.Error("identical message within cooldown must be suppressed")
	}
}

func TestRepeatAfterCooldownPasses(t *testing.T) {
	g, clock := newTestGuard()

	g.ShouldSuppress("user1", "hola")
	clock.advance(11 * time.Second)
	if g.ShouldSuppress("user1", "hola") {
		t.Error("message after cooldown must pass")
	}
}

func TestDifferentTextPasses(t *testing.T) {
	g, _ := newTestGuard()

	g.ShouldSuppress("user1", "hola")
	if g.ShouldSuppress("user1", "consulta") {
		t.Error("different message from same user must pass")
	}
}

func TestDifferentUserPasses(t *testing.T) {
	g, _ := newTestGuard()

	g.ShouldSuppress("user1", "hola")
	if g.ShouldSuppress("user2", "hola") {
		t.Error("same message from different user must pass")
	}
}

func TestKeyUsesPrefixOnly(t *testing.T) {
	g, _ := newTestGuard()

	// Messages sharing the first 20 characters dedupe together.
	g.ShouldSuppress("user1", "quiero informacion de la pieza A")
	if !g.ShouldSuppress("user1", "quiero informacion del pedido B") {
		t.Error("messages sharing the key prefix must dedupe together")
	}
}

func TestKeyIsCaseInsensitive(t *testing.T) {
	g, _ := newTestGuard()

	g.ShouldSuppress("user1", "Hola")
	if !g.ShouldSuppress("user1", "hola") {
		t.Error("dedup key must be case-insensitive")
	}
}

func TestPurgeDropsOldEntries(t *testing.T) {
	g, clock := newTestGuard()

	for i := 0; i < purgeThreshold; i++ {
		g.ShouldSuppress("user1", fmt.Sprintf("mensaje %d", i))
	}
	clock.advance(700 * time.Second)

	// This insert pushes the table past the threshold and triggers the purge.
	g.ShouldSuppress("user1", "mensaje nuevo")

	g.mu.Lock()
	size := len(g.seen)
	g.mu.Unlock()
	if size != 1 {
		t.Errorf("expected purge to leave 1 entry, got %d", size)
	}
}

func TestMarkProcessing(t *testing.T) {
	g, _ := newTestGuard()

	if !g.MarkProcessing("user1") {
		t.Fatal("first mark must succeed")
	}
	if g.MarkProcessing("user1") {
		t.Error("second mark while in flight must fail")
	}
	g.UnmarkProcessing("user1")
	if !g.MarkProcessing("user1") {
		t.Error("mark after unmark must succeed")
	}
}

func TestKeyPrefixKeepsRunesWhole(t *testing.T) {
	k := key("user1", strings.Repeat("a", 19)+"ñzzz")
	if !utf8.ValidString(k) {
		t.Errorf("key is not valid UTF-8: %q", k)
	}
	if !strings.HasSuffix(k, "ñ") {
		t.Errorf("expected the 20th rune kept whole, got %q", k)
	}
}

func TestInFlightSuppressedBeforeCooldown(t *testing.T) {
	g, clock := newTestGuard()

	g.MarkProcessing("user1")
	if !g.ShouldSuppress("user1", "hola") {
		t.Fatal("message for an in-flight user must be suppressed")
	}
	g.UnmarkProcessing("user1")

	clock.advance(5 * time.Second)
	if g.ShouldSuppress("user1", "hola") {
		t.Error("retry after the in-flight drop must pass, the drop must not arm a cooldown")
	}
}

func TestUnmarkProcessingIdempotent(t *testing.T) {
	g, _ := newTestGuard()
	g.UnmarkProcessing("never-marked")
	g.UnmarkProcessing("never-marked")
}

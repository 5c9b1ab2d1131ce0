package guard

import (
	"context"
	"errors"
	"io"
	"testing"
	"time"

	"boxim-bot/internal/logging"
)

type fakeClock struct{ now time.Time }

func (c *fakeClock) Now() time.Time          { return c.now }
func (c *fakeClock) Advance(d time.Duration) { c.now = c.now.Add(d) }

type recordingResetter struct {
	ids     []int64
	cleared []int64
	err     error
}

func (r *recordingResetter) Reset(_ context.Context, id int64) error {
	r.ids = append(r.ids, id)
	return r.err
}

func (r *recordingResetter) ClearSpamWarnings(_ context.Context, id int64) error {
	r.cleared = append(r.cleared, id)
	return r.err
}

func newTestGuard(t *testing.T, resetter Resetter) (*Guard, *fakeClock) {
	t.Helper()
	logger := logging.New(false)
	logger.SetOutput(io.Discard)
	g := New(Config{}, resetter, logger)
	clock := &fakeClock{now: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)}
	g.now = clock.Now
	return g, clock
}

func observeN(g *Guard, clock *fakeClock, id int64, n int, step time.Duration) []Verdict {
	out := make([]Verdict, 0, n)
	for i := 0; i < n; i++ {
		out = append(out, g.Observe(context.Background(), id))
		clock.Advance(step)
	}
	return out
}

func TestFifthMessageInWindowBlocksForOneMinute(t *testing.T) {
	g, clock := newTestGuard(t, nil)

	got := observeN(g, clock, 7, 5, 500*time.Millisecond)
	want := []Verdict{Allowed, Allowed, Allowed, Allowed, FirstOffense}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("verdicts = %v, want %v", got, want)
		}
	}
	until, blocked := g.BlockedUntil(7)
	if !blocked {
		t.Fatal("sender not blocked after first offense")
	}
	start := time.Date(2026, 3, 1, 12, 0, 2, 0, time.UTC)
	if !until.Equal(start.Add(time.Minute)) {
		t.Fatalf("blocked until %v, want %v", until, start.Add(time.Minute))
	}
	if g.Warnings(7) != 1 {
		t.Fatalf("warnings = %d, want 1", g.Warnings(7))
	}
}

func TestSlowSenderIsNeverFlagged(t *testing.T) {
	g, clock := newTestGuard(t, nil)
	for _, v := range observeN(g, clock, 7, 20, 1500*time.Millisecond) {
		if v != Allowed {
			t.Fatalf("verdict = %v, want allowed", v)
		}
	}
}

func TestBlockedSenderIsIgnoredWithoutMutation(t *testing.T) {
	g, clock := newTestGuard(t, nil)
	observeN(g, clock, 7, 5, 100*time.Millisecond)

	before := len(g.senders[7].times)
	if v := g.Observe(context.Background(), 7); v != Blocked {
		t.Fatalf("verdict = %v, want blocked", v)
	}
	if after := len(g.senders[7].times); after != before {
		t.Fatalf("window grew while blocked: %d -> %d", before, after)
	}
	if g.Warnings(7) != 1 {
		t.Fatalf("warnings = %d, want 1", g.Warnings(7))
	}
}

func TestBlockExpiryClearsBlockAndWarning(t *testing.T) {
	resetter := &recordingResetter{}
	g, clock := newTestGuard(t, resetter)
	observeN(g, clock, 7, 5, 100*time.Millisecond)
	clock.Advance(time.Minute)

	if v := g.Observe(context.Background(), 7); v != Allowed {
		t.Fatalf("verdict after expiry = %v, want allowed", v)
	}
	if g.Warnings(7) != 0 {
		t.Fatalf("warnings = %d, want 0", g.Warnings(7))
	}
	if _, blocked := g.BlockedUntil(7); blocked {
		t.Fatal("still blocked after expiry")
	}
	if len(resetter.cleared) != 1 || resetter.cleared[0] != 7 {
		t.Fatalf("cleared ids = %v, want [7]", resetter.cleared)
	}
	if len(resetter.ids) != 0 {
		t.Fatalf("reset ids = %v, want none", resetter.ids)
	}
}

func TestRestoreKeepsOriginalBlock(t *testing.T) {
	g, clock := newTestGuard(t, nil)
	if !g.Restore(4, 1, clock.now.Add(-20*time.Second)) {
		t.Fatal("Restore() = false for a warning inside its block")
	}
	until, blocked := g.BlockedUntil(4)
	if !blocked || !until.Equal(clock.now.Add(40*time.Second)) {
		t.Fatalf("BlockedUntil() = %v, %v, want 40s from now", until, blocked)
	}
	if v := g.Observe(context.Background(), 4); v != Blocked {
		t.Fatalf("verdict = %v, want blocked", v)
	}
}

func TestRestoreSkipsEndedBlocks(t *testing.T) {
	resetter := &recordingResetter{}
	g, clock := newTestGuard(t, resetter)
	if g.Restore(4, 1, clock.now.Add(-30*24*time.Hour)) {
		t.Fatal("Restore() = true for a warning whose block ended weeks ago")
	}
	if g.Restore(5, 1, time.Time{}) {
		t.Fatal("Restore() = true for a warning without a time")
	}
	if g.Warnings(4) != 0 {
		t.Fatalf("warnings = %d, want 0", g.Warnings(4))
	}

	got := observeN(g, clock, 4, 5, 100*time.Millisecond)
	if got[4] != FirstOffense {
		t.Fatalf("verdicts = %v, want first offense on the fifth", got)
	}
	if len(resetter.ids) != 0 {
		t.Fatalf("reset ids = %v, want none", resetter.ids)
	}
}

func TestRepeatOffenseResetsInsteadOfBlocking(t *testing.T) {
	resetter := &recordingResetter{err: errors.New("disk full")}
	g, clock := newTestGuard(t, resetter)
	g.entry(9).warnings = 1

	got := observeN(g, clock, 9, 5, 100*time.Millisecond)
	if got[4] != RepeatOffense {
		t.Fatalf("verdicts = %v, want repeat offense on the fifth", got)
	}
	if len(resetter.ids) != 1 || resetter.ids[0] != 9 {
		t.Fatalf("reset ids = %v, want [9]", resetter.ids)
	}
	if g.Warnings(9) != 0 {
		t.Fatalf("warnings = %d, want 0", g.Warnings(9))
	}
	if _, blocked := g.BlockedUntil(9); blocked {
		t.Fatal("repeat offense must not apply a temporary block")
	}
	if v := g.Observe(context.Background(), 9); v != Allowed {
		t.Fatalf("verdict after reset = %v, want allowed", v)
	}
}

func TestSendersAreTrackedIndependently(t *testing.T) {
	g, clock := newTestGuard(t, nil)
	for i := 0; i < 4; i++ {
		g.Observe(context.Background(), 1)
		g.Observe(context.Background(), 2)
		clock.Advance(100 * time.Millisecond)
	}
	if v := g.Observe(context.Background(), 3); v != Allowed {
		t.Fatalf("verdict = %v, want allowed", v)
	}
	if v := g.Observe(context.Background(), 1); v != FirstOffense {
		t.Fatalf("verdict = %v, want first offense", v)
	}
	if g.Warnings(2) != 0 {
		t.Fatalf("sender 2 warnings = %d, want 0", g.Warnings(2))
	}
}

func TestSweepDropsIdleSenders(t *testing.T) {
	g, clock := newTestGuard(t, nil)
	g.Observe(context.Background(), 1)
	observeN(g, clock, 2, 5, 10*time.Millisecond)
	g.Restore(3, 2, clock.now)
	clock.Advance(10 * time.Second)

	if remaining := g.Sweep(); remaining != 2 {
		t.Fatalf("remaining = %d, want 2", remaining)
	}
	if _, ok := g.senders[1]; ok {
		t.Fatal("idle sender 1 was kept")
	}
}

// Package guard detects senders flooding the bot and applies temporary
// blocks or a full data reset on repeat offenses.
package guard

import (
	"context"
	"fmt"
	"sync"
	"time"

	"boxim-bot/internal/logging"
)

type Verdict int

const (
	Allowed Verdict = iota
	// Blocked means the sender is inside a temporary block; nothing was recorded.
	Blocked
	FirstOffense
	RepeatOffense
)

func (v Verdict) String() string {
	switch v {
	case Allowed:
		return "allowed"
	case Blocked:
		return "blocked"
	case FirstOffense:
		return "first offense"
	case RepeatOffense:
		return "repeat offense"
	default:
		return fmt.Sprintf("verdict(%d)", int(v))
	}
}

// Resetter persists offense outcomes: Reset wipes a sender's accumulated
// state after a repeat offense, ClearSpamWarnings drops a warning whose
// block has run out.
type Resetter interface {
	Reset(ctx context.Context, userID int64) error
	ClearSpamWarnings(ctx context.Context, userID int64) error
}

type Config struct {
	Window    time.Duration
	Threshold int
	Block     time.Duration
}

func DefaultConfig() Config {
	return Config{Window: 5 * time.Second, Threshold: 5, Block: time.Minute}
}

type sender struct {
	times        []time.Time
	warnings     int
	blockedUntil time.Time
}

// Guard is fed from the receive goroutine; the mutex only covers Sweep
// and the read accessors called from elsewhere.
type Guard struct {
	cfg      Config
	resetter Resetter
	logger   *logging.Logger
	now      func() time.Time

	mu      sync.Mutex
	senders map[int64]*sender
}

func New(cfg Config, resetter Resetter, logger *logging.Logger) *Guard {
	if logger == nil {
		panic("guard.New: logger must not be nil")
	}
	def := DefaultConfig()
	if cfg.Window <= 0 {
		cfg.Window = def.Window
	}
	if cfg.Threshold <= 0 {
		cfg.Threshold = def.Threshold
	}
	if cfg.Block <= 0 {
		cfg.Block = def.Block
	}
	return &Guard{
		cfg:      cfg,
		resetter: resetter,
		logger:   logger,
		now:      time.Now,
		senders:  make(map[int64]*sender),
	}
}

// Restore seeds a warning carried over from storage together with the
// block it was issued with. It reports false, and seeds nothing, when that
// block has already ended: such a warning would have been cleared by the
// sender's next message.
func (g *Guard) Restore(userID int64, warnings int, warnedAt time.Time) bool {
	if warnings <= 0 || warnedAt.IsZero() {
		return false
	}
	until := warnedAt.Add(g.cfg.Block)
	g.mu.Lock()
	defer g.mu.Unlock()
	if !g.now().Before(until) {
		return false
	}
	s := g.entry(userID)
	s.warnings = warnings
	s.blockedUntil = until
	return true
}

// Observe records one inbound message from userID and classifies it.
func (g *Guard) Observe(ctx context.Context, userID int64) Verdict {
	g.mu.Lock()
	defer g.mu.Unlock()
	now := g.now()
	s := g.entry(userID)

	if !s.blockedUntil.IsZero() {
		if now.Before(s.blockedUntil) {
			return Blocked
		}
		s.blockedUntil = time.Time{}
		s.warnings = 0
		if g.resetter != nil {
			if err := g.resetter.ClearSpamWarnings(ctx, userID); err != nil {
				g.logger.Warn("clearing expired spam warning failed", logging.Field("user_id", userID), logging.Field("error", err.Error()))
			}
		}
	}

	s.times = append(s.times, now)
	cutoff := now.Add(-g.cfg.Window)
	kept := s.times[:0]
	for _, t := range s.times {
		if t.After(cutoff) {
			kept = append(kept, t)
		}
	}
	s.times = kept

	if len(s.times) < g.cfg.Threshold {
		return Allowed
	}

	if s.warnings == 0 {
		s.warnings = 1
		s.blockedUntil = now.Add(g.cfg.Block)
		g.logger.Warn("sender flooding, temporarily blocked",
			logging.Field("user_id", userID),
			logging.Field("until", s.blockedUntil.Format(time.TimeOnly)),
		)
		return FirstOffense
	}

	if g.resetter != nil {
		if err := g.resetter.Reset(ctx, userID); err != nil {
			g.logger.Error("reset after repeat offense failed", logging.Field("user_id", userID), logging.Field("error", err.Error()))
		}
	}
	delete(g.senders, userID)
	g.logger.Warn("sender flooding again, data reset", logging.Field("user_id", userID))
	return RepeatOffense
}

// Warnings returns the current offense counter for userID.
func (g *Guard) Warnings(userID int64) int {
	g.mu.Lock()
	defer g.mu.Unlock()
	if s, ok := g.senders[userID]; ok {
		return s.warnings
	}
	return 0
}

func (g *Guard) BlockedUntil(userID int64) (time.Time, bool) {
	g.mu.Lock()
	defer g.mu.Unlock()
	s, ok := g.senders[userID]
	if !ok || s.blockedUntil.IsZero() || !g.now().Before(s.blockedUntil) {
		return time.Time{}, false
	}
	return s.blockedUntil, true
}

// Sweep drops senders with no recent messages, block or warning and
// returns how many remain.
func (g *Guard) Sweep() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	now := g.now()
	cutoff := now.Add(-g.cfg.Window)
	for id, s := range g.senders {
		if s.warnings > 0 || now.Before(s.blockedUntil) {
			continue
		}
		if len(s.times) == 0 || !s.times[len(s.times)-1].After(cutoff) {
			delete(g.senders, id)
		}
	}
	return len(g.senders)
}

func (g *Guard) entry(userID int64) *sender {
	s, ok := g.senders[userID]
	if !ok {
		s = &sender{}
		g.senders[userID] = s
	}
	return s
}

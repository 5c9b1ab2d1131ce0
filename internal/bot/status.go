package bot

import (
	"time"

	"boxim-bot/internal/dispatch"
)

// Status is a point-in-time view of the bot for logs and the console.
type Status struct {
	Runtime       string
	State         string
	Connected     bool
	LoggedIn      bool
	SubjectID     int64
	AccessExpiry  time.Time
	RefreshExpiry time.Time
	StartedAt     time.Time
	LastMessageAt time.Time
	MessagesToday int64
	Reconnects    int
	AttemptCount  int
	LastError     string
	Dispatch      dispatch.Stats
	MessagesSent  int64
	SendFailures  int64
	MutedGroups   []int64
}

func (b *Bot) Status() Status {
	snap := b.supervisor.Snapshot()
	_, today := b.activity.today()
	sends := b.api.SendStats()
	st := Status{
		Runtime:       b.status.get(),
		State:         snap.State.String(),
		Connected:     snap.Connected(),
		LoggedIn:      b.auth.IsLoggedIn(),
		StartedAt:     b.started,
		LastMessageAt: b.activity.last(),
		MessagesToday: today,
		Reconnects:    snap.Reconnects,
		AttemptCount:  snap.AttemptCount,
		LastError:     snap.LastError,
		Dispatch:      b.dispatcher.Stats(),
		MessagesSent:  sends.Sent,
		SendFailures:  sends.Failures,
		MutedGroups:   b.api.MutedGroups(),
	}
	if sess, ok := b.sessions.Snapshot(); ok {
		st.SubjectID = sess.SubjectID
		st.AccessExpiry = sess.AccessExpiry()
		st.RefreshExpiry = sess.RefreshExpiry
	}
	return st
}

// Uptime is the time since RunContext started.
func (s Status) Uptime(now time.Time) time.Duration {
	if s.StartedAt.IsZero() {
		return 0
	}
	return now.Sub(s.StartedAt)
}

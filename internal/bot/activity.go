package bot

import (
	"sync"
	"time"
)

// activity counts conversational messages for the current local day.
type activity struct {
	mu            sync.Mutex
	day           time.Time
	count         int64
	lastMessageAt time.Time
}

type dayTotal struct {
	day   time.Time
	count int64
}

func startOfDay(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, t.Location())
}

// rollover moves the counter to now's day and returns the finished day's
// total when the day changed.
func (a *activity) rollover(now time.Time) (dayTotal, bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.rolloverLocked(now)
}

func (a *activity) rolloverLocked(now time.Time) (dayTotal, bool) {
	today := startOfDay(now)
	if a.day.Equal(today) {
		return dayTotal{}, false
	}
	prev := dayTotal{day: a.day, count: a.count}
	a.day = today
	a.count = 0
	return prev, !prev.day.IsZero()
}

func (a *activity) record(now time.Time) (dayTotal, bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	prev, rolled := a.rolloverLocked(now)
	a.count++
	a.lastMessageAt = now
	return prev, rolled
}

func (a *activity) today() (time.Time, int64) {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.day, a.count
}

func (a *activity) last() time.Time {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.lastMessageAt
}

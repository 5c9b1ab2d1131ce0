// Package retry holds the doubling delay policy shared by the reconnect and
// restart loops.
package retry

import (
	"sync"
	"time"

	"github.com/cenkalti/backoff/v5"
)

// Delay returns min(base*2^n, limit). n below zero is treated as zero.
func Delay(base, limit time.Duration, n int) time.Duration {
	if base <= 0 {
		return 0
	}
	n = max(n, 0)
	d := base
	for i := 0; i < n; i++ {
		if d >= limit || d > (1<<62)/2 {
			return limit
		}
		d *= 2
	}
	return min(d, limit)
}

// Exponential is a backoff.BackOff yielding Delay(Base, Max, k) for the k-th
// failure, counting from one. MaxExponent, when positive, caps k.
type Exponential struct {
	Base        time.Duration
	Max         time.Duration
	MaxExponent int

	mu       sync.Mutex
	attempts int
}

var _ backoff.BackOff = (*Exponential)(nil)

func (e *Exponential) NextBackOff() time.Duration {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.attempts++
	n := e.attempts
	if e.MaxExponent > 0 {
		n = min(n, e.MaxExponent)
	}
	return Delay(e.Base, e.Max, n)
}

func (e *Exponential) Reset() {
	e.mu.Lock()
	e.attempts = 0
	e.mu.Unlock()
}

// Attempts is the number of delays handed out since the last Reset.
func (e *Exponential) Attempts() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.attempts
}

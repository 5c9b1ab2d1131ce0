// Package runctx holds channel helpers for goroutines that must stop with a
// context.
package runctx

import (
	"context"

	"boxim-bot/internal/logging"
)

func RecvOrDone[T any](ctx context.Context, name string, logger *logging.Logger, in <-chan T) (T, bool) {
	if logger == nil {
		panic("runctx.RecvOrDone: logger must not be nil")
	}
	select {
	case <-ctx.Done():
		logger.Debug("stopping "+name+": context canceled", logging.Field("error", ctx.Err()))
		var zero T
		return zero, false
	case v, ok := <-in:
		if !ok {
			logger.Debug("stopping " + name + ": input channel closed")
		}
		return v, ok
	}
}

// Offer puts value on out without blocking, evicting the oldest buffered
// value when out is full. It reports whether anything was evicted.
func Offer[T any](out chan T, value T) bool {
	select {
	case out <- value:
		return false
	default:
	}
	evicted := false
	select {
	case <-out:
		evicted = true
	default:
	}
	select {
	case out <- value:
	default:
	}
	return evicted
}

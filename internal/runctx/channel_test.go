package runctx

import (
	"context"
	"io"
	"testing"

	"boxim-bot/internal/logging"
)

func quietLogger() *logging.Logger {
	logger := logging.New(false)
	logger.SetOutput(io.Discard)
	return logger
}

func TestRecvOrDone(t *testing.T) {
	in := make(chan int, 1)
	in <- 7
	v, ok := RecvOrDone(context.Background(), "test", quietLogger(), in)
	if !ok || v != 7 {
		t.Fatalf("RecvOrDone() = %d, %v; want 7, true", v, ok)
	}

	close(in)
	if _, ok := RecvOrDone(context.Background(), "test", quietLogger(), in); ok {
		t.Fatal("RecvOrDone() on a closed channel reported ok")
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, ok := RecvOrDone(ctx, "test", quietLogger(), make(chan int)); ok {
		t.Fatal("RecvOrDone() after cancel reported ok")
	}
}

func TestOfferEvictsOldest(t *testing.T) {
	out := make(chan string, 2)
	if Offer(out, "a") || Offer(out, "b") {
		t.Fatal("Offer() evicted from a channel with room")
	}
	if !Offer(out, "c") {
		t.Fatal("Offer() on a full channel did not evict")
	}
	if got := <-out; got != "b" {
		t.Fatalf("first value = %q, want b", got)
	}
	if got := <-out; got != "c" {
		t.Fatalf("second value = %q, want c", got)
	}
}

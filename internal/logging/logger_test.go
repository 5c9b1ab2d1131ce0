package logging

import (
	"bytes"
	"errors"
	"strings"
	"testing"
)

func TestNamedLoggerSharesSubscribers(t *testing.T) {
	root := New(false)
	root.SetTerminalOutputEnabled(false)

	var got []Event
	unsubscribe := root.Subscribe(func(event Event) {
		got = append(got, event)
	})

	root.Named("supervisor").Info("connected")
	root.Info("plain")
	unsubscribe()
	root.Info("after unsubscribe")

	if len(got) != 2 {
		t.Fatalf("events = %d, want 2", len(got))
	}
	if got[0].Component != "supervisor" {
		t.Fatalf("component = %q, want supervisor", got[0].Component)
	}
	if got[1].Component != "" {
		t.Fatalf("root component = %q, want empty", got[1].Component)
	}
}

func TestDebugHiddenUntilEnabled(t *testing.T) {
	logger := New(false)
	logger.SetTerminalOutputEnabled(false)

	logger.Debug("hidden")
	if n := len(logger.Recent(10)); n != 0 {
		t.Fatalf("recent events = %d, want 0 while debug disabled", n)
	}
	logger.SetDebugEnabled(true)
	logger.Debug("visible")
	recent := logger.Recent(10)
	if len(recent) != 1 || recent[0].Message != "visible" {
		t.Fatalf("recent = %#v, want single visible debug event", recent)
	}
}

func TestRecentKeepsNewestEvents(t *testing.T) {
	logger := New(false)
	logger.SetTerminalOutputEnabled(false)
	for i := 0; i < recentEventCapacity+25; i++ {
		logger.Info("event", Field("i", i))
	}
	recent := logger.Recent(3)
	if len(recent) != 3 {
		t.Fatalf("Recent(3) length = %d", len(recent))
	}
	want := []int64{recentEventCapacity + 22, recentEventCapacity + 23, recentEventCapacity + 24}
	for i, event := range recent {
		if event.Fields["i"] != want[i] {
			t.Fatalf("recent[%d].i = %v, want %d", i, event.Fields["i"], want[i])
		}
	}
	if all := logger.Recent(0); len(all) != recentEventCapacity {
		t.Fatalf("Recent(0) length = %d, want %d", len(all), recentEventCapacity)
	}
}

func TestSetOutputWritesPlainLines(t *testing.T) {
	var buf bytes.Buffer
	logger := New(false)
	logger.SetOutput(&buf)

	logger.Named("auth").Warn("refresh failed", Field("error", errors.New("boom")), Field("attempt", 2))

	line := buf.String()
	for _, want := range []string{"[WARN]", "auth: refresh failed", "attempt=2", "error=boom"} {
		if !strings.Contains(line, want) {
			t.Fatalf("line %q missing %q", line, want)
		}
	}
}

package dispatch

import (
	"context"
	"errors"
	"testing"

	"boxim-bot/internal/logging"
	"boxim-bot/internal/protocol"
)

func newLogger() *logging.Logger {
	logger := logging.New(false)
	logger.SetTerminalOutputEnabled(false)
	return logger
}

func TestDispatchIsolatesHandlerFailures(t *testing.T) {
	var calls []string
	record := func(name string, result error) Handler {
		return Handler{Name: name, Fn: func(context.Context, protocol.Message) error {
			calls = append(calls, name)
			return result
		}}
	}
	panicking := Handler{Name: "panics", Fn: func(context.Context, protocol.Message) error {
		calls = append(calls, "panics")
		panic("boom")
	}}

	d := New(Handlers{
		Private: []Handler{record("first", errors.New("nope")), panicking, record("third", nil)},
	}, newLogger())

	err := d.Dispatch(context.Background(), []byte(`{"cmd":3,"data":{"id":1,"type":0,"content":"hi","sendId":2}}`))
	if err != nil {
		t.Fatalf("Dispatch() error = %v", err)
	}
	want := []string{"first", "panics", "third"}
	if len(calls) != len(want) {
		t.Fatalf("calls = %v, want %v", calls, want)
	}
	for i := range want {
		if calls[i] != want[i] {
			t.Fatalf("calls = %v, want %v", calls, want)
		}
	}
	stats := d.Stats()
	if stats.Private != 1 || stats.Failed != 2 {
		t.Fatalf("stats = %+v, want 1 private and 2 failed", stats)
	}
}

func TestDispatchRoutesByCategory(t *testing.T) {
	var private, group []protocol.Message
	d := New(Handlers{
		Private: []Handler{{Name: "p", Fn: func(_ context.Context, m protocol.Message) error { private = append(private, m); return nil }}},
		Group:   []Handler{{Name: "g", Fn: func(_ context.Context, m protocol.Message) error { group = append(group, m); return nil }}},
	}, newLogger())

	frames := []string{
		`{"cmd":4,"data":{"id":10,"type":0,"content":"hello group","sendId":5,"groupId":9}}`,
		`{"cmd":3,"data":{"id":11,"type":1,"content":"{}","sendId":6}}`,
		`{"cmd":5,"data":{"text":"system"}}`,
		`{"cmd":1,"data":{}}`,
		`{"cmd":42,"data":{}}`,
		`garbage`,
	}
	for _, frame := range frames {
		if err := d.Dispatch(context.Background(), []byte(frame)); err != nil {
			t.Fatalf("Dispatch(%s) error = %v", frame, err)
		}
	}
	if len(group) != 1 || group[0].GroupID != protocol.ID(9) {
		t.Fatalf("group messages = %#v", group)
	}
	if len(private) != 1 || private[0].Type != protocol.TypeImage {
		t.Fatalf("private messages = %#v", private)
	}
	stats := d.Stats()
	if stats.System != 1 || stats.Unrecognized != 1 || stats.Malformed != 1 {
		t.Fatalf("stats = %+v", stats)
	}
}

func TestDispatchForceOffline(t *testing.T) {
	d := New(Handlers{}, newLogger())
	err := d.Dispatch(context.Background(), []byte(`{"cmd":2,"data":{"reason":"login elsewhere"}}`))
	if !errors.Is(err, ErrForceOffline) {
		t.Fatalf("Dispatch() error = %v, want ErrForceOffline", err)
	}
}

func TestInvokeWrapsPanic(t *testing.T) {
	err := invoke(context.Background(), CategoryGroup, Handler{Name: "x", Fn: func(context.Context, protocol.Message) error {
		panic("kaboom")
	}}, protocol.Message{})
	var handlerErr *HandlerError
	if !errors.As(err, &handlerErr) {
		t.Fatalf("invoke() error = %v, want *HandlerError", err)
	}
	if handlerErr.Panic != "kaboom" || handlerErr.Category != CategoryGroup {
		t.Fatalf("handler error = %+v", handlerErr)
	}
}

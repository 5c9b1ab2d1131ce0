// Package dispatch routes decoded frames to the bot's message handlers.
package dispatch

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"sync"

	"boxim-bot/internal/logging"
	"boxim-bot/internal/protocol"
)

// ErrForceOffline is returned by Dispatch when the server ended the session.
var ErrForceOffline = errors.New("server forced this session offline")

type Category string

const (
	CategoryPrivate Category = "private"
	CategoryGroup   Category = "group"
)

// Handler processes one message. Errors and panics are contained by the
// Dispatcher and never reach the receive loop.
type Handler struct {
	Name string
	Fn   func(ctx context.Context, msg protocol.Message) error
}

// Handlers is the fixed registration table, in invocation order.
type Handlers struct {
	Private []Handler
	Group   []Handler
}

// HandlerError wraps a failure of one handler.
type HandlerError struct {
	Category Category
	Handler  string
	Err      error
	Panic    any
}

func (e *HandlerError) Error() string {
	if e.Panic != nil {
		return fmt.Sprintf("%s handler %q panicked: %v", e.Category, e.Handler, e.Panic)
	}
	return fmt.Sprintf("%s handler %q failed: %v", e.Category, e.Handler, e.Err)
}

func (e *HandlerError) Unwrap() error { return e.Err }

// Stats counts routed traffic since construction.
type Stats struct {
	Private      int64
	Group        int64
	System       int64
	Unrecognized int64
	Malformed    int64
	Failed       int64
}

type Dispatcher struct {
	handlers Handlers
	logger   *logging.Logger

	mu    sync.Mutex
	stats Stats
}

func New(handlers Handlers, logger *logging.Logger) *Dispatcher {
	if logger == nil {
		panic("dispatch.New: logger must not be nil")
	}
	for _, h := range append(append([]Handler(nil), handlers.Private...), handlers.Group...) {
		if h.Fn == nil {
			panic("dispatch.New: handler " + h.Name + " has no function")
		}
	}
	return &Dispatcher{handlers: handlers, logger: logger}
}

// Dispatch decodes raw and routes it. Only ErrForceOffline is returned;
// malformed frames and handler failures are logged and dropped. It must be
// called from a single goroutine; Stats is safe from any goroutine.
func (d *Dispatcher) Dispatch(ctx context.Context, raw []byte) error {
	event, err := protocol.Decode(raw)
	if err != nil {
		d.count(func(st *Stats) { st.Malformed++ })
		d.logger.Warn("dropping malformed frame", logging.Field("error", err))
		return nil
	}
	return d.Route(ctx, event)
}

func (d *Dispatcher) Route(ctx context.Context, event protocol.Event) error {
	switch ev := event.(type) {
	case protocol.ForceOfflineEvent:
		d.logger.Warn("server forced session offline", logging.Field("data", ev.Raw()))
		return ErrForceOffline
	case protocol.HeartbeatEvent:
		d.logger.Debug("heartbeat acknowledged")
	case protocol.AuthEvent:
		d.logger.Debug("auth acknowledged")
	case protocol.PrivateMessageEvent:
		d.count(func(st *Stats) { st.Private++ })
		d.fanOut(ctx, CategoryPrivate, d.handlers.Private, ev.Message)
	case protocol.GroupMessageEvent:
		d.count(func(st *Stats) { st.Group++ })
		d.fanOut(ctx, CategoryGroup, d.handlers.Group, ev.Message)
	case protocol.SystemMessageEvent:
		d.count(func(st *Stats) { st.System++ })
		d.logger.Info("system message", logging.Field("payload", ev.Payload))
	case protocol.UnrecognizedEvent:
		d.count(func(st *Stats) { st.Unrecognized++ })
		d.logger.Debug("dropping unrecognized command",
			logging.Field("cmd", int(ev.Code)),
			logging.Field("data", ev.Raw()),
		)
	default:
		d.logger.Warn("dropping unsupported event", logging.Field("type", fmt.Sprintf("%T", event)))
	}
	return nil
}

func (d *Dispatcher) Stats() Stats {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.stats
}

func (d *Dispatcher) count(fn func(*Stats)) {
	d.mu.Lock()
	fn(&d.stats)
	d.mu.Unlock()
}

func (d *Dispatcher) fanOut(ctx context.Context, category Category, handlers []Handler, msg protocol.Message) {
	d.logger.Debug("routing message",
		logging.Field("category", string(category)),
		logging.Field("type", msg.Type.String()),
		logging.Field("sender", msg.SendID.String()),
		logging.Field("preview", msg.Preview()),
	)
	for _, h := range handlers {
		if err := invoke(ctx, category, h, msg); err != nil {
			d.count(func(st *Stats) { st.Failed++ })
			d.logger.Error("message handler failed",
				logging.Field("category", string(category)),
				logging.Field("handler", h.Name),
				logging.Field("message_id", msg.ID.String()),
				logging.Field("error", err),
			)
		}
	}
}

func invoke(ctx context.Context, category Category, h Handler, msg protocol.Message) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = &HandlerError{Category: category, Handler: h.Name, Panic: r, Err: fmt.Errorf("panic: %v\n%s", r, debug.Stack())}
		}
	}()
	if handlerErr := h.Fn(ctx, msg); handlerErr != nil {
		return &HandlerError{Category: category, Handler: h.Name, Err: handlerErr}
	}
	return nil
}

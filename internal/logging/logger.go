package logging

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"sync"
	"sync/atomic"
	"time"
)

const recentEventCapacity = 500

// Logger is shared by every component of the bot. Named derives a child that
// tags its events with a component while sharing sinks and subscribers.
type Logger struct {
	core      *core
	component string
}

type core struct {
	debugEnabled atomic.Bool
	terminalOut  atomic.Bool
	pretty       bool
	out          io.Writer

	mu          sync.RWMutex
	sink        *fileSink
	nextID      int
	subscribers map[int]func(Event)
	recent      eventRing
}

type Event struct {
	Time      time.Time
	Level     slog.Level
	Component string
	Message   string
	Fields    map[string]any
}

func New(debug bool) *Logger {
	c := &core{
		pretty:      shouldPrettyPrint(),
		out:         os.Stderr,
		subscribers: map[int]func(Event){},
		recent:      newEventRing(recentEventCapacity),
	}
	c.debugEnabled.Store(debug)
	c.terminalOut.Store(true)
	return &Logger{core: c}
}

func Field(key string, value any) slog.Attr {
	return slog.Any(key, value)
}

// Named returns a logger whose events carry component.
func (l *Logger) Named(component string) *Logger {
	if l == nil {
		return nil
	}
	return &Logger{core: l.core, component: component}
}

func (l *Logger) SetDebugEnabled(enabled bool) {
	if l == nil {
		return
	}
	l.core.debugEnabled.Store(enabled)
}

func (l *Logger) DebugEnabled() bool {
	return l != nil && l.core.debugEnabled.Load()
}

func (l *Logger) SetTerminalOutputEnabled(enabled bool) {
	if l == nil {
		return
	}
	l.core.terminalOut.Store(enabled)
}

// SetOutput replaces the terminal writer and disables ANSI styling.
func (l *Logger) SetOutput(w io.Writer) {
	if l == nil || w == nil {
		return
	}
	l.core.mu.Lock()
	l.core.out = w
	l.core.pretty = false
	l.core.mu.Unlock()
}

// EnableFilePersistence starts writing JSONL parts into dir (the user cache
// dir when empty).
func (l *Logger) EnableFilePersistence(dir string, maxBytes int64) error {
	if l == nil {
		return nil
	}
	sink, err := newFileSink(dir, maxBytes)
	if err != nil {
		return err
	}
	l.core.mu.Lock()
	old := l.core.sink
	l.core.sink = sink
	l.core.mu.Unlock()
	if old != nil {
		_ = old.Close()
	}
	return nil
}

func (l *Logger) Close() error {
	if l == nil {
		return nil
	}
	l.core.mu.Lock()
	sink := l.core.sink
	l.core.sink = nil
	l.core.mu.Unlock()
	if sink == nil {
		return nil
	}
	return sink.Close()
}

func (l *Logger) Debugf(format string, args ...any) {
	l.Debug(fmt.Sprintf(format, args...))
}

func (l *Logger) Debug(msg string, fields ...slog.Attr) {
	if l == nil {
		return
	}
	// Debug events always reach the file sink.
	l.log(slog.LevelDebug, msg, fields, l.core.debugEnabled.Load())
}

func (l *Logger) Info(msg string, fields ...slog.Attr) {
	if l == nil {
		return
	}
	l.log(slog.LevelInfo, msg, fields, true)
}

func (l *Logger) Warn(msg string, fields ...slog.Attr) {
	if l == nil {
		return
	}
	l.log(slog.LevelWarn, msg, fields, true)
}

func (l *Logger) Error(msg string, fields ...slog.Attr) {
	if l == nil {
		return
	}
	l.log(slog.LevelError, msg, fields, true)
}

// Subscribe registers fn for every published event. The returned func
// removes the subscription.
func (l *Logger) Subscribe(fn func(Event)) func() {
	if l == nil {
		panic("logging.Logger.Subscribe: logger must not be nil")
	}
	if fn == nil {
		panic("logging.Logger.Subscribe: callback must not be nil")
	}
	c := l.core
	c.mu.Lock()
	id := c.nextID
	c.nextID++
	c.subscribers[id] = fn
	c.mu.Unlock()
	return func() {
		c.mu.Lock()
		delete(c.subscribers, id)
		c.mu.Unlock()
	}
}

// Recent returns up to n of the latest published events, oldest first.
func (l *Logger) Recent(n int) []Event {
	if l == nil {
		return nil
	}
	l.core.mu.RLock()
	defer l.core.mu.RUnlock()
	return l.core.recent.last(n)
}

func (l *Logger) log(level slog.Level, msg string, attrs []slog.Attr, publish bool) {
	event := Event{
		Time:      time.Now(),
		Level:     level,
		Component: l.component,
		Message:   msg,
		Fields:    attrsToMap(attrs),
	}
	c := l.core
	c.mu.RLock()
	sink := c.sink
	c.mu.RUnlock()
	if sink != nil {
		_ = sink.WriteEvent(event)
	}
	if !publish {
		return
	}
	if c.terminalOut.Load() {
		c.emit(event)
	}
	c.publish(event)
}

func (c *core) emit(event Event) {
	c.mu.RLock()
	out, pretty := c.out, c.pretty
	c.mu.RUnlock()
	if pretty {
		_, _ = io.WriteString(out, FormatEventANSI(event))
		return
	}
	_, _ = io.WriteString(out, FormatEventLine(event))
}

func (c *core) publish(event Event) {
	c.mu.Lock()
	c.recent.push(event)
	callbacks := make([]func(Event), 0, len(c.subscribers))
	for _, cb := range c.subscribers {
		callbacks = append(callbacks, cb)
	}
	c.mu.Unlock()

	for _, cb := range callbacks {
		cb(event)
	}
}

func attrsToMap(attrs []slog.Attr) map[string]any {
	if len(attrs) == 0 {
		return nil
	}
	values := make(map[string]any, len(attrs))
	for _, attr := range attrs {
		if key, value, ok := resolveAttr(attr); ok {
			values[key] = value
		}
	}
	if len(values) == 0 {
		return nil
	}
	return values
}

func resolveAttr(attr slog.Attr) (string, any, bool) {
	if attr.Key == "" {
		return "", nil, false
	}
	value := attr.Value.Resolve()
	if value.Kind() != slog.KindGroup {
		return attr.Key, value.Any(), true
	}
	group := map[string]any{}
	for _, inner := range value.Group() {
		if key, v, ok := resolveAttr(inner); ok {
			group[key] = v
		}
	}
	return attr.Key, group, true
}

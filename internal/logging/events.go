package logging

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

// DefaultEventLogSize bounds the number of retained log events.
const DefaultEventLogSize = 1000

// Event is one retained log record, flattened for display in a log panel.
type Event struct {
	Time     time.Time
	Level    slog.Level
	Category LogCategory
	Message  string
	Attrs    map[string]any
}

// EventLog is a bounded in-memory slog.Handler. Oldest events are dropped
// once the limit is reached. It is safe for concurrent use.
type EventLog struct {
	store *eventStore
	level slog.Leveler
	attrs []slog.Attr
	group string
}

type eventStore struct {
	mu     sync.Mutex
	limit  int
	events []Event
	unread int
}

// NewEventLog creates an event log retaining at most limit events. A
// non-positive limit selects DefaultEventLogSize.
func NewEventLog(limit int) *EventLog {
	if limit <= 0 {
		limit = DefaultEventLogSize
	}
	return &EventLog{
		store: &eventStore{limit: limit},
		level: slog.LevelDebug,
	}
}

// Enabled implements slog.Handler.
func (e *EventLog) Enabled(_ context.Context, level slog.Level) bool {
	if e.level == nil {
		return true
	}
	return level >= e.level.Level()
}

// Handle implements slog.Handler.
func (e *EventLog) Handle(_ context.Context, r slog.Record) error {
	ev := Event{
		Time:    r.Time,
		Level:   r.Level,
		Message: r.Message,
		Attrs:   make(map[string]any, r.NumAttrs()+len(e.attrs)),
	}
	add := func(a slog.Attr) bool {
		if a.Key == CategoryKey {
			ev.Category = LogCategory(a.Value.String())
			return true
		}
		key := a.Key
		if e.group != "" {
			key = e.group + "." + key
		}
		ev.Attrs[key] = a.Value.Any()
		return true
	}
	for _, a := range e.attrs {
		add(a)
	}
	r.Attrs(add)
	if ev.Category == "" {
		ev.Category = CategoryNetwork
		if r.Level >= slog.LevelError {
			ev.Category = CategoryError
		}
	}

	s := e.store
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, ev)
	if over := len(s.events) - s.limit; over > 0 {
		s.events = append([]Event(nil), s.events[over:]...)
	}
	s.unread++
	return nil
}

// WithAttrs implements slog.Handler.
func (e *EventLog) WithAttrs(attrs []slog.Attr) slog.Handler {
	clone := *e
	clone.attrs = append(append([]slog.Attr(nil), e.attrs...), attrs...)
	return &clone
}

// WithGroup implements slog.Handler.
func (e *EventLog) WithGroup(name string) slog.Handler {
	clone := *e
	if clone.group != "" {
		name = clone.group + "." + name
	}
	clone.group = name
	return &clone
}

// Events returns retained events, optionally filtered to the given
// categories, oldest first.
func (e *EventLog) Events(categories ...LogCategory) []Event {
	s := e.store
	s.mu.Lock()
	defer s.mu.Unlock()

	if len(categories) == 0 {
		return append([]Event(nil), s.events...)
	}
	want := make(map[LogCategory]struct{}, len(categories))
	for _, c := range categories {
		want[c] = struct{}{}
	}
	var out []Event
	for _, ev := range s.events {
		if _, ok := want[ev.Category]; ok {
			out = append(out, ev)
		}
	}
	return out
}

// Unread returns the number of events recorded since the last MarkRead.
func (e *EventLog) Unread() int {
	e.store.mu.Lock()
	defer e.store.mu.Unlock()
	return e.store.unread
}

// MarkRead resets the unread counter.
func (e *EventLog) MarkRead() {
	e.store.mu.Lock()
	defer e.store.mu.Unlock()
	e.store.unread = 0
}

// Clear drops all retained events.
func (e *EventLog) Clear() {
	e.store.mu.Lock()
	defer e.store.mu.Unlock()
	e.store.events = nil
	e.store.unread = 0
}

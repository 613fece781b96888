// Package diag is the diagnostics boundary of nostrcache.
//
// Components never talk to a crash-reporting backend directly. They emit
// structured Events to a Reporter, and the embedding application decides
// where those go. LogReporter writes them to slog; Recorder keeps them in
// memory for tests.
package diag

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

// Kind identifies what happened.
type Kind string

const (
	KindFatalOpen        Kind = "fatal_open"
	KindDestructiveReset Kind = "destructive_reset"
	KindSaveFailed       Kind = "save_failed"
	KindSweepFailed      Kind = "sweep_failed"
	KindStatisticsFailed Kind = "statistics_failed"
)

// Event is a single diagnostics record.
type Event struct {
	Kind    Kind
	Level   slog.Level
	Message string
	Err     error
	Attrs   map[string]string
	Time    time.Time
}

// Reporter receives diagnostics events. Implementations must be safe for
// concurrent use and must not block for long.
type Reporter interface {
	Report(Event)
}

// LogReporter writes events to a slog.Logger.
type LogReporter struct {
	Logger *slog.Logger
}

// Report implements Reporter.
func (r LogReporter) Report(e Event) {
	logger := r.Logger
	if logger == nil {
		logger = slog.Default()
	}
	args := []any{"kind", string(e.Kind)}
	if e.Err != nil {
		args = append(args, "error", e.Err)
	}
	for k, v := range e.Attrs {
		args = append(args, k, v)
	}
	logger.Log(context.Background(), e.Level, e.Message, args...)
}

// Recorder keeps every reported event in memory.
type Recorder struct {
	mu     sync.Mutex
	events []Event
}

// Report implements Reporter.
func (r *Recorder) Report(e Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, e)
}

// Events returns a copy of everything reported so far.
func (r *Recorder) Events() []Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Event, len(r.events))
	copy(out, r.events)
	return out
}

// OfKind returns the reported events with the given kind.
func (r *Recorder) OfKind(k Kind) []Event {
	var out []Event
	for _, e := range r.Events() {
		if e.Kind == k {
			out = append(out, e)
		}
	}
	return out
}

// Multi fans an event out to several reporters.
type Multi []Reporter

// Report implements Reporter.
func (m Multi) Report(e Event) {
	for _, r := range m {
		if r != nil {
			r.Report(e)
		}
	}
}

type nopReporter struct{}

func (nopReporter) Report(Event) {}

// Nop returns a Reporter that drops everything.
func Nop() Reporter { return nopReporter{} }

// Warn builds a warning-level event.
func Warn(kind Kind, msg string, attrs map[string]string) Event {
	return Event{Kind: kind, Level: slog.LevelWarn, Message: msg, Attrs: attrs, Time: time.Now()}
}

// Error builds an error-level event.
func Error(kind Kind, msg string, err error) Event {
	return Event{Kind: kind, Level: slog.LevelError, Message: msg, Err: err, Time: time.Now()}
}

// Package progress decouples pipeline internals from presentation. Pipelines
// receive a Reporter and emit log lines and numeric ticks through it; the
// consumer (CLI printer or SSE handler) drains a bounded channel on the other
// side and watches the job's completion separately.
package progress

import (
	"fmt"
	"io"
)

// EventType distinguishes the stream entries a consumer can receive
type EventType string

const (
	// EventLog is a human-readable log line
	EventLog EventType = "log"
	// EventProgress is a numeric tick: processed out of total units
	EventProgress EventType = "progress"
)

// Event is one emission from a running job
type Event struct {
	Type      EventType `json:"type"`
	Message   string    `json:"message,omitempty"`
	Processed int       `json:"processed"`
	Total     int       `json:"total"`
}

// Reporter is the capability handed down the pipeline call chain. It is an
// explicit parameter everywhere, never package-level state, so nothing about
// its safety depends on how many jobs run at once.
type Reporter interface {
	// Logf emits a formatted log line
	Logf(format string, args ...any)
	// Progress emits a numeric tick with an optional message
	Progress(processed, total int, message string)
}

// Nop is a Reporter that discards everything
type Nop struct{}

func (Nop) Logf(string, ...any) {}

func (Nop) Progress(int, int, string) {}

// Writer is a Reporter that prints directly to an io.Writer, used by the CLI
type Writer struct {
	Out io.Writer
}

func (w Writer) Logf(format string, args ...any) {
	fmt.Fprintf(w.Out, format+"\n", args...)
}

func (w Writer) Progress(processed, total int, message string) {
	if message != "" {
		fmt.Fprintf(w.Out, "[%d/%d] %s\n", processed, total, message)
	} else {
		fmt.Fprintf(w.Out, "[%d/%d]\n", processed, total)
	}
}

// Bus is a bounded event channel pairing one worker with one consumer. Sends
// never block: once the consumer stops draining (abandoned job, slow client)
// further events are dropped rather than wedging the worker.
type Bus struct {
	events chan Event
}

// NewBus returns a Bus buffering up to size events
func NewBus(size int) *Bus {
	if size < 1 {
		size = 1
	}
	return &Bus{events: make(chan Event, size)}
}

// Logf implements Reporter
func (b *Bus) Logf(format string, args ...any) {
	b.publish(Event{Type: EventLog, Message: fmt.Sprintf(format, args...)})
}

// Progress implements Reporter
func (b *Bus) Progress(processed, total int, message string) {
	b.publish(Event{
		Type:      EventProgress,
		Message:   message,
		Processed: processed,
		Total:     total,
	})
}

func (b *Bus) publish(ev Event) {
	select {
	case b.events <- ev:
	default:
	}
}

// Events is the consumer side of the bus
func (b *Bus) Events() <-chan Event {
	return b.events
}

// Drain returns every event currently buffered without blocking. Consumers
// call it after the job completes so queued log lines still precede the
// terminal signal.
func (b *Bus) Drain() []Event {
	var out []Event
	for {
		select {
		case ev := <-b.events:
			out = append(out, ev)
		default:
			return out
		}
	}
}

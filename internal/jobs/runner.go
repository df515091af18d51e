package jobs

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/bangdoll/tubenotes/internal/progress"
)

const (
	// DefaultCeiling is the wall-clock bound on one job. When it passes, the
	// waiting side stops, the guard is freed, and whatever the worker still
	// produces is discarded.
	DefaultCeiling = 10 * time.Minute

	// DefaultBusSize bounds the progress queue between worker and consumer.
	DefaultBusSize = 256
)

// ErrTimedOut is the terminal outcome of a job that hit the ceiling.
var ErrTimedOut = errors.New("processing timed out")

// Artifact is a terminal job product.
type Artifact struct {
	Content  string // inline content, empty for file-only artifacts
	Filename string // user-facing name
	Path     string // on-disk location, empty for inline-only artifacts
}

// Func runs one pipeline invocation, reporting through rep.
type Func func(ctx context.Context, rep progress.Reporter) (*Artifact, error)

// Handle is a started job. Consumers receive from Events while watching
// Done, then read the terminal Outcome.
type Handle struct {
	ID      uuid.UUID
	Kind    string
	Started time.Time

	bus  *progress.Bus
	done chan struct{}

	mu       sync.Mutex
	artifact *Artifact
	err      error
}

// Events is the live event stream.
func (h *Handle) Events() <-chan progress.Event { return h.bus.Events() }

// Done closes once the outcome is set.
func (h *Handle) Done() <-chan struct{} { return h.done }

// Outcome returns the artifact or error. Valid once Done has closed.
func (h *Handle) Outcome() (*Artifact, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.artifact, h.err
}

func (h *Handle) setOutcome(a *Artifact, err error) {
	h.mu.Lock()
	h.artifact = a
	h.err = err
	h.mu.Unlock()
}

// Wait blocks until the job finishes, forwarding events to fn as they
// arrive, queued events included. This is the one consumer loop; the CLI
// prints from it and the SSE handler writes frames from it.
func (h *Handle) Wait(fn func(progress.Event)) (*Artifact, error) {
	for {
		select {
		case ev := <-h.bus.Events():
			if fn != nil {
				fn(ev)
			}
		case <-h.done:
			if fn != nil {
				for _, ev := range h.bus.Drain() {
					fn(ev)
				}
			}
			return h.Outcome()
		}
	}
}

// Runner starts jobs under the guard.
type Runner struct {
	Guard   *Guard
	Ceiling time.Duration
	BusSize int
	Log     *logrus.Entry
}

func NewRunner(log *logrus.Entry) *Runner {
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}
	return &Runner{
		Guard:   &Guard{},
		Ceiling: DefaultCeiling,
		BusSize: DefaultBusSize,
		Log:     log,
	}
}

// Start acquires the guard and launches fn in a worker goroutine, returning
// ErrBusy while another job is in flight. The worker context is cancelled at
// the ceiling; a worker that ignores cancellation runs on detached, its late
// result discarded and its stale guard release a no-op. Pass a ctx that
// outlives the request when jobs must survive client disconnects.
func (r *Runner) Start(ctx context.Context, kind string, fn Func) (*Handle, error) {
	tok, err := r.Guard.TryAcquire()
	if err != nil {
		return nil, err
	}

	h := &Handle{
		ID:      uuid.New(),
		Kind:    kind,
		Started: time.Now(),
		bus:     progress.NewBus(r.BusSize),
		done:    make(chan struct{}),
	}
	log := r.Log.WithFields(logrus.Fields{"job": h.ID, "kind": kind})
	log.Info("job started")

	jobCtx, cancel := context.WithCancel(ctx)

	type workerResult struct {
		artifact *Artifact
		err      error
	}
	workerOut := make(chan workerResult, 1)
	go func() {
		defer func() {
			if tok.Release() {
				log.Debug("guard released")
			}
		}()
		art, ferr := fn(jobCtx, h.bus)
		workerOut <- workerResult{art, ferr}
	}()

	go func() {
		defer close(h.done)
		defer cancel()
		timer := time.NewTimer(r.Ceiling)
		defer timer.Stop()
		select {
		case out := <-workerOut:
			// The worker's deferred release may still be pending; freeing
			// the slot here makes the guard available the moment Done
			// closes.
			tok.Release()
			if out.err != nil {
				log.WithError(out.err).Error("job failed")
			} else {
				log.WithField("elapsed", time.Since(h.Started).Round(time.Millisecond)).Info("job complete")
			}
			h.setOutcome(out.artifact, out.err)
		case <-timer.C:
			// Stop waiting. The worker's own release will find the slot
			// already freed or re-owned.
			tok.Release()
			log.Warn("job exceeded the wall-clock ceiling, abandoning")
			h.setOutcome(nil, ErrTimedOut)
		}
	}()
	return h, nil
}

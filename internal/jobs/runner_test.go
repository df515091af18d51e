package jobs

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bangdoll/tubenotes/internal/progress"
)

func newTestRunner() *Runner {
	r := NewRunner(nil)
	r.Ceiling = time.Second
	return r
}

func TestRunnerRunsJobToCompletion(t *testing.T) {
	r := newTestRunner()

	h, err := r.Start(context.Background(), "note", func(_ context.Context, rep progress.Reporter) (*Artifact, error) {
		rep.Logf("step one")
		rep.Progress(1, 2, "halfway")
		rep.Progress(2, 2, "")
		return &Artifact{Content: "# Done", Filename: "done.md"}, nil
	})
	require.NoError(t, err)
	assert.Equal(t, "note", h.Kind)
	assert.NotEqual(t, "00000000-0000-0000-0000-000000000000", h.ID.String())

	var events []progress.Event
	art, err := h.Wait(func(ev progress.Event) { events = append(events, ev) })
	require.NoError(t, err)
	assert.Equal(t, "# Done", art.Content)
	assert.Equal(t, "done.md", art.Filename)

	require.Len(t, events, 3)
	assert.Equal(t, progress.EventLog, events[0].Type)
	assert.Equal(t, "step one", events[0].Message)
	assert.Equal(t, 1, events[1].Processed)
	assert.Equal(t, 2, events[2].Processed)

	assert.False(t, r.Guard.Held())
}

func TestRunnerRejectsSecondJob(t *testing.T) {
	r := newTestRunner()
	release := make(chan struct{})

	h, err := r.Start(context.Background(), "slides", func(context.Context, progress.Reporter) (*Artifact, error) {
		<-release
		return &Artifact{}, nil
	})
	require.NoError(t, err)

	_, err = r.Start(context.Background(), "note", func(context.Context, progress.Reporter) (*Artifact, error) {
		return nil, nil
	})
	assert.ErrorIs(t, err, ErrBusy)

	close(release)
	_, err = h.Wait(nil)
	require.NoError(t, err)

	// Accepted again once the first job finished.
	h2, err := r.Start(context.Background(), "note", func(context.Context, progress.Reporter) (*Artifact, error) {
		return &Artifact{}, nil
	})
	require.NoError(t, err)
	_, err = h2.Wait(nil)
	assert.NoError(t, err)
}

func TestRunnerGuardFreeWhenWaitReturns(t *testing.T) {
	r := newTestRunner()

	// The guard must be released before Done closes, so back-to-back
	// Start/Wait cycles never see a stale busy slot.
	for i := 0; i < 200; i++ {
		h, err := r.Start(context.Background(), "note", func(context.Context, progress.Reporter) (*Artifact, error) {
			return &Artifact{}, nil
		})
		require.NoError(t, err, "iteration %d rejected", i)
		_, err = h.Wait(nil)
		require.NoError(t, err)
		assert.False(t, r.Guard.Held(), "iteration %d left the guard held", i)
	}
}

func TestRunnerErrorPropagates(t *testing.T) {
	r := newTestRunner()
	boom := errors.New("acquisition exhausted")

	h, err := r.Start(context.Background(), "note", func(context.Context, progress.Reporter) (*Artifact, error) {
		return nil, boom
	})
	require.NoError(t, err)

	_, err = h.Wait(nil)
	assert.ErrorIs(t, err, boom)
	assert.False(t, r.Guard.Held())
}

func TestRunnerCeilingAbandonsWorker(t *testing.T) {
	r := newTestRunner()
	r.Ceiling = 50 * time.Millisecond

	workerUnblock := make(chan struct{})
	workerFinished := make(chan struct{})
	h, err := r.Start(context.Background(), "slides", func(context.Context, progress.Reporter) (*Artifact, error) {
		// Ignores cancellation, like a wedged external call.
		<-workerUnblock
		defer close(workerFinished)
		return &Artifact{Content: "late"}, nil
	})
	require.NoError(t, err)

	_, err = h.Wait(nil)
	assert.ErrorIs(t, err, ErrTimedOut)
	assert.False(t, r.Guard.Held(), "ceiling must free the guard")

	// The next job is accepted while the old worker is still wedged.
	h2, err := r.Start(context.Background(), "note", func(context.Context, progress.Reporter) (*Artifact, error) {
		return &Artifact{Content: "fresh"}, nil
	})
	require.NoError(t, err)

	// Let the abandoned worker finish; its result stays discarded and its
	// stale release must not free the new job's slot.
	close(workerUnblock)
	<-workerFinished
	time.Sleep(10 * time.Millisecond)

	art, err := h.Outcome()
	assert.ErrorIs(t, err, ErrTimedOut)
	assert.Nil(t, art)

	art2, err := h2.Wait(nil)
	require.NoError(t, err)
	assert.Equal(t, "fresh", art2.Content)
}

func TestRunnerCancelledParentContext(t *testing.T) {
	r := newTestRunner()
	ctx, cancel := context.WithCancel(context.Background())

	started := make(chan struct{})
	h, err := r.Start(ctx, "note", func(jobCtx context.Context, _ progress.Reporter) (*Artifact, error) {
		close(started)
		<-jobCtx.Done()
		return nil, jobCtx.Err()
	})
	require.NoError(t, err)

	<-started
	cancel()

	_, err = h.Wait(nil)
	assert.ErrorIs(t, err, context.Canceled)
	assert.False(t, r.Guard.Held())
}

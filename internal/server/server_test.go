package server

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bangdoll/tubenotes/internal/acquire"
	"github.com/bangdoll/tubenotes/internal/jobs"
	"github.com/bangdoll/tubenotes/internal/notes"
	"github.com/bangdoll/tubenotes/internal/progress"
	"github.com/bangdoll/tubenotes/internal/server/ratelimit"
	"github.com/bangdoll/tubenotes/internal/slides"
)

type fakeNotes struct {
	run func(ctx context.Context, url string, rep progress.Reporter) (*notes.Result, error)
}

func (f *fakeNotes) Run(ctx context.Context, url string, rep progress.Reporter) (*notes.Result, error) {
	return f.run(ctx, url, rep)
}

type fakeSlides struct {
	run func(ctx context.Context, job slides.Job) (*slides.Result, error)
}

func (f *fakeSlides) Run(ctx context.Context, job slides.Job) (*slides.Result, error) {
	return f.run(ctx, job)
}

type fakeFactory struct {
	notes  NotePipeline
	slides SlidePipeline
}

func (f *fakeFactory) Notes(context.Context, string) (NotePipeline, func(), error) {
	return f.notes, func() {}, nil
}

func (f *fakeFactory) Slides(context.Context, string) (SlidePipeline, func(), error) {
	return f.slides, func() {}, nil
}

func newTestServer(t *testing.T, factory PipelineFactory, runner *jobs.Runner) *Server {
	t.Helper()
	t.Setenv("RATE_LIMIT_ENABLED", "false")
	if runner == nil {
		runner = jobs.NewRunner(nil)
	}
	srv, err := New(Config{Port: 0, UploadDir: t.TempDir()}, factory, runner, logrus.NewEntry(logrus.New()))
	require.NoError(t, err)
	return srv
}

func TestHealth(t *testing.T) {
	srv := newTestServer(t, &fakeFactory{}, nil)

	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/health", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"status":"ok"`)
	assert.Contains(t, rec.Body.String(), `"busy":false`)
}

func TestNotes_InvalidBody(t *testing.T) {
	srv := newTestServer(t, &fakeFactory{}, nil)

	rec := httptest.NewRecorder()
	req := httptest.NewRequest("POST", "/api/notes", strings.NewReader("{not json"))
	srv.Handler().ServeHTTP(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestNotes_ValidationError(t *testing.T) {
	srv := newTestServer(t, &fakeFactory{}, nil)

	rec := httptest.NewRecorder()
	req := httptest.NewRequest("POST", "/api/notes", strings.NewReader(`{"url":"not-a-url"}`))
	srv.Handler().ServeHTTP(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "validation error")
}

func TestNotes_StreamsEventsAndResult(t *testing.T) {
	factory := &fakeFactory{
		notes: &fakeNotes{run: func(_ context.Context, url string, rep progress.Reporter) (*notes.Result, error) {
			rep.Logf("Video: Test Video")
			rep.Progress(1, 4, "Acquiring content")
			return &notes.Result{
				VideoID:  "dQw4w9WgXcQ",
				Title:    "Test Video",
				Tier:     acquire.TierCaptions,
				NotePath: "/output/Test Video.md",
				Markdown: "# Test Video\n\nbody",
			}, nil
		}},
	}
	srv := newTestServer(t, factory, nil)

	rec := httptest.NewRecorder()
	req := httptest.NewRequest("POST", "/api/notes",
		strings.NewReader(`{"url":"https://www.youtube.com/watch?v=dQw4w9WgXcQ"}`))
	srv.Handler().ServeHTTP(rec, req)

	body := rec.Body.String()
	assert.Equal(t, "text/event-stream", rec.Header().Get("Content-Type"))
	assert.Contains(t, body, "event: accepted")
	assert.Contains(t, body, "event: log")
	assert.Contains(t, body, "event: progress")
	assert.Contains(t, body, "event: result")
	assert.Contains(t, body, `"video_id":"dQw4w9WgXcQ"`)
	assert.Contains(t, body, "event: done")

	// Ordering: every progress frame precedes the terminal frames.
	assert.Less(t, strings.Index(body, "event: log"), strings.Index(body, "event: result"))
	assert.Less(t, strings.Index(body, "event: result"), strings.Index(body, "event: done"))
}

func TestNotes_PipelineErrorBecomesErrorEvent(t *testing.T) {
	factory := &fakeFactory{
		notes: &fakeNotes{run: func(context.Context, string, progress.Reporter) (*notes.Result, error) {
			return nil, &acquire.ExhaustedError{VideoID: "dQw4w9WgXcQ"}
		}},
	}
	srv := newTestServer(t, factory, nil)

	rec := httptest.NewRecorder()
	req := httptest.NewRequest("POST", "/api/notes",
		strings.NewReader(`{"url":"https://www.youtube.com/watch?v=dQw4w9WgXcQ"}`))
	srv.Handler().ServeHTTP(rec, req)

	body := rec.Body.String()
	assert.Contains(t, body, "event: error")
	assert.NotContains(t, body, "event: result")
}

func TestNotes_BusyWhileAnotherJobRuns(t *testing.T) {
	runner := jobs.NewRunner(nil)
	tok, err := runner.Guard.TryAcquire()
	require.NoError(t, err)
	defer tok.Release()

	factory := &fakeFactory{
		notes: &fakeNotes{run: func(context.Context, string, progress.Reporter) (*notes.Result, error) {
			t.Fatal("pipeline must not run while the guard is held")
			return nil, nil
		}},
	}
	srv := newTestServer(t, factory, runner)

	rec := httptest.NewRecorder()
	req := httptest.NewRequest("POST", "/api/notes",
		strings.NewReader(`{"url":"https://www.youtube.com/watch?v=dQw4w9WgXcQ"}`))
	srv.Handler().ServeHTTP(rec, req)

	assert.Contains(t, rec.Body.String(), "event: busy")
}

func TestNotes_AcceptedAgainAfterCompletion(t *testing.T) {
	runner := jobs.NewRunner(nil)
	factory := &fakeFactory{
		notes: &fakeNotes{run: func(context.Context, string, progress.Reporter) (*notes.Result, error) {
			return &notes.Result{VideoID: "abc123def45", NotePath: "/output/n.md", Markdown: "# n"}, nil
		}},
	}
	srv := newTestServer(t, factory, runner)

	for i := 0; i < 2; i++ {
		rec := httptest.NewRecorder()
		req := httptest.NewRequest("POST", "/api/notes",
			strings.NewReader(`{"url":"https://www.youtube.com/watch?v=abc123def45"}`))
		srv.Handler().ServeHTTP(rec, req)
		assert.Contains(t, rec.Body.String(), "event: done", "request %d", i+1)
	}
}

func TestNotes_TimeoutReportedAsError(t *testing.T) {
	runner := jobs.NewRunner(nil)
	runner.Ceiling = 30 * time.Millisecond

	factory := &fakeFactory{
		notes: &fakeNotes{run: func(ctx context.Context, _ string, _ progress.Reporter) (*notes.Result, error) {
			<-ctx.Done()
			time.Sleep(20 * time.Millisecond)
			return nil, ctx.Err()
		}},
	}
	srv := newTestServer(t, factory, runner)

	rec := httptest.NewRecorder()
	req := httptest.NewRequest("POST", "/api/notes",
		strings.NewReader(`{"url":"https://www.youtube.com/watch?v=abc123def45"}`))
	srv.Handler().ServeHTTP(rec, req)

	assert.Contains(t, rec.Body.String(), "processing timed out")
}

func TestSlides_MissingFile(t *testing.T) {
	srv := newTestServer(t, &fakeFactory{}, nil)

	rec := httptest.NewRecorder()
	req := httptest.NewRequest("POST", "/api/slides", strings.NewReader(""))
	req.Header.Set("Content-Type", "multipart/form-data; boundary=x")
	srv.Handler().ServeHTTP(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestRuns_WithoutDatabase(t *testing.T) {
	srv := newTestServer(t, &fakeFactory{}, nil)

	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/api/runs", nil))

	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestThrottledRoutesAreRegistered(t *testing.T) {
	srv := newTestServer(t, &fakeFactory{}, nil)

	// Every route in the throttle table must exist on the mux; a table entry
	// for an unregistered route would rate-limit nothing.
	for _, rule := range ratelimit.DefaultEndpointConfigs() {
		rec := httptest.NewRecorder()
		srv.Handler().ServeHTTP(rec, httptest.NewRequest(rule.Method, rule.Path, nil))
		assert.NotEqual(t, http.StatusNotFound, rec.Code, rule.Path)
		assert.NotEqual(t, http.StatusMethodNotAllowed, rec.Code, rule.Path)
	}
}

func TestParsePages(t *testing.T) {
	tests := []struct {
		raw     string
		want    []int
		wantErr bool
	}{
		{raw: "", want: nil},
		{raw: "2,7", want: []int{2, 7}},
		{raw: " 1, 3 ,5 ", want: []int{1, 3, 5}},
		{raw: "1-3,7", want: []int{1, 2, 3, 7}},
		{raw: "3-1", wantErr: true},
		{raw: "a,b", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.raw, func(t *testing.T) {
			got, err := ParsePages(tt.raw)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestHTTPStatus(t *testing.T) {
	assert.Equal(t, http.StatusBadRequest, HTTPStatus(&ErrValidation{Field: "url", Message: "required"}))
	assert.Equal(t, http.StatusConflict, HTTPStatus(jobs.ErrBusy))
	assert.Equal(t, http.StatusGatewayTimeout, HTTPStatus(jobs.ErrTimedOut))
	assert.Equal(t, http.StatusInternalServerError, HTTPStatus(assert.AnError))
}

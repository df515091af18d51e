package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/google/uuid"

	"github.com/bangdoll/tubenotes/internal/db"
	"github.com/bangdoll/tubenotes/internal/jobs"
	"github.com/bangdoll/tubenotes/internal/progress"
	"github.com/bangdoll/tubenotes/internal/slides"
	"github.com/bangdoll/tubenotes/internal/types"
)

// handleNotes starts a video-to-note job and streams its progress as SSE.
func (s *Server) handleNotes(w http.ResponseWriter, r *http.Request) {
	var req types.NoteRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.errorResponse(w, http.StatusBadRequest, "Invalid request body: "+err.Error())
		return
	}
	if err := req.Validate(); err != nil {
		s.errorResponse(w, http.StatusBadRequest, (&ErrValidation{Field: "url", Message: err.Error()}).Error())
		return
	}

	pipeline, cleanup, err := s.factory.Notes(r.Context(), req.APIKey)
	if err != nil {
		s.errorResponse(w, http.StatusInternalServerError, "Pipeline unavailable: "+err.Error())
		return
	}

	sse, err := NewSSEWriter(w)
	if err != nil {
		cleanup()
		s.errorResponse(w, http.StatusInternalServerError, err.Error())
		return
	}

	var result *types.NoteResult
	// The job outlives the request context so a dropped SSE connection does
	// not kill the pipeline mid-flight.
	handle, err := s.runner.Start(context.Background(), db.KindNote, func(ctx context.Context, rep progress.Reporter) (*jobs.Artifact, error) {
		defer cleanup()
		res, runErr := pipeline.Run(ctx, req.URL, rep)
		if runErr != nil {
			return nil, runErr
		}
		result = &types.NoteResult{
			VideoID:  res.VideoID,
			Title:    res.Title,
			Tier:     string(res.Tier),
			Filename: filepath.Base(res.NotePath),
			Path:     res.NotePath,
			Markdown: res.Markdown,
		}
		return &jobs.Artifact{
			Content:  res.Markdown,
			Filename: filepath.Base(res.NotePath),
			Path:     res.NotePath,
		}, nil
	})
	if errors.Is(err, jobs.ErrBusy) {
		cleanup()
		sse.WriteBusy()
		return
	}
	if err != nil {
		cleanup()
		sse.WriteError(err.Error())
		return
	}

	s.recordStart(handle.ID, db.KindNote, req.URL)
	sse.WriteEvent("accepted", types.JobAccepted{JobID: handle.ID.String(), Kind: db.KindNote}) //nolint:errcheck

	artifact, err := handle.Wait(sse.WriteProgress)
	if err != nil {
		s.recordFinish(handle.ID, runStatus(err), "", err)
		sse.WriteError(err.Error())
		return
	}
	s.recordFinish(handle.ID, db.StatusCompleted, artifact.Path, nil)
	s.recordNote(handle.ID, artifact.Content)
	if result != nil {
		sse.WriteResult(result)
	}
	sse.WriteDone(handle.ID.String(), db.StatusCompleted)
}

// handleSlides accepts a multipart PDF upload, starts a slide-reconstruction
// job, and streams its progress as SSE. Form fields: "file" (the PDF),
// "pages" (optional comma-separated 1-based selection), "api_key" (optional
// bring-your-own-key).
func (s *Server) handleSlides(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, s.maxUpload)
	if err := r.ParseMultipartForm(s.maxUpload); err != nil {
		s.errorResponse(w, http.StatusBadRequest, "Invalid multipart body: "+err.Error())
		return
	}

	file, header, err := r.FormFile("file")
	if err != nil {
		s.errorResponse(w, http.StatusBadRequest, "Missing 'file' part: "+err.Error())
		return
	}
	defer file.Close() //nolint:errcheck

	pages, err := ParsePages(r.FormValue("pages"))
	if err != nil {
		s.errorResponse(w, http.StatusBadRequest, (&ErrValidation{Field: "pages", Message: err.Error()}).Error())
		return
	}

	req := types.SlidesRequest{
		Filename: header.Filename,
		Pages:    pages,
		APIKey:   r.FormValue("api_key"),
	}
	if err := req.Validate(); err != nil {
		s.errorResponse(w, http.StatusBadRequest, (&ErrValidation{Field: "file", Message: err.Error()}).Error())
		return
	}
	if !strings.EqualFold(filepath.Ext(req.Filename), ".pdf") {
		s.errorResponse(w, http.StatusBadRequest, (&ErrValidation{Field: "file", Message: "only PDF uploads are supported"}).Error())
		return
	}

	uploadPath := filepath.Join(s.uploadDir, uuid.New().String()+".pdf")
	if err := saveUpload(file, uploadPath); err != nil {
		s.errorResponse(w, http.StatusInternalServerError, "Storing upload: "+err.Error())
		return
	}

	pipeline, cleanup, err := s.factory.Slides(r.Context(), req.APIKey)
	if err != nil {
		_ = os.Remove(uploadPath)
		s.errorResponse(w, http.StatusInternalServerError, "Pipeline unavailable: "+err.Error())
		return
	}

	sse, err := NewSSEWriter(w)
	if err != nil {
		cleanup()
		_ = os.Remove(uploadPath)
		s.errorResponse(w, http.StatusInternalServerError, err.Error())
		return
	}

	var result *types.SlidesResult
	handle, err := s.runner.Start(context.Background(), db.KindSlides, func(ctx context.Context, rep progress.Reporter) (*jobs.Artifact, error) {
		defer cleanup()
		defer func() { _ = os.Remove(uploadPath) }()
		res, runErr := pipeline.Run(ctx, slides.Job{
			PDFPath:  uploadPath,
			Filename: req.Filename,
			Pages:    req.Pages,
			Reporter: rep,
		})
		if runErr != nil {
			return nil, runErr
		}
		result = &types.SlidesResult{
			Filename:   filepath.Base(res.OutputPath),
			Path:       res.OutputPath,
			TotalPages: res.TotalPages,
			SlideCount: len(res.Units),
		}
		return &jobs.Artifact{
			Filename: filepath.Base(res.OutputPath),
			Path:     res.OutputPath,
		}, nil
	})
	if errors.Is(err, jobs.ErrBusy) {
		cleanup()
		_ = os.Remove(uploadPath)
		sse.WriteBusy()
		return
	}
	if err != nil {
		cleanup()
		_ = os.Remove(uploadPath)
		sse.WriteError(err.Error())
		return
	}

	s.recordStart(handle.ID, db.KindSlides, req.Filename)
	sse.WriteEvent("accepted", types.JobAccepted{JobID: handle.ID.String(), Kind: db.KindSlides}) //nolint:errcheck

	artifact, err := handle.Wait(sse.WriteProgress)
	if err != nil {
		s.recordFinish(handle.ID, runStatus(err), "", err)
		sse.WriteError(err.Error())
		return
	}
	s.recordFinish(handle.ID, db.StatusCompleted, artifact.Path, nil)
	if result != nil {
		sse.WriteResult(result)
	}
	sse.WriteDone(handle.ID.String(), db.StatusCompleted)
}

// handleListRuns returns recent run history.
func (s *Server) handleListRuns(w http.ResponseWriter, r *http.Request) {
	if s.db == nil {
		s.errorResponse(w, http.StatusServiceUnavailable, "Run history requires a configured database")
		return
	}
	limit := 50
	if v := r.URL.Query().Get("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			limit = n
		}
	}
	runs, err := s.db.ListRuns(r.Context(), limit)
	if err != nil {
		s.errorResponse(w, http.StatusInternalServerError, "Database error: "+err.Error())
		return
	}
	s.jsonResponse(w, http.StatusOK, runs)
}

// handleGetRun returns one run by id.
func (s *Server) handleGetRun(w http.ResponseWriter, r *http.Request) {
	if s.db == nil {
		s.errorResponse(w, http.StatusServiceUnavailable, "Run history requires a configured database")
		return
	}
	id, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		s.errorResponse(w, http.StatusBadRequest, "Invalid run ID format")
		return
	}
	run, err := s.db.GetRun(r.Context(), id)
	if err != nil {
		s.errorResponse(w, http.StatusInternalServerError, "Database error: "+err.Error())
		return
	}
	if run == nil {
		s.errorResponse(w, http.StatusNotFound, "Run not found")
		return
	}
	s.jsonResponse(w, http.StatusOK, run)
}

// recordStart persists a run row. History is best-effort, failures warn.
func (s *Server) recordStart(id uuid.UUID, kind, input string) {
	if s.db == nil {
		return
	}
	if err := s.db.CreateRun(context.Background(), id, kind, input); err != nil {
		s.log.WithError(err).Warn("recording run start failed")
	}
}

// recordFinish persists a run's terminal outcome.
func (s *Server) recordFinish(id uuid.UUID, status, artifactPath string, cause error) {
	if s.db == nil {
		return
	}
	msg := ""
	if cause != nil {
		msg = cause.Error()
	}
	if err := s.db.CompleteRun(context.Background(), id, status, artifactPath, msg); err != nil {
		s.log.WithError(err).Warn("recording run outcome failed")
	}
}

// recordNote stores the note text alongside the run.
func (s *Server) recordNote(id uuid.UUID, markdown string) {
	if s.db == nil || markdown == "" {
		return
	}
	if err := s.db.SaveArtifact(context.Background(), id, db.ArtifactNoteMarkdown, markdown); err != nil {
		s.log.WithError(err).Warn("recording note artifact failed")
	}
}

func runStatus(err error) string {
	if errors.Is(err, jobs.ErrTimedOut) {
		return db.StatusTimedOut
	}
	return db.StatusFailed
}

// ParsePages turns a comma-separated 1-based page selection like "2,7" or
// "1-3,7" into a sorted-free list preserving caller order.
func ParsePages(raw string) ([]int, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, nil
	}
	var pages []int
	for _, part := range strings.Split(raw, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		if lo, hi, ok := strings.Cut(part, "-"); ok {
			start, err := strconv.Atoi(strings.TrimSpace(lo))
			if err != nil {
				return nil, fmt.Errorf("invalid page range %q", part)
			}
			end, err := strconv.Atoi(strings.TrimSpace(hi))
			if err != nil || end < start {
				return nil, fmt.Errorf("invalid page range %q", part)
			}
			for p := start; p <= end; p++ {
				pages = append(pages, p)
			}
			continue
		}
		p, err := strconv.Atoi(part)
		if err != nil {
			return nil, fmt.Errorf("invalid page number %q", part)
		}
		pages = append(pages, p)
	}
	return pages, nil
}

func saveUpload(src io.Reader, dst string) error {
	out, err := os.Create(dst)
	if err != nil {
		return err
	}
	defer out.Close() //nolint:errcheck
	_, err = io.Copy(out, src)
	return err
}

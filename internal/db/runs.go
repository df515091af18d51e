package db

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

// Run represents one job run record
type Run struct {
	ID           uuid.UUID  `json:"id"`
	Kind         string     `json:"kind"`
	Input        string     `json:"input"`
	Status       string     `json:"status"`
	ArtifactPath string     `json:"artifact_path,omitempty"`
	ErrorMessage string     `json:"error_message,omitempty"`
	CreatedAt    time.Time  `json:"created_at"`
	CompletedAt  *time.Time `json:"completed_at,omitempty"`
}

// Run kinds
const (
	KindNote   = "note"
	KindSlides = "slides"
)

// Run statuses
const (
	StatusRunning   = "running"
	StatusCompleted = "completed"
	StatusFailed    = "failed"
	StatusTimedOut  = "timed_out"
)

// Artifact names for known artifact types
const (
	ArtifactNoteMarkdown  = "note_markdown"
	ArtifactTranscriptRaw = "transcript_raw"
)

// CreateRun records a newly accepted job
func (db *DB) CreateRun(ctx context.Context, id uuid.UUID, kind, input string) error {
	_, err := db.pool.Exec(ctx,
		`INSERT INTO job_runs (id, kind, input, status) VALUES ($1, $2, $3, $4)`,
		id, kind, input, StatusRunning,
	)
	if err != nil {
		return fmt.Errorf("failed to create run: %w", err)
	}
	return nil
}

// CompleteRun records a run's terminal outcome
func (db *DB) CompleteRun(ctx context.Context, id uuid.UUID, status, artifactPath, errorMessage string) error {
	_, err := db.pool.Exec(ctx,
		`UPDATE job_runs
		 SET status = $1, artifact_path = $2, error_message = $3, completed_at = NOW()
		 WHERE id = $4`,
		status, artifactPath, errorMessage, id,
	)
	if err != nil {
		return fmt.Errorf("failed to complete run: %w", err)
	}
	return nil
}

// GetRun returns a run by ID, or nil when no such run exists
func (db *DB) GetRun(ctx context.Context, id uuid.UUID) (*Run, error) {
	var run Run
	err := db.pool.QueryRow(ctx,
		`SELECT id, kind, input, status, artifact_path, error_message, created_at, completed_at
		 FROM job_runs WHERE id = $1`,
		id,
	).Scan(&run.ID, &run.Kind, &run.Input, &run.Status, &run.ArtifactPath,
		&run.ErrorMessage, &run.CreatedAt, &run.CompletedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get run: %w", err)
	}
	return &run, nil
}

// ListRuns returns the most recent runs, newest first
func (db *DB) ListRuns(ctx context.Context, limit int) ([]Run, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := db.pool.Query(ctx,
		`SELECT id, kind, input, status, artifact_path, error_message, created_at, completed_at
		 FROM job_runs ORDER BY created_at DESC LIMIT $1`,
		limit,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list runs: %w", err)
	}
	defer rows.Close()

	var runs []Run
	for rows.Next() {
		var run Run
		if err := rows.Scan(&run.ID, &run.Kind, &run.Input, &run.Status, &run.ArtifactPath,
			&run.ErrorMessage, &run.CreatedAt, &run.CompletedAt); err != nil {
			return nil, fmt.Errorf("failed to scan run: %w", err)
		}
		runs = append(runs, run)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read runs: %w", err)
	}
	return runs, nil
}

// SaveArtifact stores a text artifact for a run, replacing any previous
// artifact with the same name
func (db *DB) SaveArtifact(ctx context.Context, runID uuid.UUID, name, content string) error {
	_, err := db.pool.Exec(ctx,
		`INSERT INTO job_artifacts (run_id, name, content)
		 VALUES ($1, $2, $3)
		 ON CONFLICT (run_id, name) DO UPDATE SET content = $3, created_at = NOW()`,
		runID, name, content,
	)
	if err != nil {
		return fmt.Errorf("failed to save artifact: %w", err)
	}
	return nil
}

// GetArtifact returns a run's artifact content, or "" with found=false
func (db *DB) GetArtifact(ctx context.Context, runID uuid.UUID, name string) (string, bool, error) {
	var content string
	err := db.pool.QueryRow(ctx,
		`SELECT content FROM job_artifacts WHERE run_id = $1 AND name = $2`,
		runID, name,
	).Scan(&content)
	if errors.Is(err, pgx.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("failed to get artifact: %w", err)
	}
	return content, true, nil
}

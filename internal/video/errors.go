package video

import (
	"errors"
	"fmt"
)

// ErrNoAudioStream means the extractor ran fine but the video exposes no
// downloadable audio format. This is a negative response, not a failure.
var ErrNoAudioStream = errors.New("no audio stream available")

// DownloadError represents an extractor failure: bot detection, network
// trouble, or a broken format. The acquisition layer treats it as the signal
// to fall back to browser capture.
type DownloadError struct {
	Message string
	Stderr  string
	Cause   error
}

func (e *DownloadError) Error() string {
	if e.Stderr != "" {
		return fmt.Sprintf("download failed: %s: %s", e.Message, e.Stderr)
	}
	if e.Cause != nil {
		return fmt.Sprintf("download failed: %s: %v", e.Message, e.Cause)
	}
	return fmt.Sprintf("download failed: %s", e.Message)
}

func (e *DownloadError) Unwrap() error {
	return e.Cause
}

// ProbeError represents a metadata fetch failure. Metadata is best-effort, so
// callers usually log it and continue with a fallback title.
type ProbeError struct {
	Message string
	Cause   error
}

func (e *ProbeError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("probe failed: %s: %v", e.Message, e.Cause)
	}
	return fmt.Sprintf("probe failed: %s", e.Message)
}

func (e *ProbeError) Unwrap() error {
	return e.Cause
}

package captions

import (
	"errors"
	"fmt"
)

// ErrNoTranscript means the video has no caption track in any accepted
// language, or the track turned out to be empty. This is a negative response
// rather than a failure; the acquisition layer moves on to the next tier.
var ErrNoTranscript = errors.New("no transcript available")

// Error represents a hard failure while fetching captions: network trouble,
// an HTTP error status, or unparseable payload.
type Error struct {
	VideoID string
	Message string
	Cause   error
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("captions error for %s: %s: %v", e.VideoID, e.Message, e.Cause)
	}
	return fmt.Sprintf("captions error for %s: %s", e.VideoID, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Cause
}

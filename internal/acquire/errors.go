package acquire

import (
	"fmt"
	"strings"
	"time"
)

// Attempt records one tier's try at obtaining content.
type Attempt struct {
	Tier    Tier
	Err     error
	Elapsed time.Duration
}

// ExhaustedError means every applicable acquisition tier failed. It carries
// the per-tier failures so the caller can report what was tried.
type ExhaustedError struct {
	VideoID  string
	Attempts []Attempt
}

func (e *ExhaustedError) Error() string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "unrecoverable acquisition failure for video %s after %d attempts", e.VideoID, len(e.Attempts))
	for _, a := range e.Attempts {
		fmt.Fprintf(&sb, "; %s: %v (%.1fs)", a.Tier, a.Err, a.Elapsed.Seconds())
	}
	return sb.String()
}

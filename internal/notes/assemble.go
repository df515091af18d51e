package notes

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// saveNote writes the markdown to the output directory, naming the file after
// the note's first heading.
func (p *Pipeline) saveNote(videoID, markdown string) (string, error) {
	if err := os.MkdirAll(p.OutputDir, 0o755); err != nil {
		return "", fmt.Errorf("create output directory %s: %w", p.OutputDir, err)
	}
	name := NoteFilename(markdown, videoID)
	path := filepath.Join(p.OutputDir, name)
	if err := os.WriteFile(path, []byte(markdown), 0o644); err != nil {
		return "", fmt.Errorf("write note %s: %w", path, err)
	}
	return path, nil
}

// NoteFilename derives "<title>.md" from the first "# " heading, sanitized of
// path-unsafe characters. Falls back to a video-id-based name when the note
// has no usable heading.
func NoteFilename(markdown, videoID string) string {
	title := FirstHeading(markdown)
	title = sanitizeFilename(title)
	if title == "" {
		return "note_" + videoID + ".md"
	}
	return title + ".md"
}

// FirstHeading returns the text of the first level-1 heading line, or "".
func FirstHeading(markdown string) string {
	for _, line := range strings.Split(markdown, "\n") {
		trimmed := strings.TrimSpace(line)
		if strings.HasPrefix(trimmed, "# ") {
			return strings.TrimSpace(strings.TrimPrefix(trimmed, "# "))
		}
	}
	return ""
}

// sanitizeFilename strips characters that are unsafe in filenames on common
// filesystems.
func sanitizeFilename(name string) string {
	cleaned := strings.Map(func(r rune) rune {
		switch r {
		case '\\', '/', '*', '?', ':', '"', '<', '>', '|':
			return -1
		}
		return r
	}, name)
	cleaned = strings.TrimSpace(cleaned)
	cleaned = strings.Trim(cleaned, ".")
	const maxLen = 120
	if runes := []rune(cleaned); len(runes) > maxLen {
		cleaned = string(runes[:maxLen])
	}
	return strings.TrimSpace(cleaned)
}

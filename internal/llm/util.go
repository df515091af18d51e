package llm

import "strings"

// CleanJSONBlock removes markdown code fences from a model response. Models
// wrap JSON in ```json ... ``` even when told not to, sometimes with a bare
// language identifier on the first line.
func CleanJSONBlock(text string) string {
	text = strings.TrimSpace(text)
	if !strings.HasPrefix(text, "```") {
		return text
	}

	text = strings.TrimPrefix(text, "```json")
	text = strings.TrimPrefix(text, "```")

	// A leftover language identifier occupies the first line on its own
	if idx := strings.Index(text, "\n"); idx >= 0 {
		firstLine := strings.TrimSpace(text[:idx])
		if firstLine != "" && len(firstLine) < 20 &&
			!strings.ContainsAny(firstLine, " {[\"") {
			text = text[idx+1:]
		}
	}

	if idx := strings.LastIndex(text, "```"); idx >= 0 {
		text = text[:idx]
	}
	return strings.TrimSpace(text)
}

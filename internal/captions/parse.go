package captions

import (
	"encoding/json"
	"encoding/xml"
	"fmt"
	"html"
	"strings"
)

// Track describes one caption track from the player response.
type Track struct {
	BaseURL      string `json:"baseUrl"`
	LanguageCode string `json:"languageCode"`
	Kind         string `json:"kind"` // "asr" for auto-generated tracks
	Name         struct {
		SimpleText string `json:"simpleText"`
	} `json:"name"`
}

// extractCaptionTracks pulls the captionTracks array out of the watch page.
// An empty slice with a nil error means the video exposes no captions.
func extractCaptionTracks(watchHTML []byte) ([]Track, error) {
	script := findPlayerScript(watchHTML)
	if script == "" {
		return nil, nil
	}

	const marker = `"captionTracks":`
	idx := strings.Index(script, marker)
	if idx < 0 {
		return nil, nil
	}

	// Decode exactly one JSON array starting at the marker; the decoder stops
	// at the end of the value, so the rest of the script is ignored.
	var tracks []Track
	dec := json.NewDecoder(strings.NewReader(script[idx+len(marker):]))
	if err := dec.Decode(&tracks); err != nil {
		return nil, fmt.Errorf("decoding captionTracks: %w", err)
	}
	return tracks, nil
}

// selectTrack picks the first track matching the language preference order.
// A manually authored track beats an auto-generated one for the same
// language. Returns nil when nothing matches.
func selectTrack(tracks []Track, languages []string) *Track {
	for _, lang := range languages {
		var asrMatch *Track
		for i := range tracks {
			t := &tracks[i]
			if !languageMatches(t.LanguageCode, lang) {
				continue
			}
			if t.Kind != "asr" {
				return t
			}
			if asrMatch == nil {
				asrMatch = t
			}
		}
		if asrMatch != nil {
			return asrMatch
		}
	}
	return nil
}

// languageMatches compares caption language codes loosely: exact match, or a
// regional variant of the wanted code ("zh-Hant-TW" matches "zh-Hant").
func languageMatches(code, want string) bool {
	if strings.EqualFold(code, want) {
		return true
	}
	return strings.HasPrefix(strings.ToLower(code), strings.ToLower(want)+"-")
}

type timedTextDoc struct {
	XMLName xml.Name       `xml:"transcript"`
	Texts   []timedTextCue `xml:"text"`
}

type timedTextCue struct {
	Start string `xml:"start,attr"`
	Dur   string `xml:"dur,attr"`
	Body  string `xml:",chardata"`
}

// parseTimedText flattens a timedtext XML document into plain text, one cue
// per line. Cue bodies are double-escaped in the wire format, so they go
// through HTML unescaping after the XML decode.
func parseTimedText(data []byte) (string, error) {
	var doc timedTextDoc
	if err := xml.Unmarshal(data, &doc); err != nil {
		return "", fmt.Errorf("unmarshaling timedtext: %w", err)
	}

	var lines []string
	for _, cue := range doc.Texts {
		text := strings.TrimSpace(html.UnescapeString(cue.Body))
		if text != "" {
			lines = append(lines, text)
		}
	}
	return strings.Join(lines, "\n"), nil
}

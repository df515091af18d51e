package captions

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func watchPage(tracksJSON string) string {
	return fmt.Sprintf(`<!DOCTYPE html><html><head><title>t</title></head><body>
<script>var x = 1;</script>
<script>var ytInitialPlayerResponse = {"captions":{"playerCaptionsTracklistRenderer":{"captionTracks":%s}},"videoDetails":{"videoId":"abc"}};</script>
</body></html>`, tracksJSON)
}

func TestExtractCaptionTracks(t *testing.T) {
	html := watchPage(`[{"baseUrl":"https://example.com/tt?lang=zh-TW","languageCode":"zh-TW","name":{"simpleText":"Chinese (Taiwan)"}},{"baseUrl":"https://example.com/tt?lang=en","languageCode":"en","kind":"asr","name":{"simpleText":"English (auto-generated)"}}]`)

	tracks, err := extractCaptionTracks([]byte(html))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(tracks) != 2 {
		t.Fatalf("expected 2 tracks, got %d", len(tracks))
	}
	if tracks[0].LanguageCode != "zh-TW" {
		t.Errorf("first track language = %q", tracks[0].LanguageCode)
	}
	if tracks[1].Kind != "asr" {
		t.Errorf("second track kind = %q", tracks[1].Kind)
	}
}

func TestExtractCaptionTracksNoCaptions(t *testing.T) {
	html := `<!DOCTYPE html><html><body><script>var ytInitialPlayerResponse = {"videoDetails":{"videoId":"abc"}};</script></body></html>`

	tracks, err := extractCaptionTracks([]byte(html))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if tracks != nil {
		t.Errorf("expected nil tracks, got %v", tracks)
	}
}

func TestSelectTrack(t *testing.T) {
	mk := func(lang, kind string) Track {
		tr := Track{LanguageCode: lang, Kind: kind}
		tr.BaseURL = "https://example.com/" + lang + kind
		return tr
	}

	tests := []struct {
		name     string
		tracks   []Track
		wantLang string
		wantKind string
		wantNil  bool
	}{
		{
			name:     "traditional chinese wins over english",
			tracks:   []Track{mk("en", ""), mk("zh-Hant", "")},
			wantLang: "zh-Hant",
		},
		{
			name:     "zh-TW preferred over zh-CN",
			tracks:   []Track{mk("zh-CN", ""), mk("zh-TW", "")},
			wantLang: "zh-TW",
		},
		{
			name:     "manual beats auto-generated for same language",
			tracks:   []Track{mk("en", "asr"), mk("en", "")},
			wantLang: "en",
			wantKind: "",
		},
		{
			name:     "auto-generated used when nothing else matches",
			tracks:   []Track{mk("en", "asr")},
			wantLang: "en",
			wantKind: "asr",
		},
		{
			name:     "regional variant matches base code",
			tracks:   []Track{mk("zh-Hant-TW", "")},
			wantLang: "zh-Hant-TW",
		},
		{
			name:    "no acceptable language",
			tracks:  []Track{mk("ja", ""), mk("ko", "")},
			wantNil: true,
		},
		{
			name:    "empty track list",
			tracks:  nil,
			wantNil: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := selectTrack(tt.tracks, DefaultLanguages)
			if tt.wantNil {
				if got != nil {
					t.Fatalf("expected nil, got %+v", got)
				}
				return
			}
			if got == nil {
				t.Fatal("expected a track, got nil")
			}
			if got.LanguageCode != tt.wantLang || got.Kind != tt.wantKind {
				t.Errorf("selected %s/%q, want %s/%q", got.LanguageCode, got.Kind, tt.wantLang, tt.wantKind)
			}
		})
	}
}

func TestParseTimedText(t *testing.T) {
	doc := `<?xml version="1.0" encoding="utf-8"?>
<transcript>
  <text start="0.0" dur="2.5">First line</text>
  <text start="2.5" dur="3.0">it&amp;#39;s escaped &amp;amp; twice</text>
  <text start="5.5" dur="1.0">   </text>
  <text start="6.5" dur="2.0">last</text>
</transcript>`

	got, err := parseTimedText([]byte(doc))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	want := "First line\nit's escaped & twice\nlast"
	if got != want {
		t.Errorf("parseTimedText = %q, want %q", got, want)
	}
}

func TestParseTimedTextInvalid(t *testing.T) {
	if _, err := parseTimedText([]byte("not xml at all <<<")); err == nil {
		t.Error("expected error for malformed XML")
	}
}

func TestFetch(t *testing.T) {
	timedtext := `<transcript><text start="0" dur="2">&amp;#23433;&amp;#20840; content</text><text start="2" dur="2">second cue</text></transcript>`

	var srv *httptest.Server
	srv = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch {
		case strings.HasPrefix(r.URL.Path, "/watch"):
			tracks := fmt.Sprintf(`[{"baseUrl":"%s/timedtext?lang=zh-TW","languageCode":"zh-TW","name":{"simpleText":"Chinese"}}]`, srv.URL)
			fmt.Fprint(w, watchPage(tracks))
		case strings.HasPrefix(r.URL.Path, "/timedtext"):
			fmt.Fprint(w, timedtext)
		default:
			http.NotFound(w, r)
		}
	}))
	defer srv.Close()

	c := NewClient(DefaultOptions())
	c.watchURL = srv.URL + "/watch?v="

	text, err := c.Fetch(context.Background(), "abc12345678")
	if err != nil {
		t.Fatalf("Fetch failed: %v", err)
	}
	if !strings.Contains(text, "second cue") {
		t.Errorf("transcript missing cue text: %q", text)
	}
}

func TestFetchNoCaptions(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `<!DOCTYPE html><html><body><script>var ytInitialPlayerResponse = {};</script></body></html>`)
	}))
	defer srv.Close()

	c := NewClient(DefaultOptions())
	c.watchURL = srv.URL + "/watch?v="

	_, err := c.Fetch(context.Background(), "abc12345678")
	if !errors.Is(err, ErrNoTranscript) {
		t.Errorf("expected ErrNoTranscript, got %v", err)
	}
}

func TestFetchNoMatchingLanguage(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, watchPage(`[{"baseUrl":"https://example.com/tt","languageCode":"ja","name":{"simpleText":"Japanese"}}]`))
	}))
	defer srv.Close()

	c := NewClient(DefaultOptions())
	c.watchURL = srv.URL + "/watch?v="

	_, err := c.Fetch(context.Background(), "abc12345678")
	if !errors.Is(err, ErrNoTranscript) {
		t.Errorf("expected ErrNoTranscript, got %v", err)
	}
}

func TestFetchHTTPError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "nope", http.StatusTooManyRequests)
	}))
	defer srv.Close()

	c := NewClient(DefaultOptions())
	c.watchURL = srv.URL + "/watch?v="

	_, err := c.Fetch(context.Background(), "abc12345678")
	var ce *Error
	if !errors.As(err, &ce) {
		t.Fatalf("expected *Error, got %v", err)
	}
	if errors.Is(err, ErrNoTranscript) {
		t.Error("HTTP failure must not look like a missing transcript")
	}
}

func TestFetchEmptyTrack(t *testing.T) {
	var srv *httptest.Server
	srv = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch {
		case strings.HasPrefix(r.URL.Path, "/watch"):
			tracks := fmt.Sprintf(`[{"baseUrl":"%s/timedtext","languageCode":"en","name":{"simpleText":"English"}}]`, srv.URL)
			fmt.Fprint(w, watchPage(tracks))
		default:
			fmt.Fprint(w, `<transcript></transcript>`)
		}
	}))
	defer srv.Close()

	c := NewClient(DefaultOptions())
	c.watchURL = srv.URL + "/watch?v="

	_, err := c.Fetch(context.Background(), "abc12345678")
	if !errors.Is(err, ErrNoTranscript) {
		t.Errorf("expected ErrNoTranscript for empty track, got %v", err)
	}
}

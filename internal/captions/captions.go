// Package captions fetches YouTube caption tracks without an API key by
// scraping the watch page for the player response and downloading the
// referenced timedtext document.
package captions

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
)

// DefaultTimeout is the default HTTP request timeout.
const DefaultTimeout = 20 * time.Second

// DefaultUserAgent mimics a desktop browser; YouTube serves a reduced page to
// unknown agents that omits the caption metadata.
const DefaultUserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/124.0 Safari/537.36"

// DefaultLanguages is the preference order for caption tracks: Traditional
// Chinese variants first, then Simplified, then English.
var DefaultLanguages = []string{"zh-Hant", "zh-TW", "zh-Hans", "zh-CN", "en"}

// Options configures the caption fetcher.
type Options struct {
	Timeout   time.Duration
	UserAgent string
	Languages []string
}

// DefaultOptions returns sensible defaults for caption fetching.
func DefaultOptions() *Options {
	return &Options{
		Timeout:   DefaultTimeout,
		UserAgent: DefaultUserAgent,
		Languages: DefaultLanguages,
	}
}

// Client fetches caption transcripts for YouTube videos.
type Client struct {
	httpClient *http.Client
	userAgent  string
	languages  []string
	watchURL   string
}

// NewClient creates a caption fetcher with the given options.
func NewClient(opts *Options) *Client {
	if opts == nil {
		opts = DefaultOptions()
	}
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	userAgent := opts.UserAgent
	if userAgent == "" {
		userAgent = DefaultUserAgent
	}
	languages := opts.Languages
	if len(languages) == 0 {
		languages = DefaultLanguages
	}
	return &Client{
		httpClient: &http.Client{Timeout: timeout},
		userAgent:  userAgent,
		languages:  languages,
		watchURL:   "https://www.youtube.com/watch?v=",
	}
}

// Fetch returns the transcript text for a video, using the first caption
// track that matches the configured language preference. It returns
// ErrNoTranscript when the video has no usable track, and a *Error for hard
// failures.
func (c *Client) Fetch(ctx context.Context, videoID string) (string, error) {
	watchHTML, err := c.get(ctx, videoID, c.watchURL+videoID)
	if err != nil {
		return "", err
	}

	tracks, err := extractCaptionTracks(watchHTML)
	if err != nil {
		return "", &Error{VideoID: videoID, Message: "failed to parse caption metadata", Cause: err}
	}
	if len(tracks) == 0 {
		return "", fmt.Errorf("video %s: %w", videoID, ErrNoTranscript)
	}

	track := selectTrack(tracks, c.languages)
	if track == nil {
		return "", fmt.Errorf("video %s has no track in %v: %w", videoID, c.languages, ErrNoTranscript)
	}

	timedtext, err := c.get(ctx, videoID, track.BaseURL)
	if err != nil {
		return "", err
	}

	text, err := parseTimedText(timedtext)
	if err != nil {
		return "", &Error{VideoID: videoID, Message: "failed to parse timedtext document", Cause: err}
	}
	if strings.TrimSpace(text) == "" {
		return "", fmt.Errorf("video %s track %s is empty: %w", videoID, track.LanguageCode, ErrNoTranscript)
	}
	return text, nil
}

func (c *Client) get(ctx context.Context, videoID, url string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, &Error{VideoID: videoID, Message: "failed to create request", Cause: err}
	}
	req.Header.Set("User-Agent", c.userAgent)
	req.Header.Set("Accept-Language", "zh-TW,zh;q=0.9,en;q=0.8")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, &Error{VideoID: videoID, Message: "HTTP request failed", Cause: err}
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return nil, &Error{VideoID: videoID, Message: fmt.Sprintf("HTTP status %d from %s", resp.StatusCode, url)}
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &Error{VideoID: videoID, Message: "failed to read response body", Cause: err}
	}
	return body, nil
}

// findPlayerScript returns the inline script that carries the player
// response, or "" when the page has none.
func findPlayerScript(html []byte) string {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(string(html)))
	if err != nil {
		return ""
	}
	var script string
	doc.Find("script").EachWithBreak(func(_ int, s *goquery.Selection) bool {
		text := s.Text()
		if strings.Contains(text, `"captionTracks"`) {
			script = text
			return false
		}
		return true
	})
	return script
}

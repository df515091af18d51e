// Package browsercap drives a headless browser to play a YouTube video and
// captures the audio stream URL from the player's own network traffic. It is
// the last-ditch acquisition path for videos the regular downloader cannot
// reach, typically because of bot checks.
package browsercap

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/chromedp"
)

// DefaultTimeout bounds the whole browser session: navigation, playback
// start, and stream detection.
const DefaultTimeout = 90 * time.Second

// Options configures the capture session.
type Options struct {
	Timeout    time.Duration
	UserAgent  string
	ChromePath string
}

// Error represents a capture failure.
type Error struct {
	Message string
	Cause   error
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("browser capture failed: %s: %v", e.Message, e.Cause)
	}
	return fmt.Sprintf("browser capture failed: %s", e.Message)
}

func (e *Error) Unwrap() error {
	return e.Cause
}

// Capturer runs headless browser sessions against YouTube watch pages.
type Capturer struct {
	opts Options
}

func New(opts Options) *Capturer {
	if opts.Timeout <= 0 {
		opts.Timeout = DefaultTimeout
	}
	return &Capturer{opts: opts}
}

// CaptureAudio loads the watch page, starts playback, waits for the player to
// request an audio stream from googlevideo.com, and downloads that stream
// into outputDir. Returns the saved file's path.
func (c *Capturer) CaptureAudio(ctx context.Context, videoURL, outputDir string) (string, error) {
	allocOpts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.Flag("headless", true),
		chromedp.Flag("disable-gpu", true),
		chromedp.Flag("no-sandbox", true),
		chromedp.Flag("disable-dev-shm-usage", true),
		chromedp.Flag("mute-audio", true),
		chromedp.Flag("autoplay-policy", "no-user-gesture-required"),
	)
	if c.opts.UserAgent != "" {
		allocOpts = append(allocOpts, chromedp.UserAgent(c.opts.UserAgent))
	}
	if c.opts.ChromePath != "" {
		allocOpts = append(allocOpts, chromedp.ExecPath(c.opts.ChromePath))
	}

	allocCtx, cancelAlloc := chromedp.NewExecAllocator(ctx, allocOpts...)
	defer cancelAlloc()

	browserCtx, cancelBrowser := chromedp.NewContext(allocCtx)
	defer cancelBrowser()

	browserCtx, cancelTimeout := context.WithTimeout(browserCtx, c.opts.Timeout)
	defer cancelTimeout()

	// The player requests media in ranged chunks; the first audio request is
	// enough, since dropping the range parameter yields the full stream.
	streamCh := make(chan string, 1)
	chromedp.ListenTarget(browserCtx, func(ev interface{}) {
		if e, ok := ev.(*network.EventRequestWillBeSent); ok {
			if isAudioStreamURL(e.Request.URL) {
				select {
				case streamCh <- e.Request.URL:
				default:
				}
			}
		}
	})

	err := chromedp.Run(browserCtx,
		network.Enable(),
		chromedp.Navigate(videoURL),
		chromedp.WaitReady("body"),
		// Kick playback if autoplay didn't; ignore failure since the button
		// may not exist when the video is already playing.
		chromedp.ActionFunc(func(ctx context.Context) error {
			clickCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
			defer cancel()
			_ = chromedp.Click(`.ytp-large-play-button`, chromedp.NodeVisible).Do(clickCtx)
			return nil
		}),
	)
	if err != nil {
		return "", &Error{Message: "browser session failed", Cause: err}
	}

	select {
	case streamURL := <-streamCh:
		// Download on the caller's context; the browser session is done.
		return c.download(ctx, streamURL, outputDir)
	case <-browserCtx.Done():
		return "", &Error{Message: "no audio stream observed before timeout", Cause: browserCtx.Err()}
	}
}

// download fetches the full audio stream and writes it next to the other
// job artifacts.
func (c *Capturer) download(ctx context.Context, streamURL, outputDir string) (string, error) {
	fullURL, mimeType := fullStreamURL(streamURL)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, fullURL, nil)
	if err != nil {
		return "", &Error{Message: "failed to build stream request", Cause: err}
	}
	if c.opts.UserAgent != "" {
		req.Header.Set("User-Agent", c.opts.UserAgent)
	}

	client := &http.Client{Timeout: 10 * time.Minute}
	resp, err := client.Do(req)
	if err != nil {
		return "", &Error{Message: "stream download failed", Cause: err}
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusPartialContent {
		return "", &Error{Message: fmt.Sprintf("stream download returned HTTP %d", resp.StatusCode)}
	}

	if err := os.MkdirAll(outputDir, 0o755); err != nil {
		return "", &Error{Message: "failed to create output directory", Cause: err}
	}
	outPath := filepath.Join(outputDir, "capture"+extForMime(mimeType))
	f, err := os.Create(outPath)
	if err != nil {
		return "", &Error{Message: "failed to create output file", Cause: err}
	}
	defer func() { _ = f.Close() }()

	n, err := io.Copy(f, resp.Body)
	if err != nil {
		return "", &Error{Message: "failed to write audio stream", Cause: err}
	}
	if n == 0 {
		return "", &Error{Message: "audio stream was empty"}
	}
	return outPath, nil
}

// isAudioStreamURL matches the player's media requests for audio content.
func isAudioStreamURL(raw string) bool {
	u, err := url.Parse(raw)
	if err != nil {
		return false
	}
	if !strings.Contains(u.Host, "googlevideo.com") || !strings.Contains(u.Path, "videoplayback") {
		return false
	}
	return strings.HasPrefix(u.Query().Get("mime"), "audio/")
}

// fullStreamURL strips the range parameter so the server returns the whole
// stream instead of the chunk the player asked for. Also reports the
// stream's MIME type.
func fullStreamURL(raw string) (string, string) {
	u, err := url.Parse(raw)
	if err != nil {
		return raw, ""
	}
	q := u.Query()
	mimeType := q.Get("mime")
	q.Del("range")
	q.Del("rn")
	q.Del("rbuf")
	u.RawQuery = q.Encode()
	return u.String(), mimeType
}

func extForMime(mimeType string) string {
	switch mimeType {
	case "audio/mp4":
		return ".m4a"
	case "audio/webm":
		return ".webm"
	case "audio/mpeg":
		return ".mp3"
	default:
		return ".bin"
	}
}

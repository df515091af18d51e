package video

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"sort"
	"strings"
)

// Options tunes the yt-dlp invocation. Every field is optional; zero values
// produce a plain download.
type Options struct {
	BinaryPath         string // defaults to "yt-dlp"
	FFmpegPath         string // defaults to "ffmpeg"
	UserAgent          string
	ProxyURL           string
	CookiesPath        string
	CookiesFromBrowser string
	PlayerClient       string // e.g. "web_safari", "android", "tv"
	POToken            string // proof-of-origin token for gated streams
	VisitorData        string
}

// Metadata is the subset of yt-dlp's video JSON that the pipeline cares about.
type Metadata struct {
	ID              string  `json:"id"`
	Title           string  `json:"title"`
	Channel         string  `json:"channel"`
	Uploader        string  `json:"uploader"`
	DurationSeconds float64 `json:"duration"`
	UploadDate      string  `json:"upload_date"`
	Description     string  `json:"description"`
}

// Client wraps the yt-dlp and ffmpeg binaries.
type Client struct {
	opts Options
}

func NewClient(opts Options) *Client {
	if opts.BinaryPath == "" {
		opts.BinaryPath = "yt-dlp"
	}
	if opts.FFmpegPath == "" {
		opts.FFmpegPath = "ffmpeg"
	}
	return &Client{opts: opts}
}

// CheckDependencies verifies that the external binaries are on PATH.
func (c *Client) CheckDependencies() error {
	if _, err := exec.LookPath(c.opts.BinaryPath); err != nil {
		return fmt.Errorf("missing dependency: yt-dlp is not installed or not on PATH: %w", err)
	}
	if _, err := exec.LookPath(c.opts.FFmpegPath); err != nil {
		return fmt.Errorf("missing dependency: ffmpeg is not installed or not on PATH: %w", err)
	}
	return nil
}

// FetchMetadata reads the video's title, channel, and duration without
// downloading anything.
func (c *Client) FetchMetadata(ctx context.Context, videoURL string) (*Metadata, error) {
	if strings.TrimSpace(videoURL) == "" {
		return nil, &ProbeError{Message: "video URL is required"}
	}

	args := []string{"--dump-json", "--skip-download", "--no-playlist"}
	args = c.appendCommonArgs(args)
	args = append(args, videoURL)

	cmd := exec.CommandContext(ctx, c.opts.BinaryPath, args...)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		return nil, &ProbeError{
			Message: fmt.Sprintf("yt-dlp metadata fetch failed: %s", tail(stderr.String(), 500)),
			Cause:   err,
		}
	}

	var meta Metadata
	if err := json.Unmarshal(stdout.Bytes(), &meta); err != nil {
		return nil, &ProbeError{Message: "failed to parse yt-dlp metadata JSON", Cause: err}
	}
	if meta.Channel == "" {
		meta.Channel = meta.Uploader
	}
	return &meta, nil
}

// DownloadAudio fetches the best audio-only stream into outputDir and returns
// the path of the downloaded file. A video with no audio formats yields
// ErrNoAudioStream; any other extractor failure yields a DownloadError, which
// the caller treats as the cue to try browser capture instead.
func (c *Client) DownloadAudio(ctx context.Context, videoURL, outputDir string) (string, error) {
	if strings.TrimSpace(videoURL) == "" {
		return "", &DownloadError{Message: "video URL is required"}
	}
	if err := os.MkdirAll(outputDir, 0o755); err != nil {
		return "", &DownloadError{Message: fmt.Sprintf("failed to create output directory %s", outputDir), Cause: err}
	}

	args := []string{
		"--no-playlist",
		"--no-progress",
		"-f", "bestaudio[ext=m4a]/bestaudio/best",
		"-P", outputDir,
		"-o", "audio.%(ext)s",
	}
	args = c.appendCommonArgs(args)
	args = append(args, videoURL)

	cmd := exec.CommandContext(ctx, c.opts.BinaryPath, args...)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		errText := stderr.String()
		if isNoFormatError(errText) {
			return "", fmt.Errorf("%w: %s", ErrNoAudioStream, tail(errText, 200))
		}
		return "", &DownloadError{
			Message: "yt-dlp audio download failed",
			Stderr:  tail(errText, 500),
			Cause:   err,
		}
	}

	// yt-dlp picks the extension, so glob for whatever it produced.
	matches, err := filepath.Glob(filepath.Join(outputDir, "audio.*"))
	if err != nil || len(matches) == 0 {
		return "", &DownloadError{Message: "yt-dlp reported success but produced no audio file", Cause: err}
	}
	sort.Strings(matches)
	return matches[0], nil
}

// appendCommonArgs attaches the session options shared by every invocation.
func (c *Client) appendCommonArgs(args []string) []string {
	if c.opts.UserAgent != "" {
		args = append(args, "--user-agent", c.opts.UserAgent)
	}
	if c.opts.ProxyURL != "" {
		args = append(args, "--proxy", c.opts.ProxyURL)
	}
	if c.opts.CookiesPath != "" {
		args = append(args, "--cookies", c.opts.CookiesPath)
	}
	if c.opts.CookiesFromBrowser != "" {
		args = append(args, "--cookies-from-browser", c.opts.CookiesFromBrowser)
	}
	if extractorArgs := c.extractorArgs(); extractorArgs != "" {
		args = append(args, "--extractor-args", extractorArgs)
	}
	return args
}

// extractorArgs builds the youtube-specific extractor tuning string, e.g.
// "youtube:player_client=web_safari;po_token=web.gvs+TOKEN".
func (c *Client) extractorArgs() string {
	var parts []string
	if c.opts.PlayerClient != "" {
		parts = append(parts, "player_client="+c.opts.PlayerClient)
	}
	if c.opts.POToken != "" {
		client := c.opts.PlayerClient
		if client == "" {
			client = "web"
		}
		parts = append(parts, fmt.Sprintf("po_token=%s.gvs+%s", client, c.opts.POToken))
	}
	if c.opts.VisitorData != "" {
		parts = append(parts, "visitor_data="+c.opts.VisitorData)
	}
	if len(parts) == 0 {
		return ""
	}
	return "youtube:" + strings.Join(parts, ";")
}

// isNoFormatError reports whether the stderr text means the video simply has
// no matching audio format, as opposed to the extractor breaking.
func isNoFormatError(stderr string) bool {
	lower := strings.ToLower(stderr)
	return strings.Contains(lower, "requested format is not available") ||
		strings.Contains(lower, "no suitable formats") ||
		strings.Contains(lower, "no video formats found")
}

func tail(s string, n int) string {
	s = strings.TrimSpace(s)
	if len(s) <= n {
		return s
	}
	return "..." + s[len(s)-n:]
}

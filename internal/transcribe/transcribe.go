// Package transcribe turns audio files into text through an OpenAI-compatible
// speech-to-text endpoint.
package transcribe

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
)

const (
	// DefaultBaseURL is the OpenAI API root.
	DefaultBaseURL = "https://api.openai.com/v1"

	// DefaultModel is the speech-to-text model.
	DefaultModel = "whisper-1"

	// MaxUploadBytes is the service's upload ceiling. Files above it must be
	// re-encoded or segmented before transcription. The service advertises
	// 25MB; staying at 24MB leaves headroom for the multipart envelope.
	MaxUploadBytes = 24 * 1024 * 1024
)

// Config holds the transcription service settings.
type Config struct {
	BaseURL     string
	APIKey      string
	Model       string
	HTTPTimeout time.Duration
}

// Error represents a transcription API failure.
type Error struct {
	Message    string
	StatusCode int
	Cause      error
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("transcription error: %s: %v", e.Message, e.Cause)
	}
	return fmt.Sprintf("transcription error: %s", e.Message)
}

func (e *Error) Unwrap() error {
	return e.Cause
}

// Result is a completed transcription.
type Result struct {
	Text            string
	DurationSeconds float64
}

// Client calls the speech-to-text endpoint.
type Client struct {
	cfg        Config
	httpClient *http.Client
}

// NewClient creates a transcription client. APIKey is required; everything
// else falls back to defaults.
func NewClient(cfg Config) *Client {
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	if cfg.Model == "" {
		cfg.Model = DefaultModel
	}
	timeout := cfg.HTTPTimeout
	if timeout <= 0 {
		timeout = 5 * time.Minute
	}
	return &Client{
		cfg:        cfg,
		httpClient: &http.Client{Timeout: timeout},
	}
}

type verboseResponse struct {
	Task     string  `json:"task"`
	Language string  `json:"language"`
	Duration float64 `json:"duration"`
	Text     string  `json:"text"`
}

// TranscribeFile uploads one audio file and returns its transcript. Transient
// failures (network errors, 5xx) are retried with exponential backoff; client
// errors such as a bad key fail immediately.
func (c *Client) TranscribeFile(ctx context.Context, path string) (*Result, error) {
	audio, err := os.ReadFile(path)
	if err != nil {
		return nil, &Error{Message: fmt.Sprintf("failed to read audio file %s", path), Cause: err}
	}

	endpoint := strings.TrimRight(c.cfg.BaseURL, "/") + "/audio/transcriptions"

	var parsed verboseResponse
	var lastErr error
	op := func() error {
		// The multipart body is consumed per attempt, so rebuild it each time.
		body, contentType, err := c.buildForm(filepath.Base(path), audio)
		if err != nil {
			return backoff.Permanent(err)
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, body)
		if err != nil {
			return backoff.Permanent(err)
		}
		req.Header.Set("Content-Type", contentType)
		req.Header.Set("Authorization", "Bearer "+c.cfg.APIKey)

		resp, err := c.httpClient.Do(req)
		if err != nil {
			lastErr = err
			return err
		}
		defer func() { _ = resp.Body.Close() }()

		respBody, err := io.ReadAll(resp.Body)
		if err != nil {
			lastErr = err
			return err
		}
		if resp.StatusCode >= 500 || resp.StatusCode == http.StatusTooManyRequests {
			lastErr = &Error{
				Message:    fmt.Sprintf("transient API failure: %s", excerpt(respBody)),
				StatusCode: resp.StatusCode,
			}
			return lastErr
		}
		if resp.StatusCode != http.StatusOK {
			lastErr = &Error{
				Message:    fmt.Sprintf("API rejected request: %s", excerpt(respBody)),
				StatusCode: resp.StatusCode,
			}
			return backoff.Permanent(lastErr)
		}
		if err := json.Unmarshal(respBody, &parsed); err != nil {
			lastErr = &Error{Message: "failed to decode transcription response", Cause: err}
			return backoff.Permanent(lastErr)
		}
		return nil
	}

	bo := backoff.NewExponentialBackOff()
	bo.MaxElapsedTime = 2 * time.Minute
	if err := backoff.Retry(op, backoff.WithContext(bo, ctx)); err != nil {
		if lastErr != nil {
			return nil, lastErr
		}
		return nil, err
	}

	return &Result{Text: parsed.Text, DurationSeconds: parsed.Duration}, nil
}

// TranscribeChunks transcribes the chunks of a segmented recording in order
// and joins their text with single spaces.
func (c *Client) TranscribeChunks(ctx context.Context, paths []string) (*Result, error) {
	var sb strings.Builder
	var total float64
	for i, path := range paths {
		res, err := c.TranscribeFile(ctx, path)
		if err != nil {
			return nil, &Error{Message: fmt.Sprintf("chunk %d/%d failed", i+1, len(paths)), Cause: err}
		}
		if i > 0 {
			sb.WriteString(" ")
		}
		sb.WriteString(res.Text)
		total += res.DurationSeconds
	}
	return &Result{Text: sb.String(), DurationSeconds: total}, nil
}

func (c *Client) buildForm(filename string, audio []byte) (*bytes.Buffer, string, error) {
	var b bytes.Buffer
	w := multipart.NewWriter(&b)
	part, err := w.CreateFormFile("file", filename)
	if err != nil {
		return nil, "", err
	}
	if _, err := part.Write(audio); err != nil {
		return nil, "", err
	}
	if err := w.WriteField("model", c.cfg.Model); err != nil {
		return nil, "", err
	}
	if err := w.WriteField("response_format", "verbose_json"); err != nil {
		return nil, "", err
	}
	if err := w.Close(); err != nil {
		return nil, "", err
	}
	return &b, w.FormDataContentType(), nil
}

func excerpt(body []byte) string {
	s := strings.TrimSpace(string(body))
	if len(s) > 300 {
		return s[:300] + "..."
	}
	return s
}

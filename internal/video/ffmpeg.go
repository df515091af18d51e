package video

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"sort"
)

// SegmentSeconds is the chunk length used when an audio file must be split
// for transcription. 20 minutes keeps each chunk comfortably under the
// transcription upload limit after re-encoding.
const SegmentSeconds = 1200

// CompressAudio re-encodes src into a mono 8 kbit/s file at dst. This is the
// degradation step for audio that exceeds the transcription size ceiling.
func (c *Client) CompressAudio(ctx context.Context, src, dst string) error {
	args := []string{
		"-i", src,
		"-vn",
		"-ac", "1",
		"-b:a", "8k",
		"-y", dst,
	}
	if err := c.runFFmpeg(ctx, args); err != nil {
		return err
	}
	if _, err := os.Stat(dst); err != nil {
		return &DownloadError{Message: fmt.Sprintf("ffmpeg produced no output at %s", dst), Cause: err}
	}
	return nil
}

// SegmentAudio splits src into fixed-length chunks in dir without
// re-encoding, and returns the chunk paths in playback order.
func (c *Client) SegmentAudio(ctx context.Context, src, dir string) ([]string, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, &DownloadError{Message: fmt.Sprintf("failed to create segment directory %s", dir), Cause: err}
	}
	pattern := filepath.Join(dir, "chunk_%03d"+filepath.Ext(src))
	args := []string{
		"-i", src,
		"-f", "segment",
		"-segment_time", fmt.Sprintf("%d", SegmentSeconds),
		"-c", "copy",
		"-y", pattern,
	}
	if err := c.runFFmpeg(ctx, args); err != nil {
		return nil, err
	}

	matches, err := filepath.Glob(filepath.Join(dir, "chunk_*"+filepath.Ext(src)))
	if err != nil || len(matches) == 0 {
		return nil, &DownloadError{Message: "ffmpeg segmentation produced no chunks", Cause: err}
	}
	sort.Strings(matches)
	return matches, nil
}

func (c *Client) runFFmpeg(ctx context.Context, args []string) error {
	if _, err := exec.LookPath(c.opts.FFmpegPath); err != nil {
		return &DownloadError{Message: "ffmpeg not found in PATH", Cause: err}
	}

	cmd := exec.CommandContext(ctx, c.opts.FFmpegPath, args...)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		return &DownloadError{
			Message: "ffmpeg failed",
			Stderr:  tail(stderr.String(), 500),
			Cause:   err,
		}
	}
	return nil
}

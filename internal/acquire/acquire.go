// Package acquire obtains analyzable content for a video through a fixed
// priority chain of tiers: direct video analysis, captions, audio download
// plus transcription, and finally browser capture. Each tier reports failure
// through typed errors, and the selector advances on the error kind rather
// than on message text.
package acquire

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/bangdoll/tubenotes/internal/captions"
	"github.com/bangdoll/tubenotes/internal/llm"
	"github.com/bangdoll/tubenotes/internal/progress"
	"github.com/bangdoll/tubenotes/internal/retry"
	"github.com/bangdoll/tubenotes/internal/transcribe"
	"github.com/bangdoll/tubenotes/internal/video"
)

// Tier identifies one acquisition strategy.
type Tier string

const (
	TierDirectVideo Tier = "direct_video"
	TierAudioUpload Tier = "audio_upload"
	TierCaptions    Tier = "captions"
	TierAudioSTT    Tier = "audio_stt"
	TierBrowser     Tier = "browser_capture"
)

// MediaAnalyzer is the slice of the AI client the direct-analysis tiers use.
type MediaAnalyzer interface {
	AnalyzeVideo(ctx context.Context, prompt, videoURL string) (string, error)
	AnalyzeAudioFile(ctx context.Context, prompt, audioPath string) (string, error)
}

// CaptionFetcher returns transcript text for a video id, or
// captions.ErrNoTranscript when none exists.
type CaptionFetcher interface {
	Fetch(ctx context.Context, videoID string) (string, error)
}

// AudioSource downloads and reshapes audio through the extractor toolchain.
type AudioSource interface {
	DownloadAudio(ctx context.Context, videoURL, outputDir string) (string, error)
	CompressAudio(ctx context.Context, src, dst string) error
	SegmentAudio(ctx context.Context, src, dir string) ([]string, error)
}

// StreamCapturer is the browser-automation fallback.
type StreamCapturer interface {
	CaptureAudio(ctx context.Context, videoURL, outputDir string) (string, error)
}

// Transcriber converts audio files to text.
type Transcriber interface {
	TranscribeFile(ctx context.Context, path string) (*transcribe.Result, error)
	TranscribeChunks(ctx context.Context, paths []string) (*transcribe.Result, error)
}

// Request describes one acquisition run. WorkDir receives downloaded and
// re-encoded audio and must be job-private.
type Request struct {
	VideoID string
	WorkDir string

	// DirectPrompt drives the tier-1 video-understanding call; AudioPrompt
	// drives the audio-upload degradation. Both empty disables tier 1.
	DirectPrompt string
	AudioPrompt  string

	Reporter progress.Reporter
}

// Result is the outcome of a successful acquisition. Exactly one of Note or
// Transcript is set: direct-analysis tiers produce finished note text, the
// transcript tiers produce raw text for a later analysis pass.
type Result struct {
	Tier       Tier
	Note       string
	Transcript string

	// STTDurationSeconds is the transcribed audio length, for cost
	// accounting. Zero when no transcription ran.
	STTDurationSeconds float64
}

// Selector runs the tier chain. Nil collaborators disable their tiers:
// Analyzer nil skips direct analysis, Browser nil skips browser capture.
type Selector struct {
	Analyzer MediaAnalyzer
	Captions CaptionFetcher
	Audio    AudioSource
	Browser  StreamCapturer
	STT      Transcriber

	Retry retry.Config
	Log   *logrus.Entry
}

// NewSelector wires a selector with default retry policy.
func NewSelector(analyzer MediaAnalyzer, caps CaptionFetcher, audio AudioSource, browser StreamCapturer, stt Transcriber, log *logrus.Entry) *Selector {
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}
	return &Selector{
		Analyzer: analyzer,
		Captions: caps,
		Audio:    audio,
		Browser:  browser,
		STT:      stt,
		Retry:    retry.DefaultConfig(),
		Log:      log,
	}
}

// Run tries the tiers in priority order and returns the first success. Every
// failed attempt is recorded; quota exhaustion aborts immediately so billing
// information reaches the caller intact.
func (s *Selector) Run(ctx context.Context, req Request) (*Result, error) {
	rep := req.Reporter
	if rep == nil {
		rep = progress.Nop{}
	}

	var attempts []Attempt
	record := func(tier Tier, start time.Time, err error) {
		elapsed := time.Since(start)
		attempts = append(attempts, Attempt{Tier: tier, Err: err, Elapsed: elapsed})
		s.Log.WithFields(logrus.Fields{
			"video_id": req.VideoID,
			"tier":     string(tier),
			"elapsed":  elapsed.Round(time.Millisecond).String(),
		}).WithError(err).Warn("acquisition tier failed")
	}

	videoURL := video.WatchURL(req.VideoID)

	// Tier 1: direct video understanding, no download.
	if s.Analyzer != nil && req.DirectPrompt != "" {
		rep.Logf("Trying direct video analysis...")
		start := time.Now()
		note, err := s.directVideo(ctx, req.DirectPrompt, videoURL)
		if err == nil {
			rep.Logf("Direct video analysis succeeded")
			return &Result{Tier: TierDirectVideo, Note: note}, nil
		}
		if llm.IsQuotaExhausted(err) {
			return nil, err
		}
		if llm.IsInputTooLarge(err) && req.AudioPrompt != "" && s.Audio != nil {
			record(TierDirectVideo, start, err)
			rep.Logf("Video too large for direct analysis, degrading to audio upload...")
			res, aerr := s.audioUpload(ctx, req, videoURL)
			if aerr == nil {
				rep.Logf("Audio-upload analysis succeeded")
				return res, nil
			}
			if llm.IsQuotaExhausted(aerr) {
				return nil, aerr
			}
			record(TierAudioUpload, start, aerr)
		} else {
			record(TierDirectVideo, start, err)
		}
	}

	// Tier 2: captions. Missing captions are a negative response, not an
	// error; hard failures are logged and still advance the chain.
	if s.Captions != nil {
		rep.Logf("Fetching captions...")
		start := time.Now()
		text, err := s.Captions.Fetch(ctx, req.VideoID)
		if err == nil {
			rep.Logf("Captions found (%d chars)", len(text))
			return &Result{Tier: TierCaptions, Transcript: text}, nil
		}
		if errors.Is(err, captions.ErrNoTranscript) {
			rep.Logf("No captions available")
		} else {
			rep.Logf("Captions fetch failed: %v", err)
		}
		record(TierCaptions, start, err)
	}

	// Tier 3: audio download + speech-to-text. Only an extractor failure
	// escalates to browser capture; a video with no audio stream does not.
	downloaderRaised := false
	if s.Audio != nil && s.STT != nil {
		rep.Logf("Downloading audio track...")
		start := time.Now()
		audioPath, err := s.Audio.DownloadAudio(ctx, videoURL, req.WorkDir)
		if err != nil {
			if !errors.Is(err, video.ErrNoAudioStream) {
				downloaderRaised = true
			}
			record(TierAudioSTT, start, err)
		} else {
			res, terr := s.transcribeWithLimit(ctx, audioPath, req.WorkDir, rep)
			if terr == nil {
				return &Result{Tier: TierAudioSTT, Transcript: res.Text, STTDurationSeconds: res.DurationSeconds}, nil
			}
			record(TierAudioSTT, start, terr)
		}
	}

	// Tier 4: browser capture, only after a downloader exception.
	if downloaderRaised && s.Browser != nil && s.STT != nil {
		rep.Logf("Extractor blocked, capturing audio through browser...")
		start := time.Now()
		capturedPath, err := s.Browser.CaptureAudio(ctx, videoURL, req.WorkDir)
		if err != nil {
			record(TierBrowser, start, err)
		} else {
			res, terr := s.transcribeWithLimit(ctx, capturedPath, req.WorkDir, rep)
			if terr == nil {
				return &Result{Tier: TierBrowser, Transcript: res.Text, STTDurationSeconds: res.DurationSeconds}, nil
			}
			record(TierBrowser, start, terr)
		}
	}

	return nil, &ExhaustedError{VideoID: req.VideoID, Attempts: attempts}
}

// directVideo submits the watch URL to the video-understanding model, with
// rate-limit retries.
func (s *Selector) directVideo(ctx context.Context, prompt, videoURL string) (string, error) {
	var note string
	err := retry.Do(ctx, s.Retry, func(ctx context.Context) error {
		out, err := s.Analyzer.AnalyzeVideo(ctx, prompt, videoURL)
		if err != nil {
			return err
		}
		note = out
		return nil
	})
	return note, err
}

// audioUpload is the degradation path for long videos: download the audio
// track and hand the file to the same AI backend.
func (s *Selector) audioUpload(ctx context.Context, req Request, videoURL string) (*Result, error) {
	audioPath, err := s.Audio.DownloadAudio(ctx, videoURL, req.WorkDir)
	if err != nil {
		return nil, err
	}

	var note string
	err = retry.Do(ctx, s.Retry, func(ctx context.Context) error {
		out, aerr := s.Analyzer.AnalyzeAudioFile(ctx, req.AudioPrompt, audioPath)
		if aerr != nil {
			return aerr
		}
		note = out
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &Result{Tier: TierAudioUpload, Note: note}, nil
}

// transcribeWithLimit sends audio to speech-to-text, re-encoding to mono 8k
// when the file exceeds the upload ceiling and segmenting when even the
// re-encode is oversized.
func (s *Selector) transcribeWithLimit(ctx context.Context, audioPath, workDir string, rep progress.Reporter) (*transcribe.Result, error) {
	info, err := os.Stat(audioPath)
	if err != nil {
		return nil, fmt.Errorf("stat audio file: %w", err)
	}

	if info.Size() <= transcribe.MaxUploadBytes {
		rep.Logf("Transcribing audio (%.1f MB)...", mb(info.Size()))
		return s.STT.TranscribeFile(ctx, audioPath)
	}

	rep.Logf("Audio is %.1f MB, above the %.0f MB ceiling; re-encoding to mono 8k...", mb(info.Size()), mb(transcribe.MaxUploadBytes))
	compressed := filepath.Join(workDir, "compressed.mp3")
	if err := s.Audio.CompressAudio(ctx, audioPath, compressed); err != nil {
		return nil, err
	}

	cinfo, err := os.Stat(compressed)
	if err != nil {
		return nil, fmt.Errorf("stat re-encoded audio: %w", err)
	}
	if cinfo.Size() <= transcribe.MaxUploadBytes {
		rep.Logf("Transcribing re-encoded audio (%.1f MB)...", mb(cinfo.Size()))
		return s.STT.TranscribeFile(ctx, compressed)
	}

	rep.Logf("Still %.1f MB after re-encoding; splitting into %d-second segments...", mb(cinfo.Size()), video.SegmentSeconds)
	chunks, err := s.Audio.SegmentAudio(ctx, compressed, filepath.Join(workDir, "segments"))
	if err != nil {
		return nil, err
	}
	rep.Logf("Transcribing %d segments...", len(chunks))
	return s.STT.TranscribeChunks(ctx, chunks)
}

func mb(n int64) float64 {
	return float64(n) / (1024 * 1024)
}

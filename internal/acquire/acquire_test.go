package acquire

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/bangdoll/tubenotes/internal/captions"
	"github.com/bangdoll/tubenotes/internal/llm"
	"github.com/bangdoll/tubenotes/internal/retry"
	"github.com/bangdoll/tubenotes/internal/transcribe"
	"github.com/bangdoll/tubenotes/internal/video"
)

type fakeAnalyzer struct {
	videoErrs  []error
	videoNote  string
	videoCalls int

	audioErr   error
	audioNote  string
	audioCalls int
	audioPath  string
}

func (f *fakeAnalyzer) AnalyzeVideo(ctx context.Context, prompt, videoURL string) (string, error) {
	f.videoCalls++
	if len(f.videoErrs) > 0 {
		err := f.videoErrs[0]
		f.videoErrs = f.videoErrs[1:]
		if err != nil {
			return "", err
		}
	}
	return f.videoNote, nil
}

func (f *fakeAnalyzer) AnalyzeAudioFile(ctx context.Context, prompt, audioPath string) (string, error) {
	f.audioCalls++
	f.audioPath = audioPath
	if f.audioErr != nil {
		return "", f.audioErr
	}
	return f.audioNote, nil
}

type fakeCaptions struct {
	text  string
	err   error
	calls int
}

func (f *fakeCaptions) Fetch(ctx context.Context, videoID string) (string, error) {
	f.calls++
	if f.err != nil {
		return "", f.err
	}
	return f.text, nil
}

type fakeAudio struct {
	downloadSize  int64
	downloadErr   error
	downloadCalls int

	compressedSize int64
	compressErr    error
	compressCalls  int

	segmentCount int
	segmentErr   error
	segmentCalls int
}

func (f *fakeAudio) DownloadAudio(ctx context.Context, videoURL, outputDir string) (string, error) {
	f.downloadCalls++
	if f.downloadErr != nil {
		return "", f.downloadErr
	}
	path := filepath.Join(outputDir, "audio.m4a")
	if err := writeSized(path, f.downloadSize); err != nil {
		return "", err
	}
	return path, nil
}

func (f *fakeAudio) CompressAudio(ctx context.Context, src, dst string) error {
	f.compressCalls++
	if f.compressErr != nil {
		return f.compressErr
	}
	return writeSized(dst, f.compressedSize)
}

func (f *fakeAudio) SegmentAudio(ctx context.Context, src, dir string) ([]string, error) {
	f.segmentCalls++
	if f.segmentErr != nil {
		return nil, f.segmentErr
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, err
	}
	var paths []string
	for i := 0; i < f.segmentCount; i++ {
		p := filepath.Join(dir, "chunk_"+string(rune('a'+i))+".mp3")
		if err := writeSized(p, 10); err != nil {
			return nil, err
		}
		paths = append(paths, p)
	}
	return paths, nil
}

type fakeBrowser struct {
	err   error
	calls int
}

func (f *fakeBrowser) CaptureAudio(ctx context.Context, videoURL, outputDir string) (string, error) {
	f.calls++
	if f.err != nil {
		return "", f.err
	}
	path := filepath.Join(outputDir, "capture.webm")
	if err := writeSized(path, 1024); err != nil {
		return "", err
	}
	return path, nil
}

type fakeSTT struct {
	fileResult *transcribe.Result
	fileErr    error
	filePaths  []string

	chunkResult *transcribe.Result
	chunkErr    error
	chunkPaths  []string
}

func (f *fakeSTT) TranscribeFile(ctx context.Context, path string) (*transcribe.Result, error) {
	f.filePaths = append(f.filePaths, path)
	if f.fileErr != nil {
		return nil, f.fileErr
	}
	return f.fileResult, nil
}

func (f *fakeSTT) TranscribeChunks(ctx context.Context, paths []string) (*transcribe.Result, error) {
	f.chunkPaths = paths
	if f.chunkErr != nil {
		return nil, f.chunkErr
	}
	return f.chunkResult, nil
}

func writeSized(path string, size int64) error {
	return os.WriteFile(path, make([]byte, size), 0o644)
}

func newTestSelector(t *testing.T, analyzer MediaAnalyzer, caps CaptionFetcher, audio AudioSource, browser StreamCapturer, stt Transcriber) *Selector {
	t.Helper()
	log := logrus.New()
	log.SetOutput(os.Stderr)
	log.SetLevel(logrus.ErrorLevel)
	s := NewSelector(analyzer, caps, audio, browser, stt, logrus.NewEntry(log))
	s.Retry = retry.Config{MaxAttempts: 3, BaseDelay: time.Millisecond}
	return s
}

func baseRequest(t *testing.T) Request {
	t.Helper()
	return Request{
		VideoID:      "dQw4w9WgXcQ",
		WorkDir:      t.TempDir(),
		DirectPrompt: "analyze this video",
		AudioPrompt:  "analyze this audio",
	}
}

func TestCaptionsShortCircuit(t *testing.T) {
	caps := &fakeCaptions{text: "caption transcript text"}
	audio := &fakeAudio{downloadSize: 1024}
	stt := &fakeSTT{fileResult: &transcribe.Result{Text: "should not be used"}}
	s := newTestSelector(t, nil, caps, audio, nil, stt)

	req := baseRequest(t)
	req.DirectPrompt = ""

	res, err := s.Run(context.Background(), req)
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if res.Tier != TierCaptions {
		t.Errorf("tier = %s, want %s", res.Tier, TierCaptions)
	}
	if res.Transcript != "caption transcript text" {
		t.Errorf("transcript = %q", res.Transcript)
	}
	if audio.downloadCalls != 0 {
		t.Error("audio tier must not run when captions succeed")
	}
	if len(stt.filePaths) != 0 {
		t.Error("transcription must not run when captions succeed")
	}
}

func TestDirectVideoSuccess(t *testing.T) {
	analyzer := &fakeAnalyzer{videoNote: "# Note from video"}
	caps := &fakeCaptions{text: "unused"}
	s := newTestSelector(t, analyzer, caps, nil, nil, nil)

	res, err := s.Run(context.Background(), baseRequest(t))
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if res.Tier != TierDirectVideo {
		t.Errorf("tier = %s", res.Tier)
	}
	if res.Note != "# Note from video" {
		t.Errorf("note = %q", res.Note)
	}
	if caps.calls != 0 {
		t.Error("captions must not run when direct analysis succeeds")
	}
}

func TestDirectVideoRetriesRateLimit(t *testing.T) {
	analyzer := &fakeAnalyzer{
		videoErrs: []error{
			&llm.RateLimitError{Message: "429"},
			&llm.RateLimitError{Message: "429"},
			nil,
		},
		videoNote: "# Recovered",
	}
	s := newTestSelector(t, analyzer, nil, nil, nil, nil)

	res, err := s.Run(context.Background(), baseRequest(t))
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if analyzer.videoCalls != 3 {
		t.Errorf("expected 3 attempts, got %d", analyzer.videoCalls)
	}
	if res.Note != "# Recovered" {
		t.Errorf("note = %q", res.Note)
	}
}

func TestDirectVideoTooLargeFallsBackToAudioUpload(t *testing.T) {
	analyzer := &fakeAnalyzer{
		videoErrs: []error{&llm.InputTooLargeError{Message: "too many frames"}},
		audioNote: "# Note from audio upload",
	}
	caps := &fakeCaptions{text: "unused"}
	audio := &fakeAudio{downloadSize: 2048}
	s := newTestSelector(t, analyzer, caps, audio, nil, nil)

	res, err := s.Run(context.Background(), baseRequest(t))
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if res.Tier != TierAudioUpload {
		t.Errorf("tier = %s, want %s", res.Tier, TierAudioUpload)
	}
	if res.Note != "# Note from audio upload" {
		t.Errorf("note = %q", res.Note)
	}
	if audio.downloadCalls != 1 {
		t.Errorf("downloader calls = %d", audio.downloadCalls)
	}
	if analyzer.audioCalls != 1 {
		t.Errorf("audio analysis calls = %d", analyzer.audioCalls)
	}
	if caps.calls != 0 {
		t.Error("captions must not run when the degradation path succeeds")
	}
}

func TestQuotaExhaustionPropagates(t *testing.T) {
	analyzer := &fakeAnalyzer{
		videoErrs: []error{&llm.QuotaError{Message: "quota exceeded for project"}},
	}
	caps := &fakeCaptions{text: "unused"}
	s := newTestSelector(t, analyzer, caps, nil, nil, nil)

	_, err := s.Run(context.Background(), baseRequest(t))
	if !llm.IsQuotaExhausted(err) {
		t.Fatalf("expected quota error to propagate, got %v", err)
	}
	if caps.calls != 0 {
		t.Error("quota exhaustion must abort the chain immediately")
	}
}

func TestQuotaDuringAudioUploadPropagates(t *testing.T) {
	analyzer := &fakeAnalyzer{
		videoErrs: []error{&llm.InputTooLargeError{Message: "too large"}},
		audioErr:  &llm.QuotaError{Message: "billing hard limit reached"},
	}
	caps := &fakeCaptions{text: "unused"}
	audio := &fakeAudio{downloadSize: 2048}
	s := newTestSelector(t, analyzer, caps, audio, nil, nil)

	_, err := s.Run(context.Background(), baseRequest(t))
	if !llm.IsQuotaExhausted(err) {
		t.Fatalf("expected quota error, got %v", err)
	}
	if caps.calls != 0 {
		t.Error("quota exhaustion must abort the chain immediately")
	}
}

func TestDirectVideoGenericErrorAdvancesToCaptions(t *testing.T) {
	analyzer := &fakeAnalyzer{
		videoErrs: []error{&llm.APICallError{Message: "internal error"}},
	}
	caps := &fakeCaptions{text: "fallback captions"}
	s := newTestSelector(t, analyzer, caps, nil, nil, nil)

	res, err := s.Run(context.Background(), baseRequest(t))
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if res.Tier != TierCaptions {
		t.Errorf("tier = %s", res.Tier)
	}
}

func TestSmallAudioTranscribedDirectly(t *testing.T) {
	caps := &fakeCaptions{err: captions.ErrNoTranscript}
	audio := &fakeAudio{downloadSize: 10 * 1024 * 1024}
	stt := &fakeSTT{fileResult: &transcribe.Result{Text: "stt transcript", DurationSeconds: 300}}
	s := newTestSelector(t, nil, caps, audio, nil, stt)

	req := baseRequest(t)
	req.DirectPrompt = ""

	res, err := s.Run(context.Background(), req)
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if res.Tier != TierAudioSTT {
		t.Errorf("tier = %s", res.Tier)
	}
	if res.Transcript != "stt transcript" {
		t.Errorf("transcript = %q", res.Transcript)
	}
	if res.STTDurationSeconds != 300 {
		t.Errorf("duration = %v", res.STTDurationSeconds)
	}
	if audio.compressCalls != 0 {
		t.Error("10 MB audio must not be re-encoded")
	}
	if len(stt.filePaths) != 1 || filepath.Base(stt.filePaths[0]) != "audio.m4a" {
		t.Errorf("transcribed paths = %v", stt.filePaths)
	}
}

func TestOversizedAudioCompressedBeforeTranscription(t *testing.T) {
	caps := &fakeCaptions{err: captions.ErrNoTranscript}
	audio := &fakeAudio{
		downloadSize:   40 * 1024 * 1024,
		compressedSize: 5 * 1024 * 1024,
	}
	stt := &fakeSTT{fileResult: &transcribe.Result{Text: "compressed transcript"}}
	s := newTestSelector(t, nil, caps, audio, nil, stt)

	req := baseRequest(t)
	req.DirectPrompt = ""

	res, err := s.Run(context.Background(), req)
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if audio.compressCalls != 1 {
		t.Errorf("compress calls = %d", audio.compressCalls)
	}
	if audio.segmentCalls != 0 {
		t.Error("5 MB re-encode must not be segmented")
	}
	if len(stt.filePaths) != 1 || filepath.Base(stt.filePaths[0]) != "compressed.mp3" {
		t.Errorf("transcribed paths = %v", stt.filePaths)
	}
	if res.Transcript != "compressed transcript" {
		t.Errorf("transcript = %q", res.Transcript)
	}
}

func TestStillOversizedAudioSegmented(t *testing.T) {
	caps := &fakeCaptions{err: captions.ErrNoTranscript}
	audio := &fakeAudio{
		downloadSize:   40 * 1024 * 1024,
		compressedSize: 30 * 1024 * 1024,
		segmentCount:   3,
	}
	stt := &fakeSTT{chunkResult: &transcribe.Result{Text: "a b c", DurationSeconds: 3600}}
	s := newTestSelector(t, nil, caps, audio, nil, stt)

	req := baseRequest(t)
	req.DirectPrompt = ""

	res, err := s.Run(context.Background(), req)
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if audio.compressCalls != 1 || audio.segmentCalls != 1 {
		t.Errorf("compress=%d segment=%d", audio.compressCalls, audio.segmentCalls)
	}
	if len(stt.chunkPaths) != 3 {
		t.Errorf("chunk paths = %v", stt.chunkPaths)
	}
	if res.Transcript != "a b c" {
		t.Errorf("transcript = %q", res.Transcript)
	}
}

func TestDownloaderExceptionTriggersBrowserCapture(t *testing.T) {
	caps := &fakeCaptions{err: captions.ErrNoTranscript}
	audio := &fakeAudio{downloadErr: &video.DownloadError{Message: "bot check", Stderr: "Sign in to confirm"}}
	browser := &fakeBrowser{}
	stt := &fakeSTT{fileResult: &transcribe.Result{Text: "captured transcript"}}
	s := newTestSelector(t, nil, caps, audio, browser, stt)

	req := baseRequest(t)
	req.DirectPrompt = ""

	res, err := s.Run(context.Background(), req)
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if res.Tier != TierBrowser {
		t.Errorf("tier = %s", res.Tier)
	}
	if browser.calls != 1 {
		t.Errorf("browser calls = %d", browser.calls)
	}
	if res.Transcript != "captured transcript" {
		t.Errorf("transcript = %q", res.Transcript)
	}
}

func TestNoAudioStreamDoesNotTriggerBrowser(t *testing.T) {
	caps := &fakeCaptions{err: captions.ErrNoTranscript}
	audio := &fakeAudio{downloadErr: video.ErrNoAudioStream}
	browser := &fakeBrowser{}
	stt := &fakeSTT{}
	s := newTestSelector(t, nil, caps, audio, browser, stt)

	req := baseRequest(t)
	req.DirectPrompt = ""

	_, err := s.Run(context.Background(), req)
	var exhausted *ExhaustedError
	if !errors.As(err, &exhausted) {
		t.Fatalf("expected ExhaustedError, got %v", err)
	}
	if browser.calls != 0 {
		t.Error("browser capture must only run after a downloader exception")
	}
}

func TestTranscriptionFailureDoesNotTriggerBrowser(t *testing.T) {
	caps := &fakeCaptions{err: captions.ErrNoTranscript}
	audio := &fakeAudio{downloadSize: 1024}
	browser := &fakeBrowser{}
	stt := &fakeSTT{fileErr: &transcribe.Error{Message: "bad audio", StatusCode: 400}}
	s := newTestSelector(t, nil, caps, audio, browser, stt)

	req := baseRequest(t)
	req.DirectPrompt = ""

	_, err := s.Run(context.Background(), req)
	var exhausted *ExhaustedError
	if !errors.As(err, &exhausted) {
		t.Fatalf("expected ExhaustedError, got %v", err)
	}
	if browser.calls != 0 {
		t.Error("a transcription failure after a clean download must not trigger the browser")
	}
}

func TestCaptionsHardErrorStillAdvances(t *testing.T) {
	caps := &fakeCaptions{err: &captions.Error{VideoID: "dQw4w9WgXcQ", Message: "HTTP status 500"}}
	audio := &fakeAudio{downloadSize: 1024}
	stt := &fakeSTT{fileResult: &transcribe.Result{Text: "stt after captions failure"}}
	s := newTestSelector(t, nil, caps, audio, nil, stt)

	req := baseRequest(t)
	req.DirectPrompt = ""

	res, err := s.Run(context.Background(), req)
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if res.Tier != TierAudioSTT {
		t.Errorf("tier = %s", res.Tier)
	}
}

func TestExhaustionReportsAllAttempts(t *testing.T) {
	caps := &fakeCaptions{err: captions.ErrNoTranscript}
	audio := &fakeAudio{downloadErr: &video.DownloadError{Message: "network down"}}
	browser := &fakeBrowser{err: errors.New("chrome crashed")}
	stt := &fakeSTT{}
	s := newTestSelector(t, nil, caps, audio, browser, stt)

	req := baseRequest(t)
	req.DirectPrompt = ""

	_, err := s.Run(context.Background(), req)
	var exhausted *ExhaustedError
	if !errors.As(err, &exhausted) {
		t.Fatalf("expected ExhaustedError, got %v", err)
	}
	if len(exhausted.Attempts) != 3 {
		t.Errorf("attempts = %d, want 3 (captions, audio, browser)", len(exhausted.Attempts))
	}
	wantTiers := []Tier{TierCaptions, TierAudioSTT, TierBrowser}
	for i, a := range exhausted.Attempts {
		if a.Tier != wantTiers[i] {
			t.Errorf("attempt %d tier = %s, want %s", i, a.Tier, wantTiers[i])
		}
	}
}

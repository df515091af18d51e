// Package notes runs the video-to-note pipeline: resolve the video, acquire
// content through the tier chain, analyze transcripts with the LLM, and
// assemble a markdown note on disk.
package notes

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/bangdoll/tubenotes/internal/acquire"
	"github.com/bangdoll/tubenotes/internal/llm"
	"github.com/bangdoll/tubenotes/internal/progress"
	"github.com/bangdoll/tubenotes/internal/prompts"
	"github.com/bangdoll/tubenotes/internal/retry"
	"github.com/bangdoll/tubenotes/internal/video"
)

// PlaceholderTitle heads the fallback note written when transcript analysis
// fails for a non-fatal reason.
const PlaceholderTitle = "Analysis Failed"

// Acquirer is the tier chain's surface.
type Acquirer interface {
	Run(ctx context.Context, req acquire.Request) (*acquire.Result, error)
}

// TextAnalyzer is the slice of the AI client used for transcript analysis.
type TextAnalyzer interface {
	GenerateContent(ctx context.Context, systemPrompt, userContent string, tier llm.ModelTier) (string, error)
}

// MetadataFetcher looks up the video's title. Best-effort; failures fall back
// to the video id.
type MetadataFetcher interface {
	FetchMetadata(ctx context.Context, videoURL string) (*video.Metadata, error)
}

// UsageRecorder receives cost events. Optional.
type UsageRecorder interface {
	AddTranscription(seconds float64)
}

// Result is a completed note job.
type Result struct {
	VideoID  string
	Title    string
	Tier     acquire.Tier
	NotePath string
	Markdown string
}

// Pipeline wires the note flow's collaborators.
type Pipeline struct {
	Acquirer Acquirer
	LLM      TextAnalyzer
	Meta     MetadataFetcher
	Usage    UsageRecorder

	OutputDir string
	Retry     retry.Config
	Log       *logrus.Entry
}

// NewPipeline builds a note pipeline with default retry policy.
func NewPipeline(acq Acquirer, textLLM TextAnalyzer, meta MetadataFetcher, outputDir string, log *logrus.Entry) *Pipeline {
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}
	return &Pipeline{
		Acquirer:  acq,
		LLM:       textLLM,
		Meta:      meta,
		OutputDir: outputDir,
		Retry:     retry.DefaultConfig(),
		Log:       log,
	}
}

const totalSteps = 4

// Run executes the pipeline for one video URL.
func (p *Pipeline) Run(ctx context.Context, videoURL string, rep progress.Reporter) (*Result, error) {
	if rep == nil {
		rep = progress.Nop{}
	}

	videoID, err := video.ExtractID(videoURL)
	if err != nil {
		return nil, err
	}

	// Step 1: metadata. The title feeds the prompts; losing it is not fatal.
	rep.Progress(0, totalSteps, "Resolving video")
	title := videoID
	if p.Meta != nil {
		if meta, merr := p.Meta.FetchMetadata(ctx, video.WatchURL(videoID)); merr == nil && meta.Title != "" {
			title = meta.Title
			rep.Logf("Video: %s", title)
		} else if merr != nil {
			p.Log.WithField("video_id", videoID).WithError(merr).Warn("metadata fetch failed, using video id as title")
			rep.Logf("Could not fetch video title, continuing with id %s", videoID)
		}
	}

	workDir, err := os.MkdirTemp("", "tubenotes-*")
	if err != nil {
		return nil, fmt.Errorf("create work directory: %w", err)
	}
	defer func() { _ = os.RemoveAll(workDir) }()

	// Step 2: acquisition.
	rep.Progress(1, totalSteps, "Acquiring content")
	vars := map[string]string{
		"VideoTitle":  title,
		"CurrentDate": time.Now().Format("2006-01-02"),
	}
	acqRes, err := p.Acquirer.Run(ctx, acquire.Request{
		VideoID:      videoID,
		WorkDir:      workDir,
		DirectPrompt: p.promptOrEmpty("video_direct", vars),
		AudioPrompt:  p.promptOrEmpty("audio_direct", vars),
		Reporter:     rep,
	})
	if err != nil {
		return nil, err
	}
	if p.Usage != nil && acqRes.STTDurationSeconds > 0 {
		p.Usage.AddTranscription(acqRes.STTDurationSeconds)
	}

	// Step 3: analysis. Direct tiers already produced the note.
	rep.Progress(2, totalSteps, "Analyzing")
	markdown := acqRes.Note
	if markdown == "" {
		markdown, err = p.analyzeTranscript(ctx, acqRes.Transcript, vars, rep)
		if err != nil {
			return nil, err
		}
	}

	// Step 4: assembly.
	rep.Progress(3, totalSteps, "Writing note")
	notePath, err := p.saveNote(videoID, markdown)
	if err != nil {
		return nil, err
	}
	rep.Progress(totalSteps, totalSteps, "Done")
	rep.Logf("Note saved: %s", notePath)

	return &Result{
		VideoID:  videoID,
		Title:    title,
		Tier:     acqRes.Tier,
		NotePath: notePath,
		Markdown: markdown,
	}, nil
}

// analyzeTranscript turns raw transcript text into the note body. Quota
// exhaustion propagates; any other failure degrades to a placeholder note
// that preserves the transcript.
func (p *Pipeline) analyzeTranscript(ctx context.Context, transcript string, vars map[string]string, rep progress.Reporter) (string, error) {
	template, err := prompts.Get("notes.json", "video_summary")
	if err != nil {
		return "", fmt.Errorf("load summary prompt: %w", err)
	}
	systemPrompt := prompts.Format(template, vars)

	var markdown string
	err = retry.Do(ctx, p.Retry, func(ctx context.Context) error {
		out, gerr := p.LLM.GenerateContent(ctx, systemPrompt, transcript, llm.TierStandard)
		if gerr != nil {
			return gerr
		}
		markdown = out
		return nil
	})
	if err != nil {
		if llm.IsQuotaExhausted(err) {
			return "", err
		}
		p.Log.WithError(err).Error("transcript analysis failed, writing placeholder note")
		rep.Logf("Analysis failed (%v), keeping the transcript", err)
		return placeholderNote(err, transcript), nil
	}
	return markdown, nil
}

func (p *Pipeline) promptOrEmpty(key string, vars map[string]string) string {
	template, err := prompts.Get("notes.json", key)
	if err != nil {
		p.Log.WithField("prompt", key).WithError(err).Warn("prompt unavailable")
		return ""
	}
	return prompts.Format(template, vars)
}

func placeholderNote(cause error, transcript string) string {
	return fmt.Sprintf("# %s\n\nThe AI analysis step did not complete: %v\n\nThe raw transcript is preserved below.\n\n## Transcript\n\n%s\n", PlaceholderTitle, cause, transcript)
}

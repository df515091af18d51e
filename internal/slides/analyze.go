package slides

import (
	"context"
	"errors"

	"github.com/sirupsen/logrus"

	"github.com/bangdoll/tubenotes/internal/llm"
	"github.com/bangdoll/tubenotes/internal/prompts"
	"github.com/bangdoll/tubenotes/internal/retry"
	"github.com/bangdoll/tubenotes/internal/schemas"
)

// VisionClient is the slice of the AI client the page analyzer uses.
type VisionClient interface {
	GenerateJSON(ctx context.Context, prompt string, image []byte, tier llm.ModelTier) (string, error)
	EditImage(ctx context.Context, prompt string, image []byte) ([]byte, error)
}

// Analyzer runs the two per-page AI calls: structured visual analysis and
// text removal.
type Analyzer struct {
	Vision VisionClient
	Retry  retry.Config
	Log    *logrus.Entry

	// RemoveIcons extends text removal to logos and footer page numbers.
	RemoveIcons bool
}

func NewAnalyzer(vision VisionClient, log *logrus.Entry) *Analyzer {
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}
	return &Analyzer{
		Vision: vision,
		Retry:  retry.DefaultConfig(),
		Log:    log,
	}
}

// AnalyzePage asks the vision model to describe one page. Non-fatal failures
// (exhausted retries, malformed output) degrade to a failed-placeholder
// result. The returned error is non-nil only for failures the job must stop
// on: quota exhaustion and context expiry.
func (a *Analyzer) AnalyzePage(ctx context.Context, image []byte) (PageAnalysis, error) {
	prompt, err := prompts.Get("slides.json", "analyze")
	if err != nil {
		return PageAnalysis{}, err
	}

	var raw string
	err = retry.Do(ctx, a.Retry, func(ctx context.Context) error {
		out, gerr := a.Vision.GenerateJSON(ctx, prompt, image, llm.TierStandard)
		if gerr != nil {
			return gerr
		}
		raw = out
		return nil
	})
	if err != nil {
		if llm.IsQuotaExhausted(err) || isContextErr(ctx, err) {
			return PageAnalysis{}, err
		}
		a.Log.WithError(err).Warn("page analysis failed, substituting placeholder")
		return FailedAnalysis(err), nil
	}

	// Schema drift is worth a log line but never blocks the tolerant parse.
	if verr := schemas.ValidateSlideAnalysis(llm.CleanJSONBlock(raw)); verr != nil {
		var ve *schemas.ValidationError
		if errors.As(verr, &ve) {
			a.Log.WithField("drift", ve.Error()).Debug("analysis response drifted from schema")
		}
	}

	analysis, perr := ParseAnalysis(raw)
	if perr != nil {
		a.Log.WithError(perr).Warn("unparseable analysis response, substituting placeholder")
		return FailedAnalysis(perr), nil
	}
	return analysis, nil
}

// CleanImage asks the image model to remove overlay text. Failures keep the
// original image; only quota exhaustion and context expiry propagate.
func (a *Analyzer) CleanImage(ctx context.Context, image []byte) ([]byte, error) {
	prompt, err := prompts.Get("slides.json", "remove_text")
	if err != nil {
		return image, nil
	}
	if a.RemoveIcons {
		if suffix, serr := prompts.Get("slides.json", "remove_text_icon_suffix"); serr == nil {
			prompt += suffix
		}
	}

	var cleaned []byte
	err = retry.Do(ctx, a.Retry, func(ctx context.Context) error {
		out, eerr := a.Vision.EditImage(ctx, prompt, image)
		if eerr != nil {
			return eerr
		}
		cleaned = out
		return nil
	})
	if err != nil {
		if llm.IsQuotaExhausted(err) || isContextErr(ctx, err) {
			return nil, err
		}
		a.Log.WithError(err).Warn("text removal failed, keeping original image")
		return image, nil
	}
	if len(cleaned) == 0 {
		// Model answered without an image part.
		return image, nil
	}
	return cleaned, nil
}

// isContextErr reports whether err is the surrounding context giving up
// rather than the call itself failing.
func isContextErr(ctx context.Context, err error) bool {
	if ctx.Err() == nil {
		return false
	}
	return errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) || errors.Is(err, ctx.Err())
}

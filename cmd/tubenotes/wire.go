package main

import (
	"context"
	"fmt"

	"github.com/sirupsen/logrus"

	"github.com/bangdoll/tubenotes/internal/acquire"
	"github.com/bangdoll/tubenotes/internal/browsercap"
	"github.com/bangdoll/tubenotes/internal/captions"
	"github.com/bangdoll/tubenotes/internal/config"
	"github.com/bangdoll/tubenotes/internal/deck"
	"github.com/bangdoll/tubenotes/internal/llm"
	"github.com/bangdoll/tubenotes/internal/logging"
	"github.com/bangdoll/tubenotes/internal/notes"
	"github.com/bangdoll/tubenotes/internal/pdf"
	"github.com/bangdoll/tubenotes/internal/slides"
	"github.com/bangdoll/tubenotes/internal/transcribe"
	"github.com/bangdoll/tubenotes/internal/usage"
	"github.com/bangdoll/tubenotes/internal/video"
)

// DefaultOutputDir receives artifacts when no directory is configured.
const DefaultOutputDir = "output"

// configOverride lets command files apply flag overrides without importing
// the config package themselves.
type configOverride = config.Config

// app bundles the configuration and the shared collaborators every command
// wires its pipeline from.
type app struct {
	cfg   config.Config
	log   *logging.Logger
	usage *usage.Tracker
}

// newApp layers configuration (file under env, CLI flags already applied by
// the caller via apply) and builds the shared collaborators.
func newApp(configPath string, apply func(*configOverride)) (*app, error) {
	cfg := config.FromEnv()
	if configPath != "" {
		fileCfg, err := config.LoadConfig(configPath)
		if err != nil {
			return nil, fmt.Errorf("failed to load config: %w", err)
		}
		cfg = cfg.MergeWithDefaults(*fileCfg)
	}
	if apply != nil {
		apply(&cfg)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	log := logging.New()
	tracker := usage.NewTracker(cfg.UsageFile, log.Entry)
	if cfg.MonthlyLimitUSD > 0 {
		tracker.Limit = cfg.MonthlyLimitUSD
	}

	return &app{cfg: cfg, log: log, usage: tracker}, nil
}

func (a *app) outputDir() string {
	if a.cfg.OutputDir != "" {
		return a.cfg.OutputDir
	}
	return DefaultOutputDir
}

// geminiKey resolves the effective Gemini key: per-request override first,
// then the configured one.
func (a *app) geminiKey(override string) (string, error) {
	if override != "" {
		return override, nil
	}
	if a.cfg.GeminiAPIKey != "" {
		return a.cfg.GeminiAPIKey, nil
	}
	return "", fmt.Errorf("GEMINI_API_KEY environment variable or --api-key flag is required")
}

// checkBudget refuses new jobs once the monthly ledger is over its cap.
func (a *app) checkBudget() error {
	if a.usage.LimitExceeded() {
		return fmt.Errorf("monthly usage limit of $%.2f exceeded, raise MONTHLY_LIMIT_USD to continue", a.usage.Limit)
	}
	return nil
}

// videoClient builds the yt-dlp/ffmpeg wrapper with the extractor options.
func (a *app) videoClient() *video.Client {
	return video.NewClient(video.Options{
		BinaryPath:         a.cfg.YtdlpPath,
		FFmpegPath:         a.cfg.FFmpegPath,
		UserAgent:          a.cfg.UserAgent,
		ProxyURL:           a.cfg.ProxyURL,
		CookiesPath:        a.cfg.CookiesPath,
		CookiesFromBrowser: a.cfg.CookiesFromBrowser,
		PlayerClient:       a.cfg.PlayerClient,
		POToken:            a.cfg.POToken,
		VisitorData:        a.cfg.VisitorData,
	})
}

// selector wires the acquisition tier chain. A nil analyzer disables the
// direct-analysis tier; the transcript command uses that to force the
// transcript tiers.
func (a *app) selector(analyzer acquire.MediaAnalyzer, log *logrus.Entry) *acquire.Selector {
	capOpts := captions.DefaultOptions()
	if a.cfg.UserAgent != "" {
		capOpts.UserAgent = a.cfg.UserAgent
	}

	var stt acquire.Transcriber
	if a.cfg.OpenAIAPIKey != "" {
		stt = transcribe.NewClient(transcribe.Config{APIKey: a.cfg.OpenAIAPIKey})
	}

	browser := browsercap.New(browsercap.Options{
		UserAgent:  a.cfg.UserAgent,
		ChromePath: a.cfg.ChromePath,
	})

	return acquire.NewSelector(analyzer, captions.NewClient(capOpts), a.videoClient(), browser, stt, log)
}

// notesPipeline builds one video-to-note pipeline around a fresh Gemini
// client for the given key. The returned func releases the client.
func (a *app) notesPipeline(ctx context.Context, apiKey string) (*notes.Pipeline, func(), error) {
	key, err := a.geminiKey(apiKey)
	if err != nil {
		return nil, nil, err
	}
	gemini, err := llm.NewGeminiClient(ctx, llm.DefaultConfig(), key)
	if err != nil {
		return nil, nil, err
	}
	gemini.OnUsage = a.usage.AddChat

	log := a.log.WithField("pipeline", "notes")
	var analyzer acquire.MediaAnalyzer
	if !a.cfg.DisableDirectAnalysis {
		analyzer = gemini
	}

	vid := a.videoClient()
	p := notes.NewPipeline(a.selector(analyzer, log), gemini, vid, a.outputDir(), log)
	p.Usage = a.usage
	return p, func() { _ = gemini.Close() }, nil
}

// slidesPipeline builds one slide-reconstruction pipeline around a fresh
// Gemini client for the given key.
func (a *app) slidesPipeline(ctx context.Context, apiKey string) (*slides.Pipeline, func(), error) {
	key, err := a.geminiKey(apiKey)
	if err != nil {
		return nil, nil, err
	}
	gemini, err := llm.NewGeminiClient(ctx, llm.DefaultConfig(), key)
	if err != nil {
		return nil, nil, err
	}
	gemini.OnUsage = a.usage.AddChat

	log := a.log.WithField("pipeline", "slides")
	raster := pdf.NewRasterizer()
	sched := slides.NewScheduler(raster, slides.NewAnalyzer(gemini, log), log)
	p := slides.NewPipeline(raster, sched, deck.NewBuilder(log), a.outputDir(), log)
	p.Previews = raster
	return p, func() { _ = gemini.Close() }, nil
}

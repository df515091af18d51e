package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/bangdoll/tubenotes/internal/acquire"
	"github.com/bangdoll/tubenotes/internal/jobs"
	"github.com/bangdoll/tubenotes/internal/progress"
	"github.com/bangdoll/tubenotes/internal/video"
)

var transcriptCmd = &cobra.Command{
	Use:   "transcript <video-url>",
	Short: "Fetch a video's raw transcript without analysis",
	Long: `Acquires transcript text through the tier chain (captions, audio
transcription, browser capture) and writes it to transcript_raw.txt.
The direct AI-analysis tier is skipped since no note is wanted.`,
	Args: cobra.ExactArgs(1),
	RunE: runTranscript,
}

var (
	transcriptConfigPath string
	transcriptOutputDir  string
)

func init() {
	transcriptCmd.Flags().StringVar(&transcriptConfigPath, "config", "", "Path to config.json file (values can be overridden by other flags)")
	transcriptCmd.Flags().StringVarP(&transcriptOutputDir, "out", "o", "", "Directory the transcript is written to")
	rootCmd.AddCommand(transcriptCmd)
}

func runTranscript(cmd *cobra.Command, args []string) error {
	a, err := newApp(transcriptConfigPath, func(cfg *configOverride) {
		if cmd.Flags().Changed("out") {
			cfg.OutputDir = transcriptOutputDir
		}
	})
	if err != nil {
		return err
	}

	videoID, err := video.ExtractID(args[0])
	if err != nil {
		return err
	}

	log := a.log.WithField("pipeline", "transcript")
	sel := a.selector(nil, log) // nil analyzer: transcript tiers only

	workDir, err := os.MkdirTemp("", "tubenotes-*")
	if err != nil {
		return fmt.Errorf("create work directory: %w", err)
	}
	defer func() { _ = os.RemoveAll(workDir) }()

	ctx, cancel := context.WithTimeout(cmd.Context(), jobs.DefaultCeiling)
	defer cancel()

	res, err := sel.Run(ctx, acquire.Request{
		VideoID:  videoID,
		WorkDir:  workDir,
		Reporter: progress.Writer{Out: os.Stdout},
	})
	if err != nil {
		return err
	}
	if a.usage != nil && res.STTDurationSeconds > 0 {
		a.usage.AddTranscription(res.STTDurationSeconds)
	}

	if err := os.MkdirAll(a.outputDir(), 0o755); err != nil {
		return fmt.Errorf("create output directory: %w", err)
	}
	outPath := filepath.Join(a.outputDir(), "transcript_raw.txt")
	if err := os.WriteFile(outPath, []byte(res.Transcript), 0o644); err != nil {
		return fmt.Errorf("write transcript: %w", err)
	}

	fmt.Printf("\nTranscript written via %s tier: %s\n", res.Tier, outPath)
	return nil
}

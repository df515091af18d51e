package main

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/bangdoll/tubenotes/internal/jobs"
	"github.com/bangdoll/tubenotes/internal/notes"
	"github.com/bangdoll/tubenotes/internal/progress"
)

var noteCmd = &cobra.Command{
	Use:   "note <video-url>",
	Short: "Convert a YouTube video into a markdown note",
	Long: `Runs the video-to-note pipeline: resolve the video, acquire content through
the tier chain (direct AI analysis, captions, audio transcription, browser
capture), analyze the transcript, and write a markdown note.`,
	Args: cobra.ExactArgs(1),
	RunE: runNote,
}

var (
	noteConfigPath string
	noteAPIKey     string
	noteOutputDir  string
	noteNoDirect   bool
)

func init() {
	noteCmd.Flags().StringVar(&noteConfigPath, "config", "", "Path to config.json file (values can be overridden by other flags)")
	noteCmd.Flags().StringVar(&noteAPIKey, "api-key", "", "Gemini API Key (optional, defaults to GEMINI_API_KEY env var)")
	noteCmd.Flags().StringVarP(&noteOutputDir, "out", "o", "", "Directory the note is written to")
	noteCmd.Flags().BoolVar(&noteNoDirect, "no-direct", false, "Skip the direct video-understanding tier")
	rootCmd.AddCommand(noteCmd)
}

func runNote(cmd *cobra.Command, args []string) error {
	a, err := newApp(noteConfigPath, func(cfg *configOverride) {
		if cmd.Flags().Changed("api-key") {
			cfg.GeminiAPIKey = noteAPIKey
		}
		if cmd.Flags().Changed("out") {
			cfg.OutputDir = noteOutputDir
		}
		if noteNoDirect {
			cfg.DisableDirectAnalysis = true
		}
	})
	if err != nil {
		return err
	}
	if err := a.checkBudget(); err != nil {
		return err
	}

	pipeline, cleanup, err := a.notesPipeline(cmd.Context(), "")
	if err != nil {
		return err
	}

	runner := jobs.NewRunner(a.log.Entry)
	var result *notes.Result
	handle, err := runner.Start(context.Background(), "note", func(ctx context.Context, rep progress.Reporter) (*jobs.Artifact, error) {
		defer cleanup()
		res, runErr := pipeline.Run(ctx, args[0], rep)
		if runErr != nil {
			return nil, runErr
		}
		result = res
		return &jobs.Artifact{Content: res.Markdown, Path: res.NotePath}, nil
	})
	if err != nil {
		cleanup()
		return err
	}

	printer := progress.Writer{Out: os.Stdout}
	artifact, err := handle.Wait(func(ev progress.Event) {
		if ev.Type == progress.EventLog {
			printer.Logf("%s", ev.Message)
		} else {
			printer.Progress(ev.Processed, ev.Total, ev.Message)
		}
	})
	if err != nil {
		return err
	}

	if result != nil {
		fmt.Printf("\nNote written via %s tier: %s\n", result.Tier, artifact.Path)
	}
	return nil
}

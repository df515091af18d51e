package main

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/bangdoll/tubenotes/internal/jobs"
	"github.com/bangdoll/tubenotes/internal/progress"
	"github.com/bangdoll/tubenotes/internal/server"
	"github.com/bangdoll/tubenotes/internal/slides"
)

var slidesCmd = &cobra.Command{
	Use:   "slides <document.pdf>",
	Short: "Reconstruct a PDF document as an editable PPTX deck",
	Long: `Runs the slide-reconstruction pipeline: count pages, rasterize the selected
pages, analyze each page with the vision model (content structure plus text
removal), and assemble one output slide per page.`,
	Args: cobra.ExactArgs(1),
	RunE: runSlides,
}

var (
	slidesConfigPath string
	slidesAPIKey     string
	slidesOutputDir  string
	slidesPages      string
)

func init() {
	slidesCmd.Flags().StringVar(&slidesConfigPath, "config", "", "Path to config.json file (values can be overridden by other flags)")
	slidesCmd.Flags().StringVar(&slidesAPIKey, "api-key", "", "Gemini API Key (optional, defaults to GEMINI_API_KEY env var)")
	slidesCmd.Flags().StringVarP(&slidesOutputDir, "out", "o", "", "Directory the deck is written to")
	slidesCmd.Flags().StringVarP(&slidesPages, "pages", "p", "", "1-based page selection, e.g. \"2,7\" or \"1-3,8\" (default: every page)")
	rootCmd.AddCommand(slidesCmd)
}

func runSlides(cmd *cobra.Command, args []string) error {
	pdfPath := args[0]
	if _, err := os.Stat(pdfPath); err != nil {
		return fmt.Errorf("cannot read %s: %w", pdfPath, err)
	}
	pages, err := server.ParsePages(slidesPages)
	if err != nil {
		return err
	}

	a, err := newApp(slidesConfigPath, func(cfg *configOverride) {
		if cmd.Flags().Changed("api-key") {
			cfg.GeminiAPIKey = slidesAPIKey
		}
		if cmd.Flags().Changed("out") {
			cfg.OutputDir = slidesOutputDir
		}
	})
	if err != nil {
		return err
	}
	if err := a.checkBudget(); err != nil {
		return err
	}

	pipeline, cleanup, err := a.slidesPipeline(cmd.Context(), "")
	if err != nil {
		return err
	}

	runner := jobs.NewRunner(a.log.Entry)
	var result *slides.Result
	handle, err := runner.Start(context.Background(), "slides", func(ctx context.Context, rep progress.Reporter) (*jobs.Artifact, error) {
		defer cleanup()
		res, runErr := pipeline.Run(ctx, slides.Job{
			PDFPath:  pdfPath,
			Filename: pdfPath,
			Pages:    pages,
			Reporter: rep,
		})
		if runErr != nil {
			return nil, runErr
		}
		result = res
		return &jobs.Artifact{Path: res.OutputPath}, nil
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
		fmt.Printf("\nDeck written with %d slides: %s\n", len(result.Units), artifact.Path)
	}
	return nil
}

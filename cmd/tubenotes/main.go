// Package main provides the tubenotes CLI: video-to-note and
// slide-reconstruction pipelines plus the HTTP API server.
package main

import (
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "tubenotes",
	Short: "Turn YouTube videos into notes and PDFs into slide decks",
	Long:  "tubenotes converts a YouTube video into a structured markdown note, or a PDF document into a reconstructed PPTX deck, delegating transcription and analysis to cloud AI services.",
}

func main() {
	// Load .env file if it exists
	_ = godotenv.Load()

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

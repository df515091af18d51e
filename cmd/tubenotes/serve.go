package main

import (
	"context"

	"github.com/spf13/cobra"

	"github.com/bangdoll/tubenotes/internal/jobs"
	"github.com/bangdoll/tubenotes/internal/server"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP API server",
	Long:  `Starts an HTTP server exposing the note and slide pipelines as SSE-streaming endpoints, with optional run history when DATABASE_URL is set.`,
	RunE:  runServe,
}

var (
	serveConfigPath string
	servePort       int
)

func init() {
	serveCmd.Flags().StringVar(&serveConfigPath, "config", "", "Path to config.json file")
	serveCmd.Flags().IntVar(&servePort, "port", 0, "Port to listen on (default 8080 or PORT env var)")
	rootCmd.AddCommand(serveCmd)
}

// appFactory adapts app's per-key pipeline builders to the server's factory
// surface.
type appFactory struct {
	app *app
}

func (f *appFactory) Notes(ctx context.Context, apiKey string) (server.NotePipeline, func(), error) {
	if err := f.app.checkBudget(); err != nil {
		return nil, nil, err
	}
	return f.app.notesPipeline(ctx, apiKey)
}

func (f *appFactory) Slides(ctx context.Context, apiKey string) (server.SlidePipeline, func(), error) {
	if err := f.app.checkBudget(); err != nil {
		return nil, nil, err
	}
	return f.app.slidesPipeline(ctx, apiKey)
}

func runServe(cmd *cobra.Command, _ []string) error {
	a, err := newApp(serveConfigPath, func(cfg *configOverride) {
		if cmd.Flags().Changed("port") {
			cfg.Port = servePort
		}
	})
	if err != nil {
		return err
	}

	port := a.cfg.Port
	if port == 0 {
		port = 8080
	}

	srv, err := server.New(server.Config{
		Port:        port,
		DatabaseURL: a.cfg.DatabaseURL,
	}, &appFactory{app: a}, jobs.NewRunner(a.log.Entry), a.log.Entry)
	if err != nil {
		return err
	}

	return srv.Start()
}

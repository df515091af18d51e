// Package server provides the HTTP API: job endpoints streaming progress
// over SSE, run history, and a health check.
package server

import (
	"context"
	"encoding/json"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/bangdoll/tubenotes/internal/db"
	"github.com/bangdoll/tubenotes/internal/jobs"
	"github.com/bangdoll/tubenotes/internal/notes"
	"github.com/bangdoll/tubenotes/internal/progress"
	"github.com/bangdoll/tubenotes/internal/server/ratelimit"
	"github.com/bangdoll/tubenotes/internal/slides"
)

// NotePipeline runs one video-to-note job.
type NotePipeline interface {
	Run(ctx context.Context, videoURL string, rep progress.Reporter) (*notes.Result, error)
}

// SlidePipeline runs one slide-reconstruction job.
type SlidePipeline interface {
	Run(ctx context.Context, job slides.Job) (*slides.Result, error)
}

// PipelineFactory builds pipelines per request so a caller-supplied API key
// (bring-your-own-key) gets its own client. An empty key selects the
// server's configured credentials.
type PipelineFactory interface {
	Notes(ctx context.Context, apiKey string) (NotePipeline, func(), error)
	Slides(ctx context.Context, apiKey string) (SlidePipeline, func(), error)
}

// Config holds server configuration
type Config struct {
	Port        int
	DatabaseURL string // optional; run history is skipped when empty
	UploadDir   string // received PDFs land here before processing
	MaxUpload   int64  // request body ceiling for slide uploads, bytes
}

// Server represents the HTTP server
type Server struct {
	httpServer  *http.Server
	db          *db.DB // nil when no database is configured
	factory     PipelineFactory
	runner      *jobs.Runner
	rateLimiter *ratelimit.Limiter
	uploadDir   string
	maxUpload   int64
	log         *logrus.Entry
}

// DefaultMaxUpload bounds slide uploads at 50 MB.
const DefaultMaxUpload = 50 << 20

// New creates a new server instance. The database is optional: when no URL
// is configured the server runs without history and logs a warning, the same
// warn-and-continue treatment the pipelines give the usage ledger.
func New(cfg Config, factory PipelineFactory, runner *jobs.Runner, log *logrus.Entry) (*Server, error) {
	if factory == nil {
		return nil, fmt.Errorf("pipeline factory is required")
	}
	if runner == nil {
		runner = jobs.NewRunner(log)
	}
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}

	s := &Server{
		factory:   factory,
		runner:    runner,
		uploadDir: cfg.UploadDir,
		maxUpload: cfg.MaxUpload,
		log:       log,
	}
	if s.uploadDir == "" {
		s.uploadDir = os.TempDir()
	}
	if s.maxUpload <= 0 {
		s.maxUpload = DefaultMaxUpload
	}

	if cfg.DatabaseURL != "" {
		database, err := db.Connect(context.Background(), cfg.DatabaseURL)
		if err != nil {
			return nil, fmt.Errorf("failed to connect to database: %w", err)
		}
		if err := database.Migrate(context.Background()); err != nil {
			database.Close()
			return nil, fmt.Errorf("failed to prepare database: %w", err)
		}
		s.db = database
	} else {
		log.Warn("DATABASE_URL not set, run history disabled")
	}

	// Initialize rate limiter
	s.rateLimiter = ratelimit.NewLimiter(ratelimit.LoadConfig())

	// Setup router
	mux := http.NewServeMux()
	mux.HandleFunc("POST /api/notes", s.handleNotes)
	mux.HandleFunc("POST /api/slides", s.handleSlides)
	mux.HandleFunc("GET /api/runs", s.handleListRuns)
	mux.HandleFunc("GET /api/runs/{id}", s.handleGetRun)
	mux.HandleFunc("GET /health", s.handleHealth)

	// Create HTTP server
	s.httpServer = &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Port),
		Handler:      s.withRateLimit(s.withLogging(s.withCORS(mux))),
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 660 * time.Second, // jobs stream up to the 10-minute ceiling
		IdleTimeout:  60 * time.Second,
	}

	return s, nil
}

// Handler exposes the composed handler stack for tests.
func (s *Server) Handler() http.Handler {
	return s.httpServer.Handler
}

// Start begins listening for requests
func (s *Server) Start() error {
	// Graceful shutdown
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)

	go func() {
		s.log.WithField("addr", s.httpServer.Addr).Info("server starting")
		if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			s.log.WithError(err).Fatal("server error")
		}
	}()

	<-stop
	s.log.Info("shutting down server")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := s.httpServer.Shutdown(ctx); err != nil {
		return fmt.Errorf("server shutdown failed: %w", err)
	}

	// Stop rate limiter cleanup goroutine
	if s.rateLimiter != nil {
		s.rateLimiter.Stop()
	}

	s.db.Close()
	s.log.Info("server stopped")
	return nil
}

// withCORS adds CORS headers
func (s *Server) withCORS(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type")

		if r.Method == "OPTIONS" {
			w.WriteHeader(http.StatusOK)
			return
		}

		next.ServeHTTP(w, r)
	})
}

// withRateLimit adds rate limiting middleware
func (s *Server) withRateLimit(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// Extract client identifier (IP address)
		clientID := s.extractClientID(r)

		// Check rate limit
		allowed, info := s.rateLimiter.Allow(clientID, r.URL.Path, r.Method)

		if !allowed {
			s.setRateLimitHeaders(w, info)
			s.rateLimitResponse(w, info)
			return
		}

		s.setRateLimitHeaders(w, info)
		next.ServeHTTP(w, r)
	})
}

// withLogging adds request logging
func (s *Server) withLogging(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		next.ServeHTTP(w, r)
		s.log.WithFields(logrus.Fields{
			"method":  r.Method,
			"path":    r.URL.Path,
			"remote":  r.RemoteAddr,
			"elapsed": time.Since(start).Round(time.Millisecond),
		}).Info("request")
	})
}

// handleHealth returns server health status
func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	s.jsonResponse(w, http.StatusOK, map[string]any{
		"status": "ok",
		"busy":   s.runner.Guard.Held(),
	})
}

// jsonResponse writes a JSON response
func (s *Server) jsonResponse(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		s.log.WithError(err).Error("encoding JSON response")
	}
}

// errorResponse writes an error JSON response
func (s *Server) errorResponse(w http.ResponseWriter, status int, message string) {
	s.jsonResponse(w, status, map[string]string{"error": message})
}

// extractClientID extracts the client identifier from the request.
// For MVP, this uses the IP address from RemoteAddr.
// In the future, this could use X-Forwarded-For header (only from trusted proxies).
func (s *Server) extractClientID(r *http.Request) string {
	// Get IP from RemoteAddr (format: "IP:port")
	ip, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		// If parsing fails, use the whole RemoteAddr
		return r.RemoteAddr
	}
	return ip
}

// setRateLimitHeaders sets standard rate limit headers on the response.
func (s *Server) setRateLimitHeaders(w http.ResponseWriter, info ratelimit.Info) {
	if info.Limit > 0 {
		w.Header().Set("X-RateLimit-Limit", fmt.Sprintf("%d", info.Limit))
		w.Header().Set("X-RateLimit-Remaining", fmt.Sprintf("%d", info.Remaining))
		w.Header().Set("X-RateLimit-Reset", fmt.Sprintf("%d", info.ResetTime.Unix()))
	}
}

// rateLimitResponse writes a 429 Too Many Requests response with rate limit information.
func (s *Server) rateLimitResponse(w http.ResponseWriter, info ratelimit.Info) {
	response := map[string]interface{}{
		"error":     "rate_limit_exceeded",
		"message":   "Rate limit exceeded. Please try again later.",
		"limit":     info.Limit,
		"remaining": info.Remaining,
		"reset_at":  info.ResetTime.Format(time.RFC3339),
	}

	if info.RetryAfter > 0 {
		response["retry_after"] = int(info.RetryAfter.Seconds())
		w.Header().Set("Retry-After", fmt.Sprintf("%d", int(info.RetryAfter.Seconds())))
	}

	s.log.WithFields(logrus.Fields{
		"limit":     info.Limit,
		"remaining": info.Remaining,
		"reset":     info.ResetTime.Format(time.RFC3339),
	}).Warn("rate limit exceeded")

	s.jsonResponse(w, http.StatusTooManyRequests, response)
}

// Package config provides configuration loading and validation for the CLI
// and server.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
)

// Config holds everything the pipelines need. Values come from three layers:
// an optional JSON config file, environment variables, and CLI flags; later
// layers win. All fields are optional except the API keys the selected
// pipeline actually calls with.
type Config struct {
	// Credentials
	GeminiAPIKey string `json:"api_key,omitempty"`        // Gemini API key
	OpenAIAPIKey string `json:"openai_api_key,omitempty"` // speech-to-text API key

	// Output
	OutputDir string `json:"output_dir,omitempty"` // artifact directory, defaults to "output"
	Port      int    `json:"port,omitempty"`       // server listen port

	// External binaries
	YtdlpPath  string `json:"ytdlp_path,omitempty"`  // defaults to "yt-dlp" on PATH
	FFmpegPath string `json:"ffmpeg_path,omitempty"` // defaults to "ffmpeg" on PATH
	ChromePath string `json:"chrome_path,omitempty"` // headless Chrome for the capture fallback

	// Extractor options passed through to yt-dlp
	ProxyURL           string `json:"proxy,omitempty"`
	UserAgent          string `json:"user_agent,omitempty"`
	CookiesPath        string `json:"cookies,omitempty"`
	CookiesFromBrowser string `json:"cookies_from_browser,omitempty"`
	PlayerClient       string `json:"player_client,omitempty"` // e.g. "web_safari", "tv"
	POToken            string `json:"po_token,omitempty"`      // proof-of-origin token
	VisitorData        string `json:"visitor_data,omitempty"`

	// Behavior
	DisableDirectAnalysis bool `json:"disable_direct_analysis,omitempty"` // skip the no-download tier

	// Cost accounting
	UsageFile       string  `json:"usage_file,omitempty"`
	MonthlyLimitUSD float64 `json:"monthly_limit_usd,omitempty"`

	// Persistence (optional; runs are not recorded when empty)
	DatabaseURL string `json:"database_url,omitempty"`
}

// FromEnv builds a Config from environment variables.
func FromEnv() Config {
	cfg := Config{
		GeminiAPIKey:          os.Getenv("GEMINI_API_KEY"),
		OpenAIAPIKey:          os.Getenv("OPENAI_API_KEY"),
		OutputDir:             os.Getenv("OUTPUT_DIR"),
		YtdlpPath:             os.Getenv("YTDLP_PATH"),
		FFmpegPath:            os.Getenv("FFMPEG_PATH"),
		ChromePath:            os.Getenv("CHROME_PATH"),
		ProxyURL:              os.Getenv("HTTP_PROXY"),
		UserAgent:             os.Getenv("YT_USER_AGENT"),
		CookiesPath:           os.Getenv("YT_COOKIES"),
		CookiesFromBrowser:    os.Getenv("YT_COOKIES_FROM_BROWSER"),
		PlayerClient:          os.Getenv("YT_PLAYER_CLIENT"),
		POToken:               os.Getenv("YT_PO_TOKEN"),
		VisitorData:           os.Getenv("YT_VISITOR_DATA"),
		UsageFile:             os.Getenv("USAGE_FILE"),
		DatabaseURL:           os.Getenv("DATABASE_URL"),
		DisableDirectAnalysis: envBool("DISABLE_DIRECT_ANALYSIS"),
	}
	if v := os.Getenv("PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.Port = port
		}
	}
	if v := os.Getenv("MONTHLY_LIMIT_USD"); v != "" {
		if limit, err := strconv.ParseFloat(v, 64); err == nil {
			cfg.MonthlyLimitUSD = limit
		}
	}
	return cfg
}

// LoadConfig loads configuration from a JSON file.
// Returns an error if the file cannot be read or parsed.
func LoadConfig(path string) (*Config, error) {
	if path == "" {
		return nil, fmt.Errorf("config path is empty")
	}

	// Resolve path relative to current directory if not absolute
	if !filepath.IsAbs(path) {
		cwd, err := os.Getwd()
		if err != nil {
			return nil, fmt.Errorf("failed to get current directory: %w", err)
		}
		path = filepath.Join(cwd, path)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
	}

	var cfg Config
	if err := json.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config JSON: %w", err)
	}

	return &cfg, nil
}

// Validate checks that the configuration has valid values.
// Note: This doesn't check for required credentials since those depend on
// which pipeline runs; the command layer checks them after merging.
func (c *Config) Validate() error {
	if c.Port < 0 || c.Port > 65535 {
		return fmt.Errorf("config error: 'port' must be in [0, 65535]")
	}
	if c.MonthlyLimitUSD < 0 {
		return fmt.Errorf("config error: 'monthly_limit_usd' must be non-negative")
	}
	if c.CookiesPath != "" {
		if _, err := os.Stat(c.CookiesPath); os.IsNotExist(err) {
			return fmt.Errorf("config error: cookies file not found: %s", c.CookiesPath)
		}
	}
	return nil
}

// MergeWithDefaults returns a new Config with empty fields filled from
// defaults. Used to layer a config file under environment values.
func (c *Config) MergeWithDefaults(defaults Config) Config {
	result := *c

	if result.GeminiAPIKey == "" {
		result.GeminiAPIKey = defaults.GeminiAPIKey
	}
	if result.OpenAIAPIKey == "" {
		result.OpenAIAPIKey = defaults.OpenAIAPIKey
	}
	if result.OutputDir == "" {
		result.OutputDir = defaults.OutputDir
	}
	if result.YtdlpPath == "" {
		result.YtdlpPath = defaults.YtdlpPath
	}
	if result.FFmpegPath == "" {
		result.FFmpegPath = defaults.FFmpegPath
	}
	if result.ChromePath == "" {
		result.ChromePath = defaults.ChromePath
	}
	if result.ProxyURL == "" {
		result.ProxyURL = defaults.ProxyURL
	}
	if result.UserAgent == "" {
		result.UserAgent = defaults.UserAgent
	}
	if result.CookiesPath == "" {
		result.CookiesPath = defaults.CookiesPath
	}
	if result.CookiesFromBrowser == "" {
		result.CookiesFromBrowser = defaults.CookiesFromBrowser
	}
	if result.PlayerClient == "" {
		result.PlayerClient = defaults.PlayerClient
	}
	if result.POToken == "" {
		result.POToken = defaults.POToken
	}
	if result.VisitorData == "" {
		result.VisitorData = defaults.VisitorData
	}
	if result.UsageFile == "" {
		result.UsageFile = defaults.UsageFile
	}
	if result.DatabaseURL == "" {
		result.DatabaseURL = defaults.DatabaseURL
	}

	if result.Port == 0 {
		result.Port = defaults.Port
	}
	if result.MonthlyLimitUSD == 0 {
		result.MonthlyLimitUSD = defaults.MonthlyLimitUSD
	}

	// Bool fields: cannot distinguish unset from false, so the file can only
	// turn the direct tier off, never back on (CLI flags always win)
	if defaults.DisableDirectAnalysis {
		result.DisableDirectAnalysis = true
	}

	return result
}

func envBool(key string) bool {
	v, err := strconv.ParseBool(os.Getenv(key))
	return err == nil && v
}

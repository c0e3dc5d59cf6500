package config

import (
	"fmt"
	"os"
	"strconv"

	"github.com/joho/godotenv"
)

// Config holds all runtime settings for the receipt analyzer.
// Remote extraction and the Google Cloud integrations are optional:
// when their settings are absent the service runs with the local
// heuristic extractor and the in-memory collection only.
type Config struct {
	// HTTP server
	Port string

	// Remote extraction (Gemini)
	GeminiAPIKey string
	GeminiModel  string

	// Optional BigQuery mirror of accepted receipts
	BigQueryProject string
	BigQueryDataset string
	BigQueryTable   string

	// Optional GCS bucket for CSV archive snapshots
	ArchiveBucket string

	// Extraction job queue
	QueueSize   int
	WorkerCount int
}

// Load reads configuration from the environment. A .env file in the
// working directory is loaded first if present.
func Load() *Config {
	_ = godotenv.Load()

	return &Config{
		Port: getEnv("PORT", "8080"),

		GeminiAPIKey: firstEnv("GEMINI_API_KEY", "GOOGLE_API_KEY"),
		GeminiModel:  getEnv("GEMINI_MODEL", "gemini-2.5-flash"),

		BigQueryProject: getEnv("BIGQUERY_PROJECT", ""),
		BigQueryDataset: getEnv("BIGQUERY_DATASET", "receipts"),
		BigQueryTable:   getEnv("BIGQUERY_TABLE", "receipts"),

		ArchiveBucket: getEnv("ARCHIVE_BUCKET", ""),

		QueueSize:   getEnvInt("QUEUE_SIZE", 100),
		WorkerCount: getEnvInt("WORKER_COUNT", 2),
	}
}

// Validate returns an error describing every invalid setting, or nil.
func (c *Config) Validate() error {
	var errs []string

	if port, err := strconv.Atoi(c.Port); err != nil {
		errs = append(errs, fmt.Sprintf("invalid port %q: must be a number", c.Port))
	} else if port < 1 || port > 65535 {
		errs = append(errs, fmt.Sprintf("invalid port %d: must be between 1 and 65535", port))
	}

	if c.QueueSize < 1 {
		errs = append(errs, fmt.Sprintf("invalid queue size %d: must be at least 1", c.QueueSize))
	}
	if c.WorkerCount < 1 {
		errs = append(errs, fmt.Sprintf("invalid worker count %d: must be at least 1", c.WorkerCount))
	}

	if c.BigQueryProject != "" && c.BigQueryDataset == "" {
		errs = append(errs, "BigQuery dataset cannot be empty when a project is configured")
	}

	if len(errs) > 0 {
		return fmt.Errorf("configuration errors: %v", errs)
	}
	return nil
}

// RemoteExtractionEnabled reports whether a Gemini API key is configured.
func (c *Config) RemoteExtractionEnabled() bool {
	return c.GeminiAPIKey != ""
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func firstEnv(keys ...string) string {
	for _, key := range keys {
		if v := os.Getenv(key); v != "" {
			return v
		}
	}
	return ""
}

func getEnvInt(key string, fallback int) int {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fallback
	}
	return n
}

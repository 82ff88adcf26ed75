// Package config provides configuration loading from environment variables.
package config

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/sethvargo/go-envconfig"
)

// Static errors for configuration validation.
var (
	// ErrInvalidPort is returned when PORT is outside 1-65535.
	ErrInvalidPort = errors.New("config: PORT must be between 1 and 65535")
	// ErrInvalidSplitThreshold is returned when SPLIT_THRESHOLD_SEC is not positive.
	ErrInvalidSplitThreshold = errors.New("config: SPLIT_THRESHOLD_SEC must be positive")
	// ErrInvalidPipelineTimeout is returned when PIPELINE_TIMEOUT is not positive.
	ErrInvalidPipelineTimeout = errors.New("config: PIPELINE_TIMEOUT must be positive")
	// ErrInvalidMaxConcurrent is returned when MAX_CONCURRENT_PIPELINES is negative.
	ErrInvalidMaxConcurrent = errors.New("config: MAX_CONCURRENT_PIPELINES must not be negative")
	// ErrInvalidDownloadMaxBytes is returned when DOWNLOAD_MAX_BYTES is negative.
	ErrInvalidDownloadMaxBytes = errors.New("config: DOWNLOAD_MAX_BYTES must not be negative")
	// ErrInvalidJobRetention is returned when JOB_RETENTION is negative.
	ErrInvalidJobRetention = errors.New("config: JOB_RETENTION must not be negative")
	// ErrInvalidJobSweepInterval is returned when JOB_SWEEP_INTERVAL is not positive while retention is on.
	ErrInvalidJobSweepInterval = errors.New("config: JOB_SWEEP_INTERVAL must be positive when JOB_RETENTION is set")
	// ErrS3RegionRequired is returned when S3_BUCKET is set without S3_REGION.
	ErrS3RegionRequired = errors.New("config: S3_REGION is required when S3_BUCKET is set")
)

// Config holds all configuration for the application.
type Config struct {
	// Server settings
	Port           int      `env:"PORT, default=8080" json:"port"`
	AllowedOrigins []string `env:"CORS_ALLOWED_ORIGINS, default=*" json:"allowed_origins"`
	MetricsEnabled bool     `env:"METRICS_ENABLED, default=true" json:"metrics_enabled"`

	// Transcription settings. An empty API key leaves transcription
	// unconfigured; the service still starts.
	OpenAIAPIKey          string `env:"OPENAI_API_KEY" json:"-"` // Masked in JSON
	OpenAIBaseURL         string `env:"OPENAI_BASE_URL" json:"openai_base_url,omitempty"`
	TranscriptionModel    string `env:"TRANSCRIPTION_MODEL, default=whisper-1" json:"transcription_model"`
	TranscriptionLanguage string `env:"TRANSCRIPTION_LANGUAGE" json:"transcription_language,omitempty"`

	// Media tools
	FFmpegPath  string `env:"FFMPEG_PATH, default=ffmpeg" json:"ffmpeg_path"`
	FFprobePath string `env:"FFPROBE_PATH, default=ffprobe" json:"ffprobe_path"`

	// Processing settings
	TempDir                string        `env:"TEMP_DIR, default=/tmp/subtitles-api" json:"temp_dir"`
	SplitThresholdSec      float64       `env:"SPLIT_THRESHOLD_SEC, default=3600" json:"split_threshold_sec"`
	PipelineTimeout        time.Duration `env:"PIPELINE_TIMEOUT, default=45m" json:"pipeline_timeout"`
	MaxConcurrentPipelines int           `env:"MAX_CONCURRENT_PIPELINES, default=4" json:"max_concurrent_pipelines"`
	DownloadMaxBytes       int64         `env:"DOWNLOAD_MAX_BYTES, default=2147483648" json:"download_max_bytes"`

	// Async job retention. Finished jobs older than JobRetention are
	// removed every JobSweepInterval; zero retention keeps them forever.
	JobRetention     time.Duration `env:"JOB_RETENTION, default=24h" json:"job_retention"`
	JobSweepInterval time.Duration `env:"JOB_SWEEP_INTERVAL, default=10m" json:"job_sweep_interval"`

	// Output storage settings
	StoragePrefix string `env:"STORAGE_PREFIX, default=subtitles" json:"storage_prefix"`
	PublicBaseURL string `env:"PUBLIC_BASE_URL, default=http://localhost:8080/files" json:"public_base_url"`

	// Optional S3 settings
	S3Bucket           string `env:"S3_BUCKET" json:"s3_bucket,omitempty"`
	S3Region           string `env:"S3_REGION" json:"s3_region,omitempty"`
	S3Endpoint         string `env:"S3_ENDPOINT" json:"s3_endpoint,omitempty"`
	AWSAccessKeyID     string `env:"AWS_ACCESS_KEY_ID" json:"-"`     // Masked in JSON
	AWSSecretAccessKey string `env:"AWS_SECRET_ACCESS_KEY" json:"-"` // Masked in JSON

	// Logging settings
	LogFormat string `env:"LOG_FORMAT, default=text" json:"log_format"` // "json" or "text"
	LogLevel  string `env:"LOG_LEVEL, default=info" json:"log_level"`   // "debug", "info", "warn", "error"
}

// S3Enabled returns true if S3 configuration is provided.
func (c *Config) S3Enabled() bool {
	return c.S3Bucket != "" && c.S3Region != ""
}

// TranscriptionEnabled returns true if an OpenAI API key is configured.
func (c *Config) TranscriptionEnabled() bool {
	return c.OpenAIAPIKey != ""
}

// Load reads configuration from environment variables using go-envconfig
// and validates it.
func Load() (*Config, error) {
	return load(envconfig.OsLookuper())
}

func load(lookuper envconfig.Lookuper) (*Config, error) {
	cfg := &Config{}

	if err := envconfig.ProcessWith(context.Background(), &envconfig.Config{
		Target:   cfg,
		Lookuper: lookuper,
	}); err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks that numeric settings are in range and that optional
// groups are complete.
func (c *Config) Validate() error {
	if c.Port < 1 || c.Port > 65535 {
		return ErrInvalidPort
	}
	if c.SplitThresholdSec <= 0 {
		return ErrInvalidSplitThreshold
	}
	if c.PipelineTimeout <= 0 {
		return ErrInvalidPipelineTimeout
	}
	if c.MaxConcurrentPipelines < 0 {
		return ErrInvalidMaxConcurrent
	}
	if c.DownloadMaxBytes < 0 {
		return ErrInvalidDownloadMaxBytes
	}
	if c.JobRetention < 0 {
		return ErrInvalidJobRetention
	}
	if c.JobRetention > 0 && c.JobSweepInterval <= 0 {
		return ErrInvalidJobSweepInterval
	}
	if c.S3Bucket != "" && c.S3Region == "" {
		return ErrS3RegionRequired
	}
	return nil
}

// NewLogger creates a structured logger based on the configuration.
// When LogFormat is "json", it outputs JSON logs suitable for production.
// Otherwise, it outputs human-readable text logs.
func (c *Config) NewLogger() *slog.Logger {
	level := parseLogLevel(c.LogLevel)

	var handler slog.Handler
	if strings.ToLower(c.LogFormat) == "json" {
		handler = slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
			Level: level,
		})
	} else {
		handler = slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
			Level: level,
		})
	}

	return slog.New(handler)
}

// String returns a string representation of the config with sensitive values masked.
func (c *Config) String() string {
	return fmt.Sprintf(
		"Config{Port: %d, OpenAIAPIKey: %s, OpenAIBaseURL: %s, TranscriptionModel: %s, TempDir: %s, SplitThresholdSec: %g, PipelineTimeout: %s, MaxConcurrentPipelines: %d, JobRetention: %s, JobSweepInterval: %s, StoragePrefix: %s, PublicBaseURL: %s, S3Bucket: %s, S3Region: %s, S3Endpoint: %s, AWSAccessKeyID: %s, AWSSecretAccessKey: %s, LogFormat: %s, LogLevel: %s}",
		c.Port,
		mask(c.OpenAIAPIKey),
		c.OpenAIBaseURL,
		c.TranscriptionModel,
		c.TempDir,
		c.SplitThresholdSec,
		c.PipelineTimeout,
		c.MaxConcurrentPipelines,
		c.JobRetention,
		c.JobSweepInterval,
		c.StoragePrefix,
		c.PublicBaseURL,
		c.S3Bucket,
		c.S3Region,
		c.S3Endpoint,
		mask(c.AWSAccessKeyID),
		mask(c.AWSSecretAccessKey),
		c.LogFormat,
		c.LogLevel,
	)
}

// mask hides a secret while still showing whether it is set.
func mask(secret string) string {
	if secret == "" {
		return "<unset>"
	}
	return "****"
}

// parseLogLevel converts a string log level to slog.Level.
func parseLogLevel(level string) slog.Level {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug
	case "info":
		return slog.LevelInfo
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

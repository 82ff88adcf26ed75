// Package bootstrap provides dependency initialization for the Subtitles API.
package bootstrap

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"

	"github.com/maauso/subtitles-api/internal/audio"
	"github.com/maauso/subtitles-api/internal/config"
	"github.com/maauso/subtitles-api/internal/download"
	"github.com/maauso/subtitles-api/internal/job"
	"github.com/maauso/subtitles-api/internal/media"
	"github.com/maauso/subtitles-api/internal/metrics"
	"github.com/maauso/subtitles-api/internal/pipeline"
	"github.com/maauso/subtitles-api/internal/scratch"
	"github.com/maauso/subtitles-api/internal/storage"
	"github.com/maauso/subtitles-api/internal/transcribe"
)

// Dependencies holds all initialized dependencies for the HTTP server.
type Dependencies struct {
	Pipeline   *pipeline.Orchestrator
	JobService *job.Service
	// Metrics is nil when metrics are disabled.
	Metrics *metrics.Metrics
	// FilesDir is the local storage root to serve, empty when S3 is used.
	FilesDir string
	// TranscriptionEnabled reports whether an OpenAI key was configured.
	TranscriptionEnabled bool
}

// NewDependencies creates and initializes all dependencies for the application.
func NewDependencies(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*Dependencies, error) {
	deps := &Dependencies{}

	// Initialize storage
	store, filesDir, err := initStorage(ctx, cfg, logger)
	if err != nil {
		return nil, err
	}
	deps.FilesDir = filesDir

	root, err := scratch.NewRoot(cfg.TempDir)
	if err != nil {
		return nil, fmt.Errorf("create scratch root: %w", err)
	}

	transcriber, err := initTranscriber(cfg, logger)
	if err != nil {
		return nil, err
	}
	deps.TranscriptionEnabled = transcriber != nil

	// Initialize media tools
	runner := media.ExecRunner{}
	prober := media.NewFFprobe(cfg.FFprobePath, runner)
	splitter := audio.NewFFmpegSplitter(cfg.FFmpegPath, runner, prober)
	fetcher := download.NewHTTPFetcher(download.WithMaxBytes(cfg.DownloadMaxBytes))

	opts := []pipeline.Option{
		pipeline.WithSplitThreshold(cfg.SplitThresholdSec),
		pipeline.WithTimeout(cfg.PipelineTimeout),
		pipeline.WithMaxConcurrent(cfg.MaxConcurrentPipelines),
		pipeline.WithKeyPrefix(cfg.StoragePrefix),
	}
	if cfg.MetricsEnabled {
		deps.Metrics = metrics.New()
		opts = append(opts, pipeline.WithRecorder(deps.Metrics))
	}

	orchestrator := pipeline.NewOrchestrator(fetcher, prober, splitter, transcriber, store, root, logger, opts...)
	deps.Pipeline = orchestrator

	// Initialize job repository and service
	repo := job.NewMemoryRepository()
	deps.JobService = job.NewService(repo, orchestrator, logger)

	return deps, nil
}

// initTranscriber returns a nil Transcriber when no API key is configured,
// so every run fails validation instead of the service refusing to start.
func initTranscriber(cfg *config.Config, logger *slog.Logger) (transcribe.Transcriber, error) {
	if !cfg.TranscriptionEnabled() {
		logger.Warn("OPENAI_API_KEY not set, transcription disabled")
		return nil, nil
	}

	opts := []transcribe.Option{
		transcribe.WithModel(cfg.TranscriptionModel),
		transcribe.WithLanguage(cfg.TranscriptionLanguage),
	}
	if cfg.OpenAIBaseURL != "" {
		opts = append(opts, transcribe.WithBaseURL(cfg.OpenAIBaseURL))
	}

	t, err := transcribe.NewOpenAI(cfg.OpenAIAPIKey, opts...)
	if err != nil {
		return nil, fmt.Errorf("create transcriber: %w", err)
	}
	logger.Info("OpenAI transcription configured",
		slog.String("model", cfg.TranscriptionModel),
		slog.String("language", cfg.TranscriptionLanguage),
	)
	return t, nil
}

// initStorage creates the appropriate storage backend based on configuration.
// It also returns the local directory to serve, if any.
func initStorage(ctx context.Context, cfg *config.Config, logger *slog.Logger) (storage.Storage, string, error) {
	if cfg.S3Enabled() {
		s3Cfg := storage.S3Config{
			Bucket:          cfg.S3Bucket,
			Region:          cfg.S3Region,
			Endpoint:        cfg.S3Endpoint,
			AccessKeyID:     cfg.AWSAccessKeyID,
			SecretAccessKey: cfg.AWSSecretAccessKey,
		}
		s3Store, err := storage.NewS3Storage(ctx, s3Cfg)
		if err != nil {
			return nil, "", fmt.Errorf("create S3 storage: %w", err)
		}
		logger.Info("S3 storage configured",
			slog.String("bucket", cfg.S3Bucket),
			slog.String("region", cfg.S3Region),
			slog.String("endpoint", cfg.S3Endpoint),
		)
		return s3Store, "", nil
	}

	localStore, err := storage.NewLocalStorage(filepath.Join(cfg.TempDir, "public"), cfg.PublicBaseURL)
	if err != nil {
		return nil, "", fmt.Errorf("create local storage: %w", err)
	}
	logger.Info("local storage configured",
		slog.String("dir", localStore.Dir()),
		slog.String("public_base_url", cfg.PublicBaseURL),
	)
	return localStore, localStore.Dir(), nil
}

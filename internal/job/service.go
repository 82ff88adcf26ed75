package job

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/maauso/subtitles-api/internal/pipeline"
)

// Runner executes subtitle pipelines. *pipeline.Orchestrator implements it.
type Runner interface {
	Validate(req pipeline.Request) error
	Run(ctx context.Context, req pipeline.Request) (*pipeline.Result, error)
}

// Input contains the input parameters for a subtitle job.
type Input struct {
	// AudioURL is the absolute http(s) URL of the source audio.
	AudioURL string
	// UserID namespaces the uploaded file.
	UserID string
}

// Service manages asynchronous subtitle jobs. It creates jobs, runs the
// pipeline for them, and mirrors pipeline progress into the repository.
type Service struct {
	repo   Repository
	runner Runner
	logger *slog.Logger
	now    func() time.Time
}

// ServiceOption configures a Service.
type ServiceOption func(*Service)

// WithServiceClock overrides the clock used to age finished jobs.
func WithServiceClock(now func() time.Time) ServiceOption {
	return func(s *Service) {
		s.now = now
	}
}

// NewService creates a new Service.
func NewService(repo Repository, runner Runner, logger *slog.Logger, opts ...ServiceOption) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Service{
		repo:   repo,
		runner: runner,
		logger: logger,
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// CreateJob validates the input, then creates a job in IN_QUEUE status and
// persists it. Invalid input is rejected without creating a job.
func (s *Service) CreateJob(ctx context.Context, input Input) (*Job, error) {
	if err := s.runner.Validate(pipeline.Request{AudioURL: input.AudioURL, UserID: input.UserID}); err != nil {
		return nil, err
	}

	job := New(input.AudioURL, input.UserID)

	s.logger.Info("creating new job",
		slog.String("job_id", job.ID),
		slog.String("audio_url", input.AudioURL),
		slog.String("user_id", input.UserID),
	)

	if err := s.repo.Save(ctx, job); err != nil {
		s.logger.Error("failed to save job",
			slog.String("job_id", job.ID),
			slog.String("error", err.Error()),
		)
		return nil, err
	}

	return job, nil
}

// GetJob retrieves a job by ID.
func (s *Service) GetJob(ctx context.Context, id string) (*Job, error) {
	return s.repo.FindByID(ctx, id)
}

// ListJobs returns the jobs matching filter, oldest first.
func (s *Service) ListJobs(ctx context.Context, filter Filter) ([]*Job, error) {
	return s.repo.List(ctx, filter)
}

// PruneFinished deletes jobs that reached a terminal status more than
// retention ago and returns how many were removed. Running and queued
// jobs are never removed.
func (s *Service) PruneFinished(ctx context.Context, retention time.Duration) (int, error) {
	expired, err := s.repo.List(ctx, Filter{FinishedBefore: s.now().Add(-retention)})
	if err != nil {
		return 0, fmt.Errorf("list finished jobs: %w", err)
	}

	removed := 0
	for _, j := range expired {
		if err := s.repo.Delete(ctx, j.ID); err != nil {
			if errors.Is(err, ErrJobNotFound) {
				continue
			}
			return removed, fmt.Errorf("delete job %s: %w", j.ID, err)
		}
		removed++
	}

	if removed > 0 {
		s.logger.Info("pruned finished jobs",
			slog.Int("removed", removed),
			slog.Duration("retention", retention),
		)
	}
	return removed, nil
}

// RunRetention calls PruneFinished every interval until ctx is done.
// A non-positive retention or interval returns immediately.
func (s *Service) RunRetention(ctx context.Context, interval, retention time.Duration) {
	if interval <= 0 || retention <= 0 {
		return
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := s.PruneFinished(ctx, retention); err != nil {
				s.logger.Warn("job retention sweep failed", slog.String("error", err.Error()))
			}
		}
	}
}

// ProcessExistingJob runs the pipeline for a job created with CreateJob
// and records the outcome on the job. It returns the final job state and
// the pipeline error, if any.
func (s *Service) ProcessExistingJob(ctx context.Context, jobID string) (*Job, error) {
	job, err := s.repo.FindByID(ctx, jobID)
	if err != nil {
		return nil, err
	}

	if err := job.Start(); err != nil {
		return nil, fmt.Errorf("start job %s: %w", jobID, err)
	}
	s.save(ctx, job)

	logger := s.logger.With(slog.String("job_id", jobID))
	logger.Info("processing job")

	res, runErr := s.runner.Run(ctx, pipeline.Request{
		AudioURL: job.AudioURL,
		UserID:   job.UserID,
		OnStage: func(stage pipeline.Stage) {
			job.EnterStage(stage)
			s.save(ctx, job)
		},
	})

	if runErr != nil {
		code := pipeline.ErrorCode(runErr)
		if code == pipeline.CodeTimeout {
			err = job.Timeout(runErr.Error())
		} else {
			err = job.Fail(code, runErr.Error())
		}
		if err != nil {
			logger.Warn("failed to record job failure", slog.String("error", err.Error()))
		}
		s.save(ctx, job)

		logger.Error("job failed",
			slog.String("code", code),
			slog.String("error", runErr.Error()),
		)
		return job.Clone(), runErr
	}

	if err := job.Complete(Output{
		SubtitlesURL:  res.SubtitlesURL,
		Chunked:       res.Chunked,
		TotalDuration: res.TotalDuration,
		ChunkCount:    res.ChunkCount,
		CueCount:      res.CueCount,
	}); err != nil {
		logger.Warn("failed to record job completion", slog.String("error", err.Error()))
	}
	s.save(ctx, job)

	logger.Info("job completed", slog.String("subtitles_url", res.SubtitlesURL))
	return job.Clone(), nil
}

// save persists the job, logging instead of failing: a lost progress
// update must not abort a running pipeline.
func (s *Service) save(ctx context.Context, job *Job) {
	if err := s.repo.Save(ctx, job); err != nil {
		s.logger.Error("failed to save job",
			slog.String("job_id", job.ID),
			slog.String("error", err.Error()),
		)
	}
}

package job

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"testing"
	"time"

	"github.com/maauso/subtitles-api/internal/pipeline"
)

type fakeRunner struct {
	validateErr error
	result      *pipeline.Result
	err         error
	stages      []pipeline.Stage

	gotReq pipeline.Request
}

func (f *fakeRunner) Validate(req pipeline.Request) error {
	return f.validateErr
}

func (f *fakeRunner) Run(_ context.Context, req pipeline.Request) (*pipeline.Result, error) {
	f.gotReq = req
	for _, s := range f.stages {
		if req.OnStage != nil {
			req.OnStage(s)
		}
	}
	return f.result, f.err
}

// recordingRepo wraps MemoryRepository and keeps every saved snapshot.
type recordingRepo struct {
	*MemoryRepository
	saved   []*Job
	saveErr error
}

func (r *recordingRepo) Save(ctx context.Context, job *Job) error {
	if r.saveErr != nil {
		return r.saveErr
	}
	r.saved = append(r.saved, job.Clone())
	return r.MemoryRepository.Save(ctx, job)
}

func TestNewService(t *testing.T) {
	repo := NewMemoryRepository()
	runner := &fakeRunner{}

	// With nil logger
	svc := NewService(repo, runner, nil)
	if svc == nil {
		t.Fatal("expected non-nil service")
	}
	if svc.repo != repo {
		t.Error("expected repo to be set")
	}
	if svc.logger == nil {
		t.Error("expected default logger")
	}

	// With custom logger
	logger := slog.New(slog.NewTextHandler(os.Stderr, nil))
	svc2 := NewService(repo, runner, logger)
	if svc2.logger != logger {
		t.Error("expected custom logger to be set")
	}
}

func TestService_CreateJob(t *testing.T) {
	repo := NewMemoryRepository()
	svc := NewService(repo, &fakeRunner{}, nil)
	ctx := context.Background()

	job, err := svc.CreateJob(ctx, Input{AudioURL: testAudioURL, UserID: "user-1"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if job.Status != StatusInQueue {
		t.Errorf("expected status %s, got %s", StatusInQueue, job.Status)
	}

	saved, err := repo.FindByID(ctx, job.ID)
	if err != nil {
		t.Fatalf("job not saved: %v", err)
	}
	if saved.AudioURL != testAudioURL || saved.UserID != "user-1" {
		t.Errorf("unexpected saved fields: %q %q", saved.AudioURL, saved.UserID)
	}
}

func TestService_CreateJob_ValidationError(t *testing.T) {
	repo := NewMemoryRepository()
	verr := &pipeline.StageError{
		Stage: pipeline.StageValidating,
		Kind:  pipeline.ErrValidation,
		Err:   pipeline.ErrMissingAudioURL,
	}
	svc := NewService(repo, &fakeRunner{validateErr: verr}, nil)
	ctx := context.Background()

	job, err := svc.CreateJob(ctx, Input{})
	if !errors.Is(err, pipeline.ErrValidation) {
		t.Fatalf("expected ErrValidation, got %v", err)
	}
	if job != nil {
		t.Error("expected no job on validation error")
	}

	if n := repo.Len(); n != 0 {
		t.Errorf("expected no stored jobs, got %d", n)
	}
}

func TestService_CreateJob_SaveError(t *testing.T) {
	repo := &recordingRepo{MemoryRepository: NewMemoryRepository(), saveErr: errors.New("disk full")}
	svc := NewService(repo, &fakeRunner{}, nil)

	_, err := svc.CreateJob(context.Background(), Input{AudioURL: testAudioURL})
	if err == nil {
		t.Fatal("expected save error")
	}
}

func TestService_GetJob(t *testing.T) {
	repo := NewMemoryRepository()
	svc := NewService(repo, &fakeRunner{}, nil)
	ctx := context.Background()

	created, _ := svc.CreateJob(ctx, Input{AudioURL: testAudioURL})

	got, err := svc.GetJob(ctx, created.ID)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got.ID != created.ID {
		t.Errorf("expected ID %s, got %s", created.ID, got.ID)
	}

	if _, err := svc.GetJob(ctx, "missing"); !errors.Is(err, ErrJobNotFound) {
		t.Errorf("expected ErrJobNotFound, got %v", err)
	}
}

func TestService_ProcessExistingJob_Success(t *testing.T) {
	repo := &recordingRepo{MemoryRepository: NewMemoryRepository()}
	runner := &fakeRunner{
		stages: []pipeline.Stage{
			pipeline.StageDownloading,
			pipeline.StageProbingDuration,
			pipeline.StageSplitting,
			pipeline.StageTranscribingParallel,
			pipeline.StageMerging,
			pipeline.StageUploading,
			pipeline.StageCleaningUp,
			pipeline.StageDone,
		},
		result: &pipeline.Result{
			RunID:         "run-1",
			SubtitlesURL:  "https://cdn.example.com/subtitles/user-1/a.srt",
			Chunked:       true,
			TotalDuration: 5400,
			ChunkCount:    2,
			CueCount:      1200,
		},
	}
	svc := NewService(repo, runner, nil)
	ctx := context.Background()

	created, _ := svc.CreateJob(ctx, Input{AudioURL: testAudioURL, UserID: "user-1"})

	job, err := svc.ProcessExistingJob(ctx, created.ID)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if runner.gotReq.AudioURL != testAudioURL || runner.gotReq.UserID != "user-1" {
		t.Errorf("runner got unexpected request: %+v", runner.gotReq)
	}
	if job.Status != StatusCompleted {
		t.Errorf("expected status %s, got %s", StatusCompleted, job.Status)
	}
	if job.Output.SubtitlesURL != runner.result.SubtitlesURL || !job.Output.Chunked || job.Output.CueCount != 1200 {
		t.Errorf("unexpected output: %+v", job.Output)
	}

	stored, _ := repo.FindByID(ctx, created.ID)
	if stored.Status != StatusCompleted || stored.Progress != 100 || stored.Stage != pipeline.StageDone {
		t.Errorf("unexpected stored job: status=%s progress=%d stage=%s", stored.Status, stored.Progress, stored.Stage)
	}

	// Progress snapshots were persisted as the pipeline advanced.
	var sawMerging bool
	last := -1
	for _, s := range repo.saved {
		if s.Progress < last {
			t.Errorf("progress went backwards: %d after %d", s.Progress, last)
		}
		last = s.Progress
		if s.Stage == pipeline.StageMerging && s.Status == StatusRunning {
			sawMerging = true
		}
	}
	if !sawMerging {
		t.Error("expected a RUNNING snapshot at MERGING")
	}
}

func TestService_ProcessExistingJob_Failure(t *testing.T) {
	tests := []struct {
		name       string
		err        error
		wantStatus Status
		wantKind   string
	}{
		{
			name:       "download failure",
			err:        &pipeline.StageError{Stage: pipeline.StageDownloading, Kind: pipeline.ErrDownload, Err: errors.New("404")},
			wantStatus: StatusFailed,
			wantKind:   pipeline.CodeDownload,
		},
		{
			name:       "split failure",
			err:        &pipeline.StageError{Stage: pipeline.StageSplitting, Kind: pipeline.ErrSplit, Err: errors.New("ffmpeg exit 1")},
			wantStatus: StatusFailed,
			wantKind:   pipeline.CodeMedia,
		},
		{
			name: "deadline",
			err: &pipeline.StageError{
				Stage: pipeline.StageTranscribingParallel,
				Kind:  pipeline.ErrTranscription,
				Err:   fmt.Errorf("chunk 1: %w", context.DeadlineExceeded),
			},
			wantStatus: StatusTimedOut,
			wantKind:   pipeline.CodeTimeout,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			repo := NewMemoryRepository()
			runner := &fakeRunner{
				stages: []pipeline.Stage{pipeline.StageDownloading, pipeline.StageCleaningUp, pipeline.StageFailed},
				err:    tt.err,
			}
			svc := NewService(repo, runner, nil)
			ctx := context.Background()

			created, _ := svc.CreateJob(ctx, Input{AudioURL: testAudioURL})

			job, err := svc.ProcessExistingJob(ctx, created.ID)
			if !errors.Is(err, tt.err) {
				t.Fatalf("expected run error to be returned, got %v", err)
			}
			if job.Status != tt.wantStatus {
				t.Errorf("expected status %s, got %s", tt.wantStatus, job.Status)
			}
			if job.ErrorKind != tt.wantKind {
				t.Errorf("expected kind %s, got %s", tt.wantKind, job.ErrorKind)
			}
			if job.Error != tt.err.Error() {
				t.Errorf("expected error %q, got %q", tt.err.Error(), job.Error)
			}

			stored, _ := repo.FindByID(ctx, created.ID)
			if stored.Status != tt.wantStatus || stored.Stage != pipeline.StageFailed {
				t.Errorf("unexpected stored job: status=%s stage=%s", stored.Status, stored.Stage)
			}
		})
	}
}

func TestService_ProcessExistingJob_NotFound(t *testing.T) {
	svc := NewService(NewMemoryRepository(), &fakeRunner{}, nil)

	_, err := svc.ProcessExistingJob(context.Background(), "missing")
	if !errors.Is(err, ErrJobNotFound) {
		t.Errorf("expected ErrJobNotFound, got %v", err)
	}
}

func TestService_ProcessExistingJob_AlreadyTerminal(t *testing.T) {
	repo := NewMemoryRepository()
	runner := &fakeRunner{}
	svc := NewService(repo, runner, nil)
	ctx := context.Background()

	job := New(testAudioURL, "")
	_ = job.Fail(pipeline.CodeInternal, "boom")
	_ = repo.Save(ctx, job)

	_, err := svc.ProcessExistingJob(ctx, job.ID)
	if !errors.Is(err, ErrInvalidTransition) {
		t.Errorf("expected ErrInvalidTransition, got %v", err)
	}
	if runner.gotReq.AudioURL != "" {
		t.Error("pipeline must not run for a terminal job")
	}
}

// finishedJob stores a job that reached status at finishedAt.
func finishedJob(t *testing.T, repo Repository, status Status, finishedAt time.Time) *Job {
	t.Helper()
	j := New(testAudioURL, "user-1")
	if err := j.Start(); err != nil {
		t.Fatalf("start: %v", err)
	}
	switch status {
	case StatusCompleted:
		_ = j.Complete(Output{SubtitlesURL: "https://cdn.example.com/a.srt"})
	case StatusFailed:
		_ = j.Fail(pipeline.CodeDownload, "boom")
	case StatusTimedOut:
		_ = j.Timeout("deadline")
	}
	j.CompletedAt = finishedAt
	if err := repo.Save(context.Background(), j); err != nil {
		t.Fatalf("save: %v", err)
	}
	return j
}

func TestService_PruneFinished(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	repo := NewMemoryRepository()
	svc := NewService(repo, &fakeRunner{}, nil, WithServiceClock(func() time.Time { return now }))
	ctx := context.Background()

	oldDone := finishedJob(t, repo, StatusCompleted, now.Add(-25*time.Hour))
	oldFailed := finishedJob(t, repo, StatusFailed, now.Add(-48*time.Hour))
	oldTimedOut := finishedJob(t, repo, StatusTimedOut, now.Add(-24*time.Hour-time.Second))
	recent := finishedJob(t, repo, StatusCompleted, now.Add(-time.Hour))

	running := New(testAudioURL, "user-2")
	_ = running.Start()
	queued := New(testAudioURL, "user-3")
	_ = repo.Save(ctx, running)
	_ = repo.Save(ctx, queued)

	removed, err := svc.PruneFinished(ctx, 24*time.Hour)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if removed != 3 {
		t.Errorf("expected 3 removed, got %d", removed)
	}

	for _, j := range []*Job{oldDone, oldFailed, oldTimedOut} {
		if _, err := repo.FindByID(ctx, j.ID); !errors.Is(err, ErrJobNotFound) {
			t.Errorf("expected %s (%s) to be pruned, got %v", j.ID, j.Status, err)
		}
	}
	for _, j := range []*Job{recent, running, queued} {
		if _, err := repo.FindByID(ctx, j.ID); err != nil {
			t.Errorf("expected %s (%s) to be kept, got %v", j.ID, j.Status, err)
		}
	}

	// A second sweep finds nothing left to remove.
	removed, err = svc.PruneFinished(ctx, 24*time.Hour)
	if err != nil || removed != 0 {
		t.Errorf("expected no-op sweep, got %d, %v", removed, err)
	}
}

func TestService_RunRetention(t *testing.T) {
	repo := NewMemoryRepository()
	svc := NewService(repo, &fakeRunner{}, nil)
	finishedJob(t, repo, StatusFailed, time.Now().Add(-time.Hour))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		svc.RunRetention(ctx, 5*time.Millisecond, time.Minute)
		close(done)
	}()

	deadline := time.After(2 * time.Second)
	for repo.Len() != 0 {
		select {
		case <-deadline:
			t.Fatal("expired job was not pruned")
		case <-time.After(5 * time.Millisecond):
		}
	}

	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("RunRetention did not stop after cancel")
	}
}

func TestService_RunRetention_Disabled(t *testing.T) {
	svc := NewService(NewMemoryRepository(), &fakeRunner{}, nil)

	// Returns immediately instead of blocking on a zero interval ticker.
	svc.RunRetention(context.Background(), 0, time.Hour)
	svc.RunRetention(context.Background(), time.Minute, 0)
}

func TestService_ListJobs(t *testing.T) {
	repo := NewMemoryRepository()
	svc := NewService(repo, &fakeRunner{}, nil)
	ctx := context.Background()

	done := finishedJob(t, repo, StatusCompleted, time.Now())
	queued := New(testAudioURL, "user-9")
	_ = repo.Save(ctx, queued)

	jobs, err := svc.ListJobs(ctx, Filter{Status: StatusCompleted})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(jobs) != 1 || jobs[0].ID != done.ID {
		t.Errorf("expected only %s, got %v", done.ID, jobs)
	}

	jobs, _ = svc.ListJobs(ctx, Filter{UserID: "user-9"})
	if len(jobs) != 1 || jobs[0].ID != queued.ID {
		t.Errorf("expected only %s, got %v", queued.ID, jobs)
	}
}

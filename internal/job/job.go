// Package job provides the Job aggregate for asynchronous subtitle requests.
// A job wraps one pipeline run: it records the request, tracks the current
// pipeline stage, and keeps the result or failure once the run ends.
package job

import (
	"errors"
	"fmt"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/maauso/subtitles-api/internal/job/id"
	"github.com/maauso/subtitles-api/internal/pipeline"
)

// Status represents the current state of a Job.
type Status string

const (
	// StatusInQueue indicates the job was accepted and has not started.
	StatusInQueue Status = "IN_QUEUE"
	// StatusRunning indicates the pipeline is executing.
	StatusRunning Status = "RUNNING"
	// StatusCompleted indicates subtitles were produced and uploaded.
	StatusCompleted Status = "COMPLETED"
	// StatusFailed indicates the pipeline failed.
	StatusFailed Status = "FAILED"
	// StatusTimedOut indicates the pipeline exceeded its deadline.
	StatusTimedOut Status = "TIMED_OUT"
)

// ErrUnknownStatus is returned by ParseStatus for unrecognized names.
var ErrUnknownStatus = errors.New("unknown job status")

// IsTerminal reports whether no further transitions are possible.
func (s Status) IsTerminal() bool {
	return s == StatusCompleted || s == StatusFailed || s == StatusTimedOut
}

// ParseStatus converts a status name such as "COMPLETED" into a Status.
func ParseStatus(name string) (Status, error) {
	status := Status(strings.ToUpper(strings.TrimSpace(name)))
	if _, ok := validTransitions[status]; !ok {
		return "", fmt.Errorf("%w: %q", ErrUnknownStatus, name)
	}
	return status, nil
}

// ErrInvalidTransition is returned when an invalid state transition is attempted.
var ErrInvalidTransition = errors.New("invalid state transition")

// validTransitions defines which state transitions are allowed.
var validTransitions = map[Status][]Status{
	StatusInQueue:   {StatusRunning, StatusFailed, StatusTimedOut},
	StatusRunning:   {StatusCompleted, StatusFailed, StatusTimedOut},
	StatusCompleted: {},
	StatusFailed:    {},
	StatusTimedOut:  {},
}

// canTransition checks if a transition from one status to another is valid.
func canTransition(from, to Status) bool {
	allowed, ok := validTransitions[from]
	if !ok {
		return false
	}
	return slices.Contains(allowed, to)
}

// stageProgress maps pipeline stages to a completion percentage.
var stageProgress = map[pipeline.Stage]int{
	pipeline.StageQueued:               0,
	pipeline.StageDownloading:          10,
	pipeline.StageProbingDuration:      20,
	pipeline.StageSplitting:            25,
	pipeline.StageProbingChunks:        30,
	pipeline.StageDirectTranscribe:     40,
	pipeline.StageTranscribingParallel: 40,
	pipeline.StageMerging:              80,
	pipeline.StageUploading:            90,
	pipeline.StageCleaningUp:           95,
	pipeline.StageDone:                 100,
}

// Output holds the result of a completed job.
type Output struct {
	SubtitlesURL  string
	Chunked       bool
	TotalDuration float64
	ChunkCount    int
	CueCount      int
}

// Job represents a subtitle generation job aggregate.
type Job struct {
	mu sync.RWMutex

	// ID is the unique identifier for this job.
	ID string
	// Status is the current job state.
	Status Status
	// Stage is the last pipeline stage the run entered.
	Stage pipeline.Stage
	// Progress is the percentage of completion (0-100).
	Progress int
	// Error contains any error message if the job failed.
	Error string
	// ErrorKind classifies a failure, e.g. DOWNLOAD_FAILED.
	ErrorKind string
	// AudioURL is the source audio.
	AudioURL string
	// UserID namespaces the uploaded file.
	UserID string
	// Output is set once the job completes.
	Output Output
	// CreatedAt is when the job was created.
	CreatedAt time.Time
	// UpdatedAt is when the job was last updated.
	UpdatedAt time.Time
	// StartedAt is when processing started.
	StartedAt time.Time
	// CompletedAt is when processing finished.
	CompletedAt time.Time
}

// New creates a new Job with a generated ID and initial IN_QUEUE status.
func New(audioURL, userID string) *Job {
	return NewWithID(id.Generate(), audioURL, userID)
}

// NewWithID creates a new Job with the specified ID and initial IN_QUEUE status.
// Useful for testing or when ID needs to be externally generated.
func NewWithID(jobID, audioURL, userID string) *Job {
	now := time.Now()
	return &Job{
		ID:        jobID,
		Status:    StatusInQueue,
		AudioURL:  audioURL,
		UserID:    userID,
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// TransitionTo attempts to change the job status to the specified state.
// Returns ErrInvalidTransition if the transition is not allowed.
func (j *Job) TransitionTo(status Status) error {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.transitionLocked(status)
}

func (j *Job) transitionLocked(status Status) error {
	if !canTransition(j.Status, status) {
		return ErrInvalidTransition
	}

	j.Status = status
	j.UpdatedAt = time.Now()

	// Set timestamps based on state
	switch status {
	case StatusRunning:
		j.StartedAt = j.UpdatedAt
	case StatusCompleted, StatusFailed, StatusTimedOut:
		j.CompletedAt = j.UpdatedAt
	}

	return nil
}

// Start transitions the job from IN_QUEUE to RUNNING.
func (j *Job) Start() error {
	return j.TransitionTo(StatusRunning)
}

// Complete records the output and transitions the job to COMPLETED.
func (j *Job) Complete(out Output) error {
	j.mu.Lock()
	defer j.mu.Unlock()
	if err := j.transitionLocked(StatusCompleted); err != nil {
		return err
	}
	j.Output = out
	j.Progress = 100
	return nil
}

// Fail transitions the job to FAILED with an error message and kind.
func (j *Job) Fail(kind, errMsg string) error {
	j.mu.Lock()
	defer j.mu.Unlock()
	if err := j.transitionLocked(StatusFailed); err != nil {
		return err
	}
	j.ErrorKind = kind
	j.Error = errMsg
	return nil
}

// Timeout transitions the job to TIMED_OUT with an error message.
func (j *Job) Timeout(errMsg string) error {
	j.mu.Lock()
	defer j.mu.Unlock()
	if err := j.transitionLocked(StatusTimedOut); err != nil {
		return err
	}
	j.ErrorKind = pipeline.CodeTimeout
	j.Error = errMsg
	return nil
}

// EnterStage records the pipeline stage and advances progress. Progress
// never moves backwards, and FAILED leaves it where it was.
func (j *Job) EnterStage(stage pipeline.Stage) {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.Stage = stage
	if p, ok := stageProgress[stage]; ok && p > j.Progress {
		j.Progress = p
	}
	j.UpdatedAt = time.Now()
}

// GetStatus returns the current job status (thread-safe).
func (j *Job) GetStatus() Status {
	j.mu.RLock()
	defer j.mu.RUnlock()
	return j.Status
}

// IsTerminal returns true if the job is in a terminal state.
func (j *Job) IsTerminal() bool {
	j.mu.RLock()
	defer j.mu.RUnlock()
	return j.Status.IsTerminal()
}

// Clone creates a copy of the job for safe reads.
func (j *Job) Clone() *Job {
	j.mu.RLock()
	defer j.mu.RUnlock()

	return &Job{
		ID:          j.ID,
		Status:      j.Status,
		Stage:       j.Stage,
		Progress:    j.Progress,
		Error:       j.Error,
		ErrorKind:   j.ErrorKind,
		AudioURL:    j.AudioURL,
		UserID:      j.UserID,
		Output:      j.Output,
		CreatedAt:   j.CreatedAt,
		UpdatedAt:   j.UpdatedAt,
		StartedAt:   j.StartedAt,
		CompletedAt: j.CompletedAt,
	}
}

package job

import (
	"context"
	"errors"
	"time"
)

// ErrJobNotFound is returned when a job cannot be found by ID.
var ErrJobNotFound = errors.New("job not found")

// Filter selects jobs in Repository.List. Zero fields match everything.
type Filter struct {
	// Status keeps only jobs in this status.
	Status Status
	// UserID keeps only jobs submitted for this user.
	UserID string
	// FinishedBefore keeps only terminal jobs that finished before it.
	FinishedBefore time.Time
	// Limit caps the number of jobs returned. Zero means no cap.
	Limit int
}

// Match reports whether j passes the filter.
func (f Filter) Match(j *Job) bool {
	if f.Status != "" && j.Status != f.Status {
		return false
	}
	if f.UserID != "" && j.UserID != f.UserID {
		return false
	}
	if !f.FinishedBefore.IsZero() {
		if !j.Status.IsTerminal() || !j.CompletedAt.Before(f.FinishedBefore) {
			return false
		}
	}
	return true
}

// Repository stores subtitle jobs.
type Repository interface {
	// Save inserts or replaces the job.
	Save(ctx context.Context, job *Job) error

	// FindByID returns ErrJobNotFound if the job does not exist.
	FindByID(ctx context.Context, id string) (*Job, error)

	// List returns the jobs matching filter, oldest first.
	List(ctx context.Context, filter Filter) ([]*Job, error)

	// Delete returns ErrJobNotFound if the job does not exist.
	Delete(ctx context.Context, id string) error
}

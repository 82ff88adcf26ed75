package pipeline

import (
	"context"
	"errors"
	"fmt"
)

// Error kinds. Every error returned by Run is a *StageError whose Kind is
// one of these, so errors.Is(err, ErrDownload) and friends classify it.
var (
	ErrValidation    = errors.New("pipeline: invalid request")
	ErrDownload      = errors.New("pipeline: download failed")
	ErrProbe         = errors.New("pipeline: probe failed")
	ErrSplit         = errors.New("pipeline: split failed")
	ErrTranscription = errors.New("pipeline: transcription failed")
	ErrUpload        = errors.New("pipeline: upload failed")
	// ErrWorkspace is returned when the run directory cannot be created.
	ErrWorkspace = errors.New("pipeline: scratch workspace unavailable")
	// ErrCancelled is returned when the caller gives up while waiting for a slot.
	ErrCancelled = errors.New("pipeline: cancelled before start")
)

// Causes reported under the kinds above.
var (
	ErrMissingAudioURL          = errors.New("audio URL is required")
	ErrTranscriberNotConfigured = errors.New("transcription service not configured")
	ErrEmptyTranscript          = errors.New("transcription returned no text")
)

// StageError reports which stage failed, what kind of failure it was, and
// the underlying component error.
type StageError struct {
	Stage Stage
	Kind  error
	Err   error
}

func (e *StageError) Error() string {
	return fmt.Sprintf("pipeline failed at %s: %v", e.Stage, e.Err)
}

func (e *StageError) Unwrap() []error {
	return []error{e.Kind, e.Err}
}

// Error codes returned by ErrorCode.
const (
	CodeValidation    = "VALIDATION_ERROR"
	CodeDownload      = "DOWNLOAD_FAILED"
	CodeMedia         = "MEDIA_ERROR"
	CodeTranscription = "TRANSCRIPTION_FAILED"
	CodeUpload        = "UPLOAD_FAILED"
	CodeTimeout       = "TIMEOUT"
	CodeInternal      = "INTERNAL_ERROR"
)

// ErrorCode classifies a Run error into a stable code for API clients.
// A deadline overrides the kind of the stage it interrupted.
func ErrorCode(err error) string {
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return CodeTimeout
	case errors.Is(err, ErrValidation):
		return CodeValidation
	case errors.Is(err, ErrDownload):
		return CodeDownload
	case errors.Is(err, ErrProbe), errors.Is(err, ErrSplit):
		return CodeMedia
	case errors.Is(err, ErrTranscription):
		return CodeTranscription
	case errors.Is(err, ErrUpload):
		return CodeUpload
	default:
		return CodeInternal
	}
}

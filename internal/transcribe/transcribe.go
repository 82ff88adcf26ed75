// Package transcribe turns audio into SRT caption tracks using a remote
// speech-to-text service.
package transcribe

import (
	"context"
	"errors"
	"fmt"
	"io"
)

// Static errors for transcription.
var (
	// ErrTranscription is wrapped by every Error.
	ErrTranscription = errors.New("transcribe: failed")
	// ErrAPIKeyRequired is returned when the client is created without an API key.
	ErrAPIKeyRequired = errors.New("transcribe: API key is required")
	// ErrNilAudio is returned when Transcribe is called without audio.
	ErrNilAudio = errors.New("transcribe: audio reader is nil")
)

// Transcriber converts audio to an SRT track.
type Transcriber interface {
	// Transcribe uploads audio under the given file name and returns the
	// raw SRT text produced by the service. The reader is rewound before
	// every attempt, so it must be positioned at the start of the audio.
	Transcribe(ctx context.Context, name string, audio io.ReadSeeker) (string, error)
}

// Error reports a failed transcription call.
type Error struct {
	Name string
	Err  error
}

func (e *Error) Error() string {
	return fmt.Sprintf("transcribe %s: %v", e.Name, e.Err)
}

func (e *Error) Unwrap() []error {
	return []error{ErrTranscription, e.Err}
}

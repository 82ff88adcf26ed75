package media

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
)

// Static errors for media probing.
var (
	// ErrProbe is wrapped by every ProbeError.
	ErrProbe = errors.New("media: probe failed")
	// ErrInvalidDuration is returned when ffprobe reports a non-numeric or non-positive duration.
	ErrInvalidDuration = errors.New("invalid duration: must be positive")
)

// Prober measures media durations.
type Prober interface {
	// Duration returns the duration of the media file at path in seconds.
	// The result is always positive; anything else is a *ProbeError.
	Duration(ctx context.Context, path string) (float64, error)
}

// ProbeError reports a failed duration probe.
type ProbeError struct {
	Path string
	Err  error
}

func (e *ProbeError) Error() string {
	return fmt.Sprintf("media: probe %s: %v", e.Path, e.Err)
}

func (e *ProbeError) Unwrap() []error {
	return []error{ErrProbe, e.Err}
}

// FFprobe implements Prober using the ffprobe CLI.
type FFprobe struct {
	ffprobePath string
	runner      Runner
}

// NewFFprobe creates a new FFprobe.
// If ffprobePath is empty, it defaults to "ffprobe" (found in PATH).
// If runner is nil, commands are executed with ExecRunner.
func NewFFprobe(ffprobePath string, runner Runner) *FFprobe {
	if ffprobePath == "" {
		ffprobePath = defaultFFprobePath
	}
	if runner == nil {
		runner = ExecRunner{}
	}
	return &FFprobe{ffprobePath: ffprobePath, runner: runner}
}

// Duration implements Prober.
func (p *FFprobe) Duration(ctx context.Context, path string) (float64, error) {
	out, err := p.runner.Run(ctx, DurationProbe(p.ffprobePath, path))
	if err != nil {
		return 0, &ProbeError{Path: path, Err: err}
	}

	duration, err := ParseDuration(out)
	if err != nil {
		return 0, &ProbeError{Path: path, Err: err}
	}

	return duration, nil
}

// ParseDuration parses the stdout of a DurationProbe run.
func ParseDuration(out []byte) (float64, error) {
	text := strings.TrimSpace(string(out))
	if first, _, ok := strings.Cut(text, "\n"); ok {
		text = strings.TrimSpace(first)
	}

	duration, err := strconv.ParseFloat(text, 64)
	if err != nil {
		return 0, fmt.Errorf("%w: %q", ErrInvalidDuration, text)
	}
	if math.IsNaN(duration) || math.IsInf(duration, 0) || duration <= 0 {
		return 0, fmt.Errorf("%w: got %v", ErrInvalidDuration, duration)
	}

	return duration, nil
}

// Verify interface implementation at compile time.
var _ Prober = (*FFprobe)(nil)

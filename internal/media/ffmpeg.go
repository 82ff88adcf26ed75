package media

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"path/filepath"
)

// Runner executes Commands.
type Runner interface {
	// Run executes cmd and returns its standard output. A non-zero exit is
	// reported as a *CommandError carrying stderr.
	Run(ctx context.Context, cmd Command) ([]byte, error)
}

// ExecRunner runs commands with os/exec.
type ExecRunner struct{}

// Run implements Runner.
func (ExecRunner) Run(ctx context.Context, cmd Command) ([]byte, error) {
	// #nosec G204 - binary paths come from configuration, arguments are never shell-interpreted
	c := exec.CommandContext(ctx, cmd.Binary, cmd.Args...)

	var stdout, stderr bytes.Buffer
	c.Stdout = &stdout
	c.Stderr = &stderr

	if err := c.Run(); err != nil {
		// Check if context was cancelled
		if ctx.Err() != nil {
			return nil, fmt.Errorf("%s cancelled: %w", filepath.Base(cmd.Binary), ctx.Err())
		}
		return nil, &CommandError{
			Binary: cmd.Binary,
			Args:   cmd.Args,
			Stderr: stderr.String(),
			Err:    err,
		}
	}

	return stdout.Bytes(), nil
}

// CommandError represents a failed ffmpeg/ffprobe run, including the stderr output.
type CommandError struct {
	Binary string
	Args   []string
	Stderr string
	Err    error
}

func (e *CommandError) Error() string {
	return fmt.Sprintf("%s error: %v\nargs: %v\nstderr: %s", filepath.Base(e.Binary), e.Err, e.Args, e.Stderr)
}

func (e *CommandError) Unwrap() error {
	return e.Err
}

// Verify interface implementation at compile time.
var _ Runner = ExecRunner{}

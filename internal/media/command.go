// Package media wraps the ffmpeg and ffprobe command-line tools.
// Invocations are described as typed Commands (binary plus argument list) and
// executed by a Runner, so argument construction can be tested without the
// binaries and no path is ever interpreted by a shell.
package media

import (
	"fmt"
	"strings"
)

const (
	defaultFFmpegPath  = "ffmpeg"
	defaultFFprobePath = "ffprobe"
)

// Command is a single external-process invocation.
type Command struct {
	Binary string
	Args   []string
}

// String renders the command for logs.
func (c Command) String() string {
	return c.Binary + " " + strings.Join(c.Args, " ")
}

// TrimSpec describes a lossless cut of Input into Output.
type TrimSpec struct {
	Input  string
	Output string
	// Start is the offset in seconds to start reading from. Zero reads from the beginning.
	Start float64
	// Duration is the number of seconds to keep. Zero keeps everything after Start.
	Duration float64
}

// DurationProbe builds the ffprobe invocation that prints the container
// duration of path in seconds on stdout.
func DurationProbe(ffprobePath, path string) Command {
	if ffprobePath == "" {
		ffprobePath = defaultFFprobePath
	}
	return Command{
		Binary: ffprobePath,
		Args: []string{
			"-v", "error",
			"-show_entries", "format=duration",
			"-of", "default=noprint_wrappers=1:nokey=1",
			"--", path,
		},
	}
}

// StreamCopyTrim builds the ffmpeg invocation that cuts spec.Input without
// re-encoding.
func StreamCopyTrim(ffmpegPath string, spec TrimSpec) Command {
	if ffmpegPath == "" {
		ffmpegPath = defaultFFmpegPath
	}

	args := []string{
		"-y", // Overwrite output
		"-hide_banner",
		"-loglevel", "error",
	}
	if spec.Start > 0 {
		args = append(args, "-ss", formatSeconds(spec.Start))
	}
	if spec.Duration > 0 {
		args = append(args, "-t", formatSeconds(spec.Duration))
	}
	args = append(args,
		"-i", spec.Input,
		"-c", "copy", // Copy without re-encoding
		spec.Output,
	)

	return Command{Binary: ffmpegPath, Args: args}
}

func formatSeconds(sec float64) string {
	return fmt.Sprintf("%.3f", sec)
}

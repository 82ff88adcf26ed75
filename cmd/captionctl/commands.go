package main

import (
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/maauso/subtitles-api/internal/caption"
)

// errInvalidTrack is returned by validate when the track has problems.
var errInvalidTrack = errors.New("track has structural problems")

func newFormatCommand() *cobra.Command {
	var output string

	cmd := &cobra.Command{
		Use:   "format <file|->",
		Short: "Normalise a track to the service's newline-dense layout",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			track, err := readTrack(cmd, args[0])
			if err != nil {
				return err
			}
			return writeTrack(cmd, output, caption.Format(track))
		},
	}

	cmd.Flags().StringVarP(&output, "output", "o", "", "Write the result to this file instead of stdout")
	return cmd
}

func newShiftCommand() *cobra.Command {
	var offset float64
	var output string

	cmd := &cobra.Command{
		Use:   "shift <file|->",
		Short: "Shift every timestamp by a non-negative offset in seconds",
		Long: "Shift every timestamp by --offset seconds. Cues are renumbered from 1; " +
			"blank lines and letter case are kept as they are. " +
			"Pipe the result through format to normalize it.",
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			track, err := readTrack(cmd, args[0])
			if err != nil {
				return err
			}
			shifted, err := caption.OffsetTrack(track, offset)
			if err != nil {
				return fmt.Errorf("shift track: %w", err)
			}
			return writeTrack(cmd, output, shifted)
		},
	}

	cmd.Flags().Float64Var(&offset, "offset", 0, "Offset in seconds (required)")
	cmd.Flags().StringVarP(&output, "output", "o", "", "Write the result to this file instead of stdout")
	_ = cmd.MarkFlagRequired("offset")
	return cmd
}

func newMergeCommand() *cobra.Command {
	var offset float64
	var output string

	cmd := &cobra.Command{
		Use:   "merge <first> <second>",
		Short: "Concatenate two tracks, shifting the second by the first's duration",
		Long: "Merge two tracks transcribed from consecutive halves of one recording. " +
			"--offset is the real duration of the first half in seconds; cue numbers " +
			"continue across the join.",
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			if args[0] == "-" && args[1] == "-" {
				return fmt.Errorf("only one track can be read from stdin")
			}
			first, err := readTrack(cmd, args[0])
			if err != nil {
				return err
			}
			second, err := readTrack(cmd, args[1])
			if err != nil {
				return err
			}
			merged, err := caption.Merge(first, second, offset)
			if err != nil {
				return fmt.Errorf("merge tracks: %w", err)
			}
			return writeTrack(cmd, output, merged)
		},
	}

	cmd.Flags().Float64Var(&offset, "offset", 0, "Duration of the first track's audio in seconds (required)")
	cmd.Flags().StringVarP(&output, "output", "o", "", "Write the result to this file instead of stdout")
	_ = cmd.MarkFlagRequired("offset")
	return cmd
}

func newValidateCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "validate <file|->",
		Short: "Check cue numbering, timing and layout",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			track, err := readTrack(cmd, args[0])
			if err != nil {
				return err
			}
			cues, err := caption.Parse(track)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			issues := caption.Validate(cues)
			for _, issue := range issues {
				fmt.Fprintln(out, issue)
			}
			if len(issues) > 0 {
				return fmt.Errorf("%w: %d issue(s)", errInvalidTrack, len(issues))
			}

			var end float64
			if len(cues) > 0 {
				end = cues[len(cues)-1].End
			}
			last, err := caption.ToTimestamp(end)
			if err != nil {
				return err
			}
			fmt.Fprintf(out, "OK: %d cues, last ends at %s\n", len(cues), last)
			return nil
		},
	}
	return cmd
}

// readTrack reads a file, or stdin when path is "-".
func readTrack(cmd *cobra.Command, path string) (string, error) {
	path = strings.TrimSpace(path)
	if path == "-" {
		data, err := io.ReadAll(cmd.InOrStdin())
		if err != nil {
			return "", fmt.Errorf("read stdin: %w", err)
		}
		return string(data), nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return "", fmt.Errorf("track %q not found", path)
		}
		return "", fmt.Errorf("read track: %w", err)
	}
	return string(data), nil
}

// writeTrack writes to path, or to the command's stdout when path is empty.
func writeTrack(cmd *cobra.Command, path, track string) error {
	if !strings.HasSuffix(track, "\n") && track != "" {
		track += "\n"
	}
	if path == "" {
		_, err := io.WriteString(cmd.OutOrStdout(), track)
		return err
	}
	if err := os.WriteFile(path, []byte(track), 0o644); err != nil {
		return fmt.Errorf("write output: %w", err)
	}
	return nil
}

// Package caption implements the SRT caption-track operations used by the
// subtitle pipeline: line normalization, timestamp arithmetic, track
// offsetting and merging of two half-tracks into one timeline.
//
// Tracks are handled as plain text. A track is a sequence of cues, each made
// of a sequence-number line, a timestamp-range line of the exact form
// "HH:MM:SS,mmm --> HH:MM:SS,mmm" and one or more text lines.
package caption

import (
	"regexp"
	"strings"
)

var (
	sequenceLineRe  = regexp.MustCompile(`^\d+$`)
	timestampLineRe = regexp.MustCompile(`^\d{2}:\d{2}:\d{2},\d{3} --> \d{2}:\d{2}:\d{2},\d{3}$`)
)

// rangeSeparator separates the start and end timestamp of a cue.
const rangeSeparator = " --> "

// IsSequenceLine reports whether line is a bare cue sequence number.
func IsSequenceLine(line string) bool {
	return sequenceLineRe.MatchString(line)
}

// IsTimestampLine reports whether line is a timestamp-range line.
func IsTimestampLine(line string) bool {
	return timestampLineRe.MatchString(line)
}

// Format normalizes a caption track. Blank lines are dropped, sequence
// numbers and timestamp ranges pass through unchanged and every other line
// is uppercased. The result is newline-joined and always ends with exactly
// one trailing newline.
func Format(track string) string {
	lines := splitLines(track)
	out := make([]string, 0, len(lines))

	for _, line := range lines {
		line = strings.TrimSpace(line)
		switch {
		case line == "":
			continue
		case IsSequenceLine(line), IsTimestampLine(line):
			out = append(out, line)
		default:
			out = append(out, strings.ToUpper(line))
		}
	}

	return strings.Join(out, "\n") + "\n"
}

// splitLines splits text on LF, tolerating CRLF line endings.
func splitLines(text string) []string {
	text = strings.ReplaceAll(text, "\r\n", "\n")
	return strings.Split(text, "\n")
}

// countCues returns the number of timestamp-range lines in track.
func countCues(track string) int {
	n := 0
	for _, line := range splitLines(track) {
		if IsTimestampLine(strings.TrimSpace(line)) {
			n++
		}
	}
	return n
}

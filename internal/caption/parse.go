package caption

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// ErrMalformedTrack is returned when a track does not follow the cue layout.
var ErrMalformedTrack = errors.New("caption: malformed track")

// Cue is one timed caption entry.
type Cue struct {
	Index int
	Start float64
	End   float64
	Lines []string
}

// Parse reads a track into cues. It accepts both blank-line separated tracks
// and the newline-dense output of Format: a new cue starts at a sequence line
// that is immediately followed by a timestamp-range line.
func Parse(track string) ([]Cue, error) {
	var lines []string
	for _, line := range splitLines(track) {
		if line = strings.TrimSpace(line); line != "" {
			lines = append(lines, line)
		}
	}

	var cues []Cue
	for i := 0; i < len(lines); {
		if !IsSequenceLine(lines[i]) {
			return nil, fmt.Errorf("%w: expected cue index, got %q", ErrMalformedTrack, lines[i])
		}
		index, err := strconv.Atoi(lines[i])
		if err != nil {
			return nil, fmt.Errorf("%w: cue index %q: %w", ErrMalformedTrack, lines[i], err)
		}
		if i+1 >= len(lines) || !IsTimestampLine(lines[i+1]) {
			return nil, fmt.Errorf("%w: cue %d has no timestamp line", ErrMalformedTrack, index)
		}
		start, end, err := parseRange(lines[i+1])
		if err != nil {
			return nil, fmt.Errorf("cue %d: %w", index, err)
		}
		i += 2

		cue := Cue{Index: index, Start: start, End: end}
		for i < len(lines) && !startsCue(lines, i) {
			cue.Lines = append(cue.Lines, lines[i])
			i++
		}
		cues = append(cues, cue)
	}

	return cues, nil
}

func startsCue(lines []string, i int) bool {
	return IsSequenceLine(lines[i]) && i+1 < len(lines) && IsTimestampLine(lines[i+1])
}

// Validate reports structural problems in cues: indices that are not
// contiguous from 1, cues that end before they start, cues without text,
// and cues that start before their predecessor. An empty result means the
// track is well formed.
func Validate(cues []Cue) []string {
	var issues []string
	prevStart := 0.0

	for i, c := range cues {
		if c.Index != i+1 {
			issues = append(issues, fmt.Sprintf("cue %d: index %d, want %d", i+1, c.Index, i+1))
		}
		if c.End <= c.Start {
			issues = append(issues, fmt.Sprintf("cue %d: end %.3f is not after start %.3f", c.Index, c.End, c.Start))
		}
		if len(c.Lines) == 0 {
			issues = append(issues, fmt.Sprintf("cue %d: no text", c.Index))
		}
		if i > 0 && c.Start < prevStart {
			issues = append(issues, fmt.Sprintf("cue %d: starts at %.3f before previous cue at %.3f", c.Index, c.Start, prevStart))
		}
		prevStart = c.Start
	}

	return issues
}

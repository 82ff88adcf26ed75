package caption

import (
	"fmt"
	"strings"
	"unicode"
)

// Merge joins two caption tracks into one timeline. Track b is shifted by
// aDuration, the measured duration of the audio that a was transcribed from,
// and its cues are numbered on from a's last cue. Both halves are formatted
// and separated by a single blank line.
func Merge(a, b string, aDuration float64) (string, error) {
	formattedA := Format(a)

	shifted, err := offsetTrack(b, aDuration, countCues(formattedA)+1)
	if err != nil {
		return "", fmt.Errorf("offset second track: %w", err)
	}
	formattedB := Format(shifted)

	left := strings.TrimRightFunc(formattedA, unicode.IsSpace)
	right := strings.TrimRightFunc(formattedB, unicode.IsSpace)

	switch {
	case left == "":
		return right + "\n", nil
	case right == "":
		return left + "\n", nil
	}
	return left + "\n\n" + right + "\n", nil
}

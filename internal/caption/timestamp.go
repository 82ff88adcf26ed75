package caption

import (
	"errors"
	"fmt"
	"math"
	"regexp"
	"strconv"
	"strings"
)

// Static errors for timestamp arithmetic.
var (
	// ErrInvalidTimestamp is wrapped by every TimestampParseError.
	ErrInvalidTimestamp = errors.New("caption: invalid timestamp")
	// ErrInvalidOffset is returned when a track offset is negative or not finite.
	ErrInvalidOffset = errors.New("caption: offset must be a finite, non-negative number of seconds")
)

// maxSeconds is the first value that no longer fits a two-digit hour field.
const maxSeconds = 100 * 3600

// maxMillis is the largest renderable timestamp, 99:59:59,999.
const maxMillis = maxSeconds*1000 - 1

var timestampRe = regexp.MustCompile(`^(\d{2}):(\d{2}):(\d{2}),(\d{3})$`)

// TimestampParseError reports a timestamp that cannot be parsed or rendered.
type TimestampParseError struct {
	Value  string
	Reason string
}

func (e *TimestampParseError) Error() string {
	if e.Reason == "" {
		return fmt.Sprintf("caption: invalid timestamp %q", e.Value)
	}
	return fmt.Sprintf("caption: invalid timestamp %q: %s", e.Value, e.Reason)
}

func (e *TimestampParseError) Unwrap() error {
	return ErrInvalidTimestamp
}

// ToSeconds parses an "HH:MM:SS,mmm" timestamp into seconds.
func ToSeconds(ts string) (float64, error) {
	m := timestampRe.FindStringSubmatch(ts)
	if m == nil {
		return 0, &TimestampParseError{Value: ts, Reason: "want HH:MM:SS,mmm"}
	}

	hours, _ := strconv.Atoi(m[1])
	minutes, _ := strconv.Atoi(m[2])
	seconds, _ := strconv.Atoi(m[3])
	millis, _ := strconv.Atoi(m[4])

	if minutes > 59 || seconds > 59 {
		return 0, &TimestampParseError{Value: ts, Reason: "minutes and seconds must be below 60"}
	}

	return float64(hours*3600+minutes*60+seconds) + float64(millis)/1000, nil
}

// ToTimestamp renders seconds as "HH:MM:SS,mmm", truncating to the
// millisecond. A nanosecond of slack absorbs float error, so 2701.3 renders
// as 00:45:01,300 and not ,299, while 1.9999996 still renders as ,999.
func ToTimestamp(sec float64) (string, error) {
	if math.IsNaN(sec) || math.IsInf(sec, 0) || sec < 0 || sec >= maxSeconds {
		return "", &TimestampParseError{
			Value:  strconv.FormatFloat(sec, 'f', -1, 64),
			Reason: "seconds must be within [0, 360000)",
		}
	}

	totalMillis := min(int64(math.Floor(sec*1000+1e-6)), maxMillis)

	hours := totalMillis / 3_600_000
	minutes := (totalMillis / 60_000) % 60
	seconds := (totalMillis / 1000) % 60
	millis := totalMillis % 1000

	return fmt.Sprintf("%02d:%02d:%02d,%03d", hours, minutes, seconds, millis), nil
}

// OffsetTrack shifts every cue of track by offset seconds and renumbers the
// sequence lines from 1 in line order. All other lines are left as is.
func OffsetTrack(track string, offset float64) (string, error) {
	return offsetTrack(track, offset, 1)
}

// offsetTrack is OffsetTrack with a configurable first sequence number.
func offsetTrack(track string, offset float64, firstIndex int) (string, error) {
	if math.IsNaN(offset) || math.IsInf(offset, 0) || offset < 0 {
		return "", fmt.Errorf("%w: got %v", ErrInvalidOffset, offset)
	}

	lines := splitLines(track)
	next := firstIndex

	for i, line := range lines {
		trimmed := strings.TrimSpace(line)
		switch {
		case IsTimestampLine(trimmed):
			shifted, err := shiftRange(trimmed, offset)
			if err != nil {
				return "", fmt.Errorf("line %d: %w", i+1, err)
			}
			lines[i] = shifted
		case IsSequenceLine(trimmed):
			lines[i] = strconv.Itoa(next)
			next++
		}
	}

	return strings.Join(lines, "\n"), nil
}

// shiftRange adds offset to both sides of a timestamp-range line.
func shiftRange(line string, offset float64) (string, error) {
	start, end, err := parseRange(line)
	if err != nil {
		return "", err
	}

	from, err := ToTimestamp(start + offset)
	if err != nil {
		return "", err
	}
	to, err := ToTimestamp(end + offset)
	if err != nil {
		return "", err
	}

	return from + rangeSeparator + to, nil
}

// parseRange parses both sides of a timestamp-range line.
func parseRange(line string) (start, end float64, err error) {
	left, right, ok := strings.Cut(line, rangeSeparator)
	if !ok {
		return 0, 0, &TimestampParseError{Value: line, Reason: "missing range separator"}
	}
	if start, err = ToSeconds(left); err != nil {
		return 0, 0, err
	}
	if end, err = ToSeconds(right); err != nil {
		return 0, 0, err
	}
	return start, end, nil
}

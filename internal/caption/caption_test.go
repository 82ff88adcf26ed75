package caption

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

const sampleTrack = "1\n00:00:01,000 --> 00:00:02,500\nHello world\n\n2\n00:00:03,000 --> 00:00:04,000\nsecond line\nand a third\n"

func TestFormat(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  string
	}{
		{
			name:  "uppercases text and drops blank lines",
			input: sampleTrack,
			want:  "1\n00:00:01,000 --> 00:00:02,500\nHELLO WORLD\n2\n00:00:03,000 --> 00:00:04,000\nSECOND LINE\nAND A THIRD\n",
		},
		{
			name:  "accepts CRLF line endings",
			input: "1\r\n00:00:01,000 --> 00:00:02,000\r\nhi\r\n\r\n",
			want:  "1\n00:00:01,000 --> 00:00:02,000\nHI\n",
		},
		{
			name:  "trims surrounding whitespace",
			input: "  7  \n00:00:01,000 --> 00:00:02,000\n   spaced out   \n\n\n",
			want:  "7\n00:00:01,000 --> 00:00:02,000\nSPACED OUT\n",
		},
		{
			name:  "near-miss timestamp lines are treated as text",
			input: "1\n0:00:01,000 --> 0:00:02,000\nx\n",
			want:  "1\n0:00:01,000 --> 0:00:02,000\nX\n",
		},
		{
			name:  "empty track",
			input: "\n\n",
			want:  "\n",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Format(tt.input))
		})
	}
}

func TestFormat_EndsWithSingleNewline(t *testing.T) {
	out := Format(sampleTrack + "\n\n\n")
	assert.True(t, strings.HasSuffix(out, "\n"))
	assert.False(t, strings.HasSuffix(out, "\n\n"))
}

func TestFormat_StructuralLinesStableUnderReformat(t *testing.T) {
	once := Format(sampleTrack)
	twice := Format(once)

	structural := func(track string) []string {
		var out []string
		for _, line := range strings.Split(track, "\n") {
			if IsSequenceLine(line) || IsTimestampLine(line) {
				out = append(out, line)
			}
		}
		return out
	}

	assert.Equal(t, structural(once), structural(twice))
	assert.Equal(t, once, twice)
}

func TestLineClassification(t *testing.T) {
	assert.True(t, IsSequenceLine("12"))
	assert.False(t, IsSequenceLine("12a"))
	assert.False(t, IsSequenceLine(""))

	assert.True(t, IsTimestampLine("00:00:01,000 --> 00:00:02,000"))
	assert.False(t, IsTimestampLine("00:00:01.000 --> 00:00:02.000"))
	assert.False(t, IsTimestampLine("00:00:01,000-->00:00:02,000"))
	assert.False(t, IsTimestampLine("00:00:01,000 --> 00:00:02,000 align:start"))
}

// Package audio provides the audio asset model and the splitter that cuts
// long recordings into two halves for transcription.
package audio

import (
	"context"
	"errors"
	"fmt"
)

// ErrSplit is wrapped by every SplitError.
var ErrSplit = errors.New("audio: split failed")

// Asset is a source recording staged on local disk for one pipeline run.
type Asset struct {
	// SourceURL is where the bytes were fetched from.
	SourceURL string
	// Path is the local staging path inside the run's scratch directory.
	Path string
	// Size is the byte length of the staged file.
	Size int64
	// Duration is the probed duration in seconds.
	Duration float64
	// Ext is the file extension, including the leading dot.
	Ext string
}

// Chunk is one contiguous piece of a split asset.
type Chunk struct {
	// Path is the chunk file on local disk.
	Path string
	// Start is the nominal offset of the chunk within the source, in seconds.
	Start float64
	// Duration is the chunk length in seconds. See ChunkPair for which
	// values are measured.
	Duration float64
}

// ChunkPair is the result of splitting an asset at its midpoint.
//
// First.Duration is measured by probing the written file and is the value
// to offset the second half's captions by. Second.Duration is the nominal
// remainder (total minus First.Duration) and is informational only.
type ChunkPair struct {
	First  Chunk
	Second Chunk
}

// SplitError reports a failed split.
type SplitError struct {
	Source string
	Err    error
}

func (e *SplitError) Error() string {
	return fmt.Sprintf("audio: split %s: %v", e.Source, e.Err)
}

func (e *SplitError) Unwrap() []error {
	return []error{ErrSplit, e.Err}
}

// Splitter defines the interface for cutting an audio file in two.
type Splitter interface {
	// SplitInHalf cuts src at total/2 into two files written to workDir,
	// without re-encoding. total is the probed duration of src.
	//
	// The caller owns workDir and is responsible for removing the chunks.
	SplitInHalf(ctx context.Context, src, workDir string, total float64) (ChunkPair, error)
}

package audio

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"golang.org/x/sync/errgroup"

	"github.com/maauso/subtitles-api/internal/media"
)

// FFmpegSplitter implements Splitter using ffmpeg stream-copy cuts.
type FFmpegSplitter struct {
	ffmpegPath string
	runner     media.Runner
	prober     media.Prober
}

// NewFFmpegSplitter creates a new FFmpegSplitter.
// If ffmpegPath is empty, it defaults to "ffmpeg" (found in PATH).
// If runner is nil, commands are executed with media.ExecRunner.
// The prober re-measures the first chunk after cutting.
func NewFFmpegSplitter(ffmpegPath string, runner media.Runner, prober media.Prober) *FFmpegSplitter {
	if ffmpegPath == "" {
		ffmpegPath = "ffmpeg"
	}
	if runner == nil {
		runner = media.ExecRunner{}
	}
	return &FFmpegSplitter{ffmpegPath: ffmpegPath, runner: runner, prober: prober}
}

// SplitInHalf implements Splitter.SplitInHalf.
func (s *FFmpegSplitter) SplitInHalf(ctx context.Context, src, workDir string, total float64) (ChunkPair, error) {
	if total <= 0 {
		return ChunkPair{}, &SplitError{Source: src, Err: fmt.Errorf("%w: got %.3f", media.ErrInvalidDuration, total)}
	}

	// Validate input file exists
	if _, err := os.Stat(src); err != nil {
		return ChunkPair{}, &SplitError{Source: src, Err: fmt.Errorf("stat input: %w", err)}
	}

	midpoint := total / 2
	ext := filepath.Ext(src)
	firstPath := filepath.Join(workDir, chunkName(0, ext))
	secondPath := filepath.Join(workDir, chunkName(1, ext))

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		cmd := media.StreamCopyTrim(s.ffmpegPath, media.TrimSpec{Input: src, Output: firstPath, Duration: midpoint})
		if _, err := s.runner.Run(gctx, cmd); err != nil {
			return fmt.Errorf("cut first half: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		cmd := media.StreamCopyTrim(s.ffmpegPath, media.TrimSpec{Input: src, Output: secondPath, Start: midpoint})
		if _, err := s.runner.Run(gctx, cmd); err != nil {
			return fmt.Errorf("cut second half: %w", err)
		}
		return nil
	})
	if err := g.Wait(); err != nil {
		return ChunkPair{}, &SplitError{Source: src, Err: err}
	}

	// Stream-copy cuts land on packet boundaries, so the first half is
	// measured rather than assumed to be exactly the midpoint.
	firstDuration, err := s.prober.Duration(ctx, firstPath)
	if err != nil {
		return ChunkPair{}, &SplitError{Source: src, Err: fmt.Errorf("probe first half: %w", err)}
	}

	return ChunkPair{
		First: Chunk{
			Path:     firstPath,
			Start:    0,
			Duration: firstDuration,
		},
		Second: Chunk{
			Path:     secondPath,
			Start:    midpoint,
			Duration: max(total-firstDuration, 0),
		},
	}, nil
}

// chunkName returns the file name of the i-th chunk, e.g. chunk_000.mp3.
func chunkName(i int, ext string) string {
	return fmt.Sprintf("chunk_%03d%s", i, ext)
}

// Verify interface implementation at compile time.
var _ Splitter = (*FFmpegSplitter)(nil)

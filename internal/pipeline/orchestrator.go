package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"

	"github.com/maauso/subtitles-api/internal/audio"
	"github.com/maauso/subtitles-api/internal/caption"
	"github.com/maauso/subtitles-api/internal/download"
	"github.com/maauso/subtitles-api/internal/media"
	"github.com/maauso/subtitles-api/internal/scratch"
	"github.com/maauso/subtitles-api/internal/storage"
	"github.com/maauso/subtitles-api/internal/transcribe"
)

const (
	// DefaultSplitThreshold is the longest audio, in seconds, sent to the
	// transcriber in a single call.
	DefaultSplitThreshold = 3600.0
	// ContentTypeSRT is the content type of uploaded tracks.
	ContentTypeSRT = "application/x-subrip"

	sourceBaseName = "source"
	outputFileName = "subtitles.srt"
	anonymousUser  = "anonymous"
	maxUserIDLen   = 64
)

// Run outcomes reported to the Recorder.
const (
	OutcomeSuccess = "success"
	OutcomeFailed  = "failed"
	OutcomeTimeout = "timeout"
)

// Request is the input of a pipeline run.
type Request struct {
	// AudioURL is the absolute http(s) URL of the source audio.
	AudioURL string
	// UserID namespaces the uploaded file. Empty means anonymous.
	UserID string
	// OnStage, if set, observes every stage transition.
	OnStage StageObserver
}

// Result is the output of a successful run.
type Result struct {
	RunID         string
	SubtitlesURL  string
	Chunked       bool
	TotalDuration float64
	ChunkCount    int
	CueCount      int
}

// Recorder receives run metrics.
type Recorder interface {
	PipelineStarted()
	PipelineFinished(outcome string, chunked bool, elapsed time.Duration)
	StageFailed(stage string)
}

type nopRecorder struct{}

func (nopRecorder) PipelineStarted()                             {}
func (nopRecorder) PipelineFinished(string, bool, time.Duration) {}
func (nopRecorder) StageFailed(string)                           {}

// Orchestrator runs pipelines. It is safe for concurrent use; every run
// works in its own scratch directory.
type Orchestrator struct {
	fetcher     download.Fetcher
	prober      media.Prober
	splitter    audio.Splitter
	transcriber transcribe.Transcriber
	store       storage.Storage
	root        *scratch.Root
	logger      *slog.Logger

	splitThreshold float64
	timeout        time.Duration
	slots          *semaphore.Weighted
	keyPrefix      string
	recorder       Recorder
	now            func() time.Time
}

// Option is a function that configures an Orchestrator.
type Option func(*Orchestrator)

// WithSplitThreshold sets the duration above which audio is split in two.
func WithSplitThreshold(seconds float64) Option {
	return func(o *Orchestrator) {
		if seconds > 0 {
			o.splitThreshold = seconds
		}
	}
}

// WithTimeout bounds the duration of a single run. Zero disables the deadline.
func WithTimeout(d time.Duration) Option {
	return func(o *Orchestrator) {
		o.timeout = d
	}
}

// WithMaxConcurrent caps the number of runs executing at once. Runs over
// the cap wait in StageQueued. Zero means unbounded.
func WithMaxConcurrent(n int) Option {
	return func(o *Orchestrator) {
		if n > 0 {
			o.slots = semaphore.NewWeighted(int64(n))
		} else {
			o.slots = nil
		}
	}
}

// WithKeyPrefix sets the storage key prefix for uploaded tracks.
func WithKeyPrefix(prefix string) Option {
	return func(o *Orchestrator) {
		o.keyPrefix = strings.Trim(prefix, "/")
	}
}

// WithRecorder sets the metrics recorder.
func WithRecorder(r Recorder) Option {
	return func(o *Orchestrator) {
		if r != nil {
			o.recorder = r
		}
	}
}

// WithClock overrides the clock used for storage keys and run timing.
func WithClock(now func() time.Time) Option {
	return func(o *Orchestrator) {
		o.now = now
	}
}

// NewOrchestrator creates a new Orchestrator. transcriber may be nil, in
// which case every run fails validation with ErrTranscriberNotConfigured.
func NewOrchestrator(
	fetcher download.Fetcher,
	prober media.Prober,
	splitter audio.Splitter,
	transcriber transcribe.Transcriber,
	store storage.Storage,
	root *scratch.Root,
	logger *slog.Logger,
	opts ...Option,
) *Orchestrator {
	if logger == nil {
		logger = slog.Default()
	}
	o := &Orchestrator{
		fetcher:        fetcher,
		prober:         prober,
		splitter:       splitter,
		transcriber:    transcriber,
		store:          store,
		root:           root,
		logger:         logger,
		splitThreshold: DefaultSplitThreshold,
		recorder:       nopRecorder{},
		now:            time.Now,
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// run is the per-invocation state.
type run struct {
	req     Request
	dir     *scratch.Dir
	logger  *slog.Logger
	stage   Stage
	chunked bool
	observe StageObserver
}

func (r *run) enter(s Stage) {
	r.stage = s
	r.logger.Info("pipeline stage", slog.String("stage", string(s)))
	r.observe(s)
}

func (r *run) fail(kind, err error) error {
	return &StageError{Stage: r.stage, Kind: kind, Err: err}
}

// Run executes one pipeline. On success it returns the uploaded track's
// URL and metadata. On failure it returns a *StageError and no result.
// The run directory is removed before Run returns on every path.
func (o *Orchestrator) Run(ctx context.Context, req Request) (*Result, error) {
	observe := req.OnStage
	if observe == nil {
		observe = func(Stage) {}
	}

	if err := o.Validate(req); err != nil {
		observe(StageFailed)
		return nil, err
	}

	if o.slots != nil {
		observe(StageQueued)
		if err := o.slots.Acquire(ctx, 1); err != nil {
			observe(StageFailed)
			return nil, &StageError{Stage: StageQueued, Kind: ErrCancelled, Err: err}
		}
		defer o.slots.Release(1)
	}

	if o.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, o.timeout)
		defer cancel()
	}

	dir, err := o.root.New()
	if err != nil {
		observe(StageFailed)
		return nil, &StageError{Stage: StageDownloading, Kind: ErrWorkspace, Err: err}
	}

	r := &run{
		req:     req,
		dir:     dir,
		logger:  o.logger.With(slog.String("run_id", dir.ID())),
		observe: observe,
	}
	r.logger.Info("pipeline started",
		slog.String("audio_url", req.AudioURL),
		slog.String("user_id", req.UserID),
	)

	start := o.now()
	o.recorder.PipelineStarted()

	var finished bool
	defer func() {
		failedAt := r.stage
		r.enter(StageCleaningUp)
		if cerr := dir.Cleanup(); cerr != nil {
			r.logger.Warn("failed to remove scratch directory",
				slog.String("path", dir.Path()),
				slog.String("error", cerr.Error()),
			)
		}

		elapsed := o.now().Sub(start)
		if finished && err == nil {
			r.enter(StageDone)
			o.recorder.PipelineFinished(OutcomeSuccess, r.chunked, elapsed)
			return
		}

		outcome := OutcomeFailed
		if errors.Is(err, context.DeadlineExceeded) {
			outcome = OutcomeTimeout
		}
		o.recorder.StageFailed(string(failedAt))
		r.enter(StageFailed)
		o.recorder.PipelineFinished(outcome, r.chunked, elapsed)
	}()

	res, err := o.execute(ctx, r)
	if err != nil {
		r.logger.Error("pipeline failed",
			slog.String("stage", string(r.stage)),
			slog.String("error", err.Error()),
		)
		return nil, err
	}
	finished = true

	r.logger.Info("pipeline completed",
		slog.String("subtitles_url", res.SubtitlesURL),
		slog.Bool("chunked", res.Chunked),
		slog.Float64("total_duration", res.TotalDuration),
		slog.Int("cue_count", res.CueCount),
	)
	return res, nil
}

// Validate checks a request without running it. Run calls it first; it is
// exported so callers can reject a request before accepting it for
// background processing.
func (o *Orchestrator) Validate(req Request) error {
	if strings.TrimSpace(req.AudioURL) == "" {
		return &StageError{Stage: StageValidating, Kind: ErrValidation, Err: ErrMissingAudioURL}
	}
	if _, err := download.ParseSourceURL(req.AudioURL); err != nil {
		return &StageError{Stage: StageValidating, Kind: ErrValidation, Err: err}
	}
	if o.transcriber == nil {
		return &StageError{Stage: StageValidating, Kind: ErrValidation, Err: ErrTranscriberNotConfigured}
	}
	return nil
}

func (o *Orchestrator) execute(ctx context.Context, r *run) (*Result, error) {
	r.enter(StageDownloading)
	file, err := o.fetcher.Fetch(ctx, r.req.AudioURL, r.dir.Path(), sourceBaseName)
	if err != nil {
		return nil, r.fail(ErrDownload, err)
	}
	asset := audio.Asset{
		SourceURL: r.req.AudioURL,
		Path:      file.Path,
		Size:      file.Size,
		Ext:       file.Ext,
	}
	r.logger.Info("audio downloaded",
		slog.Int64("size", asset.Size),
		slog.String("ext", asset.Ext),
	)

	r.enter(StageProbingDuration)
	asset.Duration, err = o.prober.Duration(ctx, asset.Path)
	if err != nil {
		return nil, r.fail(ErrProbe, err)
	}
	r.logger.Info("audio probed", slog.Float64("duration", asset.Duration))

	res := &Result{
		RunID:         r.dir.ID(),
		TotalDuration: asset.Duration,
		ChunkCount:    1,
	}

	var track string
	if asset.Duration > o.splitThreshold {
		r.chunked = true
		res.Chunked = true
		res.ChunkCount = 2
		track, err = o.transcribeSplit(ctx, r, asset)
	} else {
		track, err = o.transcribeDirect(ctx, r, asset)
	}
	if err != nil {
		return nil, err
	}

	if cues, perr := caption.Parse(track); perr != nil {
		r.logger.Warn("final track is not well-formed", slog.String("error", perr.Error()))
	} else {
		res.CueCount = len(cues)
	}

	r.enter(StageUploading)
	res.SubtitlesURL, err = o.upload(ctx, r, track)
	if err != nil {
		return nil, r.fail(ErrUpload, err)
	}

	return res, nil
}

func (o *Orchestrator) transcribeDirect(ctx context.Context, r *run, asset audio.Asset) (string, error) {
	r.enter(StageDirectTranscribe)
	raw, err := o.transcribeFile(ctx, r.dir, asset.Path)
	if err != nil {
		return "", r.fail(ErrTranscription, err)
	}
	return caption.Format(raw), nil
}

func (o *Orchestrator) transcribeSplit(ctx context.Context, r *run, asset audio.Asset) (string, error) {
	r.enter(StageSplitting)
	pair, err := o.splitter.SplitInHalf(ctx, asset.Path, r.dir.Path(), asset.Duration)
	if err != nil {
		return "", r.fail(ErrSplit, err)
	}

	// The splitter measures the first half itself; this stage records it.
	r.enter(StageProbingChunks)
	r.logger.Info("audio split",
		slog.Float64("midpoint", pair.Second.Start),
		slog.Float64("first_duration", pair.First.Duration),
		slog.Float64("second_duration_nominal", pair.Second.Duration),
	)

	r.enter(StageTranscribingParallel)
	var first, second string
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		first, err = o.transcribeFile(gctx, r.dir, pair.First.Path)
		return err
	})
	g.Go(func() error {
		var err error
		second, err = o.transcribeFile(gctx, r.dir, pair.Second.Path)
		return err
	})
	if err := g.Wait(); err != nil {
		return "", r.fail(ErrTranscription, err)
	}

	r.enter(StageMerging)
	merged, err := caption.Merge(first, second, pair.First.Duration)
	if err != nil {
		return "", r.fail(ErrTranscription, fmt.Errorf("merge chunk tracks: %w", err))
	}
	return merged, nil
}

// transcribeFile sends one file to the transcriber and rejects empty output.
func (o *Orchestrator) transcribeFile(ctx context.Context, dir *scratch.Dir, filePath string) (string, error) {
	f, err := dir.Open(filePath)
	if err != nil {
		return "", err
	}
	defer func() { _ = f.Close() }()

	name := filepath.Base(filePath)
	text, err := o.transcriber.Transcribe(ctx, name, f)
	if err != nil {
		return "", err
	}
	if strings.TrimSpace(text) == "" {
		return "", fmt.Errorf("%s: %w", name, ErrEmptyTranscript)
	}
	return text, nil
}

func (o *Orchestrator) upload(ctx context.Context, r *run, track string) (string, error) {
	local, err := r.dir.Save(ctx, outputFileName, strings.NewReader(track))
	if err != nil {
		return "", err
	}

	key := o.objectKey(r.req.UserID, r.dir.ID())
	url, err := o.store.Upload(ctx, local, key, ContentTypeSRT)
	if err != nil {
		return "", err
	}
	r.logger.Info("subtitles uploaded", slog.String("key", key), slog.String("url", url))
	return url, nil
}

var unsafeKeyChars = regexp.MustCompile(`[^A-Za-z0-9_-]`)

// objectKey returns <prefix>/<user>/subtitles_<unixmillis>_<shortid>.srt.
func (o *Orchestrator) objectKey(userID, runID string) string {
	user := unsafeKeyChars.ReplaceAllString(strings.TrimSpace(userID), "_")
	if len(user) > maxUserIDLen {
		user = user[:maxUserIDLen]
	}
	if user == "" {
		user = anonymousUser
	}

	shortID := runID
	if len(shortID) > 8 {
		shortID = shortID[:8]
	}

	name := fmt.Sprintf("subtitles_%d_%s.srt", o.now().UnixMilli(), shortID)
	return path.Join(o.keyPrefix, user, name)
}
